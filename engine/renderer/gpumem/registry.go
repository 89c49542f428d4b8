package gpumem

import (
	"sync"

	"github.com/lumen-engine/lumen/engine/core"
	"github.com/lumen-engine/lumen/engine/renderer/driver"
)

// registeredVAO couples a vertex array with the buffer handles the registry
// created for it, so the final release can send them back through the
// allocator's own release path.
type registeredVAO struct {
	va *VertexArray

	vertexBuffer ResourceID
	hasIndex     bool
	indexBuffer  ResourceID
}

// VAORegistry composes the allocator and VertexArray into one entry point:
// Create packs and uploads a mesh and returns a stable handle; Release
// refcounts it and tears down the assembly when the last holder lets go.
type VAORegistry struct {
	mu    sync.Mutex
	alloc *BufferAllocator
	pool  *ResourcePool[*registeredVAO]
}

var registriesMu sync.Mutex
var registries = map[driver.Driver]*VAORegistry{}

// RegistryFor returns the registry bound to the factory's context, creating
// it on first use. One registry exists per driver.
func RegistryFor(factory *Factory) *VAORegistry {
	registriesMu.Lock()
	defer registriesMu.Unlock()

	d := factory.Driver()
	if r, ok := registries[d]; ok {
		return r
	}
	r := &VAORegistry{
		alloc: NewBufferAllocator(factory),
		pool:  NewResourcePool[*registeredVAO](),
	}
	registries[d] = r
	return r
}

// Allocator exposes the registry's buffer allocator for callers that manage
// buffers directly.
func (r *VAORegistry) Allocator() *BufferAllocator {
	return r.alloc
}

// Create packs the vertices (and optional indices), uploads them, builds a
// configured VertexArray over the result, and returns its handle with one
// reference held by the caller.
func (r *VAORegistry) Create(layout *Layout, vertices [][]float32, indices []uint32, usage ...driver.Usage) (ResourceID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	vbID, err := r.alloc.CreateVertexBuffer(layout, vertices, usage...)
	if err != nil {
		return InvalidResourceID, err
	}

	cfg := VertexArrayConfig{
		Layout:       layout,
		VertexBuffer: vbID,
		VertexCount:  len(vertices),
	}

	if len(indices) > 0 {
		ibID, indexType, err := r.alloc.CreateIndexBufferForVertices(indices, len(vertices), false, usage...)
		if err != nil {
			r.alloc.Release(vbID)
			return InvalidResourceID, err
		}
		cfg.HasIndexBuffer = true
		cfg.IndexBuffer = ibID
		cfg.IndexCount = len(indices)
		cfg.IndexType = indexType
	}

	va, err := NewVertexArray(r.alloc, cfg)
	if err != nil {
		r.alloc.Release(vbID)
		if cfg.HasIndexBuffer {
			r.alloc.Release(cfg.IndexBuffer)
		}
		return InvalidResourceID, err
	}

	entry := &registeredVAO{
		va:           va,
		vertexBuffer: vbID,
		hasIndex:     cfg.HasIndexBuffer,
		indexBuffer:  cfg.IndexBuffer,
	}
	id := r.pool.Allocate(entry)
	core.LogDebug("vao registry: created assembly %d (vertices=%d, indexed=%t)",
		id.Index, cfg.VertexCount, cfg.HasIndexBuffer)
	return id, nil
}

// Get resolves a handle, taking a reference the caller must release.
// Stale handles return (nil, false).
func (r *VAORegistry) Get(id ResourceID) (*VertexArray, bool) {
	entry, ok := r.pool.Acquire(id)
	if !ok {
		return nil, false
	}
	return entry.va, true
}

// Release drops one reference. On the final release the VertexArray is
// disposed and the registry's buffer handles go back through the
// allocator; true signals that teardown happened.
func (r *VAORegistry) Release(id ResourceID) bool {
	entry, ok := r.pool.Acquire(id)
	if !ok {
		return false
	}
	r.pool.Release(id)
	if !r.pool.Release(id) {
		return false
	}
	r.teardown(entry)
	return true
}

func (r *VAORegistry) teardown(entry *registeredVAO) {
	entry.va.Dispose()
	r.alloc.Release(entry.vertexBuffer)
	if entry.hasIndex {
		r.alloc.Release(entry.indexBuffer)
	}
}

// Len reports live assemblies.
func (r *VAORegistry) Len() int {
	return r.pool.Len()
}

// Dispose invalidates every outstanding handle, tears down all assemblies,
// and disposes the allocator's remaining buffers.
func (r *VAORegistry) Dispose() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, entry := range r.pool.Dispose() {
		entry.va.Dispose()
	}
	r.alloc.Dispose()

	registriesMu.Lock()
	for d, reg := range registries {
		if reg == r {
			delete(registries, d)
		}
	}
	registriesMu.Unlock()
}
