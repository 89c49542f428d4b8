package gpumem

import (
	"sync"

	"github.com/lumen-engine/lumen/engine/containers"
)

// ResourceID is a lightweight handle into a ResourcePool: an index plus the
// pool generation at issue time. It is a value, never a pointer; a stale ID
// uniformly resolves to nothing rather than dangling.
type ResourceID struct {
	Index      uint32
	Generation uint32
}

// InvalidResourceID never resolves in any pool.
var InvalidResourceID = ResourceID{Index: ^uint32(0)}

type resourceDescriptor[T any] struct {
	resource T
	refCount int32
	// Pool generation when the descriptor was populated. Acquire and
	// Release both recheck this against the pool's current generation, so
	// two IDs with the same index issued across a Dispose boundary are
	// never confused.
	generation uint32
	live       bool
}

// ResourcePool issues revocable handles for owned resources. A pool-wide
// Dispose bumps a single generation counter, invalidating every previously
// issued ID in O(1) without walking or tombstoning descriptors.
type ResourcePool[T any] struct {
	mu          sync.Mutex
	descriptors []resourceDescriptor[T]
	freeIndices *containers.RingQueue[uint32]
	generation  uint32
}

// NewResourcePool creates an empty pool.
func NewResourcePool[T any]() *ResourcePool[T] {
	return &ResourcePool[T]{
		freeIndices: containers.NewGrowableRingQueue[uint32](16),
	}
}

// Allocate stores the resource with a reference count of one and returns
// its handle. Recycled indices are reused before new ones are minted.
func (p *ResourcePool[T]) Allocate(resource T) ResourceID {
	p.mu.Lock()
	defer p.mu.Unlock()

	var index uint32
	if idx, err := p.freeIndices.Dequeue(); err == nil {
		index = idx
	} else {
		index = uint32(len(p.descriptors))
		p.descriptors = append(p.descriptors, resourceDescriptor[T]{})
	}

	p.descriptors[index] = resourceDescriptor[T]{
		resource:   resource,
		refCount:   1,
		generation: p.generation,
		live:       true,
	}
	return ResourceID{Index: index, Generation: p.generation}
}

// Acquire resolves the handle and takes a reference. Staleness is a normal,
// checked condition: a dead or cross-generation ID returns (zero, false).
func (p *ResourcePool[T]) Acquire(id ResourceID) (T, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var zero T
	desc, ok := p.lookup(id)
	if !ok {
		return zero, false
	}
	desc.refCount++
	return desc.resource, true
}

// Release drops one reference. It returns true exactly once per resource:
// when the count reaches zero, the descriptor is removed, its index is
// recycled, and the caller owns final disposal of the underlying resource.
func (p *ResourcePool[T]) Release(id ResourceID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	desc, ok := p.lookup(id)
	if !ok {
		return false
	}
	desc.refCount--
	if desc.refCount > 0 {
		return false
	}

	var zero T
	desc.resource = zero
	desc.live = false
	_ = p.freeIndices.Enqueue(id.Index)
	return true
}

// Dispose returns every live resource, clears the table and free list, and
// bumps the generation so every outstanding ID is retroactively invalid.
func (p *ResourcePool[T]) Dispose() []T {
	p.mu.Lock()
	defer p.mu.Unlock()

	var resources []T
	for i := range p.descriptors {
		if p.descriptors[i].live {
			resources = append(resources, p.descriptors[i].resource)
		}
	}
	p.descriptors = p.descriptors[:0]
	p.freeIndices.Clear()
	p.generation++
	return resources
}

// Len reports the number of live descriptors.
func (p *ResourcePool[T]) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for i := range p.descriptors {
		if p.descriptors[i].live {
			n++
		}
	}
	return n
}

func (p *ResourcePool[T]) lookup(id ResourceID) (*resourceDescriptor[T], bool) {
	if int(id.Index) >= len(p.descriptors) {
		return nil, false
	}
	desc := &p.descriptors[id.Index]
	if !desc.live || desc.generation != p.generation || desc.generation != id.Generation {
		return nil, false
	}
	return desc, true
}
