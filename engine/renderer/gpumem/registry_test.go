package gpumem

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lumen-engine/lumen/engine/renderer/driver"
	"github.com/lumen-engine/lumen/engine/renderer/driver/memdriver"
)

func newTestRegistry(t *testing.T) (*memdriver.Driver, *VAORegistry) {
	t.Helper()
	d := memdriver.New()
	f := NewFactory(d, nil)
	r := RegistryFor(f)
	t.Cleanup(func() {
		r.Dispose()
		f.Dispose()
	})
	return d, r
}

func quadMesh(t *testing.T) (*Layout, [][]float32, []uint32) {
	t.Helper()
	layout, err := NewLayout(
		Attribute{Name: "position", Type: driver.ComponentFloat32, ComponentCount: 2},
	)
	require.NoError(t, err)
	vertices := [][]float32{{0, 0}, {1, 0}, {0, 1}, {1, 1}}
	indices := []uint32{0, 1, 2, 2, 1, 3}
	return layout, vertices, indices
}

func TestRegistryCreateAndGet(t *testing.T) {
	d, r := newTestRegistry(t)
	layout, vertices, indices := quadMesh(t)

	id, err := r.Create(layout, vertices, indices)
	require.NoError(t, err)
	require.Equal(t, 1, r.Len())
	// One vertex buffer, one index buffer, one assembly.
	require.Equal(t, 2, d.BufferCount())
	require.Equal(t, 1, d.VertexArrayCount())

	va, ok := r.Get(id)
	require.True(t, ok)
	require.Equal(t, VERTEX_ARRAY_STATE_CONFIGURED, va.State())
	require.True(t, va.Indexed())
	require.Equal(t, 4, va.VertexCount())
	require.Equal(t, 6, va.IndexCount())

	// Get took a reference: the first release is not final.
	require.False(t, r.Release(id))
	require.True(t, r.Release(id))

	require.Equal(t, VERTEX_ARRAY_STATE_DISPOSED, va.State())
	require.Equal(t, 0, d.BufferCount())
	require.Equal(t, 0, d.VertexArrayCount())
	require.Equal(t, 0, r.Len())

	// The handle is stale after teardown.
	_, ok = r.Get(id)
	require.False(t, ok)
	require.False(t, r.Release(id))
}

func TestRegistryCreateWithoutIndices(t *testing.T) {
	d, r := newTestRegistry(t)
	layout, vertices, _ := quadMesh(t)

	id, err := r.Create(layout, vertices, nil)
	require.NoError(t, err)
	require.Equal(t, 1, d.BufferCount())

	va, ok := r.Get(id)
	require.True(t, ok)
	require.False(t, va.Indexed())
	r.Release(id)

	require.True(t, r.Release(id))
	require.Equal(t, 0, d.BufferCount())
}

func TestRegistryDrawThroughHandle(t *testing.T) {
	d, r := newTestRegistry(t)
	layout, vertices, indices := quadMesh(t)

	id, err := r.Create(layout, vertices, indices)
	require.NoError(t, err)

	va, ok := r.Get(id)
	require.True(t, ok)
	require.NoError(t, va.Bind())
	require.NoError(t, va.Draw(DrawCall{Mode: driver.PrimitiveTriangles}))
	require.NoError(t, va.Unbind())
	r.Release(id)

	draws := d.Draws()
	require.Len(t, draws, 1)
	require.True(t, draws[0].Indexed)
	require.Equal(t, 6, draws[0].Count)
	require.Equal(t, driver.IndexTypeUint8, draws[0].IndexType)
}

func TestRegistryForIsPerDriver(t *testing.T) {
	dA := memdriver.New()
	fA := NewFactory(dA, nil)
	t.Cleanup(fA.Dispose)
	dB := memdriver.New()
	fB := NewFactory(dB, nil)
	t.Cleanup(fB.Dispose)

	rA := RegistryFor(fA)
	t.Cleanup(rA.Dispose)
	rB := RegistryFor(fB)
	t.Cleanup(rB.Dispose)

	require.Same(t, rA, RegistryFor(fA))
	require.NotSame(t, rA, rB)
}

func TestRegistryDisposeInvalidatesHandles(t *testing.T) {
	d := memdriver.New()
	f := NewFactory(d, nil)
	t.Cleanup(f.Dispose)
	r := RegistryFor(f)
	layout, vertices, indices := quadMesh(t)

	idA, err := r.Create(layout, vertices, indices)
	require.NoError(t, err)
	idB, err := r.Create(layout, vertices, nil)
	require.NoError(t, err)

	r.Dispose()

	_, ok := r.Get(idA)
	require.False(t, ok)
	_, ok = r.Get(idB)
	require.False(t, ok)
	require.Equal(t, 0, d.BufferCount())
	require.Equal(t, 0, d.VertexArrayCount())

	// A disposed registry is detached; the next lookup builds a fresh one.
	require.NotSame(t, r, RegistryFor(f))
}
