package gpumem

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lumen-engine/lumen/engine/core"
	"github.com/lumen-engine/lumen/engine/renderer/driver"
	"github.com/lumen-engine/lumen/engine/renderer/driver/memdriver"
)

func newTestAllocator(t *testing.T) (*memdriver.Driver, *BufferAllocator) {
	t.Helper()
	d := memdriver.New()
	f := NewFactory(d, nil)
	t.Cleanup(f.Dispose)
	return d, NewBufferAllocator(f)
}

func TestPackVerticesInterleaves(t *testing.T) {
	layout, err := NewLayout(
		Attribute{Name: "position", Type: driver.ComponentFloat32, ComponentCount: 2},
		Attribute{Name: "uv", Type: driver.ComponentFloat16, ComponentCount: 2},
		Attribute{Name: "color", Type: driver.ComponentUint8, ComponentCount: 4, Normalized: true},
	)
	require.NoError(t, err)
	require.Equal(t, 16, layout.Stride)

	packed, err := PackVertices(layout, [][]float32{
		{1.5, -2.0, 0.5, 1.0, 255, 128, 0, 255},
	})
	require.NoError(t, err)
	require.Len(t, packed, 16)

	require.Equal(t, math.Float32bits(1.5), binary.LittleEndian.Uint32(packed[0:]))
	require.Equal(t, math.Float32bits(-2.0), binary.LittleEndian.Uint32(packed[4:]))
	require.Equal(t, uint16(0x3800), binary.LittleEndian.Uint16(packed[8:]))
	require.Equal(t, uint16(0x3c00), binary.LittleEndian.Uint16(packed[10:]))
	require.Equal(t, []byte{255, 128, 0, 255}, packed[12:16])
}

func TestPackVerticesIntegerEncodings(t *testing.T) {
	layout, err := NewLayout(
		Attribute{Name: "a", Type: driver.ComponentInt8, ComponentCount: 1},
		Attribute{Name: "b", Type: driver.ComponentInt16, ComponentCount: 1},
		Attribute{Name: "c", Type: driver.ComponentUint16, ComponentCount: 1},
		Attribute{Name: "d", Type: driver.ComponentInt32, ComponentCount: 1},
		Attribute{Name: "e", Type: driver.ComponentUint32, ComponentCount: 1},
	)
	require.NoError(t, err)

	packed, err := PackVertices(layout, [][]float32{{-5, -1000, 50000, -100000, 3000000000}})
	require.NoError(t, err)

	for _, name := range []string{"a", "b", "c", "d", "e"} {
		got, err := UnpackAttribute(packed, layout, name, 0)
		require.NoError(t, err)
		switch name {
		case "a":
			require.Equal(t, []float32{-5}, got)
		case "b":
			require.Equal(t, []float32{-1000}, got)
		case "c":
			require.Equal(t, []float32{50000}, got)
		case "d":
			require.Equal(t, []float32{-100000}, got)
		case "e":
			require.Equal(t, []float32{3000000000}, got)
		}
	}
}

func TestPackVerticesHalfFloatRoundTrip(t *testing.T) {
	layout, err := NewLayout(
		Attribute{Name: "uv", Type: driver.ComponentFloat16, ComponentCount: 2},
	)
	require.NoError(t, err)

	packed, err := PackVertices(layout, [][]float32{{0.25, 100.5}, {65504, -0.125}})
	require.NoError(t, err)

	got, err := UnpackAttribute(packed, layout, "uv", 0)
	require.NoError(t, err)
	require.InDelta(t, 0.25, got[0], 0.001)
	require.InDelta(t, 100.5, got[1], 0.1)

	got, err = UnpackAttribute(packed, layout, "uv", 1)
	require.NoError(t, err)
	require.Equal(t, float32(65504), got[0])
	require.Equal(t, float32(-0.125), got[1])

	// Beyond binary16 range the decode sees infinity.
	packed, err = PackVertices(layout, [][]float32{{1e6, -1e6}})
	require.NoError(t, err)
	got, err = UnpackAttribute(packed, layout, "uv", 0)
	require.NoError(t, err)
	require.True(t, math.IsInf(float64(got[0]), 1))
	require.True(t, math.IsInf(float64(got[1]), -1))
}

func TestPackVerticesRejectsRaggedRows(t *testing.T) {
	layout, err := NewLayout(
		Attribute{Name: "position", Type: driver.ComponentFloat32, ComponentCount: 3},
	)
	require.NoError(t, err)

	_, err = PackVertices(layout, [][]float32{{1, 2}})
	require.ErrorIs(t, err, core.ErrInvalidValue)

	_, err = PackVertices(nil, [][]float32{{1, 2, 3}})
	require.ErrorIs(t, err, core.ErrInvalidValue)
}

func TestChooseIndexType(t *testing.T) {
	require.Equal(t, driver.IndexTypeUint8, ChooseIndexType([]uint32{0, 1, 255}, 256, false))
	require.Equal(t, driver.IndexTypeUint16, ChooseIndexType([]uint32{0, 256}, 1000, false))
	require.Equal(t, driver.IndexTypeUint32, ChooseIndexType([]uint32{70000}, 1000, false))

	// Vertex counts past 65535 force 32-bit indices...
	require.Equal(t, driver.IndexTypeUint32, ChooseIndexType([]uint32{0, 1, 2}, 70000, false))
	// ...unless 16-bit was explicitly requested.
	require.Equal(t, driver.IndexTypeUint16, ChooseIndexType([]uint32{0, 1, 2}, 70000, true))
}

func TestPackIndices(t *testing.T) {
	packed, err := PackIndices([]uint32{1, 2, 300}, driver.IndexTypeUint16)
	require.NoError(t, err)
	require.Len(t, packed, 6)
	require.Equal(t, uint16(300), binary.LittleEndian.Uint16(packed[4:]))

	_, err = PackIndices([]uint32{300}, driver.IndexTypeUint8)
	require.ErrorIs(t, err, core.ErrInvalidValue)
	_, err = PackIndices([]uint32{70000}, driver.IndexTypeUint16)
	require.ErrorIs(t, err, core.ErrInvalidValue)
}

func TestAllocatorCreateVertexBuffer(t *testing.T) {
	_, alloc := newTestAllocator(t)

	layout, err := NewLayout(
		Attribute{Name: "position", Type: driver.ComponentFloat32, ComponentCount: 2},
	)
	require.NoError(t, err)

	id, err := alloc.CreateVertexBuffer(layout, [][]float32{{0, 0}, {1, 0}, {0, 1}})
	require.NoError(t, err)

	buf, ok := alloc.Acquire(id)
	require.True(t, ok)
	require.Equal(t, 3*layout.Stride, buf.ByteLength())
	require.False(t, alloc.Release(id))

	// Final release disposes the device buffer.
	require.True(t, alloc.Release(id))
	require.True(t, buf.IsDisposed())
	_, ok = alloc.Acquire(id)
	require.False(t, ok)
}

func TestAllocatorCreateIndexBufferInference(t *testing.T) {
	_, alloc := newTestAllocator(t)

	id, indexType, count, err := alloc.CreateIndexBuffer([]uint16{0, 1, 2, 2, 3, 0})
	require.NoError(t, err)
	require.Equal(t, driver.IndexTypeUint16, indexType)
	require.Equal(t, 6, count)

	buf, ok := alloc.Acquire(id)
	require.True(t, ok)
	require.Equal(t, 12, buf.ByteLength())
	alloc.Release(id)

	id8, indexType, count, err := alloc.CreateIndexBuffer([]uint8{0, 1, 2})
	require.NoError(t, err)
	require.Equal(t, driver.IndexTypeUint8, indexType)
	require.Equal(t, 3, count)
	alloc.Release(id8)

	_, _, _, err = alloc.CreateIndexBuffer([]int{0, 1, 2})
	require.ErrorIs(t, err, core.ErrInvalidValue)
}

func TestAllocatorDisposeInvalidatesHandles(t *testing.T) {
	d, alloc := newTestAllocator(t)

	layout, err := NewLayout(
		Attribute{Name: "position", Type: driver.ComponentFloat32, ComponentCount: 2},
	)
	require.NoError(t, err)

	id, err := alloc.CreateVertexBuffer(layout, [][]float32{{0, 0}})
	require.NoError(t, err)

	alloc.Dispose()
	_, ok := alloc.Acquire(id)
	require.False(t, ok)
	require.Equal(t, 0, d.BufferCount())
}
