package gpumem

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/lumen-engine/lumen/engine/core"
	"github.com/lumen-engine/lumen/engine/renderer/driver"
)

// BufferAllocator packs structured vertex records into device buffers and
// owns the handle pool through which every consumer references them. It is
// the only component holding raw *Buffer ownership; callers get ResourceIDs.
type BufferAllocator struct {
	factory *Factory
	pool    *ResourcePool[*Buffer]
}

func NewBufferAllocator(factory *Factory) *BufferAllocator {
	return &BufferAllocator{
		factory: factory,
		pool:    NewResourcePool[*Buffer](),
	}
}

// CreateVertexBuffer packs the vertex rows per the layout, uploads the
// bytes as one device buffer, and returns its handle.
func (a *BufferAllocator) CreateVertexBuffer(layout *Layout, vertices [][]float32, usage ...driver.Usage) (ResourceID, error) {
	packed, err := PackVertices(layout, vertices)
	if err != nil {
		return InvalidResourceID, err
	}
	buf, err := a.factory.CreateVertexBufferFromData(packed, usage...)
	if err != nil {
		return InvalidResourceID, err
	}
	return a.pool.Allocate(buf), nil
}

// CreateIndexBufferForVertices uploads indices with the element width
// chosen from the index value range and the vertex count: more than 65535
// vertices forces 32-bit unless 16-bit was explicitly requested.
func (a *BufferAllocator) CreateIndexBufferForVertices(indices []uint32, vertexCount int, force16 bool, usage ...driver.Usage) (ResourceID, driver.IndexType, error) {
	indexType := ChooseIndexType(indices, vertexCount, force16)
	packed, err := PackIndices(indices, indexType)
	if err != nil {
		return InvalidResourceID, indexType, err
	}
	buf, err := a.factory.CreateIndexBufferFromData(packed, usage...)
	if err != nil {
		return InvalidResourceID, indexType, err
	}
	return a.pool.Allocate(buf), indexType, nil
}

// CreateIndexBuffer uploads host index data directly, inferring the element
// type from the slice's element width. Accepts []uint8, []uint16, []uint32.
func (a *BufferAllocator) CreateIndexBuffer(data interface{}, usage ...driver.Usage) (ResourceID, driver.IndexType, int, error) {
	var packed []byte
	var indexType driver.IndexType
	var count int

	switch v := data.(type) {
	case []uint8:
		indexType = driver.IndexTypeUint8
		count = len(v)
		packed = make([]byte, len(v))
		copy(packed, v)
	case []uint16:
		indexType = driver.IndexTypeUint16
		count = len(v)
		packed = make([]byte, len(v)*2)
		for i, idx := range v {
			binary.LittleEndian.PutUint16(packed[i*2:], idx)
		}
	case []uint32:
		indexType = driver.IndexTypeUint32
		count = len(v)
		packed = make([]byte, len(v)*4)
		for i, idx := range v {
			binary.LittleEndian.PutUint32(packed[i*4:], idx)
		}
	default:
		return InvalidResourceID, 0, 0, fmt.Errorf("%w: index data must be []uint8, []uint16 or []uint32, got %T",
			core.ErrInvalidValue, data)
	}

	buf, err := a.factory.CreateIndexBufferFromData(packed, usage...)
	if err != nil {
		return InvalidResourceID, indexType, 0, err
	}
	return a.pool.Allocate(buf), indexType, count, nil
}

// Register hands an externally created buffer to the allocator's pool.
func (a *BufferAllocator) Register(buf *Buffer) ResourceID {
	return a.pool.Allocate(buf)
}

// Acquire resolves a buffer handle, taking a reference. Stale handles
// return (nil, false).
func (a *BufferAllocator) Acquire(id ResourceID) (*Buffer, bool) {
	return a.pool.Acquire(id)
}

// Release drops one reference; on the final release the underlying device
// buffer is disposed and true is returned.
func (a *BufferAllocator) Release(id ResourceID) bool {
	buf, ok := a.pool.Acquire(id)
	if !ok {
		return false
	}
	a.pool.Release(id)
	if a.pool.Release(id) {
		buf.Dispose()
		return true
	}
	return false
}

// Dispose invalidates every outstanding handle and disposes the buffers.
func (a *BufferAllocator) Dispose() {
	for _, buf := range a.pool.Dispose() {
		buf.Dispose()
	}
}

// PackVertices interleaves vertex rows into bytes per the layout. Each row
// carries the flat scalar components of all attributes in layout order.
func PackVertices(layout *Layout, vertices [][]float32) ([]byte, error) {
	if layout == nil {
		return nil, fmt.Errorf("%w: nil layout", core.ErrInvalidValue)
	}
	perVertex := layout.ComponentsPerVertex()
	out := make([]byte, len(vertices)*layout.Stride)

	for row, vertex := range vertices {
		if len(vertex) != perVertex {
			return nil, fmt.Errorf("%w: vertex %d has %d components, layout expects %d",
				core.ErrInvalidValue, row, len(vertex), perVertex)
		}
		base := row * layout.Stride
		flat := 0
		for i := range layout.Attributes {
			attr := &layout.Attributes[i]
			size := attr.Type.ByteSize()
			for c := 0; c < attr.ComponentCount; c++ {
				encodeComponent(out[base+attr.ByteOffset+c*size:], attr.Type, vertex[flat])
				flat++
			}
		}
	}
	return out, nil
}

// UnpackAttribute decodes one attribute of one vertex from packed bytes.
// It is the standard decode for every component encoding, including the
// 16-bit float path.
func UnpackAttribute(data []byte, layout *Layout, name string, vertexIndex int) ([]float32, error) {
	attr, ok := layout.AttributeByName(name)
	if !ok {
		return nil, fmt.Errorf("%w: layout has no attribute %q", core.ErrInvalidValue, name)
	}
	base := vertexIndex*layout.Stride + attr.ByteOffset
	size := attr.Type.ByteSize()
	if base < 0 || base+size*attr.ComponentCount > len(data) {
		return nil, fmt.Errorf("%w: vertex %d out of packed range (%d bytes)",
			core.ErrInvalidValue, vertexIndex, len(data))
	}
	out := make([]float32, attr.ComponentCount)
	for c := 0; c < attr.ComponentCount; c++ {
		out[c] = decodeComponent(data[base+c*size:], attr.Type)
	}
	return out, nil
}

func encodeComponent(dst []byte, t driver.ComponentType, v float32) {
	switch t {
	case driver.ComponentInt8:
		dst[0] = byte(int8(v))
	case driver.ComponentUint8:
		dst[0] = uint8(v)
	case driver.ComponentInt16:
		binary.LittleEndian.PutUint16(dst, uint16(int16(v)))
	case driver.ComponentUint16:
		binary.LittleEndian.PutUint16(dst, uint16(v))
	case driver.ComponentInt32:
		binary.LittleEndian.PutUint32(dst, uint32(int32(v)))
	case driver.ComponentUint32:
		binary.LittleEndian.PutUint32(dst, uint32(v))
	case driver.ComponentFloat32:
		binary.LittleEndian.PutUint32(dst, math.Float32bits(v))
	case driver.ComponentFloat16:
		binary.LittleEndian.PutUint16(dst, Float32ToFloat16(v))
	}
}

func decodeComponent(src []byte, t driver.ComponentType) float32 {
	switch t {
	case driver.ComponentInt8:
		return float32(int8(src[0]))
	case driver.ComponentUint8:
		return float32(src[0])
	case driver.ComponentInt16:
		return float32(int16(binary.LittleEndian.Uint16(src)))
	case driver.ComponentUint16:
		return float32(binary.LittleEndian.Uint16(src))
	case driver.ComponentInt32:
		return float32(int32(binary.LittleEndian.Uint32(src)))
	case driver.ComponentUint32:
		return float32(binary.LittleEndian.Uint32(src))
	case driver.ComponentFloat32:
		return math.Float32frombits(binary.LittleEndian.Uint32(src))
	case driver.ComponentFloat16:
		return Float16ToFloat32(binary.LittleEndian.Uint16(src))
	}
	return 0
}

// ChooseIndexType picks the narrowest element width that can hold the
// index values. Vertex counts past 65535 force 32-bit indices unless the
// caller explicitly requested a 16-bit index type.
func ChooseIndexType(indices []uint32, vertexCount int, force16 bool) driver.IndexType {
	if force16 {
		return driver.IndexTypeUint16
	}
	if vertexCount > 0xffff {
		return driver.IndexTypeUint32
	}
	var max uint32
	for _, v := range indices {
		if v > max {
			max = v
		}
	}
	switch {
	case max <= 0xff:
		return driver.IndexTypeUint8
	case max <= 0xffff:
		return driver.IndexTypeUint16
	default:
		return driver.IndexTypeUint32
	}
}

// PackIndices encodes indices at the given element width, rejecting values
// that do not fit.
func PackIndices(indices []uint32, indexType driver.IndexType) ([]byte, error) {
	size := indexType.ByteSize()
	out := make([]byte, len(indices)*size)
	for i, v := range indices {
		switch indexType {
		case driver.IndexTypeUint8:
			if v > 0xff {
				return nil, fmt.Errorf("%w: index %d does not fit in 8 bits", core.ErrInvalidValue, v)
			}
			out[i] = uint8(v)
		case driver.IndexTypeUint16:
			if v > 0xffff {
				return nil, fmt.Errorf("%w: index %d does not fit in 16 bits", core.ErrInvalidValue, v)
			}
			binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
		case driver.IndexTypeUint32:
			binary.LittleEndian.PutUint32(out[i*4:], v)
		}
	}
	return out, nil
}
