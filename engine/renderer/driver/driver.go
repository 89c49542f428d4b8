package driver

import "fmt"

// BufferHandle identifies a device buffer owned by a Driver. The zero value
// is the nil handle and is never issued.
type BufferHandle uint64

// VertexArrayHandle identifies a device vertex-array assembly. The zero
// value is the nil handle.
type VertexArrayHandle uint64

// BufferTarget is the binding slot a buffer attaches to.
type BufferTarget int

const (
	BufferTargetVertex BufferTarget = iota
	BufferTargetIndex
	BufferTargetUniform
)

func (t BufferTarget) String() string {
	switch t {
	case BufferTargetVertex:
		return "vertex"
	case BufferTargetIndex:
		return "index"
	case BufferTargetUniform:
		return "uniform"
	default:
		return fmt.Sprintf("unknown(%d)", int(t))
	}
}

// Usage is the allocation hint passed through to the device.
type Usage int

const (
	UsageStaticDraw Usage = iota
	UsageDynamicDraw
	UsageStreamDraw
)

func (u Usage) String() string {
	switch u {
	case UsageStaticDraw:
		return "static_draw"
	case UsageDynamicDraw:
		return "dynamic_draw"
	case UsageStreamDraw:
		return "stream_draw"
	default:
		return fmt.Sprintf("unknown(%d)", int(u))
	}
}

// ComponentType is the numeric encoding of one vertex attribute component.
// The set is closed; encode and decode switch over it exhaustively.
type ComponentType int

const (
	ComponentInt8 ComponentType = iota
	ComponentUint8
	ComponentInt16
	ComponentUint16
	ComponentInt32
	ComponentUint32
	ComponentFloat32
	ComponentFloat16
)

// ByteSize returns the encoded width of one component.
func (c ComponentType) ByteSize() int {
	switch c {
	case ComponentInt8, ComponentUint8:
		return 1
	case ComponentInt16, ComponentUint16, ComponentFloat16:
		return 2
	case ComponentInt32, ComponentUint32, ComponentFloat32:
		return 4
	default:
		return 0
	}
}

func (c ComponentType) String() string {
	switch c {
	case ComponentInt8:
		return "i8"
	case ComponentUint8:
		return "u8"
	case ComponentInt16:
		return "i16"
	case ComponentUint16:
		return "u16"
	case ComponentInt32:
		return "i32"
	case ComponentUint32:
		return "u32"
	case ComponentFloat32:
		return "f32"
	case ComponentFloat16:
		return "f16"
	default:
		return fmt.Sprintf("unknown(%d)", int(c))
	}
}

// IndexType is the element width of an index buffer.
type IndexType int

const (
	IndexTypeUint8 IndexType = iota
	IndexTypeUint16
	IndexTypeUint32
)

// ByteSize returns the width of one index element.
func (t IndexType) ByteSize() int {
	switch t {
	case IndexTypeUint8:
		return 1
	case IndexTypeUint16:
		return 2
	case IndexTypeUint32:
		return 4
	default:
		return 0
	}
}

func (t IndexType) String() string {
	switch t {
	case IndexTypeUint8:
		return "u8"
	case IndexTypeUint16:
		return "u16"
	case IndexTypeUint32:
		return "u32"
	default:
		return fmt.Sprintf("unknown(%d)", int(t))
	}
}

// PrimitiveMode selects the primitive topology of a draw.
type PrimitiveMode int

const (
	PrimitiveTriangles PrimitiveMode = iota
	PrimitiveTriangleStrip
	PrimitiveLines
	PrimitiveLineStrip
	PrimitivePoints
)

// AttributePointer describes how one attribute slot reads from the bound
// vertex buffer.
type AttributePointer struct {
	ComponentCount int
	Type           ComponentType
	Normalized     bool
	Stride         int
	ByteOffset     int
	// Per-instance advance. Zero means per-vertex.
	Divisor uint32
}

// Driver is the opaque graphics capability the resource layer calls into.
// Implementations own the real device objects; the resource layer only ever
// sees handles. All calls are synchronous; a read-back may stall the caller.
type Driver interface {
	// Buffers.
	CreateBuffer(target BufferTarget, usage Usage) (BufferHandle, error)
	DeleteBuffer(handle BufferHandle) error
	// BindBuffer with a nil handle unbinds the target slot.
	BindBuffer(target BufferTarget, handle BufferHandle) error
	// BufferData reallocates backing storage to size bytes. A nil data slice
	// zero-fills; otherwise len(data) must equal size.
	BufferData(handle BufferHandle, size int, data []byte, usage Usage) error
	BufferSubData(handle BufferHandle, offset int, data []byte) error
	CopyBufferSubData(src, dst BufferHandle, srcOffset, dstOffset, size int) error
	// GetBufferSubData reads len(out) bytes starting at offset into out.
	// Implementations without read-back support never get called; callers
	// must consult SupportsReadback first.
	GetBufferSubData(handle BufferHandle, offset int, out []byte) error
	SupportsReadback() bool

	// Vertex-array assemblies.
	CreateVertexArray() (VertexArrayHandle, error)
	DeleteVertexArray(handle VertexArrayHandle) error
	// BindVertexArray with a nil handle unbinds the active assembly.
	BindVertexArray(handle VertexArrayHandle) error
	// EnableVertexAttribute enables and describes one attribute slot of the
	// currently bound assembly, reading from the currently bound vertex buffer.
	EnableVertexAttribute(slot uint32, attr AttributePointer) error

	// Draw submission. Count is in vertices or indices; byteOffset is the
	// starting byte within the bound index buffer.
	DrawArrays(mode PrimitiveMode, first, count int) error
	DrawElements(mode PrimitiveMode, count int, indexType IndexType, byteOffset int) error
	DrawArraysInstanced(mode PrimitiveMode, first, count, instanceCount int) error
	DrawElementsInstanced(mode PrimitiveMode, count int, indexType IndexType, byteOffset, instanceCount int) error

	// Lost reports whether the context has been lost. A lost driver rejects
	// all further work; the resource layer reacts to the context-lost event.
	Lost() bool
	Shutdown() error
}
