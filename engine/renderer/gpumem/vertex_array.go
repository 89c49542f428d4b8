package gpumem

import (
	"fmt"

	"github.com/lumen-engine/lumen/engine/core"
	"github.com/lumen-engine/lumen/engine/renderer/driver"
)

type VertexArrayState int

const (
	VERTEX_ARRAY_STATE_UNCONFIGURED VertexArrayState = iota
	VERTEX_ARRAY_STATE_CONFIGURED
	// Terminal.
	VERTEX_ARRAY_STATE_DISPOSED
)

// VertexArrayConfig fixes a VertexArray's layout and buffer references at
// construction. Buffers are referenced by ResourceID, never owned: the
// array re-acquires them through the allocator's pool and never assumes a
// buffer outlives it.
type VertexArrayConfig struct {
	Layout *Layout

	VertexBuffer ResourceID
	VertexCount  int

	HasIndexBuffer bool
	IndexBuffer    ResourceID
	IndexCount     int
	IndexType      driver.IndexType
}

// DrawCall parameterizes one draw dispatch. A Count of zero or less draws
// the whole configured range; an InstanceCount above one selects the
// instanced variant. For indexed arrays First is in indices.
type DrawCall struct {
	Mode          driver.PrimitiveMode
	First         int
	Count         int
	InstanceCount int
}

// VertexArray binds buffers plus an attribute layout into one drawable
// device assembly and owns its draw-call dispatch.
type VertexArray struct {
	d     driver.Driver
	alloc *BufferAllocator

	handle driver.VertexArrayHandle
	cfg    VertexArrayConfig
	state  VertexArrayState
}

// NewVertexArray creates and configures a device assembly: the vertex
// buffer is bound, every attribute slot enabled and described, and the
// optional index buffer attached. The assembly is left unbound.
func NewVertexArray(alloc *BufferAllocator, cfg VertexArrayConfig) (*VertexArray, error) {
	if cfg.Layout == nil {
		return nil, fmt.Errorf("%w: nil layout", core.ErrInvalidValue)
	}
	d := alloc.factory.Driver()
	handle, err := d.CreateVertexArray()
	if err != nil {
		return nil, err
	}

	va := &VertexArray{
		d:      d,
		alloc:  alloc,
		handle: handle,
		cfg:    cfg,
		state:  VERTEX_ARRAY_STATE_UNCONFIGURED,
	}
	if err := va.configure(); err != nil {
		if derr := d.DeleteVertexArray(handle); derr != nil {
			core.LogDebug("vertex array: cleanup after failed configure: %s", derr)
		}
		return nil, err
	}
	return va, nil
}

func (va *VertexArray) configure() error {
	vbuf, ok := va.alloc.Acquire(va.cfg.VertexBuffer)
	if !ok {
		return fmt.Errorf("%w: stale vertex buffer handle", core.ErrInvalidValue)
	}
	defer va.dropRef(va.cfg.VertexBuffer, vbuf)

	if err := va.d.BindVertexArray(va.handle); err != nil {
		return err
	}
	if err := vbuf.Bind(); err != nil {
		return err
	}
	for i := range va.cfg.Layout.Attributes {
		attr := &va.cfg.Layout.Attributes[i]
		ptr := driver.AttributePointer{
			ComponentCount: attr.ComponentCount,
			Type:           attr.Type,
			Normalized:     attr.Normalized,
			Stride:         va.cfg.Layout.Stride,
			ByteOffset:     attr.ByteOffset,
			Divisor:        attr.InstanceDivisor,
		}
		if err := va.d.EnableVertexAttribute(uint32(i), ptr); err != nil {
			return err
		}
	}

	if va.cfg.HasIndexBuffer {
		ibuf, ok := va.alloc.Acquire(va.cfg.IndexBuffer)
		if !ok {
			return fmt.Errorf("%w: stale index buffer handle", core.ErrInvalidValue)
		}
		defer va.dropRef(va.cfg.IndexBuffer, ibuf)
		if err := ibuf.Bind(); err != nil {
			return err
		}
	}

	// The attribute pointers captured the buffer; the target slot itself
	// is not assembly state and must not leak out of configuration.
	if err := vbuf.Unbind(); err != nil {
		return err
	}
	if err := va.d.BindVertexArray(0); err != nil {
		return err
	}
	va.state = VERTEX_ARRAY_STATE_CONFIGURED
	return nil
}

// dropRef releases the transient reference taken for a structural
// operation. If that was the last reference, disposal falls to us.
func (va *VertexArray) dropRef(id ResourceID, buf *Buffer) {
	if va.alloc.pool.Release(id) {
		buf.Dispose()
	}
}

func (va *VertexArray) assertConfigured() error {
	switch va.state {
	case VERTEX_ARRAY_STATE_DISPOSED:
		return fmt.Errorf("%w: vertex array is disposed", core.ErrInvalidOperation)
	case VERTEX_ARRAY_STATE_UNCONFIGURED:
		return fmt.Errorf("%w: vertex array is not configured", core.ErrInvalidOperation)
	}
	return nil
}

// Bind makes this assembly the active one.
func (va *VertexArray) Bind() error {
	if err := va.assertConfigured(); err != nil {
		return err
	}
	return va.d.BindVertexArray(va.handle)
}

// Unbind deactivates whatever assembly is active.
func (va *VertexArray) Unbind() error {
	if err := va.assertConfigured(); err != nil {
		return err
	}
	return va.d.BindVertexArray(0)
}

// Draw dispatches the call against the bound assembly, selecting indexed
// vs. non-indexed and single vs. instanced variants. For indexed draws the
// starting byte offset comes from the configured index element width.
func (va *VertexArray) Draw(call DrawCall) error {
	if err := va.assertConfigured(); err != nil {
		return err
	}
	if call.First < 0 {
		return fmt.Errorf("%w: negative draw start %d", core.ErrInvalidValue, call.First)
	}

	count := call.Count
	if va.cfg.HasIndexBuffer {
		if count <= 0 {
			count = va.cfg.IndexCount - call.First
		}
		byteOffset := call.First * va.cfg.IndexType.ByteSize()
		if call.InstanceCount > 1 {
			return va.d.DrawElementsInstanced(call.Mode, count, va.cfg.IndexType, byteOffset, call.InstanceCount)
		}
		return va.d.DrawElements(call.Mode, count, va.cfg.IndexType, byteOffset)
	}

	if count <= 0 {
		count = va.cfg.VertexCount - call.First
	}
	if call.InstanceCount > 1 {
		return va.d.DrawArraysInstanced(call.Mode, call.First, count, call.InstanceCount)
	}
	return va.d.DrawArrays(call.Mode, call.First, count)
}

func (va *VertexArray) State() VertexArrayState {
	return va.state
}

func (va *VertexArray) Handle() driver.VertexArrayHandle {
	return va.handle
}

func (va *VertexArray) VertexCount() int {
	return va.cfg.VertexCount
}

func (va *VertexArray) IndexCount() int {
	return va.cfg.IndexCount
}

func (va *VertexArray) Indexed() bool {
	return va.cfg.HasIndexBuffer
}

// Dispose releases only the assembly object; the referenced buffers are
// released independently through the allocator's pool. Idempotent.
func (va *VertexArray) Dispose() {
	if va.state == VERTEX_ARRAY_STATE_DISPOSED {
		return
	}
	if err := va.d.BindVertexArray(0); err != nil {
		core.LogDebug("vertex array: unbind during dispose failed: %s", err)
	}
	if err := va.d.DeleteVertexArray(va.handle); err != nil {
		core.LogWarn("vertex array: device release failed: %s", err)
	}
	va.state = VERTEX_ARRAY_STATE_DISPOSED
}
