// Package memdriver is a CPU-backed reference implementation of the driver
// interface. Buffers live in plain byte slices, so the full resource layer
// can run headless: in tests, in tooling, and as a fallback when no Vulkan
// device is available. Draw calls validate their arguments and are recorded
// instead of rasterized.
package memdriver

import (
	"fmt"
	"sync"

	"github.com/lumen-engine/lumen/engine/core"
	"github.com/lumen-engine/lumen/engine/renderer/driver"
)

type memBuffer struct {
	data   []byte
	target driver.BufferTarget
	usage  driver.Usage
}

type memVertexArray struct {
	attributes   map[uint32]driver.AttributePointer
	vertexBuffer driver.BufferHandle
	indexBuffer  driver.BufferHandle
}

// DrawRecord captures one submitted draw for inspection.
type DrawRecord struct {
	Mode          driver.PrimitiveMode
	Indexed       bool
	Instanced     bool
	First         int
	Count         int
	InstanceCount int
	IndexType     driver.IndexType
	ByteOffset    int
	VertexArray   driver.VertexArrayHandle
}

// Driver implements driver.Driver over host memory.
type Driver struct {
	mu sync.Mutex

	buffers      map[driver.BufferHandle]*memBuffer
	vertexArrays map[driver.VertexArrayHandle]*memVertexArray
	nextBuffer   driver.BufferHandle
	nextArray    driver.VertexArrayHandle

	bound      map[driver.BufferTarget]driver.BufferHandle
	boundArray driver.VertexArrayHandle

	draws []DrawRecord

	readback bool
	lost     bool
	// When true, the next CreateBuffer or BufferData fails as the device
	// running out of memory. Reset after firing once.
	failNextAllocation bool
}

// Option configures a Driver at construction.
type Option func(*Driver)

// WithoutReadback disables GetBufferSubData support.
func WithoutReadback() Option {
	return func(d *Driver) { d.readback = false }
}

// New creates an in-memory driver with read-back support enabled.
func New(opts ...Option) *Driver {
	d := &Driver{
		buffers:      make(map[driver.BufferHandle]*memBuffer),
		vertexArrays: make(map[driver.VertexArrayHandle]*memVertexArray),
		bound:        make(map[driver.BufferTarget]driver.BufferHandle),
		readback:     true,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Driver) CreateBuffer(target driver.BufferTarget, usage driver.Usage) (driver.BufferHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lost {
		return 0, core.ErrContextLost
	}
	if d.failNextAllocation {
		d.failNextAllocation = false
		return 0, fmt.Errorf("%w: device allocation failed", core.ErrOutOfMemory)
	}
	d.nextBuffer++
	d.buffers[d.nextBuffer] = &memBuffer{target: target, usage: usage}
	return d.nextBuffer, nil
}

func (d *Driver) DeleteBuffer(handle driver.BufferHandle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.buffers[handle]; !ok {
		return fmt.Errorf("%w: unknown buffer handle %d", core.ErrInvalidValue, handle)
	}
	delete(d.buffers, handle)
	for target, bound := range d.bound {
		if bound == handle {
			delete(d.bound, target)
		}
	}
	return nil
}

func (d *Driver) BindBuffer(target driver.BufferTarget, handle driver.BufferHandle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if handle == 0 {
		delete(d.bound, target)
		return nil
	}
	if _, ok := d.buffers[handle]; !ok {
		return fmt.Errorf("%w: unknown buffer handle %d", core.ErrInvalidValue, handle)
	}
	d.bound[target] = handle
	return nil
}

func (d *Driver) BufferData(handle driver.BufferHandle, size int, data []byte, usage driver.Usage) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	buf, ok := d.buffers[handle]
	if !ok {
		return fmt.Errorf("%w: unknown buffer handle %d", core.ErrInvalidValue, handle)
	}
	if size < 0 {
		return fmt.Errorf("%w: negative buffer size %d", core.ErrInvalidValue, size)
	}
	if data != nil && len(data) != size {
		return fmt.Errorf("%w: data length (%d) != size (%d)", core.ErrInvalidValue, len(data), size)
	}
	if d.failNextAllocation {
		d.failNextAllocation = false
		return fmt.Errorf("%w: device allocation of %d bytes failed", core.ErrOutOfMemory, size)
	}
	buf.data = make([]byte, size)
	if data != nil {
		copy(buf.data, data)
	}
	buf.usage = usage
	return nil
}

func (d *Driver) BufferSubData(handle driver.BufferHandle, offset int, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	buf, ok := d.buffers[handle]
	if !ok {
		return fmt.Errorf("%w: unknown buffer handle %d", core.ErrInvalidValue, handle)
	}
	if offset < 0 || offset+len(data) > len(buf.data) {
		return fmt.Errorf("%w: offset (%d) + size (%d) > buffer size (%d)",
			core.ErrInvalidValue, offset, len(data), len(buf.data))
	}
	copy(buf.data[offset:], data)
	return nil
}

func (d *Driver) CopyBufferSubData(src, dst driver.BufferHandle, srcOffset, dstOffset, size int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	sbuf, ok := d.buffers[src]
	if !ok {
		return fmt.Errorf("%w: unknown source buffer handle %d", core.ErrInvalidValue, src)
	}
	dbuf, ok := d.buffers[dst]
	if !ok {
		return fmt.Errorf("%w: unknown destination buffer handle %d", core.ErrInvalidValue, dst)
	}
	if srcOffset < 0 || srcOffset+size > len(sbuf.data) {
		return fmt.Errorf("%w: source offset (%d) + size (%d) > buffer size (%d)",
			core.ErrInvalidValue, srcOffset, size, len(sbuf.data))
	}
	if dstOffset < 0 || dstOffset+size > len(dbuf.data) {
		return fmt.Errorf("%w: destination offset (%d) + size (%d) > buffer size (%d)",
			core.ErrInvalidValue, dstOffset, size, len(dbuf.data))
	}
	copy(dbuf.data[dstOffset:dstOffset+size], sbuf.data[srcOffset:srcOffset+size])
	return nil
}

func (d *Driver) GetBufferSubData(handle driver.BufferHandle, offset int, out []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.readback {
		return fmt.Errorf("%w: read-back not supported", core.ErrUnsupportedOperation)
	}
	buf, ok := d.buffers[handle]
	if !ok {
		return fmt.Errorf("%w: unknown buffer handle %d", core.ErrInvalidValue, handle)
	}
	if offset < 0 || offset+len(out) > len(buf.data) {
		return fmt.Errorf("%w: offset (%d) + size (%d) > buffer size (%d)",
			core.ErrInvalidValue, offset, len(out), len(buf.data))
	}
	copy(out, buf.data[offset:])
	return nil
}

func (d *Driver) SupportsReadback() bool {
	return d.readback
}

func (d *Driver) CreateVertexArray() (driver.VertexArrayHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lost {
		return 0, core.ErrContextLost
	}
	d.nextArray++
	d.vertexArrays[d.nextArray] = &memVertexArray{
		attributes: make(map[uint32]driver.AttributePointer),
	}
	return d.nextArray, nil
}

func (d *Driver) DeleteVertexArray(handle driver.VertexArrayHandle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.vertexArrays[handle]; !ok {
		return fmt.Errorf("%w: unknown vertex array handle %d", core.ErrInvalidValue, handle)
	}
	delete(d.vertexArrays, handle)
	if d.boundArray == handle {
		d.boundArray = 0
	}
	return nil
}

func (d *Driver) BindVertexArray(handle driver.VertexArrayHandle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if handle == 0 {
		d.boundArray = 0
		return nil
	}
	if _, ok := d.vertexArrays[handle]; !ok {
		return fmt.Errorf("%w: unknown vertex array handle %d", core.ErrInvalidValue, handle)
	}
	d.boundArray = handle
	return nil
}

func (d *Driver) EnableVertexAttribute(slot uint32, attr driver.AttributePointer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	va, ok := d.vertexArrays[d.boundArray]
	if !ok {
		return fmt.Errorf("%w: no vertex array bound", core.ErrInvalidValue)
	}
	va.attributes[slot] = attr
	va.vertexBuffer = d.bound[driver.BufferTargetVertex]
	va.indexBuffer = d.bound[driver.BufferTargetIndex]
	return nil
}

func (d *Driver) DrawArrays(mode driver.PrimitiveMode, first, count int) error {
	return d.record(DrawRecord{Mode: mode, First: first, Count: count})
}

func (d *Driver) DrawElements(mode driver.PrimitiveMode, count int, indexType driver.IndexType, byteOffset int) error {
	return d.record(DrawRecord{Mode: mode, Indexed: true, Count: count, IndexType: indexType, ByteOffset: byteOffset})
}

func (d *Driver) DrawArraysInstanced(mode driver.PrimitiveMode, first, count, instanceCount int) error {
	return d.record(DrawRecord{Mode: mode, Instanced: true, First: first, Count: count, InstanceCount: instanceCount})
}

func (d *Driver) DrawElementsInstanced(mode driver.PrimitiveMode, count int, indexType driver.IndexType, byteOffset, instanceCount int) error {
	return d.record(DrawRecord{Mode: mode, Indexed: true, Instanced: true, Count: count, IndexType: indexType, ByteOffset: byteOffset, InstanceCount: instanceCount})
}

func (d *Driver) record(rec DrawRecord) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lost {
		return core.ErrContextLost
	}
	if d.boundArray == 0 {
		return fmt.Errorf("%w: draw without a bound vertex array", core.ErrInvalidValue)
	}
	if rec.Count < 0 || rec.First < 0 || rec.ByteOffset < 0 {
		return fmt.Errorf("%w: negative draw parameter", core.ErrInvalidValue)
	}
	rec.VertexArray = d.boundArray
	d.draws = append(d.draws, rec)
	return nil
}

func (d *Driver) Lost() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lost
}

func (d *Driver) Shutdown() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.buffers = make(map[driver.BufferHandle]*memBuffer)
	d.vertexArrays = make(map[driver.VertexArrayHandle]*memVertexArray)
	d.bound = make(map[driver.BufferTarget]driver.BufferHandle)
	d.boundArray = 0
	return nil
}

// SimulateContextLoss marks the driver lost and fires the context-lost
// event so trackers tear down their resources.
func (d *Driver) SimulateContextLoss() {
	d.mu.Lock()
	d.lost = true
	d.mu.Unlock()
	core.EventFire(core.EVENT_CODE_CONTEXT_LOST, d, core.EventContext{})
}

// FailNextAllocation makes the next buffer allocation report out-of-memory.
func (d *Driver) FailNextAllocation() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failNextAllocation = true
}

// BufferCount reports live device buffers.
func (d *Driver) BufferCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.buffers)
}

// VertexArrayCount reports live assemblies.
func (d *Driver) VertexArrayCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.vertexArrays)
}

// BoundBuffer reports the handle bound to target, or zero.
func (d *Driver) BoundBuffer(target driver.BufferTarget) driver.BufferHandle {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.bound[target]
}

// Draws returns the recorded draw submissions.
func (d *Driver) Draws() []DrawRecord {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]DrawRecord, len(d.draws))
	copy(out, d.draws)
	return out
}

// Attributes returns the recorded attribute state of an assembly.
func (d *Driver) Attributes(handle driver.VertexArrayHandle) map[uint32]driver.AttributePointer {
	d.mu.Lock()
	defer d.mu.Unlock()
	va, ok := d.vertexArrays[handle]
	if !ok {
		return nil
	}
	out := make(map[uint32]driver.AttributePointer, len(va.attributes))
	for k, v := range va.attributes {
		out[k] = v
	}
	return out
}
