package gpumem

import (
	"fmt"

	"github.com/lumen-engine/lumen/engine/core"
	m "github.com/lumen-engine/lumen/engine/math"
	"github.com/lumen-engine/lumen/engine/renderer/driver"
)

// Buffer wraps one driver-level memory buffer and owns its byte-range
// bookkeeping. Every mutating operation asserts the buffer has not been
// disposed; ByteLength always reflects the last successful allocation.
type Buffer struct {
	d      driver.Driver
	handle driver.BufferHandle
	target driver.BufferTarget
	usage  driver.Usage

	byteLength int
	name       string
	disposed   bool
}

// NewBuffer creates an empty device buffer bound to the given target.
func NewBuffer(d driver.Driver, target driver.BufferTarget, usage driver.Usage) (*Buffer, error) {
	handle, err := d.CreateBuffer(target, usage)
	if err != nil {
		return nil, err
	}
	core.MetricsTrackAllocation(0)
	return &Buffer{
		d:      d,
		handle: handle,
		target: target,
		usage:  usage,
	}, nil
}

// SetName attaches a debug name used in log lines.
func (b *Buffer) SetName(name string) {
	b.name = name
}

func (b *Buffer) Name() string {
	return b.name
}

func (b *Buffer) Target() driver.BufferTarget {
	return b.target
}

func (b *Buffer) Usage() driver.Usage {
	return b.usage
}

// ByteLength is the size of the backing allocation in bytes.
func (b *Buffer) ByteLength() int {
	return b.byteLength
}

func (b *Buffer) IsDisposed() bool {
	return b.disposed
}

// Handle exposes the raw driver handle for assembly configuration. Callers
// outside this package never dispose through it.
func (b *Buffer) Handle() driver.BufferHandle {
	return b.handle
}

func (b *Buffer) assertAlive() error {
	if b.disposed {
		return fmt.Errorf("%w: buffer %q", core.ErrBufferDisposed, b.name)
	}
	return nil
}

// Bind attaches the buffer to its target slot.
func (b *Buffer) Bind() error {
	if err := b.assertAlive(); err != nil {
		return err
	}
	return b.d.BindBuffer(b.target, b.handle)
}

// Unbind detaches whatever is bound to the buffer's target slot.
func (b *Buffer) Unbind() error {
	if err := b.assertAlive(); err != nil {
		return err
	}
	return b.d.BindBuffer(b.target, 0)
}

// Resize reallocates backing storage to size zero-filled bytes. An optional
// usage argument updates the allocation hint in the same call.
func (b *Buffer) Resize(size int, usage ...driver.Usage) error {
	if err := b.assertAlive(); err != nil {
		return err
	}
	if size < 0 {
		return fmt.Errorf("%w: negative buffer size %d", core.ErrInvalidValue, size)
	}
	u := b.usage
	if len(usage) > 0 {
		u = usage[0]
	}
	if err := b.d.BufferData(b.handle, size, nil, u); err != nil {
		return err
	}
	core.MetricsTrackResize(uint64(b.byteLength), uint64(size))
	b.byteLength = size
	b.usage = u
	return nil
}

// SetData reallocates to len(data) bytes and uploads data in the same call.
func (b *Buffer) SetData(data []byte, usage ...driver.Usage) error {
	if err := b.assertAlive(); err != nil {
		return err
	}
	if data == nil {
		return fmt.Errorf("%w: nil data", core.ErrInvalidValue)
	}
	u := b.usage
	if len(usage) > 0 {
		u = usage[0]
	}
	if err := b.d.BufferData(b.handle, len(data), data, u); err != nil {
		return err
	}
	core.MetricsTrackResize(uint64(b.byteLength), uint64(len(data)))
	b.byteLength = len(data)
	b.usage = u
	return nil
}

// Update writes data into the buffer starting at offset.
func (b *Buffer) Update(data []byte, offset int) error {
	return b.UpdateRange(data, offset, 0, len(data))
}

// UpdateRange writes length bytes of data, starting at srcOffset within the
// source, to dstOffset within the buffer. Offsets are byte-granular, so a
// source offset that does not fall on an element boundary of the caller's
// original typed data is honored as raw bytes.
func (b *Buffer) UpdateRange(data []byte, dstOffset, srcOffset, length int) error {
	if err := b.assertAlive(); err != nil {
		return err
	}
	if data == nil {
		return fmt.Errorf("%w: nil data", core.ErrInvalidValue)
	}
	if length < 0 {
		length = len(data) - srcOffset
	}
	if srcOffset < 0 || srcOffset+length > len(data) {
		return fmt.Errorf("%w: source offset (%d) + length (%d) > source size (%d)",
			core.ErrInvalidValue, srcOffset, length, len(data))
	}
	if dstOffset < 0 || dstOffset+length > b.byteLength {
		return fmt.Errorf("%w: offset (%d) + size (%d) > buffer size (%d)",
			core.ErrInvalidValue, dstOffset, length, b.byteLength)
	}
	if length == 0 {
		return nil
	}
	return b.d.BufferSubData(b.handle, dstOffset, data[srcOffset:srcOffset+length])
}

// CopyTo performs a device-to-device copy into dst. A negative size means
// the largest range both buffers can accommodate; an effective size of zero
// or less is a successful no-op.
func (b *Buffer) CopyTo(dst *Buffer, srcOffset, dstOffset, size int) error {
	if err := b.assertAlive(); err != nil {
		return err
	}
	if dst == nil {
		return fmt.Errorf("%w: nil destination buffer", core.ErrInvalidValue)
	}
	if err := dst.assertAlive(); err != nil {
		return err
	}
	if srcOffset < 0 || dstOffset < 0 {
		return fmt.Errorf("%w: negative copy offset (src=%d, dst=%d)",
			core.ErrInvalidValue, srcOffset, dstOffset)
	}
	if size < 0 {
		size = m.Min(b.byteLength-srcOffset, dst.byteLength-dstOffset)
	}
	if size <= 0 {
		return nil
	}
	if srcOffset+size > b.byteLength {
		return fmt.Errorf("%w: source offset (%d) + size (%d) > buffer size (%d)",
			core.ErrInvalidValue, srcOffset, size, b.byteLength)
	}
	if dstOffset+size > dst.byteLength {
		return fmt.Errorf("%w: destination offset (%d) + size (%d) > buffer size (%d)",
			core.ErrInvalidValue, dstOffset, size, dst.byteLength)
	}
	return b.d.CopyBufferSubData(b.handle, dst.handle, srcOffset, dstOffset, size)
}

// Data reads the whole buffer back from the device. Synchronous; this can
// stall the caller until the device drains.
func (b *Buffer) Data() ([]byte, error) {
	out := make([]byte, b.byteLength)
	if err := b.SubData(out, 0, 0, b.byteLength); err != nil {
		return nil, err
	}
	return out, nil
}

// SubData reads length bytes starting at srcOffset into out at dstOffset.
// A negative length is clamped to what both ranges can accommodate; a
// clamped length of zero or less is a successful no-op. The read stages
// through a scratch slice so any dstOffset is honored byte-for-byte.
func (b *Buffer) SubData(out []byte, srcOffset, dstOffset, length int) error {
	if err := b.assertAlive(); err != nil {
		return err
	}
	if !b.d.SupportsReadback() {
		return fmt.Errorf("%w: device read-back", core.ErrUnsupportedOperation)
	}
	if out == nil {
		return fmt.Errorf("%w: nil output", core.ErrInvalidValue)
	}
	if srcOffset < 0 || dstOffset < 0 {
		return fmt.Errorf("%w: negative read offset (src=%d, dst=%d)",
			core.ErrInvalidValue, srcOffset, dstOffset)
	}
	clamped := m.Min(b.byteLength-srcOffset, len(out)-dstOffset)
	if length < 0 || length > clamped {
		length = clamped
	}
	if length <= 0 {
		return nil
	}
	scratch := make([]byte, length)
	if err := b.d.GetBufferSubData(b.handle, srcOffset, scratch); err != nil {
		return err
	}
	copy(out[dstOffset:], scratch)
	return nil
}

// Dispose releases the backing device resource. Idempotent; cleanup is
// best-effort and never fails, even when the driver calls do.
func (b *Buffer) Dispose() {
	if b.disposed {
		return
	}
	if err := b.d.BindBuffer(b.target, 0); err != nil {
		core.LogDebug("buffer %q: unbind during dispose failed: %s", b.name, err)
	}
	if err := b.d.DeleteBuffer(b.handle); err != nil {
		core.LogWarn("buffer %q: device release failed: %s", b.name, err)
	}
	core.MetricsTrackRelease(uint64(b.byteLength))
	b.disposed = true
}
