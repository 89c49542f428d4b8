package gpumem

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lumen-engine/lumen/engine/core"
	"github.com/lumen-engine/lumen/engine/renderer/driver"
	"github.com/lumen-engine/lumen/engine/renderer/driver/memdriver"
)

func newTestBuffer(t *testing.T, d driver.Driver) *Buffer {
	t.Helper()
	buf, err := NewBuffer(d, driver.BufferTargetVertex, driver.UsageStaticDraw)
	require.NoError(t, err)
	return buf
}

func TestBufferUpdateReadbackRoundTrip(t *testing.T) {
	d := memdriver.New()
	buf := newTestBuffer(t, d)

	require.NoError(t, buf.Resize(16))
	require.Equal(t, 16, buf.ByteLength())

	require.NoError(t, buf.Update([]byte{1, 2, 3, 4}, 2))

	out := make([]byte, 4)
	require.NoError(t, buf.SubData(out, 2, 0, 4))
	require.Equal(t, []byte{1, 2, 3, 4}, out)

	// Whole-buffer read: untouched bytes stay zero-filled.
	data, err := buf.Data()
	require.NoError(t, err)
	require.Equal(t, []byte{0, 0, 1, 2, 3, 4, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}, data)
}

func TestBufferSetDataReallocates(t *testing.T) {
	d := memdriver.New()
	buf := newTestBuffer(t, d)

	require.NoError(t, buf.SetData([]byte{9, 8, 7}, driver.UsageDynamicDraw))
	require.Equal(t, 3, buf.ByteLength())
	require.Equal(t, driver.UsageDynamicDraw, buf.Usage())

	data, err := buf.Data()
	require.NoError(t, err)
	require.Equal(t, []byte{9, 8, 7}, data)
}

func TestBufferUpdateBoundsErrors(t *testing.T) {
	d := memdriver.New()
	buf := newTestBuffer(t, d)
	require.NoError(t, buf.Resize(16))

	err := buf.Update(make([]byte, 12), 8)
	require.ErrorIs(t, err, core.ErrInvalidValue)
	require.ErrorContains(t, err, "offset (8) + size (12) > buffer size (16)")

	err = buf.Update([]byte{1}, -1)
	require.ErrorIs(t, err, core.ErrInvalidValue)

	err = buf.Resize(-4)
	require.ErrorIs(t, err, core.ErrInvalidValue)

	err = buf.UpdateRange(make([]byte, 4), 0, 3, 2)
	require.ErrorIs(t, err, core.ErrInvalidValue)
	require.ErrorContains(t, err, "source offset (3) + length (2) > source size (4)")
}

func TestBufferUpdateRangeSubElementOffset(t *testing.T) {
	d := memdriver.New()
	buf := newTestBuffer(t, d)
	require.NoError(t, buf.Resize(8))

	// The source was four 16-bit elements; an odd source offset must be
	// honored as raw bytes, not snapped to an element boundary.
	src := []byte{0x11, 0x22, 0x33, 0x44, 0x55, 0x66, 0x77, 0x88}
	require.NoError(t, buf.UpdateRange(src, 0, 3, 4))

	data, err := buf.Data()
	require.NoError(t, err)
	require.Equal(t, []byte{0x44, 0x55, 0x66, 0x77, 0, 0, 0, 0}, data)
}

func TestBufferCopyTo(t *testing.T) {
	d := memdriver.New()
	src := newTestBuffer(t, d)
	dst := newTestBuffer(t, d)

	require.NoError(t, src.SetData([]byte{1, 2, 3, 4, 5, 6, 7, 8}))
	require.NoError(t, dst.Resize(4))

	// Default size clamps to the smaller remaining range.
	require.NoError(t, src.CopyTo(dst, 2, 0, -1))
	data, err := dst.Data()
	require.NoError(t, err)
	require.Equal(t, []byte{3, 4, 5, 6}, data)

	// Effective size <= 0 is a successful no-op.
	require.NoError(t, src.CopyTo(dst, 8, 0, -1))
	require.NoError(t, src.CopyTo(dst, 0, 0, 0))

	err = src.CopyTo(dst, 0, 2, 4)
	require.ErrorIs(t, err, core.ErrInvalidValue)
	require.ErrorContains(t, err, "destination offset (2) + size (4) > buffer size (4)")

	dst.Dispose()
	err = src.CopyTo(dst, 0, 0, 2)
	require.ErrorIs(t, err, core.ErrBufferDisposed)
}

func TestBufferSubDataClamping(t *testing.T) {
	d := memdriver.New()
	buf := newTestBuffer(t, d)
	require.NoError(t, buf.SetData([]byte{1, 2, 3, 4}))

	// Output window smaller than requested range: clamp, copy what fits.
	out := []byte{0xaa, 0xaa, 0xaa}
	require.NoError(t, buf.SubData(out, 0, 1, 4))
	require.Equal(t, []byte{0xaa, 1, 2}, out)

	// Fully out of range reads are no-ops.
	require.NoError(t, buf.SubData(out, 4, 0, -1))
	require.Equal(t, []byte{0xaa, 1, 2}, out)
}

func TestBufferReadbackUnsupported(t *testing.T) {
	d := memdriver.New(memdriver.WithoutReadback())
	buf := newTestBuffer(t, d)
	require.NoError(t, buf.Resize(4))

	_, err := buf.Data()
	require.ErrorIs(t, err, core.ErrUnsupportedOperation)
}

func TestBufferDisposedOperationsFail(t *testing.T) {
	d := memdriver.New()
	buf := newTestBuffer(t, d)
	require.NoError(t, buf.Resize(4))

	buf.Dispose()
	require.True(t, buf.IsDisposed())
	// Idempotent.
	buf.Dispose()

	require.ErrorIs(t, buf.Bind(), core.ErrBufferDisposed)
	require.ErrorIs(t, buf.Resize(8), core.ErrBufferDisposed)
	require.ErrorIs(t, buf.Update([]byte{1}, 0), core.ErrBufferDisposed)
	require.ErrorIs(t, buf.SubData(make([]byte, 1), 0, 0, 1), core.ErrBufferDisposed)
	require.Equal(t, 0, d.BufferCount())
}

func TestBufferAllocationFailure(t *testing.T) {
	d := memdriver.New()
	buf := newTestBuffer(t, d)
	require.NoError(t, buf.Resize(4))

	d.FailNextAllocation()
	err := buf.Resize(1 << 20)
	require.ErrorIs(t, err, core.ErrOutOfMemory)
	// byteLength reflects the last successful allocation, not the failed request.
	require.Equal(t, 4, buf.ByteLength())
}
