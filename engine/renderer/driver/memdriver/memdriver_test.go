package memdriver

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lumen-engine/lumen/engine/core"
	"github.com/lumen-engine/lumen/engine/renderer/driver"
)

func TestBufferDataLifecycle(t *testing.T) {
	d := New()

	h, err := d.CreateBuffer(driver.BufferTargetVertex, driver.UsageStaticDraw)
	require.NoError(t, err)
	require.NoError(t, d.BufferData(h, 4, []byte{1, 2, 3, 4}, driver.UsageStaticDraw))
	require.NoError(t, d.BufferSubData(h, 2, []byte{9}))

	out := make([]byte, 4)
	require.NoError(t, d.GetBufferSubData(h, 0, out))
	require.Equal(t, []byte{1, 2, 9, 4}, out)

	err = d.BufferSubData(h, 3, []byte{0, 0})
	require.ErrorIs(t, err, core.ErrInvalidValue)

	require.NoError(t, d.DeleteBuffer(h))
	require.ErrorIs(t, d.BufferData(h, 1, nil, driver.UsageStaticDraw), core.ErrInvalidValue)
	require.Equal(t, 0, d.BufferCount())
}

func TestCopyBufferSubData(t *testing.T) {
	d := New()

	src, err := d.CreateBuffer(driver.BufferTargetVertex, driver.UsageStaticDraw)
	require.NoError(t, err)
	dst, err := d.CreateBuffer(driver.BufferTargetVertex, driver.UsageStaticDraw)
	require.NoError(t, err)
	require.NoError(t, d.BufferData(src, 4, []byte{1, 2, 3, 4}, driver.UsageStaticDraw))
	require.NoError(t, d.BufferData(dst, 4, nil, driver.UsageStaticDraw))

	require.NoError(t, d.CopyBufferSubData(src, dst, 1, 0, 3))
	out := make([]byte, 4)
	require.NoError(t, d.GetBufferSubData(dst, 0, out))
	require.Equal(t, []byte{2, 3, 4, 0}, out)

	err = d.CopyBufferSubData(src, dst, 2, 0, 3)
	require.ErrorIs(t, err, core.ErrInvalidValue)
}

func TestReadbackDisabled(t *testing.T) {
	d := New(WithoutReadback())
	require.False(t, d.SupportsReadback())

	h, err := d.CreateBuffer(driver.BufferTargetVertex, driver.UsageStaticDraw)
	require.NoError(t, err)
	require.NoError(t, d.BufferData(h, 1, nil, driver.UsageStaticDraw))
	require.ErrorIs(t, d.GetBufferSubData(h, 0, make([]byte, 1)), core.ErrUnsupportedOperation)
}

func TestDrawRequiresBoundArray(t *testing.T) {
	d := New()
	require.ErrorIs(t, d.DrawArrays(driver.PrimitiveTriangles, 0, 3), core.ErrInvalidValue)

	va, err := d.CreateVertexArray()
	require.NoError(t, err)
	require.NoError(t, d.BindVertexArray(va))
	require.NoError(t, d.DrawArrays(driver.PrimitiveTriangles, 0, 3))
	require.ErrorIs(t, d.DrawArrays(driver.PrimitiveTriangles, -1, 3), core.ErrInvalidValue)

	draws := d.Draws()
	require.Len(t, draws, 1)
	require.Equal(t, va, draws[0].VertexArray)
}

func TestContextLossFailsOperations(t *testing.T) {
	core.EventInitialize()
	d := New()

	d.SimulateContextLoss()
	require.True(t, d.Lost())

	_, err := d.CreateBuffer(driver.BufferTargetVertex, driver.UsageStaticDraw)
	require.ErrorIs(t, err, core.ErrContextLost)
	_, err = d.CreateVertexArray()
	require.ErrorIs(t, err, core.ErrContextLost)
}
