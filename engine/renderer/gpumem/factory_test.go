package gpumem

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lumen-engine/lumen/engine/core"
	"github.com/lumen-engine/lumen/engine/renderer/driver"
	"github.com/lumen-engine/lumen/engine/renderer/driver/memdriver"
)

func TestFactoryCreatesAndTracks(t *testing.T) {
	d := memdriver.New()
	f := NewFactory(d, nil)
	defer f.Dispose()

	vb, err := f.CreateVertexBuffer()
	require.NoError(t, err)
	require.Equal(t, driver.BufferTargetVertex, vb.Target())
	require.NotEmpty(t, vb.Name())

	ib, err := f.CreateIndexBufferFromData([]byte{0, 1, 2})
	require.NoError(t, err)
	require.Equal(t, driver.BufferTargetIndex, ib.Target())
	require.Equal(t, 3, ib.ByteLength())

	ub, err := f.CreateUniformBuffer(driver.UsageDynamicDraw)
	require.NoError(t, err)
	require.Equal(t, driver.BufferTargetUniform, ub.Target())

	pool, err := f.CreatePool(driver.BufferTargetVertex)
	require.NoError(t, err)
	require.NotNil(t, pool)

	require.Equal(t, 4, f.TrackedCount())
}

func TestFactoryContextLossDisposesEverything(t *testing.T) {
	d := memdriver.New()
	f := NewFactory(d, nil)

	vb, err := f.CreateVertexBufferFromData([]byte{1, 2, 3, 4})
	require.NoError(t, err)
	pool, err := f.CreatePool(driver.BufferTargetVertex)
	require.NoError(t, err)
	pooled, err := pool.Allocate(8)
	require.NoError(t, err)

	d.SimulateContextLoss()

	require.True(t, vb.IsDisposed())
	require.True(t, pooled.IsDisposed())
	require.True(t, f.IsDisposed())
	require.Equal(t, 0, d.BufferCount())

	_, err = f.CreateVertexBuffer()
	require.ErrorIs(t, err, core.ErrInvalidOperation)
	_, err = f.CreatePool(driver.BufferTargetIndex)
	require.ErrorIs(t, err, core.ErrInvalidOperation)
}

func TestFactoryContextLossIsScopedToItsDriver(t *testing.T) {
	dA := memdriver.New()
	dB := memdriver.New()
	fA := NewFactory(dA, nil)
	fB := NewFactory(dB, nil)
	defer fB.Dispose()

	bufB, err := fB.CreateVertexBufferFromData([]byte{1, 2})
	require.NoError(t, err)

	dA.SimulateContextLoss()

	require.True(t, fA.IsDisposed())
	require.False(t, fB.IsDisposed())
	require.False(t, bufB.IsDisposed())
}

func TestFactoryDisposeIsIdempotent(t *testing.T) {
	d := memdriver.New()
	f := NewFactory(d, nil)

	buf, err := f.CreateVertexBuffer()
	require.NoError(t, err)

	f.Dispose()
	require.True(t, buf.IsDisposed())
	f.Dispose()

	_, err = f.CreateBuffer(driver.BufferTargetVertex)
	require.ErrorIs(t, err, core.ErrInvalidOperation)
}
