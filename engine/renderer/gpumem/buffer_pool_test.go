package gpumem

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lumen-engine/lumen/engine/config"
	"github.com/lumen-engine/lumen/engine/core"
	"github.com/lumen-engine/lumen/engine/renderer/driver"
	"github.com/lumen-engine/lumen/engine/renderer/driver/memdriver"
)

func newTestPool(d driver.Driver) *BufferPool {
	return NewBufferPool(d, driver.BufferTargetVertex, config.PoolPolicy{})
}

func TestBufferPoolFreshAllocationIsExactSize(t *testing.T) {
	d := memdriver.New()
	p := newTestPool(d)
	defer p.Dispose()

	for _, size := range []int{1, 16, 4096} {
		buf, err := p.Allocate(size)
		require.NoError(t, err)
		require.Equal(t, size, buf.ByteLength())
	}

	_, err := p.Allocate(-1)
	require.ErrorIs(t, err, core.ErrInvalidValue)
}

func TestBufferPoolReusesExactSize(t *testing.T) {
	d := memdriver.New()
	p := newTestPool(d)
	defer p.Dispose()

	a, err := p.Allocate(64)
	require.NoError(t, err)
	p.Release(a)

	b, err := p.Allocate(64)
	require.NoError(t, err)
	require.Same(t, a, b)
	require.Equal(t, 1, p.Len())
}

func TestBufferPoolBestFit(t *testing.T) {
	d := memdriver.New()
	p := newTestPool(d)
	defer p.Dispose()

	big, err := p.Allocate(64)
	require.NoError(t, err)
	small, err := p.Allocate(32)
	require.NoError(t, err)
	p.Release(big)
	p.Release(small)

	// Both fit; the smallest adequate idle entry wins.
	got, err := p.Allocate(16)
	require.NoError(t, err)
	require.Same(t, small, got)

	// The in-use entry is no longer eligible; next fit is the 64.
	got2, err := p.Allocate(16)
	require.NoError(t, err)
	require.Same(t, big, got2)
}

func TestBufferPoolAcquireUploadsData(t *testing.T) {
	d := memdriver.New()
	p := newTestPool(d)
	defer p.Dispose()

	buf, err := p.Acquire([]byte{1, 2, 3, 4})
	require.NoError(t, err)
	data, err := buf.Data()
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3, 4}, data)
}

func TestBufferPoolSweepEvictsIdleEntries(t *testing.T) {
	d := memdriver.New()
	p := newTestPool(d)
	defer p.Dispose()

	idle, err := p.Allocate(16)
	require.NoError(t, err)
	busy, err := p.Allocate(32)
	require.NoError(t, err)
	p.Release(idle)

	// Age the idle entry past the release threshold and force a sweep.
	p.mu.Lock()
	for _, e := range p.entries {
		if e.buffer == idle {
			e.lastUsed = time.Now().Add(-time.Hour)
		}
	}
	p.mu.Unlock()
	p.sweep()

	require.True(t, idle.IsDisposed())
	require.False(t, busy.IsDisposed())
	require.Equal(t, 1, p.Len())
}

func TestBufferPoolDisposeTearsDownEverything(t *testing.T) {
	d := memdriver.New()
	p := newTestPool(d)

	a, err := p.Allocate(8)
	require.NoError(t, err)
	b, err := p.Allocate(16)
	require.NoError(t, err)
	c, err := p.Allocate(24)
	require.NoError(t, err)
	p.Release(a)
	p.Release(b)
	// c stays in use; disposal must reclaim it anyway.

	p.Dispose()
	require.True(t, a.IsDisposed())
	require.True(t, b.IsDisposed())
	require.True(t, c.IsDisposed())
	require.Equal(t, 0, d.BufferCount())

	// Idempotent, and a disposed pool rejects allocation.
	p.Dispose()
	_, err = p.Allocate(8)
	require.ErrorIs(t, err, core.ErrBufferDisposed)
}
