package gpumem

import (
	"fmt"
	"sync"
	"time"

	"github.com/lumen-engine/lumen/engine/config"
	"github.com/lumen-engine/lumen/engine/core"
	"github.com/lumen-engine/lumen/engine/renderer/driver"
)

type pooledBuffer struct {
	buffer   *Buffer
	size     int
	lastUsed time.Time
	inUse    bool
}

// BufferPool reuses device buffers by byte size: an exact-size idle entry
// wins, otherwise the smallest idle entry that fits (best fit, linear scan
// — fine at the tens-of-buffers scale this layer runs at). A background
// sweep disposes entries idle past the policy threshold.
type BufferPool struct {
	mu sync.Mutex

	d       driver.Driver
	target  driver.BufferTarget
	entries []*pooledBuffer
	policy  config.PoolPolicy

	done     chan struct{}
	disposed bool
}

// NewBufferPool creates a pool for one buffer target and starts its
// eviction sweep.
func NewBufferPool(d driver.Driver, target driver.BufferTarget, policy config.PoolPolicy) *BufferPool {
	p := &BufferPool{
		d:      d,
		target: target,
		policy: policy,
		done:   make(chan struct{}),
	}
	go p.sweepLoop()
	return p
}

// Allocate returns a buffer of at least size bytes, reusing an idle pooled
// entry when one fits. A freshly created buffer is exactly size bytes.
func (p *BufferPool) Allocate(size int, usage ...driver.Usage) (*Buffer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.disposed {
		return nil, fmt.Errorf("%w: buffer pool", core.ErrBufferDisposed)
	}
	if size < 0 {
		return nil, fmt.Errorf("%w: negative buffer size %d", core.ErrInvalidValue, size)
	}

	u := driver.UsageStaticDraw
	if len(usage) > 0 {
		u = usage[0]
	}

	// Exact size first, then the smallest idle entry that fits.
	var best *pooledBuffer
	for _, e := range p.entries {
		if e.inUse || e.size < size {
			continue
		}
		if e.size == size {
			best = e
			break
		}
		if best == nil || e.size < best.size {
			best = e
		}
	}
	if best != nil {
		best.inUse = true
		best.lastUsed = time.Now()
		core.MetricsTrackPoolHit()
		return best.buffer, nil
	}

	core.MetricsTrackPoolMiss()
	buf, err := NewBuffer(p.d, p.target, u)
	if err != nil {
		return nil, err
	}
	if err := buf.Resize(size); err != nil {
		buf.Dispose()
		return nil, err
	}
	p.entries = append(p.entries, &pooledBuffer{
		buffer:   buf,
		size:     size,
		lastUsed: time.Now(),
		inUse:    true,
	})
	return buf, nil
}

// Acquire allocates a buffer sized to data and uploads it in one step.
func (p *BufferPool) Acquire(data []byte, usage ...driver.Usage) (*Buffer, error) {
	buf, err := p.Allocate(len(data), usage...)
	if err != nil {
		return nil, err
	}
	if err := buf.Update(data, 0); err != nil {
		p.Release(buf)
		return nil, err
	}
	return buf, nil
}

// Release returns a buffer to the pool for reuse. The device memory stays
// resident until the eviction sweep collects it.
func (p *BufferPool) Release(buffer *Buffer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range p.entries {
		if e.buffer == buffer {
			e.inUse = false
			e.lastUsed = time.Now()
			return
		}
	}
	core.LogWarn("buffer pool: released buffer %q it does not track", buffer.Name())
}

// SetPolicy swaps the eviction policy; the next sweep observes it.
func (p *BufferPool) SetPolicy(policy config.PoolPolicy) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.policy = policy
}

// Len reports tracked entries; IdleLen those eligible for reuse.
func (p *BufferPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

func (p *BufferPool) IdleLen() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.entries {
		if !e.inUse {
			n++
		}
	}
	return n
}

// Dispose stops the sweep and disposes every tracked buffer, in use or not.
func (p *BufferPool) Dispose() {
	p.mu.Lock()
	if p.disposed {
		p.mu.Unlock()
		return
	}
	p.disposed = true
	entries := p.entries
	p.entries = nil
	p.mu.Unlock()

	close(p.done)
	for _, e := range entries {
		e.buffer.Dispose()
	}
}

func (p *BufferPool) sweepLoop() {
	p.mu.Lock()
	interval := p.policy.SweepInterval()
	p.mu.Unlock()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.sweep()
			p.mu.Lock()
			next := p.policy.SweepInterval()
			p.mu.Unlock()
			if next != interval {
				interval = next
				ticker.Reset(interval)
			}
		case <-p.done:
			return
		}
	}
}

// sweep disposes entries that are idle past the release threshold.
func (p *BufferPool) sweep() {
	p.mu.Lock()
	threshold := p.policy.ReleaseAfter()
	now := time.Now()
	var evicted []*Buffer
	kept := p.entries[:0]
	for _, e := range p.entries {
		if !e.inUse && now.Sub(e.lastUsed) > threshold {
			evicted = append(evicted, e.buffer)
			continue
		}
		kept = append(kept, e)
	}
	p.entries = kept
	p.mu.Unlock()

	for _, buf := range evicted {
		core.LogDebug("buffer pool: evicting idle buffer %q (%d bytes)", buf.Name(), buf.ByteLength())
		core.MetricsTrackEviction()
		buf.Dispose()
	}
}
