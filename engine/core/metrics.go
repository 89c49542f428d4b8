package core

import "sync"

// MetricsState tracks GPU resource bookkeeping across the whole process:
// how many device buffers are resident, how many bytes they pin, and how
// the reuse pools are behaving.
type MetricsState struct {
	BufferCount   int32
	BytesResident uint64

	PoolHits      uint64
	PoolMisses    uint64
	PoolEvictions uint64

	mu sync.Mutex
}

var onceMetrics sync.Once
var metricsState *MetricsState = nil

func MetricsInitialize() error {
	onceMetrics.Do(func() {
		metricsState = &MetricsState{}
	})
	return nil
}

func MetricsTrackAllocation(sizeBytes uint64) {
	if metricsState == nil {
		return
	}
	metricsState.mu.Lock()
	defer metricsState.mu.Unlock()
	metricsState.BufferCount++
	metricsState.BytesResident += sizeBytes
}

func MetricsTrackRelease(sizeBytes uint64) {
	if metricsState == nil {
		return
	}
	metricsState.mu.Lock()
	defer metricsState.mu.Unlock()
	metricsState.BufferCount--
	if metricsState.BytesResident >= sizeBytes {
		metricsState.BytesResident -= sizeBytes
	} else {
		metricsState.BytesResident = 0
	}
}

// MetricsTrackResize adjusts resident bytes when a buffer reallocates
// without changing the buffer count.
func MetricsTrackResize(oldBytes, newBytes uint64) {
	if metricsState == nil {
		return
	}
	metricsState.mu.Lock()
	defer metricsState.mu.Unlock()
	if metricsState.BytesResident >= oldBytes {
		metricsState.BytesResident -= oldBytes
	} else {
		metricsState.BytesResident = 0
	}
	metricsState.BytesResident += newBytes
}

func MetricsTrackPoolHit() {
	if metricsState == nil {
		return
	}
	metricsState.mu.Lock()
	defer metricsState.mu.Unlock()
	metricsState.PoolHits++
}

func MetricsTrackPoolMiss() {
	if metricsState == nil {
		return
	}
	metricsState.mu.Lock()
	defer metricsState.mu.Unlock()
	metricsState.PoolMisses++
}

func MetricsTrackEviction() {
	if metricsState == nil {
		return
	}
	metricsState.mu.Lock()
	defer metricsState.mu.Unlock()
	metricsState.PoolEvictions++
}

func MetricsBuffersResident() (count int32, bytes uint64) {
	if metricsState == nil {
		return 0, 0
	}
	metricsState.mu.Lock()
	defer metricsState.mu.Unlock()
	return metricsState.BufferCount, metricsState.BytesResident
}
