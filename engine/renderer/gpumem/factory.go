package gpumem

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/lumen-engine/lumen/engine/config"
	"github.com/lumen-engine/lumen/engine/core"
	"github.com/lumen-engine/lumen/engine/renderer/driver"
)

// Disposer is anything the factory's tracker can tear down.
type Disposer interface {
	Dispose()
}

type trackedResource struct {
	resource Disposer
	name     string
}

// Factory creates typed buffers and buffer pools and tracks everything it
// creates. When the driver signals context loss, the tracker disposes every
// tracked resource exactly once; the factory then rejects further creation.
type Factory struct {
	mu sync.Mutex

	d       driver.Driver
	policy  config.PoolPolicy
	tracked []trackedResource

	disposed bool
}

// NewFactory wires a factory to a driver and subscribes it to context-loss
// notifications.
func NewFactory(d driver.Driver, cfg *config.Config) *Factory {
	if cfg == nil {
		cfg = config.Default()
	}
	core.EventInitialize()
	core.MetricsInitialize()

	f := &Factory{
		d:      d,
		policy: cfg.Pool,
	}
	core.EventRegister(core.EVENT_CODE_CONTEXT_LOST, f, f.onContextLost)
	return f
}

// Driver exposes the factory's device capability.
func (f *Factory) Driver() driver.Driver {
	return f.d
}

func (f *Factory) IsDisposed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.disposed
}

// CreateBuffer creates and tracks a buffer for an arbitrary target.
func (f *Factory) CreateBuffer(target driver.BufferTarget, usage ...driver.Usage) (*Buffer, error) {
	u := driver.UsageStaticDraw
	if len(usage) > 0 {
		u = usage[0]
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.disposed {
		return nil, fmt.Errorf("%w: factory is disposed", core.ErrInvalidOperation)
	}

	buf, err := NewBuffer(f.d, target, u)
	if err != nil {
		return nil, err
	}
	name := uuid.New().String()
	buf.SetName(name)
	f.tracked = append(f.tracked, trackedResource{resource: buf, name: name})
	core.LogDebug("factory: created %s buffer %q", target, name)
	return buf, nil
}

// CreateBufferFromData creates a buffer and uploads data in the same call.
func (f *Factory) CreateBufferFromData(target driver.BufferTarget, data []byte, usage ...driver.Usage) (*Buffer, error) {
	buf, err := f.CreateBuffer(target, usage...)
	if err != nil {
		return nil, err
	}
	if err := buf.SetData(data); err != nil {
		buf.Dispose()
		return nil, err
	}
	return buf, nil
}

func (f *Factory) CreateVertexBuffer(usage ...driver.Usage) (*Buffer, error) {
	return f.CreateBuffer(driver.BufferTargetVertex, usage...)
}

func (f *Factory) CreateVertexBufferFromData(data []byte, usage ...driver.Usage) (*Buffer, error) {
	return f.CreateBufferFromData(driver.BufferTargetVertex, data, usage...)
}

func (f *Factory) CreateIndexBuffer(usage ...driver.Usage) (*Buffer, error) {
	return f.CreateBuffer(driver.BufferTargetIndex, usage...)
}

func (f *Factory) CreateIndexBufferFromData(data []byte, usage ...driver.Usage) (*Buffer, error) {
	return f.CreateBufferFromData(driver.BufferTargetIndex, data, usage...)
}

func (f *Factory) CreateUniformBuffer(usage ...driver.Usage) (*Buffer, error) {
	return f.CreateBuffer(driver.BufferTargetUniform, usage...)
}

func (f *Factory) CreateUniformBufferFromData(data []byte, usage ...driver.Usage) (*Buffer, error) {
	return f.CreateBufferFromData(driver.BufferTargetUniform, data, usage...)
}

// CreatePool creates and tracks a reuse pool for one buffer target.
func (f *Factory) CreatePool(target driver.BufferTarget) (*BufferPool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.disposed {
		return nil, fmt.Errorf("%w: factory is disposed", core.ErrInvalidOperation)
	}

	pool := NewBufferPool(f.d, target, f.policy)
	name := uuid.New().String()
	f.tracked = append(f.tracked, trackedResource{resource: pool, name: name})
	core.LogDebug("factory: created %s buffer pool %q", target, name)
	return pool, nil
}

// SetPoolPolicy updates the policy applied to pools created from now on.
func (f *Factory) SetPoolPolicy(policy config.PoolPolicy) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.policy = policy
}

// TrackedCount reports how many resources the tracker holds.
func (f *Factory) TrackedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tracked)
}

func (f *Factory) onContextLost(code core.SystemEventCode, sender interface{}, listener interface{}, data core.EventContext) bool {
	if sender != nil && sender != interface{}(f.d) {
		// Loss on some other context; not ours to clean up.
		return false
	}
	core.LogWarn("factory: graphics context lost, disposing %d tracked resources", f.TrackedCount())
	f.disposeAll()

	f.mu.Lock()
	f.disposed = true
	f.mu.Unlock()
	// Let other trackers on the same context observe the event too.
	return false
}

// disposeAll tears down every tracked resource. One failing resource must
// not block cleanup of the rest, so each disposal is isolated.
func (f *Factory) disposeAll() {
	f.mu.Lock()
	tracked := f.tracked
	f.tracked = nil
	f.mu.Unlock()

	for _, t := range tracked {
		safeDispose(t.name, t.resource)
	}
}

func safeDispose(name string, r Disposer) {
	defer func() {
		if rec := recover(); rec != nil {
			core.LogError("tracker: disposing %q failed: %v", name, rec)
		}
	}()
	r.Dispose()
}

// Dispose tears down everything the factory tracks and permanently rejects
// further creation. Idempotent.
func (f *Factory) Dispose() {
	f.mu.Lock()
	if f.disposed {
		f.mu.Unlock()
		return
	}
	f.disposed = true
	f.mu.Unlock()

	f.disposeAll()
	core.EventUnregister(core.EVENT_CODE_CONTEXT_LOST, f, f.onContextLost)
}
