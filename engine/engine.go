/*
Package engine wires the platform, device driver and resource layer into a
runnable application shell. It owns startup order, config hot-reload and
teardown; everything interesting happens in the packages underneath.
*/
package engine

import (
	"fmt"
	"time"

	"github.com/lumen-engine/lumen/engine/config"
	"github.com/lumen-engine/lumen/engine/core"
	"github.com/lumen-engine/lumen/engine/platform"
	"github.com/lumen-engine/lumen/engine/renderer/driver"
	"github.com/lumen-engine/lumen/engine/renderer/driver/memdriver"
	"github.com/lumen-engine/lumen/engine/renderer/gpumem"
	"github.com/lumen-engine/lumen/engine/renderer/vulkan"
)

type Engine struct {
	appName    string
	configPath string

	cfg     *config.Config
	watcher *config.Watcher

	platform *platform.Platform
	driver   driver.Driver
	factory  *gpumem.Factory
	registry *gpumem.VAORegistry

	clock *core.Clock
	done  chan struct{}
}

func New(appName, configPath string) (*Engine, error) {
	if appName == "" {
		return nil, fmt.Errorf("%w: empty application name", core.ErrInvalidValue)
	}
	return &Engine{
		appName:    appName,
		configPath: configPath,
		clock:      core.NewClock(),
		done:       make(chan struct{}),
	}, nil
}

// Initialize brings up the platform and picks a device: the Vulkan driver
// when a loader is available, otherwise the in-memory one so the resource
// layer still runs end to end.
func (e *Engine) Initialize() error {
	e.cfg = config.Load(e.configPath)

	p, err := platform.New()
	if err != nil {
		return err
	}
	e.platform = p
	if err := e.platform.Startup(e.appName, true, 0, 0); err != nil {
		return err
	}

	if e.platform.VulkanSupported() {
		vd := vulkan.New()
		if err := vd.Initialize(e.appName); err != nil {
			core.LogWarn("vulkan unavailable (%s), falling back to memory driver", err)
			e.driver = memdriver.New()
		} else {
			e.driver = vd
		}
	} else {
		core.LogInfo("no vulkan loader found, using memory driver")
		e.driver = memdriver.New()
	}

	e.factory = gpumem.NewFactory(e.driver, e.cfg)
	e.registry = gpumem.RegistryFor(e.factory)

	if e.configPath != "" {
		w, err := config.Watch(e.configPath, func(cfg *config.Config) {
			e.cfg = cfg
			e.factory.SetPoolPolicy(cfg.Pool)
		})
		if err != nil {
			core.LogDebug("config watch disabled: %s", err)
		} else {
			e.watcher = w
		}
	}

	return nil
}

// Run uploads a demo mesh through the registry and keeps the process alive,
// reporting residency until Shutdown is called.
func (e *Engine) Run() error {
	layout, err := gpumem.NewLayout(
		gpumem.Attribute{Name: "position", Type: driver.ComponentFloat32, ComponentCount: 2},
		gpumem.Attribute{Name: "uv", Type: driver.ComponentFloat16, ComponentCount: 2},
		gpumem.Attribute{Name: "color", Type: driver.ComponentUint8, ComponentCount: 4, Normalized: true},
	)
	if err != nil {
		return err
	}

	vertices := [][]float32{
		{-0.5, -0.5, 0, 0, 255, 0, 0, 255},
		{0.5, -0.5, 1, 0, 0, 255, 0, 255},
		{0.5, 0.5, 1, 1, 0, 0, 255, 255},
		{-0.5, 0.5, 0, 1, 255, 255, 255, 255},
	}
	indices := []uint32{0, 1, 2, 2, 3, 0}

	meshID, err := e.registry.Create(layout, vertices, indices)
	if err != nil {
		return err
	}
	defer e.registry.Release(meshID)

	va, ok := e.registry.Get(meshID)
	if !ok {
		return fmt.Errorf("%w: mesh handle went stale", core.ErrUnknown)
	}
	defer e.registry.Release(meshID)

	if err := va.Bind(); err != nil {
		return err
	}
	if err := va.Draw(gpumem.DrawCall{Mode: driver.PrimitiveTriangles}); err != nil {
		return err
	}
	if err := va.Unbind(); err != nil {
		return err
	}

	e.clock.Start()
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			e.clock.Update()
			count, bytes := core.MetricsBuffersResident()
			core.LogInfo("uptime %.0fs: %d buffers resident, %d bytes", e.clock.ElapsedSeconds(), count, bytes)
			e.platform.PumpMessages()
		case <-e.done:
			return nil
		}
	}
}

// Shutdown stops the run loop and tears everything down in reverse order of
// initialization. Safe to call once from any goroutine.
func (e *Engine) Shutdown() error {
	close(e.done)

	if e.watcher != nil {
		if err := e.watcher.Close(); err != nil {
			core.LogWarn("config watcher close failed: %s", err)
		}
	}
	if e.registry != nil {
		e.registry.Dispose()
	}
	if e.factory != nil {
		e.factory.Dispose()
	}
	if e.driver != nil {
		if err := e.driver.Shutdown(); err != nil {
			core.LogWarn("driver shutdown failed: %s", err)
		}
	}
	if e.platform != nil {
		return e.platform.Shutdown()
	}
	return nil
}
