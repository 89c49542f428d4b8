package platform

import (
	"runtime"

	"github.com/go-gl/glfw/v3.3/glfw"

	"github.com/lumen-engine/lumen/engine/core"
)

var startTime float64 = 0

func init() {
	// GLFW event handling must run on the main OS thread
	runtime.LockOSThread()
}

type Platform struct {
	Window *glfw.Window

	headless bool
}

func New() (*Platform, error) {
	return &Platform{
		Window: nil,
	}, nil
}

// Startup initializes GLFW and, unless headless, creates a Vulkan-capable
// window. Headless startup still initializes GLFW: the Vulkan loader entry
// point comes from it either way.
func (p *Platform) Startup(applicationName string, headless bool, width, height uint32) error {
	if err := glfw.Init(); err != nil {
		core.LogFatal("failed to initialize glfw: %s", err)
		return err
	}
	p.headless = headless

	startTime = glfw.GetTime()

	if headless {
		return nil
	}

	glfw.WindowHint(glfw.Visible, glfw.False)
	glfw.WindowHint(glfw.Resizable, glfw.True)
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI) // Required for Vulkan.

	window, err := glfw.CreateWindow(int(width), int(height), applicationName, nil, nil)
	if err != nil {
		core.LogFatal("failed to create window: %s", err)
		return err
	}
	p.Window = window
	p.Window.Show()

	return nil
}

func (p *Platform) Shutdown() error {
	if p.Window != nil {
		p.Window.Destroy()
		p.Window = nil
	}
	glfw.Terminate()
	return nil
}

// VulkanSupported reports whether a Vulkan loader is available.
func (p *Platform) VulkanSupported() bool {
	return glfw.VulkanSupported()
}

func (p *Platform) PumpMessages() {
	if !p.headless {
		glfw.PollEvents()
	}
}

// Uptime returns seconds since platform startup.
func (p *Platform) Uptime() float64 {
	return glfw.GetTime() - startTime
}
