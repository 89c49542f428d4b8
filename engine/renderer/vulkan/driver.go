package vulkan

import (
	"fmt"
	"sync"

	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/goki/vulkan"

	"github.com/lumen-engine/lumen/engine/core"
	"github.com/lumen-engine/lumen/engine/renderer/driver"
)

type vulkanVertexArray struct {
	// Vulkan has no vertex-array object; the assembly is host-side state
	// replayed as vertex input bindings at draw time.
	attributes   map[uint32]driver.AttributePointer
	vertexBuffer driver.BufferHandle
	indexBuffer  driver.BufferHandle
}

// Driver implements the device interface over a Vulkan transfer queue. All
// buffer traffic goes through single-use command buffers submitted to the
// transfer queue and waited on, so every call is synchronous.
//
// Draw submissions are recorded into a one-shot command buffer; binding a
// pipeline and render pass around them is the renderer's job, not this
// layer's. FlushDraws hands the recorded buffer to the queue.
type Driver struct {
	mu      sync.Mutex
	context *VulkanContext

	buffers      map[driver.BufferHandle]*vulkanBuffer
	vertexArrays map[driver.VertexArrayHandle]*vulkanVertexArray
	nextBuffer   driver.BufferHandle
	nextArray    driver.VertexArrayHandle

	bound      map[driver.BufferTarget]driver.BufferHandle
	boundArray driver.VertexArrayHandle

	drawCmd *VulkanCommandBuffer

	lost bool
}

func New() *Driver {
	return &Driver{
		context: &VulkanContext{
			Allocator: nil,
			Device:    &VulkanDevice{TransferQueueIndex: -1},
		},
		buffers:      make(map[driver.BufferHandle]*vulkanBuffer),
		vertexArrays: make(map[driver.VertexArrayHandle]*vulkanVertexArray),
		bound:        make(map[driver.BufferTarget]driver.BufferHandle),
	}
}

// Initialize brings up the instance and device. GLFW must already be
// initialized; it supplies the loader entry point.
func (d *Driver) Initialize(appName string) error {
	procAddr := glfw.GetVulkanGetInstanceProcAddress()
	if procAddr == nil {
		core.LogFatal("GetInstanceProcAddress is nil")
		return fmt.Errorf("%w: GetInstanceProcAddress is nil", core.ErrUnsupportedOperation)
	}
	vk.SetGetInstanceProcAddr(procAddr)

	if err := vk.Init(); err != nil {
		core.LogFatal("failed to initialize vk: %s", err)
		return err
	}

	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         uint32(vk.MakeVersion(1, 0, 0)),
		ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
		PApplicationName:   VulkanSafeString(appName),
		PEngineName:        VulkanSafeString("Lumen Engine"),
	}

	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: appInfo,
	}

	var instance vk.Instance
	if res := vk.CreateInstance(&createInfo, d.context.Allocator, &instance); res != vk.Success {
		return resultErr("vkCreateInstance", res)
	}
	d.context.Instance = instance
	vk.InitInstance(instance)

	if err := DeviceCreate(d.context); err != nil {
		return err
	}

	core.LogInfo("Vulkan driver initialized.")
	return nil
}

func (d *Driver) assertUsable() error {
	if d.lost {
		return core.ErrContextLost
	}
	if d.context.Device.LogicalDevice == nil {
		return fmt.Errorf("%w: driver is not initialized", core.ErrInvalidOperation)
	}
	return nil
}

// markLost flags the device lost and fires the context-lost event exactly
// once so resource trackers tear down.
func (d *Driver) markLost() {
	if d.lost {
		return
	}
	d.lost = true
	core.EventFire(core.EVENT_CODE_CONTEXT_LOST, d, core.EventContext{})
}

func (d *Driver) CreateBuffer(target driver.BufferTarget, usage driver.Usage) (driver.BufferHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.assertUsable(); err != nil {
		return 0, err
	}
	d.nextBuffer++
	d.buffers[d.nextBuffer] = &vulkanBuffer{target: target, usage: usage}
	return d.nextBuffer, nil
}

func (d *Driver) DeleteBuffer(handle driver.BufferHandle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	buf, ok := d.buffers[handle]
	if !ok {
		return fmt.Errorf("%w: unknown buffer handle %d", core.ErrInvalidValue, handle)
	}
	buf.destroy(d.context)
	delete(d.buffers, handle)
	for target, bound := range d.bound {
		if bound == handle {
			delete(d.bound, target)
		}
	}
	return nil
}

func (d *Driver) BindBuffer(target driver.BufferTarget, handle driver.BufferHandle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if handle == 0 {
		delete(d.bound, target)
		return nil
	}
	if _, ok := d.buffers[handle]; !ok {
		return fmt.Errorf("%w: unknown buffer handle %d", core.ErrInvalidValue, handle)
	}
	d.bound[target] = handle
	return nil
}

func (d *Driver) BufferData(handle driver.BufferHandle, size int, data []byte, usage driver.Usage) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.assertUsable(); err != nil {
		return err
	}
	buf, ok := d.buffers[handle]
	if !ok {
		return fmt.Errorf("%w: unknown buffer handle %d", core.ErrInvalidValue, handle)
	}
	if size < 0 {
		return fmt.Errorf("%w: negative buffer size %d", core.ErrInvalidValue, size)
	}
	if data != nil && len(data) != size {
		return fmt.Errorf("%w: data length (%d) != size (%d)", core.ErrInvalidValue, len(data), size)
	}

	if err := buf.allocate(d.context, size); err != nil {
		return err
	}
	buf.usage = usage

	if size == 0 {
		return nil
	}
	// Device-local memory has no defined initial contents; a nil data slice
	// still means zero-filled to the caller.
	if data == nil {
		data = make([]byte, size)
	}
	return buf.upload(d.context, 0, data)
}

func (d *Driver) BufferSubData(handle driver.BufferHandle, offset int, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.assertUsable(); err != nil {
		return err
	}
	buf, ok := d.buffers[handle]
	if !ok {
		return fmt.Errorf("%w: unknown buffer handle %d", core.ErrInvalidValue, handle)
	}
	if offset < 0 || vk.DeviceSize(offset+len(data)) > buf.size {
		return fmt.Errorf("%w: offset (%d) + size (%d) > buffer size (%d)",
			core.ErrInvalidValue, offset, len(data), buf.size)
	}
	return buf.upload(d.context, offset, data)
}

func (d *Driver) CopyBufferSubData(src, dst driver.BufferHandle, srcOffset, dstOffset, size int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.assertUsable(); err != nil {
		return err
	}
	sbuf, ok := d.buffers[src]
	if !ok {
		return fmt.Errorf("%w: unknown source buffer handle %d", core.ErrInvalidValue, src)
	}
	dbuf, ok := d.buffers[dst]
	if !ok {
		return fmt.Errorf("%w: unknown destination buffer handle %d", core.ErrInvalidValue, dst)
	}
	if srcOffset < 0 || vk.DeviceSize(srcOffset+size) > sbuf.size {
		return fmt.Errorf("%w: source offset (%d) + size (%d) > buffer size (%d)",
			core.ErrInvalidValue, srcOffset, size, sbuf.size)
	}
	if dstOffset < 0 || vk.DeviceSize(dstOffset+size) > dbuf.size {
		return fmt.Errorf("%w: destination offset (%d) + size (%d) > buffer size (%d)",
			core.ErrInvalidValue, dstOffset, size, dbuf.size)
	}
	return copyRegion(d.context, sbuf.handle, dbuf.handle, srcOffset, dstOffset, size)
}

func (d *Driver) GetBufferSubData(handle driver.BufferHandle, offset int, out []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.assertUsable(); err != nil {
		return err
	}
	buf, ok := d.buffers[handle]
	if !ok {
		return fmt.Errorf("%w: unknown buffer handle %d", core.ErrInvalidValue, handle)
	}
	if offset < 0 || vk.DeviceSize(offset+len(out)) > buf.size {
		return fmt.Errorf("%w: offset (%d) + size (%d) > buffer size (%d)",
			core.ErrInvalidValue, offset, len(out), buf.size)
	}
	return buf.readback(d.context, offset, out)
}

func (d *Driver) SupportsReadback() bool {
	return true
}

func (d *Driver) CreateVertexArray() (driver.VertexArrayHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.assertUsable(); err != nil {
		return 0, err
	}
	d.nextArray++
	d.vertexArrays[d.nextArray] = &vulkanVertexArray{
		attributes: make(map[uint32]driver.AttributePointer),
	}
	return d.nextArray, nil
}

func (d *Driver) DeleteVertexArray(handle driver.VertexArrayHandle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.vertexArrays[handle]; !ok {
		return fmt.Errorf("%w: unknown vertex array handle %d", core.ErrInvalidValue, handle)
	}
	delete(d.vertexArrays, handle)
	if d.boundArray == handle {
		d.boundArray = 0
	}
	return nil
}

func (d *Driver) BindVertexArray(handle driver.VertexArrayHandle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if handle == 0 {
		d.boundArray = 0
		return nil
	}
	if _, ok := d.vertexArrays[handle]; !ok {
		return fmt.Errorf("%w: unknown vertex array handle %d", core.ErrInvalidValue, handle)
	}
	d.boundArray = handle
	return nil
}

func (d *Driver) EnableVertexAttribute(slot uint32, attr driver.AttributePointer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	va, ok := d.vertexArrays[d.boundArray]
	if !ok {
		return fmt.Errorf("%w: no vertex array bound", core.ErrInvalidValue)
	}
	va.attributes[slot] = attr
	va.vertexBuffer = d.bound[driver.BufferTargetVertex]
	va.indexBuffer = d.bound[driver.BufferTargetIndex]
	return nil
}

// beginDraw lazily opens the one-shot draw command buffer and binds the
// active assembly's vertex input.
func (d *Driver) beginDraw() (*vulkanVertexArray, error) {
	va, ok := d.vertexArrays[d.boundArray]
	if !ok {
		return nil, fmt.Errorf("%w: draw without a bound vertex array", core.ErrInvalidValue)
	}
	if d.drawCmd == nil {
		cb, err := AllocateAndBeginSingleUse(d.context, d.context.Device.TransferCommandPool)
		if err != nil {
			return nil, err
		}
		d.drawCmd = cb
	}

	if vbuf, ok := d.buffers[va.vertexBuffer]; ok {
		vk.CmdBindVertexBuffers(d.drawCmd.Handle, 0, 1, []vk.Buffer{vbuf.handle}, []vk.DeviceSize{0})
	}
	return va, nil
}

func (d *Driver) DrawArrays(mode driver.PrimitiveMode, first, count int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.assertUsable(); err != nil {
		return err
	}
	if first < 0 || count < 0 {
		return fmt.Errorf("%w: negative draw parameter", core.ErrInvalidValue)
	}
	if _, err := d.beginDraw(); err != nil {
		return err
	}
	vk.CmdDraw(d.drawCmd.Handle, uint32(count), 1, uint32(first), 0)
	return nil
}

func (d *Driver) DrawElements(mode driver.PrimitiveMode, count int, indexType driver.IndexType, byteOffset int) error {
	return d.drawElements(count, indexType, byteOffset, 1)
}

func (d *Driver) DrawArraysInstanced(mode driver.PrimitiveMode, first, count, instanceCount int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.assertUsable(); err != nil {
		return err
	}
	if first < 0 || count < 0 || instanceCount < 0 {
		return fmt.Errorf("%w: negative draw parameter", core.ErrInvalidValue)
	}
	if _, err := d.beginDraw(); err != nil {
		return err
	}
	vk.CmdDraw(d.drawCmd.Handle, uint32(count), uint32(instanceCount), uint32(first), 0)
	return nil
}

func (d *Driver) DrawElementsInstanced(mode driver.PrimitiveMode, count int, indexType driver.IndexType, byteOffset, instanceCount int) error {
	return d.drawElements(count, indexType, byteOffset, instanceCount)
}

func (d *Driver) drawElements(count int, indexType driver.IndexType, byteOffset, instanceCount int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.assertUsable(); err != nil {
		return err
	}
	if count < 0 || byteOffset < 0 || instanceCount < 0 {
		return fmt.Errorf("%w: negative draw parameter", core.ErrInvalidValue)
	}

	var vkIndexType vk.IndexType
	switch indexType {
	case driver.IndexTypeUint16:
		vkIndexType = vk.IndexTypeUint16
	case driver.IndexTypeUint32:
		vkIndexType = vk.IndexTypeUint32
	default:
		// Core Vulkan has no 8-bit index type.
		return fmt.Errorf("%w: index type %s", core.ErrUnsupportedOperation, indexType)
	}

	va, err := d.beginDraw()
	if err != nil {
		return err
	}
	if ibuf, ok := d.buffers[va.indexBuffer]; ok {
		vk.CmdBindIndexBuffer(d.drawCmd.Handle, ibuf.handle, vk.DeviceSize(byteOffset), vkIndexType)
	}
	vk.CmdDrawIndexed(d.drawCmd.Handle, uint32(count), uint32(instanceCount), 0, 0, 0)
	return nil
}

// FlushDraws submits the recorded draw commands and waits for the queue.
// Without recorded draws it is a no-op.
func (d *Driver) FlushDraws() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.drawCmd == nil {
		return nil
	}
	cb := d.drawCmd
	d.drawCmd = nil
	err := cb.EndSingleUse(d.context, d.context.Device.TransferCommandPool, d.context.Device.TransferQueue)
	if err != nil {
		d.markLost()
	}
	return err
}

func (d *Driver) Lost() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lost
}

func (d *Driver) Shutdown() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.context.Device.LogicalDevice != nil {
		vk.DeviceWaitIdle(d.context.Device.LogicalDevice)
	}
	if d.drawCmd != nil {
		d.drawCmd.Free(d.context, d.context.Device.TransferCommandPool)
		d.drawCmd = nil
	}
	for handle, buf := range d.buffers {
		buf.destroy(d.context)
		delete(d.buffers, handle)
	}
	d.vertexArrays = make(map[driver.VertexArrayHandle]*vulkanVertexArray)
	d.bound = make(map[driver.BufferTarget]driver.BufferHandle)
	d.boundArray = 0

	DeviceDestroy(d.context)
	if d.context.Instance != nil {
		vk.DestroyInstance(d.context.Instance, d.context.Allocator)
		d.context.Instance = nil
	}
	core.LogInfo("Vulkan driver shut down.")
	return nil
}
