package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/lumen-engine/lumen/engine/core"
	"github.com/lumen-engine/lumen/engine/renderer/driver"
)

// vulkanBuffer is one device allocation. Device-local storage is reached
// through a transient host-visible staging buffer on every upload and
// read-back; the buffer itself never outlives its memory binding.
type vulkanBuffer struct {
	handle vk.Buffer
	memory vk.DeviceMemory
	size   vk.DeviceSize

	target driver.BufferTarget
	usage  driver.Usage
}

func bufferUsageFlags(target driver.BufferTarget) vk.BufferUsageFlags {
	flags := vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit | vk.BufferUsageTransferDstBit)
	switch target {
	case driver.BufferTargetVertex:
		flags |= vk.BufferUsageFlags(vk.BufferUsageVertexBufferBit)
	case driver.BufferTargetIndex:
		flags |= vk.BufferUsageFlags(vk.BufferUsageIndexBufferBit)
	case driver.BufferTargetUniform:
		flags |= vk.BufferUsageFlags(vk.BufferUsageUniformBufferBit)
	}
	return flags
}

// createDeviceAllocation creates a buffer of the given size and binds fresh
// memory with the requested property flags.
func createDeviceAllocation(context *VulkanContext, size vk.DeviceSize, usage vk.BufferUsageFlags, properties uint32) (vk.Buffer, vk.DeviceMemory, error) {
	bufferInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        size,
		Usage:       usage,
		SharingMode: vk.SharingModeExclusive,
	}

	var buffer vk.Buffer
	if res := vk.CreateBuffer(context.Device.LogicalDevice, &bufferInfo, context.Allocator, &buffer); res != vk.Success {
		return vk.NullBuffer, vk.NullDeviceMemory, resultErr("vkCreateBuffer", res)
	}

	var memReqs vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(context.Device.LogicalDevice, buffer, &memReqs)
	memReqs.Deref()

	memoryIndex := context.FindMemoryIndex(memReqs.MemoryTypeBits, properties)
	if memoryIndex < 0 {
		vk.DestroyBuffer(context.Device.LogicalDevice, buffer, context.Allocator)
		return vk.NullBuffer, vk.NullDeviceMemory,
			fmt.Errorf("%w: no suitable memory type for buffer", core.ErrOutOfMemory)
	}

	allocInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  memReqs.Size,
		MemoryTypeIndex: uint32(memoryIndex),
	}

	var memory vk.DeviceMemory
	if res := vk.AllocateMemory(context.Device.LogicalDevice, &allocInfo, context.Allocator, &memory); res != vk.Success {
		vk.DestroyBuffer(context.Device.LogicalDevice, buffer, context.Allocator)
		return vk.NullBuffer, vk.NullDeviceMemory, resultErr("vkAllocateMemory", res)
	}

	if res := vk.BindBufferMemory(context.Device.LogicalDevice, buffer, memory, 0); res != vk.Success {
		vk.FreeMemory(context.Device.LogicalDevice, memory, context.Allocator)
		vk.DestroyBuffer(context.Device.LogicalDevice, buffer, context.Allocator)
		return vk.NullBuffer, vk.NullDeviceMemory, resultErr("vkBindBufferMemory", res)
	}

	return buffer, memory, nil
}

func (b *vulkanBuffer) destroy(context *VulkanContext) {
	if b.handle != vk.NullBuffer {
		vk.DestroyBuffer(context.Device.LogicalDevice, b.handle, context.Allocator)
		b.handle = vk.NullBuffer
	}
	if b.memory != vk.NullDeviceMemory {
		vk.FreeMemory(context.Device.LogicalDevice, b.memory, context.Allocator)
		b.memory = vk.NullDeviceMemory
	}
	b.size = 0
}

// allocate (re)creates the device-local storage at the given size,
// discarding the previous contents.
func (b *vulkanBuffer) allocate(context *VulkanContext, size int) error {
	b.destroy(context)
	if size == 0 {
		return nil
	}

	handle, memory, err := createDeviceAllocation(
		context,
		vk.DeviceSize(size),
		bufferUsageFlags(b.target),
		uint32(vk.MemoryPropertyDeviceLocalBit),
	)
	if err != nil {
		return err
	}
	b.handle = handle
	b.memory = memory
	b.size = vk.DeviceSize(size)
	return nil
}

// stagingBuffer is a transient host-visible allocation used to ferry bytes
// in and out of device-local storage.
type stagingBuffer struct {
	handle vk.Buffer
	memory vk.DeviceMemory
	size   vk.DeviceSize
}

func newStagingBuffer(context *VulkanContext, size int) (*stagingBuffer, error) {
	handle, memory, err := createDeviceAllocation(
		context,
		vk.DeviceSize(size),
		vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit|vk.BufferUsageTransferDstBit),
		uint32(vk.MemoryPropertyHostVisibleBit|vk.MemoryPropertyHostCoherentBit),
	)
	if err != nil {
		return nil, err
	}
	return &stagingBuffer{handle: handle, memory: memory, size: vk.DeviceSize(size)}, nil
}

func (s *stagingBuffer) destroy(context *VulkanContext) {
	vk.DestroyBuffer(context.Device.LogicalDevice, s.handle, context.Allocator)
	vk.FreeMemory(context.Device.LogicalDevice, s.memory, context.Allocator)
}

func (s *stagingBuffer) write(context *VulkanContext, data []byte) error {
	var mapped unsafe.Pointer
	if res := vk.MapMemory(context.Device.LogicalDevice, s.memory, 0, s.size, 0, &mapped); res != vk.Success {
		return resultErr("vkMapMemory", res)
	}
	vk.Memcopy(mapped, data)
	vk.UnmapMemory(context.Device.LogicalDevice, s.memory)
	return nil
}

func (s *stagingBuffer) read(context *VulkanContext, out []byte) error {
	var mapped unsafe.Pointer
	if res := vk.MapMemory(context.Device.LogicalDevice, s.memory, 0, s.size, 0, &mapped); res != vk.Success {
		return resultErr("vkMapMemory", res)
	}
	src := unsafe.Slice((*byte)(mapped), len(out))
	copy(out, src)
	vk.UnmapMemory(context.Device.LogicalDevice, s.memory)
	return nil
}

// copyRegion runs one buffer-to-buffer copy on the transfer queue and waits
// for it, using a single-use command buffer from the transfer pool.
func copyRegion(context *VulkanContext, src, dst vk.Buffer, srcOffset, dstOffset, size int) error {
	cb, err := AllocateAndBeginSingleUse(context, context.Device.TransferCommandPool)
	if err != nil {
		return err
	}

	region := vk.BufferCopy{
		SrcOffset: vk.DeviceSize(srcOffset),
		DstOffset: vk.DeviceSize(dstOffset),
		Size:      vk.DeviceSize(size),
	}
	vk.CmdCopyBuffer(cb.Handle, src, dst, 1, []vk.BufferCopy{region})

	return cb.EndSingleUse(context, context.Device.TransferCommandPool, context.Device.TransferQueue)
}

// upload stages data and copies it into device storage at offset.
func (b *vulkanBuffer) upload(context *VulkanContext, offset int, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	staging, err := newStagingBuffer(context, len(data))
	if err != nil {
		return err
	}
	defer staging.destroy(context)

	if err := staging.write(context, data); err != nil {
		return err
	}
	return copyRegion(context, staging.handle, b.handle, 0, offset, len(data))
}

// readback copies a device range into out through a staging buffer.
func (b *vulkanBuffer) readback(context *VulkanContext, offset int, out []byte) error {
	if len(out) == 0 {
		return nil
	}
	staging, err := newStagingBuffer(context, len(out))
	if err != nil {
		return err
	}
	defer staging.destroy(context)

	if err := copyRegion(context, b.handle, staging.handle, offset, 0, len(out)); err != nil {
		return err
	}
	return staging.read(context, out)
}
