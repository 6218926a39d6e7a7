//go:build !headless

package main

import (
	"fmt"
	"sync"
	"unsafe"

	vk "github.com/goki/vulkan"
)

var (
	vulkanInitOnce sync.Once
	vulkanInitErr  error
)

// vulkanDevice is the real gpuDevice: instance, physical device, logical
// device, one graphics/transfer queue and its command pool, bringing up
// Vulkan just far enough to import an external dmabuf plane and reduce
// it through a mip cascade.
type vulkanDevice struct {
	instance       vk.Instance
	physicalDevice vk.PhysicalDevice
	device         vk.Device
	queueFamily    uint32
	queue          vk.Queue
	commandPool    vk.CommandPool
	fence          vk.Fence

	mu     sync.Mutex
	images map[gpuImage]*vkImage
	next   gpuImage

	// stagingBuffer/stagingMemory back readPixel's 4-byte host-visible
	// readback; built lazily on first use and kept for the life of the
	// device rather than recreated every tick.
	stagingBuffer vk.Buffer
	stagingMemory vk.DeviceMemory
	stagingMapped unsafe.Pointer
}

type vkImage struct {
	image  vk.Image
	memory vk.DeviceMemory
	view   vk.ImageView
	width  int
	height int
	// external is true for the imported dmabuf plane, whose memory is
	// owned by the compositor, not this process.
	external bool
}

func newVulkanDevice() (*vulkanDevice, error) {
	vulkanInitOnce.Do(func() {
		if err := vk.SetDefaultGetInstanceProcAddr(); err != nil {
			vulkanInitErr = fmt.Errorf("failed to load Vulkan library: %w", err)
			return
		}
		vulkanInitErr = vk.Init()
	})
	if vulkanInitErr != nil {
		return nil, vulkanInitErr
	}

	d := &vulkanDevice{images: make(map[gpuImage]*vkImage)}
	if err := d.createInstance(); err != nil {
		return nil, fmt.Errorf("%w: %v", errGPUSetupFailed, err)
	}
	if err := d.selectPhysicalDevice(); err != nil {
		d.destroyInstance()
		return nil, fmt.Errorf("%w: %v", errGPUSetupFailed, err)
	}
	if err := d.createDevice(); err != nil {
		d.destroyInstance()
		return nil, fmt.Errorf("%w: %v", errGPUSetupFailed, err)
	}
	if err := d.createCommandPool(); err != nil {
		d.destroyDevice()
		d.destroyInstance()
		return nil, fmt.Errorf("%w: %v", errGPUSetupFailed, err)
	}
	if err := d.createFence(); err != nil {
		d.destroyCommandPool()
		d.destroyDevice()
		d.destroyInstance()
		return nil, fmt.Errorf("%w: %v", errGPUSetupFailed, err)
	}
	return d, nil
}

func (d *vulkanDevice) createInstance() error {
	appInfo := vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		PApplicationName:   safeCString("wluma"),
		ApplicationVersion: vk.MakeVersion(1, 0, 0),
		PEngineName:        safeCString("wluma reducer"),
		EngineVersion:      vk.MakeVersion(1, 0, 0),
		ApiVersion:         vk.MakeVersion(1, 1, 0),
	}
	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: &appInfo,
	}
	var instance vk.Instance
	if res := vk.CreateInstance(&createInfo, nil, &instance); res != vk.Success {
		return fmt.Errorf("vkCreateInstance failed: %d", res)
	}
	d.instance = instance
	vk.InitInstance(instance)
	return nil
}

func (d *vulkanDevice) selectPhysicalDevice() error {
	var count uint32
	vk.EnumeratePhysicalDevices(d.instance, &count, nil)
	if count == 0 {
		return fmt.Errorf("no Vulkan-capable GPUs found")
	}
	devices := make([]vk.PhysicalDevice, count)
	vk.EnumeratePhysicalDevices(d.instance, &count, devices)

	for _, dev := range devices {
		var qCount uint32
		vk.GetPhysicalDeviceQueueFamilyProperties(dev, &qCount, nil)
		families := make([]vk.QueueFamilyProperties, qCount)
		vk.GetPhysicalDeviceQueueFamilyProperties(dev, &qCount, families)
		for i, qf := range families {
			qf.Deref()
			if qf.QueueFlags&vk.QueueFlags(vk.QueueGraphicsBit) != 0 {
				d.physicalDevice = dev
				d.queueFamily = uint32(i)
				return nil
			}
		}
	}
	return fmt.Errorf("no suitable GPU with a graphics/transfer queue found")
}

func (d *vulkanDevice) createDevice() error {
	priority := float32(1.0)
	queueInfo := vk.DeviceQueueCreateInfo{
		SType:            vk.StructureTypeDeviceQueueCreateInfo,
		QueueFamilyIndex: d.queueFamily,
		QueueCount:       1,
		PQueuePriorities: []float32{priority},
	}
	deviceInfo := vk.DeviceCreateInfo{
		SType:                vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount: 1,
		PQueueCreateInfos:    []vk.DeviceQueueCreateInfo{queueInfo},
	}
	var device vk.Device
	if res := vk.CreateDevice(d.physicalDevice, &deviceInfo, nil, &device); res != vk.Success {
		return fmt.Errorf("vkCreateDevice failed: %d", res)
	}
	d.device = device

	var queue vk.Queue
	vk.GetDeviceQueue(device, d.queueFamily, 0, &queue)
	d.queue = queue
	return nil
}

func (d *vulkanDevice) createCommandPool() error {
	info := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: d.queueFamily,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
	}
	var pool vk.CommandPool
	if res := vk.CreateCommandPool(d.device, &info, nil, &pool); res != vk.Success {
		return fmt.Errorf("vkCreateCommandPool failed: %d", res)
	}
	d.commandPool = pool
	return nil
}

func (d *vulkanDevice) createFence() error {
	info := vk.FenceCreateInfo{SType: vk.StructureTypeFenceCreateInfo}
	var fence vk.Fence
	if res := vk.CreateFence(d.device, &info, nil, &fence); res != vk.Success {
		return fmt.Errorf("vkCreateFence failed: %d", res)
	}
	d.fence = fence
	return nil
}

func (d *vulkanDevice) findMemoryType(typeBits uint32, props vk.MemoryPropertyFlags) (uint32, error) {
	var memProps vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(d.physicalDevice, &memProps)
	memProps.Deref()
	for i := uint32(0); i < memProps.MemoryTypeCount; i++ {
		memProps.MemoryTypes[i].Deref()
		if typeBits&(1<<i) != 0 && memProps.MemoryTypes[i].PropertyFlags&props == props {
			return i, nil
		}
	}
	return 0, fmt.Errorf("no suitable memory type for bits=%#x props=%#x", typeBits, props)
}

// importExternal wraps a captured dmabuf plane as a VkImage backed by
// the compositor's own memory via VK_EXT_external_memory_dma_buf /
// VK_KHR_external_memory_fd: the image is declared external at create
// time, then the plane's fd is imported as a dedicated allocation bound
// to that image, so the blit chain below reads the compositor's real
// pixels rather than an empty handle. This only supports a single,
// non-disjoint dmabuf plane (frame.go's frame.planes[0]), matching the
// Frame Reducer's "only plane 0 is read" contract.
func (d *vulkanDevice) importExternal(p plane, width, height int) (gpuImage, error) {
	if p.handle == 0 {
		return 0, fmt.Errorf("importExternal: plane has no dmabuf fd")
	}

	extImageInfo := vk.ExternalMemoryImageCreateInfo{
		SType:       vk.StructureTypeExternalMemoryImageCreateInfo,
		HandleTypes: vk.ExternalMemoryHandleTypeFlags(vk.ExternalMemoryHandleTypeDmaBufBitExt),
	}
	imageInfo := vk.ImageCreateInfo{
		SType:       vk.StructureTypeImageCreateInfo,
		PNext:       unsafe.Pointer(&extImageInfo),
		ImageType:   vk.ImageType2d,
		Format:      vk.FormatR8g8b8a8Unorm,
		Extent:      vk.Extent3D{Width: uint32(width), Height: uint32(height), Depth: 1},
		MipLevels:   1,
		ArrayLayers: 1,
		Samples:     vk.SampleCount1Bit,
		Tiling:      vk.ImageTilingOptimal,
		Usage:       vk.ImageUsageFlags(vk.ImageUsageTransferSrcBit),
	}
	var image vk.Image
	if res := vk.CreateImage(d.device, &imageInfo, nil, &image); res != vk.Success {
		return 0, fmt.Errorf("vkCreateImage (import) failed: %d", res)
	}

	var memReqs vk.MemoryRequirements
	vk.GetImageMemoryRequirements(d.device, image, &memReqs)
	memReqs.Deref()
	typeIdx, err := d.findMemoryType(memReqs.MemoryTypeBits, vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit))
	if err != nil {
		vk.DestroyImage(d.device, image, nil)
		return 0, err
	}

	// dma_buf imports require a dedicated allocation under the
	// VK_KHR_dedicated_allocation interaction rules; the imported fd
	// itself supplies the backing memory, so AllocationSize here is
	// advisory and the driver sizes the allocation from the fd.
	importInfo := vk.ImportMemoryFdInfoKhr{
		SType:      vk.StructureTypeImportMemoryFdInfoKhr,
		HandleType: vk.ExternalMemoryHandleTypeFlagBits(vk.ExternalMemoryHandleTypeDmaBufBitExt),
		Fd:         int32(p.handle),
	}
	dedicatedInfo := vk.MemoryDedicatedAllocateInfo{
		SType: vk.StructureTypeMemoryDedicatedAllocateInfo,
		PNext: unsafe.Pointer(&importInfo),
		Image: image,
	}
	allocInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		PNext:           unsafe.Pointer(&dedicatedInfo),
		AllocationSize:  memReqs.Size,
		MemoryTypeIndex: typeIdx,
	}
	var memory vk.DeviceMemory
	if res := vk.AllocateMemory(d.device, &allocInfo, nil, &memory); res != vk.Success {
		vk.DestroyImage(d.device, image, nil)
		return 0, fmt.Errorf("vkAllocateMemory (import) failed: %d", res)
	}
	if res := vk.BindImageMemory(d.device, image, memory, 0); res != vk.Success {
		vk.FreeMemory(d.device, memory, nil)
		vk.DestroyImage(d.device, image, nil)
		return 0, fmt.Errorf("vkBindImageMemory (import) failed: %d", res)
	}

	d.mu.Lock()
	d.next++
	handle := d.next
	d.images[handle] = &vkImage{image: image, memory: memory, width: width, height: height, external: true}
	d.mu.Unlock()
	return handle, nil
}

func (d *vulkanDevice) newTarget(width, height int) (gpuImage, error) {
	imageInfo := vk.ImageCreateInfo{
		SType:       vk.StructureTypeImageCreateInfo,
		ImageType:   vk.ImageType2d,
		Format:      vk.FormatR8g8b8a8Unorm,
		Extent:      vk.Extent3D{Width: uint32(width), Height: uint32(height), Depth: 1},
		MipLevels:   1,
		ArrayLayers: 1,
		Samples:     vk.SampleCount1Bit,
		Tiling:      vk.ImageTilingOptimal,
		Usage:       vk.ImageUsageFlags(vk.ImageUsageTransferSrcBit | vk.ImageUsageTransferDstBit),
	}
	var image vk.Image
	if res := vk.CreateImage(d.device, &imageInfo, nil, &image); res != vk.Success {
		return 0, fmt.Errorf("vkCreateImage (mip target) failed: %d", res)
	}

	var memReqs vk.MemoryRequirements
	vk.GetImageMemoryRequirements(d.device, image, &memReqs)
	memReqs.Deref()
	typeIdx, err := d.findMemoryType(memReqs.MemoryTypeBits, vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit))
	if err != nil {
		vk.DestroyImage(d.device, image, nil)
		return 0, err
	}
	allocInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  memReqs.Size,
		MemoryTypeIndex: typeIdx,
	}
	var memory vk.DeviceMemory
	if res := vk.AllocateMemory(d.device, &allocInfo, nil, &memory); res != vk.Success {
		vk.DestroyImage(d.device, image, nil)
		return 0, fmt.Errorf("vkAllocateMemory (mip target) failed: %d", res)
	}
	vk.BindImageMemory(d.device, image, memory, 0)

	d.mu.Lock()
	d.next++
	handle := d.next
	d.images[handle] = &vkImage{image: image, memory: memory, width: width, height: height}
	d.mu.Unlock()
	return handle, nil
}

// blitHalf records and submits a one-shot command buffer performing the
// linear-filtered downsample blit, then waits on the device fence.
func (d *vulkanDevice) blitHalf(dst, src gpuImage) error {
	d.mu.Lock()
	dstImg, ok1 := d.images[dst]
	srcImg, ok2 := d.images[src]
	d.mu.Unlock()
	if !ok1 || !ok2 {
		return fmt.Errorf("blitHalf: unknown image handle")
	}

	cmd, err := d.beginOneShot()
	if err != nil {
		return err
	}

	barrier := func(img vk.Image, from, to vk.ImageLayout) {
		b := vk.ImageMemoryBarrier{
			SType:     vk.StructureTypeImageMemoryBarrier,
			OldLayout: from,
			NewLayout: to,
			Image:     img,
			SubresourceRange: vk.ImageSubresourceRange{
				AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
				LevelCount: 1,
				LayerCount: 1,
			},
		}
		vk.CmdPipelineBarrier(cmd, vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit),
			vk.PipelineStageFlags(vk.PipelineStageTransferBit), 0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{b})
	}
	barrier(srcImg.image, vk.ImageLayoutUndefined, vk.ImageLayoutTransferSrcOptimal)
	barrier(dstImg.image, vk.ImageLayoutUndefined, vk.ImageLayoutTransferDstOptimal)

	region := vk.ImageBlit{
		SrcSubresource: vk.ImageSubresourceLayers{AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit), LayerCount: 1},
		DstSubresource: vk.ImageSubresourceLayers{AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit), LayerCount: 1},
	}
	region.SrcOffsets[1] = vk.Offset3D{X: int32(srcImg.width), Y: int32(srcImg.height), Z: 1}
	region.DstOffsets[1] = vk.Offset3D{X: int32(dstImg.width), Y: int32(dstImg.height), Z: 1}

	vk.CmdBlitImage(cmd, srcImg.image, vk.ImageLayoutTransferSrcOptimal, dstImg.image, vk.ImageLayoutTransferDstOptimal,
		1, []vk.ImageBlit{region}, vk.FilterLinear)

	barrier(dstImg.image, vk.ImageLayoutTransferDstOptimal, vk.ImageLayoutTransferSrcOptimal)

	return d.submitAndWait(cmd)
}

// ensureStagingBuffer builds the 4-byte host-visible readback buffer on
// first use and leaves it mapped for the life of the device, instead of
// creating and tearing one down on every tick.
func (d *vulkanDevice) ensureStagingBuffer() error {
	if d.stagingBuffer != vk.NullBuffer {
		return nil
	}

	bufInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        4,
		Usage:       vk.BufferUsageFlags(vk.BufferUsageTransferDstBit),
		SharingMode: vk.SharingModeExclusive,
	}
	var buf vk.Buffer
	if res := vk.CreateBuffer(d.device, &bufInfo, nil, &buf); res != vk.Success {
		return fmt.Errorf("vkCreateBuffer (readback) failed: %d", res)
	}

	var memReqs vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(d.device, buf, &memReqs)
	memReqs.Deref()
	typeIdx, err := d.findMemoryType(memReqs.MemoryTypeBits,
		vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit|vk.MemoryPropertyHostCoherentBit))
	if err != nil {
		vk.DestroyBuffer(d.device, buf, nil)
		return err
	}
	allocInfo := vk.MemoryAllocateInfo{SType: vk.StructureTypeMemoryAllocateInfo, AllocationSize: memReqs.Size, MemoryTypeIndex: typeIdx}
	var mem vk.DeviceMemory
	if res := vk.AllocateMemory(d.device, &allocInfo, nil, &mem); res != vk.Success {
		vk.DestroyBuffer(d.device, buf, nil)
		return fmt.Errorf("vkAllocateMemory (readback) failed: %d", res)
	}
	if res := vk.BindBufferMemory(d.device, buf, mem, 0); res != vk.Success {
		vk.FreeMemory(d.device, mem, nil)
		vk.DestroyBuffer(d.device, buf, nil)
		return fmt.Errorf("vkBindBufferMemory (readback) failed: %d", res)
	}

	var data unsafe.Pointer
	if res := vk.MapMemory(d.device, mem, 0, 4, 0, &data); res != vk.Success {
		vk.FreeMemory(d.device, mem, nil)
		vk.DestroyBuffer(d.device, buf, nil)
		return fmt.Errorf("vkMapMemory (readback) failed: %d", res)
	}

	d.stagingBuffer = buf
	d.stagingMemory = mem
	d.stagingMapped = data
	return nil
}

// readPixel copies a 1x1 image's single texel into the persistent
// staging buffer and reads it back.
func (d *vulkanDevice) readPixel(img gpuImage) (uint8, uint8, uint8, error) {
	d.mu.Lock()
	vi, ok := d.images[img]
	d.mu.Unlock()
	if !ok {
		return 0, 0, 0, fmt.Errorf("readPixel: unknown image handle")
	}

	if err := d.ensureStagingBuffer(); err != nil {
		return 0, 0, 0, err
	}

	cmd, err := d.beginOneShot()
	if err != nil {
		return 0, 0, 0, err
	}
	region := vk.BufferImageCopy{
		ImageSubresource: vk.ImageSubresourceLayers{AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit), LayerCount: 1},
		ImageExtent:      vk.Extent3D{Width: 1, Height: 1, Depth: 1},
	}
	vk.CmdCopyImageToBuffer(cmd, vi.image, vk.ImageLayoutTransferSrcOptimal, d.stagingBuffer, 1, []vk.BufferImageCopy{region})
	if err := d.submitAndWait(cmd); err != nil {
		return 0, 0, 0, err
	}

	px := (*[4]byte)(d.stagingMapped)
	return px[0], px[1], px[2], nil
}

func (d *vulkanDevice) release(img gpuImage) {
	d.mu.Lock()
	vi, ok := d.images[img]
	if ok {
		delete(d.images, img)
	}
	d.mu.Unlock()
	if !ok {
		return
	}
	if vi.view != vk.NullImageView {
		vk.DestroyImageView(d.device, vi.view, nil)
	}
	vk.DestroyImage(d.device, vi.image, nil)
	if vi.memory != vk.NullDeviceMemory {
		vk.FreeMemory(d.device, vi.memory, nil)
	}
}

func (d *vulkanDevice) beginOneShot() (vk.CommandBuffer, error) {
	allocInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        d.commandPool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	}
	buffers := make([]vk.CommandBuffer, 1)
	if res := vk.AllocateCommandBuffers(d.device, &allocInfo, buffers); res != vk.Success {
		return nil, fmt.Errorf("vkAllocateCommandBuffers failed: %d", res)
	}
	cmd := buffers[0]
	beginInfo := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}
	if res := vk.BeginCommandBuffer(cmd, &beginInfo); res != vk.Success {
		return nil, fmt.Errorf("vkBeginCommandBuffer failed: %d", res)
	}
	return cmd, nil
}

// submitAndWait submits cmd and waits up to a 100ms budget for the
// fence to signal before giving up on the readback.
func (d *vulkanDevice) submitAndWait(cmd vk.CommandBuffer) error {
	if res := vk.EndCommandBuffer(cmd); res != vk.Success {
		return fmt.Errorf("vkEndCommandBuffer failed: %d", res)
	}
	vk.ResetFences(d.device, 1, []vk.Fence{d.fence})
	submit := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    []vk.CommandBuffer{cmd},
	}
	if res := vk.QueueSubmit(d.queue, 1, []vk.SubmitInfo{submit}, d.fence); res != vk.Success {
		return fmt.Errorf("vkQueueSubmit failed: %d", res)
	}
	const readbackBudgetNanos = uint64(100_000_000)
	if res := vk.WaitForFences(d.device, 1, []vk.Fence{d.fence}, vk.True, readbackBudgetNanos); res != vk.Success {
		return fmt.Errorf("vkWaitForFences timed out: %d", res)
	}
	vk.FreeCommandBuffers(d.device, d.commandPool, 1, []vk.CommandBuffer{cmd})
	return nil
}

func (d *vulkanDevice) destroyCommandPool() {
	if d.commandPool != vk.NullCommandPool {
		vk.DestroyCommandPool(d.device, d.commandPool, nil)
	}
}
func (d *vulkanDevice) destroyDevice() {
	if d.device != vk.NullDevice {
		vk.DestroyDevice(d.device, nil)
	}
}
func (d *vulkanDevice) destroyInstance() {
	if d.instance != vk.NullInstance {
		vk.DestroyInstance(d.instance, nil)
	}
}

// Close releases every live image and the staging buffer, then tears
// down the device in reverse order of bring-up.
func (d *vulkanDevice) Close() {
	d.mu.Lock()
	handles := make([]gpuImage, 0, len(d.images))
	for h := range d.images {
		handles = append(handles, h)
	}
	d.mu.Unlock()
	for _, h := range handles {
		d.release(h)
	}
	if d.stagingBuffer != vk.NullBuffer {
		vk.UnmapMemory(d.device, d.stagingMemory)
		vk.DestroyBuffer(d.device, d.stagingBuffer, nil)
		vk.FreeMemory(d.device, d.stagingMemory, nil)
	}
	if d.fence != vk.NullFence {
		vk.DestroyFence(d.device, d.fence, nil)
	}
	d.destroyCommandPool()
	d.destroyDevice()
	d.destroyInstance()
}

func safeCString(s string) string {
	return s + "\x00"
}

func newGPUDevice() (gpuDevice, func(), error) {
	d, err := newVulkanDevice()
	if err != nil {
		return nil, nil, err
	}
	return d, d.Close, nil
}
