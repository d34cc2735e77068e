package vkcompute

/*
#include <stdlib.h>
#include <vulkan/vulkan.h>
*/
import "C"

import (
	"fmt"
	"unsafe"

	"github.com/thmasq/kms-screenshot/internal/diag"
	"github.com/thmasq/kms-screenshot/internal/kmsdrm"
)

// ExternalImage wraps a VkImage bound to memory imported from a dma-buf
// fd via VK_EXT_external_memory_dma_buf, carrying the tiled layout the
// kernel scanout buffer uses (spec.md section 4.E step 3). It is only
// ever read from as the source of BlitLinear's copy — its tiling
// modifier makes it unsuitable to bind directly to a shader, which is
// why BlitLinear (step 5) always runs before any further processing.
type ExternalImage struct {
	ctx    *Context
	img    C.VkImage
	mem    C.VkDeviceMemory
	format C.VkFormat
	width  uint32
	height uint32
}

// LinearImage is the destination of BlitLinear: a host-visible,
// linear-tiled image that Read can map directly, and — since it also
// carries VK_IMAGE_USAGE_STORAGE_BIT — that the tone-map kernel can bind
// as its read-only input once BlitLinear has left it in
// VK_IMAGE_LAYOUT_GENERAL (spec.md section 4.E steps 5-6).
type LinearImage struct {
	ctx    *Context
	img    C.VkImage
	mem    C.VkDeviceMemory
	view   C.VkImageView
	format C.VkFormat
	width  uint32
	height uint32
	layout C.VkSubresourceLayout
}

// convFormat maps the DRM fourcc codes internal/pixfmt understands to
// the corresponding Vulkan formats. Only the formats spec.md section 4.A
// lists are supported; anything else fails at import time.
func convFormat(fourcc uint32) (C.VkFormat, error) {
	switch fourcc {
	case 0x34325258: // XRGB8888
		return C.VK_FORMAT_B8G8R8A8_UNORM, nil
	case 0x34325241: // ARGB8888
		return C.VK_FORMAT_B8G8R8A8_UNORM, nil
	case 0x34324258: // XBGR8888
		return C.VK_FORMAT_R8G8B8A8_UNORM, nil
	case 0x34324241: // ABGR8888
		return C.VK_FORMAT_R8G8B8A8_UNORM, nil
	case 0x38344241: // ABGR16161616
		return C.VK_FORMAT_R16G16B16A16_UNORM, nil
	default:
		return 0, fmt.Errorf("vkcompute: unsupported fourcc %#x: %w", fourcc, diag.ErrImport)
	}
}

// ImportScanout imports a scanout buffer's dma-buf fd as an external
// image using the explicit format-modifier chain described in spec.md
// section 4.E step 3: VkImageDrmFormatModifierExplicitCreateInfoEXT
// carries the plane's {offset, pitch} as a single VkSubresourceLayout,
// and VkImportMemoryFdInfoKHR imports the memory backing it without
// copying.
//
// fd is consumed: ownership transfers to the created VkDeviceMemory on
// success, and fd is closed by the caller on failure (the caller already
// owns it from kmsdrm.PrimeHandleToFD).
func (c *Context) ImportScanout(fd int, layout kmsdrm.PlaneLayout, width, height, fourcc uint32, modifier uint64) (*ExternalImage, error) {
	format, err := convFormat(fourcc)
	if err != nil {
		return nil, err
	}

	subLayout := C.VkSubresourceLayout{
		offset:   C.VkDeviceSize(layout.Offset),
		rowPitch: C.VkDeviceSize(layout.Pitch),
	}
	modInfo := C.VkImageDrmFormatModifierExplicitCreateInfoEXT{
		sType:          C.VK_STRUCTURE_TYPE_IMAGE_DRM_FORMAT_MODIFIER_EXPLICIT_CREATE_INFO_EXT,
		drmFormatModifier:     C.uint64_t(modifier),
		drmFormatModifierPlaneCount: 1,
		pPlaneLayouts:  &subLayout,
	}
	extInfo := C.VkExternalMemoryImageCreateInfo{
		sType:      C.VK_STRUCTURE_TYPE_EXTERNAL_MEMORY_IMAGE_CREATE_INFO,
		pNext:      unsafe.Pointer(&modInfo),
		handleTypes: C.VK_EXTERNAL_MEMORY_HANDLE_TYPE_DMA_BUF_BIT_EXT,
	}
	imgInfo := C.VkImageCreateInfo{
		sType:       C.VK_STRUCTURE_TYPE_IMAGE_CREATE_INFO,
		pNext:       unsafe.Pointer(&extInfo),
		imageType:   C.VK_IMAGE_TYPE_2D,
		format:      format,
		extent:      C.VkExtent3D{width: C.uint32_t(width), height: C.uint32_t(height), depth: 1},
		mipLevels:   1,
		arrayLayers: 1,
		samples:     C.VK_SAMPLE_COUNT_1_BIT,
		tiling:      C.VK_IMAGE_TILING_DRM_FORMAT_MODIFIER_EXT,
		usage:       C.VK_IMAGE_USAGE_TRANSFER_SRC_BIT,
		sharingMode: C.VK_SHARING_MODE_EXCLUSIVE,
	}

	sc := &scope{}
	defer sc.release()

	var img C.VkImage
	if err := checkResult(C.vkCreateImage(c.dev, &imgInfo, nil, &img), nil); err != nil {
		return nil, fmt.Errorf("vkcompute: create external image: %w", diag.ErrImport)
	}
	sc.defer_(func() { C.vkDestroyImage(c.dev, img, nil) })

	var req C.VkMemoryRequirements
	C.vkGetImageMemoryRequirements(c.dev, img, &req)
	typ := c.selectMemoryType(uint32(req.memoryTypeBits), C.VK_MEMORY_PROPERTY_DEVICE_LOCAL_BIT)
	if typ < 0 {
		return nil, fmt.Errorf("vkcompute: no device-local memory type for import: %w", diag.ErrImport)
	}

	importInfo := C.VkImportMemoryFdInfoKHR{
		sType:      C.VK_STRUCTURE_TYPE_IMPORT_MEMORY_FD_INFO_KHR,
		handleType: C.VK_EXTERNAL_MEMORY_HANDLE_TYPE_DMA_BUF_BIT_EXT,
		fd:         C.int(fd),
	}
	dedicated := C.VkMemoryDedicatedAllocateInfo{
		sType: C.VK_STRUCTURE_TYPE_MEMORY_DEDICATED_ALLOCATE_INFO,
		pNext: unsafe.Pointer(&importInfo),
		image: img,
	}
	allocInfo := C.VkMemoryAllocateInfo{
		sType:           C.VK_STRUCTURE_TYPE_MEMORY_ALLOCATE_INFO,
		pNext:           unsafe.Pointer(&dedicated),
		allocationSize:  req.size,
		memoryTypeIndex: C.uint32_t(typ),
	}
	var mem C.VkDeviceMemory
	if err := checkResult(C.vkAllocateMemory(c.dev, &allocInfo, nil, &mem), nil); err != nil {
		return nil, fmt.Errorf("vkcompute: import dmabuf memory: %w", diag.ErrImport)
	}
	sc.defer_(func() { C.vkFreeMemory(c.dev, mem, nil) })

	if err := checkResult(C.vkBindImageMemory(c.dev, img, mem, 0), nil); err != nil {
		return nil, fmt.Errorf("vkcompute: bind imported image memory: %w", diag.ErrImport)
	}

	sc.commit()
	return &ExternalImage{ctx: c, img: img, mem: mem, format: format, width: width, height: height}, nil
}

// Destroy releases the external image and its imported memory.
func (e *ExternalImage) Destroy() {
	if e == nil {
		return
	}
	C.vkDestroyImage(e.ctx.dev, e.img, nil)
	C.vkFreeMemory(e.ctx.dev, e.mem, nil)
	*e = ExternalImage{}
}

// BlitLinear allocates a host-visible, linear-tiled destination image of
// the same dimensions/format as src and records a one-shot command
// buffer that transitions both images and issues a vkCmdCopyImage from
// the tiled source to the linear destination (spec.md section 4.E step
// 5). The command buffer is submitted and waited on before returning, so
// the destination is immediately safe to Read.
func (c *Context) BlitLinear(src *ExternalImage) (*LinearImage, error) {
	sc := &scope{}
	defer sc.release()

	imgInfo := C.VkImageCreateInfo{
		sType:       C.VK_STRUCTURE_TYPE_IMAGE_CREATE_INFO,
		imageType:   C.VK_IMAGE_TYPE_2D,
		format:      src.format,
		extent:      C.VkExtent3D{width: C.uint32_t(src.width), height: C.uint32_t(src.height), depth: 1},
		mipLevels:   1,
		arrayLayers: 1,
		samples:     C.VK_SAMPLE_COUNT_1_BIT,
		tiling:      C.VK_IMAGE_TILING_LINEAR,
		usage:       C.VK_IMAGE_USAGE_TRANSFER_DST_BIT | C.VK_IMAGE_USAGE_STORAGE_BIT,
		initialLayout: C.VK_IMAGE_LAYOUT_PREINITIALIZED,
		sharingMode: C.VK_SHARING_MODE_EXCLUSIVE,
	}
	var dstImg C.VkImage
	if err := checkResult(C.vkCreateImage(c.dev, &imgInfo, nil, &dstImg), nil); err != nil {
		return nil, fmt.Errorf("vkcompute: create linear image: %w", diag.ErrImport)
	}
	sc.defer_(func() { C.vkDestroyImage(c.dev, dstImg, nil) })

	var req C.VkMemoryRequirements
	C.vkGetImageMemoryRequirements(c.dev, dstImg, &req)
	typ := c.selectMemoryType(uint32(req.memoryTypeBits),
		C.VK_MEMORY_PROPERTY_HOST_VISIBLE_BIT|C.VK_MEMORY_PROPERTY_HOST_COHERENT_BIT)
	if typ < 0 {
		return nil, fmt.Errorf("vkcompute: no host-visible memory type for blit destination: %w", diag.ErrImport)
	}
	allocInfo := C.VkMemoryAllocateInfo{
		sType:           C.VK_STRUCTURE_TYPE_MEMORY_ALLOCATE_INFO,
		allocationSize:  req.size,
		memoryTypeIndex: C.uint32_t(typ),
	}
	var dstMem C.VkDeviceMemory
	if err := checkResult(C.vkAllocateMemory(c.dev, &allocInfo, nil, &dstMem), nil); err != nil {
		return nil, fmt.Errorf("vkcompute: allocate blit destination memory: %w", diag.ErrImport)
	}
	sc.defer_(func() { C.vkFreeMemory(c.dev, dstMem, nil) })
	if err := checkResult(C.vkBindImageMemory(c.dev, dstImg, dstMem, 0), nil); err != nil {
		return nil, fmt.Errorf("vkcompute: bind blit destination memory: %w", diag.ErrImport)
	}

	cbInfo := C.VkCommandBufferAllocateInfo{
		sType:              C.VK_STRUCTURE_TYPE_COMMAND_BUFFER_ALLOCATE_INFO,
		commandPool:        c.pool,
		level:              C.VK_COMMAND_BUFFER_LEVEL_PRIMARY,
		commandBufferCount: 1,
	}
	var cb C.VkCommandBuffer
	if err := checkResult(C.vkAllocateCommandBuffers(c.dev, &cbInfo, &cb), nil); err != nil {
		return nil, fmt.Errorf("vkcompute: allocate command buffer: %w", diag.ErrGPUExecution)
	}
	sc.defer_(func() { C.vkFreeCommandBuffers(c.dev, c.pool, 1, &cb) })

	beginInfo := C.VkCommandBufferBeginInfo{
		sType: C.VK_STRUCTURE_TYPE_COMMAND_BUFFER_BEGIN_INFO,
		flags: C.VK_COMMAND_BUFFER_USAGE_ONE_TIME_SUBMIT_BIT,
	}
	C.vkBeginCommandBuffer(cb, &beginInfo)

	subres := C.VkImageSubresourceRange{
		aspectMask: C.VK_IMAGE_ASPECT_COLOR_BIT,
		levelCount: 1,
		layerCount: 1,
	}
	srcBarrier := C.VkImageMemoryBarrier{
		sType:               C.VK_STRUCTURE_TYPE_IMAGE_MEMORY_BARRIER,
		srcAccessMask:       0,
		dstAccessMask:       C.VK_ACCESS_TRANSFER_READ_BIT,
		oldLayout:           C.VK_IMAGE_LAYOUT_UNDEFINED,
		newLayout:           C.VK_IMAGE_LAYOUT_TRANSFER_SRC_OPTIMAL,
		srcQueueFamilyIndex: C.VK_QUEUE_FAMILY_IGNORED,
		dstQueueFamilyIndex: C.VK_QUEUE_FAMILY_IGNORED,
		image:               src.img,
		subresourceRange:     subres,
	}
	dstBarrier := C.VkImageMemoryBarrier{
		sType:               C.VK_STRUCTURE_TYPE_IMAGE_MEMORY_BARRIER,
		srcAccessMask:       0,
		dstAccessMask:       C.VK_ACCESS_TRANSFER_WRITE_BIT,
		oldLayout:           C.VK_IMAGE_LAYOUT_PREINITIALIZED,
		newLayout:           C.VK_IMAGE_LAYOUT_TRANSFER_DST_OPTIMAL,
		srcQueueFamilyIndex: C.VK_QUEUE_FAMILY_IGNORED,
		dstQueueFamilyIndex: C.VK_QUEUE_FAMILY_IGNORED,
		image:               dstImg,
		subresourceRange:     subres,
	}
	barriers := [2]C.VkImageMemoryBarrier{srcBarrier, dstBarrier}
	C.vkCmdPipelineBarrier(cb, C.VK_PIPELINE_STAGE_TOP_OF_PIPE_BIT, C.VK_PIPELINE_STAGE_TRANSFER_BIT,
		0, 0, nil, 0, nil, 2, &barriers[0])

	subLayers := C.VkImageSubresourceLayers{aspectMask: C.VK_IMAGE_ASPECT_COLOR_BIT, layerCount: 1}
	region := C.VkImageCopy{
		srcSubresource: subLayers,
		dstSubresource: subLayers,
		extent:         C.VkExtent3D{width: C.uint32_t(src.width), height: C.uint32_t(src.height), depth: 1},
	}
	C.vkCmdCopyImage(cb, src.img, C.VK_IMAGE_LAYOUT_TRANSFER_SRC_OPTIMAL,
		dstImg, C.VK_IMAGE_LAYOUT_TRANSFER_DST_OPTIMAL, 1, &region)

	// newLayout is GENERAL rather than a read-optimal layout because the
	// destination has two possible downstream readers with different
	// access needs: LinearImage.Read's host-side map (spec.md section
	// 4.E step 7) and, for the HDR format, the tone-map kernel's
	// storage-image binding (spec.md section 4.E step 6) — GENERAL is
	// the one layout both accept.
	readBarrier := C.VkImageMemoryBarrier{
		sType:               C.VK_STRUCTURE_TYPE_IMAGE_MEMORY_BARRIER,
		srcAccessMask:       C.VK_ACCESS_TRANSFER_WRITE_BIT,
		dstAccessMask:       C.VK_ACCESS_HOST_READ_BIT | C.VK_ACCESS_SHADER_READ_BIT,
		oldLayout:           C.VK_IMAGE_LAYOUT_TRANSFER_DST_OPTIMAL,
		newLayout:           C.VK_IMAGE_LAYOUT_GENERAL,
		srcQueueFamilyIndex: C.VK_QUEUE_FAMILY_IGNORED,
		dstQueueFamilyIndex: C.VK_QUEUE_FAMILY_IGNORED,
		image:               dstImg,
		subresourceRange:     subres,
	}
	C.vkCmdPipelineBarrier(cb, C.VK_PIPELINE_STAGE_TRANSFER_BIT, C.VK_PIPELINE_STAGE_HOST_BIT|C.VK_PIPELINE_STAGE_COMPUTE_SHADER_BIT,
		0, 0, nil, 0, nil, 1, &readBarrier)

	C.vkEndCommandBuffer(cb)

	submit := C.VkSubmitInfo{
		sType:              C.VK_STRUCTURE_TYPE_SUBMIT_INFO,
		commandBufferCount: 1,
		pCommandBuffers:    &cb,
	}
	if err := checkResult(C.vkQueueSubmit(c.queue, 1, &submit, nil), nil); err != nil {
		return nil, fmt.Errorf("vkcompute: submit blit: %w", diag.ErrGPUExecution)
	}
	if err := checkResult(C.vkQueueWaitIdle(c.queue), nil); err != nil {
		return nil, fmt.Errorf("vkcompute: wait for blit: %w", diag.ErrGPUExecution)
	}

	var layout C.VkSubresourceLayout
	imgSubres := C.VkImageSubresource{aspectMask: C.VK_IMAGE_ASPECT_COLOR_BIT}
	C.vkGetImageSubresourceLayout(c.dev, dstImg, &imgSubres, &layout)

	sc.commit()
	return &LinearImage{
		ctx:    c,
		img:    dstImg,
		mem:    dstMem,
		format: src.format,
		width:  src.width,
		height: src.height,
		layout: layout,
	}, nil
}

// Read maps the linear image's memory and copies its raster into a
// freshly allocated byte slice using the row pitch Vulkan reported
// (which may exceed width*bytesPerPixel), then unmaps (spec.md section
// 4.E step 7). The returned slice is tightly packed (no row padding).
func (l *LinearImage) Read(bytesPerPixel int) ([]byte, error) {
	var ptr unsafe.Pointer
	if err := checkResult(C.vkMapMemory(l.ctx.dev, l.mem, 0, C.VK_WHOLE_SIZE, 0, &ptr), nil); err != nil {
		return nil, fmt.Errorf("vkcompute: map linear image: %w", diag.ErrGPUExecution)
	}
	defer C.vkUnmapMemory(l.ctx.dev, l.mem)

	rowPitch := int(l.layout.rowPitch)
	offset := int(l.layout.offset)
	mapped := unsafe.Slice((*byte)(ptr), offset+rowPitch*int(l.height))

	tight := make([]byte, int(l.width)*bytesPerPixel*int(l.height))
	rowBytes := int(l.width) * bytesPerPixel
	for y := 0; y < int(l.height); y++ {
		src := mapped[offset+y*rowPitch : offset+y*rowPitch+rowBytes]
		copy(tight[y*rowBytes:(y+1)*rowBytes], src)
	}
	return tight, nil
}

// View lazily creates and returns this image's VkImageView, for binding
// as the tone-map kernel's read-only storage-image input (spec.md
// section 4.F binding 0) once the blit in BlitLinear has produced it.
func (l *LinearImage) View() (uintptr, error) {
	if l.view != nil {
		return uintptr(unsafe.Pointer(l.view)), nil
	}
	info := C.VkImageViewCreateInfo{
		sType:    C.VK_STRUCTURE_TYPE_IMAGE_VIEW_CREATE_INFO,
		image:    l.img,
		viewType: C.VK_IMAGE_VIEW_TYPE_2D,
		format:   l.format,
		subresourceRange: C.VkImageSubresourceRange{
			aspectMask: C.VK_IMAGE_ASPECT_COLOR_BIT,
			levelCount: 1,
			layerCount: 1,
		},
	}
	if err := checkResult(C.vkCreateImageView(l.ctx.dev, &info, nil, &l.view), nil); err != nil {
		return 0, fmt.Errorf("vkcompute: create linear image view: %w", diag.ErrImport)
	}
	return uintptr(unsafe.Pointer(l.view)), nil
}

// Destroy releases the linear image, its view (if created) and memory.
func (l *LinearImage) Destroy() {
	if l == nil {
		return
	}
	if l.view != nil {
		C.vkDestroyImageView(l.ctx.dev, l.view, nil)
	}
	C.vkDestroyImage(l.ctx.dev, l.img, nil)
	C.vkFreeMemory(l.ctx.dev, l.mem, nil)
	*l = LinearImage{}
}
