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
)

// StorageImage is a device-owned image with a VkImageView, suitable for
// binding as a compute shader storage-image input or output (spec.md
// section 4.F: "two storage-image bindings"). Unlike ExternalImage it is
// allocated directly rather than imported, and unlike LinearImage its
// memory is optionally host-visible so tone-mapped output can be read
// back without a second blit.
type StorageImage struct {
	ctx    *Context
	img    C.VkImage
	mem    C.VkDeviceMemory
	view   C.VkImageView
	format C.VkFormat
	width  uint32
	height uint32
	hostVisible bool
}

// View returns the raw VkImageView handle as a uintptr, the calling
// convention internal/tonemap.Dispatch uses to stay free of a direct
// dependency on this package's cgo types.
func (s *StorageImage) View() uintptr { return uintptr(unsafe.Pointer(s.view)) }

// vkFormatRGBA16 / vkFormatRGBA8 are the two formats the tone-map kernel
// binds, per spec.md section 4.F ("rgba16, read-only" / "rgba8, write-only").
const (
	vkFormatRGBA16 = C.VK_FORMAT_R16G16B16A16_UNORM
	vkFormatRGBA8  = C.VK_FORMAT_R8G8B8A8_UNORM
)

// NewStorageImage allocates a width x height image in the given format
// with storage-image and transfer-src usage, optionally in host-visible
// memory so Read can map it directly, and creates its VkImageView.
func (c *Context) NewStorageImage(width, height uint32, format C.VkFormat, hostVisible bool) (*StorageImage, error) {
	sc := &scope{}
	defer sc.release()

	imgInfo := C.VkImageCreateInfo{
		sType:         C.VK_STRUCTURE_TYPE_IMAGE_CREATE_INFO,
		imageType:     C.VK_IMAGE_TYPE_2D,
		format:        format,
		extent:        C.VkExtent3D{width: C.uint32_t(width), height: C.uint32_t(height), depth: 1},
		mipLevels:     1,
		arrayLayers:   1,
		samples:       C.VK_SAMPLE_COUNT_1_BIT,
		tiling:        C.VK_IMAGE_TILING_OPTIMAL,
		usage:         C.VK_IMAGE_USAGE_STORAGE_BIT | C.VK_IMAGE_USAGE_TRANSFER_SRC_BIT | C.VK_IMAGE_USAGE_TRANSFER_DST_BIT,
		initialLayout: C.VK_IMAGE_LAYOUT_UNDEFINED,
		sharingMode:   C.VK_SHARING_MODE_EXCLUSIVE,
	}
	if hostVisible {
		imgInfo.tiling = C.VK_IMAGE_TILING_LINEAR
		imgInfo.initialLayout = C.VK_IMAGE_LAYOUT_PREINITIALIZED
	}
	var img C.VkImage
	if err := checkResult(C.vkCreateImage(c.dev, &imgInfo, nil, &img), nil); err != nil {
		return nil, fmt.Errorf("vkcompute: create storage image: %w", diag.ErrImport)
	}
	sc.defer_(func() { C.vkDestroyImage(c.dev, img, nil) })

	var req C.VkMemoryRequirements
	C.vkGetImageMemoryRequirements(c.dev, img, &req)
	want := C.VkMemoryPropertyFlags(C.VK_MEMORY_PROPERTY_DEVICE_LOCAL_BIT)
	if hostVisible {
		want = C.VK_MEMORY_PROPERTY_HOST_VISIBLE_BIT | C.VK_MEMORY_PROPERTY_HOST_COHERENT_BIT
	}
	typ := c.selectMemoryType(uint32(req.memoryTypeBits), want)
	if typ < 0 {
		return nil, fmt.Errorf("vkcompute: no suitable memory type for storage image: %w", diag.ErrImport)
	}
	allocInfo := C.VkMemoryAllocateInfo{
		sType:           C.VK_STRUCTURE_TYPE_MEMORY_ALLOCATE_INFO,
		allocationSize:  req.size,
		memoryTypeIndex: C.uint32_t(typ),
	}
	var mem C.VkDeviceMemory
	if err := checkResult(C.vkAllocateMemory(c.dev, &allocInfo, nil, &mem), nil); err != nil {
		return nil, fmt.Errorf("vkcompute: allocate storage image memory: %w", diag.ErrImport)
	}
	sc.defer_(func() { C.vkFreeMemory(c.dev, mem, nil) })
	if err := checkResult(C.vkBindImageMemory(c.dev, img, mem, 0), nil); err != nil {
		return nil, fmt.Errorf("vkcompute: bind storage image memory: %w", diag.ErrImport)
	}

	viewInfo := C.VkImageViewCreateInfo{
		sType:    C.VK_STRUCTURE_TYPE_IMAGE_VIEW_CREATE_INFO,
		image:    img,
		viewType: C.VK_IMAGE_VIEW_TYPE_2D,
		format:   format,
		subresourceRange: C.VkImageSubresourceRange{
			aspectMask: C.VK_IMAGE_ASPECT_COLOR_BIT,
			levelCount: 1,
			layerCount: 1,
		},
	}
	var view C.VkImageView
	if err := checkResult(C.vkCreateImageView(c.dev, &viewInfo, nil, &view), nil); err != nil {
		return nil, fmt.Errorf("vkcompute: create storage image view: %w", diag.ErrImport)
	}

	sc.commit()
	return &StorageImage{ctx: c, img: img, mem: mem, view: view, format: format, width: width, height: height, hostVisible: hostVisible}, nil
}

// TransitionForCompute records and submits a one-shot layout transition
// to VK_IMAGE_LAYOUT_GENERAL, the layout the tone-map kernel's storage
// image bindings require.
func (s *StorageImage) TransitionForCompute(from C.VkImageLayout) error {
	cbInfo := C.VkCommandBufferAllocateInfo{
		sType:              C.VK_STRUCTURE_TYPE_COMMAND_BUFFER_ALLOCATE_INFO,
		commandPool:        s.ctx.pool,
		level:              C.VK_COMMAND_BUFFER_LEVEL_PRIMARY,
		commandBufferCount: 1,
	}
	var cb C.VkCommandBuffer
	if err := checkResult(C.vkAllocateCommandBuffers(s.ctx.dev, &cbInfo, &cb), nil); err != nil {
		return fmt.Errorf("vkcompute: allocate transition command buffer: %w", diag.ErrGPUExecution)
	}
	defer C.vkFreeCommandBuffers(s.ctx.dev, s.ctx.pool, 1, &cb)

	beginInfo := C.VkCommandBufferBeginInfo{sType: C.VK_STRUCTURE_TYPE_COMMAND_BUFFER_BEGIN_INFO, flags: C.VK_COMMAND_BUFFER_USAGE_ONE_TIME_SUBMIT_BIT}
	C.vkBeginCommandBuffer(cb, &beginInfo)
	barrier := C.VkImageMemoryBarrier{
		sType:               C.VK_STRUCTURE_TYPE_IMAGE_MEMORY_BARRIER,
		dstAccessMask:       C.VK_ACCESS_SHADER_READ_BIT | C.VK_ACCESS_SHADER_WRITE_BIT,
		oldLayout:           from,
		newLayout:           C.VK_IMAGE_LAYOUT_GENERAL,
		srcQueueFamilyIndex: C.VK_QUEUE_FAMILY_IGNORED,
		dstQueueFamilyIndex: C.VK_QUEUE_FAMILY_IGNORED,
		image:               s.img,
		subresourceRange:    C.VkImageSubresourceRange{aspectMask: C.VK_IMAGE_ASPECT_COLOR_BIT, levelCount: 1, layerCount: 1},
	}
	C.vkCmdPipelineBarrier(cb, C.VK_PIPELINE_STAGE_TOP_OF_PIPE_BIT, C.VK_PIPELINE_STAGE_COMPUTE_SHADER_BIT,
		0, 0, nil, 0, nil, 1, &barrier)
	C.vkEndCommandBuffer(cb)

	submit := C.VkSubmitInfo{sType: C.VK_STRUCTURE_TYPE_SUBMIT_INFO, commandBufferCount: 1, pCommandBuffers: &cb}
	if err := checkResult(C.vkQueueSubmit(s.ctx.queue, 1, &submit, nil), nil); err != nil {
		return fmt.Errorf("vkcompute: submit transition: %w", diag.ErrGPUExecution)
	}
	return checkResult(C.vkQueueWaitIdle(s.ctx.queue), nil)
}

// Read maps host-visible storage-image memory and returns a tightly
// packed copy of its raster, honoring the row pitch Vulkan reports.
// Panics if the image was not allocated with hostVisible=true.
func (s *StorageImage) Read(bytesPerPixel int) ([]byte, error) {
	if !s.hostVisible {
		panic("vkcompute: Read called on a device-local StorageImage")
	}
	var ptr unsafe.Pointer
	if err := checkResult(C.vkMapMemory(s.ctx.dev, s.mem, 0, C.VK_WHOLE_SIZE, 0, &ptr), nil); err != nil {
		return nil, fmt.Errorf("vkcompute: map storage image: %w", diag.ErrGPUExecution)
	}
	defer C.vkUnmapMemory(s.ctx.dev, s.mem)

	var layout C.VkSubresourceLayout
	sub := C.VkImageSubresource{aspectMask: C.VK_IMAGE_ASPECT_COLOR_BIT}
	C.vkGetImageSubresourceLayout(s.ctx.dev, s.img, &sub, &layout)

	rowPitch := int(layout.rowPitch)
	offset := int(layout.offset)
	mapped := unsafe.Slice((*byte)(ptr), offset+rowPitch*int(s.height))
	rowBytes := int(s.width) * bytesPerPixel
	out := make([]byte, rowBytes*int(s.height))
	for y := 0; y < int(s.height); y++ {
		src := mapped[offset+y*rowPitch : offset+y*rowPitch+rowBytes]
		copy(out[y*rowBytes:(y+1)*rowBytes], src)
	}
	return out, nil
}

// Destroy releases the view, image and memory.
func (s *StorageImage) Destroy() {
	if s == nil {
		return
	}
	C.vkDestroyImageView(s.ctx.dev, s.view, nil)
	C.vkDestroyImage(s.ctx.dev, s.img, nil)
	C.vkFreeMemory(s.ctx.dev, s.mem, nil)
	*s = StorageImage{}
}

// FormatRGBA16 and FormatRGBA8 expose the two kernel binding formats to
// callers outside the package (internal/capture) without leaking cgo types.
var (
	FormatRGBA16 = vkFormatRGBA16
	FormatRGBA8  = vkFormatRGBA8
)
