package tonemap

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

// ImageView is the pair the kernel needs for each binding: a VkImageView
// handle (as a raw uintptr, to keep this package free of a vkcompute
// import cycle) and the extent it covers.
type ImageView struct {
	View   uintptr
	Width  uint32
	Height uint32
}

// Params is the tone-mapping invocation's {exposure, mode} pair.
type Params struct {
	Exposure float32
	Mode     Mode
}

// Dispatch records and submits the compute dispatch described in
// spec.md section 4.F: bind the pipeline and descriptor set, push
// {exposure, mode}, dispatch ⌈w/16⌉x⌈h/16⌉ workgroups, and wait for
// completion on queue. pool must come from the same device k was built
// against.
func (k *Kernel) Dispatch(queueHandle, poolHandle uintptr, in, out ImageView, p Params) error {
	queue := C.VkQueue(unsafe.Pointer(queueHandle))
	pool := C.VkCommandPool(unsafe.Pointer(poolHandle))

	imgInfos := [2]C.VkDescriptorImageInfo{
		{imageView: C.VkImageView(unsafe.Pointer(in.View)), imageLayout: C.VK_IMAGE_LAYOUT_GENERAL},
		{imageView: C.VkImageView(unsafe.Pointer(out.View)), imageLayout: C.VK_IMAGE_LAYOUT_GENERAL},
	}
	writes := [2]C.VkWriteDescriptorSet{
		{
			sType:           C.VK_STRUCTURE_TYPE_WRITE_DESCRIPTOR_SET,
			dstSet:          k.set,
			dstBinding:      0,
			descriptorCount: 1,
			descriptorType:  C.VK_DESCRIPTOR_TYPE_STORAGE_IMAGE,
			pImageInfo:      &imgInfos[0],
		},
		{
			sType:           C.VK_STRUCTURE_TYPE_WRITE_DESCRIPTOR_SET,
			dstSet:          k.set,
			dstBinding:      1,
			descriptorCount: 1,
			descriptorType:  C.VK_DESCRIPTOR_TYPE_STORAGE_IMAGE,
			pImageInfo:      &imgInfos[1],
		},
	}
	C.vkUpdateDescriptorSets(k.dev, 2, &writes[0], 0, nil)

	cbInfo := C.VkCommandBufferAllocateInfo{
		sType:              C.VK_STRUCTURE_TYPE_COMMAND_BUFFER_ALLOCATE_INFO,
		commandPool:        pool,
		level:              C.VK_COMMAND_BUFFER_LEVEL_PRIMARY,
		commandBufferCount: 1,
	}
	var cb C.VkCommandBuffer
	if err := vkCheck(C.vkAllocateCommandBuffers(k.dev, &cbInfo, &cb)); err != nil {
		return fmt.Errorf("tonemap: allocate dispatch command buffer: %w", diag.ErrGPUExecution)
	}
	defer C.vkFreeCommandBuffers(k.dev, pool, 1, &cb)

	beginInfo := C.VkCommandBufferBeginInfo{
		sType: C.VK_STRUCTURE_TYPE_COMMAND_BUFFER_BEGIN_INFO,
		flags: C.VK_COMMAND_BUFFER_USAGE_ONE_TIME_SUBMIT_BIT,
	}
	C.vkBeginCommandBuffer(cb, &beginInfo)
	C.vkCmdBindPipeline(cb, C.VK_PIPELINE_BIND_POINT_COMPUTE, k.pipeline)
	C.vkCmdBindDescriptorSets(cb, C.VK_PIPELINE_BIND_POINT_COMPUTE, k.pipeLay, 0, 1, &k.set, 0, nil)

	pc := pushConstants{Exposure: p.Exposure, Mode: uint32(p.Mode)}
	C.vkCmdPushConstants(cb, k.pipeLay, C.VK_SHADER_STAGE_COMPUTE_BIT, 0,
		C.uint32_t(unsafe.Sizeof(pc)), unsafe.Pointer(&pc))

	gx, gy := workgroupCount(out.Width, out.Height)
	C.vkCmdDispatch(cb, C.uint32_t(gx), C.uint32_t(gy), 1)
	C.vkEndCommandBuffer(cb)

	submit := C.VkSubmitInfo{
		sType:              C.VK_STRUCTURE_TYPE_SUBMIT_INFO,
		commandBufferCount: 1,
		pCommandBuffers:    &cb,
	}
	if err := vkCheck(C.vkQueueSubmit(queue, 1, &submit, nil)); err != nil {
		return fmt.Errorf("tonemap: submit dispatch: %w", diag.ErrGPUExecution)
	}
	if err := vkCheck(C.vkQueueWaitIdle(queue)); err != nil {
		return fmt.Errorf("tonemap: wait for dispatch: %w", diag.ErrGPUExecution)
	}
	return nil
}
