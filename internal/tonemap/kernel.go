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

// pushConstants mirrors the {exposure, mode} block from spec.md section 3.
type pushConstants struct {
	Exposure float32
	Mode     uint32
}

// Kernel owns the descriptor-set layout, pipeline layout, compute
// pipeline and single descriptor pool described in spec.md section 3
// ("tone-mapping pipeline object"). It is created lazily by the
// orchestrator only when the source format is ABGR16161616.
type Kernel struct {
	dev      C.VkDevice
	setLay   C.VkDescriptorSetLayout
	pipeLay  C.VkPipelineLayout
	pipeline C.VkPipeline
	pool     C.VkDescriptorPool
	set      C.VkDescriptorSet
	shaderMod C.VkShaderModule
}

// spirvMagicNumber and minSPIRVHeaderBytes bound what NewKernel will
// accept as a shader module: a SPIR-V binary's first word is always the
// magic number, followed by version/generator/bound/schema words (five
// words, 20 bytes) before any actual instruction. This is the minimum
// a real compiled module can be; it does not prove the blob is valid,
// only that it isn't the embedded placeholder.
const (
	spirvMagicNumber    = 0x07230203
	minSPIRVHeaderBytes = 20
)

// errShaderUnavailable is returned by NewKernel when the embedded
// shader blob is not a compiled SPIR-V module. See DESIGN.md's
// "internal/tonemap" entry: this build environment has no SPIR-V
// compiler, so the GPU tone-mapping dispatch path is scoped out rather
// than shipped with fabricated shader bytes.
var errShaderUnavailable = fmt.Errorf("tonemap: embedded shader is not a compiled SPIR-V module, GPU dispatch is unavailable in this build: %w", diag.ErrGPUExecution)

// validateShaderBlob rejects anything that cannot possibly be a
// compiled SPIR-V module: too short for the fixed header, or missing
// the magic number. It cannot confirm the blob IS valid — only that it
// isn't obviously a stub.
func validateShaderBlob(b []byte) error {
	if len(b) < minSPIRVHeaderBytes {
		return errShaderUnavailable
	}
	magic := uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
	if magic != spirvMagicNumber {
		return errShaderUnavailable
	}
	return nil
}

// NewKernel builds the compute pipeline against dev (a live VkDevice
// handle, passed as a raw uintptr so this package has no import-cycle
// dependency on vkcompute). The descriptor-set layout has the two
// storage-image bindings spec.md section 4.F names: binding 0 read-only
// rgba16 input, binding 1 write-only rgba8 output.
func NewKernel(devHandle uintptr) (*Kernel, error) {
	if err := validateShaderBlob(tonemapSPV); err != nil {
		return nil, err
	}

	dev := C.VkDevice(unsafe.Pointer(devHandle))

	modInfo := C.VkShaderModuleCreateInfo{
		sType:    C.VK_STRUCTURE_TYPE_SHADER_MODULE_CREATE_INFO,
		codeSize: C.size_t(len(tonemapSPV)),
		pCode:    (*C.uint32_t)(unsafe.Pointer(&tonemapSPV[0])),
	}
	var shaderMod C.VkShaderModule
	if err := vkCheck(C.vkCreateShaderModule(dev, &modInfo, nil, &shaderMod)); err != nil {
		return nil, fmt.Errorf("tonemap: create shader module: %w", diag.ErrGPUExecution)
	}

	binds := [2]C.VkDescriptorSetLayoutBinding{
		{binding: 0, descriptorType: C.VK_DESCRIPTOR_TYPE_STORAGE_IMAGE, descriptorCount: 1, stageFlags: C.VK_SHADER_STAGE_COMPUTE_BIT},
		{binding: 1, descriptorType: C.VK_DESCRIPTOR_TYPE_STORAGE_IMAGE, descriptorCount: 1, stageFlags: C.VK_SHADER_STAGE_COMPUTE_BIT},
	}
	setLayInfo := C.VkDescriptorSetLayoutCreateInfo{
		sType:        C.VK_STRUCTURE_TYPE_DESCRIPTOR_SET_LAYOUT_CREATE_INFO,
		bindingCount: 2,
		pBindings:    &binds[0],
	}
	var setLay C.VkDescriptorSetLayout
	if err := vkCheck(C.vkCreateDescriptorSetLayout(dev, &setLayInfo, nil, &setLay)); err != nil {
		C.vkDestroyShaderModule(dev, shaderMod, nil)
		return nil, fmt.Errorf("tonemap: create descriptor set layout: %w", diag.ErrGPUExecution)
	}

	pcRange := C.VkPushConstantRange{
		stageFlags: C.VK_SHADER_STAGE_COMPUTE_BIT,
		offset:     0,
		size:       C.uint32_t(unsafe.Sizeof(pushConstants{})),
	}
	pipeLayInfo := C.VkPipelineLayoutCreateInfo{
		sType:                  C.VK_STRUCTURE_TYPE_PIPELINE_LAYOUT_CREATE_INFO,
		setLayoutCount:         1,
		pSetLayouts:            &setLay,
		pushConstantRangeCount: 1,
		pPushConstantRanges:    &pcRange,
	}
	var pipeLay C.VkPipelineLayout
	if err := vkCheck(C.vkCreatePipelineLayout(dev, &pipeLayInfo, nil, &pipeLay)); err != nil {
		C.vkDestroyDescriptorSetLayout(dev, setLay, nil)
		C.vkDestroyShaderModule(dev, shaderMod, nil)
		return nil, fmt.Errorf("tonemap: create pipeline layout: %w", diag.ErrGPUExecution)
	}

	entry := C.CString("main")
	defer C.free(unsafe.Pointer(entry))
	stage := C.VkPipelineShaderStageCreateInfo{
		sType:  C.VK_STRUCTURE_TYPE_PIPELINE_SHADER_STAGE_CREATE_INFO,
		stage:  C.VK_SHADER_STAGE_COMPUTE_BIT,
		module: shaderMod,
		pName:  entry,
	}
	compInfo := C.VkComputePipelineCreateInfo{
		sType:  C.VK_STRUCTURE_TYPE_COMPUTE_PIPELINE_CREATE_INFO,
		stage:  stage,
		layout: pipeLay,
	}
	var pipe C.VkPipeline
	if err := vkCheck(C.vkCreateComputePipelines(dev, nil, 1, &compInfo, nil, &pipe)); err != nil {
		C.vkDestroyPipelineLayout(dev, pipeLay, nil)
		C.vkDestroyDescriptorSetLayout(dev, setLay, nil)
		C.vkDestroyShaderModule(dev, shaderMod, nil)
		return nil, fmt.Errorf("tonemap: create compute pipeline: %w", diag.ErrGPUExecution)
	}

	poolSize := C.VkDescriptorPoolSize{typ: C.VK_DESCRIPTOR_TYPE_STORAGE_IMAGE, descriptorCount: 2}
	poolInfo := C.VkDescriptorPoolCreateInfo{
		sType:         C.VK_STRUCTURE_TYPE_DESCRIPTOR_POOL_CREATE_INFO,
		maxSets:       1,
		poolSizeCount: 1,
		pPoolSizes:    &poolSize,
	}
	var pool C.VkDescriptorPool
	if err := vkCheck(C.vkCreateDescriptorPool(dev, &poolInfo, nil, &pool)); err != nil {
		C.vkDestroyPipeline(dev, pipe, nil)
		C.vkDestroyPipelineLayout(dev, pipeLay, nil)
		C.vkDestroyDescriptorSetLayout(dev, setLay, nil)
		C.vkDestroyShaderModule(dev, shaderMod, nil)
		return nil, fmt.Errorf("tonemap: create descriptor pool: %w", diag.ErrGPUExecution)
	}

	allocInfo := C.VkDescriptorSetAllocateInfo{
		sType:              C.VK_STRUCTURE_TYPE_DESCRIPTOR_SET_ALLOCATE_INFO,
		descriptorPool:     pool,
		descriptorSetCount: 1,
		pSetLayouts:        &setLay,
	}
	var set C.VkDescriptorSet
	if err := vkCheck(C.vkAllocateDescriptorSets(dev, &allocInfo, &set)); err != nil {
		C.vkDestroyDescriptorPool(dev, pool, nil)
		C.vkDestroyPipeline(dev, pipe, nil)
		C.vkDestroyPipelineLayout(dev, pipeLay, nil)
		C.vkDestroyDescriptorSetLayout(dev, setLay, nil)
		C.vkDestroyShaderModule(dev, shaderMod, nil)
		return nil, fmt.Errorf("tonemap: allocate descriptor set: %w", diag.ErrGPUExecution)
	}

	return &Kernel{
		dev:       dev,
		setLay:    setLay,
		pipeLay:   pipeLay,
		pipeline:  pipe,
		pool:      pool,
		set:       set,
		shaderMod: shaderMod,
	}, nil
}

// workgroupCount returns ⌈extent/16⌉ on each axis, per spec.md section
// 4.F's "workgroup 16x16; dispatch ⌈w/16⌉x⌈h/16⌉".
func workgroupCount(width, height uint32) (x, y uint32) {
	x = (width + 15) / 16
	y = (height + 15) / 16
	return
}

// vkCheck is a minimal local result check; kernel.go only needs to
// distinguish success from failure, unlike vkcompute's full sentinel map.
func vkCheck(res C.VkResult) error {
	if res >= 0 {
		return nil
	}
	return fmt.Errorf("vulkan result %d", int(res))
}

// Destroy releases every Vulkan object the kernel owns, in reverse
// creation order.
func (k *Kernel) Destroy() {
	if k == nil {
		return
	}
	C.vkDestroyDescriptorPool(k.dev, k.pool, nil)
	C.vkDestroyPipeline(k.dev, k.pipeline, nil)
	C.vkDestroyPipelineLayout(k.dev, k.pipeLay, nil)
	C.vkDestroyDescriptorSetLayout(k.dev, k.setLay, nil)
	C.vkDestroyShaderModule(k.dev, k.shaderMod, nil)
	*k = Kernel{}
}
