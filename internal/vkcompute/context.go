package vkcompute

/*
#include <stdlib.h>
#include <vulkan/vulkan.h>
*/
import "C"

import "unsafe"

// requiredQueueFlags resolves the Design Note in spec.md section 9: the
// original sample only required GRAPHICS|TRANSFER, but the tone-mapping
// dispatch in internal/tonemap needs COMPUTE from the same queue the
// blit runs on, so the family search below requires all three.
const requiredQueueFlags = C.VK_QUEUE_GRAPHICS_BIT | C.VK_QUEUE_TRANSFER_BIT | C.VK_QUEUE_COMPUTE_BIT

// requiredInstanceExtensions are the extensions spec.md section 4.E
// step 1 requires so external-memory capability queries and the
// physical-device-properties-2 structure chain (used to probe format
// modifiers) are available.
var requiredInstanceExtensions = []string{
	"VK_KHR_get_physical_device_properties2",
	"VK_KHR_external_memory_capabilities",
}

// requiredDeviceExtensions are the three extensions spec.md section 4.E
// step 1 names: importing a dma-buf fd as device memory, tagging that
// import as a dma-buf specifically, and describing the scanout's
// explicit format-modifier plane layout. ImportScanout's
// VkImageDrmFormatModifierExplicitCreateInfoEXT/
// VK_IMAGE_TILING_DRM_FORMAT_MODIFIER_EXT chain (image.go) depends on
// the third of these being enabled.
var requiredDeviceExtensions = []string{
	"VK_KHR_external_memory_fd",
	"VK_EXT_external_memory_dma_buf",
	"VK_EXT_image_drm_format_modifier",
}

// Context holds the Vulkan objects shared by every import/blit/dispatch
// in a single capture: one instance, one physical device, one logical
// device, one queue, and one command pool. A Context is built once per
// process run and released when the capture finishes, mirroring
// spec.md section 3's "Context" data model entry.
type Context struct {
	inst   C.VkInstance
	pdev   C.VkPhysicalDevice
	dev    C.VkDevice
	queue  C.VkQueue
	qfam   uint32
	pool   C.VkCommandPool
	mprop  C.VkPhysicalDeviceMemoryProperties
}

// NewContext initializes the instance, selects a physical device whose
// queue family satisfies requiredQueueFlags, creates the logical device
// and a command pool bound to that family (spec.md section 4.E step 1).
func NewContext() (*Context, error) {
	sc := &scope{}
	defer sc.release()

	instExtNames, freeInstExtNames := cStringArray(requiredInstanceExtensions)
	defer freeInstExtNames()

	var inst C.VkInstance
	appInfo := C.VkApplicationInfo{
		sType:      C.VK_STRUCTURE_TYPE_APPLICATION_INFO,
		apiVersion: C.VK_API_VERSION_1_2,
	}
	instInfo := C.VkInstanceCreateInfo{
		sType:                   C.VK_STRUCTURE_TYPE_INSTANCE_CREATE_INFO,
		pApplicationInfo:        &appInfo,
		enabledExtensionCount:   C.uint32_t(len(instExtNames)),
		ppEnabledExtensionNames: &instExtNames[0],
	}
	if err := checkResult(C.vkCreateInstance(&instInfo, nil, &inst), errInitFailed); err != nil {
		return nil, err
	}
	sc.defer_(func() { C.vkDestroyInstance(inst, nil) })

	pdev, qfam, err := selectPhysicalDevice(inst)
	if err != nil {
		return nil, err
	}

	quePrio := C.float(1.0)
	queInfo := C.VkDeviceQueueCreateInfo{
		sType:            C.VK_STRUCTURE_TYPE_DEVICE_QUEUE_CREATE_INFO,
		queueFamilyIndex: C.uint32_t(qfam),
		queueCount:       1,
		pQueuePriorities: &quePrio,
	}
	devExtNames, freeDevExtNames := cStringArray(requiredDeviceExtensions)
	defer freeDevExtNames()
	devInfo := C.VkDeviceCreateInfo{
		sType:                   C.VK_STRUCTURE_TYPE_DEVICE_CREATE_INFO,
		queueCreateInfoCount:    1,
		pQueueCreateInfos:       &queInfo,
		enabledExtensionCount:   C.uint32_t(len(devExtNames)),
		ppEnabledExtensionNames: &devExtNames[0],
	}
	var dev C.VkDevice
	if err := checkResult(C.vkCreateDevice(pdev, &devInfo, nil, &dev), errInitFailed); err != nil {
		return nil, err
	}
	sc.defer_(func() { C.vkDestroyDevice(dev, nil) })

	var queue C.VkQueue
	C.vkGetDeviceQueue(dev, C.uint32_t(qfam), 0, &queue)

	poolInfo := C.VkCommandPoolCreateInfo{
		sType:            C.VK_STRUCTURE_TYPE_COMMAND_POOL_CREATE_INFO,
		flags:            C.VK_COMMAND_POOL_CREATE_RESET_COMMAND_BUFFER_BIT,
		queueFamilyIndex: C.uint32_t(qfam),
	}
	var pool C.VkCommandPool
	if err := checkResult(C.vkCreateCommandPool(dev, &poolInfo, nil, &pool), errInitFailed); err != nil {
		return nil, err
	}

	var mprop C.VkPhysicalDeviceMemoryProperties
	C.vkGetPhysicalDeviceMemoryProperties(pdev, &mprop)

	sc.commit()
	return &Context{
		inst:  inst,
		pdev:  pdev,
		dev:   dev,
		queue: queue,
		qfam:  uint32(qfam),
		pool:  pool,
		mprop: mprop,
	}, nil
}

// selectPhysicalDevice enumerates physical devices and returns the
// first one that both exposes a queue family matching
// requiredQueueFlags and reports every extension in
// requiredDeviceExtensions, along with that family's index (spec.md
// section 4.E step 1).
func selectPhysicalDevice(inst C.VkInstance) (C.VkPhysicalDevice, C.uint32_t, error) {
	var n C.uint32_t
	if err := checkResult(C.vkEnumeratePhysicalDevices(inst, &n, nil), errNoDevice); err != nil {
		return nil, 0, err
	}
	if n == 0 {
		return nil, 0, errNoDevice
	}
	devs := make([]C.VkPhysicalDevice, n)
	if err := checkResult(C.vkEnumeratePhysicalDevices(inst, &n, &devs[0]), errNoDevice); err != nil {
		return nil, 0, err
	}

	sawExtensionCapableDevice := false
	for _, dev := range devs {
		if !deviceSupportsExtensions(dev, requiredDeviceExtensions) {
			continue
		}
		sawExtensionCapableDevice = true

		var qn C.uint32_t
		C.vkGetPhysicalDeviceQueueFamilyProperties(dev, &qn, nil)
		if qn == 0 {
			continue
		}
		props := make([]C.VkQueueFamilyProperties, qn)
		C.vkGetPhysicalDeviceQueueFamilyProperties(dev, &qn, &props[0])
		for i, p := range props {
			if C.int(p.queueFlags)&requiredQueueFlags == requiredQueueFlags {
				return dev, C.uint32_t(i), nil
			}
		}
	}
	if !sawExtensionCapableDevice {
		return nil, 0, errNoExtSupport
	}
	return nil, 0, errNoQueueFamily
}

// deviceSupportsExtensions reports whether pdev's device-extension list
// contains every name in want.
func deviceSupportsExtensions(pdev C.VkPhysicalDevice, want []string) bool {
	var n C.uint32_t
	if checkResult(C.vkEnumerateDeviceExtensionProperties(pdev, nil, &n, nil), errNoDevice) != nil || n == 0 {
		return false
	}
	props := make([]C.VkExtensionProperties, n)
	if checkResult(C.vkEnumerateDeviceExtensionProperties(pdev, nil, &n, &props[0]), errNoDevice) != nil {
		return false
	}
	available := make(map[string]bool, n)
	for i := range props {
		available[C.GoString(&props[i].extensionName[0])] = true
	}
	for _, name := range want {
		if !available[name] {
			return false
		}
	}
	return true
}

// cStringArray allocates a NUL-terminated C string for every entry in
// names and returns the pointer array Vulkan's ppEnabledExtensionNames
// fields expect, plus a func that frees them. Grounded on the same
// C.CString/defer C.free convention driver/vk/driver.go uses for its
// own single extension name, generalized to a list.
func cStringArray(names []string) ([]*C.char, func()) {
	out := make([]*C.char, len(names))
	for i, n := range names {
		out[i] = C.CString(n)
	}
	return out, func() {
		for _, p := range out {
			C.free(unsafe.Pointer(p))
		}
	}
}

// Close releases the context's device and instance. Must be called
// after every ExternalImage/LinearImage it created has been released.
func (c *Context) Close() {
	if c == nil {
		return
	}
	C.vkDeviceWaitIdle(c.dev)
	C.vkDestroyCommandPool(c.dev, c.pool, nil)
	C.vkDestroyDevice(c.dev, nil)
	C.vkDestroyInstance(c.inst, nil)
	*c = Context{}
}

// Device returns the raw VkDevice handle as a uintptr, for
// internal/tonemap.NewKernel which cannot import this package's cgo
// types directly.
func (c *Context) Device() uintptr { return uintptr(unsafe.Pointer(c.dev)) }

// Queue returns the raw VkQueue handle as a uintptr.
func (c *Context) Queue() uintptr { return uintptr(unsafe.Pointer(c.queue)) }

// CommandPool returns the raw VkCommandPool handle as a uintptr.
func (c *Context) CommandPool() uintptr { return uintptr(unsafe.Pointer(c.pool)) }

// selectMemoryType returns the index of a memory type matching typeBits
// and every flag in want, or -1 if none qualifies.
func (c *Context) selectMemoryType(typeBits uint32, want C.VkMemoryPropertyFlags) int {
	for i := 0; i < int(c.mprop.memoryTypeCount); i++ {
		if typeBits&(1<<uint(i)) == 0 {
			continue
		}
		if c.mprop.memoryTypes[i].propertyFlags&want == want {
			return i
		}
	}
	return -1
}
