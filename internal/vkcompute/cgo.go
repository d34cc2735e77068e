// Package vkcompute implements the external-memory/dma-buf import and
// tiled-to-linear blit path described in spec.md section 4.E, using the
// system Vulkan loader directly via cgo. It follows the cgo conventions
// of gviegas-neo3/driver/vk/driver.go: a single "#include <vulkan/vulkan.h>"
// preamble, a checkResult sentinel-error mapping, and explicit
// C.malloc/C.free pairs around every variable-length array the Vulkan
// API expects a host pointer for.
package vkcompute

/*
#cgo LDFLAGS: -lvulkan
#cgo linux CFLAGS: -DVK_USE_PLATFORM_XCB_KHR
#include <stdlib.h>
#include <vulkan/vulkan.h>
*/
import "C"

import "errors"

// Sentinel errors, grounded on driver.vk's Err* grouping in
// gviegas-neo3/driver/vk/driver.go's checkResult switch.
var (
	errNoDevice       = errors.New("vkcompute: no suitable device")
	errNoQueueFamily  = errors.New("vkcompute: no queue family supports graphics, transfer and compute")
	errInitFailed     = errors.New("vkcompute: initialization failed")
	errExternalHandle = errors.New("vkcompute: invalid external handle")
	errUnsupportedFmt = errors.New("vkcompute: format/modifier not supported")
	errFenceTimeout   = errors.New("vkcompute: fence wait timed out")
	errNoExtSupport   = errors.New("vkcompute: no device exposes external-memory-fd, dma-buf import and drm-format-modifier extensions")
	errUnknown        = errors.New("vkcompute: unknown result")
)

// checkResult maps a VkResult to one of the sentinels above, or nil when
// res does not indicate an error (VK_SUCCESS and the positive
// VK_INCOMPLETE-style codes).
func checkResult(res C.VkResult, base error) error {
	if res >= 0 {
		return nil
	}
	switch res {
	case C.VK_ERROR_OUT_OF_HOST_MEMORY, C.VK_ERROR_OUT_OF_DEVICE_MEMORY:
		return errInitFailed
	case C.VK_ERROR_INITIALIZATION_FAILED:
		return errInitFailed
	case C.VK_ERROR_INVALID_EXTERNAL_HANDLE:
		return errExternalHandle
	case C.VK_ERROR_FORMAT_NOT_SUPPORTED:
		return errUnsupportedFmt
	default:
		if base != nil {
			return base
		}
		return errUnknown
	}
}
