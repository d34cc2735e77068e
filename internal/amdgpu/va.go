package amdgpu

/*
#include <xf86drm.h>
#include <libdrm/amdgpu.h>
#include <libdrm/amdgpu_drm.h>
*/
import "C"

import (
	"fmt"

	"github.com/thmasq/kms-screenshot/internal/bitm"
)

const vaPageSize = 4096

// vaPool tracks the device's general VA pool (spec.md section 3:
// "Virtual-address range... allocated from the device's general VA
// pool"). amdgpu_va_range_alloc already performs the real allocation in
// the kernel's VA manager; the bitm-backed ledger here exists so a
// double-free (the one ownership invariant spec.md calls out: "unbind
// must precede BO free; free must precede device deinitialization") is
// caught in Go before it reaches the driver, and so a future multi-range
// caller has a free-list ready-made. Repurposes internal/bitm, kept from
// the teacher (see DESIGN.md).
type vaPool struct {
	pages bitm.Bitm[uint64]
	// ranges maps a ledger page index to the VA range handle bound there,
	// so freeVA can look the handle up instead of requiring the caller to
	// track it out of band.
	ranges map[int]*vaRange
}

func newVAPool() *vaPool {
	return &vaPool{ranges: make(map[int]*vaRange)}
}

// vaRange is the {base address, length, opaque handle} tuple from
// spec.md section 3's data model.
type vaRange struct {
	Base   uint64
	Size   uint64
	handle C.amdgpu_va_handle
	page   int
}

// allocVA claims a ledger bit and allocates a VA range of the given byte
// size from the general pool, aligned to the 4 KiB page granularity
// spec.md requires. It does not bind the range; bindVA does that.
func (d *Device) allocVA(size uint64) (*vaRange, error) {
	pages := int((size + vaPageSize - 1) / vaPageSize)
	if pages < 1 {
		pages = 1
	}
	idx := d.va.pages.Alloc(pages)

	var vaBase C.uint64_t
	var handle C.amdgpu_va_handle
	res := C.amdgpu_va_range_alloc(d.dev, C.amdgpu_gpu_va_range_general,
		C.uint64_t(size), C.uint64_t(vaPageSize), 0, &vaBase, &handle, 0)
	if err := checkResult(res, errVAFailed, "amdgpu_va_range_alloc"); err != nil {
		d.va.pages.Unset(idx)
		return nil, wrapImport(err)
	}
	r := &vaRange{Base: uint64(vaBase), Size: size, handle: handle, page: idx}
	d.va.ranges[idx] = r
	return r, nil
}

// bindVA maps r to bo's full extent at offset 0 with the given VM flags.
func (d *Device) bindVA(r *vaRange, bo C.amdgpu_bo_handle, flags uint64) error {
	res := C.amdgpu_bo_va_op(bo, 0, C.uint64_t(r.Size), C.uint64_t(r.Base),
		C.uint64_t(flags), C.AMDGPU_VA_OP_MAP)
	if err := checkResult(res, errVAFailed, "amdgpu_bo_va_op(map)"); err != nil {
		return wrapImport(err)
	}
	return nil
}

// unbindVA unmaps r from bo. Must precede freeVA, per spec.md section 3.
func (d *Device) unbindVA(r *vaRange, bo C.amdgpu_bo_handle) error {
	res := C.amdgpu_bo_va_op(bo, 0, C.uint64_t(r.Size), C.uint64_t(r.Base),
		0, C.AMDGPU_VA_OP_UNMAP)
	return checkResult(res, errVAFailed, "amdgpu_bo_va_op(unmap)")
}

// freeVA releases the VA range back to the device and clears its ledger
// bit. Calling freeVA twice on the same range is a programming error; the
// second call finds the range gone from the ledger and returns an error
// without reaching the driver, matching the "every resource owned by
// exactly one scope" design note (spec.md section 9) defensively rather
// than by trusting every call site.
func (d *Device) freeVA(r *vaRange) error {
	if d.va.ranges[r.page] != r {
		return fmt.Errorf("%w: va range %#x already freed", errVAFailed, r.Base)
	}
	res := C.amdgpu_va_range_free(r.handle)
	d.va.pages.Unset(r.page)
	delete(d.va.ranges, r.page)
	if err := checkResult(res, errVAFailed, "amdgpu_va_range_free"); err != nil {
		return fmt.Errorf("%w: %v", errVAFailed, err)
	}
	return nil
}
