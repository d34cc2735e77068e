package amdgpu

/*
#include <xf86drm.h>
#include <libdrm/amdgpu.h>
#include <libdrm/amdgpu_drm.h>
*/
import "C"

import (
	"encoding/binary"
	"os"

	"github.com/thmasq/kms-screenshot/internal/diag"
	"github.com/thmasq/kms-screenshot/internal/pixfmt"
)

const ibSize = 4096

// opCopy/subOpLinear identify the SDMA copy packet (spec.md section
// 4.D step 5).
const (
	opCopy      = 1
	subOpLinear = 0
)

// buildLinearCopyPacket builds the 7-dword SDMA linear-copy command
// stream described in spec.md section 4.D step 5. It is a pure function
// so the bit layout is testable without a GPU.
func buildLinearCopyPacket(srcVA, dstVA, byteCount uint64) [7]uint32 {
	header := uint32(opCopy&0xFF)<<0 | uint32(subOpLinear&0xFF)<<8
	return [7]uint32{
		header,
		uint32(byteCount - 1),
		0,
		uint32(srcVA),
		uint32(srcVA >> 32),
		uint32(dstVA),
		uint32(dstVA >> 32),
	}
}

// Capture implements the full spec.md section 4.D protocol: import the
// scanout BO, copy it linearly via the SDMA ring into a CPU-mappable
// BO, and hand the mapping to internal/pixfmt for conversion.
//
// drmFile must be the same *os.File the caller used to discover fb.
func (d *Device) Capture(drmFile *os.File, fb ScanoutSource, out []byte) error {
	srcBO, err := d.importScanout(drmFile, fb.Handle)
	if err != nil {
		return err
	}
	defer srcBO.free()

	srcVA, err := d.allocVA(srcBO.size)
	if err != nil {
		return err
	}
	defer d.freeVA(srcVA)
	if err := d.bindVA(srcVA, srcBO.handle, C.AMDGPU_VM_PAGE_READABLE); err != nil {
		return wrapImport(err)
	}
	defer d.unbindVA(srcVA, srcBO.handle)

	dstSize := uint64(fb.Pitch) * uint64(fb.Height)
	dstBO, err := d.allocCPUVisible(dstSize)
	if err != nil {
		return err
	}
	defer dstBO.free()

	dstVA, err := d.allocVA(dstSize)
	if err != nil {
		return err
	}
	defer d.freeVA(dstVA)
	if err := d.bindVA(dstVA, dstBO.handle, C.AMDGPU_VM_PAGE_READABLE|C.AMDGPU_VM_PAGE_WRITEABLE); err != nil {
		return wrapImport(err)
	}
	defer d.unbindVA(dstVA, dstBO.handle)

	ibBO, err := d.allocCPUVisible(ibSize)
	if err != nil {
		return err
	}
	defer ibBO.free()
	ibVA, err := d.allocVA(ibSize)
	if err != nil {
		return err
	}
	defer d.freeVA(ibVA)
	if err := d.bindVA(ibVA, ibBO.handle, C.AMDGPU_VM_PAGE_READABLE|C.AMDGPU_VM_PAGE_EXECUTABLE); err != nil {
		return wrapImport(err)
	}
	defer d.unbindVA(ibVA, ibBO.handle)

	ibMem, err := ibBO.cpuMap()
	if err != nil {
		return err
	}
	packet := buildLinearCopyPacket(srcVA.Base, dstVA.Base, dstSize)
	for i, w := range packet {
		binary.LittleEndian.PutUint32(ibMem[i*4:], w)
	}
	ibBO.cpuUnmap()

	if err := d.submitIB(ibVA.Base, len(packet)); err != nil {
		return err
	}

	dstMem, err := dstBO.cpuMap()
	if err != nil {
		return err
	}
	defer dstBO.cpuUnmap()

	if err := pixfmt.ConvertToRGB24(dstMem, out, int(fb.Width), int(fb.Height), pixfmt.Format(fb.Format), int(fb.Pitch)); err != nil {
		diag.Warnf("dma-convert", "pixel conversion diagnostic", "error", err)
	}
	return nil
}

// ScanoutSource is the subset of kmsdrm.Framebuffer the DMA path needs.
type ScanoutSource struct {
	Handle uint32
	Pitch  uint32
	Width  uint32
	Height uint32
	Format uint32
}

// submitIB submits a single IB on the SDMA (DMA) IP, ring 0, and waits
// on the returned sequence number with an infinite timeout (spec.md
// section 4.D step 5, section 5: "DMA fence wait (infinite timeout)" is
// one of the only three suspension points in the whole program).
func (d *Device) submitIB(ibVA uint64, ndw int) error {
	ibInfo := C.struct_amdgpu_cs_ib_info{
		ib_mc_address: C.uint64_t(ibVA),
		size:          C.uint32_t(ndw),
	}
	req := C.struct_amdgpu_cs_request{
		ip_type:       C.AMDGPU_HW_IP_DMA,
		ring:          0,
		number_of_ibs: 1,
		ibs:           &ibInfo,
	}
	res := C.amdgpu_cs_submit(d.ctx, 0, &req, 1)
	if err := checkResult(res, errSubmitFailed, "amdgpu_cs_submit"); err != nil {
		return wrapExec(err)
	}

	fence := C.struct_amdgpu_cs_fence{
		context:     d.ctx,
		ip_type:     C.AMDGPU_HW_IP_DMA,
		ring:        0,
		fence:       req.seq_no,
	}
	var expired C.uint32_t
	res = C.amdgpu_cs_query_fence_status(&fence, C.AMDGPU_TIMEOUT_INFINITE, 0, &expired)
	if err := checkResult(res, errFenceFailed, "amdgpu_cs_query_fence_status"); err != nil {
		return wrapExec(err)
	}
	if expired == 0 {
		return wrapExec(errFenceFailed)
	}
	return nil
}
