package kmsdrm

import (
	"fmt"
	"unsafe"

	"github.com/NeowayLabs/drm"
	"github.com/NeowayLabs/drm/ioctl"

	"github.com/thmasq/kms-screenshot/internal/diag"
)

// sys* structs mirror the kernel uapi structs bit-for-bit, following
// other_examples/NeowayLabs-drm__mode.go's naming and layout convention.
type (
	sysSetClientCap struct {
		capability uint64
		value      uint64
	}

	sysVersion struct {
		versionMajor      int32
		versionMinor      int32
		versionPatchLevel int32
		nameLen           uint64
		namePtr           uint64
		dateLen           uint64
		datePtr           uint64
		descLen           uint64
		descPtr           uint64
	}

	sysFBCmd2 struct {
		fbID        uint32
		width       uint32
		height      uint32
		pixelFormat uint32
		flags       uint32
		handles     [4]uint32
		pitches     [4]uint32
		offsets     [4]uint32
		modifier    [4]uint64
	}

	sysPrimeHandle struct {
		handle uint32
		flags  uint32
		fd     int32
	}
)

var (
	// DRM_IOW(0x0d, struct drm_set_client_cap)
	ioctlSetClientCap = ioctl.NewCode(ioctl.Write,
		uint16(unsafe.Sizeof(sysSetClientCap{})), drm.IOCTLBase, 0x0d)

	// DRM_IOWR(0x00, struct drm_version)
	ioctlVersion = ioctl.NewCode(ioctl.Read|ioctl.Write,
		uint16(unsafe.Sizeof(sysVersion{})), drm.IOCTLBase, 0x00)

	// DRM_IOWR(0xCE, struct drm_mode_fb_cmd2) -- the GETFB2 query
	// (distinct from 0xB8, ADDFB2, which other_examples/NeowayLabs-drm__mode.go
	// already exposes for the add direction).
	ioctlModeGetFB2 = ioctl.NewCode(ioctl.Read|ioctl.Write,
		uint16(unsafe.Sizeof(sysFBCmd2{})), drm.IOCTLBase, 0xCE)

	// DRM_IOWR(0x2d, struct drm_prime_handle)
	ioctlPrimeHandleToFD = ioctl.NewCode(ioctl.Read|ioctl.Write,
		uint16(unsafe.Sizeof(sysPrimeHandle{})), drm.IOCTLBase, 0x2d)
)

// GetFB2 fetches width/height/format/modifier/plane layout via the FB2
// query. Capture requires this query because the legacy FB1 query
// carries no pixel format (spec.md section 4.C).
func GetFB2(f interface{ Fd() uintptr }, fbID uint32) (*Framebuffer, error) {
	req := sysFBCmd2{fbID: fbID}
	if err := ioctl.Do(uintptr(f.Fd()), uintptr(ioctlModeGetFB2), uintptr(unsafe.Pointer(&req))); err != nil {
		return nil, fmt.Errorf("kmsdrm: GETFB2 %d: %w", fbID, diag.ErrDiscovery)
	}
	fb := &Framebuffer{
		ID:       req.fbID,
		Width:    req.width,
		Height:   req.height,
		Format:   req.pixelFormat,
		Modifier: req.modifier[0],
	}
	for i := 0; i < 4; i++ {
		fb.Planes[i] = PlaneLayout{
			Handle: req.handles[i],
			Pitch:  req.pitches[i],
			Offset: req.offsets[i],
		}
	}
	return fb, nil
}

// PrimeHandleToFD exports a GEM handle as a dmabuf FD with CLOEXEC set,
// used by both the DMA-engine import fallback (spec.md section 4.D step
// 2) and the compute-path dmabuf export (section 4.E step 2).
func PrimeHandleToFD(f interface{ Fd() uintptr }, handle uint32) (int, error) {
	const oCloexec = 0x80000
	req := sysPrimeHandle{handle: handle, flags: oCloexec}
	if err := ioctl.Do(uintptr(f.Fd()), uintptr(ioctlPrimeHandleToFD), uintptr(unsafe.Pointer(&req))); err != nil {
		return -1, fmt.Errorf("kmsdrm: PRIME_HANDLE_TO_FD: %w", diag.ErrImport)
	}
	return int(req.fd), nil
}
