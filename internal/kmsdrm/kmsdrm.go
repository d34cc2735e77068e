// Package kmsdrm implements KMS plane/framebuffer discovery (spec.md
// section 4.C), dumb-buffer creation for the fallback ladder (section
// 4.G), and the handful of raw ioctls the github.com/NeowayLabs/drm
// module does not expose (universal-planes capability, FB2 metadata,
// and PRIME handle<->FD conversion).
//
// Grounded on other_examples/NeowayLabs-drm__mode.go: every ioctl here
// follows that file's idiom exactly — a "sys*" struct mirroring the
// kernel's drm_mode_* layout, an ioctl.NewCode built from drm.IOCTLBase,
// and (for variable-length replies) a two-pass call that first reads the
// counts and then re-issues the ioctl with slices sized from those
// counts.
package kmsdrm

import (
	"fmt"
	"os"
	"unsafe"

	"github.com/NeowayLabs/drm/ioctl"
	"github.com/NeowayLabs/drm/mode"

	"github.com/thmasq/kms-screenshot/internal/diag"
)

// Format modifier constants from the kernel's drm_fourcc.h. spec.md
// never names these; SPEC_FULL.md introduces them so the tiled/linear
// predicate in the orchestrator (spec.md section 4.G) doesn't rely on a
// magic number.
const (
	ModifierLinear  uint64 = 0
	ModifierInvalid uint64 = 0x00ffffffffffffff
)

// Framebuffer is the immutable descriptor from spec.md section 3.
type Framebuffer struct {
	ID       uint32
	Width    uint32
	Height   uint32
	Format   uint32 // DRM fourcc; see internal/pixfmt.
	Modifier uint64
	Planes   [4]PlaneLayout
}

// PlaneLayout is one entry of the per-plane {handle, pitch, offset}
// triple from spec.md section 3. Only plane 0 is populated by this
// implementation (single-plane formats only, per spec.md's Non-goals).
type PlaneLayout struct {
	Handle uint32
	Pitch  uint32
	Offset uint32
}

// PlaneSummary is the --list row: a plane id, its bound framebuffer
// (zero if unbound), and that framebuffer's dimensions/format if bound.
type PlaneSummary struct {
	PlaneID uint32
	FBID    uint32
	Width   uint32
	Height  uint32
	Format  uint32
}

// Open opens the DRM character device read-write, matching the process
// holding the FD for its lifetime per spec.md section 5.
func Open(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("kmsdrm: open %s: %w", path, diag.ErrEnvironment)
	}
	return f, nil
}

// EnableUniversalPlanes sets DRM_CLIENT_CAP_UNIVERSAL_PLANES. Failure is
// non-fatal, per spec.md section 4.C.
func EnableUniversalPlanes(f *os.File) error {
	const capUniversalPlanes = 1
	req := sysSetClientCap{capability: capUniversalPlanes, value: 1}
	if err := ioctl.Do(uintptr(f.Fd()), uintptr(ioctlSetClientCap), uintptr(unsafe.Pointer(&req))); err != nil {
		diag.Warnf("enable-universal-planes", "failed to enable universal planes", "error", err)
		return fmt.Errorf("kmsdrm: enable universal planes: %w", diag.ErrEnvironment)
	}
	return nil
}

// DriverName returns the KMS driver's short name (e.g. "amdgpu",
// "i915"), used by the orchestrator's strategy predicate.
func DriverName(f *os.File) (string, error) {
	v := sysVersion{}
	if err := ioctl.Do(uintptr(f.Fd()), uintptr(ioctlVersion), uintptr(unsafe.Pointer(&v))); err != nil {
		return "", fmt.Errorf("kmsdrm: get version: %w", diag.ErrEnvironment)
	}
	if v.nameLen == 0 {
		return "", nil
	}
	name := make([]byte, v.nameLen)
	v.namePtr = uint64(uintptr(unsafe.Pointer(&name[0])))
	if err := ioctl.Do(uintptr(f.Fd()), uintptr(ioctlVersion), uintptr(unsafe.Pointer(&v))); err != nil {
		return "", fmt.Errorf("kmsdrm: get version (name): %w", diag.ErrEnvironment)
	}
	return string(name), nil
}

// ListPlanes enumerates all plane IDs and, for each, its bound
// framebuffer id and (if bound) that framebuffer's FB2 metadata — the
// basis of --list and of Primary's selection.
func ListPlanes(f *os.File) ([]PlaneSummary, error) {
	pres, err := mode.GetPlaneResources(f)
	if err != nil {
		return nil, fmt.Errorf("kmsdrm: get plane resources: %w", diag.ErrDiscovery)
	}
	out := make([]PlaneSummary, 0, len(pres.Planes))
	for _, id := range pres.Planes {
		pl, err := mode.GetPlane(f, id)
		if err != nil {
			return nil, fmt.Errorf("kmsdrm: get plane %d: %w", id, diag.ErrDiscovery)
		}
		sum := PlaneSummary{PlaneID: id, FBID: pl.FbID}
		if pl.FbID != 0 {
			fb, err := GetFB2(f, pl.FbID)
			if err == nil {
				sum.Width, sum.Height, sum.Format = fb.Width, fb.Height, fb.Format
			}
		}
		out = append(out, sum)
	}
	return out, nil
}

// Primary selects the framebuffer with the largest width*height over
// all planes with a non-zero framebuffer id, breaking ties by
// first-seen plane order (spec.md section 4.C).
func Primary(f *os.File) (*Framebuffer, error) {
	pres, err := mode.GetPlaneResources(f)
	if err != nil {
		return nil, fmt.Errorf("kmsdrm: get plane resources: %w", diag.ErrDiscovery)
	}
	var bestFBID uint32
	var bestArea uint64
	for _, id := range pres.Planes {
		pl, err := mode.GetPlane(f, id)
		if err != nil {
			continue
		}
		if pl.FbID == 0 {
			continue
		}
		fb, err := GetFB2(f, pl.FbID)
		if err != nil {
			continue
		}
		area := uint64(fb.Width) * uint64(fb.Height)
		if area > bestArea {
			bestArea = area
			bestFBID = fb.ID
		}
	}
	if bestFBID == 0 {
		return nil, fmt.Errorf("kmsdrm: no active framebuffer: %w", diag.ErrDiscovery)
	}
	return GetFB2(f, bestFBID)
}
