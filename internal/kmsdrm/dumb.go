package kmsdrm

import (
	"fmt"
	"os"
	"syscall"

	"github.com/NeowayLabs/drm/mode"

	"github.com/thmasq/kms-screenshot/internal/diag"
)

// DumbBuffer is a CPU-mappable shadow buffer used by the last rung of
// the fallback ladder (spec.md section 4.G).
type DumbBuffer struct {
	Handle uint32
	Pitch  uint32
	Size   uint64
	data   []byte
	f      *os.File
}

// CreateDumbBuffer allocates a 32-bpp dumb buffer of the given
// dimensions and mmaps it for CPU read/write.
func CreateDumbBuffer(f *os.File, width, height uint16) (*DumbBuffer, error) {
	fb, err := mode.CreateFB(f, width, height, 32)
	if err != nil {
		return nil, fmt.Errorf("kmsdrm: create dumb buffer: %w", diag.ErrImport)
	}
	offset, err := mode.MapDumb(f, fb.Handle)
	if err != nil {
		mode.DestroyDumb(f, fb.Handle)
		return nil, fmt.Errorf("kmsdrm: map dumb buffer: %w", diag.ErrImport)
	}
	data, err := syscall.Mmap(int(f.Fd()), int64(offset), int(fb.Size), syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_SHARED)
	if err != nil {
		mode.DestroyDumb(f, fb.Handle)
		return nil, fmt.Errorf("kmsdrm: mmap dumb buffer: %w", diag.ErrImport)
	}
	return &DumbBuffer{Handle: fb.Handle, Pitch: fb.Pitch, Size: fb.Size, data: data, f: f}, nil
}

// Bytes returns the mapped CPU-visible memory of the dumb buffer.
func (d *DumbBuffer) Bytes() []byte { return d.data }

// Close unmaps and destroys the dumb buffer, in that order (spec.md
// section 5: unmap must precede free).
func (d *DumbBuffer) Close() error {
	if d.data != nil {
		if err := syscall.Munmap(d.data); err != nil {
			return fmt.Errorf("kmsdrm: munmap dumb buffer: %w", diag.ErrImport)
		}
		d.data = nil
	}
	if err := mode.DestroyDumb(d.f, d.Handle); err != nil {
		return fmt.Errorf("kmsdrm: destroy dumb buffer: %w", diag.ErrImport)
	}
	return nil
}
