// Package ppmimage serializes a linear RGB raster as a portable binary
// bitmap ("P6") file, per spec.md section 6.
//
// No library in the retrieved pack encodes PPM (the format has no
// compression or metadata to justify one); grounded on the plain
// os.Create/Write sequence in other_examples/NeowayLabs-drm__modeset-double-buffered.go
// and xdsopl-framebuffer/fbgrab.go's "build the raster, then write it out
// in one shot" shape.
package ppmimage

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/thmasq/kms-screenshot/internal/diag"
)

// Write encodes width x height of 24-bit RGB raster data (row-major,
// w*h*3 bytes, no padding) as a P6 PPM to w.
func Write(w io.Writer, width, height int, rgb []byte) error {
	if len(rgb) != width*height*3 {
		return fmt.Errorf("ppmimage: raster size %d does not match %dx%dx3: %w", len(rgb), width, height, diag.ErrHostIO)
	}
	bw := bufio.NewWriter(w)
	if _, err := fmt.Fprintf(bw, "P6\n%d %d\n255\n", width, height); err != nil {
		return fmt.Errorf("ppmimage: write header: %w", diag.ErrHostIO)
	}
	if _, err := bw.Write(rgb); err != nil {
		return fmt.Errorf("ppmimage: write raster: %w", diag.ErrHostIO)
	}
	return bw.Flush()
}

// Save writes the raster to path, truncating any existing file. The
// caller must have the complete raster in memory before calling Save —
// spec.md section 7 requires that no partial output ever reaches disk,
// so there is no streaming variant that could leave a half-written file
// behind on error.
func Save(path string, width, height int, rgb []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("ppmimage: open %s: %w", path, diag.ErrHostIO)
	}
	defer f.Close()
	if err := Write(f, width, height, rgb); err != nil {
		return err
	}
	return nil
}
