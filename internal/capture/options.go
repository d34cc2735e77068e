// Package capture implements the acquisition orchestrator from spec.md
// section 4.G: a fallback ladder that tries the external-import compute
// path, then the DMA-engine copy path, then a dumb-buffer shadow with a
// deterministic test-pattern fallback, filtered by driver-name and
// format-modifier predicates the way spec.md's Design Notes describe.
package capture

import "github.com/thmasq/kms-screenshot/internal/tonemap"

// Options is the CLI-facing configuration for one capture, built by
// cmd/kms-screenshot from parsed flags.
type Options struct {
	DevicePath string
	Output     string
	FBID       uint32 // 0 selects the largest active framebuffer automatically.
	Exposure   float64
	ToneMap    tonemap.Mode
}

// Raster is a fully de-tiled, tone-mapped, sRGB-encoded 8-bit RGB image
// ready for internal/ppmimage.Save.
type Raster struct {
	Width  int
	Height int
	RGB    []byte
}
