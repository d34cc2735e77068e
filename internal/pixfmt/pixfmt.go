// Package pixfmt maps DRM wire pixel-format codes to the accelerator's
// own format enum and packs/unpacks raw scanout bytes into 24-bit RGB.
//
// Grounded on frostschutz-Kobo/goink/framebuffer.go (RGB565 bit-field
// extraction) and other_examples/zonque-drm__image.go (DRM fourcc to
// byte-order mapping).
package pixfmt

import "errors"

// Format identifies a DRM wire pixel format (a "fourcc" code, per the
// Linux kernel's drm_fourcc.h). Only the codes spec.md section 4.A names
// are recognized.
type Format uint32

// DRM fourcc codes, little-endian byte order as stored in memory (the
// name encodes the byte order from the lowest memory address upward).
const (
	XRGB8888     Format = 0x34325258 // 'XR24'
	ARGB8888     Format = 0x34325241 // 'AR24'
	XBGR8888     Format = 0x34324258 // 'XB24'
	ABGR8888     Format = 0x34324241 // 'AB24'
	RGB565       Format = 0x36314752 // 'RG16'
	ABGR16161616 Format = 0x38344241 // 'AB48'

	Invalid Format = 0
)

// ErrUnsupportedFormat is returned by ConvertToRGB24 for any format not
// listed above, alongside the zero-filled raster spec.md section 4.A
// mandates.
var ErrUnsupportedFormat = errors.New("pixfmt: unsupported wire format")

// String names the format for --list output and log lines.
func (f Format) String() string {
	switch f {
	case XRGB8888:
		return "XRGB8888"
	case ARGB8888:
		return "ARGB8888"
	case XBGR8888:
		return "XBGR8888"
	case ABGR8888:
		return "ABGR8888"
	case RGB565:
		return "RGB565"
	case ABGR16161616:
		return "ABGR16161616"
	default:
		return "unknown"
	}
}

// BytesPerPixel returns the wire size of one pixel, or 0 if the format
// is not recognized.
func (f Format) BytesPerPixel() int {
	switch f {
	case XRGB8888, ARGB8888, XBGR8888, ABGR8888:
		return 4
	case RGB565:
		return 2
	case ABGR16161616:
		return 8
	default:
		return 0
	}
}

// ConvertToRGB24 reads a row-major source raster with stride bytes per
// row (stride may exceed w*bpp(format); the trailing padding is never
// read) and writes a tightly packed w*h*3-byte R,G,B raster to dst,
// which must be pre-sized by the caller.
//
// For ABGR16161616 (HDR10 scanout, SDR fallback path only — the HDR
// branch in spec.md section 4.E step 6 never reaches this function) each
// 16-bit channel is reduced to 8 bits by taking the high byte; there is
// no dithering.
//
// Unrecognized formats fill dst with zero and return ErrUnsupportedFormat;
// the caller still has a correctly sized (all-black) raster to write out.
func ConvertToRGB24(src []byte, dst []byte, w, h int, format Format, stride int) error {
	need := w * h * 3
	if len(dst) < need {
		panic("pixfmt: dst too small")
	}
	switch format {
	case XRGB8888, ARGB8888:
		unpack32(src, dst, w, h, stride, 2, 1, 0)
		return nil
	case XBGR8888, ABGR8888:
		unpack32(src, dst, w, h, stride, 0, 1, 2)
		return nil
	case RGB565:
		unpack565(src, dst, w, h, stride)
		return nil
	case ABGR16161616:
		unpack64(src, dst, w, h, stride)
		return nil
	default:
		for i := range dst[:need] {
			dst[i] = 0
		}
		return ErrUnsupportedFormat
	}
}

// unpack32 handles every 4-byte-per-pixel format. rIdx/gIdx/bIdx are the
// byte offsets within the 4-byte little-endian word that hold R, G and B
// respectively (spec.md's table: XRGB/ARGB store B,G,R,(A/X) from the
// low byte; XBGR/ABGR store R,G,B,(A/X)).
func unpack32(src, dst []byte, w, h, stride, rIdx, gIdx, bIdx int) {
	for y := 0; y < h; y++ {
		srow := src[y*stride:]
		drow := dst[y*w*3:]
		for x := 0; x < w; x++ {
			px := srow[x*4 : x*4+4]
			drow[x*3+0] = px[rIdx]
			drow[x*3+1] = px[gIdx]
			drow[x*3+2] = px[bIdx]
		}
	}
}

func unpack565(src, dst []byte, w, h, stride int) {
	for y := 0; y < h; y++ {
		srow := src[y*stride:]
		drow := dst[y*w*3:]
		for x := 0; x < w; x++ {
			v := uint16(srow[x*2]) | uint16(srow[x*2+1])<<8
			r5 := (v >> 11) & 0x1f
			g6 := (v >> 5) & 0x3f
			b5 := v & 0x1f
			drow[x*3+0] = uint8(r5<<3 | r5>>2)
			drow[x*3+1] = uint8(g6<<2 | g6>>4)
			drow[x*3+2] = uint8(b5<<3 | b5>>2)
		}
	}
}

// unpack64 handles ABGR16161616: four 16-bit little-endian channels in
// R,G,B,A order, each reduced to its high byte.
func unpack64(src, dst []byte, w, h, stride int) {
	for y := 0; y < h; y++ {
		srow := src[y*stride:]
		drow := dst[y*w*3:]
		for x := 0; x < w; x++ {
			px := srow[x*8 : x*8+8]
			drow[x*3+0] = px[1] // R high byte
			drow[x*3+1] = px[3] // G high byte
			drow[x*3+2] = px[5] // B high byte
		}
	}
}
