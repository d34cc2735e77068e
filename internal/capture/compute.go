package capture

import (
	"fmt"
	"os"

	"github.com/thmasq/kms-screenshot/internal/diag"
	"github.com/thmasq/kms-screenshot/internal/kmsdrm"
	"github.com/thmasq/kms-screenshot/internal/pixfmt"
	"github.com/thmasq/kms-screenshot/internal/tonemap"
	"github.com/thmasq/kms-screenshot/internal/vkcompute"
)

// abgr16161616 is the DRM fourcc for the one HDR format spec.md section
// 4.A names; computeCapture routes through the tone-map kernel only for
// this format.
const abgr16161616 = 0x38344241

// computeCapture implements the external-import compute path (component
// E, spec.md section 4.E): import the scanout's dma-buf fd with an
// explicit format-modifier chain, blit tiled source to a linear
// CPU-mappable image, and — for the HDR format — additionally dispatch
// the tone-mapping kernel before reading back.
func computeCapture(f *os.File, fb *kmsdrm.Framebuffer, opts Options) (*Raster, error) {
	fd, err := kmsdrm.PrimeHandleToFD(f, fb.Planes[0].Handle)
	if err != nil {
		return nil, err
	}
	// ImportScanout duplicates/consumes fd into the VkDeviceMemory on
	// success; on failure the caller (this function) still owns it.
	defer os.NewFile(uintptr(fd), "scanout-prime-fd").Close()

	ctx, err := vkcompute.NewContext()
	if err != nil {
		return nil, err
	}
	defer ctx.Close()

	src, err := ctx.ImportScanout(fd, fb.Planes[0], fb.Width, fb.Height, fb.Format, fb.Modifier)
	if err != nil {
		return nil, err
	}
	defer src.Destroy()

	// Step 5 (spec.md section 4.E) always runs: the tiled external image
	// is never bound directly to anything downstream, whether that's the
	// CPU read below or the HDR branch's compute kernel.
	linear, err := ctx.BlitLinear(src)
	if err != nil {
		return nil, err
	}
	defer linear.Destroy()

	if fb.Format == abgr16161616 {
		return computeHDRCapture(ctx, linear, fb, opts)
	}

	bpp := pixfmt.Format(fb.Format).BytesPerPixel()
	raw, err := linear.Read(bpp)
	if err != nil {
		return nil, err
	}

	rgb := make([]byte, int(fb.Width)*int(fb.Height)*3)
	if err := pixfmt.ConvertToRGB24(raw, rgb, int(fb.Width), int(fb.Height), pixfmt.Format(fb.Format), int(fb.Width)*bpp); err != nil {
		return nil, fmt.Errorf("capture: convert compute-path raster: %w", diag.ErrHostIO)
	}
	return &Raster{Width: int(fb.Width), Height: int(fb.Height), RGB: rgb}, nil
}

// computeHDRCapture runs the PQ/Rec.2020 HDR branch: the tone-mapping
// kernel reads from the linear HDR image step 5 produced and writes an
// rgba8 storage image, which is then read back and stripped of alpha
// (spec.md section 4.E step 6, section 4.F).
func computeHDRCapture(ctx *vkcompute.Context, linear *vkcompute.LinearImage, fb *kmsdrm.Framebuffer, opts Options) (*Raster, error) {
	srcView, err := linear.View()
	if err != nil {
		return nil, err
	}

	dst, err := ctx.NewStorageImage(fb.Width, fb.Height, vkcompute.FormatRGBA8, true)
	if err != nil {
		return nil, err
	}
	defer dst.Destroy()
	if err := dst.TransitionForCompute(0 /* VK_IMAGE_LAYOUT_UNDEFINED */); err != nil {
		return nil, err
	}

	kernel, err := tonemap.NewKernel(ctx.Device())
	if err != nil {
		return nil, err
	}
	defer kernel.Destroy()

	exposure := opts.Exposure
	if exposure <= 0 {
		exposure = 1.0
	}
	params := tonemap.Params{Exposure: float32(exposure), Mode: opts.ToneMap}
	in := tonemap.ImageView{View: srcView, Width: fb.Width, Height: fb.Height}
	out := tonemap.ImageView{View: dst.View(), Width: fb.Width, Height: fb.Height}
	if err := kernel.Dispatch(ctx.Queue(), ctx.CommandPool(), in, out, params); err != nil {
		return nil, err
	}

	rgba, err := dst.Read(4)
	if err != nil {
		return nil, err
	}

	rgb := make([]byte, int(fb.Width)*int(fb.Height)*3)
	for i, j := 0, 0; i < len(rgba); i, j = i+4, j+3 {
		rgb[j+0] = rgba[i+0]
		rgb[j+1] = rgba[i+1]
		rgb[j+2] = rgba[i+2]
		// rgba[i+3] is alpha, dropped per spec.md section 8 scenario 4.
	}
	return &Raster{Width: int(fb.Width), Height: int(fb.Height), RGB: rgb}, nil
}
