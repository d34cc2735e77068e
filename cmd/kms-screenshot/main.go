// Command kms-screenshot captures the currently scanned-out image from a
// KMS/DRM device and writes it as a PPM file. This is the thin CLI shell
// spec.md section 1 calls an "external collaborator": argument parsing,
// the root-privilege check, and output-path handling live here; every
// acquisition decision lives in internal/capture.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/thmasq/kms-screenshot/internal/capture"
	"github.com/thmasq/kms-screenshot/internal/diag"
	"github.com/thmasq/kms-screenshot/internal/pixfmt"
	"github.com/thmasq/kms-screenshot/internal/ppmimage"
	"github.com/thmasq/kms-screenshot/internal/tonemap"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		list     = flag.Bool("list", false, "list planes and their bound framebuffers, then exit")
		device   = flag.String("device", "/dev/dri/card1", "DRM character device")
		output   = flag.String("output", "screenshot.ppm", "output path")
		fbID     = flag.Uint("fb", 0, "numeric framebuffer id; 0 = auto-detect primary")
		exposure = flag.Float64("exposure", 1.0, "HDR exposure multiplier; must be > 0")
		mode     = flag.Uint("tonemap", 2, "tone-map mode 0..7")
		verbose  = flag.Bool("verbose", false, "enable debug logging")
	)
	flag.Usage = usage
	flag.Parse()

	if *verbose {
		diag.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, nil)))
	}

	if os.Geteuid() != 0 {
		fmt.Fprintln(os.Stderr, "kms-screenshot: must run as root")
		return 1
	}

	if *exposure <= 0 {
		fmt.Fprintln(os.Stderr, "kms-screenshot: --exposure must be > 0")
		usage()
		return 1
	}
	if *mode > 7 {
		fmt.Fprintln(os.Stderr, "kms-screenshot: --tonemap must be in 0..7")
		usage()
		return 1
	}

	if *list {
		return runList(*device)
	}

	raster, err := capture.Capture(capture.Options{
		DevicePath: *device,
		Output:     *output,
		FBID:       uint32(*fbID),
		Exposure:   *exposure,
		ToneMap:    tonemap.Mode(*mode),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "kms-screenshot: %v\n", err)
		return 1
	}

	if err := ppmimage.Save(*output, raster.Width, raster.Height, raster.RGB); err != nil {
		fmt.Fprintf(os.Stderr, "kms-screenshot: %v\n", err)
		return 1
	}
	return 0
}

// runList implements --list: print the driver name and one line per
// plane, in the form SPEC_FULL.md's supplemented behavior requires.
func runList(device string) int {
	name, err := capture.DriverName(device)
	if err != nil {
		fmt.Fprintf(os.Stderr, "kms-screenshot: %v\n", err)
		return 1
	}
	fmt.Printf("driver: %s\n", name)

	planes, err := capture.List(device)
	if err != nil {
		fmt.Fprintf(os.Stderr, "kms-screenshot: %v\n", err)
		return 1
	}
	for _, p := range planes {
		if p.FBID == 0 {
			fmt.Printf("plane %d: fb=0 -\n", p.PlaneID)
			continue
		}
		fmt.Printf("plane %d: fb=%d %dx%d %s\n", p.PlaneID, p.FBID, p.Width, p.Height, pixfmt.Format(p.Format))
	}
	return 0
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: kms-screenshot [flags]")
	flag.PrintDefaults()
}
