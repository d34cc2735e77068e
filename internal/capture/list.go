package capture

import (
	"github.com/thmasq/kms-screenshot/internal/kmsdrm"
)

// List opens devicePath and returns every plane's summary, for the
// --list CLI flag (SPEC_FULL.md's supplemented `--list` behavior).
func List(devicePath string) ([]kmsdrm.PlaneSummary, error) {
	f, err := kmsdrm.Open(devicePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if err := kmsdrm.EnableUniversalPlanes(f); err != nil {
		// Non-fatal per spec.md section 4.C; planes may simply be
		// reported without the universal-planes view.
		_ = err
	}
	return kmsdrm.ListPlanes(f)
}

// DriverName exposes kmsdrm.DriverName for the --list header line
// (SPEC_FULL.md's supplemented "DriverName surfaced in --list output").
func DriverName(devicePath string) (string, error) {
	f, err := kmsdrm.Open(devicePath)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return kmsdrm.DriverName(f)
}
