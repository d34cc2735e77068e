package tonemap

import "testing"

func TestValidateShaderBlobRejectsPlaceholder(t *testing.T) {
	if err := validateShaderBlob(tonemapSPV); err == nil {
		t.Fatal("expected the embedded placeholder blob to be rejected")
	}
}

func TestValidateShaderBlobRejectsShortInput(t *testing.T) {
	if err := validateShaderBlob([]byte{0x03, 0x02, 0x23, 0x07}); err == nil {
		t.Fatal("expected a too-short blob to be rejected")
	}
}

func TestValidateShaderBlobRejectsBadMagic(t *testing.T) {
	b := make([]byte, minSPIRVHeaderBytes)
	b[0], b[1], b[2], b[3] = 0xff, 0xff, 0xff, 0xff
	if err := validateShaderBlob(b); err == nil {
		t.Fatal("expected a blob with a bad magic number to be rejected")
	}
}

func TestValidateShaderBlobAcceptsWellFormedHeader(t *testing.T) {
	b := make([]byte, minSPIRVHeaderBytes)
	b[0], b[1], b[2], b[3] = 0x03, 0x02, 0x23, 0x07
	if err := validateShaderBlob(b); err != nil {
		t.Fatalf("expected a well-formed header to pass the length/magic check, got %v", err)
	}
}
