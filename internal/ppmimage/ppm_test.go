package ppmimage

import (
	"bytes"
	"testing"
)

func TestWriteHeader(t *testing.T) {
	rgb := []byte{1, 2, 3, 4, 5, 6}
	var buf bytes.Buffer
	if err := Write(&buf, 2, 1, rgb); err != nil {
		t.Fatal(err)
	}
	want := "P6\n2 1\n255\n"
	got := buf.String()
	if got[:len(want)] != want {
		t.Fatalf("header mismatch: got %q, want prefix %q", got, want)
	}
	if !bytes.Equal([]byte(got[len(want):]), rgb) {
		t.Fatalf("raster mismatch: got %v, want %v", got[len(want):], rgb)
	}
}

func TestWriteSizeMismatch(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, 2, 2, []byte{1, 2, 3}); err == nil {
		t.Fatal("expected error for mismatched raster size")
	}
}
