package pixfmt

import (
	"bytes"
	"testing"
)

// le32 encodes a little-endian uint32 pixel word (as it sits in memory).
func le32(word uint32) []byte {
	return []byte{byte(word), byte(word >> 8), byte(word >> 16), byte(word >> 24)}
}

func TestConvertARGB8888ByteOrder(t *testing.T) {
	// pixel 0x00RRGGBB -> output triple (RR, GG, BB).
	const rr, gg, bb = 0x12, 0x34, 0x56
	pixel := uint32(rr)<<16 | uint32(gg)<<8 | uint32(bb)
	src := le32(pixel)
	dst := make([]byte, 3)
	if err := ConvertToRGB24(src, dst, 1, 1, ARGB8888, 4); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []byte{rr, gg, bb}
	if !bytes.Equal(dst, want) {
		t.Errorf("ARGB8888: got %v, want %v", dst, want)
	}
}

func TestConvertABGR8888ByteOrder(t *testing.T) {
	// Same numeric pixel value, but ABGR8888 memory order reverses R/B.
	const rr, gg, bb = 0x12, 0x34, 0x56
	pixel := uint32(rr)<<16 | uint32(gg)<<8 | uint32(bb)
	src := le32(pixel)
	dst := make([]byte, 3)
	if err := ConvertToRGB24(src, dst, 1, 1, ABGR8888, 4); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []byte{bb, gg, rr}
	if !bytes.Equal(dst, want) {
		t.Errorf("ABGR8888: got %v, want %v", dst, want)
	}
}

func TestConvertABGR16161616HighByte(t *testing.T) {
	r16, g16, b16, a16 := uint16(0xAB12), uint16(0xCD34), uint16(0xEF56), uint16(0x1111)
	src := make([]byte, 8)
	src[0], src[1] = byte(r16), byte(r16>>8)
	src[2], src[3] = byte(g16), byte(g16>>8)
	src[4], src[5] = byte(b16), byte(b16>>8)
	src[6], src[7] = byte(a16), byte(a16>>8)
	dst := make([]byte, 3)
	if err := ConvertToRGB24(src, dst, 1, 1, ABGR16161616, 8); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []byte{byte(r16 >> 8), byte(g16 >> 8), byte(b16 >> 8)}
	if !bytes.Equal(dst, want) {
		t.Errorf("ABGR16161616: got %v, want %v", dst, want)
	}
}

func TestConvertPurity(t *testing.T) {
	src := []byte{0x10, 0x20, 0x30, 0x40, 0x50, 0x60, 0x70, 0x80}
	dst1 := make([]byte, 2*1*3)
	dst2 := make([]byte, 2*1*3)
	if err := ConvertToRGB24(src, dst1, 2, 1, XRGB8888, 8); err != nil {
		t.Fatal(err)
	}
	if err := ConvertToRGB24(src, dst2, 2, 1, XRGB8888, 8); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(dst1, dst2) {
		t.Errorf("ConvertToRGB24 is not pure: %v != %v", dst1, dst2)
	}
}

func TestConvertStrideIndependentOfPadding(t *testing.T) {
	// Two 1-pixel-wide rows with 12 bytes of stride padding per row; the
	// extra bytes beyond w*bpp must not affect the output.
	w, h, bpp := 1, 2, 4
	stride := 16
	src := make([]byte, stride*h)
	src[0], src[1], src[2], src[3] = 0x11, 0x22, 0x33, 0x00
	src[stride+0], src[stride+1], src[stride+2], src[stride+3] = 0x44, 0x55, 0x66, 0x00
	// Pollute the padding with non-zero garbage.
	for i := bpp; i < stride; i++ {
		src[i] = 0xFF
		src[stride+i] = 0xEE
	}
	dst := make([]byte, w*h*3)
	if err := ConvertToRGB24(src, dst, w, h, XRGB8888, stride); err != nil {
		t.Fatal(err)
	}
	want := []byte{0x33, 0x22, 0x11, 0x66, 0x55, 0x44}
	if !bytes.Equal(dst, want) {
		t.Errorf("got %v, want %v", dst, want)
	}
}

func TestConvertUnsupportedFormat(t *testing.T) {
	src := make([]byte, 16)
	dst := make([]byte, 2*2*3)
	for i := range dst {
		dst[i] = 0xFF
	}
	err := ConvertToRGB24(src, dst, 2, 2, Format(0xdeadbeef), 8)
	if err != ErrUnsupportedFormat {
		t.Fatalf("got %v, want ErrUnsupportedFormat", err)
	}
	for _, b := range dst {
		if b != 0 {
			t.Fatalf("expected zero-filled raster, got %v", dst)
		}
	}
}

func TestRGB565(t *testing.T) {
	// R=5 bits all set, G=0, B=0 -> pure red-ish.
	var v uint16 = 0x1F << 11
	src := []byte{byte(v), byte(v >> 8)}
	dst := make([]byte, 3)
	if err := ConvertToRGB24(src, dst, 1, 1, RGB565, 2); err != nil {
		t.Fatal(err)
	}
	if dst[0] == 0 || dst[1] != 0 || dst[2] != 0 {
		t.Errorf("RGB565 red channel: got %v", dst)
	}
}
