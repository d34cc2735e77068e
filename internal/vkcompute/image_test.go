package vkcompute

import "testing"

func TestConvFormatKnownFourccs(t *testing.T) {
	cases := []uint32{0x34325258, 0x34325241, 0x34324258, 0x34324241, 0x38344241}
	for _, fourcc := range cases {
		if _, err := convFormat(fourcc); err != nil {
			t.Errorf("fourcc %#x: unexpected error %v", fourcc, err)
		}
	}
}

func TestConvFormatUnknownFourcc(t *testing.T) {
	if _, err := convFormat(0xdeadbeef); err == nil {
		t.Error("expected an error for an unrecognized fourcc")
	}
}
