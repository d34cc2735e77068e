package amdgpu

import "testing"

func TestBuildLinearCopyPacket(t *testing.T) {
	srcVA := uint64(0x0000000123456789)
	dstVA := uint64(0x00000009ABCDEF01)
	byteCount := uint64(1024)

	got := buildLinearCopyPacket(srcVA, dstVA, byteCount)

	wantHeader := uint32(opCopy&0xFF)<<0 | uint32(subOpLinear&0xFF)<<8
	if got[0] != wantHeader {
		t.Errorf("header: got %#x, want %#x", got[0], wantHeader)
	}
	if got[1] != uint32(byteCount-1) {
		t.Errorf("byte count - 1: got %d, want %d", got[1], byteCount-1)
	}
	if got[2] != 0 {
		t.Errorf("reserved word: got %#x, want 0", got[2])
	}
	if got[3] != uint32(srcVA) || got[4] != uint32(srcVA>>32) {
		t.Errorf("src VA: got (%#x, %#x), want (%#x, %#x)", got[3], got[4], uint32(srcVA), uint32(srcVA>>32))
	}
	if got[5] != uint32(dstVA) || got[6] != uint32(dstVA>>32) {
		t.Errorf("dst VA: got (%#x, %#x), want (%#x, %#x)", got[5], got[6], uint32(dstVA), uint32(dstVA>>32))
	}
}

func TestBuildLinearCopyPacketHeaderIsStable(t *testing.T) {
	// Regardless of VA/size, the header word only ever encodes the
	// fixed opcode/sub-opcode pair.
	a := buildLinearCopyPacket(0, 0, 1)
	b := buildLinearCopyPacket(0xFFFFFFFFFFFFFFFF, 0xFFFFFFFFFFFFFFFF, 0xFFFFFFFF)
	if a[0] != b[0] {
		t.Errorf("header word varies with operands: %#x vs %#x", a[0], b[0])
	}
}
