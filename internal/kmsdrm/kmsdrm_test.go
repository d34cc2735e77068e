package kmsdrm

import "testing"

func TestModifierConstants(t *testing.T) {
	if ModifierLinear != 0 {
		t.Errorf("ModifierLinear = %d, want 0", ModifierLinear)
	}
	if ModifierInvalid != 0x00ffffffffffffff {
		t.Errorf("ModifierInvalid = %#x, want 0x00ffffffffffffff", ModifierInvalid)
	}
}

func TestIsTiled(t *testing.T) {
	cases := []struct {
		mod   uint64
		tiled bool
	}{
		{ModifierLinear, false},
		{ModifierInvalid, false},
		{0x0100000000000001, true}, // an AMD tiling modifier
	}
	for _, c := range cases {
		got := c.mod != ModifierLinear && c.mod != ModifierInvalid
		if got != c.tiled {
			t.Errorf("modifier %#x: got tiled=%v, want %v", c.mod, got, c.tiled)
		}
	}
}
