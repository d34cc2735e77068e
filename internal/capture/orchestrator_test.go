package capture

import "testing"

func TestIsTiled(t *testing.T) {
	cases := []struct {
		modifier uint64
		want     bool
	}{
		{0, false},             // ModifierLinear
		{0x00ffffffffffffff, false}, // ModifierInvalid
		{1, true},
		{0x0200000000000001, true},
	}
	for _, c := range cases {
		if got := isTiled(c.modifier); got != c.want {
			t.Errorf("isTiled(%#x) = %v, want %v", c.modifier, got, c.want)
		}
	}
}

func TestLadderPredicatesSelectExpectedRung(t *testing.T) {
	opts := Options{}
	rungs := ladder(opts)
	if len(rungs) != 2 {
		t.Fatalf("expected 2 rungs, got %d", len(rungs))
	}
	if rungs[0].name != "compute" || rungs[1].name != "dma" {
		t.Fatalf("unexpected rung order: %s, %s", rungs[0].name, rungs[1].name)
	}

	// Tiled amdgpu framebuffer: both rungs apply, compute first.
	if !rungs[0].predicate("amdgpu", 1) {
		t.Error("compute rung should match amdgpu+tiled")
	}
	if !rungs[1].predicate("amdgpu", 1) {
		t.Error("dma rung should also match amdgpu+tiled (fallback after compute failure)")
	}

	// Linear amdgpu framebuffer: only the dma rung applies.
	if rungs[0].predicate("amdgpu", 0) {
		t.Error("compute rung should not match a linear modifier")
	}
	if !rungs[1].predicate("amdgpu", 0) {
		t.Error("dma rung should match amdgpu+linear")
	}

	// Non-amdgpu driver: neither rung applies, leaving only the dumb-buffer shadow.
	if rungs[0].predicate("i915", 1) || rungs[1].predicate("i915", 1) {
		t.Error("no rung should match a non-amdgpu driver")
	}
}
