package capture

import "testing"

func TestFallbackPatternFormula(t *testing.T) {
	w, h := 16, 8
	buf := fallbackPattern(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := (y*w + x) * 4
			wantR := byte(x * 255 / w)
			wantG := byte(y * 255 / h)
			if buf[i+2] != wantR {
				t.Fatalf("pixel (%d,%d) R: got %d, want %d", x, y, buf[i+2], wantR)
			}
			if buf[i+1] != wantG {
				t.Fatalf("pixel (%d,%d) G: got %d, want %d", x, y, buf[i+1], wantG)
			}
			if buf[i+0] != 128 {
				t.Fatalf("pixel (%d,%d) B: got %d, want 128", x, y, buf[i+0])
			}
			if buf[i+3] != 255 {
				t.Fatalf("pixel (%d,%d) A: got %d, want 255", x, y, buf[i+3])
			}
		}
	}
}
