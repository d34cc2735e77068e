package tonemap

import "testing"

func TestWorkgroupCountRoundsUp(t *testing.T) {
	cases := []struct {
		w, h    uint32
		wantX   uint32
		wantY   uint32
	}{
		{16, 16, 1, 1},
		{17, 16, 2, 1},
		{1920, 1080, 120, 68},
		{1, 1, 1, 1},
	}
	for _, c := range cases {
		gx, gy := workgroupCount(c.w, c.h)
		if gx != c.wantX || gy != c.wantY {
			t.Errorf("workgroupCount(%d,%d) = (%d,%d), want (%d,%d)", c.w, c.h, gx, gy, c.wantX, c.wantY)
		}
	}
}
