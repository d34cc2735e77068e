package vkcompute

import "testing"

func TestScopeReleaseIsLIFO(t *testing.T) {
	var order []int
	sc := &scope{}
	sc.defer_(func() { order = append(order, 1) })
	sc.defer_(func() { order = append(order, 2) })
	sc.defer_(func() { order = append(order, 3) })
	sc.release()

	want := []int{3, 2, 1}
	if len(order) != len(want) {
		t.Fatalf("got %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("got %v, want %v", order, want)
		}
	}
}

func TestScopeCommitSuppressesRelease(t *testing.T) {
	ran := false
	sc := &scope{}
	sc.defer_(func() { ran = true })
	sc.commit()
	sc.release()
	if ran {
		t.Fatal("commit did not suppress the registered cleanup")
	}
}

func TestScopeReleaseTwiceIsSafe(t *testing.T) {
	n := 0
	sc := &scope{}
	sc.defer_(func() { n++ })
	sc.release()
	sc.release()
	if n != 1 {
		t.Fatalf("cleanup ran %d times, want 1", n)
	}
}
