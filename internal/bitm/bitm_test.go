// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package bitm

import (
	"testing"
	"unsafe"
)

func TestNbit(t *testing.T) {
	for _, x := range [...][2]int{
		{int(unsafe.Sizeof(uint(0))) * 8, (&Bitm[uint]{}).nbit()},
		{int(unsafe.Sizeof(uint8(0))) * 8, (&Bitm[uint8]{}).nbit()},
		{int(unsafe.Sizeof(uint16(0))) * 8, (&Bitm[uint16]{}).nbit()},
		{int(unsafe.Sizeof(uint32(0))) * 8, (&Bitm[uint32]{}).nbit()},
		{int(unsafe.Sizeof(uint64(0))) * 8, (&Bitm[uint64]{}).nbit()},
		{int(unsafe.Sizeof(uintptr(0))) * 8, (&Bitm[uintptr]{}).nbit()},
	} {
		if x[0] != x[1] {
			t.Fatalf("Bitm[T].nbit:\nhave %v\nwant %v", x[0], x[1])
		}
	}
}

func TestZero(t *testing.T) {
	var bitm16 Bitm[uint16]
	if bitm16.m != nil {
		t.Fatalf("bitm16.m:\nhave %v\nwant nil", bitm16.m)
	}
	if bitm16.rem != 0 {
		t.Fatalf("bitm16.rem:\nhave %v\nwant 0", bitm16.rem)
	}
	if n := bitm16.Len(); n != 0 {
		t.Fatalf("bitm16.Len:\nhave %v\nwant 0", n)
	}
	if n := bitm16.Cap(); n != 0 {
		t.Fatalf("bitm16.Cap:\nhave %v\nwant 0", n)
	}
}

func TestGrow(t *testing.T) {
	var bitm8 Bitm[uint8]
	if idx := bitm8.Grow(2); idx != 0 {
		t.Fatalf("bitm8.Grow:\nhave %v\nwant 0", idx)
	}
	if n := bitm8.Cap(); n != 16 {
		t.Fatalf("bitm8.Cap:\nhave %v\nwant 16", n)
	}
	if n := bitm8.Len(); n != 0 {
		t.Fatalf("bitm8.Len:\nhave %v\nwant 0", n)
	}
	if idx := bitm8.Grow(1); idx != 16 {
		t.Fatalf("bitm8.Grow:\nhave %v\nwant 16", idx)
	}
	if n := bitm8.Cap(); n != 24 {
		t.Fatalf("bitm8.Cap:\nhave %v\nwant 24", n)
	}
	if idx := bitm8.Grow(0); idx != 24 {
		t.Fatalf("bitm8.Grow:\nhave %v\nwant 24", idx)
	}
	if n := bitm8.Cap(); n != 24 {
		t.Fatalf("bitm8.Cap:\nhave %v\nwant 24", n)
	}
}

func TestSetAndIsSet(t *testing.T) {
	var bitm32 Bitm[uint32]
	bitm32.Grow(1)
	for _, i := range [...]int{0, 5, 31} {
		if bitm32.IsSet(i) {
			t.Fatalf("bitm32.IsSet(%v):\nhave true\nwant false", i)
		}
		bitm32.Set(i)
		if !bitm32.IsSet(i) {
			t.Fatalf("bitm32.IsSet(%v):\nhave false\nwant true", i)
		}
	}
	if n := bitm32.Len(); n != 3 {
		t.Fatalf("bitm32.Len:\nhave %v\nwant 3", n)
	}
	// Setting an already-set bit must not double-count it.
	bitm32.Set(5)
	if n := bitm32.Len(); n != 3 {
		t.Fatalf("bitm32.Len (re-set):\nhave %v\nwant 3", n)
	}
}

func TestUnset(t *testing.T) {
	var bitm32 Bitm[uint32]
	bitm32.Grow(1)
	bitm32.Set(3)
	bitm32.Set(9)
	if n := bitm32.Len(); n != 2 {
		t.Fatalf("bitm32.Len:\nhave %v\nwant 2", n)
	}
	bitm32.Unset(3)
	if bitm32.IsSet(3) {
		t.Fatalf("bitm32.IsSet(3):\nhave true\nwant false")
	}
	if n := bitm32.Len(); n != 1 {
		t.Fatalf("bitm32.Len:\nhave %v\nwant 1", n)
	}
	// Unsetting an already-free bit must not underflow rem.
	bitm32.Unset(3)
	if n := bitm32.Len(); n != 1 {
		t.Fatalf("bitm32.Len (double unset):\nhave %v\nwant 1", n)
	}
	bitm32.Unset(9)
	if n := bitm32.Len(); n != 0 {
		t.Fatalf("bitm32.Len:\nhave %v\nwant 0", n)
	}
}

func TestAlloc(t *testing.T) {
	var bitm8 Bitm[uint8]
	// Allocating against an empty map must grow it first.
	idx := bitm8.Alloc(1)
	if idx != 0 {
		t.Fatalf("bitm8.Alloc:\nhave %v\nwant 0", idx)
	}
	if n := bitm8.Cap(); n != 8 {
		t.Fatalf("bitm8.Cap:\nhave %v\nwant 8", n)
	}

	// Allocate every remaining bit in the first word; each index must be
	// distinct and already-allocated bits must never repeat.
	seen := map[int]bool{idx: true}
	for i := 0; i < 7; i++ {
		idx := bitm8.Alloc(1)
		if seen[idx] {
			t.Fatalf("bitm8.Alloc: index %v allocated twice", idx)
		}
		seen[idx] = true
	}
	if n := bitm8.Len(); n != 8 {
		t.Fatalf("bitm8.Len:\nhave %v\nwant 8", n)
	}

	// The map is now full; the next call must grow by growBy before
	// allocating, rather than reusing a set bit.
	idx = bitm8.Alloc(2)
	if idx != 8 {
		t.Fatalf("bitm8.Alloc (growth):\nhave %v\nwant 8", idx)
	}
	if n := bitm8.Cap(); n != 24 {
		t.Fatalf("bitm8.Cap:\nhave %v\nwant 24", n)
	}

	// Freeing a bit makes it available again to the next Alloc.
	bitm8.Unset(3)
	idx = bitm8.Alloc(1)
	if idx != 3 {
		t.Fatalf("bitm8.Alloc (reuse after Unset):\nhave %v\nwant 3", idx)
	}
}
