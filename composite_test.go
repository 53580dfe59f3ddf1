// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package membuf_test

import (
	"testing"

	membuf "code.hybscloud.com/membuf"
)

func filledBuffer(t *testing.T, a membuf.Allocator, bytes ...byte) membuf.Buffer {
	t.Helper()
	buf, err := a.Allocate(len(bytes))
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	for _, b := range bytes {
		if err := buf.WriteUint8(b); err != nil {
			t.Fatalf("WriteUint8: %v", err)
		}
	}
	return buf
}

func TestComposeReadsAcrossComponents(t *testing.T) {
	a := membuf.NewHeapAllocator()
	defer a.Close()

	part1 := filledBuffer(t, a, 1, 2, 3)
	part2 := filledBuffer(t, a, 4, 5, 6)
	defer part1.Close()
	defer part2.Close()

	comp, err := membuf.Compose(nil, part1, part2)
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	defer comp.Close()

	if comp.Capacity() != 6 {
		t.Fatalf("Capacity() = %d, want 6", comp.Capacity())
	}
	for i := byte(0); i < 6; i++ {
		v, err := comp.ReadUint8()
		if err != nil {
			t.Fatalf("ReadUint8 at %d: %v", i, err)
		}
		if v != i+1 {
			t.Errorf("byte %d = %d, want %d", i, v, i+1)
		}
	}
}

func TestComposeValueStraddlingBoundary(t *testing.T) {
	a := membuf.NewHeapAllocator()
	defer a.Close()

	// A big-endian uint32 split 2/2 across two components: 0x01020304.
	part1 := filledBuffer(t, a, 0x01, 0x02)
	part2 := filledBuffer(t, a, 0x03, 0x04)
	defer part1.Close()
	defer part2.Close()

	comp, err := membuf.Compose(nil, part1, part2)
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	defer comp.Close()
	comp.SetOrder(membuf.BigEndian)

	v, err := comp.GetUint32(0)
	if err != nil {
		t.Fatalf("GetUint32: %v", err)
	}
	if v != 0x01020304 {
		t.Errorf("straddling GetUint32() = %#x, want 0x01020304", v)
	}
}

func TestComposeRejectsMismatchedOrder(t *testing.T) {
	a := membuf.NewHeapAllocator()
	defer a.Close()

	part1 := filledBuffer(t, a, 1)
	part2 := filledBuffer(t, a, 2)
	defer part1.Close()
	defer part2.Close()
	part1.SetOrder(membuf.BigEndian)
	part2.SetOrder(membuf.LittleEndian)

	if _, err := membuf.Compose(nil, part1, part2); err == nil {
		t.Error("expected Compose to reject components with mismatched byte order")
	}
}

func TestComposeOriginalComponentsRemainOpenAfterCompose(t *testing.T) {
	a := membuf.NewHeapAllocator()
	defer a.Close()

	part1 := filledBuffer(t, a, 1)
	defer part1.Close()

	comp, err := membuf.Compose(nil, part1)
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}

	if err := comp.Close(); err != nil {
		t.Fatalf("Close composite: %v", err)
	}
	// Compose acquires its own reference to part1, so the caller's handle
	// must still be usable after the composite closes.
	if !part1.Accessible() {
		t.Error("caller's original component reference should remain accessible")
	}
}

func TestComposeSendsReceivesInOrder(t *testing.T) {
	a := membuf.NewHeapAllocator()
	defer a.Close()

	part1 := filledBuffer(t, a, 1, 2)
	part2 := filledBuffer(t, a, 3, 4)

	token1, err := part1.Send()
	if err != nil {
		t.Fatalf("Send part1: %v", err)
	}
	token2, err := part2.Send()
	if err != nil {
		t.Fatalf("Send part2: %v", err)
	}

	comp, err := membuf.ComposeSends(nil, token1, token2)
	if err != nil {
		t.Fatalf("ComposeSends: %v", err)
	}
	defer comp.Close()

	if comp.Capacity() != 4 {
		t.Errorf("Capacity() = %d, want 4", comp.Capacity())
	}
}

func TestCompositeSplitAtComponentBoundary(t *testing.T) {
	a := membuf.NewHeapAllocator()
	defer a.Close()

	part1 := filledBuffer(t, a, 1, 2)
	part2 := filledBuffer(t, a, 3, 4)
	defer part1.Close()
	defer part2.Close()

	comp, err := membuf.Compose(nil, part1, part2)
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	defer comp.Close()

	left, err := comp.Split(2)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	defer left.Close()

	if left.Capacity() != 2 {
		t.Errorf("left.Capacity() = %d, want 2", left.Capacity())
	}
	if comp.Capacity() != 2 {
		t.Errorf("comp.Capacity() after split = %d, want 2", comp.Capacity())
	}
}

func TestCompositeExtendWithGrowsCapacity(t *testing.T) {
	a := membuf.NewHeapAllocator()
	defer a.Close()

	part1 := filledBuffer(t, a, 1, 2)
	defer part1.Close()
	part2 := filledBuffer(t, a, 3, 4)
	defer part2.Close()

	comp, err := membuf.Compose(nil, part1)
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	defer comp.Close()

	ext, ok := comp.(interface{ ExtendWith(membuf.Buffer) error })
	if !ok {
		t.Fatal("composite should expose ExtendWith")
	}
	if err := ext.ExtendWith(part2); err != nil {
		t.Fatalf("ExtendWith: %v", err)
	}
	if comp.Capacity() != 4 {
		t.Errorf("Capacity() after ExtendWith = %d, want 4", comp.Capacity())
	}
}

func TestCompositeEnsureWritableUsesAllocFn(t *testing.T) {
	a := membuf.NewHeapAllocator()
	defer a.Close()

	part1 := filledBuffer(t, a, 1, 2)
	defer part1.Close()

	allocFn := func(size int) (membuf.Buffer, error) { return a.Allocate(size) }
	comp, err := membuf.Compose(allocFn, part1)
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	defer comp.Close()

	if err := comp.EnsureWritable(16, 16, true); err != nil {
		t.Fatalf("EnsureWritable: %v", err)
	}
	if comp.Capacity() < 18 {
		t.Errorf("Capacity() after EnsureWritable = %d, want >= 18", comp.Capacity())
	}
}

func TestCompositeForEachReadableAcrossComponents(t *testing.T) {
	a := membuf.NewHeapAllocator()
	defer a.Close()

	part1 := filledBuffer(t, a, 1, 2, 3)
	part2 := filledBuffer(t, a, 4, 5)
	defer part1.Close()
	defer part2.Close()

	comp, err := membuf.Compose(nil, part1, part2)
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	defer comp.Close()

	var visited int
	n := comp.ForEachReadable(func(i int, iov membuf.IoVec) bool {
		visited++
		return true
	})
	if n != 2 || visited != 2 {
		t.Errorf("ForEachReadable visited %d (n=%d), want 2 components", visited, n)
	}
}
