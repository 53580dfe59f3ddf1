// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package membuf_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	membuf "code.hybscloud.com/membuf"
)

func TestHeapManagerAllocateSharedAndSlice(t *testing.T) {
	buf, err := membuf.HeapManager.AllocateShared(nil, 64, nil)
	if err != nil {
		t.Fatalf("AllocateShared: %v", err)
	}
	defer buf.Close()

	if buf.Capacity() != 64 {
		t.Errorf("Capacity() = %d, want 64", buf.Capacity())
	}
	if err := buf.WriteUint32(0x11223344); err != nil {
		t.Fatalf("WriteUint32: %v", err)
	}

	region, err := membuf.HeapManager.UnwrapRecoverable(buf)
	if err != nil {
		t.Fatalf("UnwrapRecoverable: %v", err)
	}
	if region.Capacity != 64 {
		t.Errorf("region.Capacity = %d, want 64", region.Capacity)
	}
}

func TestHeapManagerRecoverRoundTrip(t *testing.T) {
	buf, err := membuf.HeapManager.AllocateShared(nil, 32, nil)
	if err != nil {
		t.Fatalf("AllocateShared: %v", err)
	}
	region, err := membuf.HeapManager.UnwrapRecoverable(buf)
	if err != nil {
		t.Fatalf("UnwrapRecoverable: %v", err)
	}
	if err := buf.Close(); err != nil {
		t.Fatalf("Close original: %v", err)
	}

	var released bool
	recovered, err := membuf.HeapManager.Recover(nil, region, func() { released = true })
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if recovered.Capacity() != 32 {
		t.Errorf("recovered.Capacity() = %d, want 32", recovered.Capacity())
	}
	if err := recovered.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !released {
		t.Error("expected the drop passed to Recover to fire on Close")
	}
}

func TestHeapManagerSliceMemory(t *testing.T) {
	buf, err := membuf.HeapManager.AllocateShared(nil, 16, nil)
	if err != nil {
		t.Fatalf("AllocateShared: %v", err)
	}
	defer buf.Close()

	region, err := membuf.HeapManager.UnwrapRecoverable(buf)
	if err != nil {
		t.Fatalf("UnwrapRecoverable: %v", err)
	}

	sub, err := membuf.HeapManager.SliceMemory(region, 4, 8)
	if err != nil {
		t.Fatalf("SliceMemory: %v", err)
	}
	if sub.Capacity != 8 {
		t.Errorf("sub.Capacity = %d, want 8", sub.Capacity)
	}
}

// regionShape is a comparable projection of Region's size-relevant fields,
// used to sidestep comparing the unsafe.Pointer Base field directly.
type regionShape struct {
	Capacity int
	Native   bool
}

func toRegionShape(r membuf.Region) regionShape {
	return regionShape{Capacity: r.Capacity, Native: r.Native}
}

func TestHeapManagerSliceMemoryShape(t *testing.T) {
	buf, err := membuf.HeapManager.AllocateShared(nil, 16, nil)
	if err != nil {
		t.Fatalf("AllocateShared: %v", err)
	}
	defer buf.Close()

	region, err := membuf.HeapManager.UnwrapRecoverable(buf)
	if err != nil {
		t.Fatalf("UnwrapRecoverable: %v", err)
	}
	sub, err := membuf.HeapManager.SliceMemory(region, 0, 16)
	if err != nil {
		t.Fatalf("SliceMemory: %v", err)
	}

	want := regionShape{Capacity: 16, Native: false}
	if diff := cmp.Diff(want, toRegionShape(sub), cmpopts.EquateComparable()); diff != "" {
		t.Errorf("full-width slice shape mismatch (-want +got):\n%s", diff)
	}
}

func TestHeapManagerIsNativeAndName(t *testing.T) {
	if membuf.HeapManager.IsNative() {
		t.Error("HeapManager should not be native")
	}
	if membuf.HeapManager.ImplementationName() == "" {
		t.Error("ImplementationName() should not be empty")
	}
}

func TestHeapManagerAllocateConstChild(t *testing.T) {
	parent, err := membuf.HeapManager.AllocateShared(nil, 8, nil)
	if err != nil {
		t.Fatalf("AllocateShared: %v", err)
	}
	defer parent.Close()
	if err := parent.WriteUint8(0xAB); err != nil {
		t.Fatalf("WriteUint8: %v", err)
	}

	child, err := membuf.HeapManager.AllocateConstChild(parent)
	if err != nil {
		t.Fatalf("AllocateConstChild: %v", err)
	}
	defer child.Close()
	if !child.ReadOnly() {
		t.Error("const child should be read-only")
	}
	v, err := child.ReadUint8()
	if err != nil {
		t.Fatalf("ReadUint8: %v", err)
	}
	if v != 0xAB {
		t.Errorf("child byte = %#x, want 0xAB", v)
	}
}
