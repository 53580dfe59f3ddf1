// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package membuf_test

import (
	"testing"

	membuf "code.hybscloud.com/membuf"
)

func newTestBuffer(t *testing.T, size int) membuf.Buffer {
	t.Helper()
	a := membuf.NewHeapAllocator()
	t.Cleanup(func() { _ = a.Close() })
	buf, err := a.Allocate(size)
	if err != nil {
		t.Fatalf("Allocate(%d): %v", size, err)
	}
	t.Cleanup(func() { _ = buf.Close() })
	return buf
}

func TestBufferReadWriteRoundTrip(t *testing.T) {
	buf := newTestBuffer(t, 32)
	if err := buf.WriteUint8(0x11); err != nil {
		t.Fatalf("WriteUint8: %v", err)
	}
	if err := buf.WriteUint16(0x2233); err != nil {
		t.Fatalf("WriteUint16: %v", err)
	}
	if err := buf.WriteUint32(0x44556677); err != nil {
		t.Fatalf("WriteUint32: %v", err)
	}
	if err := buf.WriteUint64(0x8899AABBCCDDEEFF); err != nil {
		t.Fatalf("WriteUint64: %v", err)
	}

	if v, err := buf.ReadUint8(); err != nil || v != 0x11 {
		t.Errorf("ReadUint8() = %#x, %v; want 0x11, nil", v, err)
	}
	if v, err := buf.ReadUint16(); err != nil || v != 0x2233 {
		t.Errorf("ReadUint16() = %#x, %v; want 0x2233, nil", v, err)
	}
	if v, err := buf.ReadUint32(); err != nil || v != 0x44556677 {
		t.Errorf("ReadUint32() = %#x, %v; want 0x44556677, nil", v, err)
	}
	if v, err := buf.ReadUint64(); err != nil || v != 0x8899AABBCCDDEEFF {
		t.Errorf("ReadUint64() = %#x, %v; want 0x8899AABBCCDDEEFF, nil", v, err)
	}
}

func TestBufferUint24RoundTrip(t *testing.T) {
	buf := newTestBuffer(t, 8)
	buf.SetOrder(membuf.BigEndian)
	if err := buf.WriteUint24(0xABCDEF); err != nil {
		t.Fatalf("WriteUint24: %v", err)
	}
	if v, err := buf.ReadUint24(); err != nil || v != 0xABCDEF {
		t.Errorf("ReadUint24() = %#x, %v; want 0xABCDEF, nil", v, err)
	}
}

func TestBufferInt24SignExtension(t *testing.T) {
	buf := newTestBuffer(t, 8)
	if err := buf.WriteInt24(-1); err != nil {
		t.Fatalf("WriteInt24: %v", err)
	}
	v, err := buf.ReadInt24()
	if err != nil {
		t.Fatalf("ReadInt24: %v", err)
	}
	if v != -1 {
		t.Errorf("ReadInt24() = %d, want -1", v)
	}
}

func TestBufferByteOrder(t *testing.T) {
	big := newTestBuffer(t, 4)
	big.SetOrder(membuf.BigEndian)
	if err := big.WriteUint32(0x01020304); err != nil {
		t.Fatalf("WriteUint32: %v", err)
	}
	b0, _ := big.GetUint8(0)
	if b0 != 0x01 {
		t.Errorf("big-endian first byte = %#x, want 0x01", b0)
	}

	little := newTestBuffer(t, 4)
	little.SetOrder(membuf.LittleEndian)
	if err := little.WriteUint32(0x01020304); err != nil {
		t.Fatalf("WriteUint32: %v", err)
	}
	l0, _ := little.GetUint8(0)
	if l0 != 0x04 {
		t.Errorf("little-endian first byte = %#x, want 0x04", l0)
	}
}

func TestBufferWriteBeyondCapacityFails(t *testing.T) {
	buf := newTestBuffer(t, 2)
	if err := buf.WriteUint8(1); err != nil {
		t.Fatalf("WriteUint8: %v", err)
	}
	if err := buf.WriteUint8(2); err != nil {
		t.Fatalf("WriteUint8: %v", err)
	}
	if err := buf.WriteUint8(3); err == nil {
		t.Error("expected write past capacity to fail")
	}
}

func TestBufferReadBeyondWriteOffsetFails(t *testing.T) {
	buf := newTestBuffer(t, 4)
	if _, err := buf.ReadUint8(); err == nil {
		t.Error("expected read with nothing written yet to fail")
	}
}

func TestBufferMakeReadOnlyRejectsWrites(t *testing.T) {
	buf := newTestBuffer(t, 4)
	buf.MakeReadOnly()
	if !buf.ReadOnly() {
		t.Fatal("ReadOnly() should report true")
	}
	if err := buf.WriteUint8(1); err == nil {
		t.Error("expected write on a read-only buffer to fail")
	}
}

func TestBufferSliceIsIndependentView(t *testing.T) {
	buf := newTestBuffer(t, 16)
	for i := 0; i < 16; i++ {
		if err := buf.WriteUint8(byte(i)); err != nil {
			t.Fatalf("WriteUint8(%d): %v", i, err)
		}
	}

	sl, err := buf.Slice(4, 4)
	if err != nil {
		t.Fatalf("Slice: %v", err)
	}
	defer sl.Close()

	for i := 0; i < 4; i++ {
		v, err := sl.GetUint8(i)
		if err != nil {
			t.Fatalf("GetUint8(%d): %v", i, err)
		}
		if v != byte(4+i) {
			t.Errorf("sl[%d] = %d, want %d", i, v, 4+i)
		}
	}
}

func TestBufferSplitProducesDisjointRanges(t *testing.T) {
	buf := newTestBuffer(t, 8)
	for i := 0; i < 8; i++ {
		if err := buf.WriteUint8(byte(i)); err != nil {
			t.Fatalf("WriteUint8(%d): %v", i, err)
		}
	}

	left, err := buf.Split(4)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	defer left.Close()

	if left.Capacity() != 4 {
		t.Errorf("left.Capacity() = %d, want 4", left.Capacity())
	}
	if buf.Capacity() != 4 {
		t.Errorf("buf.Capacity() after split = %d, want 4", buf.Capacity())
	}
	v, err := buf.GetUint8(0)
	if err != nil {
		t.Fatalf("GetUint8: %v", err)
	}
	if v != 4 {
		t.Errorf("right half's first byte = %d, want 4", v)
	}
}

func TestBufferCompactMovesUnreadBytesToFront(t *testing.T) {
	buf := newTestBuffer(t, 8)
	for i := 0; i < 8; i++ {
		if err := buf.WriteUint8(byte(i)); err != nil {
			t.Fatalf("WriteUint8(%d): %v", i, err)
		}
	}
	if err := buf.SetReadOffset(4); err != nil {
		t.Fatalf("SetReadOffset: %v", err)
	}
	if err := buf.Compact(); err != nil {
		t.Fatalf("Compact: %v", err)
	}
	if buf.ReadOffset() != 0 {
		t.Errorf("ReadOffset() after Compact = %d, want 0", buf.ReadOffset())
	}
	if buf.WriteOffset() != 4 {
		t.Errorf("WriteOffset() after Compact = %d, want 4", buf.WriteOffset())
	}
	v, err := buf.GetUint8(0)
	if err != nil {
		t.Fatalf("GetUint8: %v", err)
	}
	if v != 4 {
		t.Errorf("compacted byte 0 = %d, want 4", v)
	}
}

func TestBufferEnsureWritableGrowsWhenNoRoomToCompact(t *testing.T) {
	buf := newTestBuffer(t, 4)
	for i := 0; i < 4; i++ {
		if err := buf.WriteUint8(byte(i)); err != nil {
			t.Fatalf("WriteUint8(%d): %v", i, err)
		}
	}
	if err := buf.EnsureWritable(4, 8, true); err != nil {
		t.Fatalf("EnsureWritable: %v", err)
	}
	if buf.Capacity() < 8 {
		t.Errorf("Capacity() after EnsureWritable = %d, want >= 8", buf.Capacity())
	}
	if err := buf.WriteUint32(0x12345678); err != nil {
		t.Fatalf("WriteUint32 after growth: %v", err)
	}
}

func TestBufferCopyIntoByteSlice(t *testing.T) {
	buf := newTestBuffer(t, 4)
	for i := 0; i < 4; i++ {
		if err := buf.WriteUint8(byte(10 + i)); err != nil {
			t.Fatalf("WriteUint8(%d): %v", i, err)
		}
	}
	dst := make([]byte, 4)
	if err := buf.CopyInto(0, dst, 0, 4); err != nil {
		t.Fatalf("CopyInto: %v", err)
	}
	want := []byte{10, 11, 12, 13}
	for i, w := range want {
		if dst[i] != w {
			t.Errorf("dst[%d] = %d, want %d", i, dst[i], w)
		}
	}
}

func TestBufferAcquireRequiresMatchingClose(t *testing.T) {
	buf := newTestBuffer(t, 4)
	second := buf.Acquire()
	if buf.Owned() {
		t.Error("a buffer with an outstanding Acquire should not report Owned")
	}
	if err := second.Close(); err != nil {
		t.Fatalf("Close acquired handle: %v", err)
	}
	if !buf.Accessible() {
		t.Error("buffer should remain accessible after only one of two references closes")
	}
}

func TestBufferForEachReadableVisitsUnreadRange(t *testing.T) {
	buf := newTestBuffer(t, 8)
	for i := 0; i < 8; i++ {
		if err := buf.WriteUint8(byte(i)); err != nil {
			t.Fatalf("WriteUint8(%d): %v", i, err)
		}
	}
	if _, err := buf.ReadUint8(); err != nil {
		t.Fatalf("ReadUint8: %v", err)
	}

	var gotLen uint64
	n := buf.ForEachReadable(func(i int, iov membuf.IoVec) bool {
		gotLen = iov.Len
		return true
	})
	if n != 1 {
		t.Errorf("ForEachReadable visited %d components, want 1", n)
	}
	if gotLen != 7 {
		t.Errorf("visited iov.Len = %d, want 7", gotLen)
	}
}

func TestBufferOpenCursorReadsForward(t *testing.T) {
	buf := newTestBuffer(t, 4)
	for i := 0; i < 4; i++ {
		if err := buf.WriteUint8(byte(i)); err != nil {
			t.Fatalf("WriteUint8(%d): %v", i, err)
		}
	}
	cur, err := buf.OpenCursor(0, 4)
	if err != nil {
		t.Fatalf("OpenCursor: %v", err)
	}
	defer cur.Close()

	for i := 0; i < 4; i++ {
		b, ok := cur.Next()
		if !ok {
			t.Fatalf("cursor exhausted early at %d", i)
		}
		if b != byte(i) {
			t.Errorf("cursor byte %d = %d, want %d", i, b, i)
		}
	}
	if _, ok := cur.Next(); ok {
		t.Error("cursor should be exhausted")
	}
}

func TestBufferOpenReverseCursor(t *testing.T) {
	buf := newTestBuffer(t, 4)
	for i := 0; i < 4; i++ {
		if err := buf.WriteUint8(byte(i)); err != nil {
			t.Fatalf("WriteUint8(%d): %v", i, err)
		}
	}
	cur, err := buf.OpenReverseCursor(3, 4)
	if err != nil {
		t.Fatalf("OpenReverseCursor: %v", err)
	}
	defer cur.Close()

	for i := 3; i >= 0; i-- {
		b, ok := cur.Next()
		if !ok {
			t.Fatalf("cursor exhausted early")
		}
		if b != byte(i) {
			t.Errorf("reverse cursor byte = %d, want %d", b, i)
		}
	}
}

func TestBufferCloseTwiceIsSafe(t *testing.T) {
	a := membuf.NewHeapAllocator()
	defer a.Close()
	buf, err := a.Allocate(4)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if err := buf.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := buf.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if buf.Accessible() {
		t.Error("buffer should not be accessible after Close")
	}
}
