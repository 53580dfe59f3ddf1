// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package membuf

import (
	"encoding/binary"
	"math"
	"sync/atomic"

	pkgerrors "github.com/pkg/errors"
)

// ByteOrder is the big-endian/little-endian flag a Buffer consults for
// every multi-byte accessor. membuf reuses encoding/binary.ByteOrder rather
// than inventing a parallel enum: BigEndian and LittleEndian below are the
// two values spec.md §3 allows ("native by default" is resolved once, at
// buffer-creation time, to one of these two concrete values).
type ByteOrder = binary.ByteOrder

var (
	// BigEndian packs multi-byte values most-significant-byte first.
	BigEndian ByteOrder = binary.BigEndian
	// LittleEndian packs multi-byte values least-significant-byte first.
	LittleEndian ByteOrder = binary.LittleEndian
	// NativeEndian is resolved once at init time to whichever of the above
	// matches the host's in-memory integer representation.
	NativeEndian = resolveNativeEndian()
)

func resolveNativeEndian() ByteOrder {
	if binary.NativeEndian.Uint16([]byte{0x01, 0x00}) == 0x0001 {
		return LittleEndian
	}
	return BigEndian
}

func isBigEndian(order ByteOrder) bool {
	return order == BigEndian
}

// Buffer is a seekable, typed, endian-aware view over a contiguous byte
// region with independent read and write cursors and a strict ownership
// discipline (spec.md §3, §4.1, §4.2). Both a plain allocated buffer
// (bufferImpl) and CompositeBuffer satisfy this interface.
type Buffer interface {
	Capacity() int
	ReadOffset() int
	SetReadOffset(off int) error
	WriteOffset() int
	SetWriteOffset(off int) error
	Order() ByteOrder
	SetOrder(order ByteOrder)
	ReadOnly() bool
	MakeReadOnly()
	Accessible() bool
	Owned() bool

	ReadUint8() (uint8, error)
	ReadInt8() (int8, error)
	ReadUint16() (uint16, error)
	ReadInt16() (int16, error)
	ReadUint24() (uint32, error)
	ReadInt24() (int32, error)
	ReadUint32() (uint32, error)
	ReadInt32() (int32, error)
	ReadUint64() (uint64, error)
	ReadInt64() (int64, error)
	ReadFloat32() (float32, error)
	ReadFloat64() (float64, error)

	WriteUint8(v uint8) error
	WriteInt8(v int8) error
	WriteUint16(v uint16) error
	WriteInt16(v int16) error
	WriteUint24(v uint32) error
	WriteInt24(v int32) error
	WriteUint32(v uint32) error
	WriteInt32(v int32) error
	WriteUint64(v uint64) error
	WriteInt64(v int64) error
	WriteFloat32(v float32) error
	WriteFloat64(v float64) error

	GetUint8(i int) (uint8, error)
	GetInt8(i int) (int8, error)
	GetUint16(i int) (uint16, error)
	GetInt16(i int) (int16, error)
	GetUint24(i int) (uint32, error)
	GetInt24(i int) (int32, error)
	GetUint32(i int) (uint32, error)
	GetInt32(i int) (int32, error)
	GetUint64(i int) (uint64, error)
	GetInt64(i int) (int64, error)
	GetFloat32(i int) (float32, error)
	GetFloat64(i int) (float64, error)

	SetUint8(i int, v uint8) error
	SetInt8(i int, v int8) error
	SetUint16(i int, v uint16) error
	SetInt16(i int, v int16) error
	SetUint24(i int, v uint32) error
	SetInt24(i int, v int32) error
	SetUint32(i int, v uint32) error
	SetInt32(i int, v int32) error
	SetUint64(i int, v uint64) error
	SetInt64(i int, v int64) error
	SetFloat32(i int, v float32) error
	SetFloat64(i int, v float64) error

	Fill(b byte) error
	// CopyInto copies length bytes from this buffer at srcOff into dst at
	// dstOff. dst must be []byte or Buffer. Overlapping ranges within the
	// same destination buffer are copied back-to-front, per spec.md §4.1.
	CopyInto(srcOff int, dst any, dstOff, length int) error

	// Slice returns an independently accessible read-write view over the
	// same region; the region's share count goes up. The caller must Close
	// it. Unlike Split, the returned view is not disjoint from this buffer.
	Slice(off, length int) (Buffer, error)

	// Split partitions this OWNED buffer's range into two disjoint OWNED
	// buffers: the receiver owns [0,at) and this buffer is mutated in
	// place to retain [at,capacity), its cursors shifted accordingly.
	Split(at int) (Buffer, error)

	// Compact moves [ReadOffset,WriteOffset) to [0,WriteOffset-ReadOffset).
	Compact() error

	// EnsureWritable guarantees WriteOffset()+size <= Capacity(), compacting
	// in place when allowCompaction is set and there is enough consumed
	// leading space, else reallocating at least minGrowth additional bytes.
	EnsureWritable(size, minGrowth int, allowCompaction bool) error

	OpenCursor(from, length int) (ByteCursor, error)
	OpenReverseCursor(from, length int) (ByteCursor, error)

	// Acquire increments this buffer's borrow count and returns the same
	// handle; Close must be called once per Acquire (and once for the
	// original allocation) before the underlying Drop fires.
	Acquire() Buffer

	// Send invalidates this OWNED buffer and returns a one-shot transfer
	// token that may be received on another goroutine.
	Send() (*Send[Buffer], error)

	// Close decrements the borrow count; at zero it releases the region.
	Close() error

	// ForEachReadable visits each component with unread bytes (a plain
	// buffer visits itself once), yielding scatter/gather IoVec handles.
	// visit returns false to stop early. The return value is the count
	// visited, or -(count) if visit stopped early.
	ForEachReadable(visit func(i int, iov IoVec) bool) int

	// ForEachWritable is ForEachReadable's write-side counterpart.
	ForEachWritable(visit func(i int, iov IoVec) bool) int
}

// bufferImpl is the simple (non-composite) Buffer implementation: a single
// region plus cursors.
type bufferImpl struct {
	_ noCopy

	region  Region
	manager MemoryManager
	control AllocatorControl

	arc   *arcDrop // allocation-level share count (acquire/split/const-child)
	alias atomic.Int32

	readOff, writeOff int
	order             ByteOrder
	readOnly          bool
	accessible        bool
	constChild        bool

	cleanerSentinel *cleanerBackstop
	disarmCleaner   func()
}

// newOwnedBuffer wraps region in a fresh OWNED Buffer backed by d, a drop
// wrapped in a fresh arc-drop share count of one.
func newOwnedBuffer(region Region, manager MemoryManager, control AllocatorControl, d *drop) *bufferImpl {
	b := &bufferImpl{
		region:     region,
		manager:    manager,
		control:    control,
		arc:        newArcDrop(d),
		order:      NativeEndian,
		accessible: true,
	}
	b.alias.Store(1)
	if region.Native {
		sentinel, disarm := armCleanerBackstop(func() {
			traceEvent("cleaner_fired", region.ID)
			d.fire()
		})
		b.cleanerSentinel = sentinel
		b.disarmCleaner = disarm
	}
	traceEvent("allocate", region.ID)
	return b
}

func (b *bufferImpl) Capacity() int { return b.region.Capacity }
func (b *bufferImpl) ReadOffset() int  { return b.readOff }
func (b *bufferImpl) WriteOffset() int { return b.writeOff }

func (b *bufferImpl) SetReadOffset(off int) error {
	if off < 0 || off > b.writeOff {
		return &IndexOutOfRangeError{Index: int64(off), ReadLimit: int64(b.readOff), WriteLimit: int64(b.writeOff)}
	}
	if !b.accessible {
		return &BufferClosedError{}
	}
	b.readOff = off
	return nil
}

func (b *bufferImpl) SetWriteOffset(off int) error {
	if off < b.readOff || off > b.region.Capacity {
		return &IndexOutOfRangeError{Index: int64(off), ReadLimit: int64(b.readOff), WriteLimit: int64(b.writeOff)}
	}
	if !b.accessible {
		return &BufferClosedError{}
	}
	b.writeOff = off
	return nil
}

func (b *bufferImpl) Order() ByteOrder       { return b.order }
func (b *bufferImpl) SetOrder(order ByteOrder) { b.order = order }
func (b *bufferImpl) ReadOnly() bool          { return b.readOnly }
func (b *bufferImpl) MakeReadOnly()           { b.readOnly = true }
func (b *bufferImpl) Accessible() bool        { return b.accessible }
func (b *bufferImpl) Owned() bool             { return b.accessible && b.alias.Load() == 1 }

func (b *bufferImpl) checkAccessible() error {
	if !b.accessible {
		return &BufferClosedError{}
	}
	return nil
}

func (b *bufferImpl) checkOwned(op string) error {
	if err := b.checkAccessible(); err != nil {
		return err
	}
	if b.alias.Load() != 1 {
		return &NotOwnedError{Op: op}
	}
	return nil
}

func (b *bufferImpl) checkWritable(at, width int) error {
	if err := b.checkAccessible(); err != nil {
		return err
	}
	if b.readOnly {
		return &ReadOnlyError{}
	}
	if at < 0 || at+width > b.region.Capacity {
		return &IndexOutOfRangeError{Index: int64(at), ReadLimit: int64(b.readOff), WriteLimit: int64(b.writeOff)}
	}
	return nil
}

func (b *bufferImpl) checkReadable(at, width int) error {
	if err := b.checkAccessible(); err != nil {
		return err
	}
	if at < 0 || at+width > b.writeOff {
		return &IndexOutOfRangeError{Index: int64(at), ReadLimit: int64(b.readOff), WriteLimit: int64(b.writeOff)}
	}
	return nil
}

func (b *bufferImpl) checkAppendable(width int) error {
	if err := b.checkAccessible(); err != nil {
		return err
	}
	if b.readOnly {
		return &ReadOnlyError{}
	}
	if b.writeOff+width > b.region.Capacity {
		return &IndexOutOfRangeError{Index: int64(b.writeOff), ReadLimit: int64(b.readOff), WriteLimit: int64(b.writeOff)}
	}
	return nil
}

func (b *bufferImpl) bytes() []byte { return b.region.Bytes() }

// rawBytes satisfies composite.go's byteSource interface, letting a
// CompositeBuffer obtain a direct slice into a component for scatter-gather
// IoVec construction without going through that component's own cursors.
func (b *bufferImpl) rawBytes() []byte { return b.bytes() }

// --- indexed (absolute) accessors ---

func (b *bufferImpl) GetUint8(i int) (uint8, error) {
	if err := b.checkReadable(i, 1); err != nil {
		return 0, err
	}
	return b.bytes()[i], nil
}
func (b *bufferImpl) GetInt8(i int) (int8, error) {
	v, err := b.GetUint8(i)
	return int8(v), err
}

func (b *bufferImpl) GetUint16(i int) (uint16, error) {
	if err := b.checkReadable(i, 2); err != nil {
		return 0, err
	}
	return b.order.Uint16(b.bytes()[i:]), nil
}
func (b *bufferImpl) GetInt16(i int) (int16, error) {
	v, err := b.GetUint16(i)
	return int16(v), err
}

func get24(buf []byte, big bool) uint32 {
	if big {
		return uint32(buf[0])<<16 | uint32(buf[1])<<8 | uint32(buf[2])
	}
	return uint32(buf[0]) | uint32(buf[1])<<8 | uint32(buf[2])<<16
}

func put24(buf []byte, v uint32, big bool) {
	if big {
		buf[0], buf[1], buf[2] = byte(v>>16), byte(v>>8), byte(v)
		return
	}
	buf[0], buf[1], buf[2] = byte(v), byte(v>>8), byte(v>>16)
}

func (b *bufferImpl) GetUint24(i int) (uint32, error) {
	if err := b.checkReadable(i, 3); err != nil {
		return 0, err
	}
	return get24(b.bytes()[i:i+3], isBigEndian(b.order)), nil
}
func (b *bufferImpl) GetInt24(i int) (int32, error) {
	v, err := b.GetUint24(i)
	if err != nil {
		return 0, err
	}
	// sign-extend bit 23
	if v&0x800000 != 0 {
		v |= 0xFF000000
	}
	return int32(v), nil
}

func (b *bufferImpl) GetUint32(i int) (uint32, error) {
	if err := b.checkReadable(i, 4); err != nil {
		return 0, err
	}
	return b.order.Uint32(b.bytes()[i:]), nil
}
func (b *bufferImpl) GetInt32(i int) (int32, error) {
	v, err := b.GetUint32(i)
	return int32(v), err
}

func (b *bufferImpl) GetUint64(i int) (uint64, error) {
	if err := b.checkReadable(i, 8); err != nil {
		return 0, err
	}
	return b.order.Uint64(b.bytes()[i:]), nil
}
func (b *bufferImpl) GetInt64(i int) (int64, error) {
	v, err := b.GetUint64(i)
	return int64(v), err
}

func (b *bufferImpl) GetFloat32(i int) (float32, error) {
	v, err := b.GetUint32(i)
	return math.Float32frombits(v), err
}
func (b *bufferImpl) GetFloat64(i int) (float64, error) {
	v, err := b.GetUint64(i)
	return math.Float64frombits(v), err
}

func (b *bufferImpl) SetUint8(i int, v uint8) error {
	if err := b.checkWritable(i, 1); err != nil {
		return err
	}
	b.bytes()[i] = v
	return nil
}
func (b *bufferImpl) SetInt8(i int, v int8) error { return b.SetUint8(i, uint8(v)) }

func (b *bufferImpl) SetUint16(i int, v uint16) error {
	if err := b.checkWritable(i, 2); err != nil {
		return err
	}
	b.order.PutUint16(b.bytes()[i:], v)
	return nil
}
func (b *bufferImpl) SetInt16(i int, v int16) error { return b.SetUint16(i, uint16(v)) }

func (b *bufferImpl) SetUint24(i int, v uint32) error {
	if err := b.checkWritable(i, 3); err != nil {
		return err
	}
	put24(b.bytes()[i:i+3], v, isBigEndian(b.order))
	return nil
}
func (b *bufferImpl) SetInt24(i int, v int32) error { return b.SetUint24(i, uint32(v)&0xFFFFFF) }

func (b *bufferImpl) SetUint32(i int, v uint32) error {
	if err := b.checkWritable(i, 4); err != nil {
		return err
	}
	b.order.PutUint32(b.bytes()[i:], v)
	return nil
}
func (b *bufferImpl) SetInt32(i int, v int32) error { return b.SetUint32(i, uint32(v)) }

func (b *bufferImpl) SetUint64(i int, v uint64) error {
	if err := b.checkWritable(i, 8); err != nil {
		return err
	}
	b.order.PutUint64(b.bytes()[i:], v)
	return nil
}
func (b *bufferImpl) SetInt64(i int, v int64) error { return b.SetUint64(i, uint64(v)) }

func (b *bufferImpl) SetFloat32(i int, v float32) error {
	return b.SetUint32(i, math.Float32bits(v))
}
func (b *bufferImpl) SetFloat64(i int, v float64) error {
	return b.SetUint64(i, math.Float64bits(v))
}

// --- streaming (cursor-advancing) accessors ---

func (b *bufferImpl) ReadUint8() (uint8, error) {
	v, err := b.GetUint8(b.readOff)
	if err == nil {
		b.readOff++
	}
	return v, err
}
func (b *bufferImpl) ReadInt8() (int8, error) {
	v, err := b.ReadUint8()
	return int8(v), err
}
func (b *bufferImpl) ReadUint16() (uint16, error) {
	v, err := b.GetUint16(b.readOff)
	if err == nil {
		b.readOff += 2
	}
	return v, err
}
func (b *bufferImpl) ReadInt16() (int16, error) {
	v, err := b.ReadUint16()
	return int16(v), err
}
func (b *bufferImpl) ReadUint24() (uint32, error) {
	v, err := b.GetUint24(b.readOff)
	if err == nil {
		b.readOff += 3
	}
	return v, err
}
func (b *bufferImpl) ReadInt24() (int32, error) {
	v, err := b.GetInt24(b.readOff)
	if err == nil {
		b.readOff += 3
	}
	return v, err
}
func (b *bufferImpl) ReadUint32() (uint32, error) {
	v, err := b.GetUint32(b.readOff)
	if err == nil {
		b.readOff += 4
	}
	return v, err
}
func (b *bufferImpl) ReadInt32() (int32, error) {
	v, err := b.ReadUint32()
	return int32(v), err
}
func (b *bufferImpl) ReadUint64() (uint64, error) {
	v, err := b.GetUint64(b.readOff)
	if err == nil {
		b.readOff += 8
	}
	return v, err
}
func (b *bufferImpl) ReadInt64() (int64, error) {
	v, err := b.ReadUint64()
	return int64(v), err
}
func (b *bufferImpl) ReadFloat32() (float32, error) {
	v, err := b.ReadUint32()
	return math.Float32frombits(v), err
}
func (b *bufferImpl) ReadFloat64() (float64, error) {
	v, err := b.ReadUint64()
	return math.Float64frombits(v), err
}

func (b *bufferImpl) WriteUint8(v uint8) error {
	if err := b.checkAppendable(1); err != nil {
		return err
	}
	_ = b.SetUint8(b.writeOff, v)
	b.writeOff++
	return nil
}
func (b *bufferImpl) WriteInt8(v int8) error { return b.WriteUint8(uint8(v)) }
func (b *bufferImpl) WriteUint16(v uint16) error {
	if err := b.checkAppendable(2); err != nil {
		return err
	}
	_ = b.SetUint16(b.writeOff, v)
	b.writeOff += 2
	return nil
}
func (b *bufferImpl) WriteInt16(v int16) error { return b.WriteUint16(uint16(v)) }
func (b *bufferImpl) WriteUint24(v uint32) error {
	if err := b.checkAppendable(3); err != nil {
		return err
	}
	_ = b.SetUint24(b.writeOff, v)
	b.writeOff += 3
	return nil
}
func (b *bufferImpl) WriteInt24(v int32) error { return b.WriteUint24(uint32(v) & 0xFFFFFF) }
func (b *bufferImpl) WriteUint32(v uint32) error {
	if err := b.checkAppendable(4); err != nil {
		return err
	}
	_ = b.SetUint32(b.writeOff, v)
	b.writeOff += 4
	return nil
}
func (b *bufferImpl) WriteInt32(v int32) error { return b.WriteUint32(uint32(v)) }
func (b *bufferImpl) WriteUint64(v uint64) error {
	if err := b.checkAppendable(8); err != nil {
		return err
	}
	_ = b.SetUint64(b.writeOff, v)
	b.writeOff += 8
	return nil
}
func (b *bufferImpl) WriteInt64(v int64) error { return b.WriteUint64(uint64(v)) }
func (b *bufferImpl) WriteFloat32(v float32) error {
	return b.WriteUint32(math.Float32bits(v))
}
func (b *bufferImpl) WriteFloat64(v float64) error {
	return b.WriteUint64(math.Float64bits(v))
}

// --- bulk operations ---

func (b *bufferImpl) Fill(v byte) error {
	if err := b.checkAccessible(); err != nil {
		return err
	}
	if b.readOnly {
		return &ReadOnlyError{}
	}
	buf := b.bytes()[:b.region.Capacity]
	for i := range buf {
		buf[i] = v
	}
	return nil
}

func (b *bufferImpl) CopyInto(srcOff int, dst any, dstOff, length int) error {
	if err := b.checkReadable(srcOff, length); err != nil {
		return err
	}
	src := b.bytes()[srcOff : srcOff+length]
	switch d := dst.(type) {
	case []byte:
		if dstOff < 0 || dstOff+length > len(d) {
			return &IndexOutOfRangeError{Index: int64(dstOff), WriteLimit: int64(len(d))}
		}
		// Reverse-iterate when src and dst alias the same backing array so
		// overlapping ranges copy correctly, per spec.md §4.1.
		target := d[dstOff : dstOff+length]
		if overlaps(src, target) {
			for i := length - 1; i >= 0; i-- {
				target[i] = src[i]
			}
		} else {
			copy(target, src)
		}
		return nil
	case *bufferImpl:
		if err := d.checkWritable(dstOff, length); err != nil {
			return err
		}
		target := d.bytes()[dstOff : dstOff+length]
		if overlaps(src, target) {
			for i := length - 1; i >= 0; i-- {
				target[i] = src[i]
			}
		} else {
			copy(target, src)
		}
		return nil
	case Buffer:
		for i := 0; i < length; i++ {
			v, err := b.GetUint8(srcOff + i)
			if err != nil {
				return err
			}
			if err := d.SetUint8(dstOff+i, v); err != nil {
				return err
			}
		}
		return nil
	default:
		return &UnsupportedError{Feature: "copy_into destination type"}
	}
}

func overlaps(a, b []byte) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	aStart, aEnd := uintptrOf(a), uintptrOf(a)+uintptr(len(a))
	bStart, bEnd := uintptrOf(b), uintptrOf(b)+uintptr(len(b))
	return aStart < bEnd && bStart < aEnd
}

func (b *bufferImpl) Slice(off, length int) (Buffer, error) {
	if err := b.checkAccessible(); err != nil {
		return nil, err
	}
	if off < 0 || length < 0 || off+length > b.region.Capacity {
		return nil, &IndexOutOfRangeError{Index: int64(off + length), WriteLimit: int64(b.region.Capacity)}
	}
	sub, err := b.manager.SliceMemory(b.region, off, length)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "membuf: slice_memory failed")
	}
	b.arc.acquire()
	s := &bufferImpl{
		region:     sub,
		manager:    b.manager,
		control:    b.control,
		arc:        b.arc,
		order:      b.order,
		readOnly:   b.readOnly,
		accessible: true,
		writeOff:   length,
	}
	s.alias.Store(1)
	traceEvent("slice", sub.ID)
	return s, nil
}

func (b *bufferImpl) Split(at int) (Buffer, error) {
	if err := b.checkOwned("split"); err != nil {
		return nil, err
	}
	if at < 0 || at > b.region.Capacity {
		return nil, &IndexOutOfRangeError{Index: int64(at), WriteLimit: int64(b.region.Capacity)}
	}
	leftRegion, err := b.manager.SliceMemory(b.region, 0, at)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "membuf: split left slice_memory failed")
	}
	rightRegion, err := b.manager.SliceMemory(b.region, at, b.region.Capacity-at)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "membuf: split right slice_memory failed")
	}

	b.arc.acquire() // new share for the left half

	left := &bufferImpl{
		region:     leftRegion,
		manager:    b.manager,
		control:    b.control,
		arc:        b.arc,
		order:      b.order,
		readOnly:   b.readOnly,
		accessible: true,
		readOff:    min(b.readOff, at),
		writeOff:   min(b.writeOff, at),
	}
	left.alias.Store(1)

	b.region = rightRegion
	b.readOff = max(b.readOff-at, 0)
	b.writeOff = max(b.writeOff-at, 0)

	traceEvent("split", leftRegion.ID)
	return left, nil
}

func (b *bufferImpl) Compact() error {
	if err := b.checkOwned("compact"); err != nil {
		return err
	}
	if b.readOnly {
		return &ReadOnlyError{}
	}
	n := b.writeOff - b.readOff
	if n > 0 && b.readOff > 0 {
		buf := b.bytes()
		copy(buf[0:n], buf[b.readOff:b.writeOff])
	}
	b.readOff = 0
	b.writeOff = n
	return nil
}

func (b *bufferImpl) EnsureWritable(size, minGrowth int, allowCompaction bool) error {
	if err := b.checkOwned("ensure_writable"); err != nil {
		return err
	}
	if b.readOnly {
		return &ReadOnlyError{}
	}
	if b.writeOff+size <= b.region.Capacity {
		return nil
	}
	if allowCompaction && b.readOff >= size {
		return b.Compact()
	}
	// Compact first (frees consumed leading space), then grow by whatever
	// shortfall remains. Resolves spec.md §9's open question in favor of
	// "compact-then-allocate-if-still-short".
	if allowCompaction && b.readOff > 0 {
		_ = b.Compact()
	}
	if b.writeOff+size <= b.region.Capacity {
		return nil
	}
	growth := size - (b.region.Capacity - b.writeOff)
	if growth < minGrowth {
		growth = minGrowth
	}
	newCap := b.region.Capacity + growth
	newBuf, err := b.manager.AllocateShared(b.control, newCap, nil)
	if err != nil {
		return &AllocationFailureError{Size: newCap, Reason: err.Error()}
	}
	nb := newBuf.(*bufferImpl)
	old := b.bytes()[:b.writeOff]
	copy(nb.bytes(), old)

	oldDrop := b.arc
	oldRegion := b.region

	b.region = nb.region
	b.manager = nb.manager
	b.control = nb.control
	b.arc = nb.arc
	if b.disarmCleaner != nil {
		b.disarmCleaner()
	}
	b.cleanerSentinel = nb.cleanerSentinel
	b.disarmCleaner = nb.disarmCleaner

	oldDrop.release()
	_ = oldRegion
	return nil
}

func (b *bufferImpl) OpenCursor(from, length int) (ByteCursor, error) {
	if err := b.checkReadable(from, length); err != nil {
		return nil, err
	}
	b.arc.acquire()
	return newByteCursor(b.bytes()[from:from+length], false, b.arc), nil
}

func (b *bufferImpl) OpenReverseCursor(from, length int) (ByteCursor, error) {
	if from-length+1 < 0 || from >= b.region.Capacity || length < 0 {
		return nil, &IndexOutOfRangeError{Index: int64(from), WriteLimit: int64(b.writeOff)}
	}
	if err := b.checkAccessible(); err != nil {
		return nil, err
	}
	b.arc.acquire()
	start := from - length + 1
	return newByteCursor(b.bytes()[start:from+1], true, b.arc), nil
}

func (b *bufferImpl) Acquire() Buffer {
	b.alias.Add(1)
	b.arc.acquire()
	traceEvent("acquire", b.region.ID)
	return b
}

func (b *bufferImpl) Send() (*Send[Buffer], error) {
	if err := b.checkOwned("send"); err != nil {
		return nil, err
	}
	b.accessible = false
	traceEvent("send", b.region.ID)
	payload := &bufferImpl{
		region:     b.region,
		manager:    b.manager,
		control:    b.control,
		arc:        b.arc,
		order:      b.order,
		readOnly:   b.readOnly,
		accessible: true,
		readOff:    b.readOff,
		writeOff:   b.writeOff,

		cleanerSentinel: b.cleanerSentinel,
		disarmCleaner:   b.disarmCleaner,
	}
	payload.alias.Store(1)
	return newSend[Buffer](payload, func(v Buffer) {
		_ = v.Close()
	}), nil
}

func (b *bufferImpl) Close() error {
	if !b.accessible {
		return nil
	}
	if b.alias.Add(-1) > 0 {
		b.arc.release()
		return nil
	}
	b.accessible = false
	if b.disarmCleaner != nil {
		b.disarmCleaner()
	}
	traceEvent("close", b.region.ID)
	b.arc.release()
	return nil
}

func (b *bufferImpl) ForEachReadable(visit func(i int, iov IoVec) bool) int {
	if b.writeOff <= b.readOff {
		return 0
	}
	iov := IoVec{Base: &b.bytes()[b.readOff], Len: uint64(b.writeOff - b.readOff)}
	if !visit(0, iov) {
		return -1
	}
	return 1
}

func (b *bufferImpl) ForEachWritable(visit func(i int, iov IoVec) bool) int {
	if b.writeOff >= b.region.Capacity {
		return 0
	}
	iov := IoVec{Base: &b.bytes()[b.writeOff], Len: uint64(b.region.Capacity - b.writeOff)}
	if !visit(0, iov) {
		return -1
	}
	return 1
}
