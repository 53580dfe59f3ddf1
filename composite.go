// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package membuf

import (
	"math"
	"sort"
	"sync/atomic"
)

// byteSource is satisfied by buffer implementations that can hand out a
// direct slice into their backing storage. Only *bufferImpl implements it;
// composites are flattened on construction so a component is never itself
// a *compositeBuffer.
type byteSource interface {
	rawBytes() []byte
}

// compositeBuffer concatenates N component Buffers without copying them,
// presenting a single seekable view (spec.md §4.3). Absolute indices are
// dispatched to the owning component via a binary search over offsets;
// accesses that straddle a component boundary fall back to a torn,
// byte-at-a-time read/write that never recurses back into the composite.
type compositeBuffer struct {
	_ noCopy

	components []Buffer
	offsets    []int // len(offsets) == len(components)+1; offsets[i] = sum of capacities of components[0:i)

	order      ByteOrder
	readOnly   bool
	accessible bool
	alias      atomic.Int32

	readOff, writeOff int

	// allocFn backs EnsureWritable's "append a new component" fallback. May
	// be nil for composites built without an allocator in scope, in which
	// case EnsureWritable fails with AllocationFailureError.
	allocFn func(size int) (Buffer, error)
}

// Compose builds a CompositeBuffer from already-owned components, each of
// which is Acquire()'d (the caller's own reference to each remains valid
// and must still be closed separately). allocFn is consulted by
// EnsureWritable to grow the composite; it may be nil.
func Compose(allocFn func(size int) (Buffer, error), components ...Buffer) (Buffer, error) {
	c := newEmptyComposite(allocFn)
	for _, comp := range components {
		if err := c.extendWith(comp, true); err != nil {
			_ = c.Close()
			return nil, err
		}
	}
	return c, nil
}

// ComposeSends builds a CompositeBuffer by receiving N Sends in order. On
// any receive failure, already-received buffers are closed and the
// remaining Sends are discarded before the error is returned.
func ComposeSends(allocFn func(size int) (Buffer, error), sends ...*Send[Buffer]) (Buffer, error) {
	received := make([]Buffer, 0, len(sends))
	for i, s := range sends {
		buf, err := s.Receive()
		if err != nil {
			for _, b := range received {
				_ = b.Close()
			}
			for _, rest := range sends[i+1:] {
				rest.Discard()
			}
			return nil, err
		}
		received = append(received, buf)
	}
	c := newEmptyComposite(allocFn)
	for _, buf := range received {
		if err := c.extendWith(buf, false); err != nil {
			_ = c.Close()
			return nil, err
		}
	}
	return c, nil
}

func newEmptyComposite(allocFn func(size int) (Buffer, error)) *compositeBuffer {
	c := &compositeBuffer{
		offsets:    []int{0},
		accessible: true,
		allocFn:    allocFn,
	}
	c.alias.Store(1)
	return c
}

func (c *compositeBuffer) checkAccessible() error {
	if !c.accessible {
		return &BufferClosedError{}
	}
	return nil
}

func (c *compositeBuffer) checkOwned(op string) error {
	if err := c.checkAccessible(); err != nil {
		return err
	}
	if c.alias.Load() != 1 {
		return &NotOwnedError{Op: op}
	}
	return nil
}

func (c *compositeBuffer) checkReadable(at, width int) error {
	if err := c.checkAccessible(); err != nil {
		return err
	}
	if at < 0 || at+width > c.writeOff {
		return &IndexOutOfRangeError{Index: int64(at), ReadLimit: int64(c.readOff), WriteLimit: int64(c.writeOff)}
	}
	return nil
}

func (c *compositeBuffer) checkWritable(at, width int) error {
	if err := c.checkAccessible(); err != nil {
		return err
	}
	if c.readOnly {
		return &ReadOnlyError{}
	}
	if at < 0 || at+width > c.Capacity() {
		return &IndexOutOfRangeError{Index: int64(at), ReadLimit: int64(c.readOff), WriteLimit: int64(c.writeOff)}
	}
	return nil
}

func (c *compositeBuffer) checkAppendable(width int) error {
	if err := c.checkAccessible(); err != nil {
		return err
	}
	if c.readOnly {
		return &ReadOnlyError{}
	}
	if c.writeOff+width > c.Capacity() {
		return &IndexOutOfRangeError{Index: int64(c.writeOff), ReadLimit: int64(c.readOff), WriteLimit: int64(c.writeOff)}
	}
	return nil
}

func (c *compositeBuffer) Capacity() int {
	return c.offsets[len(c.offsets)-1]
}
func (c *compositeBuffer) ReadOffset() int  { return c.readOff }
func (c *compositeBuffer) WriteOffset() int { return c.writeOff }

func (c *compositeBuffer) SetReadOffset(off int) error {
	if off < 0 || off > c.writeOff {
		return &IndexOutOfRangeError{Index: int64(off), ReadLimit: int64(c.readOff), WriteLimit: int64(c.writeOff)}
	}
	if err := c.checkAccessible(); err != nil {
		return err
	}
	c.readOff = off
	return nil
}

func (c *compositeBuffer) SetWriteOffset(off int) error {
	if off < c.readOff || off > c.Capacity() {
		return &IndexOutOfRangeError{Index: int64(off), ReadLimit: int64(c.readOff), WriteLimit: int64(c.writeOff)}
	}
	if err := c.checkAccessible(); err != nil {
		return err
	}
	c.writeOff = off
	return nil
}

func (c *compositeBuffer) Order() ByteOrder         { return c.order }
func (c *compositeBuffer) SetOrder(order ByteOrder) { c.order = order }
func (c *compositeBuffer) ReadOnly() bool            { return c.readOnly }
func (c *compositeBuffer) MakeReadOnly() {
	c.readOnly = true
	for _, comp := range c.components {
		comp.MakeReadOnly()
	}
}
func (c *compositeBuffer) Accessible() bool { return c.accessible }
func (c *compositeBuffer) Owned() bool      { return c.accessible && c.alias.Load() == 1 }

// locate returns the index of the component owning absolute index i, and
// i's offset within that component.
func (c *compositeBuffer) locate(i int) (idx, inComponent int) {
	idx = sort.Search(len(c.offsets)-1, func(k int) bool { return c.offsets[k+1] > i })
	return idx, i - c.offsets[idx]
}

func (c *compositeBuffer) crossesBoundary(i, width int) bool {
	idx, off := c.locate(i)
	return off+width > c.components[idx].Capacity()
}

func (c *compositeBuffer) getByteAt(i int) (byte, error) {
	idx, off := c.locate(i)
	return c.components[idx].GetUint8(off)
}

func (c *compositeBuffer) setByteAt(i int, v byte) error {
	idx, off := c.locate(i)
	return c.components[idx].SetUint8(off, v)
}

// readTorn composes a width-byte (width<=8) value one byte at a time across
// component boundaries, in the composite's configured byte order.
func (c *compositeBuffer) readTorn(i, width int) (uint64, error) {
	var v uint64
	big := isBigEndian(c.order)
	for n := 0; n < width; n++ {
		b, err := c.getByteAt(i + n)
		if err != nil {
			return 0, err
		}
		if big {
			v = v<<8 | uint64(b)
		} else {
			v |= uint64(b) << (8 * n)
		}
	}
	return v, nil
}

func (c *compositeBuffer) writeTorn(i, width int, v uint64) error {
	big := isBigEndian(c.order)
	for n := 0; n < width; n++ {
		var b byte
		if big {
			b = byte(v >> (8 * (width - 1 - n)))
		} else {
			b = byte(v >> (8 * n))
		}
		if err := c.setByteAt(i+n, b); err != nil {
			return err
		}
	}
	return nil
}

func (c *compositeBuffer) getUint(i, width int) (uint64, error) {
	if err := c.checkReadable(i, width); err != nil {
		return 0, err
	}
	if len(c.components) == 0 {
		return 0, &IndexOutOfRangeError{Index: int64(i)}
	}
	if !c.crossesBoundary(i, width) {
		idx, off := c.locate(i)
		switch width {
		case 1:
			v, err := c.components[idx].GetUint8(off)
			return uint64(v), err
		case 2:
			v, err := c.components[idx].GetUint16(off)
			return uint64(v), err
		case 3:
			v, err := c.components[idx].GetUint24(off)
			return uint64(v), err
		case 4:
			v, err := c.components[idx].GetUint32(off)
			return uint64(v), err
		case 8:
			return c.components[idx].GetUint64(off)
		}
	}
	return c.readTorn(i, width)
}

func (c *compositeBuffer) setUint(i, width int, v uint64) error {
	if err := c.checkWritable(i, width); err != nil {
		return err
	}
	if len(c.components) == 0 {
		return &IndexOutOfRangeError{Index: int64(i)}
	}
	if !c.crossesBoundary(i, width) {
		idx, off := c.locate(i)
		switch width {
		case 1:
			return c.components[idx].SetUint8(off, uint8(v))
		case 2:
			return c.components[idx].SetUint16(off, uint16(v))
		case 3:
			return c.components[idx].SetUint24(off, uint32(v))
		case 4:
			return c.components[idx].SetUint32(off, uint32(v))
		case 8:
			return c.components[idx].SetUint64(off, v)
		}
	}
	return c.writeTorn(i, width, v)
}

func (c *compositeBuffer) GetUint8(i int) (uint8, error) {
	v, err := c.getUint(i, 1)
	return uint8(v), err
}
func (c *compositeBuffer) GetInt8(i int) (int8, error) {
	v, err := c.getUint(i, 1)
	return int8(v), err
}
func (c *compositeBuffer) GetUint16(i int) (uint16, error) {
	v, err := c.getUint(i, 2)
	return uint16(v), err
}
func (c *compositeBuffer) GetInt16(i int) (int16, error) {
	v, err := c.getUint(i, 2)
	return int16(v), err
}
func (c *compositeBuffer) GetUint24(i int) (uint32, error) {
	v, err := c.getUint(i, 3)
	return uint32(v), err
}
func (c *compositeBuffer) GetInt24(i int) (int32, error) {
	v, err := c.getUint(i, 3)
	if err != nil {
		return 0, err
	}
	if v&0x800000 != 0 {
		v |= 0xFFFFFFFFFF000000
	}
	return int32(v), nil
}
func (c *compositeBuffer) GetUint32(i int) (uint32, error) {
	v, err := c.getUint(i, 4)
	return uint32(v), err
}
func (c *compositeBuffer) GetInt32(i int) (int32, error) {
	v, err := c.getUint(i, 4)
	return int32(v), err
}
func (c *compositeBuffer) GetUint64(i int) (uint64, error) { return c.getUint(i, 8) }
func (c *compositeBuffer) GetInt64(i int) (int64, error) {
	v, err := c.getUint(i, 8)
	return int64(v), err
}
func (c *compositeBuffer) GetFloat32(i int) (float32, error) {
	v, err := c.GetUint32(i)
	return math.Float32frombits(v), err
}
func (c *compositeBuffer) GetFloat64(i int) (float64, error) {
	v, err := c.GetUint64(i)
	return math.Float64frombits(v), err
}

func (c *compositeBuffer) SetUint8(i int, v uint8) error  { return c.setUint(i, 1, uint64(v)) }
func (c *compositeBuffer) SetInt8(i int, v int8) error    { return c.setUint(i, 1, uint64(uint8(v))) }
func (c *compositeBuffer) SetUint16(i int, v uint16) error { return c.setUint(i, 2, uint64(v)) }
func (c *compositeBuffer) SetInt16(i int, v int16) error  { return c.setUint(i, 2, uint64(uint16(v))) }
func (c *compositeBuffer) SetUint24(i int, v uint32) error { return c.setUint(i, 3, uint64(v)) }
func (c *compositeBuffer) SetInt24(i int, v int32) error {
	return c.setUint(i, 3, uint64(uint32(v)&0xFFFFFF))
}
func (c *compositeBuffer) SetUint32(i int, v uint32) error { return c.setUint(i, 4, uint64(v)) }
func (c *compositeBuffer) SetInt32(i int, v int32) error  { return c.setUint(i, 4, uint64(uint32(v))) }
func (c *compositeBuffer) SetUint64(i int, v uint64) error { return c.setUint(i, 8, v) }
func (c *compositeBuffer) SetInt64(i int, v int64) error  { return c.setUint(i, 8, uint64(v)) }
func (c *compositeBuffer) SetFloat32(i int, v float32) error {
	return c.SetUint32(i, math.Float32bits(v))
}
func (c *compositeBuffer) SetFloat64(i int, v float64) error {
	return c.SetUint64(i, math.Float64bits(v))
}

func (c *compositeBuffer) ReadUint8() (uint8, error) {
	v, err := c.GetUint8(c.readOff)
	if err == nil {
		c.readOff++
	}
	return v, err
}
func (c *compositeBuffer) ReadInt8() (int8, error) {
	v, err := c.ReadUint8()
	return int8(v), err
}
func (c *compositeBuffer) ReadUint16() (uint16, error) {
	v, err := c.GetUint16(c.readOff)
	if err == nil {
		c.readOff += 2
	}
	return v, err
}
func (c *compositeBuffer) ReadInt16() (int16, error) {
	v, err := c.ReadUint16()
	return int16(v), err
}
func (c *compositeBuffer) ReadUint24() (uint32, error) {
	v, err := c.GetUint24(c.readOff)
	if err == nil {
		c.readOff += 3
	}
	return v, err
}
func (c *compositeBuffer) ReadInt24() (int32, error) {
	v, err := c.GetInt24(c.readOff)
	if err == nil {
		c.readOff += 3
	}
	return v, err
}
func (c *compositeBuffer) ReadUint32() (uint32, error) {
	v, err := c.GetUint32(c.readOff)
	if err == nil {
		c.readOff += 4
	}
	return v, err
}
func (c *compositeBuffer) ReadInt32() (int32, error) {
	v, err := c.ReadUint32()
	return int32(v), err
}
func (c *compositeBuffer) ReadUint64() (uint64, error) {
	v, err := c.GetUint64(c.readOff)
	if err == nil {
		c.readOff += 8
	}
	return v, err
}
func (c *compositeBuffer) ReadInt64() (int64, error) {
	v, err := c.ReadUint64()
	return int64(v), err
}
func (c *compositeBuffer) ReadFloat32() (float32, error) {
	v, err := c.ReadUint32()
	return math.Float32frombits(v), err
}
func (c *compositeBuffer) ReadFloat64() (float64, error) {
	v, err := c.ReadUint64()
	return math.Float64frombits(v), err
}

func (c *compositeBuffer) WriteUint8(v uint8) error {
	if err := c.checkAppendable(1); err != nil {
		return err
	}
	_ = c.SetUint8(c.writeOff, v)
	c.writeOff++
	return nil
}
func (c *compositeBuffer) WriteInt8(v int8) error { return c.WriteUint8(uint8(v)) }
func (c *compositeBuffer) WriteUint16(v uint16) error {
	if err := c.checkAppendable(2); err != nil {
		return err
	}
	_ = c.SetUint16(c.writeOff, v)
	c.writeOff += 2
	return nil
}
func (c *compositeBuffer) WriteInt16(v int16) error { return c.WriteUint16(uint16(v)) }
func (c *compositeBuffer) WriteUint24(v uint32) error {
	if err := c.checkAppendable(3); err != nil {
		return err
	}
	_ = c.SetUint24(c.writeOff, v)
	c.writeOff += 3
	return nil
}
func (c *compositeBuffer) WriteInt24(v int32) error { return c.WriteUint24(uint32(v) & 0xFFFFFF) }
func (c *compositeBuffer) WriteUint32(v uint32) error {
	if err := c.checkAppendable(4); err != nil {
		return err
	}
	_ = c.SetUint32(c.writeOff, v)
	c.writeOff += 4
	return nil
}
func (c *compositeBuffer) WriteInt32(v int32) error { return c.WriteUint32(uint32(v)) }
func (c *compositeBuffer) WriteUint64(v uint64) error {
	if err := c.checkAppendable(8); err != nil {
		return err
	}
	_ = c.SetUint64(c.writeOff, v)
	c.writeOff += 8
	return nil
}
func (c *compositeBuffer) WriteInt64(v int64) error { return c.WriteUint64(uint64(v)) }
func (c *compositeBuffer) WriteFloat32(v float32) error {
	return c.WriteUint32(math.Float32bits(v))
}
func (c *compositeBuffer) WriteFloat64(v float64) error {
	return c.WriteUint64(math.Float64bits(v))
}

func (c *compositeBuffer) Fill(v byte) error {
	if err := c.checkAccessible(); err != nil {
		return err
	}
	if c.readOnly {
		return &ReadOnlyError{}
	}
	for _, comp := range c.components {
		if err := comp.Fill(v); err != nil {
			return err
		}
	}
	return nil
}

func (c *compositeBuffer) CopyInto(srcOff int, dst any, dstOff, length int) error {
	if err := c.checkReadable(srcOff, length); err != nil {
		return err
	}
	for i := 0; i < length; i++ {
		v, err := c.GetUint8(srcOff + i)
		if err != nil {
			return err
		}
		switch d := dst.(type) {
		case []byte:
			if dstOff+i >= len(d) {
				return &IndexOutOfRangeError{Index: int64(dstOff + i), WriteLimit: int64(len(d))}
			}
			d[dstOff+i] = v
		case Buffer:
			if err := d.SetUint8(dstOff+i, v); err != nil {
				return err
			}
		default:
			return &UnsupportedError{Feature: "copy_into destination type"}
		}
	}
	return nil
}

// extendWith appends comp as a new component, flattening a nested composite
// into its own components. acquire controls whether comp.Acquire() is
// called first (true for caller-retained inputs via Compose, false for
// already-owned inputs received via ComposeSends or internal construction).
func (c *compositeBuffer) extendWith(comp Buffer, acquire bool) error {
	if err := c.checkOwned("extend_with"); err != nil {
		return err
	}
	if comp.Capacity() == 0 {
		return nil
	}
	if nested, ok := comp.(*compositeBuffer); ok {
		for _, nc := range nested.components {
			if err := c.extendWith(nc, acquire); err != nil {
				return err
			}
		}
		return nil
	}
	if len(c.components) == 0 {
		c.order = comp.Order()
		c.readOnly = comp.ReadOnly()
	} else {
		if comp.Order() != c.order {
			return &InvalidCompositionError{Reason: "mismatched byte order"}
		}
		if comp.ReadOnly() != c.readOnly {
			return &InvalidCompositionError{Reason: "mismatched read_only flag"}
		}
	}
	for _, existing := range c.components {
		if existing == comp {
			return &InvalidCompositionError{Reason: "duplicate component"}
		}
	}
	newCap := c.Capacity() + comp.Capacity()
	if newCap > maxRegionCapacity {
		return &InvalidCompositionError{Reason: "total capacity exceeds limit"}
	}
	child := comp
	if acquire {
		child = comp.Acquire()
	}
	c.components = append(c.components, child)
	c.offsets = append(c.offsets, newCap)
	c.writeOff += child.Capacity()
	return nil
}

// ExtendWith appends buffer as a new component (requires the composite be
// OWNED). The composite acquires its own reference; the caller's reference
// remains valid and must still be closed.
func (c *compositeBuffer) ExtendWith(buffer Buffer) error {
	return c.extendWith(buffer, true)
}

func (c *compositeBuffer) Slice(off, length int) (Buffer, error) {
	if err := c.checkAccessible(); err != nil {
		return nil, err
	}
	if off < 0 || length < 0 || off+length > c.Capacity() {
		return nil, &IndexOutOfRangeError{Index: int64(off + length), WriteLimit: int64(c.Capacity())}
	}
	parts := make([]Buffer, 0, len(c.components))
	remaining := length
	pos := off
	for remaining > 0 {
		idx, localOff := c.locate(pos)
		comp := c.components[idx]
		take := comp.Capacity() - localOff
		if take > remaining {
			take = remaining
		}
		part, err := comp.Slice(localOff, take)
		if err != nil {
			for _, p := range parts {
				_ = p.Close()
			}
			return nil, err
		}
		parts = append(parts, part)
		pos += take
		remaining -= take
	}
	result := newEmptyComposite(c.allocFn)
	for _, p := range parts {
		if err := result.extendWith(p, false); err != nil {
			_ = result.Close()
			return nil, err
		}
	}
	return result, nil
}

func (c *compositeBuffer) Split(at int) (Buffer, error) {
	if err := c.checkOwned("split"); err != nil {
		return nil, err
	}
	if at < 0 || at > c.Capacity() {
		return nil, &IndexOutOfRangeError{Index: int64(at), WriteLimit: int64(c.Capacity())}
	}
	idx, localOff := c.locate(at)

	var leftComponents, rightComponents []Buffer
	if at == c.Capacity() {
		leftComponents = c.components
		rightComponents = nil
	} else if localOff == 0 {
		leftComponents = c.components[:idx]
		rightComponents = c.components[idx:]
	} else {
		straddling := c.components[idx]
		left, err := straddling.Split(localOff)
		if err != nil {
			return nil, err
		}
		leftComponents = append(append([]Buffer{}, c.components[:idx]...), left)
		rightComponents = c.components[idx:] // straddling has been mutated in place to its right half
	}

	left := newEmptyComposite(c.allocFn)
	for _, comp := range leftComponents {
		if err := left.extendWith(comp, false); err != nil {
			return nil, err
		}
	}
	left.readOff = min(c.readOff, at)
	left.writeOff = min(c.writeOff, at)

	c.components = rightComponents
	c.offsets = []int{0}
	total := 0
	for _, comp := range rightComponents {
		total += comp.Capacity()
		c.offsets = append(c.offsets, total)
	}
	c.readOff = max(c.readOff-at, 0)
	c.writeOff = max(c.writeOff-at, 0)

	return left, nil
}

// SplitComponentsFloor snaps the split point down to the nearest component
// boundary <= at, never breaking a component.
func (c *compositeBuffer) SplitComponentsFloor(at int) (Buffer, error) {
	idx, off := c.locate(at)
	boundary := c.offsets[idx]
	if off > 0 && idx == len(c.components)-1 && off == c.components[idx].Capacity() {
		boundary = c.offsets[idx+1]
	}
	return c.Split(boundary)
}

// SplitComponentsCeil snaps the split point up to the nearest component
// boundary >= at, never breaking a component.
func (c *compositeBuffer) SplitComponentsCeil(at int) (Buffer, error) {
	idx, off := c.locate(at)
	if off == 0 {
		return c.Split(c.offsets[idx])
	}
	return c.Split(c.offsets[idx+1])
}

// Compact moves [readOff,writeOff) to the front of the composite. Leading
// components fully below readOff are closed and dropped immediately rather
// than kept around empty, per spec.md §9's resolved open question.
func (c *compositeBuffer) Compact() error {
	if err := c.checkOwned("compact"); err != nil {
		return err
	}
	if c.readOnly {
		return &ReadOnlyError{}
	}
	n := c.writeOff - c.readOff

	drop := 0
	for drop < len(c.components) && c.offsets[drop+1] <= c.readOff {
		if err := c.components[drop].Close(); err != nil {
			return err
		}
		drop++
	}
	if drop > 0 {
		dropped := c.offsets[drop]
		c.components = c.components[drop:]
		newOffsets := make([]int, 0, len(c.offsets)-drop)
		for _, o := range c.offsets[drop:] {
			newOffsets = append(newOffsets, o-dropped)
		}
		c.offsets = newOffsets
		c.readOff -= dropped
		c.writeOff -= dropped
	}

	if c.readOff > 0 {
		for i := 0; i < n; i++ {
			b, err := c.getByteAt(c.readOff + i)
			if err != nil {
				return err
			}
			if err := c.setByteAt(i, b); err != nil {
				return err
			}
		}
	}
	c.readOff = 0
	c.writeOff = n
	return nil
}

func (c *compositeBuffer) EnsureWritable(size, minGrowth int, allowCompaction bool) error {
	if err := c.checkOwned("ensure_writable"); err != nil {
		return err
	}
	if c.readOnly {
		return &ReadOnlyError{}
	}
	if c.writeOff+size <= c.Capacity() {
		return nil
	}
	if allowCompaction && c.readOff > 0 {
		if err := c.Compact(); err != nil {
			return err
		}
		if c.writeOff+size <= c.Capacity() {
			return nil
		}
	}
	if c.allocFn == nil {
		return &AllocationFailureError{Size: size, Reason: "composite has no allocator in scope"}
	}
	growth := size - (c.Capacity() - c.writeOff)
	if growth < minGrowth {
		growth = minGrowth
	}
	extra, err := c.allocFn(growth)
	if err != nil {
		return &AllocationFailureError{Size: growth, Reason: err.Error()}
	}
	// The appended component adds writable room, not written bytes.
	w := c.writeOff
	if err := c.extendWith(extra, false); err != nil {
		return err
	}
	c.writeOff = w
	return nil
}

func (c *compositeBuffer) OpenCursor(from, length int) (ByteCursor, error) {
	if err := c.checkReadable(from, length); err != nil {
		return nil, err
	}
	snap := make([]byte, length)
	for i := 0; i < length; i++ {
		b, err := c.getByteAt(from + i)
		if err != nil {
			return nil, err
		}
		snap[i] = b
	}
	return newByteCursor(snap, false, nil), nil
}

func (c *compositeBuffer) OpenReverseCursor(from, length int) (ByteCursor, error) {
	if from-length+1 < 0 || from >= c.Capacity() || length < 0 {
		return nil, &IndexOutOfRangeError{Index: int64(from), WriteLimit: int64(c.writeOff)}
	}
	if err := c.checkAccessible(); err != nil {
		return nil, err
	}
	start := from - length + 1
	snap := make([]byte, length)
	for i := 0; i < length; i++ {
		b, err := c.getByteAt(start + i)
		if err != nil {
			return nil, err
		}
		snap[i] = b
	}
	return newByteCursor(snap, true, nil), nil
}

func (c *compositeBuffer) Acquire() Buffer {
	c.alias.Add(1)
	return c
}

func (c *compositeBuffer) Send() (*Send[Buffer], error) {
	if err := c.checkOwned("send"); err != nil {
		return nil, err
	}
	for _, comp := range c.components {
		if !comp.Owned() {
			return nil, &NotOwnedError{Op: "send"}
		}
	}
	c.accessible = false
	payload := &compositeBuffer{
		components: c.components,
		offsets:    c.offsets,
		order:      c.order,
		readOnly:   c.readOnly,
		accessible: true,
		readOff:    c.readOff,
		writeOff:   c.writeOff,
		allocFn:    c.allocFn,
	}
	payload.alias.Store(1)
	return newSend[Buffer](payload, func(v Buffer) {
		_ = v.Close()
	}), nil
}

func (c *compositeBuffer) Close() error {
	if !c.accessible {
		return nil
	}
	if c.alias.Add(-1) > 0 {
		return nil
	}
	c.accessible = false
	var firstErr error
	for _, comp := range c.components {
		if err := comp.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (c *compositeBuffer) ForEachReadable(visit func(i int, iov IoVec) bool) int {
	visited := 0
	for idx, comp := range c.components {
		start, end := c.offsets[idx], c.offsets[idx+1]
		lo, hi := max(start, c.readOff), min(end, c.writeOff)
		if lo >= hi {
			continue
		}
		src, ok := comp.(byteSource)
		if !ok {
			continue
		}
		buf := src.rawBytes()
		iov := IoVec{Base: &buf[lo-start], Len: uint64(hi - lo)}
		if !visit(visited, iov) {
			return -(visited + 1)
		}
		visited++
	}
	return visited
}

func (c *compositeBuffer) ForEachWritable(visit func(i int, iov IoVec) bool) int {
	visited := 0
	for idx, comp := range c.components {
		start, end := c.offsets[idx], c.offsets[idx+1]
		lo, hi := max(start, c.writeOff), end
		if lo >= hi {
			continue
		}
		src, ok := comp.(byteSource)
		if !ok {
			continue
		}
		buf := src.rawBytes()
		iov := IoVec{Base: &buf[lo-start], Len: uint64(hi - lo)}
		if !visit(visited, iov) {
			return -(visited + 1)
		}
		visited++
	}
	return visited
}
