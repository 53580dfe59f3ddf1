// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package membuf

// ByteCursor is a lazy byte iterator over a buffer range. It supports bulk
// 8-byte reads packed in big-endian order regardless of the buffer's
// configured ByteOrder, per spec.md §4.1. A cursor keeps its backing region
// reachable until Close but is not itself safe to copy or share across
// goroutines.
type ByteCursor interface {
	// Next returns the next single byte. ok is false once the cursor's
	// range is exhausted.
	Next() (b byte, ok bool)

	// NextLong reads up to 8 remaining bytes packed big-endian into the low
	// n*8 bits of v (n in [0,8]). ok is false once nothing remains.
	NextLong() (v uint64, n int, ok bool)

	// Remaining returns the number of bytes not yet consumed.
	Remaining() int

	// Close releases the cursor's hold on the backing region.
	Close()
}

type byteCursor struct {
	data    []byte
	pos     int
	reverse bool
	keep    *arcDrop // holds the region reachable; nil once closed
}

func newByteCursor(data []byte, reverse bool, keep *arcDrop) *byteCursor {
	return &byteCursor{data: data, reverse: reverse, keep: keep}
}

func (c *byteCursor) Remaining() int {
	return len(c.data) - c.pos
}

func (c *byteCursor) Next() (byte, bool) {
	if c.pos >= len(c.data) {
		return 0, false
	}
	var b byte
	if c.reverse {
		b = c.data[len(c.data)-1-c.pos]
	} else {
		b = c.data[c.pos]
	}
	c.pos++
	return b, true
}

func (c *byteCursor) NextLong() (uint64, int, bool) {
	if c.pos >= len(c.data) {
		return 0, 0, false
	}
	n := len(c.data) - c.pos
	if n > 8 {
		n = 8
	}
	var v uint64
	for i := 0; i < n; i++ {
		b, _ := c.Next()
		v = v<<8 | uint64(b)
	}
	return v, n, true
}

func (c *byteCursor) Close() {
	if c.keep != nil {
		c.keep.release()
	}
	c.data = nil
	c.keep = nil
}
