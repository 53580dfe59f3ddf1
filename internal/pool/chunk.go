// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package pool

import "math/bits"

// Chunk is one arena chunk: pageSize*2^maxOrder bytes, tracked by a binary
// buddy tree stored as a flat, 1-indexed array (spec.md §4.4). tree[i]
// holds the largest order of a free, contiguous block reachable within the
// subtree rooted at i, or -1 when nothing in that subtree is free.
type Chunk struct {
	PageSize int
	MaxOrder int

	tree      []int8
	freePages int
}

// NewChunk allocates the bookkeeping for a chunk of pageSize<<maxOrder
// bytes. It does not itself acquire the backing memory; the caller (Arena)
// pairs it with a Backing.
func NewChunk(pageSize, maxOrder int) *Chunk {
	c := &Chunk{PageSize: pageSize, MaxOrder: maxOrder, tree: make([]int8, 1<<(maxOrder+1))}
	c.Reset()
	return c
}

func depthOf(i int) int { return bits.Len(uint(i)) - 1 }

// Reset marks every page free again.
func (c *Chunk) Reset() {
	for i := 1; i < len(c.tree); i++ {
		c.tree[i] = int8(c.MaxOrder - depthOf(i))
	}
	c.freePages = 1 << c.MaxOrder
}

// Allocate reserves a contiguous 2^order-page block and returns its 0-based
// page index, or -1 if the chunk cannot satisfy the request.
func (c *Chunk) Allocate(order int) int {
	if order < 0 || order > c.MaxOrder || c.tree[1] < int8(order) {
		return -1
	}
	id, depth := 1, 0
	target := c.MaxOrder - order
	for depth < target {
		left := id * 2
		if c.tree[left] >= int8(order) {
			id = left
		} else {
			id = left + 1
		}
		depth++
	}
	c.tree[id] = -1
	c.freePages -= 1 << order
	c.bubbleUp(id)
	return (id - (1 << depth)) << order
}

func (c *Chunk) bubbleUp(id int) {
	for id > 1 {
		parent := id / 2
		left, right := c.tree[parent*2], c.tree[parent*2+1]
		if left > right {
			c.tree[parent] = left
		} else {
			c.tree[parent] = right
		}
		id = parent
	}
}

// Free releases the 2^order-page block at pageIndex, coalescing with its
// buddy whenever the buddy is also entirely free.
func (c *Chunk) Free(pageIndex, order int) {
	depth := c.MaxOrder - order
	id := (1 << depth) + (pageIndex >> order)
	c.tree[id] = int8(order)
	c.freePages += 1 << order

	for id > 1 {
		parent := id / 2
		parentOrder := int8(c.MaxOrder - depthOf(parent))
		left, right := c.tree[parent*2], c.tree[parent*2+1]
		switch {
		case left == parentOrder-1 && right == parentOrder-1:
			c.tree[parent] = parentOrder
		case left > right:
			c.tree[parent] = left
		default:
			c.tree[parent] = right
		}
		id = parent
	}
}

// FreeFraction returns the fraction of pages currently free, in [0,1].
func (c *Chunk) FreeFraction() float64 {
	return float64(c.freePages) / float64(int(1)<<c.MaxOrder)
}

// Empty reports whether every page in the chunk is free.
func (c *Chunk) Empty() bool { return c.freePages == 1<<c.MaxOrder }
