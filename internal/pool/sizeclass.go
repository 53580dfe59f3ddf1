// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package pool implements the jemalloc-style size-classed allocator behind
// membuf's pooled allocator: Arena (chunk bins + small-subpage free lists),
// Chunk (binary buddy tree), and Lease (an explicit, caller-confined
// per-goroutine cache standing in for the thread-local cache membuf's
// teacher describes — Go has no thread-locals, so the cache is a value the
// caller holds and closes explicitly instead of a key into a hidden map).
package pool

// MinSmallSize is the smallest size class: allocations below it are
// rounded up.
const MinSmallSize = 16

// SmallSizeClass rounds size up to the next power-of-two size class (at
// least MinSmallSize) and returns that class's free-list index.
func SmallSizeClass(size int) (classSize, index int) {
	if size < MinSmallSize {
		size = MinSmallSize
	}
	classSize = 1
	for classSize < size {
		classSize <<= 1
	}
	return classSize, smallIndex(classSize)
}

func smallIndex(classSize int) int {
	idx := 0
	for c := MinSmallSize; c < classSize; c <<= 1 {
		idx++
	}
	return idx
}

// NumSmallClasses returns the number of small size classes below pageSize.
func NumSmallClasses(pageSize int) int {
	return smallIndex(pageSize) + 1
}

// NormalOrder returns the buddy order (in units of pageSize, 0-based) that
// fits size within a chunk bounded by maxOrder, or -1 if size exceeds the
// chunk's capacity (pageSize << maxOrder).
func NormalOrder(size, pageSize, maxOrder int) int {
	pages := (size + pageSize - 1) / pageSize
	if pages < 1 {
		pages = 1
	}
	order := 0
	for (1 << order) < pages {
		order++
	}
	if order > maxOrder {
		return -1
	}
	return order
}
