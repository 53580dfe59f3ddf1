// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package pool

// Lease is the explicit stand-in for the thread-local cache membuf's
// teacher keeps per OS thread: Go has no thread-locals, so the cache is a
// value a single goroutine holds and passes around, rather than a key into
// a hidden per-thread map. A Lease must never be shared between goroutines
// concurrently — its caches are plain LIFO stacks, touched only by the
// goroutine that owns the Lease (spec.md §4.4: "the thread cache is
// lock-free because it is single-producer single-consumer").
//
// On a cache miss, or when a class's cache is full on free, the Lease
// falls through to its Arena directly, which is itself mutex-protected and
// safe for that cross-goroutine traffic.
type Lease struct {
	arena *Arena

	smallCacheSize  int
	normalCacheSize int
	trimInterval    int

	allocs int

	smallCache [][]*Handle
	normalCache [][]*Handle

	closed bool
}

// NewLease attaches a fresh cache to arena, sized per smallCacheSize (max
// cached handles per small size class), normalCacheSize (max cached
// handles per normal order), and trimInterval (allocations between
// high-water-mark trims, spec.md §4.4). trimInterval <= 0 disables
// periodic trimming; the cache still drains fully on Close.
func NewLease(arena *Arena, pageSize, maxOrder, smallCacheSize, normalCacheSize, trimInterval int) *Lease {
	arena.AttachCache()
	return &Lease{
		arena:           arena,
		smallCacheSize:  smallCacheSize,
		normalCacheSize: normalCacheSize,
		trimInterval:    trimInterval,
		smallCache:      make([][]*Handle, NumSmallClasses(pageSize)),
		normalCache:     make([][]*Handle, maxOrder+1),
	}
}

// AllocateSmall satisfies size from the cache when possible, falling
// through to the arena on a miss.
func (l *Lease) AllocateSmall(size int) (*Handle, error) {
	_, classIdx := SmallSizeClass(size)
	if classIdx < len(l.smallCache) {
		if stack := l.smallCache[classIdx]; len(stack) > 0 {
			h := stack[len(stack)-1]
			l.smallCache[classIdx] = stack[:len(stack)-1]
			return h, nil
		}
	}
	h, err := l.arena.AllocateSmall(size)
	if err != nil {
		return nil, err
	}
	l.afterAllocate()
	return h, nil
}

// FreeSmall parks h in the cache for its class when there is room, or
// returns it to the arena immediately otherwise.
func (l *Lease) FreeSmall(h *Handle) {
	if h.classIdx < len(l.smallCache) && len(l.smallCache[h.classIdx]) < l.smallCacheSize {
		l.smallCache[h.classIdx] = append(l.smallCache[h.classIdx], h)
		return
	}
	l.arena.FreeSmall(h)
}

// AllocateNormal satisfies size from the cache when possible, falling
// through to the arena on a miss.
func (l *Lease) AllocateNormal(size int) (*Handle, error) {
	order := NormalOrder(size, l.arena.pageSize, l.arena.maxOrder)
	if order >= 0 && order < len(l.normalCache) {
		if stack := l.normalCache[order]; len(stack) > 0 {
			h := stack[len(stack)-1]
			l.normalCache[order] = stack[:len(stack)-1]
			return h, nil
		}
	}
	h, err := l.arena.AllocateNormal(size)
	if err != nil {
		return nil, err
	}
	l.afterAllocate()
	return h, nil
}

// FreeNormal parks h in the cache for its order when there is room, or
// returns it to the arena immediately otherwise.
func (l *Lease) FreeNormal(h *Handle) {
	if h.order < len(l.normalCache) && len(l.normalCache[h.order]) < l.normalCacheSize {
		l.normalCache[h.order] = append(l.normalCache[h.order], h)
		return
	}
	l.arena.FreeNormal(h)
}

// afterAllocate bumps the allocation counter and trims any cache class that
// sits above its high-water mark every trimInterval allocations.
func (l *Lease) afterAllocate() {
	if l.trimInterval <= 0 {
		return
	}
	l.allocs++
	if l.allocs < l.trimInterval {
		return
	}
	l.allocs = 0
	for i, stack := range l.smallCache {
		if len(stack) > l.smallCacheSize/2 {
			l.drainSmall(i, len(stack)/2)
		}
	}
	for i, stack := range l.normalCache {
		if len(stack) > l.normalCacheSize/2 {
			l.drainNormal(i, len(stack)/2)
		}
	}
}

func (l *Lease) drainSmall(classIdx, n int) {
	stack := l.smallCache[classIdx]
	for i := 0; i < n && len(stack) > 0; i++ {
		h := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		l.arena.FreeSmall(h)
	}
	l.smallCache[classIdx] = stack
}

func (l *Lease) drainNormal(order, n int) {
	stack := l.normalCache[order]
	for i := 0; i < n && len(stack) > 0; i++ {
		h := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		l.arena.FreeNormal(h)
	}
	l.normalCache[order] = stack
}

// Allocate satisfies size from whichever cache (small or normal) applies,
// falling through to the arena on a miss. It is the single entry point
// membuf's allocator.go uses: the size class decides the path, the caller
// does not need to know which.
func (l *Lease) Allocate(size int) (*Handle, error) {
	if classSize, _ := SmallSizeClass(size); classSize > l.arena.pageSize {
		return l.AllocateNormal(size)
	}
	return l.AllocateSmall(size)
}

// Free returns h to whichever cache (small or normal) it came from.
func (l *Lease) Free(h *Handle) {
	if h.classIdx == -1 {
		l.FreeNormal(h)
		return
	}
	l.FreeSmall(h)
}

// Drain returns every cached handle to the arena without detaching the
// Lease, for a membuf Session that is being returned to its allocator's
// Lease pool for the next acquirer to reuse (the Lease's pin to its arena
// is permanent for the Lease's whole lifetime; only its contents drain
// between borrowers).
func (l *Lease) Drain() {
	for i, stack := range l.smallCache {
		for _, h := range stack {
			l.arena.FreeSmall(h)
		}
		l.smallCache[i] = nil
	}
	for i, stack := range l.normalCache {
		for _, h := range stack {
			l.arena.FreeNormal(h)
		}
		l.normalCache[i] = nil
	}
}

// Close drains every cached handle back to the arena and detaches the
// Lease permanently. It must be called exactly once, when the Lease itself
// (not just one borrower) is being discarded.
func (l *Lease) Close() {
	if l.closed {
		return
	}
	l.closed = true
	l.Drain()
	l.arena.DetachCache()
}

// Arena returns the arena this Lease is attached to, for the allocator's
// affinity bookkeeping.
func (l *Lease) Arena() *Arena { return l.arena }
