// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package pool

import (
	"errors"
	"sync"
	"unsafe"
)

// ErrTooLarge is returned when a request exceeds what one chunk can ever
// hold; the caller (membuf's allocator.go) serves it unpooled instead.
var ErrTooLarge = errors.New("pool: request exceeds chunk size")

// Backing is the raw memory backing one Arena chunk, supplied by the
// owning allocator's MemoryManager. Release is called at most once, when
// the arena gives the chunk back, and only once Close has run: from Close
// itself, or from the later free that empties a chunk Close had to leave in
// place. Before Close, chunks are kept around empty for reuse (spec.md §4.4).
type Backing struct {
	Base    unsafe.Pointer
	Release func()
}

// Bin buckets a chunk by how full it currently is (spec.md §4.4).
type Bin int

const (
	BinQInit Bin = iota // brand new or fully empty, kept for reuse
	BinQ000             // 0-25% used
	BinQ025             // 25-50% used
	BinQ050             // 50-75% used
	BinQ075             // 75-100% used
	BinQ100             // completely full
	numBins
)

type arenaChunk struct {
	*Chunk
	backing    Backing
	bin        Bin
	smallPages map[int]*subpage // pageIndex -> the subpage hosted there

	// outstanding counts live Handles carved from this chunk that have not
	// yet been freed; it is the chunk's own arc-drop refcount, mutated only
	// under the owning Arena's mu. closing is set once Arena.Close has run;
	// a chunk with closing set releases its backing the moment outstanding
	// reaches zero, whether that happens during Close or on a later Free.
	outstanding int
	closing     bool
	released    bool
}

// Handle identifies one allocation: either a normal (order>=0, buddy-sized)
// block, or a small (order==-1) subpage slot.
type Handle struct {
	chunk    *arenaChunk
	pageIdx  int
	order    int
	classIdx int
	slot     int
	Offset   int // byte offset from the chunk's Backing.Base
	Size     int // usable size in bytes
}

// Arena partitions its chunks into usage bins and maintains per-size-class
// subpage free lists for small allocations (spec.md §4.4). All
// bookkeeping is mutex-protected; Lease (the thread cache) is what gives
// callers a lock-free hot path on top of this.
type Arena struct {
	mu        sync.Mutex
	pageSize  int
	maxOrder  int
	acquireFn func(size int) (Backing, error)
	metrics   *Metrics

	chunks []*arenaChunk
	bins   [numBins][]*arenaChunk

	smallFree [][]*subpage

	attachedCaches int
}

// NewArena constructs an Arena whose chunks are pageSize<<maxOrder bytes,
// acquired on demand via acquire. metrics may be nil.
func NewArena(pageSize, maxOrder int, acquire func(size int) (Backing, error), metrics *Metrics) *Arena {
	return &Arena{
		pageSize:  pageSize,
		maxOrder:  maxOrder,
		acquireFn: acquire,
		metrics:   metrics,
		smallFree: make([][]*subpage, NumSmallClasses(pageSize)),
	}
}

// ChunkSize returns the byte size of one chunk.
func (a *Arena) ChunkSize() int { return a.pageSize << a.maxOrder }

// HandleOffset returns h's byte offset within its chunk's backing memory.
func HandleOffset(h *Handle) int { return h.Offset }

// HandleBase returns the address of the start of h's chunk's backing
// memory, so the caller can compute h's address as Base+Offset.
func HandleBase(h *Handle) unsafe.Pointer { return h.chunk.backing.Base }

func (a *Arena) newChunk() (*arenaChunk, error) {
	backing, err := a.acquireFn(a.ChunkSize())
	if err != nil {
		return nil, err
	}
	c := &arenaChunk{Chunk: NewChunk(a.pageSize, a.maxOrder), backing: backing, bin: BinQInit}
	a.chunks = append(a.chunks, c)
	a.bins[BinQInit] = append(a.bins[BinQInit], c)
	a.metrics.setChunkCount(len(a.chunks))
	return c, nil
}

func (a *Arena) rebin(c *arenaChunk) {
	var target Bin
	used := 1 - c.FreeFraction()
	switch {
	case c.Empty():
		target = BinQInit
	case used < 0.25:
		target = BinQ000
	case used < 0.50:
		target = BinQ025
	case used < 0.75:
		target = BinQ050
	case used < 1.0:
		target = BinQ075
	default:
		target = BinQ100
	}
	if target == c.bin {
		return
	}
	a.bins[c.bin] = removeChunk(a.bins[c.bin], c)
	c.bin = target
	a.bins[target] = append(a.bins[target], c)
}

func removeChunk(s []*arenaChunk, c *arenaChunk) []*arenaChunk {
	for i, x := range s {
		if x == c {
			return append(s[:i], s[i+1:]...)
		}
	}
	return s
}

func removeSubpage(s []*subpage, p *subpage) []*subpage {
	for i, x := range s {
		if x == p {
			return append(s[:i], s[i+1:]...)
		}
	}
	return s
}

// allocateOrder tries the arena's bins in occupancy-preference order before
// falling back to a fresh chunk.
func (a *Arena) allocateOrder(order int) (*arenaChunk, int, error) {
	for _, bin := range [...]Bin{BinQ050, BinQ025, BinQ075, BinQ000, BinQInit} {
		for _, c := range a.bins[bin] {
			if page := c.Allocate(order); page >= 0 {
				a.rebin(c)
				return c, page, nil
			}
		}
	}
	c, err := a.newChunk()
	if err != nil {
		return nil, 0, err
	}
	page := c.Allocate(order)
	if page < 0 {
		return nil, 0, ErrTooLarge
	}
	a.rebin(c)
	return c, page, nil
}

// AllocateNormal reserves a buddy block of at least size bytes.
func (a *Arena) AllocateNormal(size int) (*Handle, error) {
	order := NormalOrder(size, a.pageSize, a.maxOrder)
	if order < 0 {
		return nil, ErrTooLarge
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	c, page, err := a.allocateOrder(order)
	if err != nil {
		return nil, err
	}
	h := &Handle{chunk: c, pageIdx: page, order: order, classIdx: -1,
		Offset: page * a.pageSize, Size: (1 << order) * a.pageSize}
	c.outstanding++
	a.metrics.recordAlloc(h.Size)
	return h, nil
}

// FreeNormal releases a handle obtained from AllocateNormal.
func (a *Arena) FreeNormal(h *Handle) {
	a.mu.Lock()
	defer a.mu.Unlock()
	h.chunk.Free(h.pageIdx, h.order)
	a.metrics.recordFree(h.Size)
	a.rebin(h.chunk)
	h.chunk.outstanding--
	a.maybeReleaseChunk(h.chunk)
}

// AllocateSmall reserves one slot from the subpage free list for size's
// class, carving a fresh page from the buddy tree when every existing page
// for that class is full.
func (a *Arena) AllocateSmall(size int) (*Handle, error) {
	classSize, classIdx := SmallSizeClass(size)
	if classSize > a.pageSize {
		return a.AllocateNormal(size)
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, p := range a.smallFree[classIdx] {
		if slot, ok := p.allocate(); ok {
			if p.full() {
				a.smallFree[classIdx] = removeSubpage(a.smallFree[classIdx], p)
			}
			h := &Handle{chunk: p.chunk, pageIdx: p.pageIndex, order: -1, classIdx: classIdx, slot: slot,
				Offset: p.pageIndex*a.pageSize + p.offset(slot), Size: classSize}
			p.chunk.outstanding++
			a.metrics.recordAlloc(classSize)
			return h, nil
		}
	}

	c, page, err := a.allocateOrder(0)
	if err != nil {
		return nil, err
	}
	p := newSubpage(c, page, classSize, a.pageSize)
	slot, _ := p.allocate()
	if !p.full() {
		a.smallFree[classIdx] = append(a.smallFree[classIdx], p)
	}
	if c.smallPages == nil {
		c.smallPages = make(map[int]*subpage)
	}
	c.smallPages[page] = p
	h := &Handle{chunk: c, pageIdx: page, order: -1, classIdx: classIdx, slot: slot,
		Offset: page*a.pageSize + p.offset(slot), Size: classSize}
	c.outstanding++
	a.metrics.recordAlloc(classSize)
	return h, nil
}

// FreeSmall releases a handle obtained from AllocateSmall.
func (a *Arena) FreeSmall(h *Handle) {
	a.mu.Lock()
	defer a.mu.Unlock()
	p := h.chunk.smallPages[h.pageIdx]
	wasFull := p.full()
	p.free(h.slot)
	a.metrics.recordFree(h.Size)
	if wasFull {
		a.smallFree[h.classIdx] = append(a.smallFree[h.classIdx], p)
	}
	if p.empty() {
		a.smallFree[h.classIdx] = removeSubpage(a.smallFree[h.classIdx], p)
		delete(h.chunk.smallPages, h.pageIdx)
		h.chunk.Free(h.pageIdx, 0)
		a.rebin(h.chunk)
	}
	h.chunk.outstanding--
	a.maybeReleaseChunk(h.chunk)
}

// AttachCache registers one more thread cache as affinitised to this arena.
func (a *Arena) AttachCache() {
	a.mu.Lock()
	a.attachedCaches++
	a.metrics.setThreadCaches(a.attachedCaches)
	a.mu.Unlock()
}

// DetachCache reverses AttachCache, on lease close.
func (a *Arena) DetachCache() {
	a.mu.Lock()
	a.attachedCaches--
	a.metrics.setThreadCaches(a.attachedCaches)
	a.mu.Unlock()
}

// AttachedCaches reports how many thread caches are currently affinitised
// to this arena, used by the allocator to pick the least-loaded arena for a
// new Lease.
func (a *Arena) AttachedCaches() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.attachedCaches
}

// locate finds the chunk and page index that base falls within. Callers
// must hold a.mu.
func (a *Arena) locate(base unsafe.Pointer) (*arenaChunk, int, bool) {
	addr := uintptr(base)
	chunkSize := uintptr(a.ChunkSize())
	for _, c := range a.chunks {
		cbase := uintptr(c.backing.Base)
		if addr >= cbase && addr < cbase+chunkSize {
			return c, int(addr-cbase) / a.pageSize, true
		}
	}
	return nil, 0, false
}

// FreeByAddress releases the size-byte allocation based at base if it
// belongs to one of this arena's chunks, reporting whether it did. This is
// the path cross-goroutine frees take (spec.md §4.4: "cross-thread frees
// bypass the cache and go straight to the arena under its lock") — it
// does not require the original Handle, only the address and size a
// region's owner already has on hand.
func (a *Arena) FreeByAddress(base unsafe.Pointer, size int) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	c, pageIdx, ok := a.locate(base)
	if !ok {
		return false
	}
	if p, exists := c.smallPages[pageIdx]; exists {
		pageBase := uintptr(c.backing.Base) + uintptr(pageIdx*a.pageSize)
		slot := int(uintptr(base)-pageBase) / p.classSize
		_, classIdx := SmallSizeClass(size)
		wasFull := p.full()
		p.free(slot)
		a.metrics.recordFree(size)
		if wasFull {
			a.smallFree[classIdx] = append(a.smallFree[classIdx], p)
		}
		if p.empty() {
			a.smallFree[classIdx] = removeSubpage(a.smallFree[classIdx], p)
			delete(c.smallPages, pageIdx)
			c.Free(pageIdx, 0)
			a.rebin(c)
		}
		c.outstanding--
		a.maybeReleaseChunk(c)
		return true
	}
	order := NormalOrder(size, a.pageSize, a.maxOrder)
	if order < 0 {
		return false
	}
	c.Free(pageIdx, order)
	a.metrics.recordFree(size)
	a.rebin(c)
	c.outstanding--
	a.maybeReleaseChunk(c)
	return true
}

// maybeReleaseChunk releases c's backing memory once Close has marked it
// closing and its last outstanding handle has freed. A chunk that reaches
// zero outstanding before Close is called stays open for reuse, per
// spec.md §4.4; Close itself runs the same check against every chunk.
// Callers must hold a.mu.
func (a *Arena) maybeReleaseChunk(c *arenaChunk) {
	if !c.closing || c.outstanding > 0 || c.released {
		return
	}
	c.released = true
	a.chunks = removeChunk(a.chunks, c)
	a.bins[c.bin] = removeChunk(a.bins[c.bin], c)
	if c.backing.Release != nil {
		c.backing.Release()
	}
	a.metrics.setChunkCount(len(a.chunks))
}

// Close marks every chunk closing and releases the ones with no outstanding
// handles immediately. A chunk still carved up by live Handles is deferred:
// it keeps its place in a.chunks so FreeByAddress can still locate it, and
// maybeReleaseChunk releases its backing the moment its last handle frees.
func (a *Arena) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, c := range a.chunks {
		c.closing = true
	}
	for _, c := range append([]*arenaChunk(nil), a.chunks...) {
		a.maybeReleaseChunk(c)
	}
	a.metrics.setChunkCount(len(a.chunks))
}
