// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package membuf

import (
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"code.hybscloud.com/membuf/internal/pool"
)

// Allocator is the top-level factory a caller holds: it produces Buffers
// and never needs to know whether they come from the bare heap, native
// mmap, or a pooled arena underneath (spec.md §6: "heap", "direct",
// "pooled_heap", "pooled_direct").
type Allocator interface {
	// Allocate acquires a fresh, writable, OWNED Buffer of at least size
	// bytes: the heap and direct allocators return exactly size, the pooled
	// allocators round up to the size class or buddy block that serves it.
	Allocate(size int) (Buffer, error)

	// ConstantSupplier copies data once and returns a function that hands
	// out an independent read-only view of it on every call, sharing the
	// same backing region (spec.md §6's "constant_supplier(bytes)").
	ConstantSupplier(data []byte) (func() (Buffer, error), error)

	// Close releases every resource this allocator holds. Buffers already
	// issued continue to work; their own arc-drop governs their lifetime
	// independently of the allocator that produced them.
	Close() error
}

// NewHeapAllocator returns an Allocator backed directly by HeapManager,
// with no pooling: every Allocate call is a fresh make([]byte, size).
func NewHeapAllocator() Allocator {
	return &unpooledAllocator{manager: HeapManager}
}

// NewDirectAllocator returns an Allocator backed directly by NativeManager
// (mmap'd, off-heap), with no pooling.
func NewDirectAllocator() Allocator {
	return &unpooledAllocator{manager: NativeManager}
}

type unpooledAllocator struct {
	manager MemoryManager
}

func (a *unpooledAllocator) Allocate(size int) (Buffer, error) {
	return a.manager.AllocateShared(nil, size, nil)
}

func (a *unpooledAllocator) ConstantSupplier(data []byte) (func() (Buffer, error), error) {
	buf, err := a.manager.AllocateShared(nil, len(data), nil)
	if err != nil {
		return nil, err
	}
	if err := writeAll(buf, data); err != nil {
		return nil, err
	}
	buf.MakeReadOnly()
	return func() (Buffer, error) {
		return a.manager.AllocateConstChild(buf)
	}, nil
}

func (a *unpooledAllocator) Close() error { return nil }

// writeAll appends data to buf's writable region one byte at a time; used
// only for the one-shot copy behind ConstantSupplier, where a simple,
// order-independent accessor matters more than throughput.
func writeAll(buf Buffer, data []byte) error {
	for _, b := range data {
		if err := buf.WriteUint8(b); err != nil {
			return err
		}
	}
	return nil
}

// NewPooledHeapAllocator returns an arena-based, thread-cached pooled
// Allocator backed by heap memory (spec.md §4.4, "pooled_heap"). registerer
// may be nil to skip Prometheus instrumentation.
func NewPooledHeapAllocator(registerer prometheus.Registerer, opts ...Option) (Allocator, error) {
	return newPooledAllocator(HeapManager, registerer, opts...)
}

// NewPooledDirectAllocator is NewPooledHeapAllocator backed by native
// (mmap'd) chunks instead ("pooled_direct").
func NewPooledDirectAllocator(registerer prometheus.Registerer, opts ...Option) (Allocator, error) {
	return newPooledAllocator(NativeManager, registerer, opts...)
}

// pooledAllocator is the jemalloc-style allocator of spec.md §4.4: a
// collection of Arenas, each a set of buddy-tree chunks acquired from
// manager. The bare Allocate facade always frees straight back to the
// owning arena (the "cross-thread free" path every call is conservatively
// assumed to take); AcquireLease hands out a Lease for callers that want
// the real same-goroutine cache hot path across many operations.
type pooledAllocator struct {
	manager MemoryManager
	opts    Options

	arenas  []*pool.Arena
	leases  *pool.BoundedPool[*pool.Lease]
	nextArn atomic.Uint32

	closed atomic.Bool
}

func newPooledAllocator(manager MemoryManager, registerer prometheus.Registerer, opts ...Option) (*pooledAllocator, error) {
	o := NewOptions(opts...)
	if err := o.Validate(); err != nil {
		return nil, err
	}
	pa := &pooledAllocator{manager: manager, opts: o}
	pa.arenas = make([]*pool.Arena, o.NumArenas)
	for i := range pa.arenas {
		var metrics *pool.Metrics
		if registerer != nil {
			metrics = pool.NewMetrics(registerer, arenaLabel(i))
		}
		pa.arenas[i] = pool.NewArena(o.PageSize, o.MaxOrder, pa.acquireBacking, metrics)
	}

	leases := pool.NewBoundedPool[*pool.Lease](o.NumArenas)
	idx := 0
	leases.Fill(func() *pool.Lease {
		arena := pa.arenas[idx%len(pa.arenas)]
		idx++
		return pool.NewLease(arena, o.PageSize, o.MaxOrder, o.SmallCacheSize, o.NormalCacheSize, o.CacheTrimInterval)
	})
	pa.leases = leases
	return pa, nil
}

func arenaLabel(i int) string {
	const digits = "0123456789"
	if i < 10 {
		return string(digits[i])
	}
	return string(digits[i/10]) + string(digits[i%10])
}

// acquireBacking is the Arena's chunk-level MemoryManager hook: it
// allocates one chunk-sized region from the base manager and keeps the
// owning Buffer (unreleased) alive as the GC root for the whole chunk.
func (pa *pooledAllocator) acquireBacking(size int) (pool.Backing, error) {
	buf, err := pa.manager.AllocateShared(nil, size, nil)
	if err != nil {
		return pool.Backing{}, err
	}
	region, err := pa.manager.UnwrapRecoverable(buf)
	if err != nil {
		return pool.Backing{}, err
	}
	return pool.Backing{Base: region.Base, Release: func() { buf.Close() }}, nil
}

// pickArena returns the arena for a one-off, non-Lease allocation,
// spreading load round-robin across arenas.
func (pa *pooledAllocator) pickArena() *pool.Arena {
	i := pa.nextArn.Add(1) - 1
	return pa.arenas[int(i)%len(pa.arenas)]
}

func (pa *pooledAllocator) Allocate(size int) (Buffer, error) {
	if size > pa.opts.ChunkSize() {
		return pa.manager.AllocateShared(nil, size, nil)
	}
	arena := pa.pickArena()
	h, err := allocateFromArena(arena, size)
	if err != nil {
		return nil, &AllocationFailureError{Size: size, Reason: err.Error()}
	}
	region := Region{
		Base:     advance(pool.HandleBase(h), pool.HandleOffset(h)),
		Capacity: h.Size,
		Native:   pa.manager.IsNative(),
		ID:       uuid.New(),
	}
	control := &arenaControl{arena: arena}
	d := newDrop(func() { control.Recover(region) })
	return newOwnedBuffer(region, pa.manager, control, d), nil
}

// allocateFromArena dispatches to whichever family (small or normal) fits
// size, mirroring Lease.Allocate without a thread cache in front of it.
func allocateFromArena(arena *pool.Arena, size int) (*pool.Handle, error) {
	return arena.AllocateSmall(size)
}

func (pa *pooledAllocator) ConstantSupplier(data []byte) (func() (Buffer, error), error) {
	buf, err := pa.Allocate(max(len(data), 1))
	if err != nil {
		return nil, err
	}
	if err := writeAll(buf, data); err != nil {
		return nil, err
	}
	buf.MakeReadOnly()
	return func() (Buffer, error) {
		return pa.manager.AllocateConstChild(buf)
	}, nil
}

// AcquireLease borrows one of this allocator's fixed pool of per-arena
// Leases, giving the caller the genuine single-goroutine thread-cache hot
// path for as long as the returned Session is open. The Session must be
// closed by the same goroutine that acquired it, and must not be shared.
func (pa *pooledAllocator) AcquireLease() (*Session, error) {
	idx, err := pa.leases.Get()
	if err != nil {
		return nil, err
	}
	return &Session{pa: pa, lease: pa.leases.Value(idx), idx: idx}, nil
}

// Close assumes no Session is concurrently open, matching spec.md §4.4:
// "Trims the current thread's cache and clears all arenas." It drains and
// detaches every Lease, then releases every arena's chunks back to the
// base MemoryManager (or the OS, for native chunks) — except a chunk still
// carved up by outstanding Handles, which the Arena itself defers until its
// last live buffer frees. Buffers already issued keep working regardless.
func (pa *pooledAllocator) Close() error {
	if !pa.closed.CompareAndSwap(false, true) {
		return nil
	}
	for i := 0; i < pa.leases.Cap(); i++ {
		pa.leases.Value(i).Close()
	}
	for _, arena := range pa.arenas {
		arena.Close()
	}
	return nil
}

// arenaControl routes a pooled buffer's recovery straight to its arena,
// independent of whichever Lease (if any) originally requested it —
// spec.md §4.4's cross-thread free path. Recover is a no-op when region
// does not belong to arena (e.g. an unpooled growth region produced by
// EnsureWritable): the base MemoryManager already owns that memory.
type arenaControl struct {
	arena *pool.Arena
}

func (c *arenaControl) Recover(region Region) {
	c.arena.FreeByAddress(region.Base, region.Capacity)
}

// Session is an explicit, caller-held handle onto one pooled Lease: the Go
// equivalent of a pinned OS thread's cache, since Go has no thread-locals.
// Allocate calls made through a Session hit the Lease's size-classed cache
// before the arena's mutex, as long as the Session stays confined to one
// goroutine. Frees, including FreeLocal, always go to the arena.
type Session struct {
	pa    *pooledAllocator
	lease *pool.Lease
	idx   int
	done  bool
}

// Allocate satisfies size from the Session's Lease cache when possible.
func (s *Session) Allocate(size int) (Buffer, error) {
	if s.done {
		return nil, &BufferClosedError{Reason: "session already closed"}
	}
	if size > s.pa.opts.ChunkSize() {
		return s.pa.manager.AllocateShared(nil, size, nil)
	}
	h, err := s.lease.Allocate(size)
	if err != nil {
		return nil, &AllocationFailureError{Size: size, Reason: err.Error()}
	}
	region := Region{
		Base:     advance(pool.HandleBase(h), pool.HandleOffset(h)),
		Capacity: h.Size,
		Native:   s.pa.manager.IsNative(),
		ID:       uuid.New(),
	}
	// Close always frees straight to the arena, never back into this
	// Session's Lease cache: Go has no cheap way to confirm a buffer is
	// being closed by the same goroutine that allocated it, and the cache
	// is not safe for concurrent use by two borrowers (spec.md §4.4's
	// cross-thread-free path is the only one that is always correct).
	control := &arenaControl{arena: s.lease.Arena()}
	d := newDrop(func() { control.Recover(region) })
	return newOwnedBuffer(region, s.pa.manager, control, d), nil
}

// FreeLocal closes buf, which must be a plain (non-composite) Buffer. It
// behaves exactly like buf.Close(): the region goes back to its arena under
// the arena's mutex. It does not park the region in this Session's Lease
// cache.
func (s *Session) FreeLocal(buf Buffer) error {
	impl, ok := buf.(*bufferImpl)
	if !ok {
		return &UnsupportedError{Feature: "FreeLocal of a non-plain buffer"}
	}
	if err := impl.Close(); err != nil {
		return err
	}
	return nil
}

// Close drains the Session's Lease back to its arena and returns the Lease
// to the allocator's bounded pool for the next acquirer. The Lease itself
// stays permanently pinned to its arena; only its cache contents drain.
func (s *Session) Close() {
	if s.done {
		return
	}
	s.done = true
	s.lease.Drain()
	s.pa.leases.Put(s.idx)
}
