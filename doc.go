// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package membuf provides a safe, high-performance byte-buffer abstraction
// for network and I/O code: a replacement for raw byte slices that carries
// explicit ownership, lifecycle, and sharing semantics, supports on-heap and
// off-heap storage interchangeably, and composes zero-copy from fragments.
//
// # Buffer core
//
// Buffer is a seekable, typed, endian-aware view over a contiguous byte
// region with independent read and write cursors:
//
//	buf, err := alloc.Allocate(8)
//	buf.SetOrder(membuf.BigEndian)
//	buf.WriteUint64(0x0102030405060708)
//	v, _ := buf.GetUint64(0)
//
// # Ownership
//
// A Buffer is OWNED, BORROWED, or INACCESSIBLE. Only an OWNED buffer may
// Split, Send, Compact, or EnsureWritable. Acquire increments a borrow
// count; Close decrements it, running the underlying Drop exactly once when
// the last handle closes:
//
//	dup := buf.Acquire()
//	dup.Close() // decrements; buf is still live
//	buf.Close() // last handle: Drop fires
//
// Send moves ownership across goroutines without copying memory: the origin
// becomes inaccessible before the Send token exists, and Receive (at most
// once) reconstitutes an OWNED buffer on the far side.
//
// # Composite buffers
//
// CompositeBuffer concatenates constituent buffers into one logical buffer
// without copying. Multi-byte accessors that straddle a component boundary
// fall back to a byte-at-a-time torn accessor that composes the same value
// a contiguous buffer would produce.
//
// # Pooled allocator
//
// Allocator has four variants: Heap, Direct (native/off-heap), PooledHeap,
// and PooledDirect. The pooled variants arena-allocate chunks subdivided by
// a binary buddy tree, with an explicit per-goroutine Session cache for the
// hot allocate path; frees go back to the arena (Go has no addressable
// thread-local storage, so the
// Session is acquired once by the confined goroutine and Closed on exit):
//
//	alloc, err := membuf.NewPooledDirectAllocator(nil, membuf.WithNumArenas(4))
//	defer alloc.Close()
//	session, err := alloc.(interface {
//		AcquireLease() (*membuf.Session, error)
//	}).AcquireLease()
//	defer session.Close()
//	buf, err := session.Allocate(4096)
//
// # Memory managers
//
// MemoryManager is a narrow, data-oriented plug-in interface (acquire/slice/
// clear/recover a region). membuf ships heap- and mmap-backed
// implementations and a MemoryManagers registry for discovery and scoped
// override.
//
// # Error handling
//
// Errors surface to the caller unchanged: IndexOutOfRangeError,
// BufferClosedError, ReadOnlyError, NotOwnedError, InvalidCompositionError,
// AllocationFailureError, SendConsumedError, and UnsupportedError. None are
// retried internally. The only best-effort exception is the cleaner
// backstop, which swallows errors from a Drop it invokes after the fact.
//
// # Dependencies
//
// membuf depends on:
//   - iox: semantic errors (ErrWouldBlock) and Backoff for pool contention
//   - spin: CPU-pause/spin-wait primitives for CAS retry loops
//   - golang.org/x/sys/unix: mmap-backed native memory
//   - go.uber.org/zap: structured logging for the debug leak tracer
//   - github.com/pkg/errors: stack-trace wrapping of allocation failures
//   - github.com/google/uuid: region/debug-record identity
//   - github.com/prometheus/client_golang: arena/chunk metrics
package membuf
