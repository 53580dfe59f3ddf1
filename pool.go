// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package membuf

import "code.hybscloud.com/membuf/internal/pool"

// Pool is a generic object pool interface with configurable blocking semantics.
//
// Implementations may operate in blocking or non-blocking mode. In blocking
// mode, Get blocks until an item is available and Put blocks until space
// is available. In non-blocking mode, both operations return iox.ErrWouldBlock
// instead of blocking.
//
// All implementations must be safe for concurrent use.
type Pool[T any] interface {
	// Put returns the item to the pool.
	// Returns iox.ErrWouldBlock if non-blocking and full.
	Put(item T) error

	// Get acquires an item from the pool.
	// Returns iox.ErrWouldBlock if non-blocking and empty.
	Get() (item T, err error)
}

// IndirectPool manages items by index rather than by value, enabling
// zero-copy access to pooled values.
//
// The pool stores indices (int) rather than values directly. This allows:
//   - Zero-copy access via Value() without moving large items
//   - Efficient pool operations (only small integers are enqueued/dequeued)
//   - Clear ownership semantics through index hand-off
//
// internal/pool.BoundedPool has this shape (Get/Put by index, Value,
// SetValue) and holds the pooled allocator's Leases directly, not through
// this interface. NewBufferPool below wraps it as an IndirectPool[Buffer].
type IndirectPool[T any] interface {
	Pool[int]

	// Value returns the item associated with the given indirect index.
	// The caller must have acquired this index via Get.
	Value(indirect int) T

	// SetValue updates the item at the specified indirect index.
	// The caller must have acquired this index via Get.
	SetValue(indirect int, item T)
}

// bufferPool implements IndirectPool[Buffer] on top of internal/pool's
// BoundedPool, which cannot satisfy this interface itself (its package
// cannot import membuf to name Buffer without a cycle). Wrapping it here,
// from the outside, carries no such restriction.
type bufferPool struct {
	bp *pool.BoundedPool[Buffer]
}

// NewBufferPool builds a fixed-capacity IndirectPool[Buffer], pre-filling
// every slot with newFunc. Intended for callers that cycle a bounded set of
// reusable buffers (e.g. per-connection scratch space) through Get/Put
// rather than allocating and closing one per request.
func NewBufferPool(capacity int, newFunc func() Buffer) IndirectPool[Buffer] {
	bp := pool.NewBoundedPool[Buffer](capacity)
	bp.Fill(newFunc)
	return &bufferPool{bp: bp}
}

func (p *bufferPool) Put(item int) error { return p.bp.Put(item) }

func (p *bufferPool) Get() (int, error) { return p.bp.Get() }

func (p *bufferPool) Value(indirect int) Buffer { return p.bp.Value(indirect) }

func (p *bufferPool) SetValue(indirect int, item Buffer) { p.bp.SetValue(indirect, item) }
