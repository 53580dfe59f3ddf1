// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package membuf

import (
	"runtime"
	"sync/atomic"
)

// drop is a single-shot release action attached to every buffer. fire runs
// the wrapped DropFunc at most once, matching the teacher's non-blocking,
// no-retry error discipline: a Drop never partially runs.
type drop struct {
	fn   DropFunc
	once atomic.Bool
}

func newDrop(fn DropFunc) *drop {
	return &drop{fn: fn}
}

// fire runs fn exactly once across any number of concurrent callers.
func (d *drop) fire() {
	if d == nil || d.fn == nil {
		return
	}
	if d.once.CompareAndSwap(false, true) {
		d.fn()
	}
}

// arcDrop wraps a base drop so that N borrows share one release: the last
// borrow to close invokes the wrapped drop. acquire/close pair with
// release-acquire ordering (via atomic.Int32 fetch-add/sub) so the final
// decrement observes every prior write to the region.
type arcDrop struct {
	base  *drop
	count atomic.Int32
}

func newArcDrop(base *drop) *arcDrop {
	a := &arcDrop{base: base}
	a.count.Store(1)
	return a
}

// acquire registers one more borrow and returns the new count.
func (a *arcDrop) acquire() int32 {
	return a.count.Add(1)
}

// release drops one borrow; when the count reaches zero the base drop
// fires exactly once.
func (a *arcDrop) release() {
	if a.count.Add(-1) == 0 {
		a.base.fire()
	}
}

// owned reports whether this is the sole surviving handle.
func (a *arcDrop) owned() bool {
	return a.count.Load() == 1
}

// cleanerBackstop is a best-effort, post-collection release hook for
// regions whose explicit Drop never fired. It is idempotent via a
// single-shot gate (get-and-clear), matching spec.md §4.2's
// "get_and_clear() -> Option<region_handle>" contract; errors from the
// wrapped release are swallowed (best-effort cleanup is the only place in
// membuf that silently recovers from failure, per spec.md §7).
//
// The sentinel must be kept reachable by whatever owns the region (a
// bufferImpl keeps it in a field) so the runtime finalizer fires only when
// that owner itself becomes unreachable without having closed explicitly.
type cleanerBackstop struct {
	armed atomic.Bool
	fn    func()
}

// armCleanerBackstop registers fn to run if the returned sentinel is
// garbage-collected before disarm is called. The caller must store sentinel
// somewhere reachable for as long as the region should be considered live.
func armCleanerBackstop(fn func()) (sentinel *cleanerBackstop, disarm func()) {
	cb := &cleanerBackstop{fn: fn}
	cb.armed.Store(true)
	runtime.SetFinalizer(cb, func(c *cleanerBackstop) {
		c.fire()
	})
	return cb, cb.disarm
}

func (cb *cleanerBackstop) fire() {
	if cb.armed.CompareAndSwap(true, false) {
		defer func() { recover() }() // best-effort: never panic from a finalizer
		if cb.fn != nil {
			cb.fn()
		}
	}
}

func (cb *cleanerBackstop) disarm() {
	cb.armed.Store(false)
}
