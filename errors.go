// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package membuf

import "fmt"

// IndexOutOfRangeError is returned when an accessor index violates the
// cursor/capacity bounds of a buffer.
type IndexOutOfRangeError struct {
	Index      int64
	ReadLimit  int64
	WriteLimit int64
}

func (e *IndexOutOfRangeError) Error() string {
	return fmt.Sprintf("membuf: index %d out of range [read_limit=%d, write_limit=%d]",
		e.Index, e.ReadLimit, e.WriteLimit)
}

// BufferClosedError is returned for an operation on a buffer that is
// INACCESSIBLE: closed, sent, or invalidated by a split-source replacement.
type BufferClosedError struct {
	Reason string
}

func (e *BufferClosedError) Error() string {
	if e.Reason == "" {
		return "membuf: buffer is closed"
	}
	return "membuf: buffer is closed: " + e.Reason
}

// ReadOnlyError is returned for a write, growth, or compaction attempt on a
// read-only buffer.
type ReadOnlyError struct{}

func (e *ReadOnlyError) Error() string { return "membuf: buffer is read-only" }

// NotOwnedError is returned when Split, Send, Compact, or EnsureWritable is
// attempted on a buffer that is not OWNED (i.e. BORROWED).
type NotOwnedError struct {
	Op string
}

func (e *NotOwnedError) Error() string {
	return fmt.Sprintf("membuf: operation %q requires an OWNED buffer", e.Op)
}

// InvalidCompositionError is returned when a CompositeBuffer cannot be
// constructed or extended: gaps, mismatched byte order/read-only flags,
// duplicate components, or total capacity overflow.
type InvalidCompositionError struct {
	Reason string
}

func (e *InvalidCompositionError) Error() string {
	return "membuf: invalid composition: " + e.Reason
}

// AllocationFailureError is returned when the underlying allocator cannot
// satisfy a request: the size class is too large, or the OS is out of
// memory.
type AllocationFailureError struct {
	Size   int
	Reason string
}

func (e *AllocationFailureError) Error() string {
	return fmt.Sprintf("membuf: allocation of %d bytes failed: %s", e.Size, e.Reason)
}

// SendConsumedError is returned when a Send is received more than once.
type SendConsumedError struct{}

func (e *SendConsumedError) Error() string { return "membuf: send already received" }

// UnsupportedError is returned when a feature is requested but the current
// platform or configuration cannot provide it (e.g. aligned allocation
// without unaligned-access fallback).
type UnsupportedError struct {
	Feature string
}

func (e *UnsupportedError) Error() string {
	return "membuf: unsupported: " + e.Feature
}
