// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package membuf

import (
	"unsafe"

	"github.com/google/uuid"
)

// Region is a contiguous byte range [Base, Base+Capacity). It is either
// heap-backed (Base points into a Go array; Keep holds that array for
// regions HeapManager allocates itself) or native-backed (Keep is nil, Base
// points outside the Go heap). Regions carved from a pooled chunk leave
// Keep nil.
//
// Region doubles as the RegionHandle referenced by the MemoryManager
// interface in §6: SliceMemory, UnwrapRecoverable, and Recover all operate
// on Region values.
type Region struct {
	Base     unsafe.Pointer
	Capacity int
	Native   bool
	Keep     []byte // non-nil for HeapManager regions; anchors the GC root
	ID       uuid.UUID
}

// Bytes returns a []byte view over the full region. Callers must not retain
// it past the region's lifetime.
func (r Region) Bytes() []byte {
	if r.Capacity == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(r.Base), r.Capacity)
}

// ptrOf returns the address of a byte slice's first element, or nil for an
// empty slice.
func ptrOf(b []byte) unsafe.Pointer {
	if len(b) == 0 {
		return nil
	}
	return unsafe.Pointer(&b[0])
}

// advance returns base offset by n bytes. A nil base with n==0 stays nil.
func advance(base unsafe.Pointer, n int) unsafe.Pointer {
	if base == nil {
		return nil
	}
	return unsafe.Add(base, n)
}

// uintptrOf returns the address of a byte slice's first element, or 0 for
// an empty slice. Used only for overlap detection between slices that may
// alias the same backing array (see buffer.go's overlaps).
func uintptrOf(b []byte) uintptr {
	if len(b) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&b[0]))
}

// maxRegionCapacity is the spec's 2^31-8 ceiling (keeps capacity
// arithmetic, including composite sums, inside a signed 32-bit range with a
// margin for header-style accounting some MemoryManagers may need).
const maxRegionCapacity = (1 << 31) - 8

// DropFunc is a one-shot release action. The MemoryManager-provided
// DropFunc given to AllocateShared performs the actual region release; Drop
// (see drop.go) guarantees it runs at most once.
type DropFunc func()

// AllocatorControl is a back-pointer handle from a buffer to the
// arena/chunk/lease that owns its region, so recovery on Close is O(1). The
// unpooled heap/direct MemoryManagers pass a nil AllocatorControl: there is
// nothing to recover into, the region is simply released.
type AllocatorControl interface {
	// Recover reclaims region for reuse (or releases it if the owner
	// has been closed). Called at most once, after the region's last
	// reader/writer has closed.
	Recover(region Region)
}

// MemoryManager is a narrow, data-oriented plug-in interface for acquiring
// and releasing raw byte regions. Implementations are heap-backed,
// native-mapped, or wrap an externally supplied array; see
// manager_heap.go and manager_native_unix.go (manager_native_other.go on
// platforms without mmap).
type MemoryManager interface {
	// AllocateShared acquires a new region of size bytes and wraps it in a
	// Buffer whose Drop invokes dropAdaptor exactly once. control is
	// attached to the buffer for O(1) recovery; it may be nil.
	AllocateShared(control AllocatorControl, size int, dropAdaptor DropFunc) (Buffer, error)

	// AllocateConstChild returns an independently owned, read-only Buffer
	// sharing parent's region. The shared region is refcounted via
	// arc-drop; each call returns a distinct handle.
	AllocateConstChild(parent Buffer) (Buffer, error)

	// UnwrapRecoverable returns the Region backing buf, for managers that
	// support recovering the raw memory (e.g. to reattach to a pool).
	UnwrapRecoverable(buf Buffer) (Region, error)

	// Recover rewraps a previously-unwrapped region into a fresh OWNED
	// Buffer, attaching drop as its release action.
	Recover(control AllocatorControl, region Region, drop DropFunc) (Buffer, error)

	// SliceMemory returns a Region aliasing region[off:off+length]. It does
	// not allocate or copy.
	SliceMemory(region Region, off, length int) (Region, error)

	// ClearMemory zeroes every byte in region.
	ClearMemory(region Region)

	// IsNative reports whether regions from this manager live outside the
	// Go heap (and are therefore invisible to the GC and require explicit
	// release).
	IsNative() bool

	// ImplementationName identifies this manager in the MemoryManagers
	// registry.
	ImplementationName() string
}
