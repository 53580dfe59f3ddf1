// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package membuf

import (
	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"
)

// heapManager is the ordinary Go-heap-backed MemoryManager: regions are
// plain byte slices, visible to and collected by the Go GC. It needs no
// cleaner backstop since the GC already reclaims the backing array; a
// Drop is still attached so AllocatorControl.Recover runs at the right
// time for the pooled allocator built on top of it.
type heapManager struct{}

// HeapManager is the default heap-backed MemoryManager, registered under
// the name "heap".
var HeapManager MemoryManager = heapManager{}

func (heapManager) AllocateShared(control AllocatorControl, size int, dropAdaptor DropFunc) (Buffer, error) {
	if size < 0 || size > maxRegionCapacity {
		return nil, &AllocationFailureError{Size: size, Reason: "capacity out of range"}
	}
	backing := make([]byte, size)
	region := Region{Capacity: size, Keep: backing, ID: uuid.New()}
	if size > 0 {
		region.Base = ptrOf(backing)
	}
	d := newDrop(func() {
		if dropAdaptor != nil {
			dropAdaptor()
		}
		if control != nil {
			control.Recover(region)
		}
	})
	return newOwnedBuffer(region, heapManager{}, control, d), nil
}

func (m heapManager) AllocateConstChild(parent Buffer) (Buffer, error) {
	impl, ok := parent.(*bufferImpl)
	if !ok {
		return nil, &UnsupportedError{Feature: "const_child of a non-plain buffer"}
	}
	impl.arc.acquire()
	child := &bufferImpl{
		region:     impl.region,
		manager:    impl.manager,
		control:    impl.control,
		arc:        impl.arc,
		order:      impl.order,
		readOnly:   true,
		accessible: true,
		constChild: true,
		writeOff:   impl.writeOff,
	}
	child.alias.Store(1)
	return child, nil
}

func (heapManager) UnwrapRecoverable(buf Buffer) (Region, error) {
	impl, ok := buf.(*bufferImpl)
	if !ok {
		return Region{}, &UnsupportedError{Feature: "unwrap_recoverable of a non-plain buffer"}
	}
	return impl.region, nil
}

func (m heapManager) Recover(control AllocatorControl, region Region, drop DropFunc) (Buffer, error) {
	d := newDrop(func() {
		if drop != nil {
			drop()
		}
		if control != nil {
			control.Recover(region)
		}
	})
	return newOwnedBuffer(region, m, control, d), nil
}

func (heapManager) SliceMemory(region Region, off, length int) (Region, error) {
	if off < 0 || length < 0 || off+length > region.Capacity {
		return Region{}, pkgerrors.New("membuf: slice out of region bounds")
	}
	return Region{
		Base:     advance(region.Base, off),
		Capacity: length,
		Keep:     region.Keep,
		ID:       region.ID,
	}, nil
}

func (heapManager) ClearMemory(region Region) {
	buf := region.Bytes()
	for i := range buf {
		buf[i] = 0
	}
}

func (heapManager) IsNative() bool             { return false }
func (heapManager) ImplementationName() string { return "heap" }
