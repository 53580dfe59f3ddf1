// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build linux || darwin

package membuf

import (
	"unsafe"

	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// nativeManager is the off-heap MemoryManager: regions are anonymous mmap
// mappings, invisible to the Go GC, released explicitly via munmap. This
// backs DirectAllocator and the pooled direct allocator's chunks.
type nativeManager struct{}

// NativeManager is the mmap-backed MemoryManager, registered under the
// name "native".
var NativeManager MemoryManager = nativeManager{}

func (nativeManager) AllocateShared(control AllocatorControl, size int, dropAdaptor DropFunc) (Buffer, error) {
	if size < 0 || size > maxRegionCapacity {
		return nil, &AllocationFailureError{Size: size, Reason: "capacity out of range"}
	}
	mapSize := size
	if mapSize == 0 {
		mapSize = 1 // unix.Mmap rejects a zero-length mapping
	}
	mem, err := unix.Mmap(-1, 0, mapSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, &AllocationFailureError{Size: size, Reason: pkgerrors.Wrap(err, "mmap").Error()}
	}
	region := Region{Base: unsafe.Pointer(&mem[0]), Capacity: size, Native: true, ID: uuid.New()}
	d := newDrop(func() {
		if dropAdaptor != nil {
			dropAdaptor()
		}
		if control != nil {
			control.Recover(region)
		}
		_ = unix.Munmap(mem)
	})
	return newOwnedBuffer(region, nativeManager{}, control, d), nil
}

func (m nativeManager) AllocateConstChild(parent Buffer) (Buffer, error) {
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

func (nativeManager) UnwrapRecoverable(buf Buffer) (Region, error) {
	impl, ok := buf.(*bufferImpl)
	if !ok {
		return Region{}, &UnsupportedError{Feature: "unwrap_recoverable of a non-plain buffer"}
	}
	return impl.region, nil
}

func (m nativeManager) Recover(control AllocatorControl, region Region, drop DropFunc) (Buffer, error) {
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

func (nativeManager) SliceMemory(region Region, off, length int) (Region, error) {
	if off < 0 || length < 0 || off+length > region.Capacity {
		return Region{}, pkgerrors.New("membuf: slice out of region bounds")
	}
	return Region{
		Base:     advance(region.Base, off),
		Capacity: length,
		Native:   true,
		ID:       region.ID,
	}, nil
}

func (nativeManager) ClearMemory(region Region) {
	buf := region.Bytes()
	for i := range buf {
		buf[i] = 0
	}
}

func (nativeManager) IsNative() bool             { return true }
func (nativeManager) ImplementationName() string { return "native" }
