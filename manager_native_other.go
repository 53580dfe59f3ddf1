// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build !linux && !darwin

package membuf

// nativeManager is unavailable on this platform: membuf has no mmap-free
// off-heap path. NativeManager.AllocateShared always fails with
// Unsupported, and it is not registered in the default MemoryManagers
// registry (see registry.go).
type nativeManager struct{}

var NativeManager MemoryManager = nativeManager{}

func (nativeManager) AllocateShared(AllocatorControl, int, DropFunc) (Buffer, error) {
	return nil, &UnsupportedError{Feature: "native memory manager on this platform"}
}

func (nativeManager) AllocateConstChild(Buffer) (Buffer, error) {
	return nil, &UnsupportedError{Feature: "native memory manager on this platform"}
}

func (nativeManager) UnwrapRecoverable(Buffer) (Region, error) {
	return Region{}, &UnsupportedError{Feature: "native memory manager on this platform"}
}

func (nativeManager) Recover(AllocatorControl, Region, DropFunc) (Buffer, error) {
	return nil, &UnsupportedError{Feature: "native memory manager on this platform"}
}

func (nativeManager) SliceMemory(Region, int, int) (Region, error) {
	return Region{}, &UnsupportedError{Feature: "native memory manager on this platform"}
}

func (nativeManager) ClearMemory(Region) {}

func (nativeManager) IsNative() bool             { return true }
func (nativeManager) ImplementationName() string { return "native" }
