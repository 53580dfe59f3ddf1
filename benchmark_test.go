// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package membuf_test

import (
	"testing"

	"code.hybscloud.com/iox"
	"code.hybscloud.com/spin"

	membuf "code.hybscloud.com/membuf"
)

// Allocator benchmarks

func BenchmarkHeapAllocator_Allocate(b *testing.B) {
	a := membuf.NewHeapAllocator()
	defer a.Close()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		buf, err := a.Allocate(512)
		if err != nil {
			b.Fatal(err)
		}
		_ = buf.Close()
	}
}

func BenchmarkPooledHeapAllocator_Allocate(b *testing.B) {
	a, err := membuf.NewPooledHeapAllocator(nil)
	if err != nil {
		b.Fatal(err)
	}
	defer a.Close()

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			buf, err := a.Allocate(512)
			if err != nil {
				b.Fatal(err)
			}
			// Simulate brief I/O work before the buffer is recycled.
			spin.Yield()
			_ = buf.Close()
		}
	})
}

func BenchmarkSession_Allocate(b *testing.B) {
	a, err := membuf.NewPooledHeapAllocator(nil)
	if err != nil {
		b.Fatal(err)
	}
	defer a.Close()

	sa, ok := a.(interface {
		AcquireLease() (*membuf.Session, error)
	})
	if !ok {
		b.Fatal("allocator does not expose AcquireLease")
	}
	session, err := sa.AcquireLease()
	if err != nil {
		b.Fatal(err)
	}
	defer session.Close()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		buf, err := session.Allocate(512)
		if err != nil {
			b.Fatal(err)
		}
		_ = buf.Close()
	}
}

// IoVec benchmarks

func BenchmarkIoVecFromBytesSlice_8(b *testing.B) {
	slices := make([][]byte, 8)
	for i := range slices {
		slices[i] = make([]byte, 256)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = membuf.IoVecFromBytesSlice(slices)
	}
}

func BenchmarkIoVecFromReadable(b *testing.B) {
	buf, err := membuf.HeapManager.AllocateShared(nil, 4096, nil)
	if err != nil {
		b.Fatal(err)
	}
	defer buf.Close()
	if err := buf.WriteUint32(0); err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = membuf.IoVecFromReadable(buf)
	}
}

func BenchmarkIoVecAddrLen(b *testing.B) {
	buf, err := membuf.HeapManager.AllocateShared(nil, 4096, nil)
	if err != nil {
		b.Fatal(err)
	}
	defer buf.Close()
	if err := buf.WriteUint32(0); err != nil {
		b.Fatal(err)
	}
	vec := membuf.IoVecFromReadable(buf)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = membuf.IoVecAddrLen(vec)
	}
}

// High-contention benchmarks demonstrating Backoff behavior
//
// These simulate buffer exhaustion scenarios where multiple goroutines
// compete for a small set of arenas. Every goroutine allocates from a
// pooled allocator with two arenas and holds each buffer for one
// iox.Backoff wait before closing it, so many buffers are live at once and
// the arenas' mutexes are contended. The Lease pool is not involved.

func BenchmarkPooledAllocator_HighContention(b *testing.B) {
	a, err := membuf.NewPooledHeapAllocator(nil, membuf.WithNumArenas(2))
	if err != nil {
		b.Fatal(err)
	}
	defer a.Close()

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		var ba iox.Backoff
		for pb.Next() {
			buf, err := a.Allocate(128)
			if err != nil {
				b.Fatal(err)
			}
			ba.Wait()
			_ = buf.Close()
		}
	})
}
