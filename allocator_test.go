// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package membuf_test

import (
	"sync"
	"testing"

	membuf "code.hybscloud.com/membuf"
)

func TestHeapAllocatorAllocate(t *testing.T) {
	a := membuf.NewHeapAllocator()
	defer a.Close()

	buf, err := a.Allocate(128)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	defer buf.Close()
	if buf.Capacity() != 128 {
		t.Errorf("Capacity() = %d, want 128", buf.Capacity())
	}
}

func TestHeapAllocatorConstantSupplier(t *testing.T) {
	a := membuf.NewHeapAllocator()
	defer a.Close()

	data := []byte("hello, membuf")
	supplier, err := a.ConstantSupplier(data)
	if err != nil {
		t.Fatalf("ConstantSupplier: %v", err)
	}

	for i := 0; i < 3; i++ {
		buf, err := supplier()
		if err != nil {
			t.Fatalf("supplier() call %d: %v", i, err)
		}
		if !buf.ReadOnly() {
			t.Error("constant view should be read-only")
		}
		for _, want := range data {
			got, err := buf.ReadUint8()
			if err != nil {
				t.Fatalf("ReadUint8: %v", err)
			}
			if got != want {
				t.Errorf("byte = %d, want %d", got, want)
			}
		}
		buf.Close()
	}
}

func TestPooledHeapAllocatorAllocate(t *testing.T) {
	a, err := membuf.NewPooledHeapAllocator(nil, membuf.WithNumArenas(2))
	if err != nil {
		t.Fatalf("NewPooledHeapAllocator: %v", err)
	}
	defer a.Close()

	buf, err := a.Allocate(256)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if err := buf.WriteUint32(0xCAFEBABE); err != nil {
		t.Fatalf("WriteUint32: %v", err)
	}
	if err := buf.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestPooledHeapAllocatorOversizeFallsThroughToUnpooled(t *testing.T) {
	a, err := membuf.NewPooledHeapAllocator(nil, membuf.WithPageSize(4096), membuf.WithMaxOrder(2))
	if err != nil {
		t.Fatalf("NewPooledHeapAllocator: %v", err)
	}
	defer a.Close()

	// Chunk size is 4096<<2 = 16 KiB; request well beyond it.
	buf, err := a.Allocate(1 << 20)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	defer buf.Close()
	if buf.Capacity() != 1<<20 {
		t.Errorf("Capacity() = %d, want %d", buf.Capacity(), 1<<20)
	}
}

func TestPooledHeapAllocatorConcurrentAllocateClose(t *testing.T) {
	a, err := membuf.NewPooledHeapAllocator(nil, membuf.WithNumArenas(4))
	if err != nil {
		t.Fatalf("NewPooledHeapAllocator: %v", err)
	}
	defer a.Close()

	var wg sync.WaitGroup
	const goroutines = 8
	const iterations = 200
	wg.Add(goroutines)
	for range goroutines {
		go func() {
			defer wg.Done()
			for i := 0; i < iterations; i++ {
				buf, err := a.Allocate(64)
				if err != nil {
					t.Errorf("Allocate: %v", err)
					return
				}
				if err := buf.Close(); err != nil {
					t.Errorf("Close: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestSessionAllocateFreeLocal(t *testing.T) {
	a, err := membuf.NewPooledHeapAllocator(nil, membuf.WithNumArenas(2))
	if err != nil {
		t.Fatalf("NewPooledHeapAllocator: %v", err)
	}
	defer a.Close()

	sa, ok := a.(interface {
		AcquireLease() (*membuf.Session, error)
	})
	if !ok {
		t.Fatal("allocator does not expose AcquireLease")
	}
	session, err := sa.AcquireLease()
	if err != nil {
		t.Fatalf("AcquireLease: %v", err)
	}
	defer session.Close()

	for i := 0; i < 10; i++ {
		buf, err := session.Allocate(64)
		if err != nil {
			t.Fatalf("Allocate iteration %d: %v", i, err)
		}
		if err := session.FreeLocal(buf); err != nil {
			t.Fatalf("FreeLocal iteration %d: %v", i, err)
		}
	}
}

func TestPooledAllocatorConstantSupplier(t *testing.T) {
	a, err := membuf.NewPooledHeapAllocator(nil)
	if err != nil {
		t.Fatalf("NewPooledHeapAllocator: %v", err)
	}
	defer a.Close()

	supplier, err := a.ConstantSupplier([]byte{1, 2, 3, 4})
	if err != nil {
		t.Fatalf("ConstantSupplier: %v", err)
	}
	first, err := supplier()
	if err != nil {
		t.Fatalf("supplier(): %v", err)
	}
	defer first.Close()
	second, err := supplier()
	if err != nil {
		t.Fatalf("supplier() second call: %v", err)
	}
	defer second.Close()

	for _, buf := range []membuf.Buffer{first, second} {
		for _, want := range []byte{1, 2, 3, 4} {
			got, err := buf.ReadUint8()
			if err != nil {
				t.Fatalf("ReadUint8: %v", err)
			}
			if got != want {
				t.Errorf("byte = %d, want %d", got, want)
			}
		}
	}
}

func TestPooledHeapAllocatorCloseIsIdempotent(t *testing.T) {
	a, err := membuf.NewPooledHeapAllocator(nil)
	if err != nil {
		t.Fatalf("NewPooledHeapAllocator: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestNewPooledHeapAllocatorRejectsBadOptions(t *testing.T) {
	if _, err := membuf.NewPooledHeapAllocator(nil, membuf.WithNumArenas(0)); err == nil {
		t.Error("expected an error for num_arenas=0")
	}
	if _, err := membuf.NewPooledHeapAllocator(nil, membuf.WithPageSize(100)); err == nil {
		t.Error("expected an error for a non-power-of-two page size")
	}
}
