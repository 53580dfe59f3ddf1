// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package pool_test

import (
	"testing"

	"code.hybscloud.com/membuf/internal/pool"
)

func TestSmallSizeClass(t *testing.T) {
	cases := []struct {
		size      int
		wantClass int
	}{
		{1, 16},
		{16, 16},
		{17, 32},
		{100, 128},
		{4096, 4096},
	}
	for _, c := range cases {
		classSize, _ := pool.SmallSizeClass(c.size)
		if classSize != c.wantClass {
			t.Errorf("SmallSizeClass(%d) class = %d, want %d", c.size, classSize, c.wantClass)
		}
	}
}

func TestSmallSizeClassIndexMonotonic(t *testing.T) {
	_, i1 := pool.SmallSizeClass(16)
	_, i2 := pool.SmallSizeClass(32)
	_, i3 := pool.SmallSizeClass(64)
	if !(i1 < i2 && i2 < i3) {
		t.Errorf("expected strictly increasing indices, got %d, %d, %d", i1, i2, i3)
	}
}

func TestNumSmallClasses(t *testing.T) {
	n := pool.NumSmallClasses(8192)
	if n <= 0 {
		t.Fatalf("NumSmallClasses(8192) = %d, want > 0", n)
	}
	_, idx := pool.SmallSizeClass(8192)
	if idx != n-1 {
		t.Errorf("largest class index = %d, want %d", idx, n-1)
	}
}

func TestNormalOrder(t *testing.T) {
	const pageSize = 8192
	const maxOrder = 4 // chunk = 8192*16 = 128 KiB

	if order := pool.NormalOrder(1, pageSize, maxOrder); order != 0 {
		t.Errorf("NormalOrder(1) = %d, want 0", order)
	}
	if order := pool.NormalOrder(pageSize, pageSize, maxOrder); order != 0 {
		t.Errorf("NormalOrder(pageSize) = %d, want 0", order)
	}
	if order := pool.NormalOrder(pageSize+1, pageSize, maxOrder); order != 1 {
		t.Errorf("NormalOrder(pageSize+1) = %d, want 1", order)
	}
	if order := pool.NormalOrder(pageSize<<maxOrder, pageSize, maxOrder); order != maxOrder {
		t.Errorf("NormalOrder(chunk size) = %d, want %d", order, maxOrder)
	}
	if order := pool.NormalOrder(pageSize<<maxOrder+1, pageSize, maxOrder); order != -1 {
		t.Errorf("NormalOrder(chunk size + 1) = %d, want -1", order)
	}
}
