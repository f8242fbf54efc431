package ops

import "testing"

func TestSetConvWorkersClamp(t *testing.T) {
	SetConvWorkers(-5)

	if got := getConvWorkers(); got != 0 {
		t.Fatalf("getConvWorkers() = %d, want 0", got)
	}

	const maxInt32 = int(^uint32(0) >> 1)
	SetConvWorkers(maxInt32 + 123)

	if got := getConvWorkers(); got != maxInt32 {
		t.Fatalf("getConvWorkers() = %d, want %d", got, maxInt32)
	}

	SetConvWorkers(1)
}

func TestScratchReuseIsZeroed(t *testing.T) {
	buf := getScratch(1500)
	if len(buf) != 1500 || cap(buf) != 2048 {
		t.Fatalf("len/cap = %d/%d, want 1500/2048", len(buf), cap(buf))
	}

	for i := range buf {
		buf[i] = 1
	}

	putScratch(buf)

	again := getScratch(1200)
	for i, v := range again {
		if v != 0 {
			t.Fatalf("again[%d] = %v, want 0", i, v)
		}
	}

	putScratch(again)
}

func TestParallelForCoversRange(t *testing.T) {
	seen := make([]int, 37)

	parallelFor(len(seen), 4, func(lo, hi int) {
		for i := lo; i < hi; i++ {
			seen[i]++
		}
	})

	for i, n := range seen {
		if n != 1 {
			t.Fatalf("index %d visited %d times", i, n)
		}
	}
}
