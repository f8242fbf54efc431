package ops

import (
	"math"
	"math/bits"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// convWorkers bounds the goroutines that process output tiles in Conv1D and
// ConvTranspose1D. It is set from runtime.conv_workers; 0 or 1 is sequential.
var convWorkers atomic.Int32

// SetConvWorkers sets the maximum number of goroutines per convolution call.
// Negative values clamp to 0.
func SetConvWorkers(n int) {
	convWorkers.Store(int32(min(max(n, 0), math.MaxInt32)))
}

func getConvWorkers() int { return int(convWorkers.Load()) }

// parallelFor runs fn over contiguous slices of [0, n) on at most workers
// goroutines.
func parallelFor(n, workers int, fn func(lo, hi int)) {
	if workers <= 1 || n <= 1 {
		fn(0, n)
		return
	}

	step := (n + workers - 1) / workers

	var g errgroup.Group
	for lo := 0; lo < n; lo += step {
		g.Go(func() error {
			fn(lo, min(lo+step, n))
			return nil
		})
	}

	_ = g.Wait()
}

const (
	minScratchBits = 10
	maxScratchBits = 26
)

// scratchPools hold im2col tiles and transposed inputs bucketed by
// power-of-two capacity.
var scratchPools [maxScratchBits - minScratchBits + 1]sync.Pool

// getScratch returns a zeroed buffer of length n. Release it with putScratch.
func getScratch(n int) []float32 {
	b := scratchBits(n)
	if b > maxScratchBits {
		return make([]float32, n)
	}

	if buf, ok := scratchPools[b-minScratchBits].Get().([]float32); ok {
		buf = buf[:n]
		clear(buf)

		return buf
	}

	return make([]float32, n, 1<<b)
}

func putScratch(buf []float32) {
	c := cap(buf)
	if b := scratchBits(c); b <= maxScratchBits && c == 1<<b {
		scratchPools[b-minScratchBits].Put(buf[:c])
	}
}

// scratchBits is the exponent of the smallest pool class holding n floats.
func scratchBits(n int) int {
	return max(bits.Len(uint(max(n, 1)-1)), minScratchBits)
}
