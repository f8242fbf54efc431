package tensor

import (
	"math"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// workers controls goroutine parallelism for element-wise kernels such as
// LeakyReLU and Tanh.
var workers atomic.Int32

// parallelThreshold is the element count below which kernels stay sequential.
const parallelThreshold = 1 << 15

func init() { workers.Store(1) }

// SetWorkers sets the maximum number of goroutines used by tensor kernels.
// n <= 1 disables kernel parallelism.
func SetWorkers(n int) {
	workers.Store(int32(min(max(n, 1), math.MaxInt32)))
}

func getWorkers() int { return max(int(workers.Load()), 1) }

func parallelFor(n, maxWorkers int, fn func(lo, hi int)) {
	switch {
	case n <= 0:
		return
	case maxWorkers <= 1 || n < parallelThreshold:
		fn(0, n)
		return
	}

	var g errgroup.Group
	g.SetLimit(maxWorkers)

	step := (n + maxWorkers - 1) / maxWorkers
	for lo := 0; lo < n; lo += step {
		g.Go(func() error {
			fn(lo, min(lo+step, n))
			return nil
		})
	}

	_ = g.Wait()
}
