package tensor

import (
	"errors"
	"fmt"
	"slices"

	"github.com/chewxy/math32"
)

// LeakyReLU returns a new tensor with x where x >= 0 and slope*x elsewhere.
func LeakyReLU(x *Tensor, slope float32) *Tensor {
	if x == nil {
		return nil
	}

	out := make([]float32, len(x.data))
	src := x.data

	parallelFor(len(src), getWorkers(), func(lo, hi int) {
		for i := lo; i < hi; i++ {
			v := src[i]
			if v < 0 {
				v *= slope
			}

			out[i] = v
		}
	})

	return newOwned(out, append([]int64(nil), x.shape...))
}

// Tanh returns a new tensor with the hyperbolic tangent of every element.
func Tanh(x *Tensor) *Tensor {
	if x == nil {
		return nil
	}

	out := make([]float32, len(x.data))
	src := x.data

	parallelFor(len(src), getWorkers(), func(lo, hi int) {
		for i := lo; i < hi; i++ {
			out[i] = math32.Tanh(src[i])
		}
	})

	return newOwned(out, append([]int64(nil), x.shape...))
}

// AddInPlace accumulates src into dst. Shapes must match exactly.
func AddInPlace(dst, src *Tensor) error {
	if dst == nil || src == nil {
		return errors.New("tensor: add requires non-nil inputs")
	}

	if !slices.Equal(dst.shape, src.shape) {
		return fmt.Errorf("tensor: add shape mismatch %v vs %v", dst.shape, src.shape)
	}

	Axpy(dst.data, 1, src.data)

	return nil
}

// ScaleInPlace multiplies every element of t by s.
func ScaleInPlace(t *Tensor, s float32) {
	if t == nil {
		return
	}

	for i := range t.data {
		t.data[i] *= s
	}
}
