package onnx

import (
	"fmt"
	"math"
	"slices"

	"github.com/example/go-nsf-vocoder/internal/runtime/tensor"
)

// Tensor is a float32 value exchanged with an ORT session. The generator
// graph has no other input or output types.
type Tensor struct {
	shape []int64
	data  []float32
}

// NewTensor copies data into a tensor of the given shape.
func NewTensor(data []float32, shape []int64) (*Tensor, error) {
	if err := checkElementCount(shape, len(data)); err != nil {
		return nil, err
	}

	return &Tensor{shape: slices.Clone(shape), data: slices.Clone(data)}, nil
}

// FromNative copies a runtime tensor, optionally prefixing a batch axis.
func FromNative(t *tensor.Tensor, batch bool) (*Tensor, error) {
	shape := t.Shape()
	if batch {
		shape = append([]int64{1}, shape...)
	}

	return NewTensor(t.RawData(), shape)
}

func (t *Tensor) Shape() []int64 { return slices.Clone(t.shape) }
func (t *Tensor) Rank() int      { return len(t.shape) }

// Data returns a copy of the values.
func (t *Tensor) Data() []float32 { return slices.Clone(t.data) }

func checkElementCount(shape []int64, n int) error {
	count := int64(1)

	for i, d := range shape {
		if d < 1 {
			return fmt.Errorf("onnx: shape[%d]=%d is not positive", i, d)
		}

		if count > math.MaxInt64/d {
			return fmt.Errorf("onnx: shape %v overflows", shape)
		}

		count *= d
	}

	if count != int64(n) {
		return fmt.Errorf("onnx: shape %v holds %d values, got %d", shape, count, n)
	}

	return nil
}
