package tensor

import (
	"errors"
	"fmt"
	"slices"
)

// Tensor is a dense, row-major float32 tensor. Activations flow through the
// vocoder as [batch, channels, length]; weights keep their checkpoint layout.
type Tensor struct {
	shape []int64
	data  []float32
}

// New creates a tensor from data and shape. Both slices are copied.
func New(data []float32, shape []int64) (*Tensor, error) {
	if err := checkLen(len(data), shape); err != nil {
		return nil, err
	}

	return newOwned(slices.Clone(data), slices.Clone(shape)), nil
}

// FromOwned wraps data without copying. The caller hands over ownership of
// data and must not modify it afterwards.
func FromOwned(data []float32, shape []int64) (*Tensor, error) {
	if err := checkLen(len(data), shape); err != nil {
		return nil, err
	}

	return newOwned(data, slices.Clone(shape)), nil
}

// newOwned skips validation; len(data) must match shape.
func newOwned(data []float32, shape []int64) *Tensor {
	return &Tensor{shape: shape, data: data}
}

func checkLen(n int, shape []int64) error {
	total, err := shapeElemCount(shape)
	if err != nil {
		return err
	}

	if n != total {
		return fmt.Errorf("tensor: data length %d does not match shape %v (%d elements)", n, shape, total)
	}

	return nil
}

// Zeros creates a zero-initialized tensor.
func Zeros(shape []int64) (*Tensor, error) {
	total, err := shapeElemCount(shape)
	if err != nil {
		return nil, err
	}

	return newOwned(make([]float32, total), slices.Clone(shape)), nil
}

// Full creates a tensor filled with value.
func Full(shape []int64, value float32) (*Tensor, error) {
	t, err := Zeros(shape)
	if err != nil {
		return nil, err
	}

	for i := range t.data {
		t.data[i] = value
	}

	return t, nil
}

func (t *Tensor) Shape() []int64 {
	if t == nil {
		return nil
	}

	return slices.Clone(t.shape)
}

// Dim returns the size of dimension i, or 0 when i is out of range.
func (t *Tensor) Dim(i int) int64 {
	if t == nil || i < 0 || i >= len(t.shape) {
		return 0
	}

	return t.shape[i]
}

// Data returns a copy of the values.
func (t *Tensor) Data() []float32 {
	if t == nil {
		return nil
	}

	return slices.Clone(t.data)
}

// RawData returns the underlying data slice.
// Callers must treat it as read-only unless they own the tensor.
func (t *Tensor) RawData() []float32 {
	if t == nil {
		return nil
	}

	return t.data
}

func (t *Tensor) ElemCount() int { return len(t.RawData()) }
func (t *Tensor) Rank() int      { return len(t.Shape()) }

// Clone returns a deep copy.
func (t *Tensor) Clone() *Tensor {
	if t == nil {
		return nil
	}

	return newOwned(slices.Clone(t.data), slices.Clone(t.shape))
}

// Reshape returns a copy of the tensor with a new shape.
func (t *Tensor) Reshape(shape []int64) (*Tensor, error) {
	if t == nil {
		return nil, errors.New("tensor: reshape on nil tensor")
	}

	if err := checkLen(len(t.data), shape); err != nil {
		return nil, fmt.Errorf("tensor: cannot reshape %v: %w", t.shape, err)
	}

	return newOwned(slices.Clone(t.data), slices.Clone(shape)), nil
}

// Narrow copies the range [start, start+length) of dimension dim. The
// vocoder uses it to cut chunk windows out of a [mels, frames] input.
func (t *Tensor) Narrow(dim int, start, length int64) (*Tensor, error) {
	if t == nil {
		return nil, errors.New("tensor: narrow on nil tensor")
	}

	dim, err := normalizeDim(dim, len(t.shape))
	if err != nil {
		return nil, fmt.Errorf("tensor: narrow: %w", err)
	}

	span := t.shape[dim]
	if start < 0 || length < 0 || start+length > span {
		return nil, fmt.Errorf("tensor: narrow: range [%d:%d] out of bounds for dim %d size %d", start, start+length, dim, span)
	}

	outer, inner := splitAt(t.shape, dim)
	shape := slices.Clone(t.shape)
	shape[dim] = length

	out := make([]float32, 0, outer*length*inner)
	for o := range outer {
		base := (o*span + start) * inner
		out = append(out, t.data[base:base+length*inner]...)
	}

	return newOwned(out, shape), nil
}
