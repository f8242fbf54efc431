package tensor

import (
	"slices"
	"strings"
	"testing"
)

func TestNewValidatesLength(t *testing.T) {
	if _, err := New([]float32{1, 2, 3}, []int64{2, 2}); err == nil {
		t.Fatal("expected length mismatch error")
	}

	if _, err := New(nil, []int64{-1}); err == nil || !strings.Contains(err.Error(), "negative") {
		t.Fatalf("expected negative dimension error, got %v", err)
	}
}

func TestNewCopiesInput(t *testing.T) {
	data := []float32{1, 2}

	x, err := New(data, []int64{2})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	data[0] = 99
	if x.RawData()[0] != 1 {
		t.Fatalf("tensor aliased caller data")
	}
}

func TestReshapePreservesValues(t *testing.T) {
	x, err := New([]float32{1, 2, 3, 4, 5, 6}, []int64{2, 3})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	y, err := x.Reshape([]int64{1, 3, 2})
	if err != nil {
		t.Fatalf("reshape: %v", err)
	}

	if got := y.Shape(); !slices.Equal(got, []int64{1, 3, 2}) {
		t.Fatalf("shape = %v, want [1 3 2]", got)
	}

	if got := y.Data(); !equalF32(got, []float32{1, 2, 3, 4, 5, 6}, 0) {
		t.Fatalf("data = %v", got)
	}

	if _, err := x.Reshape([]int64{4}); err == nil {
		t.Fatal("expected element count error")
	}
}

func TestNarrow(t *testing.T) {
	x, _ := New([]float32{1, 2, 3, 4, 5, 6}, []int64{2, 3})

	out, err := x.Narrow(1, 1, 2)
	if err != nil {
		t.Fatalf("narrow: %v", err)
	}

	if got := out.Shape(); !slices.Equal(got, []int64{2, 2}) {
		t.Fatalf("shape = %v, want [2 2]", got)
	}

	want := []float32{2, 3, 5, 6}
	if got := out.Data(); !equalF32(got, want, 0) {
		t.Fatalf("data = %v, want %v", got, want)
	}

	if _, err := x.Narrow(1, 2, 2); err == nil {
		t.Fatal("expected out of bounds error")
	}
}

func TestNarrowLastDimOf3D(t *testing.T) {
	x, _ := New([]float32{0, 1, 2, 3, 10, 11, 12, 13}, []int64{1, 2, 4})

	out, err := x.Narrow(-1, 1, 2)
	if err != nil {
		t.Fatalf("narrow: %v", err)
	}

	want := []float32{1, 2, 11, 12}
	if got := out.Data(); !equalF32(got, want, 0) {
		t.Fatalf("data = %v, want %v", got, want)
	}
}

func TestFullAndDim(t *testing.T) {
	x, err := Full([]int64{2, 5}, 0.5)
	if err != nil {
		t.Fatalf("full: %v", err)
	}

	if x.Dim(1) != 5 || x.Dim(2) != 0 {
		t.Fatalf("Dim = %d/%d", x.Dim(1), x.Dim(2))
	}

	for _, v := range x.RawData() {
		if v != 0.5 {
			t.Fatalf("full value = %v", v)
		}
	}
}
