package onnx

import (
	"reflect"
	"strings"
	"testing"

	"github.com/example/go-nsf-vocoder/internal/runtime/tensor"
)

func TestNewTensor(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		tt, err := NewTensor([]float32{1, 2, 3, 4}, []int64{2, 2})
		if err != nil {
			t.Fatalf("NewTensor failed: %v", err)
		}

		if tt.Rank() != 2 || !reflect.DeepEqual(tt.Shape(), []int64{2, 2}) {
			t.Fatalf("unexpected shape: %v", tt.Shape())
		}

		if !reflect.DeepEqual(tt.Data(), []float32{1, 2, 3, 4}) {
			t.Fatalf("unexpected data: %v", tt.Data())
		}
	})

	t.Run("scalar", func(t *testing.T) {
		if _, err := NewTensor([]float32{7}, nil); err != nil {
			t.Fatalf("scalar: %v", err)
		}
	})

	t.Run("shape mismatch", func(t *testing.T) {
		_, err := NewTensor([]float32{1, 2, 3}, []int64{2, 2})
		if err == nil || !strings.Contains(err.Error(), "holds 4 values, got 3") {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("non-positive dim", func(t *testing.T) {
		_, err := NewTensor([]float32{}, []int64{0})
		if err == nil || !strings.Contains(err.Error(), "not positive") {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}

func TestTensorCopies(t *testing.T) {
	src := []float32{1, 2}

	tt, err := NewTensor(src, []int64{2})
	if err != nil {
		t.Fatalf("NewTensor failed: %v", err)
	}

	src[0] = 50

	data := tt.Data()
	data[1] = 99

	if got := tt.Data(); got[0] != 1 || got[1] != 2 {
		t.Fatalf("tensor data was aliased: %v", got)
	}
}

func TestFromNativeAddsBatchAxis(t *testing.T) {
	src, err := tensor.New([]float32{1, 2, 3, 4, 5, 6}, []int64{2, 3})
	if err != nil {
		t.Fatalf("tensor.New: %v", err)
	}

	tt, err := FromNative(src, true)
	if err != nil {
		t.Fatalf("FromNative: %v", err)
	}

	if !reflect.DeepEqual(tt.Shape(), []int64{1, 2, 3}) {
		t.Fatalf("shape = %v", tt.Shape())
	}

	flat, err := FromNative(src, false)
	if err != nil {
		t.Fatalf("FromNative: %v", err)
	}

	if !reflect.DeepEqual(flat.Shape(), []int64{2, 3}) {
		t.Fatalf("shape = %v", flat.Shape())
	}
}
