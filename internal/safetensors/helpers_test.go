package safetensors

import (
	"encoding/binary"
	"encoding/json"
	"math"
	"testing"
)

type rawTensor struct {
	dtype string
	shape []int64
	data  []byte
}

// buildSafetensors assembles a payload from raw byte tensors so tests can
// exercise dtypes the writer never emits.
func buildSafetensors(t *testing.T, tensors map[string]rawTensor) []byte {
	t.Helper()

	header := map[string]storeHeaderEntry{}
	var raw []byte

	for name, rt := range tensors {
		start := len(raw)
		raw = append(raw, rt.data...)
		header[name] = storeHeaderEntry{DType: rt.dtype, Shape: rt.shape, Offsets: [2]int{start, len(raw)}}
	}

	h, err := json.Marshal(header)
	if err != nil {
		t.Fatalf("marshal header: %v", err)
	}

	out := binary.LittleEndian.AppendUint64(nil, uint64(len(h)))
	out = append(out, h...)

	return append(out, raw...)
}

func float16Bytes(bits []uint16) []byte {
	out := make([]byte, 0, len(bits)*2)
	for _, b := range bits {
		out = binary.LittleEndian.AppendUint16(out, b)
	}

	return out
}

func bfloat16Bytes(vals []float32) []byte {
	out := make([]byte, 0, len(vals)*2)
	for _, v := range vals {
		out = binary.LittleEndian.AppendUint16(out, uint16(math.Float32bits(v)>>16))
	}

	return out
}

func assertFloatSliceNear(t *testing.T, got, want []float32, tol float64) {
	t.Helper()

	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}

	for i := range got {
		if math.Abs(float64(got[i]-want[i])) > tol {
			t.Fatalf("[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}
