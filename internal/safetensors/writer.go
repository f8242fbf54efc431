package safetensors

import (
	"bytes"
	"cmp"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"slices"
	"strings"
)

// EncodeTensors serializes float32 tensors into safetensors format.
func EncodeTensors(tensors []Tensor) ([]byte, error) {
	return Encode(tensors, nil)
}

// Encode serializes float32 tensors plus an optional __metadata__ map.
// Tensors are laid out in name order and the header is space-padded to a
// multiple of 8 bytes.
func Encode(tensors []Tensor, metadata map[string]string) ([]byte, error) {
	if len(tensors) == 0 {
		return nil, errors.New("safetensors: no tensors to encode")
	}

	ordered := slices.SortedFunc(slices.Values(tensors), func(a, b Tensor) int {
		return cmp.Compare(a.Name, b.Name)
	})

	header := make(map[string]any, len(ordered)+1)
	if len(metadata) > 0 {
		header[metadataKey] = metadata
	}

	var body bytes.Buffer

	for _, t := range ordered {
		name := strings.TrimSpace(t.Name)
		if name == "" || name == metadataKey {
			return nil, fmt.Errorf("safetensors: invalid tensor name %q", t.Name)
		}

		if _, dup := header[name]; dup {
			return nil, fmt.Errorf("safetensors: duplicate tensor name %q", name)
		}

		count, err := elementCount(t.Shape)
		if err != nil {
			return nil, fmt.Errorf("safetensors: tensor %q: %w", name, err)
		}

		if len(t.Data) != count {
			return nil, fmt.Errorf("safetensors: tensor %q shape %v expects %d elements, got %d", name, t.Shape, count, len(t.Data))
		}

		start := body.Len()
		for _, v := range t.Data {
			body.Write(binary.LittleEndian.AppendUint32(nil, math.Float32bits(v)))
		}

		header[name] = storeHeaderEntry{DType: dtypeF32, Shape: slices.Clone(t.Shape), Offsets: [2]int{start, body.Len()}}
	}

	head, err := json.Marshal(header)
	if err != nil {
		return nil, fmt.Errorf("safetensors: encode header: %w", err)
	}

	if pad := len(head) % 8; pad != 0 {
		head = append(head, bytes.Repeat([]byte{' '}, 8-pad)...)
	}

	out := binary.LittleEndian.AppendUint64(make([]byte, 0, 8+len(head)+body.Len()), uint64(len(head)))
	out = append(out, head...)

	return append(out, body.Bytes()...), nil
}

// WriteFile writes float32 tensors and metadata into a .safetensors file.
func WriteFile(path string, tensors []Tensor, metadata map[string]string) error {
	data, err := Encode(tensors, metadata)
	if err != nil {
		return err
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("safetensors: write %s: %w", path, err)
	}

	return nil
}
