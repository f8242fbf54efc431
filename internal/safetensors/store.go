package safetensors

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"math"
	"os"
	"slices"
	"strings"
)

const (
	dtypeF32  = "F32"
	dtypeF16  = "F16"
	dtypeBF16 = "BF16"

	metadataKey = "__metadata__"
)

// KeyMapper renames a checkpoint tensor on open. Returning keep=false drops it.
type KeyMapper func(name string) (mapped string, keep bool)

type RemapMode string

const (
	// RemapLenient skips dropped tensors and keeps the first of colliding names.
	RemapLenient RemapMode = "lenient"
	// RemapStrict fails on dropped tensors and collisions.
	RemapStrict RemapMode = "strict"
)

type StoreOptions struct {
	KeyMapper KeyMapper
	RemapMode RemapMode
}

// Store is a read-only view over a safetensors payload. Tensors are decoded
// to float32 on demand.
type Store struct {
	entries  map[string]storeEntry
	names    []string
	metadata map[string]string
}

// TensorInfo describes a stored tensor without decoding it.
type TensorInfo struct {
	Name         string
	OriginalName string
	DType        string
	Shape        []int64
}

// storeHeaderEntry is the on-disk JSON form of one tensor.
type storeHeaderEntry struct {
	DType   string  `json:"dtype"`
	Shape   []int64 `json:"shape"`
	Offsets [2]int  `json:"data_offsets"`
}

type storeEntry struct {
	original string
	kind     elemKind
	shape    []int64
	raw      []byte
}

// elemKind knows how wide one stored element is and how to widen it.
type elemKind struct {
	name   string
	width  int
	decode func(b []byte) float32
}

var elemKinds = map[string]elemKind{
	dtypeF32: {name: dtypeF32, width: 4, decode: func(b []byte) float32 {
		return math.Float32frombits(binary.LittleEndian.Uint32(b))
	}},
	dtypeF16: {name: dtypeF16, width: 2, decode: func(b []byte) float32 {
		return float16ToFloat32(binary.LittleEndian.Uint16(b))
	}},
	dtypeBF16: {name: dtypeBF16, width: 2, decode: func(b []byte) float32 {
		return math.Float32frombits(uint32(binary.LittleEndian.Uint16(b)) << 16)
	}},
}

func OpenStore(path string, opts StoreOptions) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("safetensors: read %s: %w", path, err)
	}

	return OpenStoreFromBytes(data, opts)
}

func OpenStoreFromBytes(data []byte, opts StoreOptions) (*Store, error) {
	body, header, err := splitHeader(data)
	if err != nil {
		return nil, err
	}

	s := &Store{entries: make(map[string]storeEntry, len(header))}

	if meta, ok := header[metadataKey]; ok {
		if err := json.Unmarshal(meta, &s.metadata); err != nil {
			return nil, fmt.Errorf("safetensors: decode metadata: %w", err)
		}

		delete(header, metadataKey)
	}

	strict := opts.RemapMode == RemapStrict

	// Sorted traversal makes collision handling deterministic.
	for _, original := range slices.Sorted(maps.Keys(header)) {
		entry, err := parseEntry(original, header[original], body)
		if err != nil {
			return nil, err
		}

		name := original
		if opts.KeyMapper != nil {
			mapped, keep := opts.KeyMapper(original)
			if !keep {
				if strict {
					return nil, fmt.Errorf("safetensors: strict remap rejected tensor %q", original)
				}

				continue
			}

			name = strings.TrimSpace(mapped)
			if name == "" {
				return nil, fmt.Errorf("safetensors: remapped tensor name for %q is empty", original)
			}
		}

		if _, dup := s.entries[name]; dup {
			if strict {
				return nil, fmt.Errorf("safetensors: strict remap collision for %q", name)
			}

			continue
		}

		s.entries[name] = entry
	}

	if len(s.entries) == 0 {
		return nil, errors.New("safetensors: no tensors found")
	}

	s.names = slices.Sorted(maps.Keys(s.entries))

	return s, nil
}

// splitHeader separates the JSON header from the tensor body.
func splitHeader(data []byte) ([]byte, map[string]json.RawMessage, error) {
	if len(data) < 8 {
		return nil, nil, fmt.Errorf("safetensors: file too short (%d bytes)", len(data))
	}

	n := binary.LittleEndian.Uint64(data)
	if n > uint64(len(data)-8) {
		return nil, nil, fmt.Errorf("safetensors: header length %d exceeds file size %d", n, len(data))
	}

	var header map[string]json.RawMessage
	if err := json.Unmarshal(data[8:8+n], &header); err != nil {
		return nil, nil, fmt.Errorf("safetensors: parse header: %w", err)
	}

	return data[8+n:], header, nil
}

func parseEntry(name string, msg json.RawMessage, body []byte) (storeEntry, error) {
	var h storeHeaderEntry
	if err := json.Unmarshal(msg, &h); err != nil {
		return storeEntry{}, fmt.Errorf("safetensors: decode header entry %q: %w", name, err)
	}

	kind, ok := elemKinds[strings.ToUpper(h.DType)]
	if !ok {
		return storeEntry{}, fmt.Errorf("safetensors: tensor %q has unsupported dtype %q", name, h.DType)
	}

	lo, hi := h.Offsets[0], h.Offsets[1]
	if lo < 0 || hi < lo {
		return storeEntry{}, fmt.Errorf("safetensors: tensor %q has invalid data offsets %v", name, h.Offsets)
	}

	if hi > len(body) {
		return storeEntry{}, fmt.Errorf("safetensors: tensor %q data [%d:%d] exceeds body size %d", name, lo, hi, len(body))
	}

	count, err := elementCount(h.Shape)
	if err != nil {
		return storeEntry{}, fmt.Errorf("safetensors: tensor %q: %w", name, err)
	}

	need := count * kind.width
	if hi-lo < need {
		return storeEntry{}, fmt.Errorf("safetensors: tensor %q needs %d bytes but data has %d", name, need, hi-lo)
	}

	return storeEntry{
		original: name,
		kind:     kind,
		shape:    slices.Clone(h.Shape),
		raw:      body[lo : lo+need],
	}, nil
}

func (s *Store) Names() []string { return slices.Clone(s.names) }

func (s *Store) Has(name string) bool {
	_, ok := s.entries[name]
	return ok
}

// Metadata returns the free-form string map stored under __metadata__.
func (s *Store) Metadata() map[string]string {
	out := maps.Clone(s.metadata)
	if out == nil {
		out = map[string]string{}
	}

	return out
}

// Info returns dtype and shape of a tensor without decoding its data.
func (s *Store) Info(name string) (TensorInfo, bool) {
	e, ok := s.entries[name]
	if !ok {
		return TensorInfo{}, false
	}

	return TensorInfo{Name: name, OriginalName: e.original, DType: e.kind.name, Shape: slices.Clone(e.shape)}, true
}

func (s *Store) Tensor(name string) (*Tensor, error) {
	e, ok := s.entries[name]
	if !ok {
		return nil, fmt.Errorf("safetensors: tensor %q not found (available: %s)", name, summarizeNames(s.names))
	}

	data := make([]float32, len(e.raw)/e.kind.width)
	for i := range data {
		data[i] = e.kind.decode(e.raw[i*e.kind.width:])
	}

	return &Tensor{Name: name, Shape: slices.Clone(e.shape), Data: data}, nil
}

// Close drops the references to the payload.
func (s *Store) Close() {
	s.entries = nil
	s.names = nil
	s.metadata = nil
}

func elementCount(shape []int64) (int, error) {
	total := int64(1)

	for _, d := range shape {
		switch {
		case d < 0:
			return 0, fmt.Errorf("negative dimension %d in shape %v", d, shape)
		case d > 0 && total > math.MaxInt32/d:
			return 0, fmt.Errorf("shape %v overflows element count", shape)
		}

		total *= d
	}

	return int(total), nil
}

// float16ToFloat32 widens an IEEE 754 half.
func float16ToFloat32(h uint16) float32 {
	sign := uint32(h&0x8000) << 16
	exp := uint32(h>>10) & 0x1f
	frac := uint32(h & 0x03ff)

	switch exp {
	case 0x1f:
		return math.Float32frombits(sign | 0x7f800000 | frac<<13)
	case 0:
		// Subnormals are frac * 2^-24.
		v := float32(math.Ldexp(float64(frac), -24))
		if sign != 0 {
			v = -v
		}

		return v
	}

	return math.Float32frombits(sign | (exp+112)<<23 | frac<<13)
}

func summarizeNames(names []string) string {
	const shown = 8

	switch {
	case len(names) == 0:
		return "none"
	case len(names) > shown:
		return strings.Join(names[:shown], ", ") + ", ..."
	}

	return strings.Join(names, ", ")
}
