package nsf

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/example/go-nsf-vocoder/internal/runtime/tensor"
	"github.com/example/go-nsf-vocoder/internal/safetensors"
)

// WeightProvider is the opaque name-to-tensor lookup the generator is built
// from. *safetensors.Store implements it.
type WeightProvider interface {
	Has(name string) bool
	Tensor(name string) (*safetensors.Tensor, error)
}

// VarBuilder resolves dotted layer paths against a WeightProvider.
type VarBuilder struct {
	weights WeightProvider
	prefix  string
}

func NewVarBuilder(weights WeightProvider) *VarBuilder {
	return &VarBuilder{weights: weights}
}

// OpenVarBuilder opens a checkpoint with the parametrization key mapper installed.
func OpenVarBuilder(path string) (*VarBuilder, *safetensors.Store, error) {
	store, err := safetensors.OpenStore(path, safetensors.StoreOptions{KeyMapper: ParametrizationKeyMapper})
	if err != nil {
		return nil, nil, err
	}

	return NewVarBuilder(store), store, nil
}

// ParametrizationKeyMapper renames torch parametrize-style weight norm keys
// (x.parametrizations.weight.original0/1) to the classic x.weight_g/weight_v.
func ParametrizationKeyMapper(name string) (string, bool) {
	const marker = ".parametrizations.weight.original"

	base, suffix, ok := strings.Cut(name, marker)
	if !ok {
		return name, true
	}

	switch suffix {
	case "0":
		return base + ".weight_g", true
	case "1":
		return base + ".weight_v", true
	default:
		return name, true
	}
}

func (vb *VarBuilder) Path(parts ...string) *VarBuilder {
	if vb == nil {
		return nil
	}

	prefix := vb.prefix

	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		if prefix == "" {
			prefix = part
		} else {
			prefix += "." + part
		}
	}

	return &VarBuilder{weights: vb.weights, prefix: prefix}
}

// Pathf is Path with a formatted single segment, e.g. Pathf("ups.%d", i).
func (vb *VarBuilder) Pathf(format string, args ...any) *VarBuilder {
	return vb.Path(fmt.Sprintf(format, args...))
}

func (vb *VarBuilder) Prefix() string {
	if vb == nil {
		return ""
	}

	return vb.prefix
}

func (vb *VarBuilder) Has(name string) bool {
	if vb == nil || vb.weights == nil {
		return false
	}

	return vb.weights.Has(vb.resolve(name))
}

// Tensor loads name and checks its shape when wantShape is given. Missing
// tensors and shape mismatches wrap ErrWeightShape.
func (vb *VarBuilder) Tensor(name string, wantShape ...int64) (*tensor.Tensor, error) {
	if vb == nil || vb.weights == nil {
		return nil, errors.New("nsf varbuilder: uninitialized weight provider")
	}

	fullName := vb.resolve(name)
	if !vb.weights.Has(fullName) {
		return nil, fmt.Errorf("%w: tensor %q is missing", ErrWeightShape, fullName)
	}

	st, err := vb.weights.Tensor(fullName)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWeightShape, err)
	}

	if len(wantShape) > 0 && !slices.Equal(st.Shape, wantShape) {
		return nil, fmt.Errorf("%w: tensor %q shape %v does not match expected %v", ErrWeightShape, fullName, st.Shape, wantShape)
	}

	t, err := tensor.New(st.Data, st.Shape)
	if err != nil {
		return nil, fmt.Errorf("%w: tensor %q: %v", ErrWeightShape, fullName, err)
	}

	return t, nil
}

func (vb *VarBuilder) TensorMaybe(name string, wantShape ...int64) (*tensor.Tensor, bool, error) {
	if !vb.Has(name) {
		return nil, false, nil
	}

	t, err := vb.Tensor(name, wantShape...)
	if err != nil {
		return nil, true, err
	}

	return t, true, nil
}

func (vb *VarBuilder) resolve(name string) string {
	name = strings.TrimSpace(name)
	if vb == nil || vb.prefix == "" {
		return name
	}

	if name == "" {
		return vb.prefix
	}

	return vb.prefix + "." + name
}

// MapWeights is an in-memory WeightProvider.
type MapWeights map[string]*safetensors.Tensor

// NewMapWeights indexes tensors by name.
func NewMapWeights(tensors []safetensors.Tensor) MapWeights {
	m := make(MapWeights, len(tensors))
	for i := range tensors {
		m[tensors[i].Name] = &tensors[i]
	}

	return m
}

func (m MapWeights) Has(name string) bool {
	_, ok := m[name]
	return ok
}

func (m MapWeights) Tensor(name string) (*safetensors.Tensor, error) {
	t, ok := m[name]
	if !ok {
		return nil, fmt.Errorf("nsf: tensor %q not found", name)
	}

	return t, nil
}
