package nsf

import (
	"fmt"
	"math"

	"github.com/example/go-nsf-vocoder/internal/runtime/tensor"
)

// NormedWeight is a weight-normalized layer as stored in a checkpoint:
// weight = g * v / ||v||.
type NormedWeight struct {
	G    *tensor.Tensor
	V    *tensor.Tensor
	Bias *tensor.Tensor
}

// DenseWeight is a layer after folding. Bias may be nil.
type DenseWeight struct {
	Weight *tensor.Tensor
	Bias   *tensor.Tensor
}

// Fold collapses the decomposition into a dense weight. Bias passes through.
func (w NormedWeight) Fold() (DenseWeight, error) {
	folded, err := FoldWeightNorm(w.G, w.V)
	if err != nil {
		return DenseWeight{}, err
	}

	return DenseWeight{Weight: folded, Bias: w.Bias}, nil
}

// FoldWeightNorm returns g * v / ||v|| where the norm is taken over every
// axis of v except the first. g holds one magnitude per slice of axis 0 and
// may have any shape with that many elements ([n], [n,1,1]).
//
// Norms and products are accumulated in float64 and rounded once.
func FoldWeightNorm(g, v *tensor.Tensor) (*tensor.Tensor, error) {
	if g == nil || v == nil {
		return nil, fmt.Errorf("%w: weight norm requires both magnitude and direction", ErrWeightShape)
	}

	if v.Rank() < 1 {
		return nil, fmt.Errorf("%w: weight norm direction must have rank >= 1, got %v", ErrWeightShape, v.Shape())
	}

	rows := int(v.Dim(0))
	if g.ElemCount() != rows || (g.Rank() > 0 && g.Dim(0) != int64(rows)) {
		return nil, fmt.Errorf("%w: weight norm magnitude shape %v does not match direction %v", ErrWeightShape, g.Shape(), v.Shape())
	}

	if rows == 0 {
		return v.Clone(), nil
	}

	vData := v.RawData()
	gData := g.RawData()
	cols := len(vData) / rows
	out := make([]float32, len(vData))

	for r := range rows {
		row := vData[r*cols : (r+1)*cols]

		var sq float64
		for _, x := range row {
			sq += float64(x) * float64(x)
		}

		if sq == 0 {
			return nil, fmt.Errorf("%w: direction slice %d of %v has zero norm", ErrNumericDegeneracy, r, v.Shape())
		}

		scale := float64(gData[r]) / math.Sqrt(sq)
		dst := out[r*cols : (r+1)*cols]

		for i, x := range row {
			dst[i] = float32(float64(x) * scale)
		}
	}

	return tensor.FromOwned(out, v.Shape())
}
