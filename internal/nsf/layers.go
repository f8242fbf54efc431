package nsf

import (
	"fmt"

	"github.com/example/go-nsf-vocoder/internal/runtime/ops"
	"github.com/example/go-nsf-vocoder/internal/runtime/tensor"
)

// conv1dLayer is a Conv1d with folded weight [out, in, k].
type conv1dLayer struct {
	name     string
	weight   *tensor.Tensor
	bias     *tensor.Tensor
	stride   int64
	padding  int64
	dilation int64
}

func (c *conv1dLayer) forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	y, err := ops.Conv1D(x, c.weight, c.bias, c.stride, c.padding, c.dilation, 1)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", c.name, err)
	}

	return y, nil
}

// convTr1dLayer is a ConvTranspose1d with folded weight [in, out, k] and a
// kernel pre-packed once at build time.
type convTr1dLayer struct {
	name    string
	weight  *tensor.Tensor
	bias    *tensor.Tensor
	kernelT []float32
	stride  int64
	padding int64
}

func (c *convTr1dLayer) forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	y, err := ops.ConvTranspose1DPrePacked(x, c.weight, c.bias, c.kernelT, c.stride, c.padding, 0, 1)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", c.name, err)
	}

	return y, nil
}

// dilatedPadding keeps the sequence length of a stride-1 conv.
func dilatedPadding(kernel, dilation int) int64 {
	return int64((kernel*dilation - dilation) / 2)
}

// loadNormedWeight loads a weight-normed layer and folds it, or accepts a
// pre-folded "weight". biasLen is the expected bias length; bias is optional.
func loadNormedWeight(vb *VarBuilder, shape []int64, biasLen int64) (DenseWeight, error) {
	var dense DenseWeight

	switch {
	case vb.Has("weight_g") || vb.Has("weight_v"):
		v, err := vb.Tensor("weight_v", shape...)
		if err != nil {
			return DenseWeight{}, err
		}

		g, err := vb.Tensor("weight_g")
		if err != nil {
			return DenseWeight{}, err
		}

		dense.Weight, err = FoldWeightNorm(g, v)
		if err != nil {
			return DenseWeight{}, fmt.Errorf("%s: %w", vb.Prefix(), err)
		}
	case vb.Has("weight"):
		w, err := vb.Tensor("weight", shape...)
		if err != nil {
			return DenseWeight{}, err
		}

		dense.Weight = w
	default:
		return DenseWeight{}, fmt.Errorf("%w: layer %q has neither weight_g/weight_v nor weight", ErrWeightShape, vb.Prefix())
	}

	b, _, err := vb.TensorMaybe("bias", biasLen)
	if err != nil {
		return DenseWeight{}, err
	}

	dense.Bias = b

	return dense, nil
}

// plainWeight loads an unnormalized layer (weight plus optional bias).
func plainWeight(vb *VarBuilder, shape []int64, biasLen int64) (DenseWeight, error) {
	w, err := vb.Tensor("weight", shape...)
	if err != nil {
		return DenseWeight{}, err
	}

	b, _, err := vb.TensorMaybe("bias", biasLen)
	if err != nil {
		return DenseWeight{}, err
	}

	return DenseWeight{Weight: w, Bias: b}, nil
}

func loadNormedConv1D(vb *VarBuilder, in, out, kernel, dilation int) (*conv1dLayer, error) {
	w, err := loadNormedWeight(vb, []int64{int64(out), int64(in), int64(kernel)}, int64(out))
	if err != nil {
		return nil, err
	}

	return &conv1dLayer{
		name:     vb.Prefix(),
		weight:   w.Weight,
		bias:     w.Bias,
		stride:   1,
		padding:  dilatedPadding(kernel, dilation),
		dilation: int64(dilation),
	}, nil
}

func loadNormedConvTranspose1D(vb *VarBuilder, in, out, kernel, stride int) (*convTr1dLayer, error) {
	w, err := loadNormedWeight(vb, []int64{int64(in), int64(out), int64(kernel)}, int64(out))
	if err != nil {
		return nil, err
	}

	return &convTr1dLayer{
		name:    vb.Prefix(),
		weight:  w.Weight,
		bias:    w.Bias,
		kernelT: ops.RepackConvTransposeKernel(w.Weight),
		stride:  int64(stride),
		padding: int64((kernel - stride) / 2),
	}, nil
}

// loadInjectionConv loads the single-input-channel conv that projects the
// excitation onto the stage width. stride 1 yields a pointwise conv.
func loadInjectionConv(vb *VarBuilder, out, stride int) (*conv1dLayer, error) {
	kernel, padding := 1, 0
	if stride > 1 {
		kernel, padding = 2*stride, stride/2
	}

	w, err := plainWeight(vb, []int64{int64(out), 1, int64(kernel)}, int64(out))
	if err != nil {
		return nil, err
	}

	return &conv1dLayer{
		name:     vb.Prefix(),
		weight:   w.Weight,
		bias:     w.Bias,
		stride:   int64(stride),
		padding:  int64(padding),
		dilation: 1,
	}, nil
}
