package nsf

import (
	"fmt"

	"github.com/example/go-nsf-vocoder/internal/runtime/tensor"
)

// LReLUSlope is the leaky-ReLU slope used inside the upsample stack.
const LReLUSlope = 0.1

// ResidualBlock holds three (dilated conv, plain conv) pairs of equal width
// and kernel size. Each pair preserves the sequence length.
type ResidualBlock struct {
	convs1 []*conv1dLayer
	convs2 []*conv1dLayer
}

func loadResidualBlock(vb *VarBuilder, channels, kernel int, dilations []int) (*ResidualBlock, error) {
	rb := &ResidualBlock{}

	for p, d := range dilations {
		c1, err := loadNormedConv1D(vb.Pathf("convs1.%d", p), channels, channels, kernel, d)
		if err != nil {
			return nil, err
		}

		c2, err := loadNormedConv1D(vb.Pathf("convs2.%d", p), channels, channels, kernel, 1)
		if err != nil {
			return nil, err
		}

		rb.convs1 = append(rb.convs1, c1)
		rb.convs2 = append(rb.convs2, c2)
	}

	return rb, nil
}

// Forward runs x = conv2(lrelu(conv1(lrelu(x)))) + x for every pair.
// The input tensor is not modified.
func (rb *ResidualBlock) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	for p := range rb.convs1 {
		xt, err := rb.convs1[p].forward(tensor.LeakyReLU(x, LReLUSlope))
		if err != nil {
			return nil, err
		}

		xt, err = rb.convs2[p].forward(tensor.LeakyReLU(xt, LReLUSlope))
		if err != nil {
			return nil, err
		}

		if err := tensor.AddInPlace(xt, x); err != nil {
			return nil, fmt.Errorf("resblock pair %d: %w", p, err)
		}

		x = xt
	}

	return x, nil
}
