package ops

import (
	"errors"
	"fmt"

	"github.com/example/go-nsf-vocoder/internal/runtime/tensor"
)

// convTile is the number of output positions gathered into one im2col block.
const convTile = 256

type conv1DParams struct {
	batch       int64
	inChannels  int64
	length      int64
	outChannels int64
	kernelSize  int64
	outLength   int64
	stride      int64
	padding     int64
	dilation    int64
	groups      int64
}

// Conv1D performs a deterministic CPU Conv1d with zero padding.
// input: [batch, in_channels, length]
// kernel: [out_channels, in_channels/groups, kernel_size]
// bias: [out_channels] or nil
func Conv1D(input, kernel, bias *tensor.Tensor, stride, padding, dilation, groups int64) (*tensor.Tensor, error) {
	p, biasData, err := prepareConv1D(input, kernel, bias, stride, padding, dilation, groups)
	if err != nil {
		return nil, err
	}

	out := make([]float32, p.batch*p.outChannels*p.outLength)
	if groups == 1 {
		conv1DTiled(input.RawData(), kernel.RawData(), biasData, p, out)
	} else {
		conv1DGrouped(input.RawData(), kernel.RawData(), biasData, p, out)
	}

	return tensor.FromOwned(out, []int64{p.batch, p.outChannels, p.outLength})
}

// Conv1DOutputLength returns the output length of a Conv1d over length
// samples, or a non-positive value when the window does not fit.
func Conv1DOutputLength(length, kernelSize, stride, padding, dilation int64) int64 {
	return (length+2*padding-dilation*(kernelSize-1)-1)/stride + 1
}

func prepareConv1D(input, kernel, bias *tensor.Tensor, stride, padding, dilation, groups int64) (conv1DParams, []float32, error) {
	if input == nil || kernel == nil {
		return conv1DParams{}, nil, errors.New("ops: conv1d requires non-nil input/kernel")
	}

	if stride <= 0 || dilation <= 0 || groups <= 0 || padding < 0 {
		return conv1DParams{}, nil, fmt.Errorf("ops: conv1d invalid stride=%d padding=%d dilation=%d groups=%d", stride, padding, dilation, groups)
	}

	inShape := input.Shape()
	kShape := kernel.Shape()

	if len(inShape) != 3 || len(kShape) != 3 {
		return conv1DParams{}, nil, fmt.Errorf("ops: conv1d expects input/kernel rank 3, got %v and %v", inShape, kShape)
	}

	p := conv1DParams{
		batch:       inShape[0],
		inChannels:  inShape[1],
		length:      inShape[2],
		outChannels: kShape[0],
		kernelSize:  kShape[2],
		stride:      stride,
		padding:     padding,
		dilation:    dilation,
		groups:      groups,
	}

	if p.inChannels%groups != 0 || p.outChannels%groups != 0 {
		return conv1DParams{}, nil, fmt.Errorf("ops: conv1d channels not divisible by groups (%d, %d, groups=%d)", p.inChannels, p.outChannels, groups)
	}

	if kShape[1] != p.inChannels/groups {
		return conv1DParams{}, nil, fmt.Errorf("ops: conv1d kernel in_channels %d does not match input channels %d/groups %d", kShape[1], p.inChannels, groups)
	}

	var biasData []float32
	if bias != nil {
		bShape := bias.Shape()
		if len(bShape) != 1 || bShape[0] != p.outChannels {
			return conv1DParams{}, nil, fmt.Errorf("ops: conv1d bias shape %v does not match out_channels %d", bShape, p.outChannels)
		}

		biasData = bias.RawData()
	}

	p.outLength = Conv1DOutputLength(p.length, p.kernelSize, stride, padding, dilation)
	if p.outLength <= 0 {
		return conv1DParams{}, nil, fmt.Errorf("ops: conv1d produced non-positive output length %d", p.outLength)
	}

	return p, biasData, nil
}

// conv1DTiled lowers the convolution to a GEMM over tiles of output
// positions. Each tile gathers a patch matrix of shape
// [tile, in_channels*kernel_size] so that
//
//	out[oc, ox] = dot(kernel[oc, :], imcol[ox, :]) + bias[oc]
//
// runs over contiguous rows. Tiles are independent, so they are spread
// across the conv workers.
func conv1DTiled(inputData, kernelData, biasData []float32, p conv1DParams, outData []float32) {
	patchLen := int(p.inChannels * p.kernelSize)
	outLen := int(p.outLength)
	outCh := int(p.outChannels)
	inLen := int(p.length)
	kSize := int(p.kernelSize)
	tiles := (outLen + convTile - 1) / convTile

	for b := range int(p.batch) {
		inBatch := inputData[b*int(p.inChannels)*inLen : (b+1)*int(p.inChannels)*inLen]
		outBatch := outData[b*outCh*outLen : (b+1)*outCh*outLen]

		parallelFor(tiles, getConvWorkers(), func(lo, hi int) {
			imcol := getScratch(convTile * patchLen)
			defer putScratch(imcol)

			for tile := lo; tile < hi; tile++ {
				x0 := tile * convTile
				x1 := min(x0+convTile, outLen)

				for ox := x0; ox < x1; ox++ {
					row := imcol[(ox-x0)*patchLen : (ox-x0+1)*patchLen]
					start := int64(ox)*p.stride - p.padding

					for ic := range int(p.inChannels) {
						src := inBatch[ic*inLen : (ic+1)*inLen]
						dst := row[ic*kSize : (ic+1)*kSize]

						for kx := range dst {
							pos := start + int64(kx)*p.dilation
							if pos >= 0 && pos < p.length {
								dst[kx] = src[pos]
							} else {
								dst[kx] = 0
							}
						}
					}
				}

				for oc := range outCh {
					kernelRow := kernelData[oc*patchLen : (oc+1)*patchLen]

					biasVal := float32(0)
					if biasData != nil {
						biasVal = biasData[oc]
					}

					outRow := outBatch[oc*outLen : (oc+1)*outLen]
					for ox := x0; ox < x1; ox++ {
						j := ox - x0
						outRow[ox] = tensor.DotProduct(kernelRow, imcol[j*patchLen:(j+1)*patchLen]) + biasVal
					}
				}
			}
		})
	}
}

// conv1DGrouped is the direct-loop path for groups > 1.
func conv1DGrouped(inputData, kernelData, biasData []float32, p conv1DParams, outData []float32) {
	inPerGroup := p.inChannels / p.groups
	outPerGroup := p.outChannels / p.groups

	for b := range p.batch {
		for oc := range p.outChannels {
			inStart := (oc / outPerGroup) * inPerGroup

			for ox := range p.outLength {
				sum := float32(0)
				if biasData != nil {
					sum = biasData[oc]
				}

				for ic := range inPerGroup {
					inBase := (b*p.inChannels + inStart + ic) * p.length
					kBase := (oc*inPerGroup + ic) * p.kernelSize

					for kx := range p.kernelSize {
						pos := ox*p.stride - p.padding + kx*p.dilation
						if pos >= 0 && pos < p.length {
							sum += inputData[inBase+pos] * kernelData[kBase+kx]
						}
					}
				}

				outData[(b*p.outChannels+oc)*p.outLength+ox] = sum
			}
		}
	}
}
