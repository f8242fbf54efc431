package ops

import (
	"errors"
	"fmt"

	"github.com/example/go-nsf-vocoder/internal/runtime/tensor"
)

// RepackConvTransposeKernel repacks a ConvTranspose1D weight tensor from the
// checkpoint layout [inCh, outCh, kSize] to [kSize, outCh, inCh] so that each
// (kx, oc) slice is contiguous for the dot-product kernel.
//
// Call this once at model load time and pass the result to
// ConvTranspose1DPrePacked.
func RepackConvTransposeKernel(kernel *tensor.Tensor) []float32 {
	s := kernel.Shape()
	inCh := int(s[0])
	outCh := int(s[1])
	kSize := int(s[2])
	data := kernel.RawData()

	kernelT := make([]float32, kSize*outCh*inCh)
	for ic := range inCh {
		for oc := range outCh {
			for kx := range kSize {
				kernelT[(kx*outCh+oc)*inCh+ic] = data[(ic*outCh+oc)*kSize+kx]
			}
		}
	}

	return kernelT
}

// ConvTranspose1DOutputLength returns the output length of a ConvTranspose1d.
func ConvTranspose1DOutputLength(length, kernelSize, stride, padding, outputPadding, dilation int64) int64 {
	return (length-1)*stride - 2*padding + dilation*(kernelSize-1) + outputPadding + 1
}

type convTranspose1DParams struct {
	batch       int64
	inChannels  int64
	inLength    int64
	outChannels int64
	kernelSize  int64
	outLength   int64
	stride      int64
	padding     int64
	dilation    int64
}

// ConvTranspose1D performs a deterministic CPU ConvTranspose1d.
// input: [batch, in_channels, length]
// kernel: [in_channels, out_channels, kernel_size]
func ConvTranspose1D(input, kernel, bias *tensor.Tensor, stride, padding, outputPadding, dilation int64) (*tensor.Tensor, error) {
	if kernel == nil {
		return nil, errors.New("ops: convtranspose1d requires non-nil kernel")
	}

	return ConvTranspose1DPrePacked(input, kernel, bias, RepackConvTransposeKernel(kernel), stride, padding, outputPadding, dilation)
}

// ConvTranspose1DPrePacked is ConvTranspose1D with a kernel already repacked
// by RepackConvTransposeKernel.
func ConvTranspose1DPrePacked(input, kernel, bias *tensor.Tensor, kernelT []float32, stride, padding, outputPadding, dilation int64) (*tensor.Tensor, error) {
	p, biasData, err := prepareConvTranspose1D(input, kernel, bias, stride, padding, outputPadding, dilation)
	if err != nil {
		return nil, err
	}

	if want := int(p.inChannels * p.outChannels * p.kernelSize); len(kernelT) != want {
		return nil, fmt.Errorf("ops: prepacked kernel length mismatch: got %d want %d", len(kernelT), want)
	}

	out := make([]float32, p.batch*p.outChannels*p.outLength)
	convTranspose1DGather(input.RawData(), kernelT, biasData, p, out)

	return tensor.FromOwned(out, []int64{p.batch, p.outChannels, p.outLength})
}

func prepareConvTranspose1D(
	input, kernel, bias *tensor.Tensor,
	stride, padding, outputPadding, dilation int64,
) (convTranspose1DParams, []float32, error) {
	if input == nil || kernel == nil {
		return convTranspose1DParams{}, nil, errors.New("ops: convtranspose1d requires non-nil input/kernel")
	}

	if stride <= 0 || dilation <= 0 || padding < 0 {
		return convTranspose1DParams{}, nil, fmt.Errorf("ops: convtranspose1d invalid stride=%d padding=%d dilation=%d", stride, padding, dilation)
	}

	if outputPadding < 0 || outputPadding >= stride {
		return convTranspose1DParams{}, nil, fmt.Errorf("ops: convtranspose1d output_padding must be in [0, stride), got %d", outputPadding)
	}

	inShape := input.Shape()
	kShape := kernel.Shape()

	if len(inShape) != 3 || len(kShape) != 3 {
		return convTranspose1DParams{}, nil, fmt.Errorf("ops: convtranspose1d expects input/kernel rank 3, got %v and %v", inShape, kShape)
	}

	p := convTranspose1DParams{
		batch:       inShape[0],
		inChannels:  inShape[1],
		inLength:    inShape[2],
		outChannels: kShape[1],
		kernelSize:  kShape[2],
		stride:      stride,
		padding:     padding,
		dilation:    dilation,
	}

	if kShape[0] != p.inChannels {
		return convTranspose1DParams{}, nil, fmt.Errorf("ops: convtranspose1d kernel in_channels %d does not match input channels %d", kShape[0], p.inChannels)
	}

	var biasData []float32
	if bias != nil {
		bShape := bias.Shape()
		if len(bShape) != 1 || bShape[0] != p.outChannels {
			return convTranspose1DParams{}, nil, fmt.Errorf("ops: convtranspose1d bias shape %v does not match out_channels %d", bShape, p.outChannels)
		}

		biasData = bias.RawData()
	}

	p.outLength = ConvTranspose1DOutputLength(p.inLength, p.kernelSize, stride, padding, outputPadding, dilation)
	if p.outLength <= 0 {
		return convTranspose1DParams{}, nil, fmt.Errorf("ops: convtranspose1d produced non-positive output length %d", p.outLength)
	}

	return p, biasData, nil
}

// convTranspose1DGather computes every output position as a sum over the
// input frames that scatter into it:
//
//	out[oc, o] = sum_kx dot(kernelT[kx, oc, :], input[:, (o+pad-kx*dil)/stride])
//
// where the division must be exact. Output positions never alias, so tiles
// run in parallel without synchronisation.
func convTranspose1DGather(inputData, kernelT, biasData []float32, p convTranspose1DParams, outData []float32) {
	inCh := int(p.inChannels)
	inLen := int(p.inLength)
	outCh := int(p.outChannels)
	outLen := int(p.outLength)
	kSize := int(p.kernelSize)
	tiles := (outLen + convTile - 1) / convTile

	inputT := getScratch(inLen * inCh)
	defer putScratch(inputT)

	for b := range int(p.batch) {
		for ic := range inCh {
			src := inputData[(b*inCh+ic)*inLen : (b*inCh+ic+1)*inLen]
			for ix, v := range src {
				inputT[ix*inCh+ic] = v
			}
		}

		outBatch := outData[b*outCh*outLen : (b+1)*outCh*outLen]

		parallelFor(tiles, getConvWorkers(), func(lo, hi int) {
			for tile := lo; tile < hi; tile++ {
				o0 := tile * convTile
				o1 := min(o0+convTile, outLen)

				for o := o0; o < o1; o++ {
					for kx := range kSize {
						num := int64(o) + p.padding - int64(kx)*p.dilation
						if num < 0 || num%p.stride != 0 {
							continue
						}

						ix := int(num / p.stride)
						if ix >= inLen {
							continue
						}

						inputRow := inputT[ix*inCh : (ix+1)*inCh]
						for oc := range outCh {
							kOff := (kx*outCh + oc) * inCh
							outBatch[oc*outLen+o] += tensor.DotProduct(kernelT[kOff:kOff+inCh], inputRow)
						}
					}
				}

				if biasData != nil {
					for oc := range outCh {
						row := outBatch[oc*outLen+o0 : oc*outLen+o1]
						bv := biasData[oc]
						for i := range row {
							row[i] += bv
						}
					}
				}
			}
		})
	}
}
