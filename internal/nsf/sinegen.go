package nsf

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/chewxy/math32"

	"github.com/example/go-nsf-vocoder/internal/runtime/tensor"
)

// SineGen produces harmonic_num+1 sine channels at f0*(k+1), gated by a
// voiced mask and mixed with Gaussian noise.
type SineGen struct {
	SampleRate      float64
	Upsampling      int
	HarmonicNum     int
	SineAmp         float64
	NoiseStd        float64
	VoicedThreshold float64
}

// SineOutput holds sample-major [n, Dim] sine and noise buffers and the
// per-sample voiced mask.
type SineOutput struct {
	Dim    int
	Sine   []float32
	Voiced []float32
	Noise  []float32
}

// Generate renders len(f0)*Upsampling samples. rng supplies the random
// initial phase of every harmonic above the fundamental, then the noise.
func (s SineGen) Generate(rng *rand.Rand, f0 []float32) SineOutput {
	frames := len(f0)
	upp := s.Upsampling
	dim := s.HarmonicNum + 1
	n := frames * upp

	// Per-frame normalized frequency, wrapped into [0,1).
	rad := make([]float64, frames*dim)
	for t, f := range f0 {
		for h := range dim {
			v := float64(f) * float64(h+1) / s.SampleRate
			rad[t*dim+h] = v - math.Floor(v)
		}
	}

	for h := range dim {
		ini := rng.Float64()
		if h > 0 && frames > 0 {
			rad[h] += ini
		}
	}

	// Cumulative per-frame phase, scaled to samples.
	cum := make([]float64, frames*dim)
	for h := range dim {
		var acc float64
		for t := range frames {
			acc += rad[t*dim+h]
			cum[t*dim+h] = acc * float64(upp)
		}
	}

	out := SineOutput{
		Dim:    dim,
		Sine:   make([]float32, n*dim),
		Voiced: make([]float32, n),
		Noise:  make([]float32, n*dim),
	}

	prev := make([]float64, dim)
	phase := make([]float64, dim)

	for i := range n {
		// Linear interpolation with aligned corners over the frame axis.
		var pos float64
		if n > 1 {
			pos = float64(i) * float64(frames-1) / float64(n-1)
		}

		t0 := int(pos)
		t1 := min(t0+1, frames-1)
		w := pos - float64(t0)
		frame := i / upp

		for h := range dim {
			tmp := cum[t0*dim+h]*(1-w) + cum[t1*dim+h]*w
			tmp -= math.Floor(tmp)

			step := rad[frame*dim+h]
			if i > 0 && tmp-prev[h] < 0 {
				step--
			}

			prev[h] = tmp
			phase[h] += step
			out.Sine[i*dim+h] = float32(math.Sin(2*math.Pi*phase[h]) * s.SineAmp)
		}

		if float64(f0[frame]) > s.VoicedThreshold {
			out.Voiced[i] = 1
		}
	}

	for i := range n {
		uv := out.Voiced[i]
		amp := float64(uv)*s.NoiseStd + float64(1-uv)*s.SineAmp/3

		for h := range dim {
			noise := float32(amp * rng.NormFloat64())
			out.Noise[i*dim+h] = noise
			out.Sine[i*dim+h] = out.Sine[i*dim+h]*uv + noise
		}
	}

	return out
}

// HarmonicSource merges the SineGen channels into one excitation through a
// learned linear projection followed by tanh.
type HarmonicSource struct {
	gen    SineGen
	weight []float32
	bias   float32
}

func loadHarmonicSource(cfg ModelConfig, vb *VarBuilder) (*HarmonicSource, error) {
	dim := int64(cfg.HarmonicNum + 1)

	w, err := vb.Tensor("weight", 1, dim)
	if err != nil {
		return nil, err
	}

	var bias float32

	b, ok, err := vb.TensorMaybe("bias", 1)
	if err != nil {
		return nil, err
	}

	if ok {
		bias = b.RawData()[0]
	}

	return &HarmonicSource{
		gen: SineGen{
			SampleRate:      float64(cfg.SamplingRate),
			Upsampling:      cfg.HopSize,
			HarmonicNum:     cfg.HarmonicNum,
			SineAmp:         cfg.SineAmp,
			NoiseStd:        cfg.NoiseStd,
			VoicedThreshold: cfg.VoicedThreshold,
		},
		weight: w.Data(),
		bias:   bias,
	}, nil
}

func (hs *HarmonicSource) Name() string     { return VariantFull }
func (hs *HarmonicSource) Upsampling() int  { return hs.gen.Upsampling }
func (hs *HarmonicSource) SineGen() SineGen { return hs.gen }

func (hs *HarmonicSource) Excite(ctx *Context, f0 []float32) (*tensor.Tensor, error) {
	if ctx == nil {
		return nil, fmt.Errorf("%w: nil context", ErrInputShape)
	}

	sg := hs.gen.Generate(ctx.rng(), f0)
	n := len(sg.Voiced)
	out := make([]float32, n)

	for i := range n {
		row := sg.Sine[i*sg.Dim : (i+1)*sg.Dim]
		out[i] = math32.Tanh(tensor.DotProduct(hs.weight, row) + hs.bias)
	}

	return tensor.FromOwned(out, []int64{1, 1, int64(n)})
}
