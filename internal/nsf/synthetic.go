package nsf

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/example/go-nsf-vocoder/internal/safetensors"
)

// SyntheticCheckpoint returns randomly initialized tensors for every layer
// cfg implies, weight-normed layers stored as weight_g/weight_v, under the
// checkpoint naming Build expects. The output is deterministic in seed.
func SyntheticCheckpoint(cfg ModelConfig, seed int64) ([]safetensors.Tensor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewSource(seed))

	var out []safetensors.Tensor

	normal := func(n int, std float64) []float32 {
		data := make([]float32, n)
		for i := range data {
			data[i] = float32(rng.NormFloat64() * std)
		}

		return data
	}

	add := func(name string, shape []int64, data []float32) {
		out = append(out, safetensors.Tensor{Name: name, Shape: shape, Data: data})
	}

	// normed adds weight_g/weight_v/bias for a weight of shape [a, b, k].
	normed := func(prefix string, a, b, k, biasLen int) {
		g := make([]float32, a)
		for i := range g {
			g[i] = float32(0.3 + 0.4*rng.Float64())
		}

		add(prefix+".weight_g", []int64{int64(a), 1, 1}, g)
		add(prefix+".weight_v", []int64{int64(a), int64(b), int64(k)}, normal(a*b*k, 1))
		add(prefix+".bias", []int64{int64(biasLen)}, normal(biasLen, 0.01))
	}

	plain := func(prefix string, outCh, inCh, k int) {
		add(prefix+".weight", []int64{int64(outCh), int64(inCh), int64(k)}, normal(outCh*inCh*k, 1/math.Sqrt(float64(inCh*k))))
		add(prefix+".bias", []int64{int64(outCh)}, normal(outCh, 0.01))
	}

	normed("conv_pre", cfg.UpsampleInitialChannel, cfg.NumMels, 7, cfg.UpsampleInitialChannel)

	injected := map[int]bool{}
	for _, i := range cfg.InjectionStages() {
		injected[i] = true
	}

	k := cfg.NumKernels()
	for i := range cfg.UpsampleRates {
		in, ch := cfg.UpsampleInitialChannel>>i, cfg.StageChannels(i)
		normed(fmt.Sprintf("ups.%d", i), in, ch, cfg.UpsampleKernelSizes[i], ch)

		if injected[i] {
			if cfg.MiniNSF {
				plain("source_conv", ch, 1, 1)
			} else {
				s := cfg.noiseConvStride(i)
				kernel := 1
				if s > 1 {
					kernel = 2 * s
				}

				plain(fmt.Sprintf("noise_convs.%d", i), ch, 1, kernel)
			}
		}

		for j, rk := range cfg.ResblockKernelSizes {
			for p := range cfg.ResblockDilationSizes[j] {
				normed(fmt.Sprintf("resblocks.%d.convs1.%d", i*k+j, p), ch, ch, rk, ch)
				normed(fmt.Sprintf("resblocks.%d.convs2.%d", i*k+j, p), ch, ch, rk, ch)
			}
		}
	}

	normed("conv_post", 1, cfg.StageChannels(cfg.NumStages()-1), 7, 1)

	if !cfg.MiniNSF {
		dim := cfg.HarmonicNum + 1
		add("m_source.l_linear.weight", []int64{1, int64(dim)}, normal(dim, 1/math.Sqrt(float64(dim))))
		add("m_source.l_linear.bias", []int64{1}, normal(1, 0.01))
	}

	return out, nil
}

// NewSynthetic builds a Generator over SyntheticCheckpoint(cfg, seed).
func NewSynthetic(cfg ModelConfig, seed int64) (*Generator, error) {
	tensors, err := SyntheticCheckpoint(cfg, seed)
	if err != nil {
		return nil, err
	}

	return New(cfg, NewMapWeights(tensors))
}
