package nsf

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/example/go-nsf-vocoder/internal/runtime/tensor"
)

// smallConfig is a hop-8 generator cheap enough to run at T=1000.
func smallConfig(mini bool) ModelConfig {
	return ModelConfig{
		SamplingRate:           8000,
		HopSize:                8,
		NumMels:                4,
		UpsampleRates:          []int{2, 2, 2},
		UpsampleKernelSizes:    []int{4, 4, 4},
		UpsampleInitialChannel: 16,
		ResblockKernelSizes:    []int{3, 5},
		ResblockDilationSizes:  [][]int{{1, 3, 5}, {1, 3, 5}},
		MiniNSF:                mini,
		HarmonicNum:            DefaultHarmonicNum,
		SineAmp:                DefaultSineAmp,
		NoiseStd:               DefaultNoiseStd,
		VoicedThreshold:        DefaultVoicedThreshold,
	}
}

func newTestGenerator(t *testing.T, cfg ModelConfig) *Generator {
	t.Helper()

	g, err := NewSynthetic(cfg, 7)
	require.NoError(t, err)

	return g
}

func constF0(frames int, hz float32) []float32 {
	f0 := make([]float32, frames)
	for i := range f0 {
		f0[i] = hz
	}

	return f0
}

func mustTensor(t *testing.T, data []float32, shape ...int64) *tensor.Tensor {
	t.Helper()

	x, err := tensor.New(data, shape)
	require.NoError(t, err)

	return x
}

func randomMel(t *testing.T, mels, frames int, seed int64) *tensor.Tensor {
	t.Helper()

	rng := rand.New(rand.NewSource(seed))

	data := make([]float32, mels*frames)
	for i := range data {
		data[i] = float32(rng.NormFloat64() - 4)
	}

	return mustTensor(t, data, int64(mels), int64(frames))
}
