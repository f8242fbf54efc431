package nsf

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const referenceJSON = `{
  "resblock": "1",
  "num_gpus": 4,
  "sampling_rate": 44100,
  "num_mels": 128,
  "hop_size": 512,
  "upsample_rates": [8, 8, 2, 2, 2],
  "upsample_kernel_sizes": [16, 16, 4, 4, 4],
  "upsample_initial_channel": 512,
  "resblock_kernel_sizes": [3, 7, 11],
  "resblock_dilation_sizes": [[1, 3, 5], [1, 3, 5], [1, 3, 5]],
  "mini_nsf": true,
  "pc_aug": true
}`

func TestParseModelConfigDefaults(t *testing.T) {
	cfg, err := ParseModelConfig([]byte(referenceJSON))
	require.NoError(t, err)

	assert.Equal(t, 44100, cfg.SamplingRate)
	assert.Equal(t, 512, cfg.HopSize)
	assert.True(t, cfg.MiniNSF)
	assert.Equal(t, DefaultHarmonicNum, cfg.HarmonicNum)
	assert.Equal(t, DefaultSineAmp, cfg.SineAmp)
	assert.Equal(t, DefaultNoiseStd, cfg.NoiseStd)
	assert.Equal(t, DefaultVoicedThreshold, cfg.VoicedThreshold)
	assert.Zero(t, cfg.NoiseSigma)

	assert.Equal(t, 64, cfg.ExcitationUpsampling())
	assert.InDelta(t, 5512.5, cfg.SourceSampleRate(), 1e-9)
	assert.Equal(t, []int{1}, cfg.InjectionStages())
	assert.Equal(t, 16, cfg.StageChannels(4))

	ref := ReferenceConfig(true)
	assert.Equal(t, ref.UpsampleRates, cfg.UpsampleRates)
	assert.Equal(t, ref.ResblockDilationSizes, cfg.ResblockDilationSizes)
}

func TestParseModelConfigNumericResblock(t *testing.T) {
	_, err := ParseModelConfig([]byte(`{"resblock": 1, "sampling_rate": 8000, "num_mels": 4, "hop_size": 8,
		"upsample_rates": [2,2,2], "upsample_kernel_sizes": [4,4,4], "upsample_initial_channel": 16,
		"resblock_kernel_sizes": [3], "resblock_dilation_sizes": [[1,3,5]]}`))
	require.NoError(t, err)
}

func TestLoadModelConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(referenceJSON), 0o644))

	cfg, err := LoadModelConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 128, cfg.NumMels)

	_, err = LoadModelConfig(filepath.Join(t.TempDir(), "missing.json"))
	require.ErrorIs(t, err, ErrConfiguration)
}

func TestModelConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ModelConfig)
		want   string
	}{
		{name: "hop mismatch", mutate: func(c *ModelConfig) { c.HopSize = 16 }, want: "does not equal hop_size"},
		{name: "kernel count", mutate: func(c *ModelConfig) { c.UpsampleKernelSizes = []int{4, 4} }, want: "upsample_kernel_sizes has 2"},
		{name: "kernel below rate", mutate: func(c *ModelConfig) { c.UpsampleKernelSizes = []int{1, 4, 4} }, want: "upsample_kernel_sizes[0]"},
		{name: "odd kernel difference", mutate: func(c *ModelConfig) { c.UpsampleKernelSizes = []int{5, 4, 4} }, want: "even difference"},
		{name: "resblock lists", mutate: func(c *ModelConfig) { c.ResblockDilationSizes = [][]int{{1, 3, 5}} }, want: "resblock_dilation_sizes has 1"},
		{name: "even resblock kernel", mutate: func(c *ModelConfig) { c.ResblockKernelSizes = []int{3, 4} }, want: "must be odd"},
		{name: "two dilations", mutate: func(c *ModelConfig) { c.ResblockDilationSizes[0] = []int{1, 3} }, want: "must hold 3 dilations"},
		{name: "channel multiple", mutate: func(c *ModelConfig) { c.UpsampleInitialChannel = 12 }, want: "multiple of 2^3"},
		{name: "empty rates", mutate: func(c *ModelConfig) { c.UpsampleRates = nil }, want: "upsample_rates is empty"},
		{name: "negative amp", mutate: func(c *ModelConfig) { c.SineAmp = -1 }, want: "must be >= 0"},
		{name: "unknown injection", mutate: func(c *ModelConfig) { c.SourceInjection = "some" }, want: "unknown source_injection"},
		{
			name: "odd injection stride",
			mutate: func(c *ModelConfig) {
				c.HopSize, c.UpsampleRates, c.UpsampleKernelSizes = 9, []int{3, 3}, []int{3, 3}
				c.UpsampleInitialChannel = 8
				c.SourceInjection = InjectAll
			},
			want: "even remaining upsample product",
		},
		{
			name: "single stage injection",
			mutate: func(c *ModelConfig) {
				c.HopSize, c.UpsampleRates, c.UpsampleKernelSizes = 8, []int{8}, []int{16}
			},
			want: "single-stage injection needs at least 2",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := smallConfig(false)
			cfg.ResblockDilationSizes = [][]int{{1, 3, 5}, {1, 3, 5}}
			tc.mutate(&cfg)

			err := cfg.Validate()
			require.ErrorIs(t, err, ErrConfiguration)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestModelConfigMiniNeedsTwoStages(t *testing.T) {
	cfg := smallConfig(true)
	cfg.HopSize, cfg.UpsampleRates, cfg.UpsampleKernelSizes = 8, []int{8}, []int{16}

	err := cfg.Validate()
	require.ErrorIs(t, err, ErrConfiguration)
	assert.Contains(t, err.Error(), "mini_nsf needs at least 2")
}

func TestParseModelConfigRejectsResblock2(t *testing.T) {
	_, err := ParseModelConfig([]byte(`{"resblock": "2"}`))
	require.ErrorIs(t, err, ErrConfiguration)
	assert.Contains(t, err.Error(), "not supported")
}

func TestInjectionStages(t *testing.T) {
	cfg := smallConfig(false)
	assert.Equal(t, []int{1}, cfg.InjectionStages())
	assert.Equal(t, 2, cfg.noiseConvStride(1))

	cfg.SourceInjection = InjectAll
	require.NoError(t, cfg.Validate())
	assert.Equal(t, []int{0, 1, 2}, cfg.InjectionStages())
	assert.Equal(t, 4, cfg.noiseConvStride(0))
	assert.Equal(t, 1, cfg.noiseConvStride(2))
}
