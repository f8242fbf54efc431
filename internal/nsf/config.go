package nsf

import (
	"encoding/json"
	"fmt"
	"os"
)

// InjectionPolicy selects where the full-harmonic excitation enters the
// upsample stack.
type InjectionPolicy string

const (
	// InjectSingle injects at the highest-resolution-but-one stage.
	InjectSingle InjectionPolicy = "single"
	// InjectAll injects at every stage through one noise conv per stage.
	InjectAll InjectionPolicy = "all"
)

// miniInjectionStage is the fixed stage receiving the mini-variant source.
const miniInjectionStage = 1

// Defaults of the harmonic-plus-noise source module.
const (
	DefaultHarmonicNum     = 8
	DefaultSineAmp         = 0.1
	DefaultNoiseStd        = 0.003
	DefaultVoicedThreshold = 10.0
)

// ModelConfig holds the generator architecture. Treat it as immutable once
// a Generator has been built from it.
type ModelConfig struct {
	SamplingRate           int
	HopSize                int
	NumMels                int
	UpsampleRates          []int
	UpsampleKernelSizes    []int
	UpsampleInitialChannel int
	ResblockKernelSizes    []int
	ResblockDilationSizes  [][]int
	MiniNSF                bool
	HarmonicNum            int
	SineAmp                float64
	NoiseStd               float64
	VoicedThreshold        float64
	// NoiseSigma scales Gaussian noise added after conv_pre. 0 disables it.
	NoiseSigma      float64
	SourceInjection InjectionPolicy
}

type modelConfigJSON struct {
	SamplingRate           int              `json:"sampling_rate"`
	HopSize                int              `json:"hop_size"`
	NumMels                int              `json:"num_mels"`
	UpsampleRates          []int            `json:"upsample_rates"`
	UpsampleKernelSizes    []int            `json:"upsample_kernel_sizes"`
	UpsampleInitialChannel int              `json:"upsample_initial_channel"`
	ResblockKernelSizes    []int            `json:"resblock_kernel_sizes"`
	ResblockDilationSizes  [][]int          `json:"resblock_dilation_sizes"`
	Resblock               *json.RawMessage `json:"resblock"`
	MiniNSF                bool             `json:"mini_nsf"`
	HarmonicNum            *int             `json:"harmonic_num"`
	SineAmp                *float64         `json:"sine_amp"`
	NoiseStd               *float64         `json:"noise_std"`
	VoicedThreshold        *float64         `json:"voiced_threshold"`
	NoiseSigma             *float64         `json:"noise_sigma"`
	SourceInjection        string           `json:"source_injection"`
}

// LoadModelConfig reads and validates a HiFiGAN-style config.json.
func LoadModelConfig(path string) (ModelConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ModelConfig{}, fmt.Errorf("%w: read %s: %v", ErrConfiguration, path, err)
	}

	return ParseModelConfig(data)
}

// ParseModelConfig decodes config JSON, fills source-module defaults for
// absent keys and validates the result. Unknown keys are ignored.
func ParseModelConfig(data []byte) (ModelConfig, error) {
	var raw modelConfigJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return ModelConfig{}, fmt.Errorf("%w: decode config: %v", ErrConfiguration, err)
	}

	if raw.Resblock != nil {
		var kind any
		if err := json.Unmarshal(*raw.Resblock, &kind); err != nil {
			return ModelConfig{}, fmt.Errorf("%w: decode resblock: %v", ErrConfiguration, err)
		}

		if s := fmt.Sprint(kind); s != "1" {
			return ModelConfig{}, fmt.Errorf("%w: resblock type %q is not supported (want \"1\")", ErrConfiguration, s)
		}
	}

	cfg := ModelConfig{
		SamplingRate:           raw.SamplingRate,
		HopSize:                raw.HopSize,
		NumMels:                raw.NumMels,
		UpsampleRates:          raw.UpsampleRates,
		UpsampleKernelSizes:    raw.UpsampleKernelSizes,
		UpsampleInitialChannel: raw.UpsampleInitialChannel,
		ResblockKernelSizes:    raw.ResblockKernelSizes,
		ResblockDilationSizes:  raw.ResblockDilationSizes,
		MiniNSF:                raw.MiniNSF,
		HarmonicNum:            valueOr(raw.HarmonicNum, DefaultHarmonicNum),
		SineAmp:                valueOr(raw.SineAmp, DefaultSineAmp),
		NoiseStd:               valueOr(raw.NoiseStd, DefaultNoiseStd),
		VoicedThreshold:        valueOr(raw.VoicedThreshold, DefaultVoicedThreshold),
		NoiseSigma:             valueOr(raw.NoiseSigma, 0),
		SourceInjection:        InjectionPolicy(raw.SourceInjection),
	}

	if err := cfg.Validate(); err != nil {
		return ModelConfig{}, err
	}

	return cfg, nil
}

func valueOr[T any](p *T, def T) T {
	if p == nil {
		return def
	}

	return *p
}

// Validate checks the architecture invariants. Every failure wraps
// ErrConfiguration.
func (c ModelConfig) Validate() error {
	bad := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
	}

	if c.SamplingRate <= 0 || c.HopSize <= 0 || c.NumMels <= 0 {
		return bad("sampling_rate, hop_size and num_mels must be > 0 (got %d, %d, %d)", c.SamplingRate, c.HopSize, c.NumMels)
	}

	n := len(c.UpsampleRates)
	if n == 0 {
		return bad("upsample_rates is empty")
	}

	if len(c.UpsampleKernelSizes) != n {
		return bad("upsample_kernel_sizes has %d entries, upsample_rates has %d", len(c.UpsampleKernelSizes), n)
	}

	product := 1
	for i, r := range c.UpsampleRates {
		k := c.UpsampleKernelSizes[i]
		if r <= 0 {
			return bad("upsample_rates[%d] = %d must be > 0", i, r)
		}

		if k < r || (k-r)%2 != 0 {
			return bad("upsample_kernel_sizes[%d] = %d must be >= rate %d with an even difference", i, k, r)
		}

		product *= r
	}

	if product != c.HopSize {
		return bad("product(upsample_rates) = %d does not equal hop_size %d", product, c.HopSize)
	}

	if c.UpsampleInitialChannel <= 0 || c.UpsampleInitialChannel%(1<<n) != 0 {
		return bad("upsample_initial_channel %d must be a positive multiple of 2^%d", c.UpsampleInitialChannel, n)
	}

	if len(c.ResblockKernelSizes) == 0 {
		return bad("resblock_kernel_sizes is empty")
	}

	if len(c.ResblockKernelSizes) != len(c.ResblockDilationSizes) {
		return bad("resblock_kernel_sizes has %d entries, resblock_dilation_sizes has %d", len(c.ResblockKernelSizes), len(c.ResblockDilationSizes))
	}

	for j, k := range c.ResblockKernelSizes {
		if k <= 0 || k%2 == 0 {
			return bad("resblock_kernel_sizes[%d] = %d must be odd and positive", j, k)
		}

		if len(c.ResblockDilationSizes[j]) != 3 {
			return bad("resblock_dilation_sizes[%d] must hold 3 dilations, got %d", j, len(c.ResblockDilationSizes[j]))
		}

		for _, d := range c.ResblockDilationSizes[j] {
			if d <= 0 {
				return bad("resblock_dilation_sizes[%d] contains non-positive dilation %d", j, d)
			}
		}
	}

	if c.SineAmp < 0 || c.NoiseStd < 0 || c.NoiseSigma < 0 {
		return bad("sine_amp, noise_std and noise_sigma must be >= 0")
	}

	if c.MiniNSF {
		if n <= miniInjectionStage {
			return bad("mini_nsf needs at least %d upsample stages, got %d", miniInjectionStage+1, n)
		}

		return nil
	}

	if c.HarmonicNum < 0 {
		return bad("harmonic_num %d must be >= 0", c.HarmonicNum)
	}

	switch c.injectionPolicy() {
	case InjectSingle:
		if n < 2 {
			return bad("single-stage injection needs at least 2 upsample stages, got %d", n)
		}
	case InjectAll:
	default:
		return bad("unknown source_injection %q", c.SourceInjection)
	}

	for _, i := range c.InjectionStages() {
		if s := c.noiseConvStride(i); s > 1 && s%2 != 0 {
			return bad("injection at stage %d needs an even remaining upsample product, got %d", i, s)
		}
	}

	return nil
}

func (c ModelConfig) injectionPolicy() InjectionPolicy {
	if c.SourceInjection == "" {
		return InjectSingle
	}

	return c.SourceInjection
}

// NumStages is the number of upsample stages.
func (c ModelConfig) NumStages() int { return len(c.UpsampleRates) }

// NumKernels is the number of residual blocks per stage.
func (c ModelConfig) NumKernels() int { return len(c.ResblockKernelSizes) }

// StageChannels returns the channel width after stage i.
func (c ModelConfig) StageChannels(i int) int {
	return c.UpsampleInitialChannel >> (i + 1)
}

// InjectionStages lists the stages that add the excitation.
func (c ModelConfig) InjectionStages() []int {
	if c.MiniNSF {
		return []int{miniInjectionStage}
	}

	n := len(c.UpsampleRates)
	if c.injectionPolicy() == InjectAll {
		out := make([]int, n)
		for i := range out {
			out[i] = i
		}

		return out
	}

	return []int{n - 2}
}

// ExcitationUpsampling returns the excitation samples per mel frame:
// hop_size for the full-harmonic source, product(upsample_rates[:2]) for mini.
func (c ModelConfig) ExcitationUpsampling() int {
	if !c.MiniNSF {
		return c.HopSize
	}

	return c.UpsampleRates[0] * c.UpsampleRates[1]
}

// SourceSampleRate is the rate the excitation is generated at.
func (c ModelConfig) SourceSampleRate() float64 {
	if !c.MiniNSF {
		return float64(c.SamplingRate)
	}

	return float64(c.SamplingRate) * float64(c.ExcitationUpsampling()) / float64(c.HopSize)
}

// noiseConvStride is product(upsample_rates[i+1:]).
func (c ModelConfig) noiseConvStride(i int) int {
	s := 1
	for _, r := range c.UpsampleRates[i+1:] {
		s *= r
	}

	return s
}

// ReferenceConfig returns the 44.1 kHz, hop 512, 128-bin architecture of the
// published PC-NSF-HiFiGAN checkpoints.
func ReferenceConfig(mini bool) ModelConfig {
	return ModelConfig{
		SamplingRate:           44100,
		HopSize:                512,
		NumMels:                128,
		UpsampleRates:          []int{8, 8, 2, 2, 2},
		UpsampleKernelSizes:    []int{16, 16, 4, 4, 4},
		UpsampleInitialChannel: 512,
		ResblockKernelSizes:    []int{3, 7, 11},
		ResblockDilationSizes:  [][]int{{1, 3, 5}, {1, 3, 5}, {1, 3, 5}},
		MiniNSF:                mini,
		HarmonicNum:            DefaultHarmonicNum,
		SineAmp:                DefaultSineAmp,
		NoiseStd:               DefaultNoiseStd,
		VoicedThreshold:        DefaultVoicedThreshold,
		SourceInjection:        InjectSingle,
	}
}
