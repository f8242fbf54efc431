package audio

import (
	"errors"
	"fmt"
	"os"
)

// Supported PCM bit depths for encoding.
var supportedBitDepths = map[int]bool{16: true, 24: true, 32: true}

// ErrFormat is returned for WAV data or parameters the codec cannot handle.
var ErrFormat = errors.New("audio: unsupported WAV format")

// Clip is decoded audio mixed down to mono.
type Clip struct {
	Samples    []float32
	SampleRate int
	// Channels and BitDepth describe the source file.
	Channels int
	BitDepth int
}

func (c Clip) Duration() float64 {
	if c.SampleRate <= 0 {
		return 0
	}

	return float64(len(c.Samples)) / float64(c.SampleRate)
}

// Hook is a post-synthesis transform applied before the WAV sink.
type Hook func(samples []float32) []float32

func ApplyHooks(samples []float32, hooks ...Hook) []float32 {
	out := samples
	for _, hook := range hooks {
		out = hook(out)
	}

	return out
}

// PostOptions selects the post DSP chain.
type PostOptions struct {
	DCBlock   bool
	Normalize bool
	// FadeMs applies a linear fade at both ends when > 0.
	FadeMs float64
}

// Hooks returns the configured chain for audio at sampleRate, in order DC
// block, fades, normalize.
func (o PostOptions) Hooks(sampleRate int) []Hook {
	var hooks []Hook

	if o.DCBlock {
		hooks = append(hooks, func(s []float32) []float32 { return DCBlock(s, sampleRate) })
	}

	if o.FadeMs > 0 {
		hooks = append(hooks,
			func(s []float32) []float32 { return FadeIn(s, sampleRate, o.FadeMs) },
			func(s []float32) []float32 { return FadeOut(s, sampleRate, o.FadeMs) },
		)
	}

	if o.Normalize {
		hooks = append(hooks, PeakNormalize)
	}

	return hooks
}

// ReadWAV decodes the WAV file at path.
func ReadWAV(path string) (Clip, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Clip{}, fmt.Errorf("audio: read %s: %w", path, err)
	}

	return DecodeWAV(data)
}

// WriteWAV encodes mono samples and writes them to path.
func WriteWAV(path string, samples []float32, sampleRate, bitDepth int) error {
	data, err := EncodeWAV(samples, sampleRate, bitDepth)
	if err != nil {
		return err
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("audio: write %s: %w", path, err)
	}

	return nil
}
