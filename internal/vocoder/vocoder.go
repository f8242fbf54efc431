// Package vocoder drives a built nsf.Generator over arbitrarily long inputs:
// chunking with context padding, concurrent chunk synthesis and crossfaded
// reassembly.
package vocoder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/example/go-nsf-vocoder/internal/config"
	"github.com/example/go-nsf-vocoder/internal/nsf"
	"github.com/example/go-nsf-vocoder/internal/runtime/tensor"
)

// Options controls chunked synthesis.
type Options struct {
	// Seed seeds the excitation. Chunk k uses Seed+k.
	Seed int64
	// ChunkFrames is the core size of a chunk in mel frames. 0 disables chunking.
	ChunkFrames int
	// PaddingFrames is the context synthesized, then discarded, on each side.
	PaddingFrames int
	// ParallelChunks bounds concurrently running chunks.
	ParallelChunks int
}

func OptionsFromConfig(cfg config.VocoderConfig) Options {
	return Options{
		Seed:           cfg.Seed,
		ChunkFrames:    cfg.ChunkFrames,
		PaddingFrames:  cfg.PaddingFrames,
		ParallelChunks: cfg.ParallelChunks,
	}
}

// Synthesizer is safe for concurrent use; every call builds its own
// nsf.Context per chunk.
type Synthesizer struct {
	gen  *nsf.Generator
	opts Options
}

func New(gen *nsf.Generator, opts Options) (*Synthesizer, error) {
	if gen == nil {
		return nil, errors.New("vocoder: generator is required")
	}

	if opts.ChunkFrames < 0 || opts.PaddingFrames < 0 {
		return nil, fmt.Errorf("vocoder: chunk_frames and padding_frames must be >= 0 (got %d, %d)", opts.ChunkFrames, opts.PaddingFrames)
	}

	if opts.ParallelChunks <= 0 {
		opts.ParallelChunks = 1
	}

	return &Synthesizer{gen: gen, opts: opts}, nil
}

// Load builds the generator described by paths and wraps it.
func Load(paths config.PathsConfig, opts Options) (*Synthesizer, error) {
	start := time.Now()

	gen, err := nsf.Load(paths.ModelPath, paths.ModelConfigPath)
	if err != nil {
		return nil, err
	}

	slog.Info("loaded vocoder",
		"model", paths.ModelPath,
		"config", paths.ModelConfigPath,
		"ms", time.Since(start).Milliseconds(),
	)

	return New(gen, opts)
}

func (s *Synthesizer) Generator() *nsf.Generator { return s.gen }
func (s *Synthesizer) Options() Options          { return s.opts }
func (s *Synthesizer) SampleRate() int           { return s.gen.Config().SamplingRate }

// Synthesize renders len(f0)*hop_size samples from mel [num_mels, T].
func (s *Synthesizer) Synthesize(ctx context.Context, mel *tensor.Tensor, f0 []float32) ([]float32, error) {
	cfg := s.gen.Config()

	if mel == nil || mel.Rank() != 2 {
		var shape []int64
		if mel != nil {
			shape = mel.Shape()
		}

		return nil, fmt.Errorf("%w: mel must be [num_mels, frames], got %v", nsf.ErrInputShape, shape)
	}

	frames := int(mel.Dim(1))
	if len(f0) != frames {
		return nil, fmt.Errorf("%w: %d f0 values for %d mel frames", nsf.ErrInputShape, len(f0), frames)
	}

	hop := cfg.HopSize
	chunks := planChunks(frames, s.opts.ChunkFrames, s.opts.PaddingFrames, hop)

	var origins []float64

	if mini, ok := s.gen.Source().(*nsf.MiniSource); ok && len(chunks) > 1 {
		starts := make([]int, len(chunks))
		for i, c := range chunks {
			starts[i] = c.winStart
		}

		var err error

		origins, err = mini.PhaseOrigins(f0, starts)
		if err != nil {
			return nil, err
		}
	}

	results := make([][]float32, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.ParallelChunks)

	for i, c := range chunks {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			nctx := nsf.NewContext(s.opts.Seed + int64(c.index))
			if origins != nil {
				nctx.PhaseOffset = origins[i]
			}

			audio, err := s.renderWindow(nctx, mel, f0, c)
			if err != nil {
				return fmt.Errorf("vocoder: chunk %d: %w", c.index, err)
			}

			results[i] = audio

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	if len(chunks) == 1 {
		return results[0], nil
	}

	out := make([]float32, frames*hop)
	for i, c := range chunks {
		overlapAdd(out, results[i], c, hop)
	}

	return out, nil
}

func (s *Synthesizer) renderWindow(ctx *nsf.Context, mel *tensor.Tensor, f0 []float32, c chunk) ([]float32, error) {
	n := int64(c.winEnd - c.winStart)

	window, err := mel.Narrow(1, int64(c.winStart), n)
	if err != nil {
		return nil, err
	}

	f0Window, err := tensor.New(f0[c.winStart:c.winEnd], []int64{n})
	if err != nil {
		return nil, err
	}

	start := time.Now()

	audio, err := s.gen.Forward(ctx, window, f0Window)
	if err != nil {
		return nil, err
	}

	slog.Debug("vocoder chunk complete",
		"chunk", c.index,
		"frames", c.end-c.start,
		"window", n,
		"ms", time.Since(start).Milliseconds(),
	)

	return audio.RawData(), nil
}
