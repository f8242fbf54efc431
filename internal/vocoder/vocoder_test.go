package vocoder

import (
	"context"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/go-nsf-vocoder/internal/config"
	"github.com/example/go-nsf-vocoder/internal/nsf"
	"github.com/example/go-nsf-vocoder/internal/runtime/tensor"
)

func testConfig(mini bool) nsf.ModelConfig {
	return nsf.ModelConfig{
		SamplingRate:           8000,
		HopSize:                8,
		NumMels:                4,
		UpsampleRates:          []int{2, 2, 2},
		UpsampleKernelSizes:    []int{4, 4, 4},
		UpsampleInitialChannel: 16,
		ResblockKernelSizes:    []int{3, 5},
		ResblockDilationSizes:  [][]int{{1, 3, 5}, {1, 3, 5}},
		MiniNSF:                mini,
		HarmonicNum:            nsf.DefaultHarmonicNum,
		SineAmp:                nsf.DefaultSineAmp,
		NoiseStd:               nsf.DefaultNoiseStd,
		VoicedThreshold:        nsf.DefaultVoicedThreshold,
	}
}

func newSynth(t *testing.T, mini bool, opts Options) *Synthesizer {
	t.Helper()

	gen, err := nsf.NewSynthetic(testConfig(mini), 5)
	require.NoError(t, err)

	s, err := New(gen, opts)
	require.NoError(t, err)

	return s
}

func testInputs(t *testing.T, frames int) (*tensor.Tensor, []float32) {
	t.Helper()

	rng := rand.New(rand.NewSource(int64(frames)))

	mel := make([]float32, 4*frames)
	for i := range mel {
		mel[i] = float32(rng.NormFloat64() - 3)
	}

	f0 := make([]float32, frames)
	for i := range f0 {
		f0[i] = float32(180 + 60*math.Sin(float64(i)/9))
	}

	m, err := tensor.New(mel, []int64{4, int64(frames)})
	require.NoError(t, err)

	return m, f0
}

func TestPlanChunksSingle(t *testing.T) {
	for _, chunkFrames := range []int{0, 100, 250} {
		chunks := planChunks(100, chunkFrames, 8, 512)
		require.Len(t, chunks, 1)
		assert.Equal(t, chunk{start: 0, end: 100, winStart: 0, winEnd: 100}, chunks[0])
	}
}

func TestPlanChunksCoverAndFade(t *testing.T) {
	chunks := planChunks(250, 64, 64, 512)
	require.Len(t, chunks, 4)

	next := 0
	for i, c := range chunks {
		assert.Equal(t, i, c.index)
		assert.Equal(t, next, c.start)
		assert.Equal(t, max(c.start-64, 0), c.winStart)
		assert.Equal(t, min(c.end+64, 250), c.winEnd)
		next = c.end
	}

	assert.Equal(t, 250, next)
	assert.Zero(t, chunks[0].fadeIn)
	assert.Zero(t, chunks[3].fadeOut)

	// Fades are bounded by a quarter of the shorter core; the last is 58 frames.
	assert.Equal(t, 64*512/4, chunks[0].fadeOut)
	assert.Equal(t, 58*512/4, chunks[2].fadeOut)
	assert.Equal(t, chunks[2].fadeOut, chunks[3].fadeIn)
}

func TestOverlapAddIsPartitionOfUnity(t *testing.T) {
	const frames, hop = 97, 8

	for _, padding := range []int{0, 3, 12} {
		chunks := planChunks(frames, 20, padding, hop)
		out := make([]float32, frames*hop)

		for _, c := range chunks {
			ones := make([]float32, (c.winEnd-c.winStart)*hop)
			for i := range ones {
				ones[i] = 1
			}

			overlapAdd(out, ones, c, hop)
		}

		for i, v := range out {
			require.InDeltaf(t, 1, v, 1e-6, "padding %d sample %d", padding, i)
		}
	}
}

func TestSynthesizeUnchunkedMatchesForward(t *testing.T) {
	s := newSynth(t, false, Options{Seed: 9})
	mel, f0 := testInputs(t, 30)

	got, err := s.Synthesize(context.Background(), mel, f0)
	require.NoError(t, err)

	f0T, err := tensor.New(f0, []int64{30})
	require.NoError(t, err)

	want, err := s.Generator().Forward(nsf.NewContext(9), mel, f0T)
	require.NoError(t, err)
	assert.Equal(t, want.Data(), got)
}

func TestSynthesizeMiniChunksAreSeamless(t *testing.T) {
	const frames = 130

	mel, f0 := testInputs(t, frames)

	whole, err := newSynth(t, true, Options{}).Synthesize(context.Background(), mel, f0)
	require.NoError(t, err)

	chunked := newSynth(t, true, Options{ChunkFrames: 40, PaddingFrames: 48, ParallelChunks: 3})

	got, err := chunked.Synthesize(context.Background(), mel, f0)
	require.NoError(t, err)
	require.Len(t, got, frames*8)

	assert.InDeltaSlice(t, whole, got, 1e-4)
}

func TestSynthesizeChunkedFullDeterministic(t *testing.T) {
	mel, f0 := testInputs(t, 90)

	serial := newSynth(t, false, Options{Seed: 3, ChunkFrames: 25, PaddingFrames: 6, ParallelChunks: 1})
	parallel := newSynth(t, false, Options{Seed: 3, ChunkFrames: 25, PaddingFrames: 6, ParallelChunks: 4})

	a, err := serial.Synthesize(context.Background(), mel, f0)
	require.NoError(t, err)

	b, err := parallel.Synthesize(context.Background(), mel, f0)
	require.NoError(t, err)

	require.Len(t, a, 90*8)
	assert.Equal(t, a, b)

	for _, v := range a {
		require.LessOrEqual(t, math.Abs(float64(v)), 1.0)
	}
}

func TestSynthesizeInputErrors(t *testing.T) {
	s := newSynth(t, true, Options{})
	mel, f0 := testInputs(t, 10)

	_, err := s.Synthesize(context.Background(), mel, f0[:9])
	require.ErrorIs(t, err, nsf.ErrInputShape)

	flat, err := mel.Reshape([]int64{40})
	require.NoError(t, err)

	_, err = s.Synthesize(context.Background(), flat, f0)
	require.ErrorIs(t, err, nsf.ErrInputShape)

	_, err = s.Synthesize(context.Background(), nil, f0)
	require.ErrorIs(t, err, nsf.ErrInputShape)
}

func TestSynthesizeCanceled(t *testing.T) {
	s := newSynth(t, true, Options{ChunkFrames: 5})
	mel, f0 := testInputs(t, 20)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Synthesize(ctx, mel, f0)
	require.ErrorIs(t, err, context.Canceled)
}

func TestNewValidatesOptions(t *testing.T) {
	gen, err := nsf.NewSynthetic(testConfig(true), 1)
	require.NoError(t, err)

	_, err = New(gen, Options{ChunkFrames: -1})
	require.Error(t, err)

	_, err = New(nil, Options{})
	require.Error(t, err)

	s, err := New(gen, OptionsFromConfig(config.DefaultConfig().Vocoder))
	require.NoError(t, err)
	assert.Equal(t, 1, s.Options().ParallelChunks)
	assert.Equal(t, 8000, s.SampleRate())
}
