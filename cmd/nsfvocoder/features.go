package main

import (
	"fmt"
	"strconv"

	"github.com/example/go-nsf-vocoder/internal/audio"
	"github.com/example/go-nsf-vocoder/internal/melspec"
	"github.com/example/go-nsf-vocoder/internal/nsf"
	"github.com/example/go-nsf-vocoder/internal/pitch"
	"github.com/example/go-nsf-vocoder/internal/vocoder"
	"github.com/spf13/pflag"
)

// analysisOptions controls mel and F0 extraction for analyze and resynth.
type analysisOptions struct {
	NFFT      int
	MelFMin   float64
	MelFMax   float64
	F0Min     float64
	F0Max     float64
	Threshold float64
	Semitones float64
	// KeepUnvoiced leaves unvoiced frames at 0 Hz instead of interpolating.
	KeepUnvoiced bool
}

func defaultAnalysisOptions() analysisOptions {
	return analysisOptions{
		NFFT:      melspec.DefaultNFFT,
		MelFMin:   melspec.DefaultFMin,
		MelFMax:   melspec.DefaultFMax,
		F0Min:     pitch.DefaultFMin,
		F0Max:     pitch.DefaultFMax,
		Threshold: pitch.DefaultThreshold,
	}
}

func (o *analysisOptions) register(fs *pflag.FlagSet) {
	d := defaultAnalysisOptions()

	fs.IntVar(&o.NFFT, "n-fft", d.NFFT, "FFT size of the mel analysis")
	fs.Float64Var(&o.MelFMin, "mel-fmin", d.MelFMin, "Lowest mel band edge in Hz")
	fs.Float64Var(&o.MelFMax, "mel-fmax", d.MelFMax, "Highest mel band edge in Hz")
	fs.Float64Var(&o.F0Min, "f0-min", d.F0Min, "Lowest F0 the tracker reports in Hz")
	fs.Float64Var(&o.F0Max, "f0-max", d.F0Max, "Highest F0 the tracker reports in Hz")
	fs.Float64Var(&o.Threshold, "yin-threshold", d.Threshold, "YIN aperiodicity threshold")
	fs.Float64Var(&o.Semitones, "semitones", 0, "Transpose the F0 contour by this many semitones")
	fs.BoolVar(&o.KeepUnvoiced, "keep-unvoiced", false, "Keep unvoiced frames at 0 Hz")
}

// analyzeClip extracts vocoder features from a mono clip at the sample
// rate, hop size and band count of mcfg.
func analyzeClip(clip audio.Clip, mcfg nsf.ModelConfig, opts analysisOptions) (vocoder.Features, error) {
	if clip.SampleRate != mcfg.SamplingRate {
		return vocoder.Features{}, fmt.Errorf("input is %d Hz, model expects %d Hz", clip.SampleRate, mcfg.SamplingRate)
	}

	an, err := melspec.New(melspec.Config{
		SampleRate: mcfg.SamplingRate,
		NFFT:       opts.NFFT,
		HopSize:    mcfg.HopSize,
		NumMels:    mcfg.NumMels,
		FMin:       opts.MelFMin,
		FMax:       opts.MelFMax,
	})
	if err != nil {
		return vocoder.Features{}, err
	}

	mel, err := an.Compute(clip.Samples)
	if err != nil {
		return vocoder.Features{}, err
	}

	tr := pitch.NewTracker(mcfg.SamplingRate, mcfg.HopSize)
	tr.FMin = opts.F0Min
	tr.FMax = opts.F0Max
	tr.Threshold = opts.Threshold

	f0, voiced, err := tr.Track(clip.Samples)
	if err != nil {
		return vocoder.Features{}, err
	}

	if !opts.KeepUnvoiced {
		f0 = pitch.FillUnvoiced(f0, voiced)
	}

	if opts.Semitones != 0 {
		f0 = pitch.ShiftSemitones(f0, opts.Semitones)
	}

	return vocoder.Features{Mel: mel, F0: alignFrames(f0, int(mel.Dim(1)))}, nil
}

// alignFrames truncates f0 to n frames or extends it by holding the last
// value.
func alignFrames(f0 []float32, n int) []float32 {
	if len(f0) >= n {
		return f0[:n]
	}

	out := make([]float32, n)
	copy(out, f0)

	if len(f0) > 0 {
		last := f0[len(f0)-1]
		for i := len(f0); i < n; i++ {
			out[i] = last
		}
	}

	return out
}

func featureMetadata(source string, mcfg nsf.ModelConfig) map[string]string {
	return map[string]string{
		"source":      source,
		"sample_rate": strconv.Itoa(mcfg.SamplingRate),
		"hop_size":    strconv.Itoa(mcfg.HopSize),
		"num_mels":    strconv.Itoa(mcfg.NumMels),
	}
}
