package audio

import (
	"math"

	"github.com/chewxy/math32"
	"github.com/cwbudde/algo-dsp/dsp/filter/biquad"
)

const (
	dcCutoffHz = 20.0
	butterQ    = 1 / math.Sqrt2
)

// PeakNormalize scales samples so the peak amplitude reaches 1.0.
// Silent input is returned unchanged.
func PeakNormalize(samples []float32) []float32 {
	var peak float32
	for _, s := range samples {
		peak = max(peak, math32.Abs(s))
	}

	if peak == 0 {
		return samples
	}

	gain := 1 / peak
	out := make([]float32, len(samples))

	for i, s := range samples {
		out[i] = s * gain
	}

	return out
}

// DCBlock removes DC offset with a second-order 20 Hz high-pass.
func DCBlock(samples []float32, sampleRate int) []float32 {
	if len(samples) == 0 || sampleRate <= 0 {
		return samples
	}

	section := biquad.NewSection(highpass(dcCutoffHz, butterQ, float64(sampleRate)))
	out := make([]float32, len(samples))

	for i, s := range samples {
		out[i] = float32(section.ProcessSample(float64(s)))
	}

	return out
}

// highpass returns RBJ high-pass coefficients normalized by a0.
func highpass(freq, q, sampleRate float64) biquad.Coefficients {
	w0 := 2 * math.Pi * freq / sampleRate
	if w0 <= 0 || w0 >= math.Pi {
		return biquad.Coefficients{B0: 1}
	}

	cw := math.Cos(w0)
	alpha := math.Sin(w0) / (2 * q)
	inv := 1 / (1 + alpha)

	return biquad.Coefficients{
		B0: (1 + cw) / 2 * inv,
		B1: -(1 + cw) * inv,
		B2: (1 + cw) / 2 * inv,
		A1: -2 * cw * inv,
		A2: (1 - alpha) * inv,
	}
}

func fadeLength(n, sampleRate int, ms float64) int {
	if ms <= 0 || sampleRate <= 0 {
		return 0
	}

	return min(n, int(math.Round(ms*float64(sampleRate)/1000)))
}

// FadeIn applies a linear fade-in ramp over the given duration in milliseconds.
func FadeIn(samples []float32, sampleRate int, ms float64) []float32 {
	n := fadeLength(len(samples), sampleRate, ms)
	if n == 0 {
		return samples
	}

	out := append([]float32(nil), samples...)
	for i := range n {
		out[i] *= float32(i) / float32(n)
	}

	return out
}

// FadeOut applies a linear fade-out ramp over the given duration in milliseconds.
func FadeOut(samples []float32, sampleRate int, ms float64) []float32 {
	n := fadeLength(len(samples), sampleRate, ms)
	if n == 0 {
		return samples
	}

	out := append([]float32(nil), samples...)
	last := len(out) - 1

	for i := range n {
		out[last-i] *= float32(i) / float32(n)
	}

	return out
}
