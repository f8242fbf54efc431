package audio

import (
	"math"
	"testing"
)

const testRate = 44100

func peakOf(s []float32) float32 {
	var p float32
	for _, v := range s {
		if v < 0 {
			v = -v
		}

		p = max(p, v)
	}

	return p
}

func meanOf(s []float32) float64 {
	var sum float64
	for _, v := range s {
		sum += float64(v)
	}

	return sum / float64(len(s))
}

func sine(n int, freq, amp float64) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(amp * math.Sin(2*math.Pi*freq*float64(i)/testRate))
	}

	return out
}

func TestPeakNormalize(t *testing.T) {
	in := sine(4410, 440, 0.25)

	out := PeakNormalize(in)
	if p := peakOf(out); math.Abs(float64(p)-1) > 1e-6 {
		t.Fatalf("peak = %v, want 1", p)
	}

	if peakOf(in) > 0.26 {
		t.Fatal("input was modified")
	}
}

func TestPeakNormalizeSilence(t *testing.T) {
	in := make([]float32, 100)

	out := PeakNormalize(in)
	if peakOf(out) != 0 {
		t.Fatal("silence should stay silent")
	}
}

func TestDCBlockRemovesOffset(t *testing.T) {
	in := sine(testRate, 440, 0.3)
	for i := range in {
		in[i] += 0.5
	}

	out := DCBlock(in, testRate)
	// Skip the filter's settling time.
	tail := out[testRate/2:]

	if m := meanOf(tail); math.Abs(m) > 0.01 {
		t.Fatalf("mean after DC block = %v", m)
	}

	if p := peakOf(tail); p < 0.25 || p > 0.35 {
		t.Fatalf("440 Hz tone peak = %v, want ~0.3", p)
	}
}

func TestDCBlockEmpty(t *testing.T) {
	if out := DCBlock(nil, testRate); len(out) != 0 {
		t.Fatalf("len = %d", len(out))
	}
}

func TestFadeInOut(t *testing.T) {
	in := make([]float32, 1000)
	for i := range in {
		in[i] = 1
	}

	// 10 ms at 44.1 kHz is 441 samples.
	fadedIn := FadeIn(in, testRate, 10)
	if fadedIn[0] != 0 {
		t.Fatalf("first sample = %v", fadedIn[0])
	}

	if fadedIn[441] != 1 || fadedIn[999] != 1 {
		t.Fatal("samples after the ramp should be untouched")
	}

	if fadedIn[220] >= fadedIn[221] {
		t.Fatal("ramp should increase")
	}

	fadedOut := FadeOut(in, testRate, 10)
	if fadedOut[999] != 0 {
		t.Fatalf("last sample = %v", fadedOut[999])
	}

	if fadedOut[0] != 1 || fadedOut[558] != 1 {
		t.Fatal("samples before the ramp should be untouched")
	}

	if in[0] != 1 || in[999] != 1 {
		t.Fatal("input was modified")
	}
}

func TestFadeLongerThanInput(t *testing.T) {
	in := []float32{1, 1, 1, 1}

	out := FadeIn(in, testRate, 1000)
	if len(out) != 4 || out[0] != 0 || out[3] != 0.75 {
		t.Fatalf("out = %v", out)
	}
}
