// Package pitch estimates F0 contours at vocoder hop resolution and edits
// them for resynthesis.
package pitch

import (
	"errors"
	"fmt"
	"math"
)

const (
	DefaultFMin      = 50.0
	DefaultFMax      = 1000.0
	DefaultThreshold = 0.1

	minWindow      = 2048
	minFrameLength = 512
)

var ErrConfig = errors.New("pitch: invalid configuration")

// Tracker is a YIN F0 estimator producing one value per hop.
type Tracker struct {
	SampleRate int
	HopSize    int
	FMin       float64
	FMax       float64
	Threshold  float64
}

func NewTracker(sampleRate, hopSize int) *Tracker {
	return &Tracker{
		SampleRate: sampleRate,
		HopSize:    hopSize,
		FMin:       DefaultFMin,
		FMax:       DefaultFMax,
		Threshold:  DefaultThreshold,
	}
}

func (tr *Tracker) validate() error {
	switch {
	case tr.SampleRate < 1 || tr.HopSize < 1:
		return fmt.Errorf("%w: sample rate %d, hop %d", ErrConfig, tr.SampleRate, tr.HopSize)
	case tr.FMin <= 0 || tr.FMax <= tr.FMin:
		return fmt.Errorf("%w: F0 range [%g, %g]", ErrConfig, tr.FMin, tr.FMax)
	case tr.Threshold <= 0 || tr.Threshold >= 1:
		return fmt.Errorf("%w: threshold %g", ErrConfig, tr.Threshold)
	}

	return nil
}

// WindowSize is the analysis window: two periods of FMin, at least 2048.
func (tr *Tracker) WindowSize() int {
	return max(minWindow, int(float64(tr.SampleRate)/tr.FMin)*2)
}

// Frames returns the number of F0 values for numSamples samples.
func (tr *Tracker) Frames(numSamples int) int {
	w := tr.WindowSize()
	if numSamples >= w {
		return (numSamples-w)/tr.HopSize + 1
	}

	return max(1, numSamples/tr.HopSize)
}

// Track estimates F0 in Hz per hop. Unvoiced frames are 0 and false in the
// returned mask.
func (tr *Tracker) Track(samples []float32) ([]float32, []bool, error) {
	if err := tr.validate(); err != nil {
		return nil, nil, err
	}

	frames := tr.Frames(len(samples))
	window := tr.WindowSize()
	f0 := make([]float32, frames)
	voiced := make([]bool, frames)

	for i := range frames {
		start := i * tr.HopSize
		if start >= len(samples) {
			continue
		}

		n := min(window, len(samples)-start)
		if n < minFrameLength {
			continue
		}

		hz := tr.estimate(samples[start : start+n])
		if hz >= tr.FMin && hz <= tr.FMax {
			f0[i] = float32(hz)
			voiced[i] = true
		}
	}

	return f0, voiced, nil
}

// estimate runs YIN over one frame and returns -1 when no period passes the
// threshold.
func (tr *Tracker) estimate(buf []float32) float64 {
	half := len(buf) / 2
	if half < 2 {
		return -1
	}

	diff := make([]float64, half)
	for tau := 1; tau < half; tau++ {
		var sum float64
		for j := range half {
			d := float64(buf[j]) - float64(buf[j+tau])
			sum += d * d
		}

		diff[tau] = sum
	}

	cmnd := make([]float64, half)
	cmnd[0] = 1

	var running float64
	for tau := 1; tau < half; tau++ {
		running += diff[tau]
		if running == 0 {
			cmnd[tau] = 1
			continue
		}

		cmnd[tau] = diff[tau] * float64(tau) / running
	}

	tauMin := int(float64(tr.SampleRate) / tr.FMax)
	tauMax := min(half-1, int(float64(tr.SampleRate)/tr.FMin))

	tau := tauMin
	for ; tau < tauMax; tau++ {
		if cmnd[tau] < tr.Threshold {
			for tau+1 < tauMax && cmnd[tau+1] < cmnd[tau] {
				tau++
			}

			break
		}
	}

	if tau >= tauMax || cmnd[tau] >= tr.Threshold {
		return -1
	}

	better := parabolic(cmnd, tau)
	if better <= 0 {
		return -1
	}

	return float64(tr.SampleRate) / better
}

func parabolic(d []float64, tau int) float64 {
	if tau < 1 || tau >= len(d)-1 {
		return float64(tau)
	}

	s0, s1, s2 := d[tau-1], d[tau], d[tau+1]

	denom := 2 * (2*s1 - s2 - s0)
	if denom == 0 {
		return float64(tau)
	}

	adj := (s2 - s0) / denom
	if math.Abs(adj) > 1 {
		adj = 0
	}

	return float64(tau) + adj
}
