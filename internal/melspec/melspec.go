// Package melspec computes the natural-log mel spectrogram the vocoder is
// trained on.
package melspec

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"

	"github.com/example/go-nsf-vocoder/internal/runtime/tensor"
	"gonum.org/v1/gonum/dsp/fourier"
)

// Front-end constants of the 44.1 kHz PC-NSF-HiFiGAN checkpoints.
const (
	DefaultSampleRate = 44100
	DefaultNFFT       = 2048
	DefaultHopSize    = 512
	DefaultNumMels    = 128
	DefaultFMin       = 40.0
	DefaultFMax       = 16000.0

	logFloor = 1e-5
)

var ErrConfig = errors.New("melspec: invalid configuration")

type Config struct {
	SampleRate int
	NFFT       int
	HopSize    int
	NumMels    int
	FMin       float64
	FMax       float64
}

func DefaultConfig() Config {
	return Config{
		SampleRate: DefaultSampleRate,
		NFFT:       DefaultNFFT,
		HopSize:    DefaultHopSize,
		NumMels:    DefaultNumMels,
		FMin:       DefaultFMin,
		FMax:       DefaultFMax,
	}
}

func (c Config) Validate() error {
	switch {
	case c.SampleRate < 1:
		return fmt.Errorf("%w: sample rate %d", ErrConfig, c.SampleRate)
	case c.NFFT < 2 || c.NFFT&(c.NFFT-1) != 0:
		return fmt.Errorf("%w: n_fft %d must be a power of two", ErrConfig, c.NFFT)
	case c.HopSize < 1:
		return fmt.Errorf("%w: hop size %d", ErrConfig, c.HopSize)
	case c.NumMels < 1:
		return fmt.Errorf("%w: num mels %d", ErrConfig, c.NumMels)
	case c.FMin < 0 || c.FMax <= c.FMin || c.FMax > float64(c.SampleRate)/2:
		return fmt.Errorf("%w: mel range [%g, %g] Hz at %d Hz", ErrConfig, c.FMin, c.FMax, c.SampleRate)
	}

	return nil
}

// band is one triangular filter restricted to its non-zero bins.
type band struct {
	start   int
	weights []float64
}

// Analyzer holds the window and filterbank for one Config. It is safe for
// concurrent use.
type Analyzer struct {
	cfg    Config
	window []float64
	bands  []band
}

func New(cfg Config) (*Analyzer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &Analyzer{cfg: cfg, window: hann(cfg.NFFT)}
	a.bands = filterbank(cfg)

	return a, nil
}

func (a *Analyzer) Config() Config { return a.cfg }

// Frames returns the number of mel frames produced for numSamples input
// samples. Frames are not centered; short input still yields one frame.
func (a *Analyzer) Frames(numSamples int) int {
	if numSamples < a.cfg.NFFT {
		return 1
	}

	return (numSamples-a.cfg.NFFT)/a.cfg.HopSize + 1
}

// Compute returns the log-mel spectrogram of samples as [num_mels, frames].
func (a *Analyzer) Compute(samples []float32) (*tensor.Tensor, error) {
	if len(samples) == 0 {
		return nil, errors.New("melspec: empty input")
	}

	nfft := a.cfg.NFFT
	frames := a.Frames(len(samples))
	mels := a.cfg.NumMels

	fft := fourier.NewFFT(nfft)
	frame := make([]float64, nfft)
	coeffs := make([]complex128, nfft/2+1)
	mag := make([]float64, nfft/2+1)
	out := make([]float32, mels*frames)

	for t := range frames {
		start := t * a.cfg.HopSize
		clear(frame)

		for j := 0; j < nfft && start+j < len(samples); j++ {
			frame[j] = float64(samples[start+j]) * a.window[j]
		}

		coeffs = fft.Coefficients(coeffs, frame)
		for k, c := range coeffs {
			mag[k] = cmplx.Abs(c)
		}

		for m, b := range a.bands {
			var sum float64
			for i, w := range b.weights {
				sum += mag[b.start+i] * w
			}

			out[m*frames+t] = float32(math.Log(max(sum, logFloor)))
		}
	}

	return tensor.FromOwned(out, []int64{int64(mels), int64(frames)})
}

// hann is the symmetric Hann window of length n.
func hann(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(n-1)))
	}

	return w
}

func hzToMel(hz float64) float64  { return 2595 * math.Log10(1+hz/700) }
func melToHz(mel float64) float64 { return 700 * (math.Pow(10, mel/2595) - 1) }

// filterbank builds area-normalized triangular filters evenly spaced on the
// HTK mel scale between FMin and FMax.
func filterbank(cfg Config) []band {
	lo, hi := hzToMel(cfg.FMin), hzToMel(cfg.FMax)
	points := make([]float64, cfg.NumMels+2)

	for i := range points {
		points[i] = melToHz(lo + (hi-lo)*float64(i)/float64(cfg.NumMels+1))
	}

	bins := cfg.NFFT/2 + 1
	binHz := float64(cfg.SampleRate) / float64(cfg.NFFT)
	bands := make([]band, cfg.NumMels)

	for m := range bands {
		fLow, fCenter, fHigh := points[m], points[m+1], points[m+2]
		enorm := 2 / (fHigh - fLow)

		first, last := -1, -1
		weights := make([]float64, bins)

		for k := range bins {
			freq := float64(k) * binHz

			var w float64
			switch {
			case freq >= fLow && freq < fCenter:
				w = enorm * (freq - fLow) / (fCenter - fLow)
			case freq >= fCenter && freq <= fHigh:
				w = enorm * (fHigh - freq) / (fHigh - fCenter)
			}

			if w > 0 {
				if first < 0 {
					first = k
				}
				last = k
			}

			weights[k] = w
		}

		if first < 0 {
			// Narrower than one bin: the filter never fires.
			continue
		}

		bands[m] = band{start: first, weights: weights[first : last+1]}
	}

	return bands
}
