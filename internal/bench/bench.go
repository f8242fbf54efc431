// Package bench provides benchmarking primitives for the nsfvocoder bench command.
package bench

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"sort"
	"strings"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/example/go-nsf-vocoder/internal/nsf"
	"github.com/example/go-nsf-vocoder/internal/runtime/tensor"
)

// RunResult holds the timing and audio metadata for a single forward run.
type RunResult struct {
	Index         int
	Cold          bool // true for the first run (cold-start)
	Duration      time.Duration
	AudioDuration time.Duration
	RTF           float64
}

// Stats holds aggregate timing statistics across all runs.
type Stats struct {
	Min     time.Duration
	Max     time.Duration
	Mean    time.Duration
	Median  time.Duration
	StdDev  time.Duration
	MeanRTF float64
}

// ComputeStats summarizes durations. StdDev is zero for fewer than two runs.
func ComputeStats(durations []time.Duration) Stats {
	if len(durations) == 0 {
		return Stats{}
	}

	xs := make([]float64, len(durations))
	for i, d := range durations {
		xs[i] = float64(d)
	}

	sort.Float64s(xs)

	s := Stats{
		Min:    time.Duration(xs[0]),
		Max:    time.Duration(xs[len(xs)-1]),
		Mean:   time.Duration(math.Round(stat.Mean(xs, nil))),
		Median: time.Duration(stat.Quantile(0.5, stat.Empirical, xs, nil)),
	}

	if len(xs) > 1 {
		s.StdDev = time.Duration(math.Round(stat.StdDev(xs, nil)))
	}

	return s
}

// Summarize aggregates runs, optionally excluding the cold first run.
func Summarize(runs []RunResult, skipCold bool) Stats {
	var (
		durations []time.Duration
		rtfs      []float64
	)

	for _, r := range runs {
		if skipCold && r.Cold && len(runs) > 1 {
			continue
		}

		durations = append(durations, r.Duration)
		rtfs = append(rtfs, r.RTF)
	}

	s := ComputeStats(durations)
	if len(rtfs) > 0 {
		s.MeanRTF = stat.Mean(rtfs, nil)
	}

	return s
}

// CalcRTF returns synthesis_duration / audio_duration.
// Returns 0 if audioDur is zero to avoid division by zero.
func CalcRTF(synthDur, audioDur time.Duration) float64 {
	if audioDur <= 0 {
		return 0
	}

	return float64(synthDur) / float64(audioDur)
}

// AudioDuration returns the playback duration of n samples at sampleRate.
func AudioDuration(n, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}

	return time.Duration(int64(n) * int64(time.Second) / int64(sampleRate))
}

// CheckRTFThreshold returns an error if meanRTF > threshold.
// A threshold of 0 disables the gate.
func CheckRTFThreshold(meanRTF, threshold float64) error {
	if threshold <= 0 {
		return nil
	}

	if meanRTF > threshold {
		return fmt.Errorf("mean RTF %.3f exceeds threshold %.3f", meanRTF, threshold)
	}

	return nil
}

// Workload renders one utterance and returns its length in samples.
type Workload func(ctx context.Context) (int, error)

// Run executes w n times in sequence. It stops at the first error or when
// ctx is done.
func Run(ctx context.Context, n, sampleRate int, w Workload) ([]RunResult, error) {
	if n < 1 {
		return nil, fmt.Errorf("bench: run count %d must be positive", n)
	}

	runs := make([]RunResult, 0, n)

	for i := range n {
		if err := ctx.Err(); err != nil {
			return runs, err
		}

		start := time.Now()

		samples, err := w(ctx)
		if err != nil {
			return runs, fmt.Errorf("bench: run %d: %w", i+1, err)
		}

		elapsed := time.Since(start)
		audioDur := AudioDuration(samples, sampleRate)

		runs = append(runs, RunResult{
			Index:         i,
			Cold:          i == 0,
			Duration:      elapsed,
			AudioDuration: audioDur,
			RTF:           CalcRTF(elapsed, audioDur),
		})
	}

	return runs, nil
}

// ConstantInput builds a mel of constant log-energy and a constant F0 track
// of the given length for g.
func ConstantInput(g *nsf.Generator, frames int, f0Hz, logMel float32) (mel, f0 *tensor.Tensor, err error) {
	cfg := g.Config()

	mel, err = tensor.Full([]int64{int64(cfg.NumMels), int64(frames)}, logMel)
	if err != nil {
		return nil, nil, err
	}

	f0, err = tensor.Full([]int64{int64(frames)}, f0Hz)
	if err != nil {
		return nil, nil, err
	}

	return mel, f0, nil
}

// ForwardWorkload runs one generator forward pass per call over fixed input.
// Each call starts from a fresh context seeded with seed.
func ForwardWorkload(g *nsf.Generator, mel, f0 *tensor.Tensor, seed int64) Workload {
	return func(_ context.Context) (int, error) {
		audio, err := g.Forward(nsf.NewContext(seed), mel, f0)
		if err != nil {
			return 0, err
		}

		return audio.ElemCount(), nil
	}
}

// FormatTable writes a human-readable ASCII table of bench results to w.
func FormatTable(runs []RunResult, stats Stats, w io.Writer) {
	sb := &strings.Builder{}

	fmt.Fprintf(sb, "%-5s  %-5s  %10s  %12s  %8s\n", "Run", "Cold", "MS", "Audio(ms)", "RTF")
	fmt.Fprintln(sb, strings.Repeat("-", 48))

	for _, r := range runs {
		cold := ""
		if r.Cold {
			cold = "yes"
		}

		fmt.Fprintf(sb, "%-5d  %-5s  %10.1f  %12.1f  %8.3f\n",
			r.Index+1,
			cold,
			ms(r.Duration),
			ms(r.AudioDuration),
			r.RTF,
		)
	}

	fmt.Fprintln(sb, strings.Repeat("-", 48))
	fmt.Fprintf(sb, "%-5s  %-5s  %10.1f  %12s  %8s  (min)\n", "", "", ms(stats.Min), "", "")
	fmt.Fprintf(sb, "%-5s  %-5s  %10.1f  %12s  %8.3f  (mean)\n", "", "", ms(stats.Mean), "", stats.MeanRTF)
	fmt.Fprintf(sb, "%-5s  %-5s  %10.1f  %12s  %8s  (median)\n", "", "", ms(stats.Median), "", "")
	fmt.Fprintf(sb, "%-5s  %-5s  %10.1f  %12s  %8s  (max)\n", "", "", ms(stats.Max), "", "")
	fmt.Fprintf(sb, "%-5s  %-5s  %10.1f  %12s  %8s  (stddev)\n", "", "", ms(stats.StdDev), "", "")

	fmt.Fprint(w, sb.String())
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// jsonReport is the top-level JSON structure emitted by FormatJSON.
type jsonReport struct {
	Runs  []jsonRun `json:"runs"`
	Stats jsonStats `json:"stats"`
}

type jsonRun struct {
	Index      int     `json:"index"`
	Cold       bool    `json:"cold"`
	DurationMS float64 `json:"duration_ms"`
	AudioMS    float64 `json:"audio_ms"`
	RTF        float64 `json:"rtf"`
}

type jsonStats struct {
	MinMS    float64 `json:"min_ms"`
	MeanMS   float64 `json:"mean_ms"`
	MedianMS float64 `json:"median_ms"`
	MaxMS    float64 `json:"max_ms"`
	StdDevMS float64 `json:"stddev_ms"`
	MeanRTF  float64 `json:"mean_rtf"`
}

// FormatJSON writes a JSON report of bench results to w.
func FormatJSON(runs []RunResult, stats Stats, w io.Writer) error {
	jr := jsonReport{
		Runs: make([]jsonRun, len(runs)),
		Stats: jsonStats{
			MinMS:    ms(stats.Min),
			MeanMS:   ms(stats.Mean),
			MedianMS: ms(stats.Median),
			MaxMS:    ms(stats.Max),
			StdDevMS: ms(stats.StdDev),
			MeanRTF:  stats.MeanRTF,
		},
	}

	for i, r := range runs {
		jr.Runs[i] = jsonRun{
			Index:      r.Index,
			Cold:       r.Cold,
			DurationMS: ms(r.Duration),
			AudioMS:    ms(r.AudioDuration),
			RTF:        r.RTF,
		}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(jr)
}
