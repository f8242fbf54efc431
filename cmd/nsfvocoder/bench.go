package main

import (
	"fmt"
	"os"

	"github.com/example/go-nsf-vocoder/internal/bench"
	"github.com/example/go-nsf-vocoder/internal/nsf"
	"github.com/spf13/cobra"
)

func newBenchCmd() *cobra.Command {
	var (
		frames       int
		f0Hz         float64
		runs         int
		skipCold     bool
		format       string
		rtfThreshold float64
	)

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Benchmark generator latency and realtime factor",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			if frames < 1 {
				return fmt.Errorf("--frames must be at least 1")
			}
			if runs < 1 {
				return fmt.Errorf("--runs must be at least 1")
			}
			if format != "table" && format != "json" {
				return fmt.Errorf("--format must be 'table' or 'json'")
			}

			gen, err := nsf.Load(cfg.Paths.ModelPath, cfg.Paths.ModelConfigPath)
			if err != nil {
				return err
			}

			mel, f0, err := bench.ConstantInput(gen, frames, float32(f0Hz), -4)
			if err != nil {
				return err
			}

			results, err := bench.Run(cmd.Context(), runs, gen.Config().SamplingRate,
				bench.ForwardWorkload(gen, mel, f0, cfg.Vocoder.Seed))
			if err != nil {
				return err
			}

			stats := bench.Summarize(results, skipCold)

			switch format {
			case "json":
				if err := bench.FormatJSON(results, stats, os.Stdout); err != nil {
					return err
				}
			default:
				bench.FormatTable(results, stats, os.Stdout)
			}

			return bench.CheckRTFThreshold(stats.MeanRTF, rtfThreshold)
		},
	}

	cmd.Flags().IntVar(&frames, "frames", 512, "Mel frames per forward pass")
	cmd.Flags().Float64Var(&f0Hz, "f0", 220, "Constant F0 of the input in Hz")
	cmd.Flags().IntVar(&runs, "runs", 5, "Number of forward passes")
	cmd.Flags().BoolVar(&skipCold, "skip-cold", true, "Exclude the first run from the summary")
	cmd.Flags().StringVar(&format, "format", "table", "Output format: table|json")
	cmd.Flags().Float64Var(&rtfThreshold, "rtf-threshold", 0, "Exit non-zero if mean RTF exceeds this value (0 = disabled)")

	return cmd
}
