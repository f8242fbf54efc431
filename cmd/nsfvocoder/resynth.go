package main

import (
	"log/slog"

	"github.com/example/go-nsf-vocoder/internal/audio"
	"github.com/spf13/cobra"
)

func newResynthCmd() *cobra.Command {
	var (
		out    string
		fadeMs float64
	)

	opts := defaultAnalysisOptions()

	cmd := &cobra.Command{
		Use:   "resynth <input.wav>",
		Short: "Analyze a recording and render it back through the vocoder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			clip, err := audio.ReadWAV(args[0])
			if err != nil {
				return err
			}

			synth, err := loadSynthesizer(cfg)
			if err != nil {
				return err
			}

			feats, err := analyzeClip(clip, synth.Generator().Config(), opts)
			if err != nil {
				return err
			}

			slog.Debug("analyzed input", "frames", feats.Frames(), "semitones", opts.Semitones)

			samples, err := synth.SynthesizeFeatures(cmd.Context(), feats)
			if err != nil {
				return err
			}

			return writeAudio(out, samples, synth.SampleRate(), cfg.Vocoder, fadeMs)
		},
	}

	cmd.Flags().StringVar(&out, "out", "resynth.wav", "Output WAV path")
	cmd.Flags().Float64Var(&fadeMs, "fade-ms", 0, "Linear fade-in and fade-out duration in milliseconds")
	opts.register(cmd.Flags())

	return cmd
}
