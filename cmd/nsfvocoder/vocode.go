package main

import (
	"github.com/example/go-nsf-vocoder/internal/vocoder"
	"github.com/spf13/cobra"
)

func newVocodeCmd() *cobra.Command {
	var (
		out    string
		fadeMs float64
	)

	cmd := &cobra.Command{
		Use:   "vocode <features.safetensors>",
		Short: "Render a mel and F0 feature file to WAV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			feats, err := vocoder.ReadFeatures(args[0])
			if err != nil {
				return err
			}

			synth, err := loadSynthesizer(cfg)
			if err != nil {
				return err
			}

			samples, err := synth.SynthesizeFeatures(cmd.Context(), feats)
			if err != nil {
				return err
			}

			return writeAudio(out, samples, synth.SampleRate(), cfg.Vocoder, fadeMs)
		},
	}

	cmd.Flags().StringVar(&out, "out", "out.wav", "Output WAV path")
	cmd.Flags().Float64Var(&fadeMs, "fade-ms", 0, "Linear fade-in and fade-out duration in milliseconds")

	return cmd
}
