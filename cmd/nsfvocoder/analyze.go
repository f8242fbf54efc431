package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/example/go-nsf-vocoder/internal/audio"
	"github.com/example/go-nsf-vocoder/internal/nsf"
	"github.com/example/go-nsf-vocoder/internal/vocoder"
	"github.com/spf13/cobra"
)

func newAnalyzeCmd() *cobra.Command {
	var out string

	opts := defaultAnalysisOptions()

	cmd := &cobra.Command{
		Use:   "analyze <input.wav>",
		Short: "Extract a log-mel spectrogram and F0 contour to a feature file",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			mcfg, err := nsf.LoadModelConfig(cfg.Paths.ModelConfigPath)
			if err != nil {
				return err
			}

			clip, err := audio.ReadWAV(args[0])
			if err != nil {
				return err
			}

			feats, err := analyzeClip(clip, mcfg, opts)
			if err != nil {
				return err
			}

			if err := vocoder.WriteFeatures(out, feats, featureMetadata(args[0], mcfg)); err != nil {
				return err
			}

			slog.Info("wrote features", "path", out, "frames", feats.Frames(), "num_mels", mcfg.NumMels)
			_, err = fmt.Fprintf(os.Stdout, "%s: %d frames (%.2fs)\n", out, feats.Frames(), clip.Duration())
			return err
		},
	}

	cmd.Flags().StringVar(&out, "out", "features.safetensors", "Output feature file")
	opts.register(cmd.Flags())

	return cmd
}
