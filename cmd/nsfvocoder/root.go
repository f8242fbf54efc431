package main

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"

	"github.com/example/go-nsf-vocoder/internal/audio"
	"github.com/example/go-nsf-vocoder/internal/config"
	"github.com/example/go-nsf-vocoder/internal/runtime/ops"
	"github.com/example/go-nsf-vocoder/internal/runtime/tensor"
	"github.com/example/go-nsf-vocoder/internal/server"
	"github.com/example/go-nsf-vocoder/internal/vocoder"
	"github.com/spf13/cobra"
)

var (
	cfgFile   string
	activeCfg config.Config
)

func NewRootCmd() *cobra.Command {
	defaults := config.DefaultConfig()

	cmd := &cobra.Command{
		Use:   "nsfvocoder",
		Short: "PC-NSF-HiFiGAN vocoder command line",
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			loaded, err := config.Load(config.LoadOptions{
				Cmd:        cmd,
				ConfigFile: cfgFile,
				Defaults:   defaults,
			})
			if err != nil {
				return err
			}
			activeCfg = loaded
			setupLogger(loaded.LogLevel)
			applyRuntime(loaded.Runtime)
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Optional config file (yaml|toml|json)")
	config.RegisterFlags(cmd.PersistentFlags(), defaults)

	cmd.AddCommand(newVocodeCmd())
	cmd.AddCommand(newAnalyzeCmd())
	cmd.AddCommand(newResynthCmd())
	cmd.AddCommand(newInspectCmd())
	cmd.AddCommand(newVerifyCmd())
	cmd.AddCommand(newBenchCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newHealthCmd())
	cmd.AddCommand(newDoctorCmd())

	return cmd
}

// setupLogger configures the process-wide slog default logger.
func setupLogger(levelStr string) {
	lvl, err := server.ParseLogLevel(levelStr)
	if err != nil {
		lvl = slog.LevelInfo
	}
	h := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(h))
}

// applyRuntime sizes the kernel worker pools. 0 means GOMAXPROCS.
func applyRuntime(rc config.RuntimeConfig) {
	ops.SetConvWorkers(workerCount(rc.ConvWorkers))
	tensor.SetWorkers(workerCount(rc.TensorWorkers))
}

func workerCount(n int) int {
	if n > 0 {
		return n
	}

	return runtime.GOMAXPROCS(0)
}

func requireConfig() (config.Config, error) {
	if activeCfg.Paths.ModelPath == "" {
		return config.Config{}, fmt.Errorf("configuration not loaded")
	}
	return activeCfg, nil
}

// loadSynthesizer builds the configured generator behind a chunking
// synthesizer.
func loadSynthesizer(cfg config.Config) (*vocoder.Synthesizer, error) {
	return vocoder.Load(cfg.Paths, vocoder.OptionsFromConfig(cfg.Vocoder))
}

// postOptions merges the config post-processing switches with the command's
// fade flag.
func postOptions(cfg config.VocoderConfig, fadeMs float64) audio.PostOptions {
	return audio.PostOptions{
		DCBlock:   cfg.DCBlock,
		Normalize: cfg.Normalize,
		FadeMs:    fadeMs,
	}
}

// writeAudio runs the post hooks and writes a WAV file.
func writeAudio(path string, samples []float32, sampleRate int, cfg config.VocoderConfig, fadeMs float64) error {
	samples = audio.ApplyHooks(samples, postOptions(cfg, fadeMs).Hooks(sampleRate)...)

	if err := audio.WriteWAV(path, samples, sampleRate, cfg.BitDepth); err != nil {
		return err
	}

	slog.Info("wrote audio",
		"path", path,
		"samples", len(samples),
		"sample_rate", sampleRate,
		"bit_depth", cfg.BitDepth,
	)

	return nil
}
