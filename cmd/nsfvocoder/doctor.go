package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/example/go-nsf-vocoder/internal/config"
	"github.com/example/go-nsf-vocoder/internal/doctor"
	"github.com/example/go-nsf-vocoder/internal/nsf"
	"github.com/example/go-nsf-vocoder/internal/onnx"
	"github.com/spf13/cobra"
)

func newDoctorCmd() *cobra.Command {
	var skipONNX bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run local runtime and model checks",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			result := doctor.Run(doctorConfig(cfg, skipONNX), os.Stdout)

			if result.Failed() {
				for _, f := range result.Failures() {
					fmt.Fprintf(os.Stderr, "FAIL: %s\n", f)
				}

				return errors.New("doctor checks failed")
			}

			_, _ = fmt.Fprintln(os.Stdout, "doctor checks passed")

			return nil
		},
	}

	cmd.Flags().BoolVar(&skipONNX, "skip-onnx", false, "Skip the ONNX graph and runtime checks")

	return cmd
}

func doctorConfig(cfg config.Config, skipONNX bool) doctor.Config {
	dcfg := doctor.Config{
		ModelPath:       cfg.Paths.ModelPath,
		ModelConfigPath: cfg.Paths.ModelConfigPath,
		BuildGenerator: func() (string, error) {
			gen, err := nsf.Load(cfg.Paths.ModelPath, cfg.Paths.ModelConfigPath)
			if err != nil {
				return "", err
			}

			info := gen.Info()

			return fmt.Sprintf("%s, %d stages, %d Hz, hop %d", info.Variant, len(info.Stages), info.SampleRate, info.HopSize), nil
		},
		APIVersion: cfg.Runtime.ORTAPIVersion,
	}

	if !skipONNX {
		dcfg.ONNXPath = cfg.Paths.ONNXPath
		dcfg.ORTVersion = func() (string, error) {
			info, err := onnx.DetectRuntime(cfg.Runtime)
			if err != nil {
				return "", err
			}

			return info.Version, nil
		}
	}

	return dcfg
}
