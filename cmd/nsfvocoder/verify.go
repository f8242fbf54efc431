package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/example/go-nsf-vocoder/internal/bench"
	"github.com/example/go-nsf-vocoder/internal/nsf"
	"github.com/example/go-nsf-vocoder/internal/onnx"
	"github.com/example/go-nsf-vocoder/internal/runtime/ops"
	"github.com/example/go-nsf-vocoder/internal/runtime/tensor"
	"github.com/example/go-nsf-vocoder/internal/vocoder"
	"github.com/spf13/cobra"
)

func newVerifyCmd() *cobra.Command {
	var (
		onnxPath     string
		featuresPath string
		frames       int
		f0Hz         float64
	)

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Compare the native generator against an exported ONNX graph",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			if onnxPath == "" {
				onnxPath = cfg.Paths.ONNXPath
			}

			gen, err := nsf.Load(cfg.Paths.ModelPath, cfg.Paths.ModelConfigPath)
			if err != nil {
				return err
			}

			if gen.Info().Variant != nsf.VariantMini || gen.Config().NoiseSigma > 0 {
				slog.Warn("generator is not deterministic; expect parity failures",
					"variant", gen.Info().Variant,
					"noise_sigma", gen.Config().NoiseSigma,
				)
			}

			mel, f0, err := verifyInput(gen, featuresPath, frames, float32(f0Hz))
			if err != nil {
				return err
			}

			native, err := gen.Forward(nsf.NewContext(cfg.Vocoder.Seed), mel, f0)
			if err != nil {
				return fmt.Errorf("native forward: %w", err)
			}

			rt, err := onnx.Bootstrap(cfg.Runtime)
			if err != nil {
				return err
			}

			ov, err := onnx.OpenVocoder(onnxPath, gen.Config().NumMels, rt.RunnerConfig())
			if err != nil {
				return err
			}
			defer ov.Close()

			ref, err := ov.Synthesize(cmd.Context(), mel, f0.Data())
			if err != nil {
				return fmt.Errorf("onnx forward: %w", err)
			}

			tol, err := ops.KernelTolerance("generator")
			if err != nil {
				return err
			}

			parity, err := onnx.Compare(native.Data(), ref, tol)
			if err != nil {
				return err
			}

			writeParity(os.Stdout, onnxPath, rt, parity)

			if !parity.OK() {
				return errors.New("verify: parity check failed")
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&onnxPath, "onnx", "", "Exported generator graph or manifest.json (defaults to paths.onnx_path)")
	cmd.Flags().StringVar(&featuresPath, "features", "", "Feature file to compare on (default: constant synthetic input)")
	cmd.Flags().IntVar(&frames, "frames", 64, "Frames of synthetic input")
	cmd.Flags().Float64Var(&f0Hz, "f0", 220, "F0 of synthetic input in Hz")

	return cmd
}

// verifyInput returns the mel [num_mels, T] and f0 [T] to compare on.
func verifyInput(gen *nsf.Generator, featuresPath string, frames int, f0Hz float32) (mel, f0 *tensor.Tensor, err error) {
	if featuresPath == "" {
		if frames < 1 {
			return nil, nil, fmt.Errorf("--frames must be at least 1")
		}

		return bench.ConstantInput(gen, frames, f0Hz, -4)
	}

	feats, err := vocoder.ReadFeatures(featuresPath)
	if err != nil {
		return nil, nil, err
	}

	f0, err = tensor.New(feats.F0, []int64{int64(len(feats.F0))})
	if err != nil {
		return nil, nil, err
	}

	return feats.Mel, f0, nil
}

func writeParity(w io.Writer, graph string, rt onnx.RuntimeInfo, p onnx.Parity) {
	status := "ok"
	if !p.OK() {
		status = "FAIL"
	}

	_, _ = fmt.Fprintf(w, "graph:          %s\n", graph)
	_, _ = fmt.Fprintf(w, "onnx runtime:   %s (%s)\n", rt.Version, rt.LibraryPath)
	_, _ = fmt.Fprintf(w, "samples:        %d\n", p.Samples)
	_, _ = fmt.Fprintf(w, "max abs diff:   %.6g (at %d)\n", p.MaxAbsDiff, p.WorstIndex)
	_, _ = fmt.Fprintf(w, "mean abs diff:  %.6g\n", p.MeanAbsDiff)
	_, _ = fmt.Fprintf(w, "tolerance:      abs %g rel %g\n", p.Tolerance.Abs, p.Tolerance.Rel)
	_, _ = fmt.Fprintf(w, "violations:     %d\n", p.Violations)
	_, _ = fmt.Fprintf(w, "parity:         %s\n", status)
}
