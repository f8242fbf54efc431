package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/example/go-nsf-vocoder/internal/bench"
	"github.com/example/go-nsf-vocoder/internal/nsf"
	"github.com/spf13/cobra"
)

func newInspectCmd() *cobra.Command {
	var (
		format string
		frames int
	)

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Print the generator's stage layout",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			if format != "table" && format != "json" {
				return fmt.Errorf("--format must be 'table' or 'json'")
			}

			gen, err := nsf.Load(cfg.Paths.ModelPath, cfg.Paths.ModelConfigPath)
			if err != nil {
				return err
			}

			var lengths []int64
			if frames > 0 {
				lengths, err = traceLengths(gen, frames, cfg.Vocoder.Seed)
				if err != nil {
					return err
				}
			}

			if format == "json" {
				return writeInspectJSON(os.Stdout, gen.Info(), lengths)
			}

			writeInspectTable(os.Stdout, gen.Info(), lengths)
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "table", "Output format: table|json")
	cmd.Flags().IntVar(&frames, "trace-frames", 0, "Run a constant-input forward pass of this many frames and report stage lengths (0 = off)")

	return cmd
}

// traceLengths runs one forward pass over constant input and returns the
// sequence length after each stage.
func traceLengths(gen *nsf.Generator, frames int, seed int64) ([]int64, error) {
	mel, f0, err := bench.ConstantInput(gen, frames, 220, -4)
	if err != nil {
		return nil, err
	}

	trace, err := gen.ForwardDetailed(nsf.NewContext(seed), mel, f0)
	if err != nil {
		return nil, err
	}

	return trace.StageLengths, nil
}

func writeInspectTable(w io.Writer, info nsf.Info, lengths []int64) {
	sb := &strings.Builder{}

	fmt.Fprintf(sb, "variant:      %s\n", info.Variant)
	fmt.Fprintf(sb, "sample rate:  %d Hz\n", info.SampleRate)
	fmt.Fprintf(sb, "hop size:     %d\n", info.HopSize)
	fmt.Fprintf(sb, "mel bins:     %d\n", info.NumMels)
	fmt.Fprintf(sb, "source rate:  %.0f Hz (upp %d)\n", info.SourceRate, info.Upsampling)
	fmt.Fprintf(sb, "injection at: %v\n\n", info.InjectionStages)

	fmt.Fprintf(sb, "%-5s  %4s  %6s  %8s  %8s  %9s  %6s", "Stage", "Rate", "Kernel", "In", "Out", "Resblocks", "Inject")
	if len(lengths) > 0 {
		fmt.Fprintf(sb, "  %10s", "Length")
	}

	sb.WriteString("\n")

	for _, st := range info.Stages {
		inject := "-"
		if st.Injected {
			inject = fmt.Sprintf("s=%d", st.InjectStride)
		}

		fmt.Fprintf(sb, "%-5d  %4d  %6d  %8d  %8d  %9d  %6s",
			st.Index, st.Rate, st.Kernel, st.InChannels, st.OutChannels, st.Resblocks, inject)

		if st.Index < len(lengths) {
			fmt.Fprintf(sb, "  %10d", lengths[st.Index])
		}

		sb.WriteString("\n")
	}

	_, _ = io.WriteString(w, sb.String())
}

type inspectReport struct {
	Info         nsf.Info `json:"info"`
	StageLengths []int64  `json:"stage_lengths,omitempty"`
}

func writeInspectJSON(w io.Writer, info nsf.Info, lengths []int64) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(inspectReport{Info: info, StageLengths: lengths})
}
