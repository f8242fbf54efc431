package onnx

import (
	"context"
	"fmt"

	"github.com/example/go-nsf-vocoder/internal/runtime/tensor"
)

// GraphRunner executes one ONNX graph. *Runner satisfies it.
type GraphRunner interface {
	Run(ctx context.Context, inputs map[string]*Tensor) (map[string]*Tensor, error)
	Close()
}

// Vocoder drives an exported generator graph with the native tensor types.
type Vocoder struct {
	runner  GraphRunner
	numMels int
}

func NewVocoder(runner GraphRunner, numMels int) *Vocoder {
	return &Vocoder{runner: runner, numMels: numMels}
}

// OpenVocoder loads the exported graph at path, or the generator listed in
// a manifest at path, through ONNX Runtime.
func OpenVocoder(path string, numMels int, cfg RunnerConfig) (*Vocoder, error) {
	meta, err := ResolveVocoderSession(path, numMels)
	if err != nil {
		return nil, err
	}

	r, err := NewRunner(meta, cfg)
	if err != nil {
		return nil, err
	}

	return NewVocoder(r, numMels), nil
}

// Synthesize runs mel [num_mels, frames] and f0 [frames] through the graph
// and returns the waveform.
func (v *Vocoder) Synthesize(ctx context.Context, mel *tensor.Tensor, f0 []float32) ([]float32, error) {
	if mel.Rank() != 2 || mel.Dim(0) != int64(v.numMels) {
		return nil, fmt.Errorf("onnx: mel shape %v, want [%d, frames]", mel.Shape(), v.numMels)
	}

	frames := mel.Dim(1)
	if int64(len(f0)) != frames {
		return nil, fmt.Errorf("onnx: f0 has %d frames, mel has %d", len(f0), frames)
	}

	melIn, err := FromNative(mel, true)
	if err != nil {
		return nil, fmt.Errorf("onnx: mel input: %w", err)
	}

	f0In, err := NewTensor(f0, []int64{1, frames})
	if err != nil {
		return nil, fmt.Errorf("onnx: f0 input: %w", err)
	}

	outputs, err := v.runner.Run(ctx, map[string]*Tensor{InputMel: melIn, InputF0: f0In})
	if err != nil {
		return nil, err
	}

	out, ok := outputs[OutputAudio]
	if !ok || out == nil {
		return nil, fmt.Errorf("onnx: graph produced no %q output", OutputAudio)
	}

	return out.data, nil
}

func (v *Vocoder) Close() {
	v.runner.Close()
}
