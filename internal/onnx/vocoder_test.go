package onnx

import (
	"context"
	"errors"
	"math"
	"reflect"
	"strings"
	"testing"

	"github.com/example/go-nsf-vocoder/internal/runtime/ops"
	"github.com/example/go-nsf-vocoder/internal/runtime/tensor"
)

// fakeRunner records inputs and returns audio of hop samples per frame.
type fakeRunner struct {
	hop    int
	inputs map[string]*Tensor
	err    error
	closed bool
	output string
}

func (f *fakeRunner) Run(_ context.Context, inputs map[string]*Tensor) (map[string]*Tensor, error) {
	f.inputs = inputs
	if f.err != nil {
		return nil, f.err
	}

	frames := inputs[InputF0].Shape()[1]

	audio := make([]float32, frames*int64(f.hop))
	for i := range audio {
		audio[i] = float32(i)
	}

	out, err := NewTensor(audio, []int64{1, 1, int64(len(audio))})
	if err != nil {
		return nil, err
	}

	name := f.output
	if name == "" {
		name = OutputAudio
	}

	return map[string]*Tensor{name: out}, nil
}

func (f *fakeRunner) Close() { f.closed = true }

func parityInputs(t *testing.T, mels, frames int) (*tensor.Tensor, []float32) {
	t.Helper()

	data := make([]float32, mels*frames)
	for i := range data {
		data[i] = float32(-6 + 2*math.Sin(float64(i)*0.37))
	}

	mel, err := tensor.New(data, []int64{int64(mels), int64(frames)})
	if err != nil {
		t.Fatalf("mel: %v", err)
	}

	f0 := make([]float32, frames)
	for i := range f0 {
		f0[i] = 220
	}

	return mel, f0
}

func f0Tensor(t *testing.T, f0 []float32) *tensor.Tensor {
	t.Helper()

	out, err := tensor.New(f0, []int64{int64(len(f0))})
	if err != nil {
		t.Fatalf("f0: %v", err)
	}

	return out
}

func TestVocoderSynthesizeFeedsBatchedInputs(t *testing.T) {
	fake := &fakeRunner{hop: 4}
	v := NewVocoder(fake, 3)
	mel, f0 := parityInputs(t, 3, 5)

	audio, err := v.Synthesize(context.Background(), mel, f0)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}

	if len(audio) != 20 {
		t.Fatalf("audio length = %d, want 20", len(audio))
	}

	if got := fake.inputs[InputMel].Shape(); !reflect.DeepEqual(got, []int64{1, 3, 5}) {
		t.Fatalf("mel input shape = %v", got)
	}

	if got := fake.inputs[InputF0].Shape(); !reflect.DeepEqual(got, []int64{1, 5}) {
		t.Fatalf("f0 input shape = %v", got)
	}

	v.Close()

	if !fake.closed {
		t.Fatal("Close did not reach the runner")
	}
}

func TestVocoderSynthesizeErrors(t *testing.T) {
	mel, f0 := parityInputs(t, 3, 5)

	if _, err := NewVocoder(&fakeRunner{hop: 1}, 4).Synthesize(context.Background(), mel, f0); err == nil {
		t.Fatal("expected mel channel mismatch")
	}

	if _, err := NewVocoder(&fakeRunner{hop: 1}, 3).Synthesize(context.Background(), mel, f0[:4]); err == nil {
		t.Fatal("expected frame mismatch")
	}

	boom := errors.New("boom")
	if _, err := NewVocoder(&fakeRunner{err: boom}, 3).Synthesize(context.Background(), mel, f0); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want runner error", err)
	}

	_, err := NewVocoder(&fakeRunner{hop: 1, output: "wave"}, 3).Synthesize(context.Background(), mel, f0)
	if err == nil || !strings.Contains(err.Error(), `"audio"`) {
		t.Fatalf("err = %v, want missing output", err)
	}
}

func TestCompare(t *testing.T) {
	tol := ops.Tolerance{Abs: 1e-3, Rel: 0}

	p, err := Compare([]float32{0, 0.5, -0.5}, []float32{0, 0.5005, -0.5}, tol)
	if err != nil {
		t.Fatal(err)
	}

	if !p.OK() || p.Samples != 3 || p.WorstIndex != 1 {
		t.Fatalf("parity = %+v", p)
	}

	if math.Abs(p.MaxAbsDiff-0.0005) > 1e-6 {
		t.Fatalf("max abs diff = %g", p.MaxAbsDiff)
	}

	p, err = Compare([]float32{0, 0.1, 0.3}, []float32{0, 0.2, 0.25}, tol)
	if err != nil {
		t.Fatal(err)
	}

	if p.OK() || p.Violations != 2 || p.WorstIndex != 1 {
		t.Fatalf("parity = %+v", p)
	}

	if _, err := Compare([]float32{0}, nil, tol); err == nil {
		t.Fatal("expected length mismatch")
	}
}
