//go:build !windows && !(js && wasm)

package onnx

import (
	"context"
	"fmt"
	"log/slog"

	ort "github.com/shota3506/onnxruntime-purego/onnxruntime"
)

// Runner executes one ONNX graph on ONNX Runtime. Inputs are checked against
// the session's declared nodes before every run.
type Runner struct {
	meta    Session
	runtime *ort.Runtime
	env     *ort.Env
	session *ort.Session
}

func NewRunner(meta Session, cfg RunnerConfig) (*Runner, error) {
	api := cfg.APIVersion
	if api == 0 {
		api = defaultAPIVersion
	}

	r := &Runner{meta: meta}

	var err error
	if r.runtime, err = ort.NewRuntime(cfg.LibraryPath, api); err != nil {
		return nil, fmt.Errorf("onnx: load runtime %s (api %d): %w", cfg.LibraryPath, api, err)
	}

	if r.env, err = r.runtime.NewEnv("nsfvocoder-"+meta.Name, ort.LoggingLevelWarning); err != nil {
		r.Close()
		return nil, fmt.Errorf("onnx: create env for %s: %w", meta.Name, err)
	}

	if r.session, err = r.runtime.NewSession(r.env, meta.Path, nil); err != nil {
		r.Close()
		return nil, fmt.Errorf("onnx: open %s: %w", meta.Path, err)
	}

	slog.Debug("opened onnx session", "graph", meta.Name, "path", meta.Path, "api", api)

	return r, nil
}

func (r *Runner) Run(ctx context.Context, inputs map[string]*Tensor) (map[string]*Tensor, error) {
	if r.session == nil {
		return nil, fmt.Errorf("onnx: %s: runner is closed", r.meta.Name)
	}

	if err := r.meta.CheckInputs(inputs); err != nil {
		return nil, err
	}

	values := make(map[string]*ort.Value, len(inputs))
	defer closeValues(values)

	for name, t := range inputs {
		v, err := ort.NewTensorValue(r.runtime, t.data, t.shape)
		if err != nil {
			return nil, fmt.Errorf("onnx: %s: input %q: %w", r.meta.Name, name, err)
		}

		values[name] = v
	}

	outputs, err := r.session.Run(ctx, values)
	if err != nil {
		return nil, fmt.Errorf("onnx: run %s: %w", r.meta.Name, err)
	}
	defer closeValues(outputs)

	results := make(map[string]*Tensor, len(outputs))
	for name, v := range outputs {
		t, err := floatOutput(v)
		if err != nil {
			return nil, fmt.Errorf("onnx: %s: output %q: %w", r.meta.Name, name, err)
		}

		results[name] = t
	}

	return results, nil
}

// Close releases all ORT resources. Safe to call multiple times.
func (r *Runner) Close() {
	if r.session != nil {
		r.session.Close()
		r.session = nil
	}

	if r.env != nil {
		r.env.Close()
		r.env = nil
	}

	if r.runtime != nil {
		_ = r.runtime.Close()
		r.runtime = nil
	}
}

func floatOutput(v *ort.Value) (*Tensor, error) {
	elemType, err := v.GetTensorElementType()
	if err != nil {
		return nil, fmt.Errorf("element type: %w", err)
	}

	if elemType != ort.ONNXTensorElementDataTypeFloat {
		return nil, fmt.Errorf("element type %d is not float32", elemType)
	}

	data, shape, err := ort.GetTensorData[float32](v)
	if err != nil {
		return nil, err
	}

	return NewTensor(data, shape)
}

func closeValues(vals map[string]*ort.Value) {
	for _, v := range vals {
		if v != nil {
			v.Close()
		}
	}
}
