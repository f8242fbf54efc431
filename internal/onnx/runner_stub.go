//go:build windows || (js && wasm)

package onnx

import (
	"context"
	"fmt"
	"runtime"
)

// Runner is unavailable on this platform. On js/wasm, wrap a custom
// GraphRunner such as a JS bridge with NewVocoder instead.
type Runner struct {
	meta Session
}

func NewRunner(meta Session, _ RunnerConfig) (*Runner, error) {
	return nil, errUnavailable(meta)
}

func (r *Runner) Run(_ context.Context, _ map[string]*Tensor) (map[string]*Tensor, error) {
	return nil, errUnavailable(r.meta)
}

func (r *Runner) Close() {}

func errUnavailable(meta Session) error {
	return fmt.Errorf("onnx: native runner is unavailable on %s/%s for graph %q", runtime.GOOS, runtime.GOARCH, meta.Name)
}
