package server_test

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/example/go-nsf-vocoder/internal/nsf"
	"github.com/example/go-nsf-vocoder/internal/runtime/tensor"
	"github.com/example/go-nsf-vocoder/internal/vocoder"
)

const (
	testRate = 8000
	testHop  = 8
	testMels = 4
)

var testInfo = nsf.Info{
	Variant:    nsf.VariantMini,
	SampleRate: testRate,
	HopSize:    testHop,
	NumMels:    testMels,
	SourceRate: testRate,
	Upsampling: 8,
	Stages: []nsf.StageInfo{
		{Index: 0, Rate: 8, Kernel: 16, InChannels: 16, OutChannels: 8, Resblocks: 2},
	},
}

// featureBody encodes a constant-F0 feature file of the given length.
func featureBody(t *testing.T, frames int) []byte {
	t.Helper()

	mel, err := tensor.Full([]int64{testMels, int64(frames)}, -4)
	require.NoError(t, err)

	f0 := make([]float32, frames)
	for i := range f0 {
		f0[i] = 220
	}

	data, err := vocoder.EncodeFeatures(vocoder.Features{Mel: mel, F0: f0}, nil)
	require.NoError(t, err)

	return data
}

func postVocode(t *testing.T, h http.Handler, target string, body []byte) *httptest.ResponseRecorder {
	t.Helper()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, target, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/octet-stream")
	h.ServeHTTP(rec, req)

	return rec
}

// stubSynthesizer returns a hop-per-frame ramp or a fixed error.
type stubSynthesizer struct {
	err error
}

func (s *stubSynthesizer) SynthesizeFeatures(_ context.Context, f vocoder.Features) ([]float32, error) {
	if s.err != nil {
		return nil, s.err
	}

	out := make([]float32, f.Frames()*testHop)
	for i := range out {
		out[i] = float32(i%testHop) / testHop
	}

	return out, nil
}

// blockingSynthesizer blocks until its context is cancelled.
type blockingSynthesizer struct{}

func (blockingSynthesizer) SynthesizeFeatures(ctx context.Context, _ vocoder.Features) ([]float32, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

// countingSynthesizer calls onEnter/onExit around a wait on release.
type countingSynthesizer struct {
	onEnter func()
	onExit  func()
	release <-chan struct{}
}

func (c *countingSynthesizer) SynthesizeFeatures(ctx context.Context, f vocoder.Features) ([]float32, error) {
	c.onEnter()
	defer c.onExit()

	select {
	case <-c.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	return make([]float32, f.Frames()*testHop), nil
}

// capturingHandler captures all slog records during a test.
type capturingHandler struct {
	mu      sync.Mutex
	records []slog.Record
}

func (c *capturingHandler) Enabled(_ context.Context, _ slog.Level) bool { return true }

func (c *capturingHandler) Handle(_ context.Context, r slog.Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.records = append(c.records, r)

	return nil
}

func (c *capturingHandler) WithAttrs(_ []slog.Attr) slog.Handler { return c }
func (c *capturingHandler) WithGroup(_ string) slog.Handler      { return c }

func (c *capturingHandler) attrMap(idx int) map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()

	m := make(map[string]any)
	c.records[idx].Attrs(func(a slog.Attr) bool {
		m[a.Key] = a.Value.Any()
		return true
	})

	return m
}
