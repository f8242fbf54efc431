package testutil_test

import (
	"path/filepath"
	"testing"

	"github.com/example/go-nsf-vocoder/internal/audio"
	"github.com/example/go-nsf-vocoder/internal/testutil"
)

func TestRequireONNXRuntime_SkipsWhenAbsent(t *testing.T) {
	t.Setenv("NSFVOCODER_ORT_LIB", "/nonexistent/libonnxruntime.so")

	skipped := false
	fakeT := &skipTracker{TB: t, onSkip: func() { skipped = true }}

	if got := testutil.RequireONNXRuntime(fakeT); got != "" {
		t.Errorf("path = %q, want empty", got)
	}

	if !skipped {
		t.Error("expected RequireONNXRuntime to skip when library is absent")
	}
}

func TestRequireFile(t *testing.T) {
	skipped := false
	fakeT := &skipTracker{TB: t, onSkip: func() { skipped = true }}

	t.Setenv("NSFVOCODER_TEST_FILE", "")
	testutil.RequireFile(fakeT, "NSFVOCODER_TEST_FILE", filepath.Join(t.TempDir(), "missing.onnx"))

	if !skipped {
		t.Error("expected RequireFile to skip for a missing file")
	}

	path := filepath.Join(t.TempDir(), "model.onnx")
	if err := audio.WriteWAV(path, []float32{0}, 8000, 16); err != nil {
		t.Fatalf("write: %v", err)
	}

	t.Setenv("NSFVOCODER_TEST_FILE", path)

	if got := testutil.RequireFile(t, "NSFVOCODER_TEST_FILE", "unused"); got != path {
		t.Errorf("path = %q, want %q", got, path)
	}
}

func TestAssertValidWAV(t *testing.T) {
	data, err := audio.EncodeWAV(make([]float32, 100), 44100, 16)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	if n := testutil.AssertValidWAV(t, data, 44100, 16); n != 100 {
		t.Errorf("samples = %d, want 100", n)
	}
}

// skipTracker is a minimal testing.TB implementation that intercepts Skip calls.
type skipTracker struct {
	testing.TB
	onSkip func()
}

func (s *skipTracker) Helper() {}

func (s *skipTracker) Skipf(_ string, _ ...any) {
	s.onSkip()
	// Do NOT call s.TB.Skip: that would actually skip the outer test.
}
