// Package testutil provides shared skip helpers and WAV assertions for tests.
//
// Each Require helper calls Skipf with a human-readable reason when the named
// prerequisite is absent, so integration tests stay runnable in partial
// environments without failing noisily.
//
// Typical usage:
//
//	func TestParity(t *testing.T) {
//	    lib := testutil.RequireONNXRuntime(t)
//	    model := testutil.RequireFile(t, "NSFVOCODER_ONNX", "models/pc_nsf_hifigan.onnx")
//	    ...
//	}
package testutil

import (
	"os"
	"testing"
)

var ortCandidates = []string{
	"/usr/lib/libonnxruntime.so",
	"/usr/local/lib/libonnxruntime.so",
	"/usr/lib/x86_64-linux-gnu/libonnxruntime.so",
	"/opt/homebrew/lib/libonnxruntime.dylib",
}

// RequireONNXRuntime returns the ONNX Runtime shared library path, or skips
// the test if none can be located. It checks NSFVOCODER_ORT_LIB, then
// ORT_LIBRARY_PATH, then common system library paths.
func RequireONNXRuntime(tb testing.TB) string {
	tb.Helper()

	for _, env := range []string{"NSFVOCODER_ORT_LIB", "ORT_LIBRARY_PATH"} {
		if p := os.Getenv(env); p != "" {
			// #nosec G703 -- Integration tests intentionally accept explicit env-provided local library paths.
			if _, err := os.Stat(p); err == nil {
				return p
			}

			tb.Skipf("ONNX Runtime library not found at %s=%q", env, p)

			return ""
		}
	}

	for _, p := range ortCandidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	tb.Skipf("ONNX Runtime shared library not found; set NSFVOCODER_ORT_LIB or ORT_LIBRARY_PATH")

	return ""
}

// RequireFile returns the path named by env, or fallback when env is unset,
// and skips the test if that file does not exist.
func RequireFile(tb testing.TB, env, fallback string) string {
	tb.Helper()

	path := os.Getenv(env)
	if path == "" {
		path = fallback
	}

	if _, err := os.Stat(path); err != nil {
		tb.Skipf("%s not available (%q); set %s to override", fallback, path, env)
		return ""
	}

	return path
}
