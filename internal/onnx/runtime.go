package onnx

import (
	"cmp"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"sync"

	"github.com/example/go-nsf-vocoder/internal/config"
)

// defaultAPIVersion targets ONNX Runtime 1.23.
const defaultAPIVersion = 23

// EnvORTLib names the process-local ORT library override.
const EnvORTLib = "NSFVOCODER_ORT_LIB"

type RuntimeInfo struct {
	LibraryPath string
	Version     string
	APIVersion  uint32
}

// RunnerConfig holds ORT library settings for creating runners.
type RunnerConfig struct {
	LibraryPath string
	APIVersion  uint32
}

// RunnerConfig returns the runner settings for a detected runtime.
func (i RuntimeInfo) RunnerConfig() RunnerConfig {
	return RunnerConfig{LibraryPath: i.LibraryPath, APIVersion: i.APIVersion}
}

var versionPattern = regexp.MustCompile(`([0-9]+\.[0-9]+\.[0-9]+)`)

// libraryCandidates are probed when neither config nor environment name a
// library.
var libraryCandidates = map[string][]string{
	"linux":   {"/usr/lib/libonnxruntime.so", "/usr/local/lib/libonnxruntime.so"},
	"darwin":  {"/opt/homebrew/lib/libonnxruntime.dylib", "/usr/local/lib/libonnxruntime.dylib"},
	"windows": {"C:/onnxruntime/lib/onnxruntime.dll"},
}

var (
	bootstrapOnce sync.Once
	bootstrapInfo RuntimeInfo
	errBootstrap  error
)

// Bootstrap resolves the ORT runtime once per process and exports its path
// through NSFVOCODER_ORT_LIB. Later calls return the first result.
func Bootstrap(cfg config.RuntimeConfig) (RuntimeInfo, error) {
	bootstrapOnce.Do(func() {
		info, err := DetectRuntime(cfg)
		if err == nil {
			err = os.Setenv(EnvORTLib, info.LibraryPath)
		}

		if err != nil {
			errBootstrap = err
			return
		}

		bootstrapInfo = info
	})

	return bootstrapInfo, errBootstrap
}

// DetectRuntime locates the shared library in order: config, NSFVOCODER_ORT_LIB,
// ORT_LIBRARY_PATH, then well-known install paths. The version comes from
// config, ORT_VERSION or the library file name.
func DetectRuntime(cfg config.RuntimeConfig) (RuntimeInfo, error) {
	path := cmp.Or(cfg.ORTLibraryPath, os.Getenv(EnvORTLib), os.Getenv("ORT_LIBRARY_PATH"), probeCandidates())
	if path == "" {
		return RuntimeInfo{LibraryPath: "not found", Version: "unknown"}, errors.New("unable to detect ONNX Runtime library path")
	}

	if _, err := os.Stat(path); err != nil {
		return RuntimeInfo{LibraryPath: path, Version: "unknown"}, fmt.Errorf("onnx runtime library path check failed: %w", err)
	}

	return RuntimeInfo{
		LibraryPath: path,
		Version:     cmp.Or(cfg.ORTVersion, os.Getenv("ORT_VERSION"), versionFromName(path), "unknown"),
		APIVersion:  cmp.Or(cfg.ORTAPIVersion, defaultAPIVersion),
	}, nil
}

func probeCandidates() string {
	for _, c := range libraryCandidates[runtime.GOOS] {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}

	return ""
}

func versionFromName(path string) string {
	if m := versionPattern.FindStringSubmatch(filepath.Base(path)); m != nil {
		return m[1]
	}

	return ""
}
