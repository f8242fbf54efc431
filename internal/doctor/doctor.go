// Package doctor provides environment preflight checks for nsfvocoder.
package doctor

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// PassMark and FailMark are the prefix symbols printed for each check result.
const (
	PassMark = "✓"
	FailMark = "✗"
)

// ProbeFunc returns a short description of a component or an error if it
// is unusable.
type ProbeFunc func() (string, error)

// Config holds injectable dependencies for each doctor check.
type Config struct {
	// ModelPath and ModelConfigPath must exist on disk.
	ModelPath       string
	ModelConfigPath string
	// BuildGenerator loads and builds the generator, returning a summary
	// such as "mini, 5 stages". Nil skips the build check.
	BuildGenerator ProbeFunc
	// ONNXPath is optional; an empty path skips the graph and runtime checks.
	ONNXPath string
	// ORTVersion returns the detected ONNX Runtime version (e.g. "1.23.2").
	ORTVersion ProbeFunc
	// APIVersion is the C API version the runner requests. ORT 1.N serves
	// API versions up to N.
	APIVersion uint32
}

// Result collects the outcome of all checks.
type Result struct {
	failures []string
}

// Failed returns true if any check failed.
func (r *Result) Failed() bool { return len(r.failures) > 0 }

// Failures returns the list of failure messages.
func (r *Result) Failures() []string { return append([]string(nil), r.failures...) }

// AddFailure appends an external failure message to the result.
func (r *Result) AddFailure(msg string) { r.failures = append(r.failures, msg) }

func (r *Result) fail(msg string) { r.failures = append(r.failures, msg) }

// Run executes all configured checks and writes human-readable output to w.
// Each check line is prefixed with PassMark or FailMark.
func Run(cfg Config, w io.Writer) Result {
	var res Result

	// ---- model files ------------------------------------------------------
	filesOK := true

	for _, f := range []struct{ label, path string }{
		{"model checkpoint", cfg.ModelPath},
		{"model config", cfg.ModelConfigPath},
	} {
		if err := checkFile(f.path); err != nil {
			filesOK = false

			res.fail(fmt.Sprintf("%s %q: %v", f.label, f.path, err))
			fmt.Fprintf(w, "%s %s %s: %v\n", FailMark, f.label, f.path, err)
		} else {
			fmt.Fprintf(w, "%s %s: %s\n", PassMark, f.label, f.path)
		}
	}

	// ---- generator build --------------------------------------------------
	switch {
	case cfg.BuildGenerator == nil:
		fmt.Fprintf(w, "%s generator build: skipped\n", PassMark)
	case !filesOK:
		fmt.Fprintf(w, "%s generator build: skipped (model files missing)\n", FailMark)
	default:
		summary, err := cfg.BuildGenerator()
		if err != nil {
			res.fail(fmt.Sprintf("generator build: %v", err))
			fmt.Fprintf(w, "%s generator build: %v\n", FailMark, err)
		} else {
			fmt.Fprintf(w, "%s generator build: %s\n", PassMark, summary)
		}
	}

	// ---- ONNX graph and runtime -------------------------------------------
	if cfg.ONNXPath == "" {
		fmt.Fprintf(w, "%s onnx graph: skipped\n", PassMark)
		return res
	}

	if err := checkFile(cfg.ONNXPath); err != nil {
		res.fail(fmt.Sprintf("onnx graph %q: %v", cfg.ONNXPath, err))
		fmt.Fprintf(w, "%s onnx graph %s: %v\n", FailMark, cfg.ONNXPath, err)
	} else {
		fmt.Fprintf(w, "%s onnx graph: %s\n", PassMark, cfg.ONNXPath)
	}

	if cfg.ORTVersion == nil {
		fmt.Fprintf(w, "%s onnx runtime: skipped\n", PassMark)
		return res
	}

	ver, err := cfg.ORTVersion()
	switch {
	case err != nil:
		res.fail(fmt.Sprintf("onnx runtime: %v", err))
		fmt.Fprintf(w, "%s onnx runtime: not found (%v)\n", FailMark, err)
	case ver == "" || ver == "unknown":
		fmt.Fprintf(w, "%s onnx runtime: version unknown, api %d not checked\n", PassMark, cfg.APIVersion)
	default:
		if verErr := checkORTVersion(ver, cfg.APIVersion); verErr != nil {
			res.fail(fmt.Sprintf("onnx runtime: %v", verErr))
			fmt.Fprintf(w, "%s onnx runtime %s: %v\n", FailMark, ver, verErr)
		} else {
			fmt.Fprintf(w, "%s onnx runtime: %s\n", PassMark, ver)
		}
	}

	return res
}

func checkFile(path string) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("path is not configured")
	}

	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	if info.IsDir() {
		return fmt.Errorf("is a directory")
	}

	if info.Size() == 0 {
		return fmt.Errorf("file is empty")
	}

	return nil
}

// checkORTVersion returns an error if ver cannot serve the requested C API
// version. ver is expected to be a string like "1.23.2".
func checkORTVersion(ver string, apiVersion uint32) error {
	major, minor, err := parseMajorMinor(ver)
	if err != nil {
		return fmt.Errorf("cannot parse %q: %w", ver, err)
	}

	if major != 1 {
		return fmt.Errorf("requires ONNX Runtime 1.x, got %d", major)
	}

	if apiVersion > 0 && uint32(minor) < apiVersion {
		return fmt.Errorf("api version %d requires ONNX Runtime >=1.%d, got 1.%d", apiVersion, apiVersion, minor)
	}

	return nil
}

func parseMajorMinor(ver string) (major, minor int, err error) {
	parts := strings.SplitN(ver, ".", 3)
	if len(parts) < 2 {
		return 0, 0, fmt.Errorf("unexpected version format %q", ver)
	}

	major, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("bad major in %q: %w", ver, err)
	}

	minor, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("bad minor in %q: %w", ver, err)
	}

	if minor < 0 {
		return 0, 0, fmt.Errorf("bad minor in %q", ver)
	}

	return major, minor, nil
}
