package onnx

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadManifest(t *testing.T) {
	tmp := t.TempDir()

	if err := os.WriteFile(filepath.Join(tmp, "pc_nsf_hifigan.onnx"), []byte("fake"), 0o644); err != nil {
		t.Fatalf("write fake onnx file: %v", err)
	}

	manifest := `{
  "graphs": [
    {
      "name": "pc_nsf_hifigan",
      "filename": "pc_nsf_hifigan.onnx",
      "inputs": [
        {"name":"mel","dtype":"float","shape":["batch",128,"frames"]},
        {"name":"f0","dtype":"float","shape":["batch","frames"]}
      ],
      "outputs": [{"name":"audio","dtype":"float","shape":["batch",1,"samples"]}]
    }
  ]
}`

	manifestPath := filepath.Join(tmp, "manifest.json")
	if err := os.WriteFile(manifestPath, []byte(manifest), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}

	sessions, err := LoadManifest(manifestPath)
	if err != nil {
		t.Fatalf("LoadManifest failed: %v", err)
	}

	s, ok := FindSession(sessions, "pc_nsf_hifigan")
	if !ok {
		t.Fatal("expected pc_nsf_hifigan session")
	}

	if s.Path != filepath.Join(tmp, "pc_nsf_hifigan.onnx") {
		t.Fatalf("unexpected session path: %s", s.Path)
	}

	if nodeNames(s.Inputs) != "mel,f0" || nodeNames(s.Outputs) != "audio" {
		t.Fatalf("unexpected nodes: %+v -> %+v", s.Inputs, s.Outputs)
	}

	if _, ok := FindSession(sessions, "other"); ok {
		t.Fatal("unexpected session")
	}
}

func TestLoadManifestErrors(t *testing.T) {
	tests := []struct {
		name     string
		manifest string
		want     string
	}{
		{"no graphs", `{"graphs": []}`, "no graphs"},
		{"missing file", `{"graphs": [{"name": "v", "filename": "missing.onnx"}]}`, "session file"},
		{"empty name", `{"graphs": [{"name": "", "filename": "x.onnx"}]}`, "empty name"},
		{"bad json", `{`, "decode ONNX manifest"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "manifest.json")
			if err := os.WriteFile(path, []byte(tt.manifest), 0o644); err != nil {
				t.Fatalf("write manifest: %v", err)
			}

			_, err := LoadManifest(path)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error = %v, want substring %q", err, tt.want)
			}
		})
	}
}

func TestVocoderSessionNodes(t *testing.T) {
	s := VocoderSession("models/./pc_nsf_hifigan.onnx", 128)

	if s.Path != filepath.Join("models", "pc_nsf_hifigan.onnx") {
		t.Fatalf("path = %q", s.Path)
	}

	if nodeNames(s.Inputs) != "mel,f0" || nodeNames(s.Outputs) != "audio" {
		t.Fatalf("unexpected nodes: %+v -> %+v", s.Inputs, s.Outputs)
	}

	if s.Inputs[0].Shape[1] != 128.0 {
		t.Fatalf("mel channels = %v", s.Inputs[0].Shape[1])
	}
}

func mustTensor(t *testing.T, shape ...int64) *Tensor {
	t.Helper()

	n := int64(1)
	for _, d := range shape {
		n *= d
	}

	tt, err := NewTensor(make([]float32, n), shape)
	if err != nil {
		t.Fatalf("NewTensor: %v", err)
	}

	return tt
}

func TestSessionCheckInputs(t *testing.T) {
	s := VocoderSession("g.onnx", 4)

	tests := []struct {
		name   string
		inputs map[string]*Tensor
		want   string
	}{
		{"ok", map[string]*Tensor{InputMel: mustTensor(t, 1, 4, 7), InputF0: mustTensor(t, 1, 7)}, ""},
		{"dynamic batch", map[string]*Tensor{InputMel: mustTensor(t, 2, 4, 3), InputF0: mustTensor(t, 2, 3)}, ""},
		{"missing f0", map[string]*Tensor{InputMel: mustTensor(t, 1, 4, 7)}, `missing input "f0"`},
		{"wrong mel bins", map[string]*Tensor{InputMel: mustTensor(t, 1, 5, 7), InputF0: mustTensor(t, 1, 7)}, "dim 1 is 5, want 4"},
		{"wrong rank", map[string]*Tensor{InputMel: mustTensor(t, 4, 7), InputF0: mustTensor(t, 1, 7)}, "rank 2, want 3"},
		{"extra input", map[string]*Tensor{
			InputMel: mustTensor(t, 1, 4, 7), InputF0: mustTensor(t, 1, 7), "uv": mustTensor(t, 1, 7),
		}, "graph declares mel,f0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.CheckInputs(tt.inputs)
			if tt.want == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}

				return
			}

			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error = %v, want substring %q", err, tt.want)
			}
		})
	}

	if err := (Session{Name: "any"}).CheckInputs(nil); err != nil {
		t.Fatalf("undeclared session should accept anything: %v", err)
	}
}

func TestResolveVocoderSession(t *testing.T) {
	s, err := ResolveVocoderSession("models/pc_nsf_hifigan.onnx", 128)
	if err != nil {
		t.Fatalf("graph path: %v", err)
	}

	if s.Name != "pc_nsf_hifigan" || len(s.Inputs) != 2 {
		t.Fatalf("unexpected session: %+v", s)
	}

	tmp := t.TempDir()
	if err := os.WriteFile(filepath.Join(tmp, "g.onnx"), []byte("fake"), 0o644); err != nil {
		t.Fatal(err)
	}

	manifest := filepath.Join(tmp, "manifest.json")
	if err := os.WriteFile(manifest, []byte(`{"graphs": [{"name": "pc_nsf_hifigan", "filename": "g.onnx"}]}`), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err = ResolveVocoderSession(manifest, 64)
	if err != nil {
		t.Fatalf("manifest: %v", err)
	}

	if s.Path != filepath.Join(tmp, "g.onnx") {
		t.Fatalf("path = %q", s.Path)
	}

	if len(s.Inputs) != 2 || s.Inputs[0].Shape[1] != 64.0 {
		t.Fatalf("manifest session should get the standard nodes: %+v", s.Inputs)
	}

	other := filepath.Join(tmp, "other.json")
	if err := os.WriteFile(other, []byte(`{"graphs": [{"name": "decoder", "filename": "g.onnx"}]}`), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := ResolveVocoderSession(other, 64); err == nil || !strings.Contains(err.Error(), "has no") {
		t.Fatalf("err = %v, want missing graph", err)
	}
}
