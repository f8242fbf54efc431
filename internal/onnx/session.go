package onnx

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// Node names of the exported vocoder graph.
const (
	InputMel    = "mel"
	InputF0     = "f0"
	OutputAudio = "audio"

	vocoderGraph = "pc_nsf_hifigan"
)

type NodeInfo struct {
	Name  string `json:"name"`
	DType string `json:"dtype"`
	Shape []any  `json:"shape"`
}

type Session struct {
	Name string
	Path string

	Inputs  []NodeInfo
	Outputs []NodeInfo
}

// VocoderSession describes the exported generator at path:
// mel [batch, num_mels, frames], f0 [batch, frames] -> audio [batch, 1, samples].
func VocoderSession(path string, numMels int) Session {
	return Session{
		Name: vocoderGraph,
		Path: filepath.Clean(path),
		Inputs: []NodeInfo{
			{Name: InputMel, DType: "float", Shape: []any{"batch", float64(numMels), "frames"}},
			{Name: InputF0, DType: "float", Shape: []any{"batch", "frames"}},
		},
		Outputs: []NodeInfo{
			{Name: OutputAudio, DType: "float", Shape: []any{"batch", 1.0, "samples"}},
		},
	}
}

// ResolveVocoderSession accepts either an exported graph or a JSON manifest
// that lists one named pc_nsf_hifigan. A manifest entry without declared
// nodes gets the standard generator nodes.
func ResolveVocoderSession(path string, numMels int) (Session, error) {
	if !strings.EqualFold(filepath.Ext(path), ".json") {
		return VocoderSession(path, numMels), nil
	}

	sessions, err := LoadManifest(path)
	if err != nil {
		return Session{}, err
	}

	s, ok := FindSession(sessions, vocoderGraph)
	if !ok {
		return Session{}, fmt.Errorf("onnx: manifest %s has no %q graph", path, vocoderGraph)
	}

	std := VocoderSession(s.Path, numMels)
	if len(s.Inputs) == 0 {
		s.Inputs = std.Inputs
	}

	if len(s.Outputs) == 0 {
		s.Outputs = std.Outputs
	}

	return s, nil
}

// CheckInputs verifies that inputs holds exactly the declared input nodes
// with their declared rank and static dimensions. Named dimensions are
// dynamic. A session without declared inputs accepts anything.
func (s Session) CheckInputs(inputs map[string]*Tensor) error {
	if len(s.Inputs) == 0 {
		return nil
	}

	for _, node := range s.Inputs {
		t, ok := inputs[node.Name]
		if !ok || t == nil {
			return fmt.Errorf("onnx: %s: missing input %q", s.Name, node.Name)
		}

		if err := node.checkShape(t.shape); err != nil {
			return fmt.Errorf("onnx: %s: input %q: %w", s.Name, node.Name, err)
		}
	}

	if len(inputs) != len(s.Inputs) {
		return fmt.Errorf("onnx: %s: got inputs %v, graph declares %s", s.Name, slices.Sorted(maps.Keys(inputs)), nodeNames(s.Inputs))
	}

	return nil
}

func (n NodeInfo) checkShape(shape []int64) error {
	if len(n.Shape) == 0 {
		return nil
	}

	if len(shape) != len(n.Shape) {
		return fmt.Errorf("rank %d, want %d %v", len(shape), len(n.Shape), n.Shape)
	}

	for i, d := range n.Shape {
		if want, ok := d.(float64); ok && int64(want) != shape[i] {
			return fmt.Errorf("dim %d is %d, want %d", i, shape[i], int64(want))
		}
	}

	return nil
}

type onnxManifest struct {
	Graphs []onnxGraph `json:"graphs"`
}

type onnxGraph struct {
	Name     string     `json:"name"`
	Filename string     `json:"filename"`
	Inputs   []NodeInfo `json:"inputs"`
	Outputs  []NodeInfo `json:"outputs"`
}

// LoadManifest reads a JSON manifest written next to exported graphs and
// returns its sessions in file order. Relative filenames resolve against the
// manifest directory.
func LoadManifest(manifestPath string) ([]Session, error) {
	if manifestPath == "" {
		return nil, errors.New("manifest path is required")
	}

	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("read ONNX manifest: %w", err)
	}

	var manifest onnxManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("decode ONNX manifest: %w", err)
	}

	if len(manifest.Graphs) == 0 {
		return nil, errors.New("ONNX manifest has no graphs")
	}

	baseDir := filepath.Dir(manifestPath)
	seen := make(map[string]bool, len(manifest.Graphs))
	sessions := make([]Session, 0, len(manifest.Graphs))

	for _, g := range manifest.Graphs {
		if g.Name == "" {
			return nil, errors.New("manifest graph has empty name")
		}

		if g.Filename == "" {
			return nil, fmt.Errorf("manifest graph %q has empty filename", g.Name)
		}

		if seen[g.Name] {
			return nil, fmt.Errorf("duplicate session name %q in manifest", g.Name)
		}

		seen[g.Name] = true

		sessionPath := g.Filename
		if !filepath.IsAbs(sessionPath) {
			sessionPath = filepath.Join(baseDir, g.Filename)
		}

		sessionPath = filepath.Clean(sessionPath)
		if _, err := os.Stat(sessionPath); err != nil {
			return nil, fmt.Errorf("session file for %q: %w", g.Name, err)
		}

		sessions = append(sessions, Session{
			Name:    g.Name,
			Path:    sessionPath,
			Inputs:  append([]NodeInfo(nil), g.Inputs...),
			Outputs: append([]NodeInfo(nil), g.Outputs...),
		})

		slog.Info(
			"loaded ONNX session",
			"name", g.Name,
			"path", sessionPath,
			"inputs", nodeNames(g.Inputs),
			"outputs", nodeNames(g.Outputs),
		)
	}

	return sessions, nil
}

// FindSession returns the session called name.
func FindSession(sessions []Session, name string) (Session, bool) {
	for _, s := range sessions {
		if s.Name == name {
			return s, true
		}
	}

	return Session{}, false
}

func nodeNames(nodes []NodeInfo) string {
	if len(nodes) == 0 {
		return ""
	}

	names := make([]string, 0, len(nodes))
	for _, n := range nodes {
		names = append(names, n.Name)
	}

	return strings.Join(names, ",")
}
