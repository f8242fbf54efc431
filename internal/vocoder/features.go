package vocoder

import (
	"context"
	"fmt"
	"os"

	"github.com/example/go-nsf-vocoder/internal/nsf"
	"github.com/example/go-nsf-vocoder/internal/runtime/tensor"
	"github.com/example/go-nsf-vocoder/internal/safetensors"
)

// Tensor names of a feature file.
const (
	FeatureMel = "mel"
	FeatureF0  = "f0"
)

// Features is one vocoder input: a log-mel spectrogram and its F0 contour.
type Features struct {
	// Mel is [num_mels, frames].
	Mel *tensor.Tensor
	F0  []float32
}

func (f Features) Frames() int {
	if f.Mel == nil {
		return 0
	}

	return int(f.Mel.Dim(1))
}

// DecodeFeatures parses a safetensors feature file holding "mel"
// ([num_mels, T] or [1, num_mels, T]) and "f0" ([T] or [1, T]).
func DecodeFeatures(data []byte) (Features, error) {
	store, err := safetensors.OpenStoreFromBytes(data, safetensors.StoreOptions{})
	if err != nil {
		return Features{}, fmt.Errorf("vocoder: decode features: %w", err)
	}
	defer store.Close()

	mel, err := store.Tensor(FeatureMel)
	if err != nil {
		return Features{}, fmt.Errorf("%w: %v", nsf.ErrInputShape, err)
	}

	f0, err := store.Tensor(FeatureF0)
	if err != nil {
		return Features{}, fmt.Errorf("%w: %v", nsf.ErrInputShape, err)
	}

	melShape := mel.Shape
	if len(melShape) == 3 && melShape[0] == 1 {
		melShape = melShape[1:]
	}

	if len(melShape) != 2 {
		return Features{}, fmt.Errorf("%w: mel shape %v", nsf.ErrInputShape, mel.Shape)
	}

	if len(f0.Data) != int(melShape[1]) {
		return Features{}, fmt.Errorf("%w: %d f0 values for %d mel frames", nsf.ErrInputShape, len(f0.Data), melShape[1])
	}

	melT, err := tensor.FromOwned(mel.Data, melShape)
	if err != nil {
		return Features{}, err
	}

	return Features{Mel: melT, F0: f0.Data}, nil
}

// ReadFeatures loads a feature file from disk.
func ReadFeatures(path string) (Features, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Features{}, fmt.Errorf("vocoder: read features: %w", err)
	}

	return DecodeFeatures(data)
}

// EncodeFeatures serializes features with optional metadata such as the
// sample rate they were extracted at.
func EncodeFeatures(f Features, metadata map[string]string) ([]byte, error) {
	if f.Mel == nil {
		return nil, fmt.Errorf("%w: mel is required", nsf.ErrInputShape)
	}

	return safetensors.Encode([]safetensors.Tensor{
		{Name: FeatureMel, Shape: f.Mel.Shape(), Data: f.Mel.RawData()},
		{Name: FeatureF0, Shape: []int64{int64(len(f.F0))}, Data: f.F0},
	}, metadata)
}

// WriteFeatures writes features to path.
func WriteFeatures(path string, f Features, metadata map[string]string) error {
	data, err := EncodeFeatures(f, metadata)
	if err != nil {
		return err
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("vocoder: write features: %w", err)
	}

	return nil
}

// SynthesizeFeatures is Synthesize over decoded features.
func (s *Synthesizer) SynthesizeFeatures(ctx context.Context, f Features) ([]float32, error) {
	return s.Synthesize(ctx, f.Mel, f.F0)
}
