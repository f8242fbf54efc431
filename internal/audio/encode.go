package audio

import (
	"fmt"
	"io"

	"github.com/cwbudde/wav"
	goaudio "github.com/go-audio/audio"
)

const (
	wavChannels  = 1
	wavFormatPCM = 1
)

// EncodeWAV encodes mono float32 samples in [-1, 1] as integer PCM WAV.
func EncodeWAV(samples []float32, sampleRate, bitDepth int) ([]byte, error) {
	if sampleRate < 1 {
		return nil, fmt.Errorf("%w: sample rate %d", ErrFormat, sampleRate)
	}

	if !supportedBitDepths[bitDepth] {
		return nil, fmt.Errorf("%w: bit depth %d (want 16, 24 or 32)", ErrFormat, bitDepth)
	}

	clamped := make([]float32, len(samples))
	for i, s := range samples {
		clamped[i] = max(-1, min(1, s))
	}

	// wav.NewEncoder seeks back to patch chunk sizes.
	out := &memFile{}
	enc := wav.NewEncoder(out, sampleRate, bitDepth, wavChannels, wavFormatPCM)

	pcmBuf := &goaudio.Float32Buffer{
		Data:           clamped,
		Format:         &goaudio.Format{SampleRate: sampleRate, NumChannels: wavChannels},
		SourceBitDepth: bitDepth,
	}

	if err := enc.Write(pcmBuf); err != nil {
		return nil, fmt.Errorf("audio: writing PCM: %w", err)
	}

	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("audio: closing encoder: %w", err)
	}

	return out.data, nil
}

// memFile is an in-memory io.WriteSeeker.
type memFile struct {
	data []byte
	off  int
}

func (m *memFile) Write(p []byte) (int, error) {
	if end := m.off + len(p); end > len(m.data) {
		m.data = append(m.data, make([]byte, end-len(m.data))...)
	}

	m.off += copy(m.data[m.off:], p)

	return len(p), nil
}

func (m *memFile) Seek(offset int64, whence int) (int64, error) {
	base := 0

	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		base = m.off
	case io.SeekEnd:
		base = len(m.data)
	default:
		return 0, fmt.Errorf("audio: invalid whence %d", whence)
	}

	pos := base + int(offset)
	if pos < 0 || pos > len(m.data) {
		return 0, fmt.Errorf("audio: seek to %d outside [0,%d]", pos, len(m.data))
	}

	m.off = pos

	return int64(pos), nil
}
