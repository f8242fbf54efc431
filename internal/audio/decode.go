package audio

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/cwbudde/wav"
)

// DecodeWAV decodes PCM WAV bytes of any rate, channel count and bit depth.
// Multi-channel audio is averaged to mono.
func DecodeWAV(data []byte) (Clip, error) {
	if len(data) == 0 {
		return Clip{}, errors.New("audio: empty WAV input")
	}

	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return Clip{}, fmt.Errorf("%w: invalid WAV file", ErrFormat)
	}

	channels := int(dec.NumChans)
	if channels < 1 {
		return Clip{}, fmt.Errorf("%w: %d channels", ErrFormat, channels)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return Clip{}, fmt.Errorf("audio: reading PCM data: %w", err)
	}

	clip := Clip{
		SampleRate: int(dec.SampleRate),
		Channels:   channels,
		BitDepth:   int(dec.BitDepth),
	}

	if channels == 1 {
		clip.Samples = buf.Data
		return clip, nil
	}

	frames := len(buf.Data) / channels
	clip.Samples = make([]float32, frames)
	scale := 1 / float32(channels)

	for i := range frames {
		var sum float32
		for _, v := range buf.Data[i*channels : (i+1)*channels] {
			sum += v
		}

		clip.Samples[i] = sum * scale
	}

	return clip, nil
}
