package vocoder

// chunk is one synthesis window. Frames [start, end) are the core the chunk
// is responsible for; [winStart, winEnd) adds context on both sides.
type chunk struct {
	index    int
	start    int
	end      int
	winStart int
	winEnd   int
	// fadeIn and fadeOut are the half-widths, in samples, of the crossfade
	// at the start and end of the core. Zero at the outer edges.
	fadeIn  int
	fadeOut int
}

// planChunks splits frames into cores of chunkFrames each. A non-positive
// chunkFrames or an input that fits yields a single unpadded chunk.
func planChunks(frames, chunkFrames, padding, hop int) []chunk {
	if chunkFrames <= 0 || frames <= chunkFrames {
		return []chunk{{start: 0, end: frames, winStart: 0, winEnd: frames}}
	}

	padding = max(padding, 0)

	var chunks []chunk

	for start := 0; start < frames; start += chunkFrames {
		end := min(start+chunkFrames, frames)
		chunks = append(chunks, chunk{
			index:    len(chunks),
			start:    start,
			end:      end,
			winStart: max(start-padding, 0),
			winEnd:   min(end+padding, frames),
		})
	}

	for k := 0; k+1 < len(chunks); k++ {
		a, b := &chunks[k], &chunks[k+1]
		coreA := (a.end - a.start) * hop
		coreB := (b.end - b.start) * hop

		c := min(padding*hop/2, coreA/4, coreB/4)
		a.fadeOut = c
		b.fadeIn = c
	}

	return chunks
}

// overlapAdd writes the chunk's audio, which starts at window frame
// winStart, into out with linear crossfade ramps at both core edges. Ramps of
// neighbouring chunks sum to one sample by sample.
func overlapAdd(out, audio []float32, c chunk, hop int) {
	coreStart := c.start * hop
	coreEnd := c.end * hop
	offset := c.winStart * hop

	lo := coreStart - c.fadeIn
	hi := coreEnd + c.fadeOut

	for i := lo; i < hi; i++ {
		w := float32(1)

		if c.fadeIn > 0 && i < coreStart+c.fadeIn {
			w = (float32(i-lo) + 0.5) / float32(2*c.fadeIn)
		}

		if fo := c.fadeOut; fo > 0 && i >= coreEnd-fo {
			w *= 1 - (float32(i-(coreEnd-fo))+0.5)/float32(2*fo)
		}

		out[i] += w * audio[i-offset]
	}
}
