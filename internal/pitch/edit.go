package pitch

import "math"

// ShiftSemitones transposes voiced (non-zero) F0 values by the given number
// of semitones. Unvoiced frames stay 0.
func ShiftSemitones(f0 []float32, semitones float64) []float32 {
	ratio := float32(math.Exp2(semitones / 12))
	out := make([]float32, len(f0))

	for i, v := range f0 {
		if v > 0 {
			out[i] = v * ratio
		}
	}

	return out
}

// FillUnvoiced replaces unvoiced frames with a contour interpolated linearly
// in log frequency between voiced neighbors, holding the nearest voiced value
// at the edges. A contour with no voiced frame is returned as zeros.
func FillUnvoiced(f0 []float32, voiced []bool) []float32 {
	out := make([]float32, len(f0))

	prev := -1
	for i := range f0 {
		if !isVoiced(f0, voiced, i) {
			continue
		}

		out[i] = f0[i]

		switch {
		case prev < 0:
			for j := range i {
				out[j] = f0[i]
			}
		case i-prev > 1:
			a, b := math.Log(float64(f0[prev])), math.Log(float64(f0[i]))
			for j := prev + 1; j < i; j++ {
				w := float64(j-prev) / float64(i-prev)
				out[j] = float32(math.Exp(a + (b-a)*w))
			}
		}

		prev = i
	}

	if prev >= 0 {
		for j := prev + 1; j < len(out); j++ {
			out[j] = f0[prev]
		}
	}

	return out
}

func isVoiced(f0 []float32, voiced []bool, i int) bool {
	if f0[i] <= 0 {
		return false
	}

	return voiced == nil || (i < len(voiced) && voiced[i])
}
