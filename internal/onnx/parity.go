package onnx

import (
	"fmt"
	"math"

	"github.com/example/go-nsf-vocoder/internal/runtime/ops"
)

// Parity summarizes the drift of a native waveform against a reference.
type Parity struct {
	Samples     int
	MaxAbsDiff  float64
	MeanAbsDiff float64
	// WorstIndex is the sample with the largest tolerance violation, or the
	// largest difference when everything is within tolerance.
	WorstIndex int
	Violations int
	Tolerance  ops.Tolerance
}

func (p Parity) OK() bool { return p.Violations == 0 }

// Compare checks got against want sample by sample under tol.
func Compare(got, want []float32, tol ops.Tolerance) (Parity, error) {
	if len(got) != len(want) {
		return Parity{}, fmt.Errorf("onnx: length mismatch: native %d samples, reference %d", len(got), len(want))
	}

	p := Parity{Samples: len(got), Tolerance: tol}
	if len(got) == 0 {
		return p, nil
	}

	var sum float64

	worstViolation := -1.0

	for i := range got {
		g, w := float64(got[i]), float64(want[i])
		d := math.Abs(g - w)
		sum += d

		if !tol.Within(g, w) {
			p.Violations++

			if excess := d - tol.Abs - tol.Rel*math.Abs(w); excess > worstViolation {
				worstViolation = excess
				p.WorstIndex = i
			}
		}

		if d > p.MaxAbsDiff {
			p.MaxAbsDiff = d
			if p.Violations == 0 {
				p.WorstIndex = i
			}
		}
	}

	p.MeanAbsDiff = sum / float64(len(got))

	return p, nil
}
