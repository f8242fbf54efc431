package nsf

import (
	"fmt"
	"math"

	"github.com/example/go-nsf-vocoder/internal/runtime/tensor"
)

// MiniSource is the single-sine excitation of the mini variant. It renders
// at SourceRate, which is Upsampling() samples per frame, and interpolates
// frequency linearly inside each frame so that phase stays continuous over
// frame boundaries.
type MiniSource struct {
	SourceRate float64
	upp        int
}

// NewMiniSource returns a mini source rendering upp samples per frame.
func NewMiniSource(sourceRate float64, upp int) *MiniSource {
	return &MiniSource{SourceRate: sourceRate, upp: upp}
}

func (m *MiniSource) Name() string    { return VariantMini }
func (m *MiniSource) Upsampling() int { return m.upp }

// Excite renders sin(2*pi*phase) starting at ctx.PhaseOffset and stores the
// phase after the last frame in ctx.PhaseCarry.
func (m *MiniSource) Excite(ctx *Context, f0 []float32) (*tensor.Tensor, error) {
	if ctx == nil {
		return nil, fmt.Errorf("%w: nil context", ErrInputShape)
	}

	phase, carry := m.Phase(f0, ctx.PhaseOffset)
	out := make([]float32, len(phase))

	for i, p := range phase {
		out[i] = float32(math.Sin(2 * math.Pi * p))
	}

	ctx.PhaseCarry = carry

	return tensor.FromOwned(out, []int64{1, 1, int64(len(out))})
}

// Phase returns the per-sample phase in cycles, starting at offset, and the
// carry phase after the final frame wrapped into [0,1).
func (m *MiniSource) Phase(f0 []float32, offset float64) ([]float64, float64) {
	upp := m.upp
	frames := len(f0)
	phase := make([]float64, frames*upp)
	acc := offset

	for t := range frames {
		s0 := float64(f0[t]) / m.SourceRate

		var ds float64
		if t+1 < frames {
			ds = float64(f0[t+1])/m.SourceRate - s0
		}

		row := phase[t*upp : (t+1)*upp]
		for k := range row {
			n := float64(k + 1)
			row[k] = s0*n + 0.5*ds*n*(n-1)/float64(upp) + acc
		}

		// Advance by the wrapped per-frame increment.
		last := s0*float64(upp) + 0.5*ds*float64(upp-1)
		acc = math.Mod(acc+math.Mod(last+0.5, 1)-0.5, 1)
	}

	return phase, acc - math.Floor(acc)
}

// PhaseOrigins returns the phase, in cycles in [0,1), at the start of each
// frame in starts when rendering the whole contour from offset 0. A chunk of
// f0 starting at starts[i] rendered with that offset matches the full render.
func (m *MiniSource) PhaseOrigins(f0 []float32, starts []int) ([]float64, error) {
	origins := make([]float64, len(starts))
	if len(starts) == 0 {
		return origins, nil
	}

	for _, s := range starts {
		if s < 0 || s > len(f0) {
			return nil, fmt.Errorf("%w: phase origin frame %d outside [0,%d]", ErrInputShape, s, len(f0))
		}
	}

	var acc float64

	at := make([]float64, len(f0)+1)
	for t := range f0 {
		s0 := float64(f0[t]) / m.SourceRate

		var ds float64
		if t+1 < len(f0) {
			ds = float64(f0[t+1])/m.SourceRate - s0
		}

		last := s0*float64(m.upp) + 0.5*ds*float64(m.upp-1)
		acc = math.Mod(acc+math.Mod(last+0.5, 1)-0.5, 1)
		at[t+1] = acc
	}

	for i, s := range starts {
		origins[i] = at[s] - math.Floor(at[s])
	}

	return origins, nil
}
