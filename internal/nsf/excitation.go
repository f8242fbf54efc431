package nsf

import (
	"github.com/example/go-nsf-vocoder/internal/runtime/tensor"
)

// Variant names reported by ExcitationGenerator.Name.
const (
	VariantFull = "full-harmonic"
	VariantMini = "mini"
)

// ExcitationGenerator turns a per-frame F0 contour into the source signal
// injected into the upsample stack.
type ExcitationGenerator interface {
	// Excite returns a [1, 1, len(f0)*Upsampling()] source tensor.
	Excite(ctx *Context, f0 []float32) (*tensor.Tensor, error)
	// Upsampling is the number of source samples per frame.
	Upsampling() int
	Name() string
}

func newExcitation(cfg ModelConfig, vb *VarBuilder) (ExcitationGenerator, error) {
	if cfg.MiniNSF {
		return NewMiniSource(cfg.SourceSampleRate(), cfg.ExcitationUpsampling()), nil
	}

	return loadHarmonicSource(cfg, vb.Path("m_source", "l_linear"))
}
