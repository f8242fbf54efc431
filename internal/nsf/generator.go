package nsf

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/example/go-nsf-vocoder/internal/runtime/tensor"
)

// finalSlope is the leaky-ReLU slope applied before conv_post.
const finalSlope = 0.01

// stage is one entry of the upsample arena. inject is nil on stages that do
// not receive the excitation.
type stage struct {
	index  int
	rate   int
	kernel int
	inCh   int
	outCh  int
	up     *convTr1dLayer
	inject *conv1dLayer
	blocks []*ResidualBlock
}

// Generator is a built PC-NSF-HiFiGAN generator. Weights are folded and
// immutable, so one Generator may serve concurrent Forward calls as long as
// each call has its own Context.
type Generator struct {
	cfg      ModelConfig
	convPre  *conv1dLayer
	stages   []*stage
	convPost *conv1dLayer
	source   ExcitationGenerator
}

// Trace is the detailed result of ForwardDetailed.
type Trace struct {
	// Audio is the [T*hop_size] waveform.
	Audio *tensor.Tensor
	// Excitation is the [1, 1, T*upp] source before injection.
	Excitation *tensor.Tensor
	// StageLengths is the sequence length after each upsample stage.
	StageLengths []int64
}

// Load reads config.json and a safetensors checkpoint and builds a Generator.
// Tensors are copied during build, so the checkpoint is closed before return.
func Load(modelPath, configPath string) (*Generator, error) {
	cfg, err := LoadModelConfig(configPath)
	if err != nil {
		return nil, err
	}

	vb, store, err := OpenVarBuilder(modelPath)
	if err != nil {
		return nil, fmt.Errorf("%w: open weights: %v", ErrWeightShape, err)
	}
	defer store.Close()

	return Build(cfg, vb)
}

// New builds a Generator from an arbitrary weight provider.
func New(cfg ModelConfig, weights WeightProvider) (*Generator, error) {
	return Build(cfg, NewVarBuilder(weights))
}

// Build validates cfg, loads and folds every layer it implies, and lays out
// the stage arena. Topology is fixed here; Forward never dispatches on config.
func Build(cfg ModelConfig, vb *VarBuilder) (*Generator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if vb == nil {
		return nil, errors.New("nsf: nil var builder")
	}

	g := &Generator{cfg: cfg}

	var err error

	g.convPre, err = loadNormedConv1D(vb.Path("conv_pre"), cfg.NumMels, cfg.UpsampleInitialChannel, 7, 1)
	if err != nil {
		return nil, err
	}

	injected := map[int]bool{}
	for _, i := range cfg.InjectionStages() {
		injected[i] = true
	}

	k := cfg.NumKernels()
	for i, rate := range cfg.UpsampleRates {
		st := &stage{
			index:  i,
			rate:   rate,
			kernel: cfg.UpsampleKernelSizes[i],
			inCh:   cfg.UpsampleInitialChannel >> i,
			outCh:  cfg.StageChannels(i),
		}

		st.up, err = loadNormedConvTranspose1D(vb.Pathf("ups.%d", i), st.inCh, st.outCh, st.kernel, rate)
		if err != nil {
			return nil, err
		}

		if injected[i] {
			if cfg.MiniNSF {
				st.inject, err = loadInjectionConv(vb.Path("source_conv"), st.outCh, 1)
			} else {
				st.inject, err = loadInjectionConv(vb.Pathf("noise_convs.%d", i), st.outCh, cfg.noiseConvStride(i))
			}

			if err != nil {
				return nil, err
			}
		}

		for j, rk := range cfg.ResblockKernelSizes {
			rb, err := loadResidualBlock(vb.Pathf("resblocks.%d", i*k+j), st.outCh, rk, cfg.ResblockDilationSizes[j])
			if err != nil {
				return nil, err
			}

			st.blocks = append(st.blocks, rb)
		}

		g.stages = append(g.stages, st)
	}

	g.convPost, err = loadNormedConv1D(vb.Path("conv_post"), cfg.StageChannels(cfg.NumStages()-1), 1, 7, 1)
	if err != nil {
		return nil, err
	}

	g.source, err = newExcitation(cfg, vb)
	if err != nil {
		return nil, err
	}

	slog.Info("built generator",
		"variant", g.source.Name(),
		"stages", cfg.NumStages(),
		"resblocks", cfg.NumStages()*k,
		"injection_stages", cfg.InjectionStages(),
		"upp", g.source.Upsampling(),
	)

	return g, nil
}

func (g *Generator) Config() ModelConfig { return g.cfg }

// Source returns the excitation generator selected at build time.
func (g *Generator) Source() ExcitationGenerator { return g.source }

// Forward synthesizes a waveform from mel [num_mels, T] (or [1, num_mels, T])
// and f0 [T] (or [1, T]). The result has shape [T*hop_size]. A nil ctx uses a
// fresh Context seeded with 0.
func (g *Generator) Forward(ctx *Context, mel, f0 *tensor.Tensor) (*tensor.Tensor, error) {
	trace, err := g.ForwardDetailed(ctx, mel, f0)
	if err != nil {
		return nil, err
	}

	return trace.Audio, nil
}

// ForwardDetailed is Forward that also returns the excitation and the
// per-stage lengths.
func (g *Generator) ForwardDetailed(ctx *Context, mel, f0 *tensor.Tensor) (*Trace, error) {
	frames, err := g.checkInputs(mel, f0)
	if err != nil {
		return nil, err
	}

	if ctx == nil {
		ctx = NewContext(0)
	}

	x, err := mel.Reshape([]int64{1, int64(g.cfg.NumMels), frames})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInputShape, err)
	}

	excitation, err := g.source.Excite(ctx, f0.RawData())
	if err != nil {
		return nil, err
	}

	x, err = g.convPre.forward(x)
	if err != nil {
		return nil, err
	}

	if sigma := g.cfg.NoiseSigma; sigma > 0 {
		rng := ctx.rng()
		data := x.RawData()

		for i := range data {
			data[i] += float32(sigma * rng.NormFloat64())
		}
	}

	trace := &Trace{Excitation: excitation, StageLengths: make([]int64, 0, len(g.stages))}

	for _, st := range g.stages {
		x, err = g.runStage(st, x, excitation)
		if err != nil {
			return nil, err
		}

		trace.StageLengths = append(trace.StageLengths, x.Dim(2))
	}

	x, err = g.convPost.forward(tensor.LeakyReLU(x, finalSlope))
	if err != nil {
		return nil, err
	}

	audio := tensor.Tanh(x)

	trace.Audio, err = audio.Reshape([]int64{frames * int64(g.cfg.HopSize)})
	if err != nil {
		return nil, err
	}

	return trace, nil
}

func (g *Generator) runStage(st *stage, x, excitation *tensor.Tensor) (*tensor.Tensor, error) {
	x, err := st.up.forward(tensor.LeakyReLU(x, LReLUSlope))
	if err != nil {
		return nil, err
	}

	if st.inject != nil {
		e, err := st.inject.forward(excitation)
		if err != nil {
			return nil, err
		}

		if err := tensor.AddInPlace(x, e); err != nil {
			return nil, fmt.Errorf("nsf: stage %d injection: %w", st.index, err)
		}
	}

	var sum *tensor.Tensor

	for j, rb := range st.blocks {
		y, err := rb.Forward(x)
		if err != nil {
			return nil, fmt.Errorf("nsf: stage %d resblock %d: %w", st.index, j, err)
		}

		if sum == nil {
			sum = y
			continue
		}

		if err := tensor.AddInPlace(sum, y); err != nil {
			return nil, err
		}
	}

	tensor.ScaleInPlace(sum, 1/float32(len(st.blocks)))

	return sum, nil
}

func (g *Generator) checkInputs(mel, f0 *tensor.Tensor) (int64, error) {
	if mel == nil || f0 == nil {
		return 0, fmt.Errorf("%w: mel and f0 are required", ErrInputShape)
	}

	ms := mel.Shape()
	if len(ms) == 3 && ms[0] == 1 {
		ms = ms[1:]
	}

	if len(ms) != 2 {
		return 0, fmt.Errorf("%w: mel must be [num_mels, frames], got %v", ErrInputShape, mel.Shape())
	}

	if ms[0] != int64(g.cfg.NumMels) {
		return 0, fmt.Errorf("%w: mel has %d channels, model expects %d", ErrInputShape, ms[0], g.cfg.NumMels)
	}

	frames := ms[1]
	if frames < 1 {
		return 0, fmt.Errorf("%w: mel has no frames", ErrInputShape)
	}

	fs := f0.Shape()
	if len(fs) == 2 && fs[0] == 1 {
		fs = fs[1:]
	}

	if len(fs) != 1 || fs[0] != frames {
		return 0, fmt.Errorf("%w: f0 shape %v does not match %d mel frames", ErrInputShape, f0.Shape(), frames)
	}

	return frames, nil
}

// StageInfo describes one upsample stage.
type StageInfo struct {
	Index       int
	Rate        int
	Kernel      int
	InChannels  int
	OutChannels int
	Resblocks   int
	Injected    bool
	// InjectStride is the excitation conv stride; 0 when not injected.
	InjectStride int
}

// Info summarizes a built generator.
type Info struct {
	Variant         string
	SampleRate      int
	HopSize         int
	NumMels         int
	SourceRate      float64
	Upsampling      int
	InjectionStages []int
	Stages          []StageInfo
}

func (g *Generator) Info() Info {
	info := Info{
		Variant:         g.source.Name(),
		SampleRate:      g.cfg.SamplingRate,
		HopSize:         g.cfg.HopSize,
		NumMels:         g.cfg.NumMels,
		SourceRate:      g.cfg.SourceSampleRate(),
		Upsampling:      g.source.Upsampling(),
		InjectionStages: g.cfg.InjectionStages(),
	}

	for _, st := range g.stages {
		si := StageInfo{
			Index:       st.index,
			Rate:        st.rate,
			Kernel:      st.kernel,
			InChannels:  st.inCh,
			OutChannels: st.outCh,
			Resblocks:   len(st.blocks),
			Injected:    st.inject != nil,
		}
		if st.inject != nil {
			si.InjectStride = int(st.inject.stride)
		}

		info.Stages = append(info.Stages, si)
	}

	return info
}
