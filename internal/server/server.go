package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/example/go-nsf-vocoder/internal/audio"
	"github.com/example/go-nsf-vocoder/internal/config"
	"github.com/example/go-nsf-vocoder/internal/nsf"
	"github.com/example/go-nsf-vocoder/internal/vocoder"
)

// ParseLogLevel converts a case-insensitive level string to slog.Level.
// An empty string returns slog.LevelInfo. Unknown strings return an error.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q (want debug|info|warn|error)", s)
	}
}

// Synthesizer renders decoded features to mono samples.
type Synthesizer interface {
	SynthesizeFeatures(ctx context.Context, f vocoder.Features) ([]float32, error)
}

type options struct {
	maxBodyBytes   int64
	workers        int
	requestTimeout time.Duration
	bitDepth       int
	post           audio.PostOptions
	logger         *slog.Logger
}

func defaultOptions() options {
	return options{
		maxBodyBytes:   64 << 20,
		workers:        2,
		requestTimeout: 60 * time.Second,
		bitDepth:       16,
		logger:         slog.Default(),
	}
}

// Option configures the HTTP handler.
type Option func(*options)

// WithMaxBodyBytes caps the size of a POST /vocode feature body.
func WithMaxBodyBytes(n int64) Option {
	return func(o *options) { o.maxBodyBytes = n }
}

// WithWorkers sets the maximum number of concurrent synthesis calls.
// Zero or less disables throttling.
func WithWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

// WithRequestTimeout sets the per-request synthesis deadline.
func WithRequestTimeout(d time.Duration) Option {
	return func(o *options) { o.requestTimeout = d }
}

// WithBitDepth sets the default PCM bit depth of returned WAV files.
func WithBitDepth(bits int) Option {
	return func(o *options) { o.bitDepth = bits }
}

// WithPostProcessing sets the DSP chain applied before WAV encoding.
func WithPostProcessing(p audio.PostOptions) Option {
	return func(o *options) { o.post = p }
}

// WithLogger sets the slog.Logger used for request logging.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// handler holds the dependencies needed to serve HTTP requests.
type handler struct {
	synth Synthesizer
	info  nsf.Info
	opts  options
	sem   chan struct{} // nil when unthrottled
	log   *slog.Logger
}

// NewHandler returns an http.Handler that serves GET /health, GET /model and
// POST /vocode.
func NewHandler(synth Synthesizer, info nsf.Info, optFns ...Option) http.Handler {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	h := &handler{
		synth: synth,
		info:  info,
		opts:  opts,
		log:   opts.logger,
	}
	if opts.workers > 0 {
		h.sem = make(chan struct{}, opts.workers)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /model", h.handleModel)
	mux.HandleFunc("POST /vocode", h.handleVocode)

	return mux
}

func buildVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}

	return "dev"
}

func (h *handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": buildVersion(),
	})
}

type stageResponse struct {
	Index        int  `json:"index"`
	Rate         int  `json:"rate"`
	Kernel       int  `json:"kernel"`
	InChannels   int  `json:"in_channels"`
	OutChannels  int  `json:"out_channels"`
	Resblocks    int  `json:"resblocks"`
	Injected     bool `json:"injected"`
	InjectStride int  `json:"inject_stride,omitempty"`
}

type modelResponse struct {
	Variant         string          `json:"variant"`
	SampleRate      int             `json:"sample_rate"`
	HopSize         int             `json:"hop_size"`
	NumMels         int             `json:"num_mels"`
	SourceRate      float64         `json:"source_rate"`
	Upsampling      int             `json:"upsampling"`
	InjectionStages []int           `json:"injection_stages"`
	Stages          []stageResponse `json:"stages"`
}

func (h *handler) handleModel(w http.ResponseWriter, _ *http.Request) {
	resp := modelResponse{
		Variant:         h.info.Variant,
		SampleRate:      h.info.SampleRate,
		HopSize:         h.info.HopSize,
		NumMels:         h.info.NumMels,
		SourceRate:      h.info.SourceRate,
		Upsampling:      h.info.Upsampling,
		InjectionStages: append([]int{}, h.info.InjectionStages...),
		Stages:          make([]stageResponse, len(h.info.Stages)),
	}

	for i, st := range h.info.Stages {
		resp.Stages[i] = stageResponse(st)
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) handleVocode(w http.ResponseWriter, r *http.Request) {
	if r.Body == nil {
		writeError(w, http.StatusBadRequest, "request body is required")
		return
	}

	bitDepth := h.opts.bitDepth
	if raw := r.URL.Query().Get("bit_depth"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || (n != 16 && n != 24 && n != 32) {
			writeError(w, http.StatusBadRequest, "bit_depth must be 16, 24 or 32")
			return
		}

		bitDepth = n
	}

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.opts.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("body exceeds maximum size of %d bytes", h.opts.maxBodyBytes))
			return
		}

		writeError(w, http.StatusBadRequest, "read body: "+err.Error())

		return
	}

	features, err := vocoder.DecodeFeatures(data)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Acquire a worker slot, honouring context cancellation while waiting.
	if h.sem != nil {
		select {
		case h.sem <- struct{}{}:
		case <-r.Context().Done():
			writeError(w, http.StatusServiceUnavailable, "request cancelled while waiting for worker")
			return
		}
		defer func() { <-h.sem }()
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.opts.requestTimeout)
	defer cancel()

	start := time.Now()
	samples, err := h.synth.SynthesizeFeatures(ctx, features)
	durationMS := time.Since(start).Milliseconds()

	if err != nil {
		attrs := []any{
			slog.Int("frames", features.Frames()),
			slog.Int64("duration_ms", durationMS),
			slog.String("error", err.Error()),
		}

		switch {
		case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
			h.log.WarnContext(r.Context(), "synthesis timed out", attrs...)
			writeError(w, http.StatusGatewayTimeout, "synthesis timed out")
		case errors.Is(err, nsf.ErrInputShape):
			h.log.WarnContext(r.Context(), "rejected features", attrs...)
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			h.log.ErrorContext(r.Context(), "synthesis failed", attrs...)
			writeError(w, http.StatusInternalServerError, err.Error())
		}

		return
	}

	samples = audio.ApplyHooks(samples, h.opts.post.Hooks(h.info.SampleRate)...)

	wav, err := audio.EncodeWAV(samples, h.info.SampleRate, bitDepth)
	if err != nil {
		h.log.ErrorContext(r.Context(), "wav encode failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, err.Error())

		return
	}

	h.log.InfoContext(r.Context(), "synthesis complete",
		slog.Int("frames", features.Frames()),
		slog.Int("samples", len(samples)),
		slog.Int64("duration_ms", durationMS),
		slog.Int("wav_bytes", len(wav)),
	)

	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("X-Audio-Samples", strconv.Itoa(len(samples)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(wav)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// Server wires the HTTP handler into a net/http.Server with graceful shutdown.
type Server struct {
	cfg             config.Config
	synth           *vocoder.Synthesizer
	shutdownTimeout time.Duration
	logger          *slog.Logger
}

// New returns a server for cfg. A nil synth is loaded from cfg.Paths on Start.
func New(cfg config.Config, synth *vocoder.Synthesizer) *Server {
	shutdown := time.Duration(cfg.Server.ShutdownTimeout) * time.Second
	if shutdown <= 0 {
		shutdown = 30 * time.Second
	}

	return &Server{
		cfg:             cfg,
		synth:           synth,
		shutdownTimeout: shutdown,
		logger:          slog.Default(),
	}
}

// WithShutdownTimeout overrides the graceful-shutdown drain period.
func (s *Server) WithShutdownTimeout(d time.Duration) *Server {
	s.shutdownTimeout = d
	return s
}

// WithLogger overrides the request logger.
func (s *Server) WithLogger(l *slog.Logger) *Server {
	s.logger = l
	return s
}

func (s *Server) Start(ctx context.Context) error {
	synth := s.synth
	if synth == nil {
		var err error

		synth, err = vocoder.Load(s.cfg.Paths, vocoder.OptionsFromConfig(s.cfg.Vocoder))
		if err != nil {
			return fmt.Errorf("initialize vocoder: %w", err)
		}
	}

	h := NewHandler(synth, synth.Generator().Info(), s.handlerOptions()...)

	httpServer := &http.Server{
		Addr:              s.cfg.Server.ListenAddr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	s.logger.Info("serving", "addr", s.cfg.Server.ListenAddr, "workers", s.cfg.Server.Workers)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}

		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}

		return fmt.Errorf("http listen: %w", err)
	}
}

func (s *Server) handlerOptions() []Option {
	sc := s.cfg.Server

	opts := []Option{
		WithWorkers(sc.Workers),
		WithPostProcessing(audio.PostOptions{DCBlock: s.cfg.Vocoder.DCBlock, Normalize: s.cfg.Vocoder.Normalize}),
		WithLogger(s.logger),
	}

	if sc.RequestTimeout > 0 {
		opts = append(opts, WithRequestTimeout(time.Duration(sc.RequestTimeout)*time.Second))
	}

	if sc.MaxBodyBytes > 0 {
		opts = append(opts, WithMaxBodyBytes(sc.MaxBodyBytes))
	}

	if s.cfg.Vocoder.BitDepth > 0 {
		opts = append(opts, WithBitDepth(s.cfg.Vocoder.BitDepth))
	}

	return opts
}

func ProbeHTTP(addr string) error {
	resp, err := http.Get("http://" + addr + "/health") //nolint:noctx
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected health status: %s", resp.Status)
	}

	return nil
}
