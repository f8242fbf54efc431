package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	Paths    PathsConfig   `mapstructure:"paths"`
	Runtime  RuntimeConfig `mapstructure:"runtime"`
	Vocoder  VocoderConfig `mapstructure:"vocoder"`
	Server   ServerConfig  `mapstructure:"server"`
	LogLevel string        `mapstructure:"log_level"`
}

type PathsConfig struct {
	ModelPath       string `mapstructure:"model_path"`
	ModelConfigPath string `mapstructure:"model_config_path"`
	ONNXPath        string `mapstructure:"onnx_path"`
}

type RuntimeConfig struct {
	ConvWorkers    int    `mapstructure:"conv_workers"`
	TensorWorkers  int    `mapstructure:"tensor_workers"`
	ORTLibraryPath string `mapstructure:"ort_library_path"`
	ORTVersion     string `mapstructure:"ort_version"`
	ORTAPIVersion  uint32 `mapstructure:"ort_api_version"`
}

// VocoderConfig controls chunked synthesis and the output sink.
type VocoderConfig struct {
	Seed           int64 `mapstructure:"seed"`
	ChunkFrames    int   `mapstructure:"chunk_frames"`
	PaddingFrames  int   `mapstructure:"padding_frames"`
	ParallelChunks int   `mapstructure:"parallel_chunks"`
	DCBlock        bool  `mapstructure:"dc_block"`
	Normalize      bool  `mapstructure:"normalize"`
	BitDepth       int   `mapstructure:"bit_depth"`
}

type ServerConfig struct {
	ListenAddr      string `mapstructure:"listen_addr"`
	Workers         int    `mapstructure:"workers"`
	RequestTimeout  int    `mapstructure:"request_timeout"`
	MaxBodyBytes    int64  `mapstructure:"max_body_bytes"`
	ShutdownTimeout int    `mapstructure:"shutdown_timeout"`
}

type LoadOptions struct {
	Cmd        flagBinder
	ConfigFile string
	Defaults   Config
}

type flagBinder interface {
	Flags() *pflag.FlagSet
}

func DefaultConfig() Config {
	return Config{
		Paths: PathsConfig{
			ModelPath:       "models/pc_nsf_hifigan.safetensors",
			ModelConfigPath: "models/config.json",
			ONNXPath:        "models/pc_nsf_hifigan.onnx",
		},
		Runtime: RuntimeConfig{
			ConvWorkers:    0,
			TensorWorkers:  0,
			ORTLibraryPath: "",
			ORTVersion:     "",
			ORTAPIVersion:  23,
		},
		Vocoder: VocoderConfig{
			Seed:           0,
			ChunkFrames:    0,
			PaddingFrames:  16,
			ParallelChunks: 1,
			DCBlock:        false,
			Normalize:      false,
			BitDepth:       16,
		},
		Server: ServerConfig{
			ListenAddr:      ":8080",
			Workers:         2,
			RequestTimeout:  60,
			MaxBodyBytes:    64 << 20,
			ShutdownTimeout: 30,
		},
		LogLevel: "info",
	}
}

func RegisterFlags(fs *pflag.FlagSet, defaults Config) {
	fs.String("paths-model-path", defaults.Paths.ModelPath, "Path to the generator .safetensors checkpoint")
	fs.String("paths-model-config-path", defaults.Paths.ModelConfigPath, "Path to the generator config.json")
	fs.String("paths-onnx-path", defaults.Paths.ONNXPath, "Path to the exported ONNX generator")
	fs.Int("runtime-conv-workers", defaults.Runtime.ConvWorkers, "Convolution worker goroutines (0 = GOMAXPROCS)")
	fs.Int("runtime-tensor-workers", defaults.Runtime.TensorWorkers, "Element-wise kernel worker goroutines (0 = GOMAXPROCS)")
	fs.String("runtime-ort-library-path", defaults.Runtime.ORTLibraryPath, "Path to ONNX Runtime shared library")
	fs.String("runtime-ort-version", defaults.Runtime.ORTVersion, "Expected ONNX Runtime version")
	fs.Uint32("runtime-ort-api-version", defaults.Runtime.ORTAPIVersion, "ONNX Runtime C API version")
	fs.Int64("vocoder-seed", defaults.Vocoder.Seed, "Seed for excitation phases and noise")
	fs.Int("vocoder-chunk-frames", defaults.Vocoder.ChunkFrames, "Mel frames per synthesis chunk (0 = whole input)")
	fs.Int("vocoder-padding-frames", defaults.Vocoder.PaddingFrames, "Context frames on each side of a chunk")
	fs.Int("vocoder-parallel-chunks", defaults.Vocoder.ParallelChunks, "Chunks synthesized concurrently")
	fs.Bool("vocoder-dc-block", defaults.Vocoder.DCBlock, "Apply a 20 Hz high-pass before writing audio")
	fs.Bool("vocoder-normalize", defaults.Vocoder.Normalize, "Peak-normalize output audio")
	fs.Int("vocoder-bit-depth", defaults.Vocoder.BitDepth, "WAV bit depth (16, 24 or 32)")
	fs.String("server-listen-addr", defaults.Server.ListenAddr, "HTTP listen address")
	fs.Int("server-workers", defaults.Server.Workers, "Concurrent vocode requests")
	fs.Int("server-request-timeout", defaults.Server.RequestTimeout, "Per-request timeout in seconds")
	fs.Int64("server-max-body-bytes", defaults.Server.MaxBodyBytes, "Maximum request body size")
	fs.Int("server-shutdown-timeout", defaults.Server.ShutdownTimeout, "Graceful shutdown timeout in seconds")
	fs.String("log-level", defaults.LogLevel, "Log level (debug|info|warn|error)")
}

func Load(opts LoadOptions) (Config, error) {
	v := viper.New()

	setDefaults(v, opts.Defaults)

	if opts.Cmd != nil {
		if err := bindFlags(v, opts.Cmd.Flags()); err != nil {
			return Config{}, err
		}
	}

	v.SetEnvPrefix("NSFVOCODER")
	replacer := strings.NewReplacer("-", "_", ".", "_", "__", "_")
	v.SetEnvKeyReplacer(replacer)

	if err := v.BindEnv("runtime.ort_library_path", "NSFVOCODER_ORT_LIB", "ORT_LIBRARY_PATH"); err != nil {
		return Config{}, fmt.Errorf("bind ort env vars: %w", err)
	}

	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)

		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	} else {
		v.SetConfigName("nsfvocoder")
		v.AddConfigPath(".")

		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper, c Config) {
	v.SetDefault("paths.model_path", c.Paths.ModelPath)
	v.SetDefault("paths.model_config_path", c.Paths.ModelConfigPath)
	v.SetDefault("paths.onnx_path", c.Paths.ONNXPath)
	v.SetDefault("runtime.conv_workers", c.Runtime.ConvWorkers)
	v.SetDefault("runtime.tensor_workers", c.Runtime.TensorWorkers)
	v.SetDefault("runtime.ort_library_path", c.Runtime.ORTLibraryPath)
	v.SetDefault("runtime.ort_version", c.Runtime.ORTVersion)
	v.SetDefault("runtime.ort_api_version", c.Runtime.ORTAPIVersion)
	v.SetDefault("vocoder.seed", c.Vocoder.Seed)
	v.SetDefault("vocoder.chunk_frames", c.Vocoder.ChunkFrames)
	v.SetDefault("vocoder.padding_frames", c.Vocoder.PaddingFrames)
	v.SetDefault("vocoder.parallel_chunks", c.Vocoder.ParallelChunks)
	v.SetDefault("vocoder.dc_block", c.Vocoder.DCBlock)
	v.SetDefault("vocoder.normalize", c.Vocoder.Normalize)
	v.SetDefault("vocoder.bit_depth", c.Vocoder.BitDepth)
	v.SetDefault("server.listen_addr", c.Server.ListenAddr)
	v.SetDefault("server.workers", c.Server.Workers)
	v.SetDefault("server.request_timeout", c.Server.RequestTimeout)
	v.SetDefault("server.max_body_bytes", c.Server.MaxBodyBytes)
	v.SetDefault("server.shutdown_timeout", c.Server.ShutdownTimeout)
	v.SetDefault("log_level", c.LogLevel)
}

// flagKeys maps config keys to the flags RegisterFlags defines for them.
var flagKeys = [][2]string{
	{"paths.model_path", "paths-model-path"},
	{"paths.model_config_path", "paths-model-config-path"},
	{"paths.onnx_path", "paths-onnx-path"},
	{"runtime.conv_workers", "runtime-conv-workers"},
	{"runtime.tensor_workers", "runtime-tensor-workers"},
	{"runtime.ort_library_path", "runtime-ort-library-path"},
	{"runtime.ort_version", "runtime-ort-version"},
	{"runtime.ort_api_version", "runtime-ort-api-version"},
	{"vocoder.seed", "vocoder-seed"},
	{"vocoder.chunk_frames", "vocoder-chunk-frames"},
	{"vocoder.padding_frames", "vocoder-padding-frames"},
	{"vocoder.parallel_chunks", "vocoder-parallel-chunks"},
	{"vocoder.dc_block", "vocoder-dc-block"},
	{"vocoder.normalize", "vocoder-normalize"},
	{"vocoder.bit_depth", "vocoder-bit-depth"},
	{"server.listen_addr", "server-listen-addr"},
	{"server.workers", "server-workers"},
	{"server.request_timeout", "server-request-timeout"},
	{"server.max_body_bytes", "server-max-body-bytes"},
	{"server.shutdown_timeout", "server-shutdown-timeout"},
	{"log_level", "log-level"},
}

// bindFlags binds every registered flag to its nested key, so unchanged
// flags fall through to env, file and defaults.
func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for _, kf := range flagKeys {
		f := fs.Lookup(kf[1])
		if f == nil {
			continue
		}

		if err := v.BindPFlag(kf[0], f); err != nil {
			return fmt.Errorf("bind flag %s: %w", kf[1], err)
		}
	}

	return nil
}
