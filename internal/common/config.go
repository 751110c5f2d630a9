package common

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Server      ServerConfig    `toml:"server"`
	Storage     StorageConfig   `toml:"storage"`
	Engine      EngineConfig    `toml:"engine"`
	Diarization DiarizeConfig   `toml:"diarization"`
	Workers     WorkersConfig   `toml:"workers"`
	Limits      LimitsConfig    `toml:"limits"`
	Retention   RetentionConfig `toml:"retention"`
	Logging     LoggingConfig   `toml:"logging"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

type StorageConfig struct {
	WorkDir string       `toml:"work_dir"` // Root for uploads, results and job records
	Badger  BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

// EngineConfig configures the transcription subprocess
type EngineConfig struct {
	Binary            string        `toml:"binary"`              // WhisperX-compatible executable (default: "whisperx")
	Model             string        `toml:"model"`               // Default model size (tiny|base|small|medium|large-v2)
	Device            string        `toml:"device"`              // "auto", "cpu" or a GPU identifier such as "cuda"
	UseGPU            bool          `toml:"use_gpu"`             // GPU preference when device is "auto"
	BatchSize         int           `toml:"batch_size"`          // Inference batch size on GPU (CPU always runs at 1)
	ProcessingTimeout time.Duration `toml:"processing_timeout"`  // Subprocess timeout (default 30m, capped at 60m)
	CancelGrace       time.Duration `toml:"cancel_grace"`        // SIGTERM to SIGKILL grace on cancellation
	ThreadCap         int           `toml:"thread_cap"`          // Native thread pool cap per subprocess
	AcceleratorLibDir string        `toml:"accelerator_lib_dir"` // Injected into LD_LIBRARY_PATH when set
}

// DiarizeConfig configures the speaker diarization pipeline
type DiarizeConfig struct {
	HFToken string `toml:"hf_token"` // Hugging Face token; diarization unavailable when empty
	Binary  string `toml:"binary"`   // Diarization runner executable (default: "scriba-diarize")
	Model   string `toml:"model"`    // Pipeline identifier (default: "pyannote/speaker-diarization-3.1")
}

type WorkersConfig struct {
	Concurrency        int `toml:"concurrency"`          // Global worker ceiling W
	BatchMaxConcurrent int `toml:"batch_max_concurrent"` // Cap on per-batch concurrency
	QueueDepth         int `toml:"queue_depth"`          // Pending submissions buffer
}

type LimitsConfig struct {
	MaxFileSize  int64 `toml:"max_file_size"`  // Bytes; submissions above this are rejected
	MaxBatchSize int   `toml:"max_batch_size"` // Files per batch request
}

type RetentionConfig struct {
	RetainHours   int    `toml:"retain_hours"`   // Age past which terminal jobs are swept
	SweepSchedule string `toml:"sweep_schedule"` // Cron schedule for the retention sweeper
}

type LoggingConfig struct {
	Level      string   `toml:"level"`       // "debug", "info", "warn", "error"
	Output     []string `toml:"output"`      // "stdout", "file"
	Dir        string   `toml:"dir"`         // Log directory (default: <exe>/logs)
	TimeFormat string   `toml:"time_format"` // Time format for logs
}

// SupportedAudioFormats lists the accepted upload extensions (lowercase, with dot).
var SupportedAudioFormats = []string{".mp3", ".wav", ".m4a", ".ogg", ".flac", ".aac", ".wma"}

// IsSupportedAudioFormat reports whether the filename carries a recognized audio extension.
func IsSupportedAudioFormat(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, s := range SupportedAudioFormats {
		if ext == s {
			return true
		}
	}
	return false
}

// NewDefaultConfig creates a configuration with default values.
// Technical parameters are hardcoded here for production stability.
// Only user-facing settings should be exposed in scriba.toml.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8080,
			Host: "localhost",
		},
		Storage: StorageConfig{
			WorkDir: "./data",
			Badger: BadgerConfig{
				Path: "./data/db",
			},
		},
		Engine: EngineConfig{
			Binary:            "whisperx",
			Model:             "base",
			Device:            "auto",
			UseGPU:            true,
			BatchSize:         16,
			ProcessingTimeout: 30 * time.Minute,
			CancelGrace:       10 * time.Second,
			ThreadCap:         8,
		},
		Diarization: DiarizeConfig{
			Binary: "scriba-diarize",
			Model:  "pyannote/speaker-diarization-3.1",
		},
		Workers: WorkersConfig{
			Concurrency:        2,
			BatchMaxConcurrent: 5,
			QueueDepth:         100,
		},
		Limits: LimitsConfig{
			MaxFileSize:  5 * 1024 * 1024 * 1024, // 5 GiB
			MaxBatchSize: 10,
		},
		Retention: RetentionConfig{
			RetainHours:   48,
			SweepSchedule: "@hourly",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Output:     []string{"stdout", "file"},
			TimeFormat: "15:04:05.000",
		},
	}
}

// LoadFromFile loads configuration from a single TOML file with defaults and env overrides
func LoadFromFile(path string) (*Config, error) {
	if path == "" {
		return LoadFromFiles()
	}
	return LoadFromFiles(path)
}

// LoadFromFiles loads configuration from multiple files with priority:
// defaults -> file1 -> file2 -> ... -> environment variables.
// Later files override earlier files.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate clamps and checks configuration invariants after merging.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Workers.Concurrency < 1 {
		c.Workers.Concurrency = 1
	}
	if c.Workers.BatchMaxConcurrent < 1 {
		c.Workers.BatchMaxConcurrent = 1
	}
	if c.Limits.MaxBatchSize < 1 {
		c.Limits.MaxBatchSize = 1
	}
	// Timeout is tunable up to 60 minutes for long inputs
	if c.Engine.ProcessingTimeout <= 0 {
		c.Engine.ProcessingTimeout = 30 * time.Minute
	}
	if c.Engine.ProcessingTimeout > 60*time.Minute {
		c.Engine.ProcessingTimeout = 60 * time.Minute
	}
	if c.Engine.CancelGrace <= 0 || c.Engine.CancelGrace > 10*time.Second {
		c.Engine.CancelGrace = 10 * time.Second
	}
	if c.Retention.RetainHours < 1 {
		c.Retention.RetainHours = 48
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("SCRIBA_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	if port := os.Getenv("SCRIBA_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("SCRIBA_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	if dir := os.Getenv("SCRIBA_WORK_DIR"); dir != "" {
		config.Storage.WorkDir = dir
	}
	if path := os.Getenv("SCRIBA_BADGER_PATH"); path != "" {
		config.Storage.Badger.Path = path
	}

	if model := os.Getenv("SCRIBA_WHISPER_MODEL"); model != "" {
		config.Engine.Model = model
	}
	if device := os.Getenv("SCRIBA_DEVICE"); device != "" {
		config.Engine.Device = device
	}
	if gpu := os.Getenv("SCRIBA_USE_GPU"); gpu != "" {
		if b, err := strconv.ParseBool(gpu); err == nil {
			config.Engine.UseGPU = b
		}
	}
	if secs := os.Getenv("SCRIBA_MAX_PROCESSING_TIME"); secs != "" {
		if n, err := strconv.Atoi(secs); err == nil && n > 0 {
			config.Engine.ProcessingTimeout = time.Duration(n) * time.Second
		}
	}

	// HF token also honoured from the conventional variable name
	if token := os.Getenv("SCRIBA_HF_TOKEN"); token != "" {
		config.Diarization.HFToken = token
	} else if token := os.Getenv("HF_TOKEN"); token != "" {
		config.Diarization.HFToken = token
	}

	if n := os.Getenv("SCRIBA_WORKER_CONCURRENCY"); n != "" {
		if v, err := strconv.Atoi(n); err == nil && v > 0 {
			config.Workers.Concurrency = v
		}
	}
	if n := os.Getenv("SCRIBA_MAX_FILE_SIZE"); n != "" {
		if v, err := strconv.ParseInt(n, 10, 64); err == nil && v > 0 {
			config.Limits.MaxFileSize = v
		}
	}
	if n := os.Getenv("SCRIBA_RETAIN_HOURS"); n != "" {
		if v, err := strconv.Atoi(n); err == nil && v > 0 {
			config.Retention.RetainHours = v
		}
	}

	if level := os.Getenv("SCRIBA_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if dir := os.Getenv("SCRIBA_LOG_DIR"); dir != "" {
		config.Logging.Dir = dir
	}
}

// UploadsDir returns the directory for uploaded audio files.
func (c *Config) UploadsDir() string {
	return filepath.Join(c.Storage.WorkDir, "uploads")
}

// ResultsDir returns the root directory for transcription artifacts.
func (c *Config) ResultsDir() string {
	return filepath.Join(c.Storage.WorkDir, "results")
}

// ScratchDir returns the root directory for engine scratch output.
func (c *Config) ScratchDir() string {
	return filepath.Join(c.Storage.WorkDir, "scratch")
}

// EnsureDirs creates the working directories if they do not exist.
func (c *Config) EnsureDirs() error {
	for _, dir := range []string{c.Storage.WorkDir, c.UploadsDir(), c.ResultsDir(), c.ScratchDir()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}
