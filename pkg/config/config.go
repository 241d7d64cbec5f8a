// Package config loads the nested YAML configuration record described in
// spec.md §6: a database connection block and a fingerprint time limit,
// plus the ambient fields (worker pool size, temp directory, sample rate,
// log level) any deployed instance needs but the distilled spec leaves
// unstated.
package config

import (
	"fmt"
	"math"
	"os"
	"runtime"

	"gopkg.in/yaml.v3"
)

// Database holds the connection parameters for one of the supported SQL
// backends. DatabaseType selects the dialect; Host/Port/User/Passwd/DB are
// ignored for "sqlite", where DB is instead interpreted as a file path.
type Database struct {
	DatabaseType string `yaml:"database_type"`
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	User         string `yaml:"user"`
	Passwd       string `yaml:"passwd"`
	DB           string `yaml:"db"`
}

// Config is the top-level configuration record.
type Config struct {
	Database Database `yaml:"database"`

	// FingerprintLimit is the number of seconds of audio to fingerprint,
	// per file. Nil or -1 mean "the entire track" (spec.md §6).
	FingerprintLimit *float64 `yaml:"fingerprint_limit"`

	// WorkerCount is the ingest worker pool size. Zero selects the
	// spec.md §4.6 default of max(1, NumCPU-1).
	WorkerCount int `yaml:"worker_count"`

	// TempDir is where decoded/converted audio is staged.
	TempDir string `yaml:"temp_dir"`

	// SampleRate is the target PCM sample rate (Fs in spec.md); it must be
	// held constant across every ingest and query for hashes to compare
	// equal.
	SampleRate int `yaml:"sample_rate"`

	// LogLevel is one of "debug", "info", "warn", "error".
	LogLevel string `yaml:"log_level"`

	// MicChannels is the number of input channels the microphone capture
	// contract (spec.md §6) opens the default input device with. Each
	// channel is fingerprinted independently and the matches unioned.
	MicChannels int `yaml:"mic_channels"`
}

// Default returns a Config with sensible defaults: an on-disk sqlite
// database, the whole track fingerprinted, and one worker per idle core.
func Default() *Config {
	return &Config{
		Database: Database{
			DatabaseType: "sqlite",
			DB:           "echosig.sqlite3",
		},
		WorkerCount: WorkerCount(0),
		TempDir:     os.TempDir(),
		SampleRate:  44100,
		LogLevel:    "info",
		MicChannels: 1,
	}
}

// WorkerCount resolves the configured worker count, applying the
// max(1, NumCPU-1) default from spec.md §4.6 when requested is 0.
func WorkerCount(requested int) int {
	if requested > 0 {
		return requested
	}
	n := runtime.NumCPU() - 1
	if n < 1 {
		n = 1
	}
	return n
}

// Limited reports whether FingerprintLimit names a positive, finite limit.
func (c *Config) Limited() bool {
	return c.FingerprintLimit != nil && *c.FingerprintLimit > 0 && !math.IsInf(*c.FingerprintLimit, 1)
}

// Load reads and parses a YAML configuration file, filling any unset field
// from Default().
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	cfg.WorkerCount = WorkerCount(cfg.WorkerCount)
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 44100
	}
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}
	if cfg.MicChannels <= 0 {
		cfg.MicChannels = 1
	}
	return cfg, nil
}
