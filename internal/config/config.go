// Package config loads perlgraph settings from defaults, a .perlgraph.yaml
// file, PERLGRAPH_* environment variables and command-line flags.
package config

import (
	"io"
	"log/slog"
	"strings"
	"time"
)

// FileName is the config file searched for in the input root.
const FileName = ".perlgraph.yaml"

// Config is the complete perlgraph configuration.
type Config struct {
	Input   InputConfig  `yaml:"input" mapstructure:"input"`
	Workers int          `yaml:"workers" mapstructure:"workers"` // 0 uses every CPU
	Output  OutputConfig `yaml:"output" mapstructure:"output"`
	Store   StoreConfig  `yaml:"store" mapstructure:"store"`
	Log     LogConfig    `yaml:"log" mapstructure:"log"`
}

// InputConfig selects the files to extract.
type InputConfig struct {
	Extensions  []string `yaml:"extensions" mapstructure:"extensions"`
	Recursive   bool     `yaml:"recursive" mapstructure:"recursive"`
	Exclude     []string `yaml:"exclude" mapstructure:"exclude"`             // glob patterns, slash separated
	MaxFileSize int64    `yaml:"max_file_size" mapstructure:"max_file_size"` // bytes; 0 disables the limit
}

// OutputConfig controls the written artifacts.
type OutputConfig struct {
	Dir        string `yaml:"dir" mapstructure:"dir"`
	Format     string `yaml:"format" mapstructure:"format"` // json or yaml
	Individual bool   `yaml:"individual" mapstructure:"individual"`
	Top        int    `yaml:"top" mapstructure:"top"` // ranked files listed in the summary
}

// StoreConfig controls the SQLite graph store. An empty Path disables it.
type StoreConfig struct {
	Path       string        `yaml:"path" mapstructure:"path"`
	BatchSize  int           `yaml:"batch_size" mapstructure:"batch_size"`
	Retries    int           `yaml:"retries" mapstructure:"retries"`
	RetryDelay time.Duration `yaml:"retry_delay" mapstructure:"retry_delay"`
	Reset      bool          `yaml:"reset" mapstructure:"reset"`
}

// MarshalYAML writes RetryDelay as a duration string.
func (s StoreConfig) MarshalYAML() (any, error) {
	return struct {
		Path       string `yaml:"path"`
		BatchSize  int    `yaml:"batch_size"`
		Retries    int    `yaml:"retries"`
		RetryDelay string `yaml:"retry_delay"`
		Reset      bool   `yaml:"reset"`
	}{s.Path, s.BatchSize, s.Retries, s.RetryDelay.String(), s.Reset}, nil
}

// LogConfig controls the slog handler.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`   // debug, info, warn or error
	Format string `yaml:"format" mapstructure:"format"` // text or json
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		Input: InputConfig{
			Extensions:  []string{".pl", ".pm", ".perl"},
			Recursive:   true,
			Exclude:     []string{},
			MaxFileSize: 1_000_000,
		},
		Output: OutputConfig{
			Dir:    "AST",
			Format: "json",
			Top:    10,
		},
		Store: StoreConfig{
			BatchSize:  500,
			Retries:    3,
			RetryDelay: 500 * time.Millisecond,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// SlogLevel maps Level to a slog level; unknown names mean info.
func (l LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger builds a logger writing to w in the configured format.
func (l LogConfig) NewLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: l.SlogLevel()}
	if strings.ToLower(l.Format) == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
