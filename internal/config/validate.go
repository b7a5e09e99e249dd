package config

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidWorkers indicates a negative worker count.
	ErrInvalidWorkers = errors.New("invalid worker count")

	// ErrInvalidInput indicates bad file selection settings.
	ErrInvalidInput = errors.New("invalid input settings")

	// ErrInvalidOutput indicates bad artifact settings.
	ErrInvalidOutput = errors.New("invalid output settings")

	// ErrInvalidStore indicates bad store settings.
	ErrInvalidStore = errors.New("invalid store settings")

	// ErrInvalidLog indicates an unknown log level or format.
	ErrInvalidLog = errors.New("invalid log settings")
)

// Validate checks every section and reports all problems at once.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Workers < 0 {
		errs = append(errs, fmt.Errorf("%w: must be >= 0, got %d", ErrInvalidWorkers, cfg.Workers))
	}

	if cfg.Input.MaxFileSize < 0 {
		errs = append(errs, fmt.Errorf("%w: max_file_size must be >= 0, got %d", ErrInvalidInput, cfg.Input.MaxFileSize))
	}
	for _, ext := range cfg.Input.Extensions {
		if strings.TrimSpace(strings.TrimPrefix(ext, ".")) == "" {
			errs = append(errs, fmt.Errorf("%w: empty extension", ErrInvalidInput))
			break
		}
	}

	if strings.TrimSpace(cfg.Output.Dir) == "" {
		errs = append(errs, fmt.Errorf("%w: dir is required", ErrInvalidOutput))
	}
	switch strings.ToLower(cfg.Output.Format) {
	case "json", "yaml", "yml":
	default:
		errs = append(errs, fmt.Errorf("%w: format must be 'json' or 'yaml', got '%s'", ErrInvalidOutput, cfg.Output.Format))
	}
	if cfg.Output.Top < 0 {
		errs = append(errs, fmt.Errorf("%w: top must be >= 0, got %d", ErrInvalidOutput, cfg.Output.Top))
	}

	if cfg.Store.BatchSize < 0 {
		errs = append(errs, fmt.Errorf("%w: batch_size must be >= 0, got %d", ErrInvalidStore, cfg.Store.BatchSize))
	}
	if cfg.Store.Retries < 0 {
		errs = append(errs, fmt.Errorf("%w: retries must be >= 0, got %d", ErrInvalidStore, cfg.Store.Retries))
	}
	if cfg.Store.RetryDelay < 0 {
		errs = append(errs, fmt.Errorf("%w: retry_delay must be >= 0, got %s", ErrInvalidStore, cfg.Store.RetryDelay))
	}

	switch strings.ToLower(cfg.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("%w: level must be debug, info, warn or error, got '%s'", ErrInvalidLog, cfg.Log.Level))
	}
	switch strings.ToLower(cfg.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("%w: format must be 'text' or 'json', got '%s'", ErrInvalidLog, cfg.Log.Format))
	}

	return errors.Join(errs...)
}
