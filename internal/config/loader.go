package config

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Options locates the configuration sources.
type Options struct {
	// Dir is searched for .perlgraph.yaml when File is empty.
	Dir string
	// File is an explicit config file; it must exist.
	File string
	// Flags maps config keys (e.g. "output.dir") to flags of FlagSet.
	// Only flags set on the command line override the other sources.
	FlagSet *pflag.FlagSet
	Flags   map[string]string
}

// Load reads the configuration with the following priority (highest first):
//  1. flags set on the command line
//  2. environment variables (PERLGRAPH_*, "." replaced by "_")
//  3. the config file
//  4. Default()
func Load(opts Options) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("PERLGRAPH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range v.AllKeys() {
		_ = v.BindEnv(key)
	}

	if opts.FlagSet != nil {
		for key, name := range opts.Flags {
			f := opts.FlagSet.Lookup(name)
			if f == nil {
				return nil, fmt.Errorf("bind flag %q: no such flag", name)
			}
			if !f.Changed {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("bind flag %q: %w", name, err)
			}
		}
	}

	if opts.File != "" {
		v.SetConfigFile(opts.File)
	} else {
		dir := opts.Dir
		if dir == "" {
			dir = "."
		}
		v.SetConfigName(strings.TrimSuffix(FileName, filepath.Ext(FileName)))
		v.SetConfigType("yaml")
		v.AddConfigPath(dir)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if opts.File != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	if f := v.ConfigFileUsed(); f != "" {
		slog.Debug("config.loaded", "file", f)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("input.extensions", d.Input.Extensions)
	v.SetDefault("input.recursive", d.Input.Recursive)
	v.SetDefault("input.exclude", d.Input.Exclude)
	v.SetDefault("input.max_file_size", d.Input.MaxFileSize)

	v.SetDefault("workers", d.Workers)

	v.SetDefault("output.dir", d.Output.Dir)
	v.SetDefault("output.format", d.Output.Format)
	v.SetDefault("output.individual", d.Output.Individual)
	v.SetDefault("output.top", d.Output.Top)

	v.SetDefault("store.path", d.Store.Path)
	v.SetDefault("store.batch_size", d.Store.BatchSize)
	v.SetDefault("store.retries", d.Store.Retries)
	v.SetDefault("store.retry_delay", d.Store.RetryDelay)
	v.SetDefault("store.reset", d.Store.Reset)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}
