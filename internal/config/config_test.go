package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, FileName)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	t.Parallel()
	require.NoError(t, Validate(Default()))
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load(Options{Dir: t.TempDir()})
	require.NoError(t, err)

	d := Default()
	assert.Equal(t, d.Input.Extensions, cfg.Input.Extensions)
	assert.True(t, cfg.Input.Recursive)
	assert.Empty(t, cfg.Input.Exclude)
	assert.Equal(t, d.Input.MaxFileSize, cfg.Input.MaxFileSize)
	assert.Equal(t, d.Output, cfg.Output)
	assert.Equal(t, d.Store, cfg.Store)
	assert.Equal(t, d.Log, cfg.Log)
	assert.Equal(t, 0, cfg.Workers)
}

func TestLoadConfigFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeConfig(t, dir, `
input:
  extensions: [".pm"]
  exclude: ["t/**"]
workers: 4
output:
  format: yaml
  individual: true
store:
  path: graph.db
  retry_delay: 2s
log:
  level: debug
`)

	cfg, err := Load(Options{Dir: dir})
	require.NoError(t, err)

	assert.Equal(t, []string{".pm"}, cfg.Input.Extensions)
	assert.Equal(t, []string{"t/**"}, cfg.Input.Exclude)
	assert.True(t, cfg.Input.Recursive, "unset keys keep their default")
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, "yaml", cfg.Output.Format)
	assert.True(t, cfg.Output.Individual)
	assert.Equal(t, "AST", cfg.Output.Dir)
	assert.Equal(t, "graph.db", cfg.Store.Path)
	assert.Equal(t, 2*time.Second, cfg.Store.RetryDelay)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadExplicitFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("output:\n  dir: elsewhere\n"), 0o644))

	cfg, err := Load(Options{File: path})
	require.NoError(t, err)
	assert.Equal(t, "elsewhere", cfg.Output.Dir)

	_, err = Load(Options{File: filepath.Join(t.TempDir(), "missing.yaml")})
	require.Error(t, err)
}

func TestLoadInvalidFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeConfig(t, dir, "output:\n  format: xml\nworkers: -2\n")

	_, err := Load(Options{Dir: dir})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidOutput)
	assert.ErrorIs(t, err, ErrInvalidWorkers)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "output:\n  dir: from-file\nworkers: 2\n")

	t.Setenv("PERLGRAPH_OUTPUT_DIR", "from-env")
	t.Setenv("PERLGRAPH_STORE_BATCH_SIZE", "50")

	cfg, err := Load(Options{Dir: dir})
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Output.Dir)
	assert.Equal(t, 50, cfg.Store.BatchSize)
	assert.Equal(t, 2, cfg.Workers)
}

func TestLoadFlagsOverrideEnv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("PERLGRAPH_OUTPUT_DIR", "from-env")
	t.Setenv("PERLGRAPH_WORKERS", "3")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.StringP("output", "o", "AST", "")
	fs.IntP("jobs", "j", 0, "")
	fs.StringSlice("exclude", nil, "")
	require.NoError(t, fs.Parse([]string{"-o", "from-flag", "--exclude", "a/**,b/*"}))

	cfg, err := Load(Options{
		Dir:     dir,
		FlagSet: fs,
		Flags: map[string]string{
			"output.dir":    "output",
			"workers":       "jobs",
			"input.exclude": "exclude",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "from-flag", cfg.Output.Dir)
	assert.Equal(t, 3, cfg.Workers, "an unset flag does not override the environment")
	assert.Equal(t, []string{"a/**", "b/*"}, cfg.Input.Exclude)
}

func TestLoadUnknownFlag(t *testing.T) {
	t.Parallel()

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	_, err := Load(Options{Dir: t.TempDir(), FlagSet: fs, Flags: map[string]string{"workers": "jobs"}})
	require.Error(t, err)
}

func TestDefaultYAMLLoadsBack(t *testing.T) {
	t.Parallel()

	data, err := yaml.Marshal(Default())
	require.NoError(t, err)
	assert.Contains(t, string(data), "retry_delay: 500ms")

	dir := t.TempDir()
	writeConfig(t, dir, string(data))
	cfg, err := Load(Options{Dir: dir})
	require.NoError(t, err)
	assert.Equal(t, Default().Store, cfg.Store)
	assert.Equal(t, Default().Output, cfg.Output)
}

func TestValidateAggregates(t *testing.T) {
	t.Parallel()

	cfg := Default()
	cfg.Workers = -1
	cfg.Input.MaxFileSize = -5
	cfg.Input.Extensions = []string{".pm", "."}
	cfg.Output.Dir = " "
	cfg.Store.Retries = -1
	cfg.Log.Level = "loud"
	cfg.Log.Format = "xml"

	err := Validate(cfg)
	require.Error(t, err)
	for _, want := range []error{ErrInvalidWorkers, ErrInvalidInput, ErrInvalidOutput, ErrInvalidStore, ErrInvalidLog} {
		assert.ErrorIs(t, err, want)
	}
	assert.Contains(t, err.Error(), "empty extension")
	assert.Contains(t, err.Error(), "'loud'")
}

func TestSlogLevel(t *testing.T) {
	t.Parallel()

	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, LogConfig{Level: in}.SlogLevel(), in)
	}
}

func TestNewLoggerFormat(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	LogConfig{Level: "info", Format: "json"}.NewLogger(&buf).Info("registry.conflict", "name", "Foo::bar")
	assert.Contains(t, buf.String(), `"msg":"registry.conflict"`)

	buf.Reset()
	LogConfig{Level: "warn", Format: "text"}.NewLogger(&buf).Info("hidden")
	assert.Empty(t, buf.String())
}
