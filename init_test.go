package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phobologic/perlgraph/internal/config"
)

func TestInitCreatesFile(t *testing.T) {
	dir := t.TempDir()

	stdout, stderr, err := runCLI(t, "init", dir)
	require.NoError(t, err)
	assert.Empty(t, stdout)

	path := filepath.Join(dir, config.FileName)
	assert.Contains(t, stderr, "wrote "+path)

	cfg, err := config.Load(config.Options{File: path})
	require.NoError(t, err)
	d := config.Default()
	assert.Equal(t, d.Input.Extensions, cfg.Input.Extensions)
	assert.Equal(t, d.Output, cfg.Output)
	assert.Equal(t, d.Store, cfg.Store)
	assert.Equal(t, d.Log, cfg.Log)
}

func TestInitDryRun(t *testing.T) {
	dir := t.TempDir()

	stdout, _, err := runCLI(t, "init", "--dry-run", dir)
	require.NoError(t, err)

	assert.Contains(t, stdout, "# perlgraph configuration")
	assert.Contains(t, stdout, "batch_size: 500")
	assert.Contains(t, stdout, "retry_delay: 500ms")
	assert.NoFileExists(t, filepath.Join(dir, config.FileName))
}

func TestInitRefusesOverwrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, config.FileName)
	require.NoError(t, os.WriteFile(path, []byte("workers: 2\n"), 0o644))

	_, _, err := runCLI(t, "init", dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "workers: 2\n", string(data))
}

func TestInitForce(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, config.FileName)
	require.NoError(t, os.WriteFile(path, []byte("workers: 2\n"), 0o644))

	_, _, err := runCLI(t, "init", "--force", dir)
	require.NoError(t, err)

	cfg, err := config.Load(config.Options{File: path})
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.Workers)
}

func TestInitMissingDir(t *testing.T) {
	_, _, err := runCLI(t, "init", filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
}
