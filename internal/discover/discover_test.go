package discover

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func paths(entries []FileEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Path
	}
	return out
}

func TestDiscoverPerlFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	writeFile(t, dir, "script.pl", "print 1;")
	writeFile(t, dir, "lib/Animal.pm", "package Animal;")
	writeFile(t, dir, "lib/Legacy.perl", "1;")
	// Non-Perl file should be ignored
	writeFile(t, dir, "readme.txt", "hello")
	// Hidden file should be ignored
	writeFile(t, dir, ".hidden.pl", "secret")

	entries, err := Files(dir, Options{Recursive: true})
	require.NoError(t, err)

	// Should be sorted
	assert.Equal(t, []string{"lib/Animal.pm", "lib/Legacy.perl", "script.pl"}, paths(entries))
	for _, e := range entries {
		assert.True(t, filepath.IsAbs(e.AbsPath), e.AbsPath)
		assert.Positive(t, e.Size)
	}
}

func TestDiscoverNonRecursive(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "top.pl", "1;")
	writeFile(t, dir, "lib/Deep.pm", "1;")

	entries, err := Files(dir, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"top.pl"}, paths(entries))
}

func TestDiscoverSkipDirs(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	writeFile(t, dir, "main.pl", "1;")
	writeFile(t, dir, "blib/lib/Copy.pm", "1;")
	writeFile(t, dir, "local/lib/perl5/Dep.pm", "1;")
	writeFile(t, dir, ".hidden/secret.pl", "1;")

	entries, err := Files(dir, Options{Recursive: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"main.pl"}, paths(entries))
}

func TestDiscoverExtensionFilter(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "a.pl", "1;")
	writeFile(t, dir, "B.pm", "1;")
	writeFile(t, dir, "c.t", "1;")

	entries, err := Files(dir, Options{Extensions: []string{".pm", "t"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"B.pm", "c.t"}, paths(entries))
}

func TestDiscoverExcludeGlobs(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "lib/Keep.pm", "1;")
	writeFile(t, dir, "lib/Gen/Skip.pm", "1;")
	writeFile(t, dir, "t/basic.pl", "1;")

	entries, err := Files(dir, Options{Recursive: true, Exclude: []string{"lib/Gen/**", "t/*"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"lib/Keep.pm"}, paths(entries))
}

func TestDiscoverMaxFileSize(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "small.pl", "1;")
	writeFile(t, dir, "big.pl", strings.Repeat("#", 1024))

	entries, err := Files(dir, Options{MaxFileSize: 100})
	require.NoError(t, err)
	assert.Equal(t, []string{"small.pl"}, paths(entries))
}

func TestDiscoverGitignore(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, ".gitignore", "*.bak.pl\n")
	writeFile(t, dir, "main.pl", "1;")
	writeFile(t, dir, "old/main.bak.pl", "1;")

	entries, err := Files(dir, Options{Recursive: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"main.pl"}, paths(entries))
}

func TestDiscoverSingleFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "tool", "#!/usr/bin/perl\nprint 1;\n")

	entries, err := Files(filepath.Join(dir, "tool"), Options{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "tool", entries[0].Path)
}

func TestDiscoverNoFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "readme.txt", "nothing")

	_, err := Files(dir, Options{Recursive: true})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoFiles))
}

func TestDiscoverMissingRoot(t *testing.T) {
	t.Parallel()

	_, err := Files(filepath.Join(t.TempDir(), "absent"), Options{})
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNoFiles))
}

func TestDiscoverSymlinksSkipped(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "real.pl", "1;")

	// Create symlink
	err := os.Symlink(filepath.Join(dir, "real.pl"), filepath.Join(dir, "link.pl"))
	if err != nil {
		t.Skip("symlinks not supported")
	}

	entries, err := Files(dir, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"real.pl"}, paths(entries))
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}
