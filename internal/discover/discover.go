// Package discover finds extractable source files under an input path.
package discover

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gobwas/glob"
	ignore "github.com/sabhiram/go-gitignore"

	"github.com/phobologic/perlgraph/internal/lang"
)

// ErrNoFiles is returned when the input path holds no matching files.
var ErrNoFiles = errors.New("no source files found")

// FileEntry represents a discovered source file.
type FileEntry struct {
	Path    string // Relative to the input root, slash separated
	AbsPath string
	Size    int64
}

// Options controls which files are returned.
type Options struct {
	// Extensions limits matches to these extensions (with the dot). Empty
	// means every extension registered in the lang package.
	Extensions []string
	// Recursive descends into subdirectories.
	Recursive bool
	// Exclude holds glob patterns matched against the relative path.
	Exclude []string
	// MaxFileSize skips larger files when positive.
	MaxFileSize int64
}

var skipDirs = map[string]struct{}{
	".git":         {},
	".hg":          {},
	".svn":         {},
	"node_modules": {},
	"blib":         {},
	"_build":       {},
	"local":        {},
	".build":       {},
	"cover_db":     {},
	"nytprof":      {},
}

// Files discovers source files under root, sorted by relative path. When
// root is a single file it is returned as the only entry regardless of its
// extension.
func Files(root string, opts Options) ([]FileEntry, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve input: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat input: %w", err)
	}
	if !info.IsDir() {
		return []FileEntry{{Path: filepath.Base(root), AbsPath: root, Size: info.Size()}}, nil
	}

	excludes, err := compileGlobs(opts.Exclude)
	if err != nil {
		return nil, err
	}
	match := extensionMatcher(opts.Extensions)

	gitFiles := gitLsFiles(root)
	var gi *ignore.GitIgnore
	if gitFiles == nil {
		gi = loadGitignore(root)
	}

	var results []FileEntry

	err = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // skip errors
		}

		name := d.Name()

		if d.IsDir() {
			if path == root {
				return nil
			}
			if !opts.Recursive {
				return filepath.SkipDir
			}
			if _, skip := skipDirs[name]; skip || strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}

		if strings.HasPrefix(name, ".") {
			return nil
		}

		// Skip symlinks
		if d.Type()&os.ModeSymlink != 0 {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if gitFiles != nil {
			if _, ok := gitFiles[rel]; !ok {
				return nil
			}
		} else if gi != nil && gi.MatchesPath(rel) {
			return nil
		}

		if !match(filepath.Ext(name)) {
			return nil
		}
		for _, g := range excludes {
			if g.Match(rel) {
				return nil
			}
		}

		fi, err := d.Info()
		if err != nil {
			return nil
		}
		if opts.MaxFileSize > 0 && fi.Size() > opts.MaxFileSize {
			return nil
		}

		results = append(results, FileEntry{Path: rel, AbsPath: path, Size: fi.Size()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}

	if len(results) == 0 {
		return nil, fmt.Errorf("%s: %w", root, ErrNoFiles)
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Path < results[j].Path
	})

	return results, nil
}

func compileGlobs(patterns []string) ([]glob.Glob, error) {
	out := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, fmt.Errorf("compile exclude pattern %q: %w", p, err)
		}
		out = append(out, g)
	}
	return out, nil
}

func extensionMatcher(exts []string) func(string) bool {
	if len(exts) == 0 {
		return func(ext string) bool { return lang.ForExtension(ext) != "" }
	}
	set := make(map[string]struct{}, len(exts))
	for _, e := range exts {
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		set[e] = struct{}{}
	}
	return func(ext string) bool {
		_, ok := set[ext]
		return ok
	}
}

func gitLsFiles(root string) map[string]struct{} {
	gitDir := filepath.Join(root, ".git")
	info, err := os.Stat(gitDir)
	if err != nil || !info.IsDir() {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", "ls-files", "--cached", "--others", "--exclude-standard")
	cmd.Dir = root
	out, err := cmd.Output()
	if err != nil {
		return nil
	}

	files := make(map[string]struct{})
	for _, line := range strings.Split(strings.TrimRight(string(out), "\n"), "\n") {
		if line != "" {
			files[line] = struct{}{}
		}
	}
	return files
}

func loadGitignore(root string) *ignore.GitIgnore {
	path := filepath.Join(root, ".gitignore")
	gi, err := ignore.CompileIgnoreFile(path)
	if err != nil {
		return nil
	}
	return gi
}
