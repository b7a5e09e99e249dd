// Package parse extracts the structural tree of a source file with
// line-oriented pattern matching and brace counting.
package parse

import (
	"fmt"
	"os"
	"strings"

	"github.com/zeebo/xxh3"

	"github.com/phobologic/perlgraph/internal/lang"
	"github.com/phobologic/perlgraph/internal/model"
)

// ParseFile reads a file from disk and builds its structural tree.
// filePath is recorded as the file identity and should be the path the
// file was discovered under.
func ParseFile(absPath, filePath string) (*model.SourceFile, error) {
	src, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", filePath, err)
	}
	return ParseSource(filePath, src), nil
}

// ParseSource builds the structural tree of one file. It never fails: a
// malformed block yields empty imports, definitions and residual.
func ParseSource(filePath string, src []byte) *model.SourceFile {
	l := lang.ForPath(filePath)
	lines := splitLines(string(src))

	f := &model.SourceFile{
		Path:  filePath,
		Hash:  Hash(src),
		Lines: len(lines),
	}

	for _, rb := range Segment(l, lines) {
		c := Classify(l, rb, filePath)

		block := model.Block{
			Kind:        rb.Kind,
			Name:        rb.Name,
			Line:        rb.Line,
			Imports:     c.Imports,
			Definitions: c.Definitions,
			Residual:    residualBody(c.Residual, scopeOf(rb), filePath),
		}
		for i := range block.Definitions {
			d := &block.Definitions[i]
			d.QualifiedName = Qualify(block.ScopeName(), d.Name)
		}

		f.Blocks = append(f.Blocks, block)
		f.Warnings = append(f.Warnings, c.Warnings...)
	}

	return f
}

// Qualify returns scope::name, or the bare name for the global scope.
func Qualify(scope, name string) string {
	if scope == "" {
		return name
	}
	return scope + "::" + name
}

// Hash returns the hex xxh3 fingerprint of src.
func Hash(src []byte) string {
	return fmt.Sprintf("%016x", xxh3.Hash(src))
}

func scopeOf(rb RawBlock) string {
	if rb.Kind == model.NamedScope {
		return rb.Name
	}
	return ""
}

func residualBody(lines []RawLine, scope, file string) *model.ResidualBody {
	if !hasCode(lines) {
		return nil
	}
	parts := make([]string, len(lines))
	for i, ln := range lines {
		parts[i] = ln.Text
	}
	return &model.ResidualBody{
		Body:      strings.TrimSpace(strings.Join(parts, "\n")),
		File:      file,
		Scope:     scope,
		StartLine: lines[0].No,
	}
}

// hasCode reports whether any line is neither blank nor a comment.
func hasCode(lines []RawLine) bool {
	for _, ln := range lines {
		t := strings.TrimSpace(ln.Text)
		if t != "" && !strings.HasPrefix(t, "#") {
			return true
		}
	}
	return false
}

func splitLines(s string) []string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	if s == "" {
		return nil
	}
	s = strings.TrimSuffix(s, "\n")
	return strings.Split(s, "\n")
}
