// Package lang provides a language registry mapping file extensions to the
// line patterns used for structural extraction.
package lang

import (
	"regexp"
	"strings"
	"sync"
)

var whitespaceRe = regexp.MustCompile(`\s+`)

// Language holds the extraction patterns for a supported scripting language.
// Patterns are matched against single lines; none of them need a grammar.
type Language struct {
	Name       string
	Extensions []string

	// Namespace matches a namespace declaration; group 1 is the scope name.
	Namespace *regexp.Regexp
	// Import matches an import statement; group 1 is the keyword, group 2 the module text.
	Import *regexp.Regexp
	// Require matches a bareword require; group 1 is the module name.
	Require *regexp.Regexp
	// Definition matches the opening of a named callable; group 1 is the name.
	Definition *regexp.Regexp
	// ListParams matches an argument-list assignment in a body; group 1 holds the names.
	ListParams *regexp.Regexp
	// ShiftParam matches a single-argument shift; group 1 is the name.
	ShiftParam *regexp.Regexp
	// DocStart and DocEnd delimit embedded documentation regions.
	DocStart *regexp.Regexp
	DocEnd   *regexp.Regexp
	// DataMarker ends the code section of a file.
	DataMarker *regexp.Regexp
}

// Languages maps language names to their configuration.
// Populated by init() functions in per-language files.
var Languages = map[string]*Language{}

// extensionMap is built lazily after all init() functions have run.
var extensionMap map[string]string
var extensionOnce sync.Once

func getExtensionMap() map[string]string {
	extensionOnce.Do(func() {
		extensionMap = make(map[string]string)
		for _, l := range Languages {
			for _, ext := range l.Extensions {
				extensionMap[ext] = l.Name
			}
		}
	})
	return extensionMap
}

// ForExtension returns the language name for a file extension, or "" if unsupported.
func ForExtension(ext string) string {
	return getExtensionMap()[ext]
}

// ForPath returns the language for a file path, falling back to Perl for
// files whose extension is not registered.
func ForPath(path string) *Language {
	if i := strings.LastIndexByte(path, '.'); i >= 0 {
		if name := ForExtension(path[i:]); name != "" {
			return Languages[name]
		}
	}
	return Languages["perl"]
}

// CollapseWhitespace replaces runs of whitespace with a single space and trims.
func CollapseWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}
