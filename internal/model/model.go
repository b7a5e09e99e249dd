// Package model defines core data structures for perlgraph.
package model

import (
	"regexp"
	"strings"
	"time"
)

var classNameRe = regexp.MustCompile(`[A-Za-z_]\w*(?:::\w+)*`)

// ScopeKind distinguishes the implicit global scope from declared packages.
type ScopeKind string

const (
	GlobalScope ScopeKind = "global"
	NamedScope  ScopeKind = "package"
)

// Import is a use/no/require statement found in a block.
type Import struct {
	Module  string // module text as written, e.g. "POSIX qw(floor)"
	Keyword string // use, no or require
	Scope   string // owning package name, "" for the global scope
	File    string
	Line    int
}

// BaseModule returns the module name without trailing import arguments,
// an empty argument list or a statement terminator.
func (i Import) BaseModule() string {
	fields := strings.Fields(i.Module)
	if len(fields) == 0 {
		return ""
	}
	base := fields[0]
	if cut := strings.IndexAny(base, "(;'\""); cut >= 0 {
		base = base[:cut]
	}
	return base
}

// Parents returns the class names listed by a "use parent" or "use base"
// import, or nil for any other import.
func (i Import) Parents() []string {
	base := i.BaseModule()
	if i.Keyword != "use" || (base != "parent" && base != "base") {
		return nil
	}
	var out []string
	for _, name := range classNameRe.FindAllString(strings.TrimPrefix(i.Module, base), -1) {
		if name == "qw" || name == "norequire" {
			continue
		}
		out = append(out, name)
	}
	return out
}

// Definition is a named subroutine extracted from a block.
type Definition struct {
	Name          string
	QualifiedName string
	Scope         string
	Parameters    []string
	Body          string
	File          string
	StartLine     int
	EndLine       int
	// Balanced is false when the closing brace was never found before end of file.
	Balanced bool
}

// ResidualBody holds the executable statements of a block that are neither
// imports nor definitions.
type ResidualBody struct {
	Body      string
	File      string
	Scope     string
	StartLine int
}

// Block is a contiguous span of a file owned by one scope.
type Block struct {
	Kind        ScopeKind
	Name        string // package name; empty for GlobalScope
	Line        int    // line of the package declaration, 0 for the global scope
	Imports     []Import
	Definitions []Definition
	Residual    *ResidualBody
}

// ScopeName returns the package name, or "" for the global scope.
func (b *Block) ScopeName() string {
	if b.Kind == GlobalScope {
		return ""
	}
	return b.Name
}

// WarningKind classifies soft extraction problems.
type WarningKind string

const (
	UnbalancedDefinition WarningKind = "unbalanced_definition"
)

// Warning is a non-fatal extraction problem.
type Warning struct {
	Kind    WarningKind
	File    string
	Line    int
	Message string
}

// SourceFile is the structural tree of one input file.
type SourceFile struct {
	Path     string
	Hash     string // xxh3 of the raw content
	Lines    int
	Blocks   []Block
	Warnings []Warning
}

// Imports returns the file-level imports, i.e. those of the global scope.
func (f *SourceFile) Imports() []Import {
	var out []Import
	for i := range f.Blocks {
		if f.Blocks[i].Kind == GlobalScope {
			out = append(out, f.Blocks[i].Imports...)
		}
	}
	return out
}

// AllImports returns every import in the file in block order.
func (f *SourceFile) AllImports() []Import {
	var out []Import
	for i := range f.Blocks {
		out = append(out, f.Blocks[i].Imports...)
	}
	return out
}

// Definitions returns every definition in the file in block order.
func (f *SourceFile) Definitions() []Definition {
	var out []Definition
	for i := range f.Blocks {
		out = append(out, f.Blocks[i].Definitions...)
	}
	return out
}

// Global returns the global-scope block, or nil.
func (f *SourceFile) Global() *Block {
	for i := range f.Blocks {
		if f.Blocks[i].Kind == GlobalScope {
			return &f.Blocks[i]
		}
	}
	return nil
}

// Packages returns the named-scope blocks in file order.
func (f *SourceFile) Packages() []*Block {
	var out []*Block
	for i := range f.Blocks {
		if f.Blocks[i].Kind == NamedScope {
			out = append(out, &f.Blocks[i])
		}
	}
	return out
}

// Conflict records a qualified name declared by more than one file.
// Winner is the file whose definition the registry keeps.
type Conflict struct {
	QualifiedName string
	Previous      string
	Winner        string
}

// Dependency represents an edge in the file dependency graph:
// Source imports a package declared in Target.
type Dependency struct {
	Source  string
	Target  string
	Modules []string
}

// CallKind names the matcher that produced a call edge.
type CallKind string

const (
	ObjectMethod   CallKind = "object_method"
	ScopeQualified CallKind = "scope_qualified"
	Constructor    CallKind = "constructor"
	DirectFunction CallKind = "direct_function"
)

// CallEdge is a call site resolved to a definition in a different file.
type CallEdge struct {
	CallerFile string
	// CallerScope is the package of the call site, "" for the global scope.
	CallerScope string
	// CallerDefinition is the qualified name of the enclosing definition,
	// "" when the call site is in a residual body.
	CallerDefinition string
	TargetFile       string
	TargetScope      string
	TargetDefinition string
	TargetQualified  string
	Pattern          string
	Kind             CallKind
}

// FileError records a file that could not be extracted.
type FileError struct {
	File  string
	Error string
}

// Project is the merged structural model of all successfully parsed files.
type Project struct {
	Files        []SourceFile
	Registry     *Registry
	Conflicts    []Conflict
	Dependencies []Dependency
	Calls        []CallEdge
	CreatedAt    time.Time
}

// File returns the file with the given path, or nil.
func (p *Project) File(path string) *SourceFile {
	for i := range p.Files {
		if p.Files[i].Path == path {
			return &p.Files[i]
		}
	}
	return nil
}
