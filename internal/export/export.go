// Package export writes and reads the Project AST artifact in JSON or YAML.
package export

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/phobologic/perlgraph/internal/graph"
	"github.com/phobologic/perlgraph/internal/model"
)

// Format is an artifact serialization.
type Format string

const (
	JSON Format = "json"
	YAML Format = "yaml"
)

const (
	// CombinedName is the base name of the combined artifact.
	CombinedName = "combined_project_ast"
	// IndividualDir holds one artifact per file when requested.
	IndividualDir = "individual_files"
	// TimeLayout is the layout of Metadata.CreatedAt.
	TimeLayout = "2006-01-02 15:04:05"

	projectType = "ProjectAST"
	generator   = "perlgraph"
)

// ErrNotProjectAST is returned when a decoded document is not a Project AST.
var ErrNotProjectAST = errors.New("not a project AST")

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case JSON, YAML:
		return f, nil
	case "yml":
		return YAML, nil
	default:
		return "", fmt.Errorf("unsupported format %q (want json or yaml)", s)
	}
}

// FormatForPath picks the format from a file extension; anything that is
// not .yaml or .yml is read as JSON.
func FormatForPath(p string) Format {
	switch strings.ToLower(filepath.Ext(p)) {
	case ".yaml", ".yml":
		return YAML
	default:
		return JSON
	}
}

// Encode converts a project to its wire form.
func Encode(p *model.Project) *ProjectAST {
	ast := &ProjectAST{
		Type:  projectType,
		Files: make([]FileAST, 0, len(p.Files)),
		Metadata: Metadata{
			TotalFiles: len(p.Files),
			Generator:  generator,
		},
		Dependencies:           make([]Dependency, 0, len(p.Dependencies)),
		PackageDefinitions:     make(map[string]PackageDef),
		GlobalFunctionRegistry: make([]RegistryEntry, 0, p.Registry.Len()),
		RegistryConflicts:      make([]Conflict, 0, len(p.Conflicts)),
		CrossFileCalls:         make([]Call, 0, len(p.Calls)),
	}
	if !p.CreatedAt.IsZero() {
		ast.Metadata.CreatedAt = p.CreatedAt.Format(TimeLayout)
	}

	for i := range p.Files {
		ast.Files = append(ast.Files, encodeFile(&p.Files[i]))
	}
	for _, d := range p.Dependencies {
		ast.Dependencies = append(ast.Dependencies, Dependency{
			Source:  d.Source,
			Target:  d.Target,
			Modules: nonNil(d.Modules),
		})
	}
	for _, s := range p.Registry.Scopes() {
		ast.PackageDefinitions[s.Name] = PackageDef{File: s.File, Methods: nonNil(s.Names)}
	}
	for _, e := range p.Registry.Entries() {
		ast.GlobalFunctionRegistry = append(ast.GlobalFunctionRegistry, RegistryEntry{
			FullName: e.QualifiedName,
			File:     e.File,
			Package:  e.Scope,
			Name:     e.Name,
		})
	}
	for _, c := range p.Conflicts {
		ast.RegistryConflicts = append(ast.RegistryConflicts, Conflict{
			FullName: c.QualifiedName,
			Previous: c.Previous,
			Winner:   c.Winner,
		})
	}
	for _, c := range p.Calls {
		ast.CrossFileCalls = append(ast.CrossFileCalls, Call{
			CallerFile:     c.CallerFile,
			CallerPackage:  c.CallerScope,
			CallerMethod:   c.CallerDefinition,
			TargetFile:     c.TargetFile,
			TargetPackage:  c.TargetScope,
			TargetMethod:   c.TargetDefinition,
			TargetFullName: c.TargetQualified,
			CallPattern:    c.Pattern,
			CallType:       string(c.Kind),
		})
	}
	return ast
}

func encodeFile(f *model.SourceFile) FileAST {
	out := FileAST{
		Type:          "PerlFile",
		SourceFile:    f.Path,
		Hash:          f.Hash,
		LineCount:     f.Lines,
		UseStatements: encodeImports(f.Imports()),
		Packages:      []Package{},
	}

	for _, b := range f.Packages() {
		pkg := Package{
			Type:          "PackageDeclaration",
			Name:          b.Name,
			Line:          b.Line,
			UseStatements: encodeImports(b.Imports),
			Methods:       encodeDefinitions(b.Definitions),
			SourceFile:    f.Path,
		}
		if b.Residual != nil {
			pkg.ScriptExecution = &ScriptExecution{
				Type:       "ScriptExecution",
				Body:       b.Residual.Body,
				SourceFile: f.Path,
				StartLine:  b.Residual.StartLine,
			}
		}
		out.Packages = append(out.Packages, pkg)
	}

	if g := f.Global(); g != nil {
		gs := &GlobalScope{Type: "GlobalScope", SourceFile: f.Path}
		if g.Residual != nil {
			gs.Body = g.Residual.Body
			gs.StartLine = g.Residual.StartLine
		}
		if len(g.Definitions) > 0 {
			gs.Functions = encodeDefinitions(g.Definitions)
		}
		out.GlobalScope = gs
	}

	for _, w := range f.Warnings {
		out.Warnings = append(out.Warnings, Warning{
			Kind:    string(w.Kind),
			File:    w.File,
			Line:    w.Line,
			Message: w.Message,
		})
	}
	return out
}

func encodeImports(imps []model.Import) []UseStatement {
	out := make([]UseStatement, 0, len(imps))
	for _, imp := range imps {
		out = append(out, UseStatement{
			Type:       "UseStatement",
			Keyword:    imp.Keyword,
			Module:     imp.Module,
			SourceFile: imp.File,
			Line:       imp.Line,
		})
	}
	return out
}

func encodeDefinitions(defs []model.Definition) []Method {
	out := make([]Method, 0, len(defs))
	for _, d := range defs {
		out = append(out, Method{
			Type:       "SubDefinition",
			Name:       d.Name,
			FullName:   d.QualifiedName,
			Package:    d.Scope,
			Parameters: nonNil(d.Parameters),
			Body:       d.Body,
			SourceFile: d.File,
			StartLine:  d.StartLine,
			EndLine:    d.EndLine,
			Balanced:   d.Balanced,
		})
	}
	return out
}

// Decode rebuilds a project from its wire form. The registry, conflicts and
// dependencies are recomputed from the files; calls are taken as recorded.
func Decode(ast *ProjectAST) (*model.Project, error) {
	if ast == nil || ast.Type != projectType {
		return nil, ErrNotProjectAST
	}

	files := make([]model.SourceFile, 0, len(ast.Files))
	for i := range ast.Files {
		f, err := decodeFile(&ast.Files[i])
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}

	p := graph.Assemble(files)
	if ast.Metadata.CreatedAt != "" {
		t, err := time.ParseInLocation(TimeLayout, ast.Metadata.CreatedAt, time.Local)
		if err != nil {
			return nil, fmt.Errorf("metadata.created_at: %w", err)
		}
		p.CreatedAt = t
	}
	for _, c := range ast.CrossFileCalls {
		p.Calls = append(p.Calls, model.CallEdge{
			CallerFile:       c.CallerFile,
			CallerScope:      c.CallerPackage,
			CallerDefinition: c.CallerMethod,
			TargetFile:       c.TargetFile,
			TargetScope:      c.TargetPackage,
			TargetDefinition: c.TargetMethod,
			TargetQualified:  c.TargetFullName,
			Pattern:          c.CallPattern,
			Kind:             model.CallKind(c.CallType),
		})
	}
	return p, nil
}

func decodeFile(fa *FileAST) (model.SourceFile, error) {
	if fa.SourceFile == "" {
		return model.SourceFile{}, fmt.Errorf("%w: file without source_file", ErrNotProjectAST)
	}
	f := model.SourceFile{Path: fa.SourceFile, Hash: fa.Hash, Lines: fa.LineCount}

	if gs := fa.GlobalScope; gs != nil {
		b := model.Block{
			Kind:        model.GlobalScope,
			Imports:     decodeImports(fa.UseStatements, ""),
			Definitions: decodeDefinitions(gs.Functions, f.Path),
		}
		if gs.Body != "" {
			b.Residual = &model.ResidualBody{Body: gs.Body, File: f.Path, StartLine: gs.StartLine}
		}
		f.Blocks = append(f.Blocks, b)
	}

	for _, pkg := range fa.Packages {
		b := model.Block{
			Kind:        model.NamedScope,
			Name:        pkg.Name,
			Line:        pkg.Line,
			Imports:     decodeImports(pkg.UseStatements, pkg.Name),
			Definitions: decodeDefinitions(pkg.Methods, f.Path),
		}
		if se := pkg.ScriptExecution; se != nil {
			b.Residual = &model.ResidualBody{Body: se.Body, File: f.Path, Scope: pkg.Name, StartLine: se.StartLine}
		}
		f.Blocks = append(f.Blocks, b)
	}

	for _, w := range fa.Warnings {
		f.Warnings = append(f.Warnings, model.Warning{
			Kind:    model.WarningKind(w.Kind),
			File:    w.File,
			Line:    w.Line,
			Message: w.Message,
		})
	}
	return f, nil
}

func decodeImports(uses []UseStatement, scope string) []model.Import {
	var out []model.Import
	for _, u := range uses {
		keyword := u.Keyword
		if keyword == "" {
			keyword = "use"
		}
		out = append(out, model.Import{
			Module:  u.Module,
			Keyword: keyword,
			Scope:   scope,
			File:    u.SourceFile,
			Line:    u.Line,
		})
	}
	return out
}

func decodeDefinitions(methods []Method, file string) []model.Definition {
	var out []model.Definition
	for _, m := range methods {
		src := m.SourceFile
		if src == "" {
			src = file
		}
		out = append(out, model.Definition{
			Name:          m.Name,
			QualifiedName: m.FullName,
			Scope:         m.Package,
			Parameters:    nilIfEmpty(m.Parameters),
			Body:          m.Body,
			File:          src,
			StartLine:     m.StartLine,
			EndLine:       m.EndLine,
			Balanced:      m.Balanced,
		})
	}
	return out
}

// Write serializes v (a ProjectAST or FileAST) to w.
func Write(w io.Writer, v any, f Format) error {
	switch f {
	case JSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("encode json: %w", err)
		}
	case YAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		if err := enc.Close(); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
	default:
		return fmt.Errorf("unsupported format %q", f)
	}
	return nil
}

// Read decodes a Project AST from r.
func Read(r io.Reader, f Format) (*ProjectAST, error) {
	var ast ProjectAST
	switch f {
	case JSON:
		if err := json.NewDecoder(r).Decode(&ast); err != nil {
			return nil, fmt.Errorf("decode json: %w", err)
		}
	case YAML:
		if err := yaml.NewDecoder(r).Decode(&ast); err != nil {
			return nil, fmt.Errorf("decode yaml: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported format %q", f)
	}
	if ast.Type != projectType {
		return nil, ErrNotProjectAST
	}
	return &ast, nil
}

// WriteProject writes the combined artifact into dir and, when individual
// is set, one JSON artifact per file under dir/individual_files. It returns
// the paths written, combined artifact first.
func WriteProject(dir string, p *model.Project, f Format, individual bool) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating %s: %w", dir, err)
	}

	ast := Encode(p)
	combined := filepath.Join(dir, CombinedName+"."+string(f))
	if err := writeFile(combined, ast, f); err != nil {
		return nil, err
	}
	written := []string{combined}

	if !individual {
		return written, nil
	}

	indDir := filepath.Join(dir, IndividualDir)
	if err := os.MkdirAll(indDir, 0o755); err != nil {
		return written, fmt.Errorf("creating %s: %w", indDir, err)
	}
	for i, name := range IndividualNames(ast.Files) {
		out := filepath.Join(indDir, name)
		if err := writeFile(out, &ast.Files[i], JSON); err != nil {
			return written, err
		}
		written = append(written, out)
	}
	return written, nil
}

// ReadProject reads a combined artifact, picking the format from the file
// extension, and rebuilds the project.
func ReadProject(p string) (*model.Project, error) {
	fh, err := os.Open(p)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", p, err)
	}
	defer fh.Close()

	ast, err := Read(fh, FormatForPath(p))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", p, err)
	}
	return Decode(ast)
}

// IndividualNames returns the per-file artifact names: the base name with
// dots replaced by underscores plus "_ast.json". A base name already taken
// by an earlier file falls back to the whole relative path.
func IndividualNames(files []FileAST) []string {
	names := make([]string, len(files))
	seen := make(map[string]bool, len(files))
	for i, fa := range files {
		name := flatten(path.Base(fa.SourceFile)) + "_ast.json"
		if seen[name] {
			name = flatten(fa.SourceFile) + "_ast.json"
		}
		seen[name] = true
		names[i] = name
	}
	return names
}

func flatten(s string) string {
	return strings.NewReplacer(".", "_", "/", "_").Replace(s)
}

func writeFile(p string, v any, f Format) error {
	fh, err := os.Create(p)
	if err != nil {
		return fmt.Errorf("creating %s: %w", p, err)
	}
	if err := Write(fh, v, f); err != nil {
		fh.Close()
		return fmt.Errorf("writing %s: %w", p, err)
	}
	return fh.Close()
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nilIfEmpty(s []string) []string {
	if len(s) == 0 {
		return nil
	}
	return s
}
