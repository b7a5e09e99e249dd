package transform

import (
	"path"
	"regexp"
	"strings"

	"github.com/phobologic/perlgraph/internal/model"
)

var nonIDChar = regexp.MustCompile(`[^A-Za-z0-9_]`)

// NormalizeID maps text to an identifier fragment: "::" and every character
// outside [A-Za-z0-9_] become "_".
func NormalizeID(text string) string {
	return nonIDChar.ReplaceAllString(strings.ReplaceAll(text, "::", "_"), "_")
}

// FileID is the node id of a file.
func FileID(filePath string) string {
	return "file_" + NormalizeID(filePath)
}

// PackageID is the node id of a named scope declared in a file.
func PackageID(filePath, scope string) string {
	return "package_" + FileID(filePath) + "_" + NormalizeID(scope)
}

// OwnerID is the node that owns a scope's definitions, imports and residual
// body: the package node, or the file node for the global scope.
func OwnerID(filePath, scope string) string {
	if scope == "" {
		return FileID(filePath)
	}
	return PackageID(filePath, scope)
}

// MethodID is the node id of a definition.
func MethodID(ownerID, name string) string {
	return "method_" + ownerID + "_" + NormalizeID(name)
}

// UseID is the node id of an import.
func UseID(ownerID, module string) string {
	return "use_" + NormalizeID(module) + "_" + ownerID
}

// ScriptID is the node id of a residual body.
func ScriptID(ownerID string) string {
	return "script_" + ownerID
}

// builder accumulates nodes, emitting each id once.
type builder struct {
	nodes []Node
	index map[string]int
	rels  []Relationship
}

func (b *builder) node(n Node) {
	if i, ok := b.index[n.ID]; ok {
		count := 1
		if v, ok := b.nodes[i].Attrs.Get("occurrences"); ok {
			count = v.(int)
		}
		b.nodes[i].Attrs.Set("occurrences", count+1)
		return
	}
	b.index[n.ID] = len(b.nodes)
	b.nodes = append(b.nodes, n)
}

func (b *builder) rel(from, to, typ string, attrs Attrs) {
	b.rels = append(b.rels, Relationship{From: from, To: to, Type: typ, Attrs: attrs})
}

// Transform converts a project and its resolved calls into a graph. The same
// project always yields the same node ids, in the same order, and the same
// aggregated relationships.
func Transform(p *model.Project) *Graph {
	b := &builder{index: make(map[string]int)}

	for i := range p.Files {
		transformFile(b, &p.Files[i])
	}
	for _, c := range p.Calls {
		callEdge(b, c)
	}
	for _, d := range p.Dependencies {
		var attrs Attrs
		attrs.Set("modules", jsonList(d.Modules))
		b.rel(FileID(d.Source), FileID(d.Target), RelDependsOn, attrs)
	}
	for i := range p.Files {
		inherits(b, &p.Files[i], p.Registry)
	}
	for i := range p.Files {
		intraCalls(b, &p.Files[i])
	}

	return &Graph{Nodes: b.nodes, Relationships: Aggregate(b.rels)}
}

func transformFile(b *builder, f *model.SourceFile) {
	fileID := FileID(f.Path)
	name := fileName(f.Path)

	var attrs Attrs
	attrs.Set("source_file", f.Path)
	attrs.Set("file_type", "PerlFile")
	attrs.Set("name", name)
	attrs.Set("hash", f.Hash)
	attrs.Set("line_count", f.Lines)
	global := f.Global()
	attrs.Set("has_global_scope", global != nil)
	if global != nil && global.Residual != nil {
		attrs.Set("global_scope_body", global.Residual.Body)
	}
	attrs.Set("package_count", len(f.Packages()))
	b.node(Node{ID: fileID, Label: LabelFile, Name: name, Attrs: attrs})

	for j := range f.Blocks {
		block := &f.Blocks[j]
		ownerID := fileID
		ownerName := name
		if block.Kind == model.NamedScope {
			ownerID = PackageID(f.Path, block.Name)
			ownerName = block.Name
			b.node(packageNode(f.Path, ownerID, block))
			b.rel(fileID, ownerID, RelContainsPackage, nil)
		}

		seenUse := make(map[string]struct{})
		for _, imp := range block.Imports {
			useID := UseID(ownerID, imp.Module)
			if _, dup := seenUse[useID]; dup {
				continue
			}
			seenUse[useID] = struct{}{}

			var ua Attrs
			ua.Set("module", imp.Module)
			ua.Set("keyword", imp.Keyword)
			ua.Set("source_file", f.Path)
			ua.Set("type", "UseStatement")
			ua.Set("line", imp.Line)
			b.node(Node{ID: useID, Label: LabelUse, Name: imp.Module, Attrs: ua})
			b.rel(ownerID, useID, RelUsesModule, nil)
		}

		for _, d := range block.Definitions {
			methodID := MethodID(ownerID, d.Name)
			b.node(methodNode(methodID, d))
			b.rel(ownerID, methodID, RelHasMethod, nil)
		}

		if block.Residual != nil {
			scriptID := ScriptID(ownerID)
			scriptName := "script_" + ownerName
			var sa Attrs
			sa.Set("type", "ScriptExecution")
			sa.Set("source_file", f.Path)
			sa.Set("name", scriptName)
			sa.Set("body", block.Residual.Body)
			sa.Set("body_length", len(block.Residual.Body))
			sa.Set("start_line", block.Residual.StartLine)
			b.node(Node{ID: scriptID, Label: LabelScript, Name: scriptName, Attrs: sa})
			b.rel(ownerID, scriptID, RelHasScript, nil)
		}
	}
}

func packageNode(filePath, id string, block *model.Block) Node {
	var attrs Attrs
	attrs.Set("name", block.Name)
	attrs.Set("source_file", filePath)
	attrs.Set("type", "PackageDeclaration")
	attrs.Set("line", block.Line)
	if len(block.Definitions) > 0 {
		names := make([]string, len(block.Definitions))
		for i, d := range block.Definitions {
			names[i] = d.Name
		}
		attrs.Set("method_names", jsonList(names))
	}
	attrs.Set("method_count", len(block.Definitions))
	attrs.Set("has_script_execution", block.Residual != nil)
	if block.Residual != nil {
		attrs.Set("script_body", block.Residual.Body)
	}
	return Node{ID: id, Label: LabelPackage, Name: block.Name, Attrs: attrs}
}

func methodNode(id string, d model.Definition) Node {
	var attrs Attrs
	attrs.Set("name", d.Name)
	attrs.Set("full_name", d.QualifiedName)
	attrs.Set("package", d.Scope)
	attrs.Set("type", "SubDefinition")
	attrs.Set("source_file", d.File)
	attrs.Set("parameters", jsonList(d.Parameters))
	attrs.Set("parameter_count", len(d.Parameters))
	attrs.Set("body", d.Body)
	attrs.Set("body_length", len(d.Body))
	attrs.Set("has_body", d.Body != "")
	attrs.Set("start_line", d.StartLine)
	attrs.Set("end_line", d.EndLine)
	attrs.Set("balanced", d.Balanced)
	return Node{ID: id, Label: LabelMethod, Name: d.Name, Attrs: attrs}
}

// callEdge links the caller, a definition or the owning scope's script node,
// to the target definition.
func callEdge(b *builder, c model.CallEdge) {
	callerOwner := OwnerID(c.CallerFile, c.CallerScope)
	from := ScriptID(callerOwner)
	if c.CallerDefinition != "" {
		from = MethodID(callerOwner, localName(c.CallerScope, c.CallerDefinition))
	}
	to := MethodID(OwnerID(c.TargetFile, c.TargetScope), c.TargetDefinition)

	var attrs Attrs
	attrs.Set("call_type", string(c.Kind))
	attrs.Set("call_pattern", c.Pattern)
	attrs.Set("caller_file", c.CallerFile)
	attrs.Set("target_file", c.TargetFile)
	attrs.Set("caller_package", c.CallerScope)
	attrs.Set("target_package", c.TargetScope)
	attrs.Set("is_cross_file", true)
	b.rel(from, to, RelCallsMethod, attrs)
}

// inherits links a package to each parent named by "use parent" or
// "use base" that is declared somewhere in the project.
func inherits(b *builder, f *model.SourceFile, reg *model.Registry) {
	for _, block := range f.Packages() {
		from := PackageID(f.Path, block.Name)
		for _, imp := range block.Imports {
			for _, parent := range imp.Parents() {
				scope, ok := reg.Scope(parent)
				if !ok {
					continue
				}
				var attrs Attrs
				attrs.Set("via", imp.BaseModule())
				b.rel(from, PackageID(scope.File, parent), RelInherits, attrs)
			}
		}
	}
}

// intraCalls links definitions of the same scope whose body mentions the
// name of another definition of that scope as a word.
func intraCalls(b *builder, f *model.SourceFile) {
	for j := range f.Blocks {
		block := &f.Blocks[j]
		ownerID := OwnerID(f.Path, block.ScopeName())
		defs := block.Definitions
		words := make([]*regexp.Regexp, len(defs))
		for k, d := range defs {
			words[k] = regexp.MustCompile(`\b` + regexp.QuoteMeta(d.Name) + `\b`)
		}
		for _, caller := range defs {
			for k, callee := range defs {
				if caller.Name == callee.Name || !words[k].MatchString(caller.Body) {
					continue
				}
				var attrs Attrs
				attrs.Set("type", "subroutine_call")
				b.rel(MethodID(ownerID, caller.Name), MethodID(ownerID, callee.Name), RelIntraCall, attrs)
			}
		}
	}
}

// localName strips the scope prefix from a qualified definition name.
func localName(scope, qualified string) string {
	if scope == "" {
		return qualified
	}
	return strings.TrimPrefix(qualified, scope+"::")
}

// fileName returns the base name of a path without its extension.
func fileName(p string) string {
	base := path.Base(strings.ReplaceAll(p, "\\", "/"))
	return strings.TrimSuffix(base, path.Ext(base))
}
