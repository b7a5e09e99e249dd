// Package graph assembles parsed files into a project: the symbol registry,
// file dependencies, cross-file calls and file ranking.
package graph

import (
	"log/slog"
	"sort"

	"github.com/dominikbraun/graph"

	"github.com/phobologic/perlgraph/internal/model"
)

// Assemble folds files, in the given order, into a project with its
// registry, conflicts and dependencies. Calls are resolved separately.
func Assemble(files []model.SourceFile) *model.Project {
	reg, conflicts := BuildRegistry(files)
	return &model.Project{
		Files:        files,
		Registry:     reg,
		Conflicts:    conflicts,
		Dependencies: BuildDependencies(files, reg),
	}
}

// BuildRegistry inserts every definition's qualified name into a new
// registry, visiting files in order. A later insertion of an existing name
// wins and is reported as a conflict naming both files.
func BuildRegistry(files []model.SourceFile) (*model.Registry, []model.Conflict) {
	b := model.NewRegistryBuilder()
	var conflicts []model.Conflict

	for i := range files {
		f := &files[i]
		for j := range f.Blocks {
			block := &f.Blocks[j]
			if block.Kind == model.NamedScope {
				names := make([]string, len(block.Definitions))
				for k, d := range block.Definitions {
					names[k] = d.Name
				}
				b.PutScope(block.Name, f.Path, names)
			}

			for _, d := range block.Definitions {
				prev, existed := b.Put(model.RegistryEntry{
					QualifiedName: d.QualifiedName,
					File:          f.Path,
					Scope:         d.Scope,
					Name:          d.Name,
				})
				if !existed {
					continue
				}
				conflicts = append(conflicts, model.Conflict{
					QualifiedName: d.QualifiedName,
					Previous:      prev.File,
					Winner:        f.Path,
				})
				slog.Warn("registry.conflict",
					"name", d.QualifiedName,
					"previous", prev.File,
					"winner", f.Path,
				)
			}
		}
	}

	return b.Registry(), conflicts
}

// BuildDependencies creates a file-to-file edge for every import whose base
// module names a package declared in another file. Edges are unique per
// (source, target) and sorted.
func BuildDependencies(files []model.SourceFile, reg *model.Registry) []model.Dependency {
	type edgeKey struct{ src, tgt string }
	modules := make(map[edgeKey][]string)

	for i := range files {
		f := &files[i]
		for _, imp := range f.AllImports() {
			base := imp.BaseModule()
			scope, ok := reg.Scope(base)
			if !ok || scope.File == f.Path {
				continue
			}
			key := edgeKey{f.Path, scope.File}
			if !contains(modules[key], base) {
				modules[key] = append(modules[key], base)
			}
		}
	}

	deps := make([]model.Dependency, 0, len(modules))
	for key, mods := range modules {
		deps = append(deps, model.Dependency{
			Source:  key.src,
			Target:  key.tgt,
			Modules: mods,
		})
	}

	// Sort for deterministic output
	sort.Slice(deps, func(i, j int) bool {
		if deps[i].Source != deps[j].Source {
			return deps[i].Source < deps[j].Source
		}
		return deps[i].Target < deps[j].Target
	})

	return deps
}

// DependencyCycles returns the strongly connected components of the file
// dependency graph that contain more than one file. Each cycle is sorted and
// the list is ordered by its first member.
func DependencyCycles(deps []model.Dependency) ([][]string, error) {
	g := graph.New(graph.StringHash, graph.Directed())
	for _, d := range deps {
		for _, v := range []string{d.Source, d.Target} {
			if _, err := g.Vertex(v); err != nil {
				if err := g.AddVertex(v); err != nil {
					return nil, err
				}
			}
		}
		_ = g.AddEdge(d.Source, d.Target)
	}

	sccs, err := graph.StronglyConnectedComponents(g)
	if err != nil {
		return nil, err
	}

	var cycles [][]string
	for _, c := range sccs {
		if len(c) < 2 {
			continue
		}
		sort.Strings(c)
		cycles = append(cycles, c)
	}
	sort.Slice(cycles, func(i, j int) bool {
		return cycles[i][0] < cycles[j][0]
	})
	return cycles, nil
}

func contains(slice []string, s string) bool {
	for _, v := range slice {
		if v == s {
			return true
		}
	}
	return false
}
