// Package subset narrows an assembled project to part of its files while
// keeping the dependencies and cross-file calls that connect them.
package subset

import (
	"strings"

	"github.com/phobologic/perlgraph/internal/graph"
	"github.com/phobologic/perlgraph/internal/model"
)

type pathSet map[string]struct{}

func (s pathSet) has(p string) bool {
	_, ok := s[p]
	return ok
}

// Top returns a project holding only the n highest-ranked files, with the
// dependencies and calls whose both ends were kept. If n is <= 0 or covers
// every file, p is returned unchanged.
func Top(p *model.Project, n int) *model.Project {
	if n <= 0 || n >= len(p.Files) {
		return p
	}

	keep := make(pathSet, n)
	for _, fr := range graph.Rank(p)[:n] {
		keep[fr.Path] = struct{}{}
	}

	return narrow(p, keep, func(source, target string) bool {
		return keep.has(source) && keep.has(target)
	})
}

// ByFile returns a project holding the files whose path contains substr
// (case-insensitive), with every dependency touching them and the calls
// made from them.
func ByFile(p *model.Project, substr string) *model.Project {
	lower := strings.ToLower(substr)

	keep := make(pathSet)
	for i := range p.Files {
		if strings.Contains(strings.ToLower(p.Files[i].Path), lower) {
			keep[p.Files[i].Path] = struct{}{}
		}
	}

	sub := narrow(p, keep, func(source, target string) bool {
		return keep.has(source) || keep.has(target)
	})

	var calls []model.CallEdge
	for i := range p.Calls {
		if keep.has(p.Calls[i].CallerFile) {
			calls = append(calls, p.Calls[i])
		}
	}
	sub.Calls = calls
	return sub
}

// ByPackage returns a project holding the files that declare a package whose
// name contains substr (case-insensitive), plus the files of their direct
// callers and callees. Only calls into or out of a matched package are kept.
func ByPackage(p *model.Project, substr string) *model.Project {
	lower := strings.ToLower(substr)

	matched := make(map[string]struct{})
	keep := make(pathSet)
	for i := range p.Files {
		for _, block := range p.Files[i].Packages() {
			if strings.Contains(strings.ToLower(block.Name), lower) {
				matched[block.Name] = struct{}{}
				keep[p.Files[i].Path] = struct{}{}
			}
		}
	}

	var calls []model.CallEdge
	for i := range p.Calls {
		c := &p.Calls[i]
		_, callerOK := matched[c.CallerScope]
		_, targetOK := matched[c.TargetScope]
		if callerOK || targetOK {
			calls = append(calls, *c)
			keep[c.CallerFile] = struct{}{}
			keep[c.TargetFile] = struct{}{}
		}
	}

	sub := narrow(p, keep, func(source, target string) bool {
		return keep.has(source) && keep.has(target)
	})
	sub.Calls = calls
	return sub
}

// narrow copies the files in keep, in their original order, together with
// the dependencies accepted by edge. Calls are filtered the same way; callers
// may replace them. The registry is shared with p.
func narrow(p *model.Project, keep pathSet, edge func(source, target string) bool) *model.Project {
	sub := &model.Project{
		Registry:  p.Registry,
		CreatedAt: p.CreatedAt,
	}

	for i := range p.Files {
		if keep.has(p.Files[i].Path) {
			sub.Files = append(sub.Files, p.Files[i])
		}
	}

	for i := range p.Dependencies {
		d := &p.Dependencies[i]
		if edge(d.Source, d.Target) {
			sub.Dependencies = append(sub.Dependencies, *d)
		}
	}

	for i := range p.Calls {
		c := &p.Calls[i]
		if edge(c.CallerFile, c.TargetFile) {
			sub.Calls = append(sub.Calls, *c)
		}
	}

	for i := range p.Conflicts {
		if keep.has(p.Conflicts[i].Winner) {
			sub.Conflicts = append(sub.Conflicts, p.Conflicts[i])
		}
	}

	return sub
}
