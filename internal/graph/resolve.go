package graph

import (
	"context"
	"fmt"
	"regexp"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"github.com/phobologic/perlgraph/internal/model"
)

// bareNameCacheSize bounds the memo of direct-function lookups.
const bareNameCacheSize = 4096

// Policy is how a matcher turns a match into a registry entry.
type Policy int

const (
	// Candidates tries a list of qualified names in order; the first one
	// present in the registry decides.
	Candidates Policy = iota
	// BareName takes the first registry entry, in registry order, whose
	// unqualified name equals the identifier and whose file is not the
	// caller's. It can pick the wrong file when several files define a
	// routine of the same name.
	BareName
)

// Matcher is one call-site pattern together with its resolution policy.
type Matcher struct {
	Kind     model.CallKind
	Policy   Policy
	Patterns []*regexp.Regexp
	// Names builds the candidate qualified names from a submatch. Used only
	// by the Candidates policy.
	Names func(m []string) []string
}

// Matchers is the fixed, ordered set of call-site matchers.
var Matchers = []Matcher{
	{
		Kind:   model.ObjectMethod,
		Policy: Candidates,
		Patterns: []*regexp.Regexp{
			regexp.MustCompile(`(\w+(?:::\w+)*)\s*->\s*(\w+)\s*\(`),
		},
		Names: func(m []string) []string { return []string{m[1] + "::" + m[2], m[2]} },
	},
	{
		// Pkg->new(...)->method( names the class the method is looked up in.
		Kind:   model.ObjectMethod,
		Policy: Candidates,
		Patterns: []*regexp.Regexp{
			regexp.MustCompile(`(\w+(?:::\w+)*)\s*->\s*new\s*\([^()]*\)\s*->\s*(\w+)\s*\(`),
		},
		Names: func(m []string) []string { return []string{m[1] + "::" + m[2]} },
	},
	{
		Kind:   model.ScopeQualified,
		Policy: Candidates,
		Patterns: []*regexp.Regexp{
			regexp.MustCompile(`(\w+(?:::\w+)*)::(\w+)\s*\(`),
		},
		Names: func(m []string) []string { return []string{m[1] + "::" + m[2]} },
	},
	{
		Kind:   model.Constructor,
		Policy: Candidates,
		Patterns: []*regexp.Regexp{
			regexp.MustCompile(`(\w+(?:::\w+)*)\s*->\s*new\s*\(`),
		},
		Names: func(m []string) []string { return []string{m[1] + "::new"} },
	},
	{
		Kind:   model.DirectFunction,
		Policy: BareName,
		Patterns: []*regexp.Regexp{
			regexp.MustCompile(`(\w+)\s*\(`),
		},
	},
}

// Hit is a call site resolved to a definition in another file.
type Hit struct {
	Kind    model.CallKind
	Pattern string
	Target  model.RegistryEntry
}

// Resolver resolves call-site text against a read-only registry. It is safe
// for concurrent use.
type Resolver struct {
	reg    *model.Registry
	byName map[string][]model.RegistryEntry
	cache  *lru.Cache[bareKey, bareResult]
}

type bareKey struct{ name, callerFile string }

type bareResult struct {
	entry model.RegistryEntry
	ok    bool
}

// NewResolver indexes reg for resolution.
func NewResolver(reg *model.Registry) *Resolver {
	byName := make(map[string][]model.RegistryEntry)
	for _, e := range reg.Entries() {
		byName[e.Name] = append(byName[e.Name], e)
	}
	cache, err := lru.New[bareKey, bareResult](bareNameCacheSize)
	if err != nil {
		panic(fmt.Sprintf("lru.New: %v", err)) // only fails for a non-positive size
	}
	return &Resolver{reg: reg, byName: byName, cache: cache}
}

// Resolve applies every matcher, in order, to text and returns the hits that
// land in a file other than callerFile. Unresolvable and same-file matches
// are discarded.
func (r *Resolver) Resolve(text, callerFile string) []Hit {
	var hits []Hit
	for i := range Matchers {
		m := &Matchers[i]
		for _, re := range m.Patterns {
			for _, sub := range re.FindAllStringSubmatch(text, -1) {
				target, ok := r.apply(m, sub, callerFile)
				if !ok {
					continue
				}
				hits = append(hits, Hit{Kind: m.Kind, Pattern: sub[0], Target: target})
			}
		}
	}
	return hits
}

func (r *Resolver) apply(m *Matcher, sub []string, callerFile string) (model.RegistryEntry, bool) {
	switch m.Policy {
	case BareName:
		return r.bareName(sub[1], callerFile)
	default:
		for _, qn := range m.Names(sub) {
			if e, ok := r.reg.Lookup(qn); ok {
				return e, e.File != callerFile
			}
		}
		return model.RegistryEntry{}, false
	}
}

func (r *Resolver) bareName(name, callerFile string) (model.RegistryEntry, bool) {
	key := bareKey{name, callerFile}
	if v, ok := r.cache.Get(key); ok {
		return v.entry, v.ok
	}
	var res bareResult
	for _, e := range r.byName[name] {
		if e.File != callerFile {
			res = bareResult{entry: e, ok: true}
			break
		}
	}
	r.cache.Add(key, res)
	return res.entry, res.ok
}

// callUnit is one body scanned for call sites.
type callUnit struct {
	file       string
	scope      string
	definition string // qualified name, "" for a residual body
	text       string
}

// ResolveCalls scans every definition body and residual body of the project
// for cross-file calls. Bodies are resolved concurrently with at most workers
// goroutines; the result is ordered by file, block, then body, with
// definitions before the block's residual body.
func ResolveCalls(ctx context.Context, p *model.Project, workers int) ([]model.CallEdge, error) {
	units := collectUnits(p.Files)
	results := make([][]model.CallEdge, len(units))
	r := NewResolver(p.Registry)

	g, gctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	for i := range units {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			u := units[i]
			for _, h := range r.Resolve(u.text, u.file) {
				results[i] = append(results[i], model.CallEdge{
					CallerFile:       u.file,
					CallerScope:      u.scope,
					CallerDefinition: u.definition,
					TargetFile:       h.Target.File,
					TargetScope:      h.Target.Scope,
					TargetDefinition: h.Target.Name,
					TargetQualified:  h.Target.QualifiedName,
					Pattern:          h.Pattern,
					Kind:             h.Kind,
				})
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("resolve calls: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("resolve calls: %w", err)
	}

	var edges []model.CallEdge
	for _, res := range results {
		edges = append(edges, res...)
	}
	return edges, nil
}

func collectUnits(files []model.SourceFile) []callUnit {
	var units []callUnit
	for i := range files {
		f := &files[i]
		for j := range f.Blocks {
			block := &f.Blocks[j]
			scope := block.ScopeName()
			for _, d := range block.Definitions {
				if d.Body == "" {
					continue
				}
				units = append(units, callUnit{file: f.Path, scope: scope, definition: d.QualifiedName, text: d.Body})
			}
			if block.Residual != nil {
				units = append(units, callUnit{file: f.Path, scope: scope, text: block.Residual.Body})
			}
		}
	}
	return units
}
