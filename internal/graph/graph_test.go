package graph

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phobologic/perlgraph/internal/model"
	"github.com/phobologic/perlgraph/internal/parse"
)

func files(pairs ...string) []model.SourceFile {
	out := make([]model.SourceFile, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, *parse.ParseSource(pairs[i], []byte(pairs[i+1])))
	}
	return out
}

func resolve(t *testing.T, fs []model.SourceFile) *model.Project {
	t.Helper()
	p := Assemble(fs)
	calls, err := ResolveCalls(context.Background(), p, 4)
	require.NoError(t, err)
	p.Calls = calls
	return p
}

// --- Registry ---

func TestRegistryLastWriteWins(t *testing.T) {
	t.Parallel()

	fs := files(
		"A.pm", "package Foo;\nsub bar { 1 }\nsub only_a { 1 }\n",
		"B.pm", "package Foo;\nsub bar { 2 }\n",
	)
	reg, conflicts := BuildRegistry(fs)

	e, ok := reg.Lookup("Foo::bar")
	require.True(t, ok)
	assert.Equal(t, "B.pm", e.File)

	require.Len(t, conflicts, 1)
	assert.Equal(t, model.Conflict{QualifiedName: "Foo::bar", Previous: "A.pm", Winner: "B.pm"}, conflicts[0])

	// Overwrite keeps the original position.
	entries := reg.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "Foo::bar", entries[0].QualifiedName)
	assert.Equal(t, "Foo::only_a", entries[1].QualifiedName)

	scope, ok := reg.Scope("Foo")
	require.True(t, ok)
	assert.Equal(t, "B.pm", scope.File)
}

func TestRegistryOrderMatters(t *testing.T) {
	t.Parallel()

	a := "package Foo;\nsub bar { 1 }\n"
	reg, _ := BuildRegistry(files("B.pm", a, "A.pm", a))
	e, _ := reg.Lookup("Foo::bar")
	assert.Equal(t, "A.pm", e.File)
}

func TestRegistryIncludesGlobalDefinitions(t *testing.T) {
	t.Parallel()

	reg, conflicts := BuildRegistry(files("util.pl", "sub helper { 1 }\n"))
	assert.Empty(t, conflicts)
	e, ok := reg.Lookup("helper")
	require.True(t, ok)
	assert.Equal(t, "", e.Scope)
	assert.Equal(t, "helper", e.Name)
}

func TestRegistryScopeWithoutDefinitions(t *testing.T) {
	t.Parallel()

	reg, _ := BuildRegistry(files("Consts.pm", "package Consts;\nour $X = 1;\n"))
	scope, ok := reg.Scope("Consts")
	require.True(t, ok)
	assert.Equal(t, "Consts.pm", scope.File)
	assert.Empty(t, scope.Names)
	assert.Equal(t, 0, reg.Len())
}

// --- Dependencies ---

func TestBuildDependencies(t *testing.T) {
	t.Parallel()

	fs := files(
		"Animal.pm", "package Animal;\nsub new { 1 }\n",
		"Dog.pm", "package Dog;\nuse Animal qw(new);\nuse strict;\n",
		"main.pl", "use Animal;\nuse Dog;\nuse Animal;\n",
	)
	reg, _ := BuildRegistry(fs)
	deps := BuildDependencies(fs, reg)

	require.Len(t, deps, 3)
	assert.Equal(t, model.Dependency{Source: "Dog.pm", Target: "Animal.pm", Modules: []string{"Animal"}}, deps[0])
	assert.Equal(t, "main.pl", deps[1].Source)
	assert.Equal(t, "Animal.pm", deps[1].Target)
	assert.Equal(t, []string{"Animal"}, deps[1].Modules)
	assert.Equal(t, "Dog.pm", deps[2].Target)
}

func TestBuildDependenciesNoSelfEdge(t *testing.T) {
	t.Parallel()

	fs := files("Both.pm", "package A;\nsub x { 1 }\npackage B;\nuse A;\n")
	reg, _ := BuildRegistry(fs)
	assert.Empty(t, BuildDependencies(fs, reg))
}

func TestBuildDependenciesEmptyImportList(t *testing.T) {
	t.Parallel()

	fs := files(
		"lib/Foo/Bar.pm", "package Foo::Bar;\nsub x { 1 }\n",
		"run.pl", "use Foo::Bar();\nuse Foo::Bar ();\n",
	)
	reg, _ := BuildRegistry(fs)
	deps := BuildDependencies(fs, reg)

	require.Len(t, deps, 1)
	assert.Equal(t, model.Dependency{Source: "run.pl", Target: "lib/Foo/Bar.pm", Modules: []string{"Foo::Bar"}}, deps[0])
}

func TestDependencyCycles(t *testing.T) {
	t.Parallel()

	deps := []model.Dependency{
		{Source: "a.pm", Target: "b.pm", Modules: []string{"B"}},
		{Source: "b.pm", Target: "a.pm", Modules: []string{"A"}},
		{Source: "c.pm", Target: "a.pm", Modules: []string{"A"}},
	}
	cycles, err := DependencyCycles(deps)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"a.pm", "b.pm"}}, cycles)

	cycles, err = DependencyCycles(deps[2:])
	require.NoError(t, err)
	assert.Empty(t, cycles)
}

// --- Call resolution ---

func TestResolveScenarioWithConstructor(t *testing.T) {
	t.Parallel()

	p := resolve(t, files(
		"file1.pm", "package Animal;\nsub new { my $class = shift; return bless {}, $class; }\nsub speak { print 1; }\n",
		"file2.pl", "use Animal;\nAnimal->new()->speak();\n",
	))

	var kinds []model.CallKind
	for _, c := range p.Calls {
		assert.Equal(t, "file2.pl", c.CallerFile)
		assert.Equal(t, "file1.pm", c.TargetFile)
		kinds = append(kinds, c.Kind)
	}
	assert.Contains(t, kinds, model.Constructor)
	assert.Contains(t, kinds, model.ObjectMethod)

	for _, c := range p.Calls {
		if c.Kind == model.Constructor {
			assert.Equal(t, "Animal::new", c.TargetQualified)
			assert.Equal(t, "Animal->new(", c.Pattern)
			assert.Equal(t, "", c.CallerDefinition)
		}
	}
}

func TestResolveScenarioWithoutConstructor(t *testing.T) {
	t.Parallel()

	p := resolve(t, files(
		"file1.pm", "package Animal;\nsub speak { print 1; }\n",
		"file2.pl", "Animal->new()->speak();\n",
	))

	var found bool
	for _, c := range p.Calls {
		if c.Kind == model.ObjectMethod && c.TargetQualified == "Animal::speak" {
			found = true
			assert.Equal(t, "file1.pm", c.TargetFile)
			assert.Equal(t, "file2.pl", c.CallerFile)
		}
		assert.NotEqual(t, model.Constructor, c.Kind)
	}
	assert.True(t, found, "expected object_method edge to Animal::speak, got %+v", p.Calls)
}

func TestResolveNeverSameFile(t *testing.T) {
	t.Parallel()

	p := resolve(t, files(
		"A.pm", "package A;\nsub one { two(); A::two(); A->two(); }\nsub two { 1 }\n",
		"B.pm", "package B;\nsub two { 1 }\nsub three { A::one(); }\n",
	))

	for _, c := range p.Calls {
		assert.NotEqual(t, c.CallerFile, c.TargetFile, "%+v", c)
	}
}

func TestResolveCandidateDecidesEvenWhenSameFile(t *testing.T) {
	t.Parallel()

	// A->two( finds A::two in the caller's file and stops, even though a
	// bare "two" lives elsewhere.
	r := NewResolver(Assemble(files(
		"A.pm", "package A;\nsub two { 1 }\n",
		"B.pm", "package B;\nsub two { 1 }\n",
	)).Registry)

	for _, h := range r.Resolve("A->two();", "A.pm") {
		assert.NotEqual(t, model.ObjectMethod, h.Kind)
	}
}

func TestResolveScopeQualified(t *testing.T) {
	t.Parallel()

	r := NewResolver(Assemble(files(
		"lib/My/Util.pm", "package My::Util;\nsub trim { 1 }\n",
	)).Registry)

	hits := r.Resolve("my $x = My::Util::trim($s);", "main.pl")
	require.NotEmpty(t, hits)
	assert.Equal(t, model.ScopeQualified, hits[0].Kind)
	assert.Equal(t, "My::Util::trim", hits[0].Target.QualifiedName)
	assert.Equal(t, "My::Util::trim(", hits[0].Pattern)
}

func TestResolveObjectMethodOnVariable(t *testing.T) {
	t.Parallel()

	r := NewResolver(Assemble(files(
		"util.pl", "sub bark { 1 }\n",
	)).Registry)

	// $dog is not a scope, so the bare method name decides.
	hits := r.Resolve("$dog->bark();", "main.pl")
	require.NotEmpty(t, hits)
	assert.Equal(t, model.ObjectMethod, hits[0].Kind)
	assert.Equal(t, "bark", hits[0].Target.QualifiedName)
	assert.Equal(t, "dog->bark(", hits[0].Pattern)
}

func TestResolveDirectFunctionFirstRegistryEntry(t *testing.T) {
	t.Parallel()

	// Two files define log_it; the first in registry order wins, even if
	// the caller meant the other one.
	r := NewResolver(Assemble(files(
		"a/Logger.pm", "package Logger;\nsub log_it { 1 }\n",
		"b/Audit.pm", "package Audit;\nsub log_it { 2 }\n",
		"main.pl", "sub run { 1 }\n",
	)).Registry)

	hits := r.Resolve("log_it('x');", "main.pl")
	require.Len(t, hits, 1)
	assert.Equal(t, model.DirectFunction, hits[0].Kind)
	assert.Equal(t, "a/Logger.pm", hits[0].Target.File)

	// From the first file, the same-file entry is skipped.
	hits = r.Resolve("log_it('x');", "a/Logger.pm")
	require.Len(t, hits, 1)
	assert.Equal(t, "b/Audit.pm", hits[0].Target.File)

	// Memoized lookups return the same answer.
	hits = r.Resolve("log_it(1); log_it(2);", "main.pl")
	require.Len(t, hits, 2)
	assert.Equal(t, hits[0].Target, hits[1].Target)
}

func TestResolveUnknownCallsDiscarded(t *testing.T) {
	t.Parallel()

	r := NewResolver(Assemble(files("A.pm", "package A;\nsub x { 1 }\n")).Registry)
	assert.Empty(t, r.Resolve("print(1); Foo->bar(); Baz::qux();", "main.pl"))
}

func TestResolveCallsCallerContext(t *testing.T) {
	t.Parallel()

	p := resolve(t, files(
		"Animal.pm", "package Animal;\nsub speak { 1 }\n",
		"Zoo.pm", "package Zoo;\nsub tour {\n    my $self = shift;\n    Animal::speak();\n}\nAnimal::speak();\n",
	))

	require.Len(t, p.Calls, 4)
	// Definitions come before the residual body of the same block.
	assert.Equal(t, "Zoo::tour", p.Calls[0].CallerDefinition)
	assert.Equal(t, "Zoo", p.Calls[0].CallerScope)
	assert.Equal(t, model.ScopeQualified, p.Calls[0].Kind)
	assert.Equal(t, model.DirectFunction, p.Calls[1].Kind)
	assert.Equal(t, "", p.Calls[2].CallerDefinition)
	assert.Equal(t, "Zoo", p.Calls[2].CallerScope)
}

func TestResolveCallsDeterministic(t *testing.T) {
	t.Parallel()

	fs := files(
		"A.pm", "package A;\nsub a1 { B::b1(); C::c1(); }\nsub a2 { b1(); }\n",
		"B.pm", "package B;\nsub b1 { A::a1(); }\n",
		"C.pm", "package C;\nsub c1 { A->a2(); }\nA::a2();\n",
	)
	first := resolve(t, fs).Calls
	for range 5 {
		assert.Equal(t, first, resolve(t, fs).Calls)
	}
}

func TestResolveCallsCanceled(t *testing.T) {
	t.Parallel()

	p := Assemble(files("A.pm", "package A;\nsub a { B::b(); }\n", "B.pm", "package B;\nsub b { 1 }\n"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ResolveCalls(ctx, p, 2)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

// --- Rank ---

func TestRankUniform(t *testing.T) {
	t.Parallel()

	p := Assemble(files("a.pl", "1;\n", "b.pl", "1;\n"))
	ranks := Rank(p)
	require.Len(t, ranks, 2)
	for _, r := range ranks {
		assert.InDelta(t, 0.5, r.Rank, 1e-9)
	}
	assert.Equal(t, "a.pl", ranks[0].Path)
}

func TestRankSumsToOne(t *testing.T) {
	t.Parallel()

	p := resolve(t, files(
		"Base.pm", "package Base;\nsub new { 1 }\n",
		"A.pm", "package A;\nuse Base;\nsub x { Base->new(); }\n",
		"B.pm", "package B;\nuse Base;\n",
		"main.pl", "use A;\n",
	))
	ranks := Rank(p)
	require.Len(t, ranks, 4)

	var sum float64
	for _, r := range ranks {
		sum += r.Rank
	}
	assert.True(t, math.Abs(sum-1.0) < 1e-4, "ranks sum to %f", sum)
	assert.Equal(t, "Base.pm", ranks[0].Path)
}

func TestRankEmpty(t *testing.T) {
	t.Parallel()
	assert.Nil(t, Rank(&model.Project{}))
}
