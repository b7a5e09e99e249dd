// Package report builds the project summary of an extraction run.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/phobologic/perlgraph/internal/graph"
	"github.com/phobologic/perlgraph/internal/model"
	"github.com/phobologic/perlgraph/internal/persist"
	"github.com/phobologic/perlgraph/internal/pipeline"
	"github.com/phobologic/perlgraph/internal/transform"
)

// FileName is the summary artifact written next to the combined AST.
const FileName = "project_summary.json"

const timeLayout = "2006-01-02 15:04:05"

// Summary is the project summary report.
type Summary struct {
	Processing      Processing             `json:"processing_summary"`
	AST             Counts                 `json:"ast_summary"`
	Packages        map[string]PackageInfo `json:"package_overview"`
	DependencyGraph map[string][]string    `json:"dependency_graph"`
	CrossFileCalls  CallSummary            `json:"cross_file_calls_summary"`
	FailedFiles     []FailedFile           `json:"failed_files"`
	Conflicts       []Conflict             `json:"registry_conflicts"`
	Warnings        []Warning              `json:"warnings"`
	Cycles          [][]string             `json:"dependency_cycles"`
	TopFiles        []RankedFile           `json:"top_files"`
	Graph           *GraphCounts           `json:"graph,omitempty"`
	Persistence     *Persistence           `json:"persistence,omitempty"`
}

type Processing struct {
	TotalFiles  int    `json:"total_files"`
	Successful  int    `json:"successful"`
	Failed      int    `json:"failed"`
	ProcessedAt string `json:"processed_at"`
	ElapsedMS   int64  `json:"elapsed_ms"`
}

// Counts are the structural totals of the project.
type Counts struct {
	TotalPackages      int `json:"total_packages"`
	TotalMethods       int `json:"total_methods"`
	TotalFunctions     int `json:"total_functions"`
	TotalUseStatements int `json:"total_use_statements"`
	TotalDependencies  int `json:"total_dependencies"`
	CrossFileCalls     int `json:"cross_file_calls"`
	RegistryEntries    int `json:"registry_entries"`
}

type PackageInfo struct {
	File        string `json:"file"`
	MethodCount int    `json:"method_count"`
}

type CallSummary struct {
	TotalCalls      int            `json:"total_calls"`
	UniqueFilePairs int            `json:"unique_file_pairs"`
	CallTypes       map[string]int `json:"call_types"`
}

type FailedFile struct {
	File  string `json:"file"`
	Error string `json:"error"`
}

type Conflict struct {
	Name     string `json:"full_name"`
	Previous string `json:"previous_file"`
	Winner   string `json:"winner_file"`
}

type Warning struct {
	File    string `json:"file"`
	Line    int    `json:"line"`
	Message string `json:"message"`
}

type RankedFile struct {
	Path string  `json:"path"`
	Rank float64 `json:"rank"`
}

// GraphCounts are the transformed node and relationship totals.
type GraphCounts struct {
	Nodes         map[string]int `json:"nodes"`
	Relationships map[string]int `json:"relationships"`
}

// Persistence is the outcome of a store handoff.
type Persistence struct {
	Batches              int `json:"batches"`
	FailedBatches        int `json:"failed_batches"`
	NodesWritten         int `json:"nodes_written"`
	RelationshipsWritten int `json:"relationships_written"`
}

// Options tunes the summary.
type Options struct {
	Top int // ranked files to list; <= 0 lists none
}

// Build summarizes a pipeline result.
func Build(res *pipeline.Result, opts Options) (*Summary, error) {
	p := res.Project
	s := &Summary{
		Processing: Processing{
			TotalFiles:  res.Total,
			Successful:  res.Succeeded(),
			Failed:      len(res.Failed),
			ProcessedAt: p.CreatedAt.Format(timeLayout),
			ElapsedMS:   res.Elapsed.Milliseconds(),
		},
		Packages:        make(map[string]PackageInfo),
		DependencyGraph: make(map[string][]string),
		CrossFileCalls:  CallSummary{CallTypes: make(map[string]int)},
		FailedFiles:     []FailedFile{},
		Conflicts:       []Conflict{},
		Warnings:        []Warning{},
		Cycles:          [][]string{},
		TopFiles:        []RankedFile{},
	}
	if p.CreatedAt.IsZero() {
		s.Processing.ProcessedAt = time.Now().Format(timeLayout)
	}

	for _, scope := range p.Registry.Scopes() {
		s.Packages[scope.Name] = PackageInfo{File: scope.File, MethodCount: len(scope.Names)}
		s.AST.TotalMethods += len(scope.Names)
	}
	s.AST.TotalPackages = len(s.Packages)
	s.AST.RegistryEntries = p.Registry.Len()

	for i := range p.Files {
		f := &p.Files[i]
		s.AST.TotalUseStatements += len(f.AllImports())
		if g := f.Global(); g != nil {
			s.AST.TotalFunctions += len(g.Definitions)
		}
		for _, w := range f.Warnings {
			s.Warnings = append(s.Warnings, Warning{File: w.File, Line: w.Line, Message: w.Message})
		}
	}

	s.AST.TotalDependencies = len(p.Dependencies)
	for _, d := range p.Dependencies {
		s.DependencyGraph[d.Source] = append(s.DependencyGraph[d.Source], d.Target)
	}
	for _, targets := range s.DependencyGraph {
		sort.Strings(targets)
	}

	cycles, err := graph.DependencyCycles(p.Dependencies)
	if err != nil {
		return nil, fmt.Errorf("dependency cycles: %w", err)
	}
	if cycles != nil {
		s.Cycles = cycles
	}

	s.AST.CrossFileCalls = len(p.Calls)
	s.CrossFileCalls.TotalCalls = len(p.Calls)
	pairs := make(map[[2]string]struct{})
	for _, c := range p.Calls {
		pairs[[2]string{c.CallerFile, c.TargetFile}] = struct{}{}
		s.CrossFileCalls.CallTypes[string(c.Kind)]++
	}
	s.CrossFileCalls.UniqueFilePairs = len(pairs)

	for _, fe := range res.Failed {
		s.FailedFiles = append(s.FailedFiles, FailedFile{File: fe.File, Error: fe.Error})
	}
	for _, c := range p.Conflicts {
		s.Conflicts = append(s.Conflicts, Conflict{Name: c.QualifiedName, Previous: c.Previous, Winner: c.Winner})
	}

	if opts.Top > 0 {
		for _, fr := range topRanked(p, opts.Top) {
			s.TopFiles = append(s.TopFiles, RankedFile{Path: fr.Path, Rank: fr.Rank})
		}
	}
	return s, nil
}

func topRanked(p *model.Project, n int) []graph.FileRank {
	ranks := graph.Rank(p)
	if len(ranks) > n {
		ranks = ranks[:n]
	}
	return ranks
}

// AddGraph records the node and relationship totals of a transformed graph.
func (s *Summary) AddGraph(g *transform.Graph) {
	s.Graph = &GraphCounts{Nodes: g.NodeCounts(), Relationships: g.RelationshipCounts()}
}

// AddPersistence records the outcome of a store handoff.
func (s *Summary) AddPersistence(r *persist.Report) {
	nodes, rels := r.Written()
	s.Persistence = &Persistence{
		Batches:              len(r.Batches),
		FailedBatches:        len(r.Failed()),
		NodesWritten:         nodes,
		RelationshipsWritten: rels,
	}
}

// Write encodes the summary as indented JSON.
func (s *Summary) Write(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	return nil
}

// WriteFile writes the summary to dir/project_summary.json and returns the
// path.
func (s *Summary) WriteFile(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating %s: %w", dir, err)
	}
	path := filepath.Join(dir, FileName)
	fh, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating %s: %w", path, err)
	}
	if err := s.Write(fh); err != nil {
		fh.Close()
		return "", err
	}
	return path, fh.Close()
}
