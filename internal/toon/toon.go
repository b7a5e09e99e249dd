// Package toon implements TOON (Token-Oriented Object Notation) encoding.
package toon

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/phobologic/perlgraph/internal/report"
)

var (
	needsQuoting = regexp.MustCompile(`[,:"\\{}\[\]]`)
	looksNumeric = regexp.MustCompile(`^-?(?:0|[1-9]\d*)(?:\.\d+)?$`)
	keywords     = map[string]struct{}{
		"true":  {},
		"false": {},
		"null":  {},
	}
)

// EncodeSummary converts a project summary into TOON format. Sections that
// can be empty are always emitted so the shape is stable; the graph and
// persistence sections appear only when recorded.
func EncodeSummary(project string, s *report.Summary) string {
	var parts []string

	parts = append(parts, fmt.Sprintf("project: %s", encodeValue(project)))
	parts = append(parts, fmt.Sprintf("processed_at: %s", encodeValue(s.Processing.ProcessedAt)))

	p := s.Processing
	parts = append(parts, formatTabular("files", []string{"total", "successful", "failed", "elapsed_ms"},
		[][]string{{itoa(p.TotalFiles), itoa(p.Successful), itoa(p.Failed), fmt.Sprintf("%d", p.ElapsedMS)}}))

	a := s.AST
	parts = append(parts, formatTabular("ast",
		[]string{"packages", "methods", "functions", "use_statements", "dependencies", "cross_file_calls"},
		[][]string{{
			itoa(a.TotalPackages), itoa(a.TotalMethods), itoa(a.TotalFunctions),
			itoa(a.TotalUseStatements), itoa(a.TotalDependencies), itoa(a.CrossFileCalls),
		}}))

	var pkgRows [][]string
	for _, name := range sortedKeys(s.Packages) {
		info := s.Packages[name]
		pkgRows = append(pkgRows, []string{name, info.File, itoa(info.MethodCount)})
	}
	parts = append(parts, formatTabular("packages", []string{"name", "file", "methods"}, pkgRows))

	var depRows [][]string
	for _, src := range sortedKeys(s.DependencyGraph) {
		for _, tgt := range s.DependencyGraph[src] {
			depRows = append(depRows, []string{src, tgt})
		}
	}
	parts = append(parts, formatTabular("dependencies", []string{"source", "target"}, depRows))

	var callRows [][]string
	for _, kind := range sortedKeys(s.CrossFileCalls.CallTypes) {
		callRows = append(callRows, []string{kind, itoa(s.CrossFileCalls.CallTypes[kind])})
	}
	parts = append(parts, formatTabular("calls", []string{"type", "count"}, callRows))

	if len(s.TopFiles) > 0 {
		var rankRows [][]string
		for _, f := range s.TopFiles {
			rankRows = append(rankRows, []string{f.Path, fmt.Sprintf("%.4f", f.Rank)})
		}
		parts = append(parts, formatTabular("top_files", []string{"path", "rank"}, rankRows))
	}

	var cycleRows [][]string
	for _, c := range s.Cycles {
		cycleRows = append(cycleRows, []string{strings.Join(c, " ")})
	}
	parts = append(parts, formatTabular("cycles", []string{"files"}, cycleRows))

	var conflictRows [][]string
	for _, c := range s.Conflicts {
		conflictRows = append(conflictRows, []string{c.Name, c.Previous, c.Winner})
	}
	parts = append(parts, formatTabular("conflicts", []string{"name", "previous", "winner"}, conflictRows))

	var warnRows [][]string
	for _, w := range s.Warnings {
		warnRows = append(warnRows, []string{w.File, itoa(w.Line), w.Message})
	}
	parts = append(parts, formatTabular("warnings", []string{"file", "line", "message"}, warnRows))

	var failRows [][]string
	for _, f := range s.FailedFiles {
		failRows = append(failRows, []string{f.File, f.Error})
	}
	parts = append(parts, formatTabular("failed", []string{"file", "error"}, failRows))

	if s.Graph != nil {
		var nodeRows [][]string
		for _, label := range sortedKeys(s.Graph.Nodes) {
			nodeRows = append(nodeRows, []string{label, itoa(s.Graph.Nodes[label])})
		}
		parts = append(parts, formatTabular("nodes", []string{"label", "count"}, nodeRows))

		var relRows [][]string
		for _, typ := range sortedKeys(s.Graph.Relationships) {
			relRows = append(relRows, []string{typ, itoa(s.Graph.Relationships[typ])})
		}
		parts = append(parts, formatTabular("relationships", []string{"type", "count"}, relRows))
	}

	if ps := s.Persistence; ps != nil {
		parts = append(parts, formatTabular("store", []string{"batches", "failed", "nodes", "relationships"},
			[][]string{{itoa(ps.Batches), itoa(ps.FailedBatches), itoa(ps.NodesWritten), itoa(ps.RelationshipsWritten)}}))
	}

	return strings.Join(parts, "\n")
}

// EncodeCounts renders label/type counts, as stored in a graph store.
func EncodeCounts(nodes, rels map[string]int) string {
	var nodeRows, relRows [][]string
	for _, label := range sortedKeys(nodes) {
		nodeRows = append(nodeRows, []string{label, itoa(nodes[label])})
	}
	for _, typ := range sortedKeys(rels) {
		relRows = append(relRows, []string{typ, itoa(rels[typ])})
	}
	return formatTabular("nodes", []string{"label", "count"}, nodeRows) + "\n" +
		formatTabular("relationships", []string{"type", "count"}, relRows)
}

func formatTabular(name string, columns []string, rows [][]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s[%d]{%s}:", name, len(rows), strings.Join(columns, ","))
	for _, row := range rows {
		encoded := make([]string, len(row))
		for i, cell := range row {
			encoded[i] = encodeValue(cell)
		}
		fmt.Fprintf(&b, "\n  %s", strings.Join(encoded, ","))
	}
	return b.String()
}

func encodeValue(value string) string {
	if value == "" {
		return `""`
	}

	if value != strings.TrimSpace(value) {
		return quote(value)
	}

	if strings.ContainsAny(value, "\n\r\t") {
		return quote(value)
	}

	if _, ok := keywords[strings.ToLower(value)]; ok {
		return quote(value)
	}

	if looksNumeric.MatchString(value) {
		return value
	}

	if needsQuoting.MatchString(value) {
		return quote(value)
	}

	if strings.HasPrefix(value, "-") {
		return quote(value)
	}

	return value
}

func quote(value string) string {
	escaped := strings.ReplaceAll(value, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `"`, `\"`)
	escaped = strings.ReplaceAll(escaped, "\n", `\n`)
	escaped = strings.ReplaceAll(escaped, "\r", `\r`)
	escaped = strings.ReplaceAll(escaped, "\t", `\t`)
	return `"` + escaped + `"`
}

func itoa(n int) string {
	return fmt.Sprintf("%d", n)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
