package graph

import (
	"math"
	"sort"

	"github.com/phobologic/perlgraph/internal/model"
)

// FileRank is the PageRank score of one file.
type FileRank struct {
	Path string
	Rank float64
}

// Rank applies PageRank to the files of a project. Each dependency module
// and each cross-file call is one edge from the caller to the target file.
// The result is sorted by rank descending, then path.
func Rank(p *model.Project) []FileRank {
	if len(p.Files) == 0 {
		return nil
	}

	nodes := make([]string, len(p.Files))
	for i := range p.Files {
		nodes[i] = p.Files[i].Path
	}
	sort.Strings(nodes)

	// Edge from source to target means source references target.
	outEdges := make(map[string][]string) // node → list of targets (with repeats for multi-edges)
	outDegree := make(map[string]int)     // total out-edges per node

	for _, d := range p.Dependencies {
		for range d.Modules {
			outEdges[d.Source] = append(outEdges[d.Source], d.Target)
			outDegree[d.Source]++
		}
	}
	for _, c := range p.Calls {
		outEdges[c.CallerFile] = append(outEdges[c.CallerFile], c.TargetFile)
		outDegree[c.CallerFile]++
	}

	var ranks map[string]float64
	if len(outEdges) == 0 {
		uniform := 1.0 / float64(len(nodes))
		ranks = make(map[string]float64, len(nodes))
		for _, n := range nodes {
			ranks[n] = uniform
		}
	} else {
		ranks = pageRank(nodes, outEdges, outDegree, 0.85, 100, 1e-6)
	}

	out := make([]FileRank, len(nodes))
	for i, n := range nodes {
		out[i] = FileRank{Path: n, Rank: ranks[n]}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Rank > out[j].Rank
	})
	return out
}

// pageRank iterates over nodes in the given order so that floating point
// sums are reproducible.
func pageRank(
	nodes []string,
	outEdges map[string][]string,
	outDegree map[string]int,
	alpha float64,
	maxIter int,
	tol float64,
) map[string]float64 {
	n := len(nodes)
	if n == 0 {
		return nil
	}

	rank := make(map[string]float64, n)
	initial := 1.0 / float64(n)
	for _, node := range nodes {
		rank[node] = initial
	}

	teleport := (1.0 - alpha) / float64(n)

	for iter := 0; iter < maxIter; iter++ {
		newRank := make(map[string]float64, n)

		// Dangling node contribution (nodes with no outgoing edges)
		var danglingSum float64
		for _, node := range nodes {
			if outDegree[node] == 0 {
				danglingSum += rank[node]
			}
		}
		danglingContrib := alpha * danglingSum / float64(n)

		for _, node := range nodes {
			newRank[node] = teleport + danglingContrib
		}

		// Distribute rank through edges
		for _, src := range nodes {
			targets := outEdges[src]
			if len(targets) == 0 {
				continue
			}
			contrib := alpha * rank[src] / float64(outDegree[src])
			for _, tgt := range targets {
				newRank[tgt] += contrib
			}
		}

		// Check convergence
		var diff float64
		for _, node := range nodes {
			diff += math.Abs(newRank[node] - rank[node])
		}

		rank = newRank

		if diff < tol {
			break
		}
	}

	return rank
}
