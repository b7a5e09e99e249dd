// Package pipeline runs extraction over a set of discovered files: a
// bounded pool of parse workers, then the single-threaded project assembly
// and concurrent call resolution.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/phobologic/perlgraph/internal/discover"
	"github.com/phobologic/perlgraph/internal/graph"
	"github.com/phobologic/perlgraph/internal/model"
	"github.com/phobologic/perlgraph/internal/parse"
)

// Progress receives one tick per file handled by a parse worker.
// *progressbar.ProgressBar satisfies it.
type Progress interface {
	Add(n int) error
}

// Options controls a pipeline run.
type Options struct {
	// Workers bounds both the parse pool and call resolution; <= 0 uses
	// runtime.NumCPU.
	Workers  int
	Progress Progress
	// Now stamps the project; defaults to time.Now.
	Now func() time.Time
}

// Result is the outcome of a run. Project holds only the files that were
// read successfully, in input order.
type Result struct {
	Project *model.Project
	Failed  []model.FileError
	Total   int
	Elapsed time.Duration
}

// Succeeded returns the number of files that made it into the project.
func (r *Result) Succeeded() int {
	return len(r.Project.Files)
}

// Run extracts every entry and assembles the project. A file that cannot be
// read is recorded in Result.Failed and never aborts the run. The only error
// is cancellation of ctx.
func Run(ctx context.Context, entries []discover.FileEntry, opts Options) (*Result, error) {
	start := time.Now()
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	slog.Info("pipeline.start", "files", len(entries), "workers", workers)

	files, failed := parseConcurrent(ctx, entries, workers, opts.Progress)
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}

	p := graph.Assemble(files)
	calls, err := graph.ResolveCalls(ctx, p, workers)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	p.Calls = calls
	p.CreatedAt = now()

	res := &Result{
		Project: p,
		Failed:  failed,
		Total:   len(entries),
		Elapsed: time.Since(start),
	}
	slog.Info("pipeline.done",
		"parsed", res.Succeeded(),
		"failed", len(failed),
		"definitions", p.Registry.Len(),
		"dependencies", len(p.Dependencies),
		"calls", len(calls),
		"conflicts", len(p.Conflicts),
		"elapsed", res.Elapsed,
	)
	return res, nil
}

// parseConcurrent parses entries with a fixed pool of workers. Results are
// collected by input index so the returned files keep the input order no
// matter which worker finishes first.
func parseConcurrent(ctx context.Context, entries []discover.FileEntry, workers int, progress Progress) ([]model.SourceFile, []model.FileError) {
	type result struct {
		index int
		file  *model.SourceFile
		err   error
	}

	numWorkers := min(workers, len(entries))

	work := make(chan int, len(entries))
	results := make(chan result, len(entries))

	var wg sync.WaitGroup
	var progressMu sync.Mutex

	for range numWorkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range work {
				// Files already started run to completion; pending ones are
				// dropped once ctx is done.
				if ctx.Err() != nil {
					continue
				}
				e := entries[idx]
				f, err := parse.ParseFile(e.AbsPath, e.Path)
				results <- result{index: idx, file: f, err: err}

				if progress != nil {
					progressMu.Lock()
					_ = progress.Add(1)
					progressMu.Unlock()
				}
			}
		}()
	}

	for i := range entries {
		work <- i
	}
	close(work)

	go func() {
		wg.Wait()
		close(results)
	}()

	indexed := make([]result, len(entries))
	valid := make([]bool, len(entries))
	for r := range results {
		indexed[r.index] = r
		valid[r.index] = true
	}

	var files []model.SourceFile
	var failed []model.FileError
	for i, ok := range valid {
		if !ok {
			continue
		}
		r := indexed[i]
		if r.err != nil {
			slog.Warn("parse.failed", "file", entries[i].Path, "err", r.err)
			failed = append(failed, model.FileError{File: entries[i].Path, Error: r.err.Error()})
			continue
		}
		for _, w := range r.file.Warnings {
			slog.Warn("parse.unbalanced", "file", w.File, "line", w.Line, "msg", w.Message)
		}
		files = append(files, *r.file)
	}
	return files, failed
}
