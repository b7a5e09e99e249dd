// Package persist hands a transformed graph to a storage backend in
// batches grouped by node label and relationship type.
package persist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/phobologic/perlgraph/internal/transform"
)

// ErrBatchFailed is wrapped by Report.Err when at least one batch failed.
var ErrBatchFailed = errors.New("batch failed")

// Writer is the storage contract: accept nodes or relationships of one
// label/type and create-or-replace them by id.
type Writer interface {
	WriteNodes(ctx context.Context, label string, nodes []transform.Node) error
	WriteRelationships(ctx context.Context, relType string, rels []transform.Relationship) error
}

// Options controls batching and retries.
type Options struct {
	BatchSize  int           // items per batch; <= 0 sends each group whole
	Retries    int           // extra attempts after the first
	RetryDelay time.Duration // multiplied by the attempt number
}

// Kind distinguishes node batches from relationship batches.
type Kind string

const (
	NodeBatch         Kind = "nodes"
	RelationshipBatch Kind = "relationships"
)

// BatchResult is the outcome of one batch.
type BatchResult struct {
	Kind     Kind
	Type     string // node label or relationship type
	Index    int    // batch number within its group
	Count    int
	Attempts int
	Err      error
}

// Report lists every batch in the order it was sent.
type Report struct {
	Batches []BatchResult
}

// Failed returns the batches that never succeeded.
func (r *Report) Failed() []BatchResult {
	var out []BatchResult
	for _, b := range r.Batches {
		if b.Err != nil {
			out = append(out, b)
		}
	}
	return out
}

// Written returns the number of nodes and relationships in successful batches.
func (r *Report) Written() (nodes, rels int) {
	for _, b := range r.Batches {
		if b.Err != nil {
			continue
		}
		if b.Kind == NodeBatch {
			nodes += b.Count
		} else {
			rels += b.Count
		}
	}
	return nodes, rels
}

// Err returns nil when every batch succeeded, otherwise an error wrapping
// ErrBatchFailed that names the failed batch count.
func (r *Report) Err() error {
	failed := r.Failed()
	if len(failed) == 0 {
		return nil
	}
	errs := make([]error, 0, len(failed))
	for _, b := range failed {
		errs = append(errs, fmt.Errorf("%s %s #%d (%d items): %w", b.Kind, b.Type, b.Index, b.Count, b.Err))
	}
	return fmt.Errorf("%d of %d batches: %w: %w", len(failed), len(r.Batches), ErrBatchFailed, errors.Join(errs...))
}

// Handoff writes all nodes, grouped by label, then all relationships,
// grouped by type. Groups keep first-seen order. A failed batch is retried
// and then recorded; it never stops the remaining batches. Handoff returns
// early only when ctx is canceled.
func Handoff(ctx context.Context, w Writer, g *transform.Graph, opts Options) (*Report, error) {
	report := &Report{}

	labels, nodes := groupNodes(g.Nodes)
	for _, label := range labels {
		for i, batch := range split(nodes[label], opts.BatchSize) {
			res := send(ctx, opts, func() error { return w.WriteNodes(ctx, label, batch) })
			res.Kind, res.Type, res.Index, res.Count = NodeBatch, label, i, len(batch)
			record(report, res)
			if err := ctx.Err(); err != nil {
				return report, err
			}
		}
	}

	types, rels := groupRels(g.Relationships)
	for _, typ := range types {
		for i, batch := range split(rels[typ], opts.BatchSize) {
			res := send(ctx, opts, func() error { return w.WriteRelationships(ctx, typ, batch) })
			res.Kind, res.Type, res.Index, res.Count = RelationshipBatch, typ, i, len(batch)
			record(report, res)
			if err := ctx.Err(); err != nil {
				return report, err
			}
		}
	}

	return report, nil
}

func record(r *Report, res BatchResult) {
	r.Batches = append(r.Batches, res)
	if res.Err != nil {
		slog.Error("persist.batch.failed",
			"kind", res.Kind,
			"type", res.Type,
			"batch", res.Index,
			"count", res.Count,
			"attempts", res.Attempts,
			"err", res.Err,
		)
		return
	}
	slog.Debug("persist.batch", "kind", res.Kind, "type", res.Type, "batch", res.Index, "count", res.Count)
}

// linearBackOff waits step, 2*step, 3*step and so on between attempts.
type linearBackOff struct {
	step time.Duration
	n    int
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.n++
	return b.step * time.Duration(b.n)
}

func (b *linearBackOff) Reset() { b.n = 0 }

// send runs fn until it succeeds, the retries are spent or ctx is done,
// sleeping RetryDelay*attempt between attempts.
func send(ctx context.Context, opts Options, fn func() error) BatchResult {
	res := BatchResult{Attempts: 1}
	b := backoff.WithContext(
		backoff.WithMaxRetries(&linearBackOff{step: opts.RetryDelay}, uint64(max(opts.Retries, 0))),
		ctx,
	)
	notify := func(err error, next time.Duration) {
		slog.Warn("persist.batch.retry", "attempt", res.Attempts, "delay", next, "err", err)
		res.Attempts++
	}
	res.Err = backoff.RetryNotify(fn, b, notify)
	return res
}

func groupNodes(nodes []transform.Node) ([]string, map[string][]transform.Node) {
	var order []string
	groups := make(map[string][]transform.Node)
	for _, n := range nodes {
		if _, ok := groups[n.Label]; !ok {
			order = append(order, n.Label)
		}
		groups[n.Label] = append(groups[n.Label], n)
	}
	return order, groups
}

func groupRels(rels []transform.Relationship) ([]string, map[string][]transform.Relationship) {
	var order []string
	groups := make(map[string][]transform.Relationship)
	for _, r := range rels {
		if _, ok := groups[r.Type]; !ok {
			order = append(order, r.Type)
		}
		groups[r.Type] = append(groups[r.Type], r)
	}
	return order, groups
}

func split[T any](items []T, size int) [][]T {
	if size <= 0 || len(items) <= size {
		return [][]T{items}
	}
	var out [][]T
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		out = append(out, items[start:end])
	}
	return out
}
