package persist

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phobologic/perlgraph/internal/transform"
)

type call struct {
	kind  string
	typ   string
	count int
}

// fakeWriter records calls and fails the configured number of times per
// label/type.
type fakeWriter struct {
	mu     sync.Mutex
	calls  []call
	failN  map[string]int
	always map[string]bool
}

func (f *fakeWriter) fail(typ string) error {
	if f.always[typ] {
		return fmt.Errorf("write %s: boom", typ)
	}
	if f.failN[typ] > 0 {
		f.failN[typ]--
		return fmt.Errorf("write %s: transient", typ)
	}
	return nil
}

func (f *fakeWriter) WriteNodes(_ context.Context, label string, nodes []transform.Node) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{"nodes", label, len(nodes)})
	return f.fail(label)
}

func (f *fakeWriter) WriteRelationships(_ context.Context, relType string, rels []transform.Relationship) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{"rels", relType, len(rels)})
	return f.fail(relType)
}

func sampleGraph() *transform.Graph {
	g := &transform.Graph{}
	for i := range 5 {
		g.Nodes = append(g.Nodes, transform.Node{ID: fmt.Sprintf("m%d", i), Label: transform.LabelMethod})
	}
	g.Nodes = append(g.Nodes, transform.Node{ID: "f", Label: transform.LabelFile})
	g.Nodes = append(g.Nodes, transform.Node{ID: "m5", Label: transform.LabelMethod})
	g.Relationships = []transform.Relationship{
		{From: "f", To: "m0", Type: transform.RelHasMethod},
		{From: "m0", To: "m1", Type: transform.RelCallsMethod},
		{From: "f", To: "m1", Type: transform.RelHasMethod},
	}
	return g
}

func TestHandoffGroupsAndBatches(t *testing.T) {
	t.Parallel()

	w := &fakeWriter{}
	report, err := Handoff(context.Background(), w, sampleGraph(), Options{BatchSize: 4})
	require.NoError(t, err)
	require.NoError(t, report.Err())

	assert.Equal(t, []call{
		{"nodes", transform.LabelMethod, 4},
		{"nodes", transform.LabelMethod, 2},
		{"nodes", transform.LabelFile, 1},
		{"rels", transform.RelHasMethod, 2},
		{"rels", transform.RelCallsMethod, 1},
	}, w.calls)

	nodes, rels := report.Written()
	assert.Equal(t, 7, nodes)
	assert.Equal(t, 3, rels)
	assert.Equal(t, 1, report.Batches[1].Index)
}

func TestHandoffUnbatched(t *testing.T) {
	t.Parallel()

	w := &fakeWriter{}
	report, err := Handoff(context.Background(), w, sampleGraph(), Options{})
	require.NoError(t, err)
	assert.Len(t, report.Batches, 4)
	assert.Equal(t, 6, w.calls[0].count)
}

func TestHandoffRetriesTransientFailure(t *testing.T) {
	t.Parallel()

	w := &fakeWriter{failN: map[string]int{transform.LabelFile: 2}}
	report, err := Handoff(context.Background(), w, sampleGraph(), Options{Retries: 2, RetryDelay: time.Millisecond})
	require.NoError(t, err)
	require.NoError(t, report.Err())

	for _, b := range report.Batches {
		if b.Type == transform.LabelFile {
			assert.Equal(t, 3, b.Attempts)
		} else {
			assert.Equal(t, 1, b.Attempts)
		}
	}
}

func TestHandoffFailedBatchDoesNotAbort(t *testing.T) {
	t.Parallel()

	w := &fakeWriter{always: map[string]bool{transform.RelHasMethod: true}}
	report, err := Handoff(context.Background(), w, sampleGraph(), Options{BatchSize: 1, Retries: 1})
	require.NoError(t, err)

	failed := report.Failed()
	require.Len(t, failed, 2)
	for _, b := range failed {
		assert.Equal(t, RelationshipBatch, b.Kind)
		assert.Equal(t, transform.RelHasMethod, b.Type)
		assert.Equal(t, 1, b.Count)
		assert.Equal(t, 2, b.Attempts)
	}

	// The CALLS_METHOD batch after the failures was still sent.
	last := w.calls[len(w.calls)-1]
	assert.Equal(t, transform.RelCallsMethod, last.typ)

	nodes, rels := report.Written()
	assert.Equal(t, 7, nodes)
	assert.Equal(t, 1, rels)

	rerr := report.Err()
	require.Error(t, rerr)
	assert.True(t, errors.Is(rerr, ErrBatchFailed))
	assert.Contains(t, rerr.Error(), "2 of 10 batches")
}

func TestHandoffCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	w := &fakeWriter{}
	report, err := Handoff(ctx, w, sampleGraph(), Options{})
	require.ErrorIs(t, err, context.Canceled)
	assert.Len(t, report.Batches, 1)
}

// cancelingWriter cancels the context on its first call and always fails.
type cancelingWriter struct {
	cancel context.CancelFunc
	calls  int
}

func (c *cancelingWriter) WriteNodes(context.Context, string, []transform.Node) error {
	c.calls++
	c.cancel()
	return errors.New("store unavailable")
}

func (c *cancelingWriter) WriteRelationships(context.Context, string, []transform.Relationship) error {
	return nil
}

func TestHandoffCanceledDuringRetry(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w := &cancelingWriter{cancel: cancel}
	start := time.Now()
	report, err := Handoff(ctx, w, sampleGraph(), Options{Retries: 5, RetryDelay: time.Hour})
	require.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Minute)

	assert.Equal(t, 1, w.calls)
	require.Len(t, report.Batches, 1)
	assert.Equal(t, 1, report.Batches[0].Attempts)
	assert.ErrorIs(t, report.Batches[0].Err, context.Canceled)
}

func TestLinearBackOff(t *testing.T) {
	t.Parallel()

	b := &linearBackOff{step: 10 * time.Millisecond}
	assert.Equal(t, 10*time.Millisecond, b.NextBackOff())
	assert.Equal(t, 20*time.Millisecond, b.NextBackOff())
	assert.Equal(t, 30*time.Millisecond, b.NextBackOff())

	b.Reset()
	assert.Equal(t, 10*time.Millisecond, b.NextBackOff())

	zero := &linearBackOff{}
	assert.Zero(t, zero.NextBackOff())
}

func TestSendCountsAttempts(t *testing.T) {
	t.Parallel()

	calls := 0
	res := send(context.Background(), Options{Retries: 3}, func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, res.Err)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, 3, calls)

	calls = 0
	res = send(context.Background(), Options{Retries: -1}, func() error {
		calls++
		return errors.New("down")
	})
	require.EqualError(t, res.Err, "down")
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, 1, calls)
}

func TestSplit(t *testing.T) {
	t.Parallel()

	assert.Equal(t, [][]int{{1, 2}, {3, 4}, {5}}, split([]int{1, 2, 3, 4, 5}, 2))
	assert.Equal(t, [][]int{{1, 2}}, split([]int{1, 2}, 0))
	assert.Equal(t, [][]int{{1, 2}}, split([]int{1, 2}, 5))
}
