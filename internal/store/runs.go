package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/zeebo/xxh3"

	"github.com/phobologic/perlgraph/internal/transform"
)

// Run is one recorded load.
type Run struct {
	ID            string
	Source        string
	Digest        string
	StartedAt     string
	FinishedAt    string
	Nodes         int
	Relationships int
	FailedBatches int
}

// Stats summarizes the store contents.
type Stats struct {
	Nodes         map[string]int // per label
	Relationships map[string]int // per type
	Runs          int
	LastRun       *Run
}

// Digest fingerprints the ids of a graph so that two loads of the same
// extraction can be recognized.
func Digest(g *transform.Graph) string {
	keys := make([]string, 0, len(g.Nodes)+len(g.Relationships))
	for _, n := range g.Nodes {
		keys = append(keys, n.ID)
	}
	for _, r := range g.Relationships {
		keys = append(keys, r.From+"\x00"+r.To+"\x00"+r.Type)
	}
	sort.Strings(keys)

	h := xxh3.New()
	for _, k := range keys {
		_, _ = h.WriteString(k)
		_, _ = h.Write([]byte{'\n'})
	}
	return fmt.Sprintf("%016x", h.Sum64())
}

// BeginRun records a new run and tags subsequent writes with its id.
func (s *Store) BeginRun(ctx context.Context, source, digest string) (string, error) {
	id := uuid.NewString()
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO runs (id, source, digest, started_at) VALUES (?, ?, ?, ?)`,
		id, source, digest, now())
	if err != nil {
		return "", fmt.Errorf("begin run: %w", err)
	}
	s.runID = id
	return id, nil
}

// FinishRun stores the outcome of the current run.
func (s *Store) FinishRun(ctx context.Context, nodes, rels, failed int) error {
	if s.runID == "" {
		return errors.New("finish run: no run in progress")
	}
	_, err := s.q.ExecContext(ctx,
		`UPDATE runs SET finished_at=?, nodes=?, relationships=?, failed_batches=? WHERE id=?`,
		now(), nodes, rels, failed, s.runID)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	s.runID = ""
	return nil
}

// Stats returns node and relationship counts and the most recent run.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{Nodes: map[string]int{}, Relationships: map[string]int{}}

	if err := s.countBy(ctx, `SELECT label, COUNT(*) FROM nodes GROUP BY label`, st.Nodes); err != nil {
		return nil, fmt.Errorf("count nodes: %w", err)
	}
	if err := s.countBy(ctx, `SELECT type, COUNT(*) FROM relationships GROUP BY type`, st.Relationships); err != nil {
		return nil, fmt.Errorf("count relationships: %w", err)
	}
	if err := s.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs`).Scan(&st.Runs); err != nil {
		return nil, fmt.Errorf("count runs: %w", err)
	}

	var r Run
	err := s.q.QueryRowContext(ctx, `
		SELECT id, source, digest, started_at, finished_at, nodes, relationships, failed_batches
		FROM runs ORDER BY started_at DESC, rowid DESC LIMIT 1`).
		Scan(&r.ID, &r.Source, &r.Digest, &r.StartedAt, &r.FinishedAt, &r.Nodes, &r.Relationships, &r.FailedBatches)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, fmt.Errorf("last run: %w", err)
	default:
		st.LastRun = &r
	}
	return st, nil
}

func (s *Store) countBy(ctx context.Context, query string, into map[string]int) error {
	rows, err := s.q.QueryContext(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return err
		}
		into[key] = n
	}
	return rows.Err()
}
