package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/phobologic/perlgraph/internal/transform"
)

// numNodeCols and numRelCols are the bound parameters per row; rows per
// statement stay under SQLite's 999 variable limit.
const (
	numNodeCols = 5
	numRelCols  = 5
	maxVars     = 999
)

// StoredNode is a node read back from the database.
type StoredNode struct {
	ID         string
	Label      string
	Name       string
	Properties map[string]any
	RunID      string
}

// StoredRelationship is a relationship read back from the database.
type StoredRelationship struct {
	From       string
	To         string
	Type       string
	Properties map[string]any
}

// WriteNodes creates or replaces nodes by id.
func (s *Store) WriteNodes(ctx context.Context, label string, nodes []transform.Node) error {
	if len(nodes) == 0 {
		return nil
	}
	return s.WithTransaction(ctx, func(tx *Store) error {
		rows := maxVars / numNodeCols
		for start := 0; start < len(nodes); start += rows {
			chunk := nodes[start:min(start+rows, len(nodes))]
			args := make([]any, 0, len(chunk)*numNodeCols)
			for _, n := range chunk {
				props, err := json.Marshal(n.Attrs)
				if err != nil {
					return fmt.Errorf("marshal %s: %w", n.ID, err)
				}
				args = append(args, n.ID, label, n.Name, string(props), s.runID)
			}
			query := `INSERT INTO nodes (id, label, name, properties, run_id) VALUES ` +
				placeholders(len(chunk), numNodeCols) + `
				ON CONFLICT(id) DO UPDATE SET
					label=excluded.label, name=excluded.name,
					properties=excluded.properties, run_id=excluded.run_id`
			if _, err := tx.q.ExecContext(ctx, query, args...); err != nil {
				return fmt.Errorf("upsert %s nodes: %w", label, err)
			}
		}
		return nil
	})
}

// WriteRelationships creates or replaces relationships by (from, to, type).
func (s *Store) WriteRelationships(ctx context.Context, relType string, rels []transform.Relationship) error {
	if len(rels) == 0 {
		return nil
	}
	return s.WithTransaction(ctx, func(tx *Store) error {
		rows := maxVars / numRelCols
		for start := 0; start < len(rels); start += rows {
			chunk := rels[start:min(start+rows, len(rels))]
			args := make([]any, 0, len(chunk)*numRelCols)
			for _, r := range chunk {
				props, err := json.Marshal(r.Attrs)
				if err != nil {
					return fmt.Errorf("marshal %s->%s: %w", r.From, r.To, err)
				}
				args = append(args, r.From, r.To, relType, string(props), s.runID)
			}
			query := `INSERT INTO relationships (from_id, to_id, type, properties, run_id) VALUES ` +
				placeholders(len(chunk), numRelCols) + `
				ON CONFLICT(from_id, to_id, type) DO UPDATE SET
					properties=excluded.properties, run_id=excluded.run_id`
			if _, err := tx.q.ExecContext(ctx, query, args...); err != nil {
				return fmt.Errorf("upsert %s relationships: %w", relType, err)
			}
		}
		return nil
	})
}

// Reset deletes every node and relationship.
func (s *Store) Reset(ctx context.Context) error {
	return s.WithTransaction(ctx, func(tx *Store) error {
		if _, err := tx.q.ExecContext(ctx, `DELETE FROM relationships`); err != nil {
			return fmt.Errorf("clear relationships: %w", err)
		}
		if _, err := tx.q.ExecContext(ctx, `DELETE FROM nodes`); err != nil {
			return fmt.Errorf("clear nodes: %w", err)
		}
		return nil
	})
}

// Node returns the node with the given id, or nil if absent.
func (s *Store) Node(ctx context.Context, id string) (*StoredNode, error) {
	row := s.q.QueryRowContext(ctx, `SELECT id, label, name, properties, run_id FROM nodes WHERE id=?`, id)
	var n StoredNode
	var props string
	if err := row.Scan(&n.ID, &n.Label, &n.Name, &props, &n.RunID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get node: %w", err)
	}
	n.Properties = unmarshalProps(props)
	return &n, nil
}

// Relationships returns all relationships of a type, ordered by endpoints.
func (s *Store) Relationships(ctx context.Context, relType string) ([]StoredRelationship, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT from_id, to_id, type, properties FROM relationships WHERE type=? ORDER BY from_id, to_id`, relType)
	if err != nil {
		return nil, fmt.Errorf("list relationships: %w", err)
	}
	defer rows.Close()

	var out []StoredRelationship
	for rows.Next() {
		var r StoredRelationship
		var props string
		if err := rows.Scan(&r.From, &r.To, &r.Type, &props); err != nil {
			return nil, err
		}
		r.Properties = unmarshalProps(props)
		out = append(out, r)
	}
	return out, rows.Err()
}

// MethodsByFullName returns the ids of METHOD nodes with the given
// qualified name.
func (s *Store) MethodsByFullName(ctx context.Context, fullName string) ([]string, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT id FROM nodes WHERE label='METHOD' AND json_extract(properties, '$.full_name')=? ORDER BY id`, fullName)
	if err != nil {
		return nil, fmt.Errorf("find methods: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func placeholders(rows, cols int) string {
	row := "(" + strings.TrimSuffix(strings.Repeat("?,", cols), ",") + ")"
	parts := make([]string, rows)
	for i := range parts {
		parts[i] = row
	}
	return strings.Join(parts, ",")
}

func unmarshalProps(data string) map[string]any {
	if data == "" || data == "{}" {
		return map[string]any{}
	}
	m := make(map[string]any)
	if err := json.Unmarshal([]byte(data), &m); err != nil {
		return map[string]any{}
	}
	return m
}
