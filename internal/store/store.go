// Package store persists graph nodes and relationships in SQLite.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Querier abstracts *sql.DB and *sql.Tx so store methods work in both contexts.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store wraps a SQLite connection for graph storage. It implements
// persist.Writer.
type Store struct {
	db     *sql.DB
	q      Querier // active querier: db or tx
	dbPath string
	runID  string
}

// OpenPath opens or creates a SQLite database at the given path.
func OpenPath(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	return newStore(db, dbPath)
}

// OpenMemory opens an in-memory SQLite database (for testing).
func OpenMemory() (*Store, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open memory db: %w", err)
	}
	// Every connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)
	return newStore(db, ":memory:")
}

func newStore(db *sql.DB, dbPath string) (*Store, error) {
	s := &Store{db: db, dbPath: dbPath}
	s.q = s.db
	if err := s.initSchema(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return s, nil
}

// WithTransaction executes fn within a single SQLite transaction. The
// callback receives a transaction-scoped Store.
func (s *Store) WithTransaction(ctx context.Context, fn func(txStore *Store) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	txStore := &Store{db: s.db, q: tx, dbPath: s.dbPath, runID: s.runID}
	if err := fn(txStore); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database path.
func (s *Store) Path() string {
	return s.dbPath
}

func (s *Store) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		source TEXT NOT NULL,
		digest TEXT NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT DEFAULT '',
		nodes INTEGER DEFAULT 0,
		relationships INTEGER DEFAULT 0,
		failed_batches INTEGER DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS nodes (
		id TEXT PRIMARY KEY,
		label TEXT NOT NULL,
		name TEXT NOT NULL,
		properties TEXT DEFAULT '{}',
		run_id TEXT DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_nodes_label ON nodes(label);
	CREATE INDEX IF NOT EXISTS idx_nodes_name ON nodes(label, name);
	CREATE INDEX IF NOT EXISTS idx_nodes_source_file ON nodes(label, json_extract(properties, '$.source_file'));
	CREATE INDEX IF NOT EXISTS idx_nodes_full_name ON nodes(json_extract(properties, '$.full_name')) WHERE label = 'METHOD';
	CREATE INDEX IF NOT EXISTS idx_nodes_module ON nodes(json_extract(properties, '$.module')) WHERE label = 'USE_STATEMENT';

	CREATE TABLE IF NOT EXISTS relationships (
		from_id TEXT NOT NULL,
		to_id TEXT NOT NULL,
		type TEXT NOT NULL,
		properties TEXT DEFAULT '{}',
		run_id TEXT DEFAULT '',
		PRIMARY KEY (from_id, to_id, type)
	);

	CREATE INDEX IF NOT EXISTS idx_relationships_type ON relationships(type);
	CREATE INDEX IF NOT EXISTS idx_relationships_to ON relationships(to_id, type);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}
