// Package sqlite opens a transition journal backed by an embedded SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"stockledger/internal/infra/journal"
)

const defaultPath = "stockledger.db"

// Dialect is the SQLite flavour of the journal schema.
var Dialect = journal.Dialect{
	Name: "sqlite",
	Schema: []string{
		`CREATE TABLE IF NOT EXISTS transitions (
			seq INTEGER PRIMARY KEY,
			command TEXT NOT NULL,
			status TEXT NOT NULL,
			reason TEXT NOT NULL DEFAULT '',
			command_payload TEXT NOT NULL,
			outcome_payload TEXT NOT NULL,
			recorded_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS state (
			bucket TEXT PRIMARY KEY,
			payload BLOB NOT NULL
		)`,
	},
	InsertTransition: `INSERT INTO transitions(seq,command,status,reason,command_payload,outcome_payload,recorded_at) VALUES(?,?,?,?,?,?,?)`,
	UpsertState:      `INSERT INTO state(bucket,payload) VALUES(?,?) ON CONFLICT(bucket) DO UPDATE SET payload=excluded.payload`,
}

// Open creates (or reuses) the SQLite file at path and returns a mirror on
// it. Rows from a previous run are cleared so sequence numbers restart with
// the fresh in-memory store.
func Open(ctx context.Context, path string, opts ...journal.Option) (*journal.Mirror, error) {
	if path == "" {
		path = defaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection serialises writers on the file.
	db.SetMaxOpenConns(1)
	m, err := journal.New(ctx, db, Dialect, opts...)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	for _, stmt := range []string{`DELETE FROM transitions`, `DELETE FROM state`} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("reset journal: %w", err)
		}
	}
	return m, nil
}
