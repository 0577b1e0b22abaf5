// Package postgres opens a transition journal on a PostgreSQL server through
// the pgx database/sql driver.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"stockledger/internal/infra/journal"
)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/stockledger?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Dialect is the PostgreSQL flavour of the journal schema. Each run is keyed
// by a run id so successive processes do not collide on sequence numbers.
func Dialect(runID string) journal.Dialect {
	return journal.Dialect{
		Name: "postgres",
		Schema: []string{
			`CREATE TABLE IF NOT EXISTS transitions (
				run_id TEXT NOT NULL,
				seq BIGINT NOT NULL,
				command TEXT NOT NULL,
				status TEXT NOT NULL,
				reason TEXT NOT NULL DEFAULT '',
				command_payload JSONB NOT NULL,
				outcome_payload JSONB NOT NULL,
				recorded_at TIMESTAMPTZ NOT NULL,
				PRIMARY KEY (run_id, seq)
			)`,
			`CREATE TABLE IF NOT EXISTS state (
				run_id TEXT NOT NULL,
				bucket TEXT NOT NULL,
				payload JSONB NOT NULL,
				PRIMARY KEY (run_id, bucket)
			)`,
		},
		InsertTransition: `INSERT INTO transitions (run_id, seq, command, status, reason, command_payload, outcome_payload, recorded_at) VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7::jsonb, $8)`,
		UpsertState:      `INSERT INTO state (run_id, bucket, payload) VALUES ($1, $2, $3::jsonb) ON CONFLICT (run_id, bucket) DO UPDATE SET payload = EXCLUDED.payload`,
		KeyArgs:          []any{runID},
	}
}

// Open connects to dsn (falling back to a local default), applies the schema
// and returns a mirror tagging rows with runID.
func Open(ctx context.Context, dsn, runID string, opts ...journal.Option) (*journal.Mirror, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	m, err := journal.New(ctx, db, Dialect(runID), opts...)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return m, nil
}

// OverrideSQLOpen swaps the sql.Open hook, returning a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
