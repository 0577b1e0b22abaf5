// Package journal mirrors committed store transitions into a SQL database.
// The mirror is write-only: the store never reads it back, so the in-memory
// state stays the single source of truth.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"stockledger/internal/core"
)

// ErrClosed is returned by writes and by Close once the mirror is closed.
var ErrClosed = errors.New("journal already closed")

// Dialect carries the driver-specific SQL used by Mirror.
type Dialect struct {
	Name string
	// Schema statements run once on construction.
	Schema []string
	// InsertTransition takes (seq, command, status, reason, command_payload,
	// outcome_payload, recorded_at).
	InsertTransition string
	// UpsertState takes (bucket, payload).
	UpsertState string
	// KeyArgs are bound ahead of the arguments of both statements.
	KeyArgs []any
}

// Buckets written to the state table after every accepted transition.
const (
	BucketProducts       = "products"
	BucketSuppliers      = "suppliers"
	BucketStockMovements = "stock_movements"
	BucketSalesOrders    = "sales_orders"
)

var buckets = []string{BucketProducts, BucketSuppliers, BucketStockMovements, BucketSalesOrders}

// Mirror appends each transition to a transitions table and snapshots the
// collections into a state table, one JSON payload per bucket.
type Mirror struct {
	db      *sql.DB
	dialect Dialect
	logger  *zap.Logger
	now     func() time.Time

	mu      sync.Mutex
	lastErr error
	written uint64
	closed  bool
}

// Option configures a Mirror.
type Option func(*Mirror)

// WithLogger sets the logger used to report write failures.
func WithLogger(logger *zap.Logger) Option {
	return func(m *Mirror) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// New applies the dialect schema to db and returns a mirror writing to it.
func New(ctx context.Context, db *sql.DB, dialect Dialect, opts ...Option) (*Mirror, error) {
	for _, stmt := range dialect.Schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("%s: apply schema: %w", dialect.Name, err)
		}
	}
	m := &Mirror{
		db:      db,
		dialect: dialect,
		logger:  zap.NewNop(),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Observe records tr and logs any failure. It has the core.Observer
// signature so it can be passed straight to Store.Subscribe.
func (m *Mirror) Observe(tr core.Transition) {
	if err := m.Record(context.Background(), tr); err != nil {
		m.logger.Error("journal write failed",
			zap.String("driver", m.dialect.Name),
			zap.Uint64("sequence", tr.Sequence),
			zap.Error(err),
		)
	}
}

// Record writes tr in a single database transaction.
func (m *Mirror) Record(ctx context.Context, tr core.Transition) (retErr error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	defer func() {
		if retErr != nil {
			m.lastErr = retErr
		}
	}()

	if m.closed {
		return ErrClosed
	}

	cmdPayload, err := json.Marshal(tr.Command)
	if err != nil {
		return fmt.Errorf("encode command: %w", err)
	}
	outcomePayload, err := json.Marshal(tr.Outcome)
	if err != nil {
		return fmt.Errorf("encode outcome: %w", err)
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()

	kind := "unknown"
	if tr.Command != nil {
		kind = string(tr.Command.Kind())
	}
	if _, err := tx.ExecContext(ctx, m.dialect.InsertTransition, m.args(
		int64(tr.Sequence), kind, string(tr.Outcome.Status), string(tr.Outcome.Reason),
		string(cmdPayload), string(outcomePayload), m.now(),
	)...); err != nil {
		return fmt.Errorf("insert transition %d: %w", tr.Sequence, err)
	}

	if tr.Outcome.Accepted() {
		for _, bucket := range buckets {
			data, err := bucketPayload(tr.State, bucket)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, m.dialect.UpsertState, m.args(bucket, string(data))...); err != nil {
				return fmt.Errorf("upsert %s: %w", bucket, err)
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	m.written++
	return nil
}

func (m *Mirror) args(values ...any) []any {
	if len(m.dialect.KeyArgs) == 0 {
		return values
	}
	return append(append(make([]any, 0, len(m.dialect.KeyArgs)+len(values)), m.dialect.KeyArgs...), values...)
}

func bucketPayload(state core.State, bucket string) ([]byte, error) {
	var v any
	switch bucket {
	case BucketProducts:
		v = state.Products
	case BucketSuppliers:
		v = state.Suppliers
	case BucketStockMovements:
		v = state.StockMovements
	case BucketSalesOrders:
		v = state.SalesOrders
	default:
		return nil, fmt.Errorf("unknown bucket %s", bucket)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", bucket, err)
	}
	return data, nil
}

// Err returns the most recent write failure, if any.
func (m *Mirror) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// Written returns the number of transitions recorded.
func (m *Mirror) Written() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.written
}

// DB exposes the underlying sql.DB for inspection.
func (m *Mirror) DB() *sql.DB { return m.db }

// Close closes the database handle. Later writes fail with ErrClosed.
func (m *Mirror) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.closed = true
	return m.db.Close()
}
