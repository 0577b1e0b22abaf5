// Package testutil provides a recording stub database for postgres journal tests.
package testutil

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
)

// Exec is one statement seen by the stub, with its bound arguments.
type Exec struct {
	Query string
	Args  []any
}

// StubConn records statements and can be told to fail at each stage.
type StubConn struct {
	mu         sync.Mutex
	Execs      []Exec
	Commits    int
	Rollbacks  int
	FailPing   bool
	FailExec   string // fail statements containing this substring
	FailBegin  bool
	FailCommit bool
}

var seq atomic.Int64

// NewStubDB registers a fresh driver and returns a sql.DB backed by it.
func NewStubDB() (*sql.DB, *StubConn) {
	conn := &StubConn{}
	name := fmt.Sprintf("stubjournal%d", seq.Add(1))
	sql.Register(name, &stubDriver{conn: conn})
	db, err := sql.Open(name, "stub")
	if err != nil {
		panic(err)
	}
	return db, conn
}

// Inserts returns the recorded INSERT statements targeting table.
func (c *StubConn) Inserts(table string) []Exec {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Exec
	prefix := "INSERT INTO " + strings.ToUpper(table) + " "
	for _, e := range c.Execs {
		if strings.HasPrefix(strings.ToUpper(strings.TrimSpace(e.Query)), prefix) {
			out = append(out, e)
		}
	}
	return out
}

type stubDriver struct {
	conn *StubConn
}

func (d *stubDriver) Open(string) (driver.Conn, error) { return d.conn, nil }

// Prepare implements driver.Conn.
func (c *StubConn) Prepare(string) (driver.Stmt, error) { return nil, fmt.Errorf("not implemented") }

// Close implements driver.Conn.
func (c *StubConn) Close() error { return nil }

// Begin implements driver.Conn.
func (c *StubConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

// Ping implements driver.Pinger.
func (c *StubConn) Ping(context.Context) error {
	if c.FailPing {
		return fmt.Errorf("ping fail")
	}
	return nil
}

// BeginTx implements driver.ConnBeginTx.
func (c *StubConn) BeginTx(context.Context, driver.TxOptions) (driver.Tx, error) {
	if c.FailBegin {
		return nil, fmt.Errorf("begin fail")
	}
	return &stubTx{conn: c}, nil
}

// ExecContext implements driver.ExecerContext.
func (c *StubConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	values := make([]any, len(args))
	for i, a := range args {
		values[i] = a.Value
	}
	c.Execs = append(c.Execs, Exec{Query: query, Args: values})
	if c.FailExec != "" && strings.Contains(query, c.FailExec) {
		return nil, fmt.Errorf("exec fail")
	}
	return driver.RowsAffected(1), nil
}

type stubTx struct {
	conn *StubConn
}

func (t *stubTx) Commit() error {
	t.conn.mu.Lock()
	defer t.conn.mu.Unlock()
	if t.conn.FailCommit {
		return fmt.Errorf("commit fail")
	}
	t.conn.Commits++
	return nil
}

func (t *stubTx) Rollback() error {
	t.conn.mu.Lock()
	defer t.conn.mu.Unlock()
	t.conn.Rollbacks++
	return nil
}
