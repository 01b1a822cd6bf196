// Package testutil provides a stub database/sql driver that understands the
// statements issued by the postgres snapshot store.
package testutil

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
)

var driverSeq atomic.Int64

// StubConn records statements and keeps the snapshot tables in memory.
type StubConn struct {
	mu sync.Mutex

	Execs   []string
	Buckets map[string][]byte
	Version int64
	Seeded  bool

	FailPing  bool
	FailBegin bool
	// FailExec fails any statement containing the substring.
	FailExec string
	// CommitErr is returned from Commit after the writes have been applied.
	CommitErr error

	saved *stubState
}

type stubState struct {
	buckets map[string][]byte
	version int64
	seeded  bool
}

// NewStubDB registers a sql.DB backed by an in-memory stub connection.
func NewStubDB() (*sql.DB, *StubConn) {
	conn := &StubConn{Buckets: make(map[string][]byte)}
	name := fmt.Sprintf("stubpg%d", driverSeq.Add(1))
	sql.Register(name, &stubDriver{conn: conn})
	db, err := sql.Open(name, "stub")
	if err != nil {
		panic(err)
	}
	return db, conn
}

// BumpVersion simulates a commit by another process.
func (c *StubConn) BumpVersion() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Version++
}

// ExecCount returns the number of recorded statements containing substr.
func (c *StubConn) ExecCount(substr string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, stmt := range c.Execs {
		if strings.Contains(stmt, substr) {
			n++
		}
	}
	return n
}

type stubDriver struct {
	conn *StubConn
}

func (d *stubDriver) Open(string) (driver.Conn, error) {
	return d.conn, nil
}

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
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.FailBegin {
		return nil, fmt.Errorf("begin fail")
	}
	c.saved = &stubState{buckets: maps.Clone(c.Buckets), version: c.Version, seeded: c.Seeded}
	return &stubTx{conn: c}, nil
}

// ExecContext implements driver.ExecerContext.
func (c *StubConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Execs = append(c.Execs, query)
	if c.FailExec != "" && strings.Contains(query, c.FailExec) {
		return nil, fmt.Errorf("exec fail")
	}
	switch {
	case strings.Contains(query, "CREATE TABLE"):
	case strings.HasPrefix(query, "INSERT INTO dzinza_state_version"):
		if !c.Seeded {
			c.Seeded = true
			c.Version = 0
		}
	case strings.HasPrefix(query, "INSERT INTO dzinza_state"):
		if len(args) != 2 {
			return nil, fmt.Errorf("upsert expects 2 args, got %d", len(args))
		}
		bucket, _ := args[0].Value.(string)
		payload, _ := args[1].Value.([]byte)
		c.Buckets[bucket] = slices.Clone(payload)
	case strings.HasPrefix(query, "UPDATE dzinza_state_version"):
		if len(args) != 1 {
			return nil, fmt.Errorf("version update expects 1 arg, got %d", len(args))
		}
		v, ok := args[0].Value.(int64)
		if !ok {
			return nil, fmt.Errorf("version arg %T", args[0].Value)
		}
		c.Version = v
	default:
		return nil, fmt.Errorf("unexpected exec: %s", query)
	}
	return driver.RowsAffected(1), nil
}

// QueryContext implements driver.QueryerContext.
func (c *StubConn) QueryContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Rows, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Execs = append(c.Execs, query)
	if c.FailExec != "" && strings.Contains(query, c.FailExec) {
		return nil, fmt.Errorf("query fail")
	}
	switch {
	case strings.Contains(query, "FROM dzinza_state_version"):
		rows := &stubRows{cols: []string{"version"}}
		if c.Seeded {
			rows.values = [][]driver.Value{{c.Version}}
		}
		return rows, nil
	case strings.Contains(query, "FROM dzinza_state"):
		rows := &stubRows{cols: []string{"bucket", "payload"}}
		for _, bucket := range slices.Sorted(maps.Keys(c.Buckets)) {
			rows.values = append(rows.values, []driver.Value{bucket, slices.Clone(c.Buckets[bucket])})
		}
		return rows, nil
	}
	return nil, fmt.Errorf("unexpected query: %s", query)
}

type stubTx struct {
	conn *StubConn
}

func (t *stubTx) Commit() error {
	t.conn.mu.Lock()
	defer t.conn.mu.Unlock()
	t.conn.saved = nil
	return t.conn.CommitErr
}

func (t *stubTx) Rollback() error {
	t.conn.mu.Lock()
	defer t.conn.mu.Unlock()
	if t.conn.saved != nil {
		t.conn.Buckets = t.conn.saved.buckets
		t.conn.Version = t.conn.saved.version
		t.conn.Seeded = t.conn.saved.seeded
		t.conn.saved = nil
	}
	return nil
}

type stubRows struct {
	cols   []string
	values [][]driver.Value
	idx    int
}

func (r *stubRows) Columns() []string { return r.cols }

func (r *stubRows) Close() error { return nil }

func (r *stubRows) Next(dest []driver.Value) error {
	if r.idx >= len(r.values) {
		return io.EOF
	}
	copy(dest, r.values[r.idx])
	r.idx++
	return nil
}
