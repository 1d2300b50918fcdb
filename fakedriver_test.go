package mymcp

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"os"
	"sync"
	"testing"

	"github.com/rs/zerolog"
)

func testLogger() zerolog.Logger {
	return zerolog.New(os.Stderr).Level(zerolog.Disabled)
}

// fakeDB scripts driver-level behavior for engine tests. Handlers are set per
// test; every query and exec is recorded with its bind arguments.
type fakeDB struct {
	mu       sync.Mutex
	connects int
	queries  []recordedStatement

	queryFn    func(query string, args []driver.NamedValue) (driver.Rows, error)
	execFn     func(query string, args []driver.NamedValue) (driver.Result, error)
	pingErr    error
	connectErr error
}

type recordedStatement struct {
	sql  string
	args []driver.Value
}

func (f *fakeDB) record(query string, args []driver.NamedValue) {
	values := make([]driver.Value, len(args))
	for i, a := range args {
		values[i] = a.Value
	}
	f.mu.Lock()
	f.queries = append(f.queries, recordedStatement{sql: query, args: values})
	f.mu.Unlock()
}

func (f *fakeDB) recorded() []recordedStatement {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedStatement(nil), f.queries...)
}

func (f *fakeDB) lastStatement(t *testing.T) recordedStatement {
	t.Helper()
	stmts := f.recorded()
	if len(stmts) == 0 {
		t.Fatal("expected at least one recorded statement")
	}
	return stmts[len(stmts)-1]
}

type fakeConnector struct {
	db *fakeDB
}

func (c *fakeConnector) Connect(ctx context.Context) (driver.Conn, error) {
	c.db.mu.Lock()
	c.db.connects++
	err := c.db.connectErr
	c.db.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return &fakeConn{db: c.db}, nil
}

func (c *fakeConnector) Driver() driver.Driver {
	return fakeDriver{}
}

type fakeDriver struct{}

func (fakeDriver) Open(name string) (driver.Conn, error) {
	return nil, errors.New("fake driver does not support Open")
}

type fakeConn struct {
	db *fakeDB
}

func (c *fakeConn) Prepare(query string) (driver.Stmt, error) {
	return nil, errors.New("fake conn does not support Prepare")
}

func (c *fakeConn) Close() error { return nil }

func (c *fakeConn) Begin() (driver.Tx, error) {
	return nil, errors.New("fake conn does not support Begin")
}

func (c *fakeConn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	c.db.record(query, args)
	c.db.mu.Lock()
	fn := c.db.queryFn
	c.db.mu.Unlock()
	if fn == nil {
		return nil, errors.New("fake conn: no queryFn scripted")
	}
	return fn(query, args)
}

func (c *fakeConn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.db.record(query, args)
	c.db.mu.Lock()
	fn := c.db.execFn
	c.db.mu.Unlock()
	if fn == nil {
		return nil, errors.New("fake conn: no execFn scripted")
	}
	return fn(query, args)
}

func (c *fakeConn) Ping(ctx context.Context) error {
	c.db.mu.Lock()
	defer c.db.mu.Unlock()
	return c.db.pingErr
}

// fakeRows is an in-memory driver.Rows.
type fakeRows struct {
	columns []string
	rows    [][]driver.Value
	idx     int
}

func (r *fakeRows) Columns() []string { return r.columns }
func (r *fakeRows) Close() error      { return nil }

func (r *fakeRows) Next(dest []driver.Value) error {
	if r.idx >= len(r.rows) {
		return io.EOF
	}
	copy(dest, r.rows[r.idx])
	r.idx++
	return nil
}

// staticRows builds a queryFn that always returns the given result set.
func staticRows(columns []string, rows ...[]driver.Value) func(string, []driver.NamedValue) (driver.Rows, error) {
	return func(string, []driver.NamedValue) (driver.Rows, error) {
		return &fakeRows{columns: columns, rows: rows}, nil
	}
}

// fakeResult is an in-memory driver.Result.
type fakeResult struct {
	affected int64
}

func (r fakeResult) LastInsertId() (int64, error) { return 0, nil }
func (r fakeResult) RowsAffected() (int64, error) { return r.affected, nil }

// newTestEngine builds an engine on a fake driver handle with the same pool
// settings New uses.
func newTestEngine(t *testing.T, config Config, fdb *fakeDB, opts ...Option) *MySQLMcp {
	t.Helper()
	db := sql.OpenDB(&fakeConnector{db: fdb})
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	m, err := newFromDB(db, "testdb", config, testLogger(), opts...)
	if err != nil {
		db.Close()
		t.Fatalf("failed to create engine: %v", err)
	}
	t.Cleanup(func() { m.Close(context.Background()) })
	return m
}
