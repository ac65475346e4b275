package pgproxy

import (
	"context"
	"sync"

	"github.com/rompi/pgpool/pkg/pgpool"
)

// fakeDriver is an in-memory stand-in for pgpool.Driver, letting Server
// tests run without a live PostgreSQL server.
type fakeDriver struct {
	mu        sync.Mutex
	closed    bool
	queryFunc func(sql string, params []*string) (*pgpool.QueryResult, error)
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{}
}

func (d *fakeDriver) Exec(ctx context.Context, sql string) (*pgpool.QueryResult, error) {
	return d.run(sql, nil)
}

func (d *fakeDriver) ExecParams(ctx context.Context, sql string, params []*string) (*pgpool.QueryResult, error) {
	return d.run(sql, params)
}

func (d *fakeDriver) run(sql string, params []*string) (*pgpool.QueryResult, error) {
	d.mu.Lock()
	fn := d.queryFunc
	d.mu.Unlock()
	if fn != nil {
		return fn(sql, params)
	}
	return &pgpool.QueryResult{Command: "SELECT", RowCount: 0}, nil
}

func (d *fakeDriver) Cancel(ctx context.Context) error { return nil }

func (d *fakeDriver) Close(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	return nil
}

func (d *fakeDriver) ServerVersion() string { return "170004" }

func fakeDial() pgpool.Dialer {
	return func(ctx context.Context, connString string) (pgpool.Driver, error) {
		return newFakeDriver(), nil
	}
}

// fakeDialWithQuery builds a Dialer whose connections run queryFunc for
// every query, letting a test script specific SQL statements (e.g. the
// health check's "SELECT now()" or a payload's own query text).
func fakeDialWithQuery(queryFunc func(sql string, params []*string) (*pgpool.QueryResult, error)) pgpool.Dialer {
	return func(ctx context.Context, connString string) (pgpool.Driver, error) {
		d := newFakeDriver()
		d.queryFunc = queryFunc
		return d, nil
	}
}
