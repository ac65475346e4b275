package pgpool

import (
	"context"
	"sync"
)

// fakeDriver is an in-memory stand-in for the driver interface, letting
// tests drive Connection/Pool behavior without a live PostgreSQL server.
type fakeDriver struct {
	mu            sync.Mutex
	closed        bool
	closeErr      error
	cancelErr     error
	serverVersion string
	queryFunc     func(sql string, params []*string) (*QueryResult, error)
	queryCount    int
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{serverVersion: "170004"}
}

func (d *fakeDriver) Exec(ctx context.Context, sql string) (*QueryResult, error) {
	return d.run(sql, nil)
}

func (d *fakeDriver) ExecParams(ctx context.Context, sql string, params []*string) (*QueryResult, error) {
	return d.run(sql, params)
}

func (d *fakeDriver) run(sql string, params []*string) (*QueryResult, error) {
	d.mu.Lock()
	d.queryCount++
	fn := d.queryFunc
	closed := d.closed
	d.mu.Unlock()

	if closed {
		return nil, &DriverFatalError{Message: "connection closed"}
	}
	if fn != nil {
		return fn(sql, params)
	}
	return &QueryResult{Command: "SELECT", RowCount: 0}, nil
}

func (d *fakeDriver) Cancel(ctx context.Context) error {
	return d.cancelErr
}

func (d *fakeDriver) Close(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	return d.closeErr
}

func (d *fakeDriver) ServerVersion() string {
	return d.serverVersion
}

// fakeDial builds a Dialer that hands out drv, optionally blocking on
// gate (if non-nil) until it is closed, to exercise connect/destroy races.
func fakeDial(drv *fakeDriver, dialErr error, gate <-chan struct{}) Dialer {
	return func(ctx context.Context, connString string) (Driver, error) {
		if gate != nil {
			select {
			case <-gate:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		if dialErr != nil {
			return nil, dialErr
		}
		return drv, nil
	}
}
