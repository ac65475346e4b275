package pgpool

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// Field describes one column of a QueryResult, echoing PostgreSQL's OID.
type Field struct {
	Name string
	OID  uint32
}

// QueryResult is the pool-internal shape of a finished query, independent of
// the underlying driver. Row values are left as text (value-type parsing is
// out of scope); a nil entry represents SQL NULL.
type QueryResult struct {
	Command  string
	RowCount int64
	Fields   []Field
	Rows     [][]*string
}

// Driver is the low-level PostgreSQL wire driver contract the pool
// consumes: connect, send query, read results, cancel, destroy. The only
// implementation shipped is pgconnDriver, backed by
// github.com/jackc/pgx/v5/pgconn; tests substitute a fake.
type Driver interface {
	Exec(ctx context.Context, sql string) (*QueryResult, error)
	ExecParams(ctx context.Context, sql string, params []*string) (*QueryResult, error)
	Cancel(ctx context.Context) error
	Close(ctx context.Context) error
	ServerVersion() string
}

// Dialer opens a new driver-level connection for the given DSN/URL.
type Dialer func(ctx context.Context, connString string) (Driver, error)

// dialPgconn is the default Dialer, backed by pgconn.Connect.
func dialPgconn(ctx context.Context, connString string) (Driver, error) {
	conn, err := pgconn.Connect(ctx, connString)
	if err != nil {
		return nil, err
	}
	return &pgconnDriver{conn: conn}, nil
}

type pgconnDriver struct {
	conn *pgconn.PgConn
}

// Exec runs sql (which may contain several ';'-separated statements) using
// the simple query protocol. Every result is drained; the last successful
// result's shape is returned, but a fatal error anywhere in the batch fails
// the call only after every result has been read.
func (d *pgconnDriver) Exec(ctx context.Context, sql string) (*QueryResult, error) {
	mrr := d.conn.Exec(ctx, sql)
	results, err := mrr.ReadAll()

	var out *QueryResult
	var firstErr error
	for _, r := range results {
		if r.Err != nil {
			if firstErr == nil {
				firstErr = r.Err
			}
			continue
		}
		out = resultToQueryResult(r)
	}
	if firstErr == nil {
		firstErr = err
	}
	if firstErr != nil {
		return nil, classifyResultError(firstErr)
	}
	if out == nil {
		out = &QueryResult{}
	}
	return out, nil
}

// ExecParams runs a single parameterized statement using the extended query
// protocol. Parameters are sent as text; nil means SQL NULL.
func (d *pgconnDriver) ExecParams(ctx context.Context, sql string, params []*string) (*QueryResult, error) {
	values := make([][]byte, len(params))
	oids := make([]uint32, len(params))
	formats := make([]int16, len(params))
	for i, p := range params {
		if p == nil {
			values[i] = nil
		} else {
			values[i] = []byte(*p)
		}
		oids[i] = 0
		formats[i] = 0
	}

	reader := d.conn.ExecParams(ctx, sql, values, oids, formats, nil)
	result := reader.Read()
	if result.Err != nil {
		return nil, classifyResultError(result.Err)
	}
	return resultToQueryResult(result), nil
}

func (d *pgconnDriver) Cancel(ctx context.Context) error {
	return d.conn.CancelRequest(ctx)
}

func (d *pgconnDriver) Close(ctx context.Context) error {
	return d.conn.Close(ctx)
}

func (d *pgconnDriver) ServerVersion() string {
	return d.conn.ParameterStatus("server_version")
}

func resultToQueryResult(r *pgconn.Result) *QueryResult {
	fields := make([]Field, len(r.FieldDescriptions))
	for i, fd := range r.FieldDescriptions {
		fields[i] = Field{Name: fd.Name, OID: fd.DataTypeOID}
	}

	rows := make([][]*string, len(r.Rows))
	for i, row := range r.Rows {
		values := make([]*string, len(row))
		for j, col := range row {
			if col == nil {
				continue
			}
			s := string(col)
			values[j] = &s
		}
		rows[i] = values
	}

	return &QueryResult{
		Command:  commandVerb(r.CommandTag.String()),
		RowCount: r.CommandTag.RowsAffected(),
		Fields:   fields,
		Rows:     rows,
	}
}

func commandVerb(tag string) string {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return ""
	}
	if i := strings.IndexByte(tag, ' '); i >= 0 {
		return strings.ToUpper(tag[:i])
	}
	return strings.ToUpper(tag)
}

// classifyResultError wraps driver/result errors into the SQLError (the
// connection stays usable) or DriverFatalError (the connection must be
// destroyed) taxonomy. A *pgconn.PgError means the server reported a
// normal SQL-level error; anything else (I/O failure, protocol desync,
// context cancellation) is treated as fatal.
func classifyResultError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return &SQLError{Message: pgErr.Message}
	}
	return &DriverFatalError{Message: "driver error", Cause: err}
}

// IsFatal reports whether err represents an unrecoverable driver failure
// that destroyed its Connection.
func IsFatal(err error) bool {
	var fatal *DriverFatalError
	return errors.As(err, &fatal)
}
