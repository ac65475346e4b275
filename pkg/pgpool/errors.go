package pgpool

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors returned by Connection and Pool operations.
var (
	ErrAlreadyConnected = errors.New("pgpool: connection already connected")
	ErrAlreadyDestroyed = errors.New("pgpool: connection already destroyed")
	ErrAborted          = errors.New("pgpool: connect aborted by concurrent destroy")
	ErrNotConnected     = errors.New("pgpool: connection is not connected")

	ErrNotStarted = errors.New("pgpool: pool has not been started")
	ErrStopped    = errors.New("pgpool: connection pool stopped")
	ErrNotOwned   = errors.New("pgpool: connection is not owned by this pool")

	ErrInvalidConfig = errors.New("pgpool: invalid configuration")
)

// ConnectError wraps the underlying driver failure encountered during Connect.
type ConnectError struct {
	Reason error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("pgpool: connect failed: %v", e.Reason)
}

func (e *ConnectError) Unwrap() error { return e.Reason }

// TimeoutError is returned by Pool.Acquire when no connection becomes
// available before the configured acquire timeout elapses.
type TimeoutError struct {
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("Timeout of %d ms reached acquiring connection", e.After.Milliseconds())
}

// SQLError reports a recoverable SQL error returned by the server. The
// connection that produced it remains usable.
type SQLError struct {
	Message string
}

func (e *SQLError) Error() string { return e.Message }

// DriverFatalError reports an unrecoverable driver-level failure (send,
// flush, consume-input, or an unrecognized result status). The connection
// that produced it has been destroyed.
type DriverFatalError struct {
	Message string
	Cause   error
}

func (e *DriverFatalError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *DriverFatalError) Unwrap() error { return e.Cause }
