package pgproxy

import "errors"

// Sentinel errors used internally by Server; none of these reach the wire
// directly — handlers translate them into HTTP status codes.
var (
	ErrAlreadyStarted = errors.New("pgproxy: server already started")
	ErrNotStarted     = errors.New("pgproxy: server has not been started")
	ErrAlreadyStopped = errors.New("pgproxy: server already stopped")
)
