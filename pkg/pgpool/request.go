package pgpool

import "sync"

// connectionRequest is a pending Acquire call: a resolvable future plus a
// pending flag. After any transition (resolved/rejected) pending is false
// and later resolutions are no-ops.
type connectionRequest struct {
	mu      sync.Mutex
	pending bool
	result  chan acquireResult
}

type acquireResult struct {
	conn *Connection
	err  error
}

func newConnectionRequest() *connectionRequest {
	return &connectionRequest{
		pending: true,
		result:  make(chan acquireResult, 1),
	}
}

// isPending reports whether this request can still be resolved or rejected.
func (r *connectionRequest) isPending() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pending
}

// resolve completes the request successfully. Returns false if the request
// had already transitioned (timed out, rejected, or resolved).
func (r *connectionRequest) resolve(conn *Connection) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.pending {
		return false
	}
	r.pending = false
	r.result <- acquireResult{conn: conn}
	return true
}

// reject completes the request with an error. Returns false if the request
// had already transitioned.
func (r *connectionRequest) reject(err error) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.pending {
		return false
	}
	r.pending = false
	r.result <- acquireResult{err: err}
	return true
}
