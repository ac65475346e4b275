package pgpool

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// connState is the Connection's lifecycle state:
// created -> connecting -> connected -> destroyed.
type connState int32

const (
	stateCreated connState = iota
	stateConnecting
	stateConnected
	stateDestroyed
)

// Connection wraps a single driver handle, mediating every call through its
// Query Serializer so at most one query ever runs against the handle at a
// time. Once destroyed, a Connection never leaves that state.
type Connection struct {
	id         string
	connString string
	options    string
	dial       Dialer
	logger     Logger
	serializer *serializer

	mu     sync.Mutex
	state  connState
	driver Driver

	serverVersion string

	destroyOnce sync.Once
	emitter     *emitter
}

func newConnection(connString, options string, dial Dialer, logger Logger) *Connection {
	return &Connection{
		id:         newConnectionID(),
		connString: connString,
		options:    options,
		dial:       dial,
		logger:     logger,
		serializer: newSerializer(),
		emitter:    newEmitter(),
	}
}

func newConnectionID() string {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

// ID returns the connection's process-unique identity.
func (c *Connection) ID() string { return c.id }

// OnDestroyed registers handler to run exactly once, the moment this
// Connection transitions to destroyed.
func (c *Connection) OnDestroyed(handler func()) {
	c.emitter.On(EventConnectionDestroyed, func(Event) { handler() })
}

// Connect may only be called once. It fails with ErrAlreadyConnected,
// ErrAlreadyDestroyed, or a *ConnectError wrapping the driver's failure
// reason (including ErrAborted if destroy() raced concurrently).
func (c *Connection) Connect(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case stateDestroyed:
		c.mu.Unlock()
		return ErrAlreadyDestroyed
	case stateConnecting, stateConnected:
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	c.state = stateConnecting
	c.mu.Unlock()

	drv, err := c.dial(ctx, c.connString)

	c.mu.Lock()
	if c.state == stateDestroyed {
		c.mu.Unlock()
		if err == nil {
			_ = drv.Close(context.Background())
		}
		return &ConnectError{Reason: ErrAborted}
	}
	if err != nil {
		c.state = stateDestroyed
		c.mu.Unlock()
		c.fireDestroyed()
		return &ConnectError{Reason: err}
	}
	c.driver = drv
	c.serverVersion = formatServerVersion(drv.ServerVersion())
	c.state = stateConnected
	c.mu.Unlock()
	return nil
}

// Query enqueues text (optionally with params) on the Connection's
// serializer. A nil entry in params means SQL NULL.
func (c *Connection) Query(ctx context.Context, text string, params []*string) (*QueryResult, error) {
	c.mu.Lock()
	if c.state != stateConnected || c.driver == nil {
		c.mu.Unlock()
		return nil, ErrNotConnected
	}
	c.mu.Unlock()

	result, err := enqueueSerializer(c.serializer, func() (*QueryResult, error) {
		return c.runQuery(ctx, text, params)
	})
	if err != nil && IsFatal(err) {
		c.Destroy(context.Background())
	}
	return result, err
}

func (c *Connection) runQuery(ctx context.Context, text string, params []*string) (*QueryResult, error) {
	c.mu.Lock()
	drv := c.driver
	c.mu.Unlock()
	if drv == nil {
		return nil, ErrNotConnected
	}

	if len(params) > 0 {
		return drv.ExecParams(ctx, text, params)
	}
	return drv.Exec(ctx, text)
}

// Cancel requests cancellation of the in-flight query out of band. It never
// waits for the cancellation to take effect.
func (c *Connection) Cancel(ctx context.Context) error {
	c.mu.Lock()
	drv := c.driver
	connected := c.state == stateConnected
	c.mu.Unlock()
	if !connected || drv == nil {
		return ErrNotConnected
	}
	return drv.Cancel(ctx)
}

// Destroy is idempotent: it closes the driver handle, marks the Connection
// destroyed, and fires the destroyed event exactly once.
func (c *Connection) Destroy(ctx context.Context) {
	c.mu.Lock()
	if c.state == stateDestroyed {
		c.mu.Unlock()
		return
	}
	drv := c.driver
	c.state = stateDestroyed
	c.driver = nil
	c.mu.Unlock()

	if drv != nil {
		_ = drv.Close(ctx)
	}
	c.serializer.close()
	c.fireDestroyed()
}

func (c *Connection) fireDestroyed() {
	c.destroyOnce.Do(func() {
		c.emitter.emit(Event{Kind: EventConnectionDestroyed, Connection: c})
	})
}

// Destroyed reports whether Destroy has already completed.
func (c *Connection) Destroyed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == stateDestroyed
}

// Connected reports whether the Connection is currently usable.
func (c *Connection) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == stateConnected
}

// ServerVersion returns "{major}.{minor}" derived from the driver's version
// string, or "" if unknown.
func (c *Connection) ServerVersion() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.serverVersion
}

// formatServerVersion turns either a dotted server_version string (e.g.
// "17.4" or "17.4 (Debian 17.4-1)") or a server_version_num-style numeric
// string (e.g. "170004", meaning major*10000+minor for PG10+) into
// "{major}.{minor}".
func formatServerVersion(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	digits := strings.FieldsFunc(raw, func(r rune) bool { return r < '0' || r > '9' })
	if len(digits) == 0 {
		return raw
	}
	n := digits[0]
	if len(digits) >= 2 {
		minor, _ := strconv.Atoi(digits[1])
		return fmt.Sprintf("%s.%d", n, minor)
	}
	if len(n) <= 4 {
		minor, _ := strconv.Atoi(n)
		return fmt.Sprintf("0.%d", minor)
	}
	major := n[:len(n)-4]
	minor, _ := strconv.Atoi(n[len(n)-4:])
	return fmt.Sprintf("%s.%d", major, minor)
}
