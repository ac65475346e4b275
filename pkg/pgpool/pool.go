package pgpool

import (
	"context"
	"fmt"
	"sync"
	"time"
)

const validateQueryTimeout = 5 * time.Second

// evictedCapacity bounds the evicted-connection LRU; see evicted.go.
const evictedCapacity = 512

// Option configures a Pool at construction time.
type Option func(*Pool)

// WithLogger sets a custom Logger for the pool and every Connection it
// creates.
func WithLogger(logger Logger) Option {
	return func(p *Pool) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithDialer overrides how the pool opens driver-level connections. The
// default is dialPgconn, backed by github.com/jackc/pgx/v5/pgconn; tests and
// callers embedding the pool behind another proxy layer can substitute their
// own Dialer.
func WithDialer(dial Dialer) Option {
	return func(p *Pool) {
		if dial != nil {
			p.dial = dial
		}
	}
}

// Stats is a snapshot of the pool's bookkeeping, returned by Stats and
// surfaced by the proxy health check.
type Stats struct {
	Available  int
	Borrowed   int
	Connecting int
	Total      int
}

// Pool is a bounded, event-driven PostgreSQL connection pool: it creates,
// validates, leases, recycles, and evicts connections under concurrent
// demand, honoring acquire/borrow/retry timeouts on every lifecycle step.
type Pool struct {
	cfg     Config
	logger  Logger
	dial    Dialer
	emitter *emitter

	mu           sync.Mutex
	started      bool
	all          map[string]*Connection
	available    []*Connection
	borrowed     map[string]*time.Timer
	pendingQueue []*connectionRequest
	connecting   int
	evicted      *evictedSet

	stopCh     chan struct{}
	createWake chan struct{}
	borrowWake chan struct{}
}

// New constructs a Pool from cfg. Call Start before Acquire.
func New(cfg Config, opts ...Option) *Pool {
	p := &Pool{
		cfg:        cfg,
		logger:     NewNoopLogger(),
		dial:       dialPgconn,
		emitter:    newEmitter(),
		all:        make(map[string]*Connection),
		borrowed:   make(map[string]*time.Timer),
		evicted:    newEvictedSet(evictedCapacity),
		stopCh:     make(chan struct{}),
		createWake: make(chan struct{}, 1),
		borrowWake: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// On registers handler to run whenever the pool (or one of its connections)
// emits an event of kind. See events.go for the full list.
func (p *Pool) On(kind EventKind, handler EventHandler) {
	p.emitter.On(kind, handler)
}

// Config returns the pool's configuration.
func (p *Pool) Config() Config { return p.cfg }

// Started reports whether Start has completed successfully and Stop has not
// yet been called.
func (p *Pool) Started() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.started
}

// Stats returns a snapshot of the pool's current bookkeeping.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		Available:  len(p.available),
		Borrowed:   len(p.borrowed),
		Connecting: p.connecting,
		Total:      len(p.all),
	}
}

func (p *Pool) newConnection() *Connection {
	return newConnection(p.cfg.ConnString, "", p.dial, p.logger)
}

// Start is idempotent. It creates and synchronously validates one initial
// connection, then schedules the background create loop. Start fails if the
// initial connection cannot connect or validate.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	conn := p.newConnection()
	p.adopt(conn)

	if err := conn.Connect(ctx); err != nil {
		p.evict(conn, true)
		return fmt.Errorf("pgpool: starting pool: %w", err)
	}

	if err := p.validate(conn); err != nil {
		p.evict(conn, false)
		return fmt.Errorf("pgpool: starting pool: validating initial connection: %w", err)
	}

	p.mu.Lock()
	p.started = true
	keepAvailable := p.cfg.MaximumIdleConnections > 0
	if keepAvailable {
		p.available = append(p.available, conn)
	}
	p.mu.Unlock()

	if !keepAvailable {
		p.evict(conn, false)
	}

	p.emitter.emit(Event{Kind: EventStarted})

	go p.createLoop()
	go p.borrowLoop()
	p.wakeCreate()

	return nil
}

// Stop is idempotent. It stops accepting new work, rejects every pending
// Acquire with ErrStopped, and destroys every connection the pool owns.
// Stop does not block waiting for an in-flight connection construction in
// the create loop: that loop notices the pool has stopped and evicts its
// half-open connection on its own.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false

	pending := p.pendingQueue
	p.pendingQueue = nil

	timers := make([]*time.Timer, 0, len(p.borrowed))
	for _, t := range p.borrowed {
		timers = append(timers, t)
	}
	p.borrowed = make(map[string]*time.Timer)
	p.available = nil

	conns := make([]*Connection, 0, len(p.all))
	for _, c := range p.all {
		conns = append(conns, c)
	}
	p.mu.Unlock()

	for _, t := range timers {
		t.Stop()
	}
	for _, req := range pending {
		req.reject(ErrStopped)
	}

	close(p.stopCh)

	for _, c := range conns {
		p.evict(c, false)
	}

	p.emitter.emit(Event{Kind: EventStopped})
}

// Acquire enrolls a request in the pending queue and waits for the borrow
// loop to hand it a connection. It fails with ErrNotStarted if called before
// Start, a *TimeoutError after Config.AcquireTimeout, or ErrStopped if the
// pool stops while the request is pending.
func (p *Pool) Acquire(ctx context.Context) (*Connection, error) {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return nil, ErrNotStarted
	}
	req := newConnectionRequest()
	p.pendingQueue = append(p.pendingQueue, req)
	p.mu.Unlock()

	p.wakeBorrow()
	p.wakeCreate()

	timer := time.NewTimer(p.cfg.AcquireTimeout)
	defer timer.Stop()

	select {
	case res := <-req.result:
		return res.conn, res.err
	case <-timer.C:
		req.reject(&TimeoutError{After: p.cfg.AcquireTimeout})
		return nil, &TimeoutError{After: p.cfg.AcquireTimeout}
	case <-ctx.Done():
		req.reject(ctx.Err())
		return nil, ctx.Err()
	}
}

// Release returns a previously acquired connection to the pool. It is
// idempotent for connections the pool has already evicted or already put
// back among the available ones, and fails with ErrNotOwned for connections
// this pool never adopted.
func (p *Pool) Release(conn *Connection) error {
	p.mu.Lock()
	if p.evicted.Contains(conn.id) {
		p.mu.Unlock()
		return nil
	}
	if _, ok := p.all[conn.id]; !ok {
		p.mu.Unlock()
		return ErrNotOwned
	}
	for _, c := range p.available {
		if c.id == conn.id {
			p.mu.Unlock()
			return nil
		}
	}
	if t, ok := p.borrowed[conn.id]; ok {
		t.Stop()
		delete(p.borrowed, conn.id)
	}
	availCount := len(p.available)
	p.mu.Unlock()

	if !conn.Connected() {
		p.evict(conn, false)
		p.wakeBorrow()
		return nil
	}

	if availCount >= int(p.cfg.MaximumIdleConnections) {
		p.evict(conn, false)
		p.wakeBorrow()
		return nil
	}

	if err := p.recycle(conn); err != nil {
		p.logger.Warn("recycle failed, evicting connection", "connection_id", conn.ID(), "error", err)
		p.evict(conn, false)
		p.wakeBorrow()
		return nil
	}

	p.mu.Lock()
	if _, ok := p.all[conn.id]; !ok {
		// Stop() raced with recycle(); conn was already evicted.
		p.mu.Unlock()
		p.wakeBorrow()
		return nil
	}
	p.available = append(p.available, conn)
	p.mu.Unlock()

	p.emitter.emit(Event{Kind: EventConnectionReleased, Connection: conn})
	p.wakeBorrow()
	return nil
}

// recycle checks whether a transaction is currently assigned on conn and
// rolls it back if so.
func (p *Pool) recycle(conn *Connection) error {
	result, err := conn.Query(context.Background(), "SELECT pg_current_xact_id_if_assigned() AS txid", nil)
	if err != nil {
		return err
	}
	inTransaction := len(result.Rows) > 0 && len(result.Rows[0]) > 0 && result.Rows[0][0] != nil
	if !inTransaction {
		return nil
	}
	_, err = conn.Query(context.Background(), "ROLLBACK", nil)
	return err
}

func (p *Pool) validate(conn *Connection) error {
	ctx, cancel := context.WithTimeout(context.Background(), validateQueryTimeout)
	defer cancel()
	_, err := conn.Query(ctx, "SELECT now()", nil)
	return err
}

// adopt registers a freshly created connection with the pool's bookkeeping
// and arranges for the pool to notice if the connection ever destroys
// itself (e.g. a driver-fatal query error). Exactly one destruction
// listener is registered per connection.
func (p *Pool) adopt(conn *Connection) {
	p.mu.Lock()
	p.all[conn.id] = conn
	p.mu.Unlock()
	conn.OnDestroyed(func() { p.evict(conn, false) })
}

// evict removes conn from every pool structure, destroys it, fires the
// appropriate terminal event exactly once, and records it so a later
// release is a no-op. evict is idempotent and safe to call from conn's own
// destroyed callback.
func (p *Pool) evict(conn *Connection, aborted bool) {
	p.mu.Lock()
	if _, ok := p.all[conn.id]; !ok {
		p.mu.Unlock()
		return
	}
	delete(p.all, conn.id)
	p.removeFromAvailableLocked(conn)
	if t, ok := p.borrowed[conn.id]; ok {
		t.Stop()
		delete(p.borrowed, conn.id)
	}
	p.evicted.Add(conn.id)
	p.mu.Unlock()

	conn.Destroy(context.Background())

	if aborted {
		p.emitter.emit(Event{Kind: EventConnectionAborted, Connection: conn})
	} else {
		p.emitter.emit(Event{Kind: EventConnectionDestroyed, Connection: conn})
	}

	p.wakeCreate()
}

func (p *Pool) removeFromAvailableLocked(conn *Connection) {
	for i, c := range p.available {
		if c.id == conn.id {
			p.available = append(p.available[:i], p.available[i+1:]...)
			return
		}
	}
}

func (p *Pool) wakeCreate() {
	select {
	case p.createWake <- struct{}{}:
	default:
	}
}

func (p *Pool) wakeBorrow() {
	select {
	case p.borrowWake <- struct{}{}:
	default:
	}
}

func (p *Pool) sleepRetry() {
	t := time.NewTimer(p.cfg.RetryInterval)
	defer t.Stop()
	select {
	case <-t.C:
	case <-p.stopCh:
	}
}

// createLoop runs whenever a condition may demand more connections:
// pending requests, an empty available set, or room under MaxPoolSize.
func (p *Pool) createLoop() {
	for {
		select {
		case <-p.stopCh:
			return
		case <-p.createWake:
		}
		p.runCreateIteration()
	}
}

func (p *Pool) runCreateIteration() {
	for {
		p.mu.Lock()
		if !p.started {
			p.mu.Unlock()
			return
		}
		avail := len(p.available)
		pending := len(p.pendingQueue)
		all := len(p.all)

		if (avail > 0 && int32(all) >= p.cfg.MinimumPoolSize) ||
			(pending == 0 && int32(avail) >= p.cfg.MaximumIdleConnections) ||
			int32(all) >= p.cfg.MaximumPoolSize {
			p.mu.Unlock()
			return
		}
		p.connecting++
		p.mu.Unlock()

		conn := p.newConnection()
		p.adopt(conn)

		err := conn.Connect(context.Background())
		if err != nil {
			p.mu.Lock()
			p.connecting--
			p.mu.Unlock()
			p.evict(conn, true)
			p.sleepRetry()
			continue
		}

		p.mu.Lock()
		p.connecting--
		stillStarted := p.started
		if stillStarted {
			p.available = append(p.available, conn)
		}
		p.mu.Unlock()

		if !stillStarted {
			p.evict(conn, false)
			return
		}

		p.emitter.emit(Event{Kind: EventConnectionCreated, Connection: conn})
		p.wakeBorrow()
	}
}

// borrowLoop repeatedly pulls the head request from pending and pairs it
// with an available connection, FIFO, putting the request back at the
// front if pairing fails transiently.
func (p *Pool) borrowLoop() {
	for {
		select {
		case <-p.stopCh:
			return
		case <-p.borrowWake:
		}
		p.runBorrowIteration()
	}
}

func (p *Pool) runBorrowIteration() {
	for {
		p.mu.Lock()
		if !p.started || len(p.pendingQueue) == 0 {
			p.mu.Unlock()
			return
		}
		req := p.pendingQueue[0]
		p.pendingQueue = p.pendingQueue[1:]

		if len(p.available) == 0 {
			// Put the request back and ask the create loop for more supply.
			p.pendingQueue = append([]*connectionRequest{req}, p.pendingQueue...)
			p.mu.Unlock()
			p.wakeCreate()
			return
		}

		conn := p.available[0]
		p.available = p.available[1:]
		p.mu.Unlock()

		if !req.isPending() {
			p.returnOrEvictIdle(conn)
			continue
		}

		if p.cfg.ValidateOnBorrow {
			if err := p.validate(conn); err != nil {
				p.mu.Lock()
				p.pendingQueue = append([]*connectionRequest{req}, p.pendingQueue...)
				p.mu.Unlock()
				p.evict(conn, false)
				continue
			}
		}

		if !req.isPending() {
			_ = p.Release(conn)
			continue
		}

		p.armBorrowTimer(conn)

		p.emitter.emit(Event{Kind: EventConnectionAcquired, Connection: conn})
		req.resolve(conn)
	}
}

// returnOrEvictIdle is used when the request at the head of pending stopped
// being pending (timeout/cancellation raced the borrow loop) after a
// connection was already popped off available for it.
func (p *Pool) returnOrEvictIdle(conn *Connection) {
	p.mu.Lock()
	if len(p.available) >= int(p.cfg.MaximumIdleConnections) {
		p.mu.Unlock()
		p.evict(conn, false)
		return
	}
	p.available = append([]*Connection{conn}, p.available...)
	p.mu.Unlock()
}

// WithConnection acquires a connection, passes it to fn, and releases it on
// every exit path (success, error, or panic), avoiding reliance on a
// finalizer to return the connection to the pool.
func (p *Pool) WithConnection(ctx context.Context, fn func(*Connection) error) error {
	conn, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = p.Release(conn) }()
	return fn(conn)
}

func (p *Pool) armBorrowTimer(conn *Connection) {
	timer := time.AfterFunc(p.cfg.BorrowTimeout, func() {
		p.logger.Warn("borrow timeout exceeded, destroying connection", "connection_id", conn.ID())
		p.evict(conn, false)
	})
	p.mu.Lock()
	p.borrowed[conn.id] = timer
	p.mu.Unlock()
}
