package pgproxy

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/rompi/pgpool/pkg/pgauth"
	"github.com/rompi/pgpool/pkg/pgpool"
)

// Option configures a Server at construction time.
type Option func(*Server)

// WithLogger sets the Server's structured logger.
func WithLogger(logger pgpool.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Server authenticates every request against a Verifier and ReplayStore,
// then serves one query per HTTP POST or a pinned-connection session per
// WebSocket upgrade, all against a shared pgpool.Pool.
type Server struct {
	cfg     Config
	pool    *pgpool.Pool
	verify  *pgauth.Verifier
	replay  *pgauth.ReplayStore
	logger  pgpool.Logger
	limiter *clientLimiterStore

	mu       sync.Mutex
	started  bool
	stopped  bool
	listener net.Listener
	httpSrv  *http.Server
}

// New constructs a Server bound to pool, authenticating requests with
// verify and guarding replay with replay. Call Start to begin serving.
func New(cfg Config, pool *pgpool.Pool, verify *pgauth.Verifier, replay *pgauth.ReplayStore, opts ...Option) *Server {
	s := &Server{
		cfg:    cfg,
		pool:   pool,
		verify: verify,
		replay: replay,
		logger: pgpool.NewNoopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if cfg.RateLimitEnabled {
		s.limiter = newClientLimiterStore(cfg.RateLimitRPS, cfg.RateLimitBurst)
	}
	return s
}

// Start asserts the server has not already started, starts the pool
// (failing if the initial connection cannot validate), binds the listener,
// and begins serving in the background. A pool start failure means the
// server refuses to start.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.mu.Unlock()

	if !s.pool.Started() {
		if err := s.pool.Start(ctx); err != nil {
			return fmt.Errorf("pgproxy: starting pool: %w", err)
		}
	}

	listener, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("pgproxy: binding listener: %w", err)
	}

	mux := http.NewServeMux()
	var handler http.Handler = http.HandlerFunc(s.handleRequest)
	mux.Handle("/", handler)

	var chain http.Handler = mux
	if s.limiter != nil {
		chain = rateLimitMiddleware(s.limiter, chain)
	}
	if s.cfg.LogRequests {
		chain = loggingMiddleware(s.logger, chain)
	}
	chain = requestIDMiddleware(chain)
	chain = recoveryMiddleware(s.logger, chain)

	s.httpSrv = &http.Server{
		Handler:      chain,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}

	s.mu.Lock()
	s.listener = listener
	s.started = true
	s.mu.Unlock()

	go func() {
		if err := s.httpSrv.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.logger.Error("proxy server stopped serving", "error", err)
			s.Stop(context.Background())
		}
	}()

	return nil
}

// Stop asserts the server has started and has not already stopped, closes
// the listener, and stops the pool.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return ErrNotStarted
	}
	if s.stopped {
		s.mu.Unlock()
		return ErrAlreadyStopped
	}
	s.stopped = true
	httpSrv := s.httpSrv
	s.mu.Unlock()

	var shutdownErr error
	if httpSrv != nil {
		shutdownErr = httpSrv.Shutdown(ctx)
	}
	s.pool.Stop()
	return shutdownErr
}

// Addr returns the address the listener bound to, or "" if Start has not
// completed.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}
