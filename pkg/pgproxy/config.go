package pgproxy

import "time"

// Config holds the Proxy Server's own tunables. The pool it serves carries
// its own pgpool.Config.
type Config struct {
	// ListenAddr is the host:port the HTTP/WebSocket listener binds.
	ListenAddr string

	// UnauthenticatedHealthPath, if non-empty, is served as a health check
	// without requiring the auth query parameter.
	UnauthenticatedHealthPath string

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// RateLimitEnabled toggles the per-client token-bucket middleware.
	RateLimitEnabled bool
	RateLimitRPS     float64
	RateLimitBurst   int

	// LogRequests toggles the structured access-log middleware.
	LogRequests bool
}

// DefaultConfig returns the Proxy Server's default tunables.
func DefaultConfig() Config {
	return Config{
		ListenAddr:       ":5433",
		ReadTimeout:      30 * time.Second,
		WriteTimeout:     30 * time.Second,
		IdleTimeout:      120 * time.Second,
		RateLimitEnabled: true,
		RateLimitRPS:     50,
		RateLimitBurst:   100,
		LogRequests:      true,
	}
}
