package pgproxy

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// clientLimiterStore hands out a per-client token bucket, evicting entries
// that have gone quiet for a while.
type clientLimiterStore struct {
	mu       sync.Mutex
	limiters map[string]*clientLimiterEntry
	rps      rate.Limit
	burst    int
}

type clientLimiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

const limiterExpiry = 3 * time.Minute

func newClientLimiterStore(rps float64, burst int) *clientLimiterStore {
	s := &clientLimiterStore{
		limiters: make(map[string]*clientLimiterEntry),
		rps:      rate.Limit(rps),
		burst:    burst,
	}
	go s.sweepLoop()
	return s
}

func (s *clientLimiterStore) allow(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.limiters[key]
	if !ok {
		entry = &clientLimiterEntry{limiter: rate.NewLimiter(s.rps, s.burst)}
		s.limiters[key] = entry
	}
	entry.lastSeen = time.Now()
	return entry.limiter.Allow()
}

func (s *clientLimiterStore) sweepLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		s.mu.Lock()
		for key, entry := range s.limiters {
			if time.Since(entry.lastSeen) > limiterExpiry {
				delete(s.limiters, key)
			}
		}
		s.mu.Unlock()
	}
}

// rateLimitKey extracts the client IP from a request, stripping the port.
func rateLimitKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// rateLimitMiddleware rejects requests over the configured per-client rate
// with 429, before authentication runs.
func rateLimitMiddleware(store *clientLimiterStore, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !store.allow(rateLimitKey(r)) {
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
