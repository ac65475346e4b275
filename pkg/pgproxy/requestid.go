package pgproxy

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// requestIDHeader carries a correlation id across the access log and any
// downstream query logging.
const requestIDHeader = "X-Request-ID"

type requestIDKey struct{}

// requestIDMiddleware assigns a request id, reusing one the client already
// set, and echoes it back on the response.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		ctx := context.WithValue(r.Context(), requestIDKey{}, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requestIDFromContext extracts the correlation id assigned by
// requestIDMiddleware, or "" if the middleware was not run.
func requestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}
