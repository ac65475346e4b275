package pgproxy

import (
	"net/http"
	"runtime/debug"

	"github.com/rompi/pgpool/pkg/pgpool"
)

// recoveryMiddleware catches a panic from any handler further down the
// chain, logs it with a stack trace, and responds 500 instead of letting
// the connection die with no response at all.
func recoveryMiddleware(logger pgpool.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				logger.Error("panic recovered",
					"panic", err,
					"method", r.Method,
					"path", r.URL.Path,
					"stack", string(debug.Stack()),
				)
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
