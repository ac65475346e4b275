package pgproxy

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const healthQueryTimeout = 10 * time.Second

// handleRequest is the single entry point for every HTTP and WebSocket
// upgrade request the proxy receives. Path and method routing happen before
// authentication, so a wrong path or method is rejected regardless of the
// token.
func (s *Server) handleRequest(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	if s.cfg.UnauthenticatedHealthPath != "" && path == s.cfg.UnauthenticatedHealthPath {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		s.serveHealth(w, r)
		return
	}

	if path != "/" {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	if isWebSocketUpgrade(r) {
		if _, ok := s.authenticate(w, r); !ok {
			return
		}
		s.serveWebSocket(w, r)
		return
	}

	switch r.Method {
	case http.MethodGet:
		if _, ok := s.authenticate(w, r); !ok {
			return
		}
		s.serveHealth(w, r)
	case http.MethodPost:
		if _, ok := s.authenticate(w, r); !ok {
			return
		}
		s.serveQuery(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func isWebSocketUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}

// authenticate validates the "auth" query parameter: a missing token is a
// 401, while a malformed, expired, badly-signed, or replayed one is a 403.
func (s *Server) authenticate(w http.ResponseWriter, r *http.Request) (string, bool) {
	token := r.URL.Query().Get("auth")
	if token == "" {
		w.WriteHeader(http.StatusUnauthorized)
		return "", false
	}

	identity, err := s.verify.Verify(token)
	if err != nil {
		w.WriteHeader(http.StatusForbidden)
		return "", false
	}

	if !s.replay.Accept(identity) {
		w.WriteHeader(http.StatusForbidden)
		return "", false
	}

	return identity, true
}

func (s *Server) serveHealth(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	conn, err := s.pool.Acquire(r.Context())
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	defer func() { _ = s.pool.Release(conn) }()

	ctx, cancel := context.WithTimeout(r.Context(), healthQueryTimeout)
	defer cancel()
	_, err = conn.Query(ctx, "SELECT now()", nil)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	stats := s.pool.Stats()
	writeJSON(w, http.StatusOK, HealthStatus{
		Available:  stats.Available,
		Borrowed:   stats.Borrowed,
		Connecting: stats.Connecting,
		Total:      stats.Total,
		LatencyMs:  float64(time.Since(start).Microseconds()) / 1000.0,
	})
}

func (s *Server) serveQuery(w http.ResponseWriter, r *http.Request) {
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		w.WriteHeader(http.StatusUnsupportedMediaType)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse(uuid.NewString(), 400, "Error parsing JSON"))
		return
	}

	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse(uuid.NewString(), 400, "Error parsing JSON"))
		return
	}

	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}

	if req.Query == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse(id, 400, "query must be a non-empty string"))
		return
	}

	resp := s.runQuery(r.Context(), id, req.Query, req.Params)
	writeJSON(w, resp.StatusCode, resp)
}

// runQuery acquires a connection, executes text/params, and releases the
// connection on every exit path.
func (s *Server) runQuery(ctx context.Context, id, text string, params []*string) Response {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return errorResponse(id, 500, "Error acquiring connection")
	}
	defer func() { _ = s.pool.Release(conn) }()

	result, err := conn.Query(ctx, text, params)
	if err != nil {
		return errorResponse(id, 400, err.Error())
	}
	return successResponse(id, result)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
