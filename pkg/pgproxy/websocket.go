package pgproxy

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/coder/websocket"

	"github.com/rompi/pgpool/pkg/pgpool"
)

// serveWebSocket acquires one pooled connection for the lifetime of the
// session; every inbound Request runs
// against that same connection (so multi-statement transactions work over
// the socket), and the connection is released back to the pool exactly once
// when the socket closes for any reason.
func (s *Server) serveWebSocket(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}

	conn, err := s.pool.Acquire(r.Context())
	if err != nil {
		_ = c.Close(websocket.StatusInternalError, "could not acquire connection")
		return
	}
	defer func() { _ = s.pool.Release(conn) }()
	defer c.CloseNow()

	ctx := r.Context()
	for {
		typ, data, err := c.Read(ctx)
		if err != nil {
			return
		}
		if typ != websocket.MessageText {
			_ = c.Close(websocket.StatusUnsupportedData, "only text frames are accepted")
			return
		}

		var req Request
		if err := json.Unmarshal(data, &req); err != nil {
			_ = c.Close(websocket.StatusUnsupportedData, "malformed request payload")
			return
		}
		if req.ID == "" || req.Query == "" {
			_ = c.Close(websocket.StatusUnsupportedData, "request missing id or query")
			return
		}

		resp := runQueryOnConnection(ctx, conn, req.ID, req.Query, req.Params)
		payload, err := json.Marshal(resp)
		if err != nil {
			_ = c.Close(websocket.StatusInternalError, "could not encode response")
			return
		}
		if err := c.Write(ctx, websocket.MessageText, payload); err != nil {
			return
		}
	}
}

// runQueryOnConnection executes text/params against an already-acquired
// connection, without touching the pool's acquire/release bookkeeping — the
// WebSocket session owns conn for its entire lifetime.
func runQueryOnConnection(ctx context.Context, conn *pgpool.Connection, id, text string, params []*string) Response {
	result, err := conn.Query(ctx, text, params)
	if err != nil {
		return errorResponse(id, 400, err.Error())
	}
	return successResponse(id, result)
}
