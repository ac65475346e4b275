package pgproxy

import (
	"encoding/json"
	"fmt"

	"github.com/rompi/pgpool/pkg/pgpool"
)

// Request is the wire shape of one query submitted over HTTP POST or a
// WebSocket text frame.
type Request struct {
	ID     string    `json:"id"`
	Query  string    `json:"query"`
	Params []*string `json:"params,omitempty"`
}

// Response is the wire shape of a completed query, success or failure. The
// success fields (Command/RowCount/Fields/Rows) are always present; Error is
// only populated when StatusCode indicates failure.
type Response struct {
	ID         string          `json:"id"`
	StatusCode int             `json:"statusCode"`
	Command    string          `json:"command"`
	RowCount   int64           `json:"rowCount"`
	Fields     []responseField `json:"fields"`
	Rows       [][]*string     `json:"rows"`
	Error      string          `json:"error,omitempty"`
}

// responseField is a column descriptor, written on the wire as the 2-element
// tuple [name, oid] rather than an object.
type responseField struct {
	Name string
	OID  uint32
}

func (f responseField) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{f.Name, f.OID})
}

func (f *responseField) UnmarshalJSON(data []byte) error {
	var tuple [2]json.RawMessage
	if err := json.Unmarshal(data, &tuple); err != nil {
		return fmt.Errorf("pgproxy: decoding field tuple: %w", err)
	}
	if err := json.Unmarshal(tuple[0], &f.Name); err != nil {
		return fmt.Errorf("pgproxy: decoding field name: %w", err)
	}
	if err := json.Unmarshal(tuple[1], &f.OID); err != nil {
		return fmt.Errorf("pgproxy: decoding field oid: %w", err)
	}
	return nil
}

func successResponse(id string, result *pgpool.QueryResult) Response {
	fields := make([]responseField, 0, len(result.Fields))
	for _, f := range result.Fields {
		fields = append(fields, responseField{Name: f.Name, OID: f.OID})
	}
	rows := result.Rows
	if rows == nil {
		rows = [][]*string{}
	}
	return Response{
		ID:         id,
		StatusCode: 200,
		Command:    result.Command,
		RowCount:   result.RowCount,
		Fields:     fields,
		Rows:       rows,
	}
}

func errorResponse(id string, statusCode int, message string) Response {
	return Response{
		ID:         id,
		StatusCode: statusCode,
		Fields:     []responseField{},
		Rows:       [][]*string{},
		Error:      message,
	}
}

// HealthStatus is the body returned by an authenticated or configured
// unauthenticated health check.
type HealthStatus struct {
	Available  int     `json:"available"`
	Borrowed   int     `json:"borrowed"`
	Connecting int     `json:"connecting"`
	Total      int     `json:"total"`
	LatencyMs  float64 `json:"latency_ms"`
}
