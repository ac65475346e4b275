package pgproxy

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rompi/pgpool/pkg/pgauth"
	"github.com/rompi/pgpool/pkg/pgpool"
)

type testServer struct {
	*Server
	verify *pgauth.Verifier
}

func newTestServer(t *testing.T, mutate func(*Config), dial pgpool.Dialer) *testServer {
	t.Helper()

	poolCfg := pgpool.DefaultConfig("postgres://test")
	poolCfg.AcquireTimeout = 2 * time.Second
	pool := pgpool.New(poolCfg, pgpool.WithDialer(dial))

	cfg := DefaultConfig()
	cfg.ListenAddr = "127.0.0.1:0"
	cfg.RateLimitEnabled = false
	cfg.LogRequests = false
	if mutate != nil {
		mutate(&cfg)
	}

	verify := pgauth.NewVerifier("test-secret")
	replay := pgauth.NewReplayStore()
	t.Cleanup(replay.Close)

	srv := New(cfg, pool, verify, replay)
	require.NoError(t, srv.Start(context.Background()))
	t.Cleanup(func() { _ = srv.Stop(context.Background()) })

	return &testServer{Server: srv, verify: verify}
}

func (ts *testServer) validToken(t *testing.T) string {
	t.Helper()
	token, err := ts.verify.Generate()
	require.NoError(t, err)
	return token
}

func (ts *testServer) url(path string) string {
	return "http://" + ts.Addr() + path
}

func TestServer_MissingAuthReturns401(t *testing.T) {
	ts := newTestServer(t, nil, fakeDial())

	resp, err := http.Get(ts.url("/"))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestServer_InvalidAuthReturns403(t *testing.T) {
	ts := newTestServer(t, nil, fakeDial())

	resp, err := http.Get(ts.url("/?auth=not-a-real-token"))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestServer_WrongPathReturns404(t *testing.T) {
	ts := newTestServer(t, nil, fakeDial())

	resp, err := http.Get(ts.url("/nope?auth=" + ts.validToken(t)))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_WrongMethodReturns405(t *testing.T) {
	ts := newTestServer(t, nil, fakeDial())

	req, err := http.NewRequest(http.MethodPut, ts.url("/?auth="+ts.validToken(t)), nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestServer_NonJSONContentTypeReturns415(t *testing.T) {
	ts := newTestServer(t, nil, fakeDial())

	resp, err := http.Post(ts.url("/?auth="+ts.validToken(t)), "text/plain", bytes.NewBufferString("hi"))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnsupportedMediaType, resp.StatusCode)
}

func TestServer_HealthCheckSucceeds(t *testing.T) {
	ts := newTestServer(t, nil, fakeDial())

	resp, err := http.Get(ts.url("/?auth=" + ts.validToken(t)))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var status HealthStatus
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	require.GreaterOrEqual(t, status.Total, 0)
}

func TestServer_UnauthenticatedHealthPath(t *testing.T) {
	ts := newTestServer(t, func(c *Config) { c.UnauthenticatedHealthPath = "/healthz" }, fakeDial())

	resp, err := http.Get(ts.url("/healthz"))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_QueryExecutesSuccessfully(t *testing.T) {
	ts := newTestServer(t, nil, fakeDialWithQuery(func(sql string, params []*string) (*pgpool.QueryResult, error) {
		if sql == "SELECT now()" {
			return &pgpool.QueryResult{Command: "SELECT", RowCount: 1}, nil
		}
		return &pgpool.QueryResult{
			Command:  "SELECT",
			RowCount: 1,
			Fields:   []pgpool.Field{{Name: "?column?", OID: 23}},
			Rows:     [][]*string{{strPtr("1")}},
		}, nil
	}))

	body, err := json.Marshal(Request{ID: "req-1", Query: "SELECT 1"})
	require.NoError(t, err)

	resp, err := http.Post(ts.url("/?auth="+ts.validToken(t)), "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Equal(t, "req-1", out.ID)
	require.Equal(t, 200, out.StatusCode)
	require.Equal(t, int64(1), out.RowCount)
}

func TestServer_ReplayedTokenReturns403(t *testing.T) {
	ts := newTestServer(t, nil, fakeDial())
	token := ts.validToken(t)

	first, err := http.Get(ts.url("/?auth=" + token))
	require.NoError(t, err)
	first.Body.Close()
	require.Equal(t, http.StatusOK, first.StatusCode)

	second, err := http.Get(ts.url("/?auth=" + token))
	require.NoError(t, err)
	defer second.Body.Close()
	require.Equal(t, http.StatusForbidden, second.StatusCode)
}

func TestServer_MalformedJSONReturns400(t *testing.T) {
	ts := newTestServer(t, nil, fakeDial())

	resp, err := http.Post(ts.url("/?auth="+ts.validToken(t)), "application/json", bytes.NewBufferString("{not json"))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out Response
	require.NoError(t, json.Unmarshal(data, &out))
	require.Equal(t, "Error parsing JSON", out.Error)
}

func strPtr(s string) *string { return &s }
