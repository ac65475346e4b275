package pgpool

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestConnection_ConnectOnlyOnce(t *testing.T) {
	conn := newConnection("", "", fakeDial(newFakeDriver(), nil, nil), NewNoopLogger())

	require.NoError(t, conn.Connect(context.Background()))
	require.True(t, conn.Connected())

	err := conn.Connect(context.Background())
	require.ErrorIs(t, err, ErrAlreadyConnected)
}

func TestConnection_ConnectFailure(t *testing.T) {
	dialErr := errors.New("dial failed")
	conn := newConnection("", "", fakeDial(nil, dialErr, nil), NewNoopLogger())

	err := conn.Connect(context.Background())
	require.Error(t, err)
	var connectErr *ConnectError
	require.ErrorAs(t, err, &connectErr)
	require.ErrorIs(t, connectErr.Reason, dialErr)
	require.True(t, conn.Destroyed())
}

func TestConnection_DestroyDuringConnectAborts(t *testing.T) {
	gate := make(chan struct{})
	conn := newConnection("", "", fakeDial(newFakeDriver(), nil, gate), NewNoopLogger())

	connectDone := make(chan error, 1)
	go func() {
		connectDone <- conn.Connect(context.Background())
	}()

	// Give Connect a moment to reach the "connecting" state, then destroy
	// before the dial gate opens.
	time.Sleep(10 * time.Millisecond)
	conn.Destroy(context.Background())
	close(gate)

	err := <-connectDone
	require.Error(t, err)
	var connectErr *ConnectError
	require.ErrorAs(t, err, &connectErr)
	require.ErrorIs(t, connectErr.Reason, ErrAborted)
}

func TestConnection_DestroyIsIdempotentAndFiresOnce(t *testing.T) {
	conn := newConnection("", "", fakeDial(newFakeDriver(), nil, nil), NewNoopLogger())
	require.NoError(t, conn.Connect(context.Background()))

	var fired int
	conn.OnDestroyed(func() { fired++ })

	conn.Destroy(context.Background())
	conn.Destroy(context.Background())
	conn.Destroy(context.Background())

	require.Equal(t, 1, fired)
	require.True(t, conn.Destroyed())
}

func TestConnection_QueryNotConnected(t *testing.T) {
	conn := newConnection("", "", fakeDial(newFakeDriver(), nil, nil), NewNoopLogger())
	_, err := conn.Query(context.Background(), "SELECT 1", nil)
	require.ErrorIs(t, err, ErrNotConnected)
}

func TestConnection_QueryAfterDestroyFails(t *testing.T) {
	conn := newConnection("", "", fakeDial(newFakeDriver(), nil, nil), NewNoopLogger())
	require.NoError(t, conn.Connect(context.Background()))
	conn.Destroy(context.Background())

	_, err := conn.Query(context.Background(), "SELECT 1", nil)
	require.ErrorIs(t, err, ErrNotConnected)
}

func TestConnection_FatalQueryErrorDestroysConnection(t *testing.T) {
	drv := newFakeDriver()
	drv.queryFunc = func(sql string, params []*string) (*QueryResult, error) {
		return nil, &DriverFatalError{Message: "boom"}
	}
	conn := newConnection("", "", fakeDial(drv, nil, nil), NewNoopLogger())
	require.NoError(t, conn.Connect(context.Background()))

	_, err := conn.Query(context.Background(), "SELECT 1", nil)
	require.True(t, IsFatal(err))
	require.True(t, conn.Destroyed())
}

func TestConnection_RecoverableSQLErrorKeepsConnectionUsable(t *testing.T) {
	drv := newFakeDriver()
	calls := 0
	drv.queryFunc = func(sql string, params []*string) (*QueryResult, error) {
		calls++
		if calls == 1 {
			return nil, &SQLError{Message: "syntax error"}
		}
		return &QueryResult{Command: "SELECT", RowCount: 1}, nil
	}
	conn := newConnection("", "", fakeDial(drv, nil, nil), NewNoopLogger())
	require.NoError(t, conn.Connect(context.Background()))

	_, err := conn.Query(context.Background(), "BAD SQL", nil)
	require.Error(t, err)
	require.False(t, IsFatal(err))
	require.False(t, conn.Destroyed())

	result, err := conn.Query(context.Background(), "SELECT 1", nil)
	require.NoError(t, err)
	require.Equal(t, int64(1), result.RowCount)
}

func TestConnection_ServerVersion(t *testing.T) {
	drv := newFakeDriver()
	drv.serverVersion = "170004"
	conn := newConnection("", "", fakeDial(drv, nil, nil), NewNoopLogger())
	require.NoError(t, conn.Connect(context.Background()))
	require.Equal(t, "17.4", conn.ServerVersion())
}
