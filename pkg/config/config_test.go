package config

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

// mockProvider is a test provider that returns predefined values.
type mockProvider struct {
	name   string
	values map[string]any
	err    error
}

func (m *mockProvider) Name() string {
	return m.name
}

func (m *mockProvider) Load(_ context.Context) (map[string]any, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.values, nil
}

func (m *mockProvider) Watch(_ context.Context, _ func()) error {
	return nil
}

func TestNew_NoOptions(t *testing.T) {
	cfg := New()
	require.NotNil(t, cfg)
}

func TestConfig_Load_MergesProvidersInOrder(t *testing.T) {
	cfg := New(
		WithProvider(&mockProvider{name: "base", values: map[string]any{"listen_addr": ":5432", "rate_limit_rps": 10}}),
		WithProvider(&mockProvider{name: "overlay", values: map[string]any{"listen_addr": ":6543"}}),
	)

	require.NoError(t, cfg.Load(context.Background()))

	impl := cfg.(*configImpl)
	require.Equal(t, ":6543", impl.values["listen_addr"])
	require.Equal(t, 10, impl.values["rate_limit_rps"])
}

func TestConfig_Load_MergesNestedMaps(t *testing.T) {
	cfg := New(WithProvider(&mockProvider{
		name: "file",
		values: map[string]any{
			"rate_limit": map[string]any{"enabled": true, "rps": 5},
		},
	}))

	require.NoError(t, cfg.Load(context.Background()))

	impl := cfg.(*configImpl)
	require.Equal(t, true, impl.values["rate_limit.enabled"])
	require.Equal(t, 5, impl.values["rate_limit.rps"])
}

func TestConfig_Load_PropagatesProviderError(t *testing.T) {
	cfg := New(WithProvider(&mockProvider{name: "broken", err: errors.New("boom")}))

	err := cfg.Load(context.Background())
	require.ErrorIs(t, err, ErrProviderFailed)
}

func TestConfig_Bind_FlatStructFromFileAndEnvOverlay(t *testing.T) {
	cfg := New(
		WithProvider(&mockProvider{name: "file", values: map[string]any{
			"listen_addr":        ":5432",
			"rate_limit_enabled": true,
			"rate_limit_rps":     20,
		}}),
		WithProvider(&mockProvider{name: "env", values: map[string]any{
			"listen_addr": ":9999",
		}}),
	)
	require.NoError(t, cfg.Load(context.Background()))

	var fc struct {
		ListenAddr       string `config:"listen_addr"`
		RateLimitEnabled bool   `config:"rate_limit_enabled"`
		RateLimitRPS     int    `config:"rate_limit_rps"`
	}
	require.NoError(t, cfg.Bind(&fc))

	require.Equal(t, ":9999", fc.ListenAddr)
	require.True(t, fc.RateLimitEnabled)
	require.Equal(t, 20, fc.RateLimitRPS)
}

func TestConfig_Bind_RequiresPointerToStruct(t *testing.T) {
	cfg := New()
	require.NoError(t, cfg.Load(context.Background()))

	var notAPointer struct{ X string }
	err := cfg.Bind(notAPointer)
	require.ErrorIs(t, err, ErrBindFailed)
}
