package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBinder_Bind_BasicTypes(t *testing.T) {
	type target struct {
		Host    string `config:"host"`
		Port    int    `config:"port"`
		Enabled bool   `config:"enabled"`
	}

	values := map[string]any{
		"host":    "localhost",
		"port":    8080,
		"enabled": true,
	}

	var cfg target
	require.NoError(t, newBinder(values, ".").Bind(&cfg))

	require.Equal(t, "localhost", cfg.Host)
	require.Equal(t, 8080, cfg.Port)
	require.True(t, cfg.Enabled)
}

// Environment variables always arrive as strings; the binder must coerce
// them to the field's actual type.
func TestBinder_Bind_StringValuesCoerceToFieldType(t *testing.T) {
	type target struct {
		Port    int  `config:"port"`
		Enabled bool `config:"enabled"`
	}

	values := map[string]any{
		"port":    "9999",
		"enabled": "true",
	}

	var cfg target
	require.NoError(t, newBinder(values, ".").Bind(&cfg))

	require.Equal(t, 9999, cfg.Port)
	require.True(t, cfg.Enabled)
}

func TestBinder_Bind_UntaggedFieldUsesLowercasedName(t *testing.T) {
	type target struct {
		ListenAddr string
	}

	values := map[string]any{"listenaddr": ":5432"}

	var cfg target
	require.NoError(t, newBinder(values, ".").Bind(&cfg))

	require.Equal(t, ":5432", cfg.ListenAddr)
}

func TestBinder_Bind_SkipsExplicitlyIgnoredField(t *testing.T) {
	type target struct {
		Secret string `config:"-"`
	}

	values := map[string]any{"secret": "leaked"}

	var cfg target
	require.NoError(t, newBinder(values, ".").Bind(&cfg))

	require.Empty(t, cfg.Secret)
}

func TestBinder_Bind_AppliesDefaultWhenValueMissing(t *testing.T) {
	type target struct {
		RateLimitRPS int `config:"rate_limit_rps" default:"100"`
	}

	var cfg target
	require.NoError(t, newBinder(map[string]any{}, ".").Bind(&cfg))

	require.Equal(t, 100, cfg.RateLimitRPS)
}

func TestBinder_Bind_RequiredFieldMissingReturnsError(t *testing.T) {
	type target struct {
		TokenSecret string `config:"token_secret" required:"true"`
	}

	var cfg target
	err := newBinder(map[string]any{}, ".").Bind(&cfg)

	require.Error(t, err)
	var multi *MultiBindError
	require.ErrorAs(t, err, &multi)
	require.True(t, multi.HasErrors())
}

func TestBinder_Bind_RejectsNonPointer(t *testing.T) {
	type target struct{ X string }

	err := newBinder(map[string]any{}, ".").Bind(target{})
	require.Error(t, err)
}

func TestBinder_Bind_RejectsPointerToNonStruct(t *testing.T) {
	var x string
	err := newBinder(map[string]any{}, ".").Bind(&x)
	require.Error(t, err)
}
