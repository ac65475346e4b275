package config

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBindError_Error(t *testing.T) {
	err := &BindError{Field: "Host", Tag: "required", Message: "required field missing"}
	require.Equal(t, "required field missing", err.Error())
}

func TestMultiBindError_Error(t *testing.T) {
	tests := []struct {
		name   string
		errors []BindError
		want   string
	}{
		{name: "no errors", errors: nil, want: "config: no binding errors"},
		{name: "single error", errors: []BindError{{Field: "Host", Message: "required field missing"}}, want: "required field missing"},
		{
			name: "multiple errors",
			errors: []BindError{
				{Field: "Host", Message: "required field missing"},
				{Field: "Port", Message: "invalid type"},
			},
			want: "config: multiple binding errors occurred",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := &MultiBindError{Errors: tt.errors}
			require.Equal(t, tt.want, err.Error())
		})
	}
}

func TestMultiBindError_AddAndHasErrors(t *testing.T) {
	err := &MultiBindError{}
	require.False(t, err.HasErrors())

	err.Add(BindError{Field: "Host", Message: "test"})

	require.True(t, err.HasErrors())
	require.Len(t, err.Errors, 1)
	require.Equal(t, "Host", err.Errors[0].Field)
}

func TestSentinelErrors_SupportErrorsIs(t *testing.T) {
	require.True(t, errors.Is(ErrProviderFailed, ErrProviderFailed))
	require.True(t, errors.Is(ErrBindFailed, ErrBindFailed))
}
