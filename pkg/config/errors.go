// Package config loads configuration from layered providers (files,
// environment variables) and binds the merged result onto a struct using
// struct tags.
package config

import "errors"

var (
	// ErrProviderFailed is returned when a configuration provider fails to load.
	ErrProviderFailed = errors.New("config: provider failed")

	// ErrBindFailed is returned when binding configuration to a struct fails.
	ErrBindFailed = errors.New("config: bind failed")
)

// BindError provides detailed information about a binding failure.
type BindError struct {
	Field   string // The field that failed to bind
	Tag     string // The struct tag being processed
	Value   any    // The value that caused the failure
	Message string // Human-readable error message
}

// Error implements the error interface.
func (e *BindError) Error() string {
	return e.Message
}

// MultiBindError contains multiple binding errors.
type MultiBindError struct {
	Errors []BindError
}

// Error implements the error interface.
func (e *MultiBindError) Error() string {
	if len(e.Errors) == 0 {
		return "config: no binding errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return "config: multiple binding errors occurred"
}

// Add appends a binding error.
func (e *MultiBindError) Add(err BindError) {
	e.Errors = append(e.Errors, err)
}

// HasErrors returns true if there are any binding errors.
func (e *MultiBindError) HasErrors() bool {
	return len(e.Errors) > 0
}
