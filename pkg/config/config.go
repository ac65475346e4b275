package config

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Config loads configuration from one or more Providers and binds it to a
// struct.
type Config interface {
	// Load loads configuration from all providers.
	Load(ctx context.Context) error

	// Bind binds configuration to a struct using struct tags.
	Bind(v any) error
}

// Provider provides configuration from a source.
type Provider interface {
	// Name returns the provider name for identification.
	Name() string

	// Load loads configuration from the source.
	Load(ctx context.Context) (map[string]any, error)

	// Watch watches for changes and calls the callback when changes occur.
	// Returns nil if watching is not supported.
	Watch(ctx context.Context, callback func()) error
}

// Parser parses configuration data from bytes.
type Parser interface {
	// Parse parses data into a configuration map.
	Parse(data []byte) (map[string]any, error)

	// Extensions returns the file extensions this parser supports.
	Extensions() []string
}

// keyDelimiter separates nested keys when a provider returns nested maps
// (e.g. a YAML file with a "rate_limit: {enabled: true}" block).
const keyDelimiter = "."

// configImpl is the default implementation of Config.
type configImpl struct {
	mu        sync.RWMutex
	providers []Provider
	values    map[string]any
}

// New creates a new Config instance with the provided options.
func New(opts ...Option) Config {
	c := &configImpl{
		providers: []Provider{},
		values:    make(map[string]any),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Load loads configuration from all providers in order.
// Later providers override earlier ones.
func (c *configImpl) Load(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.values = make(map[string]any)

	for _, provider := range c.providers {
		values, err := provider.Load(ctx)
		if err != nil {
			return fmt.Errorf("%w: provider %s: %v", ErrProviderFailed, provider.Name(), err)
		}
		c.mergeValues(values, "")
	}

	return nil
}

// mergeValues merges nested values into the flat key-value store.
func (c *configImpl) mergeValues(values map[string]any, prefix string) {
	for k, v := range values {
		key := k
		if prefix != "" {
			key = prefix + keyDelimiter + k
		}

		if nested, ok := v.(map[string]any); ok {
			c.mergeValues(nested, key)
		} else {
			c.values[strings.ToLower(key)] = v
		}
	}
}

// Bind binds configuration to a struct.
func (c *configImpl) Bind(v any) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	binder := newBinder(c.values, keyDelimiter)
	if err := binder.Bind(v); err != nil {
		return fmt.Errorf("%w: %v", ErrBindFailed, err)
	}

	return nil
}

// parseBool parses a string as a boolean value.
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes" || s == "on"
}
