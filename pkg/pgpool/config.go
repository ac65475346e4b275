package pgpool

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the tunables of the connection pool's lifecycle policy. Every
// field except ConnString can be overridden by a `PGPOOL*` environment
// variable; see LoadConfig.
type Config struct {
	// ConnString is the PostgreSQL connection string (DSN or URL) handed to
	// the driver for every connection the pool creates.
	ConnString string

	// MinimumPoolSize is the lower water mark for live connections while any
	// acquire is or may be pending.
	MinimumPoolSize int32
	// MaximumPoolSize is the hard cap on live connections.
	MaximumPoolSize int32
	// MaximumIdleConnections is the upper water mark for idle (available)
	// connections.
	MaximumIdleConnections int32

	// AcquireTimeout bounds how long Acquire waits for a connection.
	AcquireTimeout time.Duration
	// BorrowTimeout bounds how long a client may hold an acquired connection
	// before the pool forcibly destroys it.
	BorrowTimeout time.Duration
	// RetryInterval is the fixed backoff between connection creation or
	// connect attempts after a failure.
	RetryInterval time.Duration

	// ValidateOnBorrow issues a probe query before handing out a pooled
	// connection.
	ValidateOnBorrow bool
}

// DefaultConfig returns a Config with sensible lifecycle defaults for the
// given connection string. MaximumPoolSize and MaximumIdleConnections are
// derived from MinimumPoolSize.
func DefaultConfig(connString string) Config {
	cfg := Config{
		ConnString:       connString,
		MinimumPoolSize:  0,
		AcquireTimeout:   30 * time.Second,
		BorrowTimeout:    120 * time.Second,
		RetryInterval:    5 * time.Second,
		ValidateOnBorrow: true,
	}
	cfg.MaximumPoolSize = cfg.MinimumPoolSize + 20
	cfg.MaximumIdleConnections = (cfg.MinimumPoolSize + cfg.MaximumPoolSize) / 2
	return cfg
}

// LoadConfig builds a Config for connString from DefaultConfig, then applies
// any PGPOOL* environment variable overrides, then validates the result.
func LoadConfig(connString string) (*Config, error) {
	cfg := DefaultConfig(connString)
	if err := cfg.overrideFromEnv(); err != nil {
		return nil, fmt.Errorf("loading pgpool config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating pgpool config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) overrideFromEnv() error {
	if v, err := parseInt32Env("PGPOOLMINSIZE"); err != nil {
		return err
	} else if v != nil {
		c.MinimumPoolSize = *v
	}
	if v, err := parseInt32Env("PGPOOLMAXSIZE"); err != nil {
		return err
	} else if v != nil {
		c.MaximumPoolSize = *v
	}
	if v, err := parseInt32Env("PGPOOLIDLECONN"); err != nil {
		return err
	} else if v != nil {
		c.MaximumIdleConnections = *v
	}
	if v, err := parseDurationEnv("PGPOOLACQUIRETIMEOUT"); err != nil {
		return err
	} else if v != nil {
		c.AcquireTimeout = *v
	}
	if v, err := parseDurationEnv("PGPOOLBORROWTIMEOUT"); err != nil {
		return err
	} else if v != nil {
		c.BorrowTimeout = *v
	}
	if v, err := parseDurationEnv("PGPOOLRETRYINTERVAL"); err != nil {
		return err
	} else if v != nil {
		c.RetryInterval = *v
	}
	if v, err := parseBoolEnv("PGPOOLVALIDATEONBORROW"); err != nil {
		return err
	} else if v != nil {
		c.ValidateOnBorrow = *v
	}
	return nil
}

// Validate checks the pool's size and timeout invariants:
// 0 <= min <= idle <= max; max >= 1; all timeouts > 0.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ConnString) == "" {
		return fmt.Errorf("%w: connection string is required", ErrInvalidConfig)
	}
	if c.MinimumPoolSize < 0 {
		return fmt.Errorf("%w: minimum pool size cannot be negative", ErrInvalidConfig)
	}
	if c.MaximumPoolSize < 1 {
		return fmt.Errorf("%w: maximum pool size must be at least 1", ErrInvalidConfig)
	}
	if c.MinimumPoolSize > c.MaximumPoolSize {
		return fmt.Errorf("%w: minimum pool size cannot exceed maximum pool size", ErrInvalidConfig)
	}
	if c.MaximumIdleConnections < c.MinimumPoolSize || c.MaximumIdleConnections > c.MaximumPoolSize {
		return fmt.Errorf("%w: maximum idle connections must be between minimum and maximum pool size", ErrInvalidConfig)
	}
	if c.AcquireTimeout <= 0 {
		return fmt.Errorf("%w: acquire timeout must be positive", ErrInvalidConfig)
	}
	if c.BorrowTimeout <= 0 {
		return fmt.Errorf("%w: borrow timeout must be positive", ErrInvalidConfig)
	}
	if c.RetryInterval <= 0 {
		return fmt.Errorf("%w: retry interval must be positive", ErrInvalidConfig)
	}
	return nil
}

func parseInt32Env(key string) (*int32, error) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		parsed, err := strconv.ParseInt(v, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		result := int32(parsed)
		return &result, nil
	}
	return nil, nil
}

func parseDurationEnv(key string) (*time.Duration, error) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		return &parsed, nil
	}
	return nil, nil
}

func parseBoolEnv(key string) (*bool, error) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		return &parsed, nil
	}
	return nil, nil
}
