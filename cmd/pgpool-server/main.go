// Command pgpool-server runs the connection pool and Proxy Server as a
// single standalone binary.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rompi/pgpool/pkg/config"
	"github.com/rompi/pgpool/pkg/config/parser"
	"github.com/rompi/pgpool/pkg/config/provider"
	"github.com/rompi/pgpool/pkg/pgauth"
	"github.com/rompi/pgpool/pkg/pgpool"
	"github.com/rompi/pgpool/pkg/pgproxy"
)

// fileConfig is the shape of the optional YAML overlay for the Proxy
// Server's own settings and the HMAC token secret. Pool tunables are loaded
// separately by pgpool.LoadConfig from PGPOOL* environment variables.
type fileConfig struct {
	ListenAddr                string `config:"listen_addr"`
	UnauthenticatedHealthPath string `config:"unauthenticated_health_path"`
	TokenSecret               string `config:"token_secret"`
	RateLimitEnabled          bool   `config:"rate_limit_enabled"`
	RateLimitRPS              int    `config:"rate_limit_rps"`
	RateLimitBurst            int    `config:"rate_limit_burst"`
}

func main() {
	configPath := flag.String("config", "", "path to an optional YAML overlay file")
	connString := flag.String("conn", os.Getenv("PGPOOL_CONN_STRING"), "PostgreSQL connection string")
	flag.Parse()

	logger := pgpool.NewStdLogger(os.Stdout, pgpool.LogLevelInfo)

	if *connString == "" {
		logger.Error("missing connection string: pass -conn or set PGPOOL_CONN_STRING")
		os.Exit(1)
	}

	fc, err := loadFileConfig(*configPath)
	if err != nil {
		logger.Error("loading configuration overlay", "error", err)
		os.Exit(1)
	}
	if fc.TokenSecret == "" {
		fc.TokenSecret = os.Getenv("PGPOOL_TOKEN_SECRET")
	}
	if fc.TokenSecret == "" {
		logger.Error("missing token secret: set token_secret in the config file or PGPOOL_TOKEN_SECRET")
		os.Exit(1)
	}

	poolCfg, err := pgpool.LoadConfig(*connString)
	if err != nil {
		logger.Error("loading pool configuration", "error", err)
		os.Exit(1)
	}

	pool := pgpool.New(*poolCfg, pgpool.WithLogger(logger))
	verify := pgauth.NewVerifier(fc.TokenSecret)
	replay := pgauth.NewReplayStore()
	defer replay.Close()

	proxyCfg := pgproxy.DefaultConfig()
	applyFileOverlay(&proxyCfg, fc)

	server := pgproxy.New(proxyCfg, pool, verify, replay, pgproxy.WithLogger(logger))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := server.Start(ctx); err != nil {
		logger.Error("starting server", "error", err)
		os.Exit(1)
	}
	logger.Info("pgpool-server listening", "addr", server.Addr())

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		logger.Error("stopping server", "error", err)
		os.Exit(1)
	}
}

// loadFileConfig reads an optional YAML overlay via pkg/config, falling
// back to zero values (and therefore to pgproxy.DefaultConfig and
// environment variables) when no -config flag is given.
func loadFileConfig(path string) (fileConfig, error) {
	var fc fileConfig
	if path == "" {
		return fc, nil
	}

	cfg := config.New(
		config.WithProvider(provider.NewFileProvider(path, provider.WithParser(parser.NewYAMLParser()))),
		config.WithProvider(provider.NewEnvProvider(provider.WithPrefix("PGPOOL"))),
	)
	if err := cfg.Load(context.Background()); err != nil {
		return fc, fmt.Errorf("loading config file %s: %w", path, err)
	}
	if err := cfg.Bind(&fc); err != nil {
		return fc, fmt.Errorf("binding config file %s: %w", path, err)
	}
	return fc, nil
}

func applyFileOverlay(cfg *pgproxy.Config, fc fileConfig) {
	if fc.ListenAddr != "" {
		cfg.ListenAddr = fc.ListenAddr
	}
	if fc.UnauthenticatedHealthPath != "" {
		cfg.UnauthenticatedHealthPath = fc.UnauthenticatedHealthPath
	}
	if fc.RateLimitEnabled {
		cfg.RateLimitEnabled = true
	}
	if fc.RateLimitRPS > 0 {
		cfg.RateLimitRPS = float64(fc.RateLimitRPS)
	}
	if fc.RateLimitBurst > 0 {
		cfg.RateLimitBurst = fc.RateLimitBurst
	}
}
