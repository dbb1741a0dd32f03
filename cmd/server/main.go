// HireLens payments - credit purchases and resume access gating
package main

import (
	"context"
	"os"

	"github.com/hirelens/payments/internal/config"
	"github.com/hirelens/payments/internal/logging"
	"github.com/hirelens/payments/internal/server"
	"github.com/hirelens/payments/internal/traces"
)

// Build info - set by ldflags
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	// Create logger
	logger := logging.New("info", "text")

	logger.Info("starting hirelens-payments",
		"version", Version,
		"commit", Commit,
		"build_time", BuildTime,
	)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"env", cfg.Env,
		"currency", cfg.Currency,
		"view_cost", cfg.GlobalViewCost,
		"demo_mode", cfg.DemoMode,
	)

	ctx := context.Background()

	// Initialize tracing (no-op unless an OTLP endpoint is configured)
	shutdownTraces, err := traces.Init(ctx, cfg.OTLPEndpoint, logger)
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTraces(context.Background()) }()

	// Create and run server
	srv, err := server.New(cfg, server.WithLogger(logger))
	if err != nil {
		logger.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	if err := srv.Run(ctx); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
