// Package main implements the entry point for the visor server, which
// queues image analysis work, drives the vision backend and serves search
// over the results.
package main

import (
	"context"
	"fmt"
	"log"

	"github.com/phrazzld/visor/internal/config"
	"github.com/phrazzld/visor/internal/platform/logger"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// run loads configuration, wires the application and serves HTTP until a
// shutdown signal arrives.
func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	appLogger := logger.Setup(cfg.Server)
	appLogger.Info("server configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel,
		"data_dir", cfg.Queue.DataDir,
		"index_path", cfg.Index.Path,
		"model", cfg.Vision.ModelName)

	ctx := context.Background()
	app, err := newApplication(ctx, cfg, appLogger)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	return app.startHTTPServer(ctx, app.setupRouter())
}
