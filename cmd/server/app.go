package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/visor/internal/config"
	"github.com/phrazzld/visor/internal/platform/gemini"
	"github.com/phrazzld/visor/internal/queue"
	"github.com/phrazzld/visor/internal/service"
	"github.com/phrazzld/visor/internal/store"
	"github.com/phrazzld/visor/internal/syncer"
	"github.com/phrazzld/visor/internal/vectorindex"
)

// shutdownGrace bounds how long cleanup waits for the worker to park at a
// step boundary before giving up.
const shutdownGrace = 30 * time.Second

// application holds the wired dependency graph for one server process.
type application struct {
	config *config.Config
	logger *slog.Logger

	queue   *queue.ProcessingQueue
	worker  *queue.Worker
	index   *vectorindex.Index
	service *service.ProcessingService
}

// newApplication creates the application with all dependencies
// initialized: persisted queue state is rehydrated, the vision backend and
// embedder are connected and the worker is ready to start on request.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*application, error) {
	snapshots, err := queue.NewSnapshotStore(cfg.Queue.DataDir, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create snapshot store: %w", err)
	}
	processingQueue := queue.NewProcessingQueue(snapshots, cfg.Queue.HistoryLimit, logger)

	visionClient, err := gemini.NewVisionClient(ctx, cfg.Vision, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create vision client: %w", err)
	}
	embedder, err := gemini.NewTextEmbedder(ctx, cfg.Vision, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}

	index, err := vectorindex.Open(cfg.Index.Path, embedder, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open vector index: %w", err)
	}

	metadataStore := store.NewMetadataStore(logger)
	cache := syncer.NewFolderCache()
	resultSyncer := syncer.NewSynchronizer(metadataStore, index, cache, logger)

	stepTimeout := time.Duration(cfg.Queue.StepTimeoutSeconds) * time.Second
	executor := queue.NewStepExecutor(visionClient, stepTimeout, logger)
	worker := queue.NewWorker(processingQueue, executor, resultSyncer, logger)

	return &application{
		config:  cfg,
		logger:  logger,
		queue:   processingQueue,
		worker:  worker,
		index:   index,
		service: service.NewProcessingService(processingQueue, worker, metadataStore, cache, index, resultSyncer, logger),
	}, nil
}

// cleanup stops the worker at its next step boundary and releases held
// resources. Called after the HTTP server has drained.
func (app *application) cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	if err := app.worker.Stop(ctx); err != nil {
		app.logger.Error("worker did not stop cleanly", "error", err)
	}
	if err := app.index.Close(); err != nil {
		app.logger.Error("failed to close vector index", "error", err)
	}
}
