// Package service composes the queue, worker, stores and scanner into the
// operations the HTTP layer exposes.
package service

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"

	"github.com/phrazzld/visor/internal/domain"
	"github.com/phrazzld/visor/internal/queue"
	"github.com/phrazzld/visor/internal/scanner"
	"github.com/phrazzld/visor/internal/store"
	"github.com/phrazzld/visor/internal/syncer"
	"github.com/phrazzld/visor/internal/vectorindex"
)

// Searcher answers similarity queries over indexed images. Satisfied by
// vectorindex.Index.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]vectorindex.SearchResult, error)
}

// Synchronizer removes an image's entries from the searchable stores when
// a scan finds it gone from disk. Satisfied by syncer.Synchronizer.
type Synchronizer interface {
	SyncDeleted(ctx context.Context, imagePath string) error
}

// EnqueueReport summarizes the outcome of enqueueing a folder.
type EnqueueReport struct {
	TotalImages      int `json:"total_images"`
	Enqueued         int `json:"enqueued"`
	SkippedProcessed int `json:"skipped_processed"`
	SkippedActive    int `json:"skipped_active"`
	Removed          int `json:"removed"`
}

// ProcessingService is the application-facing facade over the processing
// pipeline: folder discovery, queueing, worker lifecycle and search.
type ProcessingService struct {
	queue    *queue.ProcessingQueue
	worker   *queue.Worker
	store    *store.MetadataStore
	cache    *syncer.FolderCache
	searcher Searcher
	syncer   Synchronizer
	logger   *slog.Logger
}

// NewProcessingService creates a ProcessingService over the given parts.
func NewProcessingService(
	q *queue.ProcessingQueue,
	worker *queue.Worker,
	metadataStore *store.MetadataStore,
	cache *syncer.FolderCache,
	searcher Searcher,
	resultSyncer Synchronizer,
	logger *slog.Logger,
) *ProcessingService {
	return &ProcessingService{
		queue:    q,
		worker:   worker,
		store:    metadataStore,
		cache:    cache,
		searcher: searcher,
		syncer:   resultSyncer,
		logger:   logger.With("component", "processing_service"),
	}
}

// EnqueueFolder scans the folder, reconciles each directory's metadata
// file and enqueues every image that is neither fully processed nor
// already queued. Skips are counted, not errors: re-enqueueing a folder is
// the normal way to pick up new images. Images the scan no longer finds
// are removed from the vector index and cache along with their metadata
// entry, so search never surfaces a deleted file.
func (s *ProcessingService) EnqueueFolder(ctx context.Context, folder string) (EnqueueReport, error) {
	images, err := scanner.Scan(folder)
	if err != nil {
		return EnqueueReport{}, err
	}
	report := EnqueueReport{TotalImages: len(images)}

	metaByDir := make(map[string]map[string]domain.ImageMetadata)
	for dir, names := range scanner.GroupByFolder(images) {
		metadata, removed, err := s.store.LoadOrCreate(dir, names)
		if err != nil {
			return report, err
		}
		metaByDir[dir] = metadata
		for name, meta := range metadata {
			s.cache.Put(filepath.Join(dir, name), meta)
		}
		for _, name := range removed {
			imagePath := filepath.Join(dir, name)
			report.Removed++
			if err := s.syncer.SyncDeleted(ctx, imagePath); err != nil {
				s.logger.Warn("failed to remove deleted image from stores",
					"image_path", imagePath, "error", err)
			}
		}
	}

	for _, imagePath := range images {
		dir, name := filepath.Dir(imagePath), filepath.Base(imagePath)
		if metaByDir[dir][name].IsProcessed {
			report.SkippedProcessed++
			continue
		}
		if _, err := s.queue.Enqueue(imagePath); err != nil {
			if errors.Is(err, queue.ErrDuplicateTask) {
				report.SkippedActive++
				continue
			}
			return report, err
		}
		report.Enqueued++
	}

	s.logger.Info("folder enqueued",
		"folder", folder,
		"total", report.TotalImages,
		"enqueued", report.Enqueued,
		"skipped_processed", report.SkippedProcessed,
		"skipped_active", report.SkippedActive,
		"removed", report.Removed)
	return report, nil
}

// StartProcessing launches the worker loop. Returns
// queue.ErrAlreadyProcessing when it is already running.
func (s *ProcessingService) StartProcessing(ctx context.Context) error {
	return s.worker.Start(ctx)
}

// StopProcessing requests a cooperative stop and waits for the worker to
// park at its next step boundary.
func (s *ProcessingService) StopProcessing(ctx context.Context) error {
	return s.worker.Stop(ctx)
}

// ClearQueue empties the queue and its durable snapshot. Returns
// queue.ErrQueueBusy while a task is running.
func (s *ProcessingService) ClearQueue() error {
	return s.queue.Clear()
}

// QueueStatus returns the queue's counters and in-flight task.
func (s *ProcessingService) QueueStatus() queue.Status {
	return s.queue.Status()
}

// ListTasks returns every known task: pending, in-flight and history.
func (s *ProcessingService) ListTasks() []queue.TaskInfo {
	return s.queue.ListTasks()
}

// Search returns image paths ranked by similarity to the query.
func (s *ProcessingService) Search(ctx context.Context, query string, limit int) ([]vectorindex.SearchResult, error) {
	return s.searcher.Search(ctx, query, limit)
}
