package syncer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/phrazzld/visor/internal/domain"
)

// MetadataStore is the durable per-folder metadata storage the syncer
// writes to first. Satisfied by store.MetadataStore.
type MetadataStore interface {
	Save(imagePath string, meta domain.ImageMetadata) error
	Get(imagePath string) (domain.ImageMetadata, error)
	Delete(imagePath string) error
}

// VectorIndex is the searchable store the syncer writes to second.
// Satisfied by vectorindex.Index.
type VectorIndex interface {
	Upsert(ctx context.Context, imagePath string, meta domain.ImageMetadata) error
	Delete(ctx context.Context, imagePath string) error
	Get(ctx context.Context, imagePath string) (domain.ImageMetadata, error)
}

// Synchronizer fans writes out to the metadata store, the vector index and
// the in-memory cache in a fixed order, then verifies all three agree. The
// metadata file is written first because it is the source of truth the
// other stores are rebuilt from.
type Synchronizer struct {
	store  MetadataStore
	index  VectorIndex
	cache  *FolderCache
	logger *slog.Logger
}

// NewSynchronizer creates a Synchronizer over the three stores.
func NewSynchronizer(store MetadataStore, index VectorIndex, cache *FolderCache, logger *slog.Logger) *Synchronizer {
	return &Synchronizer{
		store:  store,
		index:  index,
		cache:  cache,
		logger: logger.With("component", "synchronizer"),
	}
}

// SyncCompleted writes the finished result everywhere and verifies the
// stores agree by reading each one back. A write failure aborts the
// remaining writes; a verification mismatch returns ErrConsistency. Either
// way the metadata file keeps whatever was written.
func (s *Synchronizer) SyncCompleted(ctx context.Context, imagePath string, result domain.ImageMetadata) error {
	if err := s.store.Save(imagePath, result); err != nil {
		return fmt.Errorf("failed to save metadata for %s: %w", imagePath, err)
	}
	if err := s.index.Upsert(ctx, imagePath, result); err != nil {
		return fmt.Errorf("failed to index %s: %w", imagePath, err)
	}
	s.cache.Put(imagePath, result)

	if err := s.verify(ctx, imagePath, result); err != nil {
		return err
	}
	s.logger.Info("result synchronized", "image_path", imagePath)
	return nil
}

// SyncDeleted removes the image from every store, in the same order as
// writes. Absent entries are not an error.
func (s *Synchronizer) SyncDeleted(ctx context.Context, imagePath string) error {
	if err := s.store.Delete(imagePath); err != nil {
		return fmt.Errorf("failed to delete metadata for %s: %w", imagePath, err)
	}
	if err := s.index.Delete(ctx, imagePath); err != nil {
		return fmt.Errorf("failed to delete index entry for %s: %w", imagePath, err)
	}
	s.cache.Delete(imagePath)
	s.logger.Info("image removed from all stores", "image_path", imagePath)
	return nil
}

// verify reads the image back from each store and compares against the
// expected result.
func (s *Synchronizer) verify(ctx context.Context, imagePath string, expected domain.ImageMetadata) error {
	stored, err := s.store.Get(imagePath)
	if err != nil {
		return fmt.Errorf("%w: metadata store read-back failed: %v", ErrConsistency, err)
	}
	if !stored.Equal(expected) {
		return fmt.Errorf("%w: metadata store diverged for %s", ErrConsistency, imagePath)
	}

	indexed, err := s.index.Get(ctx, imagePath)
	if err != nil {
		return fmt.Errorf("%w: vector index read-back failed: %v", ErrConsistency, err)
	}
	if !indexed.Equal(expected) {
		return fmt.Errorf("%w: vector index diverged for %s", ErrConsistency, imagePath)
	}

	cached, ok := s.cache.Get(imagePath)
	if !ok || !cached.Equal(expected) {
		return fmt.Errorf("%w: cache diverged for %s", ErrConsistency, imagePath)
	}
	return nil
}
