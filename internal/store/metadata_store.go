package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/phrazzld/visor/internal/domain"
)

// metadataFileName is the per-folder metadata file kept beside the images.
const metadataFileName = "image_metadata.json"

// MetadataStore reads and writes per-folder image metadata files. Entries
// are keyed by file name within the folder. Writes are atomic (temp file
// plus rename) and serialized per folder, so concurrent updates to
// different folders never contend.
type MetadataStore struct {
	mu     sync.Mutex
	locks  map[string]*sync.Mutex
	logger *slog.Logger
}

// NewMetadataStore creates a metadata store.
func NewMetadataStore(logger *slog.Logger) *MetadataStore {
	return &MetadataStore{
		locks:  make(map[string]*sync.Mutex),
		logger: logger.With("component", "metadata_store"),
	}
}

// Load reads the folder's metadata file. A missing file yields an empty map.
func (s *MetadataStore) Load(folder string) (map[string]domain.ImageMetadata, error) {
	lock := s.folderLock(folder)
	lock.Lock()
	defer lock.Unlock()
	return s.readLocked(folder)
}

// LoadOrCreate reconciles the folder's metadata file with the given set of
// image file names: new images get an empty entry, entries for images that
// no longer exist are dropped, and IsProcessed is recomputed from content.
// The reconciled file is written back before returning. The second return
// value lists the dropped entry names, sorted, so callers can propagate
// the removals to the other stores.
func (s *MetadataStore) LoadOrCreate(folder string, imageNames []string) (map[string]domain.ImageMetadata, []string, error) {
	lock := s.folderLock(folder)
	lock.Lock()
	defer lock.Unlock()

	metadata, err := s.readLocked(folder)
	if err != nil {
		return nil, nil, err
	}

	current := make(map[string]struct{}, len(imageNames))
	for _, name := range imageNames {
		current[name] = struct{}{}
		meta := metadata[name]
		meta.IsProcessed = meta.HasContent()
		metadata[name] = meta
	}
	var removed []string
	for name := range metadata {
		if _, ok := current[name]; !ok {
			s.logger.Debug("removing stale metadata entry", "folder", folder, "image", name)
			delete(metadata, name)
			removed = append(removed, name)
		}
	}
	sort.Strings(removed)

	if err := s.writeLocked(folder, metadata); err != nil {
		return nil, nil, err
	}
	s.logger.Info("folder metadata reconciled",
		"folder", folder, "images", len(metadata), "removed", len(removed))
	return metadata, removed, nil
}

// Get returns the metadata entry for the image. The image path's directory
// selects the metadata file and its base name selects the entry.
func (s *MetadataStore) Get(imagePath string) (domain.ImageMetadata, error) {
	folder, name := splitImagePath(imagePath)
	lock := s.folderLock(folder)
	lock.Lock()
	defer lock.Unlock()

	metadata, err := s.readLocked(folder)
	if err != nil {
		return domain.ImageMetadata{}, err
	}
	meta, ok := metadata[name]
	if !ok {
		return domain.ImageMetadata{}, fmt.Errorf("%w: %s", ErrImageNotFound, imagePath)
	}
	return meta, nil
}

// Save upserts the metadata entry for the image and writes the folder's
// file atomically.
func (s *MetadataStore) Save(imagePath string, meta domain.ImageMetadata) error {
	folder, name := splitImagePath(imagePath)
	lock := s.folderLock(folder)
	lock.Lock()
	defer lock.Unlock()

	metadata, err := s.readLocked(folder)
	if err != nil {
		return err
	}
	metadata[name] = meta
	if err := s.writeLocked(folder, metadata); err != nil {
		return err
	}
	s.logger.Debug("image metadata saved", "folder", folder, "image", name)
	return nil
}

// Delete removes the metadata entry for the image. Deleting an absent
// entry is not an error.
func (s *MetadataStore) Delete(imagePath string) error {
	folder, name := splitImagePath(imagePath)
	lock := s.folderLock(folder)
	lock.Lock()
	defer lock.Unlock()

	metadata, err := s.readLocked(folder)
	if err != nil {
		return err
	}
	if _, ok := metadata[name]; !ok {
		return nil
	}
	delete(metadata, name)
	if err := s.writeLocked(folder, metadata); err != nil {
		return err
	}
	s.logger.Debug("image metadata deleted", "folder", folder, "image", name)
	return nil
}

// UnprocessedNames returns the names in the metadata map whose entries are
// not yet fully processed, sorted for deterministic enqueue order.
func UnprocessedNames(metadata map[string]domain.ImageMetadata) []string {
	names := make([]string, 0, len(metadata))
	for name, meta := range metadata {
		if !meta.IsProcessed {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// folderLock returns the mutex serializing access to one folder's file.
func (s *MetadataStore) folderLock(folder string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.locks[folder]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[folder] = lock
	}
	return lock
}

// readLocked loads the folder's metadata file. Must be called with the
// folder lock held.
func (s *MetadataStore) readLocked(folder string) (map[string]domain.ImageMetadata, error) {
	path := filepath.Join(folder, metadataFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return make(map[string]domain.ImageMetadata), nil
		}
		return nil, fmt.Errorf("failed to read metadata file %s: %w", path, err)
	}

	var metadata map[string]domain.ImageMetadata
	if err := json.Unmarshal(data, &metadata); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMetadataCorrupt, path, err)
	}
	if metadata == nil {
		metadata = make(map[string]domain.ImageMetadata)
	}
	return metadata, nil
}

// writeLocked writes the folder's metadata file atomically. Must be called
// with the folder lock held.
func (s *MetadataStore) writeLocked(folder string, metadata map[string]domain.ImageMetadata) error {
	path := filepath.Join(folder, metadataFileName)
	data, err := json.MarshalIndent(metadata, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write temporary metadata file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace metadata file: %w", err)
	}
	return nil
}

// splitImagePath splits an image path into its folder and entry key.
func splitImagePath(imagePath string) (folder, name string) {
	return filepath.Dir(imagePath), filepath.Base(imagePath)
}
