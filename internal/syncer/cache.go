package syncer

import (
	"sync"

	"github.com/phrazzld/visor/internal/domain"
)

// FolderCache is an in-memory view of image metadata keyed by image path.
// It serves reads without touching disk and is rebuilt from the metadata
// files as folders are scanned. Safe for concurrent use.
type FolderCache struct {
	mu      sync.RWMutex
	entries map[string]domain.ImageMetadata
}

// NewFolderCache creates an empty cache.
func NewFolderCache() *FolderCache {
	return &FolderCache{entries: make(map[string]domain.ImageMetadata)}
}

// Put stores the metadata for the image path.
func (c *FolderCache) Put(imagePath string, meta domain.ImageMetadata) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[imagePath] = meta
}

// Get returns the cached metadata for the image path.
func (c *FolderCache) Get(imagePath string) (domain.ImageMetadata, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	meta, ok := c.entries[imagePath]
	return meta, ok
}

// Delete removes the entry for the image path.
func (c *FolderCache) Delete(imagePath string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, imagePath)
}

// Len returns the number of cached entries.
func (c *FolderCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
