// Package scanner discovers image files in folders on the local filesystem.
package scanner

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
)

// supportedExtensions are the image formats the vision backend accepts.
var supportedExtensions = map[string]struct{}{
	".png":  {},
	".jpg":  {},
	".jpeg": {},
	".webp": {},
}

// IsImage reports whether the path has a supported image extension.
func IsImage(path string) bool {
	_, ok := supportedExtensions[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Scan walks the folder recursively and returns the absolute paths of all
// image files, sorted for deterministic enqueue order. Hidden files and
// directories (dot-prefixed, including macOS "._" resource forks) are
// skipped.
func Scan(folder string) ([]string, error) {
	var images []string
	err := filepath.WalkDir(folder, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if strings.HasPrefix(entry.Name(), ".") {
			if entry.IsDir() && path != folder {
				return filepath.SkipDir
			}
			return nil
		}
		if !entry.IsDir() && IsImage(path) {
			images = append(images, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan folder %s: %w", folder, err)
	}
	sort.Strings(images)
	return images, nil
}

// GroupByFolder buckets image paths by their containing directory, keeping
// each bucket's base names sorted. Used to reconcile one metadata file per
// folder.
func GroupByFolder(images []string) map[string][]string {
	groups := make(map[string][]string)
	for _, path := range images {
		folder := filepath.Dir(path)
		groups[folder] = append(groups[folder], filepath.Base(path))
	}
	for _, names := range groups {
		sort.Strings(names)
	}
	return groups
}
