package store

import "errors"

// Common errors returned by the store package.
var (
	// ErrImageNotFound is returned when no metadata entry exists for the
	// requested image.
	ErrImageNotFound = errors.New("image not found in metadata store")

	// ErrMetadataCorrupt marks a metadata file that could not be parsed.
	ErrMetadataCorrupt = errors.New("image metadata file is corrupt")
)
