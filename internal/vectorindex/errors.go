package vectorindex

import "errors"

// Common errors returned by the vectorindex package.
var (
	// ErrNotIndexed is returned when the requested image has no index entry.
	ErrNotIndexed = errors.New("image is not indexed")

	// ErrDimensionMismatch is returned when two embeddings cannot be
	// compared because their lengths differ, usually after an embedding
	// model change.
	ErrDimensionMismatch = errors.New("embedding dimensions do not match")
)
