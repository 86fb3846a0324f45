// Package vectorindex maintains a searchable embedding index of processed
// images. Each entry pairs an image path with the embedding of its combined
// metadata text; search ranks images by cosine similarity to the query's
// embedding. The index is backed by an embedded SQLite database so it
// survives restarts without an external service.
package vectorindex
