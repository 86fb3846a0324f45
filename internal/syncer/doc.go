// Package syncer propagates finished processing results to every store
// that serves reads: the per-folder metadata files, the vector index and
// the in-memory cache. After writing, it reads the result back from each
// store and verifies they agree.
package syncer
