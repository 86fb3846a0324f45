package vectorindex

import "context"

// Embedder turns text into an embedding vector. Implemented by the Gemini
// platform adapter; tests use a deterministic fake.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
