package gemini

import (
	"context"
	"fmt"
	"log/slog"

	"google.golang.org/genai"

	"github.com/phrazzld/visor/internal/config"
	"github.com/phrazzld/visor/internal/vision"
)

// TextEmbedder implements vectorindex.Embedder using Gemini's embedding
// models.
type TextEmbedder struct {
	client *genai.Client
	model  string
	logger *slog.Logger
}

// NewTextEmbedder creates a TextEmbedder from the vision configuration.
func NewTextEmbedder(ctx context.Context, cfg config.VisionConfig, logger *slog.Logger) (*TextEmbedder, error) {
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("%w: gemini API key cannot be empty", vision.ErrInvalidConfig)
	}
	if cfg.EmbeddingModel == "" {
		return nil, fmt.Errorf("%w: embedding model cannot be empty", vision.ErrInvalidConfig)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v", vision.ErrInvalidConfig, err)
	}

	return &TextEmbedder{
		client: client,
		model:  cfg.EmbeddingModel,
		logger: logger.With("component", "gemini_embedder"),
	}, nil
}

// Embed returns the embedding vector for the given text.
func (e *TextEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	contents := []*genai.Content{genai.NewContentFromText(text, genai.RoleUser)}
	resp, err := e.client.Models.EmbedContent(ctx, e.model, contents, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: embedding request failed: %v", vision.ErrBackendUnavailable, err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
		return nil, fmt.Errorf("%w: embedding response is empty", vision.ErrBackendProtocol)
	}

	vec := resp.Embeddings[0].Values
	e.logger.Debug("text embedded", "text_len", len(text), "dimensions", len(vec))
	return vec, nil
}
