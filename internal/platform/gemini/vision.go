package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"google.golang.org/genai"

	"github.com/phrazzld/visor/internal/config"
	"github.com/phrazzld/visor/internal/domain"
	"github.com/phrazzld/visor/internal/vision"
)

// Per-step instructions sent alongside the image.
const (
	descriptionPrompt = "Describe this image in one or two sentences."
	tagsPrompt        = "List 5-10 relevant tags for this image. " +
		"Include both objects, artistic style, type of image, color, etc."
	textPrompt = "Identify if there is visible text in the image. " +
		"Respond with JSON where 'has_text' is true only if there is actual text " +
		"visible in the image, and 'text_content' contains the extracted text. " +
		"If no text is visible, set 'has_text' to false and 'text_content' to empty string."
)

// VisionClient implements vision.Backend against the Gemini API. Each step
// is a single GenerateContent call with the image inlined and the response
// constrained to the step's JSON schema.
type VisionClient struct {
	client *genai.Client
	model  string
	logger *slog.Logger
}

// NewVisionClient creates a VisionClient from the vision configuration.
func NewVisionClient(ctx context.Context, cfg config.VisionConfig, logger *slog.Logger) (*VisionClient, error) {
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("%w: gemini API key cannot be empty", vision.ErrInvalidConfig)
	}
	if cfg.ModelName == "" {
		return nil, fmt.Errorf("%w: model name cannot be empty", vision.ErrInvalidConfig)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v", vision.ErrInvalidConfig, err)
	}

	return &VisionClient{
		client: client,
		model:  cfg.ModelName,
		logger: logger.With("component", "gemini_vision"),
	}, nil
}

// RunStep performs one analysis step for the image. Gemini does not expose
// token-level progress for a non-streaming call, so the progress callback
// fires only at the start and end of the step.
func (c *VisionClient) RunStep(
	ctx context.Context,
	imagePath string,
	kind domain.StepKind,
	progress vision.ProgressFunc,
) (domain.StepResult, error) {
	data, err := os.ReadFile(imagePath)
	if err != nil {
		return domain.StepResult{}, fmt.Errorf("failed to read image %s: %w", imagePath, err)
	}
	mimeType, err := mimeTypeFor(imagePath)
	if err != nil {
		return domain.StepResult{}, err
	}
	prompt, schema, err := stepRequest(kind)
	if err != nil {
		return domain.StepResult{}, err
	}

	if progress != nil {
		progress(0)
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromBytes(data, mimeType),
			genai.NewPartFromText(prompt),
		}, genai.RoleUser),
	}
	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   schema,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return domain.StepResult{}, fmt.Errorf("%w: %v", vision.ErrBackendTimeout, err)
		}
		return domain.StepResult{}, fmt.Errorf("%w: %v", vision.ErrBackendUnavailable, err)
	}

	text := resp.Text()
	if text == "" {
		return domain.StepResult{}, fmt.Errorf("%w: empty response for step %s", vision.ErrBackendProtocol, kind)
	}

	result, err := parseStepResult(kind, text)
	if err != nil {
		return domain.StepResult{}, err
	}

	if progress != nil {
		progress(1)
	}
	c.logger.Debug("step response parsed", "image_path", imagePath, "step", string(kind))
	return result, nil
}

// stepRequest returns the prompt and response schema for a step kind.
func stepRequest(kind domain.StepKind) (string, *genai.Schema, error) {
	switch kind {
	case domain.StepKindDescription:
		return descriptionPrompt, &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"description": {Type: genai.TypeString},
			},
			Required: []string{"description"},
		}, nil
	case domain.StepKindTags:
		return tagsPrompt, &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"tags": {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
			},
			Required: []string{"tags"},
		}, nil
	case domain.StepKindText:
		return textPrompt, &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"has_text":     {Type: genai.TypeBoolean},
				"text_content": {Type: genai.TypeString},
			},
			Required: []string{"has_text", "text_content"},
		}, nil
	default:
		return "", nil, fmt.Errorf("%w: unknown step kind %q", domain.ErrInvalidStep, kind)
	}
}

// parseStepResult decodes a model response into the step's closed result
// variant. Anything that does not match the schema is a protocol error.
func parseStepResult(kind domain.StepKind, text string) (domain.StepResult, error) {
	switch kind {
	case domain.StepKindDescription:
		var payload struct {
			Description string `json:"description"`
		}
		if err := json.Unmarshal([]byte(text), &payload); err != nil {
			return domain.StepResult{}, fmt.Errorf("%w: %v", vision.ErrBackendProtocol, err)
		}
		return domain.StepResult{
			Kind:        kind,
			Description: strings.TrimSpace(payload.Description),
		}, nil

	case domain.StepKindTags:
		var payload struct {
			Tags []string `json:"tags"`
		}
		if err := json.Unmarshal([]byte(text), &payload); err != nil {
			return domain.StepResult{}, fmt.Errorf("%w: %v", vision.ErrBackendProtocol, err)
		}
		tags := make([]string, 0, len(payload.Tags))
		for _, tag := range payload.Tags {
			if trimmed := strings.TrimSpace(tag); trimmed != "" {
				tags = append(tags, trimmed)
			}
		}
		return domain.StepResult{Kind: kind, Tags: tags}, nil

	case domain.StepKindText:
		var payload struct {
			HasText     bool   `json:"has_text"`
			TextContent string `json:"text_content"`
		}
		if err := json.Unmarshal([]byte(text), &payload); err != nil {
			return domain.StepResult{}, fmt.Errorf("%w: %v", vision.ErrBackendProtocol, err)
		}
		result := domain.StepResult{Kind: kind, HasText: payload.HasText}
		if payload.HasText {
			result.Text = payload.TextContent
		}
		return result, nil

	default:
		return domain.StepResult{}, fmt.Errorf("%w: unknown step kind %q", domain.ErrInvalidStep, kind)
	}
}

// mimeTypeFor maps an image file extension to its MIME type.
func mimeTypeFor(imagePath string) (string, error) {
	switch strings.ToLower(filepath.Ext(imagePath)) {
	case ".jpg", ".jpeg":
		return "image/jpeg", nil
	case ".png":
		return "image/png", nil
	case ".webp":
		return "image/webp", nil
	default:
		return "", fmt.Errorf("%w: unsupported image format %q",
			domain.ErrInvalidInput, filepath.Ext(imagePath))
	}
}
