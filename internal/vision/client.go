// Package vision provides a thin wrapper around the Google Gen AI SDK for
// optical text and label detection on scan images (Gemini API).
package vision

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/strainlens/hub/internal/models"
)

var (
	// ErrEmptyImageRef is returned when Analyze is called without an image reference.
	ErrEmptyImageRef = errors.New("vision: image reference is empty")
	// ErrNoCandidates is returned when the API response contains no candidates.
	ErrNoCandidates = errors.New("vision: no candidates in response")
)

const defaultModel = "gemini-2.0-flash"

// analyzePrompt asks the model for the exact JSON shape VisionResult expects.
// Empty text and absent insights are valid outputs, not errors.
const analyzePrompt = `Read all visible text on this cannabis product photo and classify it.
Respond with JSON: {"text": "<all OCR text>", "packaging": {"strain_name": "...",
"brand": "...", "batch_id": "...", "thc_percent": 0, "cbd_percent": 0, "confidence": 0}
or null if this is raw plant material, "label": {"strain_name": "...",
"categories": ["packaged"|"vape"|"flower"|...], "packaged": true|false} or null}.
Omit fields you cannot read. Do not guess strain names that are not printed.`

// Client calls the Gemini API for OCR text and label detection.
type Client struct {
	client *genai.Client
	model  string
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithModel sets the vision model name. Empty uses the default.
func WithModel(model string) ClientOption {
	return func(c *Client) {
		c.model = model
	}
}

// NewClient creates a Gemini vision client.
func NewClient(ctx context.Context, apiKey string, opts ...ClientOption) (*Client, error) {
	genaiClient, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("vision client: %w", err)
	}

	client := &Client{
		client: genaiClient,
		model:  defaultModel,
	}
	for _, opt := range opts {
		opt(client)
	}

	return client, nil
}

// Analyze returns OCR text and structured packaging/label insights for the
// image. Empty text is not an error; insight fields are untrusted and may be
// partial.
func (c *Client) Analyze(ctx context.Context, imageRef string) (*models.VisionResult, error) {
	imageRef = strings.TrimSpace(imageRef)
	if imageRef == "" {
		return nil, ErrEmptyImageRef
	}

	model := c.model
	if model == "" {
		model = defaultModel
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromURI(imageRef, mimeTypeFor(imageRef)),
			genai.NewPartFromText(analyzePrompt),
		}, genai.RoleUser),
	}

	resp, err := c.client.Models.GenerateContent(ctx, model, contents, &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		return nil, fmt.Errorf("gemini vision: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return nil, ErrNoCandidates
	}

	var result models.VisionResult
	if err := json.Unmarshal([]byte(text), &result); err != nil {
		return nil, fmt.Errorf("vision response decode: %w", err)
	}

	return &result, nil
}

// mimeTypeFor guesses the image MIME type from the reference extension.
func mimeTypeFor(imageRef string) string {
	switch {
	case strings.HasSuffix(strings.ToLower(imageRef), ".png"):
		return "image/png"
	case strings.HasSuffix(strings.ToLower(imageRef), ".webp"):
		return "image/webp"
	default:
		return "image/jpeg"
	}
}
