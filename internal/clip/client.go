// Package clip provides a thin HTTP client for the image-feature-extraction
// service (a CLIP-style inference endpoint returning fixed-length vectors).
package clip

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/strainlens/hub/pkg/vecmath"
)

var (
	// ErrEmptyImageRef is returned when EmbedImage is called without an image reference.
	ErrEmptyImageRef = errors.New("clip: image reference is empty")
	// ErrInvalidDims is returned when dimensions is not positive.
	ErrInvalidDims = errors.New("clip: embedding dimensions must be positive")
	// ErrNoEmbeddingInResponse is returned when the service response contains no embedding.
	ErrNoEmbeddingInResponse = errors.New("clip: no embedding in response")
	// ErrDimensionMismatch is returned when the response embedding length does not match configured dimensions.
	ErrDimensionMismatch = errors.New("clip: embedding dimension mismatch")
)

const (
	defaultDimension  = 512
	defaultMaxRetries = 3
)

// Client calls the embedding inference service.
type Client struct {
	http       *retryablehttp.Client
	baseURL    string
	apiKey     string
	dimensions int
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithDimensions sets the expected embedding dimension (must match the reference store).
func WithDimensions(dim int) ClientOption {
	return func(c *Client) {
		c.dimensions = dim
	}
}

// WithAPIKey sets the bearer key sent to the inference service.
func WithAPIKey(key string) ClientOption {
	return func(c *Client) {
		c.apiKey = key
	}
}

// NewClient creates a client for the inference endpoint at baseURL.
// Transient failures are retried with backoff.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	httpClient := retryablehttp.NewClient()
	httpClient.RetryMax = defaultMaxRetries
	httpClient.Logger = nil // retries are logged by the caller via errors

	client := &Client{
		http:       httpClient,
		baseURL:    baseURL,
		dimensions: defaultDimension,
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

type embedRequest struct {
	ImageRef string `json:"image_ref"`
}

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// EmbedImage returns the L2-normalized embedding for the image at imageRef.
// The returned slice length equals the configured dimensions.
func (c *Client) EmbedImage(ctx context.Context, imageRef string) ([]float32, error) {
	if imageRef == "" {
		return nil, ErrEmptyImageRef
	}

	if c.dimensions <= 0 {
		return nil, ErrInvalidDims
	}

	body, err := json.Marshal(embedRequest{ImageRef: imageRef})
	if err != nil {
		return nil, fmt.Errorf("clip request encode: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(
		ctx, http.MethodPost, c.baseURL+"/v1/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("clip request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("clip embed: %w", err)
	}

	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Debug("clip: close response body", "error", err)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

		return nil, fmt.Errorf("clip embed: status %d: %s", resp.StatusCode, payload)
	}

	var out embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("clip response decode: %w", err)
	}

	if len(out.Embedding) == 0 {
		return nil, ErrNoEmbeddingInResponse
	}

	if len(out.Embedding) != c.dimensions {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(out.Embedding), c.dimensions)
	}

	// Inference services usually normalize already; normalizing again is a
	// no-op for unit vectors and protects the dot-product scoring otherwise.
	return vecmath.Normalize(out.Embedding), nil
}
