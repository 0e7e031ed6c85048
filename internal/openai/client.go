// Package openai provides a thin wrapper around the official OpenAI Go SDK
// for generating the human-readable scan summary.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	openaisdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"github.com/strainlens/hub/internal/models"
)

var (
	// ErrNoChoicesInResponse is returned when the API response contains no completion choices.
	ErrNoChoicesInResponse = errors.New("openai: no choices in response")
	// ErrMissingDecision is returned when Summarize is called without a canonical decision.
	ErrMissingDecision = errors.New("openai: summary facts are missing the canonical decision")
)

const defaultModel = shared.ChatModelGPT4oMini

const systemPrompt = `You write short, factual summaries of cannabis scan results for consumers.
Use only the structured facts provided. Two or three sentences: what the strain is, how it was
identified (package label or visual match) and with what confidence, and any notable facts
(type, THC/CBD, brand). If the strain is unknown, say so plainly. Never invent facts.`

// SummaryFacts are the structured inputs the summary is generated from.
// Prose is an enrichment; callers must treat failures here as non-fatal.
type SummaryFacts struct {
	Decision   *models.CanonicalDecision `json:"decision"`
	Candidates []models.MatchCandidate   `json:"candidates,omitempty"`
	OCRText    string                    `json:"ocr_text,omitempty"`
	Packaging  *models.PackagingInsight  `json:"packaging,omitempty"`
}

// Client calls the OpenAI chat completions API via the official SDK.
type Client struct {
	sdk   openaisdk.Client
	model shared.ChatModel
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithModel sets the chat model used for summaries. Empty uses the default.
func WithModel(model string) ClientOption {
	return func(c *Client) {
		if model != "" {
			c.model = shared.ChatModel(model)
		}
	}
}

// NewClient creates an OpenAI summarization client using the official SDK.
func NewClient(apiKey string, opts ...ClientOption) *Client {
	client := &Client{
		sdk:   openaisdk.NewClient(option.WithAPIKey(apiKey)),
		model: defaultModel,
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

// Summarize turns the structured scan facts into a short prose summary.
func (c *Client) Summarize(ctx context.Context, facts SummaryFacts) (string, error) {
	if facts.Decision == nil {
		return "", ErrMissingDecision
	}

	payload, err := json.Marshal(facts)
	if err != nil {
		return "", fmt.Errorf("openai facts encode: %w", err)
	}

	resp, err := c.sdk.Chat.Completions.New(ctx, openaisdk.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openaisdk.ChatCompletionMessageParamUnion{
			openaisdk.SystemMessage(systemPrompt),
			openaisdk.UserMessage(string(payload)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("openai summary: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", ErrNoChoicesInResponse
	}

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
