// Package llm wraps the Gemini text-generation service behind a single
// structured-output completion call with per-call timeouts.
package llm

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
	"google.golang.org/genai"

	"newsloom/internal/core"
)

const (
	// DefaultModel is the default Gemini model for synthesis and extraction.
	DefaultModel = "gemini-flash-lite-latest"
)

// Completer is the single-call contract the pipeline components depend on.
// Schema may be nil for free-form text (repair prompts embed the schema in
// the prompt text instead).
type Completer interface {
	Complete(ctx context.Context, prompt string, schema *genai.Schema, timeout time.Duration) (string, error)
	ModelName() string
}

// Client wraps a genai.Client for structured-output completions.
type Client struct {
	modelName   string
	temperature float32
	maxTokens   int32
	gClient     *genai.Client
}

// NewClient creates a new LLM client. The API key is resolved from the
// GEMINI_API_KEY environment variable first, then viper configuration.
func NewClient(ctx context.Context, modelName string) (*Client, error) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		apiKey = viper.GetString("gemini.api_key")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required: set GEMINI_API_KEY or gemini.api_key in the config file")
	}

	if modelName == "" {
		modelName = viper.GetString("gemini.model")
		if modelName == "" {
			modelName = DefaultModel
		}
	}

	gClient, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &Client{
		modelName:   modelName,
		temperature: float32(viper.GetFloat64("gemini.temperature")),
		maxTokens:   viper.GetInt32("gemini.max_tokens"),
		gClient:     gClient,
	}, nil
}

// ModelName returns the model identifier used by this client.
func (c *Client) ModelName() string {
	return c.modelName
}

// Complete issues one generation call. When schema is non-nil the response
// is constrained to JSON matching it. Timeouts and transport failures are
// reported as TransientGenerationError so callers can apply the bounded
// repair-then-fallback policy.
func (c *Client) Complete(ctx context.Context, prompt string, schema *genai.Schema, timeout time.Duration) (string, error) {
	if prompt == "" {
		return "", fmt.Errorf("prompt cannot be empty")
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	contents := []*genai.Content{{
		Parts: []*genai.Part{{Text: prompt}},
		Role:  "user",
	}}

	config := &genai.GenerateContentConfig{}
	if c.maxTokens > 0 {
		config.MaxOutputTokens = c.maxTokens
	}
	if c.temperature > 0 {
		temp := c.temperature
		config.Temperature = &temp
	}
	if schema != nil {
		config.ResponseMIMEType = "application/json"
		config.ResponseSchema = schema
	}

	resp, err := c.gClient.Models.GenerateContent(ctx, c.modelName, contents, config)
	if err != nil {
		return "", &core.TransientGenerationError{Op: "complete", Err: err}
	}

	text := resp.Text()
	if text == "" {
		return "", &core.TransientGenerationError{Op: "complete", Err: fmt.Errorf("empty response from model")}
	}

	return text, nil
}
