// Package genai provides the reasoning-oracle client over the OpenAI API.
//
// The oracle is untrusted: callers must treat whatever text it returns as
// loosely structured input. This package only guarantees a bounded round
// trip; validation and safety clamping live in the triage package.
package genai

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// DefaultTimeout bounds one oracle round trip. A turn must always complete
// within a bounded time budget; on expiry the caller proceeds with fallback.
const DefaultTimeout = 20 * time.Second

// DefaultModel is the chat model used when none is configured.
const DefaultModel = openai.ChatModelGPT4oMini

// ClientInterface defines the oracle operations the triage layer depends on.
type ClientInterface interface {
	// GenerateWithMessages runs one chat completion over the given messages
	// and returns the raw assistant text.
	GenerateWithMessages(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (string, error)
}

// Opts holds configuration options for the GenAI client.
type Opts struct {
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Option defines a configuration option for the GenAI client.
type Option func(*Opts)

// WithAPIKey sets the OpenAI API key.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithModel sets the chat model name.
func WithModel(model string) Option {
	return func(o *Opts) { o.Model = model }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *Opts) { o.Timeout = d }
}

// Client wraps the OpenAI chat completion API for oracle queries.
type Client struct {
	client  openai.Client
	model   openai.ChatModel
	timeout time.Duration
}

// NewClient initializes a GenAI client. The API key falls back to the
// OPENAI_API_KEY environment variable when not provided via options.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key not set")
	}
	model := DefaultModel
	if cfg.Model != "" {
		model = openai.ChatModel(cfg.Model)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	slog.Debug("genai.NewClient: client configured", "model", model, "timeout", timeout)
	return &Client{
		client:  openai.NewClient(option.WithAPIKey(cfg.APIKey)),
		model:   model,
		timeout: timeout,
	}, nil
}

// GenerateWithMessages runs one chat completion with the client's bounded
// timeout and returns the assistant text.
func (c *Client) GenerateWithMessages(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    c.model,
		Messages: messages,
	})
	if err != nil {
		slog.Error("genai.GenerateWithMessages: completion failed", "error", err, "model", c.model)
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		slog.Error("genai.GenerateWithMessages: no choices returned", "model", c.model)
		return "", fmt.Errorf("no choices returned")
	}
	content := resp.Choices[0].Message.Content
	slog.Debug("genai.GenerateWithMessages: completion succeeded", "model", c.model, "responseLength", len(content))
	return content, nil
}
