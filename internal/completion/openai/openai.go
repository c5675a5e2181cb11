package openai

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"docqa/internal/domain"
)

// Client sends chat completion requests to an OpenAI-compatible endpoint.
type Client struct {
	api   openai.Client
	model string
}

// Config configures the chat completion client.
type Config struct {
	BaseURL   string
	APIKeyEnv string
	Model     string
	Timeout   time.Duration
}

// NewClient creates a chat completion client. Requests are never retried.
func NewClient(cfg Config) (*Client, error) {
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4"
	}
	t := cfg.Timeout
	if t == 0 {
		t = 60 * time.Second
	}
	api := openai.NewClient(
		option.WithAPIKey(key),
		option.WithBaseURL(strings.TrimRight(cfg.BaseURL, "/")+"/"),
		option.WithMaxRetries(0),
		option.WithRequestTimeout(t),
	)
	return &Client{api: api, model: cfg.Model}, nil
}

// Complete issues one chat completion with a system and a user message and
// returns the content of the first choice.
func (c *Client) Complete(ctx context.Context, req domain.CompletionRequest) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(req.System),
			openai.UserMessage(req.User),
		},
		Temperature: openai.Float(req.Temperature),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	resp, err := c.api.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", domain.WrapProvider("openai", "complete", err)
	}
	if len(resp.Choices) == 0 {
		return "", domain.WrapProvider("openai", "complete", errors.New("no choices"))
	}
	return resp.Choices[0].Message.Content, nil
}
