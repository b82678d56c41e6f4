// Package openai implements domain.Generator with OpenAI-compatible chat completions.
package openai

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"agentiq/internal/domain"
	"agentiq/internal/generation"
)

// Config configures the chat client.
type Config struct {
	BaseURL     string
	APIKeyEnv   string
	Model       string
	Timeout     time.Duration
	MaxTokens   int
	Temperature float32
}

// Client answers questions from retrieved context.
type Client struct {
	client      *goopenai.Client
	model       string
	maxTokens   int
	temperature float32
	keyEnv      string
}

var _ domain.Generator = (*Client)(nil)

// NewClient creates the client. Without an API key every call fails with
// domain.ErrNotConfigured.
func NewClient(cfg Config) *Client {
	if cfg.APIKeyEnv == "" {
		cfg.APIKeyEnv = "OPENAI_API_KEY"
	}
	if cfg.Model == "" {
		cfg.Model = goopenai.GPT4oMini
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 500
	}
	c := &Client{
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		keyEnv:      cfg.APIKeyEnv,
	}
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return c
	}
	oc := goopenai.DefaultConfig(key)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	oc.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	c.client = goopenai.NewClientWithConfig(oc)
	return c
}

// Generate answers query from chunks and parses the confidence marker.
func (c *Client) Generate(ctx context.Context, query string, chunks []domain.ContextChunk) (string, float64, error) {
	text, err := c.complete(ctx, generation.BuildPrompt(query, chunks), c.temperature, c.maxTokens)
	if err != nil {
		return "", 0, err
	}
	answer, confidence := generation.ParseConfidence(text)
	return answer, confidence, nil
}

// GenerateFallback explains that no relevant context was found.
func (c *Client) GenerateFallback(ctx context.Context, query string) (string, error) {
	return c.complete(ctx, generation.FallbackPrompt(query), 0.5, 150)
}

func (c *Client) complete(ctx context.Context, prompt string, temperature float32, maxTokens int) (string, error) {
	if c.client == nil {
		return "", fmt.Errorf("openai chat: missing API key in env %s: %w", c.keyEnv, domain.ErrNotConfigured)
	}
	resp, err := c.client.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    []goopenai.ChatCompletionMessage{{Role: goopenai.ChatMessageRoleUser, Content: prompt}},
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("openai chat: %w: %w", domain.ErrExternalService, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai chat: empty response: %w", domain.ErrExternalService)
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
