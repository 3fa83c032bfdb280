package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"finrag/internal/generator"
)

// Config configures the OpenAI-compatible chat generator.
type Config struct {
	BaseURL      string
	APIKeyEnv    string
	Model        string
	MaxNewTokens int
	Timeout      time.Duration
}

// Client generates answers with a chat completion endpoint.
type Client struct {
	api       *goopenai.Client
	model     string
	maxTokens int
}

// NewClient creates a chat generator from cfg. The API key is read from the
// environment variable named by cfg.APIKeyEnv.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKeyEnv == "" {
		cfg.APIKeyEnv = "OPENAI_API_KEY"
	}
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
	}
	if cfg.Model == "" {
		cfg.Model = goopenai.GPT4oMini
	}
	if cfg.MaxNewTokens <= 0 {
		cfg.MaxNewTokens = generator.DefaultMaxNewTokens
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	apiCfg := goopenai.DefaultConfig(key)
	if cfg.BaseURL != "" {
		apiCfg.BaseURL = cfg.BaseURL
	}
	apiCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	return &Client{
		api:       goopenai.NewClientWithConfig(apiCfg),
		model:     cfg.Model,
		maxTokens: cfg.MaxNewTokens,
	}, nil
}

// Generate sends the rendered prompt as a single user message.
func (c *Client) Generate(ctx context.Context, contextText, query string) (string, error) {
	prompt, err := generator.BuildPrompt(contextText, query)
	if err != nil {
		return "", err
	}
	out, err := c.Complete(ctx, prompt)
	if err != nil {
		return "", err
	}
	return generator.ExtractAnswer(out), nil
}

// Complete returns the model's raw reply to prompt.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := c.api.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai chat completion returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
