package ollama

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	lcollama "github.com/tmc/langchaingo/llms/ollama"

	"finrag/internal/generator"
)

const (
	DefaultURL   = "http://localhost:11434"
	DefaultModel = "llama3.2"
)

// Config configures the Ollama generator.
type Config struct {
	URL          string
	Model        string
	MaxNewTokens int
}

// Generator sends the prompt to a local language model through langchaingo.
type Generator struct {
	llm       llms.Model
	maxTokens int
}

// New connects to the Ollama server described by cfg.
func New(cfg Config) (*Generator, error) {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	llm, err := lcollama.New(lcollama.WithServerURL(cfg.URL), lcollama.WithModel(cfg.Model))
	if err != nil {
		return nil, fmt.Errorf("create ollama client: %w", err)
	}
	return NewWithModel(llm, cfg.MaxNewTokens), nil
}

// NewWithModel wraps any langchaingo model.
func NewWithModel(llm llms.Model, maxNewTokens int) *Generator {
	if maxNewTokens <= 0 {
		maxNewTokens = generator.DefaultMaxNewTokens
	}
	return &Generator{llm: llm, maxTokens: maxNewTokens}
}

func (g *Generator) Generate(ctx context.Context, contextText, query string) (string, error) {
	prompt, err := generator.BuildPrompt(contextText, query)
	if err != nil {
		return "", err
	}
	out, err := g.Complete(ctx, prompt)
	if err != nil {
		return "", err
	}
	return generator.ExtractAnswer(out), nil
}

// Complete returns the model's raw reply to prompt.
func (g *Generator) Complete(ctx context.Context, prompt string) (string, error) {
	out, err := llms.GenerateFromSinglePrompt(ctx, g.llm, prompt, llms.WithMaxTokens(g.maxTokens))
	if err != nil {
		return "", fmt.Errorf("ollama generate: %w", err)
	}
	return strings.TrimSpace(out), nil
}
