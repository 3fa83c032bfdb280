package generator

import (
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/prompts"

	"finrag/internal/domain"
)

// Generator produces an answer for a query given retrieved context.
type Generator = domain.Generator

const (
	TypeExtractive = "extractive"
	TypeOpenAI     = "openai"
	TypeOllama     = "ollama"

	DefaultMaxNewTokens = 200

	answerMarker = "Answer:"
)

var promptTemplate = prompts.NewPromptTemplate(
	"You are a helpful assistant.\nContext:\n{{.context}}\n\nQuestion:\n{{.query}}\n\n"+answerMarker,
	[]string{"context", "query"},
)

// BuildPrompt renders the question-answering prompt sent to language models.
func BuildPrompt(contextText, query string) (string, error) {
	p, err := promptTemplate.Format(map[string]any{
		"context": contextText,
		"query":   query,
	})
	if err != nil {
		return "", fmt.Errorf("render prompt: %w", err)
	}
	return p, nil
}

// ExtractAnswer keeps the text after the first "Answer:" marker, if any, and
// trims surrounding whitespace. Models that echo the prompt therefore yield
// only their completion.
func ExtractAnswer(output string) string {
	if _, after, ok := strings.Cut(output, answerMarker); ok {
		output = after
	}
	return strings.TrimSpace(output)
}
