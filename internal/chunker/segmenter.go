package chunker

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/neurosnap/sentences"
	"github.com/neurosnap/sentences/english"

	"finrag/internal/domain"
)

// PunktSegmenter splits text with the Punkt model trained on English.
type PunktSegmenter struct {
	tokenizer *sentences.DefaultSentenceTokenizer
}

func NewPunktSegmenter() (*PunktSegmenter, error) {
	tokenizer, err := english.NewSentenceTokenizer(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to load punkt english model: %w", err)
	}
	return &PunktSegmenter{tokenizer: tokenizer}, nil
}

// Segment returns trimmed, non-empty sentences in source order.
func (p *PunktSegmenter) Segment(text string) ([]string, error) {
	if !utf8.ValidString(text) {
		return nil, fmt.Errorf("%w: input is not valid UTF-8", domain.ErrSegmentation)
	}
	var out []string
	for _, s := range p.tokenizer.Tokenize(text) {
		trimmed := strings.TrimSpace(s.Text)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}
	return out, nil
}
