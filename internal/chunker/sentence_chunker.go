package chunker

import (
	"fmt"
	"strings"

	"finrag/internal/domain"
)

// DefaultMaxTokens is the chunk budget used when none is configured.
const DefaultMaxTokens = 100

// SentenceChunker greedily packs whole sentences into token-bounded chunks.
type SentenceChunker struct {
	maxTokens int
	segmenter domain.Segmenter
	counter   domain.TokenCounter
}

func NewSentenceChunker(maxTokens int, segmenter domain.Segmenter, counter domain.TokenCounter) *SentenceChunker {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	if counter == nil {
		counter = WordCounter{}
	}
	return &SentenceChunker{maxTokens: maxTokens, segmenter: segmenter, counter: counter}
}

// New builds a chunker with the Punkt segmenter and the named counter.
func New(maxTokens int, counter, encoding string) (*SentenceChunker, error) {
	seg, err := NewPunktSegmenter()
	if err != nil {
		return nil, err
	}
	var tc domain.TokenCounter
	switch counter {
	case CounterTiktoken, "":
		tc, err = NewTiktokenCounter(encoding)
		if err != nil {
			return nil, err
		}
	case CounterWords:
		tc = WordCounter{}
	default:
		return nil, fmt.Errorf("unknown token counter: %s", counter)
	}
	return NewSentenceChunker(maxTokens, seg, tc), nil
}

// MaxTokens reports the configured chunk budget.
func (c *SentenceChunker) MaxTokens() int { return c.maxTokens }

// Segmenter returns the sentence segmenter chunks are packed from.
func (c *SentenceChunker) Segmenter() domain.Segmenter { return c.segmenter }

// Chunk splits text into chunks of whole sentences joined by single spaces.
// A sentence is added to the open chunk while the chunk's token total stays
// within the budget. A sentence that alone exceeds the budget becomes its own
// chunk.
func (c *SentenceChunker) Chunk(text string) ([]string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	sentences, err := c.segmenter.Segment(text)
	if err != nil {
		return nil, err
	}
	var (
		chunks []string
		buf    []string
		used   int
	)
	for _, s := range sentences {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		n := c.counter.Count(s)
		if len(buf) > 0 && used+n > c.maxTokens {
			chunks = append(chunks, strings.Join(buf, " "))
			buf = buf[:0]
			used = 0
		}
		buf = append(buf, s)
		used += n
	}
	if len(buf) > 0 {
		chunks = append(chunks, strings.Join(buf, " "))
	}
	return chunks, nil
}

// PrepareChunks chunks every paragraph in order and assigns chunk ids of the
// form "{paragraph_id}_c{index}".
func (c *SentenceChunker) PrepareChunks(paragraphs []domain.Paragraph) ([]domain.Chunk, error) {
	var all []domain.Chunk
	for _, p := range paragraphs {
		texts, err := c.Chunk(p.Text)
		if err != nil {
			return nil, fmt.Errorf("paragraph %s: %w", p.ID, err)
		}
		for idx, text := range texts {
			all = append(all, domain.Chunk{
				ChunkID:     ChunkID(p.ID, idx),
				ParagraphID: p.ID,
				Text:        text,
				Index:       idx,
			})
		}
	}
	return all, nil
}

// ChunkID derives the identifier of the idx-th chunk of a paragraph.
func ChunkID(paragraphID string, idx int) string {
	return fmt.Sprintf("%s_c%d", paragraphID, idx)
}
