package chunker

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
)

const (
	CounterTiktoken = "tiktoken"
	CounterWords    = "words"

	DefaultEncoding = "cl100k_base"
)

// WordCounter counts whitespace separated fields.
type WordCounter struct{}

func (WordCounter) Count(text string) int { return len(strings.Fields(text)) }

// TiktokenCounter counts BPE tokens. Encodings are loaded from data embedded
// in the binary, so no network access is needed.
type TiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

var offlineLoader sync.Once

func NewTiktokenCounter(encoding string) (*TiktokenCounter, error) {
	offlineLoader.Do(func() {
		tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
	})
	if encoding == "" {
		encoding = DefaultEncoding
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("failed to get tiktoken encoding %q: %w", encoding, err)
	}
	return &TiktokenCounter{enc: enc}, nil
}

func (c *TiktokenCounter) Count(text string) int {
	return len(c.enc.Encode(text, nil, nil))
}
