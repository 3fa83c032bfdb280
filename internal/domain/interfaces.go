package domain

import "context"

// Paragraph is a unit of source text handed to ingestion.
type Paragraph struct {
	ID   string
	Text string
}

// Chunk is a run of whole sentences taken from one paragraph.
type Chunk struct {
	ChunkID     string
	ParagraphID string
	Text        string
	Index       int
}

// Record is what a vector store keeps for one chunk.
type Record struct {
	ID       string
	Vector   []float32
	Text     string
	Metadata map[string]string
}

// Hit is a single nearest-neighbour match, higher Score is closer.
type Hit struct {
	ID          string
	ParagraphID string
	Text        string
	Score       float64
}

// MetaParagraphID is the metadata key linking a record to its paragraph.
const MetaParagraphID = "paragraph_id"

// Segmenter splits raw text into sentences.
type Segmenter interface {
	Segment(text string) ([]string, error)
}

// TokenCounter measures how much of the chunk budget a piece of text uses.
type TokenCounter interface {
	Count(text string) int
}

// Embedder converts free text into dense vectors.
// EmbedBatch must return exactly one vector per input, in input order.
type Embedder interface {
	Name() string
	Dimension() int
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Collection is a named set of records supporting similarity search.
type Collection interface {
	Name() string
	Add(ctx context.Context, records []Record) error
	Query(ctx context.Context, vector []float32, k int) ([]Hit, error)
	Count(ctx context.Context) (int, error)
}

// VectorStore hands out collections.
// Collection returns ErrCollectionNotFound when name does not exist.
type VectorStore interface {
	ResetCollection(ctx context.Context, name string, dimension int) (Collection, error)
	Collection(ctx context.Context, name string) (Collection, error)
	Close() error
}

// Generator produces an answer to query conditioned on contextText.
type Generator interface {
	Generate(ctx context.Context, contextText, query string) (string, error)
}
