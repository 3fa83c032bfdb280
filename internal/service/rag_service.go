package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"finrag/internal/domain"
)

const (
	DefaultCollection = "finance_docs"
	DefaultTopK       = 2
	DefaultFetchK     = 5
)

// ChunkPreparer turns paragraphs into identified chunks.
type ChunkPreparer interface {
	PrepareChunks(paragraphs []domain.Paragraph) ([]domain.Chunk, error)
}

// Options configures collection naming and retrieval defaults.
type Options struct {
	Collection string
	TopK       int
	FetchK     int
}

// RAGService wires the chunker, embedder, vector store and generator. It holds
// no state of its own beyond the injected collaborators.
type RAGService struct {
	chunker    ChunkPreparer
	embedder   domain.Embedder
	store      domain.VectorStore
	generator  domain.Generator
	collection string
	topK       int
	fetchK     int
	logger     *zap.Logger
}

func NewRAGService(chunker ChunkPreparer, embedder domain.Embedder, store domain.VectorStore, generator domain.Generator, opts Options, logger *zap.Logger) *RAGService {
	if opts.Collection == "" {
		opts.Collection = DefaultCollection
	}
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	if opts.FetchK <= 0 {
		opts.FetchK = DefaultFetchK
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RAGService{
		chunker:    chunker,
		embedder:   embedder,
		store:      store,
		generator:  generator,
		collection: opts.Collection,
		topK:       opts.TopK,
		fetchK:     opts.FetchK,
		logger:     logger,
	}
}

// Collection returns the name of the collection the service reads and writes.
func (s *RAGService) Collection() string { return s.collection }

// Ingest chunks and embeds paragraphs, then replaces the collection with the
// result. It returns the number of chunks stored.
func (s *RAGService) Ingest(ctx context.Context, paragraphs []domain.Paragraph) (int, error) {
	chunks, err := s.chunker.PrepareChunks(paragraphs)
	if err != nil {
		return 0, err
	}
	texts := make([]string, len(chunks))
	ids := make([]string, len(chunks))
	metadata := make([]map[string]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
		ids[i] = ch.ChunkID
		metadata[i] = map[string]string{domain.MetaParagraphID: ch.ParagraphID}
	}
	s.logger.Info("chunked paragraphs",
		zap.Int("paragraphs", len(paragraphs)),
		zap.Int("chunks", len(chunks)))

	vectors, err := s.embed(ctx, texts)
	if err != nil {
		return 0, err
	}

	dim := s.embedder.Dimension()
	if len(vectors) > 0 {
		dim = len(vectors[0])
	}
	if dim <= 0 {
		return 0, fmt.Errorf("%w: %s has no known dimension for an empty batch", domain.ErrEmbedding, s.embedder.Name())
	}
	records, err := BuildRecords(ids, vectors, texts, metadata)
	if err != nil {
		return 0, err
	}

	coll, err := s.store.ResetCollection(ctx, s.collection, dim)
	if err != nil {
		return 0, fmt.Errorf("reset collection: %w", err)
	}
	if err := coll.Add(ctx, records); err != nil {
		return 0, fmt.Errorf("insert into %s: %w", s.collection, err)
	}
	s.logger.Info("inserted chunks",
		zap.String("collection", s.collection),
		zap.String("embedder", s.embedder.Name()),
		zap.Int("count", len(records)),
		zap.Int("dimension", dim))
	return len(records), nil
}

// Retrieve returns up to topK hits for query, taken as a prefix of the fetchK
// nearest records. Non-positive arguments fall back to the configured
// defaults and fetchK is raised to topK when smaller. A missing or empty
// collection is reported through Retrieval.Found, not as an error.
func (s *RAGService) Retrieve(ctx context.Context, query string, topK, fetchK int) (Retrieval, error) {
	if topK <= 0 {
		topK = s.topK
	}
	if fetchK <= 0 {
		fetchK = s.fetchK
	}
	if fetchK < topK {
		fetchK = topK
	}

	vectors, err := s.embed(ctx, []string{query})
	if err != nil {
		return Retrieval{}, err
	}

	coll, err := s.store.Collection(ctx, s.collection)
	if errors.Is(err, domain.ErrCollectionNotFound) {
		s.logger.Warn("collection not found, returning no context", zap.String("collection", s.collection))
		return Retrieval{}, nil
	}
	if err != nil {
		return Retrieval{}, err
	}
	hits, err := coll.Query(ctx, vectors[0], fetchK)
	if errors.Is(err, domain.ErrCollectionNotFound) {
		return Retrieval{}, nil
	}
	if err != nil {
		return Retrieval{}, fmt.Errorf("query %s: %w", s.collection, err)
	}
	if len(hits) == 0 {
		return Retrieval{}, nil
	}
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return Retrieval{Hits: hits, Found: true}, nil
}

// Answer retrieves context for query with the configured defaults and asks
// the generator for an answer.
func (s *RAGService) Answer(ctx context.Context, query string) (Answer, error) {
	if s.generator == nil {
		return Answer{}, errors.New("no generator configured")
	}
	r, err := s.Retrieve(ctx, query, 0, 0)
	if err != nil {
		return Answer{}, err
	}
	contextText := strings.Join(r.Texts(), "\n")
	text, err := s.generator.Generate(ctx, contextText, query)
	if err != nil {
		return Answer{}, fmt.Errorf("generate: %w", err)
	}
	return Answer{Query: query, Context: contextText, Answer: text, Hits: r.Hits}, nil
}

func (s *RAGService) embed(ctx context.Context, texts []string) ([][]float32, error) {
	vectors, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		if errors.Is(err, domain.ErrEmbedding) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrEmbedding, err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: %s returned %d vectors for %d texts", domain.ErrEmbedding, s.embedder.Name(), len(vectors), len(texts))
	}
	return vectors, nil
}

// BuildRecords zips the parallel slices into records. It fails with
// ErrInsertion when the slices differ in length or the vectors differ in
// dimension.
func BuildRecords(ids []string, vectors [][]float32, texts []string, metadata []map[string]string) ([]domain.Record, error) {
	n := len(ids)
	if len(vectors) != n || len(texts) != n || len(metadata) != n {
		return nil, fmt.Errorf("%w: %d ids, %d vectors, %d texts, %d metadata",
			domain.ErrInsertion, n, len(vectors), len(texts), len(metadata))
	}
	records := make([]domain.Record, n)
	for i := range ids {
		if len(vectors[i]) != len(vectors[0]) {
			return nil, fmt.Errorf("%w: vector %d has dimension %d, want %d", domain.ErrInsertion, i, len(vectors[i]), len(vectors[0]))
		}
		records[i] = domain.Record{ID: ids[i], Vector: vectors[i], Text: texts[i], Metadata: metadata[i]}
	}
	return records, nil
}
