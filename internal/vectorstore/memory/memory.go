package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"finrag/internal/domain"
	"finrag/internal/vectorstore"
)

// Storage is a simple in-memory vector store using brute-force cosine similarity.
type Storage struct {
	mu          sync.RWMutex
	collections map[string]*Collection
}

func NewStorage() *Storage { return &Storage{collections: make(map[string]*Collection)} }

func (s *Storage) ResetCollection(ctx context.Context, name string, dimension int) (domain.Collection, error) {
	if dimension <= 0 {
		return nil, errors.New("invalid dimension")
	}
	c := &Collection{name: name, dimension: dimension, index: make(map[string]int)}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collections[name] = c
	return c, nil
}

func (s *Storage) Collection(ctx context.Context, name string) (domain.Collection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrCollectionNotFound, name)
	}
	return c, nil
}

func (s *Storage) Close() error { return nil }

// Collection holds records in insertion order.
type Collection struct {
	mu        sync.RWMutex
	name      string
	dimension int
	records   []domain.Record
	index     map[string]int
}

func (c *Collection) Name() string { return c.name }

func (c *Collection) Add(ctx context.Context, records []domain.Record) error {
	if err := vectorstore.ValidateRecords(records, c.dimension); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range records {
		if _, ok := c.index[r.ID]; ok {
			return fmt.Errorf("%w: id %s already in collection %s", domain.ErrInsertion, r.ID, c.name)
		}
	}
	for _, r := range records {
		c.index[r.ID] = len(c.records)
		c.records = append(c.records, copyRecord(r))
	}
	return nil
}

func (c *Collection) Query(ctx context.Context, vector []float32, k int) ([]domain.Hit, error) {
	if len(vector) != c.dimension {
		return nil, fmt.Errorf("query dimension %d, collection %s expects %d", len(vector), c.name, c.dimension)
	}
	if k <= 0 {
		k = 5
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	hits := make([]domain.Hit, len(c.records))
	for i, r := range c.records {
		hits[i] = domain.Hit{
			ID:          r.ID,
			ParagraphID: r.Metadata[domain.MetaParagraphID],
			Text:        r.Text,
			Score:       vectorstore.Cosine(vector, r.Vector),
		}
	}
	return vectorstore.TopK(hits, k), nil
}

func (c *Collection) Count(ctx context.Context) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.records), nil
}

func copyRecord(r domain.Record) domain.Record {
	out := domain.Record{ID: r.ID, Text: r.Text, Vector: append([]float32(nil), r.Vector...)}
	if r.Metadata != nil {
		out.Metadata = make(map[string]string, len(r.Metadata))
		for k, v := range r.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}
