package memory

import (
	"context"
	"errors"
	"testing"

	"finrag/internal/domain"
)

func rec(id string, v ...float32) domain.Record {
	return domain.Record{ID: id, Vector: v, Text: "text " + id, Metadata: map[string]string{domain.MetaParagraphID: "p" + id}}
}

func TestStorage_AddAndQuery(t *testing.T) {
	ctx := context.Background()
	s := NewStorage()
	c, err := s.ResetCollection(ctx, "docs", 2)
	if err != nil {
		t.Fatalf("ResetCollection: %v", err)
	}
	if err := c.Add(ctx, []domain.Record{rec("1", 1, 0), rec("2", 0, 1), rec("3", 0.7, 0.7)}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	hits, err := c.Query(ctx, []float32{0.9, 0.1}, 2)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(hits) != 2 || hits[0].ID != "1" || hits[1].ID != "3" {
		t.Fatalf("unexpected hits %+v", hits)
	}
	if hits[0].ParagraphID != "p1" || hits[0].Text != "text 1" {
		t.Fatalf("payload not carried: %+v", hits[0])
	}
	if n, _ := c.Count(ctx); n != 3 {
		t.Fatalf("Count = %d, want 3", n)
	}
}

func TestStorage_ResetDropsRecords(t *testing.T) {
	ctx := context.Background()
	s := NewStorage()
	c, _ := s.ResetCollection(ctx, "docs", 2)
	_ = c.Add(ctx, []domain.Record{rec("1", 1, 0)})

	if _, err := s.ResetCollection(ctx, "docs", 2); err != nil {
		t.Fatalf("ResetCollection: %v", err)
	}
	got, err := s.Collection(ctx, "docs")
	if err != nil {
		t.Fatalf("Collection: %v", err)
	}
	if n, _ := got.Count(ctx); n != 0 {
		t.Fatalf("Count after reset = %d, want 0", n)
	}
}

func TestStorage_MissingCollection(t *testing.T) {
	if _, err := NewStorage().Collection(context.Background(), "nope"); !errors.Is(err, domain.ErrCollectionNotFound) {
		t.Fatalf("expected ErrCollectionNotFound, got %v", err)
	}
}

func TestCollection_RejectsBadBatches(t *testing.T) {
	ctx := context.Background()
	c, _ := NewStorage().ResetCollection(ctx, "docs", 2)
	if err := c.Add(ctx, []domain.Record{rec("1", 1, 0, 0)}); !errors.Is(err, domain.ErrInsertion) {
		t.Fatalf("dimension mismatch: got %v", err)
	}
	_ = c.Add(ctx, []domain.Record{rec("1", 1, 0)})
	if err := c.Add(ctx, []domain.Record{rec("1", 0, 1)}); !errors.Is(err, domain.ErrInsertion) {
		t.Fatalf("existing id: got %v", err)
	}
	if n, _ := c.Count(ctx); n != 1 {
		t.Fatalf("rejected batch must not be written, Count = %d", n)
	}
}
