package vectorstore

import (
	"fmt"
	"math"
	"sort"

	"finrag/internal/domain"
)

const (
	TypeBolt   = "bolt"
	TypeMemory = "memory"
	TypeQdrant = "qdrant"
)

// Storage persists vectors and supports similarity search.
type Storage = domain.VectorStore

// ValidateRecords rejects a batch whose vectors do not all have dimension
// dim, or that repeats an id.
func ValidateRecords(records []domain.Record, dim int) error {
	seen := make(map[string]struct{}, len(records))
	for i, r := range records {
		if r.ID == "" {
			return fmt.Errorf("%w: record %d has no id", domain.ErrInsertion, i)
		}
		if _, dup := seen[r.ID]; dup {
			return fmt.Errorf("%w: duplicate id %s", domain.ErrInsertion, r.ID)
		}
		seen[r.ID] = struct{}{}
		if len(r.Vector) != dim {
			return fmt.Errorf("%w: record %s has dimension %d, collection expects %d", domain.ErrInsertion, r.ID, len(r.Vector), dim)
		}
	}
	return nil
}

// Cosine returns the cosine similarity of a and b, or 0 when either is a
// zero vector or the lengths differ.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// TopK sorts hits by descending score and keeps the first k. Ties keep their
// incoming order.
func TopK(hits []domain.Hit, k int) []domain.Hit {
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if k >= 0 && k < len(hits) {
		hits = hits[:k]
	}
	return hits
}
