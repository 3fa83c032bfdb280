package service

import "finrag/internal/domain"

// Retrieval is the outcome of a query. Found is false when the collection is
// missing or empty, in which case Hits is empty and callers should proceed
// without context.
type Retrieval struct {
	Hits  []domain.Hit
	Found bool
}

// Texts returns the hit texts in rank order.
func (r Retrieval) Texts() []string {
	out := make([]string, len(r.Hits))
	for i, h := range r.Hits {
		out[i] = h.Text
	}
	return out
}

// IDs returns the hit chunk ids in rank order.
func (r Retrieval) IDs() []string {
	out := make([]string, len(r.Hits))
	for i, h := range r.Hits {
		out[i] = h.ID
	}
	return out
}

// Answer is a generated response together with the context it was built from.
type Answer struct {
	Query   string
	Context string
	Answer  string
	Hits    []domain.Hit
}
