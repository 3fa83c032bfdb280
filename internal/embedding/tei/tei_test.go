package tei

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"finrag/internal/domain"
)

func TestEmbedBatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embed" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var req EmbeddingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		out := make([][]float32, len(req.Inputs))
		for i := range req.Inputs {
			out[i] = []float32{float32(i), 1, 0}
		}
		_ = json.NewEncoder(w).Encode(out)
	}))
	defer srv.Close()

	c := NewClient(Config{URL: srv.URL})
	vecs, err := c.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if len(vecs) != 3 || vecs[2][0] != 2 {
		t.Fatalf("unexpected vectors %v", vecs)
	}
	if c.Dimension() != 3 {
		t.Fatalf("Dimension = %d, want 3", c.Dimension())
	}
}

func TestEmbedBatch_ConcurrentDimension(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req EmbeddingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		out := make([][]float32, len(req.Inputs))
		for i := range out {
			out[i] = []float32{1, 0, 0, 0}
		}
		_ = json.NewEncoder(w).Encode(out)
	}))
	defer srv.Close()

	c := NewClient(Config{URL: srv.URL})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.EmbedBatch(context.Background(), []string{"q"}); err != nil {
				t.Errorf("EmbedBatch: %v", err)
			}
			if d := c.Dimension(); d != 0 && d != 4 {
				t.Errorf("Dimension = %d mid-flight", d)
			}
		}()
	}
	wg.Wait()
	if c.Dimension() != 4 {
		t.Fatalf("Dimension = %d, want 4", c.Dimension())
	}
}

func TestEmbedBatch_Errors(t *testing.T) {
	cases := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"status", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "model loading", http.StatusServiceUnavailable)
		}},
		{"short batch", func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode([][]float32{{1, 2}})
		}},
		{"garbage", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("not json"))
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(tc.handler)
			defer srv.Close()
			_, err := NewClient(Config{URL: srv.URL}).EmbedBatch(context.Background(), []string{"a", "b"})
			if !errors.Is(err, domain.ErrEmbedding) {
				t.Fatalf("expected ErrEmbedding, got %v", err)
			}
		})
	}
}
