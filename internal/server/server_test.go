package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap/zaptest"

	"finrag/internal/domain"
	"finrag/internal/service"
)

type fakeRAG struct {
	retrieval service.Retrieval
	answer    service.Answer
	err       error
	gotTopK   int
}

func (f *fakeRAG) Retrieve(_ context.Context, _ string, topK, _ int) (service.Retrieval, error) {
	f.gotTopK = topK
	return f.retrieval, f.err
}

func (f *fakeRAG) Answer(_ context.Context, query string) (service.Answer, error) {
	if f.err != nil {
		return service.Answer{}, f.err
	}
	a := f.answer
	a.Query = query
	return a, nil
}

func do(t *testing.T, h http.Handler, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestRoot(t *testing.T) {
	s := New(&fakeRAG{}, Config{}, zaptest.NewLogger(t))
	rr := do(t, s.Handler(), http.MethodGet, "/", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil || body["message"] != "RAG API running!" {
		t.Fatalf("unexpected body %v, %v", body, err)
	}
}

func TestGenerate(t *testing.T) {
	rag := &fakeRAG{answer: service.Answer{Context: "a\nb", Answer: "42"}}
	s := New(rag, Config{}, zaptest.NewLogger(t))

	rr := do(t, s.Handler(), http.MethodPost, "/api/generate", `{"query":"what?"}`, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body)
	}
	var resp generateResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Context != "a\nb" || resp.Answer != "42" {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestGenerate_BadRequests(t *testing.T) {
	s := New(&fakeRAG{}, Config{}, zaptest.NewLogger(t))
	tests := []struct {
		name string
		body string
	}{
		{"empty query", `{"query":"  "}`},
		{"missing query", `{}`},
		{"malformed", `{"query":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, s.Handler(), http.MethodPost, "/api/generate", tt.body, nil)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rr.Code)
			}
		})
	}
}

func TestGenerate_ServiceError(t *testing.T) {
	s := New(&fakeRAG{err: errors.New("model down")}, Config{}, zaptest.NewLogger(t))
	rr := do(t, s.Handler(), http.MethodPost, "/api/generate", `{"query":"q"}`, nil)
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
}

func TestRetrieve(t *testing.T) {
	rag := &fakeRAG{retrieval: service.Retrieval{
		Hits:  []domain.Hit{{ID: "0_1_c0", ParagraphID: "0_1", Text: "Revenue rose.", Score: 0.9}},
		Found: true,
	}}
	s := New(rag, Config{}, zaptest.NewLogger(t))
	rr := do(t, s.Handler(), http.MethodPost, "/api/retrieve", `{"query":"revenue","top_k":1}`, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var resp retrieveResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Found || len(resp.Chunks) != 1 || resp.Chunks[0].ParagraphID != "0_1" || rag.gotTopK != 1 {
		t.Fatalf("unexpected response %+v (top_k %d)", resp, rag.gotTopK)
	}
}

func TestRetrieve_NotFoundEncodesEmptyList(t *testing.T) {
	s := New(&fakeRAG{}, Config{}, zaptest.NewLogger(t))
	rr := do(t, s.Handler(), http.MethodPost, "/api/retrieve", `{"query":"q"}`, nil)
	if !strings.Contains(rr.Body.String(), `"chunks":[]`) || !strings.Contains(rr.Body.String(), `"found":false`) {
		t.Fatalf("unexpected body %s", rr.Body)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	s := New(&fakeRAG{}, Config{}, zaptest.NewLogger(t))
	rr := do(t, s.Handler(), http.MethodGet, "/api/generate", "", nil)
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rr.Code)
	}
}

func TestCORS(t *testing.T) {
	s := New(&fakeRAG{}, Config{AllowedOrigins: []string{"http://localhost:3000"}}, zaptest.NewLogger(t))

	rr := do(t, s.Handler(), http.MethodOptions, "/api/generate", "", map[string]string{
		"Origin":                        "http://localhost:3000",
		"Access-Control-Request-Method": "POST",
	})
	if rr.Code != http.StatusNoContent {
		t.Fatalf("preflight: expected 204, got %d", rr.Code)
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Fatalf("allow origin = %q", got)
	}

	rr = do(t, s.Handler(), http.MethodGet, "/", "", map[string]string{"Origin": "http://evil.example"})
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("unexpected allow origin %q", got)
	}
}

func TestCORS_Wildcard(t *testing.T) {
	s := New(&fakeRAG{}, Config{}, zaptest.NewLogger(t))
	rr := do(t, s.Handler(), http.MethodGet, "/", "", map[string]string{"Origin": "http://any.example"})
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("allow origin = %q", got)
	}
}
