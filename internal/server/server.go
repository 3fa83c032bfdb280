package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"finrag/internal/service"
)

// RAG is the part of the service exposed over HTTP.
type RAG interface {
	Retrieve(ctx context.Context, query string, topK, fetchK int) (service.Retrieval, error)
	Answer(ctx context.Context, query string) (service.Answer, error)
}

type Config struct {
	Addr           string
	AllowedOrigins []string
}

// Server serves the generate and retrieve endpoints.
type Server struct {
	rag     RAG
	cfg     Config
	logger  *zap.Logger
	handler http.Handler
}

func New(rag RAG, cfg Config, logger *zap.Logger) *Server {
	if cfg.Addr == "" {
		cfg.Addr = ":8000"
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{rag: rag, cfg: cfg, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("POST /api/generate", s.handleGenerate)
	mux.HandleFunc("POST /api/retrieve", s.handleRetrieve)
	s.handler = s.logMiddleware(s.corsMiddleware(mux))
	return s
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler { return s.handler }

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errs := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", s.cfg.Addr))
		errs <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.logger.Info("shutting down http server")
		return srv.Shutdown(shutdownCtx)
	case err := <-errs:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

type generateRequest struct {
	Query string `json:"query"`
}

type generateResponse struct {
	Context string `json:"context"`
	Answer  string `json:"answer"`
}

type retrieveRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

type chunkResponse struct {
	ID          string  `json:"id"`
	ParagraphID string  `json:"paragraph_id"`
	Text        string  `json:"text"`
	Score       float64 `json:"score"`
}

type retrieveResponse struct {
	Chunks []chunkResponse `json:"chunks"`
	Found  bool            `json:"found"`
}

type apiError struct {
	Error string `json:"error"`
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "RAG API running!"})
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if !decodeQuery(w, r, &req, func() string { return req.Query }) {
		return
	}
	ans, err := s.rag.Answer(r.Context(), req.Query)
	if err != nil {
		s.logger.Error("generate failed", zap.String("query", req.Query), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, apiError{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, generateResponse{Context: ans.Context, Answer: ans.Answer})
}

func (s *Server) handleRetrieve(w http.ResponseWriter, r *http.Request) {
	var req retrieveRequest
	if !decodeQuery(w, r, &req, func() string { return req.Query }) {
		return
	}
	res, err := s.rag.Retrieve(r.Context(), req.Query, req.TopK, 0)
	if err != nil {
		s.logger.Error("retrieve failed", zap.String("query", req.Query), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, apiError{Error: err.Error()})
		return
	}
	resp := retrieveResponse{Chunks: make([]chunkResponse, len(res.Hits)), Found: res.Found}
	for i, h := range res.Hits {
		resp.Chunks[i] = chunkResponse{ID: h.ID, ParagraphID: h.ParagraphID, Text: h.Text, Score: h.Score}
	}
	writeJSON(w, http.StatusOK, resp)
}

// decodeQuery decodes the body into dst and rejects a blank query.
func decodeQuery(w http.ResponseWriter, r *http.Request, dst any, query func() string) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "malformed request body"})
		return false
	}
	if strings.TrimSpace(query()) == "" {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "query must not be empty"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)))
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	allowAll := false
	allowed := map[string]struct{}{}
	for _, o := range s.cfg.AllowedOrigins {
		if o == "*" {
			allowAll = true
		}
		allowed[o] = struct{}{}
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" {
			if _, ok := allowed[origin]; ok || allowAll {
				h := w.Header()
				if allowAll {
					h.Set("Access-Control-Allow-Origin", "*")
				} else {
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
				h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			}
		}
		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
