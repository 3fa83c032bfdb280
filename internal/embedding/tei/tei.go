package tei

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"finrag/internal/domain"
	"finrag/internal/embedding"
)

// Client talks to a HuggingFace text-embeddings-inference server, for example
// one serving sentence-transformers/all-MiniLM-L6-v2.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	// dimension is 0 until configured or learned from the first response.
	dimension atomic.Int64
}

type EmbeddingRequest struct {
	Inputs    []string `json:"inputs"`
	Normalize bool     `json:"normalize"`
}

type EmbeddingResponse [][]float32

type Config struct {
	URL       string
	Timeout   time.Duration
	Dimension int
}

func NewClient(cfg Config) *Client {
	t := cfg.Timeout
	if t == 0 {
		t = 30 * time.Second
	}
	c := &Client{
		BaseURL:    cfg.URL,
		HTTPClient: &http.Client{Timeout: t},
	}
	c.dimension.Store(int64(cfg.Dimension))
	return c
}

func (c *Client) Name() string { return "tei" }

func (c *Client) Dimension() int { return int(c.dimension.Load()) }

func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	jsonData, err := json.Marshal(EmbeddingRequest{Inputs: texts, Normalize: true})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/embed", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: tei request: %v", domain.ErrEmbedding, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read tei response: %v", domain.ErrEmbedding, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: tei returned status %d: %s", domain.ErrEmbedding, resp.StatusCode, string(body))
	}

	var embeddings EmbeddingResponse
	if err := json.Unmarshal(body, &embeddings); err != nil {
		return nil, fmt.Errorf("%w: failed to unmarshal tei response: %v", domain.ErrEmbedding, err)
	}
	if err := embedding.CheckBatch(c.Name(), texts, embeddings); err != nil {
		return nil, err
	}
	c.dimension.CompareAndSwap(0, int64(len(embeddings[0])))
	return embeddings, nil
}
