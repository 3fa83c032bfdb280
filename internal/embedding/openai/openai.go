package openai

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"finrag/internal/domain"
	"finrag/internal/embedding"
)

// Client is an OpenAI-compatible embeddings client implementing the Embedder interface.
type Client struct {
	api   *goopenai.Client
	model string
	// requested is the fixed "dimensions" field; never mutated after NewClient.
	requested int
	// dimension is 0 until configured or learned from the first response.
	dimension atomic.Int64
	batchSize int
}

// Config configures the OpenAI-compatible embeddings client.
type Config struct {
	BaseURL   string
	APIKeyEnv string
	Model     string
	Timeout   time.Duration
	BatchSize int
	// Dimension is forwarded as the "dimensions" request field when non-zero.
	Dimension int
}

// NewClient creates a new embeddings client using the provided configuration.
func NewClient(cfg Config) (*Client, error) {
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}
	t := cfg.Timeout
	if t == 0 {
		t = 30 * time.Second
	}
	apiCfg := goopenai.DefaultConfig(key)
	if cfg.BaseURL != "" {
		apiCfg.BaseURL = cfg.BaseURL
	}
	apiCfg.HTTPClient = &http.Client{Timeout: t}
	c := &Client{
		api:       goopenai.NewClientWithConfig(apiCfg),
		model:     cfg.Model,
		requested: cfg.Dimension,
		batchSize: cfg.BatchSize,
	}
	c.dimension.Store(int64(cfg.Dimension))
	return c, nil
}

// Name returns the identifier of this embedder implementation.
func (c *Client) Name() string { return "openai" }

// Dimension returns the configured dimension, or the observed one after the first call.
func (c *Client) Dimension() int { return int(c.dimension.Load()) }

// EmbedBatch embeds texts in requests of at most batchSize inputs. Each
// response is placed by its reported index so output order matches input order.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for start := 0; start < len(texts); start += c.batchSize {
		end := min(start+c.batchSize, len(texts))
		req := goopenai.EmbeddingRequest{
			Input: texts[start:end],
			Model: goopenai.EmbeddingModel(c.model),
		}
		if c.requested > 0 {
			req.Dimensions = c.requested
		}
		resp, err := c.api.CreateEmbeddings(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("%w: openai embeddings: %v", domain.ErrEmbedding, err)
		}
		for _, d := range resp.Data {
			if d.Index < 0 || d.Index >= end-start {
				return nil, fmt.Errorf("%w: openai returned out-of-range index %d", domain.ErrEmbedding, d.Index)
			}
			out[start+d.Index] = d.Embedding
		}
	}
	if err := embedding.CheckBatch(c.Name(), texts, out); err != nil {
		return nil, err
	}
	if len(out) > 0 {
		c.dimension.CompareAndSwap(0, int64(len(out[0])))
	}
	return out, nil
}
