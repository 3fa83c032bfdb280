package main

import (
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"finrag/internal/chunker"
	"finrag/internal/config"
	"finrag/internal/domain"
	"finrag/internal/embedding"
	"finrag/internal/embedding/hashing"
	"finrag/internal/embedding/openai"
	"finrag/internal/embedding/tei"
	"finrag/internal/evaluation"
	"finrag/internal/generator"
	"finrag/internal/generator/extractive"
	genollama "finrag/internal/generator/ollama"
	genopenai "finrag/internal/generator/openai"
	"finrag/internal/service"
	"finrag/internal/vectorstore"
	"finrag/internal/vectorstore/bolt"
	"finrag/internal/vectorstore/memory"
	"finrag/internal/vectorstore/qdrant"
)

// app holds the assembled pipeline for one command invocation.
type app struct {
	cfg       *config.AppConfig
	logger    *zap.Logger
	chunker   *chunker.SentenceChunker
	embedder  embedding.Embedder
	generator domain.Generator
	store     vectorstore.Storage
	svc       *service.RAGService
}

func (a *app) Close() error { return a.store.Close() }

// judge returns the configured generator when it can complete raw prompts.
func (a *app) judge() (evaluation.Judge, error) {
	j, ok := a.generator.(evaluation.Judge)
	if !ok {
		return nil, fmt.Errorf("generator %q cannot judge answers, configure openai or ollama", a.cfg.Generator.Type)
	}
	return j, nil
}

func buildApp(cfg *config.AppConfig, logger *zap.Logger) (*app, error) {
	ch, err := chunker.New(cfg.Chunker.MaxTokens, cfg.Chunker.Counter, cfg.Chunker.Encoding)
	if err != nil {
		return nil, fmt.Errorf("chunker: %w", err)
	}
	emb, err := buildEmbedder(cfg.Embedder)
	if err != nil {
		return nil, fmt.Errorf("embedder: %w", err)
	}
	gen, err := buildGenerator(cfg.Generator)
	if err != nil {
		return nil, fmt.Errorf("generator: %w", err)
	}
	st, err := buildStore(cfg.VectorStore, logger)
	if err != nil {
		return nil, fmt.Errorf("vector store: %w", err)
	}
	svc := service.NewRAGService(ch, emb, st, gen, service.Options{
		Collection: cfg.VectorStore.Collection,
		TopK:       cfg.Retriever.TopK,
		FetchK:     cfg.Retriever.FetchK,
	}, logger)
	logger.Debug("pipeline assembled",
		zap.String("embedder", emb.Name()),
		zap.String("vector_store", cfg.VectorStore.Type),
		zap.String("generator", cfg.Generator.Type),
		zap.Int("max_tokens", ch.MaxTokens()))
	return &app{cfg: cfg, logger: logger, chunker: ch, embedder: emb, generator: gen, store: st, svc: svc}, nil
}

func buildEmbedder(cfg config.EmbedderConfig) (embedding.Embedder, error) {
	switch cfg.Type {
	case "hashing", "":
		dim := hashing.DefaultDimension
		if cfg.Hashing != nil && cfg.Hashing.Dimension > 0 {
			dim = cfg.Hashing.Dimension
		}
		return hashing.NewEmbedder(dim), nil
	case "tei":
		if cfg.TEI == nil {
			return nil, fmt.Errorf("tei embedder config missing")
		}
		return tei.NewClient(tei.Config{
			URL:       cfg.TEI.URL,
			Timeout:   time.Duration(cfg.TEI.TimeoutSecs) * time.Second,
			Dimension: cfg.TEI.Dimension,
		}), nil
	case "openai":
		if cfg.OpenAI == nil {
			return nil, fmt.Errorf("openai embedder config missing")
		}
		return openai.NewClient(openai.Config{
			BaseURL:   cfg.OpenAI.BaseURL,
			APIKeyEnv: cfg.OpenAI.APIKeyEnv,
			Model:     cfg.OpenAI.Model,
			Timeout:   time.Duration(cfg.OpenAI.TimeoutSecs) * time.Second,
			BatchSize: cfg.OpenAI.BatchSize,
			Dimension: cfg.OpenAI.Dimension,
		})
	default:
		return nil, fmt.Errorf("unknown embedder: %s", cfg.Type)
	}
}

func buildStore(cfg config.VectorStoreConfig, logger *zap.Logger) (vectorstore.Storage, error) {
	switch cfg.Type {
	case vectorstore.TypeBolt, "":
		path := "./rag_db/vectors.db"
		if cfg.Bolt != nil && cfg.Bolt.Path != "" {
			path = cfg.Bolt.Path
		}
		return bolt.Open(path, logger)
	case vectorstore.TypeMemory:
		return memory.NewStorage(), nil
	case vectorstore.TypeQdrant:
		if cfg.Qdrant == nil {
			return nil, fmt.Errorf("qdrant config missing")
		}
		apiKey := cfg.Qdrant.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("QDRANT_API_KEY")
		}
		return qdrant.NewStorage(qdrant.Config{
			Host:   cfg.Qdrant.Host,
			Port:   cfg.Qdrant.Port,
			APIKey: apiKey,
			UseTLS: cfg.Qdrant.UseTLS,
		}, logger)
	default:
		return nil, fmt.Errorf("unknown vector store: %s", cfg.Type)
	}
}

func buildGenerator(cfg config.GeneratorConfig) (domain.Generator, error) {
	switch cfg.Type {
	case generator.TypeExtractive, "":
		seg, err := chunker.NewPunktSegmenter()
		if err != nil {
			return nil, err
		}
		n := extractive.DefaultMaxSentences
		if cfg.Extractive != nil {
			n = cfg.Extractive.MaxSentences
		}
		return extractive.New(seg, n), nil
	case generator.TypeOpenAI:
		if cfg.OpenAI == nil {
			return nil, fmt.Errorf("openai generator config missing")
		}
		return genopenai.NewClient(genopenai.Config{
			BaseURL:      cfg.OpenAI.BaseURL,
			APIKeyEnv:    cfg.OpenAI.APIKeyEnv,
			Model:        cfg.OpenAI.Model,
			MaxNewTokens: cfg.MaxNewTokens,
			Timeout:      time.Duration(cfg.OpenAI.TimeoutSecs) * time.Second,
		})
	case generator.TypeOllama:
		oc := genollama.Config{MaxNewTokens: cfg.MaxNewTokens}
		if cfg.Ollama != nil {
			oc.URL = cfg.Ollama.URL
			oc.Model = cfg.Ollama.Model
		}
		return genollama.New(oc)
	default:
		return nil, fmt.Errorf("unknown generator: %s", cfg.Type)
	}
}
