package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap/zaptest"

	"finrag/internal/config"
	"finrag/internal/generator/extractive"
)

func testConfig(t *testing.T) *config.AppConfig {
	t.Helper()
	cfg, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	cfg.Chunker.Counter = "words"
	cfg.VectorStore.Bolt.Path = filepath.Join(t.TempDir(), "db", "vectors.db")
	return cfg
}

func TestBuildApp_IngestAndRetrieve(t *testing.T) {
	cfg := testConfig(t)
	data := `[{"paragraphs":[{"uid":"a","order":1,"text":"Revenue increased to 4.2 million. Margins improved."},{"uid":"b","order":2,"text":"The company opened two offices."}],
	"questions":[{"uid":"q","question":"What was revenue?","answer":"4.2 million","answer_from":"text","rel_paragraphs":["1"]}]}]`
	cfg.Dataset.Path = filepath.Join(t.TempDir(), "tatqa.json")
	if err := os.WriteFile(cfg.Dataset.Path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	a, err := buildApp(cfg, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("buildApp: %v", err)
	}
	defer a.Close()

	ctx := context.Background()
	if err := a.ingest(ctx); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	res, err := a.svc.Retrieve(ctx, "Revenue increased to 4.2 million.", 1, 0)
	if err != nil || !res.Found {
		t.Fatalf("Retrieve: %+v, %v", res, err)
	}
	if res.Hits[0].ParagraphID != "0_1" {
		t.Fatalf("unexpected top hit %+v", res.Hits[0])
	}
	ans, err := a.svc.Answer(ctx, "What was revenue?")
	if err != nil || ans.Answer == extractive.NoContextAnswer {
		t.Fatalf("Answer: %+v, %v", ans, err)
	}
}

func TestBuildApp_UnknownComponents(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.AppConfig)
	}{
		{"embedder", func(c *config.AppConfig) { c.Embedder.Type = "word2vec" }},
		{"store", func(c *config.AppConfig) { c.VectorStore.Type = "chroma" }},
		{"generator", func(c *config.AppConfig) { c.Generator.Type = "gpt2" }},
		{"counter", func(c *config.AppConfig) { c.Chunker.Counter = "bytes" }},
		{"openai key", func(c *config.AppConfig) {
			c.Embedder.Type = "openai"
			c.Embedder.OpenAI = &config.OpenAIEmbedderConfig{APIKeyEnv: "FINRAG_TEST_MISSING_KEY"}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("FINRAG_TEST_MISSING_KEY", "")
			cfg := testConfig(t)
			tt.mutate(cfg)
			if a, err := buildApp(cfg, zaptest.NewLogger(t)); err == nil {
				a.Close()
				t.Fatal("expected error")
			}
		})
	}
}

func TestBuildStore_Memory(t *testing.T) {
	st, err := buildStore(config.VectorStoreConfig{Type: "memory"}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("buildStore: %v", err)
	}
	if _, err := st.ResetCollection(context.Background(), "c", 3); err != nil {
		t.Fatalf("ResetCollection: %v", err)
	}
}

func TestApp_Judge(t *testing.T) {
	tests := []struct {
		name    string
		gen     string
		wantErr bool
	}{
		{"extractive cannot judge", "extractive", true},
		{"ollama judges", "ollama", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			cfg.Generator.Type = tt.gen
			a, err := buildApp(cfg, zaptest.NewLogger(t))
			if err != nil {
				t.Fatalf("buildApp: %v", err)
			}
			defer a.Close()
			if _, err := a.judge(); (err != nil) != tt.wantErr {
				t.Fatalf("judge error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
