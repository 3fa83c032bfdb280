package config

import (
	"errors"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DatasetConfig points at the ingested corpus and the file evaluated
// against it. EvalPath defaults to Path.
type DatasetConfig struct {
	Path     string `yaml:"path"`
	EvalPath string `yaml:"eval_path"`
}

// ChunkerConfig configures how paragraphs are split into chunks.
type ChunkerConfig struct {
	MaxTokens int    `yaml:"max_tokens"`
	Counter   string `yaml:"counter"`
	Encoding  string `yaml:"encoding"`
}

type HashingEmbedderConfig struct {
	Dimension int `yaml:"dimension"`
}

// TEIEmbedderConfig holds connection details for a text-embeddings-inference server.
type TEIEmbedderConfig struct {
	URL         string `yaml:"url"`
	TimeoutSecs int    `yaml:"timeout_secs"`
	Dimension   int    `yaml:"dimension"`
}

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	Dimension   int    `yaml:"dimension"`
	TimeoutSecs int    `yaml:"timeout_secs"`
	BatchSize   int    `yaml:"batch_size"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type    string                 `yaml:"type"`
	Hashing *HashingEmbedderConfig `yaml:"hashing,omitempty"`
	TEI     *TEIEmbedderConfig     `yaml:"tei,omitempty"`
	OpenAI  *OpenAIEmbedderConfig  `yaml:"openai,omitempty"`
}

type BoltConfig struct {
	Path string `yaml:"path"`
}

// QdrantConfig contains gRPC connection details for a Qdrant server.
type QdrantConfig struct {
	Host   string `yaml:"host"`
	Port   int    `yaml:"port"`
	APIKey string `yaml:"api_key"`
	UseTLS bool   `yaml:"use_tls"`
}

// VectorStoreConfig selects and configures the vector store implementation.
type VectorStoreConfig struct {
	Type       string        `yaml:"type"`
	Collection string        `yaml:"collection"`
	Bolt       *BoltConfig   `yaml:"bolt,omitempty"`
	Qdrant     *QdrantConfig `yaml:"qdrant,omitempty"`
}

type RetrieverConfig struct {
	TopK   int `yaml:"top_k"`
	FetchK int `yaml:"fetch_k"`
}

type ExtractiveGeneratorConfig struct {
	MaxSentences int `yaml:"max_sentences"`
}

type OpenAIGeneratorConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

type OllamaGeneratorConfig struct {
	URL   string `yaml:"url"`
	Model string `yaml:"model"`
}

// GeneratorConfig selects and configures the answer generator.
type GeneratorConfig struct {
	Type         string                     `yaml:"type"`
	MaxNewTokens int                        `yaml:"max_new_tokens"`
	Extractive   *ExtractiveGeneratorConfig `yaml:"extractive,omitempty"`
	OpenAI       *OpenAIGeneratorConfig     `yaml:"openai,omitempty"`
	Ollama       *OllamaGeneratorConfig     `yaml:"ollama,omitempty"`
}

type ServerConfig struct {
	Addr           string   `yaml:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Dataset     DatasetConfig     `yaml:"dataset"`
	Chunker     ChunkerConfig     `yaml:"chunker"`
	Embedder    EmbedderConfig    `yaml:"embedder"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Retriever   RetrieverConfig   `yaml:"retriever"`
	Generator   GeneratorConfig   `yaml:"generator"`
	Server      ServerConfig      `yaml:"server"`
	Log         LogConfig         `yaml:"log"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return defaultConfig(), nil
		}
		return nil, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyConfigDefaults(&cfg)
	return &cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/finrag/config.yaml.
// If neither exists, it writes defaults to ~/.config/finrag/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "finrag", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{}
	applyConfigDefaults(cfg)
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Dataset.Path == "" {
		cfg.Dataset.Path = "./dataset/tatqa_dataset_test_gold.json"
	}
	// Gold chunk ids only line up with the stored ones for the ingested file.
	if cfg.Dataset.EvalPath == "" {
		cfg.Dataset.EvalPath = cfg.Dataset.Path
	}

	if cfg.Chunker.MaxTokens == 0 {
		cfg.Chunker.MaxTokens = 100
	}
	if cfg.Chunker.Counter == "" {
		cfg.Chunker.Counter = "tiktoken"
	}
	if cfg.Chunker.Encoding == "" {
		cfg.Chunker.Encoding = "cl100k_base"
	}

	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = "hashing"
	}
	switch cfg.Embedder.Type {
	case "hashing":
		if cfg.Embedder.Hashing == nil {
			cfg.Embedder.Hashing = &HashingEmbedderConfig{}
		}
		if cfg.Embedder.Hashing.Dimension == 0 {
			cfg.Embedder.Hashing.Dimension = 384
		}
	case "tei":
		if cfg.Embedder.TEI == nil {
			cfg.Embedder.TEI = &TEIEmbedderConfig{}
		}
		if cfg.Embedder.TEI.URL == "" {
			cfg.Embedder.TEI.URL = "http://localhost:8080"
		}
		if cfg.Embedder.TEI.TimeoutSecs == 0 {
			cfg.Embedder.TEI.TimeoutSecs = 30
		}
	case "openai":
		if cfg.Embedder.OpenAI == nil {
			cfg.Embedder.OpenAI = &OpenAIEmbedderConfig{}
		}
		if cfg.Embedder.OpenAI.BaseURL == "" {
			cfg.Embedder.OpenAI.BaseURL = "https://api.openai.com/v1"
		}
		if cfg.Embedder.OpenAI.APIKeyEnv == "" {
			cfg.Embedder.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
		}
		if cfg.Embedder.OpenAI.Model == "" {
			cfg.Embedder.OpenAI.Model = "text-embedding-3-small"
		}
		if cfg.Embedder.OpenAI.TimeoutSecs == 0 {
			cfg.Embedder.OpenAI.TimeoutSecs = 30
		}
		if cfg.Embedder.OpenAI.BatchSize == 0 {
			cfg.Embedder.OpenAI.BatchSize = 32
		}
	}

	if cfg.VectorStore.Type == "" {
		cfg.VectorStore.Type = "bolt"
	}
	if cfg.VectorStore.Collection == "" {
		cfg.VectorStore.Collection = "finance_docs"
	}
	switch cfg.VectorStore.Type {
	case "bolt":
		if cfg.VectorStore.Bolt == nil {
			cfg.VectorStore.Bolt = &BoltConfig{}
		}
		if cfg.VectorStore.Bolt.Path == "" {
			cfg.VectorStore.Bolt.Path = "./rag_db/vectors.db"
		}
	case "qdrant":
		if cfg.VectorStore.Qdrant == nil {
			cfg.VectorStore.Qdrant = &QdrantConfig{}
		}
		if cfg.VectorStore.Qdrant.Host == "" {
			cfg.VectorStore.Qdrant.Host = "localhost"
		}
		if cfg.VectorStore.Qdrant.Port == 0 {
			cfg.VectorStore.Qdrant.Port = 6334
		}
	}

	if cfg.Retriever.TopK == 0 {
		cfg.Retriever.TopK = 2
	}
	if cfg.Retriever.FetchK == 0 {
		cfg.Retriever.FetchK = 5
	}

	if cfg.Generator.Type == "" {
		cfg.Generator.Type = "extractive"
	}
	if cfg.Generator.MaxNewTokens == 0 {
		cfg.Generator.MaxNewTokens = 200
	}
	switch cfg.Generator.Type {
	case "extractive":
		if cfg.Generator.Extractive == nil {
			cfg.Generator.Extractive = &ExtractiveGeneratorConfig{}
		}
		if cfg.Generator.Extractive.MaxSentences == 0 {
			cfg.Generator.Extractive.MaxSentences = 2
		}
	case "openai":
		if cfg.Generator.OpenAI == nil {
			cfg.Generator.OpenAI = &OpenAIGeneratorConfig{}
		}
		if cfg.Generator.OpenAI.APIKeyEnv == "" {
			cfg.Generator.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
		}
		if cfg.Generator.OpenAI.Model == "" {
			cfg.Generator.OpenAI.Model = "gpt-4o-mini"
		}
		if cfg.Generator.OpenAI.TimeoutSecs == 0 {
			cfg.Generator.OpenAI.TimeoutSecs = 60
		}
	case "ollama":
		if cfg.Generator.Ollama == nil {
			cfg.Generator.Ollama = &OllamaGeneratorConfig{}
		}
		if cfg.Generator.Ollama.URL == "" {
			cfg.Generator.Ollama.URL = "http://localhost:11434"
		}
		if cfg.Generator.Ollama.Model == "" {
			cfg.Generator.Ollama.Model = "llama3.2"
		}
	}

	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8000"
	}
	if len(cfg.Server.AllowedOrigins) == 0 {
		cfg.Server.AllowedOrigins = []string{"*"}
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
}
