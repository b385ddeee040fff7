// Package config loads the process configuration from a YAML file merged
// with environment variables. Validation is fatal at startup; nothing here
// is retried.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the full process configuration shared by the pipeline and chat
// commands.
type Config struct {
	OpenAI   OpenAIConfig   `yaml:"openai"`
	Qdrant   QdrantConfig   `yaml:"qdrant"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Memory   MemoryConfig   `yaml:"memory"`
	Query    QueryConfig    `yaml:"query"`
}

// OpenAIConfig configures the embedding and completion client.
type OpenAIConfig struct {
	APIKey         string `yaml:"api_key"`
	BaseURL        string `yaml:"base_url"`
	EmbeddingModel string `yaml:"embedding_model"`
	Dimensions     int    `yaml:"dimensions"`
	SummaryModel   string `yaml:"summary_model"`
	RewriteModel   string `yaml:"rewrite_model"`
}

// QdrantConfig configures the vector index connection.
type QdrantConfig struct {
	Addr       string `yaml:"addr"`
	APIKey     string `yaml:"api_key"`
	UseTLS     bool   `yaml:"use_tls"`
	Collection string `yaml:"collection"`
}

// PipelineConfig tunes the batch indexing run.
type PipelineConfig struct {
	ChunkWindow     int `yaml:"chunk_window"`
	ChunkOverlap    int `yaml:"chunk_overlap"`
	MaxConcurrent   int `yaml:"max_concurrent"`
	BatchSize       int `yaml:"batch_size"`
	MaxPromptTokens int `yaml:"max_prompt_tokens"`
}

// MemoryConfig tunes the per-conversation memory tiers.
type MemoryConfig struct {
	ShortTermBudget int `yaml:"short_term_budget"`
	RefreshInterval int `yaml:"refresh_interval"`
}

// QueryConfig tunes retrieval per turn.
type QueryConfig struct {
	SummaryK     int `yaml:"summary_k"`
	FactK        int `yaml:"fact_k"`
	ReplyReserve int `yaml:"reply_reserve"`
}

// Default returns the configuration used when no file overrides it.
func Default() Config {
	return Config{
		OpenAI: OpenAIConfig{
			EmbeddingModel: "text-embedding-3-small",
			Dimensions:     1536,
			SummaryModel:   "gpt-4o-mini",
			RewriteModel:   "gpt-4o-mini",
		},
		Qdrant: QdrantConfig{
			Addr:       "localhost:6334",
			Collection: "mail_archive",
		},
		Pipeline: PipelineConfig{
			ChunkWindow:     400,
			ChunkOverlap:    50,
			MaxConcurrent:   20,
			MaxPromptTokens: 3000,
		},
		Memory: MemoryConfig{
			ShortTermBudget: 2000,
			RefreshInterval: 3,
		},
		Query: QueryConfig{
			SummaryK:     3,
			FactK:        5,
			ReplyReserve: 500,
		},
	}
}

// Load reads the YAML file at path over the defaults, then applies
// environment overrides. An empty path skips the file and uses defaults
// plus environment alone.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("Load: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("Load: parse %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

// applyEnv lets credentials and endpoints come from the environment so the
// YAML file never has to hold secrets.
func (c *Config) applyEnv() {
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.OpenAI.APIKey = v
	}
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
		c.OpenAI.BaseURL = v
	}
	if v := os.Getenv("QDRANT_ADDR"); v != "" {
		c.Qdrant.Addr = v
	}
	if v := os.Getenv("QDRANT_API_KEY"); v != "" {
		c.Qdrant.APIKey = v
	}
}

// Validate fails fast on anything that would only surface mid-run
// otherwise: missing credentials, endpoints, or a non-positive embedding
// dimensionality.
func (c *Config) Validate() error {
	if c.OpenAI.APIKey == "" {
		return errors.New("Validate: OpenAI API key is empty (set OPENAI_API_KEY)")
	}
	if c.OpenAI.EmbeddingModel == "" {
		return errors.New("Validate: embedding model is empty")
	}
	if c.OpenAI.Dimensions <= 0 {
		return fmt.Errorf("Validate: dimensions must be positive, got %d", c.OpenAI.Dimensions)
	}
	if c.Qdrant.Addr == "" {
		return errors.New("Validate: Qdrant address is empty (set QDRANT_ADDR)")
	}
	if c.Qdrant.Collection == "" {
		return errors.New("Validate: Qdrant collection is empty")
	}
	if c.Pipeline.ChunkWindow <= 0 {
		return fmt.Errorf("Validate: chunk window must be positive, got %d", c.Pipeline.ChunkWindow)
	}
	if c.Pipeline.ChunkOverlap < 0 || c.Pipeline.ChunkOverlap >= c.Pipeline.ChunkWindow {
		return fmt.Errorf("Validate: chunk overlap must be in [0, window), got %d", c.Pipeline.ChunkOverlap)
	}
	return nil
}
