package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// OpenAIConfig holds configuration for an OpenAI-compatible endpoint.
type OpenAIConfig struct {
	BaseURL     string  `yaml:"base_url"`
	APIKeyEnv   string  `yaml:"api_key_env"`
	Model       string  `yaml:"model"`
	TimeoutSecs int     `yaml:"timeout_secs"`
	BatchSize   int     `yaml:"batch_size,omitempty"`
	MaxRetries  int     `yaml:"max_retries,omitempty"`
	MaxTokens   int     `yaml:"max_tokens,omitempty"`
	Temperature float32 `yaml:"temperature,omitempty"`
}

// Timeout returns the configured timeout as a duration.
func (c *OpenAIConfig) Timeout() time.Duration { return time.Duration(c.TimeoutSecs) * time.Second }

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type      string        `yaml:"type"` // hashing | openai
	Dimension int           `yaml:"dimension,omitempty"`
	OpenAI    *OpenAIConfig `yaml:"openai,omitempty"`
}

// GeneratorConfig selects and configures the answer generator.
type GeneratorConfig struct {
	Type         string        `yaml:"type"` // extractive | openai
	MaxSentences int           `yaml:"max_sentences,omitempty"`
	OpenAI       *OpenAIConfig `yaml:"openai,omitempty"`
}

// ChunkerConfig configures how documents are split into chunks.
type ChunkerConfig struct {
	Type              string `yaml:"type"` // window | sentence
	ChunkSize         int    `yaml:"chunk_size"`
	ChunkOverlap      int    `yaml:"chunk_overlap"`
	SentencesPerChunk int    `yaml:"sentences_per_chunk,omitempty"`
	OverlapSentences  int    `yaml:"overlap_sentences,omitempty"`
}

// VectorStoreConfig selects where the vector index is persisted.
type VectorStoreConfig struct {
	Type       string `yaml:"type"` // json | sqlite | memory
	Path       string `yaml:"path"`
	StrictLoad bool   `yaml:"strict_load"`
}

// RetrievalConfig holds query defaults. MinRelevance is a pointer so that an
// explicit 0 (no threshold) differs from an absent key.
type RetrievalConfig struct {
	TopK         int      `yaml:"top_k"`
	MinRelevance *float64 `yaml:"min_relevance,omitempty"`
}

// DefaultMinRelevance is the similarity threshold used when none is configured.
const DefaultMinRelevance = 0.3

// Threshold returns the configured minimum relevance or DefaultMinRelevance.
func (r RetrievalConfig) Threshold() float64 {
	if r.MinRelevance == nil {
		return DefaultMinRelevance
	}
	return *r.MinRelevance
}

// AuditConfig selects the query log sink.
type AuditConfig struct {
	Type string `yaml:"type"` // none | log | sqlite
	Path string `yaml:"path,omitempty"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr        string `yaml:"addr"`
	MaxUploadMB int    `yaml:"max_upload_mb"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level string `yaml:"level"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Embedder    EmbedderConfig    `yaml:"embedder"`
	Generator   GeneratorConfig   `yaml:"generator"`
	Chunker     ChunkerConfig     `yaml:"chunker"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Retrieval   RetrievalConfig   `yaml:"retrieval"`
	Audit       AuditConfig       `yaml:"audit"`
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
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	applyConfigDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return &cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/agentiq/config.yaml.
// If neither exists, it writes defaults to ~/.config/agentiq/config.yaml and returns them.
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

// Validate rejects unknown component types and impossible numbers.
func (c *AppConfig) Validate() error {
	if !oneOf(c.Embedder.Type, "hashing", "openai") {
		return fmt.Errorf("unknown embedder type %q", c.Embedder.Type)
	}
	if !oneOf(c.Generator.Type, "extractive", "openai") {
		return fmt.Errorf("unknown generator type %q", c.Generator.Type)
	}
	if !oneOf(c.Chunker.Type, "window", "sentence") {
		return fmt.Errorf("unknown chunker type %q", c.Chunker.Type)
	}
	if !oneOf(c.VectorStore.Type, "json", "sqlite", "memory") {
		return fmt.Errorf("unknown vector store type %q", c.VectorStore.Type)
	}
	if !oneOf(c.Audit.Type, "none", "log", "sqlite") {
		return fmt.Errorf("unknown audit type %q", c.Audit.Type)
	}
	if t := c.Retrieval.Threshold(); t < 0 || t > 1 {
		return fmt.Errorf("retrieval.min_relevance %v outside [0,1]", t)
	}
	return nil
}

func oneOf(v string, allowed ...string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "agentiq", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{
		Embedder:    EmbedderConfig{Type: "hashing", Dimension: 256},
		Generator:   GeneratorConfig{Type: "extractive", MaxSentences: 3},
		Chunker:     ChunkerConfig{Type: "window", ChunkSize: 500, ChunkOverlap: 100, SentencesPerChunk: 5, OverlapSentences: 1},
		VectorStore: VectorStoreConfig{Type: "json", Path: filepath.Join("data", "vector_store.json")},
		Retrieval:   RetrievalConfig{TopK: 5, MinRelevance: ptr(DefaultMinRelevance)},
		Audit:       AuditConfig{Type: "log"},
		Server:      ServerConfig{Addr: ":8080", MaxUploadMB: 10},
		Log:         LogConfig{Level: "info"},
	}
	return cfg
}

// applyConfigDefaults fills zero values. min_relevance is only defaulted when
// the key is absent, since 0 is a meaningful threshold.
func applyConfigDefaults(cfg *AppConfig) {
	def := defaultConfig()
	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = def.Embedder.Type
	}
	if cfg.Embedder.Dimension == 0 {
		cfg.Embedder.Dimension = def.Embedder.Dimension
	}
	if cfg.Embedder.Type == "openai" {
		if cfg.Embedder.OpenAI == nil {
			cfg.Embedder.OpenAI = &OpenAIConfig{}
		}
		applyOpenAIDefaults(cfg.Embedder.OpenAI, "text-embedding-3-small", 30)
		if cfg.Embedder.OpenAI.BatchSize == 0 {
			cfg.Embedder.OpenAI.BatchSize = 32
		}
		if cfg.Embedder.OpenAI.MaxRetries == 0 {
			cfg.Embedder.OpenAI.MaxRetries = 2
		}
	}

	if cfg.Generator.Type == "" {
		cfg.Generator.Type = def.Generator.Type
	}
	if cfg.Generator.MaxSentences == 0 {
		cfg.Generator.MaxSentences = def.Generator.MaxSentences
	}
	if cfg.Generator.Type == "openai" {
		if cfg.Generator.OpenAI == nil {
			cfg.Generator.OpenAI = &OpenAIConfig{}
		}
		applyOpenAIDefaults(cfg.Generator.OpenAI, "gpt-4o-mini", 60)
		if cfg.Generator.OpenAI.MaxTokens == 0 {
			cfg.Generator.OpenAI.MaxTokens = 500
		}
		if cfg.Generator.OpenAI.Temperature == 0 {
			cfg.Generator.OpenAI.Temperature = 0.3
		}
	}

	if cfg.Chunker.Type == "" {
		cfg.Chunker.Type = def.Chunker.Type
	}
	if cfg.Chunker.ChunkSize == 0 {
		cfg.Chunker.ChunkSize = def.Chunker.ChunkSize
		if cfg.Chunker.ChunkOverlap == 0 {
			cfg.Chunker.ChunkOverlap = def.Chunker.ChunkOverlap
		}
	}
	if cfg.Chunker.SentencesPerChunk == 0 {
		cfg.Chunker.SentencesPerChunk = def.Chunker.SentencesPerChunk
	}

	if cfg.VectorStore.Type == "" {
		cfg.VectorStore.Type = def.VectorStore.Type
	}
	if cfg.VectorStore.Path == "" {
		switch cfg.VectorStore.Type {
		case "json":
			cfg.VectorStore.Path = def.VectorStore.Path
		case "sqlite":
			cfg.VectorStore.Path = filepath.Join("data", "vector_store.db")
		}
	}

	if cfg.Retrieval.MinRelevance == nil {
		cfg.Retrieval.MinRelevance = ptr(DefaultMinRelevance)
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = def.Retrieval.TopK
	}

	if cfg.Audit.Type == "" {
		cfg.Audit.Type = def.Audit.Type
	}
	if cfg.Audit.Type == "sqlite" && cfg.Audit.Path == "" {
		cfg.Audit.Path = filepath.Join("data", "audit.db")
	}

	if cfg.Server.Addr == "" {
		cfg.Server.Addr = def.Server.Addr
	}
	if cfg.Server.MaxUploadMB == 0 {
		cfg.Server.MaxUploadMB = def.Server.MaxUploadMB
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = def.Log.Level
	}
}

func ptr[T any](v T) *T { return &v }

func applyOpenAIDefaults(c *OpenAIConfig, model string, timeoutSecs int) {
	if c.BaseURL == "" {
		c.BaseURL = "https://api.openai.com/v1"
	}
	if c.APIKeyEnv == "" {
		c.APIKeyEnv = "OPENAI_API_KEY"
	}
	if c.Model == "" {
		c.Model = model
	}
	if c.TimeoutSecs == 0 {
		c.TimeoutSecs = timeoutSecs
	}
}
