// Package config provides configuration loading and structs for the kura server and CLI.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Provider names accepted by the embedding and generation sections.
const (
	ProviderOpenAI = "openai"
	ProviderMock   = "mock"
)

// HardMaxTopK bounds every search regardless of configuration.
const HardMaxTopK = 10

// Config holds all configuration for the application.
type Config struct {
	Debug      bool             `yaml:"debug"`
	LogLevel   string           `yaml:"log_level"`
	Mock       bool             `yaml:"mock"`
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Generation GenerationConfig `yaml:"generation"`
	Ingest     IngestConfig     `yaml:"ingest"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host               string `yaml:"host"`
	Port               int    `yaml:"port"`
	MaxUploadMB        int    `yaml:"max_upload_mb"`
	RequestTimeoutSecs int    `yaml:"request_timeout_secs"`
}

// StorageConfig holds the root directory of named vector stores.
type StorageConfig struct {
	VectorDBDir string `yaml:"vector_db_dir"`
}

// EmbeddingConfig selects and tunes the embedding provider.
type EmbeddingConfig struct {
	Provider    string `yaml:"provider"`
	Model       string `yaml:"model"`
	Dimensions  int    `yaml:"dimensions"`
	APIKey      string `yaml:"api_key"`
	BaseURL     string `yaml:"base_url"`
	BatchSize   int    `yaml:"batch_size"`
	Concurrency int    `yaml:"concurrency"`
	TimeoutSecs int    `yaml:"timeout_secs"`
	CacheSize   int    `yaml:"cache_size"`
}

// GenerationConfig selects and tunes the chat model used for answers.
type GenerationConfig struct {
	Provider    string  `yaml:"provider"`
	Model       string  `yaml:"model"`
	Temperature float32 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	APIKey      string  `yaml:"api_key"`
	BaseURL     string  `yaml:"base_url"`
	TimeoutSecs int     `yaml:"timeout_secs"`
}

// IngestConfig holds chunking defaults for new stores.
type IngestConfig struct {
	ChunkSize    int      `yaml:"chunk_size"`
	ChunkOverlap int      `yaml:"chunk_overlap"`
	Separators   []string `yaml:"separators"`
}

// RetrievalConfig holds search and RAG settings.
type RetrievalConfig struct {
	DefaultTopK     int    `yaml:"default_top_k"`
	MaxTopK         int    `yaml:"max_top_k"`
	GenerateOnEmpty *bool  `yaml:"generate_on_empty"`
	NoContextAnswer string `yaml:"no_context_answer"`
	SystemPrompt    string `yaml:"system_prompt"`
	IndexCacheSize  int    `yaml:"index_cache_size"`
}

// GenerateOnEmptyOrDefault reports whether the generator runs when retrieval finds nothing; defaults to true.
func (r *RetrievalConfig) GenerateOnEmptyOrDefault() bool {
	if r.GenerateOnEmpty != nil {
		return *r.GenerateOnEmpty
	}
	return true
}

// MetricsConfig toggles the Prometheus endpoint.
type MetricsConfig struct {
	Enabled *bool `yaml:"enabled"`
}

// EnabledOrDefault returns whether /metrics is served; defaults to true when unset.
func (m *MetricsConfig) EnabledOrDefault() bool {
	if m.Enabled != nil {
		return *m.Enabled
	}
	return true
}

// Default returns a config with every default applied, for running without a config file.
func Default() *Config {
	cfg := &Config{}
	ApplyEnv(cfg)
	ApplyDefaults(cfg)
	return cfg
}

// Load reads and parses the config file at path, applies environment overrides and defaults,
// expands paths and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyEnv(&cfg)
	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.VectorDBDir = expandPath(cfg.Storage.VectorDBDir, configDir)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadDotEnv loads environment variables from the given .env files (default ".env").
// Missing files are ignored; variables already set in the environment win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// ApplyEnv overrides file values with environment variables.
func ApplyEnv(cfg *Config) {
	if v, ok := os.LookupEnv("KURA_MOCK"); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Mock = b
		}
	}
	if v := os.Getenv("KURA_VECTOR_DB_DIR"); v != "" {
		cfg.Storage.VectorDBDir = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		if cfg.Embedding.APIKey == "" {
			cfg.Embedding.APIKey = v
		}
		if cfg.Generation.APIKey == "" {
			cfg.Generation.APIKey = v
		}
	}
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
		if cfg.Embedding.BaseURL == "" {
			cfg.Embedding.BaseURL = v
		}
		if cfg.Generation.BaseURL == "" {
			cfg.Generation.BaseURL = v
		}
	}
	if v := os.Getenv("OPENAI_MODEL"); v != "" {
		cfg.Generation.Model = v
	}
	if v := os.Getenv("OPENAI_EMBEDDING_MODEL"); v != "" {
		cfg.Embedding.Model = v
	}
}

// Validate checks values that defaults cannot repair.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Ingest.ChunkSize <= 0 {
		return fmt.Errorf("ingest.chunk_size must be positive")
	}
	if c.Ingest.ChunkOverlap < 0 || c.Ingest.ChunkOverlap >= c.Ingest.ChunkSize {
		return fmt.Errorf("ingest.chunk_overlap must be in [0, chunk_size), got %d", c.Ingest.ChunkOverlap)
	}
	if c.Retrieval.MaxTopK < 1 || c.Retrieval.MaxTopK > HardMaxTopK {
		return fmt.Errorf("retrieval.max_top_k must be in [1, %d]", HardMaxTopK)
	}
	if c.Retrieval.DefaultTopK < 1 || c.Retrieval.DefaultTopK > c.Retrieval.MaxTopK {
		return fmt.Errorf("retrieval.default_top_k must be in [1, max_top_k]")
	}
	if !strings.Contains(c.Retrieval.SystemPrompt, ContextPlaceholder) {
		return fmt.Errorf("retrieval.system_prompt must contain %s", ContextPlaceholder)
	}
	for section, p := range map[string]string{"embedding": c.Embedding.Provider, "generation": c.Generation.Provider} {
		if p != ProviderOpenAI && p != ProviderMock {
			return fmt.Errorf("%s.provider must be %q or %q, got %q", section, ProviderOpenAI, ProviderMock, p)
		}
	}
	if c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("embedding.dimensions must be positive")
	}
	return nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. "~/" is relative to the home directory;
// other relative paths are relative to configDir.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
		return path
	}
	return filepath.Join(configDir, path)
}
