// Package config provides configuration loading and structs for the menurag service.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug      bool             `yaml:"debug"`
	Server     ServerConfig     `yaml:"server"`
	Catalog    CatalogConfig    `yaml:"catalog"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Vector     VectorConfig     `yaml:"vector"`
	Generation GenerationConfig `yaml:"generation"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	RequestTimeout int    `yaml:"request_timeout_seconds"`
}

// CatalogConfig locates the restaurant catalog and controls how it is read.
type CatalogConfig struct {
	DataDir   string `yaml:"data_dir"`
	Source    string `yaml:"source"`
	Streaming bool   `yaml:"streaming"`
	BatchSize int    `yaml:"batch_size"`
	Watch     *bool  `yaml:"watch"`
}

// WatchOrDefault returns whether to watch the catalog for changes; defaults to true when unset.
func (c *CatalogConfig) WatchOrDefault() bool {
	if c.Watch != nil {
		return *c.Watch
	}
	return true
}

// EmbeddingConfig selects and tunes the embedding provider.
type EmbeddingConfig struct {
	Provider          string  `yaml:"provider"` // openai, onnx, mock
	Model             string  `yaml:"model"`
	APIKey            string  `yaml:"api_key"`
	BaseURL           string  `yaml:"base_url"`
	Dimensions        int     `yaml:"dimensions"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
	CacheSize         int     `yaml:"cache_size"`
	CachePath         string  `yaml:"cache_path"`
	ModelPath         string  `yaml:"model_path"`
	MaxTokens         int     `yaml:"max_tokens"`
}

// VectorConfig selects the similarity index.
type VectorConfig struct {
	IndexType string       `yaml:"index_type"` // memory, qdrant
	IndexPath string       `yaml:"index_path"`
	Qdrant    QdrantConfig `yaml:"qdrant"`
}

// QdrantConfig holds the external index connection.
type QdrantConfig struct {
	Address    string `yaml:"address"`
	Collection string `yaml:"collection"`
	APIKey     string `yaml:"api_key"`
	UseTLS     bool   `yaml:"use_tls"`
}

// GenerationConfig selects the answer generator.
type GenerationConfig struct {
	Provider  string `yaml:"provider"` // openai, anthropic
	Model     string `yaml:"model"`
	APIKey    string `yaml:"api_key"`
	BaseURL   string `yaml:"base_url"`
	MaxTokens int    `yaml:"max_tokens"`
}

// RetrievalConfig holds ranking sizes.
type RetrievalConfig struct {
	RestaurantTopK  int   `yaml:"restaurant_top_k"`
	MenuItemTopK    int   `yaml:"menu_item_top_k"`
	OverFetchFactor int   `yaml:"over_fetch_factor"`
	// LexicalFallback ranks failed query embeddings with bleve instead of the zero vector. Off by default.
	LexicalFallback bool `yaml:"lexical_fallback"`
}

// ConfigurationError reports a missing required credential. It is fatal at construction time.
type ConfigurationError struct {
	Key string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("missing required credential: %s", e.Key)
}

// Load reads and parses the config file at path, expands paths, applies environment credentials and defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	configDir := filepath.Dir(path)
	loadDotEnv(configDir)
	ApplyEnv(&cfg)
	ApplyDefaults(&cfg)

	cfg.Catalog.DataDir = expandPath(cfg.Catalog.DataDir, configDir)
	cfg.Embedding.CachePath = expandPath(cfg.Embedding.CachePath, configDir)
	cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	cfg.Vector.IndexPath = expandPath(cfg.Vector.IndexPath, configDir)

	return &cfg, nil
}

// loadDotEnv reads .env from the config directory and the working directory. Existing variables win.
func loadDotEnv(configDir string) {
	candidates := []string{filepath.Join(configDir, ".env"), ".env"}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			_ = godotenv.Load(p)
		}
	}
}

// ApplyEnv fills credentials that are not set in the file from the environment.
func ApplyEnv(cfg *Config) {
	if cfg.Embedding.APIKey == "" {
		cfg.Embedding.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.Generation.APIKey == "" {
		switch cfg.Generation.Provider {
		case "anthropic":
			cfg.Generation.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		default:
			cfg.Generation.APIKey = os.Getenv("OPENAI_API_KEY")
		}
	}
	if cfg.Vector.Qdrant.APIKey == "" {
		cfg.Vector.Qdrant.APIKey = os.Getenv("QDRANT_API_KEY")
	}
	if addr := os.Getenv("QDRANT_ADDRESS"); addr != "" && cfg.Vector.Qdrant.Address == "" {
		cfg.Vector.Qdrant.Address = addr
	}
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

// expandPath converts a path to absolute. Paths starting with "./" (or ".") are relative to configDir;
// other relative paths are relative to the home directory. Empty paths stay empty.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
