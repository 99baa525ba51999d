// Package config provides configuration loading and structs for the rulebook server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hyperjump/rulebook/internal/models"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	LLM       LLMConfig       `yaml:"llm"`
	Index     IndexConfig     `yaml:"index"`
	Query     QueryConfig     `yaml:"query"`
	Watch     WatchConfig     `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// MaxUploadMB caps the size of a single upload request.
	MaxUploadMB int `yaml:"max_upload_mb"`
}

// StorageConfig holds the source document directory and the root of each index kind.
type StorageConfig struct {
	DataDir               string `yaml:"data_dir"`
	HierarchicalIndexPath string `yaml:"hierarchical_index_path"`
	TraditionalIndexPath  string `yaml:"traditional_index_path"`
}

// IndexPath returns the configured root for kind, or "" for an unknown kind.
func (s *StorageConfig) IndexPath(kind models.IndexKind) string {
	switch kind {
	case models.IndexHierarchical:
		return s.HierarchicalIndexPath
	case models.IndexTraditional:
		return s.TraditionalIndexPath
	}
	return ""
}

// EmbeddingConfig selects and configures the embedder.
type EmbeddingConfig struct {
	// Provider is one of "mock", "onnx" or "openai".
	Provider   string `yaml:"provider"`
	ModelPath  string `yaml:"model_path"`
	Host       string `yaml:"host"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
	MaxTokens  int    `yaml:"max_tokens"`
	CacheSize  int    `yaml:"cache_size"`
}

// LLMConfig configures the OpenAI-compatible completion service used for volume scoring and answers.
type LLMConfig struct {
	Host        string  `yaml:"host"`
	Model       string  `yaml:"model"`
	Token       string  `yaml:"token"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// IndexConfig holds build and chunking settings.
type IndexConfig struct {
	// ChunkSizes are the hierarchical tiers in words, largest first.
	ChunkSizes      []int    `yaml:"chunk_sizes"`
	ChunkOverlap    int      `yaml:"chunk_overlap"`
	Extensions      []string `yaml:"extensions"`
	RulebookPattern string   `yaml:"rulebook_pattern"`
	Workers         int      `yaml:"workers"`
}

// QueryConfig holds retrieval and volume selection settings.
type QueryConfig struct {
	TopK              int `yaml:"top_k"`
	BeamWidth         int `yaml:"beam_width"`
	VolumeConcurrency int `yaml:"volume_concurrency"`
	// RetrievalMode is one of "vector", "keyword" or "hybrid".
	RetrievalMode  string  `yaml:"retrieval_mode"`
	KeywordWeight  float64 `yaml:"keyword_weight"`
	SemanticWeight float64 `yaml:"semantic_weight"`
}

// WatchConfig holds data directory watch settings.
type WatchConfig struct {
	Enabled    bool `yaml:"enabled"`
	DebounceMS int  `yaml:"debounce_ms"`
	// Kinds lists the index kinds rebuilt when the data directory changes.
	Kinds []models.IndexKind `yaml:"kinds"`
}

// Load reads the config file at path over Default, applies defaults to emptied fields and
// expands paths. Returns an error if the file cannot be read, parsed or validated.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	configDir := filepath.Dir(path)
	cfg.Storage.DataDir = expandPath(cfg.Storage.DataDir, configDir)
	cfg.Storage.HierarchicalIndexPath = expandPath(cfg.Storage.HierarchicalIndexPath, configDir)
	cfg.Storage.TraditionalIndexPath = expandPath(cfg.Storage.TraditionalIndexPath, configDir)
	if cfg.Embedding.ModelPath != "" {
		cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	}

	return cfg, nil
}

// Validate rejects settings that cannot be defaulted.
func (c *Config) Validate() error {
	switch c.Embedding.Provider {
	case "mock", "onnx", "openai":
	default:
		return fmt.Errorf("unknown embedding provider %q", c.Embedding.Provider)
	}
	switch c.Query.RetrievalMode {
	case "vector", "keyword", "hybrid":
	default:
		return fmt.Errorf("unknown retrieval mode %q", c.Query.RetrievalMode)
	}
	for _, size := range c.Index.ChunkSizes {
		if c.Index.ChunkOverlap < 0 || size <= c.Index.ChunkOverlap {
			return fmt.Errorf("chunk size %d must exceed overlap %d", size, c.Index.ChunkOverlap)
		}
	}
	for _, k := range c.Watch.Kinds {
		if !k.Valid() {
			return fmt.Errorf("unknown index kind %q in watch.kinds", k)
		}
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

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
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
