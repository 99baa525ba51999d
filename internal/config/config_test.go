package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hyperjump/rulebook/internal/models"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  host: "127.0.0.1"
  port: 9000
storage:
  data_dir: "/srv/rulebook/docs"
query:
  beam_width: 2
  retrieval_mode: hybrid
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Storage.DataDir != "/srv/rulebook/docs" {
		t.Errorf("data_dir = %s", cfg.Storage.DataDir)
	}
	if cfg.Query.BeamWidth != 2 || cfg.Query.RetrievalMode != "hybrid" {
		t.Errorf("unexpected query config: %+v", cfg.Query)
	}
	if cfg.Debug {
		t.Error("debug should default to false when unset")
	}
}

func TestLoad_debugTrue(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("debug: true\n"), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Debug {
		t.Error("debug should be true when set in config")
	}
}

func TestLoad_expandPathDotSlashRelativeToConfigDir(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
storage:
  data_dir: "./data/docs"
  hierarchical_index_path: "./data/indices/hier"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(dir, "data", "docs"); cfg.Storage.DataDir != want {
		t.Errorf("data_dir = %s, want %s", cfg.Storage.DataDir, want)
	}
	if want := filepath.Join(dir, "data", "indices", "hier"); cfg.Storage.IndexPath(models.IndexHierarchical) != want {
		t.Errorf("hierarchical path = %s, want %s", cfg.Storage.IndexPath(models.IndexHierarchical), want)
	}
}

func TestLoad_invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad yaml", "server: [\n"},
		{"unknown provider", "embedding:\n  provider: magic\n"},
		{"unknown retrieval mode", "query:\n  retrieval_mode: graph\n"},
		{"overlap exceeds chunk", "index:\n  chunk_sizes: [64]\n  chunk_overlap: 100\n"},
		{"negative overlap", "index:\n  chunk_overlap: -1\n"},
		{"unknown watch kind", "watch:\n  kinds: [graph]\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(path, []byte(tt.content), 0600); err != nil {
				t.Fatal(err)
			}
			if _, err := Load(path); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoad_missingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Server.Host != "localhost" {
		t.Errorf("default host: got %s", cfg.Server.Host)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("default port: got %d", cfg.Server.Port)
	}
	if len(cfg.Index.ChunkSizes) != 3 || cfg.Index.ChunkSizes[0] != 1024 || cfg.Index.ChunkSizes[2] != 256 {
		t.Errorf("default chunk sizes: got %v", cfg.Index.ChunkSizes)
	}
	if cfg.Index.ChunkOverlap != 100 {
		t.Errorf("default chunk overlap: got %d", cfg.Index.ChunkOverlap)
	}
	if len(cfg.Index.Extensions) != 1 || cfg.Index.Extensions[0] != ".pdf" {
		t.Errorf("default extensions: got %v", cfg.Index.Extensions)
	}
	if cfg.Index.Workers < 1 {
		t.Errorf("default workers: got %d", cfg.Index.Workers)
	}
	if cfg.Query.TopK != 20 || cfg.Query.BeamWidth != 3 {
		t.Errorf("default query: got %+v", cfg.Query)
	}
	if cfg.Query.KeywordWeight != 0.3 || cfg.Query.SemanticWeight != 0.7 {
		t.Errorf("default weights: got %+v", cfg.Query)
	}
	if len(cfg.Watch.Kinds) != 1 || cfg.Watch.Kinds[0] != models.IndexHierarchical {
		t.Errorf("default watch kinds: got %v", cfg.Watch.Kinds)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestApplyDefaults_keepsMeaningfulZeros(t *testing.T) {
	cfg := &Config{Query: QueryConfig{SemanticWeight: 1}}
	ApplyDefaults(cfg)
	if cfg.Index.ChunkOverlap != 0 {
		t.Errorf("zero overlap should stay zero, got %d", cfg.Index.ChunkOverlap)
	}
	if cfg.Query.KeywordWeight != 0 || cfg.Query.SemanticWeight != 1 {
		t.Errorf("a single zero weight should be kept: %+v", cfg.Query)
	}
	if cfg.Server.MaxUploadMB != DefaultMaxUploadMB {
		t.Errorf("max upload = %d", cfg.Server.MaxUploadMB)
	}
}

func TestLoad_explicitZeros(t *testing.T) {
	tests := []struct {
		name    string
		content string
		check   func(*Config) bool
	}{
		{"absent overlap defaults", "debug: false\n", func(c *Config) bool { return c.Index.ChunkOverlap == DefaultChunkOverlap }},
		{"zero overlap kept", "index:\n  chunk_overlap: 0\n", func(c *Config) bool { return c.Index.ChunkOverlap == 0 }},
		{"zero keyword weight kept", "query:\n  keyword_weight: 0\n  semantic_weight: 1\n", func(c *Config) bool {
			return c.Query.KeywordWeight == 0 && c.Query.SemanticWeight == 1
		}},
		{"zero semantic weight kept", "query:\n  keyword_weight: 1\n  semantic_weight: 0\n", func(c *Config) bool {
			return c.Query.KeywordWeight == 1 && c.Query.SemanticWeight == 0
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(path, []byte(tt.content), 0600); err != nil {
				t.Fatal(err)
			}
			cfg, err := Load(path)
			if err != nil {
				t.Fatal(err)
			}
			if !tt.check(cfg) {
				t.Errorf("unexpected config: index=%+v query=%+v", cfg.Index, cfg.Query)
			}
		})
	}
}

func TestApplyDefaults_embeddingDimensions(t *testing.T) {
	tests := []struct {
		provider string
		want     int
	}{
		{"", 0},
		{"openai", 0},
		{"onnx", DefaultLocalDimensions},
		{"mock", DefaultLocalDimensions},
	}
	for _, tt := range tests {
		cfg := &Config{Embedding: EmbeddingConfig{Provider: tt.provider}}
		ApplyDefaults(cfg)
		if cfg.Embedding.Dimensions != tt.want {
			t.Errorf("provider %q: dimensions = %d, want %d", tt.provider, cfg.Embedding.Dimensions, tt.want)
		}
	}
}

func TestStorageConfig_IndexPath(t *testing.T) {
	s := StorageConfig{HierarchicalIndexPath: "/h", TraditionalIndexPath: "/t"}
	if s.IndexPath(models.IndexHierarchical) != "/h" || s.IndexPath(models.IndexTraditional) != "/t" {
		t.Error("unexpected index paths")
	}
	if s.IndexPath("graph") != "" {
		t.Error("unknown kind should have no path")
	}
}

func TestSave(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "saved.yaml")
	cfg := &Config{Server: ServerConfig{Host: "localhost", Port: 9090}}
	ApplyDefaults(cfg)
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Server.Port != 9090 {
		t.Errorf("loaded port: got %d", loaded.Server.Port)
	}
}
