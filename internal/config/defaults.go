package config

import (
	"runtime"

	"github.com/hyperjump/rulebook/internal/models"
)

const (
	// DefaultMaxUploadMB caps an upload request when max_upload_mb is unset.
	DefaultMaxUploadMB = 100
	// DefaultChunkOverlap is the word overlap between neighbouring chunks.
	DefaultChunkOverlap = 100
	// DefaultLocalDimensions is the vector size assumed for the onnx and mock embedders.
	DefaultLocalDimensions = 384
)

// Default returns a config with every default applied. Load decodes the file over it, so a key
// missing from the file keeps its default while an explicit zero, such as chunk_overlap: 0, is kept.
func Default() *Config {
	cfg := &Config{}
	cfg.Index.ChunkOverlap = DefaultChunkOverlap
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults sets default values for zero values in cfg whose zero is not meaningful.
// ChunkOverlap is left alone since zero disables overlap; use Default for a fully populated config.
// The openai embedder keeps zero dimensions and adopts the size of the first vector it receives.
// Retrieval weights are only defaulted when both are zero.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.MaxUploadMB == 0 {
		cfg.Server.MaxUploadMB = DefaultMaxUploadMB
	}
	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = "/usr/local/var/rulebook/data/documents"
	}
	if cfg.Storage.HierarchicalIndexPath == "" {
		cfg.Storage.HierarchicalIndexPath = "/usr/local/var/rulebook/data/indices/hierarchical"
	}
	if cfg.Storage.TraditionalIndexPath == "" {
		cfg.Storage.TraditionalIndexPath = "/usr/local/var/rulebook/data/indices/traditional"
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "openai"
	}
	if cfg.Embedding.Host == "" {
		cfg.Embedding.Host = "http://localhost:11434/v1"
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "nomic-embed-text"
	}
	if cfg.Embedding.Dimensions == 0 && cfg.Embedding.Provider != "openai" {
		cfg.Embedding.Dimensions = DefaultLocalDimensions
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 256
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.LLM.Host == "" {
		cfg.LLM.Host = "http://localhost:11434/v1"
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "llama3.1"
	}
	if cfg.LLM.Token == "" {
		cfg.LLM.Token = "none"
	}
	if cfg.LLM.MaxTokens == 0 {
		cfg.LLM.MaxTokens = 1024
	}
	if len(cfg.Index.ChunkSizes) == 0 {
		cfg.Index.ChunkSizes = []int{1024, 512, 256}
	}
	if cfg.Index.Extensions == nil {
		cfg.Index.Extensions = []string{".pdf"}
	}
	if cfg.Index.RulebookPattern == "" {
		cfg.Index.RulebookPattern = "rulebook"
	}
	if cfg.Index.Workers == 0 {
		cfg.Index.Workers = max(1, runtime.NumCPU()/2)
	}
	if cfg.Query.TopK == 0 {
		cfg.Query.TopK = 20
	}
	if cfg.Query.BeamWidth == 0 {
		cfg.Query.BeamWidth = 3
	}
	if cfg.Query.VolumeConcurrency == 0 {
		cfg.Query.VolumeConcurrency = 1
	}
	if cfg.Query.RetrievalMode == "" {
		cfg.Query.RetrievalMode = "vector"
	}
	if cfg.Query.KeywordWeight == 0 && cfg.Query.SemanticWeight == 0 {
		cfg.Query.KeywordWeight = 0.3
		cfg.Query.SemanticWeight = 0.7
	}
	if cfg.Watch.DebounceMS == 0 {
		cfg.Watch.DebounceMS = 2000
	}
	if cfg.Watch.Kinds == nil {
		cfg.Watch.Kinds = []models.IndexKind{models.IndexHierarchical}
	}
}
