// Package embedding provides text embedders (ONNX, OpenAI-compatible, mock) and an LRU cache.
package embedding

import (
	"context"
	"fmt"

	"github.com/hyperjump/rulebook/internal/config"
	"go.uber.org/zap"
)

// Embedder produces vector embeddings for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}

// New builds the embedder selected by cfg.Provider. logger may be nil.
func New(cfg config.EmbeddingConfig, logger *zap.Logger) (Embedder, error) {
	switch cfg.Provider {
	case "mock":
		return NewMockEmbedder(cfg.Dimensions), nil
	case "onnx":
		e, err := NewONNXEmbedder(cfg, logger)
		if err != nil {
			return nil, err
		}
		return e, nil
	case "openai", "":
		return NewOpenAIEmbedder(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s (supported: mock, onnx, openai)", cfg.Provider)
	}
}
