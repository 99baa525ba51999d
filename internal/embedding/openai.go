package embedding

import (
	"context"
	"fmt"
	"sync"

	"github.com/hyperjump/rulebook/internal/config"
	"github.com/hyperjump/rulebook/internal/vector"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"
)

// OpenAIEmbedder embeds text through any OpenAI-compatible embeddings endpoint.
// Results are L2-normalized so inner product equals cosine similarity. With no configured
// dimension, the size of the first vector received becomes the dimension.
type OpenAIEmbedder struct {
	embedder embeddings.Embedder
	cache    *EmbeddingCache
	logger   *zap.Logger

	mu         sync.RWMutex
	dimensions int
}

// NewOpenAIEmbedder creates an embedder against cfg.Host using cfg.Model.
func NewOpenAIEmbedder(cfg config.EmbeddingConfig, logger *zap.Logger) (*OpenAIEmbedder, error) {
	client, err := openai.New(
		openai.WithBaseURL(cfg.Host),
		openai.WithToken("none"),
		openai.WithEmbeddingModel(cfg.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("create embedding client: %w", err)
	}
	return newOpenAIEmbedder(client, cfg, logger)
}

func newOpenAIEmbedder(client embeddings.EmbedderClient, cfg config.EmbeddingConfig, logger *zap.Logger) (*OpenAIEmbedder, error) {
	emb, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true), embeddings.WithBatchSize(64))
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cacheSize := cfg.CacheSize
	if cacheSize <= 0 {
		cacheSize = 1000
	}
	return &OpenAIEmbedder{
		embedder:   emb,
		dimensions: cfg.Dimensions,
		cache:      NewEmbeddingCache(cacheSize),
		logger:     logger,
	}, nil
}

// Embed returns the embedding for text, using the cache when available.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if cached, ok := e.cache.Get(text); ok {
		return cached, nil
	}
	vec, err := e.embedder.EmbedQuery(ctx, text)
	if err != nil {
		e.logger.Error("failed to generate embedding", zap.Error(err))
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if err := e.check(vec); err != nil {
		return nil, err
	}
	vector.Normalize(vec)
	e.cache.Set(text, vec)
	return vec, nil
}

// EmbedBatch embeds texts in batches; the cache is not consulted.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.logger.Debug("generating embeddings", zap.Int("count", len(texts)))
	vecs, err := e.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		e.logger.Error("failed to generate embeddings", zap.Int("count", len(texts)), zap.Error(err))
		return nil, fmt.Errorf("embed documents: %w", err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("embed documents: got %d vectors for %d texts", len(vecs), len(texts))
	}
	for _, v := range vecs {
		if err := e.check(v); err != nil {
			return nil, err
		}
		vector.Normalize(v)
	}
	return vecs, nil
}

func (e *OpenAIEmbedder) check(vec []float32) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.dimensions == 0 && len(vec) > 0 {
		e.dimensions = len(vec)
		e.logger.Info("adopted embedding dimensions", zap.Int("dimensions", e.dimensions))
	}
	if len(vec) != e.dimensions {
		return fmt.Errorf("embedding has %d dimensions, expected %d", len(vec), e.dimensions)
	}
	return nil
}

// Dimensions returns the embedding dimension, or 0 before the first vector when none was configured.
func (e *OpenAIEmbedder) Dimensions() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.dimensions
}

// Close is a no-op; the HTTP client needs no cleanup.
func (e *OpenAIEmbedder) Close() error {
	return nil
}
