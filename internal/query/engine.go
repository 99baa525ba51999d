// Package query loads persisted indexes into query engines that retrieve filtered nodes and
// synthesize answers from them.
package query

import (
	"context"
	"fmt"

	"github.com/hyperjump/rulebook/internal/embedding"
	"github.com/hyperjump/rulebook/internal/models"
	"github.com/hyperjump/rulebook/internal/retrieval"
	"github.com/hyperjump/rulebook/internal/storage"
	"go.uber.org/zap"
)

// Response is an answer with the nodes it was grounded on.
type Response struct {
	Answer  string
	Sources []*models.ScoredNode
}

// Engine answers queries over one loaded index.
type Engine struct {
	kind      models.IndexKind
	index     *storage.Index
	retriever retrieval.FilteredRetriever
	synth     Synthesizer
	logger    *zap.Logger
}

// Kind returns the index kind the engine serves.
func (e *Engine) Kind() models.IndexKind { return e.kind }

// Manifest returns the manifest of the loaded index.
func (e *Engine) Manifest() storage.Manifest { return e.index.Manifest }

// Retrieve returns the filtered candidate window for q.
func (e *Engine) Retrieve(ctx context.Context, q string, filters retrieval.Filters) ([]*models.ScoredNode, error) {
	return e.retriever.Retrieve(ctx, q, filters)
}

// Query retrieves nodes for q and synthesizes an answer from them.
func (e *Engine) Query(ctx context.Context, q string, filters retrieval.Filters) (*Response, error) {
	sources, err := e.Retrieve(ctx, q, filters)
	if err != nil {
		return nil, fmt.Errorf("retrieve: %w", err)
	}
	e.logger.Debug("retrieved nodes", zap.Int("count", len(sources)), zap.Int("filters", len(filters)))
	answer, err := e.synth.Synthesize(ctx, q, sources)
	if err != nil {
		return nil, err
	}
	return &Response{Answer: answer, Sources: sources}, nil
}

// Close releases the loaded index.
func (e *Engine) Close() error {
	return e.index.Close()
}

// Factory loads persisted indexes into engines.
type Factory struct {
	Store          *storage.IndexStore
	Embedder       embedding.Embedder
	Synthesizer    Synthesizer
	Logger         *zap.Logger
	RetrievalMode  string
	KeywordWeight  float64
	SemanticWeight float64
}

// Load opens the index at indexPath and builds an engine retrieving at most topK candidates
// (default 20) before filtering. Any failure is an *IndexUnavailableError.
func (f *Factory) Load(ctx context.Context, kind models.IndexKind, indexPath string, topK int) (*Engine, error) {
	logger := f.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if topK <= 0 {
		topK = retrieval.DefaultTopK
	}
	ix, err := f.Store.Load(ctx, indexPath)
	if err != nil {
		logger.Error("failed to load index", zap.String("path", indexPath), zap.Error(err))
		return nil, &IndexUnavailableError{Path: indexPath, Err: err}
	}
	if dims := f.Embedder.Dimensions(); dims > 0 && ix.Manifest.Dimensions != dims {
		_ = ix.Close()
		err := fmt.Errorf("index has %d dimensions, embedder produces %d", ix.Manifest.Dimensions, dims)
		return nil, &IndexUnavailableError{Path: indexPath, Err: err}
	}
	base, err := retrieval.New(f.RetrievalMode, retrieval.Sources{
		Embedder: f.Embedder,
		Vectors:  ix.Vectors,
		Keyword:  ix.Keyword,
		Nodes:    ix,
	}, topK, f.KeywordWeight, f.SemanticWeight)
	if err != nil {
		_ = ix.Close()
		return nil, &IndexUnavailableError{Path: indexPath, Err: err}
	}
	logger.Info("query engine loaded",
		zap.String("kind", string(kind)),
		zap.String("path", indexPath),
		zap.Int("nodes", len(ix.Nodes)),
		zap.Int("top_k", topK))
	return &Engine{
		kind:      kind,
		index:     ix,
		retriever: retrieval.NewFilteringRetriever(base),
		synth:     f.Synthesizer,
		logger:    logger,
	}, nil
}
