// Package retrieval provides base similarity retrievers over a loaded index and the
// metadata filtering wrapper applied on top of them.
package retrieval

import (
	"context"
	"fmt"

	"github.com/hyperjump/rulebook/internal/embedding"
	"github.com/hyperjump/rulebook/internal/keyword"
	"github.com/hyperjump/rulebook/internal/models"
	"github.com/hyperjump/rulebook/internal/vector"
	"golang.org/x/sync/errgroup"
)

// DefaultTopK is the candidate window size when none is configured.
const DefaultTopK = 20

// Modes accepted by New.
const (
	ModeVector  = "vector"
	ModeKeyword = "keyword"
	ModeHybrid  = "hybrid"
)

// Retriever returns a ranked candidate window, already capped to its configured size.
type Retriever interface {
	Retrieve(ctx context.Context, query string) ([]*models.ScoredNode, error)
}

// NodeSource resolves node ids to nodes.
type NodeSource interface {
	Node(id string) *models.Node
}

// resolve maps ids to nodes in order, dropping ids the source does not know.
func resolve(src NodeSource, ids []string, scores map[string]float64) []*models.ScoredNode {
	out := make([]*models.ScoredNode, 0, len(ids))
	for _, id := range ids {
		n := src.Node(id)
		if n == nil {
			continue
		}
		out = append(out, &models.ScoredNode{Node: n, Score: scores[id]})
	}
	return out
}

// VectorRetriever embeds the query and runs a nearest-neighbor search.
type VectorRetriever struct {
	embedder embedding.Embedder
	index    vector.VectorIndex
	nodes    NodeSource
	topK     int
}

// NewVectorRetriever creates a vector retriever returning at most topK nodes.
func NewVectorRetriever(embedder embedding.Embedder, index vector.VectorIndex, nodes NodeSource, topK int) *VectorRetriever {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &VectorRetriever{embedder: embedder, index: index, nodes: nodes, topK: topK}
}

// Retrieve implements Retriever.
func (r *VectorRetriever) Retrieve(ctx context.Context, query string) ([]*models.ScoredNode, error) {
	results, err := r.search(ctx, query, r.topK)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(results))
	for i, res := range results {
		ids[i] = res.ID
	}
	return resolve(r.nodes, ids, NormalizeSemanticScores(results)), nil
}

func (r *VectorRetriever) search(ctx context.Context, query string, k int) ([]*vector.VectorResult, error) {
	emb, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding failed: %w", err)
	}
	results, err := r.index.Search(ctx, emb, k)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	return results, nil
}

// KeywordRetriever runs a bleve match query over node text and metadata facets.
type KeywordRetriever struct {
	index keyword.KeywordIndex
	nodes NodeSource
	topK  int
	opts  *keyword.SearchOptions
}

// NewKeywordRetriever creates a keyword retriever returning at most topK nodes. opts may be nil.
func NewKeywordRetriever(index keyword.KeywordIndex, nodes NodeSource, topK int, opts *keyword.SearchOptions) *KeywordRetriever {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &KeywordRetriever{index: index, nodes: nodes, topK: topK, opts: opts}
}

// Retrieve implements Retriever.
func (r *KeywordRetriever) Retrieve(ctx context.Context, query string) ([]*models.ScoredNode, error) {
	results, err := r.index.Search(ctx, query, r.topK, r.opts)
	if err != nil {
		return nil, fmt.Errorf("keyword search failed: %w", err)
	}
	ids := make([]string, len(results))
	scores := make(map[string]float64, len(results))
	for i, res := range results {
		ids[i] = res.ID
		scores[res.ID] = res.Score
	}
	return resolve(r.nodes, ids, scores), nil
}

// HybridRetriever fuses normalized keyword and semantic scores.
type HybridRetriever struct {
	vector         *VectorRetriever
	keyword        *KeywordRetriever
	keywordWeight  float64
	semanticWeight float64
	topK           int
}

// NewHybridRetriever creates a hybrid retriever. Both sides fetch topK candidates;
// the fused list is capped to topK.
func NewHybridRetriever(v *VectorRetriever, k *KeywordRetriever, keywordWeight, semanticWeight float64, topK int) *HybridRetriever {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &HybridRetriever{vector: v, keyword: k, keywordWeight: keywordWeight, semanticWeight: semanticWeight, topK: topK}
}

// Retrieve implements Retriever.
func (r *HybridRetriever) Retrieve(ctx context.Context, query string) ([]*models.ScoredNode, error) {
	var (
		keywordResults  []*keyword.KeywordResult
		semanticResults []*vector.VectorResult
	)
	g, gctx := errgroup.WithContext(ctx)
	if r.keywordWeight > 0 {
		g.Go(func() error {
			res, err := r.keyword.index.Search(gctx, query, r.topK, r.keyword.opts)
			if err != nil {
				return fmt.Errorf("keyword search failed: %w", err)
			}
			keywordResults = res
			return nil
		})
	}
	if r.semanticWeight > 0 {
		g.Go(func() error {
			res, err := r.vector.search(gctx, query, r.topK)
			if err != nil {
				return err
			}
			semanticResults = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	fused := Fuse(NormalizeKeywordScores(keywordResults), NormalizeSemanticScores(semanticResults),
		r.keywordWeight, r.semanticWeight)
	if len(fused) > r.topK {
		fused = fused[:r.topK]
	}
	ids := make([]string, len(fused))
	scores := make(map[string]float64, len(fused))
	for i, f := range fused {
		ids[i] = f.ID
		scores[f.ID] = f.Score
	}
	return resolve(r.vector.nodes, ids, scores), nil
}

// Sources bundles what New needs to build a base retriever.
type Sources struct {
	Embedder embedding.Embedder
	Vectors  vector.VectorIndex
	Keyword  keyword.KeywordIndex
	Nodes    NodeSource
}

// New builds the base retriever for mode. Weights only apply to hybrid mode.
func New(mode string, src Sources, topK int, keywordWeight, semanticWeight float64) (Retriever, error) {
	switch mode {
	case ModeVector, "":
		return NewVectorRetriever(src.Embedder, src.Vectors, src.Nodes, topK), nil
	case ModeKeyword:
		return NewKeywordRetriever(src.Keyword, src.Nodes, topK, nil), nil
	case ModeHybrid:
		return NewHybridRetriever(
			NewVectorRetriever(src.Embedder, src.Vectors, src.Nodes, topK),
			NewKeywordRetriever(src.Keyword, src.Nodes, topK, nil),
			keywordWeight, semanticWeight, topK,
		), nil
	default:
		return nil, fmt.Errorf("unknown retrieval mode: %s (supported: vector, keyword, hybrid)", mode)
	}
}
