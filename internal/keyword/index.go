// Package keyword provides keyword (BM25) indexing and search over index nodes.
package keyword

import (
	"context"

	"github.com/hyperjump/rulebook/internal/models"
)

// SearchOptions optional parameters for keyword search. Nil means use defaults.
type SearchOptions struct {
	// FilenameBoost multiplies the score contribution from matches in the source filename.
	// Values > 1 make filename matches rank higher. Use 1.0 for no boost.
	FilenameBoost float64
	// PhraseBoost multiplies the score when query terms appear close together (phrase match).
	PhraseBoost float64
	// FuzzyEnabled enables fuzzy matching for typo tolerance.
	FuzzyEnabled bool
	// Fuzziness is the maximum edit distance for fuzzy matching (1 or 2). Default 2.
	Fuzziness int
}

// KeywordIndex defines keyword search operations over nodes.
type KeywordIndex interface {
	IndexNodes(ctx context.Context, nodes []*models.Node) error
	Search(ctx context.Context, query string, limit int, opts *SearchOptions) ([]*KeywordResult, error)
	DocCount() (uint64, error)
	Close() error
}

// KeywordResult is a single keyword search hit; ID is a node ID.
type KeywordResult struct {
	ID    string
	Score float64
}
