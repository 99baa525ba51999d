package retrieval

import (
	"context"

	"github.com/hyperjump/rulebook/internal/models"
)

// Filters maps a metadata field name to its allowed values.
type Filters map[string][]string

// FilteredRetriever retrieves with an optional metadata allow-list.
type FilteredRetriever interface {
	Retrieve(ctx context.Context, query string, filters Filters) ([]*models.ScoredNode, error)
}

// FilteringRetriever narrows the base retriever's candidate window by metadata.
// A node is kept when any filter key matches; the window is never refetched or backfilled,
// so heavy filtering can return fewer nodes than the base top-k, or none.
type FilteringRetriever struct {
	base Retriever
}

// NewFilteringRetriever wraps base.
func NewFilteringRetriever(base Retriever) *FilteringRetriever {
	return &FilteringRetriever{base: base}
}

// Retrieve implements FilteredRetriever.
func (r *FilteringRetriever) Retrieve(ctx context.Context, query string, filters Filters) ([]*models.ScoredNode, error) {
	candidates, err := r.base.Retrieve(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(filters) == 0 {
		return candidates, nil
	}
	allowed := make(map[string]map[string]struct{}, len(filters))
	for field, values := range filters {
		set := make(map[string]struct{}, len(values))
		for _, v := range values {
			set[v] = struct{}{}
		}
		allowed[field] = set
	}
	out := make([]*models.ScoredNode, 0, len(candidates))
	for _, c := range candidates {
		if matches(c.Node, allowed) {
			out = append(out, c)
		}
	}
	return out, nil
}

func matches(n *models.Node, allowed map[string]map[string]struct{}) bool {
	for field, set := range allowed {
		v, ok := n.Metadata.Lookup(field)
		if !ok {
			continue
		}
		if _, hit := set[v]; hit {
			return true
		}
	}
	return false
}
