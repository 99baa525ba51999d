package models

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrEmptyQuery is returned when a query request has no text.
	ErrEmptyQuery = errors.New("query cannot be empty")
	// ErrUnknownIndexKind is returned for a kind other than hierarchical or traditional.
	ErrUnknownIndexKind = errors.New("unknown index kind")
)

// QueryRequest is a question against one index kind, optionally narrowed by volume selection.
type QueryRequest struct {
	Query     string    `json:"query"`
	Kind      IndexKind `json:"kind,omitempty"`
	BeamWidth int       `json:"beam_width,omitempty"`
	TopK      int       `json:"top_k,omitempty"`
	// SkipVolumeSelection queries the whole index without the LLM volume pre-filter.
	SkipVolumeSelection bool `json:"skip_volume_selection,omitempty"`
	// Filters are extra metadata allow-lists merged with the volume filters.
	Filters map[string][]string `json:"filters,omitempty"`
}

// Validate ensures the request has a query and applies defaults for kind and beam width.
func (q *QueryRequest) Validate(defaultBeamWidth int) error {
	q.Query = strings.TrimSpace(q.Query)
	if q.Query == "" {
		return ErrEmptyQuery
	}
	if q.Kind == "" {
		q.Kind = IndexHierarchical
	}
	if !q.Kind.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownIndexKind, q.Kind)
	}
	if q.BeamWidth <= 0 {
		q.BeamWidth = defaultBeamWidth
	}
	if q.BeamWidth > 8 {
		q.BeamWidth = 8
	}
	return nil
}
