package metadata

import (
	"regexp"
	"unicode/utf8"

	"github.com/hyperjump/rulebook/internal/models"
)

var paragraphPattern = regexp.MustCompile(`[A-Z]{2,3}-[A-Z0-9]+\.[0-9]+\.[0-9]+`)

// Enricher attaches per-node fields computed from the node's own text.
type Enricher struct{}

// NewEnricher creates an enricher.
func NewEnricher() *Enricher { return &Enricher{} }

// Enrich sets node_content_type, node_length, node_id and paragraph_references on node.
// Running it twice yields the same fields.
func (en *Enricher) Enrich(node *models.Node) {
	if node == nil {
		return
	}
	node.Metadata.NodeContentType = ContentType(node.Text)
	node.Metadata.NodeLength = utf8.RuneCountInString(node.Text)
	node.Metadata.NodeID = node.ID
	if node.Metadata.NodeID == "" {
		node.Metadata.NodeID = "unknown"
	}
	node.Metadata.ParagraphReferences = ParagraphReferences(node.Text)
}

// ParagraphReferences returns the distinct paragraph citations (e.g. "CA-1.2.3") in text, sorted.
// It returns nil when there are none.
func ParagraphReferences(text string) []string {
	return models.SortedSet(paragraphPattern.FindAllString(text, -1))
}
