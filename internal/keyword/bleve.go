package keyword

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	blevequery "github.com/blevesearch/bleve/v2/search/query"
	"github.com/hyperjump/rulebook/internal/models"
)

const batchSize = 500

// nodeDoc is the indexed form of a node.
type nodeDoc struct {
	Text           string   `json:"text"`
	Filename       string   `json:"filename"`
	VolumeNumber   string   `json:"volume_number"`
	ModuleCode     string   `json:"module_code"`
	HierarchyLevel string   `json:"hierarchy_level"`
	SearchTags     []string `json:"search_tags"`
}

// BleveIndex implements KeywordIndex using Bleve.
type BleveIndex struct {
	index bleve.Index
}

// NewBleveIndex creates or opens a Bleve index at path.
// An index is written once per build, so an existing path is opened as-is.
func NewBleveIndex(path string) (*BleveIndex, error) {
	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open Bleve index: %w", openErr)
		}
		return &BleveIndex{index: index}, nil
	}

	index, err := bleve.New(path, buildMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

// OpenBleveIndex opens an existing index read-only. Several readers may hold the same path.
func OpenBleveIndex(path string) (*BleveIndex, error) {
	index, err := bleve.OpenUsing(path, map[string]interface{}{"read_only": true})
	if err != nil {
		return nil, fmt.Errorf("failed to open Bleve index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

func buildMapping() *mapping.IndexMappingImpl {
	im := bleve.NewIndexMapping()

	docMapping := bleve.NewDocumentMapping()
	// standard analyzer: lowercase + tokenize, no stemming
	textFieldMapping := bleve.NewTextFieldMapping()
	textFieldMapping.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt("text", textFieldMapping)
	docMapping.AddFieldMappingsAt("filename", textFieldMapping)
	docMapping.AddFieldMappingsAt("search_tags", textFieldMapping)
	keywordFieldMapping := bleve.NewKeywordFieldMapping()
	docMapping.AddFieldMappingsAt("volume_number", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("module_code", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("hierarchy_level", keywordFieldMapping)
	im.AddDocumentMapping("node", docMapping)
	im.DefaultType = "node"
	im.DefaultMapping = docMapping
	return im
}

// IndexNodes indexes nodes in batches.
func (b *BleveIndex) IndexNodes(ctx context.Context, nodes []*models.Node) error {
	batch := b.index.NewBatch()
	for _, n := range nodes {
		if err := ctx.Err(); err != nil {
			return err
		}
		doc := nodeDoc{
			Text: n.Text,
			// standard analyzer does not split on underscores
			Filename:       strings.ReplaceAll(n.Metadata.Filename, "_", " "),
			VolumeNumber:   n.Metadata.VolumeNumber,
			ModuleCode:     n.Metadata.ModuleCode,
			HierarchyLevel: string(n.Metadata.HierarchyLevel),
			SearchTags:     n.Metadata.SearchTags,
		}
		if err := batch.Index(n.ID, doc); err != nil {
			return fmt.Errorf("batch node %s: %w", n.ID, err)
		}
		if batch.Size() >= batchSize {
			if err := b.index.Batch(batch); err != nil {
				return fmt.Errorf("index batch: %w", err)
			}
			batch = b.index.NewBatch()
		}
	}
	if batch.Size() > 0 {
		if err := b.index.Batch(batch); err != nil {
			return fmt.Errorf("index batch: %w", err)
		}
	}
	return nil
}

// Search runs a match query and returns up to limit results.
// When opts is nil or no boost exceeds 1, a single match over all fields is used.
// Otherwise filename and text are queried separately and merged additively,
// with a term coverage penalty and a phrase proximity boost.
func (b *BleveIndex) Search(ctx context.Context, query string, limit int, opts *SearchOptions) ([]*KeywordResult, error) {
	filenameBoost := 1.0
	phraseBoost := 1.0
	fuzzyEnabled := false
	fuzziness := 2
	if opts != nil {
		if opts.FilenameBoost > 0 {
			filenameBoost = opts.FilenameBoost
		}
		if opts.PhraseBoost > 0 {
			phraseBoost = opts.PhraseBoost
		}
		fuzzyEnabled = opts.FuzzyEnabled
		if opts.Fuzziness > 0 {
			fuzziness = opts.Fuzziness
		}
	}
	if limit <= 0 {
		return nil, nil
	}

	if filenameBoost <= 1.0 && phraseBoost <= 1.0 {
		return b.searchSingle(ctx, query, limit, fuzzyEnabled, fuzziness)
	}
	return b.searchWithBoosts(ctx, query, limit, filenameBoost, phraseBoost, fuzzyEnabled, fuzziness)
}

func (b *BleveIndex) searchSingle(ctx context.Context, query string, limit int, fuzzyEnabled bool, fuzziness int) ([]*KeywordResult, error) {
	var q blevequery.Query
	if fuzzyEnabled {
		q = buildFuzzyQuery(query, fuzziness, "")
	} else {
		q = bleve.NewMatchQuery(query)
	}
	req := bleve.NewSearchRequest(q)
	req.Size = limit
	results, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}
	out := make([]*KeywordResult, len(results.Hits))
	for i, hit := range results.Hits {
		out[i] = &KeywordResult{ID: hit.ID, Score: hit.Score}
	}
	return out, nil
}

func (b *BleveIndex) searchWithBoosts(ctx context.Context, query string, limit int, filenameBoost, phraseBoost float64, fuzzyEnabled bool, fuzziness int) ([]*KeywordResult, error) {
	reqSize := max(limit*2, 50)
	terms := tokenizeQuery(query)
	numTerms := len(terms)

	filenameScores, err := b.fieldScores(ctx, query, "filename", reqSize, fuzzyEnabled, fuzziness)
	if err != nil {
		return nil, err
	}
	textScores, err := b.fieldScores(ctx, query, "text", reqSize, fuzzyEnabled, fuzziness)
	if err != nil {
		return nil, err
	}

	coverage := make(map[string]int)
	if numTerms > 1 {
		coverage = b.termCoverage(ctx, terms, reqSize, fuzzyEnabled, fuzziness)
	}
	phraseMatches := make(map[string]bool)
	if phraseBoost > 1.0 && numTerms > 1 {
		phraseMatches = b.phraseMatches(ctx, query, reqSize)
	}

	ids := make(map[string]struct{}, len(filenameScores)+len(textScores))
	for id := range filenameScores {
		ids[id] = struct{}{}
	}
	for id := range textScores {
		ids[id] = struct{}{}
	}

	merged := make([]*KeywordResult, 0, len(ids))
	for id := range ids {
		score := filenameScores[id]*filenameBoost + textScores[id]
		if numTerms > 1 {
			// squared coverage: nodes matching only some terms fall well below full matches
			matched := max(coverage[id], 1)
			c := float64(matched) / float64(numTerms)
			score *= c * c
		}
		if phraseMatches[id] {
			score *= phraseBoost
		}
		merged = append(merged, &KeywordResult{ID: id, Score: score})
	}
	sort.Slice(merged, func(i, j int) bool {
		if merged[i].Score != merged[j].Score {
			return merged[i].Score > merged[j].Score
		}
		return merged[i].ID < merged[j].ID
	})
	if len(merged) > limit {
		merged = merged[:limit]
	}
	return merged, nil
}

func (b *BleveIndex) fieldScores(ctx context.Context, query, field string, size int, fuzzyEnabled bool, fuzziness int) (map[string]float64, error) {
	var q blevequery.Query
	if fuzzyEnabled {
		q = buildFuzzyQuery(query, fuzziness, field)
	} else {
		mq := bleve.NewMatchQuery(query)
		mq.SetField(field)
		q = mq
	}
	req := bleve.NewSearchRequest(q)
	req.Size = size
	results, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("Bleve %s search failed: %w", field, err)
	}
	scores := make(map[string]float64, len(results.Hits))
	for _, hit := range results.Hits {
		scores[hit.ID] = hit.Score
	}
	return scores, nil
}

// tokenizeQuery splits query into lowercase terms.
func tokenizeQuery(query string) []string {
	return strings.Fields(strings.ToLower(query))
}

// buildFuzzyQuery creates a disjunction of fuzzy queries, one per term.
// If field is empty, all fields are searched.
func buildFuzzyQuery(queryStr string, fuzziness int, field string) blevequery.Query {
	terms := tokenizeQuery(queryStr)
	if len(terms) == 0 {
		mq := bleve.NewMatchQuery(queryStr)
		if field != "" {
			mq.SetField(field)
		}
		return mq
	}
	queries := make([]blevequery.Query, 0, len(terms))
	for _, term := range terms {
		fq := bleve.NewFuzzyQuery(term)
		fq.SetFuzziness(fuzziness)
		if field != "" {
			fq.SetField(field)
		}
		queries = append(queries, fq)
	}
	if len(queries) == 1 {
		return queries[0]
	}
	return bleve.NewDisjunctionQuery(queries...)
}

// termCoverage counts how many distinct query terms each node matches.
func (b *BleveIndex) termCoverage(ctx context.Context, terms []string, size int, fuzzyEnabled bool, fuzziness int) map[string]int {
	coverage := make(map[string]int)
	for _, term := range terms {
		var q blevequery.Query
		if fuzzyEnabled {
			fq := bleve.NewFuzzyQuery(term)
			fq.SetFuzziness(fuzziness)
			q = fq
		} else {
			q = bleve.NewMatchQuery(term)
		}
		req := bleve.NewSearchRequest(q)
		req.Size = size
		results, err := b.index.SearchInContext(ctx, req)
		if err != nil {
			continue
		}
		for _, hit := range results.Hits {
			coverage[hit.ID]++
		}
	}
	return coverage
}

// phraseMatches finds nodes whose text contains the query as a phrase.
func (b *BleveIndex) phraseMatches(ctx context.Context, query string, size int) map[string]bool {
	matches := make(map[string]bool)
	pq := bleve.NewMatchPhraseQuery(query)
	pq.SetField("text")
	req := bleve.NewSearchRequest(pq)
	req.Size = size
	results, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return matches
	}
	for _, hit := range results.Hits {
		matches[hit.ID] = true
	}
	return matches
}

// DocCount returns the number of indexed nodes.
func (b *BleveIndex) DocCount() (uint64, error) {
	return b.index.DocCount()
}

// Close closes the Bleve index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}
