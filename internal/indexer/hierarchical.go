package indexer

import (
	"github.com/hyperjump/rulebook/internal/fileid"
	"github.com/hyperjump/rulebook/internal/models"
)

// HierarchicalChunker splits a document into tiers of progressively smaller chunks.
// Every chunk of tier i+1 is cut from exactly one chunk of tier i.
type HierarchicalChunker struct {
	tiers []*Chunker
}

// NewHierarchicalChunker creates a chunker for sizes (largest first). The overlap is capped
// below each tier size.
func NewHierarchicalChunker(sizes []int, overlap int) *HierarchicalChunker {
	h := &HierarchicalChunker{}
	for _, size := range sizes {
		o := overlap
		if o >= size {
			o = size / 2
		}
		h.tiers = append(h.tiers, NewChunker(size, o))
	}
	return h
}

// Chunk returns the nodes of doc, parents before their children. Tier 0 nodes have no parent;
// siblings within one tier of the document are linked through PrevID and NextID. Each node
// carries a copy of the document metadata.
func (h *HierarchicalChunker) Chunk(doc *models.Document) []*models.Node {
	if len(h.tiers) == 0 {
		return nil
	}
	counters := make([]int, len(h.tiers))
	last := make([]*models.Node, len(h.tiers))
	var out []*models.Node

	var split func(parent *models.Node, text string, tier int)
	split = func(parent *models.Node, text string, tier int) {
		for _, chunk := range h.tiers[tier].Chunk(text) {
			n := &models.Node{
				ID:         fileid.NodeID(doc.ID, tier, counters[tier]),
				DocumentID: doc.ID,
				Text:       chunk,
				Tier:       tier,
				ChunkIndex: counters[tier],
				Metadata:   doc.Metadata.Clone(),
			}
			counters[tier]++
			if parent != nil {
				n.ParentID = parent.ID
				parent.ChildIDs = append(parent.ChildIDs, n.ID)
			}
			if prev := last[tier]; prev != nil {
				prev.NextID = n.ID
				n.PrevID = prev.ID
			}
			last[tier] = n
			out = append(out, n)
			if tier+1 < len(h.tiers) {
				split(n, chunk, tier+1)
			}
		}
	}
	split(nil, doc.Text, 0)
	return out
}
