package indexer

import (
	"strings"
	"testing"

	"github.com/hyperjump/rulebook/internal/models"
)

func TestChunker_Chunk(t *testing.T) {
	c := NewChunker(3, 1)
	chunks := c.Chunk("one two three four five six seven")
	want := []string{"one two three", "three four five", "five six seven"}
	if len(chunks) != len(want) {
		t.Fatalf("expected %d chunks, got %d: %v", len(want), len(chunks), chunks)
	}
	for i := range want {
		if chunks[i] != want[i] {
			t.Errorf("chunk %d = %q, want %q", i, chunks[i], want[i])
		}
	}
}

func TestChunker_ChunkEmpty(t *testing.T) {
	c := NewChunker(5, 1)
	if chunks := c.Chunk("   \n\t  "); chunks != nil {
		t.Errorf("empty text should return nil, got %v", chunks)
	}
}

func TestChunker_OverlapNotBelowSize(t *testing.T) {
	c := NewChunker(2, 5)
	chunks := c.Chunk("a b c")
	if len(chunks) != 2 || chunks[1] != "b c" {
		t.Errorf("unexpected chunks %v", chunks)
	}
}

func words(n int) string {
	w := make([]string, n)
	for i := range w {
		w[i] = "w"
	}
	return strings.Join(w, " ")
}

func TestHierarchicalChunker_Links(t *testing.T) {
	doc := &models.Document{ID: "doc:1", Text: words(25)}
	doc.Metadata.VolumeNumber = "2"
	doc.Metadata.SearchTags = []string{"Risk"}

	nodes := NewHierarchicalChunker([]int{10, 4}, 2).Chunk(doc)
	byID := make(map[string]*models.Node, len(nodes))
	tierCount := map[int]int{}
	for _, n := range nodes {
		if byID[n.ID] != nil {
			t.Fatalf("duplicate node id %s", n.ID)
		}
		byID[n.ID] = n
		tierCount[n.Tier]++
	}
	// 25 words, size 10 step 8: windows at 0, 8, 16
	if tierCount[0] != 3 {
		t.Errorf("tier 0 count = %d, want 3", tierCount[0])
	}
	for _, n := range nodes {
		if n.Metadata.VolumeNumber != "2" {
			t.Errorf("node %s did not inherit metadata", n.ID)
		}
		if n.DocumentID != "doc:1" {
			t.Errorf("node %s document id = %q", n.ID, n.DocumentID)
		}
		switch n.Tier {
		case 0:
			if n.ParentID != "" {
				t.Errorf("tier 0 node %s has parent", n.ID)
			}
			if len(n.ChildIDs) == 0 {
				t.Errorf("tier 0 node %s has no children", n.ID)
			}
			for _, c := range n.ChildIDs {
				if byID[c] == nil || byID[c].ParentID != n.ID || byID[c].Tier != 1 {
					t.Errorf("child %s of %s not linked back", c, n.ID)
				}
			}
		case 1:
			if byID[n.ParentID] == nil {
				t.Errorf("tier 1 node %s has no parent", n.ID)
			}
			if len(strings.Fields(n.Text)) > 4 {
				t.Errorf("tier 1 node %s exceeds size", n.ID)
			}
		}
		if n.NextID != "" && byID[n.NextID].PrevID != n.ID {
			t.Errorf("sibling link broken at %s", n.ID)
		}
		if n.NextID != "" && byID[n.NextID].Tier != n.Tier {
			t.Errorf("sibling link crosses tiers at %s", n.ID)
		}
	}

	nodes[0].Metadata.SearchTags[0] = "changed"
	if nodes[1].Metadata.SearchTags[0] != "Risk" || doc.Metadata.SearchTags[0] != "Risk" {
		t.Error("nodes must not share metadata slices")
	}
}

func TestHierarchicalChunker_Deterministic(t *testing.T) {
	doc := &models.Document{ID: "doc:1", Text: words(40)}
	a := NewHierarchicalChunker([]int{16, 8, 4}, 2).Chunk(doc)
	b := NewHierarchicalChunker([]int{16, 8, 4}, 2).Chunk(doc)
	if len(a) != len(b) {
		t.Fatalf("node counts differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i].ID != b[i].ID {
			t.Fatalf("node %d id differs", i)
		}
	}
}
