// Package models defines core data structures for documents, index nodes, and query results.
package models

import (
	"sort"
	"strconv"
	"strings"
)

// IndexKind names one of the two mutually exclusive index shapes.
type IndexKind string

const (
	// IndexHierarchical is the parent/child linked, multi-tier chunked index.
	IndexHierarchical IndexKind = "hierarchical"
	// IndexTraditional is the flat index with one node per document.
	IndexTraditional IndexKind = "traditional"
)

// Valid reports whether k is a known index kind.
func (k IndexKind) Valid() bool {
	return k == IndexHierarchical || k == IndexTraditional
}

// HierarchyLevel is the structural tier a document or node belongs to.
type HierarchyLevel string

const (
	LevelSection  HierarchyLevel = "Section"
	LevelChapter  HierarchyLevel = "Chapter"
	LevelModule   HierarchyLevel = "Module"
	LevelVolume   HierarchyLevel = "Volume"
	LevelDocument HierarchyLevel = "Document"
)

// ExtractedMetadata holds the structural fields pattern-matched out of rulebook text.
// A zero value means the field was not found.
type ExtractedMetadata struct {
	VolumeNumber     string `json:"volume_number,omitempty"`
	VolumeType       string `json:"volume_type,omitempty"`
	ModuleCode       string `json:"module_code,omitempty"`
	ModuleCategory   string `json:"module_category,omitempty"`
	ChapterReference string `json:"chapter_reference,omitempty"`
	ChapterType      string `json:"chapter_type,omitempty"`
	SectionReference string `json:"section_reference,omitempty"`
	PageNumber       int    `json:"page_number,omitempty"`
	TotalPages       int    `json:"total_pages,omitempty"`
	LastUpdated      string `json:"last_updated,omitempty"`
	UpdateMonth      string `json:"update_month,omitempty"`
	UpdateYear       int    `json:"update_year,omitempty"`
	LegalBasis       string `json:"legal_basis,omitempty"`
	InstrumentType   string `json:"instrument_type,omitempty"`
	AppliesTo        string `json:"applies_to,omitempty"`
	ContentType      string `json:"content_type,omitempty"`
}

// Merge copies every present field of other into m. Absent fields in other leave m unchanged.
func (m *ExtractedMetadata) Merge(other ExtractedMetadata) {
	setString(&m.VolumeNumber, other.VolumeNumber)
	setString(&m.VolumeType, other.VolumeType)
	setString(&m.ModuleCode, other.ModuleCode)
	setString(&m.ModuleCategory, other.ModuleCategory)
	setString(&m.ChapterReference, other.ChapterReference)
	setString(&m.ChapterType, other.ChapterType)
	setString(&m.SectionReference, other.SectionReference)
	setInt(&m.PageNumber, other.PageNumber)
	setInt(&m.TotalPages, other.TotalPages)
	setString(&m.LastUpdated, other.LastUpdated)
	setString(&m.UpdateMonth, other.UpdateMonth)
	setInt(&m.UpdateYear, other.UpdateYear)
	setString(&m.LegalBasis, other.LegalBasis)
	setString(&m.InstrumentType, other.InstrumentType)
	setString(&m.AppliesTo, other.AppliesTo)
	setString(&m.ContentType, other.ContentType)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

// NodeMetadata is the full metadata carried by an index node: the extracted fields plus
// loader-supplied and enrichment fields.
type NodeMetadata struct {
	ExtractedMetadata

	Filename             string         `json:"filename,omitempty"`
	FilePath             string         `json:"file_path,omitempty"`
	PageLabel            string         `json:"page_label,omitempty"`
	HierarchyLevel       HierarchyLevel `json:"hierarchy_level,omitempty"`
	SearchTags           []string       `json:"search_tags,omitempty"`
	RegulatoryImportance float64        `json:"regulatory_importance,omitempty"`
	NodeID               string         `json:"node_id,omitempty"`
	NodeLength           int            `json:"node_length,omitempty"`
	NodeContentType      string         `json:"node_content_type,omitempty"`
	ParagraphReferences  []string       `json:"paragraph_references,omitempty"`
}

// Clone returns a deep copy so child nodes never share slices with their parent.
func (m NodeMetadata) Clone() NodeMetadata {
	out := m
	if m.SearchTags != nil {
		out.SearchTags = append([]string(nil), m.SearchTags...)
	}
	if m.ParagraphReferences != nil {
		out.ParagraphReferences = append([]string(nil), m.ParagraphReferences...)
	}
	return out
}

// Lookup returns the stringified value of the field with the given JSON name.
// The second result is false when the field is unknown or absent.
func (m *NodeMetadata) Lookup(field string) (string, bool) {
	var s string
	switch field {
	case "volume_number":
		s = m.VolumeNumber
	case "volume_type":
		s = m.VolumeType
	case "module_code":
		s = m.ModuleCode
	case "module_category":
		s = m.ModuleCategory
	case "chapter_reference":
		s = m.ChapterReference
	case "chapter_type":
		s = m.ChapterType
	case "section_reference":
		s = m.SectionReference
	case "page_number":
		return intField(m.PageNumber)
	case "total_pages":
		return intField(m.TotalPages)
	case "last_updated":
		s = m.LastUpdated
	case "update_month":
		s = m.UpdateMonth
	case "update_year":
		return intField(m.UpdateYear)
	case "legal_basis":
		s = m.LegalBasis
	case "instrument_type":
		s = m.InstrumentType
	case "applies_to":
		s = m.AppliesTo
	case "content_type":
		s = m.ContentType
	case "filename":
		s = m.Filename
	case "file_path":
		s = m.FilePath
	case "page_label":
		s = m.PageLabel
	case "hierarchy_level":
		s = string(m.HierarchyLevel)
	case "search_tags":
		s = strings.Join(m.SearchTags, ",")
	case "regulatory_importance":
		return strconv.FormatFloat(m.RegulatoryImportance, 'g', -1, 64), true
	case "node_id":
		s = m.NodeID
	case "node_length":
		return intField(m.NodeLength)
	case "node_content_type":
		s = m.NodeContentType
	case "paragraph_references":
		s = strings.Join(m.ParagraphReferences, ",")
	default:
		return "", false
	}
	return s, s != ""
}

func intField(v int) (string, bool) {
	if v == 0 {
		return "", false
	}
	return strconv.Itoa(v), true
}

// SortedSet returns the distinct values of items in ascending order, or nil when items is empty.
func SortedSet(items []string) []string {
	if len(items) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, it := range items {
		if _, ok := seen[it]; ok {
			continue
		}
		seen[it] = struct{}{}
		out = append(out, it)
	}
	sort.Strings(out)
	return out
}

// Document is raw text produced by the loader for one source file.
type Document struct {
	ID       string       `json:"id"`
	Filename string       `json:"filename"`
	Path     string       `json:"path"`
	Text     string       `json:"text"`
	Metadata NodeMetadata `json:"metadata"`
}

// Node is a chunk of text owned by an index, with its metadata and tree links.
// Tier 0 holds the largest chunks; ChildIDs point one tier down.
type Node struct {
	ID         string       `json:"id"`
	DocumentID string       `json:"document_id"`
	Text       string       `json:"text"`
	Tier       int          `json:"tier"`
	ChunkIndex int          `json:"chunk_index"`
	ParentID   string       `json:"parent_id,omitempty"`
	PrevID     string       `json:"prev_id,omitempty"`
	NextID     string       `json:"next_id,omitempty"`
	ChildIDs   []string     `json:"child_ids,omitempty"`
	Metadata   NodeMetadata `json:"metadata"`
	Embedding  []float32    `json:"-"`
}

// ScoredNode is a retrieval hit.
type ScoredNode struct {
	Node  *Node   `json:"node"`
	Score float64 `json:"score"`
}
