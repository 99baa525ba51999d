package metadata

import (
	"strings"

	"github.com/hyperjump/rulebook/internal/models"
)

// KeyTerms are scanned in lowercase text; each hit adds its title-cased form as a tag.
var KeyTerms = []string{"capital", "risk", "compliance", "reporting", "licensing", "governance"}

// GenerateTags returns the sorted, deduplicated union of metadata-derived tags and key-term tags.
func GenerateTags(m models.ExtractedMetadata, text string) []string {
	tags := make([]string, 0, 10)
	for _, v := range []string{m.VolumeType, m.ModuleCategory, m.ContentType, m.AppliesTo, m.InstrumentType} {
		if v != "" {
			tags = append(tags, v)
		}
	}
	lower := strings.ToLower(text)
	for _, term := range KeyTerms {
		if strings.Contains(lower, term) {
			tags = append(tags, strings.ToUpper(term[:1])+term[1:])
		}
	}
	return models.SortedSet(tags)
}

// ShouldTag reports whether document-level tags are worth attaching. Documents whose
// content type, volume type or module category fell back to Unknown or Other are left untagged.
func ShouldTag(m models.ExtractedMetadata) bool {
	for _, v := range []string{m.ContentType, m.VolumeType, m.ModuleCategory} {
		if v == ContentUnknown || v == CategoryOther {
			return false
		}
	}
	return true
}
