package metadata

import "github.com/hyperjump/rulebook/internal/models"

// Classify returns the most specific hierarchy level the metadata supports.
// Every level above Document requires a volume number.
func Classify(m models.ExtractedMetadata) models.HierarchyLevel {
	if m.VolumeNumber == "" {
		return models.LevelDocument
	}
	switch {
	case m.SectionReference != "":
		return models.LevelSection
	case m.ChapterReference != "":
		return models.LevelChapter
	case m.ModuleCode != "":
		return models.LevelModule
	default:
		return models.LevelVolume
	}
}
