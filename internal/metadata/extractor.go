// Package metadata extracts structural and regulatory metadata from rulebook text and
// derives hierarchy levels, search tags, importance scores and per-node enrichment from it.
package metadata

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/hyperjump/rulebook/internal/models"
	"go.uber.org/zap"
)

// Content types returned by ContentType.
const (
	ContentRule     = "Rule"
	ContentGuidance = "Guidance"
	ContentUnknown  = "Unknown"
)

// CategoryOther is the fallback volume type and module category.
const CategoryOther = "Other"

var (
	volumePattern  = regexp.MustCompile(`(?i)Volume\s+(\d+):\s*([^\n]+)`)
	modulePattern  = regexp.MustCompile(`(?i)MODULE\s+([A-Z]{2,3}):\s*([^\n]+)`)
	chapterPattern = regexp.MustCompile(`(?i)CHAPTER\s+([A-Z]{2,3}-[A-Z0-9]+):\s*([^\n]+)`)
	sectionPattern = regexp.MustCompile(`(?i)Section\s+([A-Z]{2,3}-[A-Z0-9]+\.[0-9]+):\s*Page\s+(\d+)\s+of\s+(\d+)`)
	datePattern    = regexp.MustCompile(`(January|February|March|April|May|June|July|August|September|October|November|December)\s+(\d{4})`)
)

var ruleIndicators = []string{"must", "shall", "required", "obliged", "mandatory"}

var monthOrdinals = map[string]int{
	"January": 1, "February": 2, "March": 3, "April": 4,
	"May": 5, "June": 6, "July": 7, "August": 8,
	"September": 9, "October": 10, "November": 11, "December": 12,
}

// Extractor pattern-matches rulebook structure out of raw text. It never fails:
// a pattern that does not match leaves its fields at the zero value.
type Extractor struct {
	logger *zap.Logger
}

// ExtractorOption configures an Extractor.
type ExtractorOption func(*Extractor)

// WithLogger sets a logger that receives a debug event for each matched field group.
func WithLogger(l *zap.Logger) ExtractorOption {
	return func(e *Extractor) { e.logger = l }
}

// NewExtractor creates an extractor.
func NewExtractor(opts ...ExtractorOption) *Extractor {
	e := &Extractor{}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	return e
}

// Extract runs every field extractor over text and merges the results, including content_type.
func (e *Extractor) Extract(text string) models.ExtractedMetadata {
	var m models.ExtractedMetadata
	m.Merge(e.Volume(text))
	m.Merge(e.Module(text))
	m.Merge(e.Chapter(text))
	m.Merge(e.Section(text))
	m.Merge(e.Dates(text))
	m.Merge(e.RegulatoryContext(text))
	m.ContentType = ContentType(text)
	return m
}

// Volume extracts volume_number and volume_type from the first "Volume N: title" line.
func (e *Extractor) Volume(text string) models.ExtractedMetadata {
	match := volumePattern.FindStringSubmatch(text)
	if match == nil {
		return models.ExtractedMetadata{}
	}
	m := models.ExtractedMetadata{
		VolumeNumber: match[1],
		VolumeType:   volumeType(match[2]),
	}
	e.logger.Debug("extracted volume",
		zap.String("volume_number", m.VolumeNumber),
		zap.String("volume_type", m.VolumeType))
	return m
}

// Module extracts module_code and module_category from the first "MODULE XX: title" line.
func (e *Extractor) Module(text string) models.ExtractedMetadata {
	match := modulePattern.FindStringSubmatch(text)
	if match == nil {
		return models.ExtractedMetadata{}
	}
	m := models.ExtractedMetadata{
		ModuleCode:     match[1],
		ModuleCategory: moduleCategory(match[2]),
	}
	e.logger.Debug("extracted module",
		zap.String("module_code", m.ModuleCode),
		zap.String("module_category", m.ModuleCategory))
	return m
}

// Chapter extracts chapter_reference and chapter_type from the first "CHAPTER XX-Y: title" line.
func (e *Extractor) Chapter(text string) models.ExtractedMetadata {
	match := chapterPattern.FindStringSubmatch(text)
	if match == nil {
		return models.ExtractedMetadata{}
	}
	m := models.ExtractedMetadata{
		ChapterReference: match[1],
		ChapterType:      chapterType(match[1]),
	}
	e.logger.Debug("extracted chapter",
		zap.String("chapter_reference", m.ChapterReference),
		zap.String("chapter_type", m.ChapterType))
	return m
}

// Section extracts section_reference, page_number and total_pages from a section page footer.
func (e *Extractor) Section(text string) models.ExtractedMetadata {
	match := sectionPattern.FindStringSubmatch(text)
	if match == nil {
		return models.ExtractedMetadata{}
	}
	page, err := strconv.Atoi(match[2])
	if err != nil {
		return models.ExtractedMetadata{}
	}
	total, err := strconv.Atoi(match[3])
	if err != nil {
		return models.ExtractedMetadata{}
	}
	m := models.ExtractedMetadata{
		SectionReference: match[1],
		PageNumber:       page,
		TotalPages:       total,
	}
	e.logger.Debug("extracted section",
		zap.String("section_reference", m.SectionReference),
		zap.Int("page_number", m.PageNumber))
	return m
}

// Dates finds every "Month YYYY" pair and keeps the latest by (year, month).
func (e *Extractor) Dates(text string) models.ExtractedMetadata {
	matches := datePattern.FindAllStringSubmatch(text, -1)
	bestYear, bestMonth := -1, 0
	var bestName string
	for _, match := range matches {
		year, err := strconv.Atoi(match[2])
		if err != nil {
			continue
		}
		month := monthOrdinals[match[1]]
		if year > bestYear || (year == bestYear && month > bestMonth) {
			bestYear, bestMonth, bestName = year, month, match[1]
		}
	}
	if bestYear < 0 {
		return models.ExtractedMetadata{}
	}
	m := models.ExtractedMetadata{
		LastUpdated: bestName + " " + strconv.Itoa(bestYear),
		UpdateMonth: bestName,
		UpdateYear:  bestYear,
	}
	e.logger.Debug("extracted date", zap.String("last_updated", m.LastUpdated))
	return m
}

// RegulatoryContext sets legal_basis, instrument_type and applies_to from presence of key phrases.
func (e *Extractor) RegulatoryContext(text string) models.ExtractedMetadata {
	var m models.ExtractedMetadata
	if strings.Contains(text, "Article") && strings.Contains(text, "CBB Law") {
		m.LegalBasis = "CBB Law"
	}
	if strings.Contains(text, "pursuant to") {
		switch {
		case strings.Contains(text, "Regulation"):
			m.InstrumentType = "Regulation"
		case strings.Contains(text, "Directive"):
			m.InstrumentType = "Directive"
		}
	}
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "islamic bank"):
		m.AppliesTo = "Islamic Banks"
	case strings.Contains(lower, "conventional bank"):
		m.AppliesTo = "Conventional Banks"
	case strings.Contains(lower, "licensee"):
		m.AppliesTo = "All Licensees"
	}
	if m != (models.ExtractedMetadata{}) {
		e.logger.Debug("extracted regulatory context",
			zap.String("legal_basis", m.LegalBasis),
			zap.String("instrument_type", m.InstrumentType),
			zap.String("applies_to", m.AppliesTo))
	}
	return m
}

// ContentType classifies text as Rule when at least two distinct rule indicators occur,
// Guidance when it mentions "guidance" or "may", and Unknown otherwise. Matching is
// case-insensitive substring matching.
func ContentType(text string) string {
	lower := strings.ToLower(text)
	hits := 0
	for _, ind := range ruleIndicators {
		if strings.Contains(lower, ind) {
			hits++
		}
	}
	switch {
	case hits >= 2:
		return ContentRule
	case strings.Contains(lower, "guidance"), strings.Contains(lower, "may"):
		return ContentGuidance
	default:
		return ContentUnknown
	}
}

func volumeType(title string) string {
	t := strings.ToLower(title)
	switch {
	case strings.Contains(t, "islamic"):
		return "Islamic Banking"
	case strings.Contains(t, "conventional"):
		return "Conventional Banking"
	case strings.Contains(t, "insurance"):
		return "Insurance"
	case strings.Contains(t, "investment"):
		return "Investment Business"
	}
	return CategoryOther
}

func moduleCategory(title string) string {
	t := strings.ToLower(title)
	switch {
	case strings.Contains(t, "user") && strings.Contains(t, "guide"):
		return "Administrative"
	case strings.Contains(t, "capital"), strings.Contains(t, "prudential"):
		return CategoryPrudential
	case strings.Contains(t, "conduct"), strings.Contains(t, "business"):
		return "Business Standards"
	case strings.Contains(t, "reporting"):
		return "Reporting"
	case strings.Contains(t, "enforcement"):
		return "Enforcement"
	}
	return CategoryOther
}

func chapterType(reference string) string {
	if strings.HasSuffix(reference, "-A") {
		return "Introduction"
	}
	parts := strings.Split(reference, "-")
	if isDigits(parts[len(parts)-1]) {
		return "Substantive"
	}
	return CategoryOther
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
