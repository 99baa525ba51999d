package metadata

import (
	"math"
	"strings"
	"time"

	"github.com/hyperjump/rulebook/internal/models"
)

// CategoryPrudential is the module category that raises importance.
const CategoryPrudential = "Prudential"

// RecentYears is how many years back an update still counts as recent.
const RecentYears = 5

// Clock supplies the reference time for recency scoring.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time { return time.Now() }

// FixedClock always returns the same instant.
type FixedClock time.Time

// Now returns the fixed instant.
func (c FixedClock) Now() time.Time { return time.Time(c) }

// Scorer computes a heuristic regulatory importance in [0, 1].
type Scorer struct {
	clock Clock
}

// NewScorer creates a scorer. A nil clock means SystemClock.
func NewScorer(clock Clock) *Scorer {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Scorer{clock: clock}
}

// Score adds 0.3 for Rule content, 0.2 for an update within RecentYears of the clock's year,
// 0.2 for enforcement language, 0.2 for Prudential modules and 0.1 for a legal basis.
// The sum is capped at 1.0 and rounded to one decimal.
func (s *Scorer) Score(m models.ExtractedMetadata, text string) float64 {
	score := 0.0
	if m.ContentType == ContentRule {
		score += 0.3
	}
	if m.UpdateYear >= s.clock.Now().Year()-RecentYears {
		score += 0.2
	}
	lower := strings.ToLower(text)
	if strings.Contains(lower, "enforcement") || strings.Contains(lower, "penalty") || strings.Contains(lower, "sanction") {
		score += 0.2
	}
	if m.ModuleCategory == CategoryPrudential {
		score += 0.2
	}
	if m.LegalBasis != "" {
		score += 0.1
	}
	return math.Round(math.Min(score, 1.0)*10) / 10
}
