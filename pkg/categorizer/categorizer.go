// Package categorizer assigns an expense category by keyword scoring.
package categorizer

import (
	"github.com/ArionMiles/spendsense/pkg/api"
	"github.com/ArionMiles/spendsense/pkg/rules"
)

// Confidence bands keyed by the highest keyword match count.
const (
	ConfidenceNone   = 0.30
	ConfidenceOne    = 0.60
	ConfidenceTwo    = 0.80
	ConfidenceStrong = 0.95
)

// Result is a category decision.
type Result struct {
	Category   api.Category
	Confidence float64
	// Matches is the highest match count across all categories.
	Matches int
}

// Categorizer scores text against the category keyword sets of a rule library.
type Categorizer struct {
	lib *rules.Library
}

// New creates a categorizer. A nil library selects rules.Default().
func New(lib *rules.Library) *Categorizer {
	if lib == nil {
		lib = rules.Default()
	}
	return &Categorizer{lib: lib}
}

// Categorize scores merchant and message together. The category with the strictly
// highest count wins; ties go to the category declared first. No matches yields Other.
func (c *Categorizer) Categorize(merchant, message string) Result {
	text := rules.Fold(merchant + " " + message)

	best := api.CategoryOther
	maxMatches := 0
	for _, cat := range c.lib.Categories {
		n := rules.CountMatches(text, cat.Keywords)
		if n > maxMatches {
			maxMatches = n
			best = cat.Name
		}
	}

	return Result{
		Category:   best,
		Confidence: Confidence(maxMatches),
		Matches:    maxMatches,
	}
}

// Confidence maps a match count to its confidence band.
func Confidence(matches int) float64 {
	switch {
	case matches <= 0:
		return ConfidenceNone
	case matches == 1:
		return ConfidenceOne
	case matches == 2:
		return ConfidenceTwo
	default:
		return ConfidenceStrong
	}
}
