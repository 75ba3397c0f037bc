// Package quality computes 1-10 pre-publication quality scores for
// candidates. A fixed heuristic rubric always works; a trained regression
// model is preferred when available, with transparent fallback.
package quality

import (
	"math"
	"strings"

	"github.com/osena/curator/internal/domain/model"
)

// Rubric thresholds.
const (
	longBodyWords     = 800
	mediumBodyWords   = 400
	titleMinChars     = 30
	titleMaxChars     = 100
	titleMinWords     = 4
	minHeadings       = 2
	minParagraphs     = 3
	minTags           = 2
	specCoverageBonus = 0.70
	scoreMin          = 1
	scoreMax          = 10
)

// keySpecFields is the fixed 10-field set used for the spec-coverage bonus.
var keySpecFields = []string{
	"brand", "model", "price", "weight", "dimensions",
	"color", "material", "warranty", "release_year", "category",
}

// garbageMarkers disqualify the second title point when present.
var garbageMarkers = []string{"???", "!!!", "###", "{{", "}}", "$(", "<<", ">>", "null", "undefined"}

// placeholderMarkers are red flags anywhere in the body.
var placeholderMarkers = []string{"lorem ipsum", "placeholder", "coming soon", "tbd", "to be determined", "[todo]", "xxx"}

// HeuristicScore computes the rubric score for a candidate: an integer in
// [1,10]. The raw rubric points are rescaled against the maximum achievable
// (9 when the image point is not eligible, 10 when it is; the spec-coverage
// bonus can only push the raw total up and is absorbed by clamping).
func HeuristicScore(c *model.Candidate) int {
	doc := AnalyzeBody(c.Body)

	points := 0

	// Body length.
	switch {
	case doc.WordCount >= longBodyWords:
		points += 2
	case doc.WordCount >= mediumBodyWords:
		points++
	}

	// Title quality.
	title := strings.TrimSpace(c.Title)
	titleWords := len(strings.Fields(title))
	if len(title) >= titleMinChars && len(title) <= titleMaxChars && titleWords >= titleMinWords {
		points++
	}
	if title != "" && !isAllCaps(title) && !containsAny(strings.ToLower(title), garbageMarkers) {
		points++
	}

	// Structure.
	if doc.HeadingCount >= minHeadings {
		points++
	}
	if doc.ParagraphCount >= minParagraphs {
		points++
	}

	// Media. The image point is only achievable for items that can carry
	// images: HTML bodies or sources that report image metadata.
	imageEligible := doc.IsHTML || c.ImageCount > 0
	if c.ImageCount > 0 || doc.ImageCount > 0 {
		points++
	}

	// Structured specs.
	if filledSpecCount(c.Specs) > 0 {
		points++
	}

	// Tags.
	if len(c.Tags) >= minTags {
		points++
	}

	// Red flags.
	if !hasRedFlags(c.Body, doc) {
		points++
	}

	// Spec coverage bonus over the fixed key-field set.
	if keySpecCoverage(c.Specs) >= specCoverageBonus {
		points++
	}

	maxPoints := 9
	if imageEligible {
		maxPoints = 10
	}

	score := int(math.Round(float64(points) / float64(maxPoints) * float64(scoreMax)))
	if score < scoreMin {
		return scoreMin
	}
	if score > scoreMax {
		return scoreMax
	}
	return score
}

// isAllCaps reports whether every letter in s is uppercase.
func isAllCaps(s string) bool {
	hasLetter := false
	for _, r := range s {
		if r >= 'a' && r <= 'z' {
			return false
		}
		if r >= 'A' && r <= 'Z' {
			hasLetter = true
		}
	}
	return hasLetter
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

// filledSpecCount counts non-empty spec values.
func filledSpecCount(specs map[string]string) int {
	n := 0
	for _, v := range specs {
		if strings.TrimSpace(v) != "" {
			n++
		}
	}
	return n
}

// keySpecCoverage returns the filled fraction of the fixed key-spec set.
func keySpecCoverage(specs map[string]string) float64 {
	if len(specs) == 0 {
		return 0
	}
	filled := 0
	for _, key := range keySpecFields {
		if strings.TrimSpace(specs[key]) != "" {
			filled++
		}
	}
	return float64(filled) / float64(len(keySpecFields))
}

// hasRedFlags reports placeholder markers or heavily repetitive prose.
func hasRedFlags(body string, doc BodyAnalysis) bool {
	lower := strings.ToLower(body)
	if containsAny(lower, placeholderMarkers) {
		return true
	}
	return repetitiveSentenceRatio(doc.Text) > 0.5
}

// repetitiveSentenceRatio returns the fraction of sentences that are
// duplicates of an earlier sentence.
func repetitiveSentenceRatio(text string) float64 {
	sentences := strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '!' || r == '?'
	})

	total := 0
	seen := map[string]bool{}
	duplicates := 0
	for _, s := range sentences {
		norm := model.NormalizeText(s)
		if norm == "" {
			continue
		}
		total++
		if seen[norm] {
			duplicates++
		}
		seen[norm] = true
	}

	if total == 0 {
		return 0
	}
	return float64(duplicates) / float64(total)
}
