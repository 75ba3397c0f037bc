// Package engagement computes a 0-10 post-publication score from reader
// behavior signals.
package engagement

import (
	"math"

	"github.com/osena/curator/internal/domain/model"
)

// Sub-metric weights. The weighted sum of normalized [0,100] sub-metrics is
// divided by 10 and clamped to [0,10].
const (
	scrollWeight   = 0.30
	dwellWeight    = 0.25
	ratingWeight   = 0.15
	commentWeight  = 0.10
	helpfulWeight  = 0.10
	clickWeight    = 0.05
	negativeWeight = 0.05
)

// Normalization caps and defaults.
const (
	dwellCapSeconds    = 300 // dwell time capped at 5 minutes
	commentCap         = 10
	clickCap           = 5
	negativeReportCap  = 3
	neutralSubMetric   = 50.0 // used when a signal has no samples
	neutralScore       = 5.0
	fullConfidenceObservations = 3
)

// Score computes the engagement score for one publication's aggregate.
// Below fullConfidenceObservations independent reads the result shrinks
// toward the neutral 5.0; with zero observations it is exactly 5.0.
func Score(agg *model.EngagementAggregate) float64 {
	if agg == nil || agg.ReadObservations <= 0 {
		return neutralScore
	}

	computed := computedScore(agg)

	confidence := float64(agg.ReadObservations) / fullConfidenceObservations
	if confidence > 1 {
		confidence = 1
	}
	return neutralScore*(1-confidence) + computed*confidence
}

func computedScore(agg *model.EngagementAggregate) float64 {
	scroll := clampMetric(agg.AvgScrollDepth)

	dwell := clampMetric(agg.AvgDwellSeconds / dwellCapSeconds * 100)

	rating := neutralSubMetric
	if agg.RatingCount > 0 {
		avg := agg.RatingSum / float64(agg.RatingCount) // 1..5 scale
		rating = clampMetric((avg - 1) / 4 * 100)
	}

	comments := clampMetric(float64(minInt(agg.ApprovedComments, commentCap)) / commentCap * 100)

	helpful := neutralSubMetric
	if total := agg.HelpfulFeedback + agg.UnhelpfulFeedback; total > 0 {
		helpful = float64(agg.HelpfulFeedback) / float64(total) * 100
	}

	clicks := clampMetric(float64(minInt(agg.InternalLinkClicks, clickCap)) / clickCap * 100)

	negative := clampMetric(float64(minInt(agg.NegativeReports, negativeReportCap)) / negativeReportCap * 100)

	sum := scrollWeight*scroll +
		dwellWeight*dwell +
		ratingWeight*rating +
		commentWeight*comments +
		helpfulWeight*helpful +
		clickWeight*clicks -
		negativeWeight*negative

	return math.Max(0, math.Min(10, sum/10))
}

func clampMetric(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
