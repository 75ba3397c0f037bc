// Package model contains domain models passed between layers.
package model

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CandidateStatus enumerates the review lifecycle of a candidate.
type CandidateStatus string

// Candidate lifecycle states. A candidate never regresses from Published
// to an earlier status.
const (
	StatusPending   CandidateStatus = "pending"
	StatusApproved  CandidateStatus = "approved"
	StatusRejected  CandidateStatus = "rejected"
	StatusPublished CandidateStatus = "published"
)

// RawItem is a single fetched content item before review. Every fetch is
// recorded, so the same source URL may appear across re-scans.
type RawItem struct {
	ID          string    `bson:"_id"`
	Source      string    `bson:"source"`
	Title       string    `bson:"title"`
	Body        string    `bson:"body"`
	SourceURL   string    `bson:"source_url"`
	ContentHash string    `bson:"content_hash"`
	FetchedAt   time.Time `bson:"fetched_at"`
}

// Candidate is a content item awaiting review. Created once by the ingestion
// pipeline, mutated only by scoring and admission.
type Candidate struct {
	ID           string            `bson:"_id"`
	Title        string            `bson:"title"`
	Body         string            `bson:"body"`
	SourceURL    string            `bson:"source_url"`
	ContentHash  string            `bson:"content_hash"`
	Source       string            `bson:"source"`
	Provider     string            `bson:"provider"`
	Specs        map[string]string `bson:"specs"`
	Tags         []string          `bson:"tags"`
	ImageCount   int               `bson:"image_count"`
	Embedding    []float32         `bson:"embedding,omitempty"`
	QualityScore *float64          `bson:"quality_score,omitempty"`
	Status       CandidateStatus   `bson:"status"`
	CreatedAt    time.Time         `bson:"created_at"`
}

// Scored reports whether the candidate has received a quality score.
func (c *Candidate) Scored() bool { return c.QualityScore != nil }

// PublicationRecord is produced exactly once when a candidate is admitted.
// Immutable afterwards, except for the engagement score it accumulates.
type PublicationRecord struct {
	ID              string    `bson:"_id"`
	CandidateID     string    `bson:"candidate_id"`
	Slug            string    `bson:"slug"`
	Title           string    `bson:"title"`
	PublishedAt     time.Time `bson:"published_at"`
	EngagementScore *float64  `bson:"engagement_score,omitempty"`
}

// EngagementAggregate holds reader signals for one publication. Read-only
// input to the engagement scorer; written by the serving layer.
type EngagementAggregate struct {
	PublicationID      string    `bson:"_id"`
	ReadObservations   int       `bson:"read_observations"`
	AvgScrollDepth     float64   `bson:"avg_scroll_depth"` // 0..100
	AvgDwellSeconds    float64   `bson:"avg_dwell_seconds"`
	RatingSum          float64   `bson:"rating_sum"` // ratings on a 1..5 scale
	RatingCount        int       `bson:"rating_count"`
	ApprovedComments   int       `bson:"approved_comments"`
	HelpfulFeedback    int       `bson:"helpful_feedback"`
	UnhelpfulFeedback  int       `bson:"unhelpful_feedback"`
	InternalLinkClicks int       `bson:"internal_link_clicks"`
	NegativeReports    int       `bson:"negative_reports"`
	UpdatedAt          time.Time `bson:"updated_at"`
}

// Decision outcomes recorded in the decision log.
const (
	DecisionPublished = "published"
	DecisionSkipped   = "skipped"
)

// Admission skip reason codes.
const (
	ReasonDisabled             = "disabled"
	ReasonDailyLimit           = "daily_limit"
	ReasonHourlyLimit          = "hourly_limit"
	ReasonBelowThreshold       = "below_threshold"
	ReasonNoEligibleCandidates = "no_eligible_candidates"
)

// DecisionLogEntry is an append-only audit record for one admission outcome.
// Never mutated or deleted.
type DecisionLogEntry struct {
	ID              string    `bson:"_id"`
	CandidateID     string    `bson:"candidate_id"`
	Decision        string    `bson:"decision"`
	Reason          string    `bson:"reason,omitempty"`
	ScoreAtDecision float64   `bson:"score_at_decision"`
	DailyCount      int       `bson:"daily_count"`
	HourlyCount     int       `bson:"hourly_count"`
	Timestamp       time.Time `bson:"timestamp"`
}

// TaskState is the persisted per-task scheduler record. LockFlag is true
// while a run is in progress; a stuck flag after a crash is cleared by the
// startup recovery path.
type TaskState struct {
	Name            string    `bson:"_id"`
	Enabled         bool      `bson:"enabled"`
	IntervalMinutes int       `bson:"interval_minutes"`
	LastRunAt       time.Time `bson:"last_run_at"`
	LockFlag        bool      `bson:"lock_flag"`
}

// RateCounters tracks published counts inside the current daily and hourly
// windows. Counters are monotonically non-decreasing within a window and
// reset exactly once per boundary crossing.
type RateCounters struct {
	DailyCount     int       `bson:"daily_count"`
	HourlyCount    int       `bson:"hourly_count"`
	DailyResetDate string    `bson:"daily_reset_date"` // YYYY-MM-DD in UTC
	HourlyResetAt  time.Time `bson:"hourly_reset_at"`  // truncated to the hour, UTC
}

// DayKey formats t as the daily window stamp used by RateCounters.
func DayKey(t time.Time) string { return t.UTC().Format("2006-01-02") }

// HourKey truncates t to the hourly window stamp used by RateCounters.
func HourKey(t time.Time) time.Time { return t.UTC().Truncate(time.Hour) }

// ModelArtifact is the persisted trained regression model plus metadata.
type ModelArtifact struct {
	ID                  string      `bson:"_id"`
	TrainedAt           time.Time   `bson:"trained_at"`
	SampleCount         int         `bson:"sample_count"`
	FeatureNames        []string    `bson:"feature_names"`
	CrossValidatedScore float64     `bson:"cross_validated_score"`
	Intercepts          []float64   `bson:"intercepts"`
	Weights             [][]float64 `bson:"weights"` // one row per estimator
	FeatureMeans        []float64   `bson:"feature_means"`
	FeatureScales       []float64   `bson:"feature_scales"`
}

// NewID returns a fresh unique identifier.
func NewID() string { return uuid.NewString() }

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	slugStripRe  = regexp.MustCompile(`[^a-z0-9]+`)
)

// NormalizeText lowercases text and collapses runs of whitespace. Used for
// content hashing and title comparison so formatting differences do not
// defeat deduplication.
func NormalizeText(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return whitespaceRe.ReplaceAllString(s, " ")
}

// ContentHash returns the hex SHA-256 of the normalized body text.
func ContentHash(body string) string {
	sum := sha256.Sum256([]byte(NormalizeText(body)))
	return hex.EncodeToString(sum[:])
}

// Slugify derives a URL slug from a title: lowercase, non-alphanumerics
// collapsed to single hyphens.
func Slugify(title string) string {
	s := strings.ToLower(strings.TrimSpace(title))
	s = slugStripRe.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}
