// Package repository defines the persistence surface of the pipeline and
// its two implementations: an in-memory store for tests and single-node
// development, and a MongoDB store for production.
package repository

import (
	"context"
	"time"

	"github.com/osena/curator/internal/domain/model"
	"github.com/osena/curator/internal/domain/quality"
)

// RawItemStore records every fetched item, duplicates included.
type RawItemStore interface {
	SaveRawItem(ctx context.Context, item model.RawItem) error
	RawItemCount(ctx context.Context) (int, error)
}

// CandidateStore persists review candidates. It also serves the duplicate
// engine's corpus lookups, which span raw items, candidates, and
// publications.
type CandidateStore interface {
	SaveCandidate(ctx context.Context, c model.Candidate) error
	Candidate(ctx context.Context, id string) (model.Candidate, error)

	// SetQualityScore stores a quality score without touching other fields.
	SetQualityScore(ctx context.Context, id string, score float64) error

	// MarkPublished transitions a candidate to published. A candidate
	// already published stays published.
	MarkPublished(ctx context.Context, id string) error

	// EligibleCandidates returns pending scored candidates, highest quality
	// score first.
	EligibleCandidates(ctx context.Context) ([]model.Candidate, error)

	// ExpirePendingBefore rejects pending candidates created before cutoff
	// and returns how many were expired. Published candidates are never
	// touched.
	ExpirePendingBefore(ctx context.Context, cutoff time.Time) (int, error)

	PendingCount(ctx context.Context) (int, error)

	HasContentHash(ctx context.Context, hash string) (bool, error)
	HasActiveSourceURL(ctx context.Context, url string) (bool, error)
	RecentTitles(ctx context.Context, since time.Time) ([]string, error)
	RecentEmbeddings(ctx context.Context, since time.Time) ([][]float32, error)
}

// PublicationStore persists publication records and their engagement
// aggregates.
type PublicationStore interface {
	SavePublication(ctx context.Context, rec model.PublicationRecord) error
	Publications(ctx context.Context) ([]model.PublicationRecord, error)

	// SetEngagementScore stores the recomputed engagement score on a
	// publication record.
	SetEngagementScore(ctx context.Context, publicationID string, score float64) error

	// EngagementAggregate returns the reader-signal aggregate for a
	// publication, or found=false when no signals arrived yet.
	EngagementAggregate(ctx context.Context, publicationID string) (model.EngagementAggregate, bool, error)

	// UpsertEngagement replaces the aggregate for a publication. Written by
	// the serving layer that collects reader signals.
	UpsertEngagement(ctx context.Context, agg model.EngagementAggregate) error
}

// DecisionLog is the append-only admission audit trail.
type DecisionLog interface {
	AppendDecision(ctx context.Context, entry model.DecisionLogEntry) error

	// Decisions returns the most recent entries, newest first, at most limit.
	Decisions(ctx context.Context, limit int) ([]model.DecisionLogEntry, error)
}

// QuotaStore owns the publication rate counters.
type QuotaStore interface {
	// Counters reads the counters as seen in the windows containing now;
	// expired windows read as zero.
	Counters(ctx context.Context, now time.Time) (model.RateCounters, error)

	// ReserveQuota atomically consumes one publication slot if both caps
	// have room in the windows containing now, resetting expired windows
	// first. Returns admission.ErrDailyLimitReached or
	// admission.ErrHourlyLimitReached without consuming quota.
	ReserveQuota(ctx context.Context, now time.Time, maxPerDay, maxPerHour int) (model.RateCounters, error)
}

// TaskStateStore persists scheduler state. AcquireTaskLock is a
// compare-and-swap on the lock flag.
type TaskStateStore interface {
	TaskState(ctx context.Context, name string) (model.TaskState, bool, error)
	SaveTaskState(ctx context.Context, state model.TaskState) error
	AcquireTaskLock(ctx context.Context, name string) (bool, error)
	ReleaseTaskLock(ctx context.Context, name string, lastRunAt time.Time) error
	ClearTaskLock(ctx context.Context, name string) error
}

// ModelStore persists trained regression artifacts.
type ModelStore interface {
	SaveModelArtifact(ctx context.Context, artifact model.ModelArtifact) error

	// LatestModelArtifact returns the most recently trained artifact, or
	// found=false when no model was trained yet.
	LatestModelArtifact(ctx context.Context) (model.ModelArtifact, bool, error)
}

// Store is the full persistence surface. It also satisfies
// quality.SampleSource: training pairs are published candidates joined with
// their non-zero engagement scores.
type Store interface {
	RawItemStore
	CandidateStore
	PublicationStore
	DecisionLog
	QuotaStore
	TaskStateStore
	ModelStore

	TrainingPairs(ctx context.Context) ([]quality.TrainingPair, error)

	Close(ctx context.Context) error
}
