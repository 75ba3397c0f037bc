// Package admission gates publication of scored candidates under score
// thresholds and absolute daily/hourly rate limits, recording every outcome
// in the append-only decision log.
package admission

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/osena/curator/internal/domain/model"
	"github.com/osena/curator/pkg/logger"
)

// Default admission configuration.
const (
	defaultMinQualityScore = 6
	defaultMaxPerDay       = 10
	defaultMaxPerHour      = 2
)

// Store is the narrow persistence surface the controller needs.
type Store interface {
	// EligibleCandidates returns pending, scored candidates ordered by
	// quality score descending.
	EligibleCandidates(ctx context.Context) ([]model.Candidate, error)

	// Counters returns the rate counters as seen in the windows containing
	// now (counts from expired windows read as zero).
	Counters(ctx context.Context, now time.Time) (model.RateCounters, error)

	// ReserveQuota atomically increments both counters if neither cap is
	// reached in the windows containing now, resetting expired windows
	// first. Returns the post-increment counters, or ErrDailyLimitReached /
	// ErrHourlyLimitReached without consuming quota.
	ReserveQuota(ctx context.Context, now time.Time, maxPerDay, maxPerHour int) (model.RateCounters, error)

	// SavePublication persists a new publication record.
	SavePublication(ctx context.Context, rec model.PublicationRecord) error

	// MarkPublished transitions a candidate to published. Published
	// candidates never regress to an earlier status.
	MarkPublished(ctx context.Context, candidateID string) error

	// AppendDecision appends an entry to the decision log.
	AppendDecision(ctx context.Context, entry model.DecisionLogEntry) error
}

// Publisher is the external collaborator that performs the actual publish.
type Publisher interface {
	Publish(ctx context.Context, c *model.Candidate) (model.PublicationRecord, error)
}

// Gate reports whether admission is currently enabled. Backed by the
// persisted scheduler task state so manual and recovery sweeps honor the
// same switch.
type Gate interface {
	Enabled(ctx context.Context) (bool, error)
}

// SweepResult summarizes one admission sweep.
type SweepResult struct {
	Published int
	Skipped   int
	// StopReason is the global reason that ended the sweep early, if any.
	StopReason string
}

// Controller evaluates eligible candidates in priority order and publishes
// those passing every check.
type Controller struct {
	store     Store
	publisher Publisher
	gate      Gate

	minQualityScore int
	maxPerDay       int
	maxPerHour      int

	clock  func() time.Time
	logger logger.Logger
}

// New creates an admission controller with configuration options.
func New(store Store, publisher Publisher, gate Gate, opts ...Option) *Controller {
	c := &Controller{
		store:           store,
		publisher:       publisher,
		gate:            gate,
		minQualityScore: defaultMinQualityScore,
		maxPerDay:       defaultMaxPerDay,
		maxPerHour:      defaultMaxPerHour,
		clock:           time.Now,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// SetLimits re-applies admission settings, used by configuration reload.
func (c *Controller) SetLimits(minQualityScore, maxPerDay, maxPerHour int) {
	if minQualityScore > 0 {
		c.minQualityScore = minQualityScore
	}
	if maxPerDay > 0 {
		c.maxPerDay = maxPerDay
	}
	if maxPerHour > 0 {
		c.maxPerHour = maxPerHour
	}
}

// Sweep evaluates candidates highest score first. Checks run in order:
// gate enabled, daily cap, hourly cap, score threshold. The first three are
// global and stop the sweep; a below-threshold candidate only skips itself.
// Quota is consumed through one atomic reserve before the publish call, so
// the caps hold under any interleaving of sweeps and restarts.
func (c *Controller) Sweep(ctx context.Context) (SweepResult, error) {
	var result SweepResult
	now := c.clock().UTC()

	enabled, err := c.gate.Enabled(ctx)
	if err != nil {
		return result, fmt.Errorf("admission gate: %w", err)
	}
	if !enabled {
		result.StopReason = model.ReasonDisabled
		return result, c.logSkip(ctx, now, "", 0, model.ReasonDisabled, model.RateCounters{})
	}

	candidates, err := c.store.EligibleCandidates(ctx)
	if err != nil {
		return result, fmt.Errorf("load eligible candidates: %w", err)
	}
	if len(candidates) == 0 {
		result.StopReason = model.ReasonNoEligibleCandidates
		return result, c.logSkip(ctx, now, "", 0, model.ReasonNoEligibleCandidates, model.RateCounters{})
	}

	counters, err := c.store.Counters(ctx, now)
	if err != nil {
		return result, fmt.Errorf("read rate counters: %w", err)
	}

	for i := range candidates {
		cand := &candidates[i]
		score := 0.0
		if cand.QualityScore != nil {
			score = *cand.QualityScore
		}

		if counters.DailyCount >= c.maxPerDay {
			result.Skipped++
			result.StopReason = model.ReasonDailyLimit
			return result, c.logSkip(ctx, now, cand.ID, score, model.ReasonDailyLimit, counters)
		}
		if counters.HourlyCount >= c.maxPerHour {
			result.Skipped++
			result.StopReason = model.ReasonHourlyLimit
			return result, c.logSkip(ctx, now, cand.ID, score, model.ReasonHourlyLimit, counters)
		}

		if score < float64(c.minQualityScore) {
			result.Skipped++
			if err := c.logSkip(ctx, now, cand.ID, score, model.ReasonBelowThreshold, counters); err != nil {
				return result, err
			}
			continue
		}

		reserved, err := c.store.ReserveQuota(ctx, now, c.maxPerDay, c.maxPerHour)
		switch {
		case errors.Is(err, ErrDailyLimitReached):
			result.Skipped++
			result.StopReason = model.ReasonDailyLimit
			return result, c.logSkip(ctx, now, cand.ID, score, model.ReasonDailyLimit, counters)
		case errors.Is(err, ErrHourlyLimitReached):
			result.Skipped++
			result.StopReason = model.ReasonHourlyLimit
			return result, c.logSkip(ctx, now, cand.ID, score, model.ReasonHourlyLimit, counters)
		case err != nil:
			return result, fmt.Errorf("reserve quota: %w", err)
		}
		counters = reserved

		if err := c.publish(ctx, now, cand, score, reserved); err != nil {
			return result, err
		}
		result.Published++
	}

	return result, nil
}

// publish runs the external publish and records the outcome. The quota was
// already reserved: a failure here wastes one slot rather than ever risking
// an over-cap publish.
func (c *Controller) publish(ctx context.Context, now time.Time, cand *model.Candidate, score float64, counters model.RateCounters) error {
	rec, err := c.publisher.Publish(ctx, cand)
	if err != nil {
		return fmt.Errorf("publish candidate %s: %w", cand.ID, err)
	}

	if rec.ID == "" {
		rec.ID = model.NewID()
	}
	rec.CandidateID = cand.ID
	if rec.Slug == "" {
		rec.Slug = model.Slugify(cand.Title)
	}
	if rec.Title == "" {
		rec.Title = cand.Title
	}
	if rec.PublishedAt.IsZero() {
		rec.PublishedAt = now
	}

	if err := c.store.SavePublication(ctx, rec); err != nil {
		return fmt.Errorf("save publication for %s: %w", cand.ID, err)
	}
	if err := c.store.MarkPublished(ctx, cand.ID); err != nil {
		return fmt.Errorf("mark candidate %s published: %w", cand.ID, err)
	}

	entry := model.DecisionLogEntry{
		ID:              model.NewID(),
		CandidateID:     cand.ID,
		Decision:        model.DecisionPublished,
		ScoreAtDecision: score,
		DailyCount:      counters.DailyCount,
		HourlyCount:     counters.HourlyCount,
		Timestamp:       now,
	}
	if err := c.store.AppendDecision(ctx, entry); err != nil {
		return fmt.Errorf("append decision for %s: %w", cand.ID, err)
	}

	if c.logger != nil {
		c.logger.Info(ctx, "candidate published",
			logger.String("candidateID", cand.ID),
			logger.String("slug", rec.Slug),
			logger.Float64("score", score),
		)
	}
	return nil
}

func (c *Controller) logSkip(ctx context.Context, now time.Time, candidateID string, score float64, reason string, counters model.RateCounters) error {
	entry := model.DecisionLogEntry{
		ID:              model.NewID(),
		CandidateID:     candidateID,
		Decision:        model.DecisionSkipped,
		Reason:          reason,
		ScoreAtDecision: score,
		DailyCount:      counters.DailyCount,
		HourlyCount:     counters.HourlyCount,
		Timestamp:       now,
	}
	if err := c.store.AppendDecision(ctx, entry); err != nil {
		return fmt.Errorf("append skip decision: %w", err)
	}
	return nil
}
