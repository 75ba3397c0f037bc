package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/osena/curator/internal/domain/admission"
	"github.com/osena/curator/internal/domain/model"
	"github.com/osena/curator/internal/domain/quality"
)

// MemoryStore is a mutex-guarded in-memory Store. Used by tests and as the
// no-Mongo development mode.
type MemoryStore struct {
	mu sync.Mutex

	rawItems     map[string]model.RawItem
	candidates   map[string]model.Candidate
	publications map[string]model.PublicationRecord
	engagement   map[string]model.EngagementAggregate
	decisions    []model.DecisionLogEntry
	tasks        map[string]model.TaskState
	counters     model.RateCounters
	artifacts    []model.ModelArtifact
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rawItems:     make(map[string]model.RawItem),
		candidates:   make(map[string]model.Candidate),
		publications: make(map[string]model.PublicationRecord),
		engagement:   make(map[string]model.EngagementAggregate),
		tasks:        make(map[string]model.TaskState),
	}
}

// Close implements Store. Nothing to release.
func (s *MemoryStore) Close(_ context.Context) error { return nil }

// SaveRawItem records a fetched item.
func (s *MemoryStore) SaveRawItem(_ context.Context, item model.RawItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rawItems[item.ID] = item
	return nil
}

// RawItemCount returns the size of the raw corpus.
func (s *MemoryStore) RawItemCount(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rawItems), nil
}

// SaveCandidate upserts a candidate.
func (s *MemoryStore) SaveCandidate(_ context.Context, c model.Candidate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.candidates[c.ID] = c
	return nil
}

// Candidate returns a candidate by id.
func (s *MemoryStore) Candidate(_ context.Context, id string) (model.Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.candidates[id]
	if !ok {
		return model.Candidate{}, ErrNotFound
	}
	return c, nil
}

// SetQualityScore stores a quality score on an existing candidate.
func (s *MemoryStore) SetQualityScore(_ context.Context, id string, score float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.candidates[id]
	if !ok {
		return ErrNotFound
	}
	c.QualityScore = &score
	s.candidates[id] = c
	return nil
}

// MarkPublished transitions a candidate to published.
func (s *MemoryStore) MarkPublished(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.candidates[id]
	if !ok {
		return ErrNotFound
	}
	c.Status = model.StatusPublished
	s.candidates[id] = c
	return nil
}

// EligibleCandidates returns pending scored candidates, highest score first.
func (s *MemoryStore) EligibleCandidates(_ context.Context) ([]model.Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.Candidate
	for _, c := range s.candidates {
		if c.Status == model.StatusPending && c.Scored() {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return *out[i].QualityScore > *out[j].QualityScore
	})
	return out, nil
}

// ExpirePendingBefore rejects pending candidates created before cutoff.
func (s *MemoryStore) ExpirePendingBefore(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	expired := 0
	for id, c := range s.candidates {
		if c.Status == model.StatusPending && c.CreatedAt.Before(cutoff) {
			c.Status = model.StatusRejected
			s.candidates[id] = c
			expired++
		}
	}
	return expired, nil
}

// PendingCount returns the number of pending candidates.
func (s *MemoryStore) PendingCount(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, c := range s.candidates {
		if c.Status == model.StatusPending {
			n++
		}
	}
	return n, nil
}

// HasContentHash reports whether hash exists among raw items or candidates.
func (s *MemoryStore) HasContentHash(_ context.Context, hash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, item := range s.rawItems {
		if item.ContentHash == hash {
			return true, nil
		}
	}
	for _, c := range s.candidates {
		if c.ContentHash == hash {
			return true, nil
		}
	}
	return false, nil
}

// HasActiveSourceURL reports whether url belongs to a pending or published
// candidate. Raw items are excluded: re-scans revisit the same URL.
func (s *MemoryStore) HasActiveSourceURL(_ context.Context, url string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.candidates {
		if c.SourceURL != url {
			continue
		}
		if c.Status == model.StatusPending || c.Status == model.StatusPublished {
			return true, nil
		}
	}
	return false, nil
}

// RecentTitles returns titles seen at or after since across raw items and
// candidates.
func (s *MemoryStore) RecentTitles(_ context.Context, since time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []string
	for _, item := range s.rawItems {
		if !item.FetchedAt.Before(since) {
			out = append(out, item.Title)
		}
	}
	for _, c := range s.candidates {
		if !c.CreatedAt.Before(since) {
			out = append(out, c.Title)
		}
	}
	return out, nil
}

// RecentEmbeddings returns stored candidate embeddings from since onward.
func (s *MemoryStore) RecentEmbeddings(_ context.Context, since time.Time) ([][]float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out [][]float32
	for _, c := range s.candidates {
		if len(c.Embedding) > 0 && !c.CreatedAt.Before(since) {
			out = append(out, c.Embedding)
		}
	}
	return out, nil
}

// SavePublication persists a publication record.
func (s *MemoryStore) SavePublication(_ context.Context, rec model.PublicationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.publications[rec.ID] = rec
	return nil
}

// Publications returns all publication records.
func (s *MemoryStore) Publications(_ context.Context) ([]model.PublicationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.PublicationRecord, 0, len(s.publications))
	for _, rec := range s.publications {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].PublishedAt.Before(out[j].PublishedAt)
	})
	return out, nil
}

// SetEngagementScore stores the recomputed score on a publication.
func (s *MemoryStore) SetEngagementScore(_ context.Context, publicationID string, score float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.publications[publicationID]
	if !ok {
		return ErrNotFound
	}
	rec.EngagementScore = &score
	s.publications[publicationID] = rec
	return nil
}

// EngagementAggregate returns the reader-signal aggregate for a publication.
func (s *MemoryStore) EngagementAggregate(_ context.Context, publicationID string) (model.EngagementAggregate, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	agg, ok := s.engagement[publicationID]
	return agg, ok, nil
}

// UpsertEngagement replaces the aggregate for a publication.
func (s *MemoryStore) UpsertEngagement(_ context.Context, agg model.EngagementAggregate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.engagement[agg.PublicationID] = agg
	return nil
}

// AppendDecision appends an admission decision.
func (s *MemoryStore) AppendDecision(_ context.Context, entry model.DecisionLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.decisions = append(s.decisions, entry)
	return nil
}

// Decisions returns up to limit entries, newest first.
func (s *MemoryStore) Decisions(_ context.Context, limit int) ([]model.DecisionLogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.decisions)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]model.DecisionLogEntry, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, s.decisions[i])
	}
	return out, nil
}

// Counters reads the rate counters for the windows containing now.
func (s *MemoryStore) Counters(_ context.Context, now time.Time) (model.RateCounters, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.counters
	if c.DailyResetDate != model.DayKey(now) {
		c.DailyCount = 0
		c.DailyResetDate = model.DayKey(now)
	}
	if !c.HourlyResetAt.Equal(model.HourKey(now)) {
		c.HourlyCount = 0
		c.HourlyResetAt = model.HourKey(now)
	}
	return c, nil
}

// ReserveQuota consumes one publication slot if both caps have room.
func (s *MemoryStore) ReserveQuota(_ context.Context, now time.Time, maxPerDay, maxPerHour int) (model.RateCounters, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.counters.DailyResetDate != model.DayKey(now) {
		s.counters.DailyCount = 0
		s.counters.DailyResetDate = model.DayKey(now)
	}
	if !s.counters.HourlyResetAt.Equal(model.HourKey(now)) {
		s.counters.HourlyCount = 0
		s.counters.HourlyResetAt = model.HourKey(now)
	}

	if s.counters.DailyCount >= maxPerDay {
		return model.RateCounters{}, admission.ErrDailyLimitReached
	}
	if s.counters.HourlyCount >= maxPerHour {
		return model.RateCounters{}, admission.ErrHourlyLimitReached
	}

	s.counters.DailyCount++
	s.counters.HourlyCount++
	return s.counters, nil
}

// TaskState returns the persisted state for a task.
func (s *MemoryStore) TaskState(_ context.Context, name string) (model.TaskState, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.tasks[name]
	return state, ok, nil
}

// SaveTaskState upserts a task state record.
func (s *MemoryStore) SaveTaskState(_ context.Context, state model.TaskState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[state.Name] = state
	return nil
}

// AcquireTaskLock flips the lock flag from clear to held. Exactly one
// concurrent caller wins.
func (s *MemoryStore) AcquireTaskLock(_ context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.tasks[name]
	if state.LockFlag {
		return false, nil
	}
	state.Name = name
	state.LockFlag = true
	s.tasks[name] = state
	return true, nil
}

// ReleaseTaskLock clears the lock flag and records the run time.
func (s *MemoryStore) ReleaseTaskLock(_ context.Context, name string, lastRunAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.tasks[name]
	state.Name = name
	state.LockFlag = false
	state.LastRunAt = lastRunAt
	s.tasks[name] = state
	return nil
}

// ClearTaskLock clears the lock flag unconditionally.
func (s *MemoryStore) ClearTaskLock(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.tasks[name]
	if !ok {
		return nil
	}
	state.LockFlag = false
	s.tasks[name] = state
	return nil
}

// SaveModelArtifact appends a trained artifact.
func (s *MemoryStore) SaveModelArtifact(_ context.Context, artifact model.ModelArtifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.artifacts = append(s.artifacts, artifact)
	return nil
}

// LatestModelArtifact returns the most recently trained artifact.
func (s *MemoryStore) LatestModelArtifact(_ context.Context) (model.ModelArtifact, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.artifacts) == 0 {
		return model.ModelArtifact{}, false, nil
	}
	latest := s.artifacts[0]
	for _, a := range s.artifacts[1:] {
		if a.TrainedAt.After(latest.TrainedAt) {
			latest = a
		}
	}
	return latest, true, nil
}

// TrainingPairs joins published candidates with their non-zero engagement
// scores.
func (s *MemoryStore) TrainingPairs(_ context.Context) ([]quality.TrainingPair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []quality.TrainingPair
	for _, rec := range s.publications {
		if rec.EngagementScore == nil || *rec.EngagementScore == 0 {
			continue
		}
		c, ok := s.candidates[rec.CandidateID]
		if !ok {
			continue
		}
		out = append(out, quality.TrainingPair{Candidate: c, Engagement: *rec.EngagementScore})
	}
	return out, nil
}
