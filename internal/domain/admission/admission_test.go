package admission_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/osena/curator/internal/domain/admission"
	"github.com/osena/curator/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

// fakeStore is an in-memory admission.Store for controller tests.
type fakeStore struct {
	candidates []model.Candidate
	counters   model.RateCounters

	reserveErr error

	decisions    []model.DecisionLogEntry
	publications []model.PublicationRecord
	published    map[string]bool
}

func newFakeStore(candidates ...model.Candidate) *fakeStore {
	return &fakeStore{candidates: candidates, published: map[string]bool{}}
}

func (s *fakeStore) EligibleCandidates(_ context.Context) ([]model.Candidate, error) {
	out := append([]model.Candidate(nil), s.candidates...)
	return out, nil
}

func (s *fakeStore) Counters(_ context.Context, _ time.Time) (model.RateCounters, error) {
	return s.counters, nil
}

func (s *fakeStore) ReserveQuota(_ context.Context, _ time.Time, maxPerDay, maxPerHour int) (model.RateCounters, error) {
	if s.reserveErr != nil {
		return model.RateCounters{}, s.reserveErr
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

func (s *fakeStore) SavePublication(_ context.Context, rec model.PublicationRecord) error {
	s.publications = append(s.publications, rec)
	return nil
}

func (s *fakeStore) MarkPublished(_ context.Context, candidateID string) error {
	s.published[candidateID] = true
	return nil
}

func (s *fakeStore) AppendDecision(_ context.Context, entry model.DecisionLogEntry) error {
	s.decisions = append(s.decisions, entry)
	return nil
}

// fakePublisher records publish calls and optionally fails.
type fakePublisher struct {
	calls int
	err   error
}

func (p *fakePublisher) Publish(_ context.Context, c *model.Candidate) (model.PublicationRecord, error) {
	p.calls++
	if p.err != nil {
		return model.PublicationRecord{}, p.err
	}
	return model.PublicationRecord{Title: c.Title}, nil
}

// fixedGate reports a constant enablement.
type fixedGate bool

func (g fixedGate) Enabled(_ context.Context) (bool, error) { return bool(g), nil }

func scored(id string, score float64) model.Candidate {
	return model.Candidate{
		ID:           id,
		Title:        "Candidate " + id,
		Status:       model.StatusPending,
		QualityScore: &score,
	}
}

func lastDecision(s *fakeStore) model.DecisionLogEntry {
	return s.decisions[len(s.decisions)-1]
}

func TestSweepDisabled(t *testing.T) {
	ctx := context.Background()

	Convey("Given a disabled admission gate", t, func() {
		store := newFakeStore(scored("c1", 10))
		pub := &fakePublisher{}
		ctrl := admission.New(store, pub, fixedGate(false))

		result, err := ctrl.Sweep(ctx)
		So(err, ShouldBeNil)

		Convey("Then nothing publishes and the skip is logged", func() {
			So(result.Published, ShouldEqual, 0)
			So(result.StopReason, ShouldEqual, model.ReasonDisabled)
			So(pub.calls, ShouldEqual, 0)
			So(lastDecision(store).Reason, ShouldEqual, model.ReasonDisabled)
		})
	})
}

func TestSweepNoCandidates(t *testing.T) {
	ctx := context.Background()

	Convey("Given an empty eligible set", t, func() {
		store := newFakeStore()
		ctrl := admission.New(store, &fakePublisher{}, fixedGate(true))

		result, err := ctrl.Sweep(ctx)
		So(err, ShouldBeNil)

		Convey("Then the empty sweep is logged", func() {
			So(result.StopReason, ShouldEqual, model.ReasonNoEligibleCandidates)
			So(lastDecision(store).Reason, ShouldEqual, model.ReasonNoEligibleCandidates)
		})
	})
}

func TestSweepPublishes(t *testing.T) {
	ctx := context.Background()

	Convey("Given two high-scoring candidates within limits", t, func() {
		store := newFakeStore(scored("c1", 9), scored("c2", 8))
		pub := &fakePublisher{}
		ctrl := admission.New(store, pub, fixedGate(true),
			admission.WithMinQualityScore(6),
			admission.WithMaxPerDay(10),
			admission.WithMaxPerHour(10),
		)

		result, err := ctrl.Sweep(ctx)
		So(err, ShouldBeNil)

		Convey("Then both publish with records, statuses, and log entries", func() {
			So(result.Published, ShouldEqual, 2)
			So(pub.calls, ShouldEqual, 2)
			So(len(store.publications), ShouldEqual, 2)
			So(store.published["c1"], ShouldBeTrue)
			So(store.published["c2"], ShouldBeTrue)
			So(store.counters.DailyCount, ShouldEqual, 2)
			So(store.counters.HourlyCount, ShouldEqual, 2)

			So(len(store.decisions), ShouldEqual, 2)
			for _, d := range store.decisions {
				So(d.Decision, ShouldEqual, model.DecisionPublished)
			}
		})

		Convey("And publication records carry slug and candidate ref", func() {
			So(store.publications[0].CandidateID, ShouldEqual, "c1")
			So(store.publications[0].Slug, ShouldEqual, "candidate-c1")
			So(store.publications[0].PublishedAt.IsZero(), ShouldBeFalse)
		})
	})
}

func TestSweepBelowThresholdContinues(t *testing.T) {
	ctx := context.Background()

	Convey("Given a low scorer between two high scorers", t, func() {
		store := newFakeStore(scored("c1", 9), scored("c2", 4), scored("c3", 7))
		pub := &fakePublisher{}
		ctrl := admission.New(store, pub, fixedGate(true),
			admission.WithMinQualityScore(6),
		)

		result, err := ctrl.Sweep(ctx)
		So(err, ShouldBeNil)

		Convey("Then only the low scorer is skipped and the sweep continues", func() {
			So(result.Published, ShouldEqual, 2)
			So(result.Skipped, ShouldEqual, 1)
			So(store.published["c2"], ShouldBeFalse)

			var reasons []string
			for _, d := range store.decisions {
				if d.Decision == model.DecisionSkipped {
					reasons = append(reasons, d.Reason)
					So(d.CandidateID, ShouldEqual, "c2")
				}
			}
			So(reasons, ShouldResemble, []string{model.ReasonBelowThreshold})
		})
	})
}

func TestSweepDailyLimit(t *testing.T) {
	ctx := context.Background()

	Convey("Given five already published today with maxPerDay=5", t, func() {
		store := newFakeStore(scored("c1", 10), scored("c2", 9))
		store.counters = model.RateCounters{DailyCount: 5, HourlyCount: 0}
		pub := &fakePublisher{}
		ctrl := admission.New(store, pub, fixedGate(true),
			admission.WithMaxPerDay(5),
			admission.WithMaxPerHour(10),
		)

		result, err := ctrl.Sweep(ctx)
		So(err, ShouldBeNil)

		Convey("Then even a score-10 candidate is refused with daily_limit", func() {
			So(result.Published, ShouldEqual, 0)
			So(result.StopReason, ShouldEqual, model.ReasonDailyLimit)
			So(pub.calls, ShouldEqual, 0)
			So(lastDecision(store).Reason, ShouldEqual, model.ReasonDailyLimit)
			So(lastDecision(store).CandidateID, ShouldEqual, "c1")
		})

		Convey("And the sweep stopped instead of evaluating per candidate", func() {
			So(len(store.decisions), ShouldEqual, 1)
		})
	})
}

func TestSweepHourlyLimit(t *testing.T) {
	ctx := context.Background()

	Convey("Given the hourly cap is exhausted", t, func() {
		store := newFakeStore(scored("c1", 10))
		store.counters = model.RateCounters{DailyCount: 1, HourlyCount: 2}
		ctrl := admission.New(store, &fakePublisher{}, fixedGate(true),
			admission.WithMaxPerDay(10),
			admission.WithMaxPerHour(2),
		)

		result, err := ctrl.Sweep(ctx)
		So(err, ShouldBeNil)
		So(result.StopReason, ShouldEqual, model.ReasonHourlyLimit)
		So(lastDecision(store).Reason, ShouldEqual, model.ReasonHourlyLimit)
	})
}

func TestSweepReserveRace(t *testing.T) {
	ctx := context.Background()

	Convey("Given a reservation that loses a race to the daily cap", t, func() {
		store := newFakeStore(scored("c1", 10))
		store.reserveErr = admission.ErrDailyLimitReached
		pub := &fakePublisher{}
		ctrl := admission.New(store, pub, fixedGate(true))

		result, err := ctrl.Sweep(ctx)
		So(err, ShouldBeNil)

		Convey("Then the refusal is recorded and nothing publishes", func() {
			So(result.StopReason, ShouldEqual, model.ReasonDailyLimit)
			So(pub.calls, ShouldEqual, 0)
		})
	})
}

func TestSweepPublishFailure(t *testing.T) {
	ctx := context.Background()

	Convey("Given a failing publish collaborator", t, func() {
		store := newFakeStore(scored("c1", 9))
		pub := &fakePublisher{err: errors.New("render backend down")}
		ctrl := admission.New(store, pub, fixedGate(true))

		_, err := ctrl.Sweep(ctx)

		Convey("Then the sweep surfaces the error and the candidate stays pending", func() {
			So(err, ShouldNotBeNil)
			So(store.published["c1"], ShouldBeFalse)
			So(len(store.publications), ShouldEqual, 0)
			for _, d := range store.decisions {
				So(d.Decision, ShouldNotEqual, model.DecisionPublished)
			}
		})
	})
}
