package scheduler_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/osena/curator/internal/domain/model"
	"github.com/osena/curator/internal/scheduler"
	. "github.com/smartystreets/goconvey/convey"
)

// memStateStore is an in-memory scheduler.StateStore for tests.
type memStateStore struct {
	mu     sync.Mutex
	states map[string]model.TaskState
}

func newMemStateStore() *memStateStore {
	return &memStateStore{states: make(map[string]model.TaskState)}
}

func (s *memStateStore) TaskState(_ context.Context, name string) (model.TaskState, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.states[name]
	return state, ok, nil
}

func (s *memStateStore) SaveTaskState(_ context.Context, state model.TaskState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[state.Name] = state
	return nil
}

func (s *memStateStore) AcquireTaskLock(_ context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := s.states[name]
	if state.LockFlag {
		return false, nil
	}
	state.Name = name
	state.LockFlag = true
	s.states[name] = state
	return true, nil
}

func (s *memStateStore) ReleaseTaskLock(_ context.Context, name string, lastRunAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := s.states[name]
	state.LockFlag = false
	state.LastRunAt = lastRunAt
	s.states[name] = state
	return nil
}

func (s *memStateStore) ClearTaskLock(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := s.states[name]
	state.LockFlag = false
	s.states[name] = state
	return nil
}

func (s *memStateStore) snapshot(name string) model.TaskState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.states[name]
}

func countingTask(name string, interval time.Duration, enabled bool, counter *atomic.Int64) scheduler.Task {
	return scheduler.Task{
		Name:     name,
		Interval: interval,
		Enabled:  enabled,
		Run: func(_ context.Context) error {
			counter.Add(1)
			return nil
		},
	}
}

func TestRegisterValidation(t *testing.T) {
	ctx := context.Background()

	Convey("Given a scheduler", t, func() {
		store := newMemStateStore()
		sched := scheduler.New(store)

		Convey("Then registration rejects bad tasks", func() {
			So(sched.Register(ctx, scheduler.Task{Run: func(context.Context) error { return nil }}),
				ShouldWrap, scheduler.ErrUnnamedTask)
			So(sched.Register(ctx, scheduler.Task{Name: "ingest"}),
				ShouldWrap, scheduler.ErrNilTaskBody)
		})

		Convey("And rejects a duplicate name", func() {
			var n atomic.Int64
			So(sched.Register(ctx, countingTask("ingest", time.Hour, true, &n)), ShouldBeNil)
			So(sched.Register(ctx, countingTask("ingest", time.Hour, true, &n)),
				ShouldWrap, scheduler.ErrDuplicateTask)
		})

		Convey("And registration seeds persisted state from the task", func() {
			var n atomic.Int64
			So(sched.Register(ctx, countingTask("sweep", 30*time.Minute, false, &n)), ShouldBeNil)

			state := store.snapshot("sweep")
			So(state.Enabled, ShouldBeFalse)
			So(state.IntervalMinutes, ShouldEqual, 30)
		})
	})
}

func TestDisabledTaskNeverRuns(t *testing.T) {
	ctx := context.Background()

	Convey("Given a disabled task with a short interval", t, func() {
		store := newMemStateStore()
		sched := scheduler.New(store,
			scheduler.WithDisabledCheckInterval(5*time.Millisecond),
		)

		var runs atomic.Int64
		So(sched.Register(ctx, countingTask("sweep", 10*time.Millisecond, false, &runs)), ShouldBeNil)
		So(sched.Start(ctx), ShouldBeNil)

		time.Sleep(80 * time.Millisecond)
		sched.Stop()

		Convey("Then the body never ran and lastRunAt stayed zero", func() {
			So(runs.Load(), ShouldEqual, 0)
			So(store.snapshot("sweep").LastRunAt.IsZero(), ShouldBeTrue)
		})
	})
}

func TestEnabledTaskRunsOnSchedule(t *testing.T) {
	ctx := context.Background()

	Convey("Given an enabled task with a short interval", t, func() {
		store := newMemStateStore()
		sched := scheduler.New(store)

		var runs atomic.Int64
		So(sched.Register(ctx, countingTask("ingest", 15*time.Millisecond, true, &runs)), ShouldBeNil)
		So(sched.Start(ctx), ShouldBeNil)

		time.Sleep(120 * time.Millisecond)
		sched.Stop()

		Convey("Then the body ran repeatedly and released the lock", func() {
			So(runs.Load(), ShouldBeGreaterThanOrEqualTo, 2)

			state := store.snapshot("ingest")
			So(state.LockFlag, ShouldBeFalse)
			So(state.LastRunAt.IsZero(), ShouldBeFalse)
		})
	})
}

func TestStaleLockRecovery(t *testing.T) {
	ctx := context.Background()

	Convey("Given a task left locked and overdue by a crashed process", t, func() {
		store := newMemStateStore()
		So(store.SaveTaskState(ctx, model.TaskState{
			Name:      "ingest",
			Enabled:   true,
			LastRunAt: time.Now().UTC().Add(-2 * time.Hour),
			LockFlag:  true,
		}), ShouldBeNil)

		sched := scheduler.New(store)

		var runs atomic.Int64
		So(sched.Register(ctx, countingTask("ingest", time.Hour, true, &runs)), ShouldBeNil)
		So(sched.Start(ctx), ShouldBeNil)

		time.Sleep(50 * time.Millisecond)
		sched.Stop()

		Convey("Then the stale lock was cleared and exactly one recovery run fired", func() {
			So(runs.Load(), ShouldEqual, 1)

			state := store.snapshot("ingest")
			So(state.LockFlag, ShouldBeFalse)
			So(time.Since(state.LastRunAt), ShouldBeLessThan, time.Minute)
		})
	})
}

func TestRunOnStartRecovery(t *testing.T) {
	ctx := context.Background()

	Convey("Given a recently-run task marked RunOnStartRecovery", t, func() {
		store := newMemStateStore()
		So(store.SaveTaskState(ctx, model.TaskState{
			Name:      "admission_sweep",
			Enabled:   true,
			LastRunAt: time.Now().UTC(),
		}), ShouldBeNil)

		sched := scheduler.New(store)

		var runs atomic.Int64
		task := countingTask("admission_sweep", time.Hour, true, &runs)
		task.RunOnStartRecovery = true
		So(sched.Register(ctx, task), ShouldBeNil)
		So(sched.Start(ctx), ShouldBeNil)

		time.Sleep(50 * time.Millisecond)
		sched.Stop()

		Convey("Then it still ran once at startup", func() {
			So(runs.Load(), ShouldEqual, 1)
		})
	})
}

func TestLockHeldSkipsRun(t *testing.T) {
	ctx := context.Background()

	Convey("Given a task whose lock is held elsewhere", t, func() {
		store := newMemStateStore()
		sched := scheduler.New(store)

		var runs atomic.Int64
		So(sched.Register(ctx, countingTask("training", time.Hour, true, &runs)), ShouldBeNil)

		acquired, err := store.AcquireTaskLock(ctx, "training")
		So(err, ShouldBeNil)
		So(acquired, ShouldBeTrue)

		Convey("When triggered manually", func() {
			So(sched.Trigger(ctx, "training"), ShouldBeNil)

			Convey("Then the body is skipped", func() {
				So(runs.Load(), ShouldEqual, 0)
			})
		})
	})
}

func TestPanicIsRecovered(t *testing.T) {
	ctx := context.Background()

	Convey("Given a task body that panics", t, func() {
		store := newMemStateStore()
		sched := scheduler.New(store)

		So(sched.Register(ctx, scheduler.Task{
			Name:     "maintenance",
			Interval: time.Hour,
			Enabled:  true,
			Run: func(_ context.Context) error {
				panic("index out of range")
			},
		}), ShouldBeNil)

		Convey("When triggered", func() {
			err := sched.Trigger(ctx, "maintenance")

			Convey("Then the panic surfaces as an error and the lock is released", func() {
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldContainSubstring, "panicked")
				So(store.snapshot("maintenance").LockFlag, ShouldBeFalse)
			})
		})
	})
}

func TestTriggerUnknownTask(t *testing.T) {
	Convey("Given no registered tasks", t, func() {
		sched := scheduler.New(newMemStateStore())

		So(sched.Trigger(context.Background(), "nope"), ShouldWrap, scheduler.ErrUnknownTask)
	})
}

func TestSetEnabled(t *testing.T) {
	ctx := context.Background()

	Convey("Given a registered disabled task", t, func() {
		store := newMemStateStore()
		sched := scheduler.New(store)

		var runs atomic.Int64
		So(sched.Register(ctx, countingTask("sweep", time.Hour, false, &runs)), ShouldBeNil)

		enabled, err := sched.TaskEnabled(ctx, "sweep")
		So(err, ShouldBeNil)
		So(enabled, ShouldBeFalse)

		Convey("When enabling it", func() {
			So(sched.SetEnabled(ctx, "sweep", true), ShouldBeNil)

			enabled, err := sched.TaskEnabled(ctx, "sweep")
			So(err, ShouldBeNil)
			So(enabled, ShouldBeTrue)
		})
	})
}
