// Package scheduler runs registered pipeline tasks on per-task timers with
// persisted state, so an abandoned run is detected and recovered after a
// process crash.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/osena/curator/internal/domain/model"
	"github.com/osena/curator/pkg/logger"
)

// Default scheduling intervals.
const (
	defaultDisabledCheckInterval = time.Minute
	defaultRetryInterval         = 5 * time.Minute
)

// Task is one registered unit of periodic work.
type Task struct {
	Name     string
	Interval time.Duration
	Enabled  bool

	// RunOnStartRecovery marks tasks that must run on every startup
	// regardless of how recently they last ran.
	RunOnStartRecovery bool

	Run func(ctx context.Context) error
}

// StateStore persists per-task scheduling state. AcquireTaskLock is a
// compare-and-swap on the lock flag: it returns true for exactly one caller
// when the flag was clear, so a recovery run and a regular tick can never
// execute the same task concurrently.
type StateStore interface {
	TaskState(ctx context.Context, name string) (model.TaskState, bool, error)
	SaveTaskState(ctx context.Context, state model.TaskState) error
	AcquireTaskLock(ctx context.Context, name string) (bool, error)
	ReleaseTaskLock(ctx context.Context, name string, lastRunAt time.Time) error
	ClearTaskLock(ctx context.Context, name string) error
}

// ErrorSink receives task failures. Matches errsink.Sink.
type ErrorSink interface {
	Capture(ctx context.Context, source, class string, err error, kv map[string]string)
}

// Scheduler owns one goroutine per registered task. Timers re-arm only
// after a run finishes, so a slow run delays the next one rather than
// overlapping it.
type Scheduler struct {
	store StateStore
	sink  ErrorSink

	mu    sync.Mutex
	tasks map[string]*Task

	disabledCheckInterval time.Duration
	retryInterval         time.Duration

	clock  func() time.Time
	logger logger.Logger

	wg      sync.WaitGroup
	cancel  context.CancelFunc
	started bool
}

// New creates a scheduler with configuration options.
func New(store StateStore, opts ...Option) *Scheduler {
	s := &Scheduler{
		store:                 store,
		tasks:                 make(map[string]*Task),
		disabledCheckInterval: defaultDisabledCheckInterval,
		retryInterval:         defaultRetryInterval,
		clock:                 time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Register adds a task and seeds its persisted state. The enabled flag and
// interval come from the task (configuration is the source of truth at
// boot); lastRunAt and the lock flag survive from the previous process.
func (s *Scheduler) Register(ctx context.Context, t Task) error {
	if t.Name == "" {
		return ErrUnnamedTask
	}
	if t.Run == nil {
		return fmt.Errorf("task %s: %w", t.Name, ErrNilTaskBody)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("task %s: %w", t.Name, ErrAlreadyStarted)
	}
	if _, exists := s.tasks[t.Name]; exists {
		return fmt.Errorf("task %s: %w", t.Name, ErrDuplicateTask)
	}

	state, _, err := s.store.TaskState(ctx, t.Name)
	if err != nil {
		return fmt.Errorf("load state for task %s: %w", t.Name, err)
	}
	state.Name = t.Name
	state.Enabled = t.Enabled
	state.IntervalMinutes = int(t.Interval / time.Minute)
	if err := s.store.SaveTaskState(ctx, state); err != nil {
		return fmt.Errorf("seed state for task %s: %w", t.Name, err)
	}

	task := t
	s.tasks[t.Name] = &task
	return nil
}

// Start recovers overdue work and launches the per-task loops.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.started = true
	tasks := make([]*Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		tasks = append(tasks, t)
	}
	s.mu.Unlock()

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel

	if err := s.recoverOverdue(runCtx, tasks); err != nil {
		return err
	}

	for _, t := range tasks {
		s.wg.Add(1)
		go s.loop(runCtx, t)
	}
	return nil
}

// Stop cancels all task loops and waits for in-flight runs to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

// SetEnabled flips a task's persisted enabled flag, used by configuration
// reload and by the admission gate.
func (s *Scheduler) SetEnabled(ctx context.Context, name string, enabled bool) error {
	state, found, err := s.store.TaskState(ctx, name)
	if err != nil {
		return fmt.Errorf("load state for task %s: %w", name, err)
	}
	if !found {
		return fmt.Errorf("task %s: %w", name, ErrUnknownTask)
	}
	state.Enabled = enabled
	return s.store.SaveTaskState(ctx, state)
}

// TaskEnabled reports a task's persisted enabled flag.
func (s *Scheduler) TaskEnabled(ctx context.Context, name string) (bool, error) {
	state, found, err := s.store.TaskState(ctx, name)
	if err != nil {
		return false, err
	}
	if !found {
		return false, fmt.Errorf("task %s: %w", name, ErrUnknownTask)
	}
	return state.Enabled, nil
}

// Trigger runs a task outside its schedule, still under the task lock.
func (s *Scheduler) Trigger(ctx context.Context, name string) error {
	s.mu.Lock()
	t, ok := s.tasks[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("task %s: %w", name, ErrUnknownTask)
	}
	_, err := s.runOnce(ctx, t)
	return err
}

// recoverOverdue clears lock flags abandoned by a crashed process, then
// kicks off background runs for tasks that missed their interval or are
// marked RunOnStartRecovery. Those runs go through the same CAS lock as
// the regular loop, so a near-simultaneous first tick cannot double-run.
func (s *Scheduler) recoverOverdue(ctx context.Context, tasks []*Task) error {
	now := s.clock().UTC()

	for _, t := range tasks {
		state, found, err := s.store.TaskState(ctx, t.Name)
		if err != nil {
			return fmt.Errorf("recover task %s: %w", t.Name, err)
		}
		if !found {
			continue
		}

		if state.LockFlag {
			if err := s.store.ClearTaskLock(ctx, t.Name); err != nil {
				return fmt.Errorf("clear stale lock for task %s: %w", t.Name, err)
			}
			if s.logger != nil {
				s.logger.Warn(ctx, "cleared stale task lock from previous run",
					logger.String("task", t.Name),
				)
			}
		}

		if !state.Enabled {
			continue
		}

		overdue := !state.LastRunAt.IsZero() && now.Sub(state.LastRunAt) > s.interval(state, t)
		if !overdue && !t.RunOnStartRecovery {
			continue
		}

		task := t
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if _, err := s.runOnce(ctx, task); err != nil && s.logger != nil {
				s.logger.Error(ctx, "recovery run failed",
					logger.String("task", task.Name),
					logger.Error(err),
				)
			}
		}()
	}
	return nil
}

func (s *Scheduler) loop(ctx context.Context, t *Task) {
	defer s.wg.Done()

	delay := s.initialDelay(ctx, t)
	timer := time.NewTimer(delay)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		state, found, err := s.store.TaskState(ctx, t.Name)
		switch {
		case err != nil:
			s.capture(ctx, t.Name, "state", err)
			timer.Reset(s.retryInterval)
		case found && !state.Enabled:
			timer.Reset(s.disabledCheckInterval)
		default:
			_, runErr := s.runOnce(ctx, t)
			if runErr != nil {
				timer.Reset(s.retryInterval)
			} else {
				timer.Reset(s.interval(state, t))
			}
		}
	}
}

// runOnce executes the task body under the persisted lock. Returns false
// when another holder owns the lock.
func (s *Scheduler) runOnce(ctx context.Context, t *Task) (bool, error) {
	acquired, err := s.store.AcquireTaskLock(ctx, t.Name)
	if err != nil {
		s.capture(ctx, t.Name, "lock", err)
		return false, err
	}
	if !acquired {
		if s.logger != nil {
			s.logger.Debug(ctx, "task lock held elsewhere, skipping run",
				logger.String("task", t.Name),
			)
		}
		return false, nil
	}

	start := s.clock().UTC()
	runErr := s.execute(ctx, t)

	if err := s.store.ReleaseTaskLock(ctx, t.Name, start); err != nil {
		s.capture(ctx, t.Name, "lock", err)
	}
	if runErr != nil {
		s.capture(ctx, t.Name, "run", runErr)
	}
	return true, runErr
}

// execute invokes the task body, converting a panic into an error so one
// bad run never takes the process down.
func (s *Scheduler) execute(ctx context.Context, t *Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task %s panicked: %v", t.Name, r)
		}
	}()
	return t.Run(ctx)
}

// initialDelay schedules the first tick at lastRunAt+interval. A task that
// never ran waits one full interval; overdue work was already handled by
// recoverOverdue.
func (s *Scheduler) initialDelay(ctx context.Context, t *Task) time.Duration {
	state, found, err := s.store.TaskState(ctx, t.Name)
	if err != nil || !found || state.LastRunAt.IsZero() {
		return s.interval(state, t)
	}
	remaining := s.interval(state, t) - s.clock().UTC().Sub(state.LastRunAt)
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (s *Scheduler) interval(state model.TaskState, t *Task) time.Duration {
	if state.IntervalMinutes > 0 {
		return time.Duration(state.IntervalMinutes) * time.Minute
	}
	if t.Interval > 0 {
		return t.Interval
	}
	return defaultDisabledCheckInterval
}

func (s *Scheduler) capture(ctx context.Context, task, class string, err error) {
	if s.sink != nil {
		s.sink.Capture(ctx, "scheduler", class, err, map[string]string{"task": task})
	}
	if s.logger != nil {
		s.logger.Error(ctx, "task error",
			logger.String("task", task),
			logger.String("class", class),
			logger.Error(err),
		)
	}
}
