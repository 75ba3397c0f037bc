package scheduler

import (
	"time"

	"github.com/osena/curator/pkg/logger"
)

// Option applies a configuration option to the Scheduler.
type Option func(*Scheduler)

// WithErrorSink routes task failures into an error sink.
func WithErrorSink(sink ErrorSink) Option {
	return func(s *Scheduler) {
		if sink != nil {
			s.sink = sink
		}
	}
}

// WithDisabledCheckInterval sets how often a disabled task re-checks its
// enabled flag.
func WithDisabledCheckInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.disabledCheckInterval = d
		}
	}
}

// WithRetryInterval sets the reschedule delay after a failed run.
func WithRetryInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.retryInterval = d
		}
	}
}

// WithClock overrides the time source, used by tests.
func WithClock(clock func() time.Time) Option {
	return func(s *Scheduler) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithLogger sets a custom logger for the scheduler.
func WithLogger(l logger.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}
