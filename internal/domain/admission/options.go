// Package admission gates publication under thresholds and rate limits.
package admission

import (
	"time"

	"github.com/osena/curator/pkg/logger"
)

// Option applies a configuration option to the Controller.
type Option func(*Controller)

// WithMinQualityScore sets the minimum score required for publication.
func WithMinQualityScore(score int) Option {
	return func(c *Controller) {
		if score > 0 {
			c.minQualityScore = score
		}
	}
}

// WithMaxPerDay sets the daily publication cap.
func WithMaxPerDay(n int) Option {
	return func(c *Controller) {
		if n > 0 {
			c.maxPerDay = n
		}
	}
}

// WithMaxPerHour sets the hourly publication cap.
func WithMaxPerHour(n int) Option {
	return func(c *Controller) {
		if n > 0 {
			c.maxPerHour = n
		}
	}
}

// WithClock overrides the time source, used by tests.
func WithClock(clock func() time.Time) Option {
	return func(c *Controller) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithLogger sets a custom logger for the controller.
func WithLogger(l logger.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}
