package source

import (
	"net/http"
	"time"

	"github.com/osena/curator/pkg/logger"
)

// Option applies a configuration option to a Listing.
type Option func(*Listing)

// WithHTTPClient overrides the underlying HTTP client, used by tests.
func WithHTTPClient(h *http.Client) Option {
	return func(l *Listing) {
		if h != nil {
			l.client = h
		}
	}
}

// WithMaxAttempts sets how many times a fetch is tried before giving up.
func WithMaxAttempts(n int) Option {
	return func(l *Listing) {
		if n > 0 {
			l.maxAttempts = n
		}
	}
}

// WithBackoffBase sets the first retry delay; later retries double it.
func WithBackoffBase(d time.Duration) Option {
	return func(l *Listing) {
		if d > 0 {
			l.backoffBase = d
		}
	}
}

// WithClock overrides the time source, used by tests.
func WithClock(clock func() time.Time) Option {
	return func(l *Listing) {
		if clock != nil {
			l.clock = clock
		}
	}
}

// WithLogger sets a custom logger for the listing.
func WithLogger(l logger.Logger) Option {
	return func(s *Listing) {
		if l != nil {
			s.logger = l
		}
	}
}
