package repository

import (
	"time"

	"github.com/osena/curator/pkg/logger"
)

// MongoOption applies a configuration option to the MongoStore.
type MongoOption func(*MongoStore)

// WithOpTimeout sets the per-operation timeout.
func WithOpTimeout(d time.Duration) MongoOption {
	return func(s *MongoStore) {
		if d > 0 {
			s.opTimeout = d
		}
	}
}

// WithLogger sets a custom logger for the store.
func WithLogger(l logger.Logger) MongoOption {
	return func(s *MongoStore) {
		if l != nil {
			s.logger = l
		}
	}
}
