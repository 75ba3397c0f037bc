// Package dedupe decides whether a candidate content item already exists.
package dedupe

import (
	"time"

	"github.com/osena/curator/pkg/logger"
)

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithEmbedder enables the semantic tier with the given embedder.
func WithEmbedder(embedder Embedder) Option {
	return func(e *Engine) {
		e.embedder = embedder
	}
}

// WithTitleThreshold sets the fuzzy title similarity threshold in (0,1].
func WithTitleThreshold(threshold float64) Option {
	return func(e *Engine) {
		if threshold > 0 && threshold <= 1 {
			e.titleThreshold = threshold
		}
	}
}

// WithSemanticThreshold sets the cosine similarity threshold in (0,1].
func WithSemanticThreshold(threshold float64) Option {
	return func(e *Engine) {
		if threshold > 0 && threshold <= 1 {
			e.semanticThreshold = threshold
		}
	}
}

// WithLookback sets the window for title and semantic comparisons.
func WithLookback(window time.Duration) Option {
	return func(e *Engine) {
		if window > 0 {
			e.lookback = window
		}
	}
}

// WithMinSemanticChars sets the minimum body length for the semantic tier.
func WithMinSemanticChars(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.minSemanticChars = n
		}
	}
}

// WithClock overrides the time source, used by tests.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// WithLogger sets a custom logger for the engine.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}
