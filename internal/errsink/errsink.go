// Package errsink collects runtime errors into deduplicated records so
// repeated failures surface as one record with an occurrence count instead
// of flooding the log.
package errsink

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/osena/curator/pkg/logger"
)

const defaultWindow = time.Hour

// Record is one deduplicated error with its occurrence count.
type Record struct {
	Source      string
	Class       string
	Message     string
	Context     map[string]string
	Occurrences int
	FirstSeen   time.Time
	LastSeen    time.Time
}

// Sink deduplicates captured errors by source, class, message, and context.
// A repeat inside the window increments the existing record; outside the
// window a fresh record starts.
type Sink struct {
	mu      sync.Mutex
	records map[string]*Record

	window time.Duration
	clock  func() time.Time
	logger logger.Logger
}

// Option applies a configuration option to the Sink.
type Option func(*Sink)

// WithWindow sets the deduplication window.
func WithWindow(d time.Duration) Option {
	return func(s *Sink) {
		if d > 0 {
			s.window = d
		}
	}
}

// WithClock overrides the time source, used by tests.
func WithClock(clock func() time.Time) Option {
	return func(s *Sink) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithLogger sets a custom logger for the sink.
func WithLogger(l logger.Logger) Option {
	return func(s *Sink) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a sink with configuration options.
func New(opts ...Option) *Sink {
	s := &Sink{
		records: make(map[string]*Record),
		window:  defaultWindow,
		clock:   time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Capture records an error. Identical errors within the window collapse into
// one record; only the first occurrence is logged.
func (s *Sink) Capture(ctx context.Context, source, class string, err error, kv map[string]string) {
	if err == nil {
		return
	}
	now := s.clock().UTC()
	key := recordKey(source, class, err.Error(), kv)

	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.records[key]; ok && now.Sub(rec.LastSeen) <= s.window {
		rec.Occurrences++
		rec.LastSeen = now
		return
	}

	s.records[key] = &Record{
		Source:      source,
		Class:       class,
		Message:     err.Error(),
		Context:     cloneContext(kv),
		Occurrences: 1,
		FirstSeen:   now,
		LastSeen:    now,
	}

	if s.logger != nil {
		s.logger.Error(ctx, "error captured",
			logger.String("source", source),
			logger.String("class", class),
			logger.Error(err),
		)
	}
}

// Records returns a snapshot of all records, most recent first.
func (s *Sink) Records() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Record, 0, len(s.records))
	for _, rec := range s.records {
		r := *rec
		r.Context = cloneContext(rec.Context)
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastSeen.After(out[j].LastSeen)
	})
	return out
}

// Prune drops records whose last occurrence is older than maxAge and
// returns how many were removed.
func (s *Sink) Prune(maxAge time.Duration) int {
	cutoff := s.clock().UTC().Add(-maxAge)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, rec := range s.records {
		if rec.LastSeen.Before(cutoff) {
			delete(s.records, key)
			removed++
		}
	}
	return removed
}

func recordKey(source, class, message string, kv map[string]string) string {
	parts := []string{source, class, message}
	keys := make([]string, 0, len(kv))
	for k := range kv {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		parts = append(parts, k+"="+kv[k])
	}
	return strings.Join(parts, "\x1f")
}

func cloneContext(kv map[string]string) map[string]string {
	if kv == nil {
		return nil
	}
	out := make(map[string]string, len(kv))
	for k, v := range kv {
		out[k] = v
	}
	return out
}
