// Package dedupe decides whether a candidate content item already exists in
// the corpus. Checks are ordered cheapest first: exact content hash, exact
// source URL, fuzzy title similarity, then best-effort semantic similarity.
package dedupe

import (
	"context"
	"fmt"
	"time"

	"github.com/osena/curator/internal/domain/model"
	"github.com/osena/curator/pkg/logger"
)

// Default engine configuration constants.
const (
	defaultTitleThreshold    = 0.80
	defaultSemanticThreshold = 0.65
	defaultLookback          = 30 * 24 * time.Hour
	defaultMinSemanticChars  = 100
)

// Tier identifies which duplicate check matched.
type Tier string

// Duplicate detection tiers, in evaluation order.
const (
	TierNone     Tier = ""
	TierHash     Tier = "content_hash"
	TierURL      Tier = "source_url"
	TierTitle    Tier = "title_similarity"
	TierSemantic Tier = "semantic"
)

// Corpus provides the narrow read surface the engine needs. Implementations
// span all three corpora: raw ingested items, pending candidates, and
// published items.
type Corpus interface {
	// HasContentHash reports whether hash exists in any corpus.
	HasContentHash(ctx context.Context, hash string) (bool, error)

	// HasActiveSourceURL reports whether url exists among pending candidates
	// or published items. Raw items are excluded: re-scans legitimately
	// revisit the same URL.
	HasActiveSourceURL(ctx context.Context, url string) (bool, error)

	// RecentTitles returns titles created at or after since, across all
	// three corpora.
	RecentTitles(ctx context.Context, since time.Time) ([]string, error)

	// RecentEmbeddings returns stored embeddings for items created at or
	// after since.
	RecentEmbeddings(ctx context.Context, since time.Time) ([][]float32, error)
}

// Embedder produces a vector representation of text for the semantic tier.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Engine runs the tiered duplicate checks.
type Engine struct {
	corpus   Corpus
	embedder Embedder

	titleThreshold    float64
	semanticThreshold float64
	lookback          time.Duration
	minSemanticChars  int

	clock  func() time.Time
	logger logger.Logger
}

// NewEngine creates a duplicate-detection engine with configuration options.
func NewEngine(corpus Corpus, opts ...Option) *Engine {
	e := &Engine{
		corpus:            corpus,
		titleThreshold:    defaultTitleThreshold,
		semanticThreshold: defaultSemanticThreshold,
		lookback:          defaultLookback,
		minSemanticChars:  defaultMinSemanticChars,
		clock:             time.Now,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// IsDuplicate runs the tiered checks and returns the first matching tier, or
// TierNone when the item is new. Failures in the semantic tier are swallowed:
// an optional enrichment must never block ingestion.
func (e *Engine) IsDuplicate(ctx context.Context, title, body, sourceURL string) (Tier, error) {
	// Tier 1: exact content hash against every corpus.
	hash := model.ContentHash(body)
	found, err := e.corpus.HasContentHash(ctx, hash)
	if err != nil {
		return TierNone, fmt.Errorf("content hash lookup: %w", err)
	}
	if found {
		return TierHash, nil
	}

	// Tier 2: exact source URL against pending and published items.
	if sourceURL != "" {
		found, err = e.corpus.HasActiveSourceURL(ctx, sourceURL)
		if err != nil {
			return TierNone, fmt.Errorf("source url lookup: %w", err)
		}
		if found {
			return TierURL, nil
		}
	}

	// Tier 3: fuzzy title similarity inside the lookback window. Empty
	// titles match everything (ratio of two empty strings is 1.0), so they
	// are skipped here; callers guard upstream.
	normTitle := model.NormalizeText(title)
	if normTitle != "" {
		since := e.clock().Add(-e.lookback)
		titles, tErr := e.corpus.RecentTitles(ctx, since)
		if tErr != nil {
			return TierNone, fmt.Errorf("recent titles lookup: %w", tErr)
		}
		for _, existing := range titles {
			if Ratio(normTitle, model.NormalizeText(existing)) >= e.titleThreshold {
				return TierTitle, nil
			}
		}
	}

	// Tier 4: semantic similarity, best effort.
	if e.matchesSemantically(ctx, title, body) {
		return TierSemantic, nil
	}

	return TierNone, nil
}

// matchesSemantically embeds the query text and compares it against recent
// corpus embeddings. Any failure is logged and treated as "not duplicate".
func (e *Engine) matchesSemantically(ctx context.Context, title, body string) bool {
	if e.embedder == nil || len(body) < e.minSemanticChars {
		return false
	}

	vec, err := e.embedder.Embed(ctx, title+"\n"+body)
	if err != nil {
		if e.logger != nil {
			e.logger.Debug(ctx, "semantic tier unavailable", logger.Error(err))
		}
		return false
	}

	since := e.clock().Add(-e.lookback)
	existing, err := e.corpus.RecentEmbeddings(ctx, since)
	if err != nil {
		if e.logger != nil {
			e.logger.Debug(ctx, "embedding lookup failed", logger.Error(err))
		}
		return false
	}

	for _, other := range existing {
		if Cosine(vec, other) >= e.semanticThreshold {
			return true
		}
	}
	return false
}
