// Package worker turns queued raw items into scored review candidates.
package worker

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/osena/curator/internal/adapters/mq/queue"
	"github.com/osena/curator/internal/domain/dedupe"
	"github.com/osena/curator/internal/domain/model"
	"github.com/osena/curator/internal/domain/quality"
	"github.com/osena/curator/pkg/logger"
	"github.com/osena/curator/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultWorkerCount  = 4
	poolShutdownTimeout = 30 * time.Second
)

// Deduper runs the tiered duplicate checks.
type Deduper interface {
	IsDuplicate(ctx context.Context, title, body, sourceURL string) (dedupe.Tier, error)
}

// Scorer computes a quality score for a candidate.
type Scorer interface {
	Score(ctx context.Context, c *model.Candidate) quality.Score
}

// Embedder produces vectors for new candidates. Optional and best effort.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Recorder is the persistence surface workers write to.
type Recorder interface {
	SaveRawItem(ctx context.Context, item model.RawItem) error
	SaveCandidate(ctx context.Context, c model.Candidate) error
}

// Queue defines how workers receive items.
type Queue interface {
	Dequeue(ctx context.Context) <-chan queue.Item
}

// Worker consumes raw items: every item lands in the raw corpus, and
// non-duplicates become scored pending candidates.
type Worker struct {
	queue    Queue
	deduper  Deduper
	scorer   Scorer
	embedder Embedder
	recorder Recorder
	name     string

	clock func() time.Time

	done chan struct{}

	logger logger.Logger
}

// NewWorker creates a worker with configuration options.
func NewWorker(q Queue, deduper Deduper, scorer Scorer, recorder Recorder, opts ...Option) *Worker {
	w := &Worker{
		queue:    q,
		deduper:  deduper,
		scorer:   scorer,
		recorder: recorder,
		name:     "worker",
		clock:    time.Now,
		done:     make(chan struct{}),
		logger:   logger.Get().Named("worker"),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Run consumes the queue until ctx is canceled or the queue closes.
func (w *Worker) Run(ctx context.Context) {
	defer close(w.done)

	items := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case item, ok := <-items:
			if !ok {
				return
			}
			if err := w.processItem(ctx, item); err != nil {
				w.logger.Error(ctx, "item processing failed",
					logger.String("source", item.Source),
					logger.String("sourceURL", item.SourceURL),
					logger.Error(err),
				)
			}
		}
	}
}

// processItem runs one raw item through dedupe, candidate creation, and
// scoring. The raw item is recorded whatever the outcome of dedupe.
func (w *Worker) processItem(ctx context.Context, item queue.Item) error {
	tier, dupErr := w.deduper.IsDuplicate(ctx, item.Title, item.Body, item.SourceURL)

	if err := w.recorder.SaveRawItem(ctx, item); err != nil {
		return fmt.Errorf("save raw item: %w", err)
	}
	if dupErr != nil {
		return fmt.Errorf("duplicate check: %w", dupErr)
	}

	if tier != dedupe.TierNone {
		metrics.RecordDuplicate(string(tier))
		w.logger.Debug(ctx, "duplicate item dropped",
			logger.String("tier", string(tier)),
			logger.String("sourceURL", item.SourceURL),
		)
		return nil
	}

	cand := w.buildCandidate(ctx, item)

	start := w.clock()
	score := w.scorer.Score(ctx, &cand)
	metrics.RecordScoringDuration(float64(time.Since(start).Milliseconds()))
	cand.QualityScore = &score.Value

	if err := w.recorder.SaveCandidate(ctx, cand); err != nil {
		return fmt.Errorf("save candidate: %w", err)
	}
	metrics.RecordCandidateCreated()

	w.logger.Info(ctx, "candidate created",
		logger.String("candidateID", cand.ID),
		logger.Float64("score", score.Value),
		logger.Bool("modelScored", score.ModelBased),
	)
	return nil
}

func (w *Worker) buildCandidate(ctx context.Context, item queue.Item) model.Candidate {
	cand := model.Candidate{
		ID:          model.NewID(),
		Title:       item.Title,
		Body:        item.Body,
		SourceURL:   item.SourceURL,
		ContentHash: item.ContentHash,
		Source:      item.Source,
		Provider:    providerFromURL(item.SourceURL),
		ImageCount:  quality.AnalyzeBody(item.Body).ImageCount,
		Status:      model.StatusPending,
		CreatedAt:   w.clock().UTC(),
	}
	if cand.ContentHash == "" {
		cand.ContentHash = model.ContentHash(item.Body)
	}

	// Best effort: a missing embedding only disables the semantic dedupe
	// tier for this candidate.
	if w.embedder != nil {
		vec, err := w.embedder.Embed(ctx, item.Title+"\n"+item.Body)
		if err != nil {
			w.logger.Debug(ctx, "embedding unavailable", logger.Error(err))
		} else {
			cand.Embedding = vec
		}
	}
	return cand
}

// providerFromURL derives the provider name from the item link's host.
func providerFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	return strings.TrimPrefix(u.Host, "www.")
}

// Pool runs a fixed set of workers over one queue.
type Pool struct {
	workers []*Worker

	logger logger.Logger
}

// NewPool creates workerCount workers sharing the queue.
func NewPool(workerCount int, q Queue, deduper Deduper, scorer Scorer, recorder Recorder, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = defaultWorkerCount
	}

	p := &Pool{
		workers: make([]*Worker, workerCount),
		logger:  logger.Get().Named("worker-pool"),
	}
	for i := 0; i < workerCount; i++ {
		named := append([]Option{WithName("worker-" + strconv.Itoa(i))}, opts...)
		p.workers[i] = NewWorker(q, deduper, scorer, recorder, named...)
	}

	metrics.UpdateWorkerCount(workerCount)
	return p
}

// Start launches all workers.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
}

// Shutdown waits for workers to drain, bounded by poolShutdownTimeout.
func (p *Pool) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	var wg sync.WaitGroup
	for _, w := range p.workers {
		wg.Add(1)
		go func(w *Worker) {
			defer wg.Done()
			select {
			case <-w.done:
			case <-ctx.Done():
				p.logger.Warn(ctx, "worker shutdown timed out", logger.String("worker", w.name))
			}
		}(w)
	}
	wg.Wait()

	metrics.UpdateWorkerCount(0)
	return ctx.Err()
}
