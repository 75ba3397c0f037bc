// Package service wires the curation pipeline together: persistence, the
// ingestion queue and workers, the duplicate engine, scoring, admission, and
// the periodic task scheduler.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/osena/curator/internal/adapters/embedding"
	eventqueue "github.com/osena/curator/internal/adapters/mq/queue"
	workerpool "github.com/osena/curator/internal/adapters/mq/worker"
	"github.com/osena/curator/internal/adapters/repository"
	"github.com/osena/curator/internal/adapters/source"
	"github.com/osena/curator/internal/config"
	"github.com/osena/curator/internal/domain/admission"
	"github.com/osena/curator/internal/domain/dedupe"
	"github.com/osena/curator/internal/domain/engagement"
	"github.com/osena/curator/internal/domain/model"
	"github.com/osena/curator/internal/domain/quality"
	"github.com/osena/curator/internal/errsink"
	"github.com/osena/curator/internal/scheduler"
	"github.com/osena/curator/pkg/logger"
	"github.com/osena/curator/pkg/metrics"
)

// Operational timeouts.
const (
	sourceFetchTimeout = 2 * time.Minute
	errorRetention     = 7 * 24 * time.Hour
)

// Service owns the pipeline components and their lifecycle.
type Service struct {
	mu sync.Mutex

	cfg *config.Config

	store      repository.Store
	queue      *eventqueue.InMemoryQueue
	pool       *workerpool.Pool
	scorer     *quality.Scorer
	trainer    *quality.Trainer
	controller *admission.Controller
	sched      *scheduler.Scheduler
	sink       *errsink.Sink
	sources    []source.Source

	runCancel context.CancelFunc
	started   bool

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStore overrides the persistence backend, used by tests.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithSources overrides the configured listing sources, used by tests.
func WithSources(sources ...source.Source) Option {
	return func(s *Service) {
		s.sources = sources
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a Service from configuration.
func New(cfg *config.Config, opts ...Option) *Service {
	s := &Service{
		cfg:    cfg,
		logger: logger.Get().Named("service"),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start builds the component graph and launches workers and the scheduler.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	s.logger.Info(ctx, "starting curation service")

	if s.store == nil {
		store, err := s.openStore(ctx)
		if err != nil {
			return err
		}
		s.store = store
	}

	s.sink = errsink.New(errsink.WithLogger(s.logger.Named("errsink")))

	var embedder dedupe.Embedder
	if s.cfg.Embedding.Endpoint != "" {
		embedder = embedding.NewClient(s.cfg.Embedding.Endpoint, s.cfg.Embedding.APIKey)
		s.logger.Info(ctx, "semantic dedupe tier enabled",
			logger.String("endpoint", s.cfg.Embedding.Endpoint),
		)
	}

	engine := dedupe.NewEngine(s.store,
		dedupe.WithEmbedder(embedder),
		dedupe.WithTitleThreshold(s.cfg.Dedupe.TitleSimilarityThreshold),
		dedupe.WithSemanticThreshold(s.cfg.Dedupe.SemanticSimilarityThreshold),
		dedupe.WithLookback(time.Duration(s.cfg.Dedupe.LookbackDays)*24*time.Hour),
		dedupe.WithMinSemanticChars(s.cfg.Dedupe.MinSemanticBodyChars),
		dedupe.WithLogger(s.logger.Named("dedupe")),
	)

	s.scorer = quality.NewScorer(quality.WithScorerLogger(s.logger.Named("quality")))
	s.restoreModel(ctx)

	s.trainer = quality.NewTrainer(s.store,
		quality.WithMinTrainingSamples(s.cfg.ML.MinTrainingSamples),
		quality.WithEnsembleOptions(quality.WithEstimators(s.cfg.ML.Estimators)),
	)

	s.queue = eventqueue.NewInMemoryQueue(eventqueue.WithCapacity(s.cfg.QueueSize))
	metrics.UpdateQueueCapacity(s.cfg.QueueSize)

	var poolOpts []workerpool.Option
	if embedder != nil {
		poolOpts = append(poolOpts, workerpool.WithEmbedder(embedder))
	}
	s.pool = workerpool.NewPool(s.cfg.WorkerCount, s.queue, engine, s.scorer, s.store, poolOpts...)

	if s.sources == nil {
		s.sources = buildSources(s.cfg.Sources)
	}

	s.sched = scheduler.New(s.store,
		scheduler.WithErrorSink(s.sink),
		scheduler.WithLogger(s.logger.Named("scheduler")),
	)

	s.controller = admission.New(
		s.store,
		&recordPublisher{},
		&taskGate{sched: s.sched, name: config.TaskAdmission},
		admission.WithMinQualityScore(s.cfg.Admission.MinQualityScore),
		admission.WithMaxPerDay(s.cfg.Admission.MaxPerDay),
		admission.WithMaxPerHour(s.cfg.Admission.MaxPerHour),
		admission.WithLogger(s.logger.Named("admission")),
	)

	if err := s.registerTasks(ctx); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.runCancel = cancel
	s.pool.Start(runCtx)

	if err := s.sched.Start(ctx); err != nil {
		cancel()
		return fmt.Errorf("start scheduler: %w", err)
	}

	s.started = true
	s.logger.Info(ctx, "curation service started",
		logger.Int("workers", s.cfg.WorkerCount),
		logger.Int("queueSize", s.cfg.QueueSize),
		logger.Int("sources", len(s.sources)),
	)
	return nil
}

// Stop shuts the pipeline down: scheduler first so no task produces new
// items, then the queue drains into the workers before the store closes.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	s.logger.Info(ctx, "stopping curation service")

	s.sched.Stop()
	_ = s.queue.Close()
	if err := s.pool.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "worker pool shutdown incomplete", logger.Error(err))
	}
	if s.runCancel != nil {
		s.runCancel()
	}
	if err := s.store.Close(ctx); err != nil {
		s.logger.Warn(ctx, "store close failed", logger.Error(err))
	}

	s.started = false
	s.logger.Info(ctx, "curation service stopped")
}

// Reload applies runtime-adjustable settings from a freshly loaded config:
// admission limits and per-task enabled flags. Structural settings (store,
// workers, sources) require a restart.
func (s *Service) Reload(ctx context.Context, cfg *config.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}

	s.controller.SetLimits(cfg.Admission.MinQualityScore, cfg.Admission.MaxPerDay, cfg.Admission.MaxPerHour)

	for name, tc := range cfg.Tasks {
		if err := s.sched.SetEnabled(ctx, name, tc.Enabled); err != nil {
			return fmt.Errorf("reload task %s: %w", name, err)
		}
	}

	s.cfg = cfg
	s.logger.Info(ctx, "configuration reloaded")
	return nil
}

// Trigger runs a named task immediately, outside its schedule.
func (s *Service) Trigger(ctx context.Context, name string) error {
	return s.sched.Trigger(ctx, name)
}

// Errors returns the deduplicated runtime error records, newest first.
func (s *Service) Errors() []errsink.Record {
	return s.sink.Records()
}

// Decisions returns the most recent admission decisions, newest first.
func (s *Service) Decisions(ctx context.Context, limit int) ([]model.DecisionLogEntry, error) {
	return s.store.Decisions(ctx, limit)
}

// Stats returns operational counters for monitoring.
func (s *Service) Stats(ctx context.Context) map[string]interface{} {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()

	stats := map[string]interface{}{
		"started": started,
	}
	if !started {
		return stats
	}

	stats["queueLength"] = s.queue.Len(ctx)
	if n, err := s.store.PendingCount(ctx); err == nil {
		stats["pendingCandidates"] = n
		metrics.UpdatePendingCandidates(n)
	}
	if n, err := s.store.RawItemCount(ctx); err == nil {
		stats["rawItems"] = n
	}
	return stats
}

// openStore selects the persistence backend from configuration.
func (s *Service) openStore(ctx context.Context) (repository.Store, error) {
	switch s.cfg.Store {
	case config.StoreMongo:
		store, err := repository.NewMongoStore(ctx, s.cfg.Mongo.URI, s.cfg.Mongo.Database,
			repository.WithLogger(s.logger.Named("mongo")),
		)
		if err != nil {
			return nil, fmt.Errorf("open mongo store: %w", err)
		}
		s.logger.Info(ctx, "using mongo store", logger.String("database", s.cfg.Mongo.Database))
		return store, nil
	default:
		s.logger.Info(ctx, "using in-memory store")
		return repository.NewMemoryStore(), nil
	}
}

// restoreModel loads the most recent trained artifact so scoring survives a
// restart without retraining. A missing or corrupt artifact falls back to
// the heuristic rubric.
func (s *Service) restoreModel(ctx context.Context) {
	artifact, found, err := s.store.LatestModelArtifact(ctx)
	if err != nil {
		s.logger.Warn(ctx, "model artifact load failed", logger.Error(err))
		return
	}
	if !found {
		return
	}

	ensemble, err := quality.EnsembleFromArtifact(artifact)
	if err != nil {
		s.logger.Warn(ctx, "stored model artifact unusable", logger.Error(err))
		return
	}

	s.scorer.SetModel(ensemble)
	metrics.UpdateModelSampleCount(artifact.SampleCount)
	s.logger.Info(ctx, "restored trained quality model",
		logger.Int("samples", artifact.SampleCount),
		logger.Float64("cvScore", artifact.CrossValidatedScore),
		logger.Time("trainedAt", artifact.TrainedAt),
	)
}

// registerTasks wires the five pipeline tasks into the scheduler. The
// admission sweep recovers on every startup: quota freed while the process
// was down should be used promptly.
func (s *Service) registerTasks(ctx context.Context) error {
	tasks := []scheduler.Task{
		{
			Name:     config.TaskIngest,
			Interval: s.cfg.Task(config.TaskIngest).Interval(),
			Enabled:  s.cfg.Task(config.TaskIngest).Enabled,
			Run:      s.instrument(config.TaskIngest, s.runIngest),
		},
		{
			Name:               config.TaskAdmission,
			Interval:           s.cfg.Task(config.TaskAdmission).Interval(),
			Enabled:            s.cfg.Task(config.TaskAdmission).Enabled,
			RunOnStartRecovery: true,
			Run:                s.instrument(config.TaskAdmission, s.runAdmission),
		},
		{
			Name:     config.TaskEngagement,
			Interval: s.cfg.Task(config.TaskEngagement).Interval(),
			Enabled:  s.cfg.Task(config.TaskEngagement).Enabled,
			Run:      s.instrument(config.TaskEngagement, s.runEngagement),
		},
		{
			Name:     config.TaskModelTraining,
			Interval: s.cfg.Task(config.TaskModelTraining).Interval(),
			Enabled:  s.cfg.Task(config.TaskModelTraining).Enabled,
			Run:      s.instrument(config.TaskModelTraining, s.runTraining),
		},
		{
			Name:     config.TaskMaintenance,
			Interval: s.cfg.Task(config.TaskMaintenance).Interval(),
			Enabled:  s.cfg.Task(config.TaskMaintenance).Enabled,
			Run:      s.instrument(config.TaskMaintenance, s.runMaintenance),
		},
	}

	for _, t := range tasks {
		if err := s.sched.Register(ctx, t); err != nil {
			return fmt.Errorf("register task: %w", err)
		}
	}
	return nil
}

// instrument wraps a task body with run metrics.
func (s *Service) instrument(name string, run func(ctx context.Context) error) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		start := time.Now()
		err := run(ctx)
		metrics.RecordTaskRun(name, err == nil, time.Since(start).Seconds())
		return err
	}
}

// runIngest fetches every configured source and enqueues its items. A
// failing source is captured and skipped; the remaining sources still run.
func (s *Service) runIngest(ctx context.Context) error {
	var failed int
	for _, src := range s.sources {
		items, err := s.fetchSource(ctx, src)
		if err != nil {
			failed++
			metrics.RecordSourceFetchError(src.Name())
			s.sink.Capture(ctx, "ingest", "fetch", err, map[string]string{"source": src.Name()})
			continue
		}

		for _, item := range items {
			if !s.queue.Enqueue(ctx, item) {
				s.logger.Warn(ctx, "ingestion queue full, dropping remainder",
					logger.String("source", src.Name()),
				)
				break
			}
			metrics.RecordItemIngested(src.Name())
		}
	}

	if failed == len(s.sources) && failed > 0 {
		return fmt.Errorf("all %d sources failed", failed)
	}
	return nil
}

func (s *Service) fetchSource(ctx context.Context, src source.Source) ([]model.RawItem, error) {
	ctx, cancel := context.WithTimeout(ctx, sourceFetchTimeout)
	defer cancel()
	return src.Fetch(ctx)
}

// runAdmission performs one admission sweep and records its outcomes.
func (s *Service) runAdmission(ctx context.Context) error {
	res, err := s.controller.Sweep(ctx)
	if err != nil {
		return fmt.Errorf("admission sweep: %w", err)
	}

	for i := 0; i < res.Published; i++ {
		metrics.RecordAdmissionDecision(model.DecisionPublished, "")
		metrics.RecordPublication()
	}
	skipReason := res.StopReason
	if skipReason == "" {
		skipReason = model.ReasonBelowThreshold
	}
	for i := 0; i < res.Skipped; i++ {
		metrics.RecordAdmissionDecision(model.DecisionSkipped, skipReason)
	}

	s.logger.Info(ctx, "admission sweep finished",
		logger.Int("published", res.Published),
		logger.Int("skipped", res.Skipped),
		logger.String("stopReason", res.StopReason),
	)
	return nil
}

// runEngagement recomputes the engagement score of every publication from
// its current reader-signal aggregate.
func (s *Service) runEngagement(ctx context.Context) error {
	pubs, err := s.store.Publications(ctx)
	if err != nil {
		return fmt.Errorf("list publications: %w", err)
	}

	var updated int
	for i := range pubs {
		agg, found, err := s.store.EngagementAggregate(ctx, pubs[i].ID)
		if err != nil {
			s.sink.Capture(ctx, "engagement", "aggregate", err, map[string]string{"publication": pubs[i].ID})
			continue
		}

		var score float64
		if found {
			score = engagement.Score(&agg)
		} else {
			score = engagement.Score(nil)
		}

		if err := s.store.SetEngagementScore(ctx, pubs[i].ID, score); err != nil {
			s.sink.Capture(ctx, "engagement", "store", err, map[string]string{"publication": pubs[i].ID})
			continue
		}
		updated++
	}

	s.logger.Info(ctx, "engagement recompute finished",
		logger.Int("publications", len(pubs)),
		logger.Int("updated", updated),
	)
	return nil
}

// runTraining retrains the quality model from observed engagement outcomes
// and swaps it in. Too few samples is a normal early-life condition, not an
// error.
func (s *Service) runTraining(ctx context.Context) error {
	ensemble, artifact, err := s.trainer.Train(ctx)
	if errors.Is(err, quality.ErrInsufficientSamples) {
		s.logger.Debug(ctx, "not enough samples to train yet", logger.Error(err))
		return nil
	}
	if err != nil {
		return fmt.Errorf("train quality model: %w", err)
	}

	if err := s.store.SaveModelArtifact(ctx, artifact); err != nil {
		return fmt.Errorf("save model artifact: %w", err)
	}

	s.scorer.SetModel(ensemble)
	metrics.UpdateModelSampleCount(artifact.SampleCount)

	s.logger.Info(ctx, "quality model retrained",
		logger.Int("samples", artifact.SampleCount),
		logger.Float64("cvScore", artifact.CrossValidatedScore),
	)
	return nil
}

// runMaintenance expires stale pending candidates and prunes old error
// records.
func (s *Service) runMaintenance(ctx context.Context) error {
	retention := time.Duration(s.cfg.Maintenance.CandidateRetentionDays) * 24 * time.Hour
	cutoff := time.Now().UTC().Add(-retention)

	expired, err := s.store.ExpirePendingBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("expire pending candidates: %w", err)
	}

	pruned := s.sink.Prune(errorRetention)

	if n, err := s.store.PendingCount(ctx); err == nil {
		metrics.UpdatePendingCandidates(n)
	}

	s.logger.Info(ctx, "maintenance finished",
		logger.Int("expiredCandidates", expired),
		logger.Int("prunedErrors", pruned),
	)
	return nil
}

// buildSources constructs listing scrapers from configuration.
func buildSources(cfgs []config.SourceConfig) []source.Source {
	sources := make([]source.Source, 0, len(cfgs))
	for _, sc := range cfgs {
		sources = append(sources, source.NewListing(source.ListingConfig{
			Name:          sc.Name,
			URL:           sc.URL,
			ItemSelector:  sc.ItemSelector,
			TitleSelector: sc.TitleSelector,
			BodySelector:  sc.BodySelector,
			LinkAttr:      sc.LinkAttr,
		}))
	}
	return sources
}

// taskGate exposes the persisted admission task switch as an admission gate,
// so disabling the task stops manual and recovery sweeps too.
type taskGate struct {
	sched *scheduler.Scheduler
	name  string
}

func (g *taskGate) Enabled(ctx context.Context) (bool, error) {
	return g.sched.TaskEnabled(ctx, g.name)
}

// recordPublisher materializes the publication record for the serving layer.
// Rendering and distribution happen downstream off the stored record.
type recordPublisher struct{}

func (p *recordPublisher) Publish(_ context.Context, c *model.Candidate) (model.PublicationRecord, error) {
	return model.PublicationRecord{
		ID:          model.NewID(),
		CandidateID: c.ID,
		Slug:        model.Slugify(c.Title),
		Title:       c.Title,
		PublishedAt: time.Now().UTC(),
	}, nil
}
