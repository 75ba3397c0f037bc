package quality

import (
	"context"
	"sync"

	"github.com/osena/curator/internal/domain/model"
	"github.com/osena/curator/pkg/logger"
)

// Score is the result of a quality evaluation. Heuristic scores are whole
// numbers in [1,10]; model scores are continuous in [1.0,10.0].
type Score struct {
	Value      float64
	Confidence float64
	ModelBased bool
}

// Scorer serves quality scores, preferring a trained regression model and
// falling back to the heuristic rubric transparently. Callers never learn
// which path produced the score.
type Scorer struct {
	mu     sync.RWMutex
	model  RegressionModel
	logger logger.Logger
}

// ScorerOption applies a configuration option to the Scorer.
type ScorerOption func(*Scorer)

// WithModel installs an already-trained regression model.
func WithModel(m RegressionModel) ScorerOption {
	return func(s *Scorer) {
		s.model = m
	}
}

// WithScorerLogger sets a custom logger for the scorer.
func WithScorerLogger(l logger.Logger) ScorerOption {
	return func(s *Scorer) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewScorer creates a quality scorer with configuration options.
func NewScorer(opts ...ScorerOption) *Scorer {
	s := &Scorer{}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetModel swaps in a newly trained model. Passing nil reverts to the
// heuristic path.
func (s *Scorer) SetModel(m RegressionModel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.model = m
}

// HasModel reports whether a trained model is currently installed.
func (s *Scorer) HasModel() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.model != nil
}

// Score evaluates a candidate. Model failures degrade silently to the
// heuristic rubric; scoring never fails.
func (s *Scorer) Score(ctx context.Context, c *model.Candidate) Score {
	s.mu.RLock()
	m := s.model
	s.mu.RUnlock()

	if m != nil {
		value, confidence, err := m.Predict(ExtractFeatures(c).Slice())
		if err == nil {
			return Score{Value: value, Confidence: confidence, ModelBased: true}
		}
		if s.logger != nil {
			s.logger.Debug(ctx, "model prediction failed, using heuristic", logger.Error(err))
		}
	}

	return Score{Value: float64(HeuristicScore(c)), Confidence: 1.0}
}
