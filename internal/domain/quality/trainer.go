package quality

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/osena/curator/internal/domain/model"
)

// Training defaults.
const (
	defaultMinTrainingSamples = 50
	holdoutFraction           = 0.2
)

// TrainingPair couples a published candidate with its observed engagement
// score, the label the model learns from.
type TrainingPair struct {
	Candidate  model.Candidate
	Engagement float64
}

// SampleSource provides the training set: published candidates with non-zero
// observed engagement.
type SampleSource interface {
	TrainingPairs(ctx context.Context) ([]TrainingPair, error)
}

// Trainer fits a fresh ensemble from observed engagement outcomes.
type Trainer struct {
	source       SampleSource
	minSamples   int
	ensembleOpts []EnsembleOption
	clock        func() time.Time
}

// TrainerOption applies a configuration option to the Trainer.
type TrainerOption func(*Trainer)

// WithMinTrainingSamples sets the minimum sample count required to train.
func WithMinTrainingSamples(n int) TrainerOption {
	return func(t *Trainer) {
		if n > 0 {
			t.minSamples = n
		}
	}
}

// WithEnsembleOptions forwards options to the trained ensemble.
func WithEnsembleOptions(opts ...EnsembleOption) TrainerOption {
	return func(t *Trainer) {
		t.ensembleOpts = opts
	}
}

// WithTrainerClock overrides the time source, used by tests.
func WithTrainerClock(clock func() time.Time) TrainerOption {
	return func(t *Trainer) {
		if clock != nil {
			t.clock = clock
		}
	}
}

// NewTrainer creates a trainer reading samples from source.
func NewTrainer(source SampleSource, opts ...TrainerOption) *Trainer {
	t := &Trainer{
		source:     source,
		minSamples: defaultMinTrainingSamples,
		clock:      time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Train fits an ensemble and returns it with its persistable artifact.
// Returns ErrInsufficientSamples when the corpus has not accumulated enough
// published-with-engagement items yet.
func (t *Trainer) Train(ctx context.Context) (*Ensemble, model.ModelArtifact, error) {
	pairs, err := t.source.TrainingPairs(ctx)
	if err != nil {
		return nil, model.ModelArtifact{}, fmt.Errorf("load training pairs: %w", err)
	}
	if len(pairs) < t.minSamples {
		return nil, model.ModelArtifact{}, fmt.Errorf("%w: have %d, need %d", ErrInsufficientSamples, len(pairs), t.minSamples)
	}

	features := make([][]float64, len(pairs))
	labels := make([]float64, len(pairs))
	for i := range pairs {
		features[i] = ExtractFeatures(&pairs[i].Candidate).Slice()
		labels[i] = clampScore(pairs[i].Engagement)
	}

	holdout := int(float64(len(pairs)) * holdoutFraction)
	if holdout < 1 {
		holdout = 1
	}
	trainFeatures, trainLabels := features[:len(features)-holdout], labels[:len(labels)-holdout]
	testFeatures, testLabels := features[len(features)-holdout:], labels[len(labels)-holdout:]

	ensemble := NewEnsemble(t.ensembleOpts...)
	if err := ensemble.Train(trainFeatures, trainLabels); err != nil {
		return nil, model.ModelArtifact{}, fmt.Errorf("fit ensemble: %w", err)
	}

	cvScore := rSquared(ensemble, testFeatures, testLabels)

	// Refit on the full set once validated.
	final := NewEnsemble(t.ensembleOpts...)
	if err := final.Train(features, labels); err != nil {
		return nil, model.ModelArtifact{}, fmt.Errorf("refit ensemble: %w", err)
	}

	artifact := final.Artifact()
	artifact.ID = model.NewID()
	artifact.TrainedAt = t.clock().UTC()
	artifact.SampleCount = len(pairs)
	artifact.CrossValidatedScore = cvScore

	return final, artifact, nil
}

// rSquared computes the coefficient of determination on a holdout set.
func rSquared(e *Ensemble, features [][]float64, labels []float64) float64 {
	if len(labels) == 0 {
		return 0
	}

	mean := 0.0
	for _, y := range labels {
		mean += y
	}
	mean /= float64(len(labels))

	var ssRes, ssTot float64
	for i, row := range features {
		pred, _, err := e.Predict(row)
		if err != nil {
			return 0
		}
		ssRes += (labels[i] - pred) * (labels[i] - pred)
		ssTot += (labels[i] - mean) * (labels[i] - mean)
	}
	if ssTot == 0 {
		return 0
	}
	return math.Max(0, 1-ssRes/ssTot)
}
