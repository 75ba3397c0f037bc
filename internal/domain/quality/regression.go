package quality

import (
	"math"
	"math/rand"

	"github.com/osena/curator/internal/domain/model"
)

// Ensemble training defaults. Deterministic seed keeps training reproducible
// in tests.
const (
	defaultEstimators   = 8
	defaultEpochs       = 200
	defaultLearningRate = 0.01
	defaultTrainSeed    = 42
)

// RegressionModel abstracts the trained scoring model so the heuristic
// fallback stays available regardless of what backs the prediction.
type RegressionModel interface {
	// Train fits the model on feature rows and labels.
	Train(features [][]float64, labels []float64) error

	// Predict returns a score in [1,10] and a confidence in [0,1].
	Predict(features []float64) (score, confidence float64, err error)
}

// Ensemble is a bagged committee of linear regressors trained by stochastic
// gradient descent on standardized features. The prediction is the estimator
// mean; confidence is derived from the spread across estimators.
type Ensemble struct {
	estimators   int
	epochs       int
	learningRate float64
	rng          *rand.Rand

	// Fitted state.
	intercepts []float64
	weights    [][]float64 // estimator x feature
	means      []float64
	scales     []float64
}

// EnsembleOption applies a configuration option to the Ensemble.
type EnsembleOption func(*Ensemble)

// WithEstimators sets the committee size.
func WithEstimators(n int) EnsembleOption {
	return func(e *Ensemble) {
		if n > 0 {
			e.estimators = n
		}
	}
}

// WithEpochs sets the gradient descent epoch count per estimator.
func WithEpochs(n int) EnsembleOption {
	return func(e *Ensemble) {
		if n > 0 {
			e.epochs = n
		}
	}
}

// WithLearningRate sets the gradient descent step size.
func WithLearningRate(lr float64) EnsembleOption {
	return func(e *Ensemble) {
		if lr > 0 {
			e.learningRate = lr
		}
	}
}

// WithSeed sets the random seed for bootstrap sampling.
func WithSeed(seed int64) EnsembleOption {
	return func(e *Ensemble) {
		e.rng = rand.New(rand.NewSource(seed)) //nolint:gosec // deterministic sampling, not cryptography
	}
}

// NewEnsemble creates an untrained ensemble with configuration options.
func NewEnsemble(opts ...EnsembleOption) *Ensemble {
	e := &Ensemble{
		estimators:   defaultEstimators,
		epochs:       defaultEpochs,
		learningRate: defaultLearningRate,
		rng:          rand.New(rand.NewSource(defaultTrainSeed)), //nolint:gosec // deterministic sampling, not cryptography
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Train fits the committee on bootstrap resamples of the training set.
func (e *Ensemble) Train(features [][]float64, labels []float64) error {
	if len(features) == 0 || len(features) != len(labels) {
		return ErrBadTrainingSet
	}
	dims := len(features[0])
	for _, row := range features {
		if len(row) != dims {
			return ErrBadTrainingSet
		}
	}

	e.means, e.scales = standardization(features)
	standardized := make([][]float64, len(features))
	for i, row := range features {
		standardized[i] = e.standardize(row)
	}

	e.intercepts = make([]float64, e.estimators)
	e.weights = make([][]float64, e.estimators)
	for k := 0; k < e.estimators; k++ {
		intercept, w := e.fitOne(standardized, labels)
		e.intercepts[k] = intercept
		e.weights[k] = w
	}
	return nil
}

// fitOne trains a single linear regressor on a bootstrap sample.
func (e *Ensemble) fitOne(features [][]float64, labels []float64) (float64, []float64) {
	n := len(features)
	dims := len(features[0])

	sample := make([]int, n)
	for i := range sample {
		sample[i] = e.rng.Intn(n)
	}

	intercept := 0.0
	w := make([]float64, dims)
	for epoch := 0; epoch < e.epochs; epoch++ {
		for _, idx := range sample {
			row, label := features[idx], labels[idx]
			pred := intercept + dot(w, row)
			grad := pred - label
			intercept -= e.learningRate * grad
			for j := range w {
				w[j] -= e.learningRate * grad * row[j]
			}
		}
	}
	return intercept, w
}

// Predict returns the clamped committee mean and a confidence in [0,1]
// computed from the standard deviation across estimator predictions.
func (e *Ensemble) Predict(features []float64) (float64, float64, error) {
	if len(e.weights) == 0 {
		return 0, 0, ErrModelUnavailable
	}
	if len(features) != len(e.means) {
		return 0, 0, ErrBadTrainingSet
	}

	row := e.standardize(features)
	preds := make([]float64, len(e.weights))
	sum := 0.0
	for k := range e.weights {
		preds[k] = e.intercepts[k] + dot(e.weights[k], row)
		sum += preds[k]
	}
	mean := sum / float64(len(preds))

	variance := 0.0
	for _, p := range preds {
		variance += (p - mean) * (p - mean)
	}
	variance /= float64(len(preds))

	// Tight committees are confident; wide spread decays toward 0.
	confidence := 1.0 / (1.0 + math.Sqrt(variance))

	return clampScore(mean), confidence, nil
}

// Artifact exports the fitted state for persistence.
func (e *Ensemble) Artifact() model.ModelArtifact {
	return model.ModelArtifact{
		FeatureNames:  FeatureNames(),
		Intercepts:    append([]float64(nil), e.intercepts...),
		Weights:       copyMatrix(e.weights),
		FeatureMeans:  append([]float64(nil), e.means...),
		FeatureScales: append([]float64(nil), e.scales...),
	}
}

// EnsembleFromArtifact restores a fitted ensemble from a persisted artifact.
func EnsembleFromArtifact(a model.ModelArtifact) (*Ensemble, error) {
	if len(a.Weights) == 0 || len(a.Weights) != len(a.Intercepts) {
		return nil, ErrModelUnavailable
	}
	if len(a.FeatureMeans) != len(a.FeatureScales) {
		return nil, ErrModelUnavailable
	}
	for _, row := range a.Weights {
		if len(row) != len(a.FeatureMeans) {
			return nil, ErrModelUnavailable
		}
	}

	e := NewEnsemble(WithEstimators(len(a.Weights)))
	e.intercepts = append([]float64(nil), a.Intercepts...)
	e.weights = copyMatrix(a.Weights)
	e.means = append([]float64(nil), a.FeatureMeans...)
	e.scales = append([]float64(nil), a.FeatureScales...)
	return e, nil
}

func (e *Ensemble) standardize(row []float64) []float64 {
	out := make([]float64, len(row))
	for j, v := range row {
		out[j] = (v - e.means[j]) / e.scales[j]
	}
	return out
}

// standardization computes per-feature means and scales; constant features
// get scale 1 so they standardize to zero.
func standardization(features [][]float64) ([]float64, []float64) {
	n := float64(len(features))
	dims := len(features[0])
	means := make([]float64, dims)
	scales := make([]float64, dims)

	for _, row := range features {
		for j, v := range row {
			means[j] += v
		}
	}
	for j := range means {
		means[j] /= n
	}

	for _, row := range features {
		for j, v := range row {
			scales[j] += (v - means[j]) * (v - means[j])
		}
	}
	for j := range scales {
		scales[j] = math.Sqrt(scales[j] / n)
		if scales[j] == 0 {
			scales[j] = 1
		}
	}
	return means, scales
}

func dot(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

func clampScore(v float64) float64 {
	return math.Max(float64(scoreMin), math.Min(float64(scoreMax), v))
}

func copyMatrix(m [][]float64) [][]float64 {
	out := make([][]float64, len(m))
	for i, row := range m {
		out[i] = append([]float64(nil), row...)
	}
	return out
}
