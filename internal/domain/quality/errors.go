package quality

import "errors"

// Sentinel kinds for quality scoring errors.
var (
	ErrModelUnavailable    = errors.New("regression model unavailable")
	ErrBadTrainingSet      = errors.New("malformed training set")
	ErrInsufficientSamples = errors.New("insufficient training samples")
)
