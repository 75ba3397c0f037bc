package embedding

import "errors"

// Client errors.
var (
	ErrNotConfigured  = errors.New("embedding endpoint not configured")
	ErrEmptyEmbedding = errors.New("embedding service returned an empty vector")
)
