package repository

import "errors"

// Store errors.
var (
	ErrNotFound = errors.New("record not found")
)
