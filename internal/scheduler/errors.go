package scheduler

import "errors"

// Registration and lifecycle errors.
var (
	ErrUnnamedTask    = errors.New("task has no name")
	ErrNilTaskBody    = errors.New("task has no run function")
	ErrDuplicateTask  = errors.New("task already registered")
	ErrUnknownTask    = errors.New("task not registered")
	ErrAlreadyStarted = errors.New("scheduler already started")
)
