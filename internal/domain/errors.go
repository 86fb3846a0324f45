package domain

import "errors"

// Common domain errors used across the application.
var (
	// ErrInvalidInput is returned when a caller-supplied value fails
	// validation, for example an empty image path or a duplicate enqueue.
	// More specific errors wrap this one.
	ErrInvalidInput = errors.New("invalid input")

	// ErrEmptyImagePath is returned when a task is created without an
	// image path.
	ErrEmptyImagePath = errors.New("image path cannot be empty")

	// ErrInvalidTransition is returned when a task transition is requested
	// from a status that does not permit it.
	ErrInvalidTransition = errors.New("invalid task transition")

	// ErrInvalidStep is returned when an advance targets a step that does
	// not immediately follow the task's current step.
	ErrInvalidStep = errors.New("invalid step advance")

	// ErrInvalidStatus is returned when a task status value is not one of
	// the known statuses.
	ErrInvalidStatus = errors.New("invalid task status")
)
