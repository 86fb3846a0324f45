package queue

import (
	"errors"
	"fmt"

	"github.com/phrazzld/visor/internal/domain"
)

// Common errors returned by the queue package.
var (
	// ErrDuplicateTask is returned when an enqueue names an image path that
	// already has a pending or running task.
	ErrDuplicateTask = fmt.Errorf("%w: image path already has an active task", domain.ErrInvalidInput)

	// ErrQueueBusy is returned when clear is requested while a task is
	// running; processing must be stopped first.
	ErrQueueBusy = errors.New("queue is busy: a task is currently running")

	// ErrAlreadyProcessing is returned when the worker is asked to start
	// while its loop is still running.
	ErrAlreadyProcessing = errors.New("queue is already being processed")

	// ErrNoCurrentTask is returned when an in-flight transition is requested
	// but no task is running.
	ErrNoCurrentTask = errors.New("no task is currently running")

	// ErrSnapshotCorrupt marks a snapshot file that could not be parsed.
	// It is logged and recovered as an empty queue, never surfaced to
	// callers at startup.
	ErrSnapshotCorrupt = errors.New("queue snapshot is corrupt")
)
