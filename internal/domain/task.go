package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TaskStatus represents the current state of a task.
type TaskStatus string

// Possible task status values.
const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusStopped   TaskStatus = "stopped"
)

// isValidTaskStatus checks if the given status is a valid TaskStatus.
func isValidTaskStatus(status TaskStatus) bool {
	switch status {
	case TaskStatusPending, TaskStatusRunning, TaskStatusCompleted,
		TaskStatusFailed, TaskStatusStopped:
		return true
	default:
		return false
	}
}

// Terminal reports whether the status is a final one (the task has left
// the pending sequence for good unless re-enqueued).
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// Task represents one image's processing job: its path, lifecycle status,
// step-level resume point and accumulated result.
type Task struct {
	ID           uuid.UUID     `json:"id"`
	ImagePath    string        `json:"image_path"`
	Status       TaskStatus    `json:"status"`
	Step         TaskStep      `json:"step"`
	Result       ImageMetadata `json:"result"`
	Error        string        `json:"error,omitempty"`
	Warning      string        `json:"warning,omitempty"`
	AttemptCount int           `json:"attempt_count"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`

	// stepFraction is the executor's fractional completion signal for the
	// step currently in flight. It is derived state and never serialized;
	// Progress() recomputes from Step plus this value.
	stepFraction float64
}

// NewTask creates a new pending Task for the given image path.
// Returns an error if the path is empty.
func NewTask(imagePath string) (*Task, error) {
	if imagePath == "" {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, ErrEmptyImagePath)
	}

	now := time.Now().UTC()
	return &Task{
		ID:        uuid.New(),
		ImagePath: imagePath,
		Status:    TaskStatusPending,
		Step:      StepNotStarted,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Validate checks that the task's fields are internally consistent.
func (t *Task) Validate() error {
	if t.ID == uuid.Nil {
		return fmt.Errorf("%w: task ID cannot be empty", ErrInvalidInput)
	}
	if t.ImagePath == "" {
		return ErrEmptyImagePath
	}
	if !isValidTaskStatus(t.Status) {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, t.Status)
	}
	if !t.Step.Valid() {
		return fmt.Errorf("%w: unknown step %q", ErrInvalidStep, t.Step)
	}
	if t.Status == TaskStatusCompleted && t.Step != StepTextDone {
		return fmt.Errorf("%w: completed task must have all steps done", ErrInvalidStatus)
	}
	return nil
}

// Active reports whether the task still occupies its image path: a second
// task for the same path is only allowed once this one is terminal.
func (t *Task) Active() bool {
	return !t.Status.Terminal()
}

// Begin transitions the task to running. Legal from pending or stopped;
// a stopped task resumes from its last completed step.
func (t *Task) Begin() error {
	if t.Status != TaskStatusPending && t.Status != TaskStatusStopped {
		return fmt.Errorf("%w: cannot begin task in status %q", ErrInvalidTransition, t.Status)
	}
	t.Status = TaskStatusRunning
	t.AttemptCount++
	t.stepFraction = 0
	t.touch()
	return nil
}

// Advance records the completion of one step. The target step must
// immediately follow the current one and the task must be running.
func (t *Task) Advance(step TaskStep, partial StepResult) error {
	if t.Status != TaskStatusRunning {
		return fmt.Errorf("%w: cannot advance task in status %q", ErrInvalidTransition, t.Status)
	}
	next, ok := t.Step.Next()
	if !ok || next != step {
		return fmt.Errorf("%w: %q does not follow %q", ErrInvalidStep, step, t.Step)
	}
	if err := partial.Validate(); err != nil {
		return err
	}
	t.Result.Apply(partial)
	t.Step = step
	t.stepFraction = 0
	t.touch()
	return nil
}

// Complete marks the task as successfully finished. Requires a running
// task with every step done.
func (t *Task) Complete(result ImageMetadata) error {
	if t.Status != TaskStatusRunning {
		return fmt.Errorf("%w: cannot complete task in status %q", ErrInvalidTransition, t.Status)
	}
	if t.Step != StepTextDone {
		return fmt.Errorf("%w: cannot complete task at step %q", ErrInvalidStep, t.Step)
	}
	result.IsProcessed = true
	t.Result = result
	t.Status = TaskStatusCompleted
	t.Error = ""
	t.stepFraction = 0
	t.touch()
	return nil
}

// Fail marks the task as failed with the given reason.
func (t *Task) Fail(reason string) error {
	if t.Status != TaskStatusRunning {
		return fmt.Errorf("%w: cannot fail task in status %q", ErrInvalidTransition, t.Status)
	}
	t.Status = TaskStatusFailed
	t.Error = reason
	t.stepFraction = 0
	t.touch()
	return nil
}

// Stop marks a running task as stopped, preserving its last completed
// step and partial result so a later run resumes where it left off.
func (t *Task) Stop() error {
	if t.Status != TaskStatusRunning {
		return fmt.Errorf("%w: cannot stop task in status %q", ErrInvalidTransition, t.Status)
	}
	t.Status = TaskStatusStopped
	t.stepFraction = 0
	t.touch()
	return nil
}

// SetWarning attaches a non-fatal warning (such as a post-completion
// synchronization mismatch) without changing the task's status.
func (t *Task) SetWarning(msg string) {
	t.Warning = msg
	t.touch()
}

// SetStepFraction records the executor's fractional completion signal for
// the in-flight step, clamped to [0, 1]. Ignored unless running.
func (t *Task) SetStepFraction(f float64) {
	if t.Status != TaskStatusRunning {
		return
	}
	if f < 0 {
		f = 0
	}
	if f > 1 {
		f = 1
	}
	t.stepFraction = f
}

// Progress reports overall completion in [0, 100]. It is a pure function
// of the completed step count and, while running, the in-step fraction:
// each step occupies a fixed third of the range.
func (t *Task) Progress() float64 {
	if t.Status == TaskStatusCompleted {
		return 100
	}
	stepShare := 100.0 / StepCount
	progress := float64(t.Step.Ordinal()) * stepShare
	if t.Status == TaskStatusRunning {
		progress += t.stepFraction * stepShare
	}
	if progress > 100 {
		progress = 100
	}
	return progress
}

// touch updates the task's UpdatedAt timestamp.
func (t *Task) touch() {
	t.UpdatedAt = time.Now().UTC()
}
