package domain

import "fmt"

// TaskStep marks the last fully completed step of a task. It is the resume
// point after a stop or crash and never takes a mid-step value.
type TaskStep string

// Possible task step values, in execution order.
const (
	StepNotStarted      TaskStep = "not_started"
	StepDescriptionDone TaskStep = "description_done"
	StepTagsDone        TaskStep = "tags_done"
	StepTextDone        TaskStep = "text_done"
)

// StepCount is the number of processing steps per task.
const StepCount = 3

// stepOrder maps each step to its ordinal (number of completed steps).
var stepOrder = map[TaskStep]int{
	StepNotStarted:      0,
	StepDescriptionDone: 1,
	StepTagsDone:        2,
	StepTextDone:        3,
}

// Ordinal returns the number of steps completed at this marker (0..3).
// Unknown values are treated as zero completed steps.
func (s TaskStep) Ordinal() int {
	return stepOrder[s]
}

// Valid reports whether s is a known step marker.
func (s TaskStep) Valid() bool {
	_, ok := stepOrder[s]
	return ok
}

// Next returns the step marker that follows s. The second return value is
// false when s is already the final step.
func (s TaskStep) Next() (TaskStep, bool) {
	switch s {
	case StepNotStarted:
		return StepDescriptionDone, true
	case StepDescriptionDone:
		return StepTagsDone, true
	case StepTagsDone:
		return StepTextDone, true
	default:
		return s, false
	}
}

// StepKind identifies one of the three ordered vision operations executed
// against the backend.
type StepKind string

// Possible step kinds, in execution order.
const (
	StepKindDescription StepKind = "description"
	StepKindTags        StepKind = "tags"
	StepKindText        StepKind = "text"
)

// Completes returns the step marker reached when this kind of step
// finishes successfully.
func (k StepKind) Completes() TaskStep {
	switch k {
	case StepKindDescription:
		return StepDescriptionDone
	case StepKindTags:
		return StepTagsDone
	case StepKindText:
		return StepTextDone
	default:
		return StepNotStarted
	}
}

// NextKind returns the kind of step to execute after the given marker.
// The second return value is false when no steps remain.
func (s TaskStep) NextKind() (StepKind, bool) {
	switch s {
	case StepNotStarted:
		return StepKindDescription, true
	case StepDescriptionDone:
		return StepKindTags, true
	case StepTagsDone:
		return StepKindText, true
	default:
		return "", false
	}
}

// StepResult is the closed, validated output of a single backend step.
// Exactly the fields for its Kind are meaningful.
type StepResult struct {
	Kind        StepKind `json:"kind"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Text        string   `json:"text,omitempty"`
	HasText     bool     `json:"has_text,omitempty"`
}

// Validate checks that the result carries the fields its kind requires.
func (r StepResult) Validate() error {
	switch r.Kind {
	case StepKindDescription:
		if r.Description == "" {
			return fmt.Errorf("%w: description result is empty", ErrInvalidInput)
		}
	case StepKindTags:
		if len(r.Tags) == 0 {
			return fmt.Errorf("%w: tags result is empty", ErrInvalidInput)
		}
	case StepKindText:
		if !r.HasText && r.Text != "" {
			return fmt.Errorf("%w: text result present but has_text is false", ErrInvalidInput)
		}
	default:
		return fmt.Errorf("%w: unknown step kind %q", ErrInvalidInput, r.Kind)
	}
	return nil
}
