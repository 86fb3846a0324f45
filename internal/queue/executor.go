package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/visor/internal/domain"
	"github.com/phrazzld/visor/internal/vision"
)

// StepExecutor runs exactly one vision backend call per step with a
// bounded timeout, and forwards the backend's fractional progress signal
// to the caller. Backend failures are classified as timeout or protocol
// errors; they surface as task failures, never as worker crashes.
type StepExecutor struct {
	backend vision.Backend
	timeout time.Duration
	logger  *slog.Logger
}

// NewStepExecutor creates a StepExecutor wrapping the given backend.
func NewStepExecutor(backend vision.Backend, timeout time.Duration, logger *slog.Logger) *StepExecutor {
	return &StepExecutor{
		backend: backend,
		timeout: timeout,
		logger:  logger.With("component", "step_executor"),
	}
}

// Execute performs one analysis step for the image. The backend call gets
// a deadline but is never abandoned early: the executor waits for it to
// finish or time out rather than leaking backend-side state. The progress
// callback receives the step's own fraction in [0, 1]; a backend with no
// incremental signal reports nothing and the step jumps from 0 to done.
func (e *StepExecutor) Execute(
	ctx context.Context,
	imagePath string,
	kind domain.StepKind,
	progress vision.ProgressFunc,
) (domain.StepResult, error) {
	stepCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	e.logger.Debug("executing step", "image_path", imagePath, "step", string(kind))
	start := time.Now()

	result, err := e.backend.RunStep(stepCtx, imagePath, kind, progress)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, vision.ErrBackendTimeout) {
			return domain.StepResult{}, fmt.Errorf("%w: step %s for %s after %s",
				vision.ErrBackendTimeout, kind, imagePath, e.timeout)
		}
		if errors.Is(err, vision.ErrBackendProtocol) {
			return domain.StepResult{}, err
		}
		return domain.StepResult{}, fmt.Errorf("step %s failed for %s: %w", kind, imagePath, err)
	}

	// The backend boundary is where duck-typed model output becomes a
	// closed, validated variant.
	if result.Kind != kind {
		return domain.StepResult{}, fmt.Errorf("%w: backend answered step %q for requested step %q",
			vision.ErrBackendProtocol, result.Kind, kind)
	}
	if err := result.Validate(); err != nil {
		return domain.StepResult{}, fmt.Errorf("%w: %v", vision.ErrBackendProtocol, err)
	}

	e.logger.Debug("step completed",
		"image_path", imagePath, "step", string(kind), "duration", time.Since(start))
	return result, nil
}
