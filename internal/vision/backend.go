package vision

import (
	"context"

	"github.com/phrazzld/visor/internal/domain"
)

// ProgressFunc receives a step's fractional completion signal in [0, 1].
// Implementations that have no incremental signal simply never call it.
type ProgressFunc func(fraction float64)

// Backend defines the interface for the external vision model. The backend
// accepts at most one in-flight request, so callers must serialize their
// calls; the processing queue's single worker guarantees this.
type Backend interface {
	// RunStep performs exactly one analysis step for the image at the given
	// path. The call may block until the backend finishes or ctx expires;
	// once issued it is treated as un-cancellable and is always allowed to
	// finish or fail cleanly.
	//
	// Returns the structured result for the step, or an error (see
	// errors.go for the specific kinds).
	RunStep(ctx context.Context, imagePath string, kind domain.StepKind, progress ProgressFunc) (domain.StepResult, error)
}
