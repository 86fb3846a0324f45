package queue

import (
	"context"
	"log/slog"
	"sync"

	"github.com/phrazzld/visor/internal/domain"
)

// Synchronizer fans a completed task's result out to the durable and
// searchable stores. Implemented by the syncer package; the worker only
// needs this narrow contract.
type Synchronizer interface {
	// SyncCompleted upserts the result into every store and verifies they
	// agree. An error is non-fatal to the task: the metadata store write
	// is authoritative and is never rolled back.
	SyncCompleted(ctx context.Context, imagePath string, result domain.ImageMetadata) error
}

// Worker is the single background driver of the queue. It pulls tasks in
// FIFO order and runs their remaining steps sequentially, checking the
// cooperative stop flag only at step boundaries: an external call already
// in flight is always allowed to finish or fail cleanly.
//
// The vision backend accepts at most one in-flight request, so the
// single-task-at-a-time structure is a correctness requirement, not an
// optimization.
type Worker struct {
	queue    *ProcessingQueue
	executor *StepExecutor
	syncer   Synchronizer
	logger   *slog.Logger

	mu      sync.Mutex
	running bool
	done    chan struct{}
}

// NewWorker creates a worker for the given queue and executor. The
// synchronizer may be nil, in which case completed results are only
// recorded on the task.
func NewWorker(q *ProcessingQueue, executor *StepExecutor, syncer Synchronizer, logger *slog.Logger) *Worker {
	return &Worker{
		queue:    q,
		executor: executor,
		syncer:   syncer,
		logger:   logger.With("component", "worker"),
	}
}

// Start launches the background loop. Returns ErrAlreadyProcessing if the
// loop is already running. The loop exits when the queue drains, a stop is
// requested, or ctx is cancelled.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return ErrAlreadyProcessing
	}
	w.running = true
	w.done = make(chan struct{})

	w.queue.ResetStop()
	w.queue.MarkProcessing(true)

	go w.run(ctx, w.done)
	w.logger.Info("worker started")
	return nil
}

// Stop requests a cooperative stop and waits for the loop to exit or ctx
// to be cancelled. The in-flight step is never aborted; the worker stops
// at the next step boundary and the current task resumes later.
func (w *Worker) Stop(ctx context.Context) error {
	w.mu.Lock()
	done := w.done
	running := w.running
	w.mu.Unlock()

	w.queue.RequestStop()
	if !running || done == nil {
		return nil
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Running reports whether the loop is active.
func (w *Worker) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// Done returns a channel closed when the current loop exits, or nil when
// no loop has been started.
func (w *Worker) Done() <-chan struct{} {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.done
}

// run is the worker loop. It owns every task transition; all other
// goroutines only read status or set the stop flag.
func (w *Worker) run(ctx context.Context, done chan struct{}) {
	defer func() {
		w.queue.MarkProcessing(false)
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		close(done)
		w.logger.Info("worker stopped")
	}()

	processed := 0
	for {
		if w.stopRequested(ctx) {
			return
		}

		// A dequeue error means one unrunnable task was parked in history;
		// the rest of the queue must still be processed.
		task, err := w.queue.DequeueNext()
		if err != nil {
			w.logger.Error("failed to dequeue next task", "error", err)
			continue
		}
		if task == nil {
			w.logger.Info("queue drained", "processed", processed)
			return
		}

		w.processTask(ctx, task)
		processed++
	}
}

// stopRequested checks the cooperative stop flag and the context, parking
// any in-flight task back at the head of the queue when stopping.
func (w *Worker) stopRequested(ctx context.Context) bool {
	if !w.queue.ShouldStop() && ctx.Err() == nil {
		return false
	}
	if err := w.queue.StopCurrent(); err != nil {
		w.logger.Error("failed to stop in-flight task", "error", err)
	}
	return true
}

// processTask runs the task's remaining steps in fixed order, starting
// after its last completed step. Steps already done on a previous attempt
// are never re-executed.
func (w *Worker) processTask(ctx context.Context, task *domain.Task) {
	logger := w.logger.With("task_id", task.ID, "image_path", task.ImagePath)
	logger.Info("processing task", "resume_step", string(task.Step), "attempt", task.AttemptCount)

	for {
		kind, ok := task.Step.NextKind()
		if !ok {
			break
		}

		result, err := w.executor.Execute(ctx, task.ImagePath, kind, func(fraction float64) {
			w.queue.SetCurrentFraction(fraction)
		})
		if err != nil {
			logger.Error("step failed", "step", string(kind), "error", err)
			if failErr := w.queue.FailCurrent(err.Error()); failErr != nil {
				logger.Error("failed to record task failure", "error", failErr)
			}
			return
		}

		if err := w.queue.AdvanceCurrent(kind.Completes(), result); err != nil {
			logger.Error("failed to advance task", "step", string(kind), "error", err)
			if failErr := w.queue.FailCurrent(err.Error()); failErr != nil {
				logger.Error("failed to record task failure", "error", failErr)
			}
			return
		}

		// Cancellation is honored between steps only. The task keeps the
		// step it just finished and re-enters the queue at the head.
		if w.stopRequested(ctx) {
			logger.Info("task stopped at step boundary", "completed_step", string(task.Step))
			return
		}
	}

	finished := task.Result
	if err := w.queue.CompleteCurrent(finished); err != nil {
		logger.Error("failed to complete task", "error", err)
		return
	}
	logger.Info("task completed")

	if w.syncer == nil {
		return
	}
	// The task is already durable as completed; a synchronization mismatch
	// is recorded as a warning, not a rollback.
	finished.IsProcessed = true
	if err := w.syncer.SyncCompleted(ctx, task.ImagePath, finished); err != nil {
		logger.Warn("result synchronization failed", "error", err)
		w.queue.SetTaskWarning(task.ID, err.Error())
	}
}
