package queue

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/phrazzld/visor/internal/domain"
)

// TaskInfo is a point-in-time copy of one task for status reporting,
// including its computed progress.
type TaskInfo struct {
	Task     domain.Task `json:"task"`
	Progress float64     `json:"progress"`
}

// Status is a read-only snapshot of the queue's counters and in-flight task.
type Status struct {
	PendingCount   int       `json:"pending_count"`
	CompletedCount int       `json:"completed_count"`
	FailedCount    int       `json:"failed_count"`
	StoppedCount   int       `json:"stopped_count"`
	Processing     bool      `json:"processing"`
	Current        *TaskInfo `json:"current,omitempty"`
}

// ProcessingQueue holds the ordered pending tasks, the single in-flight
// task, and a bounded history of terminal tasks. All state is guarded by
// one mutex; every mutation that must survive a crash writes a snapshot
// before the lock is released, so a status read can never observe a
// transition that is not yet durable.
type ProcessingQueue struct {
	mu           sync.Mutex
	pending      []*domain.Task
	current      *domain.Task
	history      []*domain.Task
	shouldStop   bool
	processing   bool
	historyLimit int
	snapshots    *SnapshotStore
	logger       *slog.Logger
}

// NewProcessingQueue creates a queue, rehydrating state from the snapshot
// store when one is provided. A task snapshotted mid-run is rewound to the
// head of the pending sequence with its last completed step preserved, so
// the next processing run resumes it first.
func NewProcessingQueue(snapshots *SnapshotStore, historyLimit int, logger *slog.Logger) *ProcessingQueue {
	q := &ProcessingQueue{
		historyLimit: historyLimit,
		snapshots:    snapshots,
		logger:       logger.With("component", "processing_queue"),
	}

	if snapshots == nil {
		return q
	}

	state := snapshots.Load()
	q.pending = state.Pending
	q.history = state.History
	if state.Current != nil {
		task := state.Current
		if task.Status == domain.TaskStatusRunning {
			// The process died or stopped mid-run. Preserve the resume
			// point and let the next run pick this task up first.
			if err := task.Stop(); err != nil {
				q.logger.Warn("failed to rewind in-flight task from snapshot",
					"image_path", task.ImagePath, "error", err)
			}
		}
		if task.Active() {
			q.pending = append([]*domain.Task{task}, q.pending...)
		} else {
			q.history = append(q.history, task)
		}
	}
	q.trimHistory()

	if !state.Empty() {
		q.logger.Info("queue rehydrated from snapshot",
			"pending", len(q.pending), "history", len(q.history))
	}
	return q
}

// Enqueue creates a new pending task for the image path and appends it to
// the queue. Re-enqueuing a path that already has a pending or running
// task is rejected; a path whose previous task is terminal gets a fresh
// task.
func (q *ProcessingQueue) Enqueue(imagePath string) (domain.Task, error) {
	task, err := domain.NewTask(imagePath)
	if err != nil {
		return domain.Task{}, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.activePathLocked(imagePath) {
		return domain.Task{}, fmt.Errorf("%w: %s", ErrDuplicateTask, imagePath)
	}

	q.pending = append(q.pending, task)
	q.persistLocked()
	q.logger.Info("task enqueued",
		"task_id", task.ID, "image_path", imagePath, "pending", len(q.pending))
	return *task, nil
}

// DequeueNext removes the next pending task, transitions it to running and
// records it as the in-flight task. Returns nil when the queue is drained.
// Only the worker loop calls this.
func (q *ProcessingQueue) DequeueNext() (*domain.Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.current != nil {
		return nil, fmt.Errorf("%w: %s", ErrQueueBusy, q.current.ImagePath)
	}
	if len(q.pending) == 0 {
		return nil, nil
	}

	task := q.pending[0]
	q.pending = q.pending[1:]
	if err := task.Begin(); err != nil {
		// A task that cannot begin is unrunnable; park it in history
		// rather than wedging the head of the queue.
		q.logger.Error("dropping unrunnable task",
			"task_id", task.ID, "image_path", task.ImagePath, "error", err)
		q.history = append(q.history, task)
		q.trimHistory()
		q.persistLocked()
		return nil, err
	}
	q.current = task
	q.persistLocked()
	q.logger.Info("task dequeued",
		"task_id", task.ID, "image_path", task.ImagePath,
		"resume_step", string(task.Step), "attempt", task.AttemptCount)
	return task, nil
}

// AdvanceCurrent records the completion of one step on the in-flight task
// and persists the new resume point.
func (q *ProcessingQueue) AdvanceCurrent(step domain.TaskStep, partial domain.StepResult) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.current == nil {
		return ErrNoCurrentTask
	}
	if err := q.current.Advance(step, partial); err != nil {
		return err
	}
	q.persistLocked()
	return nil
}

// SetCurrentFraction records the executor's in-step progress signal for
// the in-flight task. Progress-only updates are not persisted; the resume
// point is the last completed step, never a mid-step value.
func (q *ProcessingQueue) SetCurrentFraction(fraction float64) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.current != nil {
		q.current.SetStepFraction(fraction)
	}
}

// CompleteCurrent marks the in-flight task completed and moves it to
// history.
func (q *ProcessingQueue) CompleteCurrent(result domain.ImageMetadata) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.current == nil {
		return ErrNoCurrentTask
	}
	if err := q.current.Complete(result); err != nil {
		return err
	}
	q.finishCurrentLocked()
	return nil
}

// FailCurrent marks the in-flight task failed and moves it to history.
// There is no automatic retry: the backend accepts a single in-flight
// request, so silently retrying would mask systemic unavailability.
func (q *ProcessingQueue) FailCurrent(reason string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.current == nil {
		return ErrNoCurrentTask
	}
	if err := q.current.Fail(reason); err != nil {
		return err
	}
	q.logger.Warn("task failed",
		"task_id", q.current.ID, "image_path", q.current.ImagePath, "error", reason)
	q.finishCurrentLocked()
	return nil
}

// StopCurrent transitions the in-flight task to stopped and re-inserts it
// at the head of the pending sequence, so a later processing run resumes
// it from its last completed step. A no-op when nothing is running.
func (q *ProcessingQueue) StopCurrent() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.current == nil {
		return nil
	}
	if err := q.current.Stop(); err != nil {
		return err
	}
	task := q.current
	q.current = nil
	q.pending = append([]*domain.Task{task}, q.pending...)
	q.persistLocked()
	q.logger.Info("task stopped and requeued at head",
		"task_id", task.ID, "image_path", task.ImagePath, "resume_step", string(task.Step))
	return nil
}

// SetTaskWarning attaches a non-fatal warning to the task with the given
// id, wherever it currently lives.
func (q *ProcessingQueue) SetTaskWarning(taskID uuid.UUID, msg string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if task := q.findLocked(taskID); task != nil {
		task.SetWarning(msg)
		q.persistLocked()
	}
}

// RequestStop sets the cooperative stop flag. It does not touch the
// in-flight task; the worker observes the flag at its next step boundary.
func (q *ProcessingQueue) RequestStop() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.shouldStop = true
	q.logger.Info("stop requested")
}

// ResetStop clears the stop flag. Called when processing (re)starts.
func (q *ProcessingQueue) ResetStop() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.shouldStop = false
}

// ShouldStop reports whether a cooperative stop has been requested.
func (q *ProcessingQueue) ShouldStop() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.shouldStop
}

// MarkProcessing records whether the worker loop is running.
func (q *ProcessingQueue) MarkProcessing(active bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.processing = active
}

// Processing reports whether the worker loop is running.
func (q *ProcessingQueue) Processing() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.processing
}

// Clear empties the pending sequence and history and deletes the durable
// snapshot. Fails with ErrQueueBusy while a task is running; stop first.
func (q *ProcessingQueue) Clear() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.current != nil {
		return ErrQueueBusy
	}

	// The snapshot goes first: if the delete fails, memory still matches
	// the durable state and the clear can simply be retried.
	if q.snapshots != nil {
		if err := q.snapshots.Delete(); err != nil {
			return err
		}
	}
	q.pending = nil
	q.history = nil
	q.logger.Info("queue cleared")
	return nil
}

// Status returns a consistent point-in-time view of the queue's counters
// and the in-flight task's live progress. Safe to call concurrently with
// the worker; it holds the lock only for the copy.
func (q *ProcessingQueue) Status() Status {
	q.mu.Lock()
	defer q.mu.Unlock()

	status := Status{
		PendingCount: len(q.pending),
		Processing:   q.processing,
	}
	// Stopped tasks wait at the head of the pending sequence for resume.
	for _, task := range q.pending {
		if task.Status == domain.TaskStatusStopped {
			status.StoppedCount++
		}
	}
	for _, task := range q.history {
		switch task.Status {
		case domain.TaskStatusCompleted:
			status.CompletedCount++
		case domain.TaskStatusFailed:
			status.FailedCount++
		case domain.TaskStatusStopped:
			status.StoppedCount++
		}
	}
	if q.current != nil {
		status.Current = &TaskInfo{Task: *q.current, Progress: q.current.Progress()}
	}
	return status
}

// ListTasks returns copies of every task the queue knows about: pending,
// in-flight, then history.
func (q *ProcessingQueue) ListTasks() []TaskInfo {
	q.mu.Lock()
	defer q.mu.Unlock()

	tasks := make([]TaskInfo, 0, len(q.pending)+len(q.history)+1)
	for _, task := range q.pending {
		tasks = append(tasks, TaskInfo{Task: *task, Progress: task.Progress()})
	}
	if q.current != nil {
		tasks = append(tasks, TaskInfo{Task: *q.current, Progress: q.current.Progress()})
	}
	for _, task := range q.history {
		tasks = append(tasks, TaskInfo{Task: *task, Progress: task.Progress()})
	}
	return tasks
}

// activePathLocked reports whether the path has a pending or running task.
func (q *ProcessingQueue) activePathLocked(imagePath string) bool {
	if q.current != nil && q.current.ImagePath == imagePath && q.current.Active() {
		return true
	}
	for _, task := range q.pending {
		if task.ImagePath == imagePath && task.Active() {
			return true
		}
	}
	return false
}

// findLocked locates a task by id in any of the queue's collections.
func (q *ProcessingQueue) findLocked(taskID uuid.UUID) *domain.Task {
	if q.current != nil && q.current.ID == taskID {
		return q.current
	}
	for _, task := range q.pending {
		if task.ID == taskID {
			return task
		}
	}
	for _, task := range q.history {
		if task.ID == taskID {
			return task
		}
	}
	return nil
}

// finishCurrentLocked moves the in-flight task to history and persists.
func (q *ProcessingQueue) finishCurrentLocked() {
	q.history = append(q.history, q.current)
	q.current = nil
	q.trimHistory()
	q.persistLocked()
}

// trimHistory drops the oldest terminal tasks beyond the configured bound.
func (q *ProcessingQueue) trimHistory() {
	if q.historyLimit > 0 && len(q.history) > q.historyLimit {
		q.history = q.history[len(q.history)-q.historyLimit:]
	}
}

// persistLocked writes a snapshot of the full queue state. Must be called
// with the mutex held. Snapshot failures are logged rather than propagated:
// an unpersisted transition is still correct in memory, and the next
// successful save will capture it.
func (q *ProcessingQueue) persistLocked() {
	if q.snapshots == nil {
		return
	}
	state := State{
		Pending: q.pending,
		Current: q.current,
		History: q.history,
	}
	if err := q.snapshots.Save(state); err != nil {
		q.logger.Error("failed to save queue snapshot", "error", err)
	}
}
