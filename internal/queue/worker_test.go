package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/visor/internal/domain"
	"github.com/phrazzld/visor/internal/vision"
)

// stepResultFor builds a valid result for the given step kind.
func stepResultFor(kind domain.StepKind) domain.StepResult {
	switch kind {
	case domain.StepKindDescription:
		return domain.StepResult{Kind: kind, Description: "a dog running on a beach"}
	case domain.StepKindTags:
		return domain.StepResult{Kind: kind, Tags: []string{"dog", "beach", "outdoor"}}
	default:
		return domain.StepResult{Kind: kind, HasText: true, Text: "BEACH RULES"}
	}
}

type backendCall struct {
	imagePath string
	kind      domain.StepKind
}

// scriptedBackend records every step call and can fail specific steps,
// block until released, or run a hook at the start of each call.
type scriptedBackend struct {
	mu     sync.Mutex
	calls  []backendCall
	failOn map[backendCall]error
	onStep func(call backendCall)
	block  chan struct{}
}

func (b *scriptedBackend) RunStep(
	ctx context.Context,
	imagePath string,
	kind domain.StepKind,
	_ vision.ProgressFunc,
) (domain.StepResult, error) {
	call := backendCall{imagePath: imagePath, kind: kind}

	b.mu.Lock()
	b.calls = append(b.calls, call)
	hook := b.onStep
	block := b.block
	err := b.failOn[call]
	b.mu.Unlock()

	if hook != nil {
		hook(call)
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return domain.StepResult{}, ctx.Err()
		}
	}
	if err != nil {
		return domain.StepResult{}, err
	}
	return stepResultFor(kind), nil
}

func (b *scriptedBackend) callsFor(imagePath string) []domain.StepKind {
	b.mu.Lock()
	defer b.mu.Unlock()
	var kinds []domain.StepKind
	for _, c := range b.calls {
		if c.imagePath == imagePath {
			kinds = append(kinds, c.kind)
		}
	}
	return kinds
}

// stubSyncer records synchronization calls and returns a fixed error.
type stubSyncer struct {
	mu     sync.Mutex
	synced []string
	result domain.ImageMetadata
	err    error
}

func (s *stubSyncer) SyncCompleted(_ context.Context, imagePath string, result domain.ImageMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.synced = append(s.synced, imagePath)
	s.result = result
	return s.err
}

func newTestWorker(t *testing.T, backend vision.Backend, syncer Synchronizer) (*Worker, *ProcessingQueue) {
	t.Helper()
	q := NewProcessingQueue(nil, 100, discardLogger())
	executor := NewStepExecutor(backend, time.Minute, discardLogger())
	return NewWorker(q, executor, syncer, discardLogger()), q
}

func waitForWorker(t *testing.T, w *Worker) {
	t.Helper()
	select {
	case <-w.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not finish in time")
	}
}

func taskByPath(t *testing.T, q *ProcessingQueue, imagePath string) TaskInfo {
	t.Helper()
	for _, info := range q.ListTasks() {
		if info.Task.ImagePath == imagePath {
			return info
		}
	}
	t.Fatalf("no task found for %s", imagePath)
	return TaskInfo{}
}

func TestWorkerProcessesQueueInOrder(t *testing.T) {
	backend := &scriptedBackend{}
	syncer := &stubSyncer{}
	w, q := newTestWorker(t, backend, syncer)

	_, err := q.Enqueue("/photos/a.jpg")
	require.NoError(t, err)
	_, err = q.Enqueue("/photos/b.jpg")
	require.NoError(t, err)

	require.NoError(t, w.Start(context.Background()))
	waitForWorker(t, w)

	for _, p := range []string{"/photos/a.jpg", "/photos/b.jpg"} {
		info := taskByPath(t, q, p)
		assert.Equal(t, domain.TaskStatusCompleted, info.Task.Status)
		assert.Equal(t, 100.0, info.Progress)
		assert.True(t, info.Task.Result.IsProcessed)
		assert.Equal(t, []domain.StepKind{
			domain.StepKindDescription, domain.StepKindTags, domain.StepKindText,
		}, backend.callsFor(p))
	}

	assert.Equal(t, []string{"/photos/a.jpg", "/photos/b.jpg"}, syncer.synced)
	assert.True(t, syncer.result.IsProcessed)
	assert.False(t, w.Running())
	assert.False(t, q.Processing())
}

func TestWorkerFailureMovesToNextTask(t *testing.T) {
	backend := &scriptedBackend{
		failOn: map[backendCall]error{
			{imagePath: "/photos/a.jpg", kind: domain.StepKindTags}: errors.New("model crashed"),
		},
	}
	syncer := &stubSyncer{}
	w, q := newTestWorker(t, backend, syncer)

	_, err := q.Enqueue("/photos/a.jpg")
	require.NoError(t, err)
	_, err = q.Enqueue("/photos/b.jpg")
	require.NoError(t, err)

	require.NoError(t, w.Start(context.Background()))
	waitForWorker(t, w)

	failed := taskByPath(t, q, "/photos/a.jpg")
	assert.Equal(t, domain.TaskStatusFailed, failed.Task.Status)
	assert.Contains(t, failed.Task.Error, "model crashed")
	// No automatic retry: the failing step runs exactly once.
	assert.Equal(t, []domain.StepKind{
		domain.StepKindDescription, domain.StepKindTags,
	}, backend.callsFor("/photos/a.jpg"))

	done := taskByPath(t, q, "/photos/b.jpg")
	assert.Equal(t, domain.TaskStatusCompleted, done.Task.Status)
	assert.Equal(t, []string{"/photos/b.jpg"}, syncer.synced)
}

func TestWorkerStopsAtStepBoundaryAndResumes(t *testing.T) {
	backend := &scriptedBackend{}
	syncer := &stubSyncer{}
	w, q := newTestWorker(t, backend, syncer)

	// Request a stop while the first step is in flight; it must still
	// finish, and the task parks with that step recorded.
	backend.onStep = func(call backendCall) {
		if call.kind == domain.StepKindDescription {
			q.RequestStop()
		}
	}

	_, err := q.Enqueue("/photos/a.jpg")
	require.NoError(t, err)

	require.NoError(t, w.Start(context.Background()))
	waitForWorker(t, w)

	stopped := taskByPath(t, q, "/photos/a.jpg")
	assert.Equal(t, domain.TaskStatusStopped, stopped.Task.Status)
	assert.Equal(t, domain.StepDescriptionDone, stopped.Task.Step)
	assert.Equal(t, "a dog running on a beach", stopped.Task.Result.Description)
	assert.Empty(t, syncer.synced)

	// Restarting resumes the task and runs only the remaining steps.
	backend.onStep = nil
	require.NoError(t, w.Start(context.Background()))
	waitForWorker(t, w)

	resumed := taskByPath(t, q, "/photos/a.jpg")
	assert.Equal(t, domain.TaskStatusCompleted, resumed.Task.Status)
	assert.Equal(t, 2, resumed.Task.AttemptCount)
	assert.Equal(t, []domain.StepKind{
		domain.StepKindDescription, domain.StepKindTags, domain.StepKindText,
	}, backend.callsFor("/photos/a.jpg"), "completed step is never re-executed")
	assert.Equal(t, []string{"/photos/a.jpg"}, syncer.synced)
}

func TestWorkerSyncFailureSetsWarning(t *testing.T) {
	backend := &scriptedBackend{}
	syncer := &stubSyncer{err: errors.New("vector index verification mismatch")}
	w, q := newTestWorker(t, backend, syncer)

	_, err := q.Enqueue("/photos/a.jpg")
	require.NoError(t, err)

	require.NoError(t, w.Start(context.Background()))
	waitForWorker(t, w)

	// A synchronization failure never demotes a completed task.
	info := taskByPath(t, q, "/photos/a.jpg")
	assert.Equal(t, domain.TaskStatusCompleted, info.Task.Status)
	assert.Contains(t, info.Task.Warning, "verification mismatch")
}

func TestWorkerStartWhileRunning(t *testing.T) {
	backend := &scriptedBackend{block: make(chan struct{})}
	w, q := newTestWorker(t, backend, nil)

	_, err := q.Enqueue("/photos/a.jpg")
	require.NoError(t, err)

	require.NoError(t, w.Start(context.Background()))
	assert.ErrorIs(t, w.Start(context.Background()), ErrAlreadyProcessing)
	assert.True(t, q.Processing())

	close(backend.block)
	waitForWorker(t, w)

	// Once the loop exits the worker can be started again.
	assert.NoError(t, w.Start(context.Background()))
	waitForWorker(t, w)
}

func TestWorkerStopWaitsForLoopExit(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	var once sync.Once
	backend := &scriptedBackend{block: release}
	backend.onStep = func(backendCall) {
		once.Do(func() { close(started) })
	}
	w, q := newTestWorker(t, backend, nil)

	_, err := q.Enqueue("/photos/a.jpg")
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))

	// Stop while the first step is verifiably in flight.
	<-started
	go func() {
		time.Sleep(20 * time.Millisecond)
		close(release)
	}()

	require.NoError(t, w.Stop(context.Background()))
	assert.False(t, w.Running())

	// The in-flight step finished before the stop took effect.
	info := taskByPath(t, q, "/photos/a.jpg")
	assert.Equal(t, domain.TaskStatusStopped, info.Task.Status)
	assert.Equal(t, domain.StepDescriptionDone, info.Task.Step)
}

func TestWorkerSkipsUnrunnableTask(t *testing.T) {
	backend := &scriptedBackend{}
	w, q := newTestWorker(t, backend, nil)

	// A task rehydrated in a state that cannot begin must not wedge the
	// loop; it is parked and the rest of the queue still runs.
	stuck := mustNewTask(t, "/photos/stuck.jpg")
	require.NoError(t, stuck.Begin())
	q.mu.Lock()
	q.pending = append(q.pending, stuck)
	q.mu.Unlock()

	_, err := q.Enqueue("/photos/ok.jpg")
	require.NoError(t, err)

	require.NoError(t, w.Start(context.Background()))
	waitForWorker(t, w)

	done := taskByPath(t, q, "/photos/ok.jpg")
	assert.Equal(t, domain.TaskStatusCompleted, done.Task.Status)
	assert.Empty(t, backend.callsFor("/photos/stuck.jpg"))
	assert.Equal(t, 0, q.Status().PendingCount)
}

func TestWorkerStopWhenIdle(t *testing.T) {
	w, _ := newTestWorker(t, &scriptedBackend{}, nil)
	assert.NoError(t, w.Stop(context.Background()))
}

func TestWorkerWithoutSynchronizer(t *testing.T) {
	backend := &scriptedBackend{}
	w, q := newTestWorker(t, backend, nil)

	_, err := q.Enqueue("/photos/a.jpg")
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	waitForWorker(t, w)

	info := taskByPath(t, q, "/photos/a.jpg")
	assert.Equal(t, domain.TaskStatusCompleted, info.Task.Status)
	assert.Empty(t, info.Task.Warning)
}
