package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/phrazzld/visor/internal/domain"
)

// snapshotFileName is the queue state file kept in the data directory.
const snapshotFileName = ".queue_state.json"

// snapshotVersion guards against reading state written by an incompatible
// layout; a mismatch is treated the same as corruption.
const snapshotVersion = 1

// State is a serializable capture of the entire queue: the pending
// sequence, the in-flight task with its exact resume point, and the
// bounded history of terminal tasks.
type State struct {
	Version int            `json:"version"`
	Pending []*domain.Task `json:"pending"`
	Current *domain.Task   `json:"current,omitempty"`
	History []*domain.Task `json:"history"`
	SavedAt time.Time      `json:"saved_at"`
}

// Empty reports whether the state carries no tasks at all.
func (s State) Empty() bool {
	return len(s.Pending) == 0 && s.Current == nil && len(s.History) == 0
}

// SnapshotStore persists queue state to a single JSON file, written
// atomically so a crash mid-write never corrupts the previous durable copy.
type SnapshotStore struct {
	path   string
	logger *slog.Logger
}

// NewSnapshotStore creates a snapshot store rooted in the given data
// directory. The directory is created if it does not exist.
func NewSnapshotStore(dataDir string, logger *slog.Logger) (*SnapshotStore, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory %s: %w", dataDir, err)
	}
	return &SnapshotStore{
		path:   filepath.Join(dataDir, snapshotFileName),
		logger: logger.With("component", "snapshot_store"),
	}, nil
}

// Save serializes the state and writes it atomically: first to a temporary
// file next to the snapshot, then renamed over it.
func (s *SnapshotStore) Save(state State) error {
	state.Version = snapshotVersion
	state.SavedAt = time.Now().UTC()

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal queue state: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write temporary snapshot: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}

	s.logger.Debug("queue snapshot saved",
		"pending", len(state.Pending),
		"history", len(state.History),
		"in_flight", state.Current != nil)
	return nil
}

// Load reads the persisted queue state. A missing file yields an empty
// state; a corrupt or incompatible file is logged and also yields an empty
// state. Losing an unrecoverable snapshot is preferable to blocking
// startup, so Load never fails.
func (s *SnapshotStore) Load() State {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.logger.Debug("no queue snapshot found", "path", s.path)
			return State{}
		}
		s.logger.Warn("failed to read queue snapshot, starting empty",
			"path", s.path, "error", err)
		return State{}
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		s.logger.Warn("recovering from corrupt queue snapshot, starting empty",
			"path", s.path,
			"error", fmt.Errorf("%w: %v", ErrSnapshotCorrupt, err))
		return State{}
	}
	if state.Version != snapshotVersion {
		s.logger.Warn("recovering from incompatible queue snapshot, starting empty",
			"path", s.path,
			"snapshot_version", state.Version,
			"supported_version", snapshotVersion)
		return State{}
	}

	// Drop any entries that fail basic validation rather than rejecting
	// the whole snapshot.
	state.Pending = validTasks(state.Pending, s.logger)
	state.History = validTasks(state.History, s.logger)
	if state.Current != nil && state.Current.Validate() != nil {
		s.logger.Warn("dropping invalid in-flight task from snapshot",
			"image_path", state.Current.ImagePath)
		state.Current = nil
	}

	s.logger.Info("queue snapshot loaded",
		"pending", len(state.Pending),
		"history", len(state.History),
		"in_flight", state.Current != nil)
	return state
}

// Delete removes the snapshot file. Called when the queue is cleared.
func (s *SnapshotStore) Delete() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	return nil
}

// validTasks filters out tasks that fail validation, logging each drop.
func validTasks(tasks []*domain.Task, logger *slog.Logger) []*domain.Task {
	valid := tasks[:0]
	for _, task := range tasks {
		if task == nil {
			continue
		}
		if err := task.Validate(); err != nil {
			logger.Warn("dropping invalid task from snapshot",
				"image_path", task.ImagePath, "error", err)
			continue
		}
		valid = append(valid, task)
	}
	return valid
}
