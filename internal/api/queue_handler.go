// Package api implements the HTTP control surface for the processing
// queue and search.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/phrazzld/visor/internal/api/shared"
	"github.com/phrazzld/visor/internal/domain"
	"github.com/phrazzld/visor/internal/queue"
	"github.com/phrazzld/visor/internal/service"
	"github.com/phrazzld/visor/internal/vectorindex"
)

// ProcessingService is the application facade the handlers call into.
// Satisfied by service.ProcessingService.
type ProcessingService interface {
	EnqueueFolder(ctx context.Context, folder string) (service.EnqueueReport, error)
	StartProcessing(ctx context.Context) error
	StopProcessing(ctx context.Context) error
	ClearQueue() error
	QueueStatus() queue.Status
	ListTasks() []queue.TaskInfo
	Search(ctx context.Context, query string, limit int) ([]vectorindex.SearchResult, error)
}

// EnqueueFolderRequest represents the request body for enqueueing a folder.
type EnqueueFolderRequest struct {
	FolderPath string `json:"folder_path" validate:"required,min=1"`
}

// TasksResponse wraps the task list.
type TasksResponse struct {
	Tasks []queue.TaskInfo `json:"tasks"`
}

// MessageResponse is a minimal acknowledgement body.
type MessageResponse struct {
	Message string `json:"message"`
}

// QueueHandler handles queue-related HTTP requests.
type QueueHandler struct {
	service ProcessingService
	logger  *slog.Logger
}

// NewQueueHandler creates a new QueueHandler.
func NewQueueHandler(svc ProcessingService, logger *slog.Logger) *QueueHandler {
	return &QueueHandler{
		service: svc,
		logger:  logger.With("component", "queue_handler"),
	}
}

// EnqueueFolder handles POST /api/queue/folder requests.
func (h *QueueHandler) EnqueueFolder(w http.ResponseWriter, r *http.Request) {
	var req EnqueueFolderRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	report, err := h.service.EnqueueFolder(r.Context(), req.FolderPath)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidInput) {
			shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid folder request", err)
			return
		}
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError, "Failed to enqueue folder", err)
		return
	}

	// Processing happens asynchronously once the worker starts.
	shared.RespondWithJSON(w, r, http.StatusAccepted, report)
}

// Process handles POST /api/queue/process requests.
func (h *QueueHandler) Process(w http.ResponseWriter, r *http.Request) {
	// The worker loop outlives this request; it must not inherit the
	// request's context.
	if err := h.service.StartProcessing(context.WithoutCancel(r.Context())); err != nil {
		if errors.Is(err, queue.ErrAlreadyProcessing) {
			shared.RespondWithError(w, r, http.StatusConflict, "Queue is already being processed")
			return
		}
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError, "Failed to start processing", err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusAccepted, MessageResponse{Message: "processing started"})
}

// Stop handles POST /api/queue/stop requests. The in-flight step finishes
// before the worker parks, so this can take up to one step's duration.
func (h *QueueHandler) Stop(w http.ResponseWriter, r *http.Request) {
	if err := h.service.StopProcessing(r.Context()); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError, "Failed to stop processing", err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, MessageResponse{Message: "processing stopped"})
}

// Clear handles POST /api/queue/clear requests.
func (h *QueueHandler) Clear(w http.ResponseWriter, r *http.Request) {
	if err := h.service.ClearQueue(); err != nil {
		if errors.Is(err, queue.ErrQueueBusy) {
			shared.RespondWithError(w, r, http.StatusConflict,
				"A task is currently running; stop processing first")
			return
		}
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError, "Failed to clear queue", err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, MessageResponse{Message: "queue cleared"})
}

// Status handles GET /api/queue/status requests.
func (h *QueueHandler) Status(w http.ResponseWriter, r *http.Request) {
	shared.RespondWithJSON(w, r, http.StatusOK, h.service.QueueStatus())
}

// Tasks handles GET /api/queue/tasks requests.
func (h *QueueHandler) Tasks(w http.ResponseWriter, r *http.Request) {
	tasks := h.service.ListTasks()
	if tasks == nil {
		tasks = []queue.TaskInfo{}
	}
	shared.RespondWithJSON(w, r, http.StatusOK, TasksResponse{Tasks: tasks})
}
