package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kiranshivaraju/genforge/internal/api/response"
	"github.com/kiranshivaraju/genforge/internal/store"
	"github.com/kiranshivaraju/genforge/pkg/models"
)

// TaskGetter defines the interface the task handlers depend on.
type TaskGetter interface {
	GetTask(ctx context.Context, id uuid.UUID) (*models.Task, error)
}

type taskStatusResponse struct {
	TaskID     string          `json:"task_id"`
	Status     string          `json:"status"`
	Progress   int             `json:"progress"`
	Error      *string         `json:"error"`
	Input      models.Input    `json:"input,omitempty"`
	ToolType   models.ToolType `json:"tool_type,omitempty"`
	APIRequest map[string]any  `json:"api_request,omitempty"`
	Prompt     *string         `json:"prompt,omitempty"`
}

type taskResultResponse struct {
	TaskID   string          `json:"task_id"`
	ToolType models.ToolType `json:"tool_type"`
	Input    models.Input    `json:"input"`
	Output   models.Output   `json:"output"`
}

// NewTaskStatusHandler returns an http.HandlerFunc for GET /api/tasks/{taskID}/status.
func NewTaskStatusHandler(svc TaskGetter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		task, ok := loadTask(w, r, svc)
		if !ok {
			return
		}

		resp := taskStatusResponse{
			TaskID:   task.ID.String(),
			Status:   task.Status,
			Progress: task.Progress,
			Error:    task.Error,
		}
		// Pending and failed tasks echo what was asked so the client can show or retry it.
		if task.Status == models.TaskStatusPending || task.Status == models.TaskStatusFailed {
			resp.Input = task.Input
			resp.ToolType = task.ToolType
			resp.APIRequest = task.APIRequest
			resp.Prompt = task.Prompt
		}
		response.JSON(w, resp)
	}
}

// NewTaskResultHandler returns an http.HandlerFunc for GET /api/tasks/{taskID}/result.
func NewTaskResultHandler(svc TaskGetter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		task, ok := loadTask(w, r, svc)
		if !ok {
			return
		}

		if task.Status != models.TaskStatusSuccess {
			response.Error(w, http.StatusBadRequest, "TASK_NOT_COMPLETED",
				"Task is not completed (status: "+task.Status+")",
				map[string]string{"status": task.Status})
			return
		}

		response.JSON(w, taskResultResponse{
			TaskID:   task.ID.String(),
			ToolType: task.ToolType,
			Input:    task.Input,
			Output:   task.Output,
		})
	}
}

func loadTask(w http.ResponseWriter, r *http.Request, svc TaskGetter) (*models.Task, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "taskID"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid task id", nil)
		return nil, false
	}

	task, err := svc.GetTask(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			response.Error(w, http.StatusNotFound, "TASK_NOT_FOUND", "Task not found", nil)
			return nil, false
		}
		slog.Error("failed to load task", "task_id", id, "error", err)
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
			"An unexpected error occurred", nil)
		return nil, false
	}
	return task, true
}
