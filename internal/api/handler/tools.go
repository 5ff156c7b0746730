package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/kiranshivaraju/genforge/internal/api/response"
	"github.com/kiranshivaraju/genforge/internal/workflow"
	"github.com/kiranshivaraju/genforge/pkg/models"
)

const (
	// maxBodyBytes caps a create request including its uploaded images.
	maxBodyBytes    = 100 << 20
	maxMemoryBytes  = 32 << 20
	multipartFormMT = "multipart/form-data"
)

// TaskCreator defines the interface the create handler depends on.
type TaskCreator interface {
	CreateToolTask(ctx context.Context, toolType string, req *workflow.Request) (*models.Task, error)
}

type createResponse struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"`
}

// NewCreateToolTaskHandler returns an http.HandlerFunc for POST /api/tools/{toolType}/create.
// It accepts multipart or urlencoded forms and answers 202 as soon as the task is queued.
func NewCreateToolTaskHandler(svc TaskCreator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		toolType := chi.URLParam(r, "toolType")

		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		req, err := parseForm(r)
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				response.Error(w, http.StatusRequestEntityTooLarge, "REQUEST_TOO_LARGE",
					"Request body is too large", nil)
				return
			}
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid form body", nil)
			return
		}
		if r.MultipartForm != nil {
			defer r.MultipartForm.RemoveAll()
		}

		task, err := svc.CreateToolTask(r.Context(), toolType, req)
		if err != nil {
			var verr *workflow.ValidationError
			switch {
			case errors.Is(err, workflow.ErrUnknownToolType):
				response.Error(w, http.StatusBadRequest, "INVALID_TOOL_TYPE",
					"Unknown tool type: "+toolType, nil)
			case errors.As(err, &verr):
				var details any
				if verr.Field != "" {
					details = map[string]string{"field": verr.Field}
				}
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", verr.Message, details)
			default:
				slog.Error("failed to create tool task", "tool_type", toolType, "error", err)
				response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
					"An unexpected error occurred", nil)
			}
			return
		}

		response.Accepted(w, createResponse{
			TaskID: task.ID.String(),
			Status: task.Status,
		})
	}
}

// parseForm turns the request body into a workflow.Request. Only the first
// value of each field is kept; files keep every part in upload order.
func parseForm(r *http.Request) (*workflow.Request, error) {
	req := &workflow.Request{
		Fields: map[string]string{},
		Files:  map[string][]workflow.File{},
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == multipartFormMT {
		if err := r.ParseMultipartForm(maxMemoryBytes); err != nil {
			return nil, err
		}
	} else if err := r.ParseForm(); err != nil {
		return nil, err
	}

	for name, values := range r.PostForm {
		if len(values) > 0 {
			req.Fields[name] = values[0]
		}
	}

	if r.MultipartForm != nil {
		for name, headers := range r.MultipartForm.File {
			for _, fh := range headers {
				if fh.Size == 0 && fh.Filename == "" {
					continue
				}
				req.Files[name] = append(req.Files[name], workflow.File{
					Filename: fh.Filename,
					Open: func() (io.ReadCloser, error) {
						return fh.Open()
					},
				})
			}
		}
	}
	return req, nil
}
