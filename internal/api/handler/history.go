package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kiranshivaraju/genforge/internal/api/response"
	"github.com/kiranshivaraju/genforge/internal/store"
	"github.com/kiranshivaraju/genforge/pkg/models"
)

// HistoryService defines the interface the history handlers depend on.
type HistoryService interface {
	GetHistory(ctx context.Context, id uuid.UUID) (*models.HistoryRecord, error)
	ListHistory(ctx context.Context, filter store.HistoryFilter) ([]*models.HistoryRecord, int, error)
	DeleteHistory(ctx context.Context, id uuid.UUID) error
}

type historyListResponse struct {
	Records []*models.HistoryRecord `json:"records"`
	Total   int                     `json:"total"`
	Page    int                     `json:"page"`
	Limit   int                     `json:"limit"`
}

type reuseResponse struct {
	ToolType models.ToolType `json:"tool_type"`
	Input    models.Input    `json:"input"`
}

// NewListHistoryHandler returns an http.HandlerFunc for GET /api/tools/history.
// Records are newest first.
func NewListHistoryHandler(svc HistoryService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		var filter store.HistoryFilter
		if raw := q.Get("tool_type"); raw != "" {
			tt, ok := models.ParseToolType(raw)
			if !ok {
				response.Error(w, http.StatusBadRequest, "INVALID_TOOL_TYPE",
					"Unknown tool type: "+raw, nil)
				return
			}
			filter.ToolType = tt
		}

		page, err := queryInt(q.Get("page"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "page must be an integer", nil)
			return
		}
		limit, err := queryInt(q.Get("limit"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "limit must be an integer", nil)
			return
		}
		filter.Limit, filter.Page = store.NormalizePage(limit, page)

		records, total, err := svc.ListHistory(r.Context(), filter)
		if err != nil {
			slog.Error("failed to list history", "error", err)
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}
		if records == nil {
			records = []*models.HistoryRecord{}
		}

		response.JSON(w, historyListResponse{
			Records: records,
			Total:   total,
			Page:    filter.Page,
			Limit:   filter.Limit,
		})
	}
}

// NewGetHistoryHandler returns an http.HandlerFunc for GET /api/tools/history/{recordID}.
func NewGetHistoryHandler(svc HistoryService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, ok := loadRecord(w, r, svc)
		if !ok {
			return
		}
		response.JSON(w, rec)
	}
}

// NewReuseHistoryHandler returns an http.HandlerFunc for GET /api/tools/history/{recordID}/reuse.
// The client pre-fills a new create request from the returned input.
func NewReuseHistoryHandler(svc HistoryService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, ok := loadRecord(w, r, svc)
		if !ok {
			return
		}
		response.JSON(w, reuseResponse{ToolType: rec.ToolType, Input: rec.Input})
	}
}

// NewDeleteHistoryHandler returns an http.HandlerFunc for DELETE /api/tools/history/{recordID}.
func NewDeleteHistoryHandler(svc HistoryService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := recordID(w, r)
		if !ok {
			return
		}

		if err := svc.DeleteHistory(r.Context(), id); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "RECORD_NOT_FOUND", "History record not found", nil)
				return
			}
			slog.Error("failed to delete history record", "record_id", id, "error", err)
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}
		response.NoContent(w)
	}
}

func loadRecord(w http.ResponseWriter, r *http.Request, svc HistoryService) (*models.HistoryRecord, bool) {
	id, ok := recordID(w, r)
	if !ok {
		return nil, false
	}

	rec, err := svc.GetHistory(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			response.Error(w, http.StatusNotFound, "RECORD_NOT_FOUND", "History record not found", nil)
			return nil, false
		}
		slog.Error("failed to load history record", "record_id", id, "error", err)
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
			"An unexpected error occurred", nil)
		return nil, false
	}
	return rec, true
}

func recordID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "recordID"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid record id", nil)
		return uuid.Nil, false
	}
	return id, true
}

// queryInt parses an optional integer query value; empty means zero.
func queryInt(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}
