package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/genforge/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// ErrTerminalState is returned when a write targets a task that already reached success or failed.
var ErrTerminalState = errors.New("task already in terminal state")

// ErrVersionConflict is returned by CompareAndSwapTask when the row changed since it was read.
var ErrVersionConflict = errors.New("task version conflict")

// TaskStore persists tasks. Every write is an atomic read-modify-write on a single row.
type TaskStore interface {
	CreateTask(ctx context.Context, toolType models.ToolType, input models.Input) (*models.Task, error)
	GetTask(ctx context.Context, id uuid.UUID) (*models.Task, error)
	UpdateTask(ctx context.Context, id uuid.UUID, opts ...TaskUpdateOption) (*models.Task, error)
	CompareAndSwapTask(ctx context.Context, id uuid.UUID, expectedVersion int64, opts ...TaskUpdateOption) (*models.Task, error)
	ListStalePending(ctx context.Context, olderThan time.Time, limit int) ([]*models.Task, error)
	IncrementAttempts(ctx context.Context, id uuid.UUID) (*models.Task, error)
}

// HistoryStore persists the record of successful generations.
type HistoryStore interface {
	AppendHistory(ctx context.Context, taskID uuid.UUID, toolType models.ToolType, input models.Input, output models.Output) (*models.HistoryRecord, error)
	GetHistory(ctx context.Context, id uuid.UUID) (*models.HistoryRecord, error)
	ListHistory(ctx context.Context, filter HistoryFilter) ([]*models.HistoryRecord, int, error)
	DeleteHistory(ctx context.Context, id uuid.UUID) error
}

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error
	TaskStore
	HistoryStore
}

type HistoryFilter struct {
	ToolType models.ToolType
	Page     int
	Limit    int
}

// TaskUpdate is the set of changes a list of TaskUpdateOptions describes.
// Nil fields are left unchanged.
type TaskUpdate struct {
	Status     *string
	Output     models.Output
	Error      *string
	Progress   *int
	APIRequest map[string]any
	Prompt     *string
}

type TaskUpdateOption func(*TaskUpdate)

// ResolveUpdate applies opts in order.
func ResolveUpdate(opts ...TaskUpdateOption) TaskUpdate {
	var u TaskUpdate
	for _, o := range opts {
		o(&u)
	}
	return u
}

func WithStatus(status string) TaskUpdateOption {
	return func(p *TaskUpdate) {
		p.Status = &status
	}
}

func WithOutput(output models.Output) TaskUpdateOption {
	return func(p *TaskUpdate) {
		p.Output = output
	}
}

func WithError(msg string) TaskUpdateOption {
	return func(p *TaskUpdate) {
		p.Error = &msg
	}
}

// WithProgress sets progress, clamped to 0..100.
func WithProgress(progress int) TaskUpdateOption {
	return func(p *TaskUpdate) {
		progress = min(max(progress, 0), 100)
		p.Progress = &progress
	}
}

func WithAPIRequest(req map[string]any) TaskUpdateOption {
	return func(p *TaskUpdate) {
		p.APIRequest = req
	}
}

func WithPrompt(prompt string) TaskUpdateOption {
	return func(p *TaskUpdate) {
		p.Prompt = &prompt
	}
}
