// Package orchestrator creates tasks and drives them through their workflow.
package orchestrator

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/kiranshivaraju/genforge/internal/cache"
	"github.com/kiranshivaraju/genforge/internal/metrics"
	"github.com/kiranshivaraju/genforge/internal/store"
	"github.com/kiranshivaraju/genforge/internal/workflow"
	"github.com/kiranshivaraju/genforge/pkg/models"
)

// Enqueuer hands a task to the worker pool.
type Enqueuer interface {
	Enqueue(ctx context.Context, taskID uuid.UUID) error
}

// Dispatcher validates create requests and turns them into pending tasks.
type Dispatcher struct {
	registry  *workflow.Registry
	tasks     store.TaskStore
	cache     cache.Cache
	queue     Enqueuer
	metrics   *metrics.Metrics
	uploadDir string
}

// NewDispatcher saves uploads under uploadDir/{uploadID}/.
func NewDispatcher(registry *workflow.Registry, tasks store.TaskStore, c cache.Cache, q Enqueuer, m *metrics.Metrics, uploadDir string) *Dispatcher {
	return &Dispatcher{
		registry:  registry,
		tasks:     tasks,
		cache:     c,
		queue:     q,
		metrics:   m,
		uploadDir: uploadDir,
	}
}

// CreateToolTask validates req for toolType, persists a pending task and enqueues it.
// It never waits for the workflow. Unknown tool types and invalid requests
// persist nothing.
func (d *Dispatcher) CreateToolTask(ctx context.Context, toolType string, req *workflow.Request) (*models.Task, error) {
	w, err := d.registry.Get(toolType)
	if err != nil {
		return nil, err
	}

	accepted, err := w.Validate(req)
	if err != nil {
		return nil, err
	}

	input := models.Input(accepted.Input)
	if input == nil {
		input = models.Input{}
	}
	dir, err := d.saveAttachments(accepted.Attachments, input)
	if err != nil {
		return nil, err
	}

	task, err := d.tasks.CreateTask(ctx, w.ToolType(), input)
	if err != nil {
		if dir != "" {
			_ = os.RemoveAll(dir)
		}
		return nil, fmt.Errorf("create task: %w", err)
	}
	d.metrics.TaskCreated(string(task.ToolType))
	mirror(ctx, d.cache, task)

	if err := d.queue.Enqueue(ctx, task.ID); err != nil {
		// The reaper picks up pending tasks that never reached the queue.
		slog.Error("failed to enqueue task", "task_id", task.ID, "tool_type", task.ToolType, "error", err)
	}

	slog.Info("task created", "task_id", task.ID, "tool_type", task.ToolType)
	return task, nil
}

// saveAttachments writes uploads under a fresh directory and records their
// paths in input. It returns the directory, or "" when nothing was saved.
func (d *Dispatcher) saveAttachments(attachments []workflow.Attachment, input models.Input) (string, error) {
	if len(attachments) == 0 {
		return "", nil
	}

	dir := filepath.Join(d.uploadDir, uuid.NewString())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}

	for _, a := range attachments {
		paths := make([]string, 0, len(a.Files))
		for i, f := range a.Files {
			path := filepath.Join(dir, a.Names[i])
			if err := saveFile(f, path); err != nil {
				_ = os.RemoveAll(dir)
				return "", fmt.Errorf("save upload %s: %w", a.InputKey, err)
			}
			paths = append(paths, path)
		}
		if a.Multiple {
			input[a.InputKey] = paths
		} else if len(paths) > 0 {
			input[a.InputKey] = paths[0]
		}
	}
	return dir, nil
}

func saveFile(f workflow.File, path string) error {
	src, err := f.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return err
	}
	return dst.Close()
}
