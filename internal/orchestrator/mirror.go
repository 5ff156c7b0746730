package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kiranshivaraju/genforge/internal/cache"
	"github.com/kiranshivaraju/genforge/internal/store"
	"github.com/kiranshivaraju/genforge/pkg/models"
)

// StatusTTL is how long a task snapshot stays in the cache.
const StatusTTL = 30 * time.Minute

// mirror writes a JSON snapshot of task to the cache. Failures are logged only;
// the database stays authoritative.
func mirror(ctx context.Context, c cache.Cache, task *models.Task) {
	if c == nil || task == nil {
		return
	}
	data, err := json.Marshal(task)
	if err != nil {
		slog.Warn("failed to encode task snapshot", "task_id", task.ID, "error", err)
		return
	}
	if err := c.Set(ctx, cache.TaskKey(task.ID), data, StatusTTL); err != nil {
		slog.Warn("failed to cache task snapshot", "task_id", task.ID, "error", err)
	}
}

// TaskReader serves status reads. Terminal snapshots come from the cache since
// they never change; anything else is read from the database.
type TaskReader struct {
	tasks store.TaskStore
	cache cache.Cache
}

func NewTaskReader(tasks store.TaskStore, c cache.Cache) *TaskReader {
	return &TaskReader{tasks: tasks, cache: c}
}

func (r *TaskReader) GetTask(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	if r.cache != nil {
		data, ok, err := r.cache.Get(ctx, cache.TaskKey(id))
		if err != nil {
			slog.Warn("task cache read failed", "task_id", id, "error", err)
		}
		if ok {
			var t models.Task
			if err := json.Unmarshal(data, &t); err == nil && t.IsTerminal() {
				return &t, nil
			}
		}
	}

	task, err := r.tasks.GetTask(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get task: %w", err)
	}
	if task.IsTerminal() {
		mirror(ctx, r.cache, task)
	}
	return task, nil
}
