package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/kiranshivaraju/genforge/internal/config"
	"github.com/kiranshivaraju/genforge/internal/metrics"
	"github.com/kiranshivaraju/genforge/internal/store"
	"github.com/kiranshivaraju/genforge/pkg/models"
)

const reapBatchSize = 100

// Inspector is the part of *asynq.Inspector the reaper needs.
type Inspector interface {
	GetTaskInfo(queue, id string) (*asynq.TaskInfo, error)
	DeleteTask(queue, id string) error
}

// ReapStats counts what one sweep did.
type ReapStats struct {
	Requeued int
	Failed   int
	Skipped  int
}

// Reaper finds pending tasks nobody is working on and either re-queues them
// or fails them once their requeue budget is spent.
type Reaper struct {
	tasks       store.TaskStore
	producer    *Producer
	inflight    *InFlight
	inspector   Inspector
	metrics     *metrics.Metrics
	interval    time.Duration
	staleAfter  time.Duration
	maxRequeues int
	now         func() time.Time
}

func NewReaper(tasks store.TaskStore, producer *Producer, inflight *InFlight, inspector Inspector, m *metrics.Metrics, cfg config.WorkerConfig) *Reaper {
	return &Reaper{
		tasks:       tasks,
		producer:    producer,
		inflight:    inflight,
		inspector:   inspector,
		metrics:     m,
		interval:    cfg.ReaperInterval,
		staleAfter:  cfg.StaleAfter,
		maxRequeues: cfg.MaxRequeues,
		now:         time.Now,
	}
}

// Run sweeps every interval until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			stats, err := r.Sweep(ctx)
			if err != nil {
				slog.Error("reaper sweep failed", "error", err)
				continue
			}
			if stats.Requeued > 0 || stats.Failed > 0 {
				slog.Info("reaper sweep",
					"requeued", stats.Requeued,
					"failed", stats.Failed,
					"skipped", stats.Skipped,
				)
			}
		}
	}
}

func (r *Reaper) Sweep(ctx context.Context) (ReapStats, error) {
	var stats ReapStats

	stale, err := r.tasks.ListStalePending(ctx, r.now().Add(-r.staleAfter), reapBatchSize)
	if err != nil {
		return stats, fmt.Errorf("list stale tasks: %w", err)
	}

	for _, t := range stale {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		acted, err := r.reap(ctx, t)
		if err != nil {
			slog.Error("failed to reap task", "task_id", t.ID, "error", err)
			stats.Skipped++
			continue
		}
		switch acted {
		case metrics.ReapRequeued:
			stats.Requeued++
		case metrics.ReapFailed:
			stats.Failed++
		default:
			stats.Skipped++
		}
	}
	return stats, nil
}

func (r *Reaper) reap(ctx context.Context, t *models.Task) (string, error) {
	active, err := r.inflight.Active(ctx, t.ID)
	if err != nil {
		return "", fmt.Errorf("check in-flight marker: %w", err)
	}
	if active {
		return "", nil
	}

	queued, err := r.stillQueued(t.ID)
	if err != nil {
		return "", err
	}
	if queued {
		return "", nil
	}

	if t.Attempts < r.maxRequeues {
		return r.requeue(ctx, t.ID)
	}
	return r.fail(ctx, t)
}

// stillQueued reports whether asynq still holds the task in a state that will
// run it. Finished copies are deleted so the id can be enqueued again.
func (r *Reaper) stillQueued(id uuid.UUID) (bool, error) {
	info, err := r.inspector.GetTaskInfo(r.producer.Queue(), id.String())
	if errors.Is(err, asynq.ErrTaskNotFound) || errors.Is(err, asynq.ErrQueueNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("inspect queue: %w", err)
	}

	switch info.State {
	case asynq.TaskStateActive, asynq.TaskStatePending, asynq.TaskStateScheduled, asynq.TaskStateRetry:
		return true, nil
	}

	if err := r.inspector.DeleteTask(r.producer.Queue(), id.String()); err != nil && !errors.Is(err, asynq.ErrTaskNotFound) {
		return false, fmt.Errorf("delete finished queue entry: %w", err)
	}
	return false, nil
}

func (r *Reaper) requeue(ctx context.Context, id uuid.UUID) (string, error) {
	if _, err := r.tasks.IncrementAttempts(ctx, id); err != nil {
		if errors.Is(err, store.ErrTerminalState) || errors.Is(err, store.ErrNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("increment attempts: %w", err)
	}
	if err := r.producer.Enqueue(ctx, id); err != nil {
		return "", err
	}
	slog.Warn("re-queued stale task", "task_id", id)
	r.metrics.TaskReaped(metrics.ReapRequeued)
	return metrics.ReapRequeued, nil
}

func (r *Reaper) fail(ctx context.Context, t *models.Task) (string, error) {
	msg := fmt.Sprintf("task timed out: no worker completed it within %s", r.staleAfter)
	_, err := r.tasks.UpdateTask(ctx, t.ID,
		store.WithStatus(models.TaskStatusFailed),
		store.WithError(msg),
	)
	if errors.Is(err, store.ErrTerminalState) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("fail stale task: %w", err)
	}
	slog.Warn("failed stale task", "task_id", t.ID, "tool_type", t.ToolType, "attempts", t.Attempts)
	r.metrics.TaskReaped(metrics.ReapFailed)
	r.metrics.TaskFinished(string(t.ToolType), models.TaskStatusFailed, r.now().Sub(t.CreatedAt))
	return metrics.ReapFailed, nil
}
