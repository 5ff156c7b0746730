package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/kiranshivaraju/genforge/internal/cache"
	"github.com/kiranshivaraju/genforge/internal/metrics"
	"github.com/kiranshivaraju/genforge/internal/store"
	"github.com/kiranshivaraju/genforge/internal/workflow"
	"github.com/kiranshivaraju/genforge/pkg/models"
)

// Progress milestones written as a task moves through its stages.
const (
	ProgressStarted   = 10
	ProgressPrepared  = 30
	ProgressSubmitted = 70
	ProgressCompleted = 90
	ProgressDone      = 100
)

// errAborted means another writer already finished the task.
var errAborted = errors.New("task finished elsewhere")

// Tracker marks a task as being worked on for as long as the worker holds it.
type Tracker interface {
	Track(ctx context.Context, taskID uuid.UUID) (stop func())
}

// Runner executes a single task on a worker.
type Runner struct {
	registry *workflow.Registry
	store    store.Store
	cache    cache.Cache
	tracker  Tracker
	metrics  *metrics.Metrics
	timeout  time.Duration
}

func NewRunner(registry *workflow.Registry, s store.Store, c cache.Cache, tracker Tracker, m *metrics.Metrics, timeout time.Duration) *Runner {
	return &Runner{
		registry: registry,
		store:    s,
		cache:    c,
		tracker:  tracker,
		metrics:  m,
		timeout:  timeout,
	}
}

// Run drives the task to success or failed. Workflow failures are recorded on
// the task and returned wrapped in asynq.SkipRetry; any other error means the
// outcome could not be persisted, or ctx ended mid-run, and the run should be retried.
func (r *Runner) Run(ctx context.Context, taskID uuid.UUID) error {
	task, err := r.store.GetTask(ctx, taskID)
	if errors.Is(err, store.ErrNotFound) {
		slog.Warn("run requested for unknown task", "task_id", taskID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load task: %w", err)
	}
	if task.IsTerminal() {
		return nil
	}

	log := slog.With("task_id", task.ID, "tool_type", task.ToolType)
	start := time.Now()

	if r.tracker != nil {
		stop := r.tracker.Track(ctx, task.ID)
		defer stop()
	}
	r.metrics.IncInFlight()
	defer r.metrics.DecInFlight()

	w, err := r.registry.Get(string(task.ToolType))
	if err != nil {
		return r.fail(ctx, log, task, err, start)
	}

	log.Info("task started", "attempts", task.Attempts)
	out, err := r.execute(ctx, w, task)
	if errors.Is(err, errAborted) {
		log.Info("task already finished, dropping run")
		return nil
	}
	if err != nil && ctx.Err() != nil {
		// The worker is shutting down or asynq gave up on this run. The task
		// stays pending so a redelivery or the reaper picks it up again.
		log.Warn("task interrupted, leaving pending", "error", err)
		return fmt.Errorf("task %s interrupted: %w", task.ID, err)
	}
	if err != nil {
		return r.fail(ctx, log, task, err, start)
	}
	return r.succeed(ctx, log, task, out, start)
}

func (r *Runner) execute(ctx context.Context, w workflow.Workflow, task *models.Task) (out models.Output, err error) {
	defer func() {
		if p := recover(); p != nil {
			slog.Error("workflow panicked", "task_id", task.ID, "panic", p, "stack", string(debug.Stack()))
			out, err = nil, fmt.Errorf("panic: %v", p)
		}
	}()

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	if err := r.update(ctx, task, store.WithProgress(ProgressStarted)); err != nil {
		return nil, err
	}

	prepared, err := w.Prepare(ctx, task)
	if err != nil {
		return nil, err
	}
	if err := r.update(ctx, task, snapshot(prepared.APIRequest, prepared.Prompt, ProgressPrepared)...); err != nil {
		return nil, err
	}

	submitted, err := w.Submit(ctx, prepared)
	if err != nil {
		return nil, err
	}
	if err := r.update(ctx, task, snapshot(submitted.APIRequest, prepared.Prompt, ProgressSubmitted)...); err != nil {
		return nil, err
	}

	completed, err := w.Poll(ctx, submitted)
	if err != nil {
		return nil, err
	}
	if err := r.update(ctx, task, store.WithProgress(ProgressCompleted)); err != nil {
		return nil, err
	}

	return w.Materialize(ctx, completed)
}

func snapshot(apiRequest map[string]any, prompt string, progress int) []store.TaskUpdateOption {
	opts := []store.TaskUpdateOption{store.WithProgress(progress)}
	if apiRequest != nil {
		opts = append(opts, store.WithAPIRequest(apiRequest))
	}
	if prompt != "" {
		opts = append(opts, store.WithPrompt(prompt))
	}
	return opts
}

// update writes a mid-flight change. Only a terminal row stops the run; other
// write failures are logged and the workflow carries on.
func (r *Runner) update(ctx context.Context, task *models.Task, opts ...store.TaskUpdateOption) error {
	updated, err := r.store.UpdateTask(context.WithoutCancel(ctx), task.ID, opts...)
	if errors.Is(err, store.ErrTerminalState) {
		return errAborted
	}
	if err != nil {
		slog.Warn("failed to record task progress", "task_id", task.ID, "error", err)
		return nil
	}
	task.Version = updated.Version
	task.Progress = updated.Progress
	return nil
}

// finish makes the terminal write. It is a compare-and-swap against the last
// version this run wrote, re-read once if something else touched the row.
func (r *Runner) finish(ctx context.Context, task *models.Task, opts ...store.TaskUpdateOption) (*models.Task, error) {
	ctx = context.WithoutCancel(ctx)

	updated, err := r.store.CompareAndSwapTask(ctx, task.ID, task.Version, opts...)
	if errors.Is(err, store.ErrVersionConflict) {
		current, gerr := r.store.GetTask(ctx, task.ID)
		if gerr != nil {
			return nil, fmt.Errorf("reload task: %w", gerr)
		}
		if current.IsTerminal() {
			return nil, errAborted
		}
		updated, err = r.store.CompareAndSwapTask(ctx, task.ID, current.Version, opts...)
	}
	if errors.Is(err, store.ErrTerminalState) {
		return nil, errAborted
	}
	return updated, err
}

func (r *Runner) succeed(ctx context.Context, log *slog.Logger, task *models.Task, out models.Output, start time.Time) error {
	done, err := r.finish(ctx, task,
		store.WithStatus(models.TaskStatusSuccess),
		store.WithOutput(out),
		store.WithProgress(ProgressDone),
	)
	if errors.Is(err, errAborted) {
		log.Info("task already finished, dropping result")
		return nil
	}
	if err != nil {
		return fmt.Errorf("record task success: %w", err)
	}

	hctx := context.WithoutCancel(ctx)
	if _, err := r.store.AppendHistory(hctx, done.ID, done.ToolType, done.Input, done.Output); err != nil && !errors.Is(err, store.ErrDuplicateKey) {
		log.Error("failed to append history", "error", err)
	}

	mirror(hctx, r.cache, done)
	r.metrics.TaskFinished(string(done.ToolType), done.Status, time.Since(start))
	log.Info("task succeeded", "duration_ms", time.Since(start).Milliseconds())
	return nil
}

func (r *Runner) fail(ctx context.Context, log *slog.Logger, task *models.Task, cause error, start time.Time) error {
	msg := cause.Error()
	done, err := r.finish(ctx, task,
		store.WithStatus(models.TaskStatusFailed),
		store.WithError(msg),
	)
	if errors.Is(err, errAborted) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("record task failure: %w", err)
	}

	mirror(context.WithoutCancel(ctx), r.cache, done)
	r.metrics.TaskFinished(string(done.ToolType), done.Status, time.Since(start))
	log.Warn("task failed", "error", msg)
	return fmt.Errorf("task %s failed: %s: %w", task.ID, msg, asynq.SkipRetry)
}
