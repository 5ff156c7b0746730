package queue

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/kiranshivaraju/genforge/internal/config"
)

// Runner executes one task to a terminal state.
type Runner interface {
	Run(ctx context.Context, taskID uuid.UUID) error
}

// NewHandler adapts a Runner to asynq. A payload that cannot be decoded is never retried.
func NewHandler(r Runner) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		taskID, err := ParseRunTask(t)
		if err != nil {
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return r.Run(ctx, taskID)
	}
}

func NewServeMux(r Runner) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.Handle(TypeRunTask, NewHandler(r))
	return mux
}

// NewServer builds the bounded worker pool: at most cfg.Concurrency tasks run at once.
func NewServer(redis asynq.RedisConnOpt, cfg config.WorkerConfig) *asynq.Server {
	return asynq.NewServer(redis, asynq.Config{
		Concurrency:    cfg.Concurrency,
		Queues:         map[string]int{cfg.Queue: 1},
		RetryDelayFunc: asynq.DefaultRetryDelayFunc,
		Logger:         slogLogger{},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, t *asynq.Task, err error) {
			id, _ := asynq.GetTaskID(ctx)
			slog.Error("task run failed", "task_type", t.Type(), "task_id", id, "error", err)
		}),
	})
}

// slogLogger routes asynq's internal logging through slog.
type slogLogger struct{}

func (slogLogger) Debug(args ...any) { slog.Debug(fmt.Sprint(args...), "component", "asynq") }
func (slogLogger) Info(args ...any)  { slog.Info(fmt.Sprint(args...), "component", "asynq") }
func (slogLogger) Warn(args ...any)  { slog.Warn(fmt.Sprint(args...), "component", "asynq") }
func (slogLogger) Error(args ...any) { slog.Error(fmt.Sprint(args...), "component", "asynq") }

func (slogLogger) Fatal(args ...any) {
	slog.Error(fmt.Sprint(args...), "component", "asynq")
	os.Exit(1)
}
