// Package queue moves task ids from the API to the worker pool over asynq.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/kiranshivaraju/genforge/internal/config"
)

const TypeRunTask = "tool_task:run"

// timeoutGrace lets the runner's own task timeout fire, and record the
// failure, before asynq cancels the handler.
const timeoutGrace = time.Minute

type RunTaskPayload struct {
	TaskID uuid.UUID `json:"task_id"`
}

func NewRunTask(taskID uuid.UUID, opts ...asynq.Option) (*asynq.Task, error) {
	payload, err := json.Marshal(RunTaskPayload{TaskID: taskID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeRunTask, payload, opts...), nil
}

func ParseRunTask(t *asynq.Task) (uuid.UUID, error) {
	var p RunTaskPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return uuid.Nil, fmt.Errorf("invalid payload: %w", err)
	}
	if p.TaskID == uuid.Nil {
		return uuid.Nil, errors.New("invalid payload: missing task_id")
	}
	return p.TaskID, nil
}

// Enqueuer is satisfied by *asynq.Client.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Producer enqueues run requests. The asynq task id is the task uuid, so a
// second enqueue of a task that is still queued is a no-op.
type Producer struct {
	client   Enqueuer
	queue    string
	maxRetry int
	timeout  time.Duration
}

func NewProducer(client Enqueuer, cfg config.WorkerConfig) *Producer {
	return &Producer{
		client:   client,
		queue:    cfg.Queue,
		maxRetry: cfg.MaxRetry,
		timeout:  cfg.TaskTimeout,
	}
}

// Queue is the asynq queue run requests go to.
func (p *Producer) Queue() string {
	return p.queue
}

// handlerTimeout is the asynq deadline for one run. Zero means none.
func (p *Producer) handlerTimeout() time.Duration {
	if p.timeout <= 0 {
		return 0
	}
	return p.timeout + timeoutGrace
}

func (p *Producer) Enqueue(ctx context.Context, taskID uuid.UUID) error {
	t, err := NewRunTask(taskID,
		asynq.Queue(p.queue),
		asynq.MaxRetry(p.maxRetry),
		asynq.Timeout(p.handlerTimeout()),
		asynq.TaskID(taskID.String()),
	)
	if err != nil {
		return err
	}

	if _, err := p.client.EnqueueContext(ctx, t); err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
			return nil
		}
		return fmt.Errorf("failed to enqueue task: %w", err)
	}
	return nil
}
