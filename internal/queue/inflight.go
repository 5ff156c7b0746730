package queue

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kiranshivaraju/genforge/internal/cache"
)

// InFlight marks tasks a worker is executing. The marker expires after ttl
// unless the worker's heartbeat refreshes it, so a crashed worker's tasks
// become visible to the reaper.
type InFlight struct {
	cache     cache.Cache
	ttl       time.Duration
	heartbeat time.Duration
}

func NewInFlight(c cache.Cache, ttl, heartbeat time.Duration) *InFlight {
	return &InFlight{cache: c, ttl: ttl, heartbeat: heartbeat}
}

// Track sets the marker and refreshes it until the returned stop func is called.
func (f *InFlight) Track(ctx context.Context, taskID uuid.UUID) (stop func()) {
	key := cache.InFlightKey(taskID)
	mark := func(ctx context.Context) {
		if err := f.cache.Set(ctx, key, []byte("1"), f.ttl); err != nil {
			slog.Warn("failed to mark task in flight", "task_id", taskID, "error", err)
		}
	}
	mark(ctx)

	hbCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(f.heartbeat)
		defer ticker.Stop()
		for {
			select {
			case <-hbCtx.Done():
				return
			case <-ticker.C:
				mark(hbCtx)
			}
		}
	}()

	return func() {
		cancel()
		<-done
		if err := f.cache.Delete(context.WithoutCancel(ctx), key); err != nil {
			slog.Warn("failed to clear in-flight marker", "task_id", taskID, "error", err)
		}
	}
}

func (f *InFlight) Active(ctx context.Context, taskID uuid.UUID) (bool, error) {
	return f.cache.Exists(ctx, cache.InFlightKey(taskID))
}
