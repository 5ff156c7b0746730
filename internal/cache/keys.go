package cache

import (
	"fmt"

	"github.com/google/uuid"
)

// TaskKey holds a JSON snapshot of a task for status polling.
func TaskKey(taskID uuid.UUID) string {
	return fmt.Sprintf("task:%s", taskID)
}

// InFlightKey marks a task that a worker is currently executing.
func InFlightKey(taskID uuid.UUID) string {
	return fmt.Sprintf("task:%s:inflight", taskID)
}

func RateLimitKey(clientID string) string {
	return fmt.Sprintf("ratelimit:%s", clientID)
}
