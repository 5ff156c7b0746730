// Package models contains shared data models used across the genforge codebase.
package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	TaskStatusPending = "pending"
	TaskStatusSuccess = "success"
	TaskStatusFailed  = "failed"
)

// IsTerminalStatus reports whether status is a final state. Terminal tasks are never written again.
func IsTerminalStatus(status string) bool {
	return status == TaskStatusSuccess || status == TaskStatusFailed
}

// Task tracks one generation attempt. POST /api/tools/{tool_type}/create returns its id;
// the client polls GET /api/tasks/{task_id}/status until status is success or failed.
type Task struct {
	ID          uuid.UUID      `db:"id"           json:"task_id"`
	ToolType    ToolType       `db:"tool_type"    json:"tool_type"`
	Status      string         `db:"status"       json:"status"`
	Input       Input          `db:"input"        json:"input"`
	Output      Output         `db:"output"       json:"output"`
	Error       *string        `db:"error"        json:"error"`
	Progress    int            `db:"progress"     json:"progress"`
	APIRequest  map[string]any `db:"api_request"  json:"api_request,omitempty"`
	Prompt      *string        `db:"prompt"       json:"prompt,omitempty"`
	Version     int64          `db:"version"      json:"version"`
	Attempts    int            `db:"attempts"     json:"attempts"`
	CreatedAt   time.Time      `db:"created_at"   json:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at"   json:"updated_at"`
	CompletedAt *time.Time     `db:"completed_at" json:"completed_at,omitempty"`
}

func (t *Task) IsTerminal() bool {
	return IsTerminalStatus(t.Status)
}

// Output is the payload a workflow produces on success.
type Output map[string]any
