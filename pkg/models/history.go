package models

import (
	"time"

	"github.com/google/uuid"
)

// HistoryRecord is an immutable copy of a successful task's input and output,
// used to list past generations and to pre-fill a repeat of one.
type HistoryRecord struct {
	ID        uuid.UUID `db:"id"         json:"record_id"`
	TaskID    uuid.UUID `db:"task_id"    json:"task_id"`
	ToolType  ToolType  `db:"tool_type"  json:"tool_type"`
	Input     Input     `db:"input"      json:"input"`
	Output    Output    `db:"output"     json:"output"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
