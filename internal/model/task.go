package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type TaskKind string

const (
	TaskSessionStart       TaskKind = "session.start"
	TaskSessionEnd         TaskKind = "session.end"
	TaskTemplateGenerate   TaskKind = "template.generate"
	TaskTemplateDeactivate TaskKind = "template.deactivate"
)

type TaskStatus string

const (
	TaskStatusPending TaskStatus = "pending"
	TaskStatusDone    TaskStatus = "done"
	TaskStatusFailed  TaskStatus = "failed"
)

// ScheduledTask is one armed one-shot callback. The runner executes it
// at-or-after RunAt, exactly once; failures are recorded, not retried.
type ScheduledTask struct {
	ID         uuid.UUID       `json:"id"`
	Kind       TaskKind        `json:"kind"`
	Payload    json.RawMessage `json:"payload"`
	RunAt      time.Time       `json:"run_at"`
	Status     TaskStatus      `json:"status"`
	Error      string          `json:"error"`
	ExecutedAt *time.Time      `json:"executed_at"`
	CreatedAt  time.Time       `json:"created_at"`
}

// IsPending reports whether the task is still waiting to run.
func (t *ScheduledTask) IsPending() bool {
	return t.Status == TaskStatusPending
}
