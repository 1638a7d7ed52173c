// Package deadletter holds tasks that exhausted their attempt budget or
// failed non-retryably. Entries can be listed, replayed (re-enqueued with a
// reset attempt count), purged, and counted.
package deadletter

import (
	"time"

	"github.com/fezwho/docintel/id"
	"github.com/fezwho/docintel/task"
)

// Entry represents a task routed to the dead letter queue for inspection
// or replay.
type Entry struct {
	ID          id.DeadID  `json:"id"`
	TaskID      id.TaskID  `json:"task_id"`
	TaskType    string     `json:"task_type"`
	Queue       string     `json:"queue"`
	Payload     []byte     `json:"payload"`
	Error       string     `json:"error"`
	Attempt     int        `json:"attempt"`
	MaxAttempts int        `json:"max_attempts"`
	FailedAt    time.Time  `json:"failed_at"`
	ReplayedAt  *time.Time `json:"replayed_at,omitempty"`
}

// NewEntry builds an entry from a terminally failed task. Brokers call it
// when a nack routes the task to the dead letter queue.
func NewEntry(t *task.Task, errMsg string) *Entry {
	return &Entry{
		ID:          id.NewDeadID(),
		TaskID:      t.ID,
		TaskType:    t.Type,
		Queue:       t.Queue,
		Payload:     t.Payload,
		Error:       errMsg,
		Attempt:     t.Attempt,
		MaxAttempts: t.MaxAttempts,
		FailedAt:    time.Now().UTC(),
	}
}
