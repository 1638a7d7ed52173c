package task

import (
	"time"

	"github.com/fezwho/docintel/id"
)

// Task represents a single unit of work drawn from a named queue.
//
// A task is owned by the broker until it is handed to a worker slot, and by
// at most one slot at any instant. It is destroyed (acked or routed to the
// dead letter queue) after a terminal outcome.
type Task struct {
	ID          id.TaskID     `json:"id"`
	Type        string        `json:"type"`
	Queue       string        `json:"queue"`
	Payload     []byte        `json:"payload"`
	Attempt     int           `json:"attempt"`
	MaxAttempts int           `json:"max_attempts"`
	LastError   string        `json:"last_error,omitempty"`
	EnqueuedAt  time.Time     `json:"enqueued_at"`
	Timeout     time.Duration `json:"timeout,omitempty"`
}

// AttemptsLeft reports whether the task may be executed again after a
// retryable failure. Attempt counts completed executions, so a task with
// MaxAttempts=3 is executed at most three times.
func (t *Task) AttemptsLeft() bool {
	return t.Attempt+1 < t.MaxAttempts
}

// New creates a pending task for the given type with functional options
// applied over the package defaults.
func New(taskType string, payload []byte, opts ...Option) *Task {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	return &Task{
		ID:          id.NewTaskID(),
		Type:        taskType,
		Queue:       o.Queue,
		Payload:     payload,
		MaxAttempts: o.MaxAttempts,
		EnqueuedAt:  time.Now().UTC(),
		Timeout:     o.Timeout,
	}
}
