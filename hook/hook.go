// Package hook defines the lifecycle hook system for docintel.
// Hooks are notified of engine events (task started, completed, dead,
// slot recycled, etc.) and can react to them — logging, metrics,
// alerting, etc.
//
// Each lifecycle event is a separate interface so hooks opt in only
// to the events they care about.
package hook

import (
	"context"
	"time"

	"github.com/fezwho/docintel/id"
	"github.com/fezwho/docintel/task"
)

// Hook is the base interface all hooks must implement.
type Hook interface {
	// Name returns a unique human-readable name for the hook.
	Name() string
}

// ──────────────────────────────────────────────────
// Task lifecycle hooks
// ──────────────────────────────────────────────────

// TaskEnqueued is called after a task is successfully enqueued.
type TaskEnqueued interface {
	OnTaskEnqueued(ctx context.Context, t *task.Task) error
}

// TaskStarted is called when a worker slot begins executing a task.
type TaskStarted interface {
	OnTaskStarted(ctx context.Context, t *task.Task) error
}

// TaskCompleted is called after a task finishes successfully. output is the
// serialized handler return value, nil when the handler produced none.
type TaskCompleted interface {
	OnTaskCompleted(ctx context.Context, t *task.Task, output []byte, elapsed time.Duration) error
}

// TaskRetrying is called when a task fails but will be redelivered.
type TaskRetrying interface {
	OnTaskRetrying(ctx context.Context, t *task.Task, attempt int, err error) error
}

// TaskDead is called when a task exhausts its attempts and is moved to
// the dead-letter store.
type TaskDead interface {
	OnTaskDead(ctx context.Context, t *task.Task, err error) error
}

// ──────────────────────────────────────────────────
// Engine lifecycle hooks
// ──────────────────────────────────────────────────

// SlotRecycled is called when a worker slot retires after reaching its
// task budget and a replacement is spawned.
type SlotRecycled interface {
	OnSlotRecycled(ctx context.Context, slotID id.SlotID, tasksProcessed int) error
}

// Shutdown is called during graceful shutdown, after the pool drains.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
