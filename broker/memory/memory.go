// Package memory implements broker.Broker in process memory. It backs the
// engine's tests and is handy for embedding the engine without a transport.
// Tasks live in per-queue FIFO slices; dequeued tasks are tracked in an
// unacked set until acked or nacked.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/fezwho/docintel"
	"github.com/fezwho/docintel/broker"
	"github.com/fezwho/docintel/deadletter"
	"github.com/fezwho/docintel/id"
	"github.com/fezwho/docintel/task"
)

// pollInterval is how often a blocking Dequeue re-checks the queues.
const pollInterval = 5 * time.Millisecond

// Compile-time interface checks.
var (
	_ broker.Broker    = (*Broker)(nil)
	_ deadletter.Store = (*Broker)(nil)
)

// Broker is an in-process broker. Safe for concurrent use.
type Broker struct {
	mu      sync.Mutex
	queues  map[string][]*task.Task
	unacked map[string]*task.Task
	dead    map[string]*deadletter.Entry
}

// New creates an empty in-memory broker.
func New() *Broker {
	return &Broker{
		queues:  make(map[string][]*task.Task),
		unacked: make(map[string]*task.Task),
		dead:    make(map[string]*deadletter.Entry),
	}
}

// Enqueue appends the task to the tail of its queue.
func (b *Broker) Enqueue(_ context.Context, t *task.Task) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.unacked[t.ID.String()]; exists {
		return docintel.ErrTaskAlreadyExists
	}
	for _, queued := range b.queues[t.Queue] {
		if queued.ID == t.ID {
			return docintel.ErrTaskAlreadyExists
		}
	}

	b.queues[t.Queue] = append(b.queues[t.Queue], t)
	return nil
}

// Dequeue pops the head of the first non-empty queue, checking queues in
// the given order. It blocks up to block, re-checking at a short interval,
// and returns (nil, nil) when all queues stay empty.
func (b *Broker) Dequeue(ctx context.Context, queues []string, block time.Duration) (*task.Task, error) {
	deadline := time.Now().Add(block)
	for {
		if t := b.tryPop(queues); t != nil {
			return t, nil
		}
		if block <= 0 || !time.Now().Before(deadline) {
			return nil, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

func (b *Broker) tryPop(queues []string) *task.Task {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, q := range queues {
		pending := b.queues[q]
		if len(pending) == 0 {
			continue
		}
		t := pending[0]
		b.queues[q] = pending[1:]
		b.unacked[t.ID.String()] = t
		return t
	}
	return nil
}

// Ack destroys a delivered task. Acking an unknown task is a no-op.
func (b *Broker) Ack(_ context.Context, taskID id.TaskID) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.unacked, taskID.String())
	return nil
}

// Nack returns a failed delivery. requeue=true appends the task at the tail
// of its queue with the attempt count incremented; requeue=false routes it
// to the dead letter queue. Nacking an unknown task is a no-op.
func (b *Broker) Nack(_ context.Context, t *task.Task, requeue bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, owned := b.unacked[t.ID.String()]; !owned {
		return nil
	}
	delete(b.unacked, t.ID.String())

	if requeue {
		t.Attempt++
		b.queues[t.Queue] = append(b.queues[t.Queue], t)
		return nil
	}

	entry := deadletter.NewEntry(t, t.LastError)
	b.dead[entry.ID.String()] = entry
	return nil
}

// Return hands a delivered-but-never-executed task back to the head of its
// queue. The attempt count is untouched: no execution happened.
func (b *Broker) Return(_ context.Context, t *task.Task) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, owned := b.unacked[t.ID.String()]; !owned {
		return nil
	}
	delete(b.unacked, t.ID.String())
	b.queues[t.Queue] = append([]*task.Task{t}, b.queues[t.Queue]...)
	return nil
}

// Ping always succeeds.
func (b *Broker) Ping(_ context.Context) error { return nil }

// Close is a no-op.
func (b *Broker) Close() error { return nil }

// Len returns the number of pending tasks in the given queue.
func (b *Broker) Len(queue string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queues[queue])
}

// UnackedCount returns the number of delivered-but-unacked tasks.
func (b *Broker) UnackedCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.unacked)
}

// ──────────────────────────────────────────────────
// deadletter.Store
// ──────────────────────────────────────────────────

// PushDead adds an entry to the dead letter queue.
func (b *Broker) PushDead(_ context.Context, entry *deadletter.Entry) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.dead[entry.ID.String()] = entry
	return nil
}

// ListDead returns entries matching the given options, oldest first.
func (b *Broker) ListDead(_ context.Context, opts deadletter.ListOpts) ([]*deadletter.Entry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	entries := make([]*deadletter.Entry, 0, len(b.dead))
	for _, e := range b.dead {
		if opts.Queue != "" && e.Queue != opts.Queue {
			continue
		}
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].FailedAt.Before(entries[j].FailedAt)
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(entries) {
			return nil, nil
		}
		entries = entries[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(entries) {
		entries = entries[:opts.Limit]
	}
	return entries, nil
}

// GetDead retrieves an entry by ID.
func (b *Broker) GetDead(_ context.Context, entryID id.DeadID) (*deadletter.Entry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.dead[entryID.String()]
	if !ok {
		return nil, docintel.ErrDeadNotFound
	}
	return e, nil
}

// MarkReplayed records that an entry was re-enqueued.
func (b *Broker) MarkReplayed(_ context.Context, entryID id.DeadID) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.dead[entryID.String()]
	if !ok {
		return docintel.ErrDeadNotFound
	}
	now := time.Now().UTC()
	e.ReplayedAt = &now
	return nil
}

// PurgeDead removes entries with FailedAt before the given time.
func (b *Broker) PurgeDead(_ context.Context, before time.Time) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var purged int64
	for key, e := range b.dead {
		if e.FailedAt.Before(before) {
			delete(b.dead, key)
			purged++
		}
	}
	return purged, nil
}

// CountDead returns the total number of dead-letter entries.
func (b *Broker) CountDead(_ context.Context) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return int64(len(b.dead)), nil
}
