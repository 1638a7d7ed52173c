package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/fezwho/docintel"
	"github.com/fezwho/docintel/broker"
	"github.com/fezwho/docintel/deadletter"
	"github.com/fezwho/docintel/id"
	"github.com/fezwho/docintel/task"
)

// Enqueue stores the task body as a Hash and pushes its ID onto the
// queue List.
func (b *Broker) Enqueue(ctx context.Context, t *task.Task) error {
	tID := t.ID.String()
	key := taskKey(tID)

	return b.do(ctx, "enqueue", func() error {
		exists, err := b.client.Exists(ctx, key).Result()
		if err != nil {
			return fmt.Errorf("enqueue check exists: %w", err)
		}
		if exists > 0 {
			return docintel.ErrTaskAlreadyExists
		}

		pipe := b.client.TxPipeline()
		pipe.HSet(ctx, key, taskToMap(t))
		pipe.LPush(ctx, queueKey(t.Queue), tID)
		_, err = pipe.Exec(ctx)
		return err
	})
}

// Dequeue pops the next task ID across the given queues in priority order.
// BRPOP checks keys left to right, so queue order maps directly to
// priority. Returns (nil, nil) when every queue stays empty within block.
func (b *Broker) Dequeue(ctx context.Context, queues []string, block time.Duration) (*task.Task, error) {
	keys := make([]string, len(queues))
	for i, q := range queues {
		keys[i] = queueKey(q)
	}

	var popped []string
	err := b.do(ctx, "dequeue", func() error {
		var perr error
		if block > 0 {
			popped, perr = b.client.BRPop(ctx, block, keys...).Result()
		} else {
			popped, perr = b.rpopFirst(ctx, keys)
		}
		return perr
	})
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(popped) < 2 {
		return nil, nil
	}

	// Track ownership before anything else can fail: once the ID is off
	// the queue List it exists nowhere else, and a failure between the pop
	// and the unacked Set would silently drop the task.
	queueListKey, tID := popped[0], popped[1]
	if err := b.do(ctx, "dequeue track", func() error {
		return b.client.SAdd(ctx, unackedKey, tID).Err()
	}); err != nil {
		b.restorePopped(ctx, queueListKey, tID, false)
		return nil, err
	}

	t, err := b.getTask(ctx, taskKey(tID))
	if err != nil {
		if errors.Is(err, docintel.ErrTaskNotFound) {
			// Orphaned ID with no body (acked or purged elsewhere):
			// discard it rather than loop on it forever.
			b.restorePopped(ctx, "", tID, true)
			return nil, nil
		}
		b.restorePopped(ctx, queueListKey, tID, true)
		return nil, err
	}
	return t, nil
}

// restorePopped undoes a partial dequeue: the ID goes back to the head of
// the queue List it was popped from (when queueListKey is non-empty) and,
// when tracked, out of the unacked Set. Best effort — a failure here is
// logged, and the unacked Set still records ownership for recovery.
func (b *Broker) restorePopped(ctx context.Context, queueListKey, tID string, tracked bool) {
	pipe := b.client.TxPipeline()
	if queueListKey != "" {
		pipe.RPush(ctx, queueListKey, tID)
	}
	if tracked {
		pipe.SRem(ctx, unackedKey, tID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		b.logger.Error("failed to restore partially dequeued task",
			slog.String("task_id", tID),
			slog.String("error", err.Error()),
		)
	}
}

// rpopFirst is the non-blocking dequeue path: one RPOP per key in order.
func (b *Broker) rpopFirst(ctx context.Context, keys []string) ([]string, error) {
	for _, k := range keys {
		v, err := b.client.RPop(ctx, k).Result()
		if errors.Is(err, goredis.Nil) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return []string{k, v}, nil
	}
	return nil, goredis.Nil
}

// Ack destroys a delivered task. Idempotent: acking an unknown ID only
// clears whatever is left.
func (b *Broker) Ack(ctx context.Context, taskID id.TaskID) error {
	tID := taskID.String()

	return b.do(ctx, "ack", func() error {
		pipe := b.client.TxPipeline()
		pipe.Del(ctx, taskKey(tID))
		pipe.SRem(ctx, unackedKey, tID)
		_, err := pipe.Exec(ctx)
		return err
	})
}

// Nack returns a failed delivery. requeue=true pushes the task back onto
// the tail of its queue with the attempt count incremented; requeue=false
// routes it to the dead letter queue. Unknown tasks are a no-op.
func (b *Broker) Nack(ctx context.Context, t *task.Task, requeue bool) error {
	tID := t.ID.String()

	return b.do(ctx, "nack", func() error {
		owned, err := b.client.SIsMember(ctx, unackedKey, tID).Result()
		if err != nil {
			return fmt.Errorf("nack check owned: %w", err)
		}
		if !owned {
			return nil
		}

		if requeue {
			t.Attempt++
			pipe := b.client.TxPipeline()
			pipe.HSet(ctx, taskKey(tID),
				"attempt", strconv.Itoa(t.Attempt),
				"last_error", t.LastError,
			)
			pipe.LPush(ctx, queueKey(t.Queue), tID)
			pipe.SRem(ctx, unackedKey, tID)
			_, err = pipe.Exec(ctx)
			return err
		}

		entry := deadletter.NewEntry(t, t.LastError)
		pipe := b.client.TxPipeline()
		pipe.HSet(ctx, deadKey(entry.ID.String()), deadToMap(entry))
		pipe.SAdd(ctx, deadIDsKey, entry.ID.String())
		pipe.Del(ctx, taskKey(tID))
		pipe.SRem(ctx, unackedKey, tID)
		_, err = pipe.Exec(ctx)
		return err
	})
}

// Return hands a delivered-but-never-executed task back to the head of its
// queue. The stored attempt count is untouched: no execution happened.
func (b *Broker) Return(ctx context.Context, t *task.Task) error {
	tID := t.ID.String()

	return b.do(ctx, "return", func() error {
		owned, err := b.client.SIsMember(ctx, unackedKey, tID).Result()
		if err != nil {
			return fmt.Errorf("return check owned: %w", err)
		}
		if !owned {
			return nil
		}

		pipe := b.client.TxPipeline()
		pipe.RPush(ctx, queueKey(t.Queue), tID)
		pipe.SRem(ctx, unackedKey, tID)
		_, err = pipe.Exec(ctx)
		return err
	})
}

// QueueLen returns the number of pending tasks in the given queue.
func (b *Broker) QueueLen(ctx context.Context, queue string) (int64, error) {
	n, err := b.client.LLen(ctx, queueKey(queue)).Result()
	if err != nil {
		return 0, broker.NewTransportError("queue len", err)
	}
	return n, nil
}

// ── serialization ──

func taskToMap(t *task.Task) map[string]interface{} {
	return map[string]interface{}{
		"id":           t.ID.String(),
		"type":         t.Type,
		"queue":        t.Queue,
		"payload":      string(t.Payload),
		"attempt":      strconv.Itoa(t.Attempt),
		"max_attempts": strconv.Itoa(t.MaxAttempts),
		"last_error":   t.LastError,
		"enqueued_at":  t.EnqueuedAt.Format(time.RFC3339Nano),
		"timeout":      strconv.FormatInt(int64(t.Timeout), 10),
	}
}

func (b *Broker) getTask(ctx context.Context, key string) (*task.Task, error) {
	var vals map[string]string
	err := b.do(ctx, "get task", func() error {
		var gerr error
		vals, gerr = b.client.HGetAll(ctx, key).Result()
		return gerr
	})
	if err != nil {
		return nil, err
	}
	if len(vals) == 0 {
		return nil, docintel.ErrTaskNotFound
	}
	return mapToTask(vals)
}

func mapToTask(m map[string]string) (*task.Task, error) {
	tID, err := id.ParseTaskID(m["id"])
	if err != nil {
		return nil, fmt.Errorf("docintel/redis: parse task id: %w", err)
	}

	attempt, _ := strconv.Atoi(m["attempt"])                          //nolint:errcheck // best-effort parse from trusted Redis data
	maxAttempts, _ := strconv.Atoi(m["max_attempts"])                 //nolint:errcheck // best-effort parse from trusted Redis data
	timeout, _ := strconv.ParseInt(m["timeout"], 10, 64)              //nolint:errcheck // best-effort parse from trusted Redis data
	enqueuedAt, _ := time.Parse(time.RFC3339Nano, m["enqueued_at"])   //nolint:errcheck // best-effort parse from trusted Redis data

	return &task.Task{
		ID:          tID,
		Type:        m["type"],
		Queue:       m["queue"],
		Payload:     []byte(m["payload"]),
		Attempt:     attempt,
		MaxAttempts: maxAttempts,
		LastError:   m["last_error"],
		EnqueuedAt:  enqueuedAt,
		Timeout:     time.Duration(timeout),
	}, nil
}
