package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/fezwho/docintel"
	"github.com/fezwho/docintel/broker"
	"github.com/fezwho/docintel/deadletter"
	"github.com/fezwho/docintel/id"
)

// PushDead adds an entry to the dead letter queue.
func (b *Broker) PushDead(ctx context.Context, entry *deadletter.Entry) error {
	eID := entry.ID.String()

	return b.do(ctx, "push dead", func() error {
		pipe := b.client.TxPipeline()
		pipe.HSet(ctx, deadKey(eID), deadToMap(entry))
		pipe.SAdd(ctx, deadIDsKey, eID)
		_, err := pipe.Exec(ctx)
		return err
	})
}

// ListDead returns entries matching the given options, oldest first.
func (b *Broker) ListDead(ctx context.Context, opts deadletter.ListOpts) ([]*deadletter.Entry, error) {
	ids, err := b.client.SMembers(ctx, deadIDsKey).Result()
	if err != nil {
		return nil, broker.NewTransportError("list dead", err)
	}

	entries := make([]*deadletter.Entry, 0, len(ids))
	for _, eID := range ids {
		vals, getErr := b.client.HGetAll(ctx, deadKey(eID)).Result()
		if getErr != nil || len(vals) == 0 {
			continue
		}
		e, convErr := mapToDead(vals)
		if convErr != nil {
			continue
		}
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
func (b *Broker) GetDead(ctx context.Context, entryID id.DeadID) (*deadletter.Entry, error) {
	vals, err := b.client.HGetAll(ctx, deadKey(entryID.String())).Result()
	if err != nil {
		return nil, broker.NewTransportError("get dead", err)
	}
	if len(vals) == 0 {
		return nil, docintel.ErrDeadNotFound
	}
	return mapToDead(vals)
}

// MarkReplayed records that an entry was re-enqueued.
func (b *Broker) MarkReplayed(ctx context.Context, entryID id.DeadID) error {
	key := deadKey(entryID.String())

	return b.do(ctx, "mark replayed", func() error {
		exists, err := b.client.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if exists == 0 {
			return docintel.ErrDeadNotFound
		}
		return b.client.HSet(ctx, key,
			"replayed_at", time.Now().UTC().Format(time.RFC3339Nano),
		).Err()
	})
}

// PurgeDead removes entries with FailedAt before the given time.
func (b *Broker) PurgeDead(ctx context.Context, before time.Time) (int64, error) {
	ids, err := b.client.SMembers(ctx, deadIDsKey).Result()
	if err != nil {
		return 0, broker.NewTransportError("purge dead", err)
	}

	var purged int64
	for _, eID := range ids {
		key := deadKey(eID)
		failedAtStr, getErr := b.client.HGet(ctx, key, "failed_at").Result()
		if getErr != nil {
			if errors.Is(getErr, goredis.Nil) {
				continue
			}
			return purged, broker.NewTransportError("purge dead get", getErr)
		}

		failedAt, _ := time.Parse(time.RFC3339Nano, failedAtStr) //nolint:errcheck // best-effort parse from trusted Redis data
		if failedAt.Before(before) {
			pipe := b.client.TxPipeline()
			pipe.Del(ctx, key)
			pipe.SRem(ctx, deadIDsKey, eID)
			if _, pErr := pipe.Exec(ctx); pErr != nil {
				return purged, broker.NewTransportError("purge dead del", pErr)
			}
			purged++
		}
	}
	return purged, nil
}

// CountDead returns the total number of dead-letter entries.
func (b *Broker) CountDead(ctx context.Context) (int64, error) {
	count, err := b.client.SCard(ctx, deadIDsKey).Result()
	if err != nil {
		return 0, broker.NewTransportError("count dead", err)
	}
	return count, nil
}

// ── serialization ──

func deadToMap(e *deadletter.Entry) map[string]interface{} {
	m := map[string]interface{}{
		"id":           e.ID.String(),
		"task_id":      e.TaskID.String(),
		"task_type":    e.TaskType,
		"queue":        e.Queue,
		"payload":      string(e.Payload),
		"error":        e.Error,
		"attempt":      strconv.Itoa(e.Attempt),
		"max_attempts": strconv.Itoa(e.MaxAttempts),
		"failed_at":    e.FailedAt.Format(time.RFC3339Nano),
	}
	if e.ReplayedAt != nil {
		m["replayed_at"] = e.ReplayedAt.Format(time.RFC3339Nano)
	}
	return m
}

func mapToDead(m map[string]string) (*deadletter.Entry, error) {
	eID, err := id.ParseDeadID(m["id"])
	if err != nil {
		return nil, fmt.Errorf("docintel/redis: parse dead id: %w", err)
	}
	taskID, _ := id.ParseTaskID(m["task_id"])                   //nolint:errcheck // best-effort parse from trusted Redis data
	attempt, _ := strconv.Atoi(m["attempt"])                    //nolint:errcheck // best-effort parse from trusted Redis data
	maxAttempts, _ := strconv.Atoi(m["max_attempts"])           //nolint:errcheck // best-effort parse from trusted Redis data
	failedAt, _ := time.Parse(time.RFC3339Nano, m["failed_at"]) //nolint:errcheck // best-effort parse from trusted Redis data

	e := &deadletter.Entry{
		ID:          eID,
		TaskID:      taskID,
		TaskType:    m["task_type"],
		Queue:       m["queue"],
		Payload:     []byte(m["payload"]),
		Error:       m["error"],
		Attempt:     attempt,
		MaxAttempts: maxAttempts,
		FailedAt:    failedAt,
	}

	if v := m["replayed_at"]; v != "" {
		t, _ := time.Parse(time.RFC3339Nano, v) //nolint:errcheck // best-effort parse from trusted Redis data
		e.ReplayedAt = &t
	}
	return e, nil
}
