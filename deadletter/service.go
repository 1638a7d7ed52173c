package deadletter

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fezwho/docintel/id"
	"github.com/fezwho/docintel/task"
)

// replayParallelism bounds concurrent re-enqueues during ReplayAll.
const replayParallelism = 4

// Enqueuer re-enqueues replayed tasks. The broker satisfies it.
type Enqueuer interface {
	Enqueue(ctx context.Context, t *task.Task) error
}

// Service provides high-level dead-letter operations over a Store.
type Service struct {
	store    Store
	enqueuer Enqueuer
}

// NewService creates a dead-letter service.
func NewService(store Store, enqueuer Enqueuer) *Service {
	return &Service{store: store, enqueuer: enqueuer}
}

// Replay re-enqueues the entry's task with a fresh ID and a reset attempt
// count, then marks the entry replayed.
func (s *Service) Replay(ctx context.Context, entryID id.DeadID) (*task.Task, error) {
	entry, err := s.store.GetDead(ctx, entryID)
	if err != nil {
		return nil, err
	}

	t := task.New(entry.TaskType, entry.Payload,
		task.WithQueue(entry.Queue),
		task.WithMaxAttempts(entry.MaxAttempts),
	)
	if err := s.enqueuer.Enqueue(ctx, t); err != nil {
		return nil, fmt.Errorf("replay enqueue %s: %w", entryID, err)
	}

	if err := s.store.MarkReplayed(ctx, entryID); err != nil {
		return nil, err
	}
	return t, nil
}

// ReplayAll replays every entry for the given queue (all queues if empty),
// re-enqueueing with bounded parallelism. Returns the number replayed; on
// error the count covers entries replayed before the first failure.
func (s *Service) ReplayAll(ctx context.Context, queue string) (int, error) {
	entries, err := s.store.ListDead(ctx, ListOpts{Queue: queue})
	if err != nil {
		return 0, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(replayParallelism)

	replayed := make(chan struct{}, len(entries))
	for _, e := range entries {
		g.Go(func() error {
			if _, rerr := s.Replay(gctx, e.ID); rerr != nil {
				return rerr
			}
			replayed <- struct{}{}
			return nil
		})
	}

	err = g.Wait()
	close(replayed)
	return len(replayed), err
}

// Purge removes entries older than the given age. Returns the number removed.
func (s *Service) Purge(ctx context.Context, olderThan time.Duration) (int64, error) {
	return s.store.PurgeDead(ctx, time.Now().UTC().Add(-olderThan))
}

// Store returns the underlying dead-letter store for direct access to
// List, Get, and Count operations.
func (s *Service) Store() Store {
	return s.store
}
