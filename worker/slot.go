package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/fezwho/docintel/broker"
	"github.com/fezwho/docintel/hook"
	"github.com/fezwho/docintel/id"
	"github.com/fezwho/docintel/queue"
	"github.com/fezwho/docintel/router"
	"github.com/fezwho/docintel/task"
)

// State is a worker slot's position in its lifecycle state machine.
type State int32

// Slot states. The normal cycle is Idle → Fetching → Executing →
// Reporting → Idle; a slot that hits its task budget moves through
// Recycling to Terminated and is replaced by the pool.
const (
	StateIdle State = iota
	StateFetching
	StateExecuting
	StateReporting
	StateRecycling
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFetching:
		return "fetching"
	case StateExecuting:
		return "executing"
	case StateReporting:
		return "reporting"
	case StateRecycling:
		return "recycling"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// stopReason tells the pool why a slot's run loop returned.
type stopReason int

const (
	stopShutdown stopReason = iota
	stopRecycle
)

// admissionRetry is how long a slot waits before re-checking queue
// admission for a task it already owns.
const admissionRetry = 10 * time.Millisecond

// transportBackoff is how long a slot stays in Fetching after a transport
// error before retrying.
const transportBackoff = time.Second

// Slot is a single concurrent execution unit. It owns at most one task at
// any instant and runs its own independent state-machine loop.
type Slot struct {
	id       id.SlotID
	router   *router.Router
	broker   broker.Broker
	executor *Executor
	recycler *Recycler
	hooks    *hook.Registry
	limiter  *queue.Limiter
	logger   *slog.Logger

	state   atomic.Int32
	current atomic.Pointer[task.Task]
}

func newSlot(
	r *router.Router,
	b broker.Broker,
	e *Executor,
	rec *Recycler,
	hooks *hook.Registry,
	limiter *queue.Limiter,
	logger *slog.Logger,
) *Slot {
	s := &Slot{
		id:       id.NewSlotID(),
		router:   r,
		broker:   b,
		executor: e,
		recycler: rec,
		hooks:    hooks,
		limiter:  limiter,
		logger:   logger,
	}
	s.state.Store(int32(StateIdle))
	return s
}

// ID returns the slot's unique identifier.
func (s *Slot) ID() id.SlotID { return s.id }

// State returns the slot's current lifecycle state.
func (s *Slot) State() State { return State(s.state.Load()) }

// Current returns the task the slot currently owns, or nil.
func (s *Slot) Current() *task.Task { return s.current.Load() }

// TasksProcessed returns the slot's lifetime completion count.
func (s *Slot) TasksProcessed() int { return s.recycler.Count(s.id) }

func (s *Slot) setState(st State) { s.state.Store(int32(st)) }

// run is the slot's state-machine loop. fetchCtx is cancelled when the
// pool stops admitting new work; hardCtx is cancelled when a drain
// timeout forces termination of in-flight executions.
func (s *Slot) run(fetchCtx, hardCtx context.Context) stopReason {
	defer s.setState(StateTerminated)

	for {
		s.setState(StateIdle)
		if fetchCtx.Err() != nil {
			return stopShutdown
		}

		s.setState(StateFetching)
		t, err := s.router.Next(fetchCtx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return stopShutdown
			}
			// Transport failure: the slot stays in Fetching and retries
			// after a short backoff. Never fatal to the pool.
			s.logger.Error("dequeue failed",
				slog.String("slot_id", s.id.String()),
				slog.String("error", err.Error()),
			)
			s.pause(fetchCtx, transportBackoff)
			continue
		}
		if t == nil {
			// All queues empty for a full probe cycle.
			continue
		}

		// Queue admission: hold the task until its queue grants a slot.
		// Ownership is retained, execution is delayed.
		for s.limiter != nil && !s.limiter.Acquire(t.Queue) {
			if !s.pause(fetchCtx, admissionRetry) {
				// Execution never began, so the task goes back without
				// an attempt charged against it.
				s.returnOnShutdown(hardCtx, t)
				return stopShutdown
			}
		}

		s.current.Store(t)
		s.setState(StateExecuting)
		s.hooks.EmitTaskStarted(hardCtx, t)

		res := s.executor.Execute(hardCtx, t)

		s.setState(StateReporting)
		s.report(hardCtx, t, res)
		s.current.Store(nil)
		if s.limiter != nil {
			s.limiter.Release(t.Queue)
		}

		if _, retire := s.recycler.RecordCompletion(s.id); retire {
			s.setState(StateRecycling)
			return stopRecycle
		}
	}
}

// report forwards the execution result to the broker: ack on success,
// nack-with-requeue for retryable failures with budget left, dead-letter
// otherwise. Reporting uses a context that survives forced cancellation
// so a terminating slot can still hand its task back.
func (s *Slot) report(hardCtx context.Context, t *task.Task, res task.Result) {
	ctx := context.WithoutCancel(hardCtx)

	switch {
	case res.Outcome == task.OutcomeSuccess:
		if err := s.broker.Ack(ctx, t.ID); err != nil {
			s.logger.Error("ack failed",
				slog.String("task_id", t.ID.String()),
				slog.String("error", err.Error()),
			)
			return
		}
		s.hooks.EmitTaskCompleted(ctx, t, res.Output, res.Elapsed)

	case errors.Is(res.Err, context.Canceled):
		// Forced shutdown interrupted the execution: requeue regardless
		// of the attempt budget so the task is never silently lost.
		s.requeueOnShutdown(hardCtx, t)

	case res.ShouldRequeue(t):
		t.LastError = res.Err.Error()
		if err := s.broker.Nack(ctx, t, true); err != nil {
			s.logger.Error("nack-requeue failed",
				slog.String("task_id", t.ID.String()),
				slog.String("error", err.Error()),
			)
			return
		}
		s.hooks.EmitTaskRetrying(ctx, t, t.Attempt+1, res.Err)
		s.logger.Info("task requeued for retry",
			slog.String("task_id", t.ID.String()),
			slog.String("task_type", t.Type),
			slog.String("queue", t.Queue),
			slog.Int("attempt", t.Attempt+1),
			slog.Int("max_attempts", t.MaxAttempts),
			slog.String("classification", string(res.Outcome)),
			slog.String("error", res.Err.Error()),
		)

	default:
		t.LastError = res.Err.Error()
		if err := s.broker.Nack(ctx, t, false); err != nil {
			s.logger.Error("nack-dead failed",
				slog.String("task_id", t.ID.String()),
				slog.String("error", err.Error()),
			)
			return
		}
		s.hooks.EmitTaskDead(ctx, t, res.Err)
		s.logger.Warn("task routed to dead letter",
			slog.String("task_id", t.ID.String()),
			slog.String("task_type", t.Type),
			slog.String("queue", t.Queue),
			slog.Int("attempt", t.Attempt),
			slog.String("classification", string(res.Outcome)),
			slog.String("error", res.Err.Error()),
		)
	}
}

// requeueOnShutdown hands a still-owned task back to the broker during
// forced termination.
func (s *Slot) requeueOnShutdown(hardCtx context.Context, t *task.Task) {
	ctx := context.WithoutCancel(hardCtx)
	t.LastError = "interrupted by shutdown"
	if err := s.broker.Nack(ctx, t, true); err != nil {
		s.logger.Error("shutdown requeue failed",
			slog.String("task_id", t.ID.String()),
			slog.String("error", err.Error()),
		)
		return
	}
	s.logger.Warn("in-flight task requeued on shutdown",
		slog.String("task_id", t.ID.String()),
		slog.String("queue", t.Queue),
	)
	s.current.Store(nil)
}

// returnOnShutdown hands back a task whose execution never started. Unlike
// requeueOnShutdown it does not count an attempt.
func (s *Slot) returnOnShutdown(hardCtx context.Context, t *task.Task) {
	ctx := context.WithoutCancel(hardCtx)
	if err := s.broker.Return(ctx, t); err != nil {
		s.logger.Error("shutdown return failed",
			slog.String("task_id", t.ID.String()),
			slog.String("error", err.Error()),
		)
		return
	}
	s.logger.Warn("never-started task returned on shutdown",
		slog.String("task_id", t.ID.String()),
		slog.String("queue", t.Queue),
	)
}

// pause sleeps for d or until ctx is cancelled, reporting whether the
// full pause elapsed.
func (s *Slot) pause(ctx context.Context, d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}
