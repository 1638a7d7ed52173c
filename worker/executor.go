// Package worker provides the task execution engine — an Executor that
// invokes registered handlers through middleware with timeout enforcement,
// a Slot state machine that fetches, executes, and reports tasks, a
// Recycler that retires slots after a task budget, and a Pool that manages
// the fixed set of concurrent slots.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fezwho/docintel"
	"github.com/fezwho/docintel/middleware"
	"github.com/fezwho/docintel/task"
)

// Executor runs a single task through middleware and the registered
// handler, enforcing the per-task timeout and classifying the outcome.
type Executor struct {
	registry       *task.Registry
	mw             middleware.Middleware
	defaultTimeout time.Duration
	logger         *slog.Logger
}

// NewExecutor creates an Executor. defaultTimeout applies to tasks that
// carry no timeout of their own; zero disables the default deadline.
func NewExecutor(
	registry *task.Registry,
	defaultTimeout time.Duration,
	logger *slog.Logger,
	mws ...middleware.Middleware,
) *Executor {
	return &Executor{
		registry:       registry,
		mw:             middleware.Chain(mws...),
		defaultTimeout: defaultTimeout,
		logger:         logger,
	}
}

// Execute runs a task through the middleware chain and handler, returning
// a tagged result. Handler errors and panics never escape: they are
// captured and classified.
//
// When the per-task deadline elapses before the handler returns, Execute
// abandons the handler goroutine and returns a Timeout result. The
// handler's context is cancelled, but side effects it already started are
// not rolled back.
func (e *Executor) Execute(ctx context.Context, t *task.Task) task.Result {
	handler, ok := e.registry.Get(t.Type)
	if !ok {
		return task.Failed(
			fmt.Errorf("%w: %q", docintel.ErrNoHandler, t.Type),
			false, 0,
		)
	}

	timeout := t.Timeout
	if timeout <= 0 {
		timeout = e.defaultTimeout
	}

	execCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	errCh := make(chan error, 1)

	// The middleware chain carries only the error; the handler output is
	// captured here. The channel receive orders the write before the read.
	var output []byte

	go func() {
		// Last line of defense: a panic in a chain without Recover
		// middleware must still not cross into the slot's control loop.
		defer func() {
			if r := recover(); r != nil {
				errCh <- fmt.Errorf("panic in task %s: %v", t.Type, r)
			}
		}()

		terminal := func(ctx context.Context) error {
			out, err := handler(ctx, t.Payload)
			output = out
			return err
		}
		errCh <- e.mw(execCtx, t, terminal)
	}()

	select {
	case err := <-errCh:
		return e.classify(t, err, output, time.Since(start))

	case <-execCtx.Done():
		elapsed := time.Since(start)
		if ctx.Err() != nil {
			// Parent cancelled (forced shutdown): retryable so the task
			// is requeued rather than lost.
			return task.Failed(ctx.Err(), true, elapsed)
		}

		// Deadline hit and the handler has not returned: abandon it.
		e.logger.Warn("task deadline exceeded, abandoning handler",
			slog.String("task_id", t.ID.String()),
			slog.String("task_type", t.Type),
			slog.Duration("timeout", timeout),
		)
		return task.TimedOut(execCtx.Err(), elapsed)
	}
}

// classify converts a handler return into a tagged result.
func (e *Executor) classify(t *task.Task, err error, output []byte, elapsed time.Duration) task.Result {
	switch {
	case err == nil:
		return task.Succeeded(output, elapsed)

	case errors.Is(err, context.DeadlineExceeded):
		// Cooperative timeout: the handler observed cancellation itself.
		return task.TimedOut(err, elapsed)

	case errors.Is(err, context.Canceled):
		// Forced shutdown observed cooperatively: retryable so the slot
		// requeues the task instead of dead-lettering it.
		return task.Failed(err, true, elapsed)

	case task.IsRetryable(err):
		return task.Failed(err, true, elapsed)

	default:
		e.logger.Debug("task failed non-retryably",
			slog.String("task_id", t.ID.String()),
			slog.String("task_type", t.Type),
			slog.String("error", err.Error()),
		)
		return task.Failed(err, false, elapsed)
	}
}
