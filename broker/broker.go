// Package broker defines the capability interface against the external
// message transport. The engine never talks to the transport directly; it
// enqueues, dequeues, acks, and nacks through a Broker.
//
// Two implementations ship with docintel: broker/redis for production and
// broker/memory for tests and embedding. The wire protocol behind a Broker
// is out of scope — implementations own it entirely.
package broker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fezwho/docintel/id"
	"github.com/fezwho/docintel/task"
)

// Broker abstracts enqueue/dequeue/ack/nack against an external transport.
//
// All operations are network-visible state changes. Implementations retry
// transient connectivity failures internally up to a small bounded count
// before surfacing a *TransportError.
type Broker interface {
	// Enqueue accepts a task into its queue.
	Enqueue(ctx context.Context, t *task.Task) error

	// Dequeue returns the next available task across the given ordered
	// queue names, blocking up to block. Returns (nil, nil) when every
	// queue is empty within the budget; it never blocks indefinitely.
	// A dequeued task is owned by the caller until acked or nacked.
	Dequeue(ctx context.Context, queues []string, block time.Duration) (*task.Task, error)

	// Ack marks a delivered task complete and destroys it. Idempotent:
	// acking an unknown task is not an error.
	Ack(ctx context.Context, taskID id.TaskID) error

	// Nack reports a failed delivery. With requeue=true the task is
	// re-enqueued at the tail of its queue with the attempt count
	// incremented; with requeue=false it is routed to the dead letter
	// queue. Idempotent for unknown tasks.
	Nack(ctx context.Context, t *task.Task, requeue bool) error

	// Return hands a delivered-but-never-executed task back to the head
	// of its queue without incrementing the attempt count. Only deliveries
	// whose execution never began may use it; completed or failed
	// executions go through Nack. Idempotent for unknown tasks.
	Return(ctx context.Context, t *task.Task) error

	// Ping verifies the transport is reachable.
	Ping(ctx context.Context) error

	// Close releases transport resources.
	Close() error
}

// TransportError wraps a transport-level failure that survived the broker's
// internal retry budget. Per-task errors never use it; it always means the
// transport itself is unhealthy.
type TransportError struct {
	Op  string
	Err error
}

// NewTransportError creates a TransportError for the given operation.
func NewTransportError(op string, err error) *TransportError {
	return &TransportError{Op: op, Err: err}
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("broker: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsTransport reports whether err is (or wraps) a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
