// Package router selects which queue a worker slot polls next. Queues are
// probed in strict priority order: the first configured queue is always
// attempted first, falling through only when it yields nothing within a
// short probe interval. Higher-priority queues are therefore serviced first
// even under sustained backlog, while the probe interval keeps transiently
// empty high-priority queues from blocking the rest forever.
package router

import (
	"context"
	"time"

	"github.com/fezwho/docintel/broker"
	"github.com/fezwho/docintel/task"
)

// Router polls an ordered queue list through the broker.
type Router struct {
	broker broker.Broker
	queues []string
	probe  time.Duration
}

// Option configures a Router.
type Option func(*Router)

// WithProbeInterval sets how long each queue is probed before falling
// through to the next one.
func WithProbeInterval(d time.Duration) Option {
	return func(r *Router) { r.probe = d }
}

// New creates a Router over the given ordered queues. Earlier queues have
// strictly higher priority. The default probe interval splits a one-second
// poll budget evenly across the queues.
func New(b broker.Broker, queues []string, opts ...Option) *Router {
	r := &Router{
		broker: b,
		queues: queues,
		probe:  time.Second / time.Duration(max(len(queues), 1)),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Queues returns the configured queue order.
func (r *Router) Queues() []string { return r.queues }

// Next returns the next task in priority order, or nil if every queue
// stayed empty for one full probe cycle. It never blocks longer than
// probe × len(queues) plus transport latency, so callers can always make
// progress toward shutdown.
func (r *Router) Next(ctx context.Context) (*task.Task, error) {
	for _, q := range r.queues {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		t, err := r.broker.Dequeue(ctx, []string{q}, r.probe)
		if err != nil {
			return nil, err
		}
		if t != nil {
			return t, nil
		}
	}
	return nil, nil
}
