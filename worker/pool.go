package worker

import (
	"context"
	"log/slog"
	"sync"

	"github.com/fezwho/docintel"
	"github.com/fezwho/docintel/broker"
	"github.com/fezwho/docintel/hook"
	"github.com/fezwho/docintel/queue"
	"github.com/fezwho/docintel/router"
)

// Pool maintains a fixed set of concurrent worker slots. Each slot runs
// its own state-machine loop; when a slot retires after reaching its task
// budget the pool immediately spawns a replacement, so the active slot
// count equals the configured concurrency except transiently during
// recycle and shutdown.
type Pool struct {
	router      *router.Router
	broker      broker.Broker
	executor    *Executor
	recycler    *Recycler
	hooks       *hook.Registry
	limiter     *queue.Limiter
	logger      *slog.Logger
	concurrency int

	mu      sync.Mutex
	running bool
	slots   []*Slot
	wg      sync.WaitGroup

	// fetchCancel stops admitting new Fetching transitions; hardCancel
	// force-terminates in-flight executions after the drain timeout.
	fetchCtx    context.Context
	fetchCancel context.CancelFunc
	hardCtx     context.Context
	hardCancel  context.CancelFunc
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithConcurrency sets the number of worker slots.
func WithConcurrency(n int) PoolOption {
	return func(p *Pool) { p.concurrency = n }
}

// WithLimiter sets an optional per-queue admission limiter.
func WithLimiter(l *queue.Limiter) PoolOption {
	return func(p *Pool) { p.limiter = l }
}

// NewPool creates a worker pool. maxTasksPerSlot bounds each slot's
// lifetime task count before it is recycled; zero or negative disables
// recycling.
func NewPool(
	r *router.Router,
	b broker.Broker,
	e *Executor,
	hooks *hook.Registry,
	maxTasksPerSlot int,
	logger *slog.Logger,
	opts ...PoolOption,
) *Pool {
	p := &Pool{
		router:      r,
		broker:      b,
		executor:    e,
		recycler:    NewRecycler(maxTasksPerSlot),
		hooks:       hooks,
		logger:      logger,
		concurrency: 4,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Slots returns the current slot set. The slice is a snapshot; slots may
// recycle concurrently.
func (p *Pool) Slots() []*Slot {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Slot, len(p.slots))
	copy(out, p.slots)
	return out
}

// Start launches the worker slots. It returns immediately.
func (p *Pool) Start(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return nil
	}
	p.running = true

	p.hardCtx, p.hardCancel = context.WithCancel(context.Background())
	p.fetchCtx, p.fetchCancel = context.WithCancel(p.hardCtx)

	p.logger.Info("worker pool starting",
		slog.Int("concurrency", p.concurrency),
		slog.Any("queues", p.router.Queues()),
	)

	p.slots = make([]*Slot, p.concurrency)
	for i := range p.concurrency {
		p.spawnSlot(i)
	}

	return nil
}

// spawnSlot creates a slot at pool index i and launches its run loop.
// Callers must hold p.mu.
func (p *Pool) spawnSlot(i int) {
	s := newSlot(p.router, p.broker, p.executor, p.recycler, p.hooks, p.limiter, p.logger)
	p.slots[i] = s

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		reason := s.run(p.fetchCtx, p.hardCtx)
		if reason != stopRecycle {
			return
		}

		processed := p.recycler.Count(s.id)
		p.recycler.Forget(s.id)
		p.hooks.EmitSlotRecycled(context.WithoutCancel(p.hardCtx), s.id, processed)
		p.logger.Info("worker slot recycled",
			slog.String("slot_id", s.id.String()),
			slog.Int("tasks_processed", processed),
		)

		// Replace the retired slot unless the pool is shutting down.
		p.mu.Lock()
		if p.running && p.fetchCtx.Err() == nil {
			p.spawnSlot(i)
		}
		p.mu.Unlock()
	}()
}

// Stop drains the pool: no new tasks are fetched, and in-flight
// executions get until ctx's deadline to finish. If the deadline elapses
// first, remaining executions are cancelled, their tasks are requeued,
// and ErrDrainTimeout is returned so callers can exit non-zero.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	p.mu.Unlock()

	p.logger.Info("worker pool draining")
	p.fetchCancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.hardCancel()
		p.logger.Info("worker pool stopped gracefully")
		return nil

	case <-ctx.Done():
		p.logger.Warn("drain timeout elapsed, forcing termination")
		p.hardCancel()
		p.wg.Wait()
		return docintel.ErrDrainTimeout
	}
}
