package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/fezwho/docintel"
	"github.com/fezwho/docintel/beat"
	"github.com/fezwho/docintel/broker"
	"github.com/fezwho/docintel/deadletter"
	"github.com/fezwho/docintel/hook"
	"github.com/fezwho/docintel/id"
	mw "github.com/fezwho/docintel/middleware"
	"github.com/fezwho/docintel/queue"
	"github.com/fezwho/docintel/router"
	"github.com/fezwho/docintel/task"
	"github.com/fezwho/docintel/worker"
)

// meterScope is the instrumentation scope for engine-built middleware.
const meterScope = "github.com/fezwho/docintel"

// Engine supervises the worker: it owns the configuration, builds the
// execution pipeline, and coordinates startup, steady state, and shutdown.
type Engine struct {
	cfg      docintel.Config
	broker   broker.Broker
	registry *task.Registry
	hooks    *hook.Registry
	dead     *deadletter.Service
	pool     *worker.Pool
	router   *router.Router
	beat     *beat.Scheduler
	logger   *slog.Logger

	mws         []mw.Middleware
	queueLimits []queue.Config
	extraHooks  []hook.Hook
	beatEntries []beat.Entry
	beatTick    time.Duration

	// OpenTelemetry providers (optional; nil means use global).
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider

	mu      sync.Mutex
	started bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger. By default the engine logs to stderr
// at the configured level.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithHook registers a lifecycle hook with the engine.
func WithHook(h hook.Hook) Option {
	return func(e *Engine) { e.extraHooks = append(e.extraHooks, h) }
}

// WithMiddleware appends middleware to the engine's chain, inside the
// default stack.
func WithMiddleware(m mw.Middleware) Option {
	return func(e *Engine) { e.mws = append(e.mws, m) }
}

// WithQueueLimits registers per-queue rate limiting and concurrency
// configurations. Queues not listed have no limits.
func WithQueueLimits(configs ...queue.Config) Option {
	return func(e *Engine) { e.queueLimits = append(e.queueLimits, configs...) }
}

// WithBeat registers recurring schedule entries. The engine runs an
// embedded beat scheduler that enqueues each entry on its schedule for as
// long as the engine is started. Deployments with multiple workers should
// run a dedicated beat process instead, so each schedule fires once.
func WithBeat(entries ...beat.Entry) Option {
	return func(e *Engine) { e.beatEntries = append(e.beatEntries, entries...) }
}

// WithBeatTickInterval overrides how often the embedded beat scheduler
// checks for due entries.
func WithBeatTickInterval(d time.Duration) Option {
	return func(e *Engine) { e.beatTick = d }
}

// WithTracerProvider sets a custom OTel TracerProvider. When set, the
// tracing middleware uses it instead of the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(e *Engine) { e.tracerProvider = tp }
}

// WithMeterProvider sets a custom OTel MeterProvider. When set, the
// metrics middleware uses it instead of the global provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(e *Engine) { e.meterProvider = mp }
}

// New creates an Engine over the given broker. Configuration validation
// failures are fatal: the engine refuses to construct.
func New(cfg docintel.Config, b broker.Broker, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b == nil {
		return nil, docintel.ErrNoBroker
	}

	level, err := docintel.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:      cfg,
		broker:   b,
		registry: task.NewRegistry(),
		logger: slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
		})),
	}
	for _, opt := range opts {
		opt(e)
	}

	e.hooks = hook.NewRegistry(e.logger)
	for _, h := range e.extraHooks {
		e.hooks.Register(h)
	}

	// Dead-letter service when the broker can store entries.
	if ds, ok := b.(deadletter.Store); ok {
		e.dead = deadletter.NewService(ds, b)
	}

	// Tracing middleware (custom provider or global).
	var tracingMw mw.Middleware
	if e.tracerProvider != nil {
		tracingMw = mw.TracingWithTracer(e.tracerProvider.Tracer(meterScope))
	} else {
		tracingMw = mw.Tracing()
	}

	// Metrics middleware (custom provider or global).
	var metricsMw mw.Middleware
	if e.meterProvider != nil {
		metricsMw = mw.MetricsWithMeter(e.meterProvider.Meter(meterScope))
	} else {
		metricsMw = mw.Metrics()
	}

	// Default middleware stack: recover → tracing → metrics → logging.
	// The executor enforces the per-task deadline itself so it can abandon
	// handlers that ignore cancellation.
	allMws := append([]mw.Middleware{
		mw.Recover(e.logger),
		tracingMw,
		metricsMw,
		mw.Logging(e.logger),
	}, e.mws...)

	executor := worker.NewExecutor(e.registry, cfg.PerTaskTimeout, e.logger, allMws...)

	probe := cfg.DequeuePollTimeout / time.Duration(len(cfg.Queues))
	e.router = router.New(b, cfg.Queues, router.WithProbeInterval(probe))

	poolOpts := []worker.PoolOption{
		worker.WithConcurrency(cfg.Concurrency),
	}
	if len(e.queueLimits) > 0 {
		poolOpts = append(poolOpts, worker.WithLimiter(queue.NewLimiter(e.queueLimits...)))
	}

	e.pool = worker.NewPool(e.router, b, executor, e.hooks, cfg.MaxTasksPerSlot, e.logger, poolOpts...)

	if len(e.beatEntries) > 0 {
		var beatOpts []beat.SchedulerOption
		if e.beatTick > 0 {
			beatOpts = append(beatOpts, beat.WithTickInterval(e.beatTick))
		}
		e.beat = beat.NewScheduler(e.EnqueueRaw, e.logger, beatOpts...)
		for _, entry := range e.beatEntries {
			if err := e.beat.Add(entry); err != nil {
				return nil, err
			}
		}
	}

	return e, nil
}

// Register registers a typed task definition with the engine. Tasks of the
// definition's type enqueued through the engine inherit its queue, attempt
// budget, and timeout.
func Register[T any](e *Engine, def *task.Definition[T]) {
	task.RegisterDefinition(e.registry, def)
}

// Enqueue marshals the payload and enqueues a task of the given type.
func Enqueue[T any](ctx context.Context, e *Engine, taskType string, payload T, opts ...task.Option) (*task.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload for task %q: %w", taskType, err)
	}
	return e.EnqueueRaw(ctx, taskType, data, opts...)
}

// EnqueueRaw enqueues a task with a pre-serialized payload. Options default
// to the registered definition's options for the task type.
func (e *Engine) EnqueueRaw(ctx context.Context, taskType string, payload []byte, opts ...task.Option) (*task.Task, error) {
	o := e.registry.OptionsFor(taskType)
	for _, opt := range opts {
		opt(&o)
	}

	t := &task.Task{
		ID:          id.NewTaskID(),
		Type:        taskType,
		Queue:       o.Queue,
		Payload:     payload,
		MaxAttempts: o.MaxAttempts,
		EnqueuedAt:  time.Now().UTC(),
		Timeout:     o.Timeout,
	}

	if err := e.broker.Enqueue(ctx, t); err != nil {
		return nil, err
	}

	e.hooks.EmitTaskEnqueued(ctx, t)
	return t, nil
}

// Start verifies broker connectivity and launches the worker pool. A
// transport failure here is fatal: the engine refuses to start.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.started {
		return nil
	}

	if err := e.broker.Ping(ctx); err != nil {
		return fmt.Errorf("broker unreachable at startup: %w", err)
	}

	e.logger.Info("engine starting",
		slog.Int("concurrency", e.cfg.Concurrency),
		slog.Any("queues", e.cfg.Queues),
		slog.Int("max_tasks_per_slot", e.cfg.MaxTasksPerSlot),
	)

	if err := e.pool.Start(ctx); err != nil {
		return err
	}
	if e.beat != nil {
		e.beat.Start()
	}
	e.started = true
	return nil
}

// Stop drains the worker pool, fires shutdown hooks, and closes the broker
// connection. When ctx carries no deadline the configured drain timeout
// applies. Returns ErrDrainTimeout if in-flight tasks had to be requeued,
// so callers can exit non-zero.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return nil
	}
	e.started = false
	e.mu.Unlock()

	if _, hasDeadline := ctx.Deadline(); !hasDeadline && e.cfg.DrainTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.DrainTimeout)
		defer cancel()
	}

	// Schedules stop first so the drain works against a fixed backlog.
	if e.beat != nil {
		e.beat.Stop()
	}

	drainErr := e.pool.Stop(ctx)

	e.hooks.EmitShutdown(context.WithoutCancel(ctx))

	if err := e.broker.Close(); err != nil {
		e.logger.Error("broker close failed", slog.String("error", err.Error()))
	}

	if drainErr != nil {
		e.logger.Warn("engine stopped after forced drain", slog.String("error", drainErr.Error()))
		return drainErr
	}
	e.logger.Info("engine stopped")
	return nil
}

// Run starts the engine and blocks until ctx is cancelled, then stops with
// the configured drain timeout. The returned error is ErrDrainTimeout when
// the drain was forced; map it to a non-zero exit code.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()

	stopCtx := context.WithoutCancel(ctx)
	return e.Stop(stopCtx)
}

// Broker returns the engine's broker.
func (e *Engine) Broker() broker.Broker { return e.broker }

// Registry returns the task registry.
func (e *Engine) Registry() *task.Registry { return e.registry }

// Hooks returns the lifecycle hook registry.
func (e *Engine) Hooks() *hook.Registry { return e.hooks }

// Dead returns the dead-letter service, or nil when the broker cannot
// store dead-letter entries.
func (e *Engine) Dead() *deadletter.Service { return e.dead }

// Pool returns the worker slot pool.
func (e *Engine) Pool() *worker.Pool { return e.pool }

// Beat returns the embedded beat scheduler, or nil when no schedule
// entries were registered.
func (e *Engine) Beat() *beat.Scheduler { return e.beat }
