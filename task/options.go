package task

import "time"

// Options configures per-task behavior such as queue, attempts, and timeout.
type Options struct {
	// Queue is the queue name the task is enqueued to.
	Queue string

	// MaxAttempts is the total number of executions allowed before the
	// task is routed to the dead letter queue.
	MaxAttempts int

	// Timeout bounds a single execution. Zero means the engine default.
	Timeout time.Duration
}

// DefaultOptions returns Options with the engine defaults.
func DefaultOptions() Options {
	return Options{
		Queue:       "default",
		MaxAttempts: 3,
	}
}

// Option is a functional option for configuring a task or definition.
type Option func(*Options)

// WithQueue sets the queue name.
func WithQueue(q string) Option {
	return func(o *Options) { o.Queue = q }
}

// WithMaxAttempts sets the total number of executions allowed.
func WithMaxAttempts(n int) Option {
	return func(o *Options) { o.MaxAttempts = n }
}

// WithTimeout sets the per-execution timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *Options) { o.Timeout = d }
}
