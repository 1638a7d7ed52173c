// Package queue provides optional per-queue admission control for the
// worker pool: a concurrency cap and a token-bucket rate limit per named
// queue. Queues without a Config have no limits beyond the pool-wide
// slot count.
package queue

import (
	"sync"

	"golang.org/x/time/rate"
)

// Config defines per-queue behaviour.
type Config struct {
	// Name is the queue identifier (must match the task.Queue field).
	Name string

	// MaxConcurrency limits how many tasks from this queue may execute
	// simultaneously across the local pool. Zero means no queue-specific
	// limit.
	MaxConcurrency int

	// RateLimit is the maximum sustained tasks per second admitted from
	// this queue. Zero disables rate limiting.
	RateLimit float64

	// RateBurst is the burst size for the token-bucket limiter.
	// Defaults to 1 if RateLimit is set but RateBurst is zero.
	RateBurst int
}

type state struct {
	config  Config
	limiter *rate.Limiter
	active  int
}

// Limiter controls per-queue rate limiting and concurrency. A worker slot
// calls Acquire before executing a dequeued task and Release afterwards.
// It is safe for concurrent use.
type Limiter struct {
	mu     sync.Mutex
	queues map[string]*state
}

// NewLimiter creates a Limiter with the given queue configurations.
func NewLimiter(configs ...Config) *Limiter {
	l := &Limiter{queues: make(map[string]*state, len(configs))}
	for _, cfg := range configs {
		l.queues[cfg.Name] = newState(cfg)
	}
	return l
}

func newState(cfg Config) *state {
	s := &state{config: cfg}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return s
}

// Acquire checks the rate limit and concurrency cap for the queue. If the
// task may proceed it increments the active counter and returns true.
// The caller MUST call Release when execution completes.
func (l *Limiter) Acquire(queue string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := l.queues[queue]
	if s == nil {
		return true
	}
	if s.limiter != nil && !s.limiter.Allow() {
		return false
	}
	if s.config.MaxConcurrency > 0 && s.active >= s.config.MaxConcurrency {
		return false
	}
	s.active++
	return true
}

// Release decrements the active task count for the queue.
func (l *Limiter) Release(queue string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if s := l.queues[queue]; s != nil && s.active > 0 {
		s.active--
	}
}

// Active returns the current number of executing tasks for a queue.
func (l *Limiter) Active(queue string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	if s := l.queues[queue]; s != nil {
		return s.active
	}
	return 0
}
