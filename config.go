package docintel

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the engine supervisor configuration.
type Config struct {
	// Concurrency is the number of worker slots executing tasks in parallel.
	Concurrency int

	// Queues is the ordered list of queues to poll. Earlier entries have
	// strictly higher priority.
	Queues []string

	// MaxTasksPerSlot is the number of tasks a slot executes before it is
	// retired and replaced. Zero disables recycling.
	MaxTasksPerSlot int

	// PerTaskTimeout bounds a single handler execution. Tasks may override
	// it with their own timeout.
	PerTaskTimeout time.Duration

	// DrainTimeout is the maximum time Stop waits for in-flight tasks
	// before forcing termination and requeueing whatever is still owned.
	DrainTimeout time.Duration

	// DequeuePollTimeout is the per-cycle budget for probing the queues
	// when all of them are empty.
	DequeuePollTimeout time.Duration

	// LogLevel is one of debug, info, warn, error.
	LogLevel string
}

// DefaultConfig returns the configuration used by the stock worker launcher:
// four slots over documents/processing/default, recycling every 100 tasks.
func DefaultConfig() Config {
	return Config{
		Concurrency:        4,
		Queues:             []string{"documents", "processing", "default"},
		MaxTasksPerSlot:    100,
		PerTaskTimeout:     5 * time.Minute,
		DrainTimeout:       30 * time.Second,
		DequeuePollTimeout: time.Second,
		LogLevel:           "info",
	}
}

// Validate reports whether the configuration can start an engine.
// All validation failures wrap ErrInvalidConfig and are fatal at startup.
func (c Config) Validate() error {
	if c.Concurrency < 1 {
		return fmt.Errorf("%w: concurrency must be >= 1, got %d", ErrInvalidConfig, c.Concurrency)
	}
	if len(c.Queues) == 0 {
		return fmt.Errorf("%w: at least one queue is required", ErrInvalidConfig)
	}
	seen := make(map[string]struct{}, len(c.Queues))
	for _, q := range c.Queues {
		if q == "" {
			return fmt.Errorf("%w: empty queue name", ErrInvalidConfig)
		}
		if _, dup := seen[q]; dup {
			return fmt.Errorf("%w: duplicate queue %q", ErrInvalidConfig, q)
		}
		seen[q] = struct{}{}
	}
	if c.MaxTasksPerSlot < 0 {
		return fmt.Errorf("%w: maxTasksPerSlot must be >= 0, got %d", ErrInvalidConfig, c.MaxTasksPerSlot)
	}
	if c.PerTaskTimeout < 0 {
		return fmt.Errorf("%w: perTaskTimeout must be >= 0, got %v", ErrInvalidConfig, c.PerTaskTimeout)
	}
	if c.DrainTimeout < 0 {
		return fmt.Errorf("%w: drainTimeout must be >= 0, got %v", ErrInvalidConfig, c.DrainTimeout)
	}
	if c.DequeuePollTimeout <= 0 {
		// A zero poll budget would turn every idle slot into a hot loop
		// against the broker.
		return fmt.Errorf("%w: dequeuePollTimeout must be > 0, got %v", ErrInvalidConfig, c.DequeuePollTimeout)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// ParseLevel converts a config log level string to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", s)
	}
}

// FromEnv overlays DOCINTEL_* environment variables onto cfg.
func FromEnv(cfg *Config) {
	if v := os.Getenv("DOCINTEL_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Concurrency = n
		}
	}
	if v := os.Getenv("DOCINTEL_QUEUES"); v != "" {
		parts := strings.Split(v, ",")
		cfg.Queues = nil
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cfg.Queues = append(cfg.Queues, p)
			}
		}
	}
	if v := os.Getenv("DOCINTEL_MAX_TASKS_PER_SLOT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxTasksPerSlot = n
		}
	}
	if v := os.Getenv("DOCINTEL_PER_TASK_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.PerTaskTimeout = d
		}
	}
	if v := os.Getenv("DOCINTEL_DRAIN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.DrainTimeout = d
		}
	}
	if v := os.Getenv("DOCINTEL_DEQUEUE_POLL_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.DequeuePollTimeout = d
		}
	}
	if v := os.Getenv("DOCINTEL_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
}
