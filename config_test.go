package docintel_test

import (
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/fezwho/docintel"
)

func TestDefaultConfigIsValid(t *testing.T) {
	if err := docintel.DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestValidate_Rejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*docintel.Config)
	}{
		{"zero concurrency", func(c *docintel.Config) { c.Concurrency = 0 }},
		{"no queues", func(c *docintel.Config) { c.Queues = nil }},
		{"empty queue name", func(c *docintel.Config) { c.Queues = []string{"documents", ""} }},
		{"duplicate queue", func(c *docintel.Config) { c.Queues = []string{"default", "default"} }},
		{"negative max tasks", func(c *docintel.Config) { c.MaxTasksPerSlot = -1 }},
		{"negative per-task timeout", func(c *docintel.Config) { c.PerTaskTimeout = -time.Second }},
		{"negative drain timeout", func(c *docintel.Config) { c.DrainTimeout = -time.Second }},
		{"zero dequeue poll timeout", func(c *docintel.Config) { c.DequeuePollTimeout = 0 }},
		{"bad log level", func(c *docintel.Config) { c.LogLevel = "loud" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := docintel.DefaultConfig()
			tc.mutate(&cfg)
			if err := cfg.Validate(); !errors.Is(err, docintel.ErrInvalidConfig) {
				t.Errorf("Validate() = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"":        slog.LevelInfo,
		"info":    slog.LevelInfo,
		"debug":   slog.LevelDebug,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"ERROR":   slog.LevelError,
	}
	for in, want := range cases {
		got, err := docintel.ParseLevel(in)
		if err != nil {
			t.Errorf("ParseLevel(%q) error: %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}

	if _, err := docintel.ParseLevel("verbose"); err == nil {
		t.Error("ParseLevel(verbose) should fail")
	}
}

func TestFromEnv_Overlay(t *testing.T) {
	t.Setenv("DOCINTEL_CONCURRENCY", "8")
	t.Setenv("DOCINTEL_QUEUES", "alpha, beta")
	t.Setenv("DOCINTEL_MAX_TASKS_PER_SLOT", "50")
	t.Setenv("DOCINTEL_DRAIN_TIMEOUT", "10s")
	t.Setenv("DOCINTEL_LOG_LEVEL", "debug")

	cfg := docintel.DefaultConfig()
	docintel.FromEnv(&cfg)

	if cfg.Concurrency != 8 {
		t.Errorf("Concurrency = %d, want 8", cfg.Concurrency)
	}
	if len(cfg.Queues) != 2 || cfg.Queues[0] != "alpha" || cfg.Queues[1] != "beta" {
		t.Errorf("Queues = %v, want [alpha beta]", cfg.Queues)
	}
	if cfg.MaxTasksPerSlot != 50 {
		t.Errorf("MaxTasksPerSlot = %d, want 50", cfg.MaxTasksPerSlot)
	}
	if cfg.DrainTimeout != 10*time.Second {
		t.Errorf("DrainTimeout = %v, want 10s", cfg.DrainTimeout)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
}

func TestFromEnv_IgnoresMalformedValues(t *testing.T) {
	t.Setenv("DOCINTEL_CONCURRENCY", "many")
	t.Setenv("DOCINTEL_PER_TASK_TIMEOUT", "soon")

	cfg := docintel.DefaultConfig()
	docintel.FromEnv(&cfg)

	if cfg.Concurrency != 4 {
		t.Errorf("Concurrency = %d, want default 4", cfg.Concurrency)
	}
	if cfg.PerTaskTimeout != 5*time.Minute {
		t.Errorf("PerTaskTimeout = %v, want default 5m", cfg.PerTaskTimeout)
	}
}
