// Package beat enqueues tasks on recurring cron schedules. A Scheduler
// holds a static table of entries, each binding a cron expression to a
// task type, and hands due entries to an enqueue callback on every tick.
// The scheduler only enqueues; workers execute. Run exactly one beat per
// deployment so each schedule fires once.
package beat

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"

	"github.com/fezwho/docintel/task"
)

// defaultTickInterval is how often the scheduler checks for due entries.
const defaultTickInterval = time.Second

// scheduleParser accepts standard five-field cron expressions plus
// descriptors such as @hourly and @every 10m.
var scheduleParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor,
)

// ParseSchedule validates and parses a cron expression.
func ParseSchedule(expr string) (cronlib.Schedule, error) {
	s, err := scheduleParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", expr, err)
	}
	return s, nil
}

// EnqueueFunc submits a due task. The engine's EnqueueRaw satisfies it,
// as does any wrapper around a broker's Enqueue.
type EnqueueFunc func(ctx context.Context, taskType string, payload []byte, opts ...task.Option) (*task.Task, error)

// Entry binds a cron schedule to a task type.
type Entry struct {
	Name     string // unique label, used in logs
	Schedule string // cron expression or @descriptor
	TaskType string
	Queue    string // optional queue override
	Payload  []byte // optional payload, passed through verbatim
}

// scheduledEntry is an Entry with its parsed schedule and next due time.
type scheduledEntry struct {
	Entry
	schedule cronlib.Schedule
	nextRun  time.Time
}

// Scheduler fires entries when their schedules come due.
type Scheduler struct {
	enqueue EnqueueFunc
	logger  *slog.Logger
	tick    time.Duration

	mu      sync.Mutex
	entries []*scheduledEntry
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithTickInterval overrides how often the scheduler checks for due
// entries. The tick bounds firing precision, not schedule resolution.
func WithTickInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) { s.tick = d }
}

// NewScheduler creates a stopped scheduler that submits due tasks through
// enqueue.
func NewScheduler(enqueue EnqueueFunc, logger *slog.Logger, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		enqueue: enqueue,
		logger:  logger,
		tick:    defaultTickInterval,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add registers an entry and computes its first due time. Unparseable
// schedules and duplicate names are rejected. Entries added after Start
// are picked up on the next tick.
func (s *Scheduler) Add(e Entry) error {
	sched, err := ParseSchedule(e.Schedule)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.entries {
		if existing.Name == e.Name {
			return fmt.Errorf("schedule entry %q already registered", e.Name)
		}
	}
	s.entries = append(s.entries, &scheduledEntry{
		Entry:    e,
		schedule: sched,
		nextRun:  sched.Next(time.Now()),
	})
	return nil
}

// Start launches the tick loop. Idempotent.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.wg.Add(1)
	go s.loop(s.stopCh)
}

// Stop halts the tick loop and waits for an in-progress tick to finish.
// Idempotent.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Scheduler) loop(stopCh chan struct{}) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case now := <-ticker.C:
			s.fireDue(now)
		}
	}
}

// fireDue enqueues every entry whose due time has passed, then advances
// it to the following occurrence. A window missed while the process was
// down fires once, not once per missed occurrence.
func (s *Scheduler) fireDue(now time.Time) {
	s.mu.Lock()
	var due []*scheduledEntry
	for _, e := range s.entries {
		if !e.nextRun.After(now) {
			due = append(due, e)
			e.nextRun = e.schedule.Next(now)
		}
	}
	s.mu.Unlock()

	for _, e := range due {
		var opts []task.Option
		if e.Queue != "" {
			opts = append(opts, task.WithQueue(e.Queue))
		}
		t, err := s.enqueue(context.Background(), e.TaskType, e.Payload, opts...)
		if err != nil {
			s.logger.Error("scheduled enqueue failed",
				slog.String("entry", e.Name),
				slog.String("task_type", e.TaskType),
				slog.String("error", err.Error()),
			)
			continue
		}
		s.logger.Info("scheduled task enqueued",
			slog.String("entry", e.Name),
			slog.String("task_id", t.ID.String()),
			slog.String("task_type", e.TaskType),
			slog.String("queue", t.Queue),
		)
	}
}
