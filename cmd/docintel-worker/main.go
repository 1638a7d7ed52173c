// Command docintel-worker runs the docintel task engine against a Redis
// broker and provides operational subcommands: the beat schedule, test
// enqueues, queue lengths, and dead-letter inspection/replay.
//
// The stock `work` command registers stub handlers for the standard
// document tasks; production deployments embed the engine as a library
// and register their own (see examples/docworker).
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/fezwho/docintel"
	"github.com/fezwho/docintel/beat"
	redisbroker "github.com/fezwho/docintel/broker/redis"
	"github.com/fezwho/docintel/deadletter"
	"github.com/fezwho/docintel/engine"
	"github.com/fezwho/docintel/id"
	"github.com/fezwho/docintel/task"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var redisAddr string

	root := &cobra.Command{
		Use:           "docintel-worker",
		Short:         "docintel task worker",
		Long:          "docintel-worker runs the multi-queue document task engine and manages its queues and dead letters.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&redisAddr, "redis-addr",
		envDefault("DOCINTEL_REDIS_ADDR", "localhost:6379"),
		"Redis broker address")

	root.AddCommand(workCmd(&redisAddr))
	root.AddCommand(beatCmd(&redisAddr))
	root.AddCommand(enqueueCmd(&redisAddr))
	root.AddCommand(queuesCmd(&redisAddr))
	root.AddCommand(deadCmd(&redisAddr))
	return root
}

func envDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// connect builds the Redis-backed broker shared by all subcommands.
func connect(redisAddr string, logger *slog.Logger) *redisbroker.Broker {
	client := goredis.NewClient(&goredis.Options{Addr: redisAddr})
	return redisbroker.New(client, redisbroker.WithLogger(logger))
}

func newLogger(level string) *slog.Logger {
	parsed, err := docintel.ParseLevel(level)
	if err != nil {
		parsed = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parsed}))
}

func workCmd(redisAddr *string) *cobra.Command {
	cfg := docintel.DefaultConfig()
	docintel.FromEnv(&cfg)

	cmd := &cobra.Command{
		Use:   "work",
		Short: "Start the worker engine",
		Long:  "Starts the slot pool and processes tasks until interrupted. Exits non-zero when the drain timeout forces termination with tasks outstanding.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := cfg.Validate(); err != nil {
				return err
			}
			logger := newLogger(cfg.LogLevel)
			b := connect(*redisAddr, logger)

			eng, err := engine.New(cfg, b, engine.WithLogger(logger))
			if err != nil {
				return err
			}
			registerStubHandlers(eng, logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := eng.Run(ctx); err != nil {
				if errors.Is(err, docintel.ErrDrainTimeout) {
					return fmt.Errorf("forced shutdown: in-flight tasks were requeued: %w", err)
				}
				return err
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&cfg.Concurrency, "concurrency", cfg.Concurrency, "number of worker slots")
	cmd.Flags().StringSliceVar(&cfg.Queues, "queues", cfg.Queues, "ordered queue list, highest priority first")
	cmd.Flags().IntVar(&cfg.MaxTasksPerSlot, "max-tasks-per-slot", cfg.MaxTasksPerSlot, "tasks per slot before recycling (0 disables)")
	cmd.Flags().DurationVar(&cfg.PerTaskTimeout, "per-task-timeout", cfg.PerTaskTimeout, "execution deadline per task")
	cmd.Flags().DurationVar(&cfg.DrainTimeout, "drain-timeout", cfg.DrainTimeout, "graceful shutdown budget")
	cmd.Flags().DurationVar(&cfg.DequeuePollTimeout, "dequeue-poll-timeout", cfg.DequeuePollTimeout, "per-cycle queue probe budget")
	cmd.Flags().StringVar(&cfg.LogLevel, "loglevel", cfg.LogLevel, "debug, info, warn, or error")
	return cmd
}

// registerStubHandlers wires the standard document task types with
// handlers that log their payloads. Real deployments replace these by
// embedding the engine.
func registerStubHandlers(eng *engine.Engine, logger *slog.Logger) {
	engine.Register(eng, task.NewDefinition("process_document",
		func(_ context.Context, p struct {
			DocumentID int `json:"document_id"`
		}) (any, error) {
			logger.Info("process_document", slog.Int("document_id", p.DocumentID))
			return nil, nil
		},
		task.WithQueue("documents"),
	))
	engine.Register(eng, task.NewDefinition("extract_text",
		func(_ context.Context, p struct {
			DocumentID int `json:"document_id"`
		}) (any, error) {
			logger.Info("extract_text", slog.Int("document_id", p.DocumentID))
			return nil, nil
		},
		task.WithQueue("processing"),
	))
	engine.Register(eng, task.NewDefinition("cleanup_failed_documents",
		func(_ context.Context, _ struct{}) (any, error) {
			logger.Info("cleanup_failed_documents")
			return nil, nil
		}))
	engine.Register(eng, task.NewDefinition("generate_daily_stats",
		func(_ context.Context, _ struct{}) (any, error) {
			logger.Info("generate_daily_stats")
			return nil, nil
		}))
}

func beatCmd(redisAddr *string) *cobra.Command {
	var (
		cleanupSchedule string
		statsSchedule   string
	)

	cmd := &cobra.Command{
		Use:   "beat",
		Short: "Run the periodic task scheduler",
		Long:  "Enqueues the standard maintenance tasks on their cron schedules. Run exactly one beat process per deployment alongside any number of workers.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := newLogger("info")
			b := connect(*redisAddr, logger)
			defer b.Close()

			enqueue := func(ctx context.Context, taskType string, payload []byte, opts ...task.Option) (*task.Task, error) {
				t := task.New(taskType, payload, opts...)
				if err := b.Enqueue(ctx, t); err != nil {
					return nil, err
				}
				return t, nil
			}

			sched := beat.NewScheduler(enqueue, logger)
			entries := []beat.Entry{
				{Name: "cleanup-failed-documents", Schedule: cleanupSchedule, TaskType: "cleanup_failed_documents"},
				{Name: "generate-daily-stats", Schedule: statsSchedule, TaskType: "generate_daily_stats"},
			}
			for _, e := range entries {
				if err := sched.Add(e); err != nil {
					return err
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			sched.Start()
			logger.Info("beat started", slog.Int("entries", len(entries)))
			<-ctx.Done()
			sched.Stop()
			logger.Info("beat stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&cleanupSchedule, "cleanup-schedule", "0 * * * *",
		"cron schedule for cleanup_failed_documents")
	cmd.Flags().StringVar(&statsSchedule, "stats-schedule", "0 0 * * *",
		"cron schedule for generate_daily_stats")
	return cmd
}

func enqueueCmd(redisAddr *string) *cobra.Command {
	var (
		queue       string
		payload     string
		maxAttempts int
	)

	cmd := &cobra.Command{
		Use:   "enqueue <task-type>",
		Short: "Enqueue a test task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b := connect(*redisAddr, newLogger("warn"))
			defer b.Close()

			t := task.New(args[0], []byte(payload),
				task.WithQueue(queue),
				task.WithMaxAttempts(maxAttempts),
			)
			if err := b.Enqueue(cmd.Context(), t); err != nil {
				return err
			}
			fmt.Printf("enqueued %s to %s\n", t.ID, t.Queue)
			return nil
		},
	}

	cmd.Flags().StringVar(&queue, "queue", "default", "target queue")
	cmd.Flags().StringVar(&payload, "payload", "{}", "JSON payload")
	cmd.Flags().IntVar(&maxAttempts, "max-attempts", 3, "execution budget before dead-letter")
	return cmd
}

func queuesCmd(redisAddr *string) *cobra.Command {
	var queues []string

	cmd := &cobra.Command{
		Use:   "queues",
		Short: "Show pending task counts per queue",
		RunE: func(cmd *cobra.Command, _ []string) error {
			b := connect(*redisAddr, newLogger("warn"))
			defer b.Close()

			for _, q := range queues {
				n, err := b.QueueLen(cmd.Context(), q)
				if err != nil {
					return err
				}
				fmt.Printf("%-12s %d\n", q, n)
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&queues, "queues",
		docintel.DefaultConfig().Queues, "queues to inspect")
	return cmd
}

func deadCmd(redisAddr *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dead",
		Short: "Inspect and replay dead-lettered tasks",
	}
	cmd.AddCommand(deadListCmd(redisAddr))
	cmd.AddCommand(deadReplayCmd(redisAddr))
	cmd.AddCommand(deadPurgeCmd(redisAddr))
	return cmd
}

func deadListCmd(redisAddr *string) *cobra.Command {
	var (
		queue string
		limit int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List dead-letter entries, oldest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			b := connect(*redisAddr, newLogger("warn"))
			defer b.Close()

			entries, err := b.ListDead(cmd.Context(), deadletter.ListOpts{
				Queue: queue,
				Limit: limit,
			})
			if err != nil {
				return err
			}
			for _, e := range entries {
				line, _ := json.Marshal(e)
				fmt.Println(string(line))
			}
			fmt.Fprintf(os.Stderr, "%d entries\n", len(entries))
			return nil
		},
	}

	cmd.Flags().StringVar(&queue, "queue", "", "filter by queue")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum entries to print")
	return cmd
}

func deadReplayCmd(redisAddr *string) *cobra.Command {
	var (
		all   bool
		queue string
	)

	cmd := &cobra.Command{
		Use:   "replay [entry-id]",
		Short: "Re-enqueue dead-lettered tasks with a fresh attempt budget",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !all && len(args) == 0 {
				return errors.New("pass an entry id or --all")
			}
			b := connect(*redisAddr, newLogger("warn"))
			defer b.Close()
			svc := deadletter.NewService(b, b)

			if all {
				n, err := svc.ReplayAll(cmd.Context(), queue)
				if err != nil {
					return err
				}
				fmt.Printf("replayed %d entries\n", n)
				return nil
			}

			entryID, err := id.ParseDeadID(args[0])
			if err != nil {
				return err
			}
			t, err := svc.Replay(cmd.Context(), entryID)
			if err != nil {
				return err
			}
			fmt.Printf("replayed as %s on %s\n", t.ID, t.Queue)
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "replay every entry")
	cmd.Flags().StringVar(&queue, "queue", "", "with --all, restrict to one queue")
	return cmd
}

func deadPurgeCmd(redisAddr *string) *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete old dead-letter entries",
		RunE: func(cmd *cobra.Command, _ []string) error {
			b := connect(*redisAddr, newLogger("warn"))
			defer b.Close()

			n, err := deadletter.NewService(b, b).Purge(cmd.Context(), olderThan)
			if err != nil {
				return err
			}
			fmt.Printf("purged %d entries\n", n)
			return nil
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 7*24*time.Hour, "minimum entry age")
	return cmd
}
