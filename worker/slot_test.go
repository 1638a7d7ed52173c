package worker

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/fezwho/docintel/broker/memory"
	"github.com/fezwho/docintel/hook"
	"github.com/fezwho/docintel/queue"
	"github.com/fezwho/docintel/router"
	"github.com/fezwho/docintel/task"
)

func TestSlot_ShutdownWhileAwaitingAdmissionReturnsTaskWithoutAttempt(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	b := memory.New()
	ctx := context.Background()

	tk := task.New("process_document", nil, task.WithQueue("documents"))
	if err := b.Enqueue(ctx, tk); err != nil {
		t.Fatalf("enqueue error: %v", err)
	}

	// Occupy the queue's only admission slot so the worker slot parks
	// holding a task it can never start.
	limiter := queue.NewLimiter(queue.Config{Name: "documents", MaxConcurrency: 1})
	if !limiter.Acquire("documents") {
		t.Fatal("could not occupy the admission slot")
	}

	r := router.New(b, []string{"documents"}, router.WithProbeInterval(10*time.Millisecond))
	s := newSlot(r, b, NewExecutor(task.NewRegistry(), 0, logger),
		NewRecycler(0), hook.NewRegistry(logger), limiter, logger)

	hardCtx, hardCancel := context.WithCancel(context.Background())
	defer hardCancel()
	fetchCtx, fetchCancel := context.WithCancel(hardCtx)
	defer fetchCancel()

	done := make(chan stopReason, 1)
	go func() { done <- s.run(fetchCtx, hardCtx) }()

	// Wait until the slot owns the dequeued task.
	deadline := time.After(5 * time.Second)
	for b.UnackedCount() != 1 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for the slot to hold the task")
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}

	fetchCancel()

	select {
	case reason := <-done:
		if reason != stopShutdown {
			t.Fatalf("stop reason = %v, want shutdown", reason)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("slot did not stop after shutdown")
	}

	// The never-executed task is back at the head of its queue with no
	// attempt charged, and nothing is left unacked.
	if got := b.UnackedCount(); got != 0 {
		t.Errorf("unacked after shutdown = %d, want 0", got)
	}
	got, err := b.Dequeue(ctx, []string{"documents"}, 0)
	if err != nil {
		t.Fatalf("dequeue error: %v", err)
	}
	if got == nil || got.ID != tk.ID {
		t.Fatalf("expected the held task back on its queue, got %+v", got)
	}
	if got.Attempt != 0 {
		t.Errorf("attempt = %d, want 0 for a task that never ran", got.Attempt)
	}
}
