package deadletter_test

import (
	"context"
	"testing"
	"time"

	"github.com/fezwho/docintel/broker/memory"
	"github.com/fezwho/docintel/deadletter"
	"github.com/fezwho/docintel/task"
)

// kill routes a fresh task for the given type straight to the dead letter
// queue through the broker's delivery path.
func kill(t *testing.T, b *memory.Broker, taskType, queue string) *deadletter.Entry {
	t.Helper()
	ctx := context.Background()

	tk := task.New(taskType, []byte(`{"document_id":1}`), task.WithQueue(queue))
	if err := b.Enqueue(ctx, tk); err != nil {
		t.Fatalf("enqueue error: %v", err)
	}
	got, err := b.Dequeue(ctx, []string{queue}, 0)
	if err != nil || got == nil {
		t.Fatalf("dequeue = (%v, %v)", got, err)
	}
	got.LastError = "handler exploded"
	if err := b.Nack(ctx, got, false); err != nil {
		t.Fatalf("nack error: %v", err)
	}

	entries, err := b.ListDead(ctx, deadletter.ListOpts{})
	if err != nil {
		t.Fatalf("list dead error: %v", err)
	}
	for _, e := range entries {
		if e.TaskID == got.ID {
			return e
		}
	}
	t.Fatalf("no dead letter entry for task %s", got.ID)
	return nil
}

func TestReplay_ReEnqueuesWithFreshBudget(t *testing.T) {
	b := memory.New()
	svc := deadletter.NewService(b, b)
	ctx := context.Background()

	entry := kill(t, b, "process_document", "documents")

	replayed, err := svc.Replay(ctx, entry.ID)
	if err != nil {
		t.Fatalf("replay error: %v", err)
	}

	if replayed.ID == entry.TaskID {
		t.Error("replayed task must get a fresh ID")
	}
	if replayed.Attempt != 0 {
		t.Errorf("replayed attempt = %d, want 0", replayed.Attempt)
	}
	if replayed.Queue != "documents" {
		t.Errorf("replayed queue = %q, want original queue", replayed.Queue)
	}
	if got := b.Len("documents"); got != 1 {
		t.Errorf("documents queue length = %d, want 1", got)
	}

	// The entry is marked, not removed: the record of the failure stays.
	stored, err := b.GetDead(ctx, entry.ID)
	if err != nil {
		t.Fatalf("get dead error: %v", err)
	}
	if stored.ReplayedAt == nil {
		t.Error("entry must be marked replayed")
	}
}

func TestReplayAll_FiltersByQueue(t *testing.T) {
	b := memory.New()
	svc := deadletter.NewService(b, b)
	ctx := context.Background()

	kill(t, b, "process_document", "documents")
	kill(t, b, "extract_text", "processing")
	kill(t, b, "generate_daily_stats", "default")

	n, err := svc.ReplayAll(ctx, "documents")
	if err != nil {
		t.Fatalf("replay all error: %v", err)
	}
	if n != 1 {
		t.Errorf("replayed = %d, want 1", n)
	}
	if got := b.Len("documents"); got != 1 {
		t.Errorf("documents queue length = %d, want 1", got)
	}
	if got := b.Len("processing"); got != 0 {
		t.Errorf("processing queue length = %d, want 0", got)
	}
}

func TestReplayAll_EmptyQueueReplaysEverything(t *testing.T) {
	b := memory.New()
	svc := deadletter.NewService(b, b)

	kill(t, b, "process_document", "documents")
	kill(t, b, "extract_text", "processing")

	n, err := svc.ReplayAll(context.Background(), "")
	if err != nil {
		t.Fatalf("replay all error: %v", err)
	}
	if n != 2 {
		t.Errorf("replayed = %d, want 2", n)
	}
}

func TestPurge_RemovesOnlyOldEntries(t *testing.T) {
	b := memory.New()
	svc := deadletter.NewService(b, b)
	ctx := context.Background()

	old := kill(t, b, "process_document", "documents")
	old.FailedAt = time.Now().UTC().Add(-48 * time.Hour)
	kill(t, b, "extract_text", "processing")

	n, err := svc.Purge(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("purge error: %v", err)
	}
	if n != 1 {
		t.Errorf("purged = %d, want 1", n)
	}

	count, err := b.CountDead(ctx)
	if err != nil {
		t.Fatalf("count error: %v", err)
	}
	if count != 1 {
		t.Errorf("remaining entries = %d, want 1", count)
	}
}
