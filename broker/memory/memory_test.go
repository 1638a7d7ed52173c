package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fezwho/docintel"
	"github.com/fezwho/docintel/broker/memory"
	"github.com/fezwho/docintel/deadletter"
	"github.com/fezwho/docintel/id"
	"github.com/fezwho/docintel/task"
)

func TestEnqueueDequeueFIFO(t *testing.T) {
	b := memory.New()
	ctx := context.Background()

	first := task.New("process_document", []byte("a"), task.WithQueue("documents"))
	second := task.New("process_document", []byte("b"), task.WithQueue("documents"))
	if err := b.Enqueue(ctx, first); err != nil {
		t.Fatalf("enqueue error: %v", err)
	}
	if err := b.Enqueue(ctx, second); err != nil {
		t.Fatalf("enqueue error: %v", err)
	}

	got, err := b.Dequeue(ctx, []string{"documents"}, 0)
	if err != nil {
		t.Fatalf("dequeue error: %v", err)
	}
	if got == nil || got.ID != first.ID {
		t.Fatalf("expected first task, got %+v", got)
	}
}

func TestEnqueueDuplicate(t *testing.T) {
	b := memory.New()
	ctx := context.Background()

	tk := task.New("extract_text", nil, task.WithQueue("processing"))
	if err := b.Enqueue(ctx, tk); err != nil {
		t.Fatalf("enqueue error: %v", err)
	}
	if err := b.Enqueue(ctx, tk); !errors.Is(err, docintel.ErrTaskAlreadyExists) {
		t.Errorf("duplicate enqueue error = %v, want ErrTaskAlreadyExists", err)
	}
}

func TestDequeueHonorsQueueOrder(t *testing.T) {
	b := memory.New()
	ctx := context.Background()

	low := task.New("cleanup", nil, task.WithQueue("default"))
	high := task.New("process_document", nil, task.WithQueue("documents"))
	if err := b.Enqueue(ctx, low); err != nil {
		t.Fatalf("enqueue error: %v", err)
	}
	if err := b.Enqueue(ctx, high); err != nil {
		t.Fatalf("enqueue error: %v", err)
	}

	got, err := b.Dequeue(ctx, []string{"documents", "processing", "default"}, 0)
	if err != nil {
		t.Fatalf("dequeue error: %v", err)
	}
	if got == nil || got.ID != high.ID {
		t.Fatalf("expected documents task first, got %+v", got)
	}
}

func TestDequeueBlocksUntilTimeout(t *testing.T) {
	b := memory.New()
	ctx := context.Background()

	start := time.Now()
	got, err := b.Dequeue(ctx, []string{"documents"}, 50*time.Millisecond)
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("dequeue error: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil task from empty queue, got %+v", got)
	}
	if elapsed < 50*time.Millisecond {
		t.Errorf("returned after %v, want >= block timeout", elapsed)
	}
}

func TestDequeueRespectsContextCancel(t *testing.T) {
	b := memory.New()
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := b.Dequeue(ctx, []string{"documents"}, 5*time.Second)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("dequeue error = %v, want context.Canceled", err)
	}
}

func TestAckDestroysTask(t *testing.T) {
	b := memory.New()
	ctx := context.Background()

	tk := task.New("process_document", nil, task.WithQueue("documents"))
	if err := b.Enqueue(ctx, tk); err != nil {
		t.Fatalf("enqueue error: %v", err)
	}
	if _, err := b.Dequeue(ctx, []string{"documents"}, 0); err != nil {
		t.Fatalf("dequeue error: %v", err)
	}

	if err := b.Ack(ctx, tk.ID); err != nil {
		t.Fatalf("ack error: %v", err)
	}
	if n := b.UnackedCount(); n != 0 {
		t.Errorf("unacked = %d, want 0", n)
	}

	// Idempotent.
	if err := b.Ack(ctx, tk.ID); err != nil {
		t.Errorf("second ack error: %v", err)
	}
	if err := b.Ack(ctx, id.NewTaskID()); err != nil {
		t.Errorf("ack of unknown task error: %v", err)
	}
}

func TestNackRequeueIncrementsAttempt(t *testing.T) {
	b := memory.New()
	ctx := context.Background()

	tk := task.New("extract_text", nil, task.WithQueue("processing"))
	if err := b.Enqueue(ctx, tk); err != nil {
		t.Fatalf("enqueue error: %v", err)
	}
	if _, err := b.Dequeue(ctx, []string{"processing"}, 0); err != nil {
		t.Fatalf("dequeue error: %v", err)
	}

	if err := b.Nack(ctx, tk, true); err != nil {
		t.Fatalf("nack error: %v", err)
	}

	got, err := b.Dequeue(ctx, []string{"processing"}, 0)
	if err != nil {
		t.Fatalf("dequeue error: %v", err)
	}
	if got == nil {
		t.Fatal("expected requeued task")
	}
	if got.Attempt != 1 {
		t.Errorf("attempt = %d, want 1", got.Attempt)
	}
}

func TestReturnKeepsAttemptAndHeadPosition(t *testing.T) {
	b := memory.New()
	ctx := context.Background()

	first := task.New("process_document", nil, task.WithQueue("documents"))
	second := task.New("process_document", nil, task.WithQueue("documents"))
	if err := b.Enqueue(ctx, first); err != nil {
		t.Fatalf("enqueue error: %v", err)
	}
	if err := b.Enqueue(ctx, second); err != nil {
		t.Fatalf("enqueue error: %v", err)
	}
	if _, err := b.Dequeue(ctx, []string{"documents"}, 0); err != nil {
		t.Fatalf("dequeue error: %v", err)
	}

	if err := b.Return(ctx, first); err != nil {
		t.Fatalf("return error: %v", err)
	}
	if got := b.UnackedCount(); got != 0 {
		t.Errorf("unacked after return = %d, want 0", got)
	}

	// The returned task goes to the head, ahead of the untouched second
	// task, and its attempt count is unchanged.
	got, err := b.Dequeue(ctx, []string{"documents"}, 0)
	if err != nil {
		t.Fatalf("dequeue error: %v", err)
	}
	if got == nil || got.ID != first.ID {
		t.Fatalf("expected returned task at head, got %+v", got)
	}
	if got.Attempt != 0 {
		t.Errorf("attempt = %d, want 0 for a never-executed delivery", got.Attempt)
	}
}

func TestReturnUnknownTaskIsNoop(t *testing.T) {
	b := memory.New()

	tk := task.New("process_document", nil)
	if err := b.Return(context.Background(), tk); err != nil {
		t.Errorf("return of unowned task = %v, want nil", err)
	}
}

func TestNackRequeuesAtTail(t *testing.T) {
	b := memory.New()
	ctx := context.Background()

	failing := task.New("extract_text", []byte("failing"), task.WithQueue("processing"))
	waiting := task.New("extract_text", []byte("waiting"), task.WithQueue("processing"))
	if err := b.Enqueue(ctx, failing); err != nil {
		t.Fatalf("enqueue error: %v", err)
	}

	got, _ := b.Dequeue(ctx, []string{"processing"}, 0)
	if err := b.Enqueue(ctx, waiting); err != nil {
		t.Fatalf("enqueue error: %v", err)
	}
	if err := b.Nack(ctx, got, true); err != nil {
		t.Fatalf("nack error: %v", err)
	}

	next, _ := b.Dequeue(ctx, []string{"processing"}, 0)
	if next == nil || next.ID != waiting.ID {
		t.Fatalf("expected waiting task before requeued one, got %+v", next)
	}
}

func TestNackDeadLetters(t *testing.T) {
	b := memory.New()
	ctx := context.Background()

	tk := task.New("process_document", []byte("x"), task.WithQueue("documents"))
	if err := b.Enqueue(ctx, tk); err != nil {
		t.Fatalf("enqueue error: %v", err)
	}
	if _, err := b.Dequeue(ctx, []string{"documents"}, 0); err != nil {
		t.Fatalf("dequeue error: %v", err)
	}

	tk.LastError = "ocr engine crashed"
	if err := b.Nack(ctx, tk, false); err != nil {
		t.Fatalf("nack error: %v", err)
	}

	entries, err := b.ListDead(ctx, deadletter.ListOpts{})
	if err != nil {
		t.Fatalf("list dead error: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("dead entries = %d, want 1", len(entries))
	}
	if entries[0].TaskID != tk.ID {
		t.Errorf("entry task id = %s, want %s", entries[0].TaskID, tk.ID)
	}
	if entries[0].Error != "ocr engine crashed" {
		t.Errorf("entry error = %q", entries[0].Error)
	}
	if n := b.Len("documents"); n != 0 {
		t.Errorf("queue length = %d, want 0", n)
	}
}

func TestDeadLetterReplayAndPurge(t *testing.T) {
	b := memory.New()
	ctx := context.Background()
	svc := deadletter.NewService(b, b)

	tk := task.New("process_document", []byte("doc"), task.WithQueue("documents"))
	if err := b.Enqueue(ctx, tk); err != nil {
		t.Fatalf("enqueue error: %v", err)
	}
	if _, err := b.Dequeue(ctx, []string{"documents"}, 0); err != nil {
		t.Fatalf("dequeue error: %v", err)
	}
	tk.LastError = "bad input"
	if err := b.Nack(ctx, tk, false); err != nil {
		t.Fatalf("nack error: %v", err)
	}

	entries, _ := b.ListDead(ctx, deadletter.ListOpts{})
	replayed, err := svc.Replay(ctx, entries[0].ID)
	if err != nil {
		t.Fatalf("replay error: %v", err)
	}
	if replayed.Attempt != 0 {
		t.Errorf("replayed attempt = %d, want 0", replayed.Attempt)
	}
	if replayed.ID == tk.ID {
		t.Error("replay should issue a fresh task ID")
	}
	if n := b.Len("documents"); n != 1 {
		t.Errorf("queue length = %d, want 1", n)
	}

	got, _ := b.GetDead(ctx, entries[0].ID)
	if got.ReplayedAt == nil {
		t.Error("expected ReplayedAt to be set")
	}

	purged, err := b.PurgeDead(ctx, time.Now().UTC().Add(time.Minute))
	if err != nil {
		t.Fatalf("purge error: %v", err)
	}
	if purged != 1 {
		t.Errorf("purged = %d, want 1", purged)
	}
	count, _ := b.CountDead(ctx)
	if count != 0 {
		t.Errorf("count after purge = %d, want 0", count)
	}
}
