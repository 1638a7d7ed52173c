package router_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fezwho/docintel/broker"
	"github.com/fezwho/docintel/broker/memory"
	"github.com/fezwho/docintel/router"
	"github.com/fezwho/docintel/task"
)

func TestNextPrefersHigherPriorityQueue(t *testing.T) {
	b := memory.New()
	ctx := context.Background()

	low := task.New("cleanup_failed_documents", nil, task.WithQueue("default"))
	high := task.New("process_document", nil, task.WithQueue("documents"))
	if err := b.Enqueue(ctx, low); err != nil {
		t.Fatalf("enqueue error: %v", err)
	}
	if err := b.Enqueue(ctx, high); err != nil {
		t.Fatalf("enqueue error: %v", err)
	}

	r := router.New(b, []string{"documents", "processing", "default"},
		router.WithProbeInterval(10*time.Millisecond))

	got, err := r.Next(ctx)
	if err != nil {
		t.Fatalf("next error: %v", err)
	}
	if got == nil || got.ID != high.ID {
		t.Fatalf("expected documents task first, got %+v", got)
	}

	got, err = r.Next(ctx)
	if err != nil {
		t.Fatalf("next error: %v", err)
	}
	if got == nil || got.ID != low.ID {
		t.Fatalf("expected default task second, got %+v", got)
	}
}

func TestNextFallsThroughEmptyQueues(t *testing.T) {
	b := memory.New()
	ctx := context.Background()

	only := task.New("generate_daily_stats", nil, task.WithQueue("default"))
	if err := b.Enqueue(ctx, only); err != nil {
		t.Fatalf("enqueue error: %v", err)
	}

	r := router.New(b, []string{"documents", "processing", "default"},
		router.WithProbeInterval(10*time.Millisecond))

	got, err := r.Next(ctx)
	if err != nil {
		t.Fatalf("next error: %v", err)
	}
	if got == nil || got.ID != only.ID {
		t.Fatalf("expected default task, got %+v", got)
	}
}

func TestNextReturnsNilWhenAllEmpty(t *testing.T) {
	b := memory.New()
	r := router.New(b, []string{"documents", "default"},
		router.WithProbeInterval(10*time.Millisecond))

	start := time.Now()
	got, err := r.Next(context.Background())
	if err != nil {
		t.Fatalf("next error: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil from empty queues, got %+v", got)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("probe cycle took %v, want bounded", elapsed)
	}
}

func TestNextStopsOnCancelledContext(t *testing.T) {
	b := memory.New()
	r := router.New(b, []string{"documents"}, router.WithProbeInterval(time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := r.Next(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("next error = %v, want context.Canceled", err)
	}
}

// flakyBroker fails every dequeue with a transport error.
type flakyBroker struct {
	memory.Broker
}

func (f *flakyBroker) Dequeue(_ context.Context, _ []string, _ time.Duration) (*task.Task, error) {
	return nil, broker.NewTransportError("dequeue", errors.New("connection refused"))
}

func TestNextSurfacesTransportError(t *testing.T) {
	r := router.New(&flakyBroker{}, []string{"documents"})

	_, err := r.Next(context.Background())
	if !broker.IsTransport(err) {
		t.Errorf("next error = %v, want transport error", err)
	}
}
