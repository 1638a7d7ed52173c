package task_test

import (
	"errors"
	"testing"
	"time"

	"github.com/fezwho/docintel/task"
)

func TestShouldRequeue(t *testing.T) {
	errBoom := errors.New("boom")

	tests := []struct {
		name    string
		res     task.Result
		attempt int
		max     int
		want    bool
	}{
		{"success never requeues", task.Succeeded(nil, time.Second), 0, 3, false},
		{"retryable with budget", task.Failed(errBoom, true, 0), 0, 3, true},
		{"retryable on last attempt", task.Failed(errBoom, true, 0), 2, 3, false},
		{"non-retryable", task.Failed(errBoom, false, 0), 0, 3, false},
		{"timeout with budget", task.TimedOut(errBoom, 0), 1, 3, true},
		{"timeout exhausted", task.TimedOut(errBoom, 0), 2, 3, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tk := task.New("process_document", nil, task.WithMaxAttempts(tt.max))
			tk.Attempt = tt.attempt
			if got := tt.res.ShouldRequeue(tk); got != tt.want {
				t.Errorf("ShouldRequeue() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewTaskDefaults(t *testing.T) {
	tk := task.New("extract_text", []byte(`{}`), task.WithQueue("processing"))

	if tk.ID.IsNil() {
		t.Error("expected a task ID")
	}
	if tk.Queue != "processing" {
		t.Errorf("Queue = %q, want %q", tk.Queue, "processing")
	}
	if tk.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d, want 3", tk.MaxAttempts)
	}
	if tk.Attempt != 0 {
		t.Errorf("Attempt = %d, want 0", tk.Attempt)
	}
	if tk.EnqueuedAt.IsZero() {
		t.Error("expected EnqueuedAt to be set")
	}
}
