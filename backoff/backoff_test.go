package backoff_test

import (
	"testing"
	"time"

	"github.com/fezwho/docintel/backoff"
)

func TestConstant(t *testing.T) {
	p := backoff.NewConstant(250 * time.Millisecond)

	for _, attempt := range []int{1, 2, 10} {
		if got := p.Next(attempt); got != 250*time.Millisecond {
			t.Errorf("Next(%d) = %v, want 250ms", attempt, got)
		}
	}
}

func TestExponential(t *testing.T) {
	p := backoff.NewExponential(100*time.Millisecond, 2*time.Second)

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{5, 1600 * time.Millisecond},
		{6, 2 * time.Second}, // capped
		{20, 2 * time.Second},
	}

	for _, tt := range tests {
		if got := p.Next(tt.attempt); got != tt.want {
			t.Errorf("Next(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestFullJitterBounds(t *testing.T) {
	p := backoff.NewFullJitter(100*time.Millisecond, time.Second)

	for attempt := 1; attempt <= 8; attempt++ {
		for range 50 {
			got := p.Next(attempt)
			if got < 0 {
				t.Fatalf("Next(%d) = %v, want >= 0", attempt, got)
			}
			if got > time.Second {
				t.Fatalf("Next(%d) = %v, want <= cap", attempt, got)
			}
		}
	}
}

func TestDefaultPolicyCapped(t *testing.T) {
	p := backoff.DefaultPolicy()

	for range 100 {
		if got := p.Next(30); got > 5*time.Second {
			t.Fatalf("default policy exceeded cap: %v", got)
		}
	}
}
