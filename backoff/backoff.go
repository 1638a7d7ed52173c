// Package backoff provides pluggable retry delay policies. The broker
// client uses one to pace its bounded internal retries on transient
// transport failures. All policies are stateless and safe for concurrent use.
package backoff

import (
	"math"
	"math/rand/v2"
	"time"
)

// Policy computes the delay before retry attempt n (1-indexed).
// Attempt 1 is the first retry after the initial failure.
type Policy interface {
	Next(attempt int) time.Duration
}

// ──────────────────────────────────────────────────
// Constant
// ──────────────────────────────────────────────────

// Constant always returns the same delay regardless of attempt number.
type Constant struct {
	Interval time.Duration
}

// NewConstant creates a constant backoff policy.
func NewConstant(interval time.Duration) *Constant {
	return &Constant{Interval: interval}
}

// Next returns the fixed interval.
func (c *Constant) Next(_ int) time.Duration {
	return c.Interval
}

// ──────────────────────────────────────────────────
// Exponential
// ──────────────────────────────────────────────────

// Exponential doubles the delay each attempt.
// Next = min(Initial * 2^(attempt-1), Max).
type Exponential struct {
	Initial time.Duration
	Max     time.Duration
}

// NewExponential creates an exponential backoff policy.
func NewExponential(initial, maxDelay time.Duration) *Exponential {
	return &Exponential{Initial: initial, Max: maxDelay}
}

// Next returns Initial * 2^(attempt-1), capped at Max.
func (e *Exponential) Next(attempt int) time.Duration {
	d := time.Duration(float64(e.Initial) * math.Pow(2, float64(attempt-1)))
	if e.Max > 0 && d > e.Max {
		return e.Max
	}
	return d
}

// ──────────────────────────────────────────────────
// FullJitter
// ──────────────────────────────────────────────────

// FullJitter applies full jitter to an exponential base.
// Next = random value in [0, min(Initial * 2^(attempt-1), Max)].
// This prevents thundering herd when many slots retry simultaneously.
type FullJitter struct {
	Initial time.Duration
	Max     time.Duration
}

// NewFullJitter creates an exponential backoff policy with full jitter.
func NewFullJitter(initial, maxDelay time.Duration) *FullJitter {
	return &FullJitter{Initial: initial, Max: maxDelay}
}

// Next returns a random duration in [0, min(Initial * 2^(attempt-1), Max)].
func (f *FullJitter) Next(attempt int) time.Duration {
	base := float64(f.Initial) * math.Pow(2, float64(attempt-1))
	if f.Max > 0 && base > float64(f.Max) {
		base = float64(f.Max)
	}
	return time.Duration(rand.Float64() * base) //nolint:gosec // jitter intentionally uses non-crypto rand
}

// ──────────────────────────────────────────────────
// Default
// ──────────────────────────────────────────────────

// DefaultPolicy returns the policy used for broker transport retries:
// full jitter with 100ms initial and 5s max.
func DefaultPolicy() Policy {
	return NewFullJitter(100*time.Millisecond, 5*time.Second)
}
