package task

import "time"

// Outcome tags the result of a single task execution.
type Outcome string

const (
	// OutcomeSuccess means the handler returned nil.
	OutcomeSuccess Outcome = "success"
	// OutcomeFailure means the handler returned an error or panicked.
	OutcomeFailure Outcome = "failure"
	// OutcomeTimeout means the execution exceeded its deadline. Timeouts
	// are treated as retryable up to the task's attempt budget.
	OutcomeTimeout Outcome = "timeout"
)

// Result is the tagged outcome of one execution, produced by the executor
// and consumed by the reporting step (ack/nack) and the recycler.
type Result struct {
	Outcome   Outcome
	Err       error
	Retryable bool
	Elapsed   time.Duration

	// Output is the serialized handler return value on success, nil when
	// the handler produced none. It is surfaced to completion hooks; the
	// engine does not persist it.
	Output []byte
}

// Succeeded creates a success result carrying the handler output.
func Succeeded(output []byte, elapsed time.Duration) Result {
	return Result{Outcome: OutcomeSuccess, Output: output, Elapsed: elapsed}
}

// Failed creates a failure result. retryable controls whether the task is
// requeued (attempt budget permitting) or routed straight to dead-letter.
func Failed(err error, retryable bool, elapsed time.Duration) Result {
	return Result{Outcome: OutcomeFailure, Err: err, Retryable: retryable, Elapsed: elapsed}
}

// TimedOut creates a timeout result. Timeouts count as retryable.
func TimedOut(err error, elapsed time.Duration) Result {
	return Result{Outcome: OutcomeTimeout, Err: err, Retryable: true, Elapsed: elapsed}
}

// ShouldRequeue reports whether the task should be re-enqueued after this
// result, given the task's remaining attempt budget.
func (r Result) ShouldRequeue(t *Task) bool {
	if r.Outcome == OutcomeSuccess {
		return false
	}
	return r.Retryable && t.AttemptsLeft()
}
