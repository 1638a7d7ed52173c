package task

import "errors"

// retryableError marks a handler error as transient.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string { return e.err.Error() }

func (e *retryableError) Unwrap() error { return e.err }

// Retryable reports true, marking the error for requeue.
func (e *retryableError) Retryable() bool { return true }

// Retryable wraps err so that the executor classifies the failure as
// transient and requeues the task, attempt budget permitting. Wrapping nil
// returns nil.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &retryableError{err: err}
}

// IsRetryable reports whether err (or any error in its chain) is marked
// retryable via Retryable or implements `Retryable() bool`.
func IsRetryable(err error) bool {
	var r interface{ Retryable() bool }
	if errors.As(err, &r) {
		return r.Retryable()
	}
	return false
}
