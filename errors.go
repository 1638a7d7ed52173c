package docintel

import "errors"

var (
	// Startup errors.
	ErrInvalidConfig = errors.New("docintel: invalid configuration")
	ErrNoBroker      = errors.New("docintel: no broker configured")

	// Not found errors.
	ErrTaskNotFound = errors.New("docintel: task not found")
	ErrDeadNotFound = errors.New("docintel: dead-letter entry not found")

	// Conflict errors.
	ErrTaskAlreadyExists = errors.New("docintel: task already exists")

	// Execution errors.
	ErrNoHandler = errors.New("docintel: no handler registered for task type")

	// Shutdown errors.
	ErrDrainTimeout = errors.New("docintel: drain timeout elapsed, termination forced")
)
