// Package errkind defines the scheduler's error taxonomy. Each Kind's
// comment names the reaction assigned to it; the producer, consumer, and
// drainer loops do not inspect Kind values, and of the sentinel errors only
// ErrTaskNotFound is checked (by the consumer's hydrate stage).
package errkind

import "errors"

// Kind classifies an error for the purposes of loop-level recovery.
type Kind string

const (
	// Configuration errors are fatal at startup.
	Configuration Kind = "configuration"
	// PrimaryStoreUnavailable is retryable and enters health-degraded state.
	PrimaryStoreUnavailable Kind = "primary_store_unavailable"
	// FastStoreUnavailable is retryable; sustained failure triggers shutdown.
	FastStoreUnavailable Kind = "fast_store_unavailable"
	// TaskSerialization means the task payload could not be decoded; the
	// task is dropped and forced to Finish(GLOBAL_FAILURE).
	TaskSerialization Kind = "task_serialization"
	// RunnerNotFound means no handler is registered for the task's runner tag.
	RunnerNotFound Kind = "runner_not_found"
	// HandlerRetryable means the handler asked for a backoff + re-enqueue.
	HandlerRetryable Kind = "handler_retryable"
	// HandlerFatal means the handler asked to force Finish.
	HandlerFatal Kind = "handler_fatal"
)

// Error is a scheduler error tagged with a Kind, wrapping an underlying cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an Error of the given kind.
func New(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// Sentinel errors used by store and registry lookups.
var (
	ErrTaskNotFound    = errors.New("task not found")
	ErrNotClaimed      = errors.New("task was not claimed: status changed under us")
	ErrRunnerNotFound  = errors.New("runner not found in registry")
	ErrLockNotAcquired = errors.New("advisory lock not acquired")
)
