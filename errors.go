package graflow

import (
	"errors"
	"fmt"
)

// ValidationError marks a malformed definition or missing required
// configuration. Always terminal, regardless of retry limit.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return "validation: " + e.Message }

// ExecutorError wraps an executor failure. Retriable unless wrapping a
// ConfigurationError.
type ExecutorError struct {
	Cause error
}

func (e *ExecutorError) Error() string { return fmt.Sprintf("executor: %v", e.Cause) }
func (e *ExecutorError) Unwrap() error { return e.Cause }

// Retriable reports whether this error should drive a retry rather than a
// terminal failure.
func (e *ExecutorError) Retriable() bool {
	var cfg *ConfigurationError
	return !errors.As(e.Cause, &cfg)
}

// NotFoundError marks an unknown id. Never retried.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("%s not found: %s", e.Kind, e.ID) }

// StateError marks an illegal state transition attempt.
type StateError struct {
	Message string
}

func (e *StateError) Error() string { return "illegal state transition: " + e.Message }

// ConfigurationError marks a fatal engine-level misconfiguration, e.g. no
// execution strategy available for a workflow.
type ConfigurationError struct {
	Message string
}

func (e *ConfigurationError) Error() string { return "configuration: " + e.Message }

// TransportError marks a malformed async ingress message. Logged and
// dropped, never surfaced to a caller.
type TransportError struct {
	Message string
}

func (e *TransportError) Error() string { return "transport: " + e.Message }
