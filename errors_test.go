package graflow

import (
	"errors"
	"fmt"
	"testing"
)

func TestValidationErrorMessage(t *testing.T) {
	err := &ValidationError{Message: "missing taskType"}
	if got, want := err.Error(), "validation: missing taskType"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestNotFoundErrorMessage(t *testing.T) {
	err := &NotFoundError{Kind: "workflow execution", ID: "abc"}
	if got, want := err.Error(), "workflow execution not found: abc"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestStateErrorMessage(t *testing.T) {
	err := &StateError{Message: "cannot cancel a COMPLETED workflow"}
	if got, want := err.Error(), "illegal state transition: cannot cancel a COMPLETED workflow"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestConfigurationErrorMessage(t *testing.T) {
	err := &ConfigurationError{Message: "no strategy registered for PARALLEL"}
	if got, want := err.Error(), "configuration: no strategy registered for PARALLEL"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestTransportErrorMessage(t *testing.T) {
	err := &TransportError{Message: "missing taskExecutionId"}
	if got, want := err.Error(), "transport: missing taskExecutionId"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestExecutorErrorWrapsAndUnwraps(t *testing.T) {
	cause := errors.New("connection refused")
	err := &ExecutorError{Cause: cause}
	if got, want := err.Error(), "executor: connection refused"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is should see through ExecutorError.Unwrap to the cause")
	}
}

func TestExecutorErrorRetriableByDefault(t *testing.T) {
	err := &ExecutorError{Cause: errors.New("timeout")}
	if !err.Retriable() {
		t.Error("an ExecutorError wrapping a plain error should be retriable")
	}
}

func TestExecutorErrorNotRetriableWhenWrappingConfigurationError(t *testing.T) {
	err := &ExecutorError{Cause: &ConfigurationError{Message: "missing required field mapping"}}
	if err.Retriable() {
		t.Error("an ExecutorError wrapping a ConfigurationError must not be retriable")
	}
}

func TestExecutorErrorNotRetriableWhenConfigurationErrorIsWrappedDeeper(t *testing.T) {
	inner := &ConfigurationError{Message: "bad template"}
	wrapped := fmt.Errorf("rendering failed: %w", inner)
	err := &ExecutorError{Cause: wrapped}
	if err.Retriable() {
		t.Error("Retriable must see through intermediate wrapping via errors.As")
	}
}
