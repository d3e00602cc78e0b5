package pipeflow

import (
	"errors"
	"fmt"
)

var (
	// ErrCanceled is reported for computations and requests that were
	// canceled before they produced a result.
	ErrCanceled = errors.New("canceled")

	// ErrReentrantEvaluation signals a core invariant violation: a cache was
	// rebuilt while it was already being rebuilt.
	ErrReentrantEvaluation = errors.New("re-entrant pipeline evaluation")

	ErrNodeClosed = errors.New("evaluation node closed")
)

// ConfigurationError is raised synchronously when a stage cannot run with
// its current parameters or input, e.g. required upstream data is missing.
type ConfigurationError struct {
	Stage string
	Cause error
}

func (e *ConfigurationError) Error() string {
	if e.Stage != "" {
		return fmt.Sprintf("stage %s: %v", e.Stage, e.Cause)
	}
	return e.Cause.Error()
}

func (e *ConfigurationError) Unwrap() error {
	return e.Cause
}

// NewConfigurationError builds a ConfigurationError with a formatted cause.
func NewConfigurationError(format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Cause: fmt.Errorf(format, args...)}
}

// ComputationFault is an error raised inside a running ComputeEngine.
type ComputationFault struct {
	Stage      string
	Cause      error
	StackTrace []byte
}

func (e *ComputationFault) Error() string {
	if e.Stage != "" {
		return fmt.Sprintf("computation in stage %s failed: %v", e.Stage, e.Cause)
	}
	return fmt.Sprintf("computation failed: %v", e.Cause)
}

func (e *ComputationFault) Unwrap() error {
	return e.Cause
}

// ResultAs converts an engine result to the type the modifier expects.
func ResultAs[T any](value any) (T, error) {
	typed, ok := value.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("unexpected engine result: expected %T, got %T", zero, value)
	}
	return typed, nil
}
