package workflow

import (
	"errors"
	"fmt"
)

// ErrorSeverity says how a failing backend call affects the workflow.
type ErrorSeverity string

const (
	// SeverityCritical fails the workflow.
	SeverityCritical ErrorSeverity = "critical"
	// SeverityHigh is reported in the output but the workflow continues.
	SeverityHigh ErrorSeverity = "high"
	// SeverityLow is only logged.
	SeverityLow ErrorSeverity = "low"
)

var (
	// ErrBackendUnavailable is returned when a workflow needs a backend that
	// is not configured.
	ErrBackendUnavailable = errors.New("backend not configured")
	// ErrMissingEntity is returned when a request lacks a required parameter
	// and memory has none to offer.
	ErrMissingEntity = errors.New("missing required parameter")
	// ErrInvalidEntity is returned when a parameter was given but cannot be
	// acted on.
	ErrInvalidEntity = errors.New("invalid parameter")
	// ErrUnsupportedTarget is returned for deploy targets a workflow cannot
	// act on.
	ErrUnsupportedTarget = errors.New("unsupported target")
	// ErrUnknownWorkflow is returned when registering an identifier outside
	// the defined workflow set.
	ErrUnknownWorkflow = errors.New("unknown workflow")
)

// OperationError labels a failed backend call with the step that made it.
type OperationError struct {
	Workflow  string
	Operation string
	Severity  ErrorSeverity
	Err       error
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("%s failed: %s", e.Operation, e.Err.Error())
}

// Unwrap allows errors.Is and errors.As to see the cause.
func (e *OperationError) Unwrap() error {
	return e.Err
}

func opError(workflow, operation string, severity ErrorSeverity, err error) *OperationError {
	return &OperationError{Workflow: workflow, Operation: operation, Severity: severity, Err: err}
}

// BlockedError is returned by a handler that refuses a destructive
// sub-action. The executor reports it as a blocked result.
type BlockedError struct {
	Reason string
}

func (e *BlockedError) Error() string {
	return e.Reason
}

func unavailable(backend string) error {
	return fmt.Errorf("%s %w", backend, ErrBackendUnavailable)
}

func invalid(field string, value any) error {
	return fmt.Errorf("%w: %s %v", ErrInvalidEntity, field, value)
}

func missing(field string) error {
	return fmt.Errorf("%w: %s", ErrMissingEntity, field)
}
