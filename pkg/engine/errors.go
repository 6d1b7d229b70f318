package engine

import (
	"errors"
	"fmt"
)

// ErrorClass represents the classification of an error for retry and
// abort decisions.
type ErrorClass string

const (
	// ErrorClassTransient indicates a failure that may succeed on retry.
	// Examples: a readiness probe reporting not-ready, a flaky deploy call.
	ErrorClassTransient ErrorClass = "transient"

	// ErrorClassPermanent indicates a non-recoverable error.
	// Examples: malformed registry, target unit absent, exhausted retries.
	ErrorClassPermanent ErrorClass = "permanent"
)

// OrchestratorError represents a classified error with component context.
type OrchestratorError struct {
	// Class is the error classification for retry logic.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is an optional error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Component is the component name that caused the error, if applicable.
	Component string `json:"component,omitempty"`

	// Operation is the operation being performed when the error occurred.
	Operation string `json:"operation,omitempty"`

	// Err is the underlying error that caused this error.
	Err error `json:"-"`

	// Details contains additional context-specific information.
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *OrchestratorError) Error() string {
	if e.Component != "" && e.Operation != "" {
		return fmt.Sprintf("[%s] %s (component=%s, operation=%s): %s",
			e.Class, e.Message, e.Component, e.Operation, e.unwrapMessage())
	}
	if e.Component != "" {
		return fmt.Sprintf("[%s] %s (component=%s): %s",
			e.Class, e.Message, e.Component, e.unwrapMessage())
	}
	return fmt.Sprintf("[%s] %s: %s", e.Class, e.Message, e.unwrapMessage())
}

// Unwrap returns the underlying error for error chain inspection.
func (e *OrchestratorError) Unwrap() error {
	return e.Err
}

// unwrapMessage returns the error message from the underlying error chain.
func (e *OrchestratorError) unwrapMessage() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return ""
}

// Is implements error equality checking for errors.Is.
func (e *OrchestratorError) Is(target error) bool {
	t, ok := target.(*OrchestratorError)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

// NewTransientError creates a new transient error.
func NewTransientError(message string, err error) *OrchestratorError {
	return &OrchestratorError{
		Class:   ErrorClassTransient,
		Message: message,
		Err:     err,
	}
}

// NewPermanentError creates a new permanent error.
func NewPermanentError(message string, err error) *OrchestratorError {
	return &OrchestratorError{
		Class:   ErrorClassPermanent,
		Message: message,
		Err:     err,
	}
}

// WithComponent adds component context to an error.
func (e *OrchestratorError) WithComponent(name string) *OrchestratorError {
	e.Component = name
	return e
}

// WithOperation adds operation context to an error.
func (e *OrchestratorError) WithOperation(operation string) *OrchestratorError {
	e.Operation = operation
	return e
}

// WithCode adds an error code to an error.
func (e *OrchestratorError) WithCode(code string) *OrchestratorError {
	e.Code = code
	return e
}

// WithDetail adds a detail field to the error context.
func (e *OrchestratorError) WithDetail(key string, value interface{}) *OrchestratorError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// IsTransient returns true if the error is classified as transient.
func IsTransient(err error) bool {
	var e *OrchestratorError
	if errors.As(err, &e) {
		return e.Class == ErrorClassTransient
	}
	return false
}

// IsPermanent returns true if the error is classified as permanent.
func IsPermanent(err error) bool {
	var e *OrchestratorError
	if errors.As(err, &e) {
		return e.Class == ErrorClassPermanent
	}
	return false
}

// HasCode returns true if the error carries the given orchestrator error code.
func HasCode(err error, code string) bool {
	var e *OrchestratorError
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// Orchestrator error codes.
const (
	// ErrCodeConfiguration marks a malformed registry: cyclic or forward
	// dependency, duplicate or unknown name, empty registry. Fatal at load.
	ErrCodeConfiguration = "CONFIGURATION_ERROR"

	// ErrCodeRunActive marks a single-writer violation: a run is already
	// active against the target. Fatal at start; no state mutated.
	ErrCodeRunActive = "RUN_ALREADY_ACTIVE"

	// ErrCodeDependencyUnsatisfied marks a deploy attempted while a
	// dependency is not healthy.
	ErrCodeDependencyUnsatisfied = "DEPENDENCY_UNSATISFIED"

	// ErrCodeDeployFailed marks a failed deploy trigger call.
	ErrCodeDeployFailed = "DEPLOY_TRIGGER_FAILED"

	// ErrCodeHealthTimeout marks a health check that exhausted its retry
	// or time budget without the component becoming ready.
	ErrCodeHealthTimeout = "HEALTH_CHECK_TIMEOUT"

	// ErrCodeHealthFatal marks a health check that found a condition which
	// cannot self-heal, such as the target unit being absent.
	ErrCodeHealthFatal = "HEALTH_CHECK_FATAL"

	// ErrCodeRollbackIncomplete marks a rollback that could not tear down
	// every deployed component.
	ErrCodeRollbackIncomplete = "ROLLBACK_INCOMPLETE"

	// ErrCodeCancelled marks a run aborted by external cancellation.
	ErrCodeCancelled = "RUN_CANCELLED"

	// ErrCodeInternal marks an internal invariant violation.
	ErrCodeInternal = "INTERNAL_ERROR"
)
