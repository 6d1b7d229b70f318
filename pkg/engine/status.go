package engine

import (
	"encoding/json"
	"fmt"
)

// ComponentState represents the lifecycle state of a component within a run.
type ComponentState string

const (
	// StatePending indicates the component has not been deployed yet.
	StatePending ComponentState = "pending"

	// StateDeploying indicates the deploy trigger was issued and the
	// component is being health-checked.
	StateDeploying ComponentState = "deploying"

	// StateHealthy indicates the component passed its health check.
	StateHealthy ComponentState = "healthy"

	// StateFailed indicates the deploy trigger or health check failed.
	StateFailed ComponentState = "failed"

	// StateRolledBack indicates the component was torn down by rollback.
	StateRolledBack ComponentState = "rolled_back"
)

// IsTerminal returns true if the state is final for the current attempt.
func (s ComponentState) IsTerminal() bool {
	return s == StateHealthy || s == StateFailed || s == StateRolledBack
}

// Validate checks if the component state is valid.
func (s ComponentState) Validate() error {
	switch s {
	case StatePending, StateDeploying, StateHealthy, StateFailed, StateRolledBack:
		return nil
	default:
		return fmt.Errorf("invalid component state: %s", s)
	}
}

// RunStatus represents the overall status of a deployment run.
type RunStatus string

const (
	// RunStatusRunning indicates the run is currently executing waves.
	RunStatusRunning RunStatus = "running"

	// RunStatusAborting indicates a required component failed or the run
	// was cancelled, and rollback is in progress.
	RunStatusAborting RunStatus = "aborting"

	// RunStatusSucceeded indicates every wave completed with all required
	// components healthy.
	RunStatusSucceeded RunStatus = "succeeded"

	// RunStatusFailed indicates the run failed and rollback did not
	// complete cleanly (or was not performed).
	RunStatusFailed RunStatus = "failed"

	// RunStatusRolledBack indicates the run failed and every deployed
	// component was torn down.
	RunStatusRolledBack RunStatus = "rolled_back"
)

// IsTerminal returns true if the run status represents a final state.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusSucceeded || s == RunStatusFailed || s == RunStatusRolledBack
}

// Validate checks if the run status is valid.
func (s RunStatus) Validate() error {
	switch s {
	case RunStatusRunning, RunStatusAborting, RunStatusSucceeded,
		RunStatusFailed, RunStatusRolledBack:
		return nil
	default:
		return fmt.Errorf("invalid run status: %s", s)
	}
}

// HealthOutcome classifies the result of a single readiness probe.
type HealthOutcome string

const (
	// OutcomeHealthy indicates the component is ready.
	OutcomeHealthy HealthOutcome = "healthy"

	// OutcomeRetryable indicates the component is not ready yet and the
	// probe should be retried after backoff.
	OutcomeRetryable HealthOutcome = "retryable"

	// OutcomeTimeout indicates the probe itself timed out; retried the
	// same way as a retryable outcome.
	OutcomeTimeout HealthOutcome = "timeout"

	// OutcomeFatal indicates a condition that cannot self-heal, such as
	// the target unit being absent. Never retried.
	OutcomeFatal HealthOutcome = "fatal"
)

// Validate checks if the health outcome is valid.
func (o HealthOutcome) Validate() error {
	switch o {
	case OutcomeHealthy, OutcomeRetryable, OutcomeTimeout, OutcomeFatal:
		return nil
	default:
		return fmt.Errorf("invalid health outcome: %s", o)
	}
}

// MarshalJSON implements custom JSON marshaling for type-safe enum serialization.
func (s RunStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(s))
}

// UnmarshalJSON implements custom JSON unmarshaling with validation.
func (s *RunStatus) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*s = RunStatus(str)
	return s.Validate()
}

// MarshalJSON implements custom JSON marshaling for type-safe enum serialization.
func (s ComponentState) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(s))
}

// UnmarshalJSON implements custom JSON unmarshaling with validation.
func (s *ComponentState) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*s = ComponentState(str)
	return s.Validate()
}
