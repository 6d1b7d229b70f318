package engine

import (
	"time"
)

// Component is the smallest deployable and health-checkable unit tracked
// by the orchestrator. Components are created once at registry load time
// and are immutable for the duration of a run.
type Component struct {
	// Name is the unique identifier, stable across runs.
	Name string `json:"name"`

	// Wave is the deploy order stage this component belongs to.
	// Components in the same wave are independent of each other.
	Wave int `json:"wave"`

	// Dependencies lists component names that must be healthy before this
	// component may leave the pending state. All dependencies resolve to
	// strictly earlier waves; the registry loader enforces this.
	Dependencies []string `json:"dependencies,omitempty"`

	// Required controls the abort policy: a required component's failure
	// aborts the run, an optional one's failure is recorded as a warning.
	Required bool `json:"required"`

	// HealthCheck describes the polling schedule for this component.
	HealthCheck HealthCheckSpec `json:"health_check"`

	// Env carries opaque per-component configuration (target selection,
	// credentials, overrides). The orchestrator never interprets it.
	Env map[string]string `json:"env,omitempty"`

	// Metadata carries target-adapter settings such as the deploy, probe
	// and teardown command lines for the exec target.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// HealthCheckSpec describes the health-check polling schedule for a
// component: doubling backoff between probes, capped at MaxInterval,
// bounded by MaxAttempts and a hard Timeout.
type HealthCheckSpec struct {
	// InitialInterval is the delay before the second probe.
	InitialInterval time.Duration `json:"initial_interval"`

	// BackoffMultiplier scales the interval after each failed probe.
	BackoffMultiplier float64 `json:"backoff_multiplier"`

	// MaxInterval caps the computed interval.
	MaxInterval time.Duration `json:"max_interval"`

	// MaxAttempts bounds the total number of probes.
	MaxAttempts int `json:"max_attempts"`

	// Timeout bounds the cumulative elapsed time across all probes.
	Timeout time.Duration `json:"timeout"`
}

// Wave is an ordered stage of the deployment.
type Wave struct {
	// Index is the zero-based position of the wave in deploy order.
	Index int `json:"index"`

	// Name is an optional human-readable label.
	Name string `json:"name,omitempty"`

	// Components are the units deployed in this wave.
	Components []Component `json:"components"`
}

// HealthCheckResult is the outcome of a single readiness probe, or of the
// whole polling loop once it resolves.
type HealthCheckResult struct {
	// Attempt is the 1-based probe attempt this result belongs to.
	Attempt int `json:"attempt"`

	// Elapsed is the cumulative time spent polling this component.
	Elapsed time.Duration `json:"elapsed"`

	// Outcome classifies the result.
	Outcome HealthOutcome `json:"outcome"`

	// Detail is a free-form diagnostic string retained for the final report.
	Detail string `json:"detail,omitempty"`
}

// ComponentStatus is the mutable per-run record for a component, held by
// the status tracker.
type ComponentStatus struct {
	// State is the current lifecycle state.
	State ComponentState `json:"state"`

	// Attempts is the number of health probes issued so far.
	Attempts int `json:"attempts"`

	// Detail retains the last diagnostic string from a probe or deploy error.
	Detail string `json:"detail,omitempty"`

	// UpdatedAt is when the state last changed.
	UpdatedAt time.Time `json:"updated_at"`
}

// DeploymentRun is the in-memory record of one orchestration run against
// one target. It is created by the driver and discarded after the terminal
// status is reported.
type DeploymentRun struct {
	// ID is the unique identifier for this run.
	ID string `json:"id"`

	// StartedAt is when the run started.
	StartedAt time.Time `json:"started_at"`

	// CompletedAt is when the run reached a terminal status.
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// CurrentWave is the index of the wave being executed.
	CurrentWave int `json:"current_wave"`

	// OverallStatus is the run-level status.
	OverallStatus RunStatus `json:"overall_status"`

	// Tracker is the single source of truth for component states.
	Tracker *StatusTracker `json:"-"`

	// Deployed is the ordered list of component names that reached the
	// deploying state, used for rollback ordering.
	Deployed []string `json:"deployed"`

	// Rollback is the rollback report, present when the run aborted.
	Rollback *RollbackResult `json:"rollback,omitempty"`

	// Warnings lists optional components that failed without aborting the run.
	Warnings []string `json:"warnings,omitempty"`
}

// Duration returns the total run duration, using the current time while
// the run is still active.
func (r *DeploymentRun) Duration() time.Duration {
	if r.CompletedAt != nil {
		return r.CompletedAt.Sub(r.StartedAt)
	}
	return time.Since(r.StartedAt)
}

// RollbackFailure records a component that rollback could not remove.
type RollbackFailure struct {
	// Component is the component name.
	Component string `json:"component"`

	// Detail is the last teardown error.
	Detail string `json:"detail"`
}

// RollbackResult is the structured report of a rollback pass.
type RollbackResult struct {
	// TornDown lists components removed, in teardown order.
	TornDown []string `json:"torn_down"`

	// Failed lists components that could not be removed after retries.
	// Non-empty Failed means the caller must escalate to manual cleanup.
	Failed []RollbackFailure `json:"failed,omitempty"`

	// Duration is the total rollback time.
	Duration time.Duration `json:"duration"`
}

// Complete returns true if every component was torn down.
func (r *RollbackResult) Complete() bool {
	return len(r.Failed) == 0
}
