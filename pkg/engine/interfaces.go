package engine

import (
	"context"
	"time"
)

// ProbeState is the raw answer of a target readiness probe, before the
// health checker classifies it into a HealthOutcome.
type ProbeState string

const (
	// ProbeReady indicates the unit is up and serving.
	ProbeReady ProbeState = "ready"

	// ProbeNotReady indicates the unit exists but is not serving yet.
	ProbeNotReady ProbeState = "not_ready"

	// ProbeAbsent indicates the unit does not exist on the target.
	ProbeAbsent ProbeState = "absent"
)

// ProbeResult is the raw result of one readiness probe against the target.
type ProbeResult struct {
	// State is the probed readiness state.
	State ProbeState `json:"state"`

	// Detail is a free-form diagnostic string from the target.
	Detail string `json:"detail,omitempty"`
}

// Target is the deployment boundary collaborator. The orchestrator never
// interprets how a unit becomes ready; it only triggers actions and probes
// readiness through this interface.
type Target interface {
	// Deploy issues the provisioning or application action for a component.
	Deploy(ctx context.Context, component Component) error

	// Probe consults the component's readiness signal once.
	Probe(ctx context.Context, component Component) (ProbeResult, error)

	// Teardown removes a deployed component. It must be safe to call on an
	// already-removed unit.
	Teardown(ctx context.Context, component Component) error
}

// Checker performs one readiness probe and classifies the outcome.
// Looping and backoff are owned by the caller so the schedule stays
// explicit and testable.
type Checker interface {
	Check(ctx context.Context, component Component) HealthCheckResult
}

// RunRecorder receives run and component transitions as they happen, so a
// post-mortem status query reflects the run's real terminal state even if
// the process later crashes mid-rollback. Implementations must tolerate
// being called from multiple wave workers.
type RunRecorder interface {
	// RunStarted records the creation of a run.
	RunStarted(ctx context.Context, run *DeploymentRun) error

	// ComponentTransition records a component state change. order is the
	// position in the deployed set for components that reached deploying,
	// or -1 when the component never left pending.
	ComponentTransition(ctx context.Context, runID, component string, status ComponentStatus, order int) error

	// RunCompleted records the run's terminal status.
	RunCompleted(ctx context.Context, run *DeploymentRun) error
}

// Instruments receives execution measurements for metrics collection.
type Instruments interface {
	// RunStarted counts a run starting.
	RunStarted()

	// RunCompleted observes a run's terminal status and duration.
	RunCompleted(status RunStatus, duration time.Duration)

	// ComponentResolved counts a component reaching a terminal state.
	ComponentResolved(state ComponentState, required bool)

	// ProbeObserved counts a single health probe by outcome.
	ProbeObserved(outcome HealthOutcome)

	// TeardownObserved counts a rollback teardown result.
	TeardownObserved(ok bool)
}

// NopInstruments is an Instruments sink that discards everything.
type NopInstruments struct{}

// RunStarted implements Instruments.
func (NopInstruments) RunStarted() {}

// RunCompleted implements Instruments.
func (NopInstruments) RunCompleted(RunStatus, time.Duration) {}

// ComponentResolved implements Instruments.
func (NopInstruments) ComponentResolved(ComponentState, bool) {}

// ProbeObserved implements Instruments.
func (NopInstruments) ProbeObserved(HealthOutcome) {}

// TeardownObserved implements Instruments.
func (NopInstruments) TeardownObserved(bool) {}

// NopRecorder is a RunRecorder that discards everything.
type NopRecorder struct{}

// RunStarted implements RunRecorder.
func (NopRecorder) RunStarted(context.Context, *DeploymentRun) error { return nil }

// ComponentTransition implements RunRecorder.
func (NopRecorder) ComponentTransition(context.Context, string, string, ComponentStatus, int) error {
	return nil
}

// RunCompleted implements RunRecorder.
func (NopRecorder) RunCompleted(context.Context, *DeploymentRun) error { return nil }
