// Package engine implements the wavectl orchestration core.
//
// # Overview
//
// A deployment run walks a fixed, ordered partition of components (waves)
// against one target:
//
//  1. Registry - waves and components loaded and preflight-checked (pkg/config)
//  2. Gate - a component's dependencies must be healthy before it deploys
//  3. Deploy - the deploy trigger is issued to the target
//  4. Health - readiness is polled with doubling-with-cap backoff
//  5. Verdict - required failures abort the run, optional ones warn
//  6. Rollback - deployed components are torn down in reverse order on abort
//
// Waves execute strictly sequentially; components within a wave run on a
// bounded worker pool and are independent by construction.
//
// # Core Domain Types
//
//   - Component: the smallest deployable, health-checkable unit
//   - Wave: an ordered stage of mutually independent components
//   - StatusTracker: the single source of truth for component states
//   - DeploymentRun: one run's identity, status, and ordered deployed set
//   - HealthCheckResult: the classified outcome of readiness polling
//   - RollbackResult: the structured report of a rollback pass
//
// # Target Interface
//
// The deployment boundary is opaque to the engine and reduced to three
// calls:
//
//	type Target interface {
//	    Deploy(ctx context.Context, component Component) error
//	    Probe(ctx context.Context, component Component) (ProbeResult, error)
//	    Teardown(ctx context.Context, component Component) error
//	}
//
// Teardown must be idempotent; the rollback controller relies on calling
// it against already-removed units.
package engine
