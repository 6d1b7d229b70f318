// Package target provides deployment target adapters.
//
// An adapter implements the engine's Target interface (deploy trigger,
// readiness probe, teardown) for one class of deployment boundary. The
// exec adapter shells out to per-component command lines declared in the
// registry, which makes any scriptable system a valid target.
package target
