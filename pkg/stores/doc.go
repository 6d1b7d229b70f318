// Package stores persists run history.
//
// The in-memory status tracker remains the single source of truth while
// a run executes; the store only receives transitions as they happen and
// is never read back mid-run. What it buys is post-mortem inspection
// (status --run-id after the process exited) and an active-run guard
// that survives process restarts against the same state path.
package stores
