package engine

import (
	"sync"
	"time"
)

// StatusTracker is the single source of truth for component lifecycle
// states during a run. Every other piece of the orchestrator reads through
// it rather than caching state locally, so the scheduler and the rollback
// controller never hold divergent views.
//
// Writes for a given component are totally ordered by construction: only
// the wave worker driving that component transitions it. The tracker's own
// lock covers concurrent access across components.
type StatusTracker struct {
	mu       sync.RWMutex
	statuses map[string]ComponentStatus
}

// NewStatusTracker creates a tracker with every named component pending.
func NewStatusTracker(names []string) *StatusTracker {
	t := &StatusTracker{
		statuses: make(map[string]ComponentStatus, len(names)),
	}
	now := time.Now()
	for _, name := range names {
		t.statuses[name] = ComponentStatus{State: StatePending, UpdatedAt: now}
	}
	return t
}

// Set transitions a component to the given state, keeping the existing
// attempt count and detail.
func (t *StatusTracker) Set(name string, state ComponentState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	st := t.statuses[name]
	st.State = state
	st.UpdatedAt = time.Now()
	t.statuses[name] = st
}

// Resolve transitions a component to a terminal state for the current
// attempt, retaining the attempt count and diagnostic detail for the
// final report.
func (t *StatusTracker) Resolve(name string, state ComponentState, attempts int, detail string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.statuses[name] = ComponentStatus{
		State:     state,
		Attempts:  attempts,
		Detail:    detail,
		UpdatedAt: time.Now(),
	}
}

// Get returns the current state of a component. Unknown components report
// pending, matching a component that has not been touched yet.
func (t *StatusTracker) Get(name string) ComponentState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	st, ok := t.statuses[name]
	if !ok {
		return StatePending
	}
	return st.State
}

// Status returns the full status record for a component.
func (t *StatusTracker) Status(name string) (ComponentStatus, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	st, ok := t.statuses[name]
	return st, ok
}

// Snapshot returns a copy of the full component status map.
func (t *StatusTracker) Snapshot() map[string]ComponentStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]ComponentStatus, len(t.statuses))
	for name, st := range t.statuses {
		out[name] = st
	}
	return out
}
