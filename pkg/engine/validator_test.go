package engine

import "testing"

func TestCanStart_NoDependencies(t *testing.T) {
	tracker := NewStatusTracker([]string{"core"})
	component := Component{Name: "core"}

	if !CanStart(component, tracker) {
		t.Error("a component without dependencies must always be allowed to start")
	}
}

func TestCanStart_AllDependenciesHealthy(t *testing.T) {
	tracker := NewStatusTracker([]string{"core", "shared", "app"})
	tracker.Set("core", StateHealthy)
	tracker.Set("shared", StateHealthy)
	component := Component{Name: "app", Dependencies: []string{"core", "shared"}}

	if !CanStart(component, tracker) {
		t.Error("expected app to start with all dependencies healthy")
	}
}

func TestCanStart_RejectsNonHealthyDependency(t *testing.T) {
	states := []ComponentState{StatePending, StateDeploying, StateFailed, StateRolledBack}
	for _, state := range states {
		tracker := NewStatusTracker([]string{"core", "app"})
		tracker.Set("core", state)
		component := Component{Name: "app", Dependencies: []string{"core"}}

		if CanStart(component, tracker) {
			t.Errorf("expected gate to reject dependency in state %s", state)
		}
	}
}

func TestUnsatisfiedDependencies(t *testing.T) {
	tracker := NewStatusTracker([]string{"core", "shared", "logging", "app"})
	tracker.Set("core", StateHealthy)
	tracker.Set("shared", StateFailed)
	component := Component{Name: "app", Dependencies: []string{"core", "shared", "logging"}}

	unsatisfied := UnsatisfiedDependencies(component, tracker)
	if len(unsatisfied) != 2 {
		t.Fatalf("expected 2 unsatisfied dependencies, got %v", unsatisfied)
	}
	seen := map[string]bool{}
	for _, name := range unsatisfied {
		seen[name] = true
	}
	if !seen["shared"] || !seen["logging"] {
		t.Errorf("expected shared and logging unsatisfied, got %v", unsatisfied)
	}
}
