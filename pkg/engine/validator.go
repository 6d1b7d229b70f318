package engine

// CanStart reports whether every dependency of the component is healthy in
// the tracker. Pure read; safe to call concurrently from wave workers.
func CanStart(component Component, tracker *StatusTracker) bool {
	for _, dep := range component.Dependencies {
		if tracker.Get(dep) != StateHealthy {
			return false
		}
	}
	return true
}

// UnsatisfiedDependencies returns the dependencies that are not healthy,
// for diagnostics when the gate rejects a component.
func UnsatisfiedDependencies(component Component, tracker *StatusTracker) []string {
	var unsatisfied []string
	for _, dep := range component.Dependencies {
		if tracker.Get(dep) != StateHealthy {
			unsatisfied = append(unsatisfied, dep)
		}
	}
	return unsatisfied
}
