package engine

import (
	"context"
	"sync"
	"testing"
	"time"
)

// scriptChecker returns a scripted sequence of outcomes, repeating the
// last one once the script is exhausted.
type scriptChecker struct {
	mu       sync.Mutex
	outcomes []HealthOutcome
	calls    int
}

func (c *scriptChecker) Check(ctx context.Context, component Component) HealthCheckResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.calls
	c.calls++
	if i >= len(c.outcomes) {
		i = len(c.outcomes) - 1
	}
	return HealthCheckResult{Outcome: c.outcomes[i], Detail: "scripted"}
}

func fastHealthSpec(maxAttempts int) HealthCheckSpec {
	return HealthCheckSpec{
		InitialInterval:   time.Millisecond,
		BackoffMultiplier: 2,
		MaxInterval:       4 * time.Millisecond,
		MaxAttempts:       maxAttempts,
		Timeout:           time.Hour,
	}
}

func TestNextInterval_DoublingWithCap(t *testing.T) {
	// The documented schedule: 5s initial, x2, capped at 60s.
	interval := 5 * time.Second
	want := []time.Duration{
		5 * time.Second,
		10 * time.Second,
		20 * time.Second,
		40 * time.Second,
		60 * time.Second,
	}

	for i, expected := range want {
		if interval != expected {
			t.Fatalf("interval %d: expected %s, got %s", i, expected, interval)
		}
		interval = nextInterval(interval, 2, 60*time.Second)
	}

	// The cap holds once reached.
	if interval != 60*time.Second {
		t.Errorf("expected interval to stay at cap, got %s", interval)
	}
}

func TestAwaitHealthy_EventualSuccess(t *testing.T) {
	checker := &scriptChecker{outcomes: []HealthOutcome{OutcomeRetryable, OutcomeRetryable, OutcomeHealthy}}
	component := Component{Name: "core", HealthCheck: fastHealthSpec(10)}

	result, err := AwaitHealthy(context.Background(), checker, component)
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if result.Outcome != OutcomeHealthy {
		t.Errorf("expected healthy outcome, got %s", result.Outcome)
	}
	if result.Attempt != 3 {
		t.Errorf("expected 3 attempts, got %d", result.Attempt)
	}
}

func TestAwaitHealthy_AttemptCap(t *testing.T) {
	checker := &scriptChecker{outcomes: []HealthOutcome{OutcomeRetryable}}
	component := Component{Name: "core", HealthCheck: fastHealthSpec(5)}

	result, err := AwaitHealthy(context.Background(), checker, component)
	if err == nil {
		t.Fatal("expected failure after exhausting attempts")
	}
	if !HasCode(err, ErrCodeHealthTimeout) {
		t.Errorf("expected %s, got %v", ErrCodeHealthTimeout, err)
	}
	if result.Attempt != 5 {
		t.Errorf("expected exactly 5 attempts, got %d", result.Attempt)
	}
	if checker.calls != 5 {
		t.Errorf("expected exactly 5 probes, got %d", checker.calls)
	}
	if result.Outcome != OutcomeTimeout {
		t.Errorf("expected timeout outcome, got %s", result.Outcome)
	}
}

func TestAwaitHealthy_FatalStopsImmediately(t *testing.T) {
	checker := &scriptChecker{outcomes: []HealthOutcome{OutcomeFatal}}
	component := Component{Name: "core", HealthCheck: fastHealthSpec(10)}

	result, err := AwaitHealthy(context.Background(), checker, component)
	if err == nil {
		t.Fatal("expected failure on fatal outcome")
	}
	if !HasCode(err, ErrCodeHealthFatal) {
		t.Errorf("expected %s, got %v", ErrCodeHealthFatal, err)
	}
	if result.Attempt != 1 {
		t.Errorf("fatal outcome must not be retried, got %d attempts", result.Attempt)
	}
}

func TestAwaitHealthy_TimeoutBudget(t *testing.T) {
	checker := &scriptChecker{outcomes: []HealthOutcome{OutcomeRetryable}}
	component := Component{
		Name: "core",
		HealthCheck: HealthCheckSpec{
			InitialInterval:   5 * time.Millisecond,
			BackoffMultiplier: 2,
			MaxInterval:       10 * time.Millisecond,
			MaxAttempts:       100,
			Timeout:           time.Millisecond,
		},
	}

	_, err := AwaitHealthy(context.Background(), checker, component)
	if err == nil {
		t.Fatal("expected failure once the time budget is exhausted")
	}
	if !HasCode(err, ErrCodeHealthTimeout) {
		t.Errorf("expected %s, got %v", ErrCodeHealthTimeout, err)
	}
	if checker.calls > 3 {
		t.Errorf("expected the time budget to stop polling early, got %d probes", checker.calls)
	}
}

func TestAwaitHealthy_CancelledDuringBackoff(t *testing.T) {
	checker := &scriptChecker{outcomes: []HealthOutcome{OutcomeRetryable}}
	component := Component{
		Name: "core",
		HealthCheck: HealthCheckSpec{
			InitialInterval:   time.Second,
			BackoffMultiplier: 2,
			MaxInterval:       time.Second,
			MaxAttempts:       10,
			Timeout:           time.Hour,
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := AwaitHealthy(ctx, checker, component)
	if err == nil {
		t.Fatal("expected cancellation error")
	}
	if !HasCode(err, ErrCodeCancelled) {
		t.Errorf("expected %s, got %v", ErrCodeCancelled, err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("cancellation should interrupt the backoff sleep, took %s", elapsed)
	}
}

func TestHealthChecker_ProbeClassification(t *testing.T) {
	tests := []struct {
		name    string
		state   ProbeState
		wantOut HealthOutcome
	}{
		{"ready maps to healthy", ProbeReady, OutcomeHealthy},
		{"not ready maps to retryable", ProbeNotReady, OutcomeRetryable},
		{"absent maps to fatal", ProbeAbsent, OutcomeFatal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := newMockTarget()
			target.probeStates["core"] = []ProbeState{tt.state}
			checker := NewHealthChecker(target)

			result := checker.Check(context.Background(), Component{Name: "core"})
			if result.Outcome != tt.wantOut {
				t.Errorf("expected %s, got %s", tt.wantOut, result.Outcome)
			}
		})
	}
}

func TestHealthChecker_ProbeErrorIsRetryable(t *testing.T) {
	target := newMockTarget()
	target.probeErr["core"] = NewTransientError("connection refused", nil)
	checker := NewHealthChecker(target)

	result := checker.Check(context.Background(), Component{Name: "core"})
	if result.Outcome != OutcomeRetryable {
		t.Errorf("expected retryable outcome for probe error, got %s", result.Outcome)
	}
}
