package engine

import (
	"context"
	"fmt"
	"time"
)

// HealthChecker probes a component's readiness through the target and
// classifies the raw probe answer:
//
//	ready     -> healthy
//	not-ready -> retryable
//	absent    -> fatal (the unit is missing; waiting cannot fix it)
//	error     -> retryable (the probe itself failed; the target may still
//	             be coming up)
type HealthChecker struct {
	target Target
}

// NewHealthChecker creates a health checker over the given target.
func NewHealthChecker(target Target) *HealthChecker {
	return &HealthChecker{target: target}
}

// Check performs exactly one probe. Retry and backoff belong to the caller.
func (c *HealthChecker) Check(ctx context.Context, component Component) HealthCheckResult {
	res, err := c.target.Probe(ctx, component)
	if err != nil {
		if ctx.Err() != nil {
			return HealthCheckResult{Outcome: OutcomeTimeout, Detail: ctx.Err().Error()}
		}
		return HealthCheckResult{Outcome: OutcomeRetryable, Detail: err.Error()}
	}
	switch res.State {
	case ProbeReady:
		return HealthCheckResult{Outcome: OutcomeHealthy, Detail: res.Detail}
	case ProbeAbsent:
		return HealthCheckResult{Outcome: OutcomeFatal, Detail: res.Detail}
	default:
		return HealthCheckResult{Outcome: OutcomeRetryable, Detail: res.Detail}
	}
}

// nextInterval computes the next backoff interval: doubling (or whatever
// multiplier the schedule declares) capped at max.
func nextInterval(current time.Duration, multiplier float64, max time.Duration) time.Duration {
	next := time.Duration(float64(current) * multiplier)
	if next > max {
		next = max
	}
	return next
}

// AwaitHealthy runs the health-check retry loop for one component: probe,
// then sleep with doubling-with-cap backoff, until the component is
// healthy, a fatal condition is seen, the attempt budget is exhausted, or
// the cumulative elapsed time crosses the hard timeout. The backoff sleep
// is the only blocking point and is cancellable through ctx.
//
// The returned result carries the final attempt count, cumulative elapsed
// time, and the last diagnostic detail. The error is nil only for a
// healthy outcome.
func AwaitHealthy(ctx context.Context, checker Checker, component Component) (HealthCheckResult, error) {
	spec := component.HealthCheck
	interval := spec.InitialInterval
	start := time.Now()
	attempt := 0

	var last HealthCheckResult
	for {
		probe := checker.Check(ctx, component)
		attempt++
		last = HealthCheckResult{
			Attempt: attempt,
			Elapsed: time.Since(start),
			Outcome: probe.Outcome,
			Detail:  probe.Detail,
		}

		switch probe.Outcome {
		case OutcomeHealthy:
			return last, nil
		case OutcomeFatal:
			return last, NewPermanentError("component unit is absent or unrecoverable", nil).
				WithCode(ErrCodeHealthFatal).
				WithComponent(component.Name).
				WithDetail("detail", probe.Detail)
		}

		if attempt >= spec.MaxAttempts || last.Elapsed >= spec.Timeout {
			last.Outcome = OutcomeTimeout
			return last, NewPermanentError(
				fmt.Sprintf("health check exhausted after %d attempts in %s", attempt, last.Elapsed.Round(time.Millisecond)),
				nil,
			).WithCode(ErrCodeHealthTimeout).
				WithComponent(component.Name).
				WithDetail("detail", probe.Detail)
		}

		select {
		case <-time.After(interval):
		case <-ctx.Done():
			last.Outcome = OutcomeTimeout
			last.Elapsed = time.Since(start)
			return last, NewPermanentError("health check cancelled", ctx.Err()).
				WithCode(ErrCodeCancelled).
				WithComponent(component.Name)
		}
		interval = nextInterval(interval, spec.BackoffMultiplier, spec.MaxInterval)
	}
}
