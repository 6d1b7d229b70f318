package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	// DefaultTeardownRetries is how many times a single teardown call is
	// attempted before rollback moves on.
	DefaultTeardownRetries = 3

	// DefaultTeardownDelay is the fixed pause between teardown attempts.
	// Rollback favors bounded total time over patience, so this does not
	// back off.
	DefaultTeardownDelay = 2 * time.Second
)

// RollbackController tears deployed components down in reverse deploy
// order, so dependents are removed before their dependencies. Each
// teardown is retried a small fixed number of times and is idempotent:
// tearing down an already-absent unit succeeds. Failures do not stop the
// pass; they are collected and reported so the caller can escalate.
type RollbackController struct {
	target      Target
	instruments Instruments
	logger      zerolog.Logger

	retries int
	delay   time.Duration
}

// RollbackOption configures a RollbackController.
type RollbackOption func(*RollbackController)

// WithTeardownRetries overrides the per-component teardown attempt count.
func WithTeardownRetries(n int) RollbackOption {
	return func(c *RollbackController) {
		if n > 0 {
			c.retries = n
		}
	}
}

// WithTeardownDelay overrides the fixed delay between teardown attempts.
func WithTeardownDelay(d time.Duration) RollbackOption {
	return func(c *RollbackController) {
		if d >= 0 {
			c.delay = d
		}
	}
}

// WithRollbackLogger sets the controller's logger.
func WithRollbackLogger(logger zerolog.Logger) RollbackOption {
	return func(c *RollbackController) { c.logger = logger }
}

// WithRollbackInstruments sets the controller's measurement sink.
func WithRollbackInstruments(ins Instruments) RollbackOption {
	return func(c *RollbackController) { c.instruments = ins }
}

// NewRollbackController creates a rollback controller over the target.
func NewRollbackController(target Target, opts ...RollbackOption) *RollbackController {
	c := &RollbackController{
		target:      target,
		instruments: NopInstruments{},
		logger:      zerolog.Nop(),
		retries:     DefaultTeardownRetries,
		delay:       DefaultTeardownDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Rollback processes the deployed set in strict reverse order. The tracker
// is updated as components are removed so a status query during or after
// rollback reflects reality. Rollback is independently invocable and
// idempotent: running it again over the same set is harmless.
func (c *RollbackController) Rollback(
	ctx context.Context,
	deployed []string,
	components map[string]Component,
	tracker *StatusTracker,
) *RollbackResult {
	start := time.Now()
	result := &RollbackResult{TornDown: make([]string, 0, len(deployed))}

	for i := len(deployed) - 1; i >= 0; i-- {
		name := deployed[i]
		component, ok := components[name]
		if !ok {
			// Deployed set entries always come from the registry; a miss
			// here is an internal bug, reported rather than dropped.
			result.Failed = append(result.Failed, RollbackFailure{
				Component: name,
				Detail:    "component not present in registry",
			})
			continue
		}

		if err := c.teardown(ctx, component); err != nil {
			c.logger.Error().
				Str("component", name).
				Err(err).
				Msg("teardown failed after retries, continuing rollback")
			c.instruments.TeardownObserved(false)
			result.Failed = append(result.Failed, RollbackFailure{
				Component: name,
				Detail:    err.Error(),
			})
			continue
		}

		c.logger.Info().Str("component", name).Msg("component torn down")
		c.instruments.TeardownObserved(true)
		tracker.Set(name, StateRolledBack)
		result.TornDown = append(result.TornDown, name)
	}

	result.Duration = time.Since(start)
	return result
}

// teardown issues one teardown call with fixed-delay retries.
func (c *RollbackController) teardown(ctx context.Context, component Component) error {
	var lastErr error
	for attempt := 1; attempt <= c.retries; attempt++ {
		lastErr = c.target.Teardown(ctx, component)
		if lastErr == nil {
			return nil
		}
		if attempt == c.retries {
			break
		}
		select {
		case <-time.After(c.delay):
		case <-ctx.Done():
			return fmt.Errorf("teardown interrupted: %w", ctx.Err())
		}
	}
	return lastErr
}

// IncompleteError converts a rollback report into a structured error, or
// nil when every component was removed.
func (r *RollbackResult) IncompleteError() error {
	if r.Complete() {
		return nil
	}
	names := make([]string, len(r.Failed))
	for i, f := range r.Failed {
		names[i] = f.Component
	}
	return NewPermanentError(
		fmt.Sprintf("rollback could not remove %d component(s): %s",
			len(r.Failed), strings.Join(names, ", ")),
		nil,
	).WithCode(ErrCodeRollbackIncomplete).
		WithDetail("components", names)
}
