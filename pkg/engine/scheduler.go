package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultMaxParallel caps the worker pool used within a wave.
const DefaultMaxParallel = 8

// WaveScheduler executes a deployment run: waves strictly in order, with
// bounded concurrency inside each wave. Each component goes through the
// dependency gate, the deploy trigger, and the health-check retry loop;
// a required component's failure aborts the run and invokes rollback over
// everything deployed so far.
type WaveScheduler struct {
	target      Target
	checker     Checker
	rollback    *RollbackController
	recorder    RunRecorder
	instruments Instruments
	logger      zerolog.Logger
	maxParallel int

	// active enforces the single-writer invariant: one run at a time
	// through this scheduler.
	active atomic.Bool

	// mu guards the deployed set and warning list of the current run,
	// which wave workers append to concurrently.
	mu sync.Mutex
}

// SchedulerOption configures a WaveScheduler.
type SchedulerOption func(*WaveScheduler)

// WithMaxParallel caps concurrent component deploys within a wave.
func WithMaxParallel(n int) SchedulerOption {
	return func(s *WaveScheduler) {
		if n > 0 {
			s.maxParallel = n
		}
	}
}

// WithRecorder sets the run recorder.
func WithRecorder(r RunRecorder) SchedulerOption {
	return func(s *WaveScheduler) { s.recorder = r }
}

// WithInstruments sets the measurement sink.
func WithInstruments(ins Instruments) SchedulerOption {
	return func(s *WaveScheduler) { s.instruments = ins }
}

// WithLogger sets the scheduler's logger.
func WithLogger(logger zerolog.Logger) SchedulerOption {
	return func(s *WaveScheduler) { s.logger = logger }
}

// NewWaveScheduler creates a scheduler over the target. The health checker
// and rollback controller are derived from the same target, so forward and
// reverse paths share one component abstraction.
func NewWaveScheduler(target Target, rollback *RollbackController, opts ...SchedulerOption) *WaveScheduler {
	s := &WaveScheduler{
		target:      target,
		checker:     NewHealthChecker(target),
		rollback:    rollback,
		recorder:    NopRecorder{},
		instruments: NopInstruments{},
		logger:      zerolog.Nop(),
		maxParallel: DefaultMaxParallel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RunOptions selects what portion of the registry a run covers.
type RunOptions struct {
	// FromWave skips waves before this index. Components in skipped waves
	// are presumed healthy from a previous run so dependency gates resolve.
	FromWave int

	// Only restricts the run to a single named component.
	Only string

	// AssumeHealthy marks every component outside the selection healthy
	// before the run starts. Used with Only to satisfy dependency gates
	// when no prior run state is available.
	AssumeHealthy bool

	// MaxParallel overrides the scheduler's worker cap for this run.
	MaxParallel int
}

// Run executes one deployment run over the given waves. The returned run
// always carries a terminal OverallStatus; the error is non-nil whenever
// that status is not Succeeded.
func (s *WaveScheduler) Run(ctx context.Context, waves []Wave, opts RunOptions) (*DeploymentRun, error) {
	if !s.active.CompareAndSwap(false, true) {
		return nil, NewPermanentError("a deployment run is already active against this target", nil).
			WithCode(ErrCodeRunActive)
	}
	defer s.active.Store(false)

	components := indexComponents(waves)
	if len(components) == 0 {
		return nil, NewPermanentError("registry contains no components", nil).
			WithCode(ErrCodeConfiguration)
	}
	if opts.Only != "" {
		if _, ok := components[opts.Only]; !ok {
			return nil, NewPermanentError(
				fmt.Sprintf("unknown component %q", opts.Only), nil,
			).WithCode(ErrCodeConfiguration)
		}
	}
	if opts.FromWave < 0 || opts.FromWave >= len(waves) {
		return nil, NewPermanentError(
			fmt.Sprintf("wave index %d out of range (0..%d)", opts.FromWave, len(waves)-1), nil,
		).WithCode(ErrCodeConfiguration)
	}

	run := &DeploymentRun{
		ID:            uuid.New().String(),
		StartedAt:     time.Now(),
		OverallStatus: RunStatusRunning,
		Tracker:       NewStatusTracker(componentNames(waves)),
		Deployed:      make([]string, 0, len(components)),
	}
	s.presumeHealthy(run, waves, opts)

	logger := s.logger.With().Str("run_id", run.ID).Logger()
	logger.Info().Int("waves", len(waves)).Int("components", len(components)).Msg("run started")
	s.instruments.RunStarted()
	if err := s.recorder.RunStarted(ctx, run); err != nil {
		logger.Warn().Err(err).Msg("failed to record run start")
	}

	maxParallel := s.maxParallel
	if opts.MaxParallel > 0 && opts.MaxParallel < maxParallel {
		maxParallel = opts.MaxParallel
	}

	for _, wave := range waves[opts.FromWave:] {
		run.CurrentWave = wave.Index

		selected := selectComponents(wave, opts.Only)
		if len(selected) == 0 {
			logger.Debug().Int("wave", wave.Index).Msg("wave has no components, skipping")
			continue
		}

		logger.Info().
			Int("wave", wave.Index).
			Str("name", wave.Name).
			Int("components", len(selected)).
			Msg("wave started")

		firstErr := s.runWave(ctx, run, selected, maxParallel, logger)

		if cause := s.waveVerdict(ctx, run, selected, firstErr); cause != nil {
			return s.abort(ctx, run, components, cause, logger)
		}

		logger.Info().Int("wave", wave.Index).Msg("wave completed")
	}

	s.finish(ctx, run, RunStatusSucceeded, logger)
	return run, nil
}

// runWave deploys the wave's components with a bounded worker pool and
// returns the first component-level error, if any. Component order within
// the wave is unspecified; components are independent by construction.
func (s *WaveScheduler) runWave(
	ctx context.Context,
	run *DeploymentRun,
	components []Component,
	maxParallel int,
	logger zerolog.Logger,
) error {
	workerCount := maxParallel
	if len(components) < workerCount {
		workerCount = len(components)
	}

	queue := make(chan Component, len(components))
	for _, component := range components {
		queue <- component
	}
	close(queue)

	var wg sync.WaitGroup
	errChan := make(chan error, len(components))

	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for component := range queue {
				// Stop launching new component work once cancelled;
				// in-flight loops observe the cancellation at their next
				// backoff boundary.
				if ctx.Err() != nil {
					return
				}
				if err := s.deployComponent(ctx, run, component, logger); err != nil {
					errChan <- err
				}
			}
		}()
	}

	wg.Wait()
	close(errChan)

	var firstErr error
	for err := range errChan {
		if firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// deployComponent takes one component through gate, deploy trigger, and
// the health-check loop. The worker owning the component is its only
// writer in the tracker.
func (s *WaveScheduler) deployComponent(
	ctx context.Context,
	run *DeploymentRun,
	component Component,
	logger zerolog.Logger,
) error {
	clog := logger.With().Str("component", component.Name).Int("wave", component.Wave).Logger()

	if !CanStart(component, run.Tracker) {
		unsatisfied := UnsatisfiedDependencies(component, run.Tracker)
		detail := fmt.Sprintf("dependencies not healthy: %s", strings.Join(unsatisfied, ", "))
		clog.Error().Strs("unsatisfied", unsatisfied).Msg("dependency gate rejected component")
		s.resolve(ctx, run, component, StateFailed, 0, detail, -1)
		return NewPermanentError(detail, nil).
			WithCode(ErrCodeDependencyUnsatisfied).
			WithComponent(component.Name)
	}

	order := s.markDeploying(ctx, run, component)
	clog.Info().Msg("deploying")

	if err := s.target.Deploy(ctx, component); err != nil {
		clog.Error().Err(err).Msg("deploy trigger failed")
		s.resolve(ctx, run, component, StateFailed, 0, err.Error(), order)
		return NewPermanentError("deploy trigger failed", err).
			WithCode(ErrCodeDeployFailed).
			WithComponent(component.Name)
	}

	result, err := AwaitHealthy(ctx, s.instrumentedChecker(), component)
	if err != nil {
		clog.Error().
			Int("attempts", result.Attempt).
			Dur("elapsed", result.Elapsed).
			Str("detail", result.Detail).
			Msg("health check failed")
		s.resolve(ctx, run, component, StateFailed, result.Attempt, result.Detail, order)
		return err
	}

	clog.Info().
		Int("attempts", result.Attempt).
		Dur("elapsed", result.Elapsed).
		Msg("component healthy")
	s.resolve(ctx, run, component, StateHealthy, result.Attempt, result.Detail, order)
	return nil
}

// waveVerdict decides whether the run may proceed past the wave. It
// returns a non-nil abort cause when cancellation was observed or any
// required component failed; optional failures become warnings.
func (s *WaveScheduler) waveVerdict(
	ctx context.Context,
	run *DeploymentRun,
	components []Component,
	firstErr error,
) error {
	if err := ctx.Err(); err != nil {
		return NewPermanentError("run cancelled", err).WithCode(ErrCodeCancelled)
	}

	var cause error
	for _, component := range components {
		if run.Tracker.Get(component.Name) != StateFailed {
			continue
		}
		if component.Required {
			if cause == nil {
				cause = firstErr
				if cause == nil {
					cause = NewPermanentError(
						fmt.Sprintf("required component %s failed", component.Name), nil,
					).WithComponent(component.Name)
				}
			}
			continue
		}
		s.mu.Lock()
		run.Warnings = append(run.Warnings, component.Name)
		s.mu.Unlock()
		s.logger.Warn().
			Str("component", component.Name).
			Msg("optional component failed, continuing")
	}
	return cause
}

// abort rolls the run back over everything deployed so far and settles the
// terminal status: RolledBack when rollback completed cleanly, Failed
// otherwise. Rollback runs on an uncancelled context so an external
// cancellation still gets a full cleanup pass.
func (s *WaveScheduler) abort(
	ctx context.Context,
	run *DeploymentRun,
	components map[string]Component,
	cause error,
	logger zerolog.Logger,
) (*DeploymentRun, error) {
	run.OverallStatus = RunStatusAborting
	logger.Error().Err(cause).Msg("aborting run, rolling back deployed components")

	rbCtx := context.WithoutCancel(ctx)
	s.mu.Lock()
	deployed := append([]string(nil), run.Deployed...)
	s.mu.Unlock()

	run.Rollback = s.rollback.Rollback(rbCtx, deployed, components, run.Tracker)

	status := RunStatusRolledBack
	if !run.Rollback.Complete() {
		status = RunStatusFailed
		logger.Error().
			Int("unremoved", len(run.Rollback.Failed)).
			Msg("rollback incomplete, manual intervention required")
	}
	s.finish(rbCtx, run, status, logger)
	return run, cause
}

// finish settles the terminal status and records the completed run.
func (s *WaveScheduler) finish(ctx context.Context, run *DeploymentRun, status RunStatus, logger zerolog.Logger) {
	run.OverallStatus = status
	now := time.Now()
	run.CompletedAt = &now

	s.instruments.RunCompleted(status, run.Duration())
	if err := s.recorder.RunCompleted(ctx, run); err != nil {
		logger.Warn().Err(err).Msg("failed to record run completion")
	}
	logger.Info().
		Str("status", string(status)).
		Dur("duration", run.Duration()).
		Msg("run finished")
}

// markDeploying transitions the component into the deploying state and
// appends it to the ordered deployed set, returning its position.
func (s *WaveScheduler) markDeploying(ctx context.Context, run *DeploymentRun, component Component) int {
	run.Tracker.Set(component.Name, StateDeploying)
	s.mu.Lock()
	run.Deployed = append(run.Deployed, component.Name)
	order := len(run.Deployed) - 1
	s.mu.Unlock()

	status, _ := run.Tracker.Status(component.Name)
	if err := s.recorder.ComponentTransition(ctx, run.ID, component.Name, status, order); err != nil {
		s.logger.Warn().Str("component", component.Name).Err(err).Msg("failed to record transition")
	}
	return order
}

// resolve settles a component's terminal state for this attempt and
// records it before any error propagates.
func (s *WaveScheduler) resolve(
	ctx context.Context,
	run *DeploymentRun,
	component Component,
	state ComponentState,
	attempts int,
	detail string,
	order int,
) {
	run.Tracker.Resolve(component.Name, state, attempts, detail)
	s.instruments.ComponentResolved(state, component.Required)

	status, _ := run.Tracker.Status(component.Name)
	if err := s.recorder.ComponentTransition(ctx, run.ID, component.Name, status, order); err != nil {
		s.logger.Warn().Str("component", component.Name).Err(err).Msg("failed to record transition")
	}
}

// instrumentedChecker wraps the checker so every probe outcome is counted.
func (s *WaveScheduler) instrumentedChecker() Checker {
	return checkerFunc(func(ctx context.Context, component Component) HealthCheckResult {
		result := s.checker.Check(ctx, component)
		s.instruments.ProbeObserved(result.Outcome)
		return result
	})
}

// checkerFunc adapts a function to the Checker interface.
type checkerFunc func(ctx context.Context, component Component) HealthCheckResult

func (f checkerFunc) Check(ctx context.Context, component Component) HealthCheckResult {
	return f(ctx, component)
}

// presumeHealthy seeds the tracker for partial runs: waves before FromWave
// are presumed deployed by a previous run, and AssumeHealthy extends that
// to everything outside the Only selection.
func (s *WaveScheduler) presumeHealthy(run *DeploymentRun, waves []Wave, opts RunOptions) {
	for _, wave := range waves {
		for _, component := range wave.Components {
			presumed := wave.Index < opts.FromWave ||
				(opts.AssumeHealthy && opts.Only != "" && component.Name != opts.Only)
			if presumed {
				run.Tracker.Set(component.Name, StateHealthy)
			}
		}
	}
}

// indexComponents builds a name index over every component in the waves.
func indexComponents(waves []Wave) map[string]Component {
	components := make(map[string]Component)
	for _, wave := range waves {
		for _, component := range wave.Components {
			components[component.Name] = component
		}
	}
	return components
}

// componentNames lists every component name across the waves.
func componentNames(waves []Wave) []string {
	var names []string
	for _, wave := range waves {
		for _, component := range wave.Components {
			names = append(names, component.Name)
		}
	}
	return names
}

// selectComponents returns the wave's components, reduced to the single
// named component when only is set.
func selectComponents(wave Wave, only string) []Component {
	if only == "" {
		return wave.Components
	}
	for _, component := range wave.Components {
		if component.Name == only {
			return []Component{component}
		}
	}
	return nil
}
