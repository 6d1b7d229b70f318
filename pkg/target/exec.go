package target

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/wavectl/wavectl/pkg/config"
	"github.com/wavectl/wavectl/pkg/engine"
)

// Probe command exit conventions.
const (
	probeExitReady  = 0
	probeExitAbsent = 3
)

// teardownExitAbsent mirrors probeExitAbsent so teardown scripts can
// report "already gone" without failing the rollback.
const teardownExitAbsent = 3

// DefaultGracePeriod is how long a cancelled command gets between SIGTERM
// and SIGKILL.
const DefaultGracePeriod = 5 * time.Second

// ExecTarget runs the per-component deploy, probe and teardown command
// lines from the registry through the shell. Readiness is signalled via
// probe exit status: 0 means ready, 3 means the component is absent,
// anything else means not ready yet.
type ExecTarget struct {
	logger      zerolog.Logger
	shell       string
	gracePeriod time.Duration
}

// ExecOption configures an ExecTarget.
type ExecOption func(*ExecTarget)

// WithExecLogger sets the target's logger.
func WithExecLogger(logger zerolog.Logger) ExecOption {
	return func(t *ExecTarget) {
		t.logger = logger.With().Str("component", "exec-target").Logger()
	}
}

// WithShell overrides the shell used to run command lines.
func WithShell(shell string) ExecOption {
	return func(t *ExecTarget) {
		if shell != "" {
			t.shell = shell
		}
	}
}

// WithGracePeriod overrides the SIGTERM-to-SIGKILL delay on cancellation.
func WithGracePeriod(d time.Duration) ExecOption {
	return func(t *ExecTarget) {
		if d > 0 {
			t.gracePeriod = d
		}
	}
}

// NewExecTarget creates an exec target.
func NewExecTarget(opts ...ExecOption) *ExecTarget {
	t := &ExecTarget{
		logger:      zerolog.Nop(),
		shell:       "/bin/sh",
		gracePeriod: DefaultGracePeriod,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Deploy runs the component's deploy command. A non-zero exit means the
// trigger was not accepted; it says nothing about readiness.
func (t *ExecTarget) Deploy(ctx context.Context, component engine.Component) error {
	command := component.Metadata[config.MetadataDeployCommand]
	if command == "" {
		return engine.NewPermanentError(
			fmt.Sprintf("component %s has no deploy command", component.Name), nil,
		).WithCode(engine.ErrCodeConfiguration).WithComponent(component.Name)
	}

	exitCode, output, err := t.run(ctx, component, command)
	if err != nil {
		return err
	}
	if exitCode != 0 {
		return engine.NewPermanentError(
			fmt.Sprintf("deploy command exited %d: %s", exitCode, tail(output)), nil,
		).WithCode(engine.ErrCodeDeployFailed).WithComponent(component.Name)
	}
	return nil
}

// Probe runs the component's probe command once and maps its exit status
// to a probe state.
func (t *ExecTarget) Probe(ctx context.Context, component engine.Component) (engine.ProbeResult, error) {
	command := component.Metadata[config.MetadataProbeCommand]
	if command == "" {
		return engine.ProbeResult{}, engine.NewPermanentError(
			fmt.Sprintf("component %s has no probe command", component.Name), nil,
		).WithCode(engine.ErrCodeConfiguration).WithComponent(component.Name)
	}

	exitCode, output, err := t.run(ctx, component, command)
	if err != nil {
		return engine.ProbeResult{}, err
	}

	switch exitCode {
	case probeExitReady:
		return engine.ProbeResult{State: engine.ProbeReady}, nil
	case probeExitAbsent:
		return engine.ProbeResult{State: engine.ProbeAbsent, Detail: tail(output)}, nil
	default:
		return engine.ProbeResult{
			State:  engine.ProbeNotReady,
			Detail: fmt.Sprintf("probe exited %d: %s", exitCode, tail(output)),
		}, nil
	}
}

// Teardown runs the component's teardown command. Exit 3 is treated as
// success so tearing down an already-removed unit stays idempotent. An
// empty teardown command is a no-op.
func (t *ExecTarget) Teardown(ctx context.Context, component engine.Component) error {
	command := component.Metadata[config.MetadataTeardownCommand]
	if command == "" {
		return nil
	}

	exitCode, output, err := t.run(ctx, component, command)
	if err != nil {
		return err
	}
	if exitCode != 0 && exitCode != teardownExitAbsent {
		return fmt.Errorf("teardown command exited %d: %s", exitCode, tail(output))
	}
	return nil
}

// run executes one command line through the shell with the component's
// env exported. A cancelled context sends SIGTERM to the process group,
// escalating to SIGKILL after the grace period.
func (t *ExecTarget) run(ctx context.Context, component engine.Component, command string) (int, string, error) {
	cmd := exec.CommandContext(ctx, t.shell, "-c", command) //nolint:gosec // command lines come from the operator's registry
	cmd.Env = componentEnv(component)

	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM)
	}
	cmd.WaitDelay = t.gracePeriod

	start := time.Now()
	err := cmd.Run()
	if cmd.ProcessState != nil {
		t.logger.Debug().
			Str("component", component.Name).
			Int("exit_code", cmd.ProcessState.ExitCode()).
			Dur("duration", time.Since(start)).
			Msg("command finished")
	}

	if err != nil {
		if ctx.Err() != nil {
			return -1, output.String(), fmt.Errorf("command killed by cancellation: %w", ctx.Err())
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitCode(), output.String(), nil
		}
		// The command never started (shell missing, fork failure).
		return -1, output.String(), fmt.Errorf("failed to run command: %w", err)
	}
	return 0, output.String(), nil
}

// componentEnv exports the component's env map on top of the parent
// environment, plus the component's own identity.
func componentEnv(component engine.Component) []string {
	env := os.Environ()
	env = append(env,
		fmt.Sprintf("WAVECTL_COMPONENT=%s", component.Name),
		fmt.Sprintf("WAVECTL_WAVE=%d", component.Wave),
	)
	for key, value := range component.Env {
		env = append(env, fmt.Sprintf("%s=%s", key, value))
	}
	return env
}

// tail returns the last part of command output, enough for a diagnostic
// line without flooding the report.
func tail(output string) string {
	const limit = 256
	trimmed := strings.TrimSpace(output)
	if len(trimmed) <= limit {
		return trimmed
	}
	return "..." + trimmed[len(trimmed)-limit:]
}
