package target

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/wavectl/wavectl/pkg/config"
	"github.com/wavectl/wavectl/pkg/engine"
)

func execComponent(deploy, probe, teardown string) engine.Component {
	return engine.Component{
		Name: "core",
		Metadata: map[string]string{
			config.MetadataDeployCommand:   deploy,
			config.MetadataProbeCommand:    probe,
			config.MetadataTeardownCommand: teardown,
		},
	}
}

func TestExecTarget_ProbeExitCodeMapping(t *testing.T) {
	tests := []struct {
		name      string
		command   string
		wantState engine.ProbeState
	}{
		{"exit 0 is ready", "exit 0", engine.ProbeReady},
		{"exit 3 is absent", "exit 3", engine.ProbeAbsent},
		{"exit 1 is not ready", "exit 1", engine.ProbeNotReady},
		{"exit 7 is not ready", "exit 7", engine.ProbeNotReady},
	}

	target := NewExecTarget()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			component := execComponent("true", tt.command, "")
			result, err := target.Probe(context.Background(), component)
			if err != nil {
				t.Fatalf("unexpected probe error: %v", err)
			}
			if result.State != tt.wantState {
				t.Errorf("expected %s, got %s", tt.wantState, result.State)
			}
		})
	}
}

func TestExecTarget_ProbeDetailCarriesOutput(t *testing.T) {
	target := NewExecTarget()
	component := execComponent("true", "echo still starting; exit 1", "")

	result, err := target.Probe(context.Background(), component)
	if err != nil {
		t.Fatalf("unexpected probe error: %v", err)
	}
	if result.State != engine.ProbeNotReady {
		t.Fatalf("expected not ready, got %s", result.State)
	}
	if result.Detail == "" {
		t.Error("expected probe detail to carry command output")
	}
}

func TestExecTarget_DeploySuccess(t *testing.T) {
	marker := filepath.Join(t.TempDir(), "deployed")
	target := NewExecTarget()
	component := execComponent("touch "+marker, "true", "")

	if err := target.Deploy(context.Background(), component); err != nil {
		t.Fatalf("expected deploy to succeed, got %v", err)
	}
	if _, err := os.Stat(marker); err != nil {
		t.Error("expected deploy command to have run")
	}
}

func TestExecTarget_DeployFailure(t *testing.T) {
	target := NewExecTarget()
	component := execComponent("echo broken manifest >&2; exit 1", "true", "")

	err := target.Deploy(context.Background(), component)
	if err == nil {
		t.Fatal("expected deploy error")
	}
	if !engine.HasCode(err, engine.ErrCodeDeployFailed) {
		t.Errorf("expected %s, got %v", engine.ErrCodeDeployFailed, err)
	}
}

func TestExecTarget_DeployMissingCommand(t *testing.T) {
	target := NewExecTarget()
	component := engine.Component{Name: "core"}

	err := target.Deploy(context.Background(), component)
	if err == nil {
		t.Fatal("expected error for missing deploy command")
	}
	if !engine.HasCode(err, engine.ErrCodeConfiguration) {
		t.Errorf("expected %s, got %v", engine.ErrCodeConfiguration, err)
	}
}

func TestExecTarget_TeardownTreatsAbsentAsSuccess(t *testing.T) {
	target := NewExecTarget()

	if err := target.Teardown(context.Background(), execComponent("true", "true", "exit 0")); err != nil {
		t.Errorf("expected clean teardown, got %v", err)
	}
	if err := target.Teardown(context.Background(), execComponent("true", "true", "exit 3")); err != nil {
		t.Errorf("expected absent unit teardown to succeed, got %v", err)
	}
	if err := target.Teardown(context.Background(), execComponent("true", "true", "exit 1")); err == nil {
		t.Error("expected teardown failure on exit 1")
	}
}

func TestExecTarget_TeardownEmptyCommandIsNoop(t *testing.T) {
	target := NewExecTarget()
	if err := target.Teardown(context.Background(), execComponent("true", "true", "")); err != nil {
		t.Errorf("expected no-op teardown, got %v", err)
	}
}

func TestExecTarget_EnvExported(t *testing.T) {
	marker := filepath.Join(t.TempDir(), "env")
	target := NewExecTarget()
	component := execComponent(`echo "$APP_MODE:$WAVECTL_COMPONENT" > `+marker, "true", "")
	component.Env = map[string]string{"APP_MODE": "production"}

	if err := target.Deploy(context.Background(), component); err != nil {
		t.Fatalf("expected deploy to succeed, got %v", err)
	}
	data, err := os.ReadFile(marker)
	if err != nil {
		t.Fatalf("expected marker file: %v", err)
	}
	if got := string(data); got != "production:core\n" {
		t.Errorf("unexpected env contents %q", got)
	}
}

func TestExecTarget_CancellationKillsCommand(t *testing.T) {
	target := NewExecTarget(WithGracePeriod(time.Second))
	component := execComponent("sleep 30", "true", "")

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	err := target.Deploy(ctx, component)
	if err == nil {
		t.Fatal("expected cancellation error")
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("cancellation should kill the command quickly, took %s", elapsed)
	}
}
