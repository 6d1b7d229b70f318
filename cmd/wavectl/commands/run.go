package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/wavectl/wavectl/pkg/config"
	"github.com/wavectl/wavectl/pkg/engine"
	"github.com/wavectl/wavectl/pkg/stores"
	"github.com/wavectl/wavectl/pkg/target"
	"github.com/wavectl/wavectl/pkg/telemetry"
)

func newRunCommand() *cobra.Command {
	var (
		fromWave      int
		only          string
		assumeHealthy bool
		maxParallel   int
		metricsListen string
		traceExporter string
		traceEndpoint string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute a deployment run over all waves",
		Long: `Deploy every wave of the registry in order.

Exit codes:
  0  the run succeeded
  1  the run failed (including incomplete rollback)
  2  the run was aborted and fully rolled back`,
		Example: `  # Full deployment
  wavectl run

  # Resume from wave 2, presuming earlier waves are healthy
  wavectl run --from-wave 2

  # Redeploy a single component
  wavectl run --only app --assume-healthy`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := cmdLogger()

			registry, waves, err := config.NewLoader().Load(registryPath)
			if err != nil {
				return &ExitError{Code: 1, Err: err}
			}

			metrics := telemetry.NewMetrics(telemetry.MetricsConfig{
				Enabled:       metricsListen != "",
				ListenAddress: metricsListen,
				Path:          "/metrics",
				Namespace:     "wavectl",
			})
			metrics.Serve(ctx, logger)

			tracer, err := telemetry.NewTracer(telemetry.TracingConfig{
				Enabled:       traceExporter != "",
				Exporter:      traceExporter,
				Endpoint:      traceEndpoint,
				SamplingRate:  1.0,
				ExportTimeout: 30 * time.Second,
				Insecure:      true,
			}, "wavectl", cmd.Root().Version)
			if err != nil {
				return &ExitError{Code: 1, Err: err}
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = tracer.Shutdown(shutdownCtx)
			}()

			execTarget := target.NewExecTarget(target.WithExecLogger(logger))
			rollback := engine.NewRollbackController(execTarget,
				engine.WithRollbackLogger(logger),
				engine.WithRollbackInstruments(metrics))

			opts := []engine.SchedulerOption{
				engine.WithLogger(logger),
				engine.WithInstruments(metrics),
			}

			store, err := openStore(ctx)
			if err != nil {
				return &ExitError{Code: 1, Err: fmt.Errorf("failed to open run history: %w", err)}
			}
			if store != nil {
				defer store.Close()

				// The guard outlives the process: a second wavectl against
				// the same state path is rejected here, before any deploy.
				holder := uuid.New().String()
				if err := store.AcquireActiveRun(ctx, holder); err != nil {
					return &ExitError{Code: 1, Err: err}
				}
				defer func() {
					_ = store.ReleaseActiveRun(ctx, holder)
				}()

				opts = append(opts, engine.WithRecorder(stores.NewRecorder(store, registry.Name)))
			}

			scheduler := engine.NewWaveScheduler(execTarget, rollback, opts...)

			spanCtx, span := tracer.StartRunSpan(ctx, registry.Name)
			run, runErr := scheduler.Run(spanCtx, waves, engine.RunOptions{
				FromWave:      fromWave,
				Only:          only,
				AssumeHealthy: assumeHealthy,
				MaxParallel:   maxParallel,
			})
			if run != nil {
				span.SetAttributes(
					telemetry.AttrRunID.String(run.ID),
					telemetry.AttrRunStatus.String(string(run.OverallStatus)),
				)
			}
			if runErr != nil {
				telemetry.RecordError(span, runErr)
			} else {
				telemetry.RecordSuccess(span)
			}
			span.End()

			if run != nil {
				printRunReport(run, waves)
			}

			switch {
			case runErr == nil:
				return nil
			case run != nil && run.OverallStatus == engine.RunStatusRolledBack:
				return &ExitError{Code: 2, Err: runErr}
			default:
				return &ExitError{Code: 1, Err: runErr}
			}
		},
	}

	cmd.Flags().IntVar(&fromWave, "from-wave", 0, "start at this wave index, presuming earlier waves healthy")
	cmd.Flags().StringVar(&only, "only", "", "deploy a single named component")
	cmd.Flags().BoolVar(&assumeHealthy, "assume-healthy", false, "with --only, presume every other component healthy")
	cmd.Flags().IntVar(&maxParallel, "max-parallel", 0, "cap concurrent deploys within a wave")
	cmd.Flags().StringVar(&metricsListen, "metrics-listen", "", "expose Prometheus metrics on this address during the run")
	cmd.Flags().StringVar(&traceExporter, "trace-exporter", "", "export run traces (stdout or otlp)")
	cmd.Flags().StringVar(&traceEndpoint, "trace-endpoint", "", "OTLP gRPC endpoint for --trace-exporter=otlp")

	return cmd
}

// printRunReport writes the final per-component table and run summary.
func printRunReport(run *engine.DeploymentRun, waves []engine.Wave) {
	if jsonOutput {
		report := struct {
			*engine.DeploymentRun
			Components map[string]engine.ComponentStatus `json:"components"`
		}{run, run.Tracker.Snapshot()}
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		_ = encoder.Encode(report)
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "WAVE\tCOMPONENT\tSTATE\tATTEMPTS\tDETAIL")
	for _, wave := range waves {
		for _, component := range wave.Components {
			status, _ := run.Tracker.Status(component.Name)
			fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\n",
				wave.Index, component.Name, status.State, status.Attempts, status.Detail)
		}
	}
	w.Flush()

	fmt.Printf("\nrun %s: %s in %s\n", run.ID, run.OverallStatus, run.Duration().Round(time.Millisecond))
	for _, warning := range run.Warnings {
		fmt.Printf("warning: optional component %s failed\n", warning)
	}
	if run.Rollback != nil {
		fmt.Printf("rollback: %d torn down, %d failed\n",
			len(run.Rollback.TornDown), len(run.Rollback.Failed))
		for _, failure := range run.Rollback.Failed {
			fmt.Printf("  %s: %s\n", failure.Component, failure.Detail)
		}
	}
}
