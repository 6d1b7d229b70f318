package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wavectl/wavectl/pkg/config"
	"github.com/wavectl/wavectl/pkg/engine"
	"github.com/wavectl/wavectl/pkg/stores"
	"github.com/wavectl/wavectl/pkg/target"
)

func newRollbackCommand() *cobra.Command {
	var runID string

	cmd := &cobra.Command{
		Use:   "rollback",
		Short: "Tear down the components deployed by a previous run",
		Long: `Roll back a recorded run: tear its deployed components down in
reverse deploy order. Teardown is idempotent, so rolling back a run that
was already rolled back (fully or partially) is safe.

Exit codes:
  0  every component was removed
  1  rollback was incomplete or could not start`,
		Example: `  # Roll back the most recent run
  wavectl rollback

  # Roll back a specific run
  wavectl rollback --run-id 3f8a...`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := cmdLogger()

			_, waves, err := config.NewLoader().Load(registryPath)
			if err != nil {
				return &ExitError{Code: 1, Err: err}
			}

			store, err := openStore(ctx)
			if err != nil {
				return &ExitError{Code: 1, Err: fmt.Errorf("failed to open run history: %w", err)}
			}
			if store == nil {
				return &ExitError{Code: 1, Err: fmt.Errorf("rollback needs run history; --state is empty")}
			}
			defer store.Close()

			var record *stores.RunRecord
			if runID != "" {
				record, err = store.GetRun(ctx, runID)
			} else {
				record, err = store.LatestRun(ctx)
			}
			if err != nil {
				return &ExitError{Code: 1, Err: err}
			}

			components, err := store.ListComponentsByRun(ctx, record.ID)
			if err != nil {
				return &ExitError{Code: 1, Err: err}
			}

			// Rebuild the ordered deployed set from the recorded deploy
			// positions; components that never left pending carry no order
			// and are skipped.
			deployed := make([]string, 0, len(components))
			for _, component := range components {
				if component.DeployOrder >= 0 {
					deployed = append(deployed, component.Name)
				}
			}
			if len(deployed) == 0 {
				fmt.Printf("run %s deployed nothing, nothing to roll back\n", record.ID)
				return nil
			}

			index := make(map[string]engine.Component)
			names := make([]string, 0)
			for _, wave := range waves {
				for _, component := range wave.Components {
					index[component.Name] = component
					names = append(names, component.Name)
				}
			}
			tracker := engine.NewStatusTracker(names)

			execTarget := target.NewExecTarget(target.WithExecLogger(logger))
			controller := engine.NewRollbackController(execTarget,
				engine.WithRollbackLogger(logger))

			logger.Info().
				Str("run_id", record.ID).
				Int("components", len(deployed)).
				Msg("rolling back recorded run")

			result := controller.Rollback(ctx, deployed, index, tracker)

			// Persist the new terminal states so a later status query
			// reflects the rollback.
			for _, name := range result.TornDown {
				if err := store.UpsertComponent(ctx, &stores.ComponentRecord{
					RunID:       record.ID,
					Name:        name,
					State:       string(engine.StateRolledBack),
					DeployOrder: -1,
				}); err != nil {
					logger.Warn().Str("component", name).Err(err).Msg("failed to record teardown")
				}
			}
			if result.Complete() {
				status := string(engine.RunStatusRolledBack)
				if err := store.UpdateRunStatus(ctx, record.ID, status, nil, record.Warnings); err != nil {
					logger.Warn().Err(err).Msg("failed to record rollback status")
				}
			}

			fmt.Printf("rollback of run %s: %d torn down, %d failed\n",
				record.ID, len(result.TornDown), len(result.Failed))
			for _, failure := range result.Failed {
				fmt.Printf("  %s: %s\n", failure.Component, failure.Detail)
			}

			if err := result.IncompleteError(); err != nil {
				return &ExitError{Code: 1, Err: err}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&runID, "run-id", "", "run to roll back (default: the most recent run)")

	return cmd
}
