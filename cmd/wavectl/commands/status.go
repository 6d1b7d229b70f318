package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/wavectl/wavectl/pkg/stores"
)

func newStatusCommand() *cobra.Command {
	var (
		runID      string
		showEvents bool
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the recorded state of a deployment run",
		Long: `Print the per-component states of a recorded run. Without --run-id
the most recent run is shown. Always exits 0 when the query itself
succeeds, regardless of the run's outcome.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, err := openStore(ctx)
			if err != nil {
				return &ExitError{Code: 1, Err: fmt.Errorf("failed to open run history: %w", err)}
			}
			if store == nil {
				return &ExitError{Code: 1, Err: fmt.Errorf("status needs run history; --state is empty")}
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

			var events []*stores.EventRecord
			if showEvents {
				events, err = store.ListEventsByRun(ctx, record.ID)
				if err != nil {
					return &ExitError{Code: 1, Err: err}
				}
			}

			if jsonOutput {
				report := struct {
					Run        *stores.RunRecord         `json:"run"`
					Components []*stores.ComponentRecord `json:"components"`
					Events     []*stores.EventRecord     `json:"events,omitempty"`
				}{record, components, events}
				encoder := json.NewEncoder(os.Stdout)
				encoder.SetIndent("", "  ")
				return encoder.Encode(report)
			}

			fmt.Printf("run %s (%s)\n", record.ID, record.Registry)
			fmt.Printf("status: %s, started %s", record.Status, record.StartedAt.Format("2006-01-02 15:04:05"))
			if record.CompletedAt != nil {
				fmt.Printf(", took %s", record.CompletedAt.Sub(record.StartedAt).Round(time.Millisecond))
			}
			fmt.Println()
			if record.Error != nil {
				fmt.Printf("error: %s\n", *record.Error)
			}
			if record.Warnings != nil {
				fmt.Printf("warnings: %s\n", *record.Warnings)
			}

			fmt.Println()
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "COMPONENT\tSTATE\tATTEMPTS\tDETAIL")
			for _, component := range components {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\n",
					component.Name, component.State, component.Attempts, component.Detail)
			}
			w.Flush()

			if showEvents {
				fmt.Println()
				for _, event := range events {
					prefix := ""
					if event.Component != nil {
						prefix = *event.Component + ": "
					}
					fmt.Printf("%s  %s%s\n",
						event.Timestamp.Format("15:04:05"), prefix, event.Message)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&runID, "run-id", "", "run to inspect (default: the most recent run)")
	cmd.Flags().BoolVar(&showEvents, "events", false, "include the run's event log")

	return cmd
}
