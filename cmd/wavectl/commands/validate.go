package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wavectl/wavectl/pkg/config"
	"github.com/wavectl/wavectl/pkg/engine"
)

func newValidateCommand() *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Run the registry preflight checks",
		Long: `Parse the registry and run the load-time checks: duplicate names,
self-dependencies, unknown dependencies, dependencies on the same or a
later wave, empty registry. With --watch the checks re-run every time
the file changes, which makes editing a large registry less painful.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := cmdLogger()
			loader := config.NewLoader()

			if !watch {
				registry, waves, err := loader.Load(registryPath)
				if err != nil {
					return &ExitError{Code: 1, Err: err}
				}
				printValidationResult(registry, waves)
				return nil
			}

			watcher := config.NewWatcher(loader, logger)
			err := watcher.Watch(cmd.Context(), registryPath, func(registry *config.Registry, waves []engine.Wave, err error) {
				if err != nil {
					fmt.Printf("invalid: %v\n", err)
					return
				}
				printValidationResult(registry, waves)
			})
			if err != nil {
				return &ExitError{Code: 1, Err: err}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&watch, "watch", false, "re-validate whenever the registry file changes")

	return cmd
}

func printValidationResult(registry *config.Registry, waves []engine.Wave) {
	total := 0
	for _, wave := range waves {
		total += len(wave.Components)
	}
	fmt.Printf("valid: %s (%d waves, %d components)\n", registry.Name, len(waves), total)
}
