package commands

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/wavectl/wavectl/pkg/stores"
	"github.com/wavectl/wavectl/pkg/telemetry"
)

var (
	// Global flags
	registryPath string
	statePath    string
	verbose      bool
	jsonOutput   bool
)

// ExitError carries the process exit code a command decided on. The run
// command uses it to distinguish a rolled-back run (exit 2) from a plain
// failure (exit 1).
type ExitError struct {
	Code int
	Err  error
}

// Error implements the error interface.
func (e *ExitError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("exit code %d", e.Code)
}

// Unwrap returns the underlying error.
func (e *ExitError) Unwrap() error { return e.Err }

// Execute runs the root command.
func Execute(ctx context.Context, version string) error {
	rootCmd := newRootCommand(version)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "wavectl",
		Short: "wavectl - wave-based deployment orchestrator",
		Long: `wavectl deploys a system as an ordered sequence of waves.

Each wave contains components that are independent of each other;
components in later waves may depend on components in earlier waves.
A wave only starts once every component in the previous wave reached a
decision, and a required component's failure aborts the run and rolls
back everything deployed so far, in reverse order.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&registryPath, "config", "c", "wavectl.yaml", "registry file path")
	rootCmd.PersistentFlags().StringVar(&statePath, "state", ".wavectl.db", "run history database path (empty disables history)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	rootCmd.AddCommand(newRunCommand())
	rootCmd.AddCommand(newRollbackCommand())
	rootCmd.AddCommand(newStatusCommand())
	rootCmd.AddCommand(newValidateCommand())

	return rootCmd
}

// cmdLogger builds the command logger from the telemetry defaults,
// raised to debug when --verbose and switched to JSON when --json.
func cmdLogger() zerolog.Logger {
	cfg := telemetry.DefaultConfig().Logging
	if verbose {
		cfg.Level = "debug"
	}
	if jsonOutput {
		cfg.Format = "json"
	}
	logger, err := telemetry.NewLogger(cfg)
	if err != nil {
		return log.Logger
	}
	return logger
}

// openStore opens and migrates the run history store, or returns nil
// when history is disabled via an empty --state path.
func openStore(ctx context.Context) (*stores.SQLiteStore, error) {
	if statePath == "" {
		return nil, nil
	}

	store, err := stores.NewSQLiteStore(stores.Config{Path: statePath})
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}
