// Root command for the arcstore CLI.
package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mesh-intelligence/arcstore/internal/app"
	"github.com/mesh-intelligence/arcstore/internal/logging"
	"github.com/mesh-intelligence/arcstore/internal/paths"
	"github.com/mesh-intelligence/arcstore/pkg/types"
)

// errUsage marks errors caused by how the command was invoked.
var errUsage = errors.New("usage")

// Global flag values.
var (
	flagConfigDir string
	flagDataDir   string
	flagLegacy    string
	flagLogLevel  string
	flagJSON      bool
)

// arc is the application opened by PersistentPreRunE for the running
// command. Commands annotated with annotationNoStore leave it nil.
var (
	arc    *app.App
	logger *zap.Logger
)

const annotationNoStore = "arcstore/no-store"

var rootCmd = &cobra.Command{
	Use:           "arcstore",
	Short:         "arcstore manages the request store of the REST client",
	Version:       types.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Annotations[annotationNoStore] != "" {
			return nil
		}
		return openApp(cmd)
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return closeApp()
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagConfigDir, "config-dir", "", "configuration directory (default: platform config dir)")
	pf.StringVar(&flagDataDir, "data-dir", "", "data directory (default: platform data dir)")
	pf.StringVar(&flagLegacy, "legacy-store", "", "legacy store file to migrate from")
	pf.StringVar(&flagLogLevel, "log-level", "", "log level: debug, info, warn or error")
	pf.BoolVar(&flagJSON, "json", false, "output as JSON")

	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return fmt.Errorf("%w: %w", errUsage, err)
	})

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(requestCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(projectCmd)
	rootCmd.AddCommand(headerCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(dumpCmd)
	rootCmd.AddCommand(restoreCmd)
}

// openApp resolves the configuration and opens the store. The startup
// migration runs here; its failure is reported but does not stop the command.
func openApp(cmd *cobra.Command) error {
	configDir, err := paths.ResolveConfigDir(flagConfigDir)
	if err != nil {
		return fmt.Errorf("resolve config dir: %w", err)
	}
	v, err := loadConfig(configDir)
	if err != nil {
		return err
	}
	cfg, err := storeConfig(configDir, v)
	if err != nil {
		return err
	}
	log, err := logging.New(cmd.ErrOrStderr(), cfg.LogLevel, flagJSON)
	if err != nil {
		return fmt.Errorf("%w: %w", errUsage, err)
	}

	a, err := app.Open(cmd.Context(), cfg, app.WithLogger(log))
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	arc, logger = a, log
	if a.MigrationErr != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: legacy migration failed: %v\n", a.MigrationErr)
	}
	return nil
}

// closeApp closes the store opened for the command, if any.
func closeApp() error {
	if arc == nil {
		return nil
	}
	a, log := arc, logger
	arc, logger = nil, nil
	err := a.Close()
	_ = log.Sync()
	return err
}

// exactArgs is cobra.ExactArgs with usage errors marked for exitCode.
func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(n)(cmd, args); err != nil {
			return fmt.Errorf("%w: %w", errUsage, err)
		}
		return nil
	}
}

func rangeArgs(min, max int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.RangeArgs(min, max)(cmd, args); err != nil {
			return fmt.Errorf("%w: %w", errUsage, err)
		}
		return nil
	}
}
