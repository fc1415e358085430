// Init command creates the store and reports what it holds.
package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the store and run the startup migration",
	Long: `Init opens the store, creating the data directory, the collections and
the reference tables when they do not exist yet. A legacy store given with
--legacy-store or legacy_path is migrated once.`,
	Args: exactArgs(0),
	RunE: runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	stats, err := arc.Store.Stats(cmd.Context())
	if err != nil {
		return fmt.Errorf("read stats: %w", err)
	}
	if flagJSON {
		return printJSON(cmd, map[string]any{
			"backend":     arc.Config.Backend,
			"data_dir":    arc.Config.DataDir,
			"migration":   arc.Migrator.State(),
			"collections": stats,
		})
	}

	w := cmd.OutOrStdout()
	heading(w, "arcstore %s store at %s", arc.Config.Backend, arc.Config.DataDir)
	fmt.Fprintf(w, "migration: %s\n", arc.Migrator.State())
	names := make([]string, 0, len(stats))
	for name := range stats {
		names = append(names, name)
	}
	sort.Strings(names)
	tw := table(w)
	for _, name := range names {
		fmt.Fprintf(tw, "  %s\t%s\n", name, count(stats[name]))
	}
	return tw.Flush()
}
