// Migrate command reports or retries the legacy store migration.
package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/arcstore/internal/migrate"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Migrate the legacy store",
	Long: `Migrate reports the outcome of the legacy migration run at startup. When
that run failed, the migration is attempted again.`,
	Args: exactArgs(0),
	RunE: runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	res, err := arc.Migration, arc.MigrationErr
	if err != nil {
		res, err = arc.Migrate(cmd.Context())
	}
	if err != nil {
		return err
	}
	if flagJSON {
		return printJSON(cmd, res)
	}
	printMigration(cmd, res)
	return nil
}

func printMigration(cmd *cobra.Command, res migrate.Result) {
	w := cmd.OutOrStdout()
	heading(w, "Migration %s", res.State)
	if res.State != migrate.Done {
		return
	}
	c := res.Counts
	tw := table(w)
	fmt.Fprintf(tw, "  url history\t%s\n", count(c.URLs))
	fmt.Fprintf(tw, "  socket history\t%s\n", count(c.Sockets))
	fmt.Fprintf(tw, "  saved requests\t%s\n", count(c.Saved))
	fmt.Fprintf(tw, "  history requests\t%s\n", count(c.History))
	fmt.Fprintf(tw, "  already present\t%s\n", count(c.Existing))
	fmt.Fprintf(tw, "  projects\t%s (%s merged)\n", count(c.Projects), count(c.MergedProjects))
	fmt.Fprintf(tw, "  exports\t%s\n", count(c.Exports))
	_ = tw.Flush()
	for _, s := range res.Skipped {
		fmt.Fprintf(w, "%s %s #%d: %s\n", dimStyle.Render("skipped"), s.Table, s.LegacyID, s.Reason)
	}
}
