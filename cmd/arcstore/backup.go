// Dump and restore commands copy the store to and from JSONL files.
package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/arcstore/internal/backup"
)

var dumpCmd = &cobra.Command{
	Use:   "dump <dir>",
	Short: "Write every collection to JSONL files in dir",
	Long: `Dump writes one <collection>.jsonl file per collection. The files can be
restored into a store using either backend.`,
	Args: exactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sum, err := backup.Dump(cmd.Context(), arc.Engine, args[0], logger)
		if err != nil {
			return err
		}
		return printSummary(cmd, "Dumped", args[0], sum)
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore <dir>",
	Short: "Load JSONL files written by dump",
	Long: `Restore upserts every document found in the JSONL files of dir. Existing
documents with the same key are replaced; malformed lines are skipped.`,
	Args: exactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sum, err := backup.Restore(cmd.Context(), arc.Engine, args[0], logger)
		if err != nil {
			return err
		}
		return printSummary(cmd, "Restored", args[0], sum)
	},
}

func printSummary(cmd *cobra.Command, verb, dir string, sum backup.Summary) error {
	if flagJSON {
		return printJSON(cmd, sum)
	}
	total, skipped := 0, 0
	for _, n := range sum.Documents {
		total += n
	}
	for _, n := range sum.Skipped {
		skipped += n
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s document(s) in %s\n", verb, count(total), dir)
	if skipped > 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s malformed line(s)\n", dimStyle.Render("skipped"), count(skipped))
	}
	return nil
}
