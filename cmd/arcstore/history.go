// History commands manage the URL and socket autocomplete lists.
package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var flagHistorySocket bool

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Query URL and socket autocomplete history",
}

var historyURLsCmd = &cobra.Command{
	Use:   "urls [prefix]",
	Short: "List request URLs starting with prefix",
	Args:  rangeArgs(0, 1),
	RunE: func(cmd *cobra.Command, args []string) error {
		list, err := arc.Store.SearchURLHistory(cmd.Context(), firstArg(args))
		if err != nil {
			return err
		}
		if flagJSON {
			return printJSON(cmd, list)
		}
		rows := make([]historyRow, len(list))
		for i, h := range list {
			rows[i] = historyRow{h.URL, h.LastAccess}
		}
		return printHistory(cmd, rows)
	},
}

var historySocketsCmd = &cobra.Command{
	Use:   "sockets [prefix]",
	Short: "List socket endpoints starting with prefix",
	Args:  rangeArgs(0, 1),
	RunE: func(cmd *cobra.Command, args []string) error {
		list, err := arc.Store.SearchSocketHistory(cmd.Context(), firstArg(args))
		if err != nil {
			return err
		}
		if flagJSON {
			return printJSON(cmd, list)
		}
		rows := make([]historyRow, len(list))
		for i, h := range list {
			rows[i] = historyRow{h.URL, h.LastAccess}
		}
		return printHistory(cmd, rows)
	},
}

var historyAddCmd = &cobra.Command{
	Use:   "add <url>",
	Short: "Record a URL as used now",
	Args:  exactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		now := time.Now().UTC()
		var err error
		if flagHistorySocket {
			err = arc.Store.PutSocketHistory(cmd.Context(), args[0], now)
		} else {
			err = arc.Store.PutURLHistory(cmd.Context(), args[0], now)
		}
		if err != nil {
			return err
		}
		if flagJSON {
			return printJSON(cmd, map[string]any{"url": args[0], "time": now, "socket": flagHistorySocket})
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Recorded %s\n", args[0])
		return nil
	},
}

func init() {
	historyAddCmd.Flags().BoolVar(&flagHistorySocket, "socket", false, "record a socket endpoint instead of a request URL")

	historyCmd.AddCommand(historyURLsCmd)
	historyCmd.AddCommand(historySocketsCmd)
	historyCmd.AddCommand(historyAddCmd)
}

type historyRow struct {
	url  string
	last time.Time
}

func printHistory(cmd *cobra.Command, rows []historyRow) error {
	w := cmd.OutOrStdout()
	if len(rows) == 0 {
		fmt.Fprintln(w, dimStyle.Render("No history"))
		return nil
	}
	tw := table(w)
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\n", r.url, ago(r.last))
	}
	return tw.Flush()
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}
