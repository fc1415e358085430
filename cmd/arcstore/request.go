// Request commands read and remove stored requests.
package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/arcstore/pkg/types"
)

var (
	flagRequestType   string
	flagRequestMethod string
	flagRequestLegacy bool
)

var requestCmd = &cobra.Command{
	Use:   "request",
	Short: "Inspect saved and history requests",
}

var requestGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show a request with its transaction log",
	Long: `Get prints one request. With --legacy the id is read as the identifier the
request had in the legacy store.`,
	Args: exactArgs(1),
	RunE: runRequestGet,
}

var requestListCmd = &cobra.Command{
	Use:   "list",
	Short: "List requests",
	Args:  exactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		switch flagRequestType {
		case "", types.RequestTypeHistory, types.RequestTypeSaved:
		default:
			return fmt.Errorf("%w: --type must be %s or %s", errUsage, types.RequestTypeHistory, types.RequestTypeSaved)
		}
		list, err := arc.Store.ListRequests(cmd.Context(), flagRequestType)
		if err != nil {
			return err
		}
		return printRequests(cmd, list)
	},
}

var requestFindCmd = &cobra.Command{
	Use:   "find <url>",
	Short: "Find requests by exact URL",
	Example: `  arcstore request find https://api.example.com/users
  arcstore request find https://api.example.com/users --method POST`,
	Args: exactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			list []types.RequestRecord
			err  error
		)
		if flagRequestMethod != "" {
			list, err = arc.Store.RequestsByURLMethod(cmd.Context(), args[0], strings.ToUpper(flagRequestMethod))
		} else {
			list, err = arc.Store.RequestsByURL(cmd.Context(), args[0])
		}
		if err != nil {
			return err
		}
		return printRequests(cmd, list)
	},
}

var requestDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a request and unlink it from its projects",
	Args:  exactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0], "request")
		if err != nil {
			return err
		}
		ok, err := arc.Store.DeleteRequest(cmd.Context(), id)
		if err != nil {
			return err
		}
		if !ok {
			return &types.NotFoundError{Collection: types.CollectionRequests, Key: id}
		}
		if flagJSON {
			return printJSON(cmd, map[string]any{"deleted": id})
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted request %d\n", id)
		return nil
	},
}

func init() {
	requestListCmd.Flags().StringVar(&flagRequestType, "type", "", "only requests of this type (history or saved)")
	requestFindCmd.Flags().StringVar(&flagRequestMethod, "method", "", "only requests with this HTTP method")
	requestGetCmd.Flags().BoolVar(&flagRequestLegacy, "legacy", false, "treat the id as a legacy store id")

	requestCmd.AddCommand(requestGetCmd)
	requestCmd.AddCommand(requestListCmd)
	requestCmd.AddCommand(requestFindCmd)
	requestCmd.AddCommand(requestDeleteCmd)
}

func runRequestGet(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0], "request")
	if err != nil {
		return err
	}
	if flagRequestLegacy {
		list, err := arc.Store.RequestsByLegacyID(cmd.Context(), id)
		if err != nil {
			return err
		}
		if len(list) == 0 {
			return &types.NotFoundError{Collection: types.CollectionRequests, Key: fmt.Sprintf("legacy %d", id)}
		}
		if flagJSON {
			return printJSON(cmd, list)
		}
		for _, r := range list {
			printRequest(cmd, r)
		}
		return nil
	}

	r, ok, err := arc.Store.GetRequest(cmd.Context(), id)
	if err != nil {
		return err
	}
	if !ok {
		return &types.NotFoundError{Collection: types.CollectionRequests, Key: id}
	}
	if flagJSON {
		return printJSON(cmd, r)
	}
	printRequest(cmd, r)
	return nil
}

func printRequest(cmd *cobra.Command, r types.RequestRecord) {
	w := cmd.OutOrStdout()
	heading(w, "Request %d", r.ID)
	tw := table(w)
	fmt.Fprintf(tw, "  name\t%s\n", requestTitle(r))
	fmt.Fprintf(tw, "  type\t%s\n", r.Type)
	fmt.Fprintf(tw, "  method\t%s\n", methodStyle.Render(r.Method))
	fmt.Fprintf(tw, "  url\t%s\n", r.URL)
	fmt.Fprintf(tw, "  started\t%s\n", ago(requestStarted(r)))
	if r.LegacyID != 0 {
		fmt.Fprintf(tw, "  legacy id\t%d\n", r.LegacyID)
	}
	_ = tw.Flush()
	if len(r.Har.Entries) == 0 {
		return
	}
	req := r.Har.Entries[0].Request
	for _, h := range req.Headers {
		fmt.Fprintf(w, "  %s: %s\n", h.Name, h.Value)
	}
	if req.PostData != nil && req.PostData.Text != "" {
		fmt.Fprintf(w, "\n%s\n", req.PostData.Text)
	}
}

func printRequests(cmd *cobra.Command, list []types.RequestRecord) error {
	if flagJSON {
		return printJSON(cmd, list)
	}
	w := cmd.OutOrStdout()
	if len(list) == 0 {
		fmt.Fprintln(w, dimStyle.Render("No requests"))
		return nil
	}
	heading(w, "%s request(s)", count(len(list)))
	tw := table(w)
	for _, r := range list {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", r.ID, r.Type, methodStyle.Render(r.Method), r.URL, ago(requestStarted(r)))
	}
	return tw.Flush()
}

// requestTitle is the page title of the log, which holds the saved name.
func requestTitle(r types.RequestRecord) string {
	if len(r.Har.Pages) > 0 && r.Har.Pages[0].Title != "" {
		return r.Har.Pages[0].Title
	}
	return dimStyle.Render("(unnamed)")
}

func requestStarted(r types.RequestRecord) time.Time {
	if len(r.Har.Entries) == 0 {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, r.Har.Entries[0].StartedDateTime)
	if err != nil {
		return time.Time{}
	}
	return t
}
