// Reference commands look up HTTP status codes and header names.
package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/arcstore/pkg/types"
)

var flagHeaderKind string

var statusCmd = &cobra.Command{
	Use:   "status [code]",
	Short: "Describe an HTTP status code, or list them all",
	Args:  rangeArgs(0, 1),
	RunE:  runStatus,
}

var headerCmd = &cobra.Command{
	Use:   "header",
	Short: "Look up HTTP header names",
}

var headerGetCmd = &cobra.Command{
	Use:   "get <name>",
	Short: "Describe a header",
	Args:  exactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind := flagHeaderKind
		if kind == "" {
			kind = types.HeaderKindRequest
		}
		if err := checkHeaderKind(kind); err != nil {
			return err
		}
		h, ok, err := arc.Store.GetHeader(cmd.Context(), args[0], kind)
		if err != nil {
			return err
		}
		if !ok {
			return &types.NotFoundError{Collection: types.CollectionHeaders, Key: args[0] + " (" + kind + ")"}
		}
		if flagJSON {
			return printJSON(cmd, h)
		}
		printHeaders(cmd, []types.HTTPHeaderRecord{h})
		return nil
	},
}

var headerSearchCmd = &cobra.Command{
	Use:   "search [prefix]",
	Short: "List headers whose name starts with prefix",
	Args:  rangeArgs(0, 1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := checkHeaderKind(flagHeaderKind); err != nil {
			return err
		}
		list, err := arc.Store.SearchHeaders(cmd.Context(), firstArg(args), flagHeaderKind)
		if err != nil {
			return err
		}
		if flagJSON {
			return printJSON(cmd, list)
		}
		if len(list) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), dimStyle.Render("No headers"))
			return nil
		}
		printHeaders(cmd, list)
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{headerGetCmd, headerSearchCmd} {
		c.Flags().StringVar(&flagHeaderKind, "kind", "", "request or response")
	}
	headerCmd.AddCommand(headerGetCmd)
	headerCmd.AddCommand(headerSearchCmd)
}

func checkHeaderKind(kind string) error {
	switch kind {
	case "", types.HeaderKindRequest, types.HeaderKindResponse:
		return nil
	}
	return fmt.Errorf("%w: --kind must be %s or %s", errUsage, types.HeaderKindRequest, types.HeaderKindResponse)
}

func printHeaders(cmd *cobra.Command, list []types.HTTPHeaderRecord) {
	w := cmd.OutOrStdout()
	for _, h := range list {
		heading(w, "%s %s", h.Name, dimStyle.Render(h.Kind))
		if h.Description != "" {
			fmt.Fprintf(w, "  %s\n", h.Description)
		}
		if h.Example != "" {
			fmt.Fprintf(w, "  %s %s\n", dimStyle.Render("example:"), h.Example)
		}
	}
}

func runStatus(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		list, err := arc.Store.ListStatuses(cmd.Context())
		if err != nil {
			return err
		}
		if flagJSON {
			return printJSON(cmd, list)
		}
		tw := table(cmd.OutOrStdout())
		for _, s := range list {
			fmt.Fprintf(tw, "%d\t%s\n", s.Code, s.Label)
		}
		return tw.Flush()
	}

	code, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("%w: status code %q is not a number", errUsage, args[0])
	}
	s, ok, err := arc.Store.GetStatus(cmd.Context(), code)
	if err != nil {
		return err
	}
	if !ok {
		return &types.NotFoundError{Collection: types.CollectionStatuses, Key: code}
	}
	if flagJSON {
		return printJSON(cmd, s)
	}
	w := cmd.OutOrStdout()
	heading(w, "%d %s", s.Code, s.Label)
	if s.Description != "" {
		fmt.Fprintln(w, s.Description)
	}
	return nil
}
