package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/arcstore/pkg/types"
)

var versionCmd = &cobra.Command{
	Use:         "version",
	Short:       "Print the version number",
	Annotations: map[string]string{annotationNoStore: "true"},
	Args:        exactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		if flagJSON {
			return printJSON(cmd, map[string]string{"name": "arcstore", "version": types.Version})
		}
		fmt.Fprintf(cmd.OutOrStdout(), "arcstore v%s\n", types.Version)
		return nil
	},
}
