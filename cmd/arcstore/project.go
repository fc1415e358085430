// Project commands group saved requests.
package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/arcstore/pkg/types"
)

var (
	flagProjectLegacy  bool
	flagProjectCascade bool
	flagProjectRequest int64
)

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Manage projects",
	Long: `Project commands manage named groups of saved requests. Commands taking
an id accept --legacy to address a project by the id it had in the legacy
store.`,
}

var projectListCmd = &cobra.Command{
	Use:   "list",
	Short: "List projects",
	Args:  exactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		list, err := arc.Store.ListProjects(cmd.Context())
		if err != nil {
			return err
		}
		if flagJSON {
			return printJSON(cmd, list)
		}
		w := cmd.OutOrStdout()
		if len(list) == 0 {
			fmt.Fprintln(w, dimStyle.Render("No projects"))
			return nil
		}
		tw := table(w)
		for _, p := range list {
			fmt.Fprintf(tw, "%d\t%s\t%s request(s)\t%s\n", p.ID, p.Name, count(len(p.RequestIDs)), ago(p.CreatedAt))
		}
		return tw.Flush()
	},
}

var projectShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a project and its requests",
	Args:  exactArgs(1),
	RunE:  runProjectShow,
}

var projectCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a project",
	Example: `  arcstore project create "User API"
  arcstore project create "User API" --request 12`,
	Args: exactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if flagProjectRequest < 0 {
			return fmt.Errorf("%w: --request must be a positive id", errUsage)
		}
		id, err := arc.Store.AddProject(cmd.Context(), args[0], time.Now().UTC(), flagProjectRequest)
		if err != nil {
			return err
		}
		if flagJSON {
			return printJSON(cmd, map[string]any{"id": id, "name": args[0]})
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created project %d\n", id)
		return nil
	},
}

var projectAddCmd = &cobra.Command{
	Use:   "add <project-id> <request-id>",
	Short: "Add a stored request to a project",
	Args:  exactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		pid, err := parseID(args[0], "project")
		if err != nil {
			return err
		}
		rid, err := parseID(args[1], "request")
		if err != nil {
			return err
		}
		added, err := arc.Store.AddRequestToProject(cmd.Context(), pid, rid)
		if err != nil {
			return err
		}
		if flagJSON {
			return printJSON(cmd, map[string]any{"project": pid, "request": rid, "added": added})
		}
		if !added {
			fmt.Fprintf(cmd.OutOrStdout(), "Project %d already holds request %d\n", pid, rid)
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Added request %d to project %d\n", rid, pid)
		return nil
	},
}

var projectRenameCmd = &cobra.Command{
	Use:   "rename <id> <name>",
	Short: "Rename a project",
	Args:  exactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0], "project")
		if err != nil {
			return err
		}
		if flagProjectLegacy {
			err = arc.Store.RenameProjectByLegacyID(cmd.Context(), id, args[1], time.Now().UTC())
		} else {
			err = arc.Store.RenameProject(cmd.Context(), id, args[1])
		}
		if err != nil {
			return err
		}
		if flagJSON {
			return printJSON(cmd, map[string]any{"id": id, "name": args[1]})
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Renamed project %d to %q\n", id, args[1])
		return nil
	},
}

var projectDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a project",
	Long: `Delete removes a project. Its requests are kept unless --cascade is given,
in which case every request of the project and their export records are
removed as well. --legacy addresses the project by its legacy store id and
combines with --cascade.`,
	Args: exactArgs(1),
	RunE: runProjectDelete,
}

func init() {
	for _, c := range []*cobra.Command{projectShowCmd, projectRenameCmd, projectDeleteCmd} {
		c.Flags().BoolVar(&flagProjectLegacy, "legacy", false, "treat the id as a legacy store id")
	}
	projectDeleteCmd.Flags().BoolVar(&flagProjectCascade, "cascade", false, "also delete the project's requests")
	projectCreateCmd.Flags().Int64Var(&flagProjectRequest, "request", 0, "id of a stored request to add")

	projectCmd.AddCommand(projectListCmd)
	projectCmd.AddCommand(projectShowCmd)
	projectCmd.AddCommand(projectCreateCmd)
	projectCmd.AddCommand(projectAddCmd)
	projectCmd.AddCommand(projectRenameCmd)
	projectCmd.AddCommand(projectDeleteCmd)
}

func runProjectShow(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0], "project")
	if err != nil {
		return err
	}
	var (
		p  types.ProjectRecord
		ok bool
	)
	if flagProjectLegacy {
		p, ok, err = arc.Store.ProjectByLegacyID(cmd.Context(), id)
	} else {
		p, ok, err = arc.Store.GetProject(cmd.Context(), id)
	}
	if err != nil {
		return err
	}
	if !ok {
		return &types.NotFoundError{Collection: types.CollectionProjects, Key: id}
	}
	reqs, err := arc.Store.ProjectRequests(cmd.Context(), p.ID)
	if err != nil {
		return err
	}
	if flagJSON {
		return printJSON(cmd, map[string]any{"project": p, "requests": reqs})
	}
	w := cmd.OutOrStdout()
	heading(w, "Project %d: %s", p.ID, p.Name)
	fmt.Fprintf(w, "created %s\n", ago(p.CreatedAt))
	if p.LegacyID != 0 {
		fmt.Fprintf(w, "legacy id %d\n", p.LegacyID)
	}
	return printRequests(cmd, reqs)
}

func runProjectDelete(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0], "project")
	if err != nil {
		return err
	}
	var (
		removed int
		ok      bool
	)
	switch {
	case flagProjectLegacy && flagProjectCascade:
		removed, err = arc.Store.DeleteProjectCascadeByLegacyID(cmd.Context(), id)
	case flagProjectCascade:
		removed, err = arc.Store.DeleteProjectCascade(cmd.Context(), id)
	case flagProjectLegacy:
		ok, err = arc.Store.DeleteProjectByLegacyID(cmd.Context(), id)
		if err == nil && !ok {
			err = &types.NotFoundError{Collection: types.CollectionProjects, Key: fmt.Sprintf("legacy %d", id)}
		}
	default:
		ok, err = arc.Store.DeleteProject(cmd.Context(), id)
		if err == nil && !ok {
			err = &types.NotFoundError{Collection: types.CollectionProjects, Key: id}
		}
	}
	if err != nil {
		return err
	}
	if flagJSON {
		return printJSON(cmd, map[string]any{"deleted": id, "requests": removed})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted project %d (%s request(s) removed)\n", id, count(removed))
	return nil
}
