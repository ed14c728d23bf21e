package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/grovekit/grove/internal/linkgraph"
	"github.com/grovekit/grove/internal/materialize"
	"github.com/grovekit/grove/internal/name"
	"github.com/grovekit/grove/internal/store"
)

var (
	linkSource string
	linkAlias  string
	linkKind   string
)

var linkCmd = &cobra.Command{
	Use:   "link",
	Short: "Manage links between trees",
}

var linkInitCmd = &cobra.Command{
	Use:   "init <target>",
	Short: "Create a link and materialize it",
	Long: `Create a link from a workspace to a target tree and materialize it as
a directory entry named after the alias. The source defaults to the
workspace containing the current directory; the alias defaults to the
target's final name segment.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		target, err := name.Parse(args[0])
		if err != nil {
			return err
		}

		rt, err := loadRuntime()
		if err != nil {
			return err
		}

		kind := rt.cfg.DefaultKind()
		if linkKind != "" {
			kind = linkgraph.Kind(linkKind)
		}
		alias := linkAlias
		if alias == "" {
			segments := target.Segments()
			alias = segments[len(segments)-1]
		}

		var resolved materialize.Link
		err = rt.store.Update(context.Background(), func(st *store.State) error {
			source, err := sourceName(st)
			if err != nil {
				return err
			}
			edge, err := st.CreateLink(source, alias, target, kind)
			if err != nil {
				return err
			}
			resolved, err = materialize.Resolve(st, edge)
			return err
		})
		if err != nil {
			return err
		}

		if err := materialize.New(rt.root).Materialize(resolved); err != nil {
			// The edge exists but the tree doesn't reflect it yet;
			// reconcile --repair can finish the job later.
			printWarn("link recorded but not materialized: %v", err)
			return nil
		}
		printSuccess("linked %s as %s", target, alias)
		return nil
	},
}

var linkRemoveCmd = &cobra.Command{
	Use:   "remove",
	Short: "Remove a link and its materialized entry",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if linkAlias == "" {
			return fmt.Errorf("an alias is required (-n)")
		}

		rt, err := loadRuntime()
		if err != nil {
			return err
		}

		var resolved materialize.Link
		err = rt.store.Update(context.Background(), func(st *store.State) error {
			source, err := sourceName(st)
			if err != nil {
				return err
			}
			// Resolve before the edge disappears.
			for _, e := range st.Graph.EdgesFrom(source) {
				if e.Alias == linkAlias {
					resolved, err = materialize.Resolve(st, e)
					if err != nil {
						return err
					}
				}
			}
			_, err = st.RemoveLink(source, linkAlias)
			return err
		})
		if err != nil {
			return err
		}

		if err := materialize.New(rt.root).Dematerialize(resolved); err != nil {
			printWarn("link removed but entry remains: %v", err)
			return nil
		}
		printSuccess("unlinked %s", linkAlias)
		return nil
	},
}

var linkLsCmd = &cobra.Command{
	Use:   "ls [name]",
	Short: "Show a tree's links",
	Long: `Show the outgoing and incoming links of a tree. Defaults to the
workspace containing the current directory.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := loadRuntime()
		if err != nil {
			return err
		}
		state, err := rt.store.Load()
		if err != nil {
			return err
		}

		var n name.Name
		if len(args) == 1 {
			n, err = name.Parse(args[0])
		} else {
			n, err = workspaceForCwd(state)
		}
		if err != nil {
			return err
		}
		if _, err := state.Registry.Lookup(n); err != nil {
			return err
		}

		outgoing := state.Graph.EdgesFrom(n)
		incoming := state.Graph.EdgesTo(n)
		if len(outgoing) == 0 && len(incoming) == 0 {
			printDim("%s has no links", n)
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
		for _, e := range outgoing {
			fmt.Fprintf(w, "%s\t→ %s\t(%s)\n", e.Alias, e.Target, e.Kind)
		}
		for _, e := range incoming {
			fmt.Fprintf(w, "\t← %s[%s]\t(%s)\n", e.Source, e.Alias, e.Kind)
		}
		return w.Flush()
	},
}

// sourceName resolves the link source: the --source flag if given,
// otherwise the workspace containing the current directory.
func sourceName(st *store.State) (name.Name, error) {
	if linkSource != "" {
		return name.Parse(linkSource)
	}
	return workspaceForCwd(st)
}

// workspaceForCwd finds the deepest registered workspace whose tree
// contains the current directory.
func workspaceForCwd(st *store.State) (name.Name, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return name.Name{}, err
	}
	if resolved, err := filepath.EvalSymlinks(cwd); err == nil {
		cwd = resolved
	}

	var best *string
	var bestName name.Name
	for _, node := range st.Registry.List(name.Name{}) {
		if !node.IsWorkspace() {
			continue
		}
		root := st.AbsPath(node)
		if resolved, err := filepath.EvalSymlinks(root); err == nil {
			root = resolved
		}
		if cwd != root && !strings.HasPrefix(cwd, root+string(filepath.Separator)) {
			continue
		}
		if best == nil || len(root) > len(*best) {
			r := root
			best = &r
			bestName = node.Name
		}
	}
	if best == nil {
		return name.Name{}, fmt.Errorf("current directory is not inside a registered workspace (use --source)")
	}
	return bestName, nil
}

func init() {
	for _, c := range []*cobra.Command{linkInitCmd, linkRemoveCmd} {
		c.Flags().StringVar(&linkSource, "source", "",
			"source workspace (default: workspace containing the current directory)")
		c.Flags().StringVarP(&linkAlias, "name", "n", "", "link alias")
	}
	linkInitCmd.Flags().StringVar(&linkKind, "kind", "",
		"materialization kind: symlink, junction, or copy (default from config)")

	linkCmd.AddCommand(linkInitCmd)
	linkCmd.AddCommand(linkRemoveCmd)
	linkCmd.AddCommand(linkLsCmd)
	rootCmd.AddCommand(linkCmd)
}
