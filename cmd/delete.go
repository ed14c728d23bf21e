package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/grovekit/grove/internal/materialize"
	"github.com/grovekit/grove/internal/name"
	"github.com/grovekit/grove/internal/store"
)

var deleteForce bool

var deleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Remove a tree from the registry",
	Long: `Remove a registered repository or workspace. The tree itself stays on
disk. Removal is refused while other trees link to the target; a
workspace with outgoing links needs --force, which unlinks them (and
removes their materialized entries) first.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := name.Parse(args[0])
		if err != nil {
			return err
		}

		rt, err := loadRuntime()
		if err != nil {
			return err
		}

		var unlinked []materialize.Link
		err = rt.store.Update(context.Background(), func(st *store.State) error {
			// Resolve before removal while both endpoints still exist.
			var resolved []materialize.Link
			for _, e := range st.Graph.EdgesFrom(n) {
				l, err := materialize.Resolve(st, e)
				if err != nil {
					return err
				}
				resolved = append(resolved, l)
			}

			_, edges, err := st.RemoveNode(n, deleteForce)
			if err != nil {
				return err
			}
			if len(edges) > 0 {
				unlinked = resolved
			}
			return nil
		})
		if err != nil {
			return err
		}

		m := materialize.New(rt.root)
		for _, l := range unlinked {
			if err := m.Dematerialize(l); err != nil {
				printWarn("could not remove %s: %v", l.Path(), err)
			}
		}

		printSuccess("removed %s", n)
		if len(unlinked) > 0 {
			printDim("unlinked %d outgoing link(s)", len(unlinked))
		}
		return nil
	},
}

func init() {
	deleteCmd.Flags().BoolVar(&deleteForce, "force", false,
		"also remove the workspace's outgoing links")
	rootCmd.AddCommand(deleteCmd)
}
