package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/grovekit/grove/internal/name"
	"github.com/grovekit/grove/internal/registry"
	"github.com/grovekit/grove/internal/store"
)

var workspaceRef string

var workspaceCmd = &cobra.Command{
	Use:   "workspace",
	Short: "Manage workspaces",
}

var workspaceInitCmd = &cobra.Command{
	Use:   "init <name>",
	Short: "Register a new workspace",
	Long: `Register a workspace under the given dotted name and create its tree
below workspaces/. With --ref the workspace is bound to an existing
repository; without it the workspace is standalone.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := name.Parse(args[0])
		if err != nil {
			return err
		}
		var ref name.Name
		if workspaceRef != "" {
			ref, err = name.Parse(workspaceRef)
			if err != nil {
				return err
			}
		}

		rt, err := loadRuntime()
		if err != nil {
			return err
		}

		var node *registry.Node
		err = rt.store.Update(context.Background(), func(st *store.State) error {
			node, err = st.RegisterWorkspace(n, ref)
			return err
		})
		if err != nil {
			return err
		}

		printSuccess("registered workspace %s", n)
		printDim("%s", rt.store.Root()+"/"+node.Root)
		return nil
	},
}

func init() {
	workspaceInitCmd.Flags().StringVar(&workspaceRef, "ref", "",
		"repository this workspace tracks")
	workspaceCmd.AddCommand(workspaceInitCmd)
	rootCmd.AddCommand(workspaceCmd)
}
