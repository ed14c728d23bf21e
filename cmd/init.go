package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/grovekit/grove/internal/name"
	"github.com/grovekit/grove/internal/registry"
	"github.com/grovekit/grove/internal/store"
)

var initKind string

var initCmd = &cobra.Command{
	Use:   "init <name>",
	Short: "Register a new repository",
	Long: `Register a repository under the given dotted name and create its
tree below repositories/. Non-final name segments become grouping
directories, so "libs.http-client" lives at repositories/_libs/http-client.`,
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

		var node *registry.Node
		err = rt.store.Update(context.Background(), func(st *store.State) error {
			node, err = st.RegisterRepository(n, registry.Kind(initKind))
			return err
		})
		if err != nil {
			return err
		}

		printSuccess("registered repository %s", n)
		printDim("%s", rt.store.Root()+"/"+node.Root)
		return nil
	},
}

func init() {
	initCmd.Flags().StringVar(&initKind, "kind", string(registry.KindStandalone),
		"repository kind: standalone or library")
	rootCmd.AddCommand(initCmd)
}
