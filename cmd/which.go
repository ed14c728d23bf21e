package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/grovekit/grove/internal/name"
)

var whichCmd = &cobra.Command{
	Use:   "which <name>",
	Short: "Print the resolved path of a registered tree",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := name.Parse(args[0])
		if err != nil {
			return err
		}

		rt, err := loadRuntime()
		if err != nil {
			return err
		}
		state, err := rt.store.Load()
		if err != nil {
			return err
		}
		node, err := state.Registry.Lookup(n)
		if err != nil {
			return err
		}

		// Bare output; which is made for command substitution.
		fmt.Println(state.AbsPath(node))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(whichCmd)
}
