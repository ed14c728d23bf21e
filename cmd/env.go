package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/grovekit/grove/internal/dispatch"
	"github.com/grovekit/grove/internal/name"
)

var envTarget string

var envCmd = &cobra.Command{
	Use:   "env [var] -n <name>",
	Short: "Show a tree's dispatch environment",
	Long: `Show the environment variables grove injects when dispatching into a
tree: its grove.env entries plus the GROVE_* context variables. With a
variable name, print just that variable's value.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if envTarget == "" {
			return fmt.Errorf("a target is required (-n)")
		}
		n, err := name.Parse(envTarget)
		if err != nil {
			return err
		}

		rt, err := loadRuntime()
		if err != nil {
			return err
		}
		target, err := resolveTarget(rt, n)
		if err != nil {
			return err
		}
		vars, err := dispatch.Env(target)
		if err != nil {
			return err
		}

		if len(args) == 1 {
			value, ok := vars[args[0]]
			if !ok {
				return fmt.Errorf("%s is not set for %s", args[0], n)
			}
			fmt.Println(value)
			return nil
		}

		for _, key := range sortedKeys(vars) {
			fmt.Printf("%s=%s\n", key, vars[key])
		}
		return nil
	},
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func init() {
	envCmd.Flags().StringVarP(&envTarget, "name", "n", "", "target tree")
	rootCmd.AddCommand(envCmd)
}
