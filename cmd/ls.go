package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/grovekit/grove/internal/name"
	"github.com/grovekit/grove/internal/registry"
)

var lsJSON bool

// lsEntry is the JSON shape for one listed node.
type lsEntry struct {
	Name      name.Name     `json:"name"`
	Type      registry.Type `json:"type"`
	Kind      registry.Kind `json:"kind,omitempty"`
	Ref       string        `json:"ref,omitempty"`
	Path      string        `json:"path"`
	CreatedAt time.Time     `json:"created_at"`
}

var lsCmd = &cobra.Command{
	Use:   "ls [prefix]",
	Short: "List registered trees",
	Long: `List registered repositories and workspaces, ordered by name. With a
prefix argument only that subtree of the name hierarchy is shown.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var prefix name.Name
		if len(args) == 1 {
			var err error
			prefix, err = name.Parse(args[0])
			if err != nil {
				return err
			}
		}

		rt, err := loadRuntime()
		if err != nil {
			return err
		}
		state, err := rt.store.Load()
		if err != nil {
			return err
		}

		nodes := state.Registry.List(prefix)

		if lsJSON {
			entries := make([]lsEntry, 0, len(nodes))
			for _, node := range nodes {
				entry := lsEntry{
					Name:      node.Name,
					Type:      node.Type,
					Kind:      node.Kind,
					Path:      state.AbsPath(node),
					CreatedAt: node.CreatedAt,
				}
				if !node.Ref.IsZero() {
					entry.Ref = node.Ref.String()
				}
				entries = append(entries, entry)
			}
			encoder := json.NewEncoder(os.Stdout)
			encoder.SetIndent("", "  ")
			return encoder.Encode(entries)
		}

		if len(nodes) == 0 {
			printDim("nothing registered")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
		for _, node := range nodes {
			detail := string(node.Kind)
			if node.IsWorkspace() {
				detail = "-"
				if !node.Ref.IsZero() {
					detail = "→ " + node.Ref.String()
				}
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", node.Name, node.Type, detail)
		}
		return w.Flush()
	},
}

func init() {
	lsCmd.Flags().BoolVar(&lsJSON, "json", false, "emit JSON")
	rootCmd.AddCommand(lsCmd)
}
