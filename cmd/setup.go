package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/grovekit/grove/internal/config"
	"github.com/grovekit/grove/internal/store"
)

var setupPath string

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Create a grove root",
	Long: `Create a grove root directory with its marker, configuration, and
store layout. Defaults to ~/grove; use --path to put it elsewhere.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		root := setupPath
		if root == "" {
			var err error
			root, err = store.DefaultRoot()
			if err != nil {
				return err
			}
		}
		root, err := filepath.Abs(root)
		if err != nil {
			return err
		}

		marker := filepath.Join(root, store.MarkerFile)
		if _, err := os.Stat(marker); err == nil {
			printWarn("grove root already exists at %s", root)
			return nil
		}

		if err := os.MkdirAll(root, 0755); err != nil {
			return fmt.Errorf("creating root: %w", err)
		}
		if err := config.WriteDefaultConfig(marker); err != nil {
			return err
		}
		if err := store.InitRoot(root); err != nil {
			return err
		}

		printSuccess("grove root created at %s", root)
		printDim("registry: %s", filepath.Join(root, store.RegistryFile))
		printDim("set %s to use it from anywhere", store.EnvRoot)
		return nil
	},
}

func init() {
	setupCmd.Flags().StringVar(&setupPath, "path", "", "root location (default ~/grove)")
	rootCmd.AddCommand(setupCmd)
}
