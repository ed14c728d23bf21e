// Package cmd implements the grove command-line interface.
package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/grovekit/grove/internal/config"
	"github.com/grovekit/grove/internal/log"
	"github.com/grovekit/grove/internal/store"
)

var (
	version   = "dev"
	debugFlag bool
	closeLog  func()
)

var rootCmd = &cobra.Command{
	Use:   "grove",
	Short: "Manage linked repositories and workspaces",
	Long: `Grove manages a tree of related source repositories and workspaces.

Trees are addressed by dotted names (for example "libs.http-client"),
dependencies between them are declared as named links instead of
vendoring, and commands can be dispatched into any tree with its link
context in the environment.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		initLogging()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false,
		"write debug logs (also enabled by GROVE_DEBUG)")
}

// SetVersion overrides the version string shown by --version.
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute runs the root command.
func Execute() error {
	defer func() {
		if closeLog != nil {
			closeLog()
		}
	}()
	err := rootCmd.Execute()
	if err != nil {
		printError("%v", err)
	}
	return err
}

func initLogging() {
	if !debugFlag && os.Getenv("GROVE_DEBUG") == "" {
		return
	}
	path := filepath.Join(os.TempDir(), "grove-debug.log")
	if root, err := store.DiscoverRoot(); err == nil {
		path = filepath.Join(root, store.GenDir, "grove.log")
		_ = os.MkdirAll(filepath.Dir(path), 0755)
	}
	cleanup, err := log.Init(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: debug logging unavailable: %v\n", err)
		return
	}
	closeLog = cleanup
}

// runtime bundles everything a root-scoped command needs.
type runtime struct {
	root  string
	cfg   config.Config
	store *store.Store
}

// loadRuntime discovers the root, loads its configuration, and opens the
// store. Commands that work without a root (setup) don't use it.
func loadRuntime() (*runtime, error) {
	root, err := store.DiscoverRoot()
	if err != nil {
		return nil, err
	}

	cfg := config.Defaults()
	v := viper.New()
	v.SetConfigFile(filepath.Join(root, store.MarkerFile))
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", store.MarkerFile, err)
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", store.MarkerFile, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	colorEnabled = cfg.Color

	log.Debug(log.CatConfig, "loaded runtime", "root", root)
	return &runtime{
		root:  root,
		cfg:   cfg,
		store: store.Open(root).WithLockTimeout(cfg.LockTimeout),
	}, nil
}

// genPath resolves a path under the root's gen/ directory.
func (r *runtime) genPath(parts ...string) string {
	return filepath.Join(append([]string{r.root, store.GenDir}, parts...)...)
}
