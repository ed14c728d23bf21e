// Package store owns the on-disk state of a grove root: the registry and
// link stores, their load/commit lifecycle, and the advisory lock that
// serializes mutations. Registry and graph stay pure in-memory structures;
// every durable transition goes through Store.Update.
package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Root layout. All paths are relative to the grove root.
const (
	MarkerFile   = ".groverc"
	RegistryFile = "registry.yaml"
	LinksFile    = "links.yaml"
	LockFile     = ".grove.lock"

	RepositoriesDir = "repositories"
	WorkspacesDir   = "workspaces"
	GenDir          = "gen"

	// EnvRoot overrides discovery when set.
	EnvRoot = "GROVE_ROOT"

	// DefaultDirName is the fallback root under the user's home directory.
	DefaultDirName = "grove"
)

var (
	ErrNotSetup = errors.New("no grove root found (run 'grove setup' first)")
)

// DiscoverRoot locates the grove root. Resolution order: the GROVE_ROOT
// environment variable, then the nearest ancestor of the working directory
// carrying a .groverc marker, then ~/grove if it carries the marker.
func DiscoverRoot() (string, error) {
	if root := os.Getenv(EnvRoot); root != "" {
		if !isRoot(root) {
			return "", fmt.Errorf("%w: %s=%s has no %s marker", ErrNotSetup, EnvRoot, root, MarkerFile)
		}
		return filepath.Clean(root), nil
	}

	if cwd, err := os.Getwd(); err == nil {
		dir := cwd
		for {
			if isRoot(dir) {
				return dir, nil
			}
			parent := filepath.Dir(dir)
			if parent == dir {
				break
			}
			dir = parent
		}
	}

	if home, err := os.UserHomeDir(); err == nil {
		fallback := filepath.Join(home, DefaultDirName)
		if isRoot(fallback) {
			return fallback, nil
		}
	}

	return "", ErrNotSetup
}

func isRoot(dir string) bool {
	info, err := os.Stat(filepath.Join(dir, MarkerFile))
	return err == nil && info.Mode().IsRegular()
}

// DefaultRoot returns the path 'grove setup' initializes when no root
// exists yet.
func DefaultRoot() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, DefaultDirName), nil
}

// InitRoot creates the root directory layout and marker. It is safe to
// call on an existing root; present files are left alone.
func InitRoot(root string) error {
	for _, dir := range []string{root, filepath.Join(root, RepositoriesDir), filepath.Join(root, WorkspacesDir), filepath.Join(root, GenDir)} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	marker := filepath.Join(root, MarkerFile)
	if _, err := os.Stat(marker); os.IsNotExist(err) {
		if err := os.WriteFile(marker, []byte(defaultMarkerContent), 0644); err != nil {
			return fmt.Errorf("writing %s: %w", marker, err)
		}
	}
	return nil
}

// defaultMarkerContent doubles as the default config file; see the config
// package for the keys it documents.
const defaultMarkerContent = `# grove root marker and configuration.
# Remove this file and the directory stops being a grove root.
`
