// Package testutil provides test helpers for building throwaway grove
// roots.
package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/grovekit/grove/internal/config"
	"github.com/grovekit/grove/internal/linkgraph"
	"github.com/grovekit/grove/internal/name"
	"github.com/grovekit/grove/internal/registry"
	"github.com/grovekit/grove/internal/store"
)

// NewRoot creates a fully initialized grove root under a temp directory
// and points GROVE_ROOT at it for the duration of the test.
func NewRoot(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, config.WriteDefaultConfig(filepath.Join(root, store.MarkerFile)))
	require.NoError(t, store.InitRoot(root))
	t.Setenv(store.EnvRoot, root)
	return root
}

// Register adds a repository (kind non-empty) or standalone workspace to
// the root's store.
func Register(t *testing.T, root, dotted string, kind registry.Kind) {
	t.Helper()
	n := name.MustParse(dotted)
	err := store.Open(root).Update(context.Background(), func(st *store.State) error {
		if kind != "" {
			_, err := st.RegisterRepository(n, kind)
			return err
		}
		_, err := st.RegisterWorkspace(n, name.Name{})
		return err
	})
	require.NoError(t, err)
}

// Link adds an edge between two registered trees.
func Link(t *testing.T, root, source, alias, target string, kind linkgraph.Kind) {
	t.Helper()
	err := store.Open(root).Update(context.Background(), func(st *store.State) error {
		_, err := st.CreateLink(name.MustParse(source), alias, name.MustParse(target), kind)
		return err
	})
	require.NoError(t, err)
}
