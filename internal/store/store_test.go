package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/require"

	"github.com/grovekit/grove/internal/linkgraph"
	"github.com/grovekit/grove/internal/name"
	"github.com/grovekit/grove/internal/registry"
)

func newRoot(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, InitRoot(root))
	return root
}

func TestDiscoverRoot_EnvVar(t *testing.T) {
	root := newRoot(t)
	t.Setenv(EnvRoot, root)

	found, err := DiscoverRoot()
	require.NoError(t, err)
	require.Equal(t, root, found)
}

func TestDiscoverRoot_EnvVarWithoutMarker(t *testing.T) {
	t.Setenv(EnvRoot, t.TempDir())

	_, err := DiscoverRoot()
	require.ErrorIs(t, err, ErrNotSetup)
}

func TestDiscoverRoot_WalkUp(t *testing.T) {
	root := newRoot(t)
	nested := filepath.Join(root, WorkspacesDir, "_team", "app")
	require.NoError(t, os.MkdirAll(nested, 0755))

	t.Setenv(EnvRoot, "")
	t.Setenv("HOME", t.TempDir())
	t.Chdir(nested)

	found, err := DiscoverRoot()
	require.NoError(t, err)
	// TempDir may sit behind a symlink (macOS /var -> /private/var);
	// compare resolved paths.
	wantResolved, err := filepath.EvalSymlinks(root)
	require.NoError(t, err)
	foundResolved, err := filepath.EvalSymlinks(found)
	require.NoError(t, err)
	require.Equal(t, wantResolved, foundResolved)
}

func TestDiscoverRoot_HomeFallback(t *testing.T) {
	home := t.TempDir()
	require.NoError(t, InitRoot(filepath.Join(home, DefaultDirName)))

	t.Setenv(EnvRoot, "")
	t.Setenv("HOME", home)
	t.Chdir(t.TempDir())

	found, err := DiscoverRoot()
	require.NoError(t, err)
	require.Equal(t, filepath.Join(home, DefaultDirName), found)
}

func TestDiscoverRoot_NotSetup(t *testing.T) {
	t.Setenv(EnvRoot, "")
	t.Setenv("HOME", t.TempDir())
	t.Chdir(t.TempDir())

	_, err := DiscoverRoot()
	require.ErrorIs(t, err, ErrNotSetup)
}

func TestInitRoot_Idempotent(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, InitRoot(root))

	marker := filepath.Join(root, MarkerFile)
	require.NoError(t, os.WriteFile(marker, []byte("custom: true\n"), 0644))
	require.NoError(t, InitRoot(root))

	data, err := os.ReadFile(marker)
	require.NoError(t, err)
	require.Equal(t, "custom: true\n", string(data))
}

func TestLoad_EmptyRoot(t *testing.T) {
	s := Open(newRoot(t))

	state, err := s.Load()
	require.NoError(t, err)
	require.Equal(t, 0, state.Registry.Len())
	require.Equal(t, 0, state.Graph.Len())
}

func TestUpdate_PersistsAcrossStores(t *testing.T) {
	root := newRoot(t)
	ctx := context.Background()

	err := Open(root).Update(ctx, func(st *State) error {
		if _, err := st.RegisterRepository(name.MustParse("libs.core"), registry.KindLibrary); err != nil {
			return err
		}
		if _, err := st.RegisterWorkspace(name.MustParse("app"), name.Name{}); err != nil {
			return err
		}
		_, err := st.CreateLink(name.MustParse("app"), "core", name.MustParse("libs.core"), linkgraph.KindSymlink)
		return err
	})
	require.NoError(t, err)

	// Trees are created under the root.
	require.DirExists(t, filepath.Join(root, RepositoriesDir, "_libs", "core"))
	require.DirExists(t, filepath.Join(root, WorkspacesDir, "app"))

	// A fresh store sees the committed state.
	state, err := Open(root).Load()
	require.NoError(t, err)
	require.Equal(t, 2, state.Registry.Len())
	require.Equal(t, 1, state.Graph.Len())

	node, err := state.Registry.Lookup(name.MustParse("libs.core"))
	require.NoError(t, err)
	require.Equal(t, registry.KindLibrary, node.Kind)
}

func TestUpdate_ErrorAbortsTransaction(t *testing.T) {
	root := newRoot(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := Open(root).Update(ctx, func(st *State) error {
		if _, err := st.RegisterRepository(name.MustParse("doomed"), registry.KindStandalone); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	state, err := Open(root).Load()
	require.NoError(t, err)
	require.Equal(t, 0, state.Registry.Len())
}

func TestUpdate_ReloadsUnderLock(t *testing.T) {
	root := newRoot(t)
	ctx := context.Background()
	a := Open(root)
	b := Open(root)

	require.NoError(t, a.Update(ctx, func(st *State) error {
		_, err := st.RegisterRepository(name.MustParse("first"), registry.KindStandalone)
		return err
	}))
	// b's cache (if any) predates a's commit; its update must still see
	// "first" and therefore reject the duplicate.
	_, err := b.Load()
	require.NoError(t, err)
	err = b.Update(ctx, func(st *State) error {
		_, err := st.RegisterRepository(name.MustParse("first"), registry.KindStandalone)
		return err
	})
	require.ErrorIs(t, err, registry.ErrDuplicateName)
}

func TestLoad_CacheInvalidatedByExternalCommit(t *testing.T) {
	root := newRoot(t)
	ctx := context.Background()
	reader := Open(root)

	state, err := reader.Load()
	require.NoError(t, err)
	require.Equal(t, 0, state.Registry.Len())

	require.NoError(t, Open(root).Update(ctx, func(st *State) error {
		_, err := st.RegisterRepository(name.MustParse("external"), registry.KindStandalone)
		return err
	}))

	state, err = reader.Load()
	require.NoError(t, err)
	require.Equal(t, 1, state.Registry.Len())
}

func TestUpdate_LockTimeout(t *testing.T) {
	root := newRoot(t)

	held := flock.New(filepath.Join(root, LockFile))
	locked, err := held.TryLock()
	require.NoError(t, err)
	require.True(t, locked)
	defer func() { _ = held.Unlock() }()

	s := Open(root).WithLockTimeout(150 * time.Millisecond)
	err = s.Update(context.Background(), func(*State) error { return nil })
	require.ErrorIs(t, err, ErrLockTimeout)
}

func TestRemoveNode_IncomingLinksBlock(t *testing.T) {
	root := newRoot(t)
	ctx := context.Background()
	s := Open(root)

	require.NoError(t, s.Update(ctx, func(st *State) error {
		if _, err := st.RegisterRepository(name.MustParse("libs.core"), registry.KindLibrary); err != nil {
			return err
		}
		if _, err := st.RegisterWorkspace(name.MustParse("app"), name.Name{}); err != nil {
			return err
		}
		_, err := st.CreateLink(name.MustParse("app"), "core", name.MustParse("libs.core"), linkgraph.KindSymlink)
		return err
	}))

	// Incoming links block removal even with force.
	err := s.Update(ctx, func(st *State) error {
		_, _, err := st.RemoveNode(name.MustParse("libs.core"), true)
		return err
	})
	require.ErrorIs(t, err, registry.ErrHasDependents)
	var deps *registry.DependentsError
	require.ErrorAs(t, err, &deps)
	require.Equal(t, []string{"app[core]"}, deps.Dependents)
}

func TestRemoveNode_OutgoingLinksNeedForce(t *testing.T) {
	root := newRoot(t)
	ctx := context.Background()
	s := Open(root)

	require.NoError(t, s.Update(ctx, func(st *State) error {
		if _, err := st.RegisterRepository(name.MustParse("libs.core"), registry.KindLibrary); err != nil {
			return err
		}
		if _, err := st.RegisterWorkspace(name.MustParse("app"), name.Name{}); err != nil {
			return err
		}
		_, err := st.CreateLink(name.MustParse("app"), "core", name.MustParse("libs.core"), linkgraph.KindSymlink)
		return err
	}))

	err := s.Update(ctx, func(st *State) error {
		_, _, err := st.RemoveNode(name.MustParse("app"), false)
		return err
	})
	require.ErrorIs(t, err, ErrHasLinks)

	var unlinked []linkgraph.Edge
	require.NoError(t, s.Update(ctx, func(st *State) error {
		var err error
		_, unlinked, err = st.RemoveNode(name.MustParse("app"), true)
		return err
	}))
	require.Len(t, unlinked, 1)
	require.Equal(t, "core", unlinked[0].Alias)

	state, err := s.Load()
	require.NoError(t, err)
	require.Equal(t, 1, state.Registry.Len())
	require.Equal(t, 0, state.Graph.Len())
}

func TestCreateLink_SourceMustBeWorkspace(t *testing.T) {
	root := newRoot(t)
	ctx := context.Background()

	err := Open(root).Update(ctx, func(st *State) error {
		if _, err := st.RegisterRepository(name.MustParse("a"), registry.KindStandalone); err != nil {
			return err
		}
		if _, err := st.RegisterRepository(name.MustParse("b"), registry.KindStandalone); err != nil {
			return err
		}
		_, err := st.CreateLink(name.MustParse("a"), "dep", name.MustParse("b"), linkgraph.KindSymlink)
		return err
	})
	require.ErrorIs(t, err, ErrNotWorkspace)
}

func TestRegisterWorkspace_RefMustBeRepository(t *testing.T) {
	root := newRoot(t)
	ctx := context.Background()

	err := Open(root).Update(ctx, func(st *State) error {
		if _, err := st.RegisterWorkspace(name.MustParse("a"), name.Name{}); err != nil {
			return err
		}
		_, err := st.RegisterWorkspace(name.MustParse("b"), name.MustParse("a"))
		return err
	})
	require.Error(t, err)

	err = Open(root).Update(ctx, func(st *State) error {
		_, err := st.RegisterWorkspace(name.MustParse("c"), name.MustParse("ghost"))
		return err
	})
	require.ErrorIs(t, err, registry.ErrNotFound)
}

func TestLoad_PrunesDanglingEdge(t *testing.T) {
	root := newRoot(t)

	links := "version: 1\nlinks:\n  - source: ghost\n    alias: x\n    target: alsoghost\n    kind: symlink\n"
	require.NoError(t, os.WriteFile(filepath.Join(root, LinksFile), []byte(links), 0644))

	state, err := Open(root).Load()
	require.NoError(t, err)
	require.Equal(t, 0, state.Graph.Len())
}

// A forced delete mutates both store files. If the process dies after one
// rename but before the other, the surviving combination must still load
// and self-heal rather than wedge every later command.
func TestLoad_RecoversFromPartialCommit(t *testing.T) {
	ctx := context.Background()
	root := newRoot(t)

	require.NoError(t, Open(root).Update(ctx, func(st *State) error {
		if _, err := st.RegisterRepository(name.MustParse("core"), registry.KindLibrary); err != nil {
			return err
		}
		if _, err := st.RegisterWorkspace(name.MustParse("app"), name.MustParse("core")); err != nil {
			return err
		}
		_, err := st.CreateLink(name.MustParse("app"), "core", name.MustParse("core"), linkgraph.KindSymlink)
		return err
	}))

	// Crash state: the workspace is gone from the registry but its
	// outgoing edge still sits in the link store.
	reg := registry.New()
	require.NoError(t, reg.Register(registry.NewRepository(name.MustParse("core"), registry.KindLibrary)))
	regData, err := registry.Encode(reg)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(root, RegistryFile), regData, 0644))

	state, err := Open(root).Load()
	require.NoError(t, err)
	require.Equal(t, 0, state.Graph.Len())
	require.Equal(t, 1, state.Registry.Len())

	// Any later transaction persists the pruned graph.
	s := Open(root)
	require.NoError(t, s.Update(ctx, func(st *State) error {
		require.Equal(t, 0, st.Graph.Len())
		return nil
	}))
	reloaded, err := Open(root).Load()
	require.NoError(t, err)
	require.Equal(t, 0, reloaded.Graph.Len())
}
