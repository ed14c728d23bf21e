package registry

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/grovekit/grove/internal/name"
)

func TestRegister_Lookup(t *testing.T) {
	r := New()
	node := NewRepository(name.MustParse("prototypes.awesome-project"), KindStandalone)

	require.NoError(t, r.Register(node))

	found, err := r.Lookup(node.Name)
	require.NoError(t, err)
	require.Equal(t, node, found)
	require.NotEmpty(t, found.ID)
	require.Equal(t, "repositories/_prototypes/awesome-project", found.Root)
}

func TestRegister_DuplicateName(t *testing.T) {
	r := New()
	n := name.MustParse("prototypes.awesome-project")

	require.NoError(t, r.Register(NewRepository(n, KindStandalone)))

	err := r.Register(NewRepository(n, KindLibrary))
	require.ErrorIs(t, err, ErrDuplicateName)
}

func TestRegister_RemoveThenRegisterSucceeds(t *testing.T) {
	r := New()
	n := name.MustParse("prototypes.awesome-project")

	require.NoError(t, r.Register(NewRepository(n, KindStandalone)))
	require.NoError(t, r.Remove(n))
	require.NoError(t, r.Register(NewRepository(n, KindStandalone)))
}

func TestRegister_PathConflict(t *testing.T) {
	r := New()
	first := NewRepository(name.MustParse("proto.app"), KindStandalone)
	require.NoError(t, r.Register(first))

	// Distinct name, manually pointed at the same root.
	second := NewRepository(name.MustParse("proto.other"), KindStandalone)
	second.Root = first.Root

	err := r.Register(second)
	require.ErrorIs(t, err, ErrPathConflict)
	require.Contains(t, err.Error(), "proto.app")
}

func TestLookup_NotFound(t *testing.T) {
	r := New()

	_, err := r.Lookup(name.MustParse("missing"))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRemove_NotFound(t *testing.T) {
	r := New()

	err := r.Remove(name.MustParse("missing"))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestList_PrefixAndOrdering(t *testing.T) {
	r := New()
	for _, raw := range []string{
		"prototypes.zeta",
		"prototypes.alpha",
		"prototypes.alpha.sub",
		"production.app",
	} {
		require.NoError(t, r.Register(NewRepository(name.MustParse(raw), KindStandalone)))
	}

	all := r.List(name.Name{})
	require.Len(t, all, 4)
	require.Equal(t, "production.app", all[0].Name.String())
	require.Equal(t, "prototypes.alpha", all[1].Name.String())
	require.Equal(t, "prototypes.alpha.sub", all[2].Name.String())
	require.Equal(t, "prototypes.zeta", all[3].Name.String())

	scoped := r.List(name.MustParse("prototypes.alpha"))
	require.Len(t, scoped, 2)

	// The list is a fresh copy each call; iterating twice sees the same
	// sequence.
	again := r.List(name.MustParse("prototypes.alpha"))
	require.Equal(t, scoped, again)
}

func TestDependentsError(t *testing.T) {
	err := &DependentsError{
		Name:       name.MustParse("prototypes.awesome-library"),
		Dependents: []string{"prototypes.awesome-project[library]"},
	}

	require.ErrorIs(t, err, ErrHasDependents)
	require.Contains(t, err.Error(), "prototypes.awesome-library")
	require.Contains(t, err.Error(), "prototypes.awesome-project[library]")
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	r := New()
	repo := NewRepository(name.MustParse("prototypes.awesome-library"), KindLibrary)
	ws := NewWorkspace(name.MustParse("prototypes.awesome-project"), name.MustParse("prototypes.awesome-project"))
	require.NoError(t, r.Register(repo))
	require.NoError(t, r.Register(ws))

	data, err := Encode(r)
	require.NoError(t, err)

	decoded, err := Decode(data)
	require.NoError(t, err)
	require.Equal(t, 2, decoded.Len())

	gotRepo, err := decoded.Lookup(repo.Name)
	require.NoError(t, err)
	require.Equal(t, repo.ID, gotRepo.ID)
	require.Equal(t, KindLibrary, gotRepo.Kind)
	require.Equal(t, repo.Root, gotRepo.Root)

	gotWs, err := decoded.Lookup(ws.Name)
	require.NoError(t, err)
	require.Equal(t, TypeWorkspace, gotWs.Type)
	require.Equal(t, ws.Ref.String(), gotWs.Ref.String())
}

func TestDecode_Empty(t *testing.T) {
	r, err := Decode(nil)
	require.NoError(t, err)
	require.Equal(t, 0, r.Len())
}

func TestDecode_RejectsNewerVersion(t *testing.T) {
	_, err := Decode([]byte("version: 99\nnodes: []\n"))
	require.Error(t, err)
}
