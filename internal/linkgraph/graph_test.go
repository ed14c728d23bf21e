package linkgraph

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/grovekit/grove/internal/name"
)

type nameSet map[string]bool

func (s nameSet) Has(n name.Name) bool { return s[n.String()] }

func setOf(names ...string) nameSet {
	s := nameSet{}
	for _, n := range names {
		s[n] = true
	}
	return s
}

func TestCreateLink_Basic(t *testing.T) {
	g := New()
	nodes := setOf("app", "libs.core")

	edge, err := g.CreateLink(name.MustParse("app"), "core", name.MustParse("libs.core"), KindSymlink, nodes)
	require.NoError(t, err)
	require.Equal(t, "core", edge.Alias)
	require.Equal(t, "libs.core", edge.Target.String())
	require.False(t, edge.CreatedAt.IsZero())
	require.Equal(t, 1, g.Len())
}

func TestCreateLink_UnknownEndpoints(t *testing.T) {
	g := New()
	nodes := setOf("app")

	_, err := g.CreateLink(name.MustParse("ghost"), "x", name.MustParse("app"), KindSymlink, nodes)
	require.ErrorIs(t, err, ErrUnknownSource)

	_, err = g.CreateLink(name.MustParse("app"), "x", name.MustParse("ghost"), KindSymlink, nodes)
	require.ErrorIs(t, err, ErrUnknownTarget)
}

func TestCreateLink_InvalidAlias(t *testing.T) {
	g := New()
	nodes := setOf("app", "libs.core")

	for _, alias := range []string{"", "has space", "dotted.alias", "ünicode"} {
		_, err := g.CreateLink(name.MustParse("app"), alias, name.MustParse("libs.core"), KindSymlink, nodes)
		require.ErrorIs(t, err, ErrInvalidAlias, "alias %q", alias)
	}
}

func TestCreateLink_AliasExists(t *testing.T) {
	g := New()
	nodes := setOf("app", "libs.core", "libs.extra")

	_, err := g.CreateLink(name.MustParse("app"), "dep", name.MustParse("libs.core"), KindSymlink, nodes)
	require.NoError(t, err)

	// Same alias from the same source is rejected even for a new target.
	_, err = g.CreateLink(name.MustParse("app"), "dep", name.MustParse("libs.extra"), KindSymlink, nodes)
	require.ErrorIs(t, err, ErrAliasExists)

	// The same alias from a different source is fine.
	nodes["other"] = true
	_, err = g.CreateLink(name.MustParse("other"), "dep", name.MustParse("libs.core"), KindSymlink, nodes)
	require.NoError(t, err)
}

func TestCreateLink_AliasEnvCollision(t *testing.T) {
	g := New()
	nodes := setOf("app", "other", "libs.core", "libs.extra")

	_, err := g.CreateLink(name.MustParse("app"), "my-lib", name.MustParse("libs.core"), KindSymlink, nodes)
	require.NoError(t, err)

	// my_lib and MY-LIB both render as GROVE_LINK_MY_LIB; one variable
	// cannot carry two links.
	_, err = g.CreateLink(name.MustParse("app"), "my_lib", name.MustParse("libs.extra"), KindSymlink, nodes)
	require.ErrorIs(t, err, ErrAliasExists)
	_, err = g.CreateLink(name.MustParse("app"), "MY-LIB", name.MustParse("libs.extra"), KindSymlink, nodes)
	require.ErrorIs(t, err, ErrAliasExists)

	// The folded form is only scoped per source.
	_, err = g.CreateLink(name.MustParse("other"), "my_lib", name.MustParse("libs.extra"), KindSymlink, nodes)
	require.NoError(t, err)
}

func TestCreateLink_SelfLoop(t *testing.T) {
	g := New()
	nodes := setOf("app")

	_, err := g.CreateLink(name.MustParse("app"), "me", name.MustParse("app"), KindSymlink, nodes)
	require.ErrorIs(t, err, ErrCycleDetected)
}

func TestCreateLink_TwoNodeCycle(t *testing.T) {
	g := New()
	nodes := setOf("a", "b")

	_, err := g.CreateLink(name.MustParse("a"), "b", name.MustParse("b"), KindSymlink, nodes)
	require.NoError(t, err)

	_, err = g.CreateLink(name.MustParse("b"), "a", name.MustParse("a"), KindSymlink, nodes)
	require.ErrorIs(t, err, ErrCycleDetected)

	var cycle *CycleError
	require.ErrorAs(t, err, &cycle)
	require.Equal(t, "b", cycle.Source.String())
	require.Equal(t, "a", cycle.Target.String())
	// Chain runs from the candidate target back to the candidate source.
	require.Equal(t, "a", cycle.Chain[0].String())
	require.Equal(t, "b", cycle.Chain[len(cycle.Chain)-1].String())
}

func TestCreateLink_TransitiveCycle(t *testing.T) {
	g := New()
	nodes := setOf("a", "b", "c", "d")

	mustLink := func(src, alias, dst string) {
		t.Helper()
		_, err := g.CreateLink(name.MustParse(src), alias, name.MustParse(dst), KindSymlink, nodes)
		require.NoError(t, err)
	}
	mustLink("a", "b", "b")
	mustLink("b", "c", "c")
	mustLink("c", "d", "d")

	_, err := g.CreateLink(name.MustParse("d"), "back", name.MustParse("a"), KindSymlink, nodes)
	require.ErrorIs(t, err, ErrCycleDetected)

	var cycle *CycleError
	require.ErrorAs(t, err, &cycle)
	require.Equal(t, []string{"a", "b", "c", "d"}, nameStrings(cycle.Chain))

	// A rejected link leaves the graph untouched.
	require.Equal(t, 3, g.Len())

	// Diamond shapes are fine: two paths to the same target carry no cycle.
	_, err = g.CreateLink(name.MustParse("a"), "d", name.MustParse("d"), KindSymlink, nodes)
	require.NoError(t, err)
}

func TestRemoveLink(t *testing.T) {
	g := New()
	nodes := setOf("app", "libs.core")

	_, err := g.CreateLink(name.MustParse("app"), "core", name.MustParse("libs.core"), KindCopy, nodes)
	require.NoError(t, err)

	edge, err := g.RemoveLink(name.MustParse("app"), "core")
	require.NoError(t, err)
	require.Equal(t, KindCopy, edge.Kind)
	require.Equal(t, 0, g.Len())

	_, err = g.RemoveLink(name.MustParse("app"), "core")
	require.ErrorIs(t, err, ErrUnknownAlias)
}

func TestRemoveLink_AliasReusable(t *testing.T) {
	g := New()
	nodes := setOf("app", "libs.core", "libs.extra")

	_, err := g.CreateLink(name.MustParse("app"), "dep", name.MustParse("libs.core"), KindSymlink, nodes)
	require.NoError(t, err)
	_, err = g.RemoveLink(name.MustParse("app"), "dep")
	require.NoError(t, err)

	// A removed alias is immediately available again from the same source.
	edge, err := g.CreateLink(name.MustParse("app"), "dep", name.MustParse("libs.extra"), KindCopy, nodes)
	require.NoError(t, err)
	require.Equal(t, "libs.extra", edge.Target.String())
	require.Equal(t, 1, g.Len())
}

func TestRemoveLink_ReopensCyclePath(t *testing.T) {
	g := New()
	nodes := setOf("a", "b")

	_, err := g.CreateLink(name.MustParse("a"), "fwd", name.MustParse("b"), KindSymlink, nodes)
	require.NoError(t, err)
	_, err = g.CreateLink(name.MustParse("b"), "back", name.MustParse("a"), KindSymlink, nodes)
	require.ErrorIs(t, err, ErrCycleDetected)

	_, err = g.RemoveLink(name.MustParse("a"), "fwd")
	require.NoError(t, err)

	// With the forward edge gone the reverse direction is admissible.
	_, err = g.CreateLink(name.MustParse("b"), "back", name.MustParse("a"), KindSymlink, nodes)
	require.NoError(t, err)
}

func TestEdgesFromTo_Ordering(t *testing.T) {
	g := New()
	nodes := setOf("app", "other", "libs.core")

	for _, alias := range []string{"zeta", "alpha", "mid"} {
		_, err := g.CreateLink(name.MustParse("app"), alias, name.MustParse("libs.core"), KindSymlink, nodes)
		require.NoError(t, err)
	}
	_, err := g.CreateLink(name.MustParse("other"), "core", name.MustParse("libs.core"), KindSymlink, nodes)
	require.NoError(t, err)

	from := g.EdgesFrom(name.MustParse("app"))
	require.Equal(t, []string{"alpha", "mid", "zeta"}, aliases(from))

	to := g.EdgesTo(name.MustParse("libs.core"))
	require.Len(t, to, 4)
	require.Equal(t, "app", to[0].Source.String())
	require.Equal(t, "other", to[3].Source.String())

	require.Empty(t, g.EdgesFrom(name.MustParse("libs.core")))
	require.Empty(t, g.EdgesTo(name.MustParse("app")))
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	g := New()
	nodes := setOf("app", "libs.core", "libs.extra")

	_, err := g.CreateLink(name.MustParse("app"), "core", name.MustParse("libs.core"), KindSymlink, nodes)
	require.NoError(t, err)
	_, err = g.CreateLink(name.MustParse("app"), "extra", name.MustParse("libs.extra"), KindCopy, nodes)
	require.NoError(t, err)

	data, err := Encode(g)
	require.NoError(t, err)

	decoded, err := Decode(data)
	require.NoError(t, err)
	require.Equal(t, g.Edges(), decoded.Edges())

	again, err := Encode(decoded)
	require.NoError(t, err)
	require.Equal(t, data, again)
}

func TestDecode_Empty(t *testing.T) {
	g, err := Decode(nil)
	require.NoError(t, err)
	require.Equal(t, 0, g.Len())
}

func TestDecode_Rejects(t *testing.T) {
	cases := map[string]string{
		"newer version": "version: 99\nlinks: []\n",
		"bad source":    "version: 1\nlinks:\n  - source: \"..\"\n    alias: x\n    target: app\n    kind: symlink\n",
		"bad alias":     "version: 1\nlinks:\n  - source: app\n    alias: \"no good\"\n    target: libs.core\n    kind: symlink\n",
		"bad kind":      "version: 1\nlinks:\n  - source: app\n    alias: core\n    target: libs.core\n    kind: hardlink\n",
		"duplicate alias": "version: 1\nlinks:\n" +
			"  - source: app\n    alias: core\n    target: libs.core\n    kind: symlink\n" +
			"  - source: app\n    alias: core\n    target: libs.extra\n    kind: symlink\n",
		"colliding alias env form": "version: 1\nlinks:\n" +
			"  - source: app\n    alias: my-lib\n    target: libs.core\n    kind: symlink\n" +
			"  - source: app\n    alias: my_lib\n    target: libs.extra\n    kind: symlink\n",
		"cycle": "version: 1\nlinks:\n" +
			"  - source: a\n    alias: b\n    target: b\n    kind: symlink\n" +
			"  - source: b\n    alias: a\n    target: a\n    kind: symlink\n",
	}
	for label, doc := range cases {
		_, err := Decode([]byte(doc))
		require.Error(t, err, label)
	}
}

// TestGraph_AlwaysAcyclic drives the graph with random create and remove
// operations and checks that no sequence of accepted edges ever contains a
// cycle reachable from any node.
func TestGraph_AlwaysAcyclic(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		pool := []string{"a", "b", "c", "d", "e", "f"}
		nodes := setOf(pool...)
		g := New()

		steps := rapid.IntRange(1, 40).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			src := rapid.SampledFrom(pool).Draw(t, "src")
			dst := rapid.SampledFrom(pool).Draw(t, "dst")
			if rapid.Bool().Draw(t, "remove") && g.Len() > 0 {
				edges := g.Edges()
				victim := rapid.SampledFrom(edges).Draw(t, "victim")
				_, err := g.RemoveLink(victim.Source, victim.Alias)
				if err != nil {
					t.Fatalf("removing existing edge: %v", err)
				}
				continue
			}
			alias := fmt.Sprintf("l%d", i)
			_, err := g.CreateLink(name.MustParse(src), alias, name.MustParse(dst), KindSymlink, nodes)
			if err != nil && !errors.Is(err, ErrCycleDetected) {
				t.Fatalf("unexpected create error: %v", err)
			}
		}

		for _, n := range pool {
			start := name.MustParse(n)
			if hasCycleFrom(g, start, map[string]bool{}, map[string]bool{}) {
				t.Fatalf("cycle reachable from %s in %d-edge graph", n, g.Len())
			}
		}
	})
}

func hasCycleFrom(g *Graph, n name.Name, visiting, done map[string]bool) bool {
	key := n.String()
	if done[key] {
		return false
	}
	if visiting[key] {
		return true
	}
	visiting[key] = true
	for _, e := range g.EdgesFrom(n) {
		if hasCycleFrom(g, e.Target, visiting, done) {
			return true
		}
	}
	visiting[key] = false
	done[key] = true
	return false
}

func nameStrings(names []name.Name) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = n.String()
	}
	return out
}

func aliases(edges []Edge) []string {
	out := make([]string, len(edges))
	for i, e := range edges {
		out[i] = e.Alias
	}
	return out
}
