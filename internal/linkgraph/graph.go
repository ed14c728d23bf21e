// Package linkgraph maintains the directed graph of named link edges
// between workspaces and repositories. The graph is layered over the
// registry: edges may only reference registered names, and the edge set is
// kept acyclic under every insertion. A cycle would make filesystem
// materialization non-terminating and make "which trees does X depend on"
// ill-defined for command dispatch, so candidate edges are checked by
// traversing from the target before they are admitted.
package linkgraph

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/grovekit/grove/internal/name"
)

// Link graph errors
var (
	ErrAliasExists   = errors.New("alias already used from this source")
	ErrUnknownAlias  = errors.New("alias not found on this source")
	ErrUnknownSource = errors.New("link source is not registered")
	ErrUnknownTarget = errors.New("link target is not registered")
	ErrCycleDetected = errors.New("link would create a cycle")
	ErrInvalidAlias  = errors.New("invalid link alias")
)

// Kind selects how an edge is realized on disk.
type Kind string

const (
	KindSymlink  Kind = "symlink"
	KindJunction Kind = "junction"
	KindCopy     Kind = "copy"
)

// ValidKind reports whether k is a known materialization kind.
func ValidKind(k Kind) bool {
	return k == KindSymlink || k == KindJunction || k == KindCopy
}

// Edge is one directed link from a source workspace to a target node,
// exposed in the source tree under the local alias.
type Edge struct {
	Source    name.Name
	Alias     string
	Target    name.Name
	Kind      Kind
	CreatedAt time.Time
}

// CycleError reports the exact dependency chain a rejected edge would have
// closed, from the candidate target back around to the candidate source.
type CycleError struct {
	Source name.Name
	Alias  string
	Target name.Name
	Chain  []name.Name // target ... source, following existing edges
}

func (e *CycleError) Error() string {
	parts := make([]string, len(e.Chain))
	for i, n := range e.Chain {
		parts[i] = n.String()
	}
	return fmt.Sprintf("link %s[%s] -> %s would create a cycle: %s already depends on %s via %s",
		e.Source, e.Alias, e.Target, e.Target, e.Source, strings.Join(parts, " -> "))
}

func (e *CycleError) Unwrap() error { return ErrCycleDetected }

// NodeSet answers existence queries against the registry without this
// package depending on registry internals.
type NodeSet interface {
	Has(n name.Name) bool
}

// Graph is the in-memory edge set. Like the registry it is a pure
// structure; the store package owns persistence.
type Graph struct {
	edges []Edge
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{}
}

// CreateLink validates and inserts a new edge. Both endpoint names must be
// present in nodes, the alias must be unused from the source, and the edge
// must not close a cycle.
func (g *Graph) CreateLink(source name.Name, alias string, target name.Name, kind Kind, nodes NodeSet) (Edge, error) {
	if !name.ValidSegment(alias) {
		return Edge{}, fmt.Errorf("%w: %q", ErrInvalidAlias, alias)
	}
	if !ValidKind(kind) {
		return Edge{}, fmt.Errorf("unknown link kind %q", kind)
	}
	if !nodes.Has(source) {
		return Edge{}, fmt.Errorf("%w: %s", ErrUnknownSource, source)
	}
	if !nodes.Has(target) {
		return Edge{}, fmt.Errorf("%w: %s", ErrUnknownTarget, target)
	}
	for _, e := range g.edges {
		if !e.Source.Equal(source) {
			continue
		}
		if e.Alias == alias {
			return Edge{}, fmt.Errorf("%w: %s[%s] already points at %s", ErrAliasExists, source, alias, e.Target)
		}
		// Aliases are surfaced to child processes as environment
		// variables, which fold case and dashes. Two aliases that map to
		// the same variable would silently shadow one another at exec
		// time, so the folded form must be unique per source too.
		if envAlias(e.Alias) == envAlias(alias) {
			return Edge{}, fmt.Errorf("%w: %q collides with %q in environment form %s", ErrAliasExists, alias, e.Alias, envAlias(alias))
		}
	}

	// The edge set grows one edge at a time, so acyclicity cannot be
	// assumed a priori: walk from the candidate target and reject if the
	// candidate source is reachable.
	if chain := g.pathBetween(target, source); chain != nil {
		return Edge{}, &CycleError{Source: source, Alias: alias, Target: target, Chain: chain}
	}

	edge := Edge{
		Source:    source,
		Alias:     alias,
		Target:    target,
		Kind:      kind,
		CreatedAt: time.Now().UTC(),
	}
	g.edges = append(g.edges, edge)
	return edge, nil
}

// RemoveLink deletes the edge identified by source and alias and returns
// it so the caller can dematerialize the on-disk linkage.
func (g *Graph) RemoveLink(source name.Name, alias string) (Edge, error) {
	for i, e := range g.edges {
		if e.Source.Equal(source) && e.Alias == alias {
			g.edges = append(g.edges[:i], g.edges[i+1:]...)
			return e, nil
		}
	}
	return Edge{}, fmt.Errorf("%w: %s[%s]", ErrUnknownAlias, source, alias)
}

// EdgesFrom returns the outgoing edges of n ordered by alias. The slice is
// a fresh copy on every call.
func (g *Graph) EdgesFrom(n name.Name) []Edge {
	result := make([]Edge, 0)
	for _, e := range g.edges {
		if e.Source.Equal(n) {
			result = append(result, e)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Alias < result[j].Alias })
	return result
}

// EdgesTo returns the incoming edges of n ordered by source then alias.
// It backs the registry's dependents check.
func (g *Graph) EdgesTo(n name.Name) []Edge {
	result := make([]Edge, 0)
	for _, e := range g.edges {
		if e.Target.Equal(n) {
			result = append(result, e)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Source.String() != result[j].Source.String() {
			return result[i].Source.String() < result[j].Source.String()
		}
		return result[i].Alias < result[j].Alias
	})
	return result
}

// Edges returns every edge ordered by source then alias.
func (g *Graph) Edges() []Edge {
	result := make([]Edge, len(g.edges))
	copy(result, g.edges)
	sort.Slice(result, func(i, j int) bool {
		if result[i].Source.String() != result[j].Source.String() {
			return result[i].Source.String() < result[j].Source.String()
		}
		return result[i].Alias < result[j].Alias
	})
	return result
}

// Len returns the number of edges.
func (g *Graph) Len() int {
	return len(g.edges)
}

// envAlias folds an alias the way command dispatch renders it into an
// environment variable name: upper-cased, dashes to underscores.
func envAlias(alias string) string {
	return strings.ToUpper(strings.ReplaceAll(alias, "-", "_"))
}

// pathBetween returns the node chain from -> ... -> to following outgoing
// edges, or nil if to is unreachable. Used for cycle reporting, so the
// chain includes both endpoints. A search for a node from itself returns
// the single-node chain.
func (g *Graph) pathBetween(from, to name.Name) []name.Name {
	if from.Equal(to) {
		return []name.Name{from}
	}

	visited := map[string]bool{from.String(): true}
	var walk func(current name.Name, chain []name.Name) []name.Name
	walk = func(current name.Name, chain []name.Name) []name.Name {
		for _, e := range g.edges {
			if !e.Source.Equal(current) {
				continue
			}
			if e.Target.Equal(to) {
				return append(chain, e.Target)
			}
			key := e.Target.String()
			if visited[key] {
				continue
			}
			visited[key] = true
			if found := walk(e.Target, append(chain, e.Target)); found != nil {
				return found
			}
		}
		return nil
	}
	return walk(from, []name.Name{from})
}
