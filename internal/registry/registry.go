// Package registry holds the persistent catalog of repositories and
// workspaces: the single source of truth for which names exist and where
// their trees live on disk. The Registry itself is a pure in-memory
// structure; the store package owns its load/commit lifecycle.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/grovekit/grove/internal/name"
)

// Registry errors
var (
	ErrNotFound      = errors.New("name not registered")
	ErrDuplicateName = errors.New("name already registered")
	ErrPathConflict  = errors.New("path already owned by another node")
	ErrHasDependents = errors.New("name is still targeted by links")
)

// DependentsError reports a removal blocked by incoming links. It names
// every edge that still targets the node so the user knows exactly what
// to unlink first.
type DependentsError struct {
	Name       name.Name
	Dependents []string // "source[alias]" per blocking edge
}

func (e *DependentsError) Error() string {
	return fmt.Sprintf("cannot remove %s: still targeted by %s",
		e.Name, strings.Join(e.Dependents, ", "))
}

func (e *DependentsError) Unwrap() error { return ErrHasDependents }

// Registry maps names to nodes.
type Registry struct {
	nodes map[string]*Node
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{nodes: make(map[string]*Node)}
}

// Register adds a node. It fails with ErrDuplicateName if the name is
// taken and ErrPathConflict if the node's root path is already owned by
// a different node.
func (r *Registry) Register(node *Node) error {
	if node == nil {
		return fmt.Errorf("node cannot be nil")
	}
	key := node.Name.String()
	if _, exists := r.nodes[key]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateName, key)
	}
	for _, existing := range r.nodes {
		if existing.Root == node.Root {
			return fmt.Errorf("%w: %s is owned by %s", ErrPathConflict, node.Root, existing.Name)
		}
	}
	r.nodes[key] = node
	return nil
}

// Lookup returns the node registered under n.
func (r *Registry) Lookup(n name.Name) (*Node, error) {
	node, ok := r.nodes[n.String()]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, n)
	}
	return node, nil
}

// Has reports whether n is registered. It satisfies the link graph's
// node-set dependency.
func (r *Registry) Has(n name.Name) bool {
	_, ok := r.nodes[n.String()]
	return ok
}

// List returns all nodes whose name has the given prefix (the prefix node
// itself included), ordered lexicographically by full dotted name. A zero
// prefix lists everything. The returned slice is a fresh copy; callers may
// iterate it repeatedly or restart at will.
func (r *Registry) List(prefix name.Name) []*Node {
	result := make([]*Node, 0)
	for _, node := range r.nodes {
		if node.Name.HasPrefix(prefix) {
			result = append(result, node)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Name.String() < result[j].Name.String()
	})
	return result
}

// Remove deletes the node registered under n. The caller is responsible
// for the dependents check; see store.State.RemoveNode.
func (r *Registry) Remove(n name.Name) error {
	key := n.String()
	if _, ok := r.nodes[key]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, n)
	}
	delete(r.nodes, key)
	return nil
}

// Len returns the number of registered nodes.
func (r *Registry) Len() int {
	return len(r.nodes)
}
