package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/grovekit/grove/internal/linkgraph"
	"github.com/grovekit/grove/internal/log"
	"github.com/grovekit/grove/internal/name"
	"github.com/grovekit/grove/internal/registry"
)

var (
	// ErrNotWorkspace flags link sources that resolve to a repository node.
	ErrNotWorkspace = errors.New("link source must be a workspace")

	// ErrHasLinks flags workspace removal while outgoing links exist and
	// --force was not given.
	ErrHasLinks = errors.New("workspace still has outgoing links")
)

// State is one loaded snapshot of the grove root: registry plus link
// graph. Mutating methods keep the two consistent; they are only reachable
// through Store.Update, which serializes writers and commits both stores
// atomically.
type State struct {
	Root     string
	Registry *registry.Registry
	Graph    *linkgraph.Graph
}

// AbsPath resolves a node's tree to an absolute path under the root.
func (s *State) AbsPath(node *registry.Node) string {
	return filepath.Join(s.Root, node.Root)
}

// RegisterRepository registers a new repository node and creates its tree.
func (s *State) RegisterRepository(n name.Name, kind registry.Kind) (*registry.Node, error) {
	if !registry.ValidKind(kind) {
		return nil, fmt.Errorf("unknown repository kind %q", kind)
	}
	node := registry.NewRepository(n, kind)
	if err := s.Registry.Register(node); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(s.AbsPath(node), 0755); err != nil {
		_ = s.Registry.Remove(n)
		return nil, fmt.Errorf("creating repository tree: %w", err)
	}
	log.Info(log.CatRegistry, "registered repository", "name", n, "kind", kind)
	return node, nil
}

// RegisterWorkspace registers a new workspace node and creates its tree.
// A non-zero ref must name an existing repository.
func (s *State) RegisterWorkspace(n name.Name, ref name.Name) (*registry.Node, error) {
	if !ref.IsZero() {
		target, err := s.Registry.Lookup(ref)
		if err != nil {
			return nil, err
		}
		if target.IsWorkspace() {
			return nil, fmt.Errorf("workspace ref %s must name a repository", ref)
		}
	}
	node := registry.NewWorkspace(n, ref)
	if err := s.Registry.Register(node); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(s.AbsPath(node), 0755); err != nil {
		_ = s.Registry.Remove(n)
		return nil, fmt.Errorf("creating workspace tree: %w", err)
	}
	log.Info(log.CatRegistry, "registered workspace", "name", n, "ref", ref)
	return node, nil
}

// RemoveNode removes a node from the registry. Incoming links always block
// removal (DependentsError). Outgoing links block it too unless force is
// set, in which case they are unlinked first and returned so the caller
// can dematerialize them. Removal never deletes the node's tree on disk.
func (s *State) RemoveNode(n name.Name, force bool) (*registry.Node, []linkgraph.Edge, error) {
	node, err := s.Registry.Lookup(n)
	if err != nil {
		return nil, nil, err
	}

	if incoming := s.Graph.EdgesTo(n); len(incoming) > 0 {
		deps := make([]string, len(incoming))
		for i, e := range incoming {
			deps[i] = fmt.Sprintf("%s[%s]", e.Source, e.Alias)
		}
		return nil, nil, &registry.DependentsError{Name: n, Dependents: deps}
	}

	outgoing := s.Graph.EdgesFrom(n)
	if len(outgoing) > 0 && !force {
		return nil, nil, fmt.Errorf("%w: %s has %d (use --force)", ErrHasLinks, n, len(outgoing))
	}
	for _, e := range outgoing {
		if _, err := s.Graph.RemoveLink(e.Source, e.Alias); err != nil {
			return nil, nil, err
		}
	}

	if err := s.Registry.Remove(n); err != nil {
		return nil, nil, err
	}
	log.Info(log.CatRegistry, "removed node", "name", n, "unlinked", len(outgoing))
	return node, outgoing, nil
}

// CreateLink validates endpoints against the registry and inserts the
// edge. The source must be a workspace.
func (s *State) CreateLink(source name.Name, alias string, target name.Name, kind linkgraph.Kind) (linkgraph.Edge, error) {
	src, err := s.Registry.Lookup(source)
	if err == nil && !src.IsWorkspace() {
		return linkgraph.Edge{}, fmt.Errorf("%w: %s is a repository", ErrNotWorkspace, source)
	}
	edge, err := s.Graph.CreateLink(source, alias, target, kind, s.Registry)
	if err != nil {
		return linkgraph.Edge{}, err
	}
	log.Info(log.CatGraph, "created link", "source", source, "alias", alias, "target", target, "kind", kind)
	return edge, nil
}

// RemoveLink deletes the edge and returns it for dematerialization.
func (s *State) RemoveLink(source name.Name, alias string) (linkgraph.Edge, error) {
	edge, err := s.Graph.RemoveLink(source, alias)
	if err != nil {
		return linkgraph.Edge{}, err
	}
	log.Info(log.CatGraph, "removed link", "source", source, "alias", alias)
	return edge, nil
}
