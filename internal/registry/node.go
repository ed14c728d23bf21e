package registry

import (
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/grovekit/grove/internal/name"
)

// Type discriminates the two node classes held by the registry.
type Type string

const (
	TypeRepository Type = "repository"
	TypeWorkspace  Type = "workspace"
)

// Kind classifies a repository node.
type Kind string

const (
	KindStandalone Kind = "standalone"
	KindLibrary    Kind = "library"
)

// ValidKind reports whether k is a known repository kind.
func ValidKind(k Kind) bool {
	return k == KindStandalone || k == KindLibrary
}

// Node is one registered entry: a repository tree or a workspace.
// Root is always relative to the grove root so the store stays relocatable.
type Node struct {
	ID        string
	Name      name.Name
	Type      Type
	Kind      Kind      // repositories only
	Ref       name.Name // workspaces only; zero value means standalone
	Root      string
	CreatedAt time.Time
}

// NewRepository builds a repository node rooted under repositories/.
func NewRepository(n name.Name, kind Kind) *Node {
	return &Node{
		ID:        uuid.NewString(),
		Name:      n,
		Type:      TypeRepository,
		Kind:      kind,
		Root:      filepath.Join("repositories", n.Path()),
		CreatedAt: time.Now().UTC(),
	}
}

// NewWorkspace builds a workspace node rooted under workspaces/. A zero ref
// creates a standalone workspace not bound to any repository.
func NewWorkspace(n name.Name, ref name.Name) *Node {
	return &Node{
		ID:        uuid.NewString(),
		Name:      n,
		Type:      TypeWorkspace,
		Ref:       ref,
		Root:      filepath.Join("workspaces", n.Path()),
		CreatedAt: time.Now().UTC(),
	}
}

// IsWorkspace reports whether the node can hold outgoing links.
func (n *Node) IsWorkspace() bool {
	return n.Type == TypeWorkspace
}
