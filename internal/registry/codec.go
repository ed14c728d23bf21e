package registry

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/grovekit/grove/internal/name"
)

// storeVersion is the on-disk format version of the registry store.
const storeVersion = 1

// document is the YAML layout of registry.yaml.
type document struct {
	Version int      `yaml:"version"`
	Nodes   []record `yaml:"nodes"`
}

// record is one persisted node.
type record struct {
	ID        string    `yaml:"id"`
	Name      string    `yaml:"name"`
	Type      string    `yaml:"type"`
	Kind      string    `yaml:"kind,omitempty"`
	Ref       string    `yaml:"ref,omitempty"`
	Root      string    `yaml:"root"`
	CreatedAt time.Time `yaml:"created_at"`
}

// Encode serializes the registry to its YAML store form. Nodes are written
// in lexicographic name order so the file is stable across commits.
func Encode(r *Registry) ([]byte, error) {
	doc := document{Version: storeVersion}
	for _, node := range r.List(name.Name{}) {
		rec := record{
			ID:        node.ID,
			Name:      node.Name.String(),
			Type:      string(node.Type),
			Kind:      string(node.Kind),
			Root:      node.Root,
			CreatedAt: node.CreatedAt,
		}
		if !node.Ref.IsZero() {
			rec.Ref = node.Ref.String()
		}
		doc.Nodes = append(doc.Nodes, rec)
	}
	data, err := yaml.Marshal(&doc)
	if err != nil {
		return nil, fmt.Errorf("encoding registry: %w", err)
	}
	return data, nil
}

// Decode rebuilds a registry from its YAML store form. An empty input
// yields an empty registry.
func Decode(data []byte) (*Registry, error) {
	r := New()
	if len(data) == 0 {
		return r, nil
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decoding registry: %w", err)
	}
	if doc.Version > storeVersion {
		return nil, fmt.Errorf("registry store version %d is newer than supported %d", doc.Version, storeVersion)
	}

	for _, rec := range doc.Nodes {
		n, err := name.Parse(rec.Name)
		if err != nil {
			return nil, fmt.Errorf("decoding registry node %q: %w", rec.Name, err)
		}
		node := &Node{
			ID:        rec.ID,
			Name:      n,
			Type:      Type(rec.Type),
			Kind:      Kind(rec.Kind),
			Root:      rec.Root,
			CreatedAt: rec.CreatedAt,
		}
		if rec.Ref != "" {
			ref, err := name.Parse(rec.Ref)
			if err != nil {
				return nil, fmt.Errorf("decoding registry node %q ref: %w", rec.Name, err)
			}
			node.Ref = ref
		}
		if err := r.Register(node); err != nil {
			return nil, fmt.Errorf("decoding registry: %w", err)
		}
	}
	return r, nil
}
