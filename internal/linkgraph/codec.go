package linkgraph

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/grovekit/grove/internal/name"
)

const storeVersion = 1

type document struct {
	Version int      `yaml:"version"`
	Links   []record `yaml:"links"`
}

type record struct {
	Source    string    `yaml:"source"`
	Alias     string    `yaml:"alias"`
	Target    string    `yaml:"target"`
	Kind      string    `yaml:"kind"`
	CreatedAt time.Time `yaml:"created_at"`
}

// Encode serializes the graph. Edges are emitted in source/alias order so
// repeated saves of the same graph are byte-identical.
func Encode(g *Graph) ([]byte, error) {
	doc := document{Version: storeVersion}
	for _, e := range g.Edges() {
		doc.Links = append(doc.Links, record{
			Source:    e.Source.String(),
			Alias:     e.Alias,
			Target:    e.Target.String(),
			Kind:      string(e.Kind),
			CreatedAt: e.CreatedAt,
		})
	}
	return yaml.Marshal(doc)
}

// Decode rebuilds a graph from serialized form. The structural invariants
// (alias grammar and per-source uniqueness, known kinds, acyclicity) are
// re-checked edge by edge so a hand-edited link store cannot smuggle in a
// state the API would refuse to build. Referential checks against the
// registry stay with the store, which holds both files.
func Decode(data []byte) (*Graph, error) {
	g := New()
	if len(data) == 0 {
		return g, nil
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing link store: %w", err)
	}
	if doc.Version > storeVersion {
		return nil, fmt.Errorf("link store version %d is newer than supported version %d", doc.Version, storeVersion)
	}

	for _, rec := range doc.Links {
		source, err := name.Parse(rec.Source)
		if err != nil {
			return nil, fmt.Errorf("link store entry %q[%s]: %w", rec.Source, rec.Alias, err)
		}
		target, err := name.Parse(rec.Target)
		if err != nil {
			return nil, fmt.Errorf("link store entry %q[%s]: %w", rec.Source, rec.Alias, err)
		}
		if !name.ValidSegment(rec.Alias) {
			return nil, fmt.Errorf("link store entry %s: %w: %q", rec.Source, ErrInvalidAlias, rec.Alias)
		}
		kind := Kind(rec.Kind)
		if !ValidKind(kind) {
			return nil, fmt.Errorf("link store entry %s[%s]: unknown link kind %q", rec.Source, rec.Alias, rec.Kind)
		}
		for _, e := range g.edges {
			if e.Source.Equal(source) && envAlias(e.Alias) == envAlias(rec.Alias) {
				return nil, fmt.Errorf("link store entry %s[%s]: %w", rec.Source, rec.Alias, ErrAliasExists)
			}
		}
		if chain := g.pathBetween(target, source); chain != nil {
			return nil, &CycleError{Source: source, Alias: rec.Alias, Target: target, Chain: chain}
		}
		g.edges = append(g.edges, Edge{
			Source:    source,
			Alias:     rec.Alias,
			Target:    target,
			Kind:      kind,
			CreatedAt: rec.CreatedAt,
		})
	}
	return g, nil
}
