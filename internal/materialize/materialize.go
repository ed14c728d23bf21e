// Package materialize realizes link graph edges as filesystem entries in
// workspace trees. An edge becomes a directory entry named after its alias
// inside the source workspace, pointing at the target's tree. Three
// mechanisms are supported: symbolic links, NTFS junctions (windows), and
// a plain directory copy for filesystems without link support. Managed
// entries are always distinguishable from user data, and user data is
// never removed.
package materialize

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/grovekit/grove/internal/linkgraph"
	"github.com/grovekit/grove/internal/log"
	"github.com/grovekit/grove/internal/name"
	"github.com/grovekit/grove/internal/store"
)

var (
	ErrFilesystem        = errors.New("filesystem operation failed")
	ErrAliasPathOccupied = errors.New("alias path occupied by unmanaged entry")
)

// copyMarker tags a copy-materialized directory as grove-managed. The file
// holds the absolute target path the copy was taken from.
const copyMarker = ".grove-copy"

// Link is one edge resolved to absolute paths.
type Link struct {
	Alias      string
	Kind       linkgraph.Kind
	SourceRoot string
	TargetRoot string
}

// Path returns the alias entry's location in the source tree.
func (l Link) Path() string {
	return filepath.Join(l.SourceRoot, l.Alias)
}

// Resolve turns a graph edge into a Link with both endpoint trees resolved
// against the registry.
func Resolve(st *store.State, e linkgraph.Edge) (Link, error) {
	src, err := st.Registry.Lookup(e.Source)
	if err != nil {
		return Link{}, err
	}
	dst, err := st.Registry.Lookup(e.Target)
	if err != nil {
		return Link{}, err
	}
	return Link{
		Alias:      e.Alias,
		Kind:       e.Kind,
		SourceRoot: st.AbsPath(src),
		TargetRoot: st.AbsPath(dst),
	}, nil
}

// ResolveAll resolves every outgoing edge of a workspace.
func ResolveAll(st *store.State, workspace name.Name) ([]Link, error) {
	if _, err := st.Registry.Lookup(workspace); err != nil {
		return nil, err
	}
	edges := st.Graph.EdgesFrom(workspace)
	links := make([]Link, 0, len(edges))
	for _, e := range edges {
		l, err := Resolve(st, e)
		if err != nil {
			return nil, err
		}
		links = append(links, l)
	}
	return links, nil
}

// entryState classifies what currently sits at an alias path.
type entryState int

const (
	entryMissing entryState = iota
	entryManaged            // a grove-made link or copy
	entryOccupied
)

// Materializer creates and removes alias entries for one grove root.
type Materializer struct {
	root string
}

func New(root string) *Materializer {
	return &Materializer{root: root}
}

// Materialize creates the alias entry for l. An existing managed entry for
// the same alias is replaced if it no longer matches; an unmanaged entry
// fails with ErrAliasPathOccupied and is left untouched.
func (m *Materializer) Materialize(l Link) error {
	path := l.Path()
	state, target, kind := m.classify(path)
	switch state {
	case entryManaged:
		if target == l.TargetRoot && sameMechanism(kind, l.Kind) {
			return nil
		}
		if err := m.removeManaged(path, kind); err != nil {
			return err
		}
	case entryOccupied:
		return fmt.Errorf("%w: %s", ErrAliasPathOccupied, path)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("%w: preparing %s: %w", ErrFilesystem, filepath.Dir(path), err)
	}

	var err error
	switch l.Kind {
	case linkgraph.KindCopy:
		err = copyTree(l.TargetRoot, path)
	default:
		err = createPointer(l.Kind, l.TargetRoot, path)
	}
	if err != nil {
		return err
	}
	log.Info(log.CatFS, "materialized link", "path", path, "target", l.TargetRoot, "kind", l.Kind)
	return nil
}

// Dematerialize removes the alias entry for l. Missing entries and entries
// occupied by user data are left alone; the call is idempotent.
func (m *Materializer) Dematerialize(l Link) error {
	path := l.Path()
	state, _, kind := m.classify(path)
	switch state {
	case entryMissing:
		return nil
	case entryOccupied:
		log.Warn(log.CatFS, "skipping unmanaged entry during dematerialize", "path", path)
		return nil
	}
	if err := m.removeManaged(path, kind); err != nil {
		return err
	}
	log.Info(log.CatFS, "dematerialized link", "path", path)
	return nil
}

// Report is the outcome of comparing a workspace tree against its desired
// links. Each set holds aliases.
type Report struct {
	Missing  []string // desired but absent
	Stale    []string // managed entry present but wrong, or no longer desired
	Occupied []string // desired but blocked by an unmanaged entry
	Matched  []string
}

// Clean reports whether the tree matches the desired links exactly.
func (r *Report) Clean() bool {
	return len(r.Missing) == 0 && len(r.Stale) == 0 && len(r.Occupied) == 0
}

// Reconcile compares the workspace tree at workspaceRoot against desired.
// Managed entries whose alias is no longer desired are reported stale;
// unmanaged entries are only reported when they block a desired alias.
func (m *Materializer) Reconcile(workspaceRoot string, desired []Link) (*Report, error) {
	report := &Report{}
	want := make(map[string]Link, len(desired))
	for _, l := range desired {
		want[l.Alias] = l
	}

	for _, l := range desired {
		state, target, kind := m.classify(l.Path())
		switch state {
		case entryMissing:
			report.Missing = append(report.Missing, l.Alias)
		case entryOccupied:
			report.Occupied = append(report.Occupied, l.Alias)
		case entryManaged:
			if target == l.TargetRoot && sameMechanism(kind, l.Kind) {
				report.Matched = append(report.Matched, l.Alias)
			} else {
				report.Stale = append(report.Stale, l.Alias)
			}
		}
	}

	// Managed leftovers from removed edges.
	entries, err := os.ReadDir(workspaceRoot)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %w", ErrFilesystem, workspaceRoot, err)
	}
	for _, entry := range entries {
		if _, desired := want[entry.Name()]; desired {
			continue
		}
		path := filepath.Join(workspaceRoot, entry.Name())
		if state, _, _ := m.classify(path); state == entryManaged {
			report.Stale = append(report.Stale, entry.Name())
		}
	}

	sort.Strings(report.Missing)
	sort.Strings(report.Stale)
	sort.Strings(report.Occupied)
	sort.Strings(report.Matched)
	return report, nil
}

// Repair brings the workspace tree in line with desired: missing entries
// are materialized, stale ones replaced or removed. Occupied aliases are
// not touched; the first one is returned as an error after all other
// repairs complete.
func (m *Materializer) Repair(workspaceRoot string, desired []Link) (*Report, error) {
	report, err := m.Reconcile(workspaceRoot, desired)
	if err != nil {
		return nil, err
	}

	want := make(map[string]Link, len(desired))
	for _, l := range desired {
		want[l.Alias] = l
	}

	for _, alias := range report.Missing {
		if err := m.Materialize(want[alias]); err != nil {
			return report, err
		}
	}
	for _, alias := range report.Stale {
		if l, ok := want[alias]; ok {
			if err := m.Materialize(l); err != nil {
				return report, err
			}
			continue
		}
		path := filepath.Join(workspaceRoot, alias)
		if state, _, kind := m.classify(path); state == entryManaged {
			if err := m.removeManaged(path, kind); err != nil {
				return report, err
			}
		}
	}
	if len(report.Occupied) > 0 {
		return report, fmt.Errorf("%w: %s", ErrAliasPathOccupied,
			filepath.Join(workspaceRoot, report.Occupied[0]))
	}
	return report, nil
}

// sameMechanism reports whether two kinds realize an alias the same way on
// disk. On-disk inspection cannot tell a symlink-kind pointer from a
// junction-kind one, so the two pointer kinds are interchangeable here;
// only a pointer/copy switch makes an entry stale.
func sameMechanism(a, b linkgraph.Kind) bool {
	if a == b {
		return true
	}
	return a != linkgraph.KindCopy && b != linkgraph.KindCopy
}

// classify inspects the entry at path. For managed entries it also returns
// the absolute target the entry points at and the kind it was made with.
func (m *Materializer) classify(path string) (entryState, string, linkgraph.Kind) {
	info, err := os.Lstat(path)
	if err != nil {
		return entryMissing, "", ""
	}

	if info.Mode()&os.ModeSymlink != 0 {
		target, err := os.Readlink(path)
		if err != nil {
			return entryOccupied, "", ""
		}
		if !filepath.IsAbs(target) {
			target = filepath.Join(filepath.Dir(path), target)
		}
		target = filepath.Clean(target)
		// Only links into the grove root are ours to manage.
		if !m.underRoot(target) {
			return entryOccupied, "", ""
		}
		return entryManaged, target, linkgraph.KindSymlink
	}

	if info.IsDir() {
		data, err := os.ReadFile(filepath.Join(path, copyMarker))
		if err == nil {
			target := strings.TrimSpace(string(data))
			if m.underRoot(target) {
				return entryManaged, target, linkgraph.KindCopy
			}
		}
	}

	return entryOccupied, "", ""
}

func (m *Materializer) underRoot(path string) bool {
	rel, err := filepath.Rel(m.root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func (m *Materializer) removeManaged(path string, kind linkgraph.Kind) error {
	var err error
	if kind == linkgraph.KindCopy {
		err = os.RemoveAll(path)
	} else {
		err = os.Remove(path)
	}
	if err != nil {
		return fmt.Errorf("%w: removing %s: %w", ErrFilesystem, path, err)
	}
	return nil
}

// copyTree duplicates the target tree and writes the managed marker.
func copyTree(src, dst string) error {
	if err := os.MkdirAll(dst, 0755); err != nil {
		return fmt.Errorf("%w: creating %s: %w", ErrFilesystem, dst, err)
	}
	entries, err := os.ReadDir(src)
	if err != nil {
		return fmt.Errorf("%w: reading %s: %w", ErrFilesystem, src, err)
	}
	for _, entry := range entries {
		from := filepath.Join(src, entry.Name())
		to := filepath.Join(dst, entry.Name())
		switch {
		case entry.IsDir():
			if err := copyDirPlain(from, to); err != nil {
				return err
			}
		case entry.Type()&os.ModeSymlink != 0:
			target, err := os.Readlink(from)
			if err != nil {
				return fmt.Errorf("%w: reading link %s: %w", ErrFilesystem, from, err)
			}
			if err := os.Symlink(target, to); err != nil {
				return fmt.Errorf("%w: copying link %s: %w", ErrFilesystem, from, err)
			}
		default:
			if err := copyFile(from, to); err != nil {
				return err
			}
		}
	}
	marker := filepath.Join(dst, copyMarker)
	if err := os.WriteFile(marker, []byte(src+"\n"), 0644); err != nil {
		return fmt.Errorf("%w: writing %s: %w", ErrFilesystem, marker, err)
	}
	return nil
}

func copyDirPlain(src, dst string) error {
	if err := os.MkdirAll(dst, 0755); err != nil {
		return fmt.Errorf("%w: creating %s: %w", ErrFilesystem, dst, err)
	}
	entries, err := os.ReadDir(src)
	if err != nil {
		return fmt.Errorf("%w: reading %s: %w", ErrFilesystem, src, err)
	}
	for _, entry := range entries {
		from := filepath.Join(src, entry.Name())
		to := filepath.Join(dst, entry.Name())
		if entry.IsDir() {
			if err := copyDirPlain(from, to); err != nil {
				return err
			}
			continue
		}
		if err := copyFile(from, to); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("%w: reading %s: %w", ErrFilesystem, src, err)
	}
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("%w: stat %s: %w", ErrFilesystem, src, err)
	}
	if err := os.WriteFile(dst, data, info.Mode().Perm()); err != nil {
		return fmt.Errorf("%w: writing %s: %w", ErrFilesystem, dst, err)
	}
	return nil
}
