package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	gocache "github.com/patrickmn/go-cache"

	"github.com/grovekit/grove/internal/linkgraph"
	"github.com/grovekit/grove/internal/log"
	"github.com/grovekit/grove/internal/registry"
)

var (
	ErrLockTimeout = errors.New("timed out waiting for the grove lock")
)

const (
	// DefaultLockTimeout bounds how long a mutation waits for a
	// concurrent writer before giving up.
	DefaultLockTimeout = 5 * time.Second

	lockRetryDelay = 50 * time.Millisecond
	snapshotKey    = "state"
)

// fileStamp identifies one observed version of a store file.
type fileStamp struct {
	modTime time.Time
	size    int64
}

type snapshot struct {
	state      *State
	registryAt fileStamp
	linksAt    fileStamp
}

// Store loads and commits the state of one grove root.
//
// Reads are lock-free: the commit protocol (write temp, fsync, rename)
// guarantees a reader sees either the pre- or post-mutation file in full.
// Mutations serialize on an advisory file lock with a bounded wait.
type Store struct {
	root        string
	lockTimeout time.Duration
	cache       *gocache.Cache
}

// Open returns a store for the given root. The root must already be
// initialized; see DiscoverRoot and InitRoot.
func Open(root string) *Store {
	return &Store{
		root:        root,
		lockTimeout: DefaultLockTimeout,
		cache:       gocache.New(gocache.NoExpiration, 0),
	}
}

// WithLockTimeout overrides the mutation lock wait bound.
func (s *Store) WithLockTimeout(d time.Duration) *Store {
	if d > 0 {
		s.lockTimeout = d
	}
	return s
}

// Root returns the absolute root path this store operates on.
func (s *Store) Root() string {
	return s.root
}

// Load returns the current state snapshot without taking the lock.
// Repeated loads are served from an in-memory cache keyed by the store
// files' modification stamps, so a long-lived caller still observes
// external mutations.
func (s *Store) Load() (*State, error) {
	regStamp := s.stamp(RegistryFile)
	linkStamp := s.stamp(LinksFile)

	if cached, ok := s.cache.Get(snapshotKey); ok {
		snap := cached.(*snapshot)
		if snap.registryAt == regStamp && snap.linksAt == linkStamp {
			log.Debug(log.CatStore, "load served from cache", "root", s.root)
			return snap.state, nil
		}
	}

	state, err := s.load()
	if err != nil {
		return nil, err
	}
	s.cache.Set(snapshotKey, &snapshot{state: state, registryAt: regStamp, linksAt: linkStamp}, gocache.NoExpiration)
	return state, nil
}

// Update runs fn against a freshly loaded state under the exclusive store
// lock and commits both store files atomically if fn succeeds. Any error
// from fn aborts the transaction with nothing written.
func (s *Store) Update(ctx context.Context, fn func(*State) error) error {
	lock := flock.New(filepath.Join(s.root, LockFile))
	lockCtx, cancel := context.WithTimeout(ctx, s.lockTimeout)
	defer cancel()

	locked, err := lock.TryLockContext(lockCtx, lockRetryDelay)
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("acquiring store lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("%w after %s", ErrLockTimeout, s.lockTimeout)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			log.ErrorErr(log.CatStore, "releasing store lock", err)
		}
	}()

	// Always reload under the lock; the cached snapshot may predate
	// another writer's commit.
	state, err := s.load()
	if err != nil {
		return err
	}

	if err := fn(state); err != nil {
		return err
	}

	if err := s.commit(state); err != nil {
		return err
	}
	s.cache.Set(snapshotKey, &snapshot{
		state:      state,
		registryAt: s.stamp(RegistryFile),
		linksAt:    s.stamp(LinksFile),
	}, gocache.NoExpiration)
	return nil
}

func (s *Store) load() (*State, error) {
	regData, err := readIfExists(filepath.Join(s.root, RegistryFile))
	if err != nil {
		return nil, fmt.Errorf("reading registry store: %w", err)
	}
	reg, err := registry.Decode(regData)
	if err != nil {
		return nil, err
	}

	linkData, err := readIfExists(filepath.Join(s.root, LinksFile))
	if err != nil {
		return nil, fmt.Errorf("reading link store: %w", err)
	}
	graph, err := linkgraph.Decode(linkData)
	if err != nil {
		return nil, err
	}

	// A persisted edge referencing an unregistered name means the stores
	// were edited out of band, or a crash landed between the two file
	// renames of a multi-file mutation. Refusing to load would leave no
	// command able to repair the state, so prune the edge and warn; the
	// next commit persists the pruned graph.
	for _, e := range graph.Edges() {
		if reg.Has(e.Source) && reg.Has(e.Target) {
			continue
		}
		if _, err := graph.RemoveLink(e.Source, e.Alias); err != nil {
			return nil, fmt.Errorf("pruning dangling edge %s[%s]: %w", e.Source, e.Alias, err)
		}
		log.Warn(log.CatStore, "pruned dangling link edge", "source", e.Source.String(), "alias", e.Alias, "target", e.Target.String())
	}

	return &State{Root: s.root, Registry: reg, Graph: graph}, nil
}

func (s *Store) commit(state *State) error {
	regData, err := registry.Encode(state.Registry)
	if err != nil {
		return fmt.Errorf("encoding registry store: %w", err)
	}
	linkData, err := linkgraph.Encode(state.Graph)
	if err != nil {
		return fmt.Errorf("encoding link store: %w", err)
	}

	// Links first: the only mutation touching both files is a forced node
	// removal, which drops edges and then the node. With this ordering a
	// crash between the two renames leaves at worst an unlinked node, never
	// a dangling edge.
	if err := writeAtomic(filepath.Join(s.root, LinksFile), linkData); err != nil {
		return err
	}
	if err := writeAtomic(filepath.Join(s.root, RegistryFile), regData); err != nil {
		return err
	}
	log.Debug(log.CatStore, "committed state", "nodes", state.Registry.Len(), "edges", state.Graph.Len())
	return nil
}

func (s *Store) stamp(file string) fileStamp {
	info, err := os.Stat(filepath.Join(s.root, file))
	if err != nil {
		return fileStamp{}
	}
	return fileStamp{modTime: info.ModTime(), size: info.Size()}
}

func readIfExists(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	return data, err
}

// writeAtomic replaces path via write-temp, fsync, rename so readers never
// observe a partial file.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	temp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp.*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tempPath := temp.Name()

	if _, err := temp.Write(data); err != nil {
		_ = temp.Close()
		_ = os.Remove(tempPath)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := temp.Sync(); err != nil {
		_ = temp.Close()
		_ = os.Remove(tempPath)
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := temp.Close(); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}
