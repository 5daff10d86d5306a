// Package connections implements the Connection Manager (§6.2-6.3): it
// derives a project's stable id from its absolute path, routes facade calls
// to the correct per-project store instance, and tracks open handles so a
// long-running process can evict idle ones instead of accumulating one open
// SQLite file per project ever visited.
package connections

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/cogmem/engram/internal/config"
	"github.com/cogmem/engram/internal/memerr"
	"github.com/cogmem/engram/internal/storage"
	"github.com/cogmem/engram/internal/storage/postgres"
	"github.com/cogmem/engram/internal/storage/sqlite"
)

// ProjectStore bundles the storage surface scoped to one project_id: the
// combined MemoryStore+ConnectionGraph (one backend implements both, per
// §4.5/§4.6) and its paired VectorStore.
type ProjectStore struct {
	ProjectID string
	Memories  storage.MemoryStore
	Graph     storage.ConnectionGraph
	Vectors   storage.VectorStore
}

type handle struct {
	store    *ProjectStore
	closer   func() error // nil for the shared Postgres backend
	lastUsed time.Time
}

// Manager opens and caches a *ProjectStore per project_id, keyed by the
// derived namespace from ProjectID. SQLite backends get one file per
// project (closed and evicted independently); Postgres backends share a
// single connection pool across every project, since project_id there is a
// column, not a file path.
type Manager struct {
	cfg config.StorageConfig

	mu      sync.Mutex
	handles map[string]*handle

	sharedPG struct {
		store   *postgres.Store
		vectors *postgres.VectorStore
	}
}

// NewManager constructs a Manager over the given storage configuration.
// Nothing is opened eagerly; stores are opened lazily on first Get.
func NewManager(cfg config.StorageConfig) *Manager {
	return &Manager{cfg: cfg, handles: make(map[string]*handle)}
}

// ProjectID derives the stable project namespace from an absolute path per
// §6.3: "<repo_name>_<first 8 hex chars of sha256(canonical_absolute_path)>".
func ProjectID(path string) (string, error) {
	canon, err := canonicalize(path)
	if err != nil {
		return "", memerr.Wrap(memerr.InvalidInput, "canonicalize project path", err)
	}
	sum := sha256.Sum256([]byte(canon))
	repoName := filepath.Base(canon)
	if repoName == "" || repoName == "." || repoName == "/" {
		repoName = "root"
	}
	return repoName + "_" + hex.EncodeToString(sum[:])[:8], nil
}

// canonicalize trims, forces forward slashes, strips a trailing separator,
// and lowercases on hosts whose default filesystem is case-insensitive
// (Windows, macOS), matching §6.3's canonicalization rule.
func canonicalize(path string) (string, error) {
	abs, err := filepath.Abs(strings.TrimSpace(path))
	if err != nil {
		return "", err
	}
	abs = filepath.ToSlash(abs)
	abs = strings.TrimRight(abs, "/")
	if runtime.GOOS == "windows" || runtime.GOOS == "darwin" {
		abs = strings.ToLower(abs)
	}
	return abs, nil
}

// Get returns the ProjectStore for projectPath's project_id, opening and
// caching a new one on first use.
func (m *Manager) Get(ctx context.Context, projectPath string) (*ProjectStore, error) {
	id, err := ProjectID(projectPath)
	if err != nil {
		return nil, err
	}
	return m.GetByID(ctx, id)
}

// GetByID returns the ProjectStore for an already-derived project_id,
// opening and caching a new one on first use. Facade callers that persist a
// project_id (rather than re-deriving it from a path each call) use this.
func (m *Manager) GetByID(ctx context.Context, id string) (*ProjectStore, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if h, ok := m.handles[id]; ok {
		h.lastUsed = time.Now()
		return h.store, nil
	}

	store, closer, err := m.open(id)
	if err != nil {
		return nil, err
	}
	m.handles[id] = &handle{store: store, closer: closer, lastUsed: time.Now()}
	return store, nil
}

func (m *Manager) open(id string) (*ProjectStore, func() error, error) {
	switch m.cfg.StorageEngine {
	case "postgres":
		if m.sharedPG.store == nil {
			store, err := postgres.Open(m.cfg.PostgresDSN)
			if err != nil {
				return nil, nil, memerr.Wrap(memerr.StoreUnavailable, "open postgres store", err)
			}
			m.sharedPG.store = store
			m.sharedPG.vectors = postgres.NewVectorStore(store.DB())
		}
		return &ProjectStore{
			ProjectID: id,
			Memories:  m.sharedPG.store,
			Graph:     m.sharedPG.store,
			Vectors:   m.sharedPG.vectors,
		}, nil, nil
	default:
		dir := filepath.Join(m.cfg.DataPath, id)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, memerr.Wrap(memerr.StoreUnavailable, "create project directory", err)
		}
		dbPath := filepath.Join(dir, "metadata.db")
		store, err := sqlite.Open(dbPath)
		if err != nil {
			return nil, nil, memerr.Wrap(memerr.StoreUnavailable, "open sqlite store", err)
		}
		vectors := sqlite.NewVectorStore(store.DB())
		return &ProjectStore{
			ProjectID: id,
			Memories:  store,
			Graph:     store,
			Vectors:   vectors,
		}, store.Close, nil
	}
}

// EvictIdle closes and forgets every SQLite-backed handle untouched for at
// least maxIdle, returning the evicted project ids. The shared Postgres
// connection is never evicted since it isn't scoped to one project.
func (m *Manager) EvictIdle(maxIdle time.Duration) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	var evicted []string
	for id, h := range m.handles {
		if h.closer == nil {
			continue
		}
		if now.Sub(h.lastUsed) < maxIdle {
			continue
		}
		_ = h.closer()
		delete(m.handles, id)
		evicted = append(evicted, id)
	}
	return evicted
}

// Open reports how many project handles are currently cached, including
// the shared Postgres handle if opened.
func (m *Manager) Open() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.handles)
	return n
}

// Close closes every cached handle, including the shared Postgres pool.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var firstErr error
	for id, h := range m.handles {
		if h.closer != nil {
			if err := h.closer(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		delete(m.handles, id)
	}
	if m.sharedPG.store != nil {
		if err := m.sharedPG.store.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		m.sharedPG.store = nil
		m.sharedPG.vectors = nil
	}
	return firstErr
}
