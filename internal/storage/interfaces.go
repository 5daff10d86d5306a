// Package storage defines the composable storage interfaces for the
// cognitive memory engine. Small, focused interfaces following the
// Interface Segregation Principle so SQLite and Postgres backends can
// each implement only what they need.
package storage

import (
	"context"
	"time"

	"github.com/cogmem/engram/pkg/types"
)

// MemoryStore provides CRUD, pagination, and cascade semantics for memories.
// Implementations must hold the invariants from §3: level immutability,
// parent level ordering, and one-transaction cascading delete.
type MemoryStore interface {
	// CreateMemory inserts a new memory row. Fails with memerr.DuplicateID,
	// memerr.InvalidParent, or memerr.LevelOutOfRange.
	CreateMemory(ctx context.Context, m *types.Memory) error

	// GetMemory retrieves a memory by id. Fails with memerr.NotFound.
	GetMemory(ctx context.Context, projectID, id string) (*types.Memory, error)

	// UpdateMemory applies a restricted field set: last_accessed_at,
	// access_count, kind (episodic->semantic only), importance, decay_rate,
	// tags. Strength is not stored.
	UpdateMemory(ctx context.Context, m *types.Memory) error

	// DeleteMemory cascades: metadata row and incident edges (plus the
	// SQLite backend's bridge_cache rows) referencing id, in one
	// transaction. The vector is not removed here; it lives in VectorStore.
	DeleteMemory(ctx context.Context, projectID, id string) error

	// List retrieves memories with pagination and filtering.
	List(ctx context.Context, opts ListOptions) (*PaginatedResult[types.Memory], error)

	// QueryBySourcePath returns all memories with the given canonicalized
	// source_path.
	QueryBySourcePath(ctx context.Context, projectID, sourcePath string) ([]*types.Memory, error)

	// DeleteBySourcePath cascades a delete for every memory whose
	// source_path matches (used by ingestion's replace-on-reload path).
	DeleteBySourcePath(ctx context.Context, projectID, sourcePath string) (int, error)

	// QueryByTags returns memories matching any of the given tags.
	QueryByTags(ctx context.Context, projectID string, tags []string) ([]*types.Memory, error)

	// DeleteByTags cascades a delete for every memory matching any tag.
	DeleteByTags(ctx context.Context, projectID string, tags []string) (int, error)

	// RecordAccess appends an AccessEvent and bumps last_accessed_at/access_count.
	RecordAccess(ctx context.Context, projectID, id string, class types.RetrievalClass) error

	// QueryActivityWindow returns commit and access counts within the window,
	// for ActivityTracker.
	QueryActivityWindow(ctx context.Context, projectID string, window time.Duration) (commitCount, accessCount int, err error)

	// Close releases backend resources.
	Close() error
}

// ConnectionGraph owns the typed edge table and supplies BFS-friendly
// adjacency queries (§4.6).
type ConnectionGraph interface {
	// UpsertEdge enforces source != target and strength range.
	UpsertEdge(ctx context.Context, c *types.Connection) error

	// GetNeighbors returns outgoing+incoming edges at or above minStrength.
	GetNeighbors(ctx context.Context, projectID, id string, minStrength float64, typeFilter []types.ConnectionType) ([]types.Neighbor, error)

	// BumpActivation records that an edge was traversed during spreading,
	// updating last_activated_at/activation_count.
	BumpActivation(ctx context.Context, projectID, sourceID, targetID string) error

	// DeleteIncident removes every edge touching id, as part of a cascade.
	DeleteIncident(ctx context.Context, projectID, id string) error
}

// VectorStore provides namespaced vector collections with cosine top-k
// search (§4.4).
type VectorStore interface {
	// EnsureCollection is idempotent; fails with memerr.DimensionMismatch if
	// an existing collection has a different dimensionality.
	EnsureCollection(ctx context.Context, projectID string, level types.Level, dim int) error

	// Upsert overwrites the vector for id.
	Upsert(ctx context.Context, projectID string, level types.Level, id string, vector []float64) error

	// Delete removes the listed ids; missing ids are not errors.
	Delete(ctx context.Context, projectID string, level types.Level, ids []string) error

	// Search returns cosine similarity top-k, descending, ties by id ascending.
	Search(ctx context.Context, projectID string, level types.Level, query []float64, k int) ([]ScoredID, error)

	// ListCollections returns the levels that have a collection for projectID.
	ListCollections(ctx context.Context, projectID string) ([]types.Level, error)
}

// ScoredID is one VectorStore.Search result.
type ScoredID struct {
	ID    string
	Score float64
}

// BridgeCacheStore stores short-lived BridgeDiscovery results (§4.9).
type BridgeCacheStore interface {
	Get(queryFingerprint, memoryID string) (*types.BridgeCacheEntry, bool)
	Put(entry *types.BridgeCacheEntry)
}
