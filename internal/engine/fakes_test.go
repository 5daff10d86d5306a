package engine_test

import (
	"context"
	"time"

	"github.com/cogmem/engram/internal/memerr"
	"github.com/cogmem/engram/internal/storage"
	"github.com/cogmem/engram/pkg/types"
)

// fakeGraph is a minimal in-memory storage.ConnectionGraph for engine tests.
type fakeGraph struct {
	edges map[string][]types.Neighbor // sourceID -> outgoing neighbors (undirected for test simplicity)
}

func newFakeGraph() *fakeGraph {
	return &fakeGraph{edges: make(map[string][]types.Neighbor)}
}

func (g *fakeGraph) link(a, b string, strength float64, typ types.ConnectionType) {
	g.edges[a] = append(g.edges[a], types.Neighbor{TargetID: b, Type: typ, Strength: strength})
	g.edges[b] = append(g.edges[b], types.Neighbor{TargetID: a, Type: typ, Strength: strength})
}

func (g *fakeGraph) UpsertEdge(ctx context.Context, c *types.Connection) error {
	g.link(c.SourceID, c.TargetID, c.Strength, c.Type)
	return nil
}

func (g *fakeGraph) GetNeighbors(ctx context.Context, projectID, id string, minStrength float64, typeFilter []types.ConnectionType) ([]types.Neighbor, error) {
	var out []types.Neighbor
	for _, n := range g.edges[id] {
		if n.Strength >= minStrength {
			out = append(out, n)
		}
	}
	return out, nil
}

func (g *fakeGraph) BumpActivation(ctx context.Context, projectID, sourceID, targetID string) error {
	return nil
}

func (g *fakeGraph) DeleteIncident(ctx context.Context, projectID, id string) error {
	delete(g.edges, id)
	return nil
}

// fakeMemoryStore is a minimal in-memory storage.MemoryStore for engine tests.
type fakeMemoryStore struct {
	byID map[string]*types.Memory
}

func newFakeMemoryStore() *fakeMemoryStore {
	return &fakeMemoryStore{byID: make(map[string]*types.Memory)}
}

func (f *fakeMemoryStore) put(m *types.Memory) { f.byID[m.ID] = m }

func (f *fakeMemoryStore) CreateMemory(ctx context.Context, m *types.Memory) error {
	f.byID[m.ID] = m
	return nil
}

func (f *fakeMemoryStore) GetMemory(ctx context.Context, projectID, id string) (*types.Memory, error) {
	m, ok := f.byID[id]
	if !ok {
		return nil, memerr.New(memerr.NotFound, id)
	}
	return m, nil
}

func (f *fakeMemoryStore) UpdateMemory(ctx context.Context, m *types.Memory) error {
	f.byID[m.ID] = m
	return nil
}

func (f *fakeMemoryStore) DeleteMemory(ctx context.Context, projectID, id string) error {
	delete(f.byID, id)
	return nil
}

func (f *fakeMemoryStore) List(ctx context.Context, opts storage.ListOptions) (*storage.PaginatedResult[types.Memory], error) {
	var items []types.Memory
	for _, m := range f.byID {
		if opts.Kind != nil && m.Kind != *opts.Kind {
			continue
		}
		items = append(items, *m)
	}
	return &storage.PaginatedResult[types.Memory]{Items: items, Total: len(items)}, nil
}

func (f *fakeMemoryStore) QueryBySourcePath(ctx context.Context, projectID, sourcePath string) ([]*types.Memory, error) {
	return nil, nil
}
func (f *fakeMemoryStore) DeleteBySourcePath(ctx context.Context, projectID, sourcePath string) (int, error) {
	return 0, nil
}
func (f *fakeMemoryStore) QueryByTags(ctx context.Context, projectID string, tags []string) ([]*types.Memory, error) {
	return nil, nil
}
func (f *fakeMemoryStore) DeleteByTags(ctx context.Context, projectID string, tags []string) (int, error) {
	return 0, nil
}
func (f *fakeMemoryStore) RecordAccess(ctx context.Context, projectID, id string, class types.RetrievalClass) error {
	if m, ok := f.byID[id]; ok {
		m.AccessCount++
		m.LastAccessedAt = time.Now().UTC()
	}
	return nil
}
func (f *fakeMemoryStore) QueryActivityWindow(ctx context.Context, projectID string, window time.Duration) (int, int, error) {
	return 0, 0, nil
}
func (f *fakeMemoryStore) Close() error { return nil }

// fakeBridgeCache is a minimal in-memory storage.BridgeCacheStore.
type fakeBridgeCache struct {
	entries map[string]types.BridgeCacheEntry
}

func newFakeBridgeCache() *fakeBridgeCache {
	return &fakeBridgeCache{entries: make(map[string]types.BridgeCacheEntry)}
}

func (c *fakeBridgeCache) Get(queryFingerprint, memoryID string) (*types.BridgeCacheEntry, bool) {
	e, ok := c.entries[queryFingerprint+"::"+memoryID]
	return &e, ok
}

func (c *fakeBridgeCache) Put(entry *types.BridgeCacheEntry) {
	c.entries[entry.QueryFingerprint+"::"+entry.MemoryID] = *entry
}
