package importer_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cogmem/engram/internal/cognitive"
	"github.com/cogmem/engram/internal/config"
	"github.com/cogmem/engram/internal/importer"
	"github.com/cogmem/engram/internal/memerr"
	"github.com/cogmem/engram/internal/storage"
	"github.com/cogmem/engram/pkg/types"
)

type fakeMemories struct {
	byID        map[string]*types.Memory
	bySourceDel int
}

func newFakeMemories() *fakeMemories {
	return &fakeMemories{byID: make(map[string]*types.Memory)}
}

func (f *fakeMemories) CreateMemory(ctx context.Context, m *types.Memory) error {
	cp := *m
	f.byID[m.ID] = &cp
	return nil
}

func (f *fakeMemories) GetMemory(ctx context.Context, projectID, id string) (*types.Memory, error) {
	if m, ok := f.byID[id]; ok {
		return m, nil
	}
	return nil, memerr.New(memerr.NotFound, id)
}

func (f *fakeMemories) UpdateMemory(ctx context.Context, m *types.Memory) error { return nil }

func (f *fakeMemories) DeleteMemory(ctx context.Context, projectID, id string) error {
	delete(f.byID, id)
	return nil
}

func (f *fakeMemories) List(ctx context.Context, opts storage.ListOptions) (*storage.PaginatedResult[types.Memory], error) {
	return &storage.PaginatedResult[types.Memory]{}, nil
}

func (f *fakeMemories) QueryBySourcePath(ctx context.Context, projectID, sourcePath string) ([]*types.Memory, error) {
	var out []*types.Memory
	for _, m := range f.byID {
		if m.SourcePath == sourcePath {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeMemories) DeleteBySourcePath(ctx context.Context, projectID, sourcePath string) (int, error) {
	n := 0
	for id, m := range f.byID {
		if m.SourcePath == sourcePath {
			delete(f.byID, id)
			n++
		}
	}
	f.bySourceDel += n
	return n, nil
}

func (f *fakeMemories) QueryByTags(ctx context.Context, projectID string, tags []string) ([]*types.Memory, error) {
	return nil, nil
}

func (f *fakeMemories) DeleteByTags(ctx context.Context, projectID string, tags []string) (int, error) {
	return 0, nil
}

func (f *fakeMemories) RecordAccess(ctx context.Context, projectID, id string, class types.RetrievalClass) error {
	return nil
}

func (f *fakeMemories) QueryActivityWindow(ctx context.Context, projectID string, window time.Duration) (int, int, error) {
	return 0, 0, nil
}

func (f *fakeMemories) Close() error { return nil }

type fakeVectors struct {
	dims map[string]int
}

func newFakeVectors() *fakeVectors { return &fakeVectors{dims: make(map[string]int)} }

func (f *fakeVectors) EnsureCollection(ctx context.Context, projectID string, level types.Level, dim int) error {
	f.dims[projectID] = dim
	return nil
}
func (f *fakeVectors) Upsert(ctx context.Context, projectID string, level types.Level, id string, vector []float64) error {
	return nil
}
func (f *fakeVectors) Delete(ctx context.Context, projectID string, level types.Level, ids []string) error {
	return nil
}
func (f *fakeVectors) Search(ctx context.Context, projectID string, level types.Level, query []float64, k int) ([]storage.ScoredID, error) {
	return nil, nil
}
func (f *fakeVectors) ListCollections(ctx context.Context, projectID string) ([]types.Level, error) {
	return nil, nil
}

type fakeGraph struct {
	edges []*types.Connection
}

func newFakeGraph() *fakeGraph { return &fakeGraph{} }

func (f *fakeGraph) UpsertEdge(ctx context.Context, c *types.Connection) error {
	f.edges = append(f.edges, c)
	return nil
}
func (f *fakeGraph) GetNeighbors(ctx context.Context, projectID, id string, minStrength float64, typeFilter []types.ConnectionType) ([]types.Neighbor, error) {
	return nil, nil
}
func (f *fakeGraph) BumpActivation(ctx context.Context, projectID, sourceID, targetID string) error {
	return nil
}
func (f *fakeGraph) DeleteIncident(ctx context.Context, projectID, id string) error { return nil }

const sampleDoc = `# Overview

This project stores memories in a hierarchy.

## Storage

Memories are persisted to SQLite with a BLOB-encoded vector column.

## Retrieval

Retrieval spreads activation across the connection graph starting from seed matches.
`

func TestDocumentPipeline_Ingest_ProducesOneMemoryPerChunk(t *testing.T) {
	memories := newFakeMemories()
	vectors := newFakeVectors()
	graph := newFakeGraph()
	encoder := cognitive.NewCognitiveEncoder(cognitive.NewLocalProvider(32), cognitive.NewDimensionExtractor())
	pipeline := importer.NewDocumentPipeline(encoder, memories, vectors, graph, config.IngestionConfig{ChunkTokenBudget: 400})

	ir, err := pipeline.Ingest(context.Background(), "proj1", "/abs/notes/overview.md", "notes/overview.md", []byte(sampleDoc))
	require.NoError(t, err)
	assert.Equal(t, len(memories.byID), len(ir.ChunkIDs))
	assert.Greater(t, len(ir.ChunkIDs), 1)
	assert.NotEmpty(t, ir.RootID)
	assert.Equal(t, "Overview", ir.Title)

	for _, m := range memories.byID {
		assert.Equal(t, "notes/overview.md", m.SourcePath)
		assert.True(t, m.Level.Valid())
		assert.Equal(t, types.PayloadDocumentChunk, m.Payload.Kind)
		assert.Contains(t, m.Tags, types.ProfileDocumentation)
	}
}

func TestDocumentPipeline_Ingest_ClassifiesLevelFromContent(t *testing.T) {
	const mixedDoc = `# Principles

Consistency and availability are properties every distributed system must balance.
The architecture favors eventual consistency for its replication strategy.

## Setup

Run the migration, then configure the environment, and install the dependencies.

` + "```" + `
make migrate
make install
` + "```" + `
`

	memories := newFakeMemories()
	vectors := newFakeVectors()
	graph := newFakeGraph()
	encoder := cognitive.NewCognitiveEncoder(cognitive.NewLocalProvider(32), cognitive.NewDimensionExtractor())
	pipeline := importer.NewDocumentPipeline(encoder, memories, vectors, graph, config.IngestionConfig{ChunkTokenBudget: 400})

	_, err := pipeline.Ingest(context.Background(), "proj1", "/abs/notes/mixed.md", "notes/mixed.md", []byte(mixedDoc))
	require.NoError(t, err)

	var sawConcept, sawEpisode bool
	for _, m := range memories.byID {
		switch m.Level {
		case types.LevelConcept:
			sawConcept = true
		case types.LevelEpisode:
			sawEpisode = true
		}
	}
	assert.True(t, sawConcept, "abstract, low-imperative prose should classify as L0 concept")
	assert.True(t, sawEpisode, "a fenced-code-heavy section should classify as L2 episode")
}

func TestDocumentPipeline_Ingest_ReingestReplacesPriorChunks(t *testing.T) {
	memories := newFakeMemories()
	vectors := newFakeVectors()
	graph := newFakeGraph()
	encoder := cognitive.NewCognitiveEncoder(cognitive.NewLocalProvider(32), cognitive.NewDimensionExtractor())
	pipeline := importer.NewDocumentPipeline(encoder, memories, vectors, graph, config.IngestionConfig{ChunkTokenBudget: 400})

	_, err := pipeline.Ingest(context.Background(), "proj1", "/abs/notes/overview.md", "notes/overview.md", []byte(sampleDoc))
	require.NoError(t, err)
	firstCount := len(memories.byID)

	_, err = pipeline.Ingest(context.Background(), "proj1", "/abs/notes/overview.md", "notes/overview.md", []byte(sampleDoc))
	require.NoError(t, err)

	assert.Equal(t, firstCount, len(memories.byID), "re-ingesting the same content must not accumulate duplicate chunks")
}

func TestDocumentPipeline_LinkWikiReference_AddsAssociativeEdge(t *testing.T) {
	memories := newFakeMemories()
	vectors := newFakeVectors()
	graph := newFakeGraph()
	encoder := cognitive.NewCognitiveEncoder(cognitive.NewLocalProvider(32), cognitive.NewDimensionExtractor())
	pipeline := importer.NewDocumentPipeline(encoder, memories, vectors, graph, config.IngestionConfig{ChunkTokenBudget: 400})

	require.NoError(t, pipeline.LinkWikiReference(context.Background(), "proj1", "source-chunk", "target-chunk"))
	require.Len(t, graph.edges, 1)
	assert.Equal(t, types.ConnAssociative, graph.edges[0].Type)
	assert.Equal(t, "source-chunk", graph.edges[0].SourceID)
	assert.Equal(t, "target-chunk", graph.edges[0].TargetID)
}

func TestDocumentPipeline_Ingest_LinksSequentialAndHierarchicalEdges(t *testing.T) {
	memories := newFakeMemories()
	vectors := newFakeVectors()
	graph := newFakeGraph()
	encoder := cognitive.NewCognitiveEncoder(cognitive.NewLocalProvider(32), cognitive.NewDimensionExtractor())
	pipeline := importer.NewDocumentPipeline(encoder, memories, vectors, graph, config.IngestionConfig{ChunkTokenBudget: 400})

	_, err := pipeline.Ingest(context.Background(), "proj1", "/abs/notes/overview.md", "notes/overview.md", []byte(sampleDoc))
	require.NoError(t, err)

	var sequential, hierarchical int
	for _, e := range graph.edges {
		switch e.Type {
		case types.ConnSequential:
			sequential++
		case types.ConnHierarchical:
			hierarchical++
		}
	}
	assert.Greater(t, sequential, 0)
	assert.Greater(t, hierarchical, 0)
}
