package gitlog_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cogmem/engram/internal/cognitive"
	"github.com/cogmem/engram/internal/gitlog"
	"github.com/cogmem/engram/internal/memerr"
	"github.com/cogmem/engram/internal/storage"
	"github.com/cogmem/engram/pkg/types"
)

type fakeMemories struct {
	byID map[string]*types.Memory
}

func newFakeMemories() *fakeMemories { return &fakeMemories{byID: make(map[string]*types.Memory)} }

func (f *fakeMemories) CreateMemory(ctx context.Context, m *types.Memory) error {
	if _, exists := f.byID[m.ID]; exists {
		return memerr.New(memerr.DuplicateID, m.ID)
	}
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
	return nil, nil
}

func (f *fakeMemories) DeleteBySourcePath(ctx context.Context, projectID, sourcePath string) (int, error) {
	return 0, nil
}

func (f *fakeMemories) QueryByTags(ctx context.Context, projectID string, tags []string) ([]*types.Memory, error) {
	var out []*types.Memory
	for _, m := range f.byID {
		for _, want := range tags {
			for _, got := range m.Tags {
				if got == want {
					out = append(out, m)
				}
			}
		}
	}
	return out, nil
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

type fakeGraph struct{ edges []*types.Connection }

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

type fakeSource struct {
	events []gitlog.CommitEvent
}

func (f *fakeSource) CommitsSince(ctx context.Context, repoPath, sinceSHA string, maxCommits int) ([]gitlog.CommitEvent, error) {
	if sinceSHA == "" {
		return f.events, nil
	}
	for i, ev := range f.events {
		if ev.SHA == sinceSHA {
			return f.events[:i], nil
		}
	}
	return f.events, nil
}

func newEncoder() *cognitive.CognitiveEncoder {
	return cognitive.NewCognitiveEncoder(cognitive.NewLocalProvider(32), cognitive.NewDimensionExtractor())
}

func sampleEvents() []gitlog.CommitEvent {
	return []gitlog.CommitEvent{
		{
			SHA: "c3", ParentSHAs: []string{"c2"}, Author: "alice", Committer: "alice",
			CommittedAt: 300, Subject: "fix: nil pointer in parser by guarding empty input",
			Files: []types.FileChange{{Path: "parser.go", ChangeType: "modify", LinesAdded: 3, LinesDeleted: 1}},
		},
		{
			SHA: "c2", ParentSHAs: []string{"c1"}, Author: "bob", Committer: "bob",
			CommittedAt: 200, Subject: "feat: add streaming decoder",
			Files: []types.FileChange{
				{Path: "parser.go", ChangeType: "modify", LinesAdded: 20, LinesDeleted: 2},
				{Path: "decoder.go", ChangeType: "add", LinesAdded: 40},
			},
		},
		{
			SHA: "c1", ParentSHAs: nil, Author: "alice", Committer: "alice",
			CommittedAt: 100, Subject: "fix: crash on empty input by validating length",
			Files: []types.FileChange{{Path: "parser.go", ChangeType: "modify", LinesAdded: 5, LinesDeleted: 1}},
		},
	}
}

func TestLoader_Load_StoresCommitsAsEpisodicMemories(t *testing.T) {
	memories := newFakeMemories()
	graph := &fakeGraph{}
	source := &fakeSource{events: sampleEvents()}
	loader := gitlog.NewLoader(source, newEncoder(), memories, graph)

	result, err := loader.Load(context.Background(), "proj1", "/repo")
	require.NoError(t, err)
	assert.Equal(t, 3, result.CommitsLoaded)
	assert.Empty(t, result.Errors)

	for _, ev := range source.events {
		found := false
		for _, m := range memories.byID {
			if m.Payload.Kind == types.PayloadCommit && m.Payload.Commit.SHA == ev.SHA {
				found = true
				assert.Equal(t, types.LevelEpisode, m.Level)
				assert.Equal(t, types.KindEpisodic, m.Kind)
			}
		}
		assert.True(t, found, "expected a commit memory for %s", ev.SHA)
	}
}

func TestLoader_Load_IsIdempotentOnReload(t *testing.T) {
	memories := newFakeMemories()
	graph := &fakeGraph{}
	source := &fakeSource{events: sampleEvents()}
	loader := gitlog.NewLoader(source, newEncoder(), memories, graph)

	_, err := loader.Load(context.Background(), "proj1", "/repo")
	require.NoError(t, err)
	firstCount := len(memories.byID)

	loader2 := gitlog.NewLoader(source, newEncoder(), memories, graph)
	result, err := loader2.Load(context.Background(), "proj1", "/repo")
	require.NoError(t, err)
	assert.Equal(t, 0, result.CommitsLoaded, "watermark should exclude all already-loaded commits")
	assert.Equal(t, firstCount, len(memories.byID))
}

func TestLoader_Load_DerivesCoChangeHotspotAndSolutionPatterns(t *testing.T) {
	memories := newFakeMemories()
	graph := &fakeGraph{}
	source := &fakeSource{events: sampleEvents()}
	loader := gitlog.NewLoader(source, newEncoder(), memories, graph)

	_, err := loader.Load(context.Background(), "proj1", "/repo")
	require.NoError(t, err)

	var cochange, hotspot, solution *types.Memory
	for _, m := range memories.byID {
		switch m.Payload.Kind {
		case types.PayloadCoChange:
			cochange = m
		case types.PayloadHotspot:
			if m.Payload.Hotspot.Path == "parser.go" {
				hotspot = m
			}
		case types.PayloadSolution:
			solution = m
		}
	}

	require.NotNil(t, cochange, "parser.go and decoder.go co-changed in c2")
	assert.Equal(t, 1, cochange.Payload.CoChange.Support)
	assert.Greater(t, cochange.Payload.CoChange.Confidence, 0.0)

	require.NotNil(t, hotspot, "parser.go was touched by two bug-fix commits")
	assert.Equal(t, 2, hotspot.Payload.Hotspot.ProblemCount)
	assert.Equal(t, 3, hotspot.Payload.Hotspot.TotalCommits)

	require.NotNil(t, solution)
	assert.Greater(t, solution.Payload.Solution.TotalAttempts, 0)
	assert.Equal(t, solution.Payload.Solution.SuccessfulFixes, solution.Payload.Solution.TotalAttempts)
}
