package facade_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cogmem/engram/internal/cognitive"
	"github.com/cogmem/engram/internal/config"
	"github.com/cogmem/engram/internal/connections"
	"github.com/cogmem/engram/internal/engine"
	"github.com/cogmem/engram/internal/facade"
	"github.com/cogmem/engram/pkg/types"
)

func newTestFacade(t *testing.T) (*facade.Facade, string) {
	t.Helper()
	cfg, err := config.LoadConfig()
	require.NoError(t, err)
	cfg.Storage.DataPath = t.TempDir()

	conns := connections.NewManager(cfg.Storage)
	t.Cleanup(func() { _ = conns.Close() })

	encoder := cognitive.NewCognitiveEncoder(cognitive.NewLocalProvider(32), cognitive.NewDimensionExtractor())
	f := facade.New(cfg, conns, encoder, nil)

	projectPath := filepath.Join(t.TempDir(), "demo-project")
	return f, projectPath
}

func TestFacade_StoreExperience_ThenRetrieve_FindsIt(t *testing.T) {
	f, projectPath := newTestFacade(t)
	ctx := context.Background()

	id, err := f.StoreExperience(ctx, projectPath, "the retry budget exhausts after three attempts", facade.StoreExperienceOptions{
		Tags: []string{"reliability"},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	resp, err := f.RetrieveMemories(ctx, projectPath, "retry budget exhausts after three attempts", facade.RetrieveOptions{Limit: 5})
	require.NoError(t, err)

	var found bool
	for _, r := range append(append([]interface{}{}, asAny(resp.Core)...), asAny(resp.Peripheral)...) {
		if r.(string) == id {
			found = true
		}
	}
	assert.True(t, found, "stored experience should be retrievable by its own content")
}

func asAny(results []engine.RetrievalResult) []interface{} {
	out := make([]interface{}, len(results))
	for i, r := range results {
		out[i] = r.Memory.ID
	}
	return out
}

func TestFacade_StoreExperience_DefaultsLevel(t *testing.T) {
	f, projectPath := newTestFacade(t)
	ctx := context.Background()

	id, err := f.StoreExperience(ctx, projectPath, "default importance check", facade.StoreExperienceOptions{})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	status, err := f.Status(ctx, projectPath, true)
	require.NoError(t, err)
	assert.Equal(t, 1, status.ByLevel[types.LevelContext])
}

func TestFacade_StoreExperience_RespectsExplicitLevel(t *testing.T) {
	f, projectPath := newTestFacade(t)
	ctx := context.Background()

	level := types.LevelConcept
	importance := 0.9
	id, err := f.StoreExperience(ctx, projectPath, "a guiding principle worth remembering", facade.StoreExperienceOptions{
		HierarchyLevel: &level,
		Importance:     &importance,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	status, err := f.Status(ctx, projectPath, true)
	require.NoError(t, err)
	assert.Equal(t, 1, status.ByLevel[types.LevelConcept])
}

func TestFacade_DeleteMemoryByID_RemovesIt(t *testing.T) {
	f, projectPath := newTestFacade(t)
	ctx := context.Background()

	id, err := f.StoreExperience(ctx, projectPath, "a memory slated for deletion", facade.StoreExperienceOptions{})
	require.NoError(t, err)

	result, err := f.DeleteMemoryByID(ctx, projectPath, id)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Deleted)
}

func TestFacade_DeleteMemoriesByTags_DryRunDoesNotDelete(t *testing.T) {
	f, projectPath := newTestFacade(t)
	ctx := context.Background()

	_, err := f.StoreExperience(ctx, projectPath, "tagged for cleanup", facade.StoreExperienceOptions{Tags: []string{"stale"}})
	require.NoError(t, err)

	result, err := f.DeleteMemoriesByTags(ctx, projectPath, []string{"stale"}, true)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Deleted)

	status, err := f.Status(ctx, projectPath, true)
	require.NoError(t, err)
	assert.Equal(t, 1, status.TotalMemories, "dry run must not actually remove the memory")
}

func TestFacade_DeleteMemoriesBySourcePath_RemovesIngestedChunks(t *testing.T) {
	f, projectPath := newTestFacade(t)
	ctx := context.Background()

	dir := t.TempDir()
	notePath := filepath.Join(dir, "note.md")
	require.NoError(t, os.WriteFile(notePath, []byte("# Note\n\nSome contextual prose about the system.\n"), 0o644))

	loadResult, err := f.LoadMemories(ctx, projectPath, notePath)
	require.NoError(t, err)
	assert.Greater(t, loadResult.Added, 0)

	deleteResult, err := f.DeleteMemoriesBySourcePath(ctx, projectPath, "note.md")
	require.NoError(t, err)
	assert.Greater(t, deleteResult.Deleted, 0)
}

func TestFacade_LoadMemories_IngestsDirectoryTree(t *testing.T) {
	f, projectPath := newTestFacade(t)
	ctx := context.Background()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.md"), []byte("# A\n\nSome prose about A.\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.md"), []byte("# B\n\nSome prose about B.\n"), 0o644))

	result, err := f.LoadMemories(ctx, projectPath, dir)
	require.NoError(t, err)
	assert.Greater(t, result.Added, 0)
}

func TestFacade_LoadGitPatterns_FailsWithoutCommitSource(t *testing.T) {
	f, projectPath := newTestFacade(t)
	ctx := context.Background()

	_, err := f.LoadGitPatterns(ctx, projectPath, "/tmp/some-repo")
	assert.Error(t, err)
}

func TestFacade_ConsolidateMemories_DryRunReportsWithoutPromoting(t *testing.T) {
	f, projectPath := newTestFacade(t)
	ctx := context.Background()

	_, err := f.StoreExperience(ctx, projectPath, "an episodic memory not yet due for consolidation", facade.StoreExperienceOptions{})
	require.NoError(t, err)

	result, err := f.ConsolidateMemories(ctx, projectPath, true)
	require.NoError(t, err)
	assert.Empty(t, result.Promoted, "a freshly stored memory shouldn't already qualify for consolidation")
}

func TestFacade_Status_ReportsProjectID(t *testing.T) {
	f, projectPath := newTestFacade(t)
	ctx := context.Background()

	status, err := f.Status(ctx, projectPath, false)
	require.NoError(t, err)
	assert.NotEmpty(t, status.ProjectID)
}
