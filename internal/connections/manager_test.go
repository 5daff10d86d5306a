package connections_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cogmem/engram/internal/config"
	"github.com/cogmem/engram/internal/connections"
)

func TestProjectID_DeterministicAndPrefixedByRepoName(t *testing.T) {
	id1, err := connections.ProjectID("/home/dev/my-repo")
	require.NoError(t, err)
	id2, err := connections.ProjectID("/home/dev/my-repo")
	require.NoError(t, err)

	assert.Equal(t, id1, id2, "same path must yield the same project id every time")
	assert.Contains(t, id1, "my-repo_")

	parts := len(id1) - len("my-repo_")
	assert.Equal(t, 8, parts, "project id suffix must be exactly 8 hex chars")
}

func TestProjectID_DifferentPathsYieldDifferentIDs(t *testing.T) {
	id1, err := connections.ProjectID("/home/dev/repo-a")
	require.NoError(t, err)
	id2, err := connections.ProjectID("/home/dev/repo-b")
	require.NoError(t, err)

	assert.NotEqual(t, id1, id2)
}

func TestProjectID_TrailingSlashDoesNotChangeID(t *testing.T) {
	id1, err := connections.ProjectID("/home/dev/my-repo")
	require.NoError(t, err)
	id2, err := connections.ProjectID("/home/dev/my-repo/")
	require.NoError(t, err)

	assert.Equal(t, id1, id2)
}

func TestManager_Get_CachesStoreAcrossCalls(t *testing.T) {
	dataDir := t.TempDir()
	mgr := connections.NewManager(config.StorageConfig{StorageEngine: "sqlite", DataPath: dataDir})
	t.Cleanup(func() { _ = mgr.Close() })

	projectPath := filepath.Join(t.TempDir(), "some-project")

	first, err := mgr.Get(context.Background(), projectPath)
	require.NoError(t, err)
	second, err := mgr.Get(context.Background(), projectPath)
	require.NoError(t, err)

	assert.Same(t, first, second, "a second Get for the same project must return the cached handle")
	assert.Equal(t, 1, mgr.Open())
}

func TestManager_Get_SeparatesDistinctProjects(t *testing.T) {
	dataDir := t.TempDir()
	mgr := connections.NewManager(config.StorageConfig{StorageEngine: "sqlite", DataPath: dataDir})
	t.Cleanup(func() { _ = mgr.Close() })

	a, err := mgr.Get(context.Background(), filepath.Join(t.TempDir(), "project-a"))
	require.NoError(t, err)
	b, err := mgr.Get(context.Background(), filepath.Join(t.TempDir(), "project-b"))
	require.NoError(t, err)

	assert.NotEqual(t, a.ProjectID, b.ProjectID)
	assert.Equal(t, 2, mgr.Open())
}

func TestManager_EvictIdle_ClosesUntouchedSQLiteHandles(t *testing.T) {
	dataDir := t.TempDir()
	mgr := connections.NewManager(config.StorageConfig{StorageEngine: "sqlite", DataPath: dataDir})
	t.Cleanup(func() { _ = mgr.Close() })

	_, err := mgr.Get(context.Background(), filepath.Join(t.TempDir(), "idle-project"))
	require.NoError(t, err)
	require.Equal(t, 1, mgr.Open())

	evicted := mgr.EvictIdle(0)
	assert.Len(t, evicted, 1)
	assert.Equal(t, 0, mgr.Open())
}

func TestManager_EvictIdle_KeepsRecentlyUsedHandles(t *testing.T) {
	dataDir := t.TempDir()
	mgr := connections.NewManager(config.StorageConfig{StorageEngine: "sqlite", DataPath: dataDir})
	t.Cleanup(func() { _ = mgr.Close() })

	_, err := mgr.Get(context.Background(), filepath.Join(t.TempDir(), "active-project"))
	require.NoError(t, err)

	evicted := mgr.EvictIdle(time.Hour)
	assert.Empty(t, evicted)
	assert.Equal(t, 1, mgr.Open())
}

func TestManager_GetByID_ReopensEvictedProjectOnDemand(t *testing.T) {
	dataDir := t.TempDir()
	mgr := connections.NewManager(config.StorageConfig{StorageEngine: "sqlite", DataPath: dataDir})
	t.Cleanup(func() { _ = mgr.Close() })

	projectPath := filepath.Join(t.TempDir(), "reopened-project")
	first, err := mgr.Get(context.Background(), projectPath)
	require.NoError(t, err)

	mgr.EvictIdle(0)
	require.Equal(t, 0, mgr.Open())

	second, err := mgr.GetByID(context.Background(), first.ProjectID)
	require.NoError(t, err)
	assert.Equal(t, first.ProjectID, second.ProjectID)
	assert.Equal(t, 1, mgr.Open())
}
