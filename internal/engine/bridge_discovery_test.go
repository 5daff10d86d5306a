package engine_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cogmem/engram/internal/config"
	"github.com/cogmem/engram/internal/engine"
	"github.com/cogmem/engram/internal/storage"
	"github.com/cogmem/engram/pkg/types"
)

func TestBridgeDiscovery_Discover_SurfacesHighNoveltyConnectedCandidates(t *testing.T) {
	graph := newFakeGraph()
	graph.link("core1", "bridge-candidate", 0.8, types.ConnAssociative)

	cfg := config.BridgeConfig{NoveltyWeight: 0.6, ConnectionPotentialWeight: 0.4, MinBridgeScore: 0.5}
	bd := engine.NewBridgeDiscovery(nil, graph, newFakeBridgeCache(), cfg)

	query := []float64{1, 0, 0}
	candidates := []storage.ScoredID{
		{ID: "bridge-candidate", Score: 0.0}, // moderate novelty, strongly connected to core
		{ID: "irrelevant", Score: 0.0},       // equally novel but no connection to core
	}
	core := map[string]bool{"core1": true}

	results, err := bd.Discover(context.Background(), "proj", types.LevelContext, query, candidates, core)
	require.NoError(t, err)

	ids := make(map[string]engine.BridgeResult)
	for _, r := range results {
		ids[r.MemoryID] = r
	}
	assert.Contains(t, ids, "bridge-candidate")
	assert.NotContains(t, ids, "irrelevant", "novelty alone without connection potential must not clear the bridge threshold")
}

func TestBridgeDiscovery_Discover_CachesRepeatedQueries(t *testing.T) {
	graph := newFakeGraph()
	graph.link("core1", "cand", 0.9, types.ConnAssociative)
	cache := newFakeBridgeCache()
	cfg := config.BridgeConfig{NoveltyWeight: 0.6, ConnectionPotentialWeight: 0.4, MinBridgeScore: 0.5}
	bd := engine.NewBridgeDiscovery(nil, graph, cache, cfg)

	query := []float64{1, 0, 0}
	candidates := []storage.ScoredID{{ID: "cand", Score: -1.0}}
	core := map[string]bool{"core1": true}

	first, err := bd.Discover(context.Background(), "proj", types.LevelContext, query, candidates, core)
	require.NoError(t, err)
	require.Len(t, first, 1)

	fp := engine.Fingerprint(query)
	cached, ok := cache.Get(fp, "cand")
	require.True(t, ok)
	assert.Equal(t, first[0].BridgeScore, cached.BridgeScore)
}
