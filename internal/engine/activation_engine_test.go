package engine_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cogmem/engram/internal/config"
	"github.com/cogmem/engram/internal/engine"
	"github.com/cogmem/engram/internal/storage"
	"github.com/cogmem/engram/pkg/types"
)

func TestActivationEngine_Spread_AttenuatesWithDistanceAndEdgeStrength(t *testing.T) {
	graph := newFakeGraph()
	graph.link("seed", "near", 0.9, types.ConnAssociative)
	graph.link("near", "far", 0.9, types.ConnAssociative)

	eng := engine.NewActivationEngine(graph, config.ActivationConfig{
		MaxHops: 3, MaxActivations: 50, StrengthFloor: 0.6, HopDecay: 0.8, Timeout: time.Second,
	})

	activated, err := eng.Spread(context.Background(), "proj", []storage.ScoredID{{ID: "seed", Score: 1.0}})
	require.NoError(t, err)

	byID := make(map[string]engine.ActivatedMemory)
	for _, a := range activated {
		byID[a.MemoryID] = a
	}

	require.Contains(t, byID, "seed")
	require.Contains(t, byID, "near")
	require.Contains(t, byID, "far")
	assert.Greater(t, byID["seed"].Activation, byID["near"].Activation)
	assert.Greater(t, byID["near"].Activation, byID["far"].Activation)
}

func TestActivationEngine_Spread_RespectsStrengthFloor(t *testing.T) {
	graph := newFakeGraph()
	graph.link("seed", "weaklinked", 0.2, types.ConnAssociative)

	eng := engine.NewActivationEngine(graph, config.ActivationConfig{
		MaxHops: 3, MaxActivations: 50, StrengthFloor: 0.6, HopDecay: 0.8, Timeout: time.Second,
	})

	activated, err := eng.Spread(context.Background(), "proj", []storage.ScoredID{{ID: "seed", Score: 1.0}})
	require.NoError(t, err)

	for _, a := range activated {
		assert.NotEqual(t, "weaklinked", a.MemoryID, "edges below the strength floor must not be traversed")
	}
}

func TestActivationEngine_Classify_UsesCoreAndPeripheralThresholds(t *testing.T) {
	eng := engine.NewActivationEngine(newFakeGraph(), config.ActivationConfig{
		CoreThreshold: 0.5, PeripheralThreshold: 0.3,
	})

	class, ok := eng.Classify(0.7)
	require.True(t, ok)
	assert.Equal(t, types.ClassCore, class)

	class, ok = eng.Classify(0.4)
	require.True(t, ok)
	assert.Equal(t, types.ClassPeripheral, class)

	_, ok = eng.Classify(0.1)
	assert.False(t, ok, "activation below the peripheral floor must be dropped")
}
