package engine

import (
	"context"
	"time"

	"github.com/cogmem/engram/internal/cognitive"
	"github.com/cogmem/engram/internal/config"
	"github.com/cogmem/engram/internal/storage"
	"github.com/cogmem/engram/pkg/types"
)

// RetrievalResult is one memory returned by RetrievalCoordinator.Retrieve,
// classified and scored.
type RetrievalResult struct {
	Memory *types.Memory
	Class  types.RetrievalClass
	Score  float64
}

// RetrievalStats carries per-phase timings, surfaced by the System Facade's
// retrieve_memories response for observability.
type RetrievalStats struct {
	EncodeDuration     time.Duration
	SeedSearchDuration time.Duration
	SpreadDuration     time.Duration
	BridgeDuration     time.Duration
	TotalDuration      time.Duration
}

// RetrievalCoordinator composes encoding, seed search, activation
// spreading, and bridge discovery into one retrieval call (§4.10), records
// the access event for every result, and attaches the recomputed strength.
type RetrievalCoordinator struct {
	encoder    *cognitive.CognitiveEncoder
	vectors    storage.VectorStore
	memories   storage.MemoryStore
	activation *ActivationEngine
	bridge     *BridgeDiscovery
	decay      *DualMemoryStore
	cfg        config.ActivationConfig
}

func NewRetrievalCoordinator(
	encoder *cognitive.CognitiveEncoder,
	vectors storage.VectorStore,
	memories storage.MemoryStore,
	activation *ActivationEngine,
	bridge *BridgeDiscovery,
	decay *DualMemoryStore,
	cfg config.ActivationConfig,
) *RetrievalCoordinator {
	return &RetrievalCoordinator{
		encoder: encoder, vectors: vectors, memories: memories,
		activation: activation, bridge: bridge, decay: decay, cfg: cfg,
	}
}

// seedCascade returns the levels tried in order, each paired with the
// minimum cosine score a candidate must clear to be kept as a seed, per
// §4.8 step 1: L0 at ActivationThreshold, falling back to L1 and L2 at
// progressively lower thresholds when the higher level yields nothing.
func (r *RetrievalCoordinator) seedCascade() []struct {
	level     types.Level
	threshold float64
} {
	return []struct {
		level     types.Level
		threshold float64
	}{
		{types.LevelConcept, r.cfg.ActivationThreshold},
		{types.LevelContext, r.cfg.ActivationThreshold - 0.1},
		{types.LevelEpisode, r.cfg.ActivationThreshold - 0.2},
	}
}

// Retrieve encodes query, seeds via the L0->L1->L2 cascade, spreads
// activation through the graph, finds bridges among the runner-up
// candidates, and returns everything classified and access-recorded.
func (r *RetrievalCoordinator) Retrieve(ctx context.Context, projectID string, query string, limit int) ([]RetrievalResult, RetrievalStats, error) {
	var stats RetrievalStats
	start := time.Now()

	t0 := time.Now()
	vector, _, err := r.encoder.Encode(ctx, query)
	if err != nil {
		return nil, stats, err
	}
	stats.EncodeDuration = time.Since(t0)

	t1 := time.Now()
	var seeds []storage.ScoredID
	var level types.Level
	for _, step := range r.seedCascade() {
		candidates, err := r.vectors.Search(ctx, projectID, step.level, vector, r.cfg.SeedCount)
		if err != nil {
			break // a seeding failure leaves activation empty rather than failing the call
		}
		var kept []storage.ScoredID
		for _, c := range candidates {
			if c.Score >= step.threshold {
				kept = append(kept, c)
			}
		}
		if len(kept) > 0 {
			seeds, level = kept, step.level
			break
		}
	}
	stats.SeedSearchDuration = time.Since(t1)

	t2 := time.Now()
	activated, err := r.activation.Spread(ctx, projectID, seeds)
	if err != nil {
		return nil, stats, err
	}
	stats.SpreadDuration = time.Since(t2)

	coreIDs := make(map[string]bool, len(activated))
	for _, a := range activated {
		if class, ok := r.activation.Classify(a.Activation); ok && class == types.ClassCore {
			coreIDs[a.MemoryID] = true
		}
	}

	t3 := time.Now()
	wideCandidates, err := r.vectors.Search(ctx, projectID, level, vector, limit*4)
	if err != nil {
		return nil, stats, err
	}
	bridges, err := r.bridge.Discover(ctx, projectID, level, vector, wideCandidates, coreIDs)
	if err != nil {
		return nil, stats, err
	}
	stats.BridgeDuration = time.Since(t3)

	results := make([]RetrievalResult, 0, len(activated)+len(bridges))
	seen := make(map[string]bool)

	for _, a := range activated {
		class, ok := r.activation.Classify(a.Activation)
		if !ok {
			continue
		}
		m, err := r.memories.GetMemory(ctx, projectID, a.MemoryID)
		if err != nil {
			continue
		}
		m, _ = r.decay.RefreshStrength(ctx, projectID, m)
		results = append(results, RetrievalResult{Memory: m, Class: class, Score: a.Activation})
		seen[a.MemoryID] = true
		_ = r.memories.RecordAccess(ctx, projectID, a.MemoryID, class)
	}

	for _, b := range bridges {
		if seen[b.MemoryID] {
			continue
		}
		m, err := r.memories.GetMemory(ctx, projectID, b.MemoryID)
		if err != nil {
			continue
		}
		m, _ = r.decay.RefreshStrength(ctx, projectID, m)
		results = append(results, RetrievalResult{Memory: m, Class: types.ClassBridge, Score: b.BridgeScore})
		seen[b.MemoryID] = true
		_ = r.memories.RecordAccess(ctx, projectID, b.MemoryID, types.ClassBridge)
	}

	if limit > 0 {
		perClass := make(map[types.RetrievalClass]int)
		kept := results[:0]
		for _, res := range results {
			if perClass[res.Class] < limit {
				perClass[res.Class]++
				kept = append(kept, res)
			}
		}
		results = kept
	}

	stats.TotalDuration = time.Since(start)
	return results, stats, nil
}
