package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"math"
	"time"

	"github.com/cogmem/engram/internal/config"
	"github.com/cogmem/engram/internal/storage"
	"github.com/cogmem/engram/pkg/types"
)

// BridgeResult is one candidate BridgeDiscovery surfaced: a memory that was
// not reached by activation spreading but scores high enough on novelty and
// connection potential to be worth surfacing anyway (§4.9).
type BridgeResult struct {
	MemoryID            string
	BridgeScore         float64
	Novelty             float64
	ConnectionPotential float64
}

// BridgeDiscovery finds serendipitous connections: candidates distant from
// the query (high novelty) that nonetheless sit near the activated core set
// in the connection graph (high connection potential). Scores are cached
// per (query fingerprint, memory id) since the same query against a stable
// graph always yields the same score.
type BridgeDiscovery struct {
	vectors storage.VectorStore
	graph   storage.ConnectionGraph
	cache   storage.BridgeCacheStore
	cfg     config.BridgeConfig
}

func NewBridgeDiscovery(vectors storage.VectorStore, graph storage.ConnectionGraph, cache storage.BridgeCacheStore, cfg config.BridgeConfig) *BridgeDiscovery {
	return &BridgeDiscovery{vectors: vectors, graph: graph, cache: cache, cfg: cfg}
}

// Fingerprint derives a stable cache key for a query vector.
func Fingerprint(query []float64) string {
	h := sha256.New()
	buf := make([]byte, 8)
	for _, f := range query {
		bits := math.Float64bits(f)
		for i := 0; i < 8; i++ {
			buf[i] = byte(bits >> (8 * i))
		}
		h.Write(buf)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Discover scans a candidate pool (memories outside the activated core set,
// already fetched by the caller via a wider vector search) and returns those
// whose bridge score clears the configured minimum.
func (b *BridgeDiscovery) Discover(ctx context.Context, projectID string, level types.Level, query []float64, candidates []storage.ScoredID, coreIDs map[string]bool) ([]BridgeResult, error) {
	fp := Fingerprint(query)
	var results []BridgeResult

	for _, c := range candidates {
		if coreIDs[c.ID] {
			continue
		}
		if cached, ok := b.cache.Get(fp, c.ID); ok {
			if cached.BridgeScore >= b.cfg.MinBridgeScore {
				results = append(results, BridgeResult{
					MemoryID: c.ID, BridgeScore: cached.BridgeScore,
					Novelty: cached.Novelty, ConnectionPotential: cached.ConnectionPotential,
				})
			}
			continue
		}

		novelty := clamp01(1 - normalizeScore(c.Score))
		potential, err := b.connectionPotential(ctx, projectID, c.ID, coreIDs)
		if err != nil {
			return nil, err
		}
		score := novelty*b.cfg.NoveltyWeight + potential*b.cfg.ConnectionPotentialWeight

		b.cache.Put(&types.BridgeCacheEntry{
			QueryFingerprint: fp, MemoryID: c.ID, BridgeScore: score,
			Novelty: novelty, ConnectionPotential: potential, CreatedAt: time.Now().UTC(),
		})

		if score >= b.cfg.MinBridgeScore {
			results = append(results, BridgeResult{MemoryID: c.ID, BridgeScore: score, Novelty: novelty, ConnectionPotential: potential})
		}
	}
	return results, nil
}

// connectionPotential is the strongest edge a candidate has into the
// activated core set, a cheap proxy for "how connected is this to what the
// query already surfaced" without a second full BFS per candidate.
func (b *BridgeDiscovery) connectionPotential(ctx context.Context, projectID, candidateID string, coreIDs map[string]bool) (float64, error) {
	neighbors, err := b.graph.GetNeighbors(ctx, projectID, candidateID, 0, nil)
	if err != nil {
		return 0, err
	}
	var best float64
	for _, n := range neighbors {
		if coreIDs[n.TargetID] && n.Strength > best {
			best = n.Strength
		}
	}
	return best, nil
}
