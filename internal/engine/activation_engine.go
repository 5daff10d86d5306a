package engine

import (
	"context"
	"sort"

	"github.com/cogmem/engram/internal/config"
	"github.com/cogmem/engram/internal/storage"
	"github.com/cogmem/engram/pkg/types"
)

// ActivationEngine seeds activation from an initial vector search and
// spreads it through the connection graph via bounded BFS (§4.8). Each hop
// attenuates activation by the traversed edge's strength and by HopDecay, so
// activation decays with both distance and weak connections.
type ActivationEngine struct {
	graph storage.ConnectionGraph
	cfg   config.ActivationConfig
}

func NewActivationEngine(graph storage.ConnectionGraph, cfg config.ActivationConfig) *ActivationEngine {
	return &ActivationEngine{graph: graph, cfg: cfg}
}

// Spread seeds each of the seeds (the vector search's top-k matches) with its
// cosine score mapped onto [0,1] as (score+1)/2, and spreads it outward
// through typed edges, bounded by
// ActivationConfig. Returns every memory touched, including the seeds
// themselves, deduplicated with the maximum activation any path delivered.
func (a *ActivationEngine) Spread(ctx context.Context, projectID string, seeds []storage.ScoredID) ([]ActivatedMemory, error) {
	bounds := storage.GraphBounds{
		MaxHops:        a.cfg.MaxHops,
		MaxActivations: a.cfg.MaxActivations,
		StrengthFloor:  a.cfg.StrengthFloor,
		Timeout:        a.cfg.Timeout,
	}
	bounds.Normalize()
	checker := NewBoundsChecker(bounds.MaxActivations, bounds.MaxHops, bounds.Timeout)

	type queueItem struct {
		id         string
		activation float64
		depth      int
	}

	best := make(map[string]float64)
	depthByID := make(map[string]int)
	queue := make([]queueItem, 0, len(seeds))
	for _, s := range seeds {
		seedActivation := normalizeScore(s.Score)
		if existing, ok := best[s.ID]; !ok || seedActivation > existing {
			best[s.ID] = seedActivation
		}
		queue = append(queue, queueItem{id: s.ID, activation: seedActivation, depth: 0})
	}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		if err := checker.CanContinue(current.depth); err != nil {
			break
		}
		checker.RecordVisit()

		if current.depth >= bounds.MaxHops {
			continue
		}

		neighbors, err := a.graph.GetNeighbors(ctx, projectID, current.id, bounds.StrengthFloor, bounds.TypeFilter)
		if err != nil {
			continue // prune only this branch
		}
		for _, n := range neighbors {
			contribution := current.activation * n.Strength * a.cfg.HopDecay
			if existing, ok := best[n.TargetID]; ok && existing >= contribution {
				continue
			}
			best[n.TargetID] = contribution
			depthByID[n.TargetID] = current.depth + 1
			queue = append(queue, queueItem{id: n.TargetID, activation: contribution, depth: current.depth + 1})
			_ = a.graph.BumpActivation(ctx, projectID, current.id, n.TargetID)
		}
	}

	out := make([]ActivatedMemory, 0, len(best))
	for id, act := range best {
		out = append(out, ActivatedMemory{MemoryID: id, Activation: act, HopDistance: depthByID[id]})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Activation > out[j].Activation })
	return out, nil
}

func normalizeScore(cosineScore float64) float64 {
	// cosine similarity is in [-1,1]; activation is [0,1].
	v := (cosineScore + 1) / 2
	return clamp01(v)
}

// Classify buckets an activation value into core or peripheral, and reports
// false when the activation falls below PeripheralThreshold and should be
// dropped rather than surfaced at all. Bridge classification is assigned
// separately by BridgeDiscovery, which can still surface a dropped memory
// through its own novelty/connection-potential scoring.
func (a *ActivationEngine) Classify(activation float64) (types.RetrievalClass, bool) {
	if activation >= a.cfg.CoreThreshold {
		return types.ClassCore, true
	}
	if activation >= a.cfg.PeripheralThreshold {
		return types.ClassPeripheral, true
	}
	return "", false
}
