package engine

import (
	"context"
	"math"
	"time"

	"github.com/cogmem/engram/internal/config"
	"github.com/cogmem/engram/internal/storage"
	"github.com/cogmem/engram/pkg/types"
)

// ActivityRater supplies the dual-timescale decay's activity multiplier,
// implemented by ActivityTracker. A separate interface keeps DualMemoryStore
// testable without wiring a full tracker.
type ActivityRater interface {
	ActivityMultiplier(ctx context.Context, projectID string) (float64, error)
}

// DualMemoryStore computes effective strength under the dual-timescale
// decay model (§4.7) and promotes frequently-revisited episodic memories to
// semantic. It does not own storage; it reads and writes through
// storage.MemoryStore.
type DualMemoryStore struct {
	memories storage.MemoryStore
	graph    storage.ConnectionGraph
	activity ActivityRater
	cfg      config.DecayConfig
}

func NewDualMemoryStore(memories storage.MemoryStore, graph storage.ConnectionGraph, activity ActivityRater, cfg config.DecayConfig) *DualMemoryStore {
	return &DualMemoryStore{memories: memories, graph: graph, activity: activity, cfg: cfg}
}

// EffectiveStrength computes a memory's current strength without mutating
// it: importance_floor + base_strength * exp(-effective_rate * elapsed_hours/24),
// clamped to [0,1]. base_strength is the memory's Importance, the value set
// at creation/consolidation time; DecayRate stores the per-memory override
// of the base rate (falls back to the kind's configured base rate when zero).
func (d *DualMemoryStore) EffectiveStrength(ctx context.Context, m *types.Memory, activityMultiplier float64) float64 {
	baseRate := m.DecayRate
	if baseRate == 0 {
		if m.Kind == types.KindSemantic {
			baseRate = d.cfg.SemanticBaseRate
		} else {
			baseRate = d.cfg.EpisodicBaseRate
		}
	}
	profileMultiplier := m.ContentProfileMultiplier(types.DefaultContentProfileMultipliers, types.DefaultLevelMultipliers)
	effectiveRate := baseRate * activityMultiplier * profileMultiplier

	elapsedHours := time.Since(m.CreatedAt).Hours()
	decayed := m.Importance * math.Exp(-effectiveRate*elapsedHours/24.0)
	strength := d.cfg.ImportanceFloor + decayed
	return clamp01(strength)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// RefreshStrength recomputes and attaches Strength on m without persisting
// it, since Strength is never a column of truth (§3).
func (d *DualMemoryStore) RefreshStrength(ctx context.Context, projectID string, m *types.Memory) (*types.Memory, error) {
	mult := 1.0
	if d.activity != nil {
		var err error
		mult, err = d.activity.ActivityMultiplier(ctx, projectID)
		if err != nil {
			mult = 1.0
		}
	}
	m.Strength = d.EffectiveStrength(ctx, m, mult)
	return m, nil
}

// ConsolidationCandidate reports whether an episodic memory qualifies for
// promotion to semantic: its effective strength is at or above the
// configured threshold and it has been accessed at least 3 times.
func (d *DualMemoryStore) ConsolidationCandidate(ctx context.Context, projectID string, m *types.Memory) (bool, error) {
	if m.Kind != types.KindEpisodic {
		return false, nil
	}
	refreshed, err := d.RefreshStrength(ctx, projectID, m)
	if err != nil {
		return false, err
	}
	return refreshed.Strength >= d.cfg.ConsolidationThreshold && m.AccessCount >= 3, nil
}

// Consolidate promotes m from episodic to semantic: its Kind flips and its
// DecayRate is reset to pick up the (much slower) semantic base rate on
// subsequent reads. The memory keeps its id, content, vector, and edges.
func (d *DualMemoryStore) Consolidate(ctx context.Context, m *types.Memory) error {
	m.Kind = types.KindSemantic
	m.DecayRate = 0
	return d.memories.UpdateMemory(ctx, m)
}

// ConsolidateDue scans a project's episodic memories and consolidates every
// candidate, returning the ids promoted.
func (d *DualMemoryStore) ConsolidateDue(ctx context.Context, projectID string) ([]string, error) {
	episodic := types.KindEpisodic
	page := 1
	var promoted []string
	for {
		result, err := d.memories.List(ctx, storage.ListOptions{ProjectID: projectID, Kind: &episodic, Page: page, Limit: 200})
		if err != nil {
			return promoted, err
		}
		for i := range result.Items {
			m := &result.Items[i]
			ok, err := d.ConsolidationCandidate(ctx, projectID, m)
			if err != nil {
				continue
			}
			if ok {
				if err := d.Consolidate(ctx, m); err == nil {
					promoted = append(promoted, m.ID)
				}
			}
		}
		if !result.HasMore {
			break
		}
		page++
	}
	return promoted, nil
}

// Expired reports whether m's effective strength has decayed below the
// importance floor plus a negligible epsilon, meaning it carries no signal
// beyond the floor. It only reports: nothing in this package deletes the
// memory.
func (d *DualMemoryStore) Expired(ctx context.Context, projectID string, m *types.Memory) (bool, error) {
	refreshed, err := d.RefreshStrength(ctx, projectID, m)
	if err != nil {
		return false, err
	}
	return refreshed.Strength <= d.cfg.ImportanceFloor+1e-6, nil
}
