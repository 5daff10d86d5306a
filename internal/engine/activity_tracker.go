package engine

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/cogmem/engram/internal/config"
	"github.com/cogmem/engram/internal/storage"
)

type activityCacheEntry struct {
	multiplier float64
	computedAt time.Time
}

// ActivityTracker scores a project's recent commit and access rate into one
// of three activity multipliers (high/normal/low, §4.13), caching the
// result for cfg.CacheTTL since every decay read would otherwise re-run the
// activity window query.
type ActivityTracker struct {
	memories storage.MemoryStore
	cfg      config.ActivityConfig

	cache *lru.Cache[string, activityCacheEntry]
}

func NewActivityTracker(memories storage.MemoryStore, cfg config.ActivityConfig) *ActivityTracker {
	size := 256
	cache, _ := lru.New[string, activityCacheEntry](size)
	return &ActivityTracker{memories: memories, cfg: cfg, cache: cache}
}

// ActivityMultiplier returns the cached or freshly computed multiplier for
// projectID.
func (a *ActivityTracker) ActivityMultiplier(ctx context.Context, projectID string) (float64, error) {
	if entry, ok := a.cache.Get(projectID); ok {
		if time.Since(entry.computedAt) < a.cfg.CacheTTL {
			return entry.multiplier, nil
		}
	}

	commitCount, accessCount, err := a.memories.QueryActivityWindow(ctx, projectID, a.cfg.Window)
	if err != nil {
		return a.cfg.NormalMultiplier, err
	}

	mult := a.classify(commitCount, accessCount)
	a.cache.Add(projectID, activityCacheEntry{multiplier: mult, computedAt: time.Now()})
	return mult, nil
}

// classify buckets combined commit+access activity over the window into
// high/normal/low. The thresholds are deliberately coarse: activity
// tracking only needs to pick among three decay-rate regimes, not produce a
// precise rate.
func (a *ActivityTracker) classify(commitCount, accessCount int) float64 {
	total := commitCount + accessCount
	switch {
	case total >= 20:
		return a.cfg.HighMultiplier
	case total >= 3:
		return a.cfg.NormalMultiplier
	default:
		return a.cfg.LowMultiplier
	}
}

// Invalidate drops the cached multiplier for projectID, used after a batch
// ingestion or access burst so the next decay read reflects it immediately.
func (a *ActivityTracker) Invalidate(projectID string) {
	a.cache.Remove(projectID)
}
