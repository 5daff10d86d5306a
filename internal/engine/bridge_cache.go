package engine

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/cogmem/engram/pkg/types"
)

// BridgeCache is an in-process LRU+TTL cache of BridgeDiscovery results,
// satisfying storage.BridgeCacheStore. A durable backend may also persist
// entries (the bridge_cache table exists for that), but repeated retrieval
// calls within a session hit this cache first.
type BridgeCache struct {
	cache *lru.Cache[string, types.BridgeCacheEntry]
	ttl   time.Duration
}

func NewBridgeCache(size int, ttl time.Duration) *BridgeCache {
	if size <= 0 {
		size = 1000
	}
	c, _ := lru.New[string, types.BridgeCacheEntry](size)
	return &BridgeCache{cache: c, ttl: ttl}
}

func cacheKey(queryFingerprint, memoryID string) string {
	return queryFingerprint + "::" + memoryID
}

func (b *BridgeCache) Get(queryFingerprint, memoryID string) (*types.BridgeCacheEntry, bool) {
	entry, ok := b.cache.Get(cacheKey(queryFingerprint, memoryID))
	if !ok {
		return nil, false
	}
	if time.Since(entry.CreatedAt) > b.ttl {
		b.cache.Remove(cacheKey(queryFingerprint, memoryID))
		return nil, false
	}
	return &entry, true
}

func (b *BridgeCache) Put(entry *types.BridgeCacheEntry) {
	b.cache.Add(cacheKey(entry.QueryFingerprint, entry.MemoryID), *entry)
}
