package types

import "time"

// Connection is a directed, typed, weighted edge between two memory ids.
// Self-edges (SourceID == TargetID) are forbidden; Strength is in (0,1].
type Connection struct {
	ProjectID string        `json:"project_id"`
	SourceID string         `json:"source_id"`
	TargetID string         `json:"target_id"`
	Type     ConnectionType `json:"type"`
	Strength float64        `json:"strength"`

	CreatedAt       time.Time `json:"created_at"`
	LastActivatedAt time.Time `json:"last_activated_at"`
	ActivationCount int       `json:"activation_count"`
}

// Neighbor is one row of a get_neighbors(id, min_strength) result.
type Neighbor struct {
	TargetID string
	Type     ConnectionType
	Strength float64
}

// AccessEvent is an append-only record of a single retrieval touching a
// memory, used both to bump access bookkeeping and to feed ActivityTracker.
type AccessEvent struct {
	MemoryID       string         `json:"memory_id"`
	At             time.Time      `json:"at"`
	RetrievalClass RetrievalClass `json:"retrieval_class"`
}

// BridgeCacheEntry is a cached BridgeDiscovery result for a given
// (query_fingerprint, memory_id) pair.
type BridgeCacheEntry struct {
	QueryFingerprint    string    `json:"query_fingerprint"`
	MemoryID            string    `json:"memory_id"`
	BridgeScore         float64   `json:"bridge_score"`
	Novelty             float64   `json:"novelty"`
	ConnectionPotential float64   `json:"connection_potential"`
	CreatedAt           time.Time `json:"created_at"`
}
