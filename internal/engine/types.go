// Package engine implements the cognitive retrieval pipeline: decay and
// consolidation (DualMemoryStore), activation spreading (ActivationEngine),
// serendipitous bridge discovery (BridgeDiscovery), their composition
// (RetrievalCoordinator), and commit/access rate tracking (ActivityTracker).
package engine

import (
	"errors"
	"time"
)

// ErrGraphBoundsExceeded is returned by BoundsChecker.CanContinue when a
// GraphBounds limit is hit; Spread ends the traversal there and returns what
// it has reached rather than the error.
var ErrGraphBoundsExceeded = errors.New("engine: graph bounds exceeded")

// ActivatedMemory is one result of ActivationEngine.Spread: a memory id
// reached during BFS, the maximum activation any path delivered to it, and
// the hop distance of that path (0 for seeds).
type ActivatedMemory struct {
	MemoryID    string
	Activation  float64
	HopDistance int
}

// BoundsChecker enforces GraphBounds during a single traversal call,
// tracking nodes visited, depth, and elapsed time so BFS never runs
// unbounded over a large connection graph.
type BoundsChecker struct {
	maxActivations int
	maxHops        int
	timeout        time.Duration
	startTime      time.Time
	visited        int
}

func NewBoundsChecker(maxActivations, maxHops int, timeout time.Duration) *BoundsChecker {
	return &BoundsChecker{maxActivations: maxActivations, maxHops: maxHops, timeout: timeout, startTime: time.Now()}
}

func (b *BoundsChecker) CanContinue(depth int) error {
	if b.visited >= b.maxActivations {
		return ErrGraphBoundsExceeded
	}
	if depth > b.maxHops {
		return ErrGraphBoundsExceeded
	}
	if time.Since(b.startTime) >= b.timeout {
		return ErrGraphBoundsExceeded
	}
	return nil
}

func (b *BoundsChecker) RecordVisit() { b.visited++ }
