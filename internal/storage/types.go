// Package storage defines the composable storage interfaces for the
// cognitive memory engine: MemoryStore, VectorStore, ConnectionGraph.
// Small, focused interfaces following the Interface Segregation Principle,
// so SQLite and Postgres backends can each implement only what they need.
package storage

import (
	"time"

	"github.com/cogmem/engram/pkg/types"
)

// ListOptions provides pagination and filtering for MemoryStore.List.
type ListOptions struct {
	Page     int
	Limit    int
	SortBy   string
	SortOrder string

	ProjectID string
	Level     *types.Level
	Kind      *types.Kind
	Tags      []string
	SourcePath string

	IncludeDeleted bool
}

// Normalize applies defaults and whitelists SortBy to prevent SQL injection.
func (o *ListOptions) Normalize() {
	allowed := map[string]bool{
		"created_at":       true,
		"last_accessed_at": true,
		"access_count":     true,
		"id":               true,
	}
	if !allowed[o.SortBy] {
		o.SortBy = "created_at"
	}
	if o.SortOrder != "asc" && o.SortOrder != "desc" {
		o.SortOrder = "desc"
	}
	if o.Page < 1 {
		o.Page = 1
	}
	if o.Limit < 1 {
		o.Limit = 10
	}
	if o.Limit > 500 {
		o.Limit = 500
	}
}

// Offset calculates the SQL OFFSET from Page and Limit.
func (o *ListOptions) Offset() int {
	return (o.Page - 1) * o.Limit
}

// PaginatedResult is a generic page of results with a total count.
type PaginatedResult[T any] struct {
	Items    []T
	Total    int
	Page     int
	PageSize int
	HasMore  bool
}

// SearchOptions bounds a search query (§4.4).
type SearchOptions struct {
	ProjectID string
	Level     *types.Level
	Limit     int
	MinScore  float64
	Tags      []string
}

// Normalize applies defaults and caps.
func (o *SearchOptions) Normalize() {
	if o.Limit < 1 {
		o.Limit = 10
	}
	if o.Limit > 200 {
		o.Limit = 200
	}
	if o.MinScore < 0 {
		o.MinScore = 0
	}
	if o.MinScore > 1 {
		o.MinScore = 1
	}
}

// GraphBounds prevents combinatorial explosion during connection-graph BFS
// (ActivationEngine's spread phase, §4.8).
type GraphBounds struct {
	MaxHops         int
	MaxActivations  int
	StrengthFloor   float64
	TypeFilter      []types.ConnectionType
	Timeout         time.Duration
}

// Normalize applies the spec's §6.4 defaults and sane caps.
func (g *GraphBounds) Normalize() {
	if g.MaxHops < 1 {
		g.MaxHops = 3
	}
	if g.MaxHops > 10 {
		g.MaxHops = 10
	}
	if g.MaxActivations < 1 {
		g.MaxActivations = 50
	}
	if g.MaxActivations > 2000 {
		g.MaxActivations = 2000
	}
	if g.StrengthFloor <= 0 {
		g.StrengthFloor = 0.6
	}
	if g.Timeout == 0 {
		g.Timeout = 30 * time.Second
	}
}

// TraversalHop is one node visited by ConnectionGraph BFS, with the hop
// distance and the activation contribution at which it was reached.
type TraversalHop struct {
	MemoryID    string
	HopDistance int
	Activation  float64
	Via         types.ConnectionType
}
