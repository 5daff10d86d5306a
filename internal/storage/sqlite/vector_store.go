package sqlite

import (
	"context"
	"database/sql"
	"math"
	"sort"
	"sync"

	"github.com/cogmem/engram/internal/memerr"
	"github.com/cogmem/engram/internal/storage"
	"github.com/cogmem/engram/pkg/types"
)

// VectorStore keeps per-project, per-level collections of cognitive vectors
// in a dedicated table and an in-memory mirror for brute-force cosine
// search, since SQLite has no native vector type (§4.4). The mirror is
// rebuilt lazily per collection on first touch and kept in sync by
// Upsert/Delete.
type VectorStore struct {
	db *sql.DB

	mu   sync.RWMutex
	dims map[string]int // "projectID/level" -> dimension
	cols map[string]map[string][]float64 // "projectID/level" -> id -> vector
}

func NewVectorStore(db *sql.DB) *VectorStore {
	return &VectorStore{
		db:   db,
		dims: make(map[string]int),
		cols: make(map[string]map[string][]float64),
	}
}

func collectionKey(projectID string, level types.Level) string {
	return projectID + "/" + level.String()
}

func (v *VectorStore) EnsureCollection(ctx context.Context, projectID string, level types.Level, dim int) error {
	if _, err := v.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS vectors (
			project_id TEXT NOT NULL,
			level INTEGER NOT NULL,
			id TEXT NOT NULL,
			vector BLOB NOT NULL,
			PRIMARY KEY (project_id, level, id)
		)`); err != nil {
		return memerr.Wrap(memerr.Internal, "ensure vectors table", err)
	}

	key := collectionKey(projectID, level)
	v.mu.Lock()
	defer v.mu.Unlock()
	if existing, ok := v.dims[key]; ok {
		if existing != dim {
			return memerr.New(memerr.DimensionMismatch, "collection dimension mismatch").
				WithPayload("expected", existing, "got", dim)
		}
		return nil
	}
	v.dims[key] = dim
	if v.cols[key] == nil {
		v.cols[key] = make(map[string][]float64)
	}
	return v.loadCollectionLocked(ctx, projectID, level, key)
}

// loadCollectionLocked must be called with v.mu held.
func (v *VectorStore) loadCollectionLocked(ctx context.Context, projectID string, level types.Level, key string) error {
	rows, err := v.db.QueryContext(ctx, `SELECT id, vector FROM vectors WHERE project_id=? AND level=?`, projectID, int(level))
	if err != nil {
		return memerr.Wrap(memerr.Internal, "load vector collection", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return memerr.Wrap(memerr.Internal, "scan vector row", err)
		}
		v.cols[key][id] = decodeVector(blob)
	}
	return nil
}

func (v *VectorStore) Upsert(ctx context.Context, projectID string, level types.Level, id string, vector []float64) error {
	key := collectionKey(projectID, level)
	v.mu.Lock()
	if dim, ok := v.dims[key]; ok && dim != len(vector) {
		v.mu.Unlock()
		return memerr.New(memerr.DimensionMismatch, "vector dimension mismatch").
			WithPayload("expected", dim, "got", len(vector))
	}
	v.mu.Unlock()

	if _, err := v.db.ExecContext(ctx, `
		INSERT INTO vectors (project_id, level, id, vector) VALUES (?,?,?,?)
		ON CONFLICT(project_id, level, id) DO UPDATE SET vector=excluded.vector`,
		projectID, int(level), id, encodeVector(vector)); err != nil {
		return memerr.Wrap(memerr.Internal, "upsert vector", err)
	}

	v.mu.Lock()
	if v.cols[key] == nil {
		v.cols[key] = make(map[string][]float64)
	}
	v.cols[key][id] = vector
	if _, ok := v.dims[key]; !ok {
		v.dims[key] = len(vector)
	}
	v.mu.Unlock()
	return nil
}

func (v *VectorStore) Delete(ctx context.Context, projectID string, level types.Level, ids []string) error {
	key := collectionKey(projectID, level)
	for _, id := range ids {
		if _, err := v.db.ExecContext(ctx, `DELETE FROM vectors WHERE project_id=? AND level=? AND id=?`, projectID, int(level), id); err != nil {
			return memerr.Wrap(memerr.Internal, "delete vector", err)
		}
	}
	v.mu.Lock()
	if col, ok := v.cols[key]; ok {
		for _, id := range ids {
			delete(col, id)
		}
	}
	v.mu.Unlock()
	return nil
}

func cosine(a, b []float64) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func (v *VectorStore) Search(ctx context.Context, projectID string, level types.Level, query []float64, k int) ([]storage.ScoredID, error) {
	key := collectionKey(projectID, level)
	v.mu.RLock()
	col := v.cols[key]
	scored := make([]storage.ScoredID, 0, len(col))
	for id, vec := range col {
		scored = append(scored, storage.ScoredID{ID: id, Score: cosine(query, vec)})
	}
	v.mu.RUnlock()

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].ID < scored[j].ID
	})
	if k > 0 && k < len(scored) {
		scored = scored[:k]
	}
	return scored, nil
}

func (v *VectorStore) ListCollections(ctx context.Context, projectID string) ([]types.Level, error) {
	rows, err := v.db.QueryContext(ctx, `SELECT DISTINCT level FROM vectors WHERE project_id=?`, projectID)
	if err != nil {
		return nil, memerr.Wrap(memerr.Internal, "list vector collections", err)
	}
	defer rows.Close()
	var out []types.Level
	for rows.Next() {
		var lvl int
		if err := rows.Scan(&lvl); err != nil {
			return nil, memerr.Wrap(memerr.Internal, "scan collection level", err)
		}
		out = append(out, types.Level(lvl))
	}
	return out, nil
}
