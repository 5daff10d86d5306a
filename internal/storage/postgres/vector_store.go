package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/pgvector/pgvector-go"

	"github.com/cogmem/engram/internal/memerr"
	"github.com/cogmem/engram/internal/storage"
	"github.com/cogmem/engram/pkg/types"
)

// VectorStore keeps per-project, per-level pgvector collections, pushing
// cosine similarity search down to the database via an ivfflat index
// instead of mirroring vectors in process memory the way the SQLite
// backend must (§4.4). One table per level is created lazily since
// pgvector's column type is fixed-dimension.
type VectorStore struct {
	db *sql.DB

	mu    sync.Mutex
	dims  map[string]int // "projectID/level" -> dimension
	table map[types.Level]bool
}

func NewVectorStore(db *sql.DB) *VectorStore {
	return &VectorStore{db: db, dims: make(map[string]int), table: make(map[types.Level]bool)}
}

func collectionKey(projectID string, level types.Level) string {
	return projectID + "/" + level.String()
}

func vectorTableName(level types.Level) string {
	return "vectors_" + level.String()
}

func (v *VectorStore) EnsureCollection(ctx context.Context, projectID string, level types.Level, dim int) error {
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

	if !v.table[level] {
		stmt := fmt.Sprintf(vectorTableStmt, level.String(), dim)
		if _, err := v.db.ExecContext(ctx, stmt); err != nil {
			return memerr.Wrap(memerr.Internal, "ensure vector table", err)
		}
		idx := fmt.Sprintf(
			"CREATE INDEX IF NOT EXISTS idx_vectors_%s_cosine ON vectors_%s USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100)",
			level.String(), level.String())
		if _, err := v.db.ExecContext(ctx, idx); err != nil {
			return memerr.Wrap(memerr.Internal, "create vector index", err)
		}
		v.table[level] = true
	}
	v.dims[key] = dim
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

	vec := pgvector.NewVector(toFloat32(vector))
	table := vectorTableName(level)
	_, err := v.db.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (project_id, id, embedding) VALUES ($1,$2,$3)
		ON CONFLICT (project_id, id) DO UPDATE SET embedding=excluded.embedding`, table),
		projectID, id, vec)
	if err != nil {
		return memerr.Wrap(memerr.Internal, "upsert vector", err)
	}
	return nil
}

func (v *VectorStore) Delete(ctx context.Context, projectID string, level types.Level, ids []string) error {
	table := vectorTableName(level)
	for _, id := range ids {
		if _, err := v.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE project_id=$1 AND id=$2`, table), projectID, id); err != nil {
			return memerr.Wrap(memerr.Internal, "delete vector", err)
		}
	}
	return nil
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = float32(f)
	}
	return out
}

func (v *VectorStore) Search(ctx context.Context, projectID string, level types.Level, query []float64, k int) ([]storage.ScoredID, error) {
	table := vectorTableName(level)
	vec := pgvector.NewVector(toFloat32(query))
	rows, err := v.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, 1 - (embedding <=> $1) AS score FROM %s WHERE project_id=$2
		ORDER BY embedding <=> $1 ASC, id ASC
		LIMIT $3`, table),
		vec, projectID, k)
	if err != nil {
		return nil, memerr.Wrap(memerr.Internal, "search vectors", err)
	}
	defer rows.Close()

	var out []storage.ScoredID
	for rows.Next() {
		var s storage.ScoredID
		if err := rows.Scan(&s.ID, &s.Score); err != nil {
			return nil, memerr.Wrap(memerr.Internal, "scan search result", err)
		}
		out = append(out, s)
	}
	return out, nil
}

func (v *VectorStore) ListCollections(ctx context.Context, projectID string) ([]types.Level, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	var out []types.Level
	for lvl := range v.table {
		var n int
		table := vectorTableName(lvl)
		err := v.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE project_id=$1`, table), projectID).Scan(&n)
		if err != nil {
			return nil, memerr.Wrap(memerr.Internal, "count collection rows", err)
		}
		if n > 0 {
			out = append(out, lvl)
		}
	}
	return out, nil
}
