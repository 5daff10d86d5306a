package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/cogmem/engram/internal/memerr"
	"github.com/cogmem/engram/internal/storage"
	"github.com/cogmem/engram/pkg/types"
)

// Store is the SQLite-backed MemoryStore + ConnectionGraph for one project
// namespace's metadata.db file (§6.2). The sibling VectorStore shares the
// same *sql.DB handle through DB(), matching the teacher's
// single-file-per-project pattern.
type Store struct {
	db *sql.DB
}

// Open opens (creating if absent) the SQLite database at path and applies
// the schema idempotently.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, memerr.Wrap(memerr.StoreUnavailable, "open sqlite database", err)
	}
	db.SetMaxOpenConns(1) // single-writer, many-reader per §4.5; serialize via one conn
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, memerr.Wrap(memerr.Internal, "apply sqlite schema", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying handle so a sibling VectorStore can share it.
func (s *Store) DB() *sql.DB { return s.db }

func encodeVector(v []float64) []byte {
	buf := make([]byte, 8*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(f))
	}
	return buf
}

func decodeVector(b []byte) []float64 {
	v := make([]float64, len(b)/8)
	for i := range v {
		v[i] = math.Float64frombits(binary.LittleEndian.Uint64(b[i*8:]))
	}
	return v
}

func marshalJSON(v any) string {
	b, _ := json.Marshal(v)
	return string(b)
}

// CreateMemory inserts a new memory row, validating parent level ordering.
func (s *Store) CreateMemory(ctx context.Context, m *types.Memory) error {
	if !m.Level.Valid() {
		return memerr.New(memerr.LevelOutOfRange, "level must be 0, 1, or 2")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return memerr.Wrap(memerr.StoreUnavailable, "begin tx", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT 1 FROM memories WHERE id = ? AND project_id = ?`, m.ID, m.ProjectID).Scan(&exists); err == nil {
		return memerr.New(memerr.DuplicateID, m.ID)
	} else if err != sql.ErrNoRows {
		return memerr.Wrap(memerr.StoreUnavailable, "check duplicate id", err)
	}

	if m.ParentID != "" {
		var parentLevel int
		err := tx.QueryRowContext(ctx, `SELECT level FROM memories WHERE id = ? AND project_id = ?`, m.ParentID, m.ProjectID).Scan(&parentLevel)
		if err == sql.ErrNoRows {
			return memerr.New(memerr.InvalidParent, "parent does not exist")
		} else if err != nil {
			return memerr.Wrap(memerr.StoreUnavailable, "lookup parent", err)
		}
		if types.Level(parentLevel) >= m.Level {
			return memerr.New(memerr.InvalidParent, "parent must have a strictly lower level")
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO memories (id, project_id, level, kind, content, cognitive_vector, dimensions,
			created_at, last_accessed_at, access_count, importance, decay_rate, parent_id, tags,
			source_path, payload)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		m.ID, m.ProjectID, int(m.Level), string(m.Kind), m.Content, encodeVector(m.CognitiveVector),
		marshalJSON(m.Dimensions), m.CreatedAt, m.LastAccessedAt, m.AccessCount, m.Importance,
		m.DecayRate, nullable(m.ParentID), marshalJSON(m.Tags), nullable(m.SourcePath), marshalJSON(m.Payload))
	if err != nil {
		return memerr.Wrap(memerr.Internal, "insert memory", err)
	}
	return tx.Commit()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func (s *Store) scanMemory(row interface {
	Scan(dest ...any) error
}) (*types.Memory, error) {
	var m types.Memory
	var level int
	var kind, dimsJSON, tagsJSON, payloadJSON string
	var vecBlob []byte
	var parentID, sourcePath sql.NullString
	var deletedAt sql.NullTime

	if err := row.Scan(&m.ID, &m.ProjectID, &level, &kind, &m.Content, &vecBlob, &dimsJSON,
		&m.CreatedAt, &m.LastAccessedAt, &m.AccessCount, &m.Importance, &m.DecayRate,
		&parentID, &tagsJSON, &sourcePath, &payloadJSON, &deletedAt); err != nil {
		return nil, err
	}
	m.Level = types.Level(level)
	m.Kind = types.Kind(kind)
	m.CognitiveVector = decodeVector(vecBlob)
	_ = json.Unmarshal([]byte(dimsJSON), &m.Dimensions)
	_ = json.Unmarshal([]byte(tagsJSON), &m.Tags)
	_ = json.Unmarshal([]byte(payloadJSON), &m.Payload)
	m.ParentID = parentID.String
	m.SourcePath = sourcePath.String
	if deletedAt.Valid {
		t := deletedAt.Time
		m.DeletedAt = &t
	}
	return &m, nil
}

const memoryColumns = `id, project_id, level, kind, content, cognitive_vector, dimensions,
	created_at, last_accessed_at, access_count, importance, decay_rate, parent_id, tags,
	source_path, payload, deleted_at`

func (s *Store) GetMemory(ctx context.Context, projectID, id string) (*types.Memory, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+memoryColumns+` FROM memories WHERE project_id = ? AND id = ? AND deleted_at IS NULL`, projectID, id)
	m, err := s.scanMemory(row)
	if err == sql.ErrNoRows {
		return nil, memerr.New(memerr.NotFound, id)
	} else if err != nil {
		return nil, memerr.Wrap(memerr.Internal, "scan memory", err)
	}
	return m, nil
}

func (s *Store) UpdateMemory(ctx context.Context, m *types.Memory) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE memories SET last_accessed_at=?, access_count=?, kind=?, importance=?, decay_rate=?, tags=?
		WHERE project_id=? AND id=?`,
		m.LastAccessedAt, m.AccessCount, string(m.Kind), m.Importance, m.DecayRate, marshalJSON(m.Tags),
		m.ProjectID, m.ID)
	if err != nil {
		return memerr.Wrap(memerr.Internal, "update memory", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return memerr.New(memerr.NotFound, m.ID)
	}
	return nil
}

// DeleteMemory cascades: edges, bridge cache, and the row itself, in one
// transaction (§3).
func (s *Store) DeleteMemory(ctx context.Context, projectID, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return memerr.Wrap(memerr.StoreUnavailable, "begin tx", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM memories WHERE project_id=? AND id=?`, projectID, id)
	if err != nil {
		return memerr.Wrap(memerr.Internal, "delete memory", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return memerr.New(memerr.NotFound, id)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM connections WHERE project_id=? AND (source_id=? OR target_id=?)`, projectID, id, id); err != nil {
		return memerr.Wrap(memerr.Internal, "delete incident edges", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM bridge_cache WHERE project_id=? AND memory_id=?`, projectID, id); err != nil {
		return memerr.Wrap(memerr.Internal, "delete bridge cache entries", err)
	}
	return tx.Commit()
}

func (s *Store) List(ctx context.Context, opts storage.ListOptions) (*storage.PaginatedResult[types.Memory], error) {
	opts.Normalize()
	where := []string{"project_id = ?"}
	args := []any{opts.ProjectID}
	if !opts.IncludeDeleted {
		where = append(where, "deleted_at IS NULL")
	}
	if opts.Level != nil {
		where = append(where, "level = ?")
		args = append(args, int(*opts.Level))
	}
	if opts.Kind != nil {
		where = append(where, "kind = ?")
		args = append(args, string(*opts.Kind))
	}
	if opts.SourcePath != "" {
		where = append(where, "source_path = ?")
		args = append(args, opts.SourcePath)
	}
	whereSQL := strings.Join(where, " AND ")

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memories WHERE `+whereSQL, args...).Scan(&total); err != nil {
		return nil, memerr.Wrap(memerr.Internal, "count memories", err)
	}

	q := fmt.Sprintf(`SELECT %s FROM memories WHERE %s ORDER BY %s %s LIMIT ? OFFSET ?`,
		memoryColumns, whereSQL, opts.SortBy, strings.ToUpper(opts.SortOrder))
	rows, err := s.db.QueryContext(ctx, q, append(args, opts.Limit, opts.Offset())...)
	if err != nil {
		return nil, memerr.Wrap(memerr.Internal, "list memories", err)
	}
	defer rows.Close()

	var items []types.Memory
	for rows.Next() {
		m, err := s.scanMemory(rows)
		if err != nil {
			return nil, memerr.Wrap(memerr.Internal, "scan memory row", err)
		}
		if len(opts.Tags) > 0 && !anyTagMatch(m.Tags, opts.Tags) {
			continue
		}
		items = append(items, *m)
	}
	return &storage.PaginatedResult[types.Memory]{
		Items: items, Total: total, Page: opts.Page, PageSize: opts.Limit,
		HasMore: opts.Offset()+len(items) < total,
	}, nil
}

func anyTagMatch(have, want []string) bool {
	set := make(map[string]bool, len(have))
	for _, t := range have {
		set[t] = true
	}
	for _, t := range want {
		if set[t] {
			return true
		}
	}
	return false
}

func (s *Store) QueryBySourcePath(ctx context.Context, projectID, sourcePath string) ([]*types.Memory, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+memoryColumns+` FROM memories WHERE project_id=? AND source_path=? AND deleted_at IS NULL`, projectID, sourcePath)
	if err != nil {
		return nil, memerr.Wrap(memerr.Internal, "query by source path", err)
	}
	defer rows.Close()
	var out []*types.Memory
	for rows.Next() {
		m, err := s.scanMemory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

func (s *Store) DeleteBySourcePath(ctx context.Context, projectID, sourcePath string) (int, error) {
	ids, err := s.QueryBySourcePath(ctx, projectID, sourcePath)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, m := range ids {
		if err := s.DeleteMemory(ctx, projectID, m.ID); err != nil && !memerr.Is(err, memerr.NotFound) {
			return count, err
		}
		count++
	}
	return count, nil
}

func (s *Store) QueryByTags(ctx context.Context, projectID string, tags []string) ([]*types.Memory, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+memoryColumns+` FROM memories WHERE project_id=? AND deleted_at IS NULL`, projectID)
	if err != nil {
		return nil, memerr.Wrap(memerr.Internal, "query by tags", err)
	}
	defer rows.Close()
	var out []*types.Memory
	for rows.Next() {
		m, err := s.scanMemory(rows)
		if err != nil {
			return nil, err
		}
		if anyTagMatch(m.Tags, tags) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *Store) DeleteByTags(ctx context.Context, projectID string, tags []string) (int, error) {
	matches, err := s.QueryByTags(ctx, projectID, tags)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, m := range matches {
		if err := s.DeleteMemory(ctx, projectID, m.ID); err != nil && !memerr.Is(err, memerr.NotFound) {
			return count, err
		}
		count++
	}
	return count, nil
}

func (s *Store) RecordAccess(ctx context.Context, projectID, id string, class types.RetrievalClass) error {
	now := time.Now().UTC()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return memerr.Wrap(memerr.StoreUnavailable, "begin tx", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `INSERT INTO access_events (project_id, memory_id, at, retrieval_class) VALUES (?,?,?,?)`,
		projectID, id, now, string(class)); err != nil {
		return memerr.Wrap(memerr.Internal, "insert access event", err)
	}
	res, err := tx.ExecContext(ctx, `UPDATE memories SET last_accessed_at=?, access_count=access_count+1 WHERE project_id=? AND id=?`, now, projectID, id)
	if err != nil {
		return memerr.Wrap(memerr.Internal, "bump access stats", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return memerr.New(memerr.NotFound, id)
	}
	return tx.Commit()
}

func (s *Store) QueryActivityWindow(ctx context.Context, projectID string, window time.Duration) (int, int, error) {
	since := time.Now().UTC().Add(-window)
	var accessCount int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM access_events WHERE project_id=? AND at >= ?`, projectID, since).Scan(&accessCount); err != nil {
		return 0, 0, memerr.Wrap(memerr.Internal, "count access events", err)
	}
	var commitCount int
	if err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM memories
		WHERE project_id=? AND id LIKE 'git::commit::%' AND created_at >= ?`, projectID, since).Scan(&commitCount); err != nil {
		return 0, 0, memerr.Wrap(memerr.Internal, "count commit memories", err)
	}
	return commitCount, accessCount, nil
}

// --- ConnectionGraph ---

func (s *Store) UpsertEdge(ctx context.Context, c *types.Connection) error {
	if c.SourceID == c.TargetID {
		return memerr.New(memerr.InvalidInput, "self-edges are forbidden")
	}
	if c.Strength <= 0 || c.Strength > 1 {
		return memerr.New(memerr.InvalidInput, "strength must be in (0,1]")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO connections (project_id, source_id, target_id, type, strength, created_at, last_activated_at, activation_count)
		VALUES (?,?,?,?,?,?,?,0)
		ON CONFLICT(project_id, source_id, target_id) DO UPDATE SET
			type=excluded.type, strength=excluded.strength`,
		c.ProjectID, c.SourceID, c.TargetID, string(c.Type), c.Strength, c.CreatedAt, c.CreatedAt)
	if err != nil {
		return memerr.Wrap(memerr.Internal, "upsert edge", err)
	}
	return nil
}

func (s *Store) GetNeighbors(ctx context.Context, projectID, id string, minStrength float64, typeFilter []types.ConnectionType) ([]types.Neighbor, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT target_id, type, strength FROM connections WHERE project_id=? AND source_id=? AND strength >= ?
		UNION
		SELECT source_id, type, strength FROM connections WHERE project_id=? AND target_id=? AND strength >= ?`,
		projectID, id, minStrength, projectID, id, minStrength)
	if err != nil {
		return nil, memerr.Wrap(memerr.Internal, "get neighbors", err)
	}
	defer rows.Close()

	filter := make(map[types.ConnectionType]bool, len(typeFilter))
	for _, t := range typeFilter {
		filter[t] = true
	}
	var out []types.Neighbor
	for rows.Next() {
		var n types.Neighbor
		var typ string
		if err := rows.Scan(&n.TargetID, &typ, &n.Strength); err != nil {
			return nil, memerr.Wrap(memerr.Internal, "scan neighbor", err)
		}
		n.Type = types.ConnectionType(typ)
		if len(filter) > 0 && !filter[n.Type] {
			continue
		}
		out = append(out, n)
	}
	return out, nil
}

func (s *Store) BumpActivation(ctx context.Context, projectID, sourceID, targetID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE connections SET last_activated_at=?, activation_count=activation_count+1
		WHERE project_id=? AND ((source_id=? AND target_id=?) OR (source_id=? AND target_id=?))`,
		time.Now().UTC(), projectID, sourceID, targetID, targetID, sourceID)
	if err != nil {
		return memerr.Wrap(memerr.Internal, "bump activation", err)
	}
	return nil
}

func (s *Store) DeleteIncident(ctx context.Context, projectID, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM connections WHERE project_id=? AND (source_id=? OR target_id=?)`, projectID, id, id)
	if err != nil {
		return memerr.Wrap(memerr.Internal, "delete incident edges", err)
	}
	return nil
}
