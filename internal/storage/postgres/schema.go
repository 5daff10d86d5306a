// Package postgres provides the Postgres + pgvector backend for
// MemoryStore, ConnectionGraph, and VectorStore, for deployments that need
// a shared server instead of one SQLite file per project namespace (§6.2).
// Every table carries project_id so one database can host many projects.
package postgres

// schema is applied idempotently on open, mirroring the SQLite backend's
// table shapes but using native Postgres types: JSONB for structured
// columns, and the pgvector extension for the per-level vector tables
// (vectorTableStmt), so similarity search can be pushed down to the
// database instead of mirrored in memory.
const schema = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS memories (
	id TEXT NOT NULL,
	project_id TEXT NOT NULL,
	level INTEGER NOT NULL,
	kind TEXT NOT NULL,
	content TEXT NOT NULL,
	cognitive_vector BYTEA NOT NULL,
	dimensions JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	last_accessed_at TIMESTAMPTZ NOT NULL,
	access_count INTEGER NOT NULL DEFAULT 0,
	importance DOUBLE PRECISION NOT NULL DEFAULT 0,
	decay_rate DOUBLE PRECISION NOT NULL DEFAULT 0,
	parent_id TEXT,
	tags JSONB NOT NULL DEFAULT '[]',
	source_path TEXT,
	payload JSONB NOT NULL DEFAULT '{}',
	deleted_at TIMESTAMPTZ,
	PRIMARY KEY (project_id, id)
);

CREATE INDEX IF NOT EXISTS idx_memories_level ON memories(project_id, level);
CREATE INDEX IF NOT EXISTS idx_memories_last_accessed ON memories(project_id, last_accessed_at);
CREATE INDEX IF NOT EXISTS idx_memories_access_count ON memories(project_id, access_count);
CREATE INDEX IF NOT EXISTS idx_memories_source_path ON memories(project_id, source_path);
CREATE INDEX IF NOT EXISTS idx_memories_parent ON memories(project_id, parent_id);

DO $$
BEGIN
	IF NOT EXISTS (
		SELECT 1 FROM information_schema.columns
		WHERE table_name = 'memories' AND column_name = 'content_tsv'
	) THEN
		ALTER TABLE memories ADD COLUMN content_tsv tsvector;
	END IF;
END
$$;

UPDATE memories SET content_tsv = to_tsvector('english', content) WHERE content_tsv IS NULL;

CREATE INDEX IF NOT EXISTS idx_memories_content_tsv ON memories USING GIN(content_tsv);

CREATE OR REPLACE FUNCTION memories_tsv_update() RETURNS TRIGGER AS $$
BEGIN
	NEW.content_tsv := to_tsvector('english', COALESCE(NEW.content, ''));
	RETURN NEW;
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS memories_tsv_trigger ON memories;
CREATE TRIGGER memories_tsv_trigger
	BEFORE INSERT OR UPDATE OF content
	ON memories
	FOR EACH ROW
	EXECUTE FUNCTION memories_tsv_update();

CREATE TABLE IF NOT EXISTS connections (
	project_id TEXT NOT NULL,
	source_id TEXT NOT NULL,
	target_id TEXT NOT NULL,
	type TEXT NOT NULL,
	strength DOUBLE PRECISION NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	last_activated_at TIMESTAMPTZ NOT NULL,
	activation_count INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (project_id, source_id, target_id)
);

CREATE INDEX IF NOT EXISTS idx_connections_source ON connections(project_id, source_id, strength);
CREATE INDEX IF NOT EXISTS idx_connections_target ON connections(project_id, target_id, strength);

CREATE TABLE IF NOT EXISTS access_events (
	project_id TEXT NOT NULL,
	memory_id TEXT NOT NULL,
	at TIMESTAMPTZ NOT NULL,
	retrieval_class TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_access_events_window ON access_events(project_id, at);

CREATE TABLE IF NOT EXISTS commit_watermark (
	project_id TEXT PRIMARY KEY,
	last_sha TEXT NOT NULL
);
`

// vectorTableStmt creates one table per (level) for pgvector columns, since
// pgvector requires a fixed dimensionality per column and EnsureCollection
// only learns the dimension at runtime. dim is baked into the column type
// the first time a level's table is created; later calls with a mismatched
// dim fail the comparison in EnsureCollection before ever reaching SQL.
const vectorTableStmt = `
CREATE TABLE IF NOT EXISTS vectors_%s (
	project_id TEXT NOT NULL,
	id TEXT NOT NULL,
	embedding vector(%d) NOT NULL,
	PRIMARY KEY (project_id, id)
)`
