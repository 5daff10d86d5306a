// Package sqlite provides the embedded SQLite backend for MetadataStore,
// ConnectionGraph, and VectorStore, built on modernc.org/sqlite (CGO-free).
package sqlite

// schema is applied idempotently on open. One file per project namespace
// (§6.2) holds memories, connections, access events, and the bridge cache;
// vectors are cached in memory at open time and kept in sync by Upsert,
// since SQLite has no native vector type.
const schema = `
CREATE TABLE IF NOT EXISTS memories (
	id TEXT PRIMARY KEY,
	project_id TEXT NOT NULL,
	level INTEGER NOT NULL,
	kind TEXT NOT NULL,
	content TEXT NOT NULL,
	cognitive_vector BLOB NOT NULL,
	dimensions TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	last_accessed_at TIMESTAMP NOT NULL,
	access_count INTEGER NOT NULL DEFAULT 0,
	importance REAL NOT NULL DEFAULT 0,
	decay_rate REAL NOT NULL DEFAULT 0,
	parent_id TEXT,
	tags TEXT NOT NULL DEFAULT '[]',
	source_path TEXT,
	payload TEXT NOT NULL DEFAULT '{}',
	deleted_at TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_memories_level ON memories(project_id, level);
CREATE INDEX IF NOT EXISTS idx_memories_last_accessed ON memories(project_id, last_accessed_at);
CREATE INDEX IF NOT EXISTS idx_memories_access_count ON memories(project_id, access_count);
CREATE INDEX IF NOT EXISTS idx_memories_source_path ON memories(project_id, source_path);
CREATE INDEX IF NOT EXISTS idx_memories_parent ON memories(project_id, parent_id);

CREATE VIRTUAL TABLE IF NOT EXISTS memories_fts USING fts5(
	id UNINDEXED,
	content,
	content='memories',
	content_rowid='rowid'
);

CREATE TRIGGER IF NOT EXISTS memories_ai AFTER INSERT ON memories BEGIN
	INSERT INTO memories_fts(rowid, id, content) VALUES (new.rowid, new.id, new.content);
END;
CREATE TRIGGER IF NOT EXISTS memories_ad AFTER DELETE ON memories BEGIN
	INSERT INTO memories_fts(memories_fts, rowid, id, content) VALUES ('delete', old.rowid, old.id, old.content);
END;
CREATE TRIGGER IF NOT EXISTS memories_au AFTER UPDATE ON memories BEGIN
	INSERT INTO memories_fts(memories_fts, rowid, id, content) VALUES ('delete', old.rowid, old.id, old.content);
	INSERT INTO memories_fts(rowid, id, content) VALUES (new.rowid, new.id, new.content);
END;

CREATE TABLE IF NOT EXISTS connections (
	project_id TEXT NOT NULL,
	source_id TEXT NOT NULL,
	target_id TEXT NOT NULL,
	type TEXT NOT NULL,
	strength REAL NOT NULL,
	created_at TIMESTAMP NOT NULL,
	last_activated_at TIMESTAMP NOT NULL,
	activation_count INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (project_id, source_id, target_id)
);

CREATE INDEX IF NOT EXISTS idx_connections_source ON connections(project_id, source_id, strength);
CREATE INDEX IF NOT EXISTS idx_connections_target ON connections(project_id, target_id, strength);

CREATE TABLE IF NOT EXISTS access_events (
	project_id TEXT NOT NULL,
	memory_id TEXT NOT NULL,
	at TIMESTAMP NOT NULL,
	retrieval_class TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_access_events_window ON access_events(project_id, at);

CREATE TABLE IF NOT EXISTS bridge_cache (
	project_id TEXT NOT NULL,
	query_fingerprint TEXT NOT NULL,
	memory_id TEXT NOT NULL,
	bridge_score REAL NOT NULL,
	novelty REAL NOT NULL,
	connection_potential REAL NOT NULL,
	created_at TIMESTAMP NOT NULL,
	PRIMARY KEY (project_id, query_fingerprint, memory_id)
);

CREATE TABLE IF NOT EXISTS commit_watermark (
	project_id TEXT PRIMARY KEY,
	last_sha TEXT NOT NULL
);
`
