// CLAUDE:SUMMARY Applies the complete torref SQL schema: sources, items, events, fetch_log.
package store

import "database/sql"

// Schema is the complete torref schema. Items are keyed by (source_id,
// item_key); events carry a composite foreign key back to items so that
// pruning an item can never leave a dangling event.
const Schema = `
-- Catalog pages to poll
CREATE TABLE IF NOT EXISTS sources (
    id              TEXT PRIMARY KEY,
    name            TEXT NOT NULL,
    url             TEXT NOT NULL,
    extractor       TEXT NOT NULL DEFAULT 'generic',
    fetch_interval  INTEGER NOT NULL DEFAULT 3600000,
    enabled         INTEGER NOT NULL DEFAULT 1,
    config_json     TEXT NOT NULL DEFAULT '{}',
    last_polled_at  INTEGER,
    last_status     TEXT NOT NULL DEFAULT 'pending',
    last_error      TEXT NOT NULL DEFAULT '',
    fail_count      INTEGER NOT NULL DEFAULT 0,
    created_at      INTEGER NOT NULL,
    updated_at      INTEGER NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_sources_url ON sources(url);

-- Last-seen snapshot of every product, one row per (source, stable key)
CREATE TABLE IF NOT EXISTS items (
    source_id           TEXT NOT NULL REFERENCES sources(id) ON DELETE CASCADE,
    item_key            TEXT NOT NULL,
    title               TEXT NOT NULL,
    url                 TEXT NOT NULL,
    price_cents         INTEGER,
    in_stock            INTEGER NOT NULL DEFAULT 0,
    first_seen_at       INTEGER NOT NULL,
    last_seen_at        INTEGER NOT NULL,
    attrs_json          TEXT NOT NULL DEFAULT '{}',
    seen                INTEGER NOT NULL DEFAULT 0,
    summary_json        TEXT NOT NULL DEFAULT '',
    summary_fingerprint TEXT NOT NULL DEFAULT '',
    summary_model       TEXT NOT NULL DEFAULT '',
    summarized_at       INTEGER,
    PRIMARY KEY (source_id, item_key)
);
CREATE INDEX IF NOT EXISTS idx_items_last_seen ON items(source_id, last_seen_at DESC);

-- Append-only stock transition facts
CREATE TABLE IF NOT EXISTS events (
    id           TEXT PRIMARY KEY,
    source_id    TEXT NOT NULL,
    item_key     TEXT NOT NULL,
    event_type   TEXT NOT NULL,
    payload_json TEXT NOT NULL DEFAULT '{}',
    seen         INTEGER NOT NULL DEFAULT 0,
    created_at   INTEGER NOT NULL,
    FOREIGN KEY (source_id, item_key) REFERENCES items(source_id, item_key) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_events_source_time ON events(source_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_events_unseen ON events(seen, created_at DESC);

-- Poll attempt log (observability)
CREATE TABLE IF NOT EXISTS fetch_log (
    id            TEXT PRIMARY KEY,
    source_id     TEXT NOT NULL REFERENCES sources(id) ON DELETE CASCADE,
    status        TEXT NOT NULL,
    status_code   INTEGER,
    error_message TEXT NOT NULL DEFAULT '',
    duration_ms   INTEGER NOT NULL DEFAULT 0,
    item_count    INTEGER NOT NULL DEFAULT 0,
    fetched_at    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_fetch_log_source ON fetch_log(source_id, fetched_at DESC);
`

// ApplySchema creates all tables and indexes on the given database.
// Idempotent: safe to run on every startup.
func ApplySchema(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}
