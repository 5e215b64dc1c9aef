package store

import (
	"database/sql"
	"fmt"
)

// schema is idempotent: every statement uses IF NOT EXISTS so Open can
// run it unconditionally.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS widget_definitions (
		id                       TEXT PRIMARY KEY,
		slug                     TEXT NOT NULL UNIQUE,
		name                     TEXT NOT NULL,
		description              TEXT NOT NULL DEFAULT '',
		source_code              TEXT NOT NULL,
		server_code              TEXT NOT NULL DEFAULT '',
		server_code_enabled      INTEGER NOT NULL DEFAULT 0,
		default_width            INTEGER NOT NULL DEFAULT 2,
		default_height           INTEGER NOT NULL DEFAULT 2,
		min_width                INTEGER NOT NULL DEFAULT 1,
		min_height               INTEGER NOT NULL DEFAULT 1,
		refresh_interval_seconds INTEGER NOT NULL DEFAULT 0,
		credentials              TEXT NOT NULL DEFAULT '[]',
		setup_config             TEXT,
		fetch_config             TEXT NOT NULL,
		cache_config             TEXT,
		data_schema              TEXT,
		author                   TEXT NOT NULL DEFAULT '',
		enabled                  INTEGER NOT NULL DEFAULT 1,
		created_at               TIMESTAMP NOT NULL,
		updated_at               TIMESTAMP NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS widget_instances (
		id            TEXT PRIMARY KEY,
		definition_id TEXT REFERENCES widget_definitions(id) ON DELETE CASCADE,
		builtin_type  TEXT NOT NULL DEFAULT '',
		x             INTEGER NOT NULL DEFAULT 0,
		y             INTEGER NOT NULL DEFAULT 0,
		width         INTEGER NOT NULL DEFAULT 2,
		height        INTEGER NOT NULL DEFAULT 2,
		created_at    TIMESTAMP NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS widget_cache (
		widget_instance_id TEXT PRIMARY KEY
			REFERENCES widget_instances(id) ON DELETE CASCADE,
		definition_id      TEXT NOT NULL DEFAULT '',
		data               TEXT NOT NULL,
		fetched_at         TIMESTAMP NOT NULL,
		expires_at         TIMESTAMP NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS widget_refresh_requests (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		widget_slug  TEXT NOT NULL,
		requested_at TIMESTAMP NOT NULL,
		processed_at TIMESTAMP
	)`,

	`CREATE INDEX IF NOT EXISTS idx_refresh_requests_slug_time
		ON widget_refresh_requests(widget_slug, requested_at DESC)`,

	`CREATE INDEX IF NOT EXISTS idx_instances_definition
		ON widget_instances(definition_id)`,
}

func migrate(db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("executing migration statement: %w", err)
		}
	}
	return nil
}
