package index

import (
	"context"
	"fmt"
)

// SchemaVersion is the index schema generation this build understands. A
// database carrying any other version needs an upgrade by the indexer that
// owns it; mqfs refuses to operate on it.
const SchemaVersion = "1"

// ConfigKeySchemaVersion is the config row holding the schema generation.
const ConfigKeySchemaVersion = "schema_version"

// ConfigKeyExcludeTags is the config row holding the newline-delimited list of
// tags excluded from query results.
const ConfigKeyExcludeTags = "search.exclude_tags"

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS config (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS messages (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		message_id TEXT NOT NULL UNIQUE,
		date       INTEGER NOT NULL,
		subject    TEXT,
		sender     TEXT,
		recipient  TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS message_files (
		filename   TEXT PRIMARY KEY,
		message_id INTEGER NOT NULL REFERENCES messages(id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_message_files_message_id
		ON message_files(message_id)`,
	`CREATE TABLE IF NOT EXISTS message_tags (
		message_id INTEGER NOT NULL REFERENCES messages(id),
		tag        TEXT NOT NULL,
		PRIMARY KEY (message_id, tag)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_message_tags_tag
		ON message_tags(tag)`,
}

// CreateSchema creates the index tables and stamps the schema version. Safe to
// call on an existing database of the same version.
func (s *Store) CreateSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create index schema: %w", err)
		}
	}

	existing, err := s.ConfigValue(ctx, ConfigKeySchemaVersion)
	if err != nil {
		return err
	}
	if existing == "" {
		return s.SetConfigValue(ctx, ConfigKeySchemaVersion, SchemaVersion)
	}
	if existing != SchemaVersion {
		return fmt.Errorf("index schema version %q, want %q", existing, SchemaVersion)
	}
	return nil
}

// NeedsUpgrade reports whether the database carries a schema version other
// than the one this build understands.
func (s *Store) NeedsUpgrade(ctx context.Context) (bool, error) {
	version, err := s.ConfigValue(ctx, ConfigKeySchemaVersion)
	if err != nil {
		return false, err
	}
	// A missing version row reads as "" and therefore needs an upgrade too.
	return version != SchemaVersion, nil
}
