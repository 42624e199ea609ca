package postgres

import (
	"context"
	"fmt"
)

// schema holds the DDL for the repository tables. The primary key on
// package_identifier.value is the commit-time uniqueness constraint the
// service's advisory pre-check relies on.
const schema = `
CREATE TABLE IF NOT EXISTS data_package (
	key          UUID PRIMARY KEY,
	title        TEXT NOT NULL DEFAULT '',
	created_by   TEXT NOT NULL DEFAULT '',
	published_in TEXT NOT NULL DEFAULT '',
	shared_in    TEXT[] NOT NULL DEFAULT '{}',
	tags         TEXT[] NOT NULL DEFAULT '{}',
	checksum     TEXT NOT NULL DEFAULT '',
	size         BIGINT NOT NULL DEFAULT 0,
	archived     BOOLEAN NOT NULL DEFAULT FALSE,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	deleted_at   TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS package_file (
	package_key UUID NOT NULL REFERENCES data_package(key) ON DELETE CASCADE,
	name        TEXT NOT NULL,
	position    INT NOT NULL,
	revision    INT NOT NULL,
	format      TEXT NOT NULL DEFAULT '',
	size        BIGINT NOT NULL DEFAULT 0,
	checksum    TEXT NOT NULL DEFAULT '',
	blob_key    TEXT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (package_key, name, revision)
);

CREATE TABLE IF NOT EXISTS package_identifier (
	value       TEXT PRIMARY KEY,
	package_key UUID NOT NULL REFERENCES data_package(key) ON DELETE CASCADE,
	scheme      TEXT NOT NULL DEFAULT '',
	relation    TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_data_package_updated_at ON data_package (updated_at);
CREATE INDEX IF NOT EXISTS idx_package_identifier_package_key ON package_identifier (package_key);
`

// Migrate creates the repository tables when they do not exist yet.
func Migrate(ctx context.Context, db DBTX) error {
	if _, err := db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("applying repository schema: %w", err)
	}
	return nil
}
