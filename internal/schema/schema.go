// Package schema holds the versioned schema definitions and the change-log
// trigger generator.
//
// Each schema version is a fixed DDL snapshot — a string constant, never
// edited after release. Evolving the schema means adding a new constant and a
// migration step (internal/migrate), not touching the old one. The version a
// database file was created at is recorded in the single-row schema_state
// table and checked against Version at startup; a mismatch is a fatal error,
// there is no auto-migrate on boot.
package schema

import (
	"context"
	"database/sql"
	"fmt"
)

// Version is the schema version this build of the code requires.
const Version = 5

// VersionLegacy is the newest version the offline migration tool accepts as
// a source.
const VersionLegacy = 4

// DDLv5 is the current schema.
//
// Derived columns carried as first-class columns:
//   - bookmarks.num_comments: count of the bookmark's comments
//   - comments.sibling_idx: 1-based creation-order position among siblings
//
// Render cache columns (render, inner_render, full_render, rendered_at) are
// denormalized HTML maintained by the render engine and excluded from
// change logging.
const DDLv5 = `
CREATE TABLE IF NOT EXISTS schema_state (
	id      INTEGER PRIMARY KEY CHECK (id = 1),
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS users (
	id         TEXT PRIMARY KEY,
	github_id  INTEGER NOT NULL UNIQUE,
	login      TEXT NOT NULL,
	email      TEXT NOT NULL DEFAULT '',
	avatar_url TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS clip_tokens (
	user_id    TEXT PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
	token_hash TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS bookmarks (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id      TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	url          TEXT NOT NULL,
	title        TEXT NOT NULL,
	num_comments INTEGER NOT NULL DEFAULT 0,
	render       TEXT NOT NULL DEFAULT '',
	rendered_at  DATETIME,
	created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE (url, title, user_id)
);
CREATE INDEX IF NOT EXISTS idx_bookmarks_user_updated ON bookmarks(user_id, updated_at);

CREATE TABLE IF NOT EXISTS comments (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	bookmark_id  INTEGER NOT NULL REFERENCES bookmarks(id) ON DELETE CASCADE,
	content      TEXT NOT NULL,
	sibling_idx  INTEGER NOT NULL,
	inner_render TEXT NOT NULL DEFAULT '',
	full_render  TEXT NOT NULL DEFAULT '',
	rendered_at  DATETIME,
	created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_comments_bookmark ON comments(bookmark_id, sibling_idx);
CREATE INDEX IF NOT EXISTS idx_comments_created ON comments(created_at);

CREATE TABLE IF NOT EXISTS backups (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	bookmark_id INTEGER NOT NULL REFERENCES bookmarks(id) ON DELETE CASCADE,
	original    TEXT NOT NULL,
	content     TEXT NOT NULL,
	created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_backups_bookmark_created ON backups(bookmark_id, created_at);

CREATE TABLE IF NOT EXISTS blobs (
	sha256     TEXT PRIMARY KEY,
	mime       TEXT NOT NULL DEFAULT '',
	size       INTEGER NOT NULL DEFAULT 0,
	content    BLOB NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS media (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	bookmark_id INTEGER NOT NULL REFERENCES bookmarks(id) ON DELETE CASCADE,
	path        TEXT NOT NULL,
	sha256      TEXT NOT NULL REFERENCES blobs(sha256),
	created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE (sha256, path, bookmark_id)
);

CREATE TABLE IF NOT EXISTS change_log (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	action     TEXT NOT NULL,
	tbl        TEXT NOT NULL,
	object_id  INTEGER NOT NULL,
	old_values TEXT,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// DDLv4 is the legacy schema, kept only as a migration source. Notable
// differences from v5: bookmarks have no num_comments, comments have no
// sibling_idx, media carries the blob bytes inline under a "filename" column
// and there is no blobs table or uniqueness on (url, title, user_id).
const DDLv4 = `
CREATE TABLE IF NOT EXISTS schema_state (
	id      INTEGER PRIMARY KEY CHECK (id = 1),
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS users (
	id         TEXT PRIMARY KEY,
	github_id  INTEGER NOT NULL UNIQUE,
	login      TEXT NOT NULL,
	email      TEXT NOT NULL DEFAULT '',
	avatar_url TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS bookmarks (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id     TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	url         TEXT NOT NULL,
	title       TEXT NOT NULL,
	render      TEXT NOT NULL DEFAULT '',
	rendered_at DATETIME,
	created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS comments (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	bookmark_id  INTEGER NOT NULL REFERENCES bookmarks(id) ON DELETE CASCADE,
	content      TEXT NOT NULL,
	inner_render TEXT NOT NULL DEFAULT '',
	full_render  TEXT NOT NULL DEFAULT '',
	rendered_at  DATETIME,
	created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS backups (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	bookmark_id INTEGER NOT NULL REFERENCES bookmarks(id) ON DELETE CASCADE,
	original    TEXT NOT NULL,
	content     TEXT NOT NULL,
	created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS media (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	bookmark_id INTEGER NOT NULL REFERENCES bookmarks(id) ON DELETE CASCADE,
	filename    TEXT NOT NULL,
	sha256      TEXT NOT NULL,
	mime        TEXT NOT NULL DEFAULT '',
	size        INTEGER NOT NULL DEFAULT 0,
	content     BLOB NOT NULL
);

CREATE TABLE IF NOT EXISTS change_log (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	action     TEXT NOT NULL,
	tbl        TEXT NOT NULL,
	object_id  INTEGER NOT NULL,
	old_values TEXT,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// DDLFor returns the DDL snapshot for a version.
func DDLFor(version int) (string, error) {
	switch version {
	case 4:
		return DDLv4, nil
	case 5:
		return DDLv5, nil
	default:
		return "", fmt.Errorf("schema: no DDL snapshot for version %d", version)
	}
}

// Querier is the subset of *sql.DB / *sql.Tx needed to read schema state.
type Querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Execer is the subset of *sql.DB / *sql.Tx needed to write schema objects.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// CurrentVersion reads the recorded version from schema_state.
// Returns 0 (no error) when the state row does not exist yet — a fresh file.
func CurrentVersion(ctx context.Context, q Querier) (int, error) {
	var v int
	err := q.QueryRowContext(ctx, `SELECT version FROM schema_state WHERE id = 1`).Scan(&v)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("schema: reading schema_state: %w", err)
	}
	return v, nil
}

// WriteVersion records the schema version in the single-row state table.
func WriteVersion(ctx context.Context, e Execer, version int) error {
	_, err := e.ExecContext(ctx,
		`INSERT INTO schema_state (id, version) VALUES (1, ?)
		 ON CONFLICT (id) DO UPDATE SET version = excluded.version`,
		version,
	)
	if err != nil {
		return fmt.Errorf("schema: writing schema_state: %w", err)
	}
	return nil
}
