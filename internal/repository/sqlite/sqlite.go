// Package sqlite implements the repository interfaces on an embedded SQLite
// database via modernc.org/sqlite (pure Go, no CGo).
//
// SINGLE-WRITER MODEL:
// One database file, one process. The pool is capped at a single connection,
// so the store's serialized-writer guarantee is the only concurrency control
// this package needs: every "read current cached render, compute delta,
// write new cached render" sequence runs inside one transaction on that
// connection and cannot interleave with another writer. This also closes
// the classic race where two concurrent comment inserts compute the same
// "next" sibling index from a stale numComments.
//
// SCHEMA VERSIONING:
// A fresh file is initialized at schema.Version. An existing file must
// already be at exactly that version — a mismatch is a fatal open error,
// and moving a file between versions is the job of the offline migration
// tool (cmd/migrate), never of server startup.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sqlite3 "modernc.org/sqlite"

	"github.com/clipmark/clipmark/internal/schema"
)

// SQLite extended result code for UNIQUE constraint violations.
const sqliteConstraintUnique = 2067

// DB wraps the sql.DB pool and provides the repository methods.
type DB struct {
	conn *sql.DB
}

// New opens (or creates) the database at dbPath and verifies its schema
// version. Use ":memory:" in tests.
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// One connection: SQLite serializes writers per file anyway, and a
	// single pooled connection makes that the whole concurrency story
	// (it also keeps ":memory:" databases coherent across the pool).
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL for durable writes with concurrent readers; foreign keys for the
	// bookmark → comment/backup/media cascades.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: enabling foreign keys: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.initSchema(context.Background()); err != nil {
		conn.Close()
		return nil, err
	}

	return db, nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// initSchema initializes a fresh file at the current schema version or
// verifies an existing file is already there. Trigger installation is
// idempotent and re-runs on every open so a code upgrade that changes the
// logged column set takes effect without a separate setup step.
func (db *DB) initSchema(ctx context.Context) error {
	version, err := schema.CurrentVersion(ctx, db.conn)
	if err != nil {
		// schema_state may not exist at all on a fresh file.
		version = 0
	}

	switch version {
	case 0:
		if _, err := db.conn.ExecContext(ctx, schema.DDLv5); err != nil {
			return fmt.Errorf("sqlite: creating schema: %w", err)
		}
		if err := schema.WriteVersion(ctx, db.conn, schema.Version); err != nil {
			return err
		}
	case schema.Version:
		// Already current.
	default:
		return fmt.Errorf("sqlite: database is at schema version %d, this build requires %d (run the migrate tool)",
			version, schema.Version)
	}

	return schema.InstallChangeLogTriggers(ctx, db.conn, schema.LogTablesV5)
}

// isUniqueViolation reports whether err is a UNIQUE constraint failure.
// Used where the constraint encodes idempotence (duplicate blob hash,
// duplicate media mapping, duplicate clip token) and the insert should be
// treated as success-no-op.
func isUniqueViolation(err error) bool {
	var se *sqlite3.Error
	return errors.As(err, &se) && se.Code() == sqliteConstraintUnique
}

// withTx runs fn inside a transaction, committing on nil and rolling back
// on error. All read-modify-write sequences in this package go through it.
func (db *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing transaction: %w", err)
	}
	return nil
}
