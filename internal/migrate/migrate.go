// Package migrate transforms a closed database file from one schema version
// to the next.
//
// The engine never mutates the source. It builds a brand-new file, populated
// table by table, under a randomized temporary name next to the destination,
// and atomically renames it into place only after every step succeeded.
// Crash-safety comes from that rename, not from transactional rollback
// across the whole migration: a half-written temp file can never be mistaken
// for a finished database.
//
// Tables whose shape did not change are copied generically, selecting all
// columns and re-inserting by name. The generic path compares the two
// column sets first and fails loudly on any difference — a table that
// changed without an explicit transform being written for it is a
// programmer error, not something to skip silently.
package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/clipmark/clipmark/internal/apperror"
	"github.com/clipmark/clipmark/internal/schema"
)

// Run migrates the database at sourcePath (which must be at exactly
// schema.VersionLegacy) into a new file at destPath (which must not exist).
// Running twice against the same source is rejected by the non-empty
// destination check, so a migration either fully applies or not at all.
func Run(ctx context.Context, sourcePath, destPath string, logger *slog.Logger) error {
	if _, err := os.Stat(destPath); err == nil {
		return fmt.Errorf("migrate: destination %s already exists", destPath)
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("migrate: checking destination %s: %w", destPath, err)
	}

	src, err := sql.Open("sqlite", "file:"+sourcePath+"?mode=ro")
	if err != nil {
		return fmt.Errorf("migrate: opening source %s: %w", sourcePath, err)
	}
	defer src.Close()
	src.SetMaxOpenConns(1)

	version, err := schema.CurrentVersion(ctx, src)
	if err != nil {
		return err
	}
	if version != schema.VersionLegacy {
		return fmt.Errorf("migrate: source is at schema version %d, expected exactly %d",
			version, schema.VersionLegacy)
	}

	tmpPath := fmt.Sprintf("%s.%s.tmp", destPath, uuid.NewString())
	dst, err := sql.Open("sqlite", tmpPath)
	if err != nil {
		return fmt.Errorf("migrate: creating destination %s: %w", tmpPath, err)
	}
	dst.SetMaxOpenConns(1)

	// Remove the temp file on any failure so a crashed run leaves nothing
	// that looks like a database.
	fail := func(err error) error {
		dst.Close()
		os.Remove(tmpPath)
		return err
	}

	if _, err := dst.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
		return fail(fmt.Errorf("migrate: enabling foreign keys: %w", err))
	}
	if _, err := dst.ExecContext(ctx, schema.DDLv5); err != nil {
		return fail(fmt.Errorf("migrate: creating destination schema: %w", err))
	}

	// Change-log triggers are NOT installed here: the copy itself is not a
	// mutation worth logging, and the server re-installs triggers on first
	// open. The source's change_log rows are carried over verbatim below.
	if err := runV4toV5(ctx, src, dst, logger); err != nil {
		return fail(err)
	}

	if err := schema.WriteVersion(ctx, dst, schema.Version); err != nil {
		return fail(err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("migrate: closing destination: %w", err)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("migrate: renaming %s -> %s: %w", tmpPath, destPath, err)
	}

	logger.Info("migration complete",
		slog.String("source", sourcePath),
		slog.String("dest", destPath),
		slog.Int("from", schema.VersionLegacy),
		slog.Int("to", schema.Version),
	)
	return nil
}

// tableColumns returns a table's column names in declaration order.
func tableColumns(ctx context.Context, db *sql.DB, table string) ([]string, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT name FROM pragma_table_info(?) ORDER BY cid`, table)
	if err != nil {
		return nil, fmt.Errorf("migrate: reading columns of %s: %w", table, err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("migrate: scanning column name: %w", err)
		}
		cols = append(cols, name)
	}
	return cols, rows.Err()
}

// copyTable is the generic path for tables with no structural change. It
// refuses to guess: if the source and destination column sets differ in any
// way, the table needed an explicit transform and we fail immediately.
func copyTable(ctx context.Context, src, dst *sql.DB, table string) error {
	srcCols, err := tableColumns(ctx, src, table)
	if err != nil {
		return err
	}
	dstCols, err := tableColumns(ctx, dst, table)
	if err != nil {
		return err
	}
	if strings.Join(srcCols, ",") != strings.Join(dstCols, ",") {
		return apperror.Integrity(
			"table %s changed shape (source %v, destination %v) but has no explicit transform",
			table, srcCols, dstCols)
	}

	colList := strings.Join(srcCols, ", ")
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(srcCols)), ", ")
	insertSQL := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, colList, placeholders)

	rows, err := src.QueryContext(ctx, fmt.Sprintf("SELECT %s FROM %s", colList, table))
	if err != nil {
		return fmt.Errorf("migrate: reading %s: %w", table, err)
	}
	defer rows.Close()

	values := make([]any, len(srcCols))
	ptrs := make([]any, len(srcCols))
	for i := range values {
		ptrs[i] = &values[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return fmt.Errorf("migrate: scanning %s row: %w", table, err)
		}
		if _, err := dst.ExecContext(ctx, insertSQL, values...); err != nil {
			return fmt.Errorf("migrate: inserting %s row: %w", table, err)
		}
	}
	return rows.Err()
}
