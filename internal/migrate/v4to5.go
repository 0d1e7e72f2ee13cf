package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// runV4toV5 applies the v4 → v5 step:
//
//   - users, backups, change_log: unchanged shape, generic copy
//   - bookmarks: gains num_comments, derived by counting comments per
//     bookmark in the source
//   - comments: gains sibling_idx, derived by numbering each bookmark's
//     comments oldest-first, 1-based — the bulk form of the index
//     assignment the repository performs one comment at a time
//   - media: "filename" renamed to "path", inline bytes split out into the
//     content-addressed blobs table; duplicate content hashes collapse to
//     one blob row
func runV4toV5(ctx context.Context, src, dst *sql.DB, logger *slog.Logger) error {
	for _, table := range []string{"users", "backups", "change_log"} {
		if err := copyTable(ctx, src, dst, table); err != nil {
			return err
		}
		logger.Debug("copied table", slog.String("table", table))
	}
	if err := migrateBookmarks(ctx, src, dst); err != nil {
		return err
	}
	if err := migrateComments(ctx, src, dst); err != nil {
		return err
	}
	return migrateMedia(ctx, src, dst)
}

func migrateBookmarks(ctx context.Context, src, dst *sql.DB) error {
	// Derive comment counts first; bookmarks without comments get 0.
	counts := make(map[int64]int)
	rows, err := src.QueryContext(ctx,
		`SELECT bookmark_id, COUNT(*) FROM comments GROUP BY bookmark_id`)
	if err != nil {
		return fmt.Errorf("migrate: counting comments: %w", err)
	}
	for rows.Next() {
		var id int64
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			rows.Close()
			return fmt.Errorf("migrate: scanning comment count: %w", err)
		}
		counts[id] = n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	rows, err = src.QueryContext(ctx,
		`SELECT id, user_id, url, title, render, rendered_at, created_at, updated_at
		 FROM bookmarks`)
	if err != nil {
		return fmt.Errorf("migrate: reading bookmarks: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id                   int64
			userID, url, title   string
			renderHTML           string
			renderedAt           sql.NullTime
			createdAt, updatedAt time.Time
		)
		if err := rows.Scan(&id, &userID, &url, &title, &renderHTML,
			&renderedAt, &createdAt, &updatedAt); err != nil {
			return fmt.Errorf("migrate: scanning bookmark: %w", err)
		}
		// v5 enforces UNIQUE (url, title, user_id); duplicates in the
		// source surface here as a hard constraint failure, on purpose.
		if _, err := dst.ExecContext(ctx,
			`INSERT INTO bookmarks (id, user_id, url, title, num_comments, render, rendered_at, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, userID, url, title, counts[id], renderHTML, renderedAt, createdAt, updatedAt,
		); err != nil {
			return fmt.Errorf("migrate: inserting bookmark %d: %w", id, err)
		}
	}
	return rows.Err()
}

func migrateComments(ctx context.Context, src, dst *sql.DB) error {
	// Oldest-first within each bookmark group, 1-based sequential indices.
	// The ORDER BY makes the per-group counter deterministic even for
	// comments sharing a created_at.
	rows, err := src.QueryContext(ctx,
		`SELECT id, bookmark_id, content, inner_render, full_render, rendered_at, created_at, updated_at
		 FROM comments ORDER BY bookmark_id, created_at, id`)
	if err != nil {
		return fmt.Errorf("migrate: reading comments: %w", err)
	}
	defer rows.Close()

	var (
		currentBookmark int64 = -1
		siblingIdx      int
	)
	for rows.Next() {
		var (
			id, bookmarkID       int64
			content              string
			innerRender          string
			fullRender           string
			renderedAt           sql.NullTime
			createdAt, updatedAt time.Time
		)
		if err := rows.Scan(&id, &bookmarkID, &content, &innerRender, &fullRender,
			&renderedAt, &createdAt, &updatedAt); err != nil {
			return fmt.Errorf("migrate: scanning comment: %w", err)
		}

		if bookmarkID != currentBookmark {
			currentBookmark = bookmarkID
			siblingIdx = 0
		}
		siblingIdx++

		if _, err := dst.ExecContext(ctx,
			`INSERT INTO comments (id, bookmark_id, content, sibling_idx, inner_render, full_render, rendered_at, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, bookmarkID, content, siblingIdx, innerRender, fullRender,
			renderedAt, createdAt, updatedAt,
		); err != nil {
			return fmt.Errorf("migrate: inserting comment %d: %w", id, err)
		}
	}
	return rows.Err()
}

func migrateMedia(ctx context.Context, src, dst *sql.DB) error {
	rows, err := src.QueryContext(ctx,
		`SELECT id, bookmark_id, filename, sha256, mime, size, content FROM media`)
	if err != nil {
		return fmt.Errorf("migrate: reading media: %w", err)
	}
	defer rows.Close()

	now := time.Now()
	for rows.Next() {
		var (
			id, bookmarkID int64
			filename, hash string
			mime           string
			size           int64
			content        []byte
		)
		if err := rows.Scan(&id, &bookmarkID, &filename, &hash, &mime, &size, &content); err != nil {
			return fmt.Errorf("migrate: scanning media: %w", err)
		}

		// Blob split: identical content referenced from several media rows
		// collapses to a single blob. INSERT OR IGNORE swallows exactly
		// the UNIQUE violation on the content hash — duplicate hash is
		// success-no-op, any other failure still errors.
		if _, err := dst.ExecContext(ctx,
			`INSERT OR IGNORE INTO blobs (sha256, mime, size, content, created_at)
			 VALUES (?, ?, ?, ?, ?)`,
			hash, mime, size, content, now,
		); err != nil {
			return fmt.Errorf("migrate: inserting blob %s: %w", hash, err)
		}

		if _, err := dst.ExecContext(ctx,
			`INSERT OR IGNORE INTO media (id, bookmark_id, path, sha256, created_at)
			 VALUES (?, ?, ?, ?, ?)`,
			id, bookmarkID, filename, hash, now,
		); err != nil {
			return fmt.Errorf("migrate: inserting media %d: %w", id, err)
		}
	}
	return rows.Err()
}
