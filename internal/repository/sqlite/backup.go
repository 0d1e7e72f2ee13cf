package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/clipmark/clipmark/internal/apperror"
	"github.com/clipmark/clipmark/internal/model"
	"github.com/clipmark/clipmark/internal/repository"
)

var _ repository.BackupRepository = (*DB)(nil)

// CreateBackup stores a page snapshot pair (raw original + URL-rewritten
// content). Throttling to roughly one backup per month is the service
// layer's call; this method just appends.
func (db *DB) CreateBackup(ctx context.Context, backup *model.Backup) error {
	backup.CreatedAt = time.Now()
	res, err := db.conn.ExecContext(ctx,
		`INSERT INTO backups (bookmark_id, original, content, created_at)
		 VALUES (?, ?, ?, ?)`,
		backup.BookmarkID, backup.Original, backup.Content, backup.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting backup for bookmark %d: %w", backup.BookmarkID, err)
	}
	backup.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite: reading backup id: %w", err)
	}
	return nil
}

// LatestBackupTime returns the newest backup's creation time for a
// bookmark, or nil when none exist.
func (db *DB) LatestBackupTime(ctx context.Context, bookmarkID int64) (*time.Time, error) {
	var t time.Time
	err := db.conn.QueryRowContext(ctx,
		`SELECT created_at FROM backups WHERE bookmark_id = ?
		 ORDER BY created_at DESC, id DESC LIMIT 1`,
		bookmarkID,
	).Scan(&t)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: reading latest backup time for bookmark %d: %w", bookmarkID, err)
	}
	return &t, nil
}

// LatestBackup returns the most recent backup — the authoritative snapshot
// for display.
func (db *DB) LatestBackup(ctx context.Context, bookmarkID int64) (*model.Backup, error) {
	var b model.Backup
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, bookmark_id, original, content, created_at FROM backups
		 WHERE bookmark_id = ? ORDER BY created_at DESC, id DESC LIMIT 1`,
		bookmarkID,
	).Scan(&b.ID, &b.BookmarkID, &b.Original, &b.Content, &b.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("backup", bookmarkID)
		}
		return nil, fmt.Errorf("sqlite: reading latest backup for bookmark %d: %w", bookmarkID, err)
	}
	return &b, nil
}
