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

var _ repository.MediaRepository = (*DB)(nil)

// InsertBlob stores content-addressed bytes. A duplicate sha256 means the
// identical content is already present — success, nothing to do. That
// no-op path is what lets several bookmarks mirror the same asset while
// storing the bytes once.
func (db *DB) InsertBlob(ctx context.Context, blob *model.Blob) error {
	blob.CreatedAt = time.Now()
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO blobs (sha256, mime, size, content, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		blob.SHA256, blob.Mime, blob.Size, blob.Content, blob.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil
		}
		return fmt.Errorf("sqlite: inserting blob %s: %w", blob.SHA256, err)
	}
	return nil
}

// InsertMedia records a (bookmark, path) → content-hash mapping. Duplicate
// (sha256, path, bookmarkId) is success-no-op for the same reason as
// InsertBlob: re-running the snapshot pipeline must be harmless.
func (db *DB) InsertMedia(ctx context.Context, media *model.Media) error {
	media.CreatedAt = time.Now()
	res, err := db.conn.ExecContext(ctx,
		`INSERT INTO media (bookmark_id, path, sha256, created_at)
		 VALUES (?, ?, ?, ?)`,
		media.BookmarkID, media.Path, media.SHA256, media.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil
		}
		return fmt.Errorf("sqlite: inserting media (%d, %s): %w", media.BookmarkID, media.Path, err)
	}
	media.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite: reading media id: %w", err)
	}
	return nil
}

// GetBlob fetches content-addressed bytes by hash.
func (db *DB) GetBlob(ctx context.Context, sha256 string) (*model.Blob, error) {
	var b model.Blob
	err := db.conn.QueryRowContext(ctx,
		`SELECT sha256, mime, size, content, created_at FROM blobs WHERE sha256 = ?`,
		sha256,
	).Scan(&b.SHA256, &b.Mime, &b.Size, &b.Content, &b.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("blob", sha256)
		}
		return nil, fmt.Errorf("sqlite: getting blob %s: %w", sha256, err)
	}
	return &b, nil
}

// GetMediaByPath resolves a mirrored path for a bookmark, used when serving
// /media/{bookmarkID}/{path}.
func (db *DB) GetMediaByPath(ctx context.Context, bookmarkID int64, path string) (*model.Media, error) {
	var m model.Media
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, bookmark_id, path, sha256, created_at FROM media
		 WHERE bookmark_id = ? AND path = ?`,
		bookmarkID, path,
	).Scan(&m.ID, &m.BookmarkID, &m.Path, &m.SHA256, &m.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("media", path)
		}
		return nil, fmt.Errorf("sqlite: getting media (%d, %s): %w", bookmarkID, path, err)
	}
	return &m, nil
}
