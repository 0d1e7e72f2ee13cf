package repository

import (
	"context"
	"time"

	"github.com/clipmark/clipmark/internal/model"
)

type UserRepository interface {
	Upsert(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
}

type ClipTokenRepository interface {
	SaveClipToken(ctx context.Context, userID, tokenHash string) error
	GetClipTokenHash(ctx context.Context, userID string) (string, error)
}

// BookmarkRepository owns every read-modify-write over bookmarks and
// comments, including the cached renders. Mutating methods refresh the
// affected render columns inside the same transaction as the relational
// write — callers never see a committed row with a stale render.
type BookmarkRepository interface {
	// CreateBookmark inserts a bookmark together with its first comment.
	CreateBookmark(ctx context.Context, b *model.Bookmark, first *model.Comment) error
	// AddComment appends a comment to an existing bookmark, assigning the
	// next sibling index and bumping numComments atomically. Returns the
	// updated bookmark.
	AddComment(ctx context.Context, bookmarkID int64, c *model.Comment) (*model.Bookmark, error)
	// EditComment replaces a comment's content and refreshes its renders
	// and its bookmark's render. SiblingIdx and CreatedAt are untouched.
	EditComment(ctx context.Context, commentID int64, content string) (*model.Comment, error)
	// MergeBookmarks moves every comment of the source bookmark onto the
	// target, renumbers sibling indices in creation order, deletes the
	// source (with its backups and media), and re-renders the target.
	MergeBookmarks(ctx context.Context, fromID, toID int64) (*model.Bookmark, error)
	// RerenderBookmark recomputes a bookmark's cached render from the
	// persisted comment fragments. The id-only overload of the render
	// refresh — used when the caller has no loaded row in hand.
	RerenderBookmark(ctx context.Context, id int64) error

	GetBookmarkByID(ctx context.Context, id int64) (*model.Bookmark, error)
	// GetBookmarkByClip resolves the (url, title, user) uniqueness key.
	GetBookmarkByClip(ctx context.Context, userID, url, title string) (*model.Bookmark, error)
	GetCommentByID(ctx context.Context, id int64) (*model.Comment, error)
	ListComments(ctx context.Context, bookmarkID int64) ([]model.Comment, error)
	DeleteBookmark(ctx context.Context, id int64) error
}

type BackupRepository interface {
	CreateBackup(ctx context.Context, backup *model.Backup) error
	// LatestBackupTime returns nil when the bookmark has no backups.
	LatestBackupTime(ctx context.Context, bookmarkID int64) (*time.Time, error)
	LatestBackup(ctx context.Context, bookmarkID int64) (*model.Backup, error)
}

// MediaRepository stores mirrored snapshot assets. Both inserts treat a
// uniqueness violation as success: the constraint encodes legitimate
// idempotence (same content, same mapping), not a conflict.
type MediaRepository interface {
	InsertBlob(ctx context.Context, blob *model.Blob) error
	InsertMedia(ctx context.Context, media *model.Media) error
	GetBlob(ctx context.Context, sha256 string) (*model.Blob, error)
	GetMediaByPath(ctx context.Context, bookmarkID int64, path string) (*model.Media, error)
}
