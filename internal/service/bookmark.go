package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/clipmark/clipmark/internal/apperror"
	"github.com/clipmark/clipmark/internal/model"
	"github.com/clipmark/clipmark/internal/render"
	"github.com/clipmark/clipmark/internal/repository"
	"github.com/clipmark/clipmark/internal/snapshot"
)

// Validation constants.
const (
	MaxURLLength     = 2048
	MaxTitleLength   = 500
	MaxCommentLength = 50000 // ~50KB of annotation text

	// backupInterval throttles page snapshots: a bookmark clipped again
	// within this window keeps its existing backup.
	backupInterval = 30 * 24 * time.Hour
)

// Mirrorer starts background mirroring of snapshot assets.
type Mirrorer interface {
	MirrorAsync(bookmarkID int64, refs []snapshot.Ref)
}

// BookmarkService handles the clip/annotate business logic. It orchestrates
// the bookmark repository (which owns the transactional render updates),
// the backup store, the snapshot pipeline, and the feed cache.
type BookmarkService struct {
	repo    repository.BookmarkRepository
	backups repository.BackupRepository
	cache   *render.FeedCache
	mirror  Mirrorer
	logger  *slog.Logger
}

func NewBookmarkService(
	repo repository.BookmarkRepository,
	backups repository.BackupRepository,
	cache *render.FeedCache,
	mirror Mirrorer,
	logger *slog.Logger,
) *BookmarkService {
	return &BookmarkService{
		repo:    repo,
		backups: backups,
		cache:   cache,
		mirror:  mirror,
		logger:  logger,
	}
}

// ClipRequest is one bookmarklet submission: the page being clipped plus
// the user's annotation. HTML is the page source captured by the
// bookmarklet; empty when the user clips without a snapshot.
type ClipRequest struct {
	URL     string
	Title   string
	Comment string
	HTML    string
}

// ClipResult reports what a clip did: Created is true when a new bookmark
// was made, false when the comment was appended to an existing one.
type ClipResult struct {
	Bookmark *model.Bookmark
	Comment  *model.Comment
	Created  bool
}

// Clip is the main entry point. Clipping a (url, title) pair the user has
// not seen before creates a bookmark with the comment as its first
// annotation; clipping it again appends a sibling comment. The page
// snapshot, if any, is stored best-effort — a failed snapshot never rolls
// back the clip.
func (s *BookmarkService) Clip(ctx context.Context, userID string, req ClipRequest) (*ClipResult, error) {
	// Normalize once, up front. Browser-captured titles routinely carry
	// stray whitespace; the lookup and the stored row must use the same
	// normalized values or a re-clip misses the existing bookmark and
	// trips the uniqueness constraint instead of appending.
	req.URL = strings.TrimSpace(req.URL)
	req.Title = strings.TrimSpace(req.Title)

	if err := validateClip(req); err != nil {
		return nil, err
	}

	comment := &model.Comment{Content: strings.TrimSpace(req.Comment)}

	b, err := s.repo.GetBookmarkByClip(ctx, userID, req.URL, req.Title)
	result := &ClipResult{Comment: comment}
	switch {
	case err == nil:
		updated, err := s.repo.AddComment(ctx, b.ID, comment)
		if err != nil {
			return nil, fmt.Errorf("service/bookmark: adding comment to bookmark %d: %w", b.ID, err)
		}
		result.Bookmark = updated

	case errors.Is(err, apperror.ErrNotFound):
		b = &model.Bookmark{
			UserID: userID,
			URL:    req.URL,
			Title:  req.Title,
		}
		if err := s.repo.CreateBookmark(ctx, b, comment); err != nil {
			return nil, fmt.Errorf("service/bookmark: creating bookmark: %w", err)
		}
		result.Bookmark = b
		result.Created = true

	default:
		return nil, fmt.Errorf("service/bookmark: resolving clip target: %w", err)
	}

	if req.HTML != "" {
		s.snapshotPage(ctx, result.Bookmark, req)
	}

	s.cache.Invalidate(userID)

	s.logger.Info("clip stored",
		slog.String("userID", userID),
		slog.Int64("bookmarkID", result.Bookmark.ID),
		slog.Int64("commentID", comment.ID),
		slog.Bool("created", result.Created),
	)
	return result, nil
}

// snapshotPage stores a backup of the clipped page and kicks off asset
// mirroring. Every failure here is logged and swallowed: the clip itself
// already committed.
func (s *BookmarkService) snapshotPage(ctx context.Context, b *model.Bookmark, req ClipRequest) {
	last, err := s.backups.LatestBackupTime(ctx, b.ID)
	if err != nil {
		s.logger.Warn("snapshot skipped: reading backup time",
			slog.Int64("bookmarkID", b.ID), slog.Any("error", err))
		return
	}
	if last != nil && time.Since(*last) < backupInterval {
		return
	}

	rewritten, refs, err := snapshot.Rewrite(req.HTML, req.URL, b.ID)
	if err != nil {
		s.logger.Warn("snapshot skipped: rewriting page",
			slog.Int64("bookmarkID", b.ID), slog.Any("error", err))
		return
	}

	if err := s.backups.CreateBackup(ctx, &model.Backup{
		BookmarkID: b.ID,
		Original:   req.HTML,
		Content:    rewritten,
	}); err != nil {
		s.logger.Warn("snapshot skipped: storing backup",
			slog.Int64("bookmarkID", b.ID), slog.Any("error", err))
		return
	}

	if len(refs) > 0 {
		s.mirror.MirrorAsync(b.ID, refs)
	}
}

// EditComment replaces a comment's text. Only the owner of the enclosing
// bookmark may edit.
func (s *BookmarkService) EditComment(ctx context.Context, userID string, commentID int64, content string) (*model.Comment, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, apperror.ValidationFailed("content", "cannot be empty")
	}
	if len(content) > MaxCommentLength {
		return nil, apperror.ValidationFailed("content", fmt.Sprintf("cannot exceed %d characters", MaxCommentLength))
	}

	existing, err := s.repo.GetCommentByID(ctx, commentID)
	if err != nil {
		return nil, fmt.Errorf("service/bookmark: fetching comment %d: %w", commentID, err)
	}
	if err := s.authorize(ctx, userID, existing.BookmarkID); err != nil {
		return nil, err
	}

	updated, err := s.repo.EditComment(ctx, commentID, content)
	if err != nil {
		return nil, fmt.Errorf("service/bookmark: editing comment %d: %w", commentID, err)
	}

	s.cache.Invalidate(userID)
	return updated, nil
}

// DeleteBookmark removes a bookmark with its comments, backups, and media.
func (s *BookmarkService) DeleteBookmark(ctx context.Context, userID string, bookmarkID int64) error {
	if err := s.authorize(ctx, userID, bookmarkID); err != nil {
		return err
	}
	if err := s.repo.DeleteBookmark(ctx, bookmarkID); err != nil {
		return fmt.Errorf("service/bookmark: deleting bookmark %d: %w", bookmarkID, err)
	}
	s.cache.Invalidate(userID)
	return nil
}

// Merge folds the source bookmark's comments into the target and deletes
// the source. Both bookmarks must belong to the user.
func (s *BookmarkService) Merge(ctx context.Context, userID string, fromID, toID int64) (*model.Bookmark, error) {
	if fromID == toID {
		return nil, apperror.ValidationFailed("from", "cannot merge a bookmark into itself")
	}
	if err := s.authorize(ctx, userID, fromID); err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, userID, toID); err != nil {
		return nil, err
	}

	merged, err := s.repo.MergeBookmarks(ctx, fromID, toID)
	if err != nil {
		return nil, fmt.Errorf("service/bookmark: merging %d into %d: %w", fromID, toID, err)
	}

	s.cache.Invalidate(userID)
	s.logger.Info("bookmarks merged",
		slog.String("userID", userID),
		slog.Int64("fromID", fromID),
		slog.Int64("toID", toID),
	)
	return merged, nil
}

// GetBookmark returns a bookmark the user owns, with its comments loaded.
func (s *BookmarkService) GetBookmark(ctx context.Context, userID string, bookmarkID int64) (*model.Bookmark, []model.Comment, error) {
	b, err := s.repo.GetBookmarkByID(ctx, bookmarkID)
	if err != nil {
		return nil, nil, fmt.Errorf("service/bookmark: fetching bookmark %d: %w", bookmarkID, err)
	}
	if b.UserID != userID {
		return nil, nil, apperror.Forbidden("bookmark belongs to another user")
	}
	comments, err := s.repo.ListComments(ctx, bookmarkID)
	if err != nil {
		return nil, nil, fmt.Errorf("service/bookmark: listing comments of %d: %w", bookmarkID, err)
	}
	return b, comments, nil
}

// GetComment returns one comment the user owns.
func (s *BookmarkService) GetComment(ctx context.Context, userID string, commentID int64) (*model.Comment, error) {
	c, err := s.repo.GetCommentByID(ctx, commentID)
	if err != nil {
		return nil, fmt.Errorf("service/bookmark: fetching comment %d: %w", commentID, err)
	}
	if err := s.authorize(ctx, userID, c.BookmarkID); err != nil {
		return nil, err
	}
	return c, nil
}

// GetCommentBySibling resolves a comment by its 1-based position within a
// bookmark. Sibling navigation links address comments this way.
func (s *BookmarkService) GetCommentBySibling(ctx context.Context, userID string, bookmarkID int64, idx int) (*model.Comment, error) {
	if err := s.authorize(ctx, userID, bookmarkID); err != nil {
		return nil, err
	}
	comments, err := s.repo.ListComments(ctx, bookmarkID)
	if err != nil {
		return nil, fmt.Errorf("service/bookmark: listing comments of %d: %w", bookmarkID, err)
	}
	for i := range comments {
		if comments[i].SiblingIdx == idx {
			return &comments[i], nil
		}
	}
	return nil, apperror.NotFound("comment", fmt.Sprintf("%d of bookmark %d", idx, bookmarkID))
}

// Feed returns the user's bookmark feed HTML, served from the cache.
func (s *BookmarkService) Feed(ctx context.Context, userID string) (string, error) {
	return s.cache.Feed(ctx, userID)
}

// CommentsFeed returns the flat comment feed HTML, served from the cache.
func (s *BookmarkService) CommentsFeed(ctx context.Context, userID string) (string, error) {
	return s.cache.CommentsFeed(ctx, userID)
}

// LatestSnapshot returns the most recent stored page snapshot.
func (s *BookmarkService) LatestSnapshot(ctx context.Context, userID string, bookmarkID int64) (*model.Backup, error) {
	if err := s.authorize(ctx, userID, bookmarkID); err != nil {
		return nil, err
	}
	backup, err := s.backups.LatestBackup(ctx, bookmarkID)
	if err != nil {
		return nil, fmt.Errorf("service/bookmark: fetching snapshot of %d: %w", bookmarkID, err)
	}
	return backup, nil
}

// authorize loads the bookmark and checks ownership.
func (s *BookmarkService) authorize(ctx context.Context, userID string, bookmarkID int64) error {
	b, err := s.repo.GetBookmarkByID(ctx, bookmarkID)
	if err != nil {
		return fmt.Errorf("service/bookmark: fetching bookmark %d: %w", bookmarkID, err)
	}
	if b.UserID != userID {
		return apperror.Forbidden("bookmark belongs to another user")
	}
	return nil
}

func validateClip(req ClipRequest) error {
	if strings.TrimSpace(req.URL) == "" {
		return apperror.ValidationFailed("url", "cannot be empty")
	}
	if len(req.URL) > MaxURLLength {
		return apperror.ValidationFailed("url", fmt.Sprintf("cannot exceed %d characters", MaxURLLength))
	}
	if u, err := url.Parse(req.URL); err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return apperror.ValidationFailed("url", "must be an absolute http(s) URL")
	}
	if len(req.Title) > MaxTitleLength {
		return apperror.ValidationFailed("title", fmt.Sprintf("cannot exceed %d characters", MaxTitleLength))
	}
	if strings.TrimSpace(req.Comment) == "" {
		return apperror.ValidationFailed("comment", "cannot be empty")
	}
	if len(req.Comment) > MaxCommentLength {
		return apperror.ValidationFailed("comment", fmt.Sprintf("cannot exceed %d characters", MaxCommentLength))
	}
	return nil
}
