package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/clipmark/clipmark/internal/apperror"
	"github.com/clipmark/clipmark/internal/model"
	"github.com/clipmark/clipmark/internal/render"
	"github.com/clipmark/clipmark/internal/repository"
)

var _ repository.BookmarkRepository = (*DB)(nil)

// rowQuerier lets the scan helpers work on both *sql.Tx and *sql.DB.
type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

const bookmarkCols = `id, user_id, url, title, num_comments, render, rendered_at, created_at, updated_at`
const commentCols = `id, bookmark_id, content, sibling_idx, inner_render, full_render, rendered_at, created_at, updated_at`

func scanBookmark(row *sql.Row) (*model.Bookmark, error) {
	var b model.Bookmark
	var renderedAt sql.NullTime
	err := row.Scan(&b.ID, &b.UserID, &b.URL, &b.Title, &b.NumComments,
		&b.Render, &renderedAt, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if renderedAt.Valid {
		b.RenderedAt = &renderedAt.Time
	}
	return &b, nil
}

func scanCommentRows(rows *sql.Rows) ([]model.Comment, error) {
	defer rows.Close()
	var comments []model.Comment
	for rows.Next() {
		var c model.Comment
		var renderedAt sql.NullTime
		if err := rows.Scan(&c.ID, &c.BookmarkID, &c.Content, &c.SiblingIdx,
			&c.InnerRender, &c.FullRender, &renderedAt, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scanning comment row: %w", err)
		}
		if renderedAt.Valid {
			c.RenderedAt = &renderedAt.Time
		}
		comments = append(comments, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating comments: %w", err)
	}
	return comments, nil
}

func getBookmark(ctx context.Context, q rowQuerier, id int64) (*model.Bookmark, error) {
	b, err := scanBookmark(q.QueryRowContext(ctx,
		`SELECT `+bookmarkCols+` FROM bookmarks WHERE id = ?`, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("bookmark", id)
		}
		return nil, fmt.Errorf("sqlite: getting bookmark %d: %w", id, err)
	}
	return b, nil
}

func getComment(ctx context.Context, q rowQuerier, id int64) (*model.Comment, error) {
	var c model.Comment
	var renderedAt sql.NullTime
	err := q.QueryRowContext(ctx,
		`SELECT `+commentCols+` FROM comments WHERE id = ?`, id,
	).Scan(&c.ID, &c.BookmarkID, &c.Content, &c.SiblingIdx,
		&c.InnerRender, &c.FullRender, &renderedAt, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("comment", id)
		}
		return nil, fmt.Errorf("sqlite: getting comment %d: %w", id, err)
	}
	if renderedAt.Valid {
		c.RenderedAt = &renderedAt.Time
	}
	return &c, nil
}

// GetBookmarkByID retrieves a bookmark by id.
func (db *DB) GetBookmarkByID(ctx context.Context, id int64) (*model.Bookmark, error) {
	return getBookmark(ctx, db.conn, id)
}

// GetBookmarkByClip resolves the per-user (url, title) uniqueness key.
// Used by the clip endpoint to decide between "new bookmark" and "append
// comment to existing one".
func (db *DB) GetBookmarkByClip(ctx context.Context, userID, url, title string) (*model.Bookmark, error) {
	b, err := scanBookmark(db.conn.QueryRowContext(ctx,
		`SELECT `+bookmarkCols+` FROM bookmarks WHERE user_id = ? AND url = ? AND title = ?`,
		userID, url, title))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("bookmark", url)
		}
		return nil, fmt.Errorf("sqlite: looking up bookmark (%s, %s): %w", url, title, err)
	}
	return b, nil
}

// GetCommentByID retrieves a comment by id.
func (db *DB) GetCommentByID(ctx context.Context, id int64) (*model.Comment, error) {
	return getComment(ctx, db.conn, id)
}

// ListComments returns a bookmark's comments in sibling order (oldest first).
func (db *DB) ListComments(ctx context.Context, bookmarkID int64) ([]model.Comment, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+commentCols+` FROM comments WHERE bookmark_id = ? ORDER BY sibling_idx`,
		bookmarkID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing comments for bookmark %d: %w", bookmarkID, err)
	}
	return scanCommentRows(rows)
}

// CreateBookmark inserts a bookmark together with its first comment. The
// bookmark insert, comment insert, sibling-index assignment, numComments
// bump and render writes all commit or roll back together.
func (db *DB) CreateBookmark(ctx context.Context, b *model.Bookmark, first *model.Comment) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		now := time.Now()
		b.NumComments = 0
		b.CreatedAt = now
		b.UpdatedAt = now

		res, err := tx.ExecContext(ctx,
			`INSERT INTO bookmarks (user_id, url, title, num_comments, render, created_at, updated_at)
			 VALUES (?, ?, ?, 0, '', ?, ?)`,
			b.UserID, b.URL, b.Title, b.CreatedAt, b.UpdatedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return apperror.Conflict("bookmark", fmt.Sprintf("%s | %s", b.URL, b.Title))
			}
			return fmt.Errorf("sqlite: inserting bookmark: %w", err)
		}
		b.ID, err = res.LastInsertId()
		if err != nil {
			return fmt.Errorf("sqlite: reading bookmark id: %w", err)
		}

		return db.addCommentTx(ctx, tx, b, first)
	})
}

// AddComment appends a comment to an existing bookmark. The read of the
// current numComments and render, the index computation and both writes
// happen inside one transaction — the serialized writer is the only lock.
func (db *DB) AddComment(ctx context.Context, bookmarkID int64, c *model.Comment) (*model.Bookmark, error) {
	var b *model.Bookmark
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		b, err = getBookmark(ctx, tx, bookmarkID)
		if err != nil {
			return err
		}
		return db.addCommentTx(ctx, tx, b, c)
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}

// addCommentTx is the shared append path for CreateBookmark and AddComment.
//
// Sibling index assignment happens exactly here, exactly once: the new
// comment takes numComments+1, and numComments is incremented by the same
// statement batch. Nothing else ever writes sibling_idx (except the merge
// renumbering and the offline migration, both of which re-derive the full
// {1..N} sequence).
//
// Render maintenance, in order:
//  1. the new comment's inner and full fragments are rendered and persisted
//  2. existing siblings' full fragments are re-rendered — their "x/N"
//     indicator and next-links just changed
//  3. the bookmark render is updated via the first-line splice when a
//     render exists, or built from scratch for a brand-new bookmark
func (db *DB) addCommentTx(ctx context.Context, tx *sql.Tx, b *model.Bookmark, c *model.Comment) error {
	now := time.Now()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
		c.UpdatedAt = now
	}
	c.BookmarkID = b.ID
	c.SiblingIdx = b.NumComments + 1

	res, err := tx.ExecContext(ctx,
		`INSERT INTO comments (bookmark_id, content, sibling_idx, inner_render, full_render, created_at, updated_at)
		 VALUES (?, ?, ?, '', '', ?, ?)`,
		c.BookmarkID, c.Content, c.SiblingIdx, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting comment: %w", err)
	}
	c.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite: reading comment id: %w", err)
	}

	b.NumComments = c.SiblingIdx

	if err := renderCommentTx(ctx, tx, c, b); err != nil {
		return err
	}
	if err := refreshSiblingRendersTx(ctx, tx, b, c.ID); err != nil {
		return err
	}

	// Bookmark render: splice when possible, full build on first comment.
	var newRender string
	if b.Render == "" {
		newRender = render.BookmarkRender(b, []string{c.InnerRender})
	} else {
		pre, _ := render.BookmarkHeader(b, "")
		if err := render.CheckHeaderLine(pre); err != nil {
			return err
		}
		newRender, err = render.FastUpdateBookmarkRender(b.Render, c.InnerRender)
		if err != nil {
			return err
		}
	}

	renderedAt := time.Now()
	b.Render = newRender
	b.RenderedAt = &renderedAt
	b.UpdatedAt = now

	_, err = tx.ExecContext(ctx,
		`UPDATE bookmarks SET num_comments = ?, render = ?, rendered_at = ?, updated_at = ?
		 WHERE id = ?`,
		b.NumComments, b.Render, renderedAt, b.UpdatedAt, b.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating bookmark %d after comment: %w", b.ID, err)
	}
	return nil
}

// renderCommentTx computes and persists both fragments for one comment.
// Idempotent by construction: the fragment functions are pure, so unchanged
// inputs write byte-identical strings.
func renderCommentTx(ctx context.Context, tx *sql.Tx, c *model.Comment, b *model.Bookmark) error {
	c.InnerRender = render.CommentInner(c)
	c.FullRender = render.CommentFull(c, b)
	renderedAt := time.Now()
	c.RenderedAt = &renderedAt

	_, err := tx.ExecContext(ctx,
		`UPDATE comments SET inner_render = ?, full_render = ?, rendered_at = ? WHERE id = ?`,
		c.InnerRender, c.FullRender, renderedAt, c.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: persisting renders for comment %d: %w", c.ID, err)
	}
	return nil
}

// refreshSiblingRendersTx re-renders the full fragments of every comment of
// b except skipID. Inner fragments are untouched — only the wrapping header
// and sibling navigation depend on the (changed) comment count.
func refreshSiblingRendersTx(ctx context.Context, tx *sql.Tx, b *model.Bookmark, skipID int64) error {
	rows, err := tx.QueryContext(ctx,
		`SELECT `+commentCols+` FROM comments WHERE bookmark_id = ? AND id != ? ORDER BY sibling_idx`,
		b.ID, skipID)
	if err != nil {
		return fmt.Errorf("sqlite: loading siblings for bookmark %d: %w", b.ID, err)
	}
	siblings, err := scanCommentRows(rows)
	if err != nil {
		return err
	}
	for i := range siblings {
		s := &siblings[i]
		full := render.CommentFull(s, b)
		if full == s.FullRender {
			continue
		}
		renderedAt := time.Now()
		if _, err := tx.ExecContext(ctx,
			`UPDATE comments SET full_render = ?, rendered_at = ? WHERE id = ?`,
			full, renderedAt, s.ID); err != nil {
			return fmt.Errorf("sqlite: refreshing sibling render %d: %w", s.ID, err)
		}
	}
	return nil
}

// EditComment replaces a comment's content. Sibling index and creation time
// are untouched; modifiedTime and both fragments change, and the bookmark's
// cached render is rebuilt because the edited fragment sits mid-string.
func (db *DB) EditComment(ctx context.Context, commentID int64, content string) (*model.Comment, error) {
	var c *model.Comment
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		c, err = getComment(ctx, tx, commentID)
		if err != nil {
			return err
		}
		b, err := getBookmark(ctx, tx, c.BookmarkID)
		if err != nil {
			return err
		}

		c.Content = content
		c.UpdatedAt = time.Now()
		if _, err := tx.ExecContext(ctx,
			`UPDATE comments SET content = ?, updated_at = ? WHERE id = ?`,
			c.Content, c.UpdatedAt, c.ID); err != nil {
			return fmt.Errorf("sqlite: updating comment %d: %w", c.ID, err)
		}

		if err := renderCommentTx(ctx, tx, c, b); err != nil {
			return err
		}
		return rerenderBookmarkTx(ctx, tx, b)
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// RerenderBookmark is the full-recompute path: header + persisted inner
// fragments (newest first) + footer. The id-only entry point loads the row
// first; callers holding a loaded bookmark inside a transaction use
// rerenderBookmarkTx directly.
func (db *DB) RerenderBookmark(ctx context.Context, id int64) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		b, err := getBookmark(ctx, tx, id)
		if err != nil {
			return err
		}
		return rerenderBookmarkTx(ctx, tx, b)
	})
}

func rerenderBookmarkTx(ctx context.Context, tx *sql.Tx, b *model.Bookmark) error {
	rows, err := tx.QueryContext(ctx,
		`SELECT inner_render FROM comments WHERE bookmark_id = ? ORDER BY created_at DESC, id DESC`,
		b.ID)
	if err != nil {
		return fmt.Errorf("sqlite: loading fragments for bookmark %d: %w", b.ID, err)
	}
	defer rows.Close()

	var frags []string
	for rows.Next() {
		var f string
		if err := rows.Scan(&f); err != nil {
			return fmt.Errorf("sqlite: scanning fragment: %w", err)
		}
		frags = append(frags, f)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("sqlite: iterating fragments: %w", err)
	}

	b.Render = render.BookmarkRender(b, frags)
	renderedAt := time.Now()
	b.RenderedAt = &renderedAt

	_, err = tx.ExecContext(ctx,
		`UPDATE bookmarks SET render = ?, rendered_at = ? WHERE id = ?`,
		b.Render, renderedAt, b.ID)
	if err != nil {
		return fmt.Errorf("sqlite: persisting render for bookmark %d: %w", b.ID, err)
	}
	return nil
}

// DeleteBookmark removes a bookmark; comments, backups and media cascade.
func (db *DB) DeleteBookmark(ctx context.Context, id int64) error {
	result, err := db.conn.ExecContext(ctx, `DELETE FROM bookmarks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting bookmark %d: %w", id, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("bookmark", id)
	}
	return nil
}

// MergeBookmarks folds the source bookmark into the target: comments move
// over, sibling indices are renumbered 1..N in creation order, the target's
// numComments and modified time follow the latest comment, every render is
// rebuilt, and the source row is deleted (cascading its backups and media).
func (db *DB) MergeBookmarks(ctx context.Context, fromID, toID int64) (*model.Bookmark, error) {
	if fromID == toID {
		return nil, apperror.ValidationFailed("bookmarkId", "cannot merge a bookmark into itself")
	}

	var to *model.Bookmark
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := getBookmark(ctx, tx, fromID); err != nil {
			return err
		}
		var err error
		to, err = getBookmark(ctx, tx, toID)
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE comments SET bookmark_id = ? WHERE bookmark_id = ?`, toID, fromID); err != nil {
			return fmt.Errorf("sqlite: moving comments %d -> %d: %w", fromID, toID, err)
		}

		// Renumber in creation order and re-render everything: every
		// fragment's sibling context changed.
		rows, err := tx.QueryContext(ctx,
			`SELECT `+commentCols+` FROM comments WHERE bookmark_id = ? ORDER BY created_at, id`,
			toID)
		if err != nil {
			return fmt.Errorf("sqlite: loading merged comments: %w", err)
		}
		comments, err := scanCommentRows(rows)
		if err != nil {
			return err
		}

		to.NumComments = len(comments)
		for i := range comments {
			c := &comments[i]
			c.SiblingIdx = i + 1
			c.BookmarkID = toID
			if _, err := tx.ExecContext(ctx,
				`UPDATE comments SET sibling_idx = ? WHERE id = ?`, c.SiblingIdx, c.ID); err != nil {
				return fmt.Errorf("sqlite: renumbering comment %d: %w", c.ID, err)
			}
			if err := renderCommentTx(ctx, tx, c, to); err != nil {
				return err
			}
			if c.CreatedAt.After(to.UpdatedAt) {
				to.UpdatedAt = c.CreatedAt
			}
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE bookmarks SET num_comments = ?, updated_at = ? WHERE id = ?`,
			to.NumComments, to.UpdatedAt, toID); err != nil {
			return fmt.Errorf("sqlite: updating merge target %d: %w", toID, err)
		}

		if err := rerenderBookmarkTx(ctx, tx, to); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM bookmarks WHERE id = ?`, fromID); err != nil {
			return fmt.Errorf("sqlite: deleting merged bookmark %d: %w", fromID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return to, nil
}

// BuildFeed concatenates the cached renders of a user's bookmarks, newest
// modified first. O(1) work per bookmark — the strings were paid for at
// write time.
func (db *DB) BuildFeed(ctx context.Context, userID string) (string, error) {
	return db.concatColumn(ctx,
		`SELECT render FROM bookmarks WHERE user_id = ? ORDER BY updated_at DESC, id DESC`,
		userID)
}

// BuildCommentsFeed concatenates the full fragments of every comment of the
// user's bookmarks, newest first.
func (db *DB) BuildCommentsFeed(ctx context.Context, userID string) (string, error) {
	return db.concatColumn(ctx,
		`SELECT c.full_render FROM comments c
		 JOIN bookmarks b ON b.id = c.bookmark_id
		 WHERE b.user_id = ? ORDER BY c.created_at DESC, c.id DESC`,
		userID)
}

func (db *DB) concatColumn(ctx context.Context, query, userID string) (string, error) {
	rows, err := db.conn.QueryContext(ctx, query, userID)
	if err != nil {
		return "", fmt.Errorf("sqlite: building feed for user %s: %w", userID, err)
	}
	defer rows.Close()

	var sb []byte
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return "", fmt.Errorf("sqlite: scanning feed row: %w", err)
		}
		sb = append(sb, s...)
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("sqlite: iterating feed rows: %w", err)
	}
	return string(sb), nil
}
