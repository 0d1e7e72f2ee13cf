package model

import "time"

// Comment is a timestamped annotation attached to a bookmark.
//
// SiblingIdx is the 1-based, creation-order position of this comment among
// its bookmark's comments. It is assigned exactly once, at creation time, as
// "current numComments + 1" inside the same transaction as the insert, and is
// never reused. For a bookmark with N comments the set of sibling indices is
// exactly {1, …, N} — a duplicate or a gap is a correctness bug, not a
// recoverable condition.
//
// InnerRender is the cached content-only fragment (body, timestamp, edit
// controls). FullRender wraps the inner fragment in the bookmark header plus
// sibling navigation (prev/next links, "x/N" indicator). Both are refreshed
// by the render engine whenever the comment or its sibling context changes.
type Comment struct {
	ID          int64      `json:"id"         db:"id"`
	BookmarkID  int64      `json:"bookmarkId" db:"bookmark_id"`
	Content     string     `json:"content"    db:"content"`
	SiblingIdx  int        `json:"siblingIdx" db:"sibling_idx"`
	InnerRender string     `json:"-"          db:"inner_render"`
	FullRender  string     `json:"-"          db:"full_render"`
	RenderedAt  *time.Time `json:"-"          db:"rendered_at"`
	CreatedAt   time.Time  `json:"createdAt"  db:"created_at"`
	UpdatedAt   time.Time  `json:"updatedAt"  db:"updated_at"`
}
