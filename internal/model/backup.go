package model

import "time"

// Backup is a stored copy of a bookmarked page's HTML, used for offline
// viewing independent of the live page.
//
// Original is the raw snapshot as the bookmarklet captured it, before any
// URL rewriting. Content is the processed snapshot with media references
// rewritten to the local mirror. Multiple backups may exist per bookmark
// (throttled to roughly one per month); the most recent by CreatedAt is
// authoritative for display.
type Backup struct {
	ID         int64     `json:"id"         db:"id"`
	BookmarkID int64     `json:"bookmarkId" db:"bookmark_id"`
	Original   string    `json:"-"          db:"original"`
	Content    string    `json:"-"          db:"content"`
	CreatedAt  time.Time `json:"createdAt"  db:"created_at"`
}
