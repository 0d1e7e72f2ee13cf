package model

import "time"

// Media maps a (bookmark, path) pair to a content hash. Path is the original
// remote URL (or filename) referenced by a snapshot. The actual bytes live in
// a Blob row keyed by SHA256 — identical content referenced from several
// bookmarks or paths is stored once.
//
// (SHA256, Path, BookmarkID) is unique; re-inserting the same mapping is a
// no-op, which makes the snapshot pipeline safely re-runnable.
type Media struct {
	ID         int64     `json:"id"         db:"id"`
	BookmarkID int64     `json:"bookmarkId" db:"bookmark_id"`
	Path       string    `json:"path"       db:"path"`
	SHA256     string    `json:"sha256"     db:"sha256"`
	CreatedAt  time.Time `json:"createdAt"  db:"created_at"`
}

// Blob is a content-addressed record of downloaded bytes. Blobs are never
// automatically reclaimed: a blob can outlive every media row referencing it.
// That leak is an accepted space tradeoff — reclamation would require
// reference counting across bookmark deletion, and the corpus is one user's
// reading list, not a multi-tenant store.
type Blob struct {
	SHA256    string    `json:"sha256"    db:"sha256"`
	Mime      string    `json:"mime"      db:"mime"`
	Size      int64     `json:"size"      db:"size"`
	Content   []byte    `json:"-"         db:"content"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}
