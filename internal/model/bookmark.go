// Package model defines the data structures used throughout the application.
// In Go, we use structs to represent our data — similar to classes in other languages,
// but without inheritance. Go favours composition over inheritance.
package model

import "time"

// Bookmark is a saved URL+title pair owned by a user. It anchors a thread of
// comments and carries a denormalized, pre-rendered HTML feed entry so the
// feed view is a string concatenation rather than a join+template pass.
//
// (URL, Title, UserID) is unique per user: clipping the same page with the
// same title appends a comment to the existing bookmark instead of creating
// a new one.
//
// Render and RenderedAt are cache fields. They are derived from the bookmark
// header plus the comment fragments (newest first) and are refreshed on every
// mutation that touches this bookmark. The change-log triggers deliberately
// ignore them.
type Bookmark struct {
	ID          int64      `json:"id"          db:"id"`
	UserID      string     `json:"userId"      db:"user_id"`
	URL         string     `json:"url"         db:"url"`
	Title       string     `json:"title"       db:"title"`
	NumComments int        `json:"numComments" db:"num_comments"`
	Render      string     `json:"-"           db:"render"`
	RenderedAt  *time.Time `json:"-"           db:"rendered_at"`
	CreatedAt   time.Time  `json:"createdAt"   db:"created_at"`
	UpdatedAt   time.Time  `json:"updatedAt"   db:"updated_at"`
}
