package sqlite

import (
	"context"
	"testing"

	"github.com/clipmark/clipmark/internal/model"
)

// newTestDB opens a fresh in-memory database. The pool is capped at one
// connection, so ":memory:" behaves like a file for the whole test.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// createTestUser inserts a user and returns it; bookmarks need a real owner
// for the foreign key.
func createTestUser(t *testing.T, db *DB, githubID int64) *model.User {
	t.Helper()
	user := &model.User{
		GitHubID: githubID,
		Login:    "tester",
		Email:    "tester@example.com",
	}
	if err := db.Upsert(context.Background(), user); err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}
	return user
}

// createTestBookmark inserts a bookmark with one comment, the way the clip
// endpoint does.
func createTestBookmark(t *testing.T, db *DB, userID, url, title, comment string) (*model.Bookmark, *model.Comment) {
	t.Helper()
	b := &model.Bookmark{UserID: userID, URL: url, Title: title}
	c := &model.Comment{Content: comment}
	if err := db.CreateBookmark(context.Background(), b, c); err != nil {
		t.Fatalf("failed to create test bookmark: %v", err)
	}
	return b, c
}

// addTestComment appends a comment to an existing bookmark.
func addTestComment(t *testing.T, db *DB, bookmarkID int64, content string) (*model.Bookmark, *model.Comment) {
	t.Helper()
	c := &model.Comment{Content: content}
	b, err := db.AddComment(context.Background(), bookmarkID, c)
	if err != nil {
		t.Fatalf("failed to add test comment: %v", err)
	}
	return b, c
}
