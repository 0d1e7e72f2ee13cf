package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"testing"
)

// logEntry mirrors a change_log row for assertions.
type logEntry struct {
	Action    string
	Table     string
	ObjectID  int64
	OldValues sql.NullString
}

func readChangeLog(t *testing.T, db *DB, table string) []logEntry {
	t.Helper()
	rows, err := db.conn.QueryContext(context.Background(),
		`SELECT action, tbl, object_id, old_values FROM change_log WHERE tbl = ? ORDER BY id`, table)
	if err != nil {
		t.Fatalf("reading change_log: %v", err)
	}
	defer rows.Close()

	var entries []logEntry
	for rows.Next() {
		var e logEntry
		if err := rows.Scan(&e.Action, &e.Table, &e.ObjectID, &e.OldValues); err != nil {
			t.Fatalf("scanning change_log row: %v", err)
		}
		entries = append(entries, e)
	}
	return entries
}

func filterAction(entries []logEntry, action string) []logEntry {
	var out []logEntry
	for _, e := range entries {
		if e.Action == action {
			out = append(out, e)
		}
	}
	return out
}

func TestChangeLog_InsertRecorded(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db, 1)
	b, c := createTestBookmark(t, db, user.ID, "https://example.com/a", "A", "note")

	inserts := filterAction(readChangeLog(t, db, "bookmarks"), "INSERT")
	if len(inserts) != 1 {
		t.Fatalf("got %d bookmark INSERT entries, want 1", len(inserts))
	}
	if inserts[0].ObjectID != b.ID {
		t.Errorf("ObjectID = %d, want %d", inserts[0].ObjectID, b.ID)
	}
	if inserts[0].OldValues.Valid {
		t.Errorf("INSERT entry should have NULL old_values, got %q", inserts[0].OldValues.String)
	}

	commentInserts := filterAction(readChangeLog(t, db, "comments"), "INSERT")
	if len(commentInserts) != 1 || commentInserts[0].ObjectID != c.ID {
		t.Errorf("expected one comment INSERT for id %d, got %+v", c.ID, commentInserts)
	}
}

func TestChangeLog_UpdateRecordsChangedColumnsOnly(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db, 1)
	_, c := createTestBookmark(t, db, user.ID, "https://example.com/a", "A", "the original words")

	if _, err := db.EditComment(context.Background(), c.ID, "the revised words"); err != nil {
		t.Fatalf("EditComment() error = %v", err)
	}

	updates := filterAction(readChangeLog(t, db, "comments"), "UPDATE")
	if len(updates) == 0 {
		t.Fatal("expected at least one comment UPDATE entry")
	}

	// One entry must carry the old content; content is a logged column.
	var found bool
	for _, e := range updates {
		if e.OldValues.Valid && strings.Contains(e.OldValues.String, `"content":`) &&
			strings.Contains(e.OldValues.String, "the original words") {
			found = true
		}
	}
	if !found {
		t.Errorf("no UPDATE entry carries the old content: %+v", updates)
	}
}

// Render maintenance rewrites inner_render/full_render/rendered_at, none of
// which are logged columns. The update trigger is scoped to the logged
// columns, so a re-render writes nothing to the log — no megabytes of HTML,
// and no empty placeholder rows either.
func TestChangeLog_RenderColumnsNotLogged(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db, 1)
	b, _ := createTestBookmark(t, db, user.ID, "https://example.com/a", "A", "x")

	before := len(readChangeLog(t, db, "bookmarks"))

	if err := db.RerenderBookmark(context.Background(), b.ID); err != nil {
		t.Fatalf("RerenderBookmark() error = %v", err)
	}

	entries := readChangeLog(t, db, "bookmarks")
	if len(entries) != before {
		t.Errorf("re-render added %d change_log entries, want 0", len(entries)-before)
	}
	for _, e := range entries {
		if e.OldValues.Valid && strings.Contains(e.OldValues.String, "class=") {
			t.Errorf("change_log entry leaked render HTML: %q", e.OldValues.String)
		}
	}
}

func TestChangeLog_DeleteRecordsBeforeImage(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db, 1)
	b, c := createTestBookmark(t, db, user.ID, "https://example.com/a", "A", "irreplaceable thought")

	if err := db.DeleteBookmark(context.Background(), b.ID); err != nil {
		t.Fatalf("DeleteBookmark() error = %v", err)
	}

	deletes := filterAction(readChangeLog(t, db, "bookmarks"), "DELETE")
	if len(deletes) != 1 {
		t.Fatalf("got %d bookmark DELETE entries, want 1", len(deletes))
	}
	if !strings.Contains(deletes[0].OldValues.String, `"url":"https://example.com/a"`) {
		t.Errorf("DELETE entry missing url before-image: %q", deletes[0].OldValues.String)
	}

	// Cascade deletes fire the comment trigger too.
	commentDeletes := filterAction(readChangeLog(t, db, "comments"), "DELETE")
	if len(commentDeletes) != 1 {
		t.Fatalf("got %d comment DELETE entries, want 1", len(commentDeletes))
	}
	if commentDeletes[0].ObjectID != c.ID {
		t.Errorf("cascaded DELETE ObjectID = %d, want %d", commentDeletes[0].ObjectID, c.ID)
	}
	if !strings.Contains(commentDeletes[0].OldValues.String, "irreplaceable thought") {
		t.Errorf("comment before-image missing content: %q", commentDeletes[0].OldValues.String)
	}
}

func TestChangeLog_MergeLeavesRecoveryTrail(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db, 1)
	target, _ := createTestBookmark(t, db, user.ID, "https://example.com/a", "A", "kept")
	source, _ := createTestBookmark(t, db, user.ID, "https://example.com/b", "B", "moved")

	if _, err := db.MergeBookmarks(context.Background(), source.ID, target.ID); err != nil {
		t.Fatalf("MergeBookmarks() error = %v", err)
	}

	// The comment move shows up as an UPDATE with the old bookmark_id.
	var moveLogged bool
	for _, e := range filterAction(readChangeLog(t, db, "comments"), "UPDATE") {
		if e.OldValues.Valid && strings.Contains(e.OldValues.String, `"bookmark_id":`) {
			moveLogged = true
		}
	}
	if !moveLogged {
		t.Error("merge should log the comment's old bookmark_id")
	}

	// And the source bookmark's deletion is recorded.
	var sourceDeleted bool
	for _, e := range filterAction(readChangeLog(t, db, "bookmarks"), "DELETE") {
		if e.ObjectID == source.ID {
			sourceDeleted = true
		}
	}
	if !sourceDeleted {
		t.Error("merge should log the source bookmark deletion")
	}
}
