package schema

import (
	"context"
	"fmt"
	"strings"
)

// Change-log triggers.
//
// Every row-level mutation touching a logged column of a designated table is
// recorded in change_log by AFTER INSERT/UPDATE/DELETE triggers, independent
// of call sites: an application bug that forgets to log still gets logged,
// and cascade deletes fire the triggers too. The log is one-way telemetry
// for manual recovery — nothing in the render or migration path reads it.
//
// Trigger bodies are generated from the static column lists below, NOT from
// live table introspection. Tying trigger shape to a reviewable per-version
// list avoids quoting/injection concerns and means a schema change that
// forgets to update the list is caught in review, not at runtime.

// TableLog names a designated table and the columns whose old values are
// worth recording. Volatile cache columns (render, inner_render, full_render,
// rendered_at) and bookkeeping timestamps are deliberately absent: the update
// trigger fires only on these columns, so render maintenance never touches
// the log.
type TableLog struct {
	Table   string
	Columns []string
}

// LogTablesV5 is the v5 trigger metadata.
var LogTablesV5 = []TableLog{
	{Table: "bookmarks", Columns: []string{"user_id", "url", "title", "num_comments"}},
	{Table: "comments", Columns: []string{"bookmark_id", "content", "sibling_idx"}},
	{Table: "backups", Columns: []string{"bookmark_id", "created_at"}},
	{Table: "media", Columns: []string{"bookmark_id", "path", "sha256"}},
}

// InstallChangeLogTriggers (re)installs the three triggers for each table.
// DROP TRIGGER IF EXISTS before CREATE makes re-running setup idempotent —
// never an "already exists" error on schema upgrade or repeated boot.
func InstallChangeLogTriggers(ctx context.Context, e Execer, tables []TableLog) error {
	for _, t := range tables {
		for _, stmt := range triggerStatements(t) {
			if _, err := e.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("schema: installing change-log triggers for %s: %w", t.Table, err)
			}
		}
	}
	return nil
}

func triggerStatements(t TableLog) []string {
	return []string{
		fmt.Sprintf(`DROP TRIGGER IF EXISTS %s_log_insert`, t.Table),
		insertTrigger(t),
		fmt.Sprintf(`DROP TRIGGER IF EXISTS %s_log_update`, t.Table),
		updateTrigger(t),
		fmt.Sprintf(`DROP TRIGGER IF EXISTS %s_log_delete`, t.Table),
		deleteTrigger(t),
	}
}

// insertTrigger records only the new row's id; the row itself is in the table.
func insertTrigger(t TableLog) string {
	return fmt.Sprintf(`CREATE TRIGGER %s_log_insert AFTER INSERT ON %s
BEGIN
	INSERT INTO change_log (action, tbl, object_id, old_values)
	VALUES ('INSERT', '%s', NEW.id, NULL);
END`, t.Table, t.Table, t.Table)
}

// updateTrigger records a JSON object of only the columns whose old value
// differs from the new one. "IS NOT" (rather than "<>") compares NULLs
// correctly. The object is assembled as '{' + comma-joined pairs + '}' with
// the trailing comma trimmed; json_quote handles escaping.
//
// "UPDATE OF <columns>" scopes the trigger to statements that touch a
// logged column, so render maintenance (which rewrites only cache columns
// and timestamps) writes nothing to the log at all.
func updateTrigger(t TableLog) string {
	var pairs strings.Builder
	for i, col := range t.Columns {
		if i > 0 {
			pairs.WriteString(" ||\n\t\t")
		}
		pairs.WriteString(fmt.Sprintf(
			`CASE WHEN OLD.%s IS NOT NEW.%s THEN '"%s":' || json_quote(OLD.%s) || ',' ELSE '' END`,
			col, col, col, col))
	}
	return fmt.Sprintf(`CREATE TRIGGER %s_log_update AFTER UPDATE OF %s ON %s
BEGIN
	INSERT INTO change_log (action, tbl, object_id, old_values)
	VALUES ('UPDATE', '%s', OLD.id,
		'{' || RTRIM(%s, ',') || '}');
END`, t.Table, strings.Join(t.Columns, ", "), t.Table, t.Table, pairs.String())
}

// deleteTrigger records all logged columns' old values — the full
// before-image needed to reconstruct the row by hand.
func deleteTrigger(t TableLog) string {
	args := make([]string, 0, len(t.Columns)*2)
	for _, col := range t.Columns {
		args = append(args, fmt.Sprintf("'%s'", col), "OLD."+col)
	}
	return fmt.Sprintf(`CREATE TRIGGER %s_log_delete AFTER DELETE ON %s
BEGIN
	INSERT INTO change_log (action, tbl, object_id, old_values)
	VALUES ('DELETE', '%s', OLD.id, json_object(%s));
END`, t.Table, t.Table, t.Table, strings.Join(args, ", "))
}
