package model

import "time"

// ChangeLogEntry is one row of the append-only mutation log. Rows are written
// exclusively by database triggers (see internal/schema) — application code
// never inserts, updates, deletes, or reads them to make decisions. The log
// exists solely for manual point-in-time recovery.
//
// OldValues is a JSON object of the columns whose old value differed from the
// new one (UPDATE), or of all logged columns (DELETE). It is NULL for INSERT.
type ChangeLogEntry struct {
	ID        int64     `json:"id"        db:"id"`
	Action    string    `json:"action"    db:"action"` // INSERT, UPDATE, DELETE
	Table     string    `json:"table"     db:"tbl"`
	ObjectID  int64     `json:"objectId"  db:"object_id"`
	OldValues *string   `json:"oldValues" db:"old_values"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}
