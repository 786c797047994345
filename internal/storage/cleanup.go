package storage

import "fmt"

// DeleteOlderThan deletes journal rows from before the given unix epoch.
// The latest run is always kept; startup compares against it.
// Returns the total number of deleted rows.
func (d *DB) DeleteOlderThan(before int64) (int64, error) {
	tx, err := d.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}

	var total int64
	stmts := []struct {
		name string
		sql  string
	}{
		{"display_events", "DELETE FROM display_events WHERE timestamp < ?"},
		{"runs", "DELETE FROM runs WHERE started_at < ? AND id != (SELECT id FROM runs ORDER BY started_at DESC, rowid DESC LIMIT 1)"},
	}

	for _, s := range stmts {
		res, err := tx.Exec(s.sql, before)
		if err != nil {
			tx.Rollback()
			return 0, fmt.Errorf("delete from %s: %w", s.name, err)
		}
		n, _ := res.RowsAffected()
		total += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return total, nil
}
