package storage

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	started_at INTEGER NOT NULL,
	stopped_at INTEGER,
	clean INTEGER NOT NULL DEFAULT 0,
	pid INTEGER NOT NULL,
	boot_time INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);

CREATE TABLE IF NOT EXISTS display_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp INTEGER NOT NULL,
	run_id TEXT NOT NULL,
	state TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_display_ts ON display_events(timestamp);
`

// Run is one lifetime of the agent process.
type Run struct {
	ID        string `json:"id"`
	StartedAt int64  `json:"started_at"`
	StoppedAt int64  `json:"stopped_at"` // 0 while running or if the process was killed
	Clean     bool   `json:"clean"`
	PID       int    `json:"pid"`
	BootTime  int64  `json:"boot_time"` // host boot time, 0 if unknown
}

// DisplayEvent is a display power transition seen during a run.
type DisplayEvent struct {
	Timestamp int64  `json:"timestamp"`
	RunID     string `json:"run_id"`
	State     string `json:"state"`
}

// DB wraps the SQLite run journal.
type DB struct {
	db *sql.DB
}

// Open opens or creates the SQLite database at the given path.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &DB{db: db}, nil
}

// Close closes the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// StartRun records the start of a run.
func (d *DB) StartRun(r Run) error {
	_, err := d.db.Exec(
		"INSERT INTO runs (id, started_at, pid, boot_time) VALUES (?, ?, ?, ?)",
		r.ID, r.StartedAt, r.PID, r.BootTime,
	)
	return err
}

// StopRun marks a run as cleanly stopped.
func (d *DB) StopRun(id string, stoppedAt int64) error {
	res, err := d.db.Exec("UPDATE runs SET stopped_at = ?, clean = 1 WHERE id = ?", stoppedAt, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("run %s not found", id)
	}
	return nil
}

// LatestRun returns the most recently started run, or nil if there is none.
func (d *DB) LatestRun() (*Run, error) {
	row := d.db.QueryRow("SELECT id, started_at, COALESCE(stopped_at, 0), clean, pid, boot_time FROM runs ORDER BY started_at DESC, rowid DESC LIMIT 1")
	var r Run
	var clean int
	err := row.Scan(&r.ID, &r.StartedAt, &r.StoppedAt, &clean, &r.PID, &r.BootTime)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	r.Clean = clean != 0
	return &r, nil
}

// RunsInRange returns runs started within the given time range.
func (d *DB) RunsInRange(from, to int64) ([]Run, error) {
	rows, err := d.db.Query(
		"SELECT id, started_at, COALESCE(stopped_at, 0), clean, pid, boot_time FROM runs WHERE started_at >= ? AND started_at <= ? ORDER BY started_at, rowid",
		from, to,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var runs []Run
	for rows.Next() {
		var r Run
		var clean int
		if err := rows.Scan(&r.ID, &r.StartedAt, &r.StoppedAt, &clean, &r.PID, &r.BootTime); err != nil {
			return nil, err
		}
		r.Clean = clean != 0
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// InsertDisplayEvent inserts a display transition.
func (d *DB) InsertDisplayEvent(e DisplayEvent) error {
	_, err := d.db.Exec(
		"INSERT INTO display_events (timestamp, run_id, state) VALUES (?, ?, ?)",
		e.Timestamp, e.RunID, e.State,
	)
	return err
}

// DisplayEventsInRange returns display transitions within the given time range.
func (d *DB) DisplayEventsInRange(from, to int64) ([]DisplayEvent, error) {
	rows, err := d.db.Query(
		"SELECT timestamp, run_id, state FROM display_events WHERE timestamp >= ? AND timestamp <= ? ORDER BY timestamp, id",
		from, to,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var events []DisplayEvent
	for rows.Next() {
		var e DisplayEvent
		if err := rows.Scan(&e.Timestamp, &e.RunID, &e.State); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
