package storage

import (
	"fmt"
	"testing"
)

func countRows(t *testing.T, db *DB, table string) int {
	t.Helper()

	var n int
	row := db.db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s", table))
	if err := row.Scan(&n); err != nil {
		t.Fatalf("count rows in %s: %v", table, err)
	}
	return n
}

func TestDeleteOlderThan(t *testing.T) {
	db := openTestDB(t)

	const (
		oldTs    int64 = 50
		cutoffTs int64 = 100
		newTs    int64 = 150
	)

	for i, ts := range []int64{oldTs, cutoffTs, newTs} {
		id := fmt.Sprintf("run-%d", i)
		if err := db.StartRun(Run{ID: id, StartedAt: ts, PID: i}); err != nil {
			t.Fatalf("StartRun(ts=%d): %v", ts, err)
		}
		if err := db.InsertDisplayEvent(DisplayEvent{Timestamp: ts, RunID: id, State: "off"}); err != nil {
			t.Fatalf("InsertDisplayEvent(ts=%d): %v", ts, err)
		}
	}

	deleted, err := db.DeleteOlderThan(cutoffTs)
	if err != nil {
		t.Fatalf("DeleteOlderThan() error = %v", err)
	}
	if deleted != 2 {
		t.Fatalf("DeleteOlderThan() deleted = %d, want 2 (one old row per table)", deleted)
	}

	for _, table := range []string{"runs", "display_events"} {
		if got := countRows(t, db, table); got != 2 {
			t.Fatalf("%s row count after cleanup = %d, want 2 (cutoff+new)", table, got)
		}
	}
}

func TestDeleteOlderThan_KeepsLatestRun(t *testing.T) {
	db := openTestDB(t)

	if err := db.StartRun(Run{ID: "only", StartedAt: 10}); err != nil {
		t.Fatalf("StartRun() error = %v", err)
	}

	deleted, err := db.DeleteOlderThan(1000)
	if err != nil {
		t.Fatalf("DeleteOlderThan() error = %v", err)
	}
	if deleted != 0 {
		t.Fatalf("DeleteOlderThan() deleted = %d, want 0", deleted)
	}
	latest, err := db.LatestRun()
	if err != nil || latest == nil || latest.ID != "only" {
		t.Fatalf("LatestRun() = %#v, %v; want run only", latest, err)
	}
}
