package storage

import (
	"path/filepath"
	"testing"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Fatalf("Close() error = %v", err)
		}
	})

	return db
}

func TestLatestRun_Empty(t *testing.T) {
	db := openTestDB(t)

	r, err := db.LatestRun()
	if err != nil {
		t.Fatalf("LatestRun() error = %v", err)
	}
	if r != nil {
		t.Fatalf("LatestRun() = %#v, want nil", r)
	}
}

func TestRunLifecycle(t *testing.T) {
	db := openTestDB(t)

	if err := db.StartRun(Run{ID: "a", StartedAt: 10, PID: 100}); err != nil {
		t.Fatalf("StartRun(a) error = %v", err)
	}
	if err := db.StopRun("a", 20); err != nil {
		t.Fatalf("StopRun(a) error = %v", err)
	}
	if err := db.StartRun(Run{ID: "b", StartedAt: 30, PID: 200}); err != nil {
		t.Fatalf("StartRun(b) error = %v", err)
	}

	latest, err := db.LatestRun()
	if err != nil {
		t.Fatalf("LatestRun() error = %v", err)
	}
	if latest == nil || latest.ID != "b" || latest.Clean || latest.StoppedAt != 0 || latest.PID != 200 {
		t.Fatalf("LatestRun() = %#v, want running run b", latest)
	}

	runs, err := db.RunsInRange(0, 100)
	if err != nil {
		t.Fatalf("RunsInRange() error = %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("RunsInRange() len = %d, want 2", len(runs))
	}
	if !runs[0].Clean || runs[0].StoppedAt != 20 {
		t.Fatalf("runs[0] = %#v, want clean stop at 20", runs[0])
	}
}

func TestStopRun_UnknownID(t *testing.T) {
	db := openTestDB(t)

	if err := db.StopRun("missing", 1); err == nil {
		t.Fatal("StopRun() error = nil, want not found")
	}
}

func TestStartRun_DuplicateID(t *testing.T) {
	db := openTestDB(t)

	if err := db.StartRun(Run{ID: "a", StartedAt: 1}); err != nil {
		t.Fatalf("StartRun() error = %v", err)
	}
	if err := db.StartRun(Run{ID: "a", StartedAt: 2}); err == nil {
		t.Fatal("StartRun() duplicate error = nil, want constraint error")
	}
}

func TestDisplayEventsRoundTrip(t *testing.T) {
	db := openTestDB(t)

	for _, e := range []DisplayEvent{
		{Timestamp: 10, RunID: "a", State: "off"},
		{Timestamp: 20, RunID: "a", State: "on"},
		{Timestamp: 30, RunID: "a", State: "off"},
	} {
		if err := db.InsertDisplayEvent(e); err != nil {
			t.Fatalf("InsertDisplayEvent(%v) error = %v", e, err)
		}
	}

	events, err := db.DisplayEventsInRange(15, 30)
	if err != nil {
		t.Fatalf("DisplayEventsInRange() error = %v", err)
	}
	if len(events) != 2 || events[0].State != "on" || events[1].Timestamp != 30 {
		t.Fatalf("DisplayEventsInRange() = %#v, want events at 20 and 30", events)
	}
}

func TestRun_BootTimeRoundTrip(t *testing.T) {
	db := openTestDB(t)

	if err := db.StartRun(Run{ID: "a", StartedAt: 10, PID: 1, BootTime: 1700000000}); err != nil {
		t.Fatalf("StartRun() error = %v", err)
	}
	latest, err := db.LatestRun()
	if err != nil {
		t.Fatalf("LatestRun() error = %v", err)
	}
	if latest == nil || latest.BootTime != 1700000000 {
		t.Fatalf("LatestRun() = %#v, want boot time 1700000000", latest)
	}
}
