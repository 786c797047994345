package agent

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/cptspacemanspiff/battery-status/internal/collector"
	"github.com/cptspacemanspiff/battery-status/internal/power"
	"github.com/cptspacemanspiff/battery-status/internal/scheduler"
	"github.com/cptspacemanspiff/battery-status/internal/storage"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordingComponent struct {
	mu      sync.Mutex
	started bool
	stopped bool
	events  []scheduler.Event
	seen    chan struct{}
	ready   chan struct{}
}

func newRecordingComponent() *recordingComponent {
	return &recordingComponent{seen: make(chan struct{}, 64), ready: make(chan struct{})}
}

func (c *recordingComponent) Start() {
	c.mu.Lock()
	c.started = true
	c.mu.Unlock()
	close(c.ready)
}

// waitStarted blocks until the host has subscribed and started c.
func (c *recordingComponent) waitStarted(t *testing.T) {
	t.Helper()
	select {
	case <-c.ready:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for Start")
	}
}

func (c *recordingComponent) Handle(ev scheduler.Event) {
	c.mu.Lock()
	c.events = append(c.events, ev)
	c.mu.Unlock()
	c.seen <- struct{}{}
}

func (c *recordingComponent) Stop() {
	c.mu.Lock()
	c.stopped = true
	c.mu.Unlock()
}

func (c *recordingComponent) snapshot() []scheduler.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]scheduler.Event(nil), c.events...)
}

func (c *recordingComponent) waitEvents(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-c.seen:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for event %d of %d", i+1, n)
		}
	}
}

type staticSource struct {
	events chan bool
}

func (s *staticSource) Interactive() (bool, error) { return true, nil }
func (s *staticSource) Events() <-chan bool        { return s.events }
func (s *staticSource) Close() error               { return nil }

func openTestJournal(t *testing.T) *storage.DB {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("storage.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func runHost(t *testing.T, h *Host, c Component) (cancel func()) {
	t.Helper()
	ctx, cancelCtx := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Run(ctx, c) }()
	return func() {
		cancelCtx()
		select {
		case err := <-done:
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("Run() did not return after cancel")
		}
	}
}

func TestHost_DeliversEventsInArrivalOrder(t *testing.T) {
	tracker := power.NewTracker(&staticSource{events: make(chan bool)}, discardLogger())
	clicks := make(chan struct{})
	h := NewHost(Options{Power: tracker, Clicks: clicks, Logger: discardLogger()})
	c := newRecordingComponent()
	stop := runHost(t, h, c)
	c.waitStarted(t)

	tracker.Observe(false)
	c.waitEvents(t, 1)
	clicks <- struct{}{}
	c.waitEvents(t, 1)
	h.Post(scheduler.Click{Source: "dbus"})
	c.waitEvents(t, 1)
	tracker.Observe(true)
	c.waitEvents(t, 1)

	stop()

	got := c.snapshot()
	want := []scheduler.Event{
		scheduler.PowerChanged{State: power.Off},
		scheduler.Click{Source: "notification"},
		scheduler.Click{Source: "dbus"},
		scheduler.PowerChanged{State: power.On},
	}
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("events[%d] = %#v, want %#v", i, got[i], want[i])
		}
	}
	if !c.started || !c.stopped {
		t.Fatalf("started=%v stopped=%v, want both", c.started, c.stopped)
	}
}

func TestHost_TeardownReleasesSubscriptions(t *testing.T) {
	tracker := power.NewTracker(&staticSource{events: make(chan bool)}, discardLogger())
	h := NewHost(Options{Power: tracker, Logger: discardLogger()})
	c := newRecordingComponent()
	stop := runHost(t, h, c)
	stop()

	// With a live subscription nobody reads, Observe would block once the
	// buffer filled up.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 20; i++ {
			tracker.Observe(i%2 == 1)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("tracker blocked: subscription leaked after shutdown")
	}

	// Posting after shutdown is a no-op.
	for i := 0; i < queueSize*2; i++ {
		h.Post(scheduler.Click{})
	}
	if n := len(c.snapshot()); n != 0 {
		t.Fatalf("component saw %d events after shutdown, want 0", n)
	}
}

func TestHost_PlaceholderShownBeforeStart(t *testing.T) {
	var order []string
	var mu sync.Mutex
	record := func(s string) {
		mu.Lock()
		order = append(order, s)
		mu.Unlock()
	}

	h := NewHost(Options{
		Placeholder: func() error {
			record("placeholder")
			return errors.New("no server")
		},
		Logger: discardLogger(),
	})
	c := &startRecorder{record: record}
	stop := runHost(t, h, c)
	stop()

	mu.Lock()
	defer mu.Unlock()
	if len(order) < 2 || order[0] != "placeholder" || order[1] != "start" {
		t.Fatalf("order = %v, want placeholder then start", order)
	}
}

type startRecorder struct {
	record func(string)
}

func (s *startRecorder) Start()                 { s.record("start") }
func (s *startRecorder) Handle(scheduler.Event) {}
func (s *startRecorder) Stop()                  { s.record("stop") }

func TestHost_JournalsRunsAndDisplayEvents(t *testing.T) {
	db := openTestJournal(t)
	tracker := power.NewTracker(&staticSource{events: make(chan bool)}, discardLogger())

	h := NewHost(Options{Power: tracker, Journal: db, Logger: discardLogger()})
	c := newRecordingComponent()
	stop := runHost(t, h, c)
	c.waitStarted(t)

	tracker.Observe(false)
	c.waitEvents(t, 1)
	stop()

	if h.Recovered() {
		t.Fatal("Recovered() = true on first run")
	}
	latest, err := db.LatestRun()
	if err != nil {
		t.Fatalf("LatestRun() error = %v", err)
	}
	if latest == nil || latest.ID != h.RunID() || !latest.Clean {
		t.Fatalf("LatestRun() = %#v, want clean run %s", latest, h.RunID())
	}

	events, err := db.DisplayEventsInRange(0, time.Now().Unix()+1)
	if err != nil {
		t.Fatalf("DisplayEventsInRange() error = %v", err)
	}
	if len(events) != 1 || events[0].State != "off" || events[0].RunID != h.RunID() {
		t.Fatalf("display events = %#v, want one off event for this run", events)
	}
}

func TestHost_DetectsUncleanPreviousRun(t *testing.T) {
	db := openTestJournal(t)
	if err := db.StartRun(storage.Run{ID: "killed", StartedAt: time.Now().Unix() - 60, PID: 1}); err != nil {
		t.Fatalf("StartRun() error = %v", err)
	}

	h := NewHost(Options{Journal: db, Logger: discardLogger()})
	stop := runHost(t, h, newRecordingComponent())
	stop()

	if !h.Recovered() {
		t.Fatal("Recovered() = false, want true after unclean previous run")
	}
	if h.RunID() == "killed" || h.RunID() == "" {
		t.Fatalf("RunID() = %q, want a fresh id", h.RunID())
	}
}

func TestHost_UncleanRunFromPreviousBootIsNotRecovery(t *testing.T) {
	old := bootTime
	bootTime = func() (uint64, error) { return 2000, nil }
	t.Cleanup(func() { bootTime = old })

	db := openTestJournal(t)
	if err := db.StartRun(storage.Run{ID: "before-reboot", StartedAt: time.Now().Unix() - 60, PID: 1, BootTime: 1000}); err != nil {
		t.Fatalf("StartRun() error = %v", err)
	}

	h := NewHost(Options{Journal: db, Logger: discardLogger()})
	stop := runHost(t, h, newRecordingComponent())
	stop()

	if h.Recovered() {
		t.Fatal("Recovered() = true, want false when the host rebooted")
	}
	latest, err := db.LatestRun()
	if err != nil {
		t.Fatalf("LatestRun() error = %v", err)
	}
	if latest == nil || latest.BootTime != 2000 {
		t.Fatalf("LatestRun() = %#v, want boot time 2000", latest)
	}
}

func TestHost_UncleanRunSameBootIsRecovery(t *testing.T) {
	old := bootTime
	bootTime = func() (uint64, error) { return 1000, nil }
	t.Cleanup(func() { bootTime = old })

	db := openTestJournal(t)
	if err := db.StartRun(storage.Run{ID: "killed", StartedAt: time.Now().Unix() - 60, PID: 1, BootTime: 1000}); err != nil {
		t.Fatalf("StartRun() error = %v", err)
	}

	h := NewHost(Options{Journal: db, Logger: discardLogger()})
	stop := runHost(t, h, newRecordingComponent())
	stop()

	if !h.Recovered() {
		t.Fatal("Recovered() = false, want true after a kill within the same boot")
	}
}

func TestHost_CleansUpJournal(t *testing.T) {
	db := openTestJournal(t)
	old := time.Now().Add(-48 * time.Hour).Unix()
	if err := db.InsertDisplayEvent(storage.DisplayEvent{Timestamp: old, RunID: "x", State: "on"}); err != nil {
		t.Fatalf("InsertDisplayEvent() error = %v", err)
	}

	h := NewHost(Options{Journal: db, Retention: 24 * time.Hour, CleanupInterval: time.Hour, Logger: discardLogger()})
	stop := runHost(t, h, newRecordingComponent())
	stop()

	events, err := db.DisplayEventsInRange(0, time.Now().Unix())
	if err != nil {
		t.Fatalf("DisplayEventsInRange() error = %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("display events = %#v, want old event removed", events)
	}
}

type countingSampler struct {
	mu    sync.Mutex
	calls int
}

func (s *countingSampler) Sample() (collector.BatterySample, bool) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return collector.BatterySample{Health: collector.HealthGood}, true
}

func (s *countingSampler) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type nopRenderer struct{}

func (nopRenderer) Render(collector.BatterySample) error { return nil }

func TestHost_DrivesSchedulerWithRealClock(t *testing.T) {
	tracker := power.NewTracker(&staticSource{events: make(chan bool)}, discardLogger())
	h := NewHost(Options{Power: tracker, Logger: discardLogger()})
	sampler := &countingSampler{}
	sched := scheduler.New(scheduler.Config{
		Sampler:  sampler,
		Renderer: nopRenderer{},
		Power:    tracker,
		Post:     h.Post,
		Interval: 10 * time.Millisecond,
		Logger:   discardLogger(),
	})
	stop := runHost(t, h, sched)

	deadline := time.Now().Add(2 * time.Second)
	for sampler.count() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if sampler.count() < 3 {
		t.Fatalf("sample calls = %d, want at least 3", sampler.count())
	}

	tracker.Observe(false)
	deadline = time.Now().Add(2 * time.Second)
	for sched.Phase() != scheduler.Idle && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if sched.Phase() != scheduler.Idle {
		t.Fatalf("Phase() = %v, want idle after display off", sched.Phase())
	}
	settled := sampler.count()
	time.Sleep(50 * time.Millisecond)
	if got := sampler.count(); got != settled {
		t.Fatalf("sample calls grew from %d to %d while display off", settled, got)
	}

	stop()
	if !sched.NextTick().IsZero() {
		t.Fatal("pending tick survived shutdown")
	}
}
