// Package agent hosts the refresh scheduler: it owns the event queue, feeds
// it platform events and releases everything on shutdown.
package agent

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v3/host"

	"github.com/cptspacemanspiff/battery-status/internal/power"
	"github.com/cptspacemanspiff/battery-status/internal/scheduler"
	"github.com/cptspacemanspiff/battery-status/internal/storage"
)

const queueSize = 64

// bootTime is swapped out in tests.
var bootTime = host.BootTime

// Component is driven by the Host. All three methods run on the Host's loop
// goroutine.
type Component interface {
	Start()
	Handle(ev scheduler.Event)
	Stop()
}

// PowerFeed publishes display power transitions.
type PowerFeed interface {
	Subscribe() (<-chan power.State, func())
}

// Journal records agent runs. *storage.DB implements it.
type Journal interface {
	StartRun(r storage.Run) error
	StopRun(id string, stoppedAt int64) error
	LatestRun() (*storage.Run, error)
	InsertDisplayEvent(e storage.DisplayEvent) error
	DeleteOlderThan(before int64) (int64, error)
}

// Options configures a Host. Clicks, Placeholder and Journal are optional.
type Options struct {
	Power           PowerFeed
	Clicks          <-chan struct{}
	Placeholder     func() error
	Journal         Journal
	Retention       time.Duration
	CleanupInterval time.Duration
	Logger          *slog.Logger
	JournalLogger   *slog.Logger
}

// Host runs a Component on a single goroutine and delivers events to it in
// arrival order.
type Host struct {
	opts  Options
	log   *slog.Logger
	jlog  *slog.Logger
	queue chan scheduler.Event
	done  chan struct{}

	runID     atomic.Value // string
	recovered atomic.Bool
	closeOnce sync.Once
}

// NewHost creates a Host. Events may be posted before Run starts.
func NewHost(opts Options) *Host {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.JournalLogger == nil {
		opts.JournalLogger = opts.Logger
	}
	h := &Host{
		opts:  opts,
		log:   opts.Logger,
		jlog:  opts.JournalLogger,
		queue: make(chan scheduler.Event, queueSize),
		done:  make(chan struct{}),
	}
	h.runID.Store("")
	return h
}

// Post queues an event for the loop. Safe from any goroutine; after the
// Host has shut down it does nothing.
func (h *Host) Post(ev scheduler.Event) {
	select {
	case <-h.done:
		return
	default:
	}
	select {
	case h.queue <- ev:
	case <-h.done:
	}
}

// RunID returns the journal id of the current run.
func (h *Host) RunID() string {
	return h.runID.Load().(string)
}

// Recovered reports whether the previous run ended without a clean stop.
func (h *Host) Recovered() bool {
	return h.recovered.Load()
}

// Run drives c until ctx is cancelled, then tears down: it stops c, drops
// every subscription and closes the journal run.
func (h *Host) Run(ctx context.Context, c Component) error {
	h.openRun()

	fwdCtx, cancelFwd := context.WithCancel(context.Background())
	var wg sync.WaitGroup

	var unsubscribe func()
	if h.opts.Power != nil {
		var powerCh <-chan power.State
		powerCh, unsubscribe = h.opts.Power.Subscribe()
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.forwardPower(fwdCtx, powerCh)
		}()
	}
	if h.opts.Clicks != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.forwardClicks(fwdCtx, h.opts.Clicks)
		}()
	}

	if h.opts.Placeholder != nil {
		if err := h.opts.Placeholder(); err != nil {
			h.log.Warn("show placeholder", "err", err)
		}
	}

	var cleanup <-chan time.Time
	if h.opts.Journal != nil && h.opts.CleanupInterval > 0 && h.opts.Retention > 0 {
		h.cleanupJournal()
		ticker := time.NewTicker(h.opts.CleanupInterval)
		defer ticker.Stop()
		cleanup = ticker.C
	}

	c.Start()
	h.log.Info("agent started", "run_id", h.RunID())

	for {
		select {
		case ev := <-h.queue:
			if pc, ok := ev.(scheduler.PowerChanged); ok {
				h.recordDisplay(pc.State)
			}
			c.Handle(ev)
		case <-cleanup:
			h.cleanupJournal()
		case <-ctx.Done():
			c.Stop()
			h.closeOnce.Do(func() { close(h.done) })
			cancelFwd()
			if unsubscribe != nil {
				unsubscribe()
			}
			wg.Wait()
			h.closeRun()
			h.log.Info("agent stopped", "run_id", h.RunID())
			return nil
		}
	}
}

func (h *Host) forwardPower(ctx context.Context, ch <-chan power.State) {
	for {
		select {
		case st := <-ch:
			h.Post(scheduler.PowerChanged{State: st})
		case <-ctx.Done():
			return
		}
	}
}

func (h *Host) forwardClicks(ctx context.Context, ch <-chan struct{}) {
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
			h.Post(scheduler.Click{Source: "notification"})
		case <-ctx.Done():
			return
		}
	}
}

func (h *Host) openRun() {
	id := uuid.NewString()
	h.runID.Store(id)
	if h.opts.Journal == nil {
		return
	}

	var boot int64
	if bt, err := bootTime(); err != nil {
		h.jlog.Debug("read boot time", "err", err)
	} else {
		boot = int64(bt)
	}

	prev, err := h.opts.Journal.LatestRun()
	switch {
	case err != nil:
		h.jlog.Error("read latest run", "err", err)
	case prev == nil || prev.Clean:
	case prev.BootTime != 0 && boot != 0 && prev.BootTime != boot:
		// The whole session went down with the previous run.
		h.log.Info("previous run ended with a system shutdown",
			"prev_run_id", prev.ID,
			"prev_started_at", prev.StartedAt)
	default:
		h.recovered.Store(true)
		h.log.Warn("previous run ended without a clean shutdown, starting fresh",
			"prev_run_id", prev.ID,
			"prev_pid", prev.PID,
			"prev_started_at", prev.StartedAt)
	}

	err = h.opts.Journal.StartRun(storage.Run{
		ID:        id,
		StartedAt: time.Now().Unix(),
		PID:       os.Getpid(),
		BootTime:  boot,
	})
	if err != nil {
		h.jlog.Error("record run start", "err", err)
	}
}

func (h *Host) closeRun() {
	if h.opts.Journal == nil {
		return
	}
	if err := h.opts.Journal.StopRun(h.RunID(), time.Now().Unix()); err != nil {
		h.jlog.Error("record run stop", "err", err)
	}
}

func (h *Host) recordDisplay(st power.State) {
	if h.opts.Journal == nil {
		return
	}
	err := h.opts.Journal.InsertDisplayEvent(storage.DisplayEvent{
		Timestamp: time.Now().Unix(),
		RunID:     h.RunID(),
		State:     st.String(),
	})
	if err != nil {
		h.jlog.Error("record display event", "err", err)
	}
}

func (h *Host) cleanupJournal() {
	cutoff := time.Now().Add(-h.opts.Retention).Unix()
	n, err := h.opts.Journal.DeleteOlderThan(cutoff)
	if err != nil {
		h.jlog.Error("journal cleanup", "err", err)
		return
	}
	h.jlog.Debug("journal cleanup", "deleted", n, "cutoff", cutoff)
}
