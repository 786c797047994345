// Package scheduler decides when the battery is sampled and rendered.
//
// The Scheduler is a state machine driven by Start, Handle and Stop, all of
// which must be called from one goroutine. It never blocks: a scheduled
// refresh is a timer whose callback posts a Tick back to that goroutine.
package scheduler

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/cptspacemanspiff/battery-status/internal/collector"
	"github.com/cptspacemanspiff/battery-status/internal/power"
)

// DefaultInterval is the refresh cadence while the display is on.
const DefaultInterval = 3652 * time.Millisecond

// Phase is the scheduler's externally visible state.
type Phase int32

const (
	Idle Phase = iota
	Scheduled
	Running
)

func (p Phase) String() string {
	switch p {
	case Scheduled:
		return "scheduled"
	case Running:
		return "running"
	default:
		return "idle"
	}
}

// Sampler takes a battery reading. ok is false on a miss.
type Sampler interface {
	Sample() (s collector.BatterySample, ok bool)
}

// Renderer pushes a reading to the status surface.
type Renderer interface {
	Render(s collector.BatterySample) error
}

// PowerReader reports the current display power state.
type PowerReader interface {
	Current() power.State
}

// Config wires a Scheduler to its collaborators.
type Config struct {
	Sampler  Sampler
	Renderer Renderer
	Power    PowerReader
	Post     func(Event)   // called from timer goroutines
	Clock    Clock         // defaults to RealClock
	Interval time.Duration // defaults to DefaultInterval
	Logger   *slog.Logger
}

// Scheduler owns the single pending tick.
type Scheduler struct {
	sampler  Sampler
	renderer Renderer
	power    PowerReader
	post     func(Event)
	clock    Clock
	interval time.Duration
	log      *slog.Logger

	pending Timer
	gen     uint64
	stopped bool

	phase    atomic.Int32
	cycles   atomic.Uint64
	nextTick atomic.Int64 // unix nanos, 0 when nothing is pending
}

// New creates an idle Scheduler.
func New(cfg Config) *Scheduler {
	if cfg.Clock == nil {
		cfg.Clock = RealClock()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Scheduler{
		sampler:  cfg.Sampler,
		renderer: cfg.Renderer,
		power:    cfg.Power,
		post:     cfg.Post,
		clock:    cfg.Clock,
		interval: cfg.Interval,
		log:      cfg.Logger,
	}
}

// Start refreshes immediately and schedules the next tick if the display is
// on. With the display off it stays idle.
func (s *Scheduler) Start() {
	if s.stopped {
		return
	}
	if s.power.Current() != power.On {
		s.log.Info("display off at start, staying idle")
		s.setPhase(Idle)
		return
	}
	s.resume()
}

// Handle applies one event.
func (s *Scheduler) Handle(ev Event) {
	if s.stopped {
		return
	}

	switch ev := ev.(type) {
	case Tick:
		s.handleTick(ev)
	case PowerChanged:
		s.handlePower(ev.State)
	case Click:
		s.handleClick(ev)
	default:
		s.log.Warn("unknown event", "event", ev)
	}
}

// Stop cancels the pending tick. Later events are ignored.
func (s *Scheduler) Stop() {
	s.cancel()
	s.stopped = true
	s.setPhase(Idle)
	s.log.Info("scheduler stopped", "cycles", s.cycles.Load())
}

// Phase returns the current phase. Safe for concurrent use.
func (s *Scheduler) Phase() Phase {
	return Phase(s.phase.Load())
}

// Cycles returns how many sample-and-render cycles have run. Safe for
// concurrent use.
func (s *Scheduler) Cycles() uint64 {
	return s.cycles.Load()
}

// NextTick returns when the pending tick fires, or the zero time when none
// is pending. Safe for concurrent use.
func (s *Scheduler) NextTick() time.Time {
	ns := s.nextTick.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

func (s *Scheduler) handleTick(t Tick) {
	if s.pending == nil || t.Gen != s.gen {
		s.log.Debug("discarding stale tick", "gen", t.Gen, "current_gen", s.gen)
		return
	}
	s.pending = nil
	s.nextTick.Store(0)

	if s.power.Current() != power.On {
		s.log.Debug("tick fired with display off, going idle")
		s.setPhase(Idle)
		return
	}
	s.cycle("tick")
	s.schedule()
}

func (s *Scheduler) handlePower(st power.State) {
	switch st {
	case power.Off:
		s.cancel()
		s.setPhase(Idle)
		s.log.Info("display off, refresh suspended")
	case power.On:
		if s.pending != nil {
			return
		}
		s.log.Info("display on, refresh resumed")
		s.resume()
	}
}

func (s *Scheduler) handleClick(c Click) {
	s.log.Debug("click", "source", c.Source)
	s.cycle("click")
	if s.power.Current() != power.On {
		// Cadence stays suspended until the display comes back.
		s.cancel()
		s.setPhase(Idle)
		return
	}
	s.schedule()
}

func (s *Scheduler) resume() {
	s.cycle("start")
	s.schedule()
}

// cycle samples and renders once. A miss leaves the surface untouched.
func (s *Scheduler) cycle(reason string) {
	s.setPhase(Running)
	s.cycles.Add(1)

	sample, ok := s.sampler.Sample()
	if !ok {
		s.log.Debug("telemetry unavailable, skipping render", "reason", reason)
		return
	}
	if err := s.renderer.Render(sample); err != nil {
		s.log.Warn("render failed", "reason", reason, "err", err)
		return
	}
	s.log.Debug("refreshed",
		"reason", reason,
		"temperature_c", sample.TemperatureC,
		"current_ma", sample.CurrentMA,
		"voltage_mv", sample.VoltageMV,
		"health", sample.Health.String())
}

// schedule replaces any pending tick with one a full interval from now.
func (s *Scheduler) schedule() {
	s.cancel()
	gen := s.gen
	post := s.post
	s.pending = s.clock.AfterFunc(s.interval, func() {
		post(Tick{Gen: gen})
	})
	s.nextTick.Store(s.clock.Now().Add(s.interval).UnixNano())
	s.setPhase(Scheduled)
}

// cancel stops the pending tick and invalidates any Tick already posted.
func (s *Scheduler) cancel() {
	if s.pending != nil {
		s.pending.Stop()
		s.pending = nil
	}
	s.gen++
	s.nextTick.Store(0)
}

func (s *Scheduler) setPhase(p Phase) {
	s.phase.Store(int32(p))
}
