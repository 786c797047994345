package dbus

import (
	"encoding/json"
	"fmt"
	"time"

	godbus "github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"

	"github.com/cptspacemanspiff/battery-status/internal/collector"
	"github.com/cptspacemanspiff/battery-status/internal/power"
	"github.com/cptspacemanspiff/battery-status/internal/scheduler"
	"github.com/cptspacemanspiff/battery-status/internal/storage"
)

const (
	BusName   = "org.gnome.BatteryStatus"
	ObjPath   = "/org/gnome/BatteryStatus"
	IfaceName = "org.gnome.BatteryStatus"

	maxRangeSecs = 86400 * 366
)

const introspectXML = `
<node>
  <interface name="` + IfaceName + `">
    <method name="GetCurrentStats">
      <arg direction="out" type="s" name="json"/>
    </method>
    <method name="GetStatus">
      <arg direction="out" type="s" name="json"/>
    </method>
    <method name="Refresh">
    </method>
    <method name="GetRuns">
      <arg direction="in" type="x" name="from_epoch"/>
      <arg direction="in" type="x" name="to_epoch"/>
      <arg direction="out" type="s" name="json"/>
    </method>
  </interface>
` + introspect.IntrospectDataString + `
</node>`

// CurrentStats is the GetCurrentStats payload.
type CurrentStats struct {
	Battery  *collector.BatterySample   `json:"battery"`
	Content  string                     `json:"content"`
	Identity *collector.BatteryIdentity `json:"identity,omitempty"`
}

// Status is the GetStatus payload.
type Status struct {
	Phase     string `json:"phase"`
	Display   string `json:"display"`
	Cycles    uint64 `json:"cycles"`
	NextTick  int64  `json:"next_tick"` // unix millis, 0 when idle
	RunID     string `json:"run_id"`
	Recovered bool   `json:"recovered"`
}

// History is the GetRuns payload.
type History struct {
	Runs          []storage.Run          `json:"runs"`
	DisplayEvents []storage.DisplayEvent `json:"display_events"`
}

// Sampler takes an on-demand reading.
type Sampler interface {
	Sample() (collector.BatterySample, bool)
}

// IdentityReader describes the physical battery.
type IdentityReader interface {
	Identity() (collector.BatteryIdentity, bool, error)
}

// SchedulerStatus exposes the scheduler's externally visible state.
type SchedulerStatus interface {
	Phase() scheduler.Phase
	Cycles() uint64
	NextTick() time.Time
}

// Host accepts events and identifies the current run.
type Host interface {
	Post(ev scheduler.Event)
	RunID() string
	Recovered() bool
}

// Journal is the read side of the run journal.
type Journal interface {
	RunsInRange(from, to int64) ([]storage.Run, error)
	DisplayEventsInRange(from, to int64) ([]storage.DisplayEvent, error)
}

// Deps are the components the service reports on. Identity and Journal may
// be nil.
type Deps struct {
	Sampler   Sampler
	Identity  IdentityReader
	Scheduler SchedulerStatus
	Power     interface{ Current() power.State }
	Content   interface{ Content() string }
	Host      Host
	Journal   Journal
}

// Service exposes the agent over D-Bus.
type Service struct {
	deps Deps
}

// NewService creates a new D-Bus service.
func NewService(deps Deps) *Service {
	return &Service{deps: deps}
}

// Export registers the service on conn and claims the bus name.
func (s *Service) Export(conn *godbus.Conn) error {
	if err := conn.Export(s, ObjPath, IfaceName); err != nil {
		return fmt.Errorf("export service: %w", err)
	}
	if err := conn.Export(introspect.Introspectable(introspectXML), ObjPath, "org.freedesktop.DBus.Introspectable"); err != nil {
		return fmt.Errorf("export introspection: %w", err)
	}

	reply, err := conn.RequestName(BusName, godbus.NameFlagDoNotQueue)
	if err != nil {
		return fmt.Errorf("request name: %w", err)
	}
	if reply != godbus.RequestNameReplyPrimaryOwner {
		return fmt.Errorf("name %s already taken", BusName)
	}

	return nil
}

// GetCurrentStats takes a fresh reading and returns it with the text
// currently on the status surface.
func (s *Service) GetCurrentStats() (string, *godbus.Error) {
	stats := CurrentStats{Content: s.deps.Content.Content()}
	if sample, ok := s.deps.Sampler.Sample(); ok {
		stats.Battery = &sample
	}
	if s.deps.Identity != nil {
		id, ok, err := s.deps.Identity.Identity()
		if err != nil {
			return "", godbus.MakeFailedError(err)
		}
		if ok {
			stats.Identity = &id
		}
	}
	return marshal(stats)
}

// GetStatus reports the scheduler and display state.
func (s *Service) GetStatus() (string, *godbus.Error) {
	st := Status{
		Phase:     s.deps.Scheduler.Phase().String(),
		Display:   s.deps.Power.Current().String(),
		Cycles:    s.deps.Scheduler.Cycles(),
		RunID:     s.deps.Host.RunID(),
		Recovered: s.deps.Host.Recovered(),
	}
	if next := s.deps.Scheduler.NextTick(); !next.IsZero() {
		st.NextTick = next.UnixMilli()
	}
	return marshal(st)
}

// Refresh behaves like a tap on the status surface.
func (s *Service) Refresh() *godbus.Error {
	s.deps.Host.Post(scheduler.Click{Source: "dbus"})
	return nil
}

// GetRuns returns journal runs and display events in a time range.
func (s *Service) GetRuns(fromEpoch, toEpoch int64) (string, *godbus.Error) {
	if err := validateRange(fromEpoch, toEpoch); err != nil {
		return "", godbus.MakeFailedError(err)
	}
	h := History{Runs: []storage.Run{}, DisplayEvents: []storage.DisplayEvent{}}
	if s.deps.Journal == nil {
		return marshal(h)
	}

	runs, err := s.deps.Journal.RunsInRange(fromEpoch, toEpoch)
	if err != nil {
		return "", godbus.MakeFailedError(err)
	}
	events, err := s.deps.Journal.DisplayEventsInRange(fromEpoch, toEpoch)
	if err != nil {
		return "", godbus.MakeFailedError(err)
	}
	if runs != nil {
		h.Runs = runs
	}
	if events != nil {
		h.DisplayEvents = events
	}
	return marshal(h)
}

func validateRange(from, to int64) error {
	if from < 0 {
		return fmt.Errorf("from_epoch must not be negative")
	}
	if to < from {
		return fmt.Errorf("to_epoch must not be before from_epoch")
	}
	if to-from > maxRangeSecs {
		return fmt.Errorf("range must not exceed %d seconds", maxRangeSecs)
	}
	return nil
}

func marshal(v any) (string, *godbus.Error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", godbus.MakeFailedError(err)
	}
	return string(data), nil
}
