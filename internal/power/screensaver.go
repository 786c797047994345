package power

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/godbus/dbus/v5"
)

const (
	screenSaverDest  = "org.gnome.ScreenSaver"
	screenSaverPath  = "/org/gnome/ScreenSaver"
	screenSaverIface = "org.gnome.ScreenSaver"
)

// ScreenSaverSource follows the session screensaver. An active screensaver
// means the display is blanked.
type ScreenSaverSource struct {
	conn   *dbus.Conn
	obj    dbus.BusObject
	events chan bool
	done   chan struct{}
	wg     sync.WaitGroup
	log    *slog.Logger
}

// NewScreenSaverSource subscribes to ActiveChanged on the session bus conn.
func NewScreenSaverSource(conn *dbus.Conn, logger *slog.Logger) (*ScreenSaverSource, error) {
	err := conn.AddMatchSignal(
		dbus.WithMatchInterface(screenSaverIface),
		dbus.WithMatchMember("ActiveChanged"),
	)
	if err != nil {
		return nil, fmt.Errorf("match ActiveChanged: %w", err)
	}

	s := &ScreenSaverSource{
		conn:   conn,
		obj:    conn.Object(screenSaverDest, screenSaverPath),
		events: make(chan bool, 4),
		done:   make(chan struct{}),
		log:    logger,
	}
	ch := make(chan *dbus.Signal, 16)
	conn.Signal(ch)
	s.wg.Add(1)
	go s.listen(ch)
	return s, nil
}

// Interactive reports whether the screensaver is inactive.
func (s *ScreenSaverSource) Interactive() (bool, error) {
	var active bool
	if err := s.obj.Call(screenSaverIface+".GetActive", 0).Store(&active); err != nil {
		return false, fmt.Errorf("screensaver GetActive: %w", err)
	}
	return !active, nil
}

// Events delivers interactivity changes.
func (s *ScreenSaverSource) Events() <-chan bool {
	return s.events
}

// Close stops listening.
func (s *ScreenSaverSource) Close() error {
	close(s.done)
	s.wg.Wait()
	return s.conn.RemoveMatchSignal(
		dbus.WithMatchInterface(screenSaverIface),
		dbus.WithMatchMember("ActiveChanged"),
	)
}

func (s *ScreenSaverSource) listen(ch chan *dbus.Signal) {
	defer s.wg.Done()
	defer s.conn.RemoveSignal(ch)

	for {
		select {
		case sig := <-ch:
			interactive, ok := s.handleSignal(sig)
			if !ok {
				continue
			}
			select {
			case s.events <- interactive:
			case <-s.done:
				return
			}
		case <-s.done:
			return
		}
	}
}

// handleSignal maps ActiveChanged to display interactivity. ok is false for
// any other signal.
func (s *ScreenSaverSource) handleSignal(sig *dbus.Signal) (interactive, ok bool) {
	if sig == nil || sig.Name != screenSaverIface+".ActiveChanged" || len(sig.Body) < 1 {
		return false, false
	}
	active, isBool := sig.Body[0].(bool)
	if !isBool {
		return false, false
	}
	s.log.Debug("screensaver active changed", "active", active)
	return !active, true
}
