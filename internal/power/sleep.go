package power

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/godbus/dbus/v5"
)

const logindManagerIface = "org.freedesktop.login1.Manager"

// SleepSource listens for systemd-logind PrepareForSleep on the system bus.
// Going to sleep turns the display off; waking turns it back on.
type SleepSource struct {
	conn   *dbus.Conn
	events chan bool
	done   chan struct{}
	wg     sync.WaitGroup
	log    *slog.Logger
}

// NewSleepSource subscribes to PrepareForSleep on the system bus conn.
func NewSleepSource(conn *dbus.Conn, logger *slog.Logger) (*SleepSource, error) {
	err := conn.AddMatchSignal(
		dbus.WithMatchInterface(logindManagerIface),
		dbus.WithMatchMember("PrepareForSleep"),
	)
	if err != nil {
		return nil, fmt.Errorf("match PrepareForSleep: %w", err)
	}

	m := &SleepSource{
		conn:   conn,
		events: make(chan bool, 4),
		done:   make(chan struct{}),
		log:    logger,
	}
	ch := make(chan *dbus.Signal, 16)
	conn.Signal(ch)
	m.wg.Add(1)
	go m.listen(ch)
	return m, nil
}

// Interactive is always true: a running process is not asleep.
func (m *SleepSource) Interactive() (bool, error) {
	return true, nil
}

// Events delivers false when the system goes to sleep and true on wake.
func (m *SleepSource) Events() <-chan bool {
	return m.events
}

// Close stops the monitor.
func (m *SleepSource) Close() error {
	close(m.done)
	m.wg.Wait()
	return m.conn.RemoveMatchSignal(
		dbus.WithMatchInterface(logindManagerIface),
		dbus.WithMatchMember("PrepareForSleep"),
	)
}

func (m *SleepSource) listen(ch chan *dbus.Signal) {
	defer m.wg.Done()
	defer m.conn.RemoveSignal(ch)

	for {
		select {
		case sig := <-ch:
			interactive, ok := m.handleSignal(sig)
			if !ok {
				continue
			}
			select {
			case m.events <- interactive:
			case <-m.done:
				return
			}
		case <-m.done:
			return
		}
	}
}

// handleSignal maps PrepareForSleep to display interactivity. ok is false
// for any other signal.
func (m *SleepSource) handleSignal(sig *dbus.Signal) (interactive, ok bool) {
	if sig == nil || sig.Name != logindManagerIface+".PrepareForSleep" || len(sig.Body) < 1 {
		return false, false
	}
	sleeping, isBool := sig.Body[0].(bool)
	if !isBool {
		return false, false
	}
	if sleeping {
		m.log.Info("system going to sleep")
	} else {
		m.log.Info("system woke up")
	}
	return !sleeping, true
}
