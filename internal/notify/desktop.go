package notify

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/godbus/dbus/v5"
)

const (
	notifyDest  = "org.freedesktop.Notifications"
	notifyPath  = "/org/freedesktop/Notifications"
	notifyIface = "org.freedesktop.Notifications"

	// Servers implementing at least this spec version get hints and actions.
	fullSpecMajor = 1
	fullSpecMinor = 2

	// Closed by user; see the Desktop Notifications spec.
	closedByUser = 2
)

// serverInfo is what the notification server told us about itself.
type serverInfo struct {
	specVersion string
	caps        map[string]bool
}

// fullProtocol reports whether the server is new enough for the full call.
func (s serverInfo) fullProtocol() bool {
	major, minor, ok := parseSpecVersion(s.specVersion)
	if !ok {
		return false
	}
	return major > fullSpecMajor || (major == fullSpecMajor && minor >= fullSpecMinor)
}

// notifyRequest holds the arguments of one Notify call.
type notifyRequest struct {
	summary string
	body    string
	actions []string
	hints   map[string]dbus.Variant
}

func buildRequest(n Notification, info serverInfo) notifyRequest {
	req := notifyRequest{
		summary: n.Summary,
		body:    n.Body,
		actions: []string{},
		hints:   map[string]dbus.Variant{},
	}
	if !info.caps["body"] {
		req.summary = n.Body
		req.body = ""
	}
	if !info.fullProtocol() {
		return req
	}

	req.hints["urgency"] = dbus.MakeVariant(byte(0))
	req.hints["category"] = dbus.MakeVariant("device")
	req.hints["x-canonical-private-synchronous"] = dbus.MakeVariant(n.Key)
	if n.Resident {
		req.hints["resident"] = dbus.MakeVariant(true)
		req.hints["transient"] = dbus.MakeVariant(false)
	}
	if n.ClickAction != "" && info.caps["actions"] {
		req.actions = []string{n.ClickAction, "Refresh"}
	}
	return req
}

// Desktop is a Surface backed by the freedesktop notification server.
// Taps on its notification are delivered on Clicks.
type Desktop struct {
	conn    *dbus.Conn
	obj     dbus.BusObject
	appName string
	icon    string
	info    serverInfo
	log     *slog.Logger

	mu     sync.Mutex
	id     uint32
	action string

	clicks chan struct{}
	done   chan struct{}
	wg     sync.WaitGroup
}

// NewDesktop queries the notification server and starts listening for
// action and close signals.
func NewDesktop(conn *dbus.Conn, appName, icon string, logger *slog.Logger) (*Desktop, error) {
	obj := conn.Object(notifyDest, notifyPath)

	var capList []string
	if err := obj.Call(notifyIface+".GetCapabilities", 0).Store(&capList); err != nil {
		return nil, fmt.Errorf("get capabilities: %w", err)
	}
	var name, vendor, version, specVersion string
	if err := obj.Call(notifyIface+".GetServerInformation", 0).Store(&name, &vendor, &version, &specVersion); err != nil {
		return nil, fmt.Errorf("get server information: %w", err)
	}

	info := serverInfo{specVersion: specVersion, caps: make(map[string]bool)}
	for _, c := range capList {
		info.caps[c] = true
	}
	logger.Info("notification server", "name", name, "version", version, "spec", specVersion, "full_protocol", info.fullProtocol())

	for _, member := range []string{"ActionInvoked", "NotificationClosed"} {
		if err := conn.AddMatchSignal(
			dbus.WithMatchInterface(notifyIface),
			dbus.WithMatchMember(member),
		); err != nil {
			return nil, fmt.Errorf("match %s: %w", member, err)
		}
	}

	d := &Desktop{
		conn:    conn,
		obj:     obj,
		appName: appName,
		icon:    icon,
		info:    info,
		log:     logger,
		clicks:  make(chan struct{}, 8),
		done:    make(chan struct{}),
	}
	sigCh := make(chan *dbus.Signal, 16)
	conn.Signal(sigCh)
	d.wg.Add(1)
	go d.listen(sigCh)
	return d, nil
}

// Push shows n, replacing the notification from the previous push.
func (d *Desktop) Push(n Notification) error {
	req := buildRequest(n, d.info)

	d.mu.Lock()
	replaces := d.id
	d.action = n.ClickAction
	d.mu.Unlock()

	var id uint32
	err := d.obj.Call(notifyIface+".Notify", 0,
		d.appName, replaces, d.icon, req.summary, req.body, req.actions, req.hints, int32(0),
	).Store(&id)
	if err != nil {
		return fmt.Errorf("notify: %w", err)
	}

	d.mu.Lock()
	d.id = id
	d.mu.Unlock()
	return nil
}

// Clicks delivers one value per tap on the notification.
func (d *Desktop) Clicks() <-chan struct{} {
	return d.clicks
}

// Close stops listening and withdraws the notification.
func (d *Desktop) Close() error {
	close(d.done)
	d.wg.Wait()

	for _, member := range []string{"ActionInvoked", "NotificationClosed"} {
		_ = d.conn.RemoveMatchSignal(
			dbus.WithMatchInterface(notifyIface),
			dbus.WithMatchMember(member),
		)
	}

	d.mu.Lock()
	id := d.id
	d.id = 0
	d.mu.Unlock()
	if id == 0 {
		return nil
	}
	if err := d.obj.Call(notifyIface+".CloseNotification", 0, id).Err; err != nil {
		return fmt.Errorf("close notification: %w", err)
	}
	return nil
}

func (d *Desktop) listen(ch chan *dbus.Signal) {
	defer d.wg.Done()
	defer d.conn.RemoveSignal(ch)

	for {
		select {
		case sig := <-ch:
			d.handleSignal(sig)
		case <-d.done:
			return
		}
	}
}

func (d *Desktop) handleSignal(sig *dbus.Signal) {
	if sig == nil || len(sig.Body) < 2 {
		return
	}
	id, ok := sig.Body[0].(uint32)
	if !ok {
		return
	}

	d.mu.Lock()
	current, action := d.id, d.action
	d.mu.Unlock()
	if id == 0 || id != current {
		return
	}

	switch sig.Name {
	case notifyIface + ".ActionInvoked":
		key, _ := sig.Body[1].(string)
		if key != action {
			return
		}
		select {
		case d.clicks <- struct{}{}:
		default:
			d.log.Warn("click dropped, queue full")
		}
	case notifyIface + ".NotificationClosed":
		reason, _ := sig.Body[1].(uint32)
		d.log.Debug("notification closed", "id", id, "reason", reason)
		// The next push recreates it.
		d.mu.Lock()
		if d.id == id {
			d.id = 0
		}
		d.mu.Unlock()
		if reason == closedByUser {
			d.log.Info("status notification dismissed by user, will reappear on next refresh")
		}
	}
}

func parseSpecVersion(v string) (major, minor int, ok bool) {
	majStr, minStr, found := strings.Cut(strings.TrimSpace(v), ".")
	if !found {
		minStr = "0"
	}
	major, err := strconv.Atoi(majStr)
	if err != nil {
		return 0, 0, false
	}
	minor, err = strconv.Atoi(minStr)
	if err != nil {
		return 0, 0, false
	}
	return major, minor, true
}
