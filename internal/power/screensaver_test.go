package power

import (
	"testing"

	"github.com/godbus/dbus/v5"
)

func TestScreenSaverSource_HandleSignal(t *testing.T) {
	s := &ScreenSaverSource{log: discardLogger()}

	tests := []struct {
		name            string
		sig             *dbus.Signal
		wantInteractive bool
		wantOK          bool
	}{
		{
			name:   "active blanks display",
			sig:    &dbus.Signal{Name: screenSaverIface + ".ActiveChanged", Body: []interface{}{true}},
			wantOK: true,
		},
		{
			name:            "inactive unblanks display",
			sig:             &dbus.Signal{Name: screenSaverIface + ".ActiveChanged", Body: []interface{}{false}},
			wantInteractive: true,
			wantOK:          true,
		},
		{
			name: "other member",
			sig:  &dbus.Signal{Name: screenSaverIface + ".WakeUpScreen", Body: []interface{}{true}},
		},
		{
			name: "other interface",
			sig:  &dbus.Signal{Name: logindManagerIface + ".PrepareForSleep", Body: []interface{}{false}},
		},
		{
			name: "empty body",
			sig:  &dbus.Signal{Name: screenSaverIface + ".ActiveChanged"},
		},
		{
			name: "non-bool body",
			sig:  &dbus.Signal{Name: screenSaverIface + ".ActiveChanged", Body: []interface{}{uint32(1)}},
		},
		{
			name: "nil signal",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			interactive, ok := s.handleSignal(tt.sig)
			if ok != tt.wantOK || interactive != tt.wantInteractive {
				t.Fatalf("handleSignal() = %v, %v, want %v, %v", interactive, ok, tt.wantInteractive, tt.wantOK)
			}
		})
	}
}
