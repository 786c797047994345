package scheduler

import "github.com/cptspacemanspiff/battery-status/internal/power"

// Event is something the scheduler reacts to. All events for one scheduler
// must be handled on a single goroutine, in arrival order.
type Event interface {
	event()
}

// Tick is posted when a pending timer fires. Gen identifies the timer; a
// Tick whose timer was cancelled in the meantime is ignored.
type Tick struct {
	Gen uint64
}

// PowerChanged reports a display power transition.
type PowerChanged struct {
	State power.State
}

// Click is a user tap on the status surface, or a refresh request that
// behaves like one. Source is only used for logging.
type Click struct {
	Source string
}

func (Tick) event()         {}
func (PowerChanged) event() {}
func (Click) event()        {}
