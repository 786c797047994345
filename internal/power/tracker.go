// Package power tracks whether the display is on.
package power

import (
	"context"
	"log/slog"
	"sync"
)

// State is the display power state.
type State int

const (
	On State = iota
	Off
)

func (s State) String() string {
	if s == Off {
		return "off"
	}
	return "on"
}

// FromInteractive maps an interactive flag to a State.
func FromInteractive(interactive bool) State {
	if interactive {
		return On
	}
	return Off
}

// Source reports display interactivity. Events delivers the new
// interactivity on every change the platform reports.
type Source interface {
	Interactive() (bool, error)
	Events() <-chan bool
	Close() error
}

type subscription struct {
	ch   chan State
	done chan struct{}
}

// Tracker holds the current State and publishes transitions to subscribers.
type Tracker struct {
	src Source
	log *slog.Logger

	mu     sync.Mutex
	state  State
	subs   map[int]*subscription
	nextID int
}

// NewTracker creates a Tracker whose initial state comes from querying src
// once. A failed query assumes the display is on.
func NewTracker(src Source, logger *slog.Logger) *Tracker {
	t := &Tracker{
		src:   src,
		log:   logger,
		state: On,
		subs:  make(map[int]*subscription),
	}
	interactive, err := src.Interactive()
	if err != nil {
		logger.Warn("query display state failed, assuming on", "err", err)
	} else {
		t.state = FromInteractive(interactive)
	}
	logger.Info("initial display state", "state", t.state)
	return t
}

// Current returns the last known state.
func (t *Tracker) Current() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Subscribe returns a channel of transitions and a func that ends the
// subscription. The caller must keep reading until it unsubscribes.
func (t *Tracker) Subscribe() (<-chan State, func()) {
	sub := &subscription{ch: make(chan State, 4), done: make(chan struct{})}

	t.mu.Lock()
	id := t.nextID
	t.nextID++
	t.subs[id] = sub
	t.mu.Unlock()

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			t.mu.Lock()
			delete(t.subs, id)
			t.mu.Unlock()
			close(sub.done)
		})
	}
}

// Run consumes source events until ctx is done or the source closes.
func (t *Tracker) Run(ctx context.Context) {
	events := t.src.Events()
	for {
		select {
		case interactive, ok := <-events:
			if !ok {
				return
			}
			t.Observe(interactive)
		case <-ctx.Done():
			return
		}
	}
}

// Observe records a platform report and publishes it if the state changed.
func (t *Tracker) Observe(interactive bool) {
	next := FromInteractive(interactive)

	t.mu.Lock()
	if next == t.state {
		t.mu.Unlock()
		return
	}
	t.state = next
	subs := make([]*subscription, 0, len(t.subs))
	for _, s := range t.subs {
		subs = append(subs, s)
	}
	t.mu.Unlock()

	t.log.Info("display state changed", "state", next)
	for _, s := range subs {
		select {
		case s.ch <- next:
		case <-s.done:
		}
	}
}
