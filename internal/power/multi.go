package power

import (
	"errors"
	"sync"
)

// MultiSource combines several sources: the display is interactive only
// while every source says so.
type MultiSource struct {
	sources []Source
	events  chan bool
	done    chan struct{}
	wg      sync.WaitGroup

	mu   sync.Mutex
	last []bool
}

// NewMultiSource merges sources. Sources that fail their initial query
// start out interactive.
func NewMultiSource(sources ...Source) *MultiSource {
	m := &MultiSource{
		sources: sources,
		events:  make(chan bool, 4),
		done:    make(chan struct{}),
		last:    make([]bool, len(sources)),
	}
	for i, s := range sources {
		on, err := s.Interactive()
		m.last[i] = err != nil || on
	}
	for i, s := range sources {
		m.wg.Add(1)
		go m.forward(i, s.Events())
	}
	return m
}

// Interactive queries every source. A source whose query fails counts as
// interactive; an error is returned only when every source failed.
func (m *MultiSource) Interactive() (bool, error) {
	all := true
	var errs []error
	for i, s := range m.sources {
		on, err := s.Interactive()
		if err != nil {
			errs = append(errs, err)
			on = true
		}
		m.mu.Lock()
		m.last[i] = on
		m.mu.Unlock()
		all = all && on
	}
	if len(m.sources) > 0 && len(errs) == len(m.sources) {
		return false, errors.Join(errs...)
	}
	return all, nil
}

// Events delivers the combined interactivity after each source event.
func (m *MultiSource) Events() <-chan bool {
	return m.events
}

// Close stops forwarding and closes every source.
func (m *MultiSource) Close() error {
	close(m.done)
	var errs []error
	for _, s := range m.sources {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	m.wg.Wait()
	return errors.Join(errs...)
}

func (m *MultiSource) forward(i int, events <-chan bool) {
	defer m.wg.Done()
	for {
		select {
		case on, ok := <-events:
			if !ok {
				return
			}
			m.mu.Lock()
			m.last[i] = on
			all := true
			for _, v := range m.last {
				all = all && v
			}
			m.mu.Unlock()
			select {
			case m.events <- all:
			case <-m.done:
				return
			}
		case <-m.done:
			return
		}
	}
}
