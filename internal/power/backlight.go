package power

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

// sysfsRoot is the sysfs mount point. Tests point it at a temp dir.
var sysfsRoot = "/sys"

// blPowerUnblank is FB_BLANK_UNBLANK: the panel is powered.
const blPowerUnblank = 0

// BacklightSource polls /sys/class/backlight/*/bl_power. It is a fallback
// for sessions without a screensaver service.
type BacklightSource struct {
	interval time.Duration
	events   chan bool
	done     chan struct{}
	wg       sync.WaitGroup
	log      *slog.Logger
}

// NewBacklightSource starts polling every interval.
func NewBacklightSource(interval time.Duration, logger *slog.Logger) *BacklightSource {
	b := &BacklightSource{
		interval: interval,
		events:   make(chan bool, 4),
		done:     make(chan struct{}),
		log:      logger,
	}
	last, err := readBacklightPower()
	if err != nil {
		logger.Debug("read bl_power failed", "err", err)
		last = true
	}
	b.wg.Add(1)
	go b.poll(last)
	return b
}

// Interactive reports whether the first backlight is unblanked. Machines
// without a backlight count as interactive.
func (b *BacklightSource) Interactive() (bool, error) {
	return readBacklightPower()
}

// Events delivers interactivity changes seen between polls.
func (b *BacklightSource) Events() <-chan bool {
	return b.events
}

// Close stops polling.
func (b *BacklightSource) Close() error {
	close(b.done)
	b.wg.Wait()
	return nil
}

func (b *BacklightSource) poll(last bool) {
	defer b.wg.Done()

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			on, err := readBacklightPower()
			if err != nil {
				b.log.Debug("read bl_power failed", "err", err)
				continue
			}
			if on == last {
				continue
			}
			last = on
			select {
			case b.events <- on:
			case <-b.done:
				return
			}
		case <-b.done:
			return
		}
	}
}

func readBacklightPower() (bool, error) {
	matches, err := filepath.Glob(filepath.Join(sysfsRoot, "class/backlight/*"))
	if err != nil {
		return false, fmt.Errorf("glob backlight: %w", err)
	}
	if len(matches) == 0 {
		return true, nil
	}

	data, err := os.ReadFile(filepath.Join(matches[0], "bl_power"))
	if err != nil {
		return false, fmt.Errorf("read bl_power: %w", err)
	}
	v, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return false, fmt.Errorf("parse bl_power: %w", err)
	}
	return v == blPowerUnblank, nil
}
