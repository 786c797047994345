package notify

import (
	"fmt"
	"sync"

	"github.com/cptspacemanspiff/battery-status/internal/collector"
)

const (
	// SurfaceKey identifies the single status surface the agent owns.
	SurfaceKey = "battery-status"

	// ClickAction is the action key a tap on the surface emits.
	ClickAction = "default"

	placeholderText = "Collecting battery info..."
)

// Notification is one push to the status surface.
type Notification struct {
	Key         string
	Summary     string
	Body        string
	Resident    bool   // not dismissible by the user
	ClickAction string // emitted on tap instead of opening anything
}

// Surface displays notifications. Each push replaces the previous one with
// the same key.
type Surface interface {
	Push(n Notification) error
}

// Renderer formats battery samples and pushes them to a Surface.
type Renderer struct {
	surface Surface
	summary string

	mu   sync.Mutex
	last string
}

// NewRenderer creates a Renderer. summary is the surface title.
func NewRenderer(surface Surface, summary string) *Renderer {
	return &Renderer{surface: surface, summary: summary}
}

// Render pushes the formatted sample. Identical samples are pushed again;
// nothing is deduplicated.
func (r *Renderer) Render(s collector.BatterySample) error {
	return r.push(Format(s))
}

// RenderPlaceholder shows the waiting text used before the first reading.
func (r *Renderer) RenderPlaceholder() error {
	return r.push(placeholderText)
}

// Content returns the text last pushed to the surface.
func (r *Renderer) Content() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

func (r *Renderer) push(text string) error {
	err := r.surface.Push(Notification{
		Key:         SurfaceKey,
		Summary:     r.summary,
		Body:        text,
		Resident:    true,
		ClickAction: ClickAction,
	})
	if err != nil {
		return fmt.Errorf("push notification: %w", err)
	}
	r.mu.Lock()
	r.last = text
	r.mu.Unlock()
	return nil
}

// Format renders a sample as the two-line status text.
func Format(s collector.BatterySample) string {
	return fmt.Sprintf("Temperature: %.1f °C    Current: %.1f mA\nVoltage: %d mV  Health: %s",
		s.TemperatureC, s.CurrentMA, s.VoltageMV, s.Health)
}
