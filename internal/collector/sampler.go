package collector

import "log/slog"

// TelemetrySource returns the latest telemetry snapshot. ok is false when no
// snapshot is currently available.
type TelemetrySource interface {
	Read() (raw RawTelemetry, ok bool, err error)
}

// Sampler turns raw telemetry into BatterySamples. It keeps no state between
// calls.
type Sampler struct {
	src TelemetrySource
	log *slog.Logger
}

// NewSampler creates a Sampler reading from src.
func NewSampler(src TelemetrySource, logger *slog.Logger) *Sampler {
	return &Sampler{src: src, log: logger}
}

// Sample reads the source and converts the snapshot. It returns false when
// the source has nothing to offer; that is a benign miss, not an error.
func (s *Sampler) Sample() (BatterySample, bool) {
	raw, ok, err := s.src.Read()
	if err != nil {
		s.log.Debug("telemetry read failed", "err", err)
		return BatterySample{}, false
	}
	if !ok {
		s.log.Debug("no telemetry snapshot available")
		return BatterySample{}, false
	}
	return Convert(raw), true
}

// Convert applies the unit conversions to a raw snapshot.
func Convert(raw RawTelemetry) BatterySample {
	return BatterySample{
		TemperatureC: TemperatureCelsius(raw.TemperatureTenthsC),
		CurrentMA:    CurrentMilliamps(raw.CurrentUA),
		VoltageMV:    raw.VoltageMV,
		Health:       LookupHealth(raw.Health),
	}
}

// TemperatureCelsius converts tenths of a degree to degrees.
func TemperatureCelsius(tenths int) float64 {
	return float64(tenths) / 10.0
}

// CurrentMilliamps converts microamps to milliamps and flips the sign so that
// discharge reads positive.
func CurrentMilliamps(microamps int) float64 {
	return -float64(microamps) / 1000.0
}
