package collector

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// sysfsRoot is the sysfs mount point. Tests point it at a temp dir.
var sysfsRoot = "/sys"

// Kernel POWER_SUPPLY_HEALTH strings that have a platform code.
var rawHealthByName = map[string]RawHealth{
	"Good":                RawHealthGood,
	"Overheat":            RawHealthOverheat,
	"Dead":                RawHealthDead,
	"Over voltage":        RawHealthOverVoltage,
	"Unspecified failure": RawHealthUnspecifiedFailure,
	"Cold":                RawHealthCold,
}

// SysfsSource reads battery telemetry from /sys/class/power_supply.
type SysfsSource struct {
	supply string // e.g. "BAT0"; empty selects the first BAT*
}

// NewSysfsSource creates a source for the named supply.
func NewSysfsSource(supply string) *SysfsSource {
	return &SysfsSource{supply: strings.TrimSpace(supply)}
}

// Read parses the supply's uevent file. A machine without a battery is a
// miss, not an error.
func (s *SysfsSource) Read() (RawTelemetry, bool, error) {
	dir, err := s.supplyDir()
	if err != nil {
		return RawTelemetry{}, false, err
	}
	if dir == "" {
		return RawTelemetry{}, false, nil
	}

	data, err := os.ReadFile(filepath.Join(dir, "uevent"))
	if err != nil {
		if os.IsNotExist(err) {
			return RawTelemetry{}, false, nil
		}
		return RawTelemetry{}, false, fmt.Errorf("read uevent: %w", err)
	}

	return parseTelemetry(parseUevent(string(data))), true, nil
}

func (s *SysfsSource) supplyDir() (string, error) {
	base := filepath.Join(sysfsRoot, "class/power_supply")
	if s.supply != "" {
		return filepath.Join(base, s.supply), nil
	}
	matches, err := filepath.Glob(filepath.Join(base, "BAT*"))
	if err != nil {
		return "", fmt.Errorf("glob battery: %w", err)
	}
	if len(matches) == 0 {
		return "", nil
	}
	return matches[0], nil
}

func parseTelemetry(props map[string]string) RawTelemetry {
	raw := RawTelemetry{
		Health:    RawHealthUnknown,
		VoltageMV: -1,
	}
	if code, ok := rawHealthByName[props["POWER_SUPPLY_HEALTH"]]; ok {
		raw.Health = code
	}
	if v, err := strconv.ParseInt(props["POWER_SUPPLY_TEMP"], 10, 64); err == nil {
		raw.TemperatureTenthsC = int(v)
	}

	voltageUV, voltErr := strconv.ParseInt(props["POWER_SUPPLY_VOLTAGE_NOW"], 10, 64)
	if voltErr == nil {
		raw.VoltageMV = int(voltageUV / 1000)
	}

	currentUA, err := strconv.ParseInt(props["POWER_SUPPLY_CURRENT_NOW"], 10, 64)
	if err != nil {
		// Some firmware only reports power_now; derive current from it.
		powerUW, perr := strconv.ParseInt(props["POWER_SUPPLY_POWER_NOW"], 10, 64)
		if perr == nil && voltErr == nil && voltageUV > 0 {
			currentUA = powerUW * 1_000_000 / voltageUV
		}
	}

	// Drivers disagree on the sign of current_now. Normalise to negative
	// while discharging.
	if currentUA < 0 {
		currentUA = -currentUA
	}
	if props["POWER_SUPPLY_STATUS"] == "Discharging" {
		currentUA = -currentUA
	}
	raw.CurrentUA = int(currentUA)

	return raw
}

func parseUevent(data string) map[string]string {
	props := make(map[string]string)
	for _, line := range strings.Split(data, "\n") {
		if k, v, ok := strings.Cut(line, "="); ok {
			props[k] = v
		}
	}
	return props
}
