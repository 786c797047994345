package collector

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// BatteryIdentity describes the physical battery. It does not change between
// readings, so it is read on request rather than every cycle.
type BatteryIdentity struct {
	Supply              string  `json:"supply"`
	Manufacturer        string  `json:"manufacturer"`
	Model               string  `json:"model"`
	Technology          string  `json:"technology"`
	CycleCount          int64   `json:"cycle_count"`
	ChargeFullDesignUAH int64   `json:"charge_full_design_uah"`
	ChargeFullUAH       int64   `json:"charge_full_uah"`
	WearPct             float64 `json:"wear_pct"` // 0 when design capacity is unknown
}

// Identity reads the supply's identity fields. ok is false when there is no
// battery.
func (s *SysfsSource) Identity() (BatteryIdentity, bool, error) {
	dir, err := s.supplyDir()
	if err != nil || dir == "" {
		return BatteryIdentity{}, false, err
	}

	data, err := os.ReadFile(filepath.Join(dir, "uevent"))
	if err != nil {
		if os.IsNotExist(err) {
			return BatteryIdentity{}, false, nil
		}
		return BatteryIdentity{}, false, fmt.Errorf("read uevent: %w", err)
	}

	props := parseUevent(string(data))
	id := BatteryIdentity{
		Supply:       filepath.Base(dir),
		Manufacturer: props["POWER_SUPPLY_MANUFACTURER"],
		Model:        props["POWER_SUPPLY_MODEL_NAME"],
		Technology:   props["POWER_SUPPLY_TECHNOLOGY"],
	}
	id.CycleCount, _ = strconv.ParseInt(props["POWER_SUPPLY_CYCLE_COUNT"], 10, 64)
	id.ChargeFullDesignUAH, _ = strconv.ParseInt(props["POWER_SUPPLY_CHARGE_FULL_DESIGN"], 10, 64)
	id.ChargeFullUAH, _ = strconv.ParseInt(props["POWER_SUPPLY_CHARGE_FULL"], 10, 64)
	if id.ChargeFullDesignUAH > 0 && id.ChargeFullUAH > 0 {
		id.WearPct = 100 * (1 - float64(id.ChargeFullUAH)/float64(id.ChargeFullDesignUAH))
	}
	return id, true, nil
}
