package collector

// RawHealth is the platform battery health code.
type RawHealth int

// Platform health codes. Anything outside Good..Cold is reported as Unknown.
const (
	RawHealthUnknown            RawHealth = 1
	RawHealthGood               RawHealth = 2
	RawHealthOverheat           RawHealth = 3
	RawHealthDead               RawHealth = 4
	RawHealthOverVoltage        RawHealth = 5
	RawHealthUnspecifiedFailure RawHealth = 6
	RawHealthCold               RawHealth = 7
)

// RawTelemetry is one snapshot as reported by the telemetry source, before
// unit conversion. CurrentUA is negative while discharging.
type RawTelemetry struct {
	Health             RawHealth
	TemperatureTenthsC int
	VoltageMV          int
	CurrentUA          int
}

// BatterySample holds a battery reading in engineering units.
// CurrentMA is positive while discharging.
type BatterySample struct {
	TemperatureC float64     `json:"temperature_c"`
	CurrentMA    float64     `json:"current_ma"`
	VoltageMV    int         `json:"voltage_mv"`
	Health       HealthLabel `json:"health"`
}
