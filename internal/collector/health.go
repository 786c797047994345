package collector

// HealthLabel is the closed set of battery health states shown to the user.
type HealthLabel int

const (
	HealthUnknown HealthLabel = iota
	HealthGood
	HealthOverheat
	HealthDead
	HealthOverVoltage
	HealthUnspecifiedFailure
	HealthCold
)

var healthByCode = map[RawHealth]HealthLabel{
	RawHealthGood:               HealthGood,
	RawHealthOverheat:           HealthOverheat,
	RawHealthDead:               HealthDead,
	RawHealthOverVoltage:        HealthOverVoltage,
	RawHealthUnspecifiedFailure: HealthUnspecifiedFailure,
	RawHealthCold:               HealthCold,
}

// LookupHealth maps a raw platform code to its label.
func LookupHealth(code RawHealth) HealthLabel {
	if label, ok := healthByCode[code]; ok {
		return label
	}
	return HealthUnknown
}

func (h HealthLabel) String() string {
	switch h {
	case HealthGood:
		return "Good"
	case HealthOverheat:
		return "Overheat"
	case HealthDead:
		return "Dead"
	case HealthOverVoltage:
		return "Over voltage"
	case HealthUnspecifiedFailure:
		return "Unspecified failure"
	case HealthCold:
		return "Cold"
	default:
		return "Unknown"
	}
}

// MarshalText encodes the label as its display string so JSON output over
// D-Bus stays readable.
func (h HealthLabel) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText is the inverse of MarshalText; unrecognised text decodes to
// HealthUnknown.
func (h *HealthLabel) UnmarshalText(text []byte) error {
	*h = HealthUnknown
	for label := HealthGood; label <= HealthCold; label++ {
		if label.String() == string(text) {
			*h = label
			break
		}
	}
	return nil
}
