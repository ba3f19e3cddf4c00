package models

type PressureLevel int

const (
	PressureNone PressureLevel = iota
	PressureLow
	PressureMedium
	PressureHigh
	PressureCritical
)

// Fractions of the memory limit at which each level starts.
const (
	LowPressureRatio      = 0.3
	MediumPressureRatio   = 0.5
	HighPressureRatio     = 0.7
	CriticalPressureRatio = 0.9
)

func (p PressureLevel) String() string {
	switch p {
	case PressureNone:
		return "none"
	case PressureLow:
		return "low"
	case PressureMedium:
		return "medium"
	case PressureHigh:
		return "high"
	case PressureCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// PressureFor classifies usage against limit. A non-positive limit is
// treated as fully exhausted as soon as anything is in use.
func PressureFor(usage, limit int) PressureLevel {
	if limit <= 0 {
		if usage > 0 {
			return PressureCritical
		}
		return PressureNone
	}
	ratio := float64(usage) / float64(limit)
	switch {
	case ratio >= CriticalPressureRatio:
		return PressureCritical
	case ratio >= HighPressureRatio:
		return PressureHigh
	case ratio >= MediumPressureRatio:
		return PressureMedium
	case ratio >= LowPressureRatio:
		return PressureLow
	default:
		return PressureNone
	}
}
