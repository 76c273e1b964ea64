package models

// ThresholdConfig holds the tunable warning/critical levels for one alert
// type. A nil level means the detector's hardcoded default applies and the
// adaptive tuner never touches it.
type ThresholdConfig struct {
	Warning  *float64 `json:"warning,omitempty"`
	Critical *float64 `json:"critical,omitempty"`
}

// Thresholds maps alert types to their current tunable levels. Read by the
// detector framework, mutated only by the adaptive tuner.
type Thresholds map[AlertType]ThresholdConfig

// Level returns the named threshold level, or the fallback when the alert
// type has no override on record.
func (t Thresholds) Level(alertType AlertType, level string, fallback float64) float64 {
	cfg, ok := t[alertType]
	if !ok {
		return fallback
	}
	var v *float64
	switch level {
	case "critical":
		v = cfg.Critical
	default:
		v = cfg.Warning
	}
	if v == nil {
		return fallback
	}
	return *v
}

// ThresholdChange is one adjustment made by a tuning cycle, returned to the
// caller for audit logging.
type ThresholdChange struct {
	Direction   string   `json:"direction"` // "raise" or "lower"
	Reason      string   `json:"reason"`
	OldWarning  *float64 `json:"old_warning,omitempty"`
	NewWarning  *float64 `json:"new_warning,omitempty"`
	OldCritical *float64 `json:"old_critical,omitempty"`
	NewCritical *float64 `json:"new_critical,omitempty"`
}

// Float64Ptr is a convenience for building threshold tables.
func Float64Ptr(v float64) *float64 { return &v }
