package waf

import "fmt"

// Sensitivity is a three-level multiplier on the anomaly decision boundary.
// Low raises the effective threshold, High lowers it.
type Sensitivity string

// Sensitivity levels.
const (
	SensitivityLow    Sensitivity = "Low"
	SensitivityMedium Sensitivity = "Medium"
	SensitivityHigh   Sensitivity = "High"
)

// Multiplier returns the factor applied to the anomaly threshold.
func (s Sensitivity) Multiplier() float64 {
	switch s {
	case SensitivityLow:
		return 1.5
	case SensitivityHigh:
		return 0.5
	default:
		return 1.0
	}
}

// Valid tells whether this is a known sensitivity level.
func (s Sensitivity) Valid() bool {
	switch s {
	case SensitivityLow, SensitivityMedium, SensitivityHigh:
		return true
	}
	return false
}

// EngineConfig holds the decision thresholds of the evaluation pipeline.
type EngineConfig struct {
	// AnomalyThreshold is the base score above which a request is blocked
	// with reason Anomaly, before the sensitivity multiplier.
	AnomalyThreshold float64

	Sensitivity Sensitivity

	// ThreatSeverityBlockThreshold is the minimum feed entry severity
	// (1..5) that short-circuits to a block.
	ThreatSeverityBlockThreshold int
}

// EffectiveAnomalyThreshold is the decision boundary after applying the
// sensitivity multiplier.
func (c EngineConfig) EffectiveAnomalyThreshold() float64 {
	return c.AnomalyThreshold * c.Sensitivity.Multiplier()
}

// Validate checks the config values.
func (c EngineConfig) Validate() error {
	if c.AnomalyThreshold < 0 || c.AnomalyThreshold > 1 {
		return fmt.Errorf("anomaly threshold must be within [0,1], got %v", c.AnomalyThreshold)
	}

	if !c.Sensitivity.Valid() {
		return fmt.Errorf("unknown sensitivity level %q", c.Sensitivity)
	}

	if c.ThreatSeverityBlockThreshold < 1 || c.ThreatSeverityBlockThreshold > 5 {
		return fmt.Errorf("threat severity block threshold must be within [1,5], got %v", c.ThreatSeverityBlockThreshold)
	}

	return nil
}
