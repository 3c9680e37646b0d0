package consensus

import "time"

// WindowConfig scales the consensus evaluation window with the current
// volatility regime. Wider windows in volatile regimes demand more
// confirmation before a signal emits.
type WindowConfig struct {
	Base           time.Duration `yaml:"base"`
	CalmPercentile float64       `yaml:"calm_percentile"` // below: calm regime
	WildPercentile float64       `yaml:"wild_percentile"` // above: volatile regime
	CalmFactor     float64       `yaml:"calm_factor"`
	WildFactor     float64       `yaml:"wild_factor"`
}

// DefaultWindowConfig returns the production window scaling.
func DefaultWindowConfig() WindowConfig {
	return WindowConfig{
		Base:           5 * time.Minute,
		CalmPercentile: 0.30,
		WildPercentile: 0.70,
		CalmFactor:     0.5,
		WildFactor:     3.0,
	}
}

// AdaptiveWindow returns the evaluation window width for the given
// volatility percentile (∈ [0,1]).
func AdaptiveWindow(volPercentile float64, cfg WindowConfig) time.Duration {
	switch {
	case volPercentile < cfg.CalmPercentile:
		return time.Duration(float64(cfg.Base) * cfg.CalmFactor)
	case volPercentile > cfg.WildPercentile:
		return time.Duration(float64(cfg.Base) * cfg.WildFactor)
	default:
		return cfg.Base
	}
}
