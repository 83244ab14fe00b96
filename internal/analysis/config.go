// Package analysis derives merchant profiles, renewal predictions, overlap
// candidates, forgotten flags and health scores from a snapshot of the event
// log. Every function here is a pure function of (events, tables, config, today).
package analysis

import (
	"github.com/mikey/subtrack/internal/core"
)

// Config holds the analysis thresholds. It is passed in at construction and
// never read from global state.
type Config struct {
	OverlapTolerance     float64
	SingleEventCadence   core.Cadence
	RenewalLookaheadDays int
	ForgottenCycles      int
	PrimaryCurrency      string
	VarianceThreshold    float64
	Health               HealthWeights
}

// HealthWeights bounds each penalty component of the health score
type HealthWeights struct {
	RecencyMax          int
	RegularityIrregular int
	RegularitySingle    int
	RegularityVariance  int
	CostRatio           float64
	CostMax             int
	Overlap             int
}

// DefaultConfig returns the thresholds used when nothing is configured
func DefaultConfig() Config {
	return Config{
		OverlapTolerance:     0.30,
		SingleEventCadence:   core.CadenceMonthly,
		RenewalLookaheadDays: 30,
		ForgottenCycles:      2,
		PrimaryCurrency:      "USD",
		VarianceThreshold:    0.15,
		Health: HealthWeights{
			RecencyMax:          40,
			RegularityIrregular: 25,
			RegularitySingle:    10,
			RegularityVariance:  10,
			CostRatio:           1.5,
			CostMax:             20,
			Overlap:             15,
		},
	}
}
