package analysis

import (
	"go.uber.org/zap"

	"github.com/mikey/subtrack/internal/core"
	"github.com/mikey/subtrack/internal/lookup"
)

// Analyzer implements core.Analyzer
type Analyzer struct {
	tables *lookup.Tables
	cfg    Config
	logger *zap.Logger
}

// NewAnalyzer creates a new analyzer
func NewAnalyzer(tables *lookup.Tables, cfg Config, logger *zap.Logger) *Analyzer {
	defaults := DefaultConfig()
	if cfg.SingleEventCadence == "" {
		cfg.SingleEventCadence = defaults.SingleEventCadence
	}
	if cfg.RenewalLookaheadDays <= 0 {
		cfg.RenewalLookaheadDays = defaults.RenewalLookaheadDays
	}
	if cfg.ForgottenCycles <= 0 {
		cfg.ForgottenCycles = defaults.ForgottenCycles
	}
	if cfg.PrimaryCurrency == "" {
		cfg.PrimaryCurrency = defaults.PrimaryCurrency
	}
	return &Analyzer{
		tables: tables,
		cfg:    cfg,
		logger: logger,
	}
}

// Analyze recomputes every derived entity from the events and builds the report
func (a *Analyzer) Analyze(events []core.SubscriptionEvent, today core.Date) *core.Report {
	profiles, cancelled := Aggregate(events, a.tables, a.cfg)
	profiles = WithRenewals(profiles, today)
	profiles = FlagForgotten(profiles, today, a.cfg.ForgottenCycles)

	overlaps := DetectOverlaps(profiles, a.cfg.OverlapTolerance)
	health := ScoreHealth(profiles, overlaps, today, a.cfg)

	report := BuildReport(ReportInput{
		Today:           today,
		TotalRecords:    len(events),
		Profiles:        profiles,
		Cancelled:       cancelled,
		Overlaps:        overlaps,
		Health:          health,
		LookaheadDays:   a.cfg.RenewalLookaheadDays,
		PrimaryCurrency: a.cfg.PrimaryCurrency,
		Tables:          a.tables,
	})

	a.logger.Debug("Report built",
		zap.String("as_of", report.AsOf),
		zap.Int("merchants", report.MerchantCount),
		zap.Int("overlaps", len(report.Overlaps)),
		zap.Int("forgotten", len(report.ForgottenSubscriptions)),
		zap.Int("renewals", len(report.UpcomingRenewals)))

	return report
}
