package factory

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mikey/subtrack/internal/analysis"
	"github.com/mikey/subtrack/internal/config"
	"github.com/mikey/subtrack/internal/core"
	"github.com/mikey/subtrack/internal/extractor"
	"github.com/mikey/subtrack/internal/ignorelist"
	"github.com/mikey/subtrack/internal/lookup"
	"github.com/mikey/subtrack/internal/utils"
)

// EngineFactory builds the heuristic and analytic components from configuration
type EngineFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewEngineFactory creates a new engine factory
func NewEngineFactory(cfg *config.Config, logger *zap.Logger) *EngineFactory {
	return &EngineFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateTables loads the lookup tables, falling back to the embedded set
func (f *EngineFactory) CreateTables() (*lookup.Tables, error) {
	path := f.cfg.GetString("lookup.path")
	tables, err := lookup.Load(path)
	if err != nil {
		return nil, err
	}
	f.logger.Info("Loaded lookup tables",
		zap.String("path", path),
		zap.Int("version", tables.Version()))
	return tables, nil
}

// CreateExtractor creates the email record extractor
func (f *EngineFactory) CreateExtractor(tables *lookup.Tables, textProcessor *utils.TextProcessor) core.Extractor {
	extractorCfg := f.cfg.GetExtractor()
	opts := extractor.Options{
		MaxBodySize:      extractorCfg.MaxBodySize,
		MaxAmount:        decimal.NewFromInt(extractorCfg.MaxAmount),
		DateWindowDays:   extractorCfg.DateWindowDays,
		FuzzyDistance:    extractorCfg.FuzzyDistance,
		FallbackCurrency: strings.ToUpper(strings.TrimSpace(f.cfg.GetAnalysis().PrimaryCurrency)),
	}
	ignore := ignorelist.NewChecker(f.cfg.GetIgnoredDomains(), f.logger)
	return extractor.New(tables, opts, ignore, textProcessor, f.logger)
}

// AnalysisConfig converts the configured thresholds into an analysis.Config
func (f *EngineFactory) AnalysisConfig() (analysis.Config, error) {
	analysisCfg := f.cfg.GetAnalysis()

	cadence, err := core.ParseCadence(analysisCfg.SingleEventCadence)
	if err != nil {
		return analysis.Config{}, fmt.Errorf("invalid single event cadence: %w", err)
	}
	if !cadence.IsPeriodic() {
		return analysis.Config{}, fmt.Errorf("single event cadence must be periodic, got %s", cadence)
	}
	if analysisCfg.OverlapTolerance < 0 {
		return analysis.Config{}, fmt.Errorf("overlap tolerance must not be negative: %v", analysisCfg.OverlapTolerance)
	}

	h := analysisCfg.Health
	return analysis.Config{
		OverlapTolerance:     analysisCfg.OverlapTolerance,
		SingleEventCadence:   cadence,
		RenewalLookaheadDays: analysisCfg.RenewalLookaheadDays,
		ForgottenCycles:      analysisCfg.ForgottenCycles,
		PrimaryCurrency:      strings.ToUpper(strings.TrimSpace(analysisCfg.PrimaryCurrency)),
		VarianceThreshold:    analysisCfg.VarianceThreshold,
		Health: analysis.HealthWeights{
			RecencyMax:          h.RecencyMax,
			RegularityIrregular: h.RegularityIrregular,
			RegularitySingle:    h.RegularitySingle,
			RegularityVariance:  h.RegularityVariance,
			CostRatio:           h.CostRatio,
			CostMax:             h.CostMax,
			Overlap:             h.Overlap,
		},
	}, nil
}

// CreateAnalyzer creates the analyzer with the configured thresholds
func (f *EngineFactory) CreateAnalyzer(tables *lookup.Tables) (core.Analyzer, error) {
	cfg, err := f.AnalysisConfig()
	if err != nil {
		return nil, err
	}
	return analysis.NewAnalyzer(tables, cfg, f.logger), nil
}

// EngineOptions returns the ingestion pipeline tunables
func (f *EngineFactory) EngineOptions() core.EngineOptions {
	return core.EngineOptions{Workers: f.cfg.GetIngestWorkers()}
}
