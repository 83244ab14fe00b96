package config

import "time"

// StoreConfig holds event store configuration
type StoreConfig struct {
	Type       string
	JSONLPath  string
	SQLitePath string
	MySQLDSN   string
}

// SourceConfig holds email source configuration
type SourceConfig struct {
	Type            string
	Path            string
	MaxMessageBytes int64
	SMTP            SMTPConfig
}

// SMTPConfig holds the SMTP drop box configuration
type SMTPConfig struct {
	Enabled       bool
	ListenAddress string
	Timeout       time.Duration
}

// ExtractorConfig holds the extraction limits
type ExtractorConfig struct {
	MaxBodySize    int
	MaxAmount      int64
	DateWindowDays int
	FuzzyDistance  int
}

// AnalysisConfig holds the analysis thresholds
type AnalysisConfig struct {
	OverlapTolerance     float64
	SingleEventCadence   string
	RenewalLookaheadDays int
	ForgottenCycles      int
	PrimaryCurrency      string
	VarianceThreshold    float64
	Health               HealthConfig
}

// HealthConfig holds the health score penalty weights
type HealthConfig struct {
	RecencyMax          int
	RegularityIrregular int
	RegularitySingle    int
	RegularityVariance  int
	CostRatio           float64
	CostMax             int
	Overlap             int
}

// GetStore returns the event store configuration
func (c *Config) GetStore() StoreConfig {
	return StoreConfig{
		Type:       c.GetString("store.type"),
		JSONLPath:  c.GetString("store.jsonl_path"),
		SQLitePath: c.GetString("store.sqlite_path"),
		MySQLDSN:   c.GetString("store.mysql_dsn"),
	}
}

// GetSource returns the email source configuration
func (c *Config) GetSource() SourceConfig {
	timeout, err := c.GetDuration("source.smtp.timeout")
	if err != nil {
		timeout = 30 * time.Second
	}
	return SourceConfig{
		Type:            c.GetString("source.type"),
		Path:            c.GetString("source.path"),
		MaxMessageBytes: c.GetInt64("source.max_message_bytes"),
		SMTP: SMTPConfig{
			Enabled:       c.GetBool("source.smtp.enabled"),
			ListenAddress: c.GetString("source.smtp.listen_address"),
			Timeout:       timeout,
		},
	}
}

// GetExtractor returns the extractor configuration
func (c *Config) GetExtractor() ExtractorConfig {
	return ExtractorConfig{
		MaxBodySize:    c.GetInt("extractor.max_body_size"),
		MaxAmount:      c.GetInt64("extractor.max_amount"),
		DateWindowDays: c.GetInt("extractor.date_window_days"),
		FuzzyDistance:  c.GetInt("extractor.fuzzy_distance"),
	}
}

// GetAnalysis returns the analysis configuration
func (c *Config) GetAnalysis() AnalysisConfig {
	return AnalysisConfig{
		OverlapTolerance:     c.GetFloat64("analysis.overlap_tolerance"),
		SingleEventCadence:   c.GetString("analysis.single_event_cadence"),
		RenewalLookaheadDays: c.GetInt("analysis.renewal_lookahead_days"),
		ForgottenCycles:      c.GetInt("analysis.forgotten_cycles"),
		PrimaryCurrency:      c.GetString("analysis.primary_currency"),
		VarianceThreshold:    c.GetFloat64("analysis.variance_threshold"),
		Health: HealthConfig{
			RecencyMax:          c.GetInt("health.recency_max"),
			RegularityIrregular: c.GetInt("health.regularity_irregular"),
			RegularitySingle:    c.GetInt("health.regularity_single"),
			RegularityVariance:  c.GetInt("health.regularity_variance"),
			CostRatio:           c.GetFloat64("health.cost_ratio"),
			CostMax:             c.GetInt("health.cost_max"),
			Overlap:             c.GetInt("health.overlap"),
		},
	}
}

// GetIngestWorkers returns the size of the ingestion worker pool
func (c *Config) GetIngestWorkers() int {
	return c.GetInt("ingest.workers")
}

// GetIgnoredDomains returns the sender domains that never produce events
func (c *Config) GetIgnoredDomains() []string {
	return c.GetStringSlice("ignore.domains")
}
