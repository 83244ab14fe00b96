package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	v *viper.Viper
}

// New creates a new configuration instance
func New() (*Config, error) {
	return NewFromFile("")
}

// NewFromFile creates a configuration instance from an explicit file. An
// empty path searches the standard locations.
func NewFromFile(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/subtrack/")
		v.AddConfigPath("$HOME/.subtrack")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	// Set defaults
	setDefaults(v)

	// Environment variables
	v.AutomaticEnv()
	v.SetEnvPrefix("SUBTRACK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, using defaults
	}

	return &Config{v: v}, nil
}

// NewFromViper creates a new configuration instance from an existing Viper instance
func NewFromViper(v *viper.Viper) *Config {
	return &Config{v: v}
}

// NewEmptyViper creates a new Viper instance with defaults
func NewEmptyViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	return v
}

// setDefaults sets the default configuration values
func setDefaults(v *viper.Viper) {
	// Event store defaults
	v.SetDefault("store.type", "jsonl")
	v.SetDefault("store.jsonl_path", "./data/subscriptions.jsonl")
	v.SetDefault("store.sqlite_path", "./data/subscriptions.db")
	v.SetDefault("store.mysql_dsn", "user:password@tcp(localhost:3306)/subtrack")

	// Email source defaults
	v.SetDefault("source.type", "dir")
	v.SetDefault("source.path", "./mail")
	v.SetDefault("source.max_message_bytes", 10*1024*1024)
	v.SetDefault("source.smtp.enabled", false)
	v.SetDefault("source.smtp.listen_address", "127.0.0.1:2525")
	v.SetDefault("source.smtp.timeout", "30s")

	// Lookup tables; empty means the embedded defaults
	v.SetDefault("lookup.path", "")

	// Extractor defaults
	v.SetDefault("extractor.max_body_size", 8192)
	v.SetDefault("extractor.max_amount", 9999999)
	v.SetDefault("extractor.date_window_days", 400)
	v.SetDefault("extractor.fuzzy_distance", 1)

	// Ingestion defaults
	v.SetDefault("ingest.workers", 4)

	// Analysis defaults
	v.SetDefault("analysis.overlap_tolerance", 0.30)
	v.SetDefault("analysis.single_event_cadence", "monthly")
	v.SetDefault("analysis.renewal_lookahead_days", 30)
	v.SetDefault("analysis.forgotten_cycles", 2)
	v.SetDefault("analysis.primary_currency", "USD")
	v.SetDefault("analysis.variance_threshold", 0.15)

	// Health score weights
	v.SetDefault("health.recency_max", 40)
	v.SetDefault("health.regularity_irregular", 25)
	v.SetDefault("health.regularity_single", 10)
	v.SetDefault("health.regularity_variance", 10)
	v.SetDefault("health.cost_ratio", 1.5)
	v.SetDefault("health.cost_max", 20)
	v.SetDefault("health.overlap", 15)

	// Sender ignore list
	v.SetDefault("ignore.domains", []string{})

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// GetString gets a string value from the configuration
func (c *Config) GetString(key string) string {
	return c.v.GetString(key)
}

// GetInt gets an integer value from the configuration
func (c *Config) GetInt(key string) int {
	return c.v.GetInt(key)
}

// GetInt64 gets an int64 value from the configuration
func (c *Config) GetInt64(key string) int64 {
	return c.v.GetInt64(key)
}

// GetFloat64 gets a float64 value from the configuration
func (c *Config) GetFloat64(key string) float64 {
	return c.v.GetFloat64(key)
}

// GetBool gets a boolean value from the configuration
func (c *Config) GetBool(key string) bool {
	return c.v.GetBool(key)
}

// GetStringSlice gets a string slice value from the configuration
func (c *Config) GetStringSlice(key string) []string {
	return c.v.GetStringSlice(key)
}

// GetDuration gets a duration value from the configuration
func (c *Config) GetDuration(key string) (time.Duration, error) {
	return time.ParseDuration(c.GetString(key))
}

// GetViper returns the underlying Viper instance
func (c *Config) GetViper() *viper.Viper {
	return c.v
}
