package di

import (
	"flag"
	"strings"

	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mikey/subtrack/internal/adapters/cli"
	"github.com/mikey/subtrack/internal/adapters/source"
	"github.com/mikey/subtrack/internal/config"
	"github.com/mikey/subtrack/internal/core"
	"github.com/mikey/subtrack/internal/logging"
	"github.com/mikey/subtrack/internal/utils"
)

// CLIFlags contains all command line flags for the inspection CLI
type CLIFlags struct {
	// Extraction flags
	LookupPath    string
	MaxBodySize   int
	IgnoreDomains string

	// Input flags
	InputFile  string
	Verbose    bool
	JSONLog    bool
	ConfigFile string
}

// ParseFlags parses command line flags and returns a CLIFlags struct
func ParseFlags() *CLIFlags {
	flags := &CLIFlags{}

	// Extraction flags
	flag.StringVar(&flags.LookupPath, "lookup", "", "Path to lookup tables YAML (embedded tables if not specified)")
	flag.IntVar(&flags.MaxBodySize, "max-body-size", 8192, "Maximum email body size scanned for amounts")
	flag.StringVar(&flags.IgnoreDomains, "ignore", "", "Comma-separated list of ignored sender domains")

	// Input flags
	flag.StringVar(&flags.InputFile, "file", "", "Input email file (use stdin if not specified)")
	flag.BoolVar(&flags.Verbose, "verbose", false, "Enable verbose logging")
	flag.BoolVar(&flags.JSONLog, "json-log", false, "Output logs in JSON format")
	flag.StringVar(&flags.ConfigFile, "config", "", "Path to config file (overrides command line flags)")

	flag.Parse()
	return flags
}

// BuildCLIContainer creates and configures a dependency injection container for the CLI application
func BuildCLIContainer(flags *CLIFlags) (*dig.Container, error) {
	container := dig.New()

	// Register flags
	if err := container.Provide(func() *CLIFlags { return flags }); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(func(flags *CLIFlags) (*zap.Logger, error) {
		return logging.InitConsoleLogger(flags.Verbose, flags.JSONLog)
	}); err != nil {
		return nil, err
	}

	// Register configuration
	if err := container.Provide(func(flags *CLIFlags, logger *zap.Logger) (*config.Config, error) {
		if flags.ConfigFile != "" {
			cfg, err := config.NewFromFile(flags.ConfigFile)
			if err != nil {
				return nil, err
			}
			logger.Info("Loaded configuration from file", zap.String("file", cfg.GetViper().ConfigFileUsed()))
			return cfg, nil
		}

		// Create config from command line flags
		return createConfigFromFlags(flags), nil
	}); err != nil {
		return nil, err
	}

	if err := provideEngine(container); err != nil {
		return nil, err
	}

	// Register inspector
	if err := container.Provide(func(
		extractor core.Extractor,
		textProcessor *utils.TextProcessor,
		logger *zap.Logger,
		flags *CLIFlags,
	) *cli.Inspector {
		return cli.NewInspector(extractor, source.NewMessageParser(textProcessor), logger, flags.Verbose)
	}); err != nil {
		return nil, err
	}

	return container, nil
}

// createConfigFromFlags creates a configuration from command line flags
func createConfigFromFlags(flags *CLIFlags) *config.Config {
	v := config.NewEmptyViper()

	v.Set("lookup.path", flags.LookupPath)
	v.Set("extractor.max_body_size", flags.MaxBodySize)

	// Set ignored sender domains
	if flags.IgnoreDomains != "" {
		domains := strings.Split(flags.IgnoreDomains, ",")
		for i, domain := range domains {
			domains[i] = strings.TrimSpace(domain)
		}
		v.Set("ignore.domains", domains)
	}

	return config.NewFromViper(v)
}
