package di

import (
	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mikey/subtrack/internal/config"
	"github.com/mikey/subtrack/internal/core"
	"github.com/mikey/subtrack/internal/factory"
	"github.com/mikey/subtrack/internal/logging"
	"github.com/mikey/subtrack/internal/lookup"
	"github.com/mikey/subtrack/internal/ports"
	"github.com/mikey/subtrack/internal/utils"
)

// BuildContainer creates and configures a dependency injection container.
// An empty configFile searches the standard locations.
func BuildContainer(configFile string) (*dig.Container, error) {
	container := dig.New()

	// Register configuration
	if err := container.Provide(func() (*config.Config, error) {
		return config.NewFromFile(configFile)
	}); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(logging.InitLogger); err != nil {
		return nil, err
	}

	if err := provideEngine(container); err != nil {
		return nil, err
	}

	// Register store
	if err := container.Provide(factory.NewStoreFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(func(f *factory.StoreFactory) (core.EventStore, error) {
		return f.CreateEventStore()
	}); err != nil {
		return nil, err
	}

	// Register email sources
	if err := container.Provide(factory.NewSourceFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(func(f *factory.SourceFactory) (ports.EmailSource, error) {
		return f.CreateEmailSource()
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(f *factory.SourceFactory, engine *core.Engine) ports.Listener {
		return f.CreateListener(engine)
	}); err != nil {
		return nil, err
	}

	// Register engine
	if err := container.Provide(func(
		extractor core.Extractor,
		store core.EventStore,
		analyzer core.Analyzer,
		logger *zap.Logger,
		f *factory.EngineFactory,
	) *core.Engine {
		return core.NewEngine(extractor, store, analyzer, logger, f.EngineOptions())
	}); err != nil {
		return nil, err
	}

	return container, nil
}

// provideEngine registers the components shared by every binary: text
// processing, lookup tables, the extractor and the analyzer
func provideEngine(container *dig.Container) error {
	if err := container.Provide(utils.NewTextProcessor); err != nil {
		return err
	}

	if err := container.Provide(factory.NewEngineFactory); err != nil {
		return err
	}
	if err := container.Provide(func(f *factory.EngineFactory) (*lookup.Tables, error) {
		return f.CreateTables()
	}); err != nil {
		return err
	}
	if err := container.Provide(func(
		f *factory.EngineFactory,
		tables *lookup.Tables,
		textProcessor *utils.TextProcessor,
	) core.Extractor {
		return f.CreateExtractor(tables, textProcessor)
	}); err != nil {
		return err
	}
	if err := container.Provide(func(f *factory.EngineFactory, tables *lookup.Tables) (core.Analyzer, error) {
		return f.CreateAnalyzer(tables)
	}); err != nil {
		return err
	}
	return nil
}
