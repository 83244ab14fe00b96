package factory

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/mikey/subtrack/internal/adapters/store"
	"github.com/mikey/subtrack/internal/config"
	"github.com/mikey/subtrack/internal/core"
)

// StoreFactory creates event stores based on configuration
type StoreFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewStoreFactory creates a new store factory
func NewStoreFactory(cfg *config.Config, logger *zap.Logger) *StoreFactory {
	return &StoreFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateEventStore creates an event store based on the configuration
func (f *StoreFactory) CreateEventStore() (core.EventStore, error) {
	storeCfg := f.cfg.GetStore()

	switch storeCfg.Type {
	case "jsonl":
		return store.NewJSONLStore(storeCfg.JSONLPath, f.logger)
	case "memory":
		return store.NewMemoryStore(f.logger), nil
	case "sqlite":
		return store.NewSQLiteStore(storeCfg.SQLitePath, f.logger)
	case "mysql":
		return store.NewMySQLStore(storeCfg.MySQLDSN, f.logger)
	default:
		return nil, fmt.Errorf("unsupported store type: %s", storeCfg.Type)
	}
}
