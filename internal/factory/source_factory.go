package factory

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/mikey/subtrack/internal/adapters/source"
	"github.com/mikey/subtrack/internal/config"
	"github.com/mikey/subtrack/internal/core"
	"github.com/mikey/subtrack/internal/ports"
	"github.com/mikey/subtrack/internal/utils"
)

// SourceFactory creates email sources and listeners based on configuration
type SourceFactory struct {
	cfg    *config.Config
	logger *zap.Logger
	parser *source.MessageParser
}

// NewSourceFactory creates a new source factory
func NewSourceFactory(cfg *config.Config, logger *zap.Logger, textProcessor *utils.TextProcessor) *SourceFactory {
	return &SourceFactory{
		cfg:    cfg,
		logger: logger,
		parser: source.NewMessageParser(textProcessor),
	}
}

// Parser returns the MIME parser shared by every source
func (f *SourceFactory) Parser() *source.MessageParser {
	return f.parser
}

// CreateEmailSource creates the batch email source based on the configuration
func (f *SourceFactory) CreateEmailSource() (ports.EmailSource, error) {
	sourceCfg := f.cfg.GetSource()

	switch sourceCfg.Type {
	case "dir":
		return source.NewDirSource(sourceCfg.Path, sourceCfg.MaxMessageBytes, f.parser, f.logger), nil
	default:
		return nil, fmt.Errorf("unsupported source type: %s", sourceCfg.Type)
	}
}

// CreateListener creates the SMTP drop box feeding the engine. It returns nil
// when the drop box is disabled.
func (f *SourceFactory) CreateListener(engine *core.Engine) ports.Listener {
	smtpCfg := f.cfg.GetSource().SMTP
	if !smtpCfg.Enabled {
		return nil
	}

	listener := source.NewSMTPSource(
		engine.IngestOne,
		f.parser,
		f.logger,
		smtpCfg.ListenAddress,
		f.cfg.GetSource().MaxMessageBytes,
	)
	listener.SetTimeout(smtpCfg.Timeout)
	return listener
}
