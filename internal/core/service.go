package core

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// EngineOptions holds the tunables of the ingestion pipeline
type EngineOptions struct {
	Workers int
}

// Engine is the core service: it extracts events from raw emails, persists
// them in the event log and derives reports from full log snapshots.
type Engine struct {
	extractor Extractor
	store     EventStore
	analyzer  Analyzer
	logger    *zap.Logger
	workers   int
}

// NewEngine creates a new engine
func NewEngine(
	extractor Extractor,
	store EventStore,
	analyzer Analyzer,
	logger *zap.Logger,
	opts EngineOptions,
) *Engine {
	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}
	return &Engine{
		extractor: extractor,
		store:     store,
		analyzer:  analyzer,
		logger:    logger,
		workers:   workers,
	}
}

type ingestCounters struct {
	scanned    atomic.Int64
	matched    atomic.Int64
	appended   atomic.Int64
	duplicates atomic.Int64
	rejected   atomic.Int64
}

func (c *ingestCounters) stats() IngestStats {
	return IngestStats{
		Scanned:    int(c.scanned.Load()),
		Matched:    int(c.matched.Load()),
		Appended:   int(c.appended.Load()),
		Duplicates: int(c.duplicates.Load()),
		Rejected:   int(c.rejected.Load()),
	}
}

// Ingest processes a batch of emails on a bounded worker pool. Cancellation is
// observed between emails; whatever was appended before stays in the log and a
// resumed run skips it by fingerprint.
func (e *Engine) Ingest(ctx context.Context, emails []RawEmail) (IngestStats, error) {
	var counters ingestCounters

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)

	for _, email := range emails {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			return e.ingest(gctx, email, &counters)
		})
	}

	err := g.Wait()
	stats := counters.stats()
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		e.logger.Warn("Ingestion stopped early",
			zap.Error(err),
			zap.Int("scanned", stats.Scanned),
			zap.Int("appended", stats.Appended))
		return stats, err
	}

	e.logger.Info("Ingestion complete",
		zap.Int("scanned", stats.Scanned),
		zap.Int("matched", stats.Matched),
		zap.Int("appended", stats.Appended),
		zap.Int("duplicates", stats.Duplicates),
		zap.Int("rejected", stats.Rejected))
	return stats, nil
}

// IngestOne extracts and stores a single email. It reports whether a new
// event was written.
func (e *Engine) IngestOne(ctx context.Context, email RawEmail) (bool, error) {
	var counters ingestCounters
	if err := e.ingest(ctx, email, &counters); err != nil {
		return false, err
	}
	return counters.appended.Load() == 1, nil
}

func (e *Engine) ingest(ctx context.Context, email RawEmail, counters *ingestCounters) error {
	counters.scanned.Add(1)

	result := e.extractor.Extract(email)
	if !result.Matched() {
		counters.rejected.Add(1)
		e.logger.Debug("Email skipped",
			zap.String("sender", email.From),
			zap.String("subject", email.Subject),
			zap.String("reason", string(result.Reason)))
		return nil
	}
	counters.matched.Add(1)

	ev := *result.Event
	appended, err := e.store.Append(ctx, ev)
	if err != nil {
		return fmt.Errorf("failed to append event %s: %w", ev.ID, err)
	}
	if !appended {
		counters.duplicates.Add(1)
		return nil
	}
	counters.appended.Add(1)

	e.logger.Info("Subscription event recorded",
		zap.String("id", ev.ID),
		zap.String("merchant", ev.Merchant),
		zap.String("amount", ev.Amount.StringFixed(2)),
		zap.String("currency", ev.Currency),
		zap.Stringer("date", ev.Date))
	return nil
}

// AddManual stores a user-entered event
func (e *Engine) AddManual(ctx context.Context, ev SubscriptionEvent) error {
	if ev.Source != SourceManual {
		return fmt.Errorf("%w: manual events must have source %q", ErrInvalidEvent, SourceManual)
	}
	if err := ev.Validate(); err != nil {
		return err
	}
	if _, err := e.store.Append(ctx, ev); err != nil {
		return fmt.Errorf("failed to append manual event: %w", err)
	}
	e.logger.Info("Manual event recorded",
		zap.String("id", ev.ID),
		zap.String("merchant", ev.Merchant))
	return nil
}

// Analyze loads the full event log and builds the report as of today
func (e *Engine) Analyze(ctx context.Context, today time.Time) (*Report, error) {
	loaded, err := e.store.LoadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load event log: %w", err)
	}
	if loaded.Skipped > 0 {
		e.logger.Warn("Skipped malformed event records", zap.Int("skipped", loaded.Skipped))
	}

	report := e.analyzer.Analyze(loaded.Events, DateOf(today))
	report.SkippedRecords = loaded.Skipped

	e.logger.Info("Analysis complete",
		zap.Int("events", len(loaded.Events)),
		zap.Int("merchants", report.MerchantCount),
		zap.Int("overlaps", len(report.Overlaps)),
		zap.Int("forgotten", len(report.ForgottenSubscriptions)),
		zap.Int("renewals_30d", len(report.UpcomingRenewals)))
	return report, nil
}
