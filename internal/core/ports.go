package core

import (
	"context"
)

// Extractor turns a raw email into at most one subscription event
type Extractor interface {
	// Extract never fails; unmatched emails carry a rejection reason
	Extract(email RawEmail) ExtractResult
}

// EventStore defines the append-only event log
type EventStore interface {
	// Append writes the event unless its id is already stored.
	// It reports whether a new record was written.
	Append(ctx context.Context, event SubscriptionEvent) (bool, error)

	// LoadAll reads the full log, skipping malformed records
	LoadAll(ctx context.Context) (*LoadResult, error)

	// Close releases the underlying storage
	Close() error
}

// Analyzer derives the report from a snapshot of the event log
type Analyzer interface {
	Analyze(events []SubscriptionEvent, today Date) *Report
}
