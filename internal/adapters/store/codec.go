// Package store persists the append-only subscription event log
package store

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mikey/subtrack/internal/core"
)

// ErrMalformedRecord is returned for a persisted record that cannot be
// decoded into a valid event
var ErrMalformedRecord = errors.New("malformed event record")

// ErrClosed is returned by operations on a closed store
var ErrClosed = errors.New("event store is closed")

func encodeEvent(ev core.SubscriptionEvent) ([]byte, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("failed to encode event %s: %w", ev.ID, err)
	}
	return data, nil
}

func decodeEvent(data []byte) (core.SubscriptionEvent, error) {
	var ev core.SubscriptionEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return core.SubscriptionEvent{}, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	if ev.Status == "" {
		ev.Status = core.StatusActive
	}
	if ev.DetectedKeywords == nil {
		ev.DetectedKeywords = []string{}
	}
	if err := ev.Validate(); err != nil {
		return core.SubscriptionEvent{}, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	return ev, nil
}

func validateForAppend(ev core.SubscriptionEvent) error {
	if err := ev.Validate(); err != nil {
		return fmt.Errorf("refusing to append event: %w", err)
	}
	return nil
}
