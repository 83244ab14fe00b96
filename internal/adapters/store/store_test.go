package store

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mikey/subtrack/internal/core"
)

func testEvent(id, merchant string) core.SubscriptionEvent {
	return core.SubscriptionEvent{
		ID:               id,
		Merchant:         merchant,
		Amount:           decimal.RequireFromString("15.49"),
		Currency:         "USD",
		Date:             core.NewDate(2024, time.November, 1),
		Subject:          "Your receipt",
		SourceEmail:      "billing@" + merchant + ".com",
		DetectedKeywords: []string{"receipt"},
		ParsedAt:         time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC),
		Source:           core.SourceEmail,
		Status:           core.StatusActive,
	}
}

type storeCase struct {
	name string
	open func(t *testing.T) core.EventStore
}

func storeCases() []storeCase {
	return []storeCase{
		{"memory", func(t *testing.T) core.EventStore {
			return NewMemoryStore(zap.NewNop())
		}},
		{"jsonl", func(t *testing.T) core.EventStore {
			s, err := NewJSONLStore(filepath.Join(t.TempDir(), "data", "subscriptions.jsonl"), zap.NewNop())
			require.NoError(t, err)
			return s
		}},
		{"sqlite", func(t *testing.T) core.EventStore {
			s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "events.db"), zap.NewNop())
			require.NoError(t, err)
			return s
		}},
	}
}

func TestStoreDeduplicatesByID(t *testing.T) {
	for _, tc := range storeCases() {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			s := tc.open(t)
			defer s.Close()

			added, err := s.Append(ctx, testEvent("a1", "netflix"))
			require.NoError(t, err)
			assert.True(t, added)

			added, err = s.Append(ctx, testEvent("a1", "netflix"))
			require.NoError(t, err)
			assert.False(t, added)

			added, err = s.Append(ctx, testEvent("b2", "hulu"))
			require.NoError(t, err)
			assert.True(t, added)

			result, err := s.LoadAll(ctx)
			require.NoError(t, err)
			require.Len(t, result.Events, 2)
			assert.Equal(t, 0, result.Skipped)
			assert.Equal(t, "a1", result.Events[0].ID)
			assert.Equal(t, "b2", result.Events[1].ID)

			got := result.Events[0]
			want := testEvent("a1", "netflix")
			assert.Equal(t, want.Merchant, got.Merchant)
			assert.True(t, want.Amount.Equal(got.Amount))
			assert.Equal(t, want.Date, got.Date)
			assert.True(t, want.ParsedAt.Equal(got.ParsedAt))
			assert.Equal(t, want.DetectedKeywords, got.DetectedKeywords)
		})
	}
}

func TestStoreRejectsInvalidEvents(t *testing.T) {
	for _, tc := range storeCases() {
		t.Run(tc.name, func(t *testing.T) {
			s := tc.open(t)
			defer s.Close()

			ev := testEvent("c3", "dropbox")
			ev.Amount = decimal.Zero
			_, err := s.Append(context.Background(), ev)
			assert.ErrorIs(t, err, core.ErrInvalidEvent)
		})
	}
}

func TestStoreRoundTripsUnpricedCancellationAndOverride(t *testing.T) {
	for _, tc := range storeCases() {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			s := tc.open(t)
			defer s.Close()

			cancelled := testEvent("c1", "netflix")
			cancelled.Amount = decimal.Zero
			cancelled.Status = core.StatusCancelled

			pinned := testEvent("m1", "gym")
			pinned.Source = core.SourceManual
			pinned.FrequencyOverride = core.CadenceYearly

			for _, ev := range []core.SubscriptionEvent{cancelled, pinned} {
				added, err := s.Append(ctx, ev)
				require.NoError(t, err)
				assert.True(t, added)
			}

			result, err := s.LoadAll(ctx)
			require.NoError(t, err)
			require.Len(t, result.Events, 2)
			assert.Equal(t, 0, result.Skipped)

			byID := map[string]core.SubscriptionEvent{}
			for _, ev := range result.Events {
				byID[ev.ID] = ev
			}
			assert.True(t, byID["c1"].Amount.IsZero())
			assert.Equal(t, core.StatusCancelled, byID["c1"].Status)
			assert.Equal(t, core.CadenceYearly, byID["m1"].FrequencyOverride)
		})
	}
}

func TestStoreConcurrentAppends(t *testing.T) {
	for _, tc := range storeCases() {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			s := tc.open(t)
			defer s.Close()

			var wg sync.WaitGroup
			var mu sync.Mutex
			added := 0
			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					ok, err := s.Append(ctx, testEvent("same", "netflix"))
					assert.NoError(t, err)
					if ok {
						mu.Lock()
						added++
						mu.Unlock()
					}
				}()
			}
			wg.Wait()

			assert.Equal(t, 1, added)
			result, err := s.LoadAll(ctx)
			require.NoError(t, err)
			assert.Len(t, result.Events, 1)
		})
	}
}

func TestJSONLStoreSkipsMalformedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "subscriptions.jsonl")
	good, err := encodeEvent(testEvent("a1", "netflix"))
	require.NoError(t, err)

	content := string(good) + "\n" +
		"{not json}\n" +
		"\n" +
		`{"id":"x","merchant":"","amount":"1","currency":"USD","date":"2024-01-01","source":"email"}` + "\n" +
		`{"id":"legacy","merchant":"Hulu","amount":15.0,"currency":"USD","date":"2024-11-05","subject":"s","source_email":"a@hulu.com","detected_keywords":["receipt"],"parsed_at":"2024-11-05T10:00:00Z","source":"email"}` + "\n" +
		`{"id":"trunc","merch`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	s, err := NewJSONLStore(path, zap.NewNop())
	require.NoError(t, err)
	defer s.Close()

	result, err := s.LoadAll(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Events, 2)
	assert.Equal(t, 3, result.Skipped)
	assert.Equal(t, "legacy", result.Events[1].ID)
	assert.Equal(t, core.StatusActive, result.Events[1].Status)

	// the truncated tail must not swallow the next record
	added, err := s.Append(context.Background(), testEvent("b2", "spotify"))
	require.NoError(t, err)
	assert.True(t, added)

	result, err = s.LoadAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, result.Events, 3)
	assert.Equal(t, 3, result.Skipped)
}

func TestJSONLStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "subscriptions.jsonl")

	s, err := NewJSONLStore(path, zap.NewNop())
	require.NoError(t, err)
	added, err := s.Append(ctx, testEvent("a1", "netflix"))
	require.NoError(t, err)
	assert.True(t, added)
	require.NoError(t, s.Close())

	s, err = NewJSONLStore(path, zap.NewNop())
	require.NoError(t, err)
	defer s.Close()

	added, err = s.Append(ctx, testEvent("a1", "netflix"))
	require.NoError(t, err)
	assert.False(t, added)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1, countLines(data))
}

func TestMemoryStoreHonoursCancelledContext(t *testing.T) {
	s := NewMemoryStore(zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Append(ctx, testEvent("a1", "netflix"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStoreRejectsUseAfterClose(t *testing.T) {
	cases := storeCases()[:2]
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := tc.open(t)
			require.NoError(t, s.Close())
			require.NoError(t, s.Close())

			_, err := s.Append(context.Background(), testEvent("a1", "netflix"))
			assert.ErrorIs(t, err, ErrClosed)
			_, err = s.LoadAll(context.Background())
			assert.ErrorIs(t, err, ErrClosed)
		})
	}
}

func countLines(data []byte) int {
	n := 0
	for _, b := range data {
		if b == '\n' {
			n++
		}
	}
	return n
}
