package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/mikey/subtrack/internal/core"
)

// SQLiteStore is a SQLite implementation of the EventStore interface. The
// full event is kept as its JSON record so the log stays schema-identical to
// the JSONL file; the remaining columns serve lookups.
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSQLiteStore opens or creates the SQLite event log
func NewSQLiteStore(dbPath string, logger *zap.Logger) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create SQLite directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	// sqlite3 serializes writers
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS subscription_events (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			merchant TEXT NOT NULL,
			currency TEXT NOT NULL,
			event_date TEXT NOT NULL,
			status TEXT NOT NULL,
			payload TEXT NOT NULL,
			stored_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	_, err = db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_events_merchant ON subscription_events(merchant, currency)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create index: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		logger: logger,
	}, nil
}

// Append inserts the event unless its id is already stored
func (s *SQLiteStore) Append(ctx context.Context, ev core.SubscriptionEvent) (bool, error) {
	if err := validateForAppend(ev); err != nil {
		return false, err
	}
	payload, err := encodeEvent(ev)
	if err != nil {
		return false, err
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO subscription_events (id, merchant, currency, event_date, status, payload, stored_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, ev.ID, ev.Merchant, ev.Currency, ev.Date.String(), string(ev.Status), string(payload), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return false, fmt.Errorf("failed to insert event: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows == 1, nil
}

// LoadAll reads every event in insertion order, skipping malformed payloads
func (s *SQLiteStore) LoadAll(ctx context.Context) (*core.LoadResult, error) {
	return loadRows(ctx, s.db, s.logger, `
		SELECT id, payload FROM subscription_events ORDER BY seq
	`)
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close SQLite database: %w", err)
	}
	return nil
}

func loadRows(ctx context.Context, db *sql.DB, logger *zap.Logger, query string) (*core.LoadResult, error) {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	result := &core.LoadResult{Events: []core.SubscriptionEvent{}}
	for rows.Next() {
		var id, payload string
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}
		ev, err := decodeEvent([]byte(payload))
		if err != nil || ev.ID != id {
			result.Skipped++
			logger.Warn("Skipping malformed event record", zap.String("id", id), zap.Error(err))
			continue
		}
		result.Events = append(result.Events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate events: %w", err)
	}
	return result, nil
}
