package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"

	"github.com/mikey/subtrack/internal/core"
)

// MySQLStore is a MySQL implementation of the EventStore interface for
// ledgers shared by several ingest hosts
type MySQLStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewMySQLStore connects to MySQL and creates the event table if needed
func NewMySQLStore(dsn string, logger *zap.Logger) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to MySQL database: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS subscription_events (
			seq BIGINT AUTO_INCREMENT PRIMARY KEY,
			id VARCHAR(64) NOT NULL,
			merchant VARCHAR(255) NOT NULL,
			currency CHAR(3) NOT NULL,
			event_date DATE NOT NULL,
			status VARCHAR(16) NOT NULL,
			payload TEXT NOT NULL,
			stored_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE KEY uniq_event_id (id),
			INDEX idx_events_merchant (merchant, currency)
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	return &MySQLStore{
		db:     db,
		logger: logger,
	}, nil
}

// Append inserts the event unless its id is already stored
func (s *MySQLStore) Append(ctx context.Context, ev core.SubscriptionEvent) (bool, error) {
	if err := validateForAppend(ev); err != nil {
		return false, err
	}
	payload, err := encodeEvent(ev)
	if err != nil {
		return false, err
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT IGNORE INTO subscription_events (id, merchant, currency, event_date, status, payload)
		VALUES (?, ?, ?, ?, ?, ?)
	`, ev.ID, ev.Merchant, ev.Currency, ev.Date.String(), string(ev.Status), string(payload))
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
func (s *MySQLStore) LoadAll(ctx context.Context) (*core.LoadResult, error) {
	return loadRows(ctx, s.db, s.logger, `
		SELECT id, payload FROM subscription_events ORDER BY seq
	`)
}

// Close closes the database connection
func (s *MySQLStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close MySQL database: %w", err)
	}
	return nil
}
