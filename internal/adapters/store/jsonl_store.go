package store

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/mikey/subtrack/internal/core"
)

// JSONLStore keeps the event log as one JSON object per line in a local file.
// Lines are only ever appended.
type JSONLStore struct {
	path   string
	file   *os.File
	seen   map[string]struct{}
	mu     sync.Mutex
	logger *zap.Logger
}

// NewJSONLStore opens or creates the log at path and indexes the ids it
// already holds
func NewJSONLStore(path string, logger *zap.Logger) (*JSONLStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create event log directory: %w", err)
		}
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to open event log: %w", err)
	}

	s := &JSONLStore{
		path:   path,
		file:   file,
		seen:   make(map[string]struct{}),
		logger: logger,
	}

	result, err := s.scan(context.Background())
	if err != nil {
		file.Close()
		return nil, err
	}
	for _, ev := range result.Events {
		s.seen[ev.ID] = struct{}{}
	}

	if err := s.terminateLastLine(); err != nil {
		file.Close()
		return nil, err
	}

	logger.Info("Opened event log",
		zap.String("path", path),
		zap.Int("events", len(result.Events)),
		zap.Int("skipped", result.Skipped))
	return s, nil
}

// Append writes the event as a new line unless its id is already present
func (s *JSONLStore) Append(ctx context.Context, ev core.SubscriptionEvent) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := validateForAppend(ev); err != nil {
		return false, err
	}

	data, err := encodeEvent(ev)
	if err != nil {
		return false, err
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return false, ErrClosed
	}
	if _, ok := s.seen[ev.ID]; ok {
		return false, nil
	}
	if _, err := s.file.Write(data); err != nil {
		return false, fmt.Errorf("failed to append event: %w", err)
	}
	s.seen[ev.ID] = struct{}{}
	return true, nil
}

// LoadAll reads the whole log. Malformed lines are skipped and counted.
func (s *JSONLStore) LoadAll(ctx context.Context) (*core.LoadResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil, ErrClosed
	}
	return s.scan(ctx)
}

// Close closes the underlying file
func (s *JSONLStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	file := s.file
	s.file = nil
	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to close event log: %w", err)
	}
	return nil
}

func (s *JSONLStore) scan(ctx context.Context) (*core.LoadResult, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read event log: %w", err)
	}
	defer f.Close()

	result := &core.LoadResult{Events: []core.SubscriptionEvent{}}
	reader := bufio.NewReader(f)

	for lineNo := 1; ; lineNo++ {
		if lineNo%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		raw, readErr := reader.ReadBytes('\n')
		if line := bytes.TrimSpace(raw); len(line) > 0 {
			ev, err := decodeEvent(line)
			if err != nil {
				result.Skipped++
				s.logger.Warn("Skipping malformed event record",
					zap.String("path", s.path),
					zap.Int("line", lineNo),
					zap.Error(err))
			} else {
				result.Events = append(result.Events, ev)
			}
		}

		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return nil, fmt.Errorf("failed to read event log: %w", readErr)
		}
	}
	return result, nil
}

// terminateLastLine completes a line cut short by an interrupted write so the
// next append starts on a fresh line
func (s *JSONLStore) terminateLastLine() error {
	info, err := s.file.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat event log: %w", err)
	}
	if info.Size() == 0 {
		return nil
	}

	last := make([]byte, 1)
	if _, err := s.file.ReadAt(last, info.Size()-1); err != nil && err != io.EOF {
		return fmt.Errorf("failed to read event log tail: %w", err)
	}
	if last[0] == '\n' {
		return nil
	}
	if _, err := s.file.Write([]byte{'\n'}); err != nil {
		return fmt.Errorf("failed to repair event log tail: %w", err)
	}
	s.logger.Warn("Event log ended mid-record; truncated line will be skipped", zap.String("path", s.path))
	return nil
}
