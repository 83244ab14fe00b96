package source

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/mikey/subtrack/internal/core"
)

// DirSource reads messages from a directory tree holding .eml files or
// Maildir folders (files under cur/ and new/)
type DirSource struct {
	root     string
	maxBytes int64
	parser   *MessageParser
	logger   *zap.Logger
}

// NewDirSource creates a directory-backed email source
func NewDirSource(root string, maxBytes int64, parser *MessageParser, logger *zap.Logger) *DirSource {
	return &DirSource{
		root:     root,
		maxBytes: maxBytes,
		parser:   parser,
		logger:   logger,
	}
}

// Emails returns every readable message under the root in path order.
// Unparseable files are logged and skipped.
func (s *DirSource) Emails(ctx context.Context) ([]core.RawEmail, error) {
	paths, err := s.messagePaths()
	if err != nil {
		return nil, err
	}

	emails := make([]core.RawEmail, 0, len(paths))
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return emails, err
		}
		email, err := s.read(path)
		if err != nil {
			s.logger.Warn("Skipping unreadable message", zap.String("path", path), zap.Error(err))
			continue
		}
		emails = append(emails, email)
	}

	s.logger.Info("Read messages from directory",
		zap.String("root", s.root),
		zap.Int("files", len(paths)),
		zap.Int("messages", len(emails)))
	return emails, nil
}

func (s *DirSource) messagePaths() ([]string, error) {
	var paths []string
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if isMessageFile(path) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk mail directory %s: %w", s.root, err)
	}
	sort.Strings(paths)
	return paths, nil
}

func (s *DirSource) read(path string) (core.RawEmail, error) {
	f, err := os.Open(path)
	if err != nil {
		return core.RawEmail{}, err
	}
	defer f.Close()

	var r io.Reader = f
	if s.maxBytes > 0 {
		r = io.LimitReader(f, s.maxBytes)
	}
	email, err := s.parser.ParseMessage(r)
	if err != nil {
		return core.RawEmail{}, err
	}
	if email.ReceivedAt.IsZero() {
		if info, err := f.Stat(); err == nil {
			email.ReceivedAt = info.ModTime().UTC()
		}
	}
	return email, nil
}

func isMessageFile(path string) bool {
	if strings.EqualFold(filepath.Ext(path), ".eml") {
		return true
	}
	parent := filepath.Base(filepath.Dir(path))
	return parent == "cur" || parent == "new"
}
