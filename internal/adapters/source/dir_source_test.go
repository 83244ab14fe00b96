package source

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeMessage(t *testing.T, path, subject string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	raw := crlf("From: billing@example.com\nSubject: " + subject + "\nDate: Mon, 02 Dec 2024 10:00:00 +0000\n\nTotal $5.00\n")
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o600))
}

func TestDirSourceReadsEmlAndMaildir(t *testing.T) {
	root := t.TempDir()
	writeMessage(t, filepath.Join(root, "b.eml"), "second")
	writeMessage(t, filepath.Join(root, "a.eml"), "first")
	writeMessage(t, filepath.Join(root, "Maildir", "cur", "1700000000.M1P1.host:2,S"), "maildir cur")
	writeMessage(t, filepath.Join(root, "Maildir", "new", "1700000001.M2P2.host"), "maildir new")
	writeMessage(t, filepath.Join(root, "Maildir", "tmp", "1700000002.M3P3.host"), "still delivering")
	writeMessage(t, filepath.Join(root, ".git", "x.eml"), "ignored")
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("hello"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(root, "broken.eml"), []byte("garbage"), 0o600))

	src := NewDirSource(root, 1<<20, newTestParser(), zap.NewNop())
	emails, err := src.Emails(context.Background())
	require.NoError(t, err)

	subjects := make([]string, len(emails))
	for i, e := range emails {
		subjects[i] = e.Subject
	}
	assert.Equal(t, []string{"maildir cur", "maildir new", "first", "second"}, subjects)

	// files are left in place
	_, err = os.Stat(filepath.Join(root, "Maildir", "new", "1700000001.M2P2.host"))
	assert.NoError(t, err)
}

func TestDirSourceMissingRoot(t *testing.T) {
	src := NewDirSource(filepath.Join(t.TempDir(), "nope"), 0, newTestParser(), zap.NewNop())
	_, err := src.Emails(context.Background())
	assert.Error(t, err)
}

func TestDirSourceHonoursCancellation(t *testing.T) {
	root := t.TempDir()
	writeMessage(t, filepath.Join(root, "a.eml"), "first")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	src := NewDirSource(root, 0, newTestParser(), zap.NewNop())
	emails, err := src.Emails(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, emails)
}
