package ports

import (
	"context"

	"github.com/mikey/subtrack/internal/core"
)

// EmailSource yields a batch of raw emails to ingest
type EmailSource interface {
	// Emails reads every message currently available from the source
	Emails(ctx context.Context) ([]core.RawEmail, error)
}
