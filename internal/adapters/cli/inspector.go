// Package cli holds the terminal front end used to inspect single receipts.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/mikey/subtrack/internal/adapters/source"
	"github.com/mikey/subtrack/internal/core"
)

// Inspector runs one email through the extractor and prints the outcome
type Inspector struct {
	extractor core.Extractor
	parser    *source.MessageParser
	logger    *zap.Logger
	verbose   bool
	out       io.Writer
}

// NewInspector creates a new inspector writing to stdout
func NewInspector(extractor core.Extractor, parser *source.MessageParser, logger *zap.Logger, verbose bool) *Inspector {
	return &Inspector{
		extractor: extractor,
		parser:    parser,
		logger:    logger,
		verbose:   verbose,
		out:       os.Stdout,
	}
}

// SetOutput redirects the printed summary
func (i *Inspector) SetOutput(w io.Writer) {
	i.out = w
}

// Inspect parses a message, extracts it and prints a summary followed by
// either the event JSON or the rejection reason
func (i *Inspector) Inspect(r io.Reader) (core.ExtractResult, error) {
	email, err := i.parser.ParseMessage(r)
	if err != nil {
		return core.ExtractResult{}, fmt.Errorf("failed to parse email: %w", err)
	}
	if email.ReceivedAt.IsZero() {
		email.ReceivedAt = time.Now().UTC()
	}
	i.logger.Debug("Inspecting email", zap.String("sender", email.From))

	// Print email summary
	fmt.Fprintf(i.out, "\n=== Email Summary ===\n")
	fmt.Fprintf(i.out, "From: %s\n", email.From)
	fmt.Fprintf(i.out, "Subject: %s\n", email.Subject)
	fmt.Fprintf(i.out, "Received: %s\n", email.ReceivedAt.Format(time.RFC3339))
	fmt.Fprintf(i.out, "Body length: %d bytes\n", len(email.Body))

	// Print body preview if verbose
	if i.verbose {
		preview := []rune(email.Body)
		if len(preview) > 500 {
			preview = append(preview[:500], []rune("...")...)
		}
		fmt.Fprintf(i.out, "\nBody preview:\n%s\n", string(preview))
	}

	startTime := time.Now()
	result := i.extractor.Extract(email)
	duration := time.Since(startTime)

	fmt.Fprintf(i.out, "\n=== Result ===\n")
	if !result.Matched() {
		fmt.Fprintf(i.out, "Matched: false\n")
		fmt.Fprintf(i.out, "Reason: %s\n", result.Reason)
		fmt.Fprintf(i.out, "Processing time: %v\n", duration)
		return result, nil
	}

	data, err := json.MarshalIndent(result.Event, "", "  ")
	if err != nil {
		return result, fmt.Errorf("failed to encode event: %w", err)
	}
	fmt.Fprintf(i.out, "Matched: true\n")
	fmt.Fprintf(i.out, "%s\n", data)
	fmt.Fprintf(i.out, "Processing time: %v\n", duration)
	return result, nil
}
