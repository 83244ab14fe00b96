package utils

import (
	"errors"
	"io"
	"regexp"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var (
	spaceRe      = regexp.MustCompile(`[ \t\f\v\x{00a0}\x{202f}]+`)
	blankLinesRe = regexp.MustCompile(`\n\s*\n+`)
)

// Elements whose content is never shown to the reader
var hiddenTags = map[atom.Atom]bool{
	atom.Head:     true,
	atom.Script:   true,
	atom.Style:    true,
	atom.Template: true,
	atom.Noscript: true,
}

// Elements that break a line when rendered
var blockTags = map[atom.Atom]bool{
	atom.Br: true, atom.Hr: true, atom.P: true, atom.Div: true,
	atom.Table: true, atom.Tr: true, atom.Ul: true, atom.Ol: true, atom.Li: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
}

// Formatting elements that sit inside a word or a price
var inlineTags = map[atom.Atom]bool{
	atom.A: true, atom.B: true, atom.I: true, atom.U: true, atom.Em: true,
	atom.Strong: true, atom.Span: true, atom.Font: true, atom.Small: true,
	atom.Sub: true, atom.Sup: true,
}

// TextProcessor provides utilities for processing email text
type TextProcessor struct {
	logger *zap.Logger
}

// NewTextProcessor creates a new TextProcessor
func NewTextProcessor(logger *zap.Logger) *TextProcessor {
	return &TextProcessor{
		logger: logger,
	}
}

// TruncateText safely truncates text to the specified maximum size
// and ensures the result is valid UTF-8
func (tp *TextProcessor) TruncateText(text string, maxSize int) string {
	if maxSize <= 0 || len(text) <= maxSize {
		return text
	}

	truncated := text[:maxSize]

	// Drop the tail of a multi-byte rune cut in half
	for !utf8.ValidString(truncated) && len(truncated) > 0 {
		truncated = truncated[:len(truncated)-1]
	}

	tp.logger.Debug("Text truncated",
		zap.Int("original_size", len(text)),
		zap.Int("truncated_size", len(truncated)),
		zap.Int("max_size", maxSize))

	return truncated
}

// SanitizeUTF8 ensures the string contains only valid UTF-8 characters
func (tp *TextProcessor) SanitizeUTF8(text string) string {
	if utf8.ValidString(text) {
		return text
	}

	result := make([]rune, 0, len(text))
	for i, r := range text {
		if r == utf8.RuneError {
			_, size := utf8.DecodeRuneInString(text[i:])
			if size == 1 {
				continue
			}
		}
		result = append(result, r)
	}

	tp.logger.Debug("Text sanitized",
		zap.Int("original_size", len(text)),
		zap.Int("sanitized_size", len(string(result))))

	return string(result)
}

// StripHTML reduces an HTML body to readable text. Text tokens are kept with
// their entities decoded; hidden elements and comments are dropped, block
// elements become line breaks and other non-inline elements a space.
func (tp *TextProcessor) StripHTML(body string) string {
	z := html.NewTokenizer(strings.NewReader(body))
	var sb strings.Builder
	hidden := 0

	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			if err := z.Err(); !errors.Is(err, io.EOF) {
				tp.logger.Debug("HTML tokenizer stopped early", zap.Error(err))
			}
			return tp.NormalizeWhitespace(sb.String())

		case html.TextToken:
			if hidden == 0 {
				sb.Write(z.Text())
			}

		case html.StartTagToken, html.EndTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			tag := atom.Lookup(name)
			switch {
			case tag == atom.Body:
				// an unclosed head must not hide the body
				hidden = 0
			case hiddenTags[tag] && tt == html.StartTagToken:
				hidden++
			case hiddenTags[tag] && tt == html.EndTagToken:
				if hidden > 0 {
					hidden--
				}
			case hidden > 0 || inlineTags[tag]:
			case blockTags[tag]:
				sb.WriteByte('\n')
			default:
				sb.WriteByte(' ')
			}
		}
	}
}

// NormalizeWhitespace collapses runs of spaces and blank lines
func (tp *TextProcessor) NormalizeWhitespace(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = spaceRe.ReplaceAllString(text, " ")
	text = blankLinesRe.ReplaceAllString(text, "\n")
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// ProcessText sanitizes and truncates text in one operation
func (tp *TextProcessor) ProcessText(text string, maxSize int) string {
	sanitized := tp.SanitizeUTF8(text)
	return tp.TruncateText(sanitized, maxSize)
}
