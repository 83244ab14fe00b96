// Package source reads raw billing emails from mail collaborators. Sources
// are read-only: messages are never moved, flagged, or deleted.
package source

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"strings"

	"golang.org/x/text/encoding/htmlindex"

	"github.com/mikey/subtrack/internal/core"
	"github.com/mikey/subtrack/internal/utils"
)

const maxPartDepth = 5

var headerDecoder = &mime.WordDecoder{CharsetReader: charsetReader}

// MessageParser converts RFC 5322 messages into raw emails
type MessageParser struct {
	text *utils.TextProcessor
}

// NewMessageParser creates a new message parser
func NewMessageParser(text *utils.TextProcessor) *MessageParser {
	return &MessageParser{text: text}
}

// ParseMessage reads one message. The body is the concatenated text/plain
// parts, or the stripped text/html parts when no plain text exists.
func (p *MessageParser) ParseMessage(r io.Reader) (core.RawEmail, error) {
	msg, err := mail.ReadMessage(r)
	if err != nil {
		return core.RawEmail{}, fmt.Errorf("failed to parse email message: %w", err)
	}

	email := core.RawEmail{
		Subject: decodeHeader(msg.Header.Get("Subject")),
		From:    decodeHeader(msg.Header.Get("From")),
		Headers: make(map[string][]string, len(msg.Header)),
	}
	for key, values := range msg.Header {
		email.Headers[key] = values
	}
	if date, err := msg.Header.Date(); err == nil {
		email.ReceivedAt = date.UTC()
	}

	var parts bodyParts
	if err := collectParts(messageHeader(msg.Header), msg.Body, &parts, 0); err != nil {
		return core.RawEmail{}, err
	}

	switch {
	case parts.plain.Len() > 0:
		email.Body = p.text.NormalizeWhitespace(parts.plain.String())
	case parts.html.Len() > 0:
		email.Body = p.text.StripHTML(parts.html.String())
	}
	return email, nil
}

type bodyParts struct {
	plain bytes.Buffer
	html  bytes.Buffer
}

type partHeader interface {
	Get(key string) string
}

type messageHeader mail.Header

func (h messageHeader) Get(key string) string {
	return mail.Header(h).Get(key)
}

// collectParts walks the MIME tree and appends decoded text parts
func collectParts(header partHeader, body io.Reader, parts *bodyParts, depth int) error {
	contentType := header.Get("Content-Type")
	if contentType == "" {
		contentType = "text/plain"
	}
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		// treat an unparseable type as plain text
		mediaType, params = "text/plain", map[string]string{}
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		boundary := params["boundary"]
		if boundary == "" || depth >= maxPartDepth {
			return nil
		}
		mr := multipart.NewReader(body, boundary)
		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				return nil
			}
			if err != nil {
				// keep whatever was decoded before the broken part
				return nil
			}
			if isAttachment(part.Header.Get("Content-Disposition")) {
				continue
			}
			if err := collectParts(part.Header, part, parts, depth+1); err != nil {
				return err
			}
		}
	}

	var target *bytes.Buffer
	switch mediaType {
	case "text/plain":
		target = &parts.plain
	case "text/html":
		target = &parts.html
	default:
		return nil
	}

	decoded, err := decodeBody(body, header.Get("Content-Transfer-Encoding"), params["charset"])
	if err != nil {
		return fmt.Errorf("failed to decode %s part: %w", mediaType, err)
	}
	if target.Len() > 0 {
		target.WriteString("\n")
	}
	target.Write(decoded)
	return nil
}

func decodeBody(body io.Reader, encoding, charset string) ([]byte, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "quoted-printable":
		body = quotedprintable.NewReader(body)
	case "base64":
		body = base64.NewDecoder(base64.StdEncoding, body)
	}
	if charset != "" {
		converted, err := charsetReader(charset, body)
		if err == nil {
			body = converted
		}
	}
	return io.ReadAll(body)
}

// charsetReader converts any WHATWG-known charset to UTF-8
func charsetReader(charset string, input io.Reader) (io.Reader, error) {
	switch strings.ToLower(charset) {
	case "utf-8", "utf8", "us-ascii", "ascii":
		return input, nil
	}
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return nil, fmt.Errorf("unsupported charset %q: %w", charset, err)
	}
	return enc.NewDecoder().Reader(input), nil
}

func decodeHeader(value string) string {
	decoded, err := headerDecoder.DecodeHeader(value)
	if err != nil {
		return strings.TrimSpace(value)
	}
	return strings.TrimSpace(decoded)
}

func isAttachment(disposition string) bool {
	d, _, err := mime.ParseMediaType(disposition)
	return err == nil && d == "attachment"
}
