package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/emersion/go-smtp"
	"go.uber.org/zap"

	"github.com/mikey/subtrack/internal/core"
)

// Handler receives every message accepted by the SMTP drop box
type Handler func(ctx context.Context, email core.RawEmail) (bool, error)

// SMTPSource is a local SMTP drop box. Mail clients or forwarding rules
// deliver receipts to it; each message is handed to the handler and then
// discarded. Nothing is relayed.
type SMTPSource struct {
	handler    Handler
	parser     *MessageParser
	logger     *zap.Logger
	listenAddr string
	maxBytes   int64
	timeout    time.Duration
	server     *smtp.Server
	listener   net.Listener
}

// NewSMTPSource creates a new SMTP drop box
func NewSMTPSource(
	handler Handler,
	parser *MessageParser,
	logger *zap.Logger,
	listenAddr string,
	maxBytes int64,
) *SMTPSource {
	return &SMTPSource{
		handler:    handler,
		parser:     parser,
		logger:     logger,
		listenAddr: listenAddr,
		maxBytes:   maxBytes,
		timeout:    30 * time.Second,
	}
}

// SetTimeout sets the per-connection read and write timeout
func (s *SMTPSource) SetTimeout(timeout time.Duration) {
	if timeout > 0 {
		s.timeout = timeout
	}
}

// Start binds the listen address and serves in the background
func (s *SMTPSource) Start() error {
	ln, err := net.Listen("tcp", s.listenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.listenAddr, err)
	}
	s.listener = ln

	s.server = smtp.NewServer(&smtpBackend{source: s})

	s.server.Addr = s.listenAddr
	s.server.Domain = "localhost"
	s.server.ReadTimeout = s.timeout
	s.server.WriteTimeout = s.timeout
	s.server.MaxMessageBytes = s.maxBytes
	s.server.MaxRecipients = 50

	s.logger.Info("SMTP drop box starting", zap.String("address", ln.Addr().String()))

	go func() {
		if err := s.server.Serve(ln); err != nil {
			if !errors.Is(err, smtp.ErrServerClosed) {
				s.logger.Error("SMTP server error", zap.Error(err))
			}
		}
	}()

	return nil
}

// Addr returns the bound address, or nil before Start
func (s *SMTPSource) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop closes the listener and all open sessions
func (s *SMTPSource) Stop() error {
	if s.server != nil {
		return s.server.Close()
	}
	return nil
}

// deliver parses and hands over one message
func (s *SMTPSource) deliver(sender string, data []byte) error {
	email, err := s.parser.ParseMessage(bytes.NewReader(data))
	if err != nil {
		s.logger.Warn("Discarding unparseable message", zap.String("envelope_from", sender), zap.Error(err))
		return &smtp.SMTPError{
			Code:         554,
			EnhancedCode: smtp.EnhancedCode{5, 6, 0},
			Message:      "Message could not be parsed",
		}
	}
	if email.From == "" {
		email.From = sender
	}
	if email.ReceivedAt.IsZero() {
		email.ReceivedAt = time.Now().UTC()
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	recorded, err := s.handler(ctx, email)
	if err != nil {
		s.logger.Error("Failed to ingest message",
			zap.String("envelope_from", sender),
			zap.Error(err))
		return &smtp.SMTPError{
			Code:         451,
			EnhancedCode: smtp.EnhancedCode{4, 3, 0},
			Message:      "Temporary failure storing message",
		}
	}

	s.logger.Info("Received message",
		zap.String("envelope_from", sender),
		zap.String("subject", email.Subject),
		zap.Bool("recorded", recorded))
	return nil
}

// smtpBackend implements the go-smtp Backend interface
type smtpBackend struct {
	source *SMTPSource
}

// NewSession creates a new SMTP session
func (b *smtpBackend) NewSession(_ *smtp.Conn) (smtp.Session, error) {
	return &smtpSession{source: b.source}, nil
}

// smtpSession implements the go-smtp Session interface
type smtpSession struct {
	source *SMTPSource
	sender string
}

// Reset resets the session state
func (s *smtpSession) Reset() {
	s.sender = ""
}

// Logout handles SMTP logout
func (s *smtpSession) Logout() error {
	return nil
}

// Mail sets the envelope sender
func (s *smtpSession) Mail(from string, _ *smtp.MailOptions) error {
	s.sender = from
	return nil
}

// Rcpt accepts any recipient; the drop box has a single mailbox
func (s *smtpSession) Rcpt(_ string, _ *smtp.RcptOptions) error {
	return nil
}

// Data reads the message and hands it over
func (s *smtpSession) Data(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		s.source.logger.Error("Failed to read message data", zap.Error(err))
		return err
	}
	return s.source.deliver(s.sender, data)
}
