// Package smtp implements the inbound SMTP session state machine (the
// capture side of MailCrab) on top of go-smtp's verb-level dispatcher, and
// the listener that accepts connections for it.
package smtp

import (
	"fmt"
	"io"
	"log/slog"

	sasl "github.com/emersion/go-sasl"
	gosmtp "github.com/emersion/go-smtp"

	"github.com/mailcrab/mailcrab/internal/broadcast"
	"github.com/mailcrab/mailcrab/internal/mail"
	"github.com/mailcrab/mailcrab/internal/observability"
	"github.com/mailcrab/mailcrab/internal/version"
)

// Publisher is the narrow surface the session needs to announce a newly
// captured message; *broadcast.Bus[mail.Message] satisfies it. The
// retention store is itself a permanent subscriber of the same bus (see
// internal/store), so in normal operation Publish only reports
// ErrNoSubscribers if the store's own consumer loop isn't running.
type Publisher interface {
	Publish(mail.Message) error
}

// Backend implements gosmtp.Backend, handing out a fresh Session per
// accepted connection. It carries no per-connection state itself.
type Backend struct {
	publisher       Publisher
	maxMessageBytes int64
	authEnabled     bool
	logger          *slog.Logger
	metrics         *observability.Metrics
}

// NewBackend creates a Backend that publishes every captured message to
// publisher. authEnabled controls whether AUTH PLAIN/LOGIN are advertised
// at all (credentials are never actually checked either way). metrics may
// be nil, in which case no collectors are touched.
func NewBackend(publisher Publisher, maxMessageBytes int64, authEnabled bool, logger *slog.Logger, metrics *observability.Metrics) *Backend {
	return &Backend{
		publisher:       publisher,
		maxMessageBytes: maxMessageBytes,
		authEnabled:     authEnabled,
		logger:          logger,
		metrics:         metrics,
	}
}

// NewSession is called by go-smtp for every newly accepted connection.
func (b *Backend) NewSession(c *gosmtp.Conn) (gosmtp.Session, error) {
	if b.metrics != nil {
		b.metrics.ActiveSMTPConnections.Inc()
	}
	return &Session{backend: b, logger: b.logger}, nil
}

// Session accumulates one message's envelope and body across the
// MAIL/RCPT/DATA verb sequence. go-smtp owns verb ordering and dot-
// unstuffing; Session owns only envelope bookkeeping, parsing, and
// publishing.
type Session struct {
	backend *Backend
	logger  *slog.Logger

	envelopeFrom       string
	envelopeRecipients []string
}

// AuthMechanisms advertises PLAIN and LOGIN only when authentication is
// enabled in configuration; returning nil means AUTH is never offered, so
// go-smtp's own dispatcher answers an AUTH attempt with a bad-sequence
// error.
func (s *Session) AuthMechanisms() []string {
	if !s.backend.authEnabled {
		return nil
	}
	return []string{sasl.Plain, sasl.Login}
}

// Auth returns a SASL server that accepts any credentials. go-smtp itself
// refuses to even offer AUTH until TLS is active (Server.AllowInsecureAuth
// is left false), so reaching this point already implies a secure channel.
func (s *Session) Auth(mech string) (sasl.Server, error) {
	switch mech {
	case sasl.Plain:
		return sasl.NewPlainServer(func(identity, username, password string) error {
			return nil
		}), nil
	case sasl.Login:
		return sasl.NewLoginServer(func(username, password string) error {
			return nil
		}), nil
	default:
		return nil, fmt.Errorf("smtp: unsupported auth mechanism %q", mech)
	}
}

// Mail records the envelope sender. The 250 reply carries MailCrab's
// signature greeting instead of go-smtp's generic "OK", matching the
// banner text of the tool this behavior is modeled on.
func (s *Session) Mail(from string, opts *gosmtp.MailOptions) error {
	s.envelopeFrom = from
	return &gosmtp.SMTPError{
		Code:         250,
		EnhancedCode: gosmtp.EnhancedCode{2, 0, 0},
		Message:      fmt.Sprintf("Pleased to meet you! This is Mailcrab version %s", version.Version),
	}
}

// Rcpt appends a recipient. Duplicates are preserved deliberately: the
// envelope records one entry per accepted RCPT TO, not a deduplicated set.
func (s *Session) Rcpt(to string, opts *gosmtp.RcptOptions) error {
	s.envelopeRecipients = append(s.envelopeRecipients, to)
	return nil
}

// Data reads the full message body, parses it, and on success publishes it
// to the broadcast bus before replying with the assigned message id. A
// structural parse failure discards the buffer and replies 500 without
// publishing.
func (s *Session) Data(r io.Reader) error {
	limited := io.LimitReader(r, s.backend.maxMessageBytes)
	raw, err := io.ReadAll(limited)
	if err != nil {
		s.logger.Error("smtp: failed to read message body", "error", err)
		return &gosmtp.SMTPError{
			Code:         451,
			EnhancedCode: gosmtp.EnhancedCode{4, 3, 0},
			Message:      "failed to read message",
		}
	}

	msg, err := mail.Parse(raw)
	if err != nil {
		s.logger.Warn("smtp: message failed to parse", "error", err)
		if s.backend.metrics != nil {
			s.backend.metrics.MessagesRejectedTotal.WithLabelValues("parse").Inc()
		}
		return &gosmtp.SMTPError{
			Code:         500,
			EnhancedCode: gosmtp.EnhancedCode{5, 6, 0},
			Message:      "Error parsing message",
		}
	}

	msg.ID = mail.NewID()
	msg.EnvelopeFrom = s.envelopeFrom
	msg.EnvelopeRecipients = s.envelopeRecipients

	if err := s.backend.publisher.Publish(msg); err != nil {
		if err == broadcast.ErrNoSubscribers {
			s.logger.Warn("smtp: dropping message, no live subscribers", "id", msg.ID)
			if s.backend.metrics != nil {
				s.backend.metrics.MessagesRejectedTotal.WithLabelValues("no_subscribers").Inc()
			}
			return &gosmtp.SMTPError{
				Code:         500,
				EnhancedCode: gosmtp.EnhancedCode{5, 0, 0},
				Message:      "no subscribers, message dropped",
			}
		}
		s.logger.Error("smtp: failed to publish message", "error", err, "id", msg.ID)
		if s.backend.metrics != nil {
			s.backend.metrics.MessagesRejectedTotal.WithLabelValues("publish").Inc()
		}
		return &gosmtp.SMTPError{
			Code:         500,
			EnhancedCode: gosmtp.EnhancedCode{5, 0, 0},
			Message:      "failed to publish message",
		}
	}

	if s.backend.metrics != nil {
		s.backend.metrics.MessagesIngestedTotal.Inc()
	}

	s.logger.Info("smtp: message captured",
		"id", msg.ID,
		"from", msg.EnvelopeFrom,
		"recipients", len(msg.EnvelopeRecipients),
	)

	return &gosmtp.SMTPError{
		Code:         250,
		EnhancedCode: gosmtp.EnhancedCode{2, 0, 0},
		Message:      fmt.Sprintf("Ok: queued as %s", msg.ID),
	}
}

// Reset clears the envelope between messages on the same connection.
func (s *Session) Reset() {
	s.envelopeFrom = ""
	s.envelopeRecipients = nil
}

// Logout is called when the session ends.
func (s *Session) Logout() error {
	if s.backend.metrics != nil {
		s.backend.metrics.ActiveSMTPConnections.Dec()
	}
	return nil
}
