package smtp

import (
	"crypto/tls"
	"log/slog"
	"net"
	"time"

	gosmtp "github.com/emersion/go-smtp"
)

// TLSMode selects how (or whether) a listener negotiates TLS. It is fixed
// at listener construction and applies to every session accepted on that
// listener.
type TLSMode int

const (
	// TLSModeNone never negotiates TLS; the connection stays plaintext for
	// its entire lifetime.
	TLSModeNone TLSMode = iota
	// TLSModeStartTLS accepts in plaintext and advertises STARTTLS,
	// upgrading mid-session on request.
	TLSModeStartTLS
	// TLSModeWrapped performs the TLS handshake immediately on accept,
	// before any SMTP bytes are exchanged ("implicit TLS" / SMTPS).
	TLSModeWrapped
)

// Config holds the settings needed to construct an inbound SMTP listener.
type Config struct {
	Addr            string
	Domain          string
	MaxMessageBytes int64
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	TLSMode         TLSMode
	TLSConfig       *tls.Config
	AuthEnabled     bool
}

// NewServer builds a *gosmtp.Server wired to backend according to cfg. The
// returned server has not started listening; call Serve or ListenAndServe
// depending on the TLS mode (Wrapped needs a pre-wrapped listener, handled
// by Listen below).
func NewServer(cfg Config, backend *Backend, logger *slog.Logger) *gosmtp.Server {
	s := gosmtp.NewServer(backend)

	s.Addr = cfg.Addr
	s.Domain = cfg.Domain
	s.MaxMessageBytes = cfg.MaxMessageBytes
	s.ReadTimeout = cfg.ReadTimeout
	s.WriteTimeout = cfg.WriteTimeout

	// AUTH is only ever reachable once a channel is secure. AuthMechanisms()
	// depends only on whether authentication is enabled, not on the TLS
	// mode, so this setting is what keeps AUTH off a plaintext connection.
	s.AllowInsecureAuth = false

	switch cfg.TLSMode {
	case TLSModeStartTLS:
		s.TLSConfig = cfg.TLSConfig
	case TLSModeWrapped:
		// Wrapped mode performs the handshake on accept, at the net.Listener
		// level (see Listen), so the gosmtp.Server itself doesn't need
		// TLSConfig — by the time it sees the connection it's already
		// cleartext-over-TLS.
	}

	return s
}

// Listen binds cfg.Addr and serves it with server until ln is closed or
// server.Close is called. For TLSModeWrapped, the raw TCP listener is
// wrapped with tls.NewListener so the handshake happens before the server
// ever sees a connection; for the other two modes it serves the plain
// listener directly (STARTTLS negotiates its own upgrade per-connection).
func Listen(cfg Config, server *gosmtp.Server, logger *slog.Logger) error {
	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return err
	}

	if cfg.TLSMode == TLSModeWrapped {
		if cfg.TLSConfig == nil {
			ln.Close()
			return errNoTLSConfig
		}
		ln = tls.NewListener(ln, cfg.TLSConfig)
	}

	logger.Info("smtp: listening", "addr", cfg.Addr, "tls_mode", tlsModeName(cfg.TLSMode))
	return server.Serve(ln)
}

var errNoTLSConfig = &configError{"smtp: wrapped TLS mode requires a TLS config"}

type configError struct{ msg string }

func (e *configError) Error() string { return e.msg }

func tlsModeName(m TLSMode) string {
	switch m {
	case TLSModeNone:
		return "none"
	case TLSModeStartTLS:
		return "starttls"
	case TLSModeWrapped:
		return "wrapped"
	default:
		return "unknown"
	}
}
