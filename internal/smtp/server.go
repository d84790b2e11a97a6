package smtp

import (
	"crypto/tls"
	"log/slog"
	"time"

	"github.com/emersion/go-smtp"
)

// ServerConfig holds the inbound SMTP server configuration.
type ServerConfig struct {
	// ListenAddr is the address to listen on (e.g., ":2525").
	ListenAddr string

	// Domain is the server hostname used in EHLO responses.
	Domain string

	// RecipientDomain restricts RCPT TO addresses when non-empty.
	RecipientDomain string

	MaxMessageSize int64
	MaxRecipients  int

	// TLSConfig enables STARTTLS when non-nil.
	TLSConfig *tls.Config
}

// Server accepts inbound mail and feeds every message to the ingestor.
type Server struct {
	server *smtp.Server
}

// NewServer creates the SMTP server around the given ingestor.
func NewServer(cfg ServerConfig, ingestor Ingestor) *Server {
	backend := NewBackend(ingestor, cfg.RecipientDomain)

	server := smtp.NewServer(backend)
	server.Addr = cfg.ListenAddr
	server.Domain = cfg.Domain
	server.ReadTimeout = 60 * time.Second
	server.WriteTimeout = 60 * time.Second
	server.MaxMessageBytes = cfg.MaxMessageSize
	server.MaxRecipients = cfg.MaxRecipients
	server.TLSConfig = cfg.TLSConfig

	return &Server{server: server}
}

// ListenAndServe starts the server and blocks until Close is called.
func (s *Server) ListenAndServe() error {
	slog.Info("SMTP server listening",
		"addr", s.server.Addr,
		"domain", s.server.Domain,
		"tls_enabled", s.server.TLSConfig != nil,
	)
	return s.server.ListenAndServe()
}

// Close stops accepting connections and closes the listener.
func (s *Server) Close() error {
	return s.server.Close()
}
