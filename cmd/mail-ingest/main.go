// Package main is the entry point for the inbound mail ingestion service.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/coldpath/mail-ingest/internal/blob"
	"github.com/coldpath/mail-ingest/internal/config"
	"github.com/coldpath/mail-ingest/internal/forward"
	"github.com/coldpath/mail-ingest/internal/notify"
	"github.com/coldpath/mail-ingest/internal/parser"
	"github.com/coldpath/mail-ingest/internal/pipeline"
	"github.com/coldpath/mail-ingest/internal/relay"
	"github.com/coldpath/mail-ingest/internal/smtp"
	"github.com/coldpath/mail-ingest/internal/store"
	smtptls "github.com/coldpath/mail-ingest/internal/tls"
)

func main() {
	configPath := flag.String("config", "", "path to YAML configuration file (optional)")
	flag.Parse()

	// Load configuration
	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logging
	setupLogger(cfg.Logging.Level)

	ctx := context.Background()

	// Load or generate TLS certificates for STARTTLS
	tlsConfig, err := smtptls.LoadOrGenerateTLS(cfg.TLS.CertFile, cfg.TLS.KeyFile)
	if err != nil {
		slog.Error("failed to setup TLS", "error", err)
		os.Exit(1)
	}

	// Postgres mail store (required)
	db, err := store.Open(cfg.Database.URL)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	mailStore := store.NewMailStore(db)

	// Attachment object store (optional)
	var attachments pipeline.AttachmentStore
	if cfg.S3Configured() {
		s3Store, err := blob.New(ctx, blob.StoreConfig{
			Region:          cfg.S3.Region,
			Bucket:          cfg.S3.Bucket,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			Endpoint:        cfg.S3.Endpoint,
		})
		if err != nil {
			slog.Error("failed to create attachment store", "error", err)
			os.Exit(1)
		}
		attachments = s3Store
		slog.Info("attachment storage enabled", "bucket", cfg.S3.Bucket)
	}

	// Forwarding strategy (optional)
	var forwarder forward.Strategy
	if cfg.ForwardConfigured() {
		forwarder, err = selectForwarder(ctx, cfg)
		if err != nil {
			slog.Error("failed to create forwarder", "error", err)
			os.Exit(1)
		}
		slog.Info("forwarding enabled",
			"strategy", forwarder.Name(),
			"targets", len(cfg.Forward.Targets),
		)
	}

	// Telegram notifier (optional)
	var notifier pipeline.Notifier
	if cfg.TelegramConfigured() {
		notifier = notify.NewTelegramNotifier(notify.TelegramConfig{
			BotToken: cfg.Telegram.BotToken,
			ChatID:   cfg.Telegram.ChatID,
			APIURL:   cfg.Telegram.APIURL,
		})
		slog.Info("telegram notifications enabled", "chat_id", cfg.Telegram.ChatID)
	}

	pipe := pipeline.New(pipeline.Config{
		Parse:          parser.Parse,
		Attachments:    attachments,
		Store:          mailStore,
		Forwarder:      forwarder,
		ForwardTargets: cfg.Forward.Targets,
		Notifier:       notifier,
	})

	server := smtp.NewServer(smtp.ServerConfig{
		ListenAddr:      cfg.SMTP.Listen,
		Domain:          cfg.SMTP.Domain,
		RecipientDomain: cfg.SMTP.RecipientDomain,
		MaxMessageSize:  cfg.SMTP.MaxMessageSize,
		MaxRecipients:   cfg.SMTP.MaxRecipients,
		TLSConfig:       tlsConfig,
	}, pipe)

	slog.Info("starting mail-ingest",
		"listen", cfg.SMTP.Listen,
		"forwarding", cfg.ForwardConfigured(),
		"notifications", cfg.TelegramConfigured(),
		"attachment_storage", cfg.S3Configured(),
	)

	// Graceful shutdown on SIGINT/SIGTERM
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		if err := server.Close(); err != nil {
			slog.Error("failed to close server", "error", err)
		}
	}()

	if err := server.ListenAndServe(); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("mail-ingest stopped")
}

// loadConfig loads configuration from the specified path (YAML + env override)
// or from environment variables only if no path is given.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}

// setupLogger configures the global slog logger with JSON output and the
// specified log level.
func setupLogger(level string) {
	var logLevel slog.Level

	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))
}

// selectForwarder builds the configured forwarding strategy over an SES
// transmitter.
func selectForwarder(ctx context.Context, cfg *config.Config) (forward.Strategy, error) {
	transmitter, err := relay.New(ctx, relay.Config{
		Region:          cfg.SES.Region,
		AccessKeyID:     cfg.SES.AccessKeyID,
		SecretAccessKey: cfg.SES.SecretAccessKey,
	})
	if err != nil {
		return nil, err
	}

	switch cfg.Forward.Mode {
	case config.ForwardModeReconstruct:
		return forward.NewReconstructor(cfg.Forward.Sender, transmitter), nil
	default:
		return forward.NewNativeRelay(transmitter), nil
	}
}
