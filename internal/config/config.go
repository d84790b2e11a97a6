// Package config provides environment-variable-first configuration loading
// with optional YAML file fallback for the mail ingestion service.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// defaultMaxMessageSize is 25 MB in bytes.
const defaultMaxMessageSize = 26214400

// Forward strategy names.
const (
	ForwardModeRelay       = "relay"
	ForwardModeReconstruct = "reconstruct"
)

// Config holds the complete application configuration.
type Config struct {
	SMTP     SMTPConfig     `yaml:"smtp"`
	Database DatabaseConfig `yaml:"database"`
	S3       S3Config       `yaml:"s3"`
	SES      SESConfig      `yaml:"ses"`
	Forward  ForwardConfig  `yaml:"forward"`
	Telegram TelegramConfig `yaml:"telegram"`
	TLS      TLSConfig      `yaml:"tls"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// SMTPConfig holds the inbound SMTP server configuration.
type SMTPConfig struct {
	Listen         string `yaml:"listen"`
	Domain         string `yaml:"domain"`
	MaxMessageSize int64  `yaml:"max_message_size"`
	MaxRecipients  int    `yaml:"max_recipients"`
	// RecipientDomain restricts RCPT TO addresses to one domain.
	// Empty accepts mail for any domain.
	RecipientDomain string `yaml:"recipient_domain"`
}

// DatabaseConfig holds the postgres connection settings.
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// S3Config holds the attachment object-store settings. Endpoint is
// optional and supports S3-compatible stores (R2, MinIO).
type S3Config struct {
	Region          string `yaml:"region"`
	Bucket          string `yaml:"bucket"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	Endpoint        string `yaml:"endpoint"`
}

// SESConfig holds the AWS SES settings used for outbound forwarding.
type SESConfig struct {
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

// ForwardConfig selects a forwarding strategy and its targets.
// Forwarding is skipped entirely when Targets is empty.
type ForwardConfig struct {
	Mode    string   `yaml:"mode"`
	Sender  string   `yaml:"sender"`
	Targets []string `yaml:"targets"`
}

// TelegramConfig holds the chat-notification settings.
type TelegramConfig struct {
	BotToken string `yaml:"bot_token"`
	ChatID   string `yaml:"chat_id"`
	APIURL   string `yaml:"api_url"`
	Enabled  bool   `yaml:"enabled"`
}

// TLSConfig holds TLS certificate file paths for STARTTLS.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Load loads configuration from environment variables with sensible defaults.
// Environment variables always take precedence.
func Load() (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()
	cfg.applyEnvVars()
	return cfg, cfg.validate()
}

// LoadFromFile loads configuration from a YAML file as the base layer,
// then overrides with environment variables. Returns an error if the
// specified file path does not exist.
func LoadFromFile(path string) (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Environment variables always override YAML values
	cfg.applyEnvVars()

	return cfg, cfg.validate()
}

// S3Configured returns true if attachment storage is set up.
func (c *Config) S3Configured() bool {
	return c.S3.Region != "" && c.S3.Bucket != ""
}

// ForwardConfigured returns true if at least one forward target is set.
func (c *Config) ForwardConfigured() bool {
	return len(c.Forward.Targets) > 0
}

// TelegramConfigured returns true if notifications are enabled and the
// bot credentials are present.
func (c *Config) TelegramConfigured() bool {
	return c.Telegram.Enabled && c.Telegram.BotToken != "" && c.Telegram.ChatID != ""
}

// validate rejects configurations that cannot drive the pipeline at all.
func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("database.url is required (DATABASE_URL)")
	}
	switch c.Forward.Mode {
	case ForwardModeRelay, ForwardModeReconstruct:
	default:
		return fmt.Errorf("forward.mode must be %q or %q, got %q",
			ForwardModeRelay, ForwardModeReconstruct, c.Forward.Mode)
	}
	if c.ForwardConfigured() && c.Forward.Mode == ForwardModeReconstruct && c.Forward.Sender == "" {
		return fmt.Errorf("forward.sender is required for reconstructed forwards")
	}
	return nil
}

// applyDefaults sets sensible default values for all configuration fields.
func (c *Config) applyDefaults() {
	c.SMTP.Listen = ":2525"
	c.SMTP.Domain = "localhost"
	c.SMTP.MaxMessageSize = defaultMaxMessageSize
	c.SMTP.MaxRecipients = 50
	c.Forward.Mode = ForwardModeRelay
	c.Telegram.APIURL = "https://api.telegram.org"
	c.Logging.Level = "info"
}

// applyEnvVars overrides configuration with environment variable values.
// Only non-empty environment variables override existing values.
func (c *Config) applyEnvVars() {
	if v := os.Getenv("SMTP_LISTEN"); v != "" {
		c.SMTP.Listen = v
	}
	if v := os.Getenv("SMTP_DOMAIN"); v != "" {
		c.SMTP.Domain = v
	}
	if v := os.Getenv("SMTP_MAX_MESSAGE_SIZE"); v != "" {
		if size, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.SMTP.MaxMessageSize = size
		}
	}
	if v := os.Getenv("SMTP_MAX_RECIPIENTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.SMTP.MaxRecipients = n
		}
	}
	if v := os.Getenv("SMTP_RECIPIENT_DOMAIN"); v != "" {
		c.SMTP.RecipientDomain = v
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Database.URL = v
	}

	if v := os.Getenv("S3_REGION"); v != "" {
		c.S3.Region = v
	}
	if v := os.Getenv("S3_BUCKET"); v != "" {
		c.S3.Bucket = v
	}
	if v := os.Getenv("S3_ACCESS_KEY_ID"); v != "" {
		c.S3.AccessKeyID = v
	}
	if v := os.Getenv("S3_SECRET_ACCESS_KEY"); v != "" {
		c.S3.SecretAccessKey = v
	}
	if v := os.Getenv("S3_ENDPOINT"); v != "" {
		c.S3.Endpoint = v
	}

	if v := os.Getenv("SES_REGION"); v != "" {
		c.SES.Region = v
	}
	if v := os.Getenv("SES_ACCESS_KEY_ID"); v != "" {
		c.SES.AccessKeyID = v
	}
	if v := os.Getenv("SES_SECRET_ACCESS_KEY"); v != "" {
		c.SES.SecretAccessKey = v
	}

	if v := os.Getenv("FORWARD_MODE"); v != "" {
		c.Forward.Mode = strings.ToLower(v)
	}
	if v := os.Getenv("FORWARD_SENDER"); v != "" {
		c.Forward.Sender = v
	}
	if v := os.Getenv("FORWARD_TARGETS"); v != "" {
		targets := strings.Split(v, ",")
		c.Forward.Targets = c.Forward.Targets[:0]
		for _, t := range targets {
			if t = strings.TrimSpace(t); t != "" {
				c.Forward.Targets = append(c.Forward.Targets, t)
			}
		}
	}

	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		c.Telegram.BotToken = v
		c.Telegram.Enabled = true
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		c.Telegram.ChatID = v
	}
	if v := os.Getenv("TELEGRAM_API_URL"); v != "" {
		c.Telegram.APIURL = v
	}

	if v := os.Getenv("TLS_CERT_FILE"); v != "" {
		c.TLS.CertFile = v
	}
	if v := os.Getenv("TLS_KEY_FILE"); v != "" {
		c.TLS.KeyFile = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
}
