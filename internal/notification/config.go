// Package notification implements C9: gated fan-out of terminal-Run
// messages to Telegram and email, per schedule. Transport configuration
// (SMTP host/credentials, the Telegram bot token) is deployment-level and
// loaded once at startup, not stored in C1 — only per-schedule recipients,
// severity gates, and attachment toggles live in the Schedule's
// `notifications` blob (see ParseNotifications).
package notification

import (
	"go.uber.org/zap"

	"github.com/dbsentinel/dbsentinel/internal/repositories"
	"github.com/dbsentinel/dbsentinel/internal/storage"
)

// SMTPConfig holds the configuration needed to send emails via SMTP. A nil
// *SMTPConfig passed to NewService means email delivery is disabled.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	TLS      bool // true = implicit TLS (SMTPS); false = plaintext/STARTTLS
}

// Config holds the dependencies required to build a notification Service.
type Config struct {
	SMTP             *SMTPConfig
	TelegramBotToken string // empty disables Telegram delivery
	Destinations     repositories.DestinationRepository
	StoragePool      *storage.Pool
	Logger           *zap.Logger
}
