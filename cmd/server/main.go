package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"

	"github.com/dbsentinel/dbsentinel/internal/api"
	"github.com/dbsentinel/dbsentinel/internal/auth"
	"github.com/dbsentinel/dbsentinel/internal/db"
	"github.com/dbsentinel/dbsentinel/internal/dbadapter"
	"github.com/dbsentinel/dbsentinel/internal/notification"
	"github.com/dbsentinel/dbsentinel/internal/pipeline"
	"github.com/dbsentinel/dbsentinel/internal/repositories"
	"github.com/dbsentinel/dbsentinel/internal/scheduler"
	"github.com/dbsentinel/dbsentinel/internal/storage"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

type config struct {
	httpAddr  string
	dbDriver  string
	dbDSN     string
	secretKey string
	logLevel  string
	workers   int

	smtpHost     string
	smtpPort     int
	smtpUser     string
	smtpPassword string
	smtpFrom     string
	smtpTLS      bool

	telegramBotToken string

	// tokens is a comma-separated list of "token:role1|role2" pairs loaded
	// into a auth.StaticTokenVerifier. A full identity provider is an
	// external collaborator (spec §1) — this is the bearer-token table for
	// a single-operator deployment.
	tokens string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := &config{}

	root := &cobra.Command{
		Use:   "dbsentinel-server",
		Short: "dbsentinel server — multi-database backup and restore automation",
		Long: `dbsentinel server periodically captures logical dumps of registered
databases, replicates each artifact to one or more storage destinations,
enforces retention policies, and serves an HTTP API for on-demand backup,
restore, and schedule management.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cfg)
		},
	}

	root.AddCommand(newVersionCmd())

	root.PersistentFlags().StringVar(&cfg.httpAddr, "http-addr", envOrDefault("DBSENTINEL_HTTP_ADDR", ":8080"), "HTTP API listen address")
	root.PersistentFlags().StringVar(&cfg.dbDriver, "db-driver", envOrDefault("DBSENTINEL_DB_DRIVER", "sqlite"), "Database driver (sqlite or postgres)")
	root.PersistentFlags().StringVar(&cfg.dbDSN, "db-dsn", envOrDefault("DBSENTINEL_DB_DSN", "./dbsentinel.db"), "Database DSN or file path for SQLite")
	root.PersistentFlags().StringVar(&cfg.secretKey, "secret-key", envOrDefault("DBSENTINEL_SECRET_KEY", ""), "Master secret key for encrypting credentials at rest (required)")
	root.PersistentFlags().StringVar(&cfg.logLevel, "log-level", envOrDefault("DBSENTINEL_LOG_LEVEL", "info"), "Log level (debug, info, warn, error)")
	root.PersistentFlags().IntVar(&cfg.workers, "workers", envOrDefaultInt("DBSENTINEL_WORKERS", 4), "Bounded worker pool size for concurrent backup/restore runs (spec §5)")

	root.PersistentFlags().StringVar(&cfg.smtpHost, "smtp-host", envOrDefault("DBSENTINEL_SMTP_HOST", ""), "SMTP host (empty disables email notifications)")
	root.PersistentFlags().IntVar(&cfg.smtpPort, "smtp-port", envOrDefaultInt("DBSENTINEL_SMTP_PORT", 587), "SMTP port")
	root.PersistentFlags().StringVar(&cfg.smtpUser, "smtp-user", envOrDefault("DBSENTINEL_SMTP_USER", ""), "SMTP username")
	root.PersistentFlags().StringVar(&cfg.smtpPassword, "smtp-password", envOrDefault("DBSENTINEL_SMTP_PASSWORD", ""), "SMTP password")
	root.PersistentFlags().StringVar(&cfg.smtpFrom, "smtp-from", envOrDefault("DBSENTINEL_SMTP_FROM", ""), "SMTP From address")
	root.PersistentFlags().BoolVar(&cfg.smtpTLS, "smtp-tls", envOrDefault("DBSENTINEL_SMTP_TLS", "true") == "true", "Use implicit TLS (SMTPS) rather than STARTTLS")

	root.PersistentFlags().StringVar(&cfg.telegramBotToken, "telegram-bot-token", envOrDefault("DBSENTINEL_TELEGRAM_BOT_TOKEN", ""), "Telegram bot token (empty disables Telegram notifications)")

	root.PersistentFlags().StringVar(&cfg.tokens, "tokens", envOrDefault("DBSENTINEL_TOKENS", ""), `Bearer token table, "token:role1|role2,token2:role3"`)

	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("dbsentinel-server %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}

func run(ctx context.Context, cfg *config) error {
	logger, err := buildLogger(cfg.logLevel)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	if cfg.secretKey == "" {
		return fmt.Errorf("secret key is required — set --secret-key or DBSENTINEL_SECRET_KEY")
	}

	logger.Info("starting dbsentinel server",
		zap.String("version", version),
		zap.String("http_addr", cfg.httpAddr),
		zap.String("db_driver", cfg.dbDriver),
		zap.String("log_level", cfg.logLevel),
		zap.Int("workers", cfg.workers),
	)

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// --- 1. Encryption ---
	// InitEncryption must run before opening the database so EncryptedString
	// fields can encrypt/decrypt transparently on read/write. The secret key
	// is padded or truncated to exactly 32 bytes (AES-256).
	keyBytes := make([]byte, 32)
	copy(keyBytes, []byte(cfg.secretKey))
	if err := db.InitEncryption(keyBytes); err != nil {
		return fmt.Errorf("failed to initialize encryption: %w", err)
	}

	// --- 2. Database ---
	gormDB, err := db.New(db.Config{
		Driver:   cfg.dbDriver,
		DSN:      cfg.dbDSN,
		Logger:   logger,
		LogLevel: gormLogLevel(cfg.logLevel),
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}
	defer sqlDB.Close()

	// --- 3. Repositories ---
	targetRepo := repositories.NewTargetRepository(gormDB)
	destinationRepo := repositories.NewDestinationRepository(gormDB)
	scheduleRepo := repositories.NewScheduleRepository(gormDB)
	runRepo := repositories.NewRunRepository(gormDB)

	// --- 4. Adapters & storage ---
	dbAdapters := dbadapter.NewRegistry()
	storageRegistry := storage.NewRegistry()
	storagePool := storage.NewPool(storageRegistry, logger)

	// --- 5. Pipelines ---
	backupPipeline := pipeline.NewBackupPipeline(dbAdapters, storagePool, runRepo, logger)
	restorePipeline := pipeline.NewRestorePipeline(dbAdapters, storagePool, runRepo, logger)

	// --- 6. Notifier ---
	notifierCfg := notification.Config{
		TelegramBotToken: cfg.telegramBotToken,
		Destinations:     destinationRepo,
		StoragePool:      storagePool,
		Logger:           logger,
	}
	if cfg.smtpHost != "" {
		notifierCfg.SMTP = &notification.SMTPConfig{
			Host: cfg.smtpHost, Port: cfg.smtpPort, Username: cfg.smtpUser,
			Password: cfg.smtpPassword, From: cfg.smtpFrom, TLS: cfg.smtpTLS,
		}
	}
	notifier, err := notification.NewService(notifierCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize notifier: %w", err)
	}

	// --- 7. Scheduler ---
	sched, err := scheduler.New(scheduleRepo, targetRepo, destinationRepo, runRepo, backupPipeline, notifier, cfg.workers, logger, storagePool)
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	defer func() {
		if err := sched.Stop(); err != nil {
			logger.Warn("scheduler shutdown error", zap.Error(err))
		}
	}()

	// --- 8. Auth ---
	verifier := auth.NewStaticTokenVerifier(parseTokens(cfg.tokens))

	// --- 9. HTTP server ---
	router := api.NewRouter(api.RouterConfig{
		Verifier:     verifier,
		Scheduler:    sched,
		Backup:       backupPipeline,
		Restore:      restorePipeline,
		Logger:       logger,
		DBAdapters:   dbAdapters,
		StoragePool:  storagePool,
		StorageBuild: storageRegistry,
		Targets:      targetRepo,
		Destinations: destinationRepo,
		Schedules:    scheduleRepo,
		Runs:         runRepo,
	})

	httpSrv := &http.Server{
		Addr:         cfg.httpAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.httpAddr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down dbsentinel server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server graceful shutdown error", zap.Error(err))
	}

	logger.Info("dbsentinel server stopped")
	return nil
}

// parseTokens decodes the --tokens flag ("token:role1|role2,token2:role3")
// into the table auth.NewStaticTokenVerifier expects. Malformed entries (no
// colon, or an empty token) are skipped rather than failing startup; nothing
// is logged for them.
func parseTokens(raw string) map[string]auth.Principal {
	principals := make(map[string]auth.Principal)
	if raw == "" {
		return principals
	}
	for _, entry := range strings.Split(raw, ",") {
		token, rolesRaw, ok := strings.Cut(entry, ":")
		if !ok || token == "" {
			continue
		}
		roles := make(map[string]bool)
		for _, role := range strings.Split(rolesRaw, "|") {
			if role != "" {
				roles[role] = true
			}
		}
		principals[token] = auth.Principal{Subject: token, Roles: roles}
	}
	return principals
}

// gormLogLevel maps the application log level string to a GORM logger level.
func gormLogLevel(level string) gormlogger.LogLevel {
	switch level {
	case "debug":
		return gormlogger.Info
	case "info":
		return gormlogger.Warn
	default:
		return gormlogger.Error
	}
}

func buildLogger(level string) (*zap.Logger, error) {
	var cfg zap.Config

	switch level {
	case "debug":
		cfg = zap.NewDevelopmentConfig()
	default:
		cfg = zap.NewProductionConfig()
	}

	switch level {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	return cfg.Build()
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envOrDefaultInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return n
}
