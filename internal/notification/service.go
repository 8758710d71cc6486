package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dbsentinel/dbsentinel/internal/db"
	"github.com/dbsentinel/dbsentinel/internal/metrics"
	"github.com/dbsentinel/dbsentinel/internal/pipeline"
	"github.com/dbsentinel/dbsentinel/internal/repositories"
	"github.com/dbsentinel/dbsentinel/internal/storage"
)

// bytesPerMB matches spec §4.9's `attach_max_mb × 2²⁰`.
const bytesPerMB = 1 << 20

// Service is the single entry point for delivering Run notifications. It
// satisfies internal/scheduler.Notifier — callers pass it directly as the
// scheduler's Notifier dependency.
type Service interface {
	Notify(ctx context.Context, run *db.Run, notificationsJSON json.RawMessage)
}

// notificationService fans a terminal Run out to every configured channel,
// gated by severity and (for attachments) artifact size.
type notificationService struct {
	email    *emailSender
	telegram *telegramSender
	dests    repositories.DestinationRepository
	storage  *storage.Pool
	logger   *zap.Logger
}

// NewService builds a notification Service from cfg.
func NewService(cfg Config) (Service, error) {
	telegram, err := newTelegramSender(cfg.TelegramBotToken)
	if err != nil {
		return nil, err
	}
	return &notificationService{
		email:    newEmailSender(cfg.SMTP),
		telegram: telegram,
		dests:    cfg.Destinations,
		storage:  cfg.StoragePool,
		logger:   cfg.Logger.Named("notification"),
	}, nil
}

// Notify fans run out to every channel/recipient configured in
// notificationsJSON whose min_severity is at or below run's severity.
// Delivery failures are logged, never returned — per spec §4.9 they must
// not affect the already-finalized Run's status.
func (s *notificationService) Notify(ctx context.Context, run *db.Run, notificationsJSON json.RawMessage) {
	cfg, err := ParseNotifications(notificationsJSON)
	if err != nil {
		s.logger.Warn("discarding malformed notifications config", zap.String("run_id", run.ID.String()), zap.Error(err))
		return
	}

	severity := severityFor(run.Status)
	body := formatBody(run)
	var attach *attachment

	if cfg.Telegram.Enabled {
		if cfg.Telegram.AttachBackup {
			attach = s.loadAttachment(ctx, run, cfg.Telegram.AttachMaxMB)
		}
		for _, r := range cfg.Telegram.Recipients {
			if severity.level() < r.MinSeverity.level() {
				continue
			}
			if err := s.telegram.Send(ctx, r.ChatID, body, attach); err != nil {
				s.logger.Warn("telegram delivery failed", zap.String("run_id", run.ID.String()), zap.String("chat_id", r.ChatID), zap.Error(err))
				metrics.NotificationsSentTotal.WithLabelValues("telegram", "failure").Inc()
			} else {
				metrics.NotificationsSentTotal.WithLabelValues("telegram", "success").Inc()
			}
		}
	}

	if cfg.Email.Enabled {
		attach = nil
		if cfg.Email.AttachBackup {
			attach = s.loadAttachment(ctx, run, cfg.Email.AttachMaxMB)
		}
		var to []string
		for _, r := range cfg.Email.Recipients {
			if severity.level() < r.MinSeverity.level() {
				continue
			}
			to = append(to, r.To)
		}
		if len(to) > 0 {
			if err := s.email.Send(ctx, to, emailSubject(run), body, attach); err != nil {
				s.logger.Warn("email delivery failed", zap.String("run_id", run.ID.String()), zap.Error(err))
				metrics.NotificationsSentTotal.WithLabelValues("email", "failure").Inc()
			} else {
				metrics.NotificationsSentTotal.WithLabelValues("email", "success").Inc()
			}
		}
	}
}

// severityFor maps a terminal Run status to its notification severity
// (spec §4.9).
func severityFor(status db.RunStatus) Severity {
	switch status {
	case db.RunStatusFailure:
		return SeverityError
	case db.RunStatusPartialSuccess:
		return SeverityWarning
	default:
		return SeverityInfo
	}
}

func emailSubject(run *db.Run) string {
	return fmt.Sprintf("[%s] %s %s: %s", run.Status, run.Operation, run.TargetName, run.ID)
}

// formatBody renders the message content spec §4.9 requires: run id,
// operation, target, schedule, destinations + per-destination status,
// started/finished, size, error.
func formatBody(run *db.Run) string {
	finished := "running"
	if run.FinishedAt != nil {
		finished = run.FinishedAt.Format(time.RFC3339)
	}
	schedule := run.ScheduleName
	if schedule == "" {
		schedule = "(none)"
	}

	body := fmt.Sprintf(
		"run %s\noperation: %s\nstatus: %s\ntarget: %s\nschedule: %s\nstarted: %s\nfinished: %s\nsize: %.2f MB\n",
		run.ID, run.Operation, run.Status, run.TargetName, schedule,
		run.StartedAt.Format(time.RFC3339), finished, run.FileSizeMB,
	)

	var detail pipeline.BackupDetail
	if err := json.Unmarshal([]byte(run.DetailJSON), &detail); err == nil && len(detail.Destinations) > 0 {
		body += "destinations:\n"
		for _, d := range detail.Destinations {
			body += fmt.Sprintf("  - %s: %s\n", d.DestinationName, d.Status)
		}
	}
	if run.ErrorMessage != "" {
		body += fmt.Sprintf("error: %s\n", run.ErrorMessage)
	}
	return body
}

// loadAttachment fetches the backup artifact from the first successful
// destination in run's detail, skipping silently (returning nil) if the
// artifact exceeds maxMB, isn't a backup, or can't be found — spec §4.9
// says to omit rather than fail the notification.
func (s *notificationService) loadAttachment(ctx context.Context, run *db.Run, maxMB int) *attachment {
	if run.Operation != db.OperationBackup || run.BackupFilename == "" {
		return nil
	}
	if run.Status != db.RunStatusSuccess && run.Status != db.RunStatusPartialSuccess {
		return nil
	}

	var detail pipeline.BackupDetail
	if err := json.Unmarshal([]byte(run.DetailJSON), &detail); err != nil {
		return nil
	}

	for _, d := range detail.Destinations {
		if d.Status != "success" {
			continue
		}
		if int64(maxMB)*bytesPerMB < d.Bytes {
			continue
		}
		dest, err := s.resolveDestination(ctx, d.DestinationID)
		if err != nil {
			continue
		}
		adapter, err := s.storage.Get(dest)
		if err != nil {
			continue
		}
		rc, err := adapter.Get(ctx, d.BackupID, run.BackupFilename)
		if err != nil {
			continue
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			continue
		}
		return &attachment{filename: run.BackupFilename, data: data}
	}
	return nil
}

// resolveDestination mirrors internal/scheduler's destination-id resolution
// (including the "__local__" sentinel) for the one case this package needs
// it: looking up where to fetch an attachment from.
func (s *notificationService) resolveDestination(ctx context.Context, destinationID string) (*db.Destination, error) {
	if destinationID == db.LocalDestinationID {
		return &db.Destination{Name: "local", DestinationType: db.DestinationTypeLocal}, nil
	}
	id, err := uuid.Parse(destinationID)
	if err != nil {
		return nil, err
	}
	return s.dests.GetByID(ctx, id)
}
