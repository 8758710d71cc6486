package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dbsentinel/dbsentinel/internal/db"
)

// gormRunRepository is the GORM implementation of RunRepository.
type gormRunRepository struct {
	db *gorm.DB
}

// NewRunRepository returns a RunRepository backed by the provided *gorm.DB.
func NewRunRepository(database *gorm.DB) RunRepository {
	return &gormRunRepository{db: database}
}

// RecordRunStart inserts a new Run row with status=running. The caller is
// expected to have set StartedAt=now before calling this.
func (r *gormRunRepository) RecordRunStart(ctx context.Context, run *db.Run) error {
	run.Status = db.RunStatusRunning
	if err := r.db.WithContext(ctx).Create(run).Error; err != nil {
		return fmt.Errorf("runs: record start: %w", err)
	}
	return nil
}

// RecordRunFinish transitions a Run from running to a terminal status. It is
// the only writer of finished_at, so calling it twice for the same id would
// silently overwrite the first finalization — callers (the pipeline) must
// guarantee a single call per Run, per spec §3 "transition running -> terminal
// exactly once".
func (r *gormRunRepository) RecordRunFinish(ctx context.Context, id uuid.UUID, status db.RunStatus, detail string, fileSizeMB float64, backupID, backupFilename, errMsg string) error {
	now := time.Now().UTC()
	result := r.db.WithContext(ctx).
		Model(&db.Run{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":          status,
			"finished_at":     now,
			"detail":          detail,
			"file_size_mb":    fileSizeMB,
			"backup_id":       backupID,
			"backup_filename": backupFilename,
			"error_message":   errMsg,
		})
	if result.Error != nil {
		return fmt.Errorf("runs: record finish: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// GetByID retrieves a run by its UUID. Returns ErrNotFound if absent.
func (r *gormRunRepository) GetByID(ctx context.Context, id uuid.UUID) (*db.Run, error) {
	var run db.Run
	err := r.db.WithContext(ctx).First(&run, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("runs: get by id: %w", err)
	}
	return &run, nil
}

// ListRuns returns a paginated, filtered list of runs ordered by started_at
// descending (most recent first), per spec §4.8.
func (r *gormRunRepository) ListRuns(ctx context.Context, filter RunFilter) ([]db.Run, int64, error) {
	query := r.db.WithContext(ctx).Model(&db.Run{})

	if filter.TargetID != nil {
		query = query.Where("target_id = ?", *filter.TargetID)
	}
	if filter.Operation != nil {
		query = query.Where("operation = ?", *filter.Operation)
	}
	if filter.Trigger != nil {
		query = query.Where("trigger = ?", *filter.Trigger)
	}
	if filter.Since != nil {
		query = query.Where("started_at >= ?", *filter.Since)
	}
	if filter.Until != nil {
		query = query.Where("started_at <= ?", *filter.Until)
	}

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("runs: list count: %w", err)
	}

	var runs []db.Run
	if err := query.
		Limit(filter.Limit).
		Offset(filter.Offset).
		Order("started_at DESC").
		Find(&runs).Error; err != nil {
		return nil, 0, fmt.Errorf("runs: list: %w", err)
	}

	return runs, total, nil
}

// SweepAbandoned finalizes every status=running Run started before
// olderThan as failure/"abandoned" — the crash-recovery step run once at
// startup (spec §4.6).
func (r *gormRunRepository) SweepAbandoned(ctx context.Context, olderThan time.Time) (int64, error) {
	now := time.Now().UTC()
	result := r.db.WithContext(ctx).
		Model(&db.Run{}).
		Where("status = ? AND started_at < ?", db.RunStatusRunning, olderThan).
		Updates(map[string]interface{}{
			"status":        db.RunStatusFailure,
			"finished_at":   now,
			"error_message": "abandoned",
		})
	if result.Error != nil {
		return 0, fmt.Errorf("runs: sweep abandoned: %w", result.Error)
	}
	return result.RowsAffected, nil
}
