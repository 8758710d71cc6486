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

// gormScheduleRepository is the GORM implementation of ScheduleRepository.
type gormScheduleRepository struct {
	db *gorm.DB
}

// NewScheduleRepository returns a ScheduleRepository backed by the provided
// *gorm.DB.
func NewScheduleRepository(database *gorm.DB) ScheduleRepository {
	return &gormScheduleRepository{db: database}
}

// Create inserts a new schedule record into the database.
func (r *gormScheduleRepository) Create(ctx context.Context, schedule *db.Schedule) error {
	if err := r.db.WithContext(ctx).Create(schedule).Error; err != nil {
		return fmt.Errorf("schedules: create: %w", err)
	}
	return nil
}

// GetByID retrieves a schedule by its UUID. Returns ErrNotFound if absent.
func (r *gormScheduleRepository) GetByID(ctx context.Context, id uuid.UUID) (*db.Schedule, error) {
	var s db.Schedule
	err := r.db.WithContext(ctx).First(&s, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("schedules: get by id: %w", err)
	}
	return &s, nil
}

// Update persists all fields of an existing schedule record.
func (r *gormScheduleRepository) Update(ctx context.Context, schedule *db.Schedule) error {
	result := r.db.WithContext(ctx).Save(schedule)
	if result.Error != nil {
		return fmt.Errorf("schedules: update: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a schedule by id.
func (r *gormScheduleRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&db.Schedule{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("schedules: delete: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns a paginated list of schedules and the total count, ordered by
// creation time descending.
func (r *gormScheduleRepository) List(ctx context.Context, opts ListOptions) ([]db.Schedule, int64, error) {
	var schedules []db.Schedule
	var total int64

	if err := r.db.WithContext(ctx).Model(&db.Schedule{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("schedules: list count: %w", err)
	}

	if err := r.db.WithContext(ctx).
		Limit(opts.Limit).
		Offset(opts.Offset).
		Order("created_at DESC").
		Find(&schedules).Error; err != nil {
		return nil, 0, fmt.Errorf("schedules: list: %w", err)
	}

	return schedules, total, nil
}

// ListEnabled returns every schedule with enabled=true, for the scheduler's
// tick and for recomputing next_run_at after a crash-recovery sweep.
func (r *gormScheduleRepository) ListEnabled(ctx context.Context) ([]db.Schedule, error) {
	var schedules []db.Schedule
	if err := r.db.WithContext(ctx).
		Where("enabled = ?", true).
		Find(&schedules).Error; err != nil {
		return nil, fmt.Errorf("schedules: list enabled: %w", err)
	}
	return schedules, nil
}

// ReferencesTarget reports whether any schedule still points at targetID.
func (r *gormScheduleRepository) ReferencesTarget(ctx context.Context, targetID uuid.UUID) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&db.Schedule{}).
		Where("target_id = ?", targetID).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("schedules: references target: %w", err)
	}
	return count > 0, nil
}

// ReferencesDestination reports whether any schedule still lists
// destinationID among its destination_ids.
func (r *gormScheduleRepository) ReferencesDestination(ctx context.Context, destinationID uuid.UUID) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&db.Schedule{}).
		Where("destination_ids LIKE ?", "%\""+destinationID.String()+"\"%").
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("schedules: references destination: %w", err)
	}
	return count > 0, nil
}

// UpdateRunTimes advances last_run_at/next_run_at. Called by the scheduler
// tick immediately after a run is accepted by the worker pool (spec §4.6
// step 3), never after the run actually finishes.
func (r *gormScheduleRepository) UpdateRunTimes(ctx context.Context, id uuid.UUID, lastRunAt, nextRunAt time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&db.Schedule{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"last_run_at": lastRunAt,
			"next_run_at": nextRunAt,
		})
	if result.Error != nil {
		return fmt.Errorf("schedules: update run times: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
