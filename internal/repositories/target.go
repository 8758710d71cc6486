package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dbsentinel/dbsentinel/internal/db"
)

// gormTargetRepository is the GORM implementation of TargetRepository.
type gormTargetRepository struct {
	db *gorm.DB
}

// NewTargetRepository returns a TargetRepository backed by the provided *gorm.DB.
func NewTargetRepository(database *gorm.DB) TargetRepository {
	return &gormTargetRepository{db: database}
}

// Create inserts a new target record into the database.
func (r *gormTargetRepository) Create(ctx context.Context, target *db.Target) error {
	if err := r.db.WithContext(ctx).Create(target).Error; err != nil {
		if isUniqueConstraintErr(err) {
			return ErrConflict
		}
		return fmt.Errorf("targets: create: %w", err)
	}
	return nil
}

// GetByID retrieves a target by its UUID. Returns ErrNotFound if absent.
func (r *gormTargetRepository) GetByID(ctx context.Context, id uuid.UUID) (*db.Target, error) {
	var t db.Target
	err := r.db.WithContext(ctx).First(&t, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("targets: get by id: %w", err)
	}
	return &t, nil
}

// GetByName retrieves a target by its unique name. Returns ErrNotFound if absent.
func (r *gormTargetRepository) GetByName(ctx context.Context, name string) (*db.Target, error) {
	var t db.Target
	err := r.db.WithContext(ctx).First(&t, "name = ?", name).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("targets: get by name: %w", err)
	}
	return &t, nil
}

// Update persists all fields of an existing target record.
func (r *gormTargetRepository) Update(ctx context.Context, target *db.Target) error {
	result := r.db.WithContext(ctx).Save(target)
	if result.Error != nil {
		if isUniqueConstraintErr(result.Error) {
			return ErrConflict
		}
		return fmt.Errorf("targets: update: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a target, refusing with ErrConflict if any Schedule still
// references it (spec §4.1 referential integrity). The caller is expected to
// have already checked this via ScheduleRepository.ReferencesTarget within
// the same transaction boundary where one is needed; this method re-checks
// to guard against a race between the check and the delete.
func (r *gormTargetRepository) Delete(ctx context.Context, id uuid.UUID) error {
	var count int64
	if err := r.db.WithContext(ctx).Model(&db.Schedule{}).Where("target_id = ?", id).Count(&count).Error; err != nil {
		return fmt.Errorf("targets: delete: check references: %w", err)
	}
	if count > 0 {
		return ErrConflict
	}
	result := r.db.WithContext(ctx).Delete(&db.Target{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("targets: delete: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns a paginated list of targets and the total count, ordered by
// creation time descending (most recently registered first).
func (r *gormTargetRepository) List(ctx context.Context, opts ListOptions) ([]db.Target, int64, error) {
	var targets []db.Target
	var total int64

	if err := r.db.WithContext(ctx).Model(&db.Target{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("targets: list count: %w", err)
	}

	if err := r.db.WithContext(ctx).
		Limit(opts.Limit).
		Offset(opts.Offset).
		Order("created_at DESC").
		Find(&targets).Error; err != nil {
		return nil, 0, fmt.Errorf("targets: list: %w", err)
	}

	return targets, total, nil
}
