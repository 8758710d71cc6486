package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dbsentinel/dbsentinel/internal/db"
)

// -----------------------------------------------------------------------------
// Common
// -----------------------------------------------------------------------------

// ListOptions contains common pagination and filtering options for list queries.
type ListOptions struct {
	Limit  int
	Offset int
}

// -----------------------------------------------------------------------------
// TargetRepository
// -----------------------------------------------------------------------------

type TargetRepository interface {
	Create(ctx context.Context, target *db.Target) error
	GetByID(ctx context.Context, id uuid.UUID) (*db.Target, error)
	GetByName(ctx context.Context, name string) (*db.Target, error)
	Update(ctx context.Context, target *db.Target) error

	// Delete fails with ErrConflict (IN_USE) if any Schedule references id.
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, opts ListOptions) ([]db.Target, int64, error)
}

// -----------------------------------------------------------------------------
// DestinationRepository
// -----------------------------------------------------------------------------

type DestinationRepository interface {
	Create(ctx context.Context, destination *db.Destination) error
	GetByID(ctx context.Context, id uuid.UUID) (*db.Destination, error)
	Update(ctx context.Context, destination *db.Destination) error

	// Delete fails with ErrConflict (IN_USE) if any Schedule references id.
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, opts ListOptions) ([]db.Destination, int64, error)
}

// -----------------------------------------------------------------------------
// ScheduleRepository
// -----------------------------------------------------------------------------

type ScheduleRepository interface {
	Create(ctx context.Context, schedule *db.Schedule) error
	GetByID(ctx context.Context, id uuid.UUID) (*db.Schedule, error)
	Update(ctx context.Context, schedule *db.Schedule) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, opts ListOptions) ([]db.Schedule, int64, error)
	ListEnabled(ctx context.Context) ([]db.Schedule, error)

	// ReferencesTarget and ReferencesDestination back the referential
	// integrity guard on Target/Destination delete.
	ReferencesTarget(ctx context.Context, targetID uuid.UUID) (bool, error)
	ReferencesDestination(ctx context.Context, destinationID uuid.UUID) (bool, error)

	// UpdateRunTimes advances last_run_at/next_run_at after a tick submits
	// (or skips) a run for this schedule.
	UpdateRunTimes(ctx context.Context, id uuid.UUID, lastRunAt, nextRunAt time.Time) error
}

// -----------------------------------------------------------------------------
// RunRepository
// -----------------------------------------------------------------------------

// RunFilter narrows ListRuns per spec §4.8 ("filters: target, operation,
// trigger, date range").
type RunFilter struct {
	TargetID  *uuid.UUID
	Operation *db.Operation
	Trigger   *db.Trigger
	Since     *time.Time
	Until     *time.Time
	ListOptions
}

type RunRepository interface {
	// RecordRunStart allocates a new Run with status=running, started_at=now.
	RecordRunStart(ctx context.Context, run *db.Run) error

	// RecordRunFinish transitions a Run from running to a terminal status
	// exactly once. Callers must not call this twice for the same id.
	RecordRunFinish(ctx context.Context, id uuid.UUID, status db.RunStatus, detail string, fileSizeMB float64, backupID, backupFilename, errMsg string) error

	GetByID(ctx context.Context, id uuid.UUID) (*db.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]db.Run, int64, error)

	// SweepAbandoned finalizes every status=running Run with started_at
	// older than olderThan as failure/"abandoned" (crash recovery, §4.6).
	SweepAbandoned(ctx context.Context, olderThan time.Time) (int64, error)
}
