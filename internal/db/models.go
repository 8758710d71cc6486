package db

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// base contains the common fields shared by all models.
// ID uses UUID v7 (time-ordered) for efficient B-tree indexing and natural
// chronological ordering without a separate created_at sort. CreatedAt and
// UpdatedAt are managed automatically by GORM.
type base struct {
	ID        uuid.UUID `gorm:"type:text;primaryKey"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// BeforeCreate generates a new UUID v7 if the ID is not already set.
// This ensures every record has a valid time-ordered ID before insertion.
func (b *base) BeforeCreate(tx *gorm.DB) error {
	if b.ID == (uuid.UUID{}) {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		b.ID = id
	}
	return nil
}

// -----------------------------------------------------------------------------
// Targets
// -----------------------------------------------------------------------------

// DBType enumerates the supported database engines.
type DBType string

const (
	DBTypePostgreSQL DBType = "postgresql"
	DBTypeMySQL      DBType = "mysql"
	DBTypeSQLite     DBType = "sqlite"
	DBTypeNeo4j      DBType = "neo4j"
)

// Target represents a backupable database.
// Config carries the non-sensitive connection shape (host/port/database/
// user/path) as JSON; Secrets carries password/private_key/passphrase,
// sealed via EncryptedString. Which fields are meaningful inside each JSON
// blob depends on DBType — validated at the API boundary, not here.
type Target struct {
	base
	Name     string          `gorm:"uniqueIndex;not null"`
	DBType   DBType          `gorm:"not null"`
	Config   string          `gorm:"type:text;not null;default:'{}'"` // JSON: host, port, database, user, path
	Secrets  EncryptedString `gorm:"type:text;default:''"`            // JSON: password, private_key, passphrase
	IsActive bool            `gorm:"not null;default:true"`
}

// -----------------------------------------------------------------------------
// Destinations
// -----------------------------------------------------------------------------

// DestinationType enumerates the supported storage backends.
type DestinationType string

const (
	DestinationTypeLocal       DestinationType = "local"
	DestinationTypeSFTP        DestinationType = "sftp"
	DestinationTypeGoogleDrive DestinationType = "google_drive"
)

// LocalDestinationID is the id of the always-present built-in local
// destination. It is accepted by the pipeline and restore flows but never
// returned from List/Create — it has no row in the destinations table.
const LocalDestinationID = "__local__"

// Destination represents a storage location backups are written to.
type Destination struct {
	base
	Name            string          `gorm:"not null"`
	DestinationType DestinationType `gorm:"not null"`
	Config          string          `gorm:"type:text;not null;default:'{}'"` // JSON, backend-specific
	Secrets         EncryptedString `gorm:"type:text;default:''"`            // JSON, backend-specific
	IsActive        bool            `gorm:"not null;default:true"`
}

// -----------------------------------------------------------------------------
// Schedules
// -----------------------------------------------------------------------------

// Schedule defines a named periodic backup of one Target to a set of
// Destinations.
//
// DestinationIDs and RetentionJSON are stored as JSON — the former because a
// schedule fans out to an arbitrary-length set of destinations with no
// priority ordering to express (unlike the teacher's PolicyDestination join
// table), the latter because it carries more than just the retention mode:
// run_at_time, encrypt/encrypt_password, and notification overrides all
// nest inside this one opaque blob too (see internal/scheduler.Policy,
// which decodes the whole thing; internal/retention.Policy only covers the
// retention-mode subset of it).
type Schedule struct {
	base
	Name            string     `gorm:"not null"`
	TargetID        uuid.UUID  `gorm:"type:text;not null;index"`
	DestinationIDs  string     `gorm:"type:text;not null;default:'[]'"` // JSON array of destination ids
	IntervalSeconds int        `gorm:"not null"`
	Enabled         bool       `gorm:"not null;default:true"`
	RetentionJSON   string     `gorm:"column:retention;type:text;not null;default:'{}'"`
	NextRunAt       *time.Time `gorm:"index"`
	LastRunAt       *time.Time
}

// -----------------------------------------------------------------------------
// Runs
// -----------------------------------------------------------------------------

// Operation enumerates the two kinds of pipeline execution a Run records.
type Operation string

const (
	OperationBackup  Operation = "backup"
	OperationRestore Operation = "restore"
)

// Trigger enumerates how a Run was initiated.
type Trigger string

const (
	TriggerScheduled Trigger = "scheduled"
	TriggerManual    Trigger = "manual"
	TriggerRunNow    Trigger = "run_now"
)

// RunStatus enumerates the lifecycle states of a Run.
type RunStatus string

const (
	RunStatusRunning        RunStatus = "running"
	RunStatusSuccess        RunStatus = "success"
	RunStatusFailure        RunStatus = "failure"
	RunStatusPartialSuccess RunStatus = "partial_success"
)

// Run is the audit record for one backup or restore execution. It is
// append-only in steady state: status/finished_at transition running ->
// terminal exactly once (see repositories.RunRepository.RecordRunFinish).
type Run struct {
	base
	Operation       Operation  `gorm:"not null"`
	Trigger         Trigger    `gorm:"not null"`
	TargetID        uuid.UUID  `gorm:"type:text;not null;index"`
	TargetName      string     `gorm:"not null"`
	ScheduleID      *uuid.UUID `gorm:"type:text;index"`
	ScheduleName    string     `gorm:"default:''"`
	DestinationID   string     `gorm:"default:''"` // string, not uuid: may be "__local__"
	DestinationName string     `gorm:"default:''"`
	BackupID        string     `gorm:"default:''"` // destination-opaque artifact id
	BackupFilename  string     `gorm:"default:''"`
	FileSizeMB      float64    `gorm:"default:0"`
	Status          RunStatus  `gorm:"not null;default:'running';index"`
	StartedAt       time.Time  `gorm:"not null;index"`
	FinishedAt      *time.Time
	ErrorMessage    string `gorm:"type:text;default:''"`
	DetailJSON      string `gorm:"column:detail;type:text;not null;default:'{}'"`
}
