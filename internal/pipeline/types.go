package pipeline

// DestinationResult is one destination's outcome within a backup Run,
// recorded in Run.detail.destinations.
type DestinationResult struct {
	DestinationID   string `json:"destination_id"`
	DestinationName string `json:"destination_name"`
	BackupID        string `json:"backup_id,omitempty"`
	Bytes           int64  `json:"bytes"`
	DurationMS      int64  `json:"duration_ms"`
	Status          string `json:"status"` // "success" or "failure"
	Error           string `json:"error,omitempty"`
}

// RetentionResult is one destination's retention sweep outcome within a
// backup Run, recorded in Run.detail.retention. Failures here never affect
// the Run's overall status (spec §4.4 step 7).
type RetentionResult struct {
	DestinationID string   `json:"destination_id"`
	Deleted       []string `json:"deleted,omitempty"`
	Errors        []string `json:"errors,omitempty"`
}

// BackupDetail is the JSON shape persisted into Run.detail for
// operation=backup.
type BackupDetail struct {
	Destinations []DestinationResult `json:"destinations"`
	Retention    []RetentionResult   `json:"retention,omitempty"`
}

// RestoreDetail is the JSON shape persisted into Run.detail for
// operation=restore.
type RestoreDetail struct {
	DestinationID  string `json:"destination_id"`
	SourceBackupID string `json:"source_backup_id"`
	SourceFilename string `json:"source_filename"`
	Bytes          int64  `json:"bytes"`
}
