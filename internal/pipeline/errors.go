// Package pipeline implements the backup (C4) and restore (C7) execution
// pipelines: the orchestration that ties a Target, its Destinations, a
// retention policy, and a Run record together into one pass of
// dump/compress/encrypt/fan-out, or the reverse for restore.
package pipeline

import "errors"

// Restore gate failures (spec §4.7). These surface to the API layer as
// 400s with a named kind, distinct from ordinary internal errors.
var (
	ErrConfirmationRequired       = errors.New("pipeline: confirmation required")
	ErrEncryptionPasswordRequired = errors.New("pipeline: encryption password required")
	ErrIncompatibleBackup         = errors.New("pipeline: backup artifact incompatible with target db_type")
)

// confirmationPhrase is the exact literal restore callers must supply.
const confirmationPhrase = "RESTORE"
