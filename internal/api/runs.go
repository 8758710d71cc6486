package api

import (
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/dbsentinel/dbsentinel/internal/db"
	"github.com/dbsentinel/dbsentinel/internal/repositories"
)

// RunHandler groups the HTTP handlers for C8's audit trail (spec §4.8, §6).
// Runs are read-only from the API's perspective — they are written only by
// the backup and restore pipelines.
type RunHandler struct {
	repo   repositories.RunRepository
	logger *zap.Logger
}

// NewRunHandler creates a new RunHandler.
func NewRunHandler(repo repositories.RunRepository, logger *zap.Logger) *RunHandler {
	return &RunHandler{repo: repo, logger: logger.Named("run_handler")}
}

// runResponse is the JSON representation of a Run.
type runResponse struct {
	ID              string  `json:"id"`
	Operation       string  `json:"operation"`
	Trigger         string  `json:"trigger"`
	TargetID        string  `json:"target_id"`
	TargetName      string  `json:"target_name"`
	ScheduleID      *string `json:"schedule_id"`
	ScheduleName    string  `json:"schedule_name"`
	DestinationID   string  `json:"destination_id"`
	DestinationName string  `json:"destination_name"`
	BackupID        string  `json:"backup_id"`
	BackupFilename  string  `json:"backup_filename"`
	FileSizeMB      float64 `json:"file_size_mb"`
	Status          string  `json:"status"`
	StartedAt       string  `json:"started_at"`
	FinishedAt      *string `json:"finished_at"`
	ErrorMessage    string  `json:"error_message,omitempty"`
}

func runToResponse(run *db.Run) runResponse {
	resp := runResponse{
		ID: run.ID.String(), Operation: string(run.Operation), Trigger: string(run.Trigger),
		TargetID: run.TargetID.String(), TargetName: run.TargetName,
		ScheduleName: run.ScheduleName, DestinationID: run.DestinationID, DestinationName: run.DestinationName,
		BackupID: run.BackupID, BackupFilename: run.BackupFilename, FileSizeMB: run.FileSizeMB,
		Status: string(run.Status), StartedAt: run.StartedAt.UTC().Format(time.RFC3339),
		ErrorMessage: run.ErrorMessage,
	}
	if run.ScheduleID != nil {
		v := run.ScheduleID.String()
		resp.ScheduleID = &v
	}
	if run.FinishedAt != nil {
		v := run.FinishedAt.UTC().Format(time.RFC3339)
		resp.FinishedAt = &v
	}
	return resp
}

type listRunsResponse struct {
	Items []runResponse `json:"items"`
	Total int64         `json:"total"`
}

// List handles GET /automation/audit. Supports filtering by target_id,
// operation, trigger, and a since/until date range (spec §4.8).
func (h *RunHandler) List(w http.ResponseWriter, r *http.Request) {
	filter := repositories.RunFilter{ListOptions: paginationOpts(r)}

	q := r.URL.Query()
	if raw := q.Get("target_id"); raw != "" {
		id, ok := parseUUIDQuery(w, r, "target_id")
		if !ok {
			return
		}
		filter.TargetID = &id
	}
	if raw := q.Get("operation"); raw != "" {
		op := db.Operation(raw)
		if op != db.OperationBackup && op != db.OperationRestore {
			ErrBadRequest(w, "operation must be one of: backup, restore")
			return
		}
		filter.Operation = &op
	}
	if raw := q.Get("trigger"); raw != "" {
		trig := db.Trigger(raw)
		if trig != db.TriggerScheduled && trig != db.TriggerManual && trig != db.TriggerRunNow {
			ErrBadRequest(w, "trigger must be one of: scheduled, manual, run_now")
			return
		}
		filter.Trigger = &trig
	}
	if raw := q.Get("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			ErrBadRequest(w, "since must be an RFC3339 timestamp")
			return
		}
		filter.Since = &since
	}
	if raw := q.Get("until"); raw != "" {
		until, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			ErrBadRequest(w, "until must be an RFC3339 timestamp")
			return
		}
		filter.Until = &until
	}

	runs, total, err := h.repo.ListRuns(r.Context(), filter)
	if err != nil {
		h.logger.Error("failed to list runs", zap.Error(err))
		ErrInternal(w)
		return
	}

	items := make([]runResponse, len(runs))
	for i := range runs {
		items[i] = runToResponse(&runs[i])
	}
	Ok(w, listRunsResponse{Items: items, Total: total})
}

// GetByID handles GET /automation/audit/{id}.
func (h *RunHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}

	run, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			ErrNotFound(w)
			return
		}
		h.logger.Error("failed to get run", zap.String("id", id.String()), zap.Error(err))
		ErrInternal(w)
		return
	}
	Ok(w, runToResponse(run))
}
