package api

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dbsentinel/dbsentinel/internal/db"
	"github.com/dbsentinel/dbsentinel/internal/pipeline"
	"github.com/dbsentinel/dbsentinel/internal/repositories"
	"github.com/dbsentinel/dbsentinel/internal/retention"
)

// localDestination is the synthetic record pipeline.BackupPipeline expects
// for the built-in local destination, which has no row of its own (spec §4
// "always present, not listed as a managed destination").
var localDestination = &db.Destination{Name: "local", DestinationType: db.DestinationTypeLocal}

// BackupNowHandler backs POST /automation/backup-now: a one-off backup run
// outside any schedule (spec §6).
type BackupNowHandler struct {
	targets  repositories.TargetRepository
	dests    repositories.DestinationRepository
	pipeline *pipeline.BackupPipeline
	logger   *zap.Logger
}

// NewBackupNowHandler creates a new BackupNowHandler.
func NewBackupNowHandler(targets repositories.TargetRepository, dests repositories.DestinationRepository, bp *pipeline.BackupPipeline, logger *zap.Logger) *BackupNowHandler {
	return &BackupNowHandler{targets: targets, dests: dests, pipeline: bp, logger: logger.Named("backup_now_handler")}
}

type backupNowRequest struct {
	TargetID        string   `json:"target_id"`
	DestinationIDs  []string `json:"destination_ids"`
	UseLocalStorage bool     `json:"use_local_storage"`
}

type backupNowResponse struct {
	RunID  string `json:"run_id"`
	Status string `json:"status"`
}

// Handle handles POST /automation/backup-now.
func (h *BackupNowHandler) Handle(w http.ResponseWriter, r *http.Request) {
	var req backupNowRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.TargetID == "" {
		ErrBadRequest(w, "target_id is required")
		return
	}
	targetID, err := uuid.Parse(req.TargetID)
	if err != nil {
		ErrBadRequest(w, "target_id must be a valid UUID")
		return
	}
	if !req.UseLocalStorage && len(req.DestinationIDs) == 0 {
		ErrBadRequest(w, "destination_ids is required unless use_local_storage is set")
		return
	}

	target, err := h.targets.GetByID(r.Context(), targetID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			ErrNotFound(w)
			return
		}
		h.logger.Error("failed to load target", zap.Error(err))
		ErrInternal(w)
		return
	}

	destinations := make([]*db.Destination, 0, len(req.DestinationIDs)+1)
	if req.UseLocalStorage {
		destinations = append(destinations, localDestination)
	}
	for _, raw := range req.DestinationIDs {
		if raw == db.LocalDestinationID {
			destinations = append(destinations, localDestination)
			continue
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			ErrBadRequest(w, "invalid destination id: "+raw)
			return
		}
		dest, err := h.dests.GetByID(r.Context(), id)
		if err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				ErrNotFound(w)
				return
			}
			h.logger.Error("failed to load destination", zap.String("id", raw), zap.Error(err))
			ErrInternal(w)
			return
		}
		destinations = append(destinations, dest)
	}

	opts := pipeline.BackupOptions{Trigger: db.TriggerManual, Retention: retention.Policy{}}
	run, err := h.pipeline.Run(r.Context(), target, destinations, opts)
	if err != nil {
		h.logger.Error("backup-now failed", zap.String("target_id", targetID.String()), zap.Error(err))
		ErrInternal(w)
		return
	}
	Ok(w, backupNowResponse{RunID: run.ID.String(), Status: string(run.Status)})
}
