package api

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dbsentinel/dbsentinel/internal/db"
	"github.com/dbsentinel/dbsentinel/internal/pipeline"
	"github.com/dbsentinel/dbsentinel/internal/repositories"
)

// RestoreNowHandler backs POST /automation/restore-now (spec §4.7, §6).
type RestoreNowHandler struct {
	targets  repositories.TargetRepository
	dests    repositories.DestinationRepository
	pipeline *pipeline.RestorePipeline
	logger   *zap.Logger
}

// NewRestoreNowHandler creates a new RestoreNowHandler.
func NewRestoreNowHandler(targets repositories.TargetRepository, dests repositories.DestinationRepository, rp *pipeline.RestorePipeline, logger *zap.Logger) *RestoreNowHandler {
	return &RestoreNowHandler{targets: targets, dests: dests, pipeline: rp, logger: logger.Named("restore_now_handler")}
}

type restoreNowRequest struct {
	TargetID           string `json:"target_id"`
	BackupID           string `json:"backup_id"`
	BackupFilename     string `json:"backup_filename"`
	DestinationID      string `json:"destination_id"`
	UseLocalStorage    bool   `json:"use_local_storage"`
	Confirmation       string `json:"confirmation"`
	EncryptionPassword string `json:"encryption_password"`
}

type restoreNowResponse struct {
	RunID  string `json:"run_id"`
	Status string `json:"status"`
}

// Handle handles POST /automation/restore-now. The three restore-gate
// failures (spec §4.7: missing/wrong confirmation, missing encryption
// password, incompatible backup artifact) surface as dedicated 400s rather
// than 500s — they are caller mistakes, not server failures.
func (h *RestoreNowHandler) Handle(w http.ResponseWriter, r *http.Request) {
	var req restoreNowRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.TargetID == "" || req.BackupID == "" || req.BackupFilename == "" {
		ErrBadRequest(w, "target_id, backup_id, and backup_filename are required")
		return
	}
	if !req.UseLocalStorage && req.DestinationID == "" {
		ErrBadRequest(w, "destination_id is required unless use_local_storage is set")
		return
	}

	targetID, err := uuid.Parse(req.TargetID)
	if err != nil {
		ErrBadRequest(w, "target_id must be a valid UUID")
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

	var destination *db.Destination
	if req.UseLocalStorage || req.DestinationID == db.LocalDestinationID {
		destination = localDestination
	} else {
		destID, err := uuid.Parse(req.DestinationID)
		if err != nil {
			ErrBadRequest(w, "destination_id must be a valid UUID")
			return
		}
		destination, err = h.dests.GetByID(r.Context(), destID)
		if err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				ErrNotFound(w)
				return
			}
			h.logger.Error("failed to load destination", zap.Error(err))
			ErrInternal(w)
			return
		}
	}

	opts := pipeline.RestoreOptions{
		Trigger:            db.TriggerManual,
		Confirmation:       req.Confirmation,
		BackupID:           req.BackupID,
		BackupFilename:     req.BackupFilename,
		EncryptionPassword: req.EncryptionPassword,
	}

	run, err := h.pipeline.Run(r.Context(), target, destination, opts)
	if err != nil {
		switch {
		case errors.Is(err, pipeline.ErrConfirmationRequired):
			ErrConfirmationRequired(w)
		case errors.Is(err, pipeline.ErrEncryptionPasswordRequired):
			ErrEncryptionPasswordRequired(w)
		case errors.Is(err, pipeline.ErrIncompatibleBackup):
			ErrIncompatibleBackup(w, err.Error())
		default:
			h.logger.Error("restore-now failed", zap.String("target_id", targetID.String()), zap.Error(err))
			ErrInternal(w)
		}
		return
	}
	Ok(w, restoreNowResponse{RunID: run.ID.String(), Status: string(run.Status)})
}
