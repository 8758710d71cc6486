package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dbsentinel/dbsentinel/internal/db"
	"github.com/dbsentinel/dbsentinel/internal/filename"
	"github.com/dbsentinel/dbsentinel/internal/repositories"
	"github.com/dbsentinel/dbsentinel/internal/storage"
)

// DestinationHandler groups the HTTP handlers for C3's destination
// resource (spec §4.3, §6), including its destination-scoped backup
// listing/download/delete endpoints.
type DestinationHandler struct {
	repo     repositories.DestinationRepository
	targets  repositories.TargetRepository
	pool     *storage.Pool
	registry *storage.Registry
	logger   *zap.Logger
}

// NewDestinationHandler creates a new DestinationHandler. registry builds
// the throwaway adapters TestConnection dials, bypassing pool's cache since
// a dry-run destination has no id to key a cache entry on. targets resolves
// the target_id query parameter on ListBackups to the target_folder an
// Adapter actually stores under (spec §4.3's sanitized target name, not the
// target's id).
func NewDestinationHandler(repo repositories.DestinationRepository, targets repositories.TargetRepository, pool *storage.Pool, registry *storage.Registry, logger *zap.Logger) *DestinationHandler {
	return &DestinationHandler{repo: repo, targets: targets, pool: pool, registry: registry, logger: logger.Named("destination_handler")}
}

var validDestinationTypes = map[db.DestinationType]bool{
	db.DestinationTypeLocal:       true,
	db.DestinationTypeSFTP:        true,
	db.DestinationTypeGoogleDrive: true,
}

// destinationResponse is the JSON representation of a destination. Secrets
// are intentionally omitted — they are write-only and never returned.
type destinationResponse struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	DestinationType string `json:"destination_type"`
	Config          string `json:"config"`
	IsActive        bool   `json:"is_active"`
	CreatedAt       string `json:"created_at"`
	UpdatedAt       string `json:"updated_at"`
}

func destinationToResponse(d *db.Destination) destinationResponse {
	return destinationResponse{
		ID: d.ID.String(), Name: d.Name, DestinationType: string(d.DestinationType),
		Config: d.Config, IsActive: d.IsActive,
		CreatedAt: d.CreatedAt.UTC().String(), UpdatedAt: d.UpdatedAt.UTC().String(),
	}
}

type listDestinationsResponse struct {
	Items []destinationResponse `json:"items"`
	Total int64                 `json:"total"`
}

// List handles GET /automation/destinations.
func (h *DestinationHandler) List(w http.ResponseWriter, r *http.Request) {
	opts := paginationOpts(r)

	destinations, total, err := h.repo.List(r.Context(), opts)
	if err != nil {
		h.logger.Error("failed to list destinations", zap.Error(err))
		ErrInternal(w)
		return
	}

	items := make([]destinationResponse, len(destinations))
	for i := range destinations {
		items[i] = destinationToResponse(&destinations[i])
	}
	Ok(w, listDestinationsResponse{Items: items, Total: total})
}

// destinationRequest is the JSON body for create/update/test-connection.
type destinationRequest struct {
	Name            string          `json:"name"`
	DestinationType string          `json:"destination_type"`
	Config          string          `json:"config"`   // JSON, backend-specific
	Secrets         json.RawMessage `json:"secrets"`   // JSON, backend-specific
	IsActive        *bool           `json:"is_active"`
}

func (req destinationRequest) validate(w http.ResponseWriter) bool {
	if req.Name == "" {
		ErrBadRequest(w, "name is required")
		return false
	}
	if !validDestinationTypes[db.DestinationType(req.DestinationType)] {
		ErrBadRequest(w, "destination_type must be one of: local, sftp, google_drive")
		return false
	}
	return true
}

// Create handles POST /automation/destinations.
func (h *DestinationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req destinationRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !req.validate(w) {
		return
	}
	if req.Config == "" {
		req.Config = "{}"
	}

	dest := &db.Destination{
		Name: req.Name, DestinationType: db.DestinationType(req.DestinationType), Config: req.Config,
		Secrets: db.EncryptedString(req.Secrets), IsActive: true,
	}
	if req.IsActive != nil {
		dest.IsActive = *req.IsActive
	}

	if err := h.repo.Create(r.Context(), dest); err != nil {
		h.logger.Error("failed to create destination", zap.Error(err))
		ErrInternal(w)
		return
	}
	Created(w, destinationToResponse(dest))
}

// GetByID handles GET /automation/destinations/{id}.
func (h *DestinationHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}

	dest, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			ErrNotFound(w)
			return
		}
		h.logger.Error("failed to get destination", zap.String("id", id.String()), zap.Error(err))
		ErrInternal(w)
		return
	}
	Ok(w, destinationToResponse(dest))
}

// Update handles PUT /automation/destinations/{id}. Secrets, if present,
// replace the stored value entirely; omit the field to leave it unchanged.
// A changed config/secrets evicts the destination's cached adapter so the
// next use picks up the new credentials.
func (h *DestinationHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}

	var req destinationRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !req.validate(w) {
		return
	}

	dest, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			ErrNotFound(w)
			return
		}
		h.logger.Error("failed to get destination for update", zap.String("id", id.String()), zap.Error(err))
		ErrInternal(w)
		return
	}

	dest.Name = req.Name
	dest.DestinationType = db.DestinationType(req.DestinationType)
	if req.Config != "" {
		dest.Config = req.Config
	}
	if len(req.Secrets) > 0 {
		dest.Secrets = db.EncryptedString(req.Secrets)
	}
	if req.IsActive != nil {
		dest.IsActive = *req.IsActive
	}

	if err := h.repo.Update(r.Context(), dest); err != nil {
		h.logger.Error("failed to update destination", zap.String("id", id.String()), zap.Error(err))
		ErrInternal(w)
		return
	}
	h.pool.Evict(id.String())
	Ok(w, destinationToResponse(dest))
}

// Delete handles DELETE /automation/destinations/{id}. Fails with 409 if
// any Schedule still references this destination.
func (h *DestinationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}

	if err := h.repo.Delete(r.Context(), id); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			ErrNotFound(w)
			return
		}
		if errors.Is(err, repositories.ErrConflict) {
			ErrConflict(w, "destination is still referenced by one or more schedules")
			return
		}
		h.logger.Error("failed to delete destination", zap.String("id", id.String()), zap.Error(err))
		ErrInternal(w)
		return
	}
	h.pool.Evict(id.String())
	NoContent(w)
}

// TestConnection handles POST /automation/destinations/test-connection. It
// never persists anything — the adapter is built straight from the request
// body and dialed against directly (dry run, spec §6).
func (h *DestinationHandler) TestConnection(w http.ResponseWriter, r *http.Request) {
	var req destinationRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !req.validate(w) {
		return
	}

	dest := &db.Destination{
		Name: req.Name, DestinationType: db.DestinationType(req.DestinationType), Config: req.Config,
		Secrets: db.EncryptedString(req.Secrets),
	}

	adapter, err := h.registry.Build(dest)
	if err != nil {
		ErrBadRequest(w, err.Error())
		return
	}

	result, err := adapter.TestConnection(r.Context())
	if err != nil {
		h.logger.Warn("destination test-connection failed", zap.String("destination_type", req.DestinationType), zap.Error(err))
		Ok(w, testConnectionResponse{OK: false, Message: err.Error()})
		return
	}
	Ok(w, testConnectionResponse{OK: result.OK, Message: result.Message})
}

// -----------------------------------------------------------------------------
// Destination-scoped backups (spec §6)
// -----------------------------------------------------------------------------

type backupItemResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Size      int64  `json:"size"`
	CreatedAt string `json:"created_at"`
}

type listBackupsResponse struct {
	Items []backupItemResponse `json:"items"`
	Total *int64               `json:"total,omitempty"`
}

// ListBackups handles GET /automation/destinations/{id}/backups
// ?target_id=&include_total=&limit=&offset=.
func (h *DestinationHandler) ListBackups(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}
	targetID, ok := parseUUIDQuery(w, r, "target_id")
	if !ok {
		return
	}

	target, err := h.targets.GetByID(r.Context(), targetID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			ErrNotFound(w)
			return
		}
		h.logger.Error("failed to get target", zap.String("target_id", targetID.String()), zap.Error(err))
		ErrInternal(w)
		return
	}

	dest, ok := h.resolveDestination(w, r, id)
	if !ok {
		return
	}

	adapter, err := h.pool.Get(dest)
	if err != nil {
		h.logger.Error("failed to build destination adapter", zap.String("id", id.String()), zap.Error(err))
		ErrInternal(w)
		return
	}

	opts := paginationOpts(r)
	result, err := adapter.List(r.Context(), storage.ListOptions{
		TargetFolder: filename.SanitizeTarget(target.Name), IncludeTotal: parseBoolQuery(r, "include_total"),
		Limit: opts.Limit, Offset: opts.Offset,
	})
	if err != nil {
		h.logger.Error("failed to list backups", zap.String("id", id.String()), zap.Error(err))
		ErrInternal(w)
		return
	}

	items := make([]backupItemResponse, len(result.Items))
	for i, it := range result.Items {
		items[i] = backupItemResponse{ID: it.ID, Name: it.Name, Size: it.Size, CreatedAt: it.CreatedAt.Format("2006-01-02T15:04:05Z07:00")}
	}
	Ok(w, listBackupsResponse{Items: items, Total: result.Total})
}

// DownloadBackup handles GET /automation/destinations/{id}/backups/download
// ?backup_id=&filename= — streams the artifact bytes back unmodified (no
// decompression/decryption; that only happens via restore-now).
func (h *DestinationHandler) DownloadBackup(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}
	backupID := r.URL.Query().Get("backup_id")
	filename := r.URL.Query().Get("filename")
	if backupID == "" || filename == "" {
		ErrBadRequest(w, "backup_id and filename are required")
		return
	}

	dest, ok := h.resolveDestination(w, r, id)
	if !ok {
		return
	}

	adapter, err := h.pool.Get(dest)
	if err != nil {
		h.logger.Error("failed to build destination adapter", zap.String("id", id.String()), zap.Error(err))
		ErrInternal(w)
		return
	}

	rc, err := adapter.Get(r.Context(), backupID, filename)
	if err != nil {
		if errors.Is(err, storage.ErrBackupNotFound) {
			ErrNotFound(w)
			return
		}
		h.logger.Error("failed to fetch backup", zap.String("id", id.String()), zap.Error(err))
		ErrInternal(w)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename=%q`, filename))
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.Warn("backup download interrupted", zap.String("id", id.String()), zap.Error(err))
	}
}

// DeleteBackup handles DELETE /automation/destinations/{id}/backups/delete
// ?backup_id=&name=.
func (h *DestinationHandler) DeleteBackup(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}
	backupID := r.URL.Query().Get("backup_id")
	name := r.URL.Query().Get("name")
	if backupID == "" || name == "" {
		ErrBadRequest(w, "backup_id and name are required")
		return
	}

	dest, ok := h.resolveDestination(w, r, id)
	if !ok {
		return
	}

	adapter, err := h.pool.Get(dest)
	if err != nil {
		h.logger.Error("failed to build destination adapter", zap.String("id", id.String()), zap.Error(err))
		ErrInternal(w)
		return
	}

	if err := adapter.Delete(r.Context(), backupID, name); err != nil {
		if errors.Is(err, storage.ErrBackupNotFound) {
			ErrNotFound(w)
			return
		}
		h.logger.Error("failed to delete backup", zap.String("id", id.String()), zap.Error(err))
		ErrInternal(w)
		return
	}
	NoContent(w)
}

// resolveDestination loads id, writing the matching HTTP response for a
// not-found or internal outcome and reporting whether the caller should
// continue (ok == true).
func (h *DestinationHandler) resolveDestination(w http.ResponseWriter, r *http.Request, id uuid.UUID) (*db.Destination, bool) {
	dest, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			ErrNotFound(w)
			return nil, false
		}
		h.logger.Error("failed to get destination", zap.String("id", id.String()), zap.Error(err))
		ErrInternal(w)
		return nil, false
	}
	return dest, true
}
