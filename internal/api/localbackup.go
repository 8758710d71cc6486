package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/dbsentinel/dbsentinel/internal/filename"
	"github.com/dbsentinel/dbsentinel/internal/repositories"
	"github.com/dbsentinel/dbsentinel/internal/storage"
)

// LocalBackupHandler serves the built-in local destination routes (spec §6:
// `/backup/list`, `/backup/download/{filename}`, `/backup/delete/{filename}`),
// distinct from the managed-destination routes under
// `/automation/destinations/{id}/backups` because the local destination has
// no row of its own to key off.
type LocalBackupHandler struct {
	targets repositories.TargetRepository
	pool    *storage.Pool
	logger  *zap.Logger
}

// NewLocalBackupHandler creates a new LocalBackupHandler.
func NewLocalBackupHandler(targets repositories.TargetRepository, pool *storage.Pool, logger *zap.Logger) *LocalBackupHandler {
	return &LocalBackupHandler{targets: targets, pool: pool, logger: logger.Named("local_backup_handler")}
}

// resolveTargetFolder loads the target named by the required target_id
// query parameter and returns its sanitized storage folder.
func (h *LocalBackupHandler) resolveTargetFolder(w http.ResponseWriter, r *http.Request) (string, bool) {
	targetID, ok := parseUUIDQuery(w, r, "target_id")
	if !ok {
		return "", false
	}
	target, err := h.targets.GetByID(r.Context(), targetID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			ErrNotFound(w)
			return "", false
		}
		h.logger.Error("failed to load target", zap.Error(err))
		ErrInternal(w)
		return "", false
	}
	return filename.SanitizeTarget(target.Name), true
}

// List handles GET /backup/list?target_id=&include_total=&limit=&offset=.
func (h *LocalBackupHandler) List(w http.ResponseWriter, r *http.Request) {
	targetFolder, ok := h.resolveTargetFolder(w, r)
	if !ok {
		return
	}

	adapter, err := h.pool.Get(localDestination)
	if err != nil {
		h.logger.Error("failed to build local adapter", zap.Error(err))
		ErrInternal(w)
		return
	}

	opts := paginationOpts(r)
	result, err := adapter.List(r.Context(), storage.ListOptions{
		TargetFolder: targetFolder,
		IncludeTotal: parseBoolQuery(r, "include_total"),
		Limit:        opts.Limit,
		Offset:       opts.Offset,
	})
	if err != nil {
		h.logger.Error("failed to list local backups", zap.Error(err))
		ErrInternal(w)
		return
	}

	items := make([]backupItemResponse, len(result.Items))
	for i, item := range result.Items {
		items[i] = backupItemResponse{ID: item.ID, Name: item.Name, Size: item.Size, CreatedAt: item.CreatedAt.UTC().String()}
	}
	Ok(w, listBackupsResponse{Items: items, Total: result.Total})
}

// Download handles GET /backup/download/{filename}?target_id=.
func (h *LocalBackupHandler) Download(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "filename")
	targetFolder, ok := h.resolveTargetFolder(w, r)
	if !ok {
		return
	}

	adapter, err := h.pool.Get(localDestination)
	if err != nil {
		h.logger.Error("failed to build local adapter", zap.Error(err))
		ErrInternal(w)
		return
	}

	backupID := targetFolder + "/" + name
	reader, err := adapter.Get(r.Context(), backupID, name)
	if err != nil {
		if errors.Is(err, storage.ErrBackupNotFound) {
			ErrNotFound(w)
			return
		}
		h.logger.Error("failed to download local backup", zap.String("name", name), zap.Error(err))
		ErrInternal(w)
		return
	}
	defer reader.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, name))
	if _, err := io.Copy(w, reader); err != nil {
		h.logger.Warn("error streaming local backup", zap.String("name", name), zap.Error(err))
	}
}

// Delete handles POST /backup/delete/{filename}?target_id=.
func (h *LocalBackupHandler) Delete(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "filename")
	targetFolder, ok := h.resolveTargetFolder(w, r)
	if !ok {
		return
	}

	adapter, err := h.pool.Get(localDestination)
	if err != nil {
		h.logger.Error("failed to build local adapter", zap.Error(err))
		ErrInternal(w)
		return
	}

	backupID := targetFolder + "/" + name
	if err := adapter.Delete(r.Context(), backupID, name); err != nil {
		if errors.Is(err, storage.ErrBackupNotFound) {
			ErrNotFound(w)
			return
		}
		h.logger.Error("failed to delete local backup", zap.String("name", name), zap.Error(err))
		ErrInternal(w)
		return
	}
	NoContent(w)
}
