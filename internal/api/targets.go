package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/dbsentinel/dbsentinel/internal/dbadapter"
	"github.com/dbsentinel/dbsentinel/internal/db"
	"github.com/dbsentinel/dbsentinel/internal/repositories"
)

// TargetHandler groups the HTTP handlers for C1's target resource
// (spec §4.1, §6).
type TargetHandler struct {
	repo       repositories.TargetRepository
	dbAdapters *dbadapter.Registry
	logger     *zap.Logger
}

// NewTargetHandler creates a new TargetHandler.
func NewTargetHandler(repo repositories.TargetRepository, dbAdapters *dbadapter.Registry, logger *zap.Logger) *TargetHandler {
	return &TargetHandler{repo: repo, dbAdapters: dbAdapters, logger: logger.Named("target_handler")}
}

var validDBTypes = map[db.DBType]bool{
	db.DBTypePostgreSQL: true,
	db.DBTypeMySQL:      true,
	db.DBTypeSQLite:     true,
	db.DBTypeNeo4j:      true,
}

// targetResponse is the JSON representation of a target. Secrets are
// intentionally omitted — they are write-only and never returned.
type targetResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	DBType    string `json:"db_type"`
	Config    string `json:"config"`
	IsActive  bool   `json:"is_active"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

func targetToResponse(t *db.Target) targetResponse {
	return targetResponse{
		ID: t.ID.String(), Name: t.Name, DBType: string(t.DBType),
		Config: t.Config, IsActive: t.IsActive,
		CreatedAt: t.CreatedAt.UTC().String(), UpdatedAt: t.UpdatedAt.UTC().String(),
	}
}

type listTargetsResponse struct {
	Items []targetResponse `json:"items"`
	Total int64            `json:"total"`
}

// List handles GET /automation/targets.
func (h *TargetHandler) List(w http.ResponseWriter, r *http.Request) {
	opts := paginationOpts(r)

	targets, total, err := h.repo.List(r.Context(), opts)
	if err != nil {
		h.logger.Error("failed to list targets", zap.Error(err))
		ErrInternal(w)
		return
	}

	items := make([]targetResponse, len(targets))
	for i := range targets {
		items[i] = targetToResponse(&targets[i])
	}
	Ok(w, listTargetsResponse{Items: items, Total: total})
}

// targetRequest is the JSON body for create/test-connection and for PUT.
// name and db_type are required in every case; on PUT, an empty config and
// an absent secrets or is_active leave the stored values unchanged.
type targetRequest struct {
	Name     string          `json:"name"`
	DBType   string          `json:"db_type"`
	Config   string          `json:"config"`   // JSON: host, port, database, user, path
	Secrets  json.RawMessage `json:"secrets"`  // JSON: password, private_key, passphrase
	IsActive *bool           `json:"is_active"`
}

func (req targetRequest) validate(w http.ResponseWriter) bool {
	if req.Name == "" {
		ErrBadRequest(w, "name is required")
		return false
	}
	if !validDBTypes[db.DBType(req.DBType)] {
		ErrBadRequest(w, "db_type must be one of: postgresql, mysql, sqlite, neo4j")
		return false
	}
	return true
}

// Create handles POST /automation/targets.
func (h *TargetHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req targetRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !req.validate(w) {
		return
	}
	if req.Config == "" {
		req.Config = "{}"
	}

	target := &db.Target{
		Name: req.Name, DBType: db.DBType(req.DBType), Config: req.Config,
		Secrets: db.EncryptedString(req.Secrets), IsActive: true,
	}
	if req.IsActive != nil {
		target.IsActive = *req.IsActive
	}

	if err := h.repo.Create(r.Context(), target); err != nil {
		if errors.Is(err, repositories.ErrConflict) {
			ErrConflict(w, "a target with this name already exists")
			return
		}
		h.logger.Error("failed to create target", zap.Error(err))
		ErrInternal(w)
		return
	}
	Created(w, targetToResponse(target))
}

// GetByID handles GET /automation/targets/{id}.
func (h *TargetHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}

	target, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			ErrNotFound(w)
			return
		}
		h.logger.Error("failed to get target", zap.String("id", id.String()), zap.Error(err))
		ErrInternal(w)
		return
	}
	Ok(w, targetToResponse(target))
}

// Update handles PUT /automation/targets/{id}. Secrets, if present, replace
// the stored value entirely; omit the field to leave it unchanged.
func (h *TargetHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}

	var req targetRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !req.validate(w) {
		return
	}

	target, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			ErrNotFound(w)
			return
		}
		h.logger.Error("failed to get target for update", zap.String("id", id.String()), zap.Error(err))
		ErrInternal(w)
		return
	}

	target.Name = req.Name
	target.DBType = db.DBType(req.DBType)
	if req.Config != "" {
		target.Config = req.Config
	}
	if len(req.Secrets) > 0 {
		target.Secrets = db.EncryptedString(req.Secrets)
	}
	if req.IsActive != nil {
		target.IsActive = *req.IsActive
	}

	if err := h.repo.Update(r.Context(), target); err != nil {
		if errors.Is(err, repositories.ErrConflict) {
			ErrConflict(w, "a target with this name already exists")
			return
		}
		h.logger.Error("failed to update target", zap.String("id", id.String()), zap.Error(err))
		ErrInternal(w)
		return
	}
	Ok(w, targetToResponse(target))
}

// Delete handles DELETE /automation/targets/{id}. Fails with 409 if any
// Schedule still references this target (spec §8 invariant 8).
func (h *TargetHandler) Delete(w http.ResponseWriter, r *http.Request) {
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
			ErrConflict(w, "target is still referenced by one or more schedules")
			return
		}
		h.logger.Error("failed to delete target", zap.String("id", id.String()), zap.Error(err))
		ErrInternal(w)
		return
	}
	NoContent(w)
}

// testConnectionResponse mirrors dbadapter.ConnectionResult.
type testConnectionResponse struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

// TestConnection handles POST /automation/targets/test-connection. It never
// persists anything — the request body carries the same shape as Create,
// and the adapter dials against it directly (dry run, spec §6).
func (h *TargetHandler) TestConnection(w http.ResponseWriter, r *http.Request) {
	var req targetRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !req.validate(w) {
		return
	}

	target := &db.Target{
		Name: req.Name, DBType: db.DBType(req.DBType), Config: req.Config,
		Secrets: db.EncryptedString(req.Secrets),
	}

	adapter, err := h.dbAdapters.Resolve(target.DBType)
	if err != nil {
		ErrBadRequest(w, err.Error())
		return
	}

	result, err := adapter.TestConnection(r.Context(), target)
	if err != nil {
		h.logger.Warn("target test-connection failed", zap.String("db_type", req.DBType), zap.Error(err))
		Ok(w, testConnectionResponse{OK: false, Message: err.Error()})
		return
	}
	Ok(w, testConnectionResponse{OK: result.OK, Message: result.Message})
}
