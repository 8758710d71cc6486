package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dbsentinel/dbsentinel/internal/db"
	"github.com/dbsentinel/dbsentinel/internal/repositories"
	"github.com/dbsentinel/dbsentinel/internal/scheduler"
)

// ScheduleHandler groups the HTTP handlers for C6's schedule resource
// (spec §4.6, §6), including run-now and run-enabled-now.
type ScheduleHandler struct {
	repo      repositories.ScheduleRepository
	scheduler *scheduler.Scheduler
	logger    *zap.Logger
}

// NewScheduleHandler creates a new ScheduleHandler.
func NewScheduleHandler(repo repositories.ScheduleRepository, sched *scheduler.Scheduler, logger *zap.Logger) *ScheduleHandler {
	return &ScheduleHandler{repo: repo, scheduler: sched, logger: logger.Named("schedule_handler")}
}

// scheduleResponse is the JSON representation of a schedule. RetentionJSON
// is surfaced verbatim as raw JSON (it is itself the schedule's `retention`
// blob — run_at_time, retention mode, encryption, and notification
// overrides all nest inside it, per internal/scheduler.Policy).
type scheduleResponse struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	TargetID        string          `json:"target_id"`
	DestinationIDs  json.RawMessage `json:"destination_ids"`
	IntervalSeconds int             `json:"interval_seconds"`
	Enabled         bool            `json:"enabled"`
	Retention       json.RawMessage `json:"retention"`
	NextRunAt       *string         `json:"next_run_at"`
	LastRunAt       *string         `json:"last_run_at"`
	CreatedAt       string          `json:"created_at"`
	UpdatedAt       string          `json:"updated_at"`
}

func scheduleToResponse(s *db.Schedule) scheduleResponse {
	resp := scheduleResponse{
		ID: s.ID.String(), Name: s.Name, TargetID: s.TargetID.String(),
		DestinationIDs: rawOrEmptyArray(s.DestinationIDs), IntervalSeconds: s.IntervalSeconds,
		Enabled: s.Enabled, Retention: rawOrEmptyObject(s.RetentionJSON),
		CreatedAt: s.CreatedAt.UTC().String(), UpdatedAt: s.UpdatedAt.UTC().String(),
	}
	if s.NextRunAt != nil {
		v := s.NextRunAt.UTC().Format("2006-01-02T15:04:05Z07:00")
		resp.NextRunAt = &v
	}
	if s.LastRunAt != nil {
		v := s.LastRunAt.UTC().Format("2006-01-02T15:04:05Z07:00")
		resp.LastRunAt = &v
	}
	return resp
}

func rawOrEmptyArray(s string) json.RawMessage {
	if s == "" {
		return json.RawMessage("[]")
	}
	return json.RawMessage(s)
}

func rawOrEmptyObject(s string) json.RawMessage {
	if s == "" {
		return json.RawMessage("{}")
	}
	return json.RawMessage(s)
}

type listSchedulesResponse struct {
	Items []scheduleResponse `json:"items"`
	Total int64              `json:"total"`
}

// List handles GET /automation/schedules.
func (h *ScheduleHandler) List(w http.ResponseWriter, r *http.Request) {
	opts := paginationOpts(r)

	schedules, total, err := h.repo.List(r.Context(), opts)
	if err != nil {
		h.logger.Error("failed to list schedules", zap.Error(err))
		ErrInternal(w)
		return
	}

	items := make([]scheduleResponse, len(schedules))
	for i := range schedules {
		items[i] = scheduleToResponse(&schedules[i])
	}
	Ok(w, listSchedulesResponse{Items: items, Total: total})
}

// scheduleRequest is the JSON body for create/update.
type scheduleRequest struct {
	Name            string          `json:"name"`
	TargetID        string          `json:"target_id"`
	DestinationIDs  json.RawMessage `json:"destination_ids"`
	IntervalSeconds int             `json:"interval_seconds"`
	Enabled         *bool           `json:"enabled"`
	Retention       json.RawMessage `json:"retention"`
}

func (req scheduleRequest) validate(w http.ResponseWriter) (uuid.UUID, bool) {
	if req.Name == "" {
		ErrBadRequest(w, "name is required")
		return uuid.UUID{}, false
	}
	id, err := uuid.Parse(req.TargetID)
	if err != nil {
		ErrBadRequest(w, "target_id must be a valid UUID")
		return uuid.UUID{}, false
	}
	if req.IntervalSeconds <= 0 {
		ErrBadRequest(w, "interval_seconds must be positive")
		return uuid.UUID{}, false
	}
	if _, err := scheduler.ParsePolicy(string(rawOrEmptyObject(string(req.Retention)))); err != nil {
		ErrBadRequest(w, "retention: "+err.Error())
		return uuid.UUID{}, false
	}
	return id, true
}

// Create handles POST /automation/schedules.
func (h *ScheduleHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	targetID, ok := req.validate(w)
	if !ok {
		return
	}

	sched := &db.Schedule{
		Name: req.Name, TargetID: targetID, IntervalSeconds: req.IntervalSeconds,
		Enabled: true, DestinationIDs: string(rawOrEmptyArray(string(req.DestinationIDs))),
		RetentionJSON: string(rawOrEmptyObject(string(req.Retention))),
	}
	if req.Enabled != nil {
		sched.Enabled = *req.Enabled
	}

	if err := h.repo.Create(r.Context(), sched); err != nil {
		h.logger.Error("failed to create schedule", zap.Error(err))
		ErrInternal(w)
		return
	}
	Created(w, scheduleToResponse(sched))
}

// GetByID handles GET /automation/schedules/{id}.
func (h *ScheduleHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}

	sched, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			ErrNotFound(w)
			return
		}
		h.logger.Error("failed to get schedule", zap.String("id", id.String()), zap.Error(err))
		ErrInternal(w)
		return
	}
	Ok(w, scheduleToResponse(sched))
}

// Update handles PUT /automation/schedules/{id}.
func (h *ScheduleHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}

	var req scheduleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	targetID, ok := req.validate(w)
	if !ok {
		return
	}

	sched, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			ErrNotFound(w)
			return
		}
		h.logger.Error("failed to get schedule for update", zap.String("id", id.String()), zap.Error(err))
		ErrInternal(w)
		return
	}

	sched.Name = req.Name
	sched.TargetID = targetID
	sched.IntervalSeconds = req.IntervalSeconds
	if len(req.DestinationIDs) > 0 {
		sched.DestinationIDs = string(req.DestinationIDs)
	}
	if len(req.Retention) > 0 {
		sched.RetentionJSON = string(req.Retention)
	}
	if req.Enabled != nil {
		sched.Enabled = *req.Enabled
	}

	if err := h.repo.Update(r.Context(), sched); err != nil {
		h.logger.Error("failed to update schedule", zap.String("id", id.String()), zap.Error(err))
		ErrInternal(w)
		return
	}
	Ok(w, scheduleToResponse(sched))
}

// Delete handles DELETE /automation/schedules/{id}.
func (h *ScheduleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}

	if err := h.repo.Delete(r.Context(), id); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			ErrNotFound(w)
			return
		}
		h.logger.Error("failed to delete schedule", zap.String("id", id.String()), zap.Error(err))
		ErrInternal(w)
		return
	}
	NoContent(w)
}

// RunNow handles POST /automation/schedules/{id}/run-now.
func (h *ScheduleHandler) RunNow(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}

	if err := h.scheduler.TriggerNow(r.Context(), id); err != nil {
		if errors.Is(err, scheduler.ErrBusy) {
			ErrBusy(w, 30)
			return
		}
		if errors.Is(err, repositories.ErrNotFound) {
			ErrNotFound(w)
			return
		}
		h.logger.Error("failed to trigger schedule", zap.String("id", id.String()), zap.Error(err))
		ErrInternal(w)
		return
	}
	Ok(w, envelope{"triggered": true})
}

// runEnabledNowRequest is the JSON body for POST /automation/schedules/run-enabled-now.
type runEnabledNowRequest struct {
	MaxSchedules int `json:"max_schedules"`
}

// RunEnabledNow handles POST /automation/schedules/run-enabled-now. Unlike
// RunNow, a schedule whose lock is already held is skipped rather than
// failing the whole batch with BUSY.
func (h *ScheduleHandler) RunEnabledNow(w http.ResponseWriter, r *http.Request) {
	var req runEnabledNowRequest
	if r.ContentLength != 0 {
		if !decodeJSON(w, r, &req) {
			return
		}
	}

	submitted, err := h.scheduler.RunEnabledNow(r.Context(), req.MaxSchedules)
	if err != nil {
		h.logger.Error("failed to run enabled schedules", zap.Error(err))
		ErrInternal(w)
		return
	}
	Ok(w, envelope{"submitted": submitted})
}
