// Package api implements the HTTP surface (spec §6): bearer-token
// authenticated REST endpoints for targets, destinations, schedules,
// backup-now/restore-now, audit history, the built-in local destination,
// and liveness/metrics. It uses Chi as the router; role enforcement
// (spec §9) is applied per-route via RequireRole.
package api

import (
	"encoding/json"
	"net/http"
)

// envelope is the standard JSON response wrapper for all API responses.
//
// Success:  {"data": <payload>}
// Error:    {"error": {"message": "...", "code": "...", "retry_after": N}}
type envelope map[string]any

// JSON writes a JSON-encoded response with the given status code.
func JSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// Ok writes a 200 OK response with the payload wrapped in {"data": payload}.
func Ok(w http.ResponseWriter, payload any) {
	JSON(w, http.StatusOK, envelope{"data": payload})
}

// Created writes a 201 Created response with the payload wrapped in {"data": payload}.
func Created(w http.ResponseWriter, payload any) {
	JSON(w, http.StatusCreated, envelope{"data": payload})
}

// NoContent writes a 204 No Content response with no body.
func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// errorResponse is the shape of the "error" object in error responses.
// RetryAfter is populated only for the BUSY kind (spec §7).
type errorResponse struct {
	Message    string `json:"message"`
	Code       string `json:"code,omitempty"`
	RetryAfter int    `json:"retry_after,omitempty"`
}

func errJSON(w http.ResponseWriter, status int, message, code string) {
	JSON(w, status, envelope{"error": errorResponse{Message: message, Code: code}})
}

// ErrBadRequest writes a 400 Bad Request error response (kind VALIDATION).
func ErrBadRequest(w http.ResponseWriter, message string) {
	errJSON(w, http.StatusBadRequest, message, "validation")
}

// ErrUnauthorized writes a 401 Unauthorized error response (kind AUTH).
func ErrUnauthorized(w http.ResponseWriter) {
	errJSON(w, http.StatusUnauthorized, "authentication required", "auth")
}

// ErrForbidden writes a 403 Forbidden error response (kind AUTH).
func ErrForbidden(w http.ResponseWriter) {
	errJSON(w, http.StatusForbidden, "insufficient role", "auth")
}

// ErrNotFound writes a 404 Not Found error response (kind NOT_FOUND).
func ErrNotFound(w http.ResponseWriter) {
	errJSON(w, http.StatusNotFound, "resource not found", "not_found")
}

// ErrConflict writes a 409 Conflict error response (kind CONFLICT —
// unique-name collision or an IN_USE delete).
func ErrConflict(w http.ResponseWriter, message string) {
	errJSON(w, http.StatusConflict, message, "conflict")
}

// ErrBusy writes a 409 Conflict response carrying retry_after (kind BUSY —
// a schedule's per-schedule lock is already held). retryAfterSeconds mirrors
// the heartbeat cadence callers should wait before retrying.
func ErrBusy(w http.ResponseWriter, retryAfterSeconds int) {
	JSON(w, http.StatusConflict, envelope{"error": errorResponse{
		Message: "a run for this schedule is already in progress", Code: "busy", RetryAfter: retryAfterSeconds,
	}})
}

// ErrConfirmationRequired writes a 400 for a restore submitted without the
// literal "RESTORE" confirmation phrase (kind CONFIRMATION_REQUIRED).
func ErrConfirmationRequired(w http.ResponseWriter) {
	errJSON(w, http.StatusBadRequest, `confirmation must equal the literal string "RESTORE"`, "confirmation_required")
}

// ErrEncryptionPasswordRequired writes a 400 for a restore of an encrypted
// artifact submitted without encryption_password (kind
// ENCRYPTION_PASSWORD_REQUIRED).
func ErrEncryptionPasswordRequired(w http.ResponseWriter) {
	errJSON(w, http.StatusBadRequest, "encryption_password is required to restore this artifact", "encryption_password_required")
}

// ErrIncompatibleBackup writes a 400 for a restore whose artifact suffix
// cannot plausibly belong to the target's db_type (kind INCOMPATIBLE_BACKUP).
func ErrIncompatibleBackup(w http.ResponseWriter, message string) {
	errJSON(w, http.StatusBadRequest, message, "incompatible_backup")
}

// ErrInternal writes a 500 Internal Server Error response (kind INTERNAL).
// The internal error detail is intentionally not exposed to the client —
// callers are expected to have already logged it with the relevant id.
func ErrInternal(w http.ResponseWriter) {
	errJSON(w, http.StatusInternalServerError, "an internal error occurred", "internal")
}

// decodeJSON decodes the request body into dst. Returns false and writes an
// appropriate error response if decoding fails, so callers can early-return.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MB limit
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		ErrBadRequest(w, "invalid request body: "+err.Error())
		return false
	}
	return true
}
