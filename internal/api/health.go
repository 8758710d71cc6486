package api

import "net/http"

// HealthHandler backs GET /health: a plain liveness probe, not a readiness
// check — it never touches the database or any adapter (spec §6).
type HealthHandler struct{}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler() *HealthHandler {
	return &HealthHandler{}
}

// Handle handles GET /health.
func (h *HealthHandler) Handle(w http.ResponseWriter, r *http.Request) {
	Ok(w, envelope{"status": "ok"})
}
