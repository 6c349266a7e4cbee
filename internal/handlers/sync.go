package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"activity-sync/internal/activity"
	"activity-sync/internal/engine"
)

// maxSubmitBody bounds a backfill request body
const maxSubmitBody = 32 << 20

// Engine is the part of the sync engine the control API drives
type Engine interface {
	TriggerManualSync(ctx context.Context) engine.SyncResult
	SubmitActivities(ctx context.Context, items []activity.NormalizedActivity) engine.SyncResult
	ListDeviceActivities(ctx context.Context) (*engine.DeviceListing, error)
	Reconcile(ctx context.Context) (int, error)
	Status(ctx context.Context) engine.Status
	SetSyncEnabled(ctx context.Context, enabled bool) error
	Wipe(ctx context.Context) error
}

// SyncHandler exposes sync operations to the UI
type SyncHandler struct {
	engine Engine
	logger *slog.Logger
}

// NewSyncHandler creates a new sync handler
func NewSyncHandler(e Engine) *SyncHandler {
	return &SyncHandler{
		engine: e,
		logger: slog.Default(),
	}
}

// HandleSync handles POST /sync. The response is the cycle's SyncResult;
// a failed cycle is still a 200 since the failure is in the body.
func (h *SyncHandler) HandleSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	result := h.engine.TriggerManualSync(r.Context())
	h.writeJSON(w, http.StatusOK, result)
}

type submitRequest struct {
	Activities []activity.NormalizedActivity `json:"activities"`
}

// HandleSubmit handles POST /activities/submit with {"activities": [...]}
func (h *SyncHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req submitRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSubmitBody)).Decode(&req); err != nil {
		h.logger.Warn("Invalid submit request", "error", err)
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	h.logger.Info("Manual submission requested", "count", len(req.Activities))
	result := h.engine.SubmitActivities(r.Context(), req.Activities)
	h.writeJSON(w, http.StatusOK, result)
}

// HandleActivities handles GET /activities
func (h *SyncHandler) HandleActivities(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	listing, err := h.engine.ListDeviceActivities(r.Context())
	if err != nil {
		h.logger.Error("Failed to list device activities", "error", err)
		http.Error(w, "Health source unavailable", http.StatusServiceUnavailable)
		return
	}

	h.writeJSON(w, http.StatusOK, listing)
}

// HandleReconcile handles POST /reconcile
func (h *SyncHandler) HandleReconcile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	seeded, err := h.engine.Reconcile(r.Context())
	if err != nil {
		h.logger.Warn("Reconciliation failed", "error", err)
		http.Error(w, "Reconciliation failed", http.StatusBadGateway)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]int{"seeded": seeded})
}

// HandleStatus handles GET /status
func (h *SyncHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	h.writeJSON(w, http.StatusOK, h.engine.Status(r.Context()))
}

// HandleSyncEnabled handles PUT /sync-enabled with {"enabled": bool}
func (h *SyncHandler) HandleSyncEnabled(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Enabled *bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Enabled == nil {
		http.Error(w, "Expected {\"enabled\": true|false}", http.StatusBadRequest)
		return
	}

	if err := h.engine.SetSyncEnabled(r.Context(), *req.Enabled); err != nil {
		h.logger.Error("Failed to set sync enabled", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	h.logger.Info("Sync enabled flag changed", "enabled", *req.Enabled)
	h.writeJSON(w, http.StatusOK, map[string]bool{"enabled": *req.Enabled})
}

func (h *SyncHandler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("Failed to encode response", "error", err)
	}
}
