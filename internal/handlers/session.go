package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"activity-sync/internal/auth"
)

// Sessions stores the user's backend token
type Sessions interface {
	Login(ctx context.Context, token string) error
}

// SessionHandler handles login and logout
type SessionHandler struct {
	sessions Sessions
	engine   Engine
	logger   *slog.Logger
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(sessions Sessions, e Engine) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
		engine:   e,
		logger:   slog.Default(),
	}
}

// HandleSession handles PUT /session {"token": "..."} to log in and
// DELETE /session to log out, which wipes all local sync state
func (h *SessionHandler) HandleSession(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPut:
		h.login(w, r)
	case http.MethodDelete:
		h.logout(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *SessionHandler) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	if err := h.sessions.Login(r.Context(), req.Token); err != nil {
		if errors.Is(err, auth.ErrTokenExpired) {
			http.Error(w, "Token expired", http.StatusUnauthorized)
			return
		}
		h.logger.Warn("Login failed", "error", err)
		http.Error(w, "Invalid token", http.StatusBadRequest)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *SessionHandler) logout(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Wipe(r.Context()); err != nil {
		h.logger.Error("Failed to wipe local state on logout", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	h.logger.Info("Logged out and wiped local state")
	w.WriteHeader(http.StatusNoContent)
}
